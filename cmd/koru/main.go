// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devblok/korender/core"
	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/vkr"
	"github.com/devblok/korender/render"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
)

var (
	envFile   = flag.String("env", ".env", "Environment file to load the configuration from")
	adapter   = flag.Int("adapter", 0, "Index of the graphics adapter to use")
	showStats = flag.Bool("stats", true, "Print frame statistics")
)

var frameCounter atomic.Int64

func newWindow(cfg core.RendererConfiguration) (*sdl.Window, error) {
	return sdl.CreateWindow("Koru3D",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
}

func main() {
	flag.Parse()

	configuration := core.DefaultConfiguration()
	if err := core.LoadEnvironment(&configuration, *envFile); err != nil {
		log.Fatal(err)
	}
	if *debug {
		configuration.Renderer.Debug = true
	}
	logger, err := core.NewLogger(configuration.Log)
	if err != nil {
		log.Fatal(err)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logger.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			logger.Fatal(err)
		}
		if err := trace.Start(f); err != nil {
			logger.Fatal(err)
		}
		defer trace.Stop()
	}

	if err := run(configuration, logger); err != nil {
		logger.WithError(err).Error("koru exited")
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			logger.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			logger.Fatal(err)
		}
	}
}

func run(configuration core.Configuration, logger *log.Logger) error {
	settings, err := configuration.Renderer.Settings()
	if err != nil {
		return err
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return err
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return err
	}
	defer sdl.VulkanUnloadLibrary()

	sdlWindow, err := newWindow(configuration.Renderer)
	if err != nil {
		return err
	}
	defer sdlWindow.Destroy()

	instance, err := vkr.NewInstance(sdl.VulkanGetVkGetInstanceProcAddr(), vkr.InstanceConfiguration{
		Debug:      configuration.Renderer.Debug,
		Extensions: sdlWindow.VulkanGetInstanceExtensions(),
	})
	if err != nil {
		return err
	}
	defer instance.Release()

	sdlSurface, err := sdlWindow.VulkanCreateSurface(instance.Inner())
	if err != nil {
		return err
	}
	surfaceHandle := instance.SurfaceFromPointer(sdlSurface)

	shaders, err := vkr.LoadShaders(configuration.Renderer.ShaderDirectory)
	if err != nil {
		return err
	}
	logger.WithField("shaders", shaders.Names()).Debug("shaders loaded")

	device, err := vkr.NewDevice(instance, surfaceHandle, vkr.DeviceConfiguration{
		Adapter:    *adapter,
		Extensions: configuration.Renderer.DeviceExtensions,
		Shaders:    shaders,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer device.Release()

	surface, err := vkr.NewSurface(device, surfaceHandle)
	if err != nil {
		return err
	}
	defer surface.Release()

	w, h := sdlWindow.VulkanGetDrawableSize()
	settings.Width, settings.Height = uint32(w), uint32(h)

	diagnostics := diag.New(logger)
	defer diagnostics.Close()

	world, err := newScene(device)
	if err != nil {
		return err
	}
	defer world.Release()

	renderer, err := render.NewRenderer(device, surface, world, newInterface(), settings, diagnostics, logger)
	if err != nil {
		return err
	}
	defer renderer.Release()

	timeService := core.NewTime(configuration.Time)
	defer timeService.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		programSync sync.WaitGroup
		picked      render.PickerValue
		renderErr   error
	)

	/* Frame counter loop */
	if *showStats {
		programSync.Add(1)
		go func() {
			defer programSync.Done()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					fmt.Println()
					return
				case <-ticker.C:
					stats := diagnostics.Stats()
					fmt.Printf("\r\033[2KFrames: %d\tPicked: %s\tRetries: %d\tReconfigures: %d",
						frameCounter.Swap(0), picked.Load(), stats.AcquireRetry, stats.Reconfigures)
				}
			}
		}()
	}

	/* Renderer loop */
	programSync.Add(1)
	go func() {
		defer programSync.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("render loop exited")
				return
			case <-timeService.FpsTicker().C:
				elapsed, _ := timeService.Tick()
				world.Advance(elapsed)
				if _, err := renderer.RenderFrame(ctx); err != nil {
					if errors.Cause(err) != context.Canceled {
						renderErr = err
					}
					return
				}
				frameCounter.Add(1)
			}
		}
	}()

	/* Event loop */
	presentMode := settings.PresentMode
	buffering := settings.Buffering
	detail := settings.ShadowDetail
EventLoop:
	for {
		select {
		case <-ctx.Done():
			break EventLoop
		case <-timeService.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.QuitEvent:
					cancel()
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						w, h := sdlWindow.VulkanGetDrawableSize()
						renderer.UpdateWindowSize(uint32(w), uint32(h))
					}
				case *sdl.MouseButtonEvent:
					if et.Type == sdl.MOUSEBUTTONDOWN && et.Button == sdl.BUTTON_LEFT {
						ww, wh := sdlWindow.GetSize()
						dw, dh := sdlWindow.VulkanGetDrawableSize()
						p := render.ToPixels(image.Pt(int(et.X), int(et.Y)), image.Pt(int(ww), int(wh)), image.Pt(int(dw), int(dh)))
						renderer.QueueReadPickerValue(p.X, p.Y, &picked)
					}
				case *sdl.KeyboardEvent:
					if et.Type != sdl.KEYDOWN || et.Repeat != 0 {
						continue
					}
					switch et.Keysym.Sym {
					case sdl.K_ESCAPE:
						cancel()
					case sdl.K_F1:
						detail = (detail + 1) % (render.ShadowUltra + 1)
						renderer.SetShadowDetail(detail)
						logger.WithField("detail", detail).Info("shadow detail")
					case sdl.K_F2:
						presentMode = (presentMode + 1) % (gfx.PresentModeImmediate + 1)
						renderer.SetPresentMode(presentMode)
						logger.WithField("mode", presentMode).Info("present mode")
					case sdl.K_F3:
						buffering = buffering%render.MaxBuffering + 1
						renderer.SetBufferingDepth(buffering)
						logger.WithField("depth", buffering).Info("buffering")
					}
				}
			}
		}
	}

	programSync.Wait()
	return renderErr
}
