// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"os"
	"strconv"
	"strings"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/render"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Log      LogConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between event polls in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	ScreenWidth  uint32
	ScreenHeight uint32

	PresentMode  string
	Buffering    int
	ShadowDetail string

	// Workers bounds parallel command recording, 0 for no bound
	Workers        int
	MaxPointLights int

	DeviceExtensions []string

	// ShaderDirectory is a directory or a .kar archive of SPIR-V shaders
	ShaderDirectory string

	// Debug loads the Vulkan validation layers
	Debug bool
}

// LogConfiguration is used to configure logging
type LogConfiguration struct {
	Level string
	JSON  bool
}

// Environment variables read by LoadEnvironment
const (
	EnvWidth        = "KORU_WIDTH"
	EnvHeight       = "KORU_HEIGHT"
	EnvPresentMode  = "KORU_PRESENT_MODE"
	EnvBuffering    = "KORU_BUFFERING"
	EnvShadowDetail = "KORU_SHADOW_DETAIL"
	EnvFps          = "KORU_FPS"
	EnvWorkers      = "KORU_WORKERS"
	EnvLogLevel     = "KORU_LOG_LEVEL"
	EnvLogJSON      = "KORU_LOG_JSON"
	EnvShaders      = "KORU_SHADERS"
	EnvDebug        = "KORU_VKDEBUG"
)

// DefaultConfiguration returns the configuration used when nothing
// overrides it.
func DefaultConfiguration() Configuration {
	s := render.DefaultSettings()
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 144,
			EventPollDelay:  10,
		},
		Renderer: RendererConfiguration{
			ScreenWidth:    s.Width,
			ScreenHeight:   s.Height,
			PresentMode:    s.PresentMode.String(),
			Buffering:      s.Buffering,
			ShadowDetail:   s.ShadowDetail.String(),
			MaxPointLights: s.MaxPointLights,
			DeviceExtensions: []string{
				"VK_KHR_swapchain",
			},
			ShaderDirectory: "./shaders",
		},
		Log: LogConfiguration{
			Level: "info",
		},
	}
}

// LoadEnvironment overrides cfg from the environment. envFiles are loaded
// first, missing files are skipped, variables already set win.
func LoadEnvironment(cfg *Configuration, envFiles ...string) error {
	var present []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		if err := godotenv.Load(present...); err != nil {
			return errors.Wrap(err, "load env files")
		}
	}
	envy.Reload()

	var err error
	setUint := func(key string, dst *uint32) {
		if v := envy.Get(key, ""); v != "" && err == nil {
			n, perr := strconv.ParseUint(v, 10, 32)
			if perr != nil {
				err = errors.Wrapf(perr, "%s", key)
				return
			}
			*dst = uint32(n)
		}
	}
	setInt := func(key string, dst *int) {
		if v := envy.Get(key, ""); v != "" && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = errors.Wrapf(perr, "%s", key)
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := envy.Get(key, ""); v != "" && err == nil {
			b, perr := strconv.ParseBool(v)
			if perr != nil {
				err = errors.Wrapf(perr, "%s", key)
				return
			}
			*dst = b
		}
	}
	setString := func(key string, dst *string) {
		if v := envy.Get(key, ""); v != "" {
			*dst = v
		}
	}

	setUint(EnvWidth, &cfg.Renderer.ScreenWidth)
	setUint(EnvHeight, &cfg.Renderer.ScreenHeight)
	setString(EnvPresentMode, &cfg.Renderer.PresentMode)
	setInt(EnvBuffering, &cfg.Renderer.Buffering)
	setString(EnvShadowDetail, &cfg.Renderer.ShadowDetail)
	setInt(EnvFps, &cfg.Time.FramesPerSecond)
	setInt(EnvWorkers, &cfg.Renderer.Workers)
	setString(EnvLogLevel, &cfg.Log.Level)
	setBool(EnvLogJSON, &cfg.Log.JSON)
	setString(EnvShaders, &cfg.Renderer.ShaderDirectory)
	setBool(EnvDebug, &cfg.Renderer.Debug)
	return err
}

// Settings converts the renderer configuration into render settings.
func (c RendererConfiguration) Settings() (render.Settings, error) {
	mode, err := gfx.ParsePresentMode(strings.ToLower(c.PresentMode))
	if err != nil {
		return render.Settings{}, err
	}
	detail, err := render.ParseShadowDetail(c.ShadowDetail)
	if err != nil {
		return render.Settings{}, err
	}
	if c.ScreenWidth == 0 || c.ScreenHeight == 0 {
		return render.Settings{}, errors.Errorf("invalid screen size %dx%d", c.ScreenWidth, c.ScreenHeight)
	}
	return render.Settings{
		Width:          c.ScreenWidth,
		Height:         c.ScreenHeight,
		PresentMode:    mode,
		Buffering:      c.Buffering,
		ShadowDetail:   detail,
		Workers:        c.Workers,
		MaxPointLights: c.MaxPointLights,
	}, nil
}
