// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/devblok/korender/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// AcquireTimeout bounds how long Acquire waits for an image.
const AcquireTimeout = time.Second

// NewSurface wraps a platform surface, such as the one SDL creates
// for a window.
func NewSurface(d *Device, surface vk.Surface) (*Surface, error) {
	var surfaceFormatCount uint32
	if err := vkError("GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, surface, &surfaceFormatCount, nil)); err != nil {
		return nil, err
	}
	surfaceFormats := make([]vk.SurfaceFormat, surfaceFormatCount)
	if err := vkError("GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, surface, &surfaceFormatCount, surfaceFormats)); err != nil {
		return nil, err
	}
	for i := range surfaceFormats {
		surfaceFormats[i].Deref()
	}
	if len(surfaceFormats) == 0 {
		return nil, errors.New("vk.GetPhysicalDeviceSurfaceFormats(): surface has no formats")
	}

	var presentModeCount uint32
	if err := vkError("GetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(d.physical, surface, &presentModeCount, nil)); err != nil {
		return nil, err
	}
	presentModes := make([]vk.PresentMode, presentModeCount)
	if err := vkError("GetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(d.physical, surface, &presentModeCount, presentModes)); err != nil {
		return nil, err
	}

	return &Surface{
		device:       d,
		surface:      surface,
		formats:      surfaceFormats,
		presentModes: presentModes,
	}, nil
}

// Surface implements gfx.Surface on a vulkan swapchain.
type Surface struct {
	device       *Device
	surface      vk.Surface
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode

	mu         sync.Mutex
	cfg        gfx.SurfaceConfiguration
	swapchain  vk.Swapchain
	images     []*Texture
	semaphores []vk.Semaphore
	next       int
	released   bool
}

// PreferredFormat implements interface
func (s *Surface) PreferredFormat() gfx.Format {
	// a single undefined entry means any format is accepted
	if len(s.formats) == 1 && s.formats[0].Format == vk.FormatUndefined {
		return gfx.FormatBGRA8UnormSrgb
	}
	var first gfx.Format
	for _, sf := range s.formats {
		f := gfxFormat(sf.Format)
		if f == gfx.FormatBGRA8UnormSrgb {
			return f
		}
		if first == gfx.FormatUndefined && !f.IsDepth() {
			first = f
		}
	}
	return first
}

func (s *Surface) colorSpace(f vk.Format) vk.ColorSpace {
	for _, sf := range s.formats {
		if sf.Format == f {
			return sf.ColorSpace
		}
	}
	return s.formats[0].ColorSpace
}

func (s *Surface) presentMode(m gfx.PresentMode) vk.PresentMode {
	want := vkPresentMode(m)
	for _, pm := range s.presentModes {
		if pm == want {
			return want
		}
	}
	return vk.PresentModeFifo
}

// Configure implements interface. The device is drained first, images
// of the old swapchain must not be in use when it is destroyed.
func (s *Surface) Configure(cfg gfx.SurfaceConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return errors.New("vkr: surface released")
	}
	format := vkFormat(cfg.Format)
	if format == vk.FormatUndefined {
		return errors.Errorf("vkr: surface format %s is not supported", cfg.Format)
	}
	if err := s.device.Poll(true); err != nil {
		return err
	}
	vk.DeviceWaitIdle(s.device.device)

	var caps vk.SurfaceCapabilities
	if err := vkError("GetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(s.device.physical, s.surface, &caps)); err != nil {
		return gfx.NewSurfaceError(gfx.SurfaceErrorLost, err)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	extent := vk.Extent2D{Width: cfg.Width, Height: cfg.Height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	} else {
		extent.Width = clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
		extent.Height = clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	}
	if extent.Width == 0 || extent.Height == 0 {
		return gfx.NewSurfaceError(gfx.SurfaceErrorOutdated, errors.New("surface has no area"))
	}

	imageCount := uint32(cfg.BufferCount + 1)
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	old := s.swapchain
	scci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format,
		ImageColorSpace:  s.colorSpace(format),
		ImageExtent:      extent,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      s.presentMode(cfg.PresentMode),
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     old,
	}
	var swapchain vk.Swapchain
	ret := vk.CreateSwapchain(s.device.device, &scci, nil, &swapchain)
	if err := vkError("CreateSwapchain", ret); err != nil {
		return gfx.NewSurfaceError(surfaceErrorKind(ret), err)
	}
	s.destroyImages()
	if old != nil {
		vk.DestroySwapchain(s.device.device, old, nil)
	}
	s.swapchain = swapchain

	var numImages uint32
	if err := vkError("GetSwapchainImages", vk.GetSwapchainImages(s.device.device, swapchain, &numImages, nil)); err != nil {
		return err
	}
	images := make([]vk.Image, numImages)
	if err := vkError("GetSwapchainImages", vk.GetSwapchainImages(s.device.device, swapchain, &numImages, images)); err != nil {
		return err
	}

	cfg.Width, cfg.Height = extent.Width, extent.Height
	for i, img := range images {
		t := &Texture{
			device: s.device,
			desc: gfx.TextureDescriptor{
				Label:  fmt.Sprintf("surface-%d", i),
				Size:   gfx.Extent{Width: extent.Width, Height: extent.Height, Layers: 1},
				Format: cfg.Format,
				Usage:  gfx.TextureUsageRenderAttachment,
			},
			format:  format,
			image:   img,
			resting: vk.ImageLayoutPresentSrc,
		}
		if err := t.createViews(); err != nil {
			return err
		}
		s.images = append(s.images, t)
		if err := s.device.transitionLayout(t, vk.ImageLayoutUndefined, vk.ImageLayoutPresentSrc); err != nil {
			return err
		}
	}

	// every in-flight acquisition and presentation needs its own semaphore
	for len(s.semaphores) < 2*(len(images)+1) {
		sci := vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}
		var sem vk.Semaphore
		if err := vkError("CreateSemaphore", vk.CreateSemaphore(s.device.device, &sci, nil, &sem)); err != nil {
			return err
		}
		s.semaphores = append(s.semaphores, sem)
	}
	s.cfg = cfg

	s.device.logger.WithFields(log.Fields{
		"width":   extent.Width,
		"height":  extent.Height,
		"images":  len(images),
		"format":  cfg.Format.String(),
		"present": cfg.PresentMode.String(),
	}).Debug("swapchain created")
	return nil
}

func clamp(v, lo, hi uint32) uint32 {
	return max(lo, min(v, hi))
}

func (s *Surface) semaphore() vk.Semaphore {
	sem := s.semaphores[s.next]
	s.next = (s.next + 1) % len(s.semaphores)
	return sem
}

// Acquire implements interface
func (s *Surface) Acquire() (gfx.SurfaceTexture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.swapchain == nil {
		return gfx.SurfaceTexture{}, gfx.NewSurfaceError(gfx.SurfaceErrorOutdated, errors.New("surface is not configured"))
	}

	sem := s.semaphore()
	var idx uint32
	ret := vk.AcquireNextImage(s.device.device, s.swapchain, uint64(AcquireTimeout.Nanoseconds()), sem, nil, &idx)
	if ret != vk.Success && ret != vk.Suboptimal {
		return gfx.SurfaceTexture{}, gfx.NewSurfaceError(surfaceErrorKind(ret), vkError("AcquireNextImage", ret))
	}
	if err := s.device.submitSync(sem, nil); err != nil {
		return gfx.SurfaceTexture{}, err
	}
	return gfx.SurfaceTexture{
		Texture:    s.images[idx],
		Index:      idx,
		Suboptimal: ret == vk.Suboptimal,
	}, nil
}

// Present implements interface
func (s *Surface) Present(st gfx.SurfaceTexture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.swapchain == nil || int(st.Index) >= len(s.images) {
		return gfx.NewSurfaceError(gfx.SurfaceErrorOutdated, errors.New("image does not belong to the swapchain"))
	}

	rendered := s.semaphore()
	if err := s.device.submitSync(nil, rendered); err != nil {
		return err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{rendered},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.swapchain},
		PImageIndices:      []uint32{st.Index},
	}
	s.device.queueMu.Lock()
	ret := vk.QueuePresent(s.device.queueHandle, &presentInfo)
	s.device.queueMu.Unlock()

	switch ret {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		return gfx.NewSurfaceError(gfx.SurfaceErrorOutdated, errors.New("vk.QueuePresent(): suboptimal"))
	}
	return gfx.NewSurfaceError(surfaceErrorKind(ret), vkError("QueuePresent", ret))
}

// surfaceErrorKind classifies the result of a swapchain operation.
func surfaceErrorKind(ret vk.Result) gfx.SurfaceErrorKind {
	switch ret {
	case vk.Timeout, vk.NotReady:
		return gfx.SurfaceErrorTimeout
	case vk.ErrorOutOfDate:
		return gfx.SurfaceErrorOutdated
	case vk.ErrorSurfaceLost:
		return gfx.SurfaceErrorLost
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return gfx.SurfaceErrorOutOfMemory
	}
	return gfx.SurfaceErrorOther
}

func (s *Surface) destroyImages() {
	for _, t := range s.images {
		t.destroy()
	}
	s.images = nil
}

// Release implements interface
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if !s.device.isReleased() {
		s.device.Poll(true)
		vk.DeviceWaitIdle(s.device.device)
		s.destroyImages()
		for _, sem := range s.semaphores {
			vk.DestroySemaphore(s.device.device, sem, nil)
		}
		if s.swapchain != nil {
			vk.DestroySwapchain(s.device.device, s.swapchain, nil)
		}
	}
	vk.DestroySurface(s.device.instance.instance, s.surface, nil)
}
