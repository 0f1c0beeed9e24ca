// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/korender/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// Texture implements gfx.Texture.
type Texture struct {
	device *Device
	desc   gfx.TextureDescriptor
	format vk.Format
	image  vk.Image
	memory Memory

	// layers holds one single layer view per layer for attachments,
	// sampled covers the whole image.
	layers  []vk.ImageView
	sampled vk.ImageView

	resting vk.ImageLayout

	// swapchain images are owned by the swapchain
	owned bool
}

func (d *Device) newTexture(desc gfx.TextureDescriptor) (*Texture, error) {
	format := vkFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, errors.Errorf("texture %q has unsupported format %s", desc.Label, desc.Format)
	}
	if desc.Size.Layers == 0 {
		desc.Size.Layers = 1
	}
	if desc.Cube && desc.Size.Layers%6 != 0 {
		return nil, errors.Errorf("cube texture %q needs a multiple of six layers", desc.Label)
	}

	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Size.Width,
			Height: desc.Size.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   desc.Size.Layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if desc.Cube {
		ici.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	var image vk.Image
	if err := vkError("CreateImage", vk.CreateImage(d.device, &ici, nil, &image)); err != nil {
		return nil, errors.Wrapf(err, "texture %q", desc.Label)
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &req)
	req.Deref()

	memory, err := d.allocator.Malloc(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.device, image, nil)
		return nil, errors.Wrapf(err, "texture %q", desc.Label)
	}
	if err := vkError("BindImageMemory", vk.BindImageMemory(d.device, image, memory.Get(), 0)); err != nil {
		vk.DestroyImage(d.device, image, nil)
		memory.Release()
		return nil, err
	}

	t := &Texture{
		device:  d,
		desc:    desc,
		format:  format,
		image:   image,
		memory:  memory,
		resting: restingLayout(desc),
		owned:   true,
	}
	if err := t.createViews(); err != nil {
		t.destroy()
		return nil, err
	}
	if err := d.transitionLayout(t, vk.ImageLayoutUndefined, t.resting); err != nil {
		t.destroy()
		return nil, err
	}
	return t, nil
}

func (t *Texture) createViews() error {
	aspect := aspectOf(t.desc.Format)
	view := func(viewType vk.ImageViewType, base, count uint32) (vk.ImageView, error) {
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    t.image,
			ViewType: viewType,
			Format:   t.format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspect,
				LevelCount:     1,
				BaseArrayLayer: base,
				LayerCount:     count,
			},
		}
		var v vk.ImageView
		if err := vkError("CreateImageView", vk.CreateImageView(t.device.device, &ivci, nil, &v)); err != nil {
			return nil, errors.Wrapf(err, "texture %q", t.desc.Label)
		}
		return v, nil
	}

	for layer := uint32(0); layer < t.desc.Size.Layers; layer++ {
		v, err := view(vk.ImageViewType2d, layer, 1)
		if err != nil {
			return err
		}
		t.layers = append(t.layers, v)
	}

	if t.desc.Usage&gfx.TextureUsageSampled == 0 {
		return nil
	}
	viewType := vk.ImageViewType2d
	switch {
	case t.desc.Cube && t.desc.Size.Layers == 6:
		viewType = vk.ImageViewTypeCube
	case t.desc.Cube:
		viewType = vk.ImageViewTypeCubeArray
	case t.desc.Size.Layers > 1:
		viewType = vk.ImageViewType2dArray
	}
	v, err := view(viewType, 0, t.desc.Size.Layers)
	if err != nil {
		return err
	}
	t.sampled = v
	return nil
}

// Label implements interface
func (t *Texture) Label() string { return t.desc.Label }

// Size implements interface
func (t *Texture) Size() gfx.Extent { return t.desc.Size }

// Format implements interface
func (t *Texture) Format() gfx.Format { return t.desc.Format }

// Release implements interface. The image is destroyed once the GPU
// has retired all work submitted before the call.
func (t *Texture) Release() {
	t.device.deferRelease(t.destroy)
}

func (t *Texture) destroy() {
	for _, v := range t.layers {
		vk.DestroyImageView(t.device.device, v, nil)
	}
	t.layers = nil
	if t.sampled != nil {
		vk.DestroyImageView(t.device.device, t.sampled, nil)
		t.sampled = nil
	}
	if t.owned {
		vk.DestroyImage(t.device.device, t.image, nil)
		t.memory.Release()
	}
}

func (t *Texture) view(layer uint32) vk.ImageView {
	if int(layer) >= len(t.layers) {
		return nil
	}
	return t.layers[layer]
}

// Buffer implements gfx.Buffer. Buffers live in host visible, coherent
// memory.
type Buffer struct {
	device *Device
	label  string
	size   uint64
	buffer vk.Buffer
	memory Memory
}

func (d *Device) newBuffer(desc gfx.BufferDescriptor, data []byte) (*Buffer, error) {
	if desc.Size == 0 {
		desc.Size = uint64(len(data))
	}
	if desc.Size == 0 {
		return nil, errors.Errorf("buffer %q is empty", desc.Label)
	}
	if uint64(len(data)) > desc.Size {
		return nil, errors.Errorf("buffer %q initial data exceeds size", desc.Label)
	}

	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vkError("CreateBuffer", vk.CreateBuffer(d.device, &bci, nil, &buffer)); err != nil {
		return nil, errors.Wrapf(err, "buffer %q", desc.Label)
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &req)
	req.Deref()

	memory, err := d.allocator.Malloc(req, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		return nil, errors.Wrapf(err, "buffer %q", desc.Label)
	}
	if err := vkError("BindBufferMemory", vk.BindBufferMemory(d.device, buffer, memory.Get(), 0)); err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		memory.Release()
		return nil, err
	}

	b := &Buffer{
		device: d,
		label:  desc.Label,
		size:   desc.Size,
		buffer: buffer,
		memory: memory,
	}
	if len(data) > 0 {
		ptr, err := b.memory.Map()
		if err != nil {
			b.destroy()
			return nil, err
		}
		copy(mapped(ptr, len(data)), data)
		b.memory.Unmap()
	}
	return b, nil
}

// Label implements interface
func (b *Buffer) Label() string { return b.label }

// Size implements interface
func (b *Buffer) Size() uint64 { return b.size }

// MapAsync implements interface
func (b *Buffer) MapAsync(offset, size uint64, callback func([]byte, error)) {
	b.device.requestMap(mapRequest{
		buffer:   b,
		offset:   offset,
		size:     size,
		callback: callback,
	})
}

func (b *Buffer) read(offset, size uint64, callback func([]byte, error)) {
	if offset+size > b.size {
		callback(nil, errors.Errorf("mapping of %q out of range", b.label))
		return
	}
	ptr, err := b.memory.Map()
	if err != nil {
		callback(nil, err)
		return
	}
	defer b.memory.Unmap()
	callback(mapped(ptr, int(b.size))[offset:offset+size], nil)
}

// Release implements interface
func (b *Buffer) Release() {
	b.device.deferRelease(b.destroy)
}

func (b *Buffer) destroy() {
	vk.DestroyBuffer(b.device.device, b.buffer, nil)
	b.memory.Release()
}

// Pipeline implements gfx.Pipeline.
type Pipeline struct {
	device   *Device
	desc     gfx.PipelineDescriptor
	pipeline vk.Pipeline
}

// Label implements interface
func (p *Pipeline) Label() string { return p.desc.Label }

// Release implements interface
func (p *Pipeline) Release() {
	p.device.deferRelease(func() {
		vk.DestroyPipeline(p.device.device, p.pipeline, nil)
	})
}
