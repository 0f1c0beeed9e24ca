// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"math"
	"sync"

	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
)

func newTexture(desc gfx.TextureDescriptor) *Texture {
	n := int(desc.Size.Width) * int(desc.Size.Height) * int(desc.Size.Layers)
	return &Texture{
		desc:   desc,
		texels: make([]uint32, n),
	}
}

// Texture implements gfx.Texture. Every texel is stored as 32 bits,
// depth texels hold float32 bits.
type Texture struct {
	mu       sync.RWMutex
	desc     gfx.TextureDescriptor
	texels   []uint32
	released bool
}

// Label implements interface
func (t *Texture) Label() string { return t.desc.Label }

// Size implements interface
func (t *Texture) Size() gfx.Extent { return t.desc.Size }

// Format implements interface
func (t *Texture) Format() gfx.Format { return t.desc.Format }

// Descriptor returns the descriptor the texture was created with.
func (t *Texture) Descriptor() gfx.TextureDescriptor { return t.desc }

// Released reports whether Release was called.
func (t *Texture) Released() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.released
}

// Release implements interface
func (t *Texture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
}

// At returns the raw texel at x, y on the given layer.
func (t *Texture) At(x, y int, layer uint32) uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.texels[t.index(x, y, layer)]
}

// DepthAt returns the depth stored at x, y on the given layer.
func (t *Texture) DepthAt(x, y int, layer uint32) float32 {
	return math.Float32frombits(t.At(x, y, layer))
}

func (t *Texture) index(x, y int, layer uint32) int {
	w, h := int(t.desc.Size.Width), int(t.desc.Size.Height)
	return int(layer)*w*h + y*w + x
}

func (t *Texture) fill(layer uint32, v uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, h := int(t.desc.Size.Width), int(t.desc.Size.Height)
	start := int(layer) * w * h
	for i := start; i < start+w*h; i++ {
		t.texels[i] = v
	}
}

// Buffer implements gfx.Buffer.
type Buffer struct {
	device   *Device
	label    string
	data     []byte
	released bool
}

// Label implements interface
func (b *Buffer) Label() string { return b.label }

// Size implements interface
func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

// MapAsync implements interface
func (b *Buffer) MapAsync(offset, size uint64, callback func([]byte, error)) {
	if b.released {
		callback(nil, errors.Errorf("soft: buffer %q released", b.label))
		return
	}
	b.device.requestMap(mapRequest{
		buffer:   b,
		offset:   offset,
		size:     size,
		callback: callback,
	})
}

// Release implements interface
func (b *Buffer) Release() { b.released = true }

// Pipeline implements gfx.Pipeline.
type Pipeline struct {
	desc gfx.PipelineDescriptor
}

// Label implements interface
func (p *Pipeline) Label() string { return p.desc.Label }

// Descriptor returns the descriptor the pipeline was created with.
func (p *Pipeline) Descriptor() gfx.PipelineDescriptor { return p.desc }

// Release implements interface
func (p *Pipeline) Release() {}

// packColor converts a clear color to the stored texel of a format.
func packColor(f gfx.Format, c gfx.Color) uint32 {
	if f == gfx.FormatR32Uint {
		return uint32(c.R)
	}
	ch := func(v float32) uint32 {
		if v <= 0 {
			return 0
		}
		if v >= 1 {
			return 255
		}
		return uint32(v*255 + 0.5)
	}
	return ch(c.R) | ch(c.G)<<8 | ch(c.B)<<16 | ch(c.A)<<24
}
