// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package soft implements a software reference device. Submitted work is
// executed immediately by a fixed-function rasterizer: vertex positions are
// transformed by PushConstants.Transform and every covered texel of every
// color attachment receives PushConstants.Value. Buffer mappings are only
// resolved by Poll, like on a real device.
// It is used headless and in tests.
package soft

import (
	"sync"

	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
)

// MaxTextureDimension is the largest texture side the device accepts.
const MaxTextureDimension = 16384

// ErrReleased is returned when a released device is used.
var ErrReleased = errors.New("soft: device released")

// NewDevice creates a software device.
func NewDevice() *Device {
	d := &Device{}
	d.queue.device = d
	return d
}

// Device implements gfx.Device.
type Device struct {
	mu       sync.Mutex
	queue    Queue
	maps     []mapRequest
	polls    int
	released bool
	buffers  []*CommandBuffer

	// FailTextures makes every texture allocation fail when set.
	FailTextures bool

	// FailEncoder makes the creation of encoders with this label fail.
	FailEncoder string
}

type mapRequest struct {
	buffer       *Buffer
	offset, size uint64
	callback     func([]byte, error)
}

// Info implements interface
func (d *Device) Info() gfx.AdapterInfo {
	return gfx.AdapterInfo{
		Name:    "koru software rasterizer",
		Backend: "soft",
	}
}

// CreateTexture implements interface
func (d *Device) CreateTexture(desc gfx.TextureDescriptor) (gfx.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, ErrReleased
	}
	if d.FailTextures {
		return nil, errors.Errorf("soft: allocation of %q failed", desc.Label)
	}
	if desc.Format == gfx.FormatUndefined {
		return nil, errors.Errorf("soft: texture %q has no format", desc.Label)
	}
	if desc.Size.Layers == 0 {
		desc.Size.Layers = 1
	}
	if desc.Size.Width == 0 || desc.Size.Height == 0 ||
		desc.Size.Width > MaxTextureDimension || desc.Size.Height > MaxTextureDimension {
		return nil, errors.Errorf("soft: texture %q has unsupported size %dx%d", desc.Label, desc.Size.Width, desc.Size.Height)
	}
	if desc.Cube && desc.Size.Layers%6 != 0 {
		return nil, errors.Errorf("soft: cube texture %q needs a multiple of six layers", desc.Label)
	}
	return newTexture(desc), nil
}

// CreateBuffer implements interface
func (d *Device) CreateBuffer(desc gfx.BufferDescriptor, data []byte) (gfx.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, ErrReleased
	}
	if desc.Size == 0 {
		desc.Size = uint64(len(data))
	}
	if uint64(len(data)) > desc.Size {
		return nil, errors.Errorf("soft: buffer %q initial data exceeds size", desc.Label)
	}
	b := &Buffer{
		device: d,
		label:  desc.Label,
		data:   make([]byte, desc.Size),
	}
	copy(b.data, data)
	return b, nil
}

// CreatePipeline implements interface
func (d *Device) CreatePipeline(desc gfx.PipelineDescriptor) (gfx.Pipeline, error) {
	if desc.Shader == "" {
		return nil, errors.Errorf("soft: pipeline %q has no shader", desc.Label)
	}
	return &Pipeline{desc: desc}, nil
}

// CreateCommandEncoder implements interface
func (d *Device) CreateCommandEncoder(label string) (gfx.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, ErrReleased
	}
	if d.FailEncoder != "" && d.FailEncoder == label {
		return nil, errors.Errorf("soft: encoder %q failed", label)
	}
	cb := &CommandBuffer{label: label, polls: d.polls}
	d.buffers = append(d.buffers, cb)
	return &CommandEncoder{buffer: cb}, nil
}

// CommandBuffers returns every command buffer created so far.
func (d *Device) CommandBuffers() []*CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*CommandBuffer, len(d.buffers))
	copy(out, d.buffers)
	return out
}

// Queue implements interface
func (d *Device) Queue() gfx.Queue {
	return &d.queue
}

// SoftQueue returns the queue with its inspection methods.
func (d *Device) SoftQueue() *Queue {
	return &d.queue
}

// Poll implements interface. Work is executed at submission, so every
// mapping requested before Poll is resolved by it.
func (d *Device) Poll(wait bool) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrReleased
	}
	pending := d.maps
	d.maps = nil
	d.polls++
	d.mu.Unlock()

	for _, m := range pending {
		if m.offset+m.size > uint64(len(m.buffer.data)) {
			m.callback(nil, errors.Errorf("soft: mapping of %q out of range", m.buffer.label))
			continue
		}
		m.callback(m.buffer.data[m.offset:m.offset+m.size], nil)
	}
	return nil
}

// PendingMaps returns the number of mappings Poll has not resolved yet.
func (d *Device) PendingMaps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.maps)
}

// Polls returns how many times Poll was called.
func (d *Device) Polls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

// Release implements interface
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	d.maps = nil
}

func (d *Device) requestMap(r mapRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maps = append(d.maps, r)
}

// Submission is a record of one submitted command buffer.
type Submission struct {
	Label  string
	Passes []PassRecord
}

// Queue implements gfx.Queue and records what was submitted.
type Queue struct {
	device *Device

	mu          sync.Mutex
	submissions []Submission
}

// Submit implements interface
func (q *Queue) Submit(buffers ...gfx.CommandBuffer) error {
	for _, b := range buffers {
		cb, ok := b.(*CommandBuffer)
		if !ok {
			return errors.Errorf("soft: foreign command buffer %q", b.Label())
		}
		if cb.submitted {
			return errors.Errorf("soft: command buffer %q submitted twice", cb.label)
		}
		if cb.released {
			return errors.Errorf("soft: command buffer %q was released", cb.label)
		}
		cb.submitted = true
		for _, cmd := range cb.commands {
			cmd()
		}
		q.mu.Lock()
		q.submissions = append(q.submissions, Submission{
			Label:  cb.label,
			Passes: cb.passes,
		})
		q.mu.Unlock()
	}
	return nil
}

// Submissions returns everything submitted so far, in order.
func (q *Queue) Submissions() []Submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Submission, len(q.submissions))
	copy(out, q.submissions)
	return out
}

// Labels returns the labels of everything submitted so far, in order.
func (q *Queue) Labels() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.submissions))
	for _, s := range q.submissions {
		out = append(out, s.Label)
	}
	return out
}

// Reset forgets the recorded submissions.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submissions = nil
}
