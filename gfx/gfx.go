// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines rendering related features that renderers must implement.
// The frame renderer only talks to these interfaces, backends live in
// subpackages: vkr for Vulkan and soft for the software reference device.
package gfx

import (
	"image"

	glm "github.com/go-gl/mathgl/mgl32"
)

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// AdapterInfo describes the device a backend is running on.
type AdapterInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Backend       string
	Memory        uint
}

// Device describes a non-concrete rendering device. Resource creation
// and encoder creation are safe for concurrent use, every encoder is
// owned by exactly one goroutine while recording.
type Device interface {
	Releasable

	// Info returns information about the adapter.
	Info() AdapterInfo

	// CreateTexture creates an image with the given layout.
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// CreateBuffer creates a buffer, data may be nil, when it is not
	// the buffer is initialised with it.
	CreateBuffer(desc BufferDescriptor, data []byte) (Buffer, error)

	// CreatePipeline creates a graphics pipeline.
	CreatePipeline(desc PipelineDescriptor) (Pipeline, error)

	// CreateCommandEncoder starts recording a new command buffer.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Queue returns the queue command buffers are submitted to.
	Queue() Queue

	// Poll retires finished GPU work and runs the callbacks of
	// buffer mappings that became available. When wait is set it
	// blocks until all submitted work has been retired.
	Poll(wait bool) error
}

// Queue executes command buffers in submission order.
type Queue interface {

	// Submit schedules the command buffers for execution. Every
	// command buffer can only be submitted once.
	Submit(buffers ...CommandBuffer) error
}

// CommandEncoder records GPU commands, it is turned into
// an immutable CommandBuffer by Finish.
type CommandEncoder interface {

	// BeginRenderPass begins a render pass over the attachments.
	BeginRenderPass(desc RenderPassDescriptor) RenderPass

	// CopyTextureToBuffer copies a region of a texture layer into a buffer,
	// rows are laid out BytesPerRow apart.
	CopyTextureToBuffer(src TextureCopy, dst BufferCopy, size image.Point)

	// Finish finalises recording.
	Finish() CommandBuffer
}

// CommandBuffer is a finished sequence of recorded commands.
type CommandBuffer interface {
	Label() string

	// Release frees a command buffer that will not be submitted,
	// it does nothing once the buffer was submitted.
	Release()
}

// RenderPass records draw commands against a fixed set of attachments.
type RenderPass interface {
	SetPipeline(p Pipeline)

	// SetViewport limits rasterization to r, by default the
	// whole attachment is used.
	SetViewport(r image.Rectangle)

	// SetTextures binds textures for sampling, in binding order.
	SetTextures(textures ...Texture)

	SetVertexBuffer(b Buffer)

	SetPushConstants(pc PushConstants)

	// Draw draws vertexCount vertices from the bound vertex buffer, when
	// no buffer is bound the pipeline generates its vertices.
	Draw(vertexCount, instanceCount uint32)

	// End ends the pass, the pass can not be used after.
	End()
}

// Pipeline is an opaque compiled graphics pipeline.
type Pipeline interface {
	Releasable
	Label() string
}

// Texture is a GPU image.
type Texture interface {
	Releasable
	Label() string
	Size() Extent
	Format() Format
}

// Buffer is a GPU buffer.
type Buffer interface {
	Releasable
	Label() string
	Size() uint64

	// MapAsync requests read access to a range of the buffer. The callback
	// is called from Device.Poll once the GPU has retired all work
	// submitted before the request, data is only valid during the call.
	MapAsync(offset, size uint64, callback func(data []byte, err error))
}

// PushConstants is the per-draw constant block every pipeline receives.
// Value is a packed id or color, its meaning depends on the pipeline.
type PushConstants struct {
	Transform glm.Mat4
	Value     uint32
}

// Vertex is the vertex layout every mesh buffer uses.
type Vertex struct {
	Position glm.Vec3
	Normal   glm.Vec3
	UV       glm.Vec2
}

// VertexStride is the size of Vertex in bytes.
const VertexStride = 32
