// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"encoding/binary"
	"image"
	"math"
	"strconv"
)

// Format is a texel format.
type Format int

// Supported formats
const (
	FormatUndefined Format = iota
	FormatBGRA8Unorm
	FormatBGRA8UnormSrgb
	FormatRGBA8Unorm
	FormatRGBA8UnormSrgb
	FormatRGBA16Float
	FormatR8Unorm
	FormatR32Uint
	FormatDepth16Unorm
	FormatDepth32Float
)

var formatNames = [...]string{
	FormatUndefined:      "Undefined",
	FormatBGRA8Unorm:     "BGRA8Unorm",
	FormatBGRA8UnormSrgb: "BGRA8UnormSrgb",
	FormatRGBA8Unorm:     "RGBA8Unorm",
	FormatRGBA8UnormSrgb: "RGBA8UnormSrgb",
	FormatRGBA16Float:    "RGBA16Float",
	FormatR8Unorm:        "R8Unorm",
	FormatR32Uint:        "R32Uint",
	FormatDepth16Unorm:   "Depth16Unorm",
	FormatDepth32Float:   "Depth32Float",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return "Format(" + strconv.Itoa(int(f)) + ")"
	}
	return formatNames[f]
}

// BytesPerPixel returns the size of a single texel.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatDepth16Unorm:
		return 2
	case FormatRGBA16Float:
		return 8
	case FormatUndefined:
		return 0
	default:
		return 4
	}
}

// IsDepth reports whether the format is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatDepth16Unorm || f == FormatDepth32Float
}

// Extent is the size of a texture, Layers is at least 1.
type Extent struct {
	Width  uint32
	Height uint32
	Layers uint32
}

// Point returns width and height as an image.Point.
func (e Extent) Point() image.Point {
	return image.Pt(int(e.Width), int(e.Height))
}

// TextureUsage tells the backend how a texture is going to be used.
type TextureUsage uint32

// Texture usages
const (
	TextureUsageRenderAttachment TextureUsage = 1 << iota
	TextureUsageSampled
	TextureUsageCopySrc
	TextureUsageCopyDst
)

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label  string
	Size   Extent
	Format Format
	Usage  TextureUsage

	// Cube marks a texture with a multiple of six layers as a cube (array).
	Cube bool
}

// BufferUsage tells the backend how a buffer is going to be used.
type BufferUsage uint32

// Buffer usages
const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageUniform
	BufferUsageCopyDst
	BufferUsageMapRead
)

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// LoadOp selects what happens to attachment contents when a pass begins.
type LoadOp int

// Load operations
const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
)

// Color is a linear RGBA color.
type Color struct {
	R, G, B, A float32
}

// Attachment is one output of a render pass.
type Attachment struct {
	Texture Texture
	Layer   uint32
	Load    LoadOp

	// ClearColor is used for color attachments, ClearDepth for
	// depth attachments when Load is LoadOpClear.
	ClearColor Color
	ClearDepth float32
}

// RenderPassDescriptor describes the attachments of a render pass.
type RenderPassDescriptor struct {
	Label string
	Color []Attachment
	Depth *Attachment
}

// TextureCopy is the source of a copy.
type TextureCopy struct {
	Texture Texture
	Layer   uint32
	Origin  image.Point
}

// BufferCopy is the destination of a copy.
type BufferCopy struct {
	Buffer      Buffer
	Offset      uint64
	BytesPerRow uint32
}

// CopyRowAlignment is the alignment BufferCopy.BytesPerRow must satisfy.
const CopyRowAlignment = 256

// PipelineDescriptor describes a graphics pipeline.
type PipelineDescriptor struct {
	Label string

	// Shader names the vertex and fragment module pair.
	Shader string

	ColorFormats []Format
	DepthFormat  Format

	DepthTest bool
	Blend     bool
}

// EncodeVertices lays vertices out in the VertexStride byte layout.
func EncodeVertices(vertices []Vertex) []byte {
	out := make([]byte, 0, len(vertices)*VertexStride)
	for _, v := range vertices {
		for _, f := range [...]float32{
			v.Position[0], v.Position[1], v.Position[2],
			v.Normal[0], v.Normal[1], v.Normal[2],
			v.UV[0], v.UV[1],
		} {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}
