// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/devblok/korender/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
)

// PassRecord counts what was recorded into a render pass.
type PassRecord struct {
	Label         string
	Layer         uint32
	PipelineBinds int
	TextureBinds  int
	Draws         int
}

// CommandBuffer implements gfx.CommandBuffer.
type CommandBuffer struct {
	label     string
	commands  []func()
	passes    []PassRecord
	copies    int
	submitted bool
	released  bool
	polls     int
}

// Label implements interface
func (c *CommandBuffer) Label() string { return c.label }

// Release implements interface
func (c *CommandBuffer) Release() {
	if c.submitted {
		return
	}
	c.released = true
	c.commands = nil
}

// Generation returns how many times the device had been polled when the
// buffer's encoder was created.
func (c *CommandBuffer) Generation() int { return c.polls }

// Submitted reports whether the buffer was submitted.
func (c *CommandBuffer) Submitted() bool { return c.submitted }

// Released reports whether the buffer was released unsubmitted.
func (c *CommandBuffer) Released() bool { return c.released }

// Passes returns the passes recorded into the buffer.
func (c *CommandBuffer) Passes() []PassRecord { return c.passes }

// Copies returns the number of recorded copy commands.
func (c *CommandBuffer) Copies() int { return c.copies }

// CommandEncoder implements gfx.CommandEncoder.
type CommandEncoder struct {
	buffer   *CommandBuffer
	finished bool
}

// BeginRenderPass implements interface
func (e *CommandEncoder) BeginRenderPass(desc gfx.RenderPassDescriptor) gfx.RenderPass {
	var layer uint32
	if len(desc.Color) > 0 {
		layer = desc.Color[0].Layer
	} else if desc.Depth != nil {
		layer = desc.Depth.Layer
	}
	e.buffer.passes = append(e.buffer.passes, PassRecord{Label: desc.Label, Layer: layer})

	attachments := desc
	e.buffer.commands = append(e.buffer.commands, func() {
		for _, a := range attachments.Color {
			if a.Load == gfx.LoadOpClear {
				t := a.Texture.(*Texture)
				t.fill(a.Layer, packColor(t.Format(), a.ClearColor))
			}
		}
		if d := attachments.Depth; d != nil && d.Load == gfx.LoadOpClear {
			d.Texture.(*Texture).fill(d.Layer, math.Float32bits(d.ClearDepth))
		}
	})
	return &RenderPass{
		encoder: e,
		desc:    desc,
		record:  len(e.buffer.passes) - 1,
	}
}

// CopyTextureToBuffer implements interface
func (e *CommandEncoder) CopyTextureToBuffer(src gfx.TextureCopy, dst gfx.BufferCopy, size image.Point) {
	e.buffer.copies++
	e.buffer.commands = append(e.buffer.commands, func() {
		t := src.Texture.(*Texture)
		b := dst.Buffer.(*Buffer)
		bpp := t.Format().BytesPerPixel()
		var texel [4]byte
		t.mu.RLock()
		defer t.mu.RUnlock()
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				v := t.texels[t.index(src.Origin.X+x, src.Origin.Y+y, src.Layer)]
				binary.LittleEndian.PutUint32(texel[:], v)
				at := dst.Offset + uint64(y)*uint64(dst.BytesPerRow) + uint64(x*bpp)
				if at+uint64(bpp) > uint64(len(b.data)) {
					return
				}
				copy(b.data[at:], texel[:bpp])
			}
		}
	})
}

// Finish implements interface
func (e *CommandEncoder) Finish() gfx.CommandBuffer {
	e.finished = true
	return e.buffer
}

// RenderPass implements gfx.RenderPass.
type RenderPass struct {
	encoder  *CommandEncoder
	desc     gfx.RenderPassDescriptor
	record   int
	pipeline *Pipeline
	vertices *Buffer
	pc       gfx.PushConstants
	viewport image.Rectangle
}

// SetViewport implements interface
func (p *RenderPass) SetViewport(r image.Rectangle) {
	p.viewport = r
}

// SetPipeline implements interface
func (p *RenderPass) SetPipeline(pl gfx.Pipeline) {
	p.pipeline = pl.(*Pipeline)
	p.encoder.buffer.passes[p.record].PipelineBinds++
}

// SetTextures implements interface
func (p *RenderPass) SetTextures(textures ...gfx.Texture) {
	p.encoder.buffer.passes[p.record].TextureBinds++
}

// SetVertexBuffer implements interface
func (p *RenderPass) SetVertexBuffer(b gfx.Buffer) {
	if b == nil {
		p.vertices = nil
		return
	}
	p.vertices = b.(*Buffer)
}

// SetPushConstants implements interface
func (p *RenderPass) SetPushConstants(pc gfx.PushConstants) {
	p.pc = pc
}

// Draw implements interface
func (p *RenderPass) Draw(vertexCount, instanceCount uint32) {
	p.encoder.buffer.passes[p.record].Draws++
	if p.pipeline == nil || p.vertices == nil || instanceCount == 0 {
		return
	}
	r := rasterizer{
		desc:      p.desc,
		depthTest: p.pipeline.desc.DepthTest,
		pc:        p.pc,
		vertices:  p.vertices.data,
		count:     int(vertexCount),
		viewport:  p.viewport,
	}
	p.encoder.buffer.commands = append(p.encoder.buffer.commands, r.run)
}

// End implements interface
func (p *RenderPass) End() {}

type screenVertex struct {
	X, Y, Z float32
}

type rasterizer struct {
	desc      gfx.RenderPassDescriptor
	depthTest bool
	pc        gfx.PushConstants
	vertices  []byte
	count     int
	viewport  image.Rectangle
}

func (r *rasterizer) size() (int, int) {
	var e gfx.Extent
	if len(r.desc.Color) > 0 {
		e = r.desc.Color[0].Texture.Size()
	} else if r.desc.Depth != nil {
		e = r.desc.Depth.Texture.Size()
	}
	return int(e.Width), int(e.Height)
}

// area returns the viewport clipped to the attachment.
func (r *rasterizer) area() image.Rectangle {
	w, h := r.size()
	full := image.Rect(0, 0, w, h)
	if r.viewport.Empty() {
		return full
	}
	return r.viewport.Intersect(full)
}

func (r *rasterizer) vertex(i int, vp image.Rectangle) (screenVertex, bool) {
	at := i * gfx.VertexStride
	if at+12 > len(r.vertices) {
		return screenVertex{}, false
	}
	pos := glm.Vec4{
		math.Float32frombits(binary.LittleEndian.Uint32(r.vertices[at:])),
		math.Float32frombits(binary.LittleEndian.Uint32(r.vertices[at+4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(r.vertices[at+8:])),
		1,
	}
	clip := r.pc.Transform.Mul4x1(pos)
	if clip[3] <= 0 {
		return screenVertex{}, false
	}
	ndc := clip.Vec3().Mul(1 / clip[3])
	return screenVertex{
		X: float32(vp.Min.X) + (ndc[0]+1)/2*float32(vp.Dx()),
		Y: float32(vp.Min.Y) + (1-ndc[1])/2*float32(vp.Dy()),
		Z: ndc[2],
	}, true
}

func (r *rasterizer) run() {
	vp := r.area()
	if vp.Empty() {
		return
	}
	for i := 0; i+2 < r.count; i += 3 {
		v0, ok0 := r.vertex(i, vp)
		v1, ok1 := r.vertex(i+1, vp)
		v2, ok2 := r.vertex(i+2, vp)
		if !ok0 || !ok1 || !ok2 {
			continue
		}
		r.triangle(v0, v1, v2, vp)
	}
}

func edgeFunction(ax, ay, bx, by, cx, cy float32) float32 {
	return (cx-ax)*(by-ay) - (cy-ay)*(bx-ax)
}

func (r *rasterizer) triangle(v0, v1, v2 screenVertex, vp image.Rectangle) {
	area := edgeFunction(v0.X, v0.Y, v1.X, v1.Y, v2.X, v2.Y)
	if area == 0 {
		return
	}
	if area < 0 {
		v0, v2 = v2, v0
		area = -area
	}

	minX := int(math.Floor(float64(min(v0.X, v1.X, v2.X))))
	maxX := int(math.Ceil(float64(max(v0.X, v1.X, v2.X))))
	minY := int(math.Floor(float64(min(v0.Y, v1.Y, v2.Y))))
	maxY := int(math.Ceil(float64(max(v0.Y, v1.Y, v2.Y))))
	minX, minY = max(minX, vp.Min.X), max(minY, vp.Min.Y)
	maxX, maxY = min(maxX, vp.Max.X), min(maxY, vp.Max.Y)

	var depth *Texture
	var depthLayer uint32
	if d := r.desc.Depth; d != nil {
		depth = d.Texture.(*Texture)
		depthLayer = d.Layer
		depth.mu.Lock()
		defer depth.mu.Unlock()
	}
	for _, a := range r.desc.Color {
		t := a.Texture.(*Texture)
		t.mu.Lock()
		defer t.mu.Unlock()
	}

	inv := 1 / area
	for y := minY; y < maxY; y++ {
		for x := minX; x < maxX; x++ {
			px, py := float32(x)+0.5, float32(y)+0.5
			w0 := edgeFunction(v1.X, v1.Y, v2.X, v2.Y, px, py)
			w1 := edgeFunction(v2.X, v2.Y, v0.X, v0.Y, px, py)
			w2 := edgeFunction(v0.X, v0.Y, v1.X, v1.Y, px, py)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := (w0*v0.Z + w1*v1.Z + w2*v2.Z) * inv
			if depth != nil {
				idx := depth.index(x, y, depthLayer)
				if r.depthTest && z >= math.Float32frombits(depth.texels[idx]) {
					continue
				}
				depth.texels[idx] = math.Float32bits(z)
			}
			for _, a := range r.desc.Color {
				t := a.Texture.(*Texture)
				t.texels[t.index(x, y, a.Layer)] = r.pc.Value
			}
		}
	}
}
