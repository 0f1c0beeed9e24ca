// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package render implements the frame renderer: the surface presenter,
// the render targets, the picker readback and the frame orchestrator.
// It draws through the backend neutral gfx package.
package render

import (
	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
)

// SubRenderer identifies a pipeline variant bound within a pass.
type SubRenderer uint8

// Sub-renderers, the zero value is never bound
const (
	SubRendererNone SubRenderer = iota
	SubRendererModel
	SubRendererTerrain
	SubRendererWater
	SubRendererSprite
	SubRendererAmbient
	SubRendererDirectionalLight
	SubRendererPointLight
	SubRendererMarker
	SubRendererParticle
	SubRendererComposite
	SubRendererPickerEntity
	SubRendererPickerTile
	SubRendererPickerMarker
	SubRendererShadow
	SubRendererInterface

	subRendererCount
)

var subRendererNames = [subRendererCount]string{
	"none", "model", "terrain", "water", "sprite", "ambient",
	"directional-light", "point-light", "marker", "particle", "composite",
	"picker-entity", "picker-tile", "picker-marker", "shadow", "interface",
}

func (s SubRenderer) String() string {
	if s >= subRendererCount {
		return "unknown"
	}
	return subRendererNames[s]
}

// Target is implemented by every render target.
type Target interface {
	gfx.Releasable

	Label() string

	// BoundSubRenderer reports whether the pipeline for id must be
	// bound, it is true the first time id is seen since the last pass
	// started and false while the same id is repeated.
	BoundSubRenderer(id SubRenderer) bool

	// Finish finalizes the recording of enc.
	Finish(enc gfx.CommandEncoder) gfx.CommandBuffer
}

// boundCache remembers the last bound sub-renderer of a pass.
type boundCache struct {
	last SubRenderer
}

func (c *boundCache) bound(id SubRenderer) bool {
	if c.last == id && id != SubRendererNone {
		return false
	}
	c.last = id
	return true
}

func (c *boundCache) reset() {
	c.last = SubRendererNone
}

// target holds what every render target variant shares.
type target struct {
	label string
	cache boundCache
}

// Label implements interface
func (t *target) Label() string { return t.label }

// BoundSubRenderer implements interface
func (t *target) BoundSubRenderer(id SubRenderer) bool {
	return t.cache.bound(id)
}

// Finish implements interface
func (t *target) Finish(enc gfx.CommandEncoder) gfx.CommandBuffer {
	return enc.Finish()
}

func (t *target) begin(enc gfx.CommandEncoder, desc gfx.RenderPassDescriptor) *Pass {
	t.cache.reset()
	return &Pass{
		RenderPass: enc.BeginRenderPass(desc),
		target:     t,
	}
}

// Pass is a render pass started on a target.
type Pass struct {
	gfx.RenderPass
	target *target

	binds int
}

// Bind binds pl and textures unless id is already bound in this pass.
// It reports whether anything was bound.
func (p *Pass) Bind(id SubRenderer, pl gfx.Pipeline, textures ...gfx.Texture) bool {
	if !p.target.BoundSubRenderer(id) {
		return false
	}
	p.binds++
	p.SetPipeline(pl)
	if len(textures) > 0 {
		p.SetTextures(textures...)
	}
	return true
}

// Binds returns how many times Bind actually bound a pipeline.
func (p *Pass) Binds() int {
	return p.binds
}

// DrawMesh draws a mesh with the given transform and value. Meshes without
// a buffer are generated by the bound pipeline.
func (p *Pass) DrawMesh(m Mesh, pc gfx.PushConstants) {
	p.SetVertexBuffer(m.Buffer)
	p.SetPushConstants(pc)
	p.Draw(m.VertexCount, 1)
}

// BackgroundColor is the color targets are cleared with.
var BackgroundColor = gfx.Color{R: 0.02, G: 0.02, B: 0.03, A: 1}

func colorAttachment(tex gfx.Texture, clear bool, c gfx.Color) gfx.Attachment {
	a := gfx.Attachment{Texture: tex, Load: gfx.LoadOpLoad}
	if clear {
		a.Load = gfx.LoadOpClear
		a.ClearColor = c
	}
	return a
}

func depthAttachment(tex gfx.Texture, layer uint32) *gfx.Attachment {
	return &gfx.Attachment{
		Texture:    tex,
		Layer:      layer,
		Load:       gfx.LoadOpClear,
		ClearDepth: 1,
	}
}

// textures creates textures and releases the created ones when one fails.
type textures struct {
	dev    gfx.Device
	diag   *diag.Service
	made   []gfx.Texture
	failed error
}

func (t *textures) create(kind string, size gfx.Extent, f gfx.Format, usage gfx.TextureUsage, cube bool) gfx.Texture {
	if t.failed != nil {
		return nil
	}
	if size.Layers == 0 {
		size.Layers = 1
	}
	tex, err := t.dev.CreateTexture(gfx.TextureDescriptor{
		Label:  t.diag.Label(kind),
		Size:   size,
		Format: f,
		Usage:  usage,
		Cube:   cube,
	})
	if err != nil {
		t.failed = errors.Wrapf(err, "create %s texture", kind)
		return nil
	}
	t.made = append(t.made, tex)
	return tex
}

func (t *textures) err() error {
	if t.failed == nil {
		return nil
	}
	for _, tex := range t.made {
		tex.Release()
	}
	return t.failed
}

func release(items ...gfx.Releasable) {
	for _, it := range items {
		if it != nil {
			it.Release()
		}
	}
}
