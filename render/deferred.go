// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
)

// Geometry buffer formats
const (
	DiffuseFormat = gfx.FormatRGBA8Unorm
	NormalFormat  = gfx.FormatRGBA16Float
	WaterFormat   = gfx.FormatR8Unorm
	DepthFormat   = gfx.FormatDepth32Float
)

// NewDeferredTarget creates the geometry buffers for a width x height surface.
func NewDeferredTarget(dev gfx.Device, d *diag.Service, width, height uint32) (*DeferredTarget, error) {
	size := gfx.Extent{Width: width, Height: height, Layers: 1}
	usage := gfx.TextureUsageRenderAttachment | gfx.TextureUsageSampled

	tx := textures{dev: dev, diag: d}
	t := &DeferredTarget{
		target:  target{label: "deferred"},
		size:    size,
		Diffuse: tx.create("deferred-diffuse", size, DiffuseFormat, usage, false),
		Normal:  tx.create("deferred-normal", size, NormalFormat, usage, false),
		Water:   tx.create("deferred-water", size, WaterFormat, usage, false),
		Depth:   tx.create("deferred-depth", size, DepthFormat, usage, false),
	}
	if err := tx.err(); err != nil {
		return nil, err
	}
	return t, nil
}

// DeferredTarget holds the geometry buffers of the deferred renderer.
type DeferredTarget struct {
	target
	size gfx.Extent

	Diffuse gfx.Texture
	Normal  gfx.Texture
	Water   gfx.Texture
	Depth   gfx.Texture
}

// Size returns the size of the buffers.
func (t *DeferredTarget) Size() gfx.Extent { return t.size }

// StartGeometryPass starts the pass that fills the geometry buffers,
// every buffer is cleared.
func (t *DeferredTarget) StartGeometryPass(enc gfx.CommandEncoder) *Pass {
	return t.begin(enc, gfx.RenderPassDescriptor{
		Label: "deferred-geometry",
		Color: []gfx.Attachment{
			colorAttachment(t.Diffuse, true, BackgroundColor),
			colorAttachment(t.Normal, true, gfx.Color{}),
			colorAttachment(t.Water, true, gfx.Color{}),
		},
		Depth: depthAttachment(t.Depth, 0),
	})
}

// StartScreenPass starts the lighting and composition pass over the
// presentable image, its contents are loaded.
func (t *DeferredTarget) StartScreenPass(enc gfx.CommandEncoder, screen gfx.Texture) *Pass {
	return t.begin(enc, gfx.RenderPassDescriptor{
		Label: "deferred-screen",
		Color: []gfx.Attachment{colorAttachment(screen, false, gfx.Color{})},
	})
}

// Inputs returns the buffers sampled by the screen pass, in binding order.
func (t *DeferredTarget) Inputs() []gfx.Texture {
	return []gfx.Texture{t.Diffuse, t.Normal, t.Water, t.Depth}
}

// Release implements interface
func (t *DeferredTarget) Release() {
	release(t.Diffuse, t.Normal, t.Water, t.Depth)
}
