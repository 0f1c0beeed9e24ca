// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
)

// ShadowFormat is the format of every shadow map.
const ShadowFormat = gfx.FormatDepth32Float

const shadowUsage = gfx.TextureUsageRenderAttachment | gfx.TextureUsageSampled

// NewDirectionalShadowTarget creates a resolution x resolution shadow map.
func NewDirectionalShadowTarget(dev gfx.Device, d *diag.Service, resolution uint32) (*DirectionalShadowTarget, error) {
	tx := textures{dev: dev, diag: d}
	t := &DirectionalShadowTarget{
		target:     target{label: "directional-shadow"},
		resolution: resolution,
		Depth:      tx.create("directional-shadow", gfx.Extent{Width: resolution, Height: resolution, Layers: 1}, ShadowFormat, shadowUsage, false),
	}
	if err := tx.err(); err != nil {
		return nil, err
	}
	return t, nil
}

// DirectionalShadowTarget is the depth map of the sun.
type DirectionalShadowTarget struct {
	target
	resolution uint32

	Depth gfx.Texture
}

// Resolution returns the side of the map.
func (t *DirectionalShadowTarget) Resolution() uint32 { return t.resolution }

// StartPass starts a pass clearing the map.
func (t *DirectionalShadowTarget) StartPass(enc gfx.CommandEncoder) *Pass {
	return t.begin(enc, gfx.RenderPassDescriptor{
		Label: "directional-shadow",
		Depth: depthAttachment(t.Depth, 0),
	})
}

// Release implements interface
func (t *DirectionalShadowTarget) Release() {
	release(t.Depth)
}

// CubeFaces is the number of faces of a point light shadow cube.
const CubeFaces = 6

// NewPointShadowTarget creates shadow cubes for up to lights point lights,
// each face is resolution x resolution.
func NewPointShadowTarget(dev gfx.Device, d *diag.Service, resolution uint32, lights int) (*PointShadowTarget, error) {
	if lights < 1 {
		return nil, errors.Errorf("point shadow target needs at least one light, got %d", lights)
	}
	size := gfx.Extent{Width: resolution, Height: resolution, Layers: uint32(lights * CubeFaces)}

	tx := textures{dev: dev, diag: d}
	t := &PointShadowTarget{
		target:     target{label: "point-shadow"},
		resolution: resolution,
		lights:     lights,
		Depth:      tx.create("point-shadow", size, ShadowFormat, shadowUsage, true),
	}
	if err := tx.err(); err != nil {
		return nil, err
	}
	return t, nil
}

// PointShadowTarget is a cube array with one cube per shadow casting
// point light. Every light of a frame is recorded into the same encoder.
type PointShadowTarget struct {
	target
	resolution uint32
	lights     int

	Depth gfx.Texture
}

// Resolution returns the side of a cube face.
func (t *PointShadowTarget) Resolution() uint32 { return t.resolution }

// Lights returns the number of cubes.
func (t *PointShadowTarget) Lights() int { return t.lights }

// Layer returns the array layer of a light's cube face.
func (t *PointShadowTarget) Layer(light, face int) uint32 {
	return uint32(light*CubeFaces + face)
}

// StartFacePass starts a pass clearing one face of a light's cube.
func (t *PointShadowTarget) StartFacePass(enc gfx.CommandEncoder, light, face int) *Pass {
	return t.begin(enc, gfx.RenderPassDescriptor{
		Label: "point-shadow",
		Depth: depthAttachment(t.Depth, t.Layer(light, face)),
	})
}

// Release implements interface
func (t *PointShadowTarget) Release() {
	release(t.Depth)
}
