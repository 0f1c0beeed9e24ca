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

// ClearKind selects how a SingleTarget is cleared.
type ClearKind int

// Clear kinds
const (
	ClearColor ClearKind = iota
	ClearDepth
)

// SingleTargetDescriptor describes a SingleTarget.
type SingleTargetDescriptor struct {
	Label  string
	Format gfx.Format
	Clear  ClearKind

	// ClearColor is used by color targets, depth targets clear to 1.
	ClearColor gfx.Color

	Width, Height uint32
}

// NewSingleTarget creates a target with one output image.
func NewSingleTarget(dev gfx.Device, d *diag.Service, desc SingleTargetDescriptor) (*SingleTarget, error) {
	if desc.Format.IsDepth() != (desc.Clear == ClearDepth) {
		return nil, errors.Errorf("target %q: format %s does not match clear kind", desc.Label, desc.Format)
	}
	tx := textures{dev: dev, diag: d}
	t := &SingleTarget{
		target: target{label: desc.Label},
		desc:   desc,
		Texture: tx.create(desc.Label,
			gfx.Extent{Width: desc.Width, Height: desc.Height, Layers: 1},
			desc.Format,
			gfx.TextureUsageRenderAttachment|gfx.TextureUsageSampled|gfx.TextureUsageCopySrc,
			false),
	}
	if err := tx.err(); err != nil {
		return nil, err
	}
	return t, nil
}

// SingleTarget is a render target with a single output of any format.
type SingleTarget struct {
	target
	desc SingleTargetDescriptor

	Texture gfx.Texture
}

// Format returns the format of the output.
func (t *SingleTarget) Format() gfx.Format { return t.desc.Format }

// StartPass starts a pass over the output, which is cleared when clear
// is set and loaded otherwise.
func (t *SingleTarget) StartPass(enc gfx.CommandEncoder, clear bool) *Pass {
	desc := gfx.RenderPassDescriptor{Label: t.label}
	if t.desc.Clear == ClearDepth {
		a := depthAttachment(t.Texture, 0)
		if !clear {
			a.Load = gfx.LoadOpLoad
		}
		desc.Depth = a
	} else {
		desc.Color = []gfx.Attachment{colorAttachment(t.Texture, clear, t.desc.ClearColor)}
	}
	return t.begin(enc, desc)
}

// Release implements interface
func (t *SingleTarget) Release() {
	release(t.Texture)
}
