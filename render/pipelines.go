// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
)

// InterfaceFormat is the format of the interface overlay.
const InterfaceFormat = gfx.FormatRGBA8Unorm

// Pipelines holds one pipeline per sub-renderer. They depend on the
// surface format and are recreated when it changes.
type Pipelines struct {
	format gfx.Format
	byID   [subRendererCount]gfx.Pipeline
}

func pipelineDescriptor(id SubRenderer, surface gfx.Format) gfx.PipelineDescriptor {
	desc := gfx.PipelineDescriptor{
		Label:  id.String(),
		Shader: id.String(),
	}
	switch id {
	case SubRendererModel, SubRendererTerrain, SubRendererWater, SubRendererSprite:
		desc.ColorFormats = []gfx.Format{DiffuseFormat, NormalFormat, WaterFormat}
		desc.DepthFormat = DepthFormat
		desc.DepthTest = true
		desc.Blend = id == SubRendererWater
	case SubRendererAmbient:
		desc.ColorFormats = []gfx.Format{surface}
	case SubRendererDirectionalLight, SubRendererPointLight, SubRendererMarker,
		SubRendererParticle, SubRendererComposite:
		desc.ColorFormats = []gfx.Format{surface}
		desc.Blend = true
	case SubRendererPickerEntity, SubRendererPickerTile, SubRendererPickerMarker:
		desc.ColorFormats = []gfx.Format{PickerFormat}
		desc.DepthFormat = DepthFormat
		desc.DepthTest = true
	case SubRendererShadow:
		desc.DepthFormat = ShadowFormat
		desc.DepthTest = true
	case SubRendererInterface:
		desc.ColorFormats = []gfx.Format{InterfaceFormat}
		desc.Blend = true
	}
	return desc
}

// NewPipelines creates every pipeline for a surface of the given format.
func NewPipelines(dev gfx.Device, surface gfx.Format) (*Pipelines, error) {
	p := &Pipelines{format: surface}
	for id := SubRendererNone + 1; id < subRendererCount; id++ {
		pl, err := dev.CreatePipeline(pipelineDescriptor(id, surface))
		if err != nil {
			p.Release()
			return nil, errors.Wrapf(err, "create %s pipeline", id)
		}
		p.byID[id] = pl
	}
	return p, nil
}

// Get returns the pipeline of a sub-renderer.
func (p *Pipelines) Get(id SubRenderer) gfx.Pipeline {
	return p.byID[id]
}

// Format returns the surface format the pipelines were created for.
func (p *Pipelines) Format() gfx.Format { return p.format }

// Release implements interface
func (p *Pipelines) Release() {
	for i, pl := range p.byID {
		if pl != nil {
			pl.Release()
			p.byID[i] = nil
		}
	}
}
