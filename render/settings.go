// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"strings"

	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
)

// ShadowDetail is the shadow map quality.
type ShadowDetail int

// Shadow details, from lowest to highest
const (
	ShadowLow ShadowDetail = iota
	ShadowMedium
	ShadowHigh
	ShadowUltra
)

var shadowResolutions = [...]struct {
	name        string
	directional uint32
	point       uint32
}{
	ShadowLow:    {"low", 1024, 256},
	ShadowMedium: {"medium", 2048, 512},
	ShadowHigh:   {"high", 4096, 1024},
	ShadowUltra:  {"ultra", 8192, 2048},
}

func (d ShadowDetail) valid() bool {
	return d >= ShadowLow && d <= ShadowUltra
}

func (d ShadowDetail) String() string {
	if !d.valid() {
		return "invalid"
	}
	return shadowResolutions[d].name
}

// DirectionalResolution returns the side of the directional shadow map.
func (d ShadowDetail) DirectionalResolution() uint32 {
	if !d.valid() {
		return shadowResolutions[ShadowMedium].directional
	}
	return shadowResolutions[d].directional
}

// PointResolution returns the side of a point light shadow cube face.
func (d ShadowDetail) PointResolution() uint32 {
	if !d.valid() {
		return shadowResolutions[ShadowMedium].point
	}
	return shadowResolutions[d].point
}

// ParseShadowDetail parses the names returned by ShadowDetail.String.
func ParseShadowDetail(s string) (ShadowDetail, error) {
	for d, r := range shadowResolutions {
		if strings.EqualFold(s, r.name) {
			return ShadowDetail(d), nil
		}
	}
	return ShadowMedium, errors.Errorf("unknown shadow detail %q", s)
}

// Buffering depth limits
const (
	MinBuffering = 1
	MaxBuffering = 2
)

// DefaultMaxPointLights is the number of point lights that cast shadows
// when Settings leaves it unset.
const DefaultMaxPointLights = 4

// Settings configure a Renderer.
type Settings struct {
	Width, Height uint32
	PresentMode   gfx.PresentMode
	Buffering     int
	ShadowDetail  ShadowDetail

	// Workers bounds the parallel recording tasks, 0 means one per task.
	Workers int

	// MaxPointLights bounds the point lights casting shadows per frame.
	MaxPointLights int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Width:          800,
		Height:         600,
		PresentMode:    gfx.PresentModeFifo,
		Buffering:      MaxBuffering,
		ShadowDetail:   ShadowMedium,
		MaxPointLights: DefaultMaxPointLights,
	}
}

func clampBuffering(n int) int {
	return clamp(n, MinBuffering, MaxBuffering)
}
