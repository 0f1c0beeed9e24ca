// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"sync"

	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
)

// Outcome scripts the result of one Surface.Acquire call.
type Outcome struct {
	Err        *gfx.SurfaceError
	Suboptimal bool
}

// Fail is an Outcome failing with the given kind.
func Fail(kind gfx.SurfaceErrorKind) Outcome {
	return Outcome{Err: gfx.NewSurfaceError(kind, errors.New("scripted"))}
}

// Suboptimal is an Outcome that succeeds with a suboptimal image.
func Suboptimal() Outcome {
	return Outcome{Suboptimal: true}
}

// NewSurface creates a surface reporting preferred as its native format.
func NewSurface(preferred gfx.Format) *Surface {
	return &Surface{preferred: preferred}
}

// Surface implements gfx.Surface with a scripted acquisition sequence.
// When no outcomes are queued acquisition succeeds.
type Surface struct {
	mu             sync.Mutex
	preferred      gfx.Format
	cfg            gfx.SurfaceConfiguration
	images         []*Texture
	next           int
	outcomes       []Outcome
	presentErrs    []*gfx.SurfaceError
	configurations []gfx.SurfaceConfiguration
	acquires       int
	presented      int
	released       bool
}

// PreferredFormat implements interface
func (s *Surface) PreferredFormat() gfx.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferred
}

// SetPreferredFormat changes the format the surface reports as native.
func (s *Surface) SetPreferredFormat(f gfx.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferred = f
}

// Configure implements interface
func (s *Surface) Configure(cfg gfx.SurfaceConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return errors.New("soft: surface released")
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return errors.Errorf("soft: invalid surface size %dx%d", cfg.Width, cfg.Height)
	}
	count := cfg.BufferCount + 1
	if count < 2 {
		count = 2
	}
	s.images = s.images[:0]
	for i := 0; i < count; i++ {
		s.images = append(s.images, newTexture(gfx.TextureDescriptor{
			Label:  fmt.Sprintf("surface image %d", i),
			Size:   gfx.Extent{Width: cfg.Width, Height: cfg.Height, Layers: 1},
			Format: cfg.Format,
			Usage:  gfx.TextureUsageRenderAttachment | gfx.TextureUsageCopySrc,
		}))
	}
	s.next = 0
	s.cfg = cfg
	s.configurations = append(s.configurations, cfg)
	return nil
}

// Acquire implements interface
func (s *Surface) Acquire() (gfx.SurfaceTexture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquires++
	var out Outcome
	if len(s.outcomes) > 0 {
		out = s.outcomes[0]
		s.outcomes = s.outcomes[1:]
	}
	if out.Err != nil {
		return gfx.SurfaceTexture{}, out.Err
	}
	if len(s.images) == 0 {
		return gfx.SurfaceTexture{}, gfx.NewSurfaceError(gfx.SurfaceErrorOutdated, errors.New("soft: surface not configured"))
	}
	idx := s.next
	s.next = (s.next + 1) % len(s.images)
	return gfx.SurfaceTexture{
		Texture:    s.images[idx],
		Index:      uint32(idx),
		Suboptimal: out.Suboptimal,
	}, nil
}

// Present implements interface
func (s *Surface) Present(st gfx.SurfaceTexture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.presentErrs) > 0 {
		err := s.presentErrs[0]
		s.presentErrs = s.presentErrs[1:]
		return err
	}
	s.presented++
	return nil
}

// Release implements interface
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.images = nil
}

// QueueOutcomes appends scripted results for upcoming Acquire calls.
func (s *Surface) QueueOutcomes(outcomes ...Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcomes...)
}

// QueuePresentErrors appends scripted failures for upcoming Present calls.
func (s *Surface) QueuePresentErrors(kinds ...gfx.SurfaceErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range kinds {
		s.presentErrs = append(s.presentErrs, gfx.NewSurfaceError(k, errors.New("scripted")))
	}
}

// Configurations returns every configuration applied so far.
func (s *Surface) Configurations() []gfx.SurfaceConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gfx.SurfaceConfiguration, len(s.configurations))
	copy(out, s.configurations)
	return out
}

// Current returns the active configuration.
func (s *Surface) Current() gfx.SurfaceConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Acquires returns the number of Acquire calls.
func (s *Surface) Acquires() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires
}

// Presented returns the number of successful presents.
func (s *Surface) Presented() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}
