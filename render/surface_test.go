// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"testing"

	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/soft"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresenter(t *testing.T) (*SurfacePresenter, *soft.Surface) {
	s := soft.NewSurface(gfx.FormatBGRA8UnormSrgb)
	p, err := NewSurfacePresenter(s, Settings{Width: 8, Height: 8, Buffering: 2}, diag.New(quietLogger()), quietLogger())
	require.NoError(t, err)
	return p, s
}

func TestAcquireOutcomes(t *testing.T) {
	ok := soft.Outcome{}
	for name, c := range map[string]struct {
		outcomes     []soft.Outcome
		fatal        bool
		acquires     int
		reconfigures int
	}{
		"success":               {outcomes: []soft.Outcome{ok}, acquires: 1},
		"timeout then success":  {outcomes: []soft.Outcome{soft.Fail(gfx.SurfaceErrorTimeout), ok}, acquires: 2},
		"timeout twice":         {outcomes: []soft.Outcome{soft.Fail(gfx.SurfaceErrorTimeout), soft.Fail(gfx.SurfaceErrorTimeout)}, fatal: true, acquires: 2},
		"outdated":              {outcomes: []soft.Outcome{soft.Fail(gfx.SurfaceErrorOutdated), ok}, acquires: 2, reconfigures: 1},
		"lost":                  {outcomes: []soft.Outcome{soft.Fail(gfx.SurfaceErrorLost), ok}, acquires: 2, reconfigures: 1},
		"out of memory":         {outcomes: []soft.Outcome{soft.Fail(gfx.SurfaceErrorOutOfMemory), ok}, acquires: 2, reconfigures: 1},
		"lost twice":            {outcomes: []soft.Outcome{soft.Fail(gfx.SurfaceErrorLost), soft.Fail(gfx.SurfaceErrorLost)}, fatal: true, acquires: 2, reconfigures: 1},
		"outdated then timeout": {outcomes: []soft.Outcome{soft.Fail(gfx.SurfaceErrorOutdated), soft.Fail(gfx.SurfaceErrorTimeout)}, fatal: true, acquires: 2, reconfigures: 1},
		"other":                 {outcomes: []soft.Outcome{soft.Fail(gfx.SurfaceErrorOther)}, fatal: true, acquires: 1},
	} {
		t.Run(name, func(t *testing.T) {
			p, s := newPresenter(t)
			s.QueueOutcomes(c.outcomes...)

			st, err := p.Acquire()
			if c.fatal {
				require.Error(t, err)
				assert.Equal(t, ErrSurfaceFatal, errors.Cause(err))
			} else {
				require.NoError(t, err)
				assert.NotNil(t, st.Texture)
			}
			assert.Equal(t, c.acquires, s.Acquires())
			assert.Len(t, s.Configurations(), 1+c.reconfigures)
		})
	}
}

func TestAcquireNeverLoops(t *testing.T) {
	kinds := []gfx.SurfaceErrorKind{
		gfx.SurfaceErrorTimeout, gfx.SurfaceErrorOutdated, gfx.SurfaceErrorLost,
		gfx.SurfaceErrorOutOfMemory, gfx.SurfaceErrorOther,
	}
	p, s := newPresenter(t)
	for _, first := range kinds {
		for _, second := range kinds {
			before := s.Acquires()
			s.QueueOutcomes(soft.Fail(first), soft.Fail(second), soft.Outcome{}, soft.Outcome{})
			_, err := p.Acquire()
			calls := s.Acquires() - before
			assert.LessOrEqual(t, calls, 2)
			if first == gfx.SurfaceErrorOther {
				assert.Equal(t, ErrSurfaceFatal, errors.Cause(err))
				assert.Equal(t, 1, calls)
			} else {
				assert.Equal(t, ErrSurfaceFatal, errors.Cause(err), "%s then %s", first, second)
			}
			// drain what is left of the script
			for s.Acquires()-before < 4 {
				_, _ = s.Acquire()
			}
		}
	}
}

func TestSuboptimalInvalidates(t *testing.T) {
	p, s := newPresenter(t)
	s.QueueOutcomes(soft.Suboptimal())

	st, err := p.Acquire()
	require.NoError(t, err)
	assert.True(t, st.Suboptimal)
	assert.True(t, p.IsInvalid())
	assert.Len(t, s.Configurations(), 1, "reconfiguration waits for the next frame")

	_, err = p.Reconfigure()
	require.NoError(t, err)
	assert.False(t, p.IsInvalid())
}

func TestSettersAreDeferred(t *testing.T) {
	p, s := newPresenter(t)

	p.SetPresentMode(gfx.PresentModeFifo)
	assert.False(t, p.IsInvalid(), "unchanged mode")
	p.SetPresentMode(gfx.PresentModeMailbox)
	assert.True(t, p.IsInvalid())
	p.SetBufferingDepth(7)
	p.Resize(0, 0)
	assert.Len(t, s.Configurations(), 1)
	assert.Equal(t, gfx.PresentModeFifo, p.Configuration().PresentMode)

	changed, err := p.Reconfigure()
	require.NoError(t, err)
	assert.False(t, changed)
	cfg := p.Configuration()
	assert.Equal(t, gfx.PresentModeMailbox, cfg.PresentMode)
	assert.Equal(t, MaxBuffering, cfg.BufferCount)
	assert.Equal(t, uint32(1), cfg.Width)
	assert.Equal(t, uint32(1), cfg.Height)
	assert.Equal(t, cfg, s.Current())

	p.SetBufferingDepth(-3)
	_, err = p.Reconfigure()
	require.NoError(t, err)
	assert.Equal(t, MinBuffering, p.Configuration().BufferCount)
}

func TestFormatIsRederivedOnlyOnChange(t *testing.T) {
	p, s := newPresenter(t)
	changed, err := p.Reconfigure()
	require.NoError(t, err)
	assert.False(t, changed)

	s.SetPreferredFormat(gfx.FormatRGBA8UnormSrgb)
	changed, err = p.Reconfigure()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, gfx.FormatRGBA8UnormSrgb, p.Configuration().Format)
}

func TestPresentOnStaleSurface(t *testing.T) {
	p, s := newPresenter(t)
	st, err := p.Acquire()
	require.NoError(t, err)

	s.QueuePresentErrors(gfx.SurfaceErrorOutdated)
	assert.NoError(t, p.Present(st))
	assert.True(t, p.IsInvalid())

	s.QueuePresentErrors(gfx.SurfaceErrorOther)
	assert.Error(t, p.Present(st))
}

func TestAcquireRecoveryKeepsFrameConfiguration(t *testing.T) {
	p, s := newPresenter(t)
	before := p.Configuration()

	p.Resize(32, 16)
	p.SetPresentMode(gfx.PresentModeMailbox)
	s.QueueOutcomes(soft.Fail(gfx.SurfaceErrorOutdated), soft.Outcome{})
	_, err := p.Acquire()
	require.NoError(t, err)

	require.Len(t, s.Configurations(), 2)
	assert.Equal(t, before, s.Current(), "size and mode wait for the frame boundary")
	assert.True(t, p.IsInvalid())

	_, err = p.Reconfigure()
	require.NoError(t, err)
	assert.Equal(t, uint32(32), s.Current().Width)
	assert.Equal(t, uint32(16), s.Current().Height)
	assert.Equal(t, gfx.PresentModeMailbox, s.Current().PresentMode)
	assert.False(t, p.IsInvalid())
}
