// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"sync"

	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrSurfaceFatal is the cause of every acquisition error the presenter
// could not recover from.
var ErrSurfaceFatal = errors.New("surface acquisition failed")

// NewSurfacePresenter configures surface with the platform's preferred
// format and returns a presenter for it.
func NewSurfacePresenter(surface gfx.Surface, s Settings, d *diag.Service, logger log.FieldLogger) (*SurfacePresenter, error) {
	p := &SurfacePresenter{
		surface: surface,
		diag:    d,
		log:     logger.WithField("component", "surface"),
		format:  surface.PreferredFormat(),
		mode:    s.PresentMode,
		depth:   clampBuffering(s.Buffering),
		width:   s.Width,
		height:  s.Height,
	}
	if p.format == gfx.FormatUndefined {
		return nil, errors.New("surface reports no usable format")
	}
	if _, err := p.Reconfigure(); err != nil {
		return nil, err
	}
	return p, nil
}

// SurfacePresenter acquires and presents the images of a surface and
// recovers from the errors it can. Setters only record the wanted
// configuration, it is applied by Reconfigure.
type SurfacePresenter struct {
	surface gfx.Surface
	diag    *diag.Service
	log     log.FieldLogger

	mu      sync.Mutex
	format  gfx.Format
	mode    gfx.PresentMode
	depth   int
	width   uint32
	height  uint32
	invalid bool
	current gfx.SurfaceConfiguration
}

// Acquire returns the next image. Timeouts are retried once; outdated,
// lost and out of memory surfaces are reconfigured and retried once.
// Anything else, or a failing retry, is fatal.
func (p *SurfacePresenter) Acquire() (gfx.SurfaceTexture, error) {
	st, err := p.surface.Acquire()
	if err == nil {
		p.checkSuboptimal(st)
		return st, nil
	}

	kind := gfx.SurfaceErrorKindOf(err)
	switch kind {
	case gfx.SurfaceErrorTimeout:
		p.log.WithError(err).Debug("acquire timed out, retrying")
	case gfx.SurfaceErrorOutdated, gfx.SurfaceErrorLost, gfx.SurfaceErrorOutOfMemory:
		p.log.WithError(err).Info("surface unusable, reconfiguring")
		if rerr := p.restore(); rerr != nil {
			return gfx.SurfaceTexture{}, errors.Wrapf(ErrSurfaceFatal, "reconfigure after %s: %v", kind, rerr)
		}
	default:
		return gfx.SurfaceTexture{}, errors.Wrapf(ErrSurfaceFatal, "%v", err)
	}

	p.diag.AcquireRetried()
	st, err = p.surface.Acquire()
	if err != nil {
		p.log.WithError(err).Error("acquire retry failed")
		return gfx.SurfaceTexture{}, errors.Wrapf(ErrSurfaceFatal, "retry after %s: %v", kind, err)
	}
	p.checkSuboptimal(st)
	return st, nil
}

func (p *SurfacePresenter) checkSuboptimal(st gfx.SurfaceTexture) {
	if st.Suboptimal {
		p.Invalidate()
	}
}

// Present hands an acquired image back to the platform. A surface that
// became outdated or lost meanwhile is marked invalid instead of failing.
func (p *SurfacePresenter) Present(st gfx.SurfaceTexture) error {
	err := p.surface.Present(st)
	if err == nil {
		return nil
	}
	switch gfx.SurfaceErrorKindOf(err) {
	case gfx.SurfaceErrorOutdated, gfx.SurfaceErrorLost:
		p.log.WithError(err).Debug("present on stale surface")
		p.Invalidate()
		return nil
	}
	return errors.Wrap(err, "present")
}

// Invalidate marks the surface for reconfiguration before the next frame.
func (p *SurfacePresenter) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalid = true
}

// IsInvalid reports whether Reconfigure must run before the next frame.
func (p *SurfacePresenter) IsInvalid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invalid
}

// Reconfigure applies the wanted configuration to the surface. The format
// is re-derived only when the platform's preferred format changed, the
// result reports whether it did.
func (p *SurfacePresenter) Reconfigure() (bool, error) {
	return p.configure(true)
}

// restore configures the surface again with the configuration the current
// frame was prepared for. Pending changes stay pending until the next
// Reconfigure.
func (p *SurfacePresenter) restore() error {
	_, err := p.configure(false)
	return err
}

func (p *SurfacePresenter) configure(pending bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	formatChanged := false
	if pref := p.surface.PreferredFormat(); pref != gfx.FormatUndefined && pref != p.format {
		p.log.WithFields(log.Fields{"old": p.format, "new": pref}).Info("surface format changed")
		p.format = pref
		formatChanged = true
	}

	cfg := p.current
	cfg.Format = p.format
	if pending || cfg.BufferCount == 0 {
		cfg = gfx.SurfaceConfiguration{
			Format:      p.format,
			PresentMode: p.mode,
			BufferCount: p.depth,
			Width:       max(p.width, 1),
			Height:      max(p.height, 1),
		}
	}
	if err := p.surface.Configure(cfg); err != nil {
		return formatChanged, errors.Wrap(err, "configure surface")
	}
	p.current = cfg
	if pending {
		p.invalid = false
	}
	p.diag.Reconfigured()
	p.log.WithFields(log.Fields{
		"width":  cfg.Width,
		"height": cfg.Height,
		"mode":   cfg.PresentMode,
		"depth":  cfg.BufferCount,
		"format": cfg.Format,
	}).Debug("surface configured")
	return formatChanged, nil
}

// SetPresentMode records the wanted present mode.
func (p *SurfacePresenter) SetPresentMode(m gfx.PresentMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == m {
		return
	}
	p.mode = m
	p.invalid = true
}

// SetBufferingDepth records the wanted buffering depth, clamped to
// MinBuffering..MaxBuffering.
func (p *SurfacePresenter) SetBufferingDepth(n int) {
	n = clampBuffering(n)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.depth == n {
		return
	}
	p.depth = n
	p.invalid = true
}

// Resize records the window size.
func (p *SurfacePresenter) Resize(width, height uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width, p.height = width, height
	p.invalid = true
}

// Configuration returns the configuration last applied to the surface.
func (p *SurfacePresenter) Configuration() gfx.SurfaceConfiguration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
