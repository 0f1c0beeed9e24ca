// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"

	"github.com/pkg/errors"
)

// PresentMode selects how presented images are queued for display.
type PresentMode int

// Present modes
const (
	PresentModeFifo PresentMode = iota
	PresentModeMailbox
	PresentModeImmediate
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeFifo:
		return "fifo"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeImmediate:
		return "immediate"
	}
	return fmt.Sprintf("PresentMode(%d)", int(p))
}

// ParsePresentMode parses the names returned by PresentMode.String.
func ParsePresentMode(s string) (PresentMode, error) {
	switch s {
	case "fifo", "vsync":
		return PresentModeFifo, nil
	case "mailbox":
		return PresentModeMailbox, nil
	case "immediate":
		return PresentModeImmediate, nil
	}
	return PresentModeFifo, errors.Errorf("unknown present mode %q", s)
}

// SurfaceConfiguration is applied to a surface by Configure.
type SurfaceConfiguration struct {
	Format      Format
	PresentMode PresentMode
	BufferCount int
	Width       uint32
	Height      uint32
}

// SurfaceTexture is an image acquired from a surface.
type SurfaceTexture struct {
	Texture Texture
	Index   uint32

	// Suboptimal is set when the platform can still present
	// the image but the surface should be reconfigured.
	Suboptimal bool
}

// Surface is a platform-managed chain of presentable images.
type Surface interface {
	Releasable

	// PreferredFormat returns the format the platform prefers.
	PreferredFormat() Format

	// Configure (re)creates the image chain.
	Configure(cfg SurfaceConfiguration) error

	// Acquire returns the next image to render to. Acquisition
	// failures are reported as *SurfaceError.
	Acquire() (SurfaceTexture, error)

	// Present queues the image for display.
	Present(st SurfaceTexture) error
}

// SurfaceErrorKind classifies surface errors.
type SurfaceErrorKind int

// Surface error kinds
const (
	SurfaceErrorOther SurfaceErrorKind = iota
	SurfaceErrorTimeout
	SurfaceErrorOutdated
	SurfaceErrorLost
	SurfaceErrorOutOfMemory
)

func (k SurfaceErrorKind) String() string {
	switch k {
	case SurfaceErrorTimeout:
		return "timeout"
	case SurfaceErrorOutdated:
		return "outdated"
	case SurfaceErrorLost:
		return "lost"
	case SurfaceErrorOutOfMemory:
		return "out of memory"
	}
	return "other"
}

// SurfaceError is returned by Surface.Acquire and Surface.Present.
type SurfaceError struct {
	Kind SurfaceErrorKind
	Err  error
}

// NewSurfaceError creates a SurfaceError of the given kind.
func NewSurfaceError(kind SurfaceErrorKind, err error) *SurfaceError {
	return &SurfaceError{Kind: kind, Err: err}
}

func (e *SurfaceError) Error() string {
	if e.Err == nil {
		return "surface: " + e.Kind.String()
	}
	return "surface: " + e.Kind.String() + ": " + e.Err.Error()
}

// Cause returns the underlying error, it is used by errors.Cause.
func (e *SurfaceError) Cause() error {
	return e.Err
}

// SurfaceErrorKindOf returns the kind of a surface error,
// errors that are not surface errors are SurfaceErrorOther.
func SurfaceErrorKindOf(err error) SurfaceErrorKind {
	for err != nil {
		if se, ok := err.(*SurfaceError); ok {
			return se.Kind
		}
		c, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		err = c.Cause()
	}
	return SurfaceErrorOther
}
