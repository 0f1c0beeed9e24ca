// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package diag holds the renderer's diagnostics: the texture id counter
// used for debug labels, frame statistics and image captures.
package diag

import (
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Stats is a snapshot of the frame statistics.
type Stats struct {
	Frames        uint64 `json:"frames"`
	Textures      uint64 `json:"textures"`
	AcquireRetry  uint64 `json:"acquireRetries"`
	Reconfigures  uint64 `json:"reconfigures"`
	Recreations   uint64 `json:"targetRecreations"`
	PickerQueued  uint64 `json:"pickerReadsQueued"`
	PickerUpdated uint64 `json:"pickerReadsResolved"`
}

// New creates the diagnostics service, there should be one per process.
func New(logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{log: logger}
}

// Service counts what the renderer does. All methods are safe
// for concurrent use.
type Service struct {
	log log.FieldLogger

	textures      atomic.Uint64
	frames        atomic.Uint64
	retries       atomic.Uint64
	reconfigures  atomic.Uint64
	recreations   atomic.Uint64
	pickerQueued  atomic.Uint64
	pickerUpdated atomic.Uint64
	closed        atomic.Bool
}

// NextTextureID returns a process-unique texture id, starting at 1.
func (s *Service) NextTextureID() uint64 {
	return s.textures.Add(1)
}

// Label returns a debug label for a new texture of kind.
func (s *Service) Label(kind string) string {
	return fmt.Sprintf("%s#%d", kind, s.NextTextureID())
}

// FramePresented counts a presented frame and returns the total.
func (s *Service) FramePresented() uint64 {
	return s.frames.Add(1)
}

// AcquireRetried counts a retried surface acquisition.
func (s *Service) AcquireRetried() {
	s.retries.Add(1)
}

// Reconfigured counts a surface reconfiguration.
func (s *Service) Reconfigured() {
	s.reconfigures.Add(1)
}

// TargetsRecreated counts a render target recreation.
func (s *Service) TargetsRecreated() {
	s.recreations.Add(1)
}

// PickerQueued counts a queued picker read.
func (s *Service) PickerQueued() {
	s.pickerQueued.Add(1)
}

// PickerResolved counts a completed picker read.
func (s *Service) PickerResolved() {
	s.pickerUpdated.Add(1)
}

// Stats returns the current counters.
func (s *Service) Stats() Stats {
	return Stats{
		Frames:        s.frames.Load(),
		Textures:      s.textures.Load(),
		AcquireRetry:  s.retries.Load(),
		Reconfigures:  s.reconfigures.Load(),
		Recreations:   s.recreations.Load(),
		PickerQueued:  s.pickerQueued.Load(),
		PickerUpdated: s.pickerUpdated.Load(),
	}
}

// Close logs the final statistics and resets the counters.
// Calling it more than once has no effect.
func (s *Service) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	st := s.Stats()
	s.log.WithFields(log.Fields{
		"frames":       st.Frames,
		"textures":     st.Textures,
		"retries":      st.AcquireRetry,
		"reconfigures": st.Reconfigures,
	}).Info("diagnostics closed")

	for _, c := range []*atomic.Uint64{
		&s.textures, &s.frames, &s.retries, &s.reconfigures,
		&s.recreations, &s.pickerQueued, &s.pickerUpdated,
	} {
		c.Store(0)
	}
}
