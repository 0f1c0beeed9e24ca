// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigurationIsValid(t *testing.T) {
	cfg := DefaultConfiguration()
	s, err := cfg.Renderer.Settings()
	require.NoError(t, err)
	assert.Equal(t, render.DefaultSettings(), s)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv(EnvWidth, "1920")
	t.Setenv(EnvHeight, "1080")
	t.Setenv(EnvPresentMode, "Mailbox")
	t.Setenv(EnvBuffering, "1")
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvLogLevel, "debug")

	cfg := DefaultConfiguration()
	require.NoError(t, LoadEnvironment(&cfg, filepath.Join(t.TempDir(), "missing.env")))
	assert.True(t, cfg.Renderer.Debug)
	assert.Equal(t, "debug", cfg.Log.Level)

	s, err := cfg.Renderer.Settings()
	require.NoError(t, err)
	assert.Equal(t, uint32(1920), s.Width)
	assert.Equal(t, uint32(1080), s.Height)
	assert.Equal(t, gfx.PresentModeMailbox, s.PresentMode)
	assert.Equal(t, 1, s.Buffering)
}

func TestLoadEnvironmentFile(t *testing.T) {
	require.Empty(t, os.Getenv(EnvShadowDetail))
	t.Cleanup(func() { os.Unsetenv(EnvShadowDetail) })
	t.Setenv(EnvFps, "30")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvShadowDetail+"=ultra\n"+EnvFps+"=500\n"), 0644))

	cfg := DefaultConfiguration()
	require.NoError(t, LoadEnvironment(&cfg, path))
	assert.Equal(t, "ultra", cfg.Renderer.ShadowDetail)
	assert.Equal(t, 30, cfg.Time.FramesPerSecond, "the environment wins over the file")
}

func TestLoadEnvironmentRejectsGarbage(t *testing.T) {
	t.Setenv(EnvWidth, "wide")
	cfg := DefaultConfiguration()
	assert.Error(t, LoadEnvironment(&cfg))
}

func TestSettingsValidation(t *testing.T) {
	cfg := DefaultConfiguration().Renderer
	cfg.ShadowDetail = "extreme"
	_, err := cfg.Settings()
	assert.Error(t, err)

	cfg = DefaultConfiguration().Renderer
	cfg.ScreenHeight = 0
	_, err = cfg.Settings()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfiguration{Level: "warn", JSON: true}, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.WithField("slot", 1).Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"slot":1`)

	_, err = NewLogger(LogConfiguration{Level: "loud"})
	assert.Error(t, err)
}

func TestTimeTick(t *testing.T) {
	tm := NewTime(TimeConfiguration{FramesPerSecond: 60, EventPollDelay: 5})
	defer tm.Stop()

	base := time.Unix(100, 0)
	clock := base
	tm.now = func() time.Time { return clock }
	tm.start, tm.last = base, base

	clock = base.Add(16 * time.Millisecond)
	elapsed, delta := tm.Tick()
	assert.Equal(t, 16*time.Millisecond, elapsed)
	assert.Equal(t, 16*time.Millisecond, delta)

	clock = base.Add(40 * time.Millisecond)
	elapsed, delta = tm.Tick()
	assert.Equal(t, 40*time.Millisecond, elapsed)
	assert.Equal(t, 24*time.Millisecond, delta)
	assert.Equal(t, 60, tm.Fps())
}
