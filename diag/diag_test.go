// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package diag

import (
	"bytes"
	"image/color"
	"sync"
	"testing"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/soft"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestTextureIDsAreUnique(t *testing.T) {
	s := New(quietLogger())

	const workers, each = 8, 100
	ids := make(chan uint64, workers*each)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				ids <- s.NextTextureID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*each)
	assert.Equal(t, "diffuse#801", s.Label("diffuse"))
}

func TestCloseResets(t *testing.T) {
	s := New(quietLogger())
	s.FramePresented()
	s.AcquireRetried()
	s.Label("depth")
	assert.Equal(t, Stats{Frames: 1, Textures: 1, AcquireRetry: 1}, s.Stats())

	s.Close()
	assert.Equal(t, Stats{}, s.Stats())
	s.Close()
}

func TestCapture(t *testing.T) {
	s := New(quietLogger())
	dev := soft.NewDevice()
	tex, err := dev.CreateTexture(gfx.TextureDescriptor{
		Label:  s.Label("overlay"),
		Size:   gfx.Extent{Width: 3, Height: 2, Layers: 1},
		Format: gfx.FormatRGBA8Unorm,
	})
	require.NoError(t, err)

	enc, err := dev.CreateCommandEncoder("clear")
	require.NoError(t, err)
	enc.BeginRenderPass(gfx.RenderPassDescriptor{
		Color: []gfx.Attachment{{Texture: tex, Load: gfx.LoadOpClear, ClearColor: gfx.Color{R: 1, A: 1}}},
	}).End()
	require.NoError(t, dev.Queue().Submit(enc.Finish()))

	var buf bytes.Buffer
	require.NoError(t, s.Capture(dev, tex, 0, &buf))

	img, err := bmp.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
	r, g, b, a := img.At(2, 1).RGBA()
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)})
}

func TestCaptureUnsupported(t *testing.T) {
	s := New(quietLogger())
	dev := soft.NewDevice()
	tex, err := dev.CreateTexture(gfx.TextureDescriptor{
		Size:   gfx.Extent{Width: 2, Height: 2, Layers: 1},
		Format: gfx.FormatRGBA16Float,
	})
	require.NoError(t, err)
	assert.Error(t, s.Capture(dev, tex, 0, &bytes.Buffer{}))
}
