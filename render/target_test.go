// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"image"
	"math/rand"
	"testing"

	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundSubRenderer(t *testing.T) {
	var tg target
	dev := soft.NewDevice()

	start := func() {
		enc, err := dev.CreateCommandEncoder("bind")
		require.NoError(t, err)
		tg.begin(enc, gfx.RenderPassDescriptor{})
	}

	start()
	assert.True(t, tg.BoundSubRenderer(SubRendererModel))
	assert.False(t, tg.BoundSubRenderer(SubRendererModel))
	assert.False(t, tg.BoundSubRenderer(SubRendererModel))
	assert.True(t, tg.BoundSubRenderer(SubRendererWater))
	assert.True(t, tg.BoundSubRenderer(SubRendererModel))

	start()
	assert.True(t, tg.BoundSubRenderer(SubRendererModel), "a new pass forgets the bound sub-renderer")
}

func TestBoundSubRendererSequences(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		var c boundCache
		prev := SubRendererNone
		for j := 0; j < 50; j++ {
			if rnd.Intn(10) == 0 {
				c.reset()
				prev = SubRendererNone
			}
			id := SubRenderer(1 + rnd.Intn(int(subRendererCount)-1))
			assert.Equal(t, id != prev, c.bound(id))
			prev = id
		}
	}
}

func TestPassBindSkipsRepeats(t *testing.T) {
	dev := soft.NewDevice()
	pl, err := dev.CreatePipeline(gfx.PipelineDescriptor{Shader: "model"})
	require.NoError(t, err)
	enc, err := dev.CreateCommandEncoder("binds")
	require.NoError(t, err)

	var tg target
	pass := tg.begin(enc, gfx.RenderPassDescriptor{})
	for i := 0; i < 10; i++ {
		pass.Bind(SubRendererModel, pl)
	}
	pass.Bind(SubRendererSprite, pl)
	pass.End()

	assert.Equal(t, 2, pass.Binds())
	cb := tg.Finish(enc).(*soft.CommandBuffer)
	assert.Equal(t, 2, cb.Passes()[0].PipelineBinds)
}

func TestPaddedWidth(t *testing.T) {
	for _, c := range []struct {
		width, want uint32
	}{
		{1, 64}, {64, 64}, {65, 128}, {800, 832}, {1920, 1920}, {1366, 1408},
	} {
		got := PaddedWidth(c.width, PickerFormat)
		assert.Equal(t, c.want, got, "width %d", c.width)
		assert.Zero(t, got*4%gfx.CopyRowAlignment)
	}
	assert.Equal(t, uint32(256), PaddedWidth(100, gfx.FormatR8Unorm))
}

func TestPickerOffsetClamps(t *testing.T) {
	p, err := NewPickerTarget(soft.NewDevice(), diag.New(quietLogger()), 100, 50)
	require.NoError(t, err)
	defer p.Release()

	assert.Equal(t, uint32(128), p.PaddedWidth())
	assert.Equal(t, uint64((10*128+20)*4), p.Offset(20, 10))
	assert.Equal(t, uint64(0), p.Offset(-5, -5))
	assert.Equal(t, uint64((49*128+99)*4), p.Offset(1000, 1000))
	assert.Equal(t, uint64(128*4*50), p.Staging.Size())
}

func TestToPixels(t *testing.T) {
	window, retina := image.Pt(800, 600), image.Pt(1600, 1200)
	assert.Equal(t, image.Pt(200, 100), ToPixels(image.Pt(100, 50), window, retina))
	assert.Equal(t, image.Pt(1598, 1198), ToPixels(image.Pt(799, 599), window, retina))
	assert.Equal(t, image.Pt(100, 50), ToPixels(image.Pt(100, 50), window, window))
	assert.Equal(t, image.Pt(7, 3), ToPixels(image.Pt(7, 3), image.Point{}, retina))
}

func TestDeferredTargetPasses(t *testing.T) {
	dev := soft.NewDevice()
	d, err := NewDeferredTarget(dev, diag.New(quietLogger()), 4, 4)
	require.NoError(t, err)
	defer d.Release()
	screen, err := dev.CreateTexture(gfx.TextureDescriptor{Size: gfx.Extent{Width: 4, Height: 4}, Format: gfx.FormatRGBA8Unorm})
	require.NoError(t, err)

	enc, err := dev.CreateCommandEncoder("deferred")
	require.NoError(t, err)
	d.StartGeometryPass(enc).End()
	d.StartScreenPass(enc, screen).End()
	require.NoError(t, dev.Queue().Submit(d.Finish(enc)))

	assert.Equal(t, float32(1), d.Depth.(*soft.Texture).DepthAt(1, 1, 0))
	assert.NotZero(t, d.Diffuse.(*soft.Texture).At(1, 1, 0), "diffuse is cleared to the background")
	assert.Len(t, d.Inputs(), 4)
	passes := dev.SoftQueue().Submissions()[0].Passes
	require.Len(t, passes, 2)
	assert.Equal(t, "deferred-geometry", passes[0].Label)
	assert.Equal(t, "deferred-screen", passes[1].Label)
}

func TestSingleTargetClearOrLoad(t *testing.T) {
	dev := soft.NewDevice()
	d := diag.New(quietLogger())
	_, err := NewSingleTarget(dev, d, SingleTargetDescriptor{Label: "bad", Format: gfx.FormatDepth32Float, Clear: ClearColor, Width: 2, Height: 2})
	assert.Error(t, err)

	s, err := NewSingleTarget(dev, d, SingleTargetDescriptor{
		Label:      "overlay",
		Format:     gfx.FormatR32Uint,
		Clear:      ClearColor,
		ClearColor: gfx.Color{R: 9},
		Width:      2,
		Height:     2,
	})
	require.NoError(t, err)
	defer s.Release()
	tex := s.Texture.(*soft.Texture)

	enc, err := dev.CreateCommandEncoder("clear")
	require.NoError(t, err)
	s.StartPass(enc, true).End()
	require.NoError(t, dev.Queue().Submit(s.Finish(enc)))
	assert.Equal(t, uint32(9), tex.At(1, 1, 0))

	pl, err := dev.CreatePipeline(gfx.PipelineDescriptor{Shader: "interface"})
	require.NoError(t, err)
	quad := unitQuad(t, dev)
	enc, err = dev.CreateCommandEncoder("draw")
	require.NoError(t, err)
	pass := s.StartPass(enc, true)
	pass.Bind(SubRendererInterface, pl)
	pass.DrawMesh(quad, gfx.PushConstants{Transform: quadrant(quad, -0.5, 0.5, 0).Model, Value: 4})
	pass.End()
	require.NoError(t, dev.Queue().Submit(s.Finish(enc)))
	assert.Equal(t, uint32(4), tex.At(0, 0, 0))
	assert.Equal(t, uint32(9), tex.At(1, 1, 0))

	enc, err = dev.CreateCommandEncoder("load")
	require.NoError(t, err)
	s.StartPass(enc, false).End()
	require.NoError(t, dev.Queue().Submit(s.Finish(enc)))
	assert.Equal(t, uint32(4), tex.At(0, 0, 0), "loading keeps the contents")

	depth, err := NewSingleTarget(dev, d, SingleTargetDescriptor{Label: "depth", Format: gfx.FormatDepth32Float, Clear: ClearDepth, Width: 2, Height: 2})
	require.NoError(t, err)
	defer depth.Release()
	enc, err = dev.CreateCommandEncoder("depth")
	require.NoError(t, err)
	depth.StartPass(enc, true).End()
	require.NoError(t, dev.Queue().Submit(depth.Finish(enc)))
	assert.Equal(t, float32(1), depth.Texture.(*soft.Texture).DepthAt(0, 0, 0))
}

func TestTargetAllocationFailure(t *testing.T) {
	dev := soft.NewDevice()
	dev.FailTextures = true
	_, err := NewDeferredTarget(dev, diag.New(quietLogger()), 4, 4)
	assert.Error(t, err)
	_, err = NewPointShadowTarget(dev, diag.New(quietLogger()), 4, 2)
	assert.Error(t, err)
	_, err = NewPointShadowTarget(soft.NewDevice(), diag.New(quietLogger()), 4, 0)
	assert.Error(t, err)
}

func BenchmarkBoundSubRenderer(b *testing.B) {
	var c boundCache
	ids := []SubRenderer{SubRendererModel, SubRendererModel, SubRendererModel, SubRendererSprite}
	for i := 0; i < b.N; i++ {
		c.bound(ids[i%len(ids)])
	}
}
