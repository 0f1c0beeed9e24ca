// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"context"
	"testing"

	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/soft"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderFrame(t *testing.T, r *Renderer) FrameInfo {
	info, err := r.RenderFrame(context.Background())
	require.NoError(t, err)
	return info
}

func submission(t *testing.T, dev *soft.Device, label string) soft.Submission {
	var found []soft.Submission
	for _, s := range dev.SoftQueue().Submissions() {
		if s.Label == label {
			found = append(found, s)
		}
	}
	require.Len(t, found, 1, "submissions of %s", label)
	return found[0]
}

// covered counts the written texels among the four corners of the
// lo..hi square of a depth layer.
func covered(tex *soft.Texture, layer uint32, lo, hi int) int {
	n := 0
	for _, y := range []int{lo, hi} {
		for _, x := range []int{lo, hi} {
			if tex.DepthAt(x, y, layer) < 1 {
				n++
			}
		}
	}
	return n
}

func TestPickerRoundTrip(t *testing.T) {
	f := newFixture(t, quadrantWorld, smallSettings())
	w := f.r.world.(*flatWorld)

	var upperLeft, upperRight, lowerLeft, lowerRight, outside PickerValue
	f.r.QueueReadPickerValue(1, 0, &upperLeft)
	f.r.QueueReadPickerValue(6, 1, &upperRight)
	f.r.QueueReadPickerValue(2, 3, &lowerLeft)
	f.r.QueueReadPickerValue(5, 2, &lowerRight)
	f.r.QueueReadPickerValue(-40, 100, &outside)

	renderFrame(t, f.r)
	assert.Equal(t, Pick{}, upperLeft.Load(), "reads complete one frame later")

	// ids drawn in the next frame must not leak into the reads
	w.objects.Opaque[0].Value = EncodeEntity(99)
	renderFrame(t, f.r)

	assert.Equal(t, Pick{Kind: PickEntity, ID: 1}, upperLeft.Load())
	assert.Equal(t, Pick{Kind: PickEntity, ID: 2}, upperRight.Load())
	assert.Equal(t, Pick{Kind: PickTile, X: 3, Y: 4}, lowerLeft.Load())
	assert.Equal(t, Pick{Kind: PickMarker, ID: 5}, lowerRight.Load())
	assert.Equal(t, Pick{Kind: PickTile, X: 3, Y: 4}, outside.Load(), "clamped to the lower left corner")
	assert.Equal(t, uint64(5), f.diag.Stats().PickerUpdated)
}

func TestStalePickerValueIsKept(t *testing.T) {
	f := newFixture(t, quadrantWorld, smallSettings())

	var v PickerValue
	v.Store(EncodeEntity(77))
	f.r.QueueReadPickerValue(1, 0, &v)
	renderFrame(t, f.r)
	assert.Equal(t, Pick{Kind: PickEntity, ID: 77}, v.Load())
	assert.Equal(t, 1, f.dev.PendingMaps())

	renderFrame(t, f.r)
	assert.Equal(t, Pick{Kind: PickEntity, ID: 1}, v.Load())
	assert.Zero(t, f.dev.PendingMaps())
}

func TestSubmissionOrder(t *testing.T) {
	f := newFixture(t, quadrantWorld, smallSettings())
	for i := 0; i < 3; i++ {
		f.dev.SoftQueue().Reset()
		info := renderFrame(t, f.r)

		labels := f.dev.SoftQueue().Labels()
		assert.Equal(t, SubmissionOrder[:], labels)
		assert.Equal(t, labels, info.Submitted)

		index := map[string]int{}
		for i, l := range labels {
			index[l] = i
		}
		assert.Greater(t, index[LabelDeferredScreen], index[LabelDirectionalShadow])
		assert.Greater(t, index[LabelDeferredScreen], index[LabelPointShadow])
		assert.Greater(t, index[LabelDeferredScreen], index[LabelDeferredGeometry])
	}
	assert.Equal(t, 3, f.surface.Presented())
}

func TestFrameSlotsArePeriodic(t *testing.T) {
	for _, depth := range []int{1, 2} {
		s := smallSettings()
		s.Buffering = depth
		f := newFixture(t, nil, s)
		for i := 0; i < 7; i++ {
			info := renderFrame(t, f.r)
			assert.Equal(t, i%depth, info.Slot, "depth %d frame %d", depth, i)
			assert.Equal(t, uint64(i), info.Frame)
		}
	}
}

func TestBufferingDepthChange(t *testing.T) {
	f := newFixture(t, nil, smallSettings())
	renderFrame(t, f.r)
	assert.Len(t, f.r.slots, 2)

	f.r.SetBufferingDepth(1)
	assert.Len(t, f.r.slots, 2, "applied between frames")
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, renderFrame(t, f.r).Slot)
	}
	assert.Len(t, f.r.slots, 1)
	assert.Equal(t, 1, f.surface.Current().BufferCount)
}

func TestShadowDetailAppliesNextFrame(t *testing.T) {
	s := smallSettings()
	s.Buffering = 1
	f := newFixture(t, nil, s)

	k := renderFrame(t, f.r)
	assert.Equal(t, uint32(1024), k.ShadowResolution)
	assert.Equal(t, uint32(256), k.PointShadowResolution)

	f.r.SetShadowDetail(ShadowMedium)
	assert.Equal(t, ShadowLow, f.r.ShadowDetail())
	assert.Equal(t, uint32(1024), f.r.slots[0].directional.Resolution())
	old := f.r.slots[0].directional.Depth.(*soft.Texture)

	next := renderFrame(t, f.r)
	assert.Equal(t, uint32(2048), next.ShadowResolution)
	assert.Equal(t, uint32(512), next.PointShadowResolution)
	assert.Equal(t, ShadowMedium, f.r.ShadowDetail())
	assert.True(t, old.Released())
	assert.Equal(t, uint32(2048), f.r.slots[0].directional.Depth.Size().Width)
}

func TestResizeRecreatesTargets(t *testing.T) {
	s := smallSettings()
	s.Width, s.Height = 800, 600
	f := newFixture(t, nil, s)

	before := renderFrame(t, f.r)
	assert.Equal(t, uint32(800), before.Width)
	assert.Equal(t, uint32(832), before.PickerWidth)

	f.r.UpdateWindowSize(1920, 1080)
	assert.True(t, f.r.Presenter().IsInvalid())

	after := renderFrame(t, f.r)
	assert.False(t, f.r.Presenter().IsInvalid())
	assert.Equal(t, uint32(1920), after.Width)
	assert.Equal(t, uint32(1080), after.Height)
	assert.Equal(t, uint32(1920), after.PickerWidth)
	assert.Zero(t, after.PickerWidth%64)

	cfg := f.surface.Current()
	assert.Equal(t, uint32(1920), cfg.Width)
	assert.Equal(t, uint32(1080), cfg.Height)
	for _, set := range f.r.slots {
		assert.Equal(t, gfx.Extent{Width: 1920, Height: 1080, Layers: 1}, set.deferred.Size())
		assert.Equal(t, uint32(1920), set.picker.PaddedWidth())
		assert.Equal(t, uint32(1920), set.overlay.Texture.Size().Width)
	}
}

func TestPointShadowsShareOneCommandBuffer(t *testing.T) {
	f := newFixture(t, func(t *testing.T, dev gfx.Device) *flatWorld {
		w := quadrantWorld(t, dev)
		w.lights = []PointLight{
			{Position: glm.Vec3{0, 0, 1}, Color: glm.Vec3{1, 0, 0}, Range: 3},
			{Position: glm.Vec3{0, 0, -1}, Color: glm.Vec3{0, 0, 1}, Range: 3},
			{Position: glm.Vec3{5, 5, 5}, Range: 1},
		}
		return w
	}, smallSettings())

	info := renderFrame(t, f.r)
	assert.Equal(t, 2, info.PointLights, "lights past the limit cast no shadow")

	point := submission(t, f.dev, LabelPointShadow)
	assert.Len(t, point.Passes, 2*CubeFaces)

	// markers cast no shadow, so one quarter stays empty
	target := f.r.slots[info.Slot].point
	depth := target.Depth.(*soft.Texture)
	assert.Equal(t, 3, covered(depth, target.Layer(0, 5), 64, 192), "first light looks down -Z at the quads")
	assert.Equal(t, 3, covered(depth, target.Layer(1, 4), 64, 192), "second light looks up +Z at the quads")
	assert.Zero(t, covered(depth, target.Layer(0, 4), 64, 192), "nothing behind the first light")

	sun := f.r.slots[info.Slot].directional.Depth.(*soft.Texture)
	assert.Equal(t, 3, covered(sun, 0, 384, 640))
}

func TestBindsOncePerCategory(t *testing.T) {
	f := newFixture(t, quadrantWorld, smallSettings())
	renderFrame(t, f.r)

	picker := submission(t, f.dev, LabelPickerRender).Passes[0]
	assert.Equal(t, 4, picker.Draws)
	assert.Equal(t, 3, picker.PipelineBinds, "tiles, entities and markers")

	geometry := submission(t, f.dev, LabelDeferredGeometry).Passes[0]
	assert.Equal(t, 3, geometry.Draws)
	assert.Equal(t, 2, geometry.PipelineBinds, "terrain and models")

	sun := submission(t, f.dev, LabelDirectionalShadow).Passes[0]
	assert.Equal(t, 3, sun.Draws, "markers cast no shadow")
	assert.Equal(t, 1, sun.PipelineBinds)
}

func TestFormatChangeRebuildsPipelines(t *testing.T) {
	f := newFixture(t, nil, smallSettings())
	renderFrame(t, f.r)
	assert.Equal(t, gfx.FormatBGRA8UnormSrgb, f.r.pipelines.Format())

	f.surface.SetPreferredFormat(gfx.FormatRGBA8UnormSrgb)
	f.r.Presenter().Invalidate()
	renderFrame(t, f.r)
	assert.Equal(t, gfx.FormatRGBA8UnormSrgb, f.r.pipelines.Format())
	desc := f.r.pipelines.Get(SubRendererAmbient).(*soft.Pipeline).Descriptor()
	assert.Equal(t, []gfx.Format{gfx.FormatRGBA8UnormSrgb}, desc.ColorFormats)
}

func TestRecoverableAcquireKeepsRendering(t *testing.T) {
	f := newFixture(t, nil, smallSettings())
	f.surface.QueueOutcomes(soft.Fail(gfx.SurfaceErrorTimeout), soft.Outcome{})
	renderFrame(t, f.r)
	f.surface.QueueOutcomes(soft.Fail(gfx.SurfaceErrorOutdated), soft.Outcome{})
	renderFrame(t, f.r)

	st := f.diag.Stats()
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, uint64(2), st.AcquireRetry)
}

func TestFatalAcquireEndsFrame(t *testing.T) {
	f := newFixture(t, nil, smallSettings())
	f.surface.QueueOutcomes(soft.Fail(gfx.SurfaceErrorLost), soft.Fail(gfx.SurfaceErrorLost))

	_, err := f.r.RenderFrame(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrSurfaceFatal, errors.Cause(err))
	assert.Empty(t, f.dev.SoftQueue().Submissions())
	assert.Zero(t, f.surface.Presented())
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, nil, smallSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.r.RenderFrame(ctx)
	assert.Equal(t, context.Canceled, err)
	assert.Zero(t, f.surface.Acquires())
}

func TestTargetAllocationIsFatal(t *testing.T) {
	dev := soft.NewDevice()
	dev.FailTextures = true
	_, err := NewRenderer(dev, soft.NewSurface(gfx.FormatBGRA8Unorm), &flatWorld{}, nil, smallSettings(), diag.New(quietLogger()), quietLogger())
	assert.Error(t, err)
}

func TestDebugCameraKeepsMainCulling(t *testing.T) {
	f := newFixture(t, quadrantWorld, smallSettings())
	// looks away from every quad
	away := Camera{View: glm.Translate3D(100, 0, 0), Projection: glm.Ident4()}
	f.r.SetDebugCamera(&away)

	var v PickerValue
	f.r.QueueReadPickerValue(1, 0, &v)
	info := renderFrame(t, f.r)
	renderFrame(t, f.r)

	assert.Equal(t, 4, info.Objects, "culled with the world camera")
	assert.Equal(t, Pick{}, v.Load(), "drawn with the debug camera")
}

func TestClearedInterfaceReachesEverySlot(t *testing.T) {
	f := newFixture(t, nil, smallSettings())
	ui := f.r.ui.(*StaticInterface)
	ui.Quads = []DrawInstruction{quadrant(unitQuad(t, f.dev), -0.5, 0.5, 0xdeadbeef)}

	overlay := func(slot int) uint32 {
		return f.r.slots[slot].overlay.Texture.(*soft.Texture).At(1, 0, 0)
	}
	renderFrame(t, f.r)
	renderFrame(t, f.r)
	assert.Equal(t, uint32(0xdeadbeef), overlay(0))
	assert.Equal(t, uint32(0xdeadbeef), overlay(1))

	ui.Quads = nil
	ui.Invalidate()
	for i := 0; i < 4; i++ {
		info := renderFrame(t, f.r)
		assert.Zero(t, overlay(info.Slot), "frame %d", info.Frame)
	}
	assert.Zero(t, overlay(0))
	assert.Zero(t, overlay(1))
}

func TestOneDeviceWaitBeforeRecording(t *testing.T) {
	f := newFixture(t, quadrantWorld, smallSettings())
	renderFrame(t, f.r)
	for i := 0; i < 3; i++ {
		created := len(f.dev.CommandBuffers())
		polls := f.dev.Polls()
		renderFrame(t, f.r)
		assert.Equal(t, polls+1, f.dev.Polls())

		buffers := f.dev.CommandBuffers()[created:]
		assert.Len(t, buffers, len(SubmissionOrder))
		for _, cb := range buffers {
			assert.Equal(t, polls+1, cb.Generation(), cb.Label())
		}
	}
}

func TestFailedFrameReleasesRecordings(t *testing.T) {
	f := newFixture(t, quadrantWorld, smallSettings())
	var v PickerValue
	f.r.QueueReadPickerValue(1, 0, &v)
	f.dev.FailEncoder = LabelDeferredScreen

	_, err := f.r.RenderFrame(context.Background())
	require.Error(t, err)
	require.NotEmpty(t, f.dev.CommandBuffers())
	for _, cb := range f.dev.CommandBuffers() {
		assert.True(t, cb.Released(), cb.Label())
		assert.False(t, cb.Submitted(), cb.Label())
	}
	assert.Empty(t, f.dev.SoftQueue().Submissions())
	assert.Zero(t, f.r.slots[0].picker.PendingReads())
	assert.Zero(t, f.dev.PendingMaps())

	// the next pick still copies the id image
	f.dev.FailEncoder = ""
	f.r.QueueReadPickerValue(1, 0, &v)
	renderFrame(t, f.r)
	renderFrame(t, f.r)
	assert.Equal(t, Pick{Kind: PickEntity, ID: 1}, v.Load())
}
