// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"encoding/binary"
	"image"
	"testing"

	"github.com/devblok/korender/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quad(z float32) []byte {
	return gfx.EncodeVertices([]gfx.Vertex{
		{Position: glm.Vec3{-1, -1, z}},
		{Position: glm.Vec3{1, -1, z}},
		{Position: glm.Vec3{1, 1, z}},
		{Position: glm.Vec3{-1, -1, z}},
		{Position: glm.Vec3{1, 1, z}},
		{Position: glm.Vec3{-1, 1, z}},
	})
}

func idTarget(t *testing.T, d *Device, w, h uint32) (gfx.Texture, gfx.Texture) {
	color, err := d.CreateTexture(gfx.TextureDescriptor{
		Label:  "ids",
		Size:   gfx.Extent{Width: w, Height: h, Layers: 1},
		Format: gfx.FormatR32Uint,
	})
	require.NoError(t, err)
	depth, err := d.CreateTexture(gfx.TextureDescriptor{
		Label:  "depth",
		Size:   gfx.Extent{Width: w, Height: h, Layers: 1},
		Format: gfx.FormatDepth32Float,
	})
	require.NoError(t, err)
	return color, depth
}

func TestRasterizeQuad(t *testing.T) {
	d := NewDevice()
	color, depth := idTarget(t, d, 4, 4)
	pl, err := d.CreatePipeline(gfx.PipelineDescriptor{Label: "ids", Shader: "picker", DepthTest: true})
	require.NoError(t, err)

	near, err := d.CreateBuffer(gfx.BufferDescriptor{Label: "near"}, quad(0.2))
	require.NoError(t, err)
	far, err := d.CreateBuffer(gfx.BufferDescriptor{Label: "far"}, quad(0.8))
	require.NoError(t, err)

	enc, err := d.CreateCommandEncoder("test")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(gfx.RenderPassDescriptor{
		Color: []gfx.Attachment{{Texture: color, Load: gfx.LoadOpClear}},
		Depth: &gfx.Attachment{Texture: depth, Load: gfx.LoadOpClear, ClearDepth: 1},
	})
	pass.SetPipeline(pl)
	pass.SetVertexBuffer(near)
	pass.SetPushConstants(gfx.PushConstants{Transform: glm.Ident4(), Value: 7})
	pass.Draw(6, 1)
	pass.SetVertexBuffer(far)
	pass.SetPushConstants(gfx.PushConstants{Transform: glm.Ident4(), Value: 9})
	pass.Draw(6, 1)
	pass.End()

	assert.Equal(t, uint32(0), color.(*Texture).At(0, 0, 0), "nothing runs before submission")
	require.NoError(t, d.Queue().Submit(enc.Finish()))

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, uint32(7), color.(*Texture).At(x, y, 0))
			assert.InDelta(t, 0.2, depth.(*Texture).DepthAt(x, y, 0), 1e-6)
		}
	}
}

func TestCopyAndMap(t *testing.T) {
	d := NewDevice()
	color, _ := idTarget(t, d, 4, 2)
	pl, err := d.CreatePipeline(gfx.PipelineDescriptor{Shader: "picker"})
	require.NoError(t, err)
	vb, err := d.CreateBuffer(gfx.BufferDescriptor{}, quad(0.5))
	require.NoError(t, err)
	staging, err := d.CreateBuffer(gfx.BufferDescriptor{Size: 2 * gfx.CopyRowAlignment}, nil)
	require.NoError(t, err)

	enc, err := d.CreateCommandEncoder("copy")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(gfx.RenderPassDescriptor{
		Color: []gfx.Attachment{{Texture: color, Load: gfx.LoadOpClear}},
	})
	pass.SetPipeline(pl)
	pass.SetVertexBuffer(vb)
	pass.SetPushConstants(gfx.PushConstants{Transform: glm.Ident4(), Value: 0xabcd})
	pass.Draw(6, 1)
	pass.End()
	enc.CopyTextureToBuffer(
		gfx.TextureCopy{Texture: color},
		gfx.BufferCopy{Buffer: staging, BytesPerRow: gfx.CopyRowAlignment},
		image.Pt(4, 2),
	)
	cb := enc.Finish()
	require.NoError(t, d.Queue().Submit(cb))
	assert.Error(t, d.Queue().Submit(cb), "double submission")

	var got uint32
	staging.MapAsync(gfx.CopyRowAlignment+3*4, 4, func(b []byte, err error) {
		require.NoError(t, err)
		got = binary.LittleEndian.Uint32(b)
	})
	assert.Equal(t, uint32(0), got)
	assert.Equal(t, 1, d.PendingMaps())
	require.NoError(t, d.Poll(true))
	assert.Equal(t, uint32(0xabcd), got)
	assert.Equal(t, 0, d.PendingMaps())
}

func TestTextureValidation(t *testing.T) {
	d := NewDevice()
	_, err := d.CreateTexture(gfx.TextureDescriptor{Format: gfx.FormatR32Uint, Size: gfx.Extent{Width: 0, Height: 4}})
	assert.Error(t, err)
	_, err = d.CreateTexture(gfx.TextureDescriptor{Format: gfx.FormatDepth32Float, Size: gfx.Extent{Width: 4, Height: 4, Layers: 5}, Cube: true})
	assert.Error(t, err)
	d.FailTextures = true
	_, err = d.CreateTexture(gfx.TextureDescriptor{Format: gfx.FormatR32Uint, Size: gfx.Extent{Width: 4, Height: 4}})
	assert.Error(t, err)
}

func TestSurfaceScript(t *testing.T) {
	s := NewSurface(gfx.FormatBGRA8UnormSrgb)
	_, err := s.Acquire()
	assert.Equal(t, gfx.SurfaceErrorOutdated, gfx.SurfaceErrorKindOf(err))

	require.NoError(t, s.Configure(gfx.SurfaceConfiguration{Format: gfx.FormatBGRA8UnormSrgb, BufferCount: 2, Width: 8, Height: 8}))
	s.QueueOutcomes(Fail(gfx.SurfaceErrorTimeout), Suboptimal())

	_, err = s.Acquire()
	assert.Equal(t, gfx.SurfaceErrorTimeout, gfx.SurfaceErrorKindOf(err))
	st, err := s.Acquire()
	require.NoError(t, err)
	assert.True(t, st.Suboptimal)
	assert.Equal(t, uint32(8), st.Texture.Size().Width)
	require.NoError(t, s.Present(st))
	assert.Equal(t, 1, s.Presented())
	assert.Equal(t, 3, s.Acquires())
}
