// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/utility/kar"
	vk "github.com/devblok/vulkan"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spirv(words ...uint32) []byte {
	out := binary.LittleEndian.AppendUint32(nil, spirvMagic)
	for _, w := range words {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

func TestFormats(t *testing.T) {
	for f, v := range formats {
		assert.Equal(t, v, vkFormat(f))
		assert.Equal(t, f, gfxFormat(v), f.String())
	}
	assert.Equal(t, vk.FormatUndefined, vkFormat(gfx.FormatUndefined))
	assert.Equal(t, gfx.FormatUndefined, gfxFormat(vk.FormatR64Sfloat))

	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspectOf(gfx.FormatDepth32Float))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), aspectOf(gfx.FormatR32Uint))
	assert.True(t, nearestOnly(gfx.FormatR32Uint))
	assert.True(t, nearestOnly(gfx.FormatDepth16Unorm))
	assert.False(t, nearestOnly(gfx.FormatRGBA16Float))
}

func TestRestingLayout(t *testing.T) {
	cases := []struct {
		desc gfx.TextureDescriptor
		want vk.ImageLayout
	}{
		{gfx.TextureDescriptor{Format: gfx.FormatRGBA8Unorm, Usage: gfx.TextureUsageRenderAttachment | gfx.TextureUsageSampled}, vk.ImageLayoutShaderReadOnlyOptimal},
		{gfx.TextureDescriptor{Format: gfx.FormatDepth32Float, Usage: gfx.TextureUsageRenderAttachment | gfx.TextureUsageSampled}, vk.ImageLayoutShaderReadOnlyOptimal},
		{gfx.TextureDescriptor{Format: gfx.FormatR32Uint, Usage: gfx.TextureUsageRenderAttachment | gfx.TextureUsageCopySrc}, vk.ImageLayoutTransferSrcOptimal},
		{gfx.TextureDescriptor{Format: gfx.FormatDepth32Float, Usage: gfx.TextureUsageRenderAttachment}, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{gfx.TextureDescriptor{Format: gfx.FormatBGRA8UnormSrgb, Usage: gfx.TextureUsageRenderAttachment}, vk.ImageLayoutColorAttachmentOptimal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, restingLayout(c.desc), c.desc.Format.String())
	}
}

func TestUsage(t *testing.T) {
	depth := imageUsage(gfx.TextureDescriptor{Format: gfx.FormatDepth16Unorm, Usage: gfx.TextureUsageRenderAttachment | gfx.TextureUsageSampled})
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit|vk.ImageUsageSampledBit), depth)
	picker := imageUsage(gfx.TextureDescriptor{Format: gfx.FormatR32Uint, Usage: gfx.TextureUsageRenderAttachment | gfx.TextureUsageCopySrc})
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferSrcBit), picker)

	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageTransferDstBit), bufferUsage(gfx.BufferUsageMapRead|gfx.BufferUsageCopyDst))
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), bufferUsage(gfx.BufferUsageVertex))
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), bufferUsage(0))
}

func TestPresentMode(t *testing.T) {
	assert.Equal(t, vk.PresentModeFifo, vkPresentMode(gfx.PresentModeFifo))
	assert.Equal(t, vk.PresentModeMailbox, vkPresentMode(gfx.PresentModeMailbox))
	assert.Equal(t, vk.PresentModeImmediate, vkPresentMode(gfx.PresentModeImmediate))
}

func TestSurfaceErrorKind(t *testing.T) {
	assert.Equal(t, gfx.SurfaceErrorTimeout, surfaceErrorKind(vk.Timeout))
	assert.Equal(t, gfx.SurfaceErrorTimeout, surfaceErrorKind(vk.NotReady))
	assert.Equal(t, gfx.SurfaceErrorOutdated, surfaceErrorKind(vk.ErrorOutOfDate))
	assert.Equal(t, gfx.SurfaceErrorLost, surfaceErrorKind(vk.ErrorSurfaceLost))
	assert.Equal(t, gfx.SurfaceErrorOutOfMemory, surfaceErrorKind(vk.ErrorOutOfHostMemory))
	assert.Equal(t, gfx.SurfaceErrorOutOfMemory, surfaceErrorKind(vk.ErrorOutOfDeviceMemory))
	assert.Equal(t, gfx.SurfaceErrorOther, surfaceErrorKind(vk.ErrorDeviceLost))
}

func TestClipCorrection(t *testing.T) {
	near := clipCorrection.Mul4x1(glm.Vec4{0.5, 0.5, -1, 1})
	far := clipCorrection.Mul4x1(glm.Vec4{0.5, 0.5, 1, 1})
	assert.InDelta(t, 0, near.Z(), 1e-6)
	assert.InDelta(t, 1, far.Z(), 1e-6)
	assert.InDelta(t, -0.5, near.Y(), 1e-6)
	assert.InDelta(t, 0.5, near.X(), 1e-6)
	assert.InDelta(t, 1, far.W(), 1e-6)
}

func TestPushConstantSize(t *testing.T) {
	assert.Equal(t, uint32(68), pushConstantSize)
}

func TestSliceUint32(t *testing.T) {
	assert.Nil(t, SliceUint32([]byte{1, 2, 3}))
	words := SliceUint32(spirv(7, 9))
	require.Len(t, words, 3)
	assert.Equal(t, []uint32{spirvMagic, 7, 9}, words)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(2), clamp(1, 2, 4))
	assert.Equal(t, uint32(4), clamp(9, 2, 4))
	assert.Equal(t, uint32(3), clamp(3, 2, 4))
}

func TestParseShaderName(t *testing.T) {
	cases := []struct {
		file string
		name string
		typ  ShaderType
		ok   bool
	}{
		{"shaders/deferred.frag.spv", "deferred", FragmentShaderType, true},
		{"mesh.vert.spv", "mesh", VertexShaderType, true},
		{"mesh.vert", "", UnknownShaderType, false},
		{"mesh.geom.spv", "", UnknownShaderType, false},
		{"a.b.frag.spv", "", UnknownShaderType, false},
		{".frag.spv", "", UnknownShaderType, false},
	}
	for _, c := range cases {
		name, typ, ok := parseShaderName(c.file)
		assert.Equal(t, c.ok, ok, c.file)
		assert.Equal(t, c.name, name, c.file)
		assert.Equal(t, c.typ, typ, c.file)
	}
}

func TestShaderLibrary(t *testing.T) {
	lib := NewShaderLibrary()
	require.NoError(t, lib.Add("mesh.vert.spv", spirv(1)))
	require.NoError(t, lib.Add("geometry.frag.spv", spirv(2)))
	require.NoError(t, lib.Add("screen.vert.spv", spirv(3)))
	require.NoError(t, lib.Add("screen.frag.spv", spirv(4)))
	require.NoError(t, lib.Add("README.md", []byte("skipped")))

	assert.Error(t, lib.Add("bad.frag.spv", []byte{1, 2, 3, 4}))
	assert.Error(t, lib.Add("odd.frag.spv", append(spirv(), 0)))

	vert, frag, err := lib.Get("geometry")
	require.NoError(t, err)
	assert.Equal(t, spirv(1), vert)
	assert.Equal(t, spirv(2), frag)

	vert, frag, err = lib.Get("screen")
	require.NoError(t, err)
	assert.Equal(t, spirv(3), vert)
	assert.Equal(t, spirv(4), frag)

	_, _, err = lib.Get("mesh")
	assert.Equal(t, ErrShaderNotFound, errors.Cause(err))
	_, _, err = lib.Get("bad")
	assert.Equal(t, ErrShaderNotFound, errors.Cause(err))

	assert.Equal(t, []string{"geometry", "screen"}, lib.Names())
}

func TestShaderLibraryMissingVertex(t *testing.T) {
	lib := NewShaderLibrary()
	require.NoError(t, lib.Add("picker.frag.spv", spirv()))
	_, _, err := lib.Get("picker")
	assert.Equal(t, ErrShaderNotFound, errors.Cause(err))
}

func TestLoadShadersDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "deferred"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mesh.vert.spv"), spirv(1), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deferred", "geometry.frag.spv"), spirv(2), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "geometry.frag"), []byte("void main() {}"), 0644))

	lib, err := LoadShaders(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"geometry"}, lib.Names())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.frag.spv"), []byte("text"), 0644))
	_, err = LoadShaders(dir)
	assert.Error(t, err)
}

func TestLoadShadersArchive(t *testing.T) {
	builder, err := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	require.NoError(t, err)
	defer builder.Close()
	require.NoError(t, builder.Add("shaders/mesh.vert.spv", bytes.NewReader(spirv(1))))
	require.NoError(t, builder.Add("shaders/interface.frag.spv", bytes.NewReader(spirv(5))))
	require.NoError(t, builder.Add("shaders/interface.frag", bytes.NewReader([]byte("source"))))

	path := filepath.Join(t.TempDir(), "shaders.kar")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = builder.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lib, err := LoadShaders(path)
	require.NoError(t, err)
	vert, frag, err := lib.Get("interface")
	require.NoError(t, err)
	assert.Equal(t, spirv(1), vert)
	assert.Equal(t, spirv(5), frag)
}

func TestLoadShadersUnknownFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shaders.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip"), 0644))
	_, err := LoadShaders(path)
	assert.Error(t, err)
}

func TestLoadShadersEmbedded(t *testing.T) {
	lib, err := LoadShaders(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.NotNil(t, lib)
}
