// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/korender/gfx"
	vk "github.com/devblok/vulkan"
)

var formats = map[gfx.Format]vk.Format{
	gfx.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	gfx.FormatBGRA8UnormSrgb: vk.FormatB8g8r8a8Srgb,
	gfx.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	gfx.FormatRGBA8UnormSrgb: vk.FormatR8g8b8a8Srgb,
	gfx.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	gfx.FormatR8Unorm:        vk.FormatR8Unorm,
	gfx.FormatR32Uint:        vk.FormatR32Uint,
	gfx.FormatDepth16Unorm:   vk.FormatD16Unorm,
	gfx.FormatDepth32Float:   vk.FormatD32Sfloat,
}

// vkFormat returns the vulkan format of f, vk.FormatUndefined if
// there is none.
func vkFormat(f gfx.Format) vk.Format {
	if v, ok := formats[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

// gfxFormat is the inverse of vkFormat.
func gfxFormat(v vk.Format) gfx.Format {
	for f, vf := range formats {
		if vf == v {
			return f
		}
	}
	return gfx.FormatUndefined
}

func aspectOf(f gfx.Format) vk.ImageAspectFlags {
	if f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func vkPresentMode(m gfx.PresentMode) vk.PresentMode {
	switch m {
	case gfx.PresentModeMailbox:
		return vk.PresentModeMailbox
	case gfx.PresentModeImmediate:
		return vk.PresentModeImmediate
	}
	return vk.PresentModeFifo
}

func imageUsage(desc gfx.TextureDescriptor) vk.ImageUsageFlags {
	var usage vk.ImageUsageFlagBits
	if desc.Usage&gfx.TextureUsageRenderAttachment != 0 {
		if desc.Format.IsDepth() {
			usage |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			usage |= vk.ImageUsageColorAttachmentBit
		}
	}
	if desc.Usage&gfx.TextureUsageSampled != 0 {
		usage |= vk.ImageUsageSampledBit
	}
	if desc.Usage&gfx.TextureUsageCopySrc != 0 {
		usage |= vk.ImageUsageTransferSrcBit
	}
	if desc.Usage&gfx.TextureUsageCopyDst != 0 {
		usage |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(usage)
}

func bufferUsage(u gfx.BufferUsage) vk.BufferUsageFlags {
	var usage vk.BufferUsageFlagBits
	if u&gfx.BufferUsageVertex != 0 {
		usage |= vk.BufferUsageVertexBufferBit
	}
	if u&gfx.BufferUsageUniform != 0 {
		usage |= vk.BufferUsageUniformBufferBit
	}
	if u&(gfx.BufferUsageCopyDst|gfx.BufferUsageMapRead) != 0 {
		usage |= vk.BufferUsageTransferDstBit
	}
	if usage == 0 {
		usage = vk.BufferUsageTransferSrcBit
	}
	return vk.BufferUsageFlags(usage)
}

// restingLayout is the layout a texture is kept in between passes.
// Render passes transition back to it, copies start from it.
func restingLayout(desc gfx.TextureDescriptor) vk.ImageLayout {
	switch {
	case desc.Usage&gfx.TextureUsageSampled != 0:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case desc.Usage&gfx.TextureUsageCopySrc != 0:
		return vk.ImageLayoutTransferSrcOptimal
	case desc.Format.IsDepth():
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	return vk.ImageLayoutColorAttachmentOptimal
}

// nearestOnly reports whether a format can not be linearly filtered.
func nearestOnly(f gfx.Format) bool {
	return f == gfx.FormatR32Uint || f.IsDepth()
}
