// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/korender/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

func vertexBindingDescriptions() []vk.VertexInputBindingDescription {
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    gfx.VertexStride,
		InputRate: vk.VertexInputRateVertex,
	}}
}

func vertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{{
		Location: 0,
		Binding:  0,
		Format:   vk.FormatR32g32b32Sfloat,
		Offset:   0,
	}, {
		Location: 1,
		Binding:  0,
		Format:   vk.FormatR32g32b32Sfloat,
		Offset:   12,
	}, {
		Location: 2,
		Binding:  0,
		Format:   vk.FormatR32g32Sfloat,
		Offset:   24,
	}}
}

func blendAttachment(blend bool) vk.PipelineColorBlendAttachmentState {
	if !blend {
		return vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: 0xF,
			BlendEnable:    vk.False,
		}
	}
	return vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask:      0xF,
	}
}

func (d *Device) newPipeline(desc gfx.PipelineDescriptor) (*Pipeline, error) {
	vert, frag, err := d.shaders.Get(desc.Shader)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", desc.Label)
	}

	// Pipelines only need a compatible pass, load operations and layouts
	// do not take part in compatibility.
	var keys []attachmentKey
	for _, f := range desc.ColorFormats {
		keys = append(keys, attachmentKey{
			format:  vkFormat(f),
			initial: vk.ImageLayoutUndefined,
			final:   vk.ImageLayoutColorAttachmentOptimal,
		})
	}
	if desc.DepthFormat != gfx.FormatUndefined {
		keys = append(keys, attachmentKey{
			format:  vkFormat(desc.DepthFormat),
			initial: vk.ImageLayoutUndefined,
			final:   vk.ImageLayoutDepthStencilAttachmentOptimal,
			depth:   true,
		})
	}
	for _, k := range keys {
		if k.format == vk.FormatUndefined {
			return nil, errors.Errorf("pipeline %q has an unsupported attachment format", desc.Label)
		}
	}
	renderPass, err := d.renderPass(keys)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", desc.Label)
	}

	vertModule, err := d.createShaderModule(vert)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q vertex shader", desc.Label)
	}
	defer vk.DestroyShaderModule(d.device, vertModule, nil)
	fragModule, err := d.createShaderModule(frag)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q fragment shader", desc.Label)
	}
	defer vk.DestroyShaderModule(d.device, fragModule, nil)

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vertModule,
		PName:  safeString("main"),
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: fragModule,
		PName:  safeString("main"),
	}}

	blends := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColorFormats))
	for i, f := range desc.ColorFormats {
		// integer attachments can not be blended
		blends[i] = blendAttachment(desc.Blend && f != gfx.FormatR32Uint)
	}

	var depthTest vk.Bool32 = vk.False
	if desc.DepthTest {
		depthTest = vk.True
	}

	attributes := vertexAttributeDescriptions()
	bindings := vertexBindingDescriptions()

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       depthTest,
			DepthWriteEnable:      depthTest,
			DepthCompareOp:        vk.CompareOpLess,
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: uint32(len(blends)),
			PAttachments:    blends,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     d.layout,
		RenderPass: renderPass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vkError("CreateGraphicsPipelines", vk.CreateGraphicsPipelines(d.device, d.pipelineCache, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", desc.Label)
	}
	return &Pipeline{
		device:   d,
		desc:     desc,
		pipeline: pipelines[0],
	}, nil
}

func (d *Device) createShaderModule(code []byte) (vk.ShaderModule, error) {
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    SliceUint32(code),
	}
	var module vk.ShaderModule
	if err := vkError("CreateShaderModule", vk.CreateShaderModule(d.device, &smci, nil, &module)); err != nil {
		return nil, err
	}
	return module, nil
}
