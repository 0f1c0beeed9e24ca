// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/devblok/korender/gfx"
	vk "github.com/devblok/vulkan"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// descriptorSetsPerPool is the number of SetTextures calls a single
// descriptor pool serves, encoders chain pools when it runs out.
const descriptorSetsPerPool = 64

// clipCorrection converts OpenGL clip space, which the render package
// produces, to Vulkan clip space: y points down and depth is 0..1.
var clipCorrection = glm.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Queue implements gfx.Queue.
type Queue struct {
	device *Device
}

// Submit implements interface. All buffers are submitted in one batch
// guarded by a single fence.
func (q *Queue) Submit(buffers ...gfx.CommandBuffer) error {
	d := q.device
	if d.isReleased() {
		return ErrReleased
	}

	cbs := make([]*CommandBuffer, 0, len(buffers))
	handles := make([]vk.CommandBuffer, 0, len(buffers))
	var err error
	for _, b := range buffers {
		cb, ok := b.(*CommandBuffer)
		switch {
		case !ok:
			err = errors.Errorf("foreign command buffer %q", b.Label())
		case cb.submitted:
			err = errors.Errorf("command buffer %q submitted twice", cb.label)
		case cb.err != nil:
			err = errors.Wrapf(cb.err, "command buffer %q", cb.label)
		}
		if err != nil {
			break
		}
		cb.submitted = true
		cbs = append(cbs, cb)
		handles = append(handles, cb.encoder.cmd)
	}
	if err != nil {
		for _, cb := range cbs {
			cb.encoder.destroy()
		}
		return err
	}
	if len(cbs) == 0 {
		return nil
	}

	fence, err := d.fence()
	if err != nil {
		return err
	}
	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.queueMu.Lock()
	ret := vk.QueueSubmit(d.queueHandle, 1, []vk.SubmitInfo{si}, fence)
	d.queueMu.Unlock()
	if err := vkError("QueueSubmit", ret); err != nil {
		d.fences = append(d.fences, fence)
		for _, cb := range cbs {
			cb.encoder.destroy()
		}
		return err
	}
	d.submitted++
	d.inflight = append(d.inflight, &batch{
		serial:  d.submitted,
		fence:   fence,
		buffers: cbs,
	})
	return nil
}

// CommandBuffer implements gfx.CommandBuffer.
type CommandBuffer struct {
	label     string
	encoder   *CommandEncoder
	err       error
	submitted bool
}

// Label implements interface
func (c *CommandBuffer) Label() string { return c.label }

// Release implements interface. The encoder's resources are freed right
// away, an unsubmitted buffer was never seen by the GPU.
func (c *CommandBuffer) Release() {
	if c.submitted {
		return
	}
	c.submitted = true
	c.encoder.destroy()
}

// CommandEncoder implements gfx.CommandEncoder. Every encoder owns a
// command pool, so encoders can record on different goroutines.
type CommandEncoder struct {
	device  *Device
	label   string
	pool    vk.CommandPool
	cmd     vk.CommandBuffer
	pools   []vk.DescriptorPool
	sets    int
	frames  []vk.Framebuffer
	err     error
	buffer  *CommandBuffer
	current *RenderPass
}

func (d *Device) newEncoder(label string) (*CommandEncoder, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if err := vkError("CreateCommandPool", vk.CreateCommandPool(d.device, &cpci, nil, &pool)); err != nil {
		return nil, errors.Wrapf(err, "encoder %q", label)
	}

	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vkError("AllocateCommandBuffers", vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		vk.DestroyCommandPool(d.device, pool, nil)
		return nil, errors.Wrapf(err, "encoder %q", label)
	}

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vkError("BeginCommandBuffer", vk.BeginCommandBuffer(commandBuffers[0], &cbbi)); err != nil {
		vk.DestroyCommandPool(d.device, pool, nil)
		return nil, errors.Wrapf(err, "encoder %q", label)
	}

	e := &CommandEncoder{
		device: d,
		label:  label,
		pool:   pool,
		cmd:    commandBuffers[0],
	}
	e.buffer = &CommandBuffer{label: label, encoder: e}
	return e, nil
}

func (e *CommandEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// BeginRenderPass implements interface
func (e *CommandEncoder) BeginRenderPass(desc gfx.RenderPassDescriptor) gfx.RenderPass {
	rp := &RenderPass{encoder: e, label: desc.Label}
	if e.err != nil {
		rp.dead = true
		return rp
	}

	var (
		keys        []attachmentKey
		views       []vk.ImageView
		clearValues []vk.ClearValue
		extent      gfx.Extent
	)
	add := func(a gfx.Attachment, depth bool) bool {
		t, ok := a.Texture.(*Texture)
		if !ok || t.view(a.Layer) == nil {
			e.fail(errors.Errorf("pass %q: unusable attachment", desc.Label))
			return false
		}
		initial := t.resting
		if a.Load == gfx.LoadOpClear {
			initial = vk.ImageLayoutUndefined
		}
		keys = append(keys, attachmentKey{
			format:  t.format,
			load:    a.Load,
			initial: initial,
			final:   t.resting,
			depth:   depth,
		})
		views = append(views, t.view(a.Layer))

		var cv vk.ClearValue
		if depth {
			cv.SetDepthStencil(a.ClearDepth, 0)
		} else {
			cv.SetColor([]float32{a.ClearColor.R, a.ClearColor.G, a.ClearColor.B, a.ClearColor.A})
		}
		clearValues = append(clearValues, cv)
		extent = t.desc.Size
		return true
	}
	for _, a := range desc.Color {
		if !add(a, false) {
			rp.dead = true
			return rp
		}
	}
	if desc.Depth != nil && !add(*desc.Depth, true) {
		rp.dead = true
		return rp
	}

	renderPass, err := e.device.renderPass(keys)
	if err != nil {
		e.fail(err)
		rp.dead = true
		return rp
	}

	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if err := vkError("CreateFramebuffer", vk.CreateFramebuffer(e.device.device, &fci, nil, &framebuffer)); err != nil {
		e.fail(err)
		rp.dead = true
		return rp
	}
	e.frames = append(e.frames, framebuffer)

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{
				Width:  extent.Width,
				Height: extent.Height,
			},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(e.cmd, &rpbi, vk.SubpassContentsInline)

	rp.extent = extent
	rp.SetViewport(image.Rect(0, 0, int(extent.Width), int(extent.Height)))
	e.current = rp
	return rp
}

// CopyTextureToBuffer implements interface
func (e *CommandEncoder) CopyTextureToBuffer(src gfx.TextureCopy, dst gfx.BufferCopy, size image.Point) {
	if e.err != nil {
		return
	}
	t, ok := src.Texture.(*Texture)
	if !ok {
		e.fail(errors.New("copy from a foreign texture"))
		return
	}
	b, ok := dst.Buffer.(*Buffer)
	if !ok {
		e.fail(errors.New("copy to a foreign buffer"))
		return
	}
	bpp := uint32(t.desc.Format.BytesPerPixel())
	if bpp == 0 || dst.BytesPerRow%bpp != 0 {
		e.fail(errors.Errorf("copy from %q: row pitch %d does not fit format %s", t.desc.Label, dst.BytesPerRow, t.desc.Format))
		return
	}

	subresource := vk.ImageSubresourceRange{
		AspectMask:     aspectOf(t.desc.Format),
		LevelCount:     1,
		BaseArrayLayer: src.Layer,
		LayerCount:     1,
	}
	toTransfer := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessTransferReadBit),
		OldLayout:           t.resting,
		NewLayout:           vk.ImageLayoutTransferSrcOptimal,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.image,
		SubresourceRange:    subresource,
	}
	vk.CmdPipelineBarrier(e.cmd,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit|vk.PipelineStageLateFragmentTestsBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toTransfer})

	bic := vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(dst.Offset),
		BufferRowLength:   dst.BytesPerRow / bpp,
		BufferImageHeight: uint32(size.Y),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspectOf(t.desc.Format),
			BaseArrayLayer: src.Layer,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: int32(src.Origin.X), Y: int32(src.Origin.Y)},
		ImageExtent: vk.Extent3D{Width: uint32(size.X), Height: uint32(size.Y), Depth: 1},
	}
	vk.CmdCopyImageToBuffer(e.cmd, t.image, vk.ImageLayoutTransferSrcOptimal, b.buffer, 1, []vk.BufferImageCopy{bic})

	back := toTransfer
	back.SrcAccessMask = vk.AccessFlags(vk.AccessTransferReadBit)
	back.DstAccessMask = 0
	back.OldLayout, back.NewLayout = vk.ImageLayoutTransferSrcOptimal, t.resting
	hostRead := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessHostReadBit),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              b.buffer,
		Offset:              vk.DeviceSize(dst.Offset),
		Size:                vk.DeviceSize(vk.WholeSize),
	}
	vk.CmdPipelineBarrier(e.cmd,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageHostBit|vk.PipelineStageTopOfPipeBit),
		0, 0, nil, 1, []vk.BufferMemoryBarrier{hostRead}, 1, []vk.ImageMemoryBarrier{back})
}

// Finish implements interface
func (e *CommandEncoder) Finish() gfx.CommandBuffer {
	if e.current != nil && !e.current.ended {
		e.current.End()
	}
	if e.err == nil {
		e.fail(vkError("EndCommandBuffer", vk.EndCommandBuffer(e.cmd)))
	}
	e.buffer.err = e.err
	return e.buffer
}

func (e *CommandEncoder) descriptorSet() (vk.DescriptorSet, error) {
	if len(e.pools) == 0 || e.sets == descriptorSetsPerPool {
		poolSizes := []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: descriptorSetsPerPool * MaxTextures,
		}}
		dpci := vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			MaxSets:       descriptorSetsPerPool,
			PoolSizeCount: uint32(len(poolSizes)),
			PPoolSizes:    poolSizes,
		}
		var pool vk.DescriptorPool
		if err := vkError("CreateDescriptorPool", vk.CreateDescriptorPool(e.device.device, &dpci, nil, &pool)); err != nil {
			return nil, err
		}
		e.pools = append(e.pools, pool)
		e.sets = 0
	}

	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     e.pools[len(e.pools)-1],
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{e.device.setLayout},
	}
	var set vk.DescriptorSet
	if err := vkError("AllocateDescriptorSets", vk.AllocateDescriptorSets(e.device.device, &dsai, &set)); err != nil {
		return nil, err
	}
	e.sets++
	return set, nil
}

// destroy frees everything the encoder created, the command buffer must
// not be in use by the GPU.
func (e *CommandEncoder) destroy() {
	dev := e.device.device
	for _, fb := range e.frames {
		vk.DestroyFramebuffer(dev, fb, nil)
	}
	e.frames = nil
	for _, p := range e.pools {
		vk.DestroyDescriptorPool(dev, p, nil)
	}
	e.pools = nil
	if e.pool != nil {
		vk.DestroyCommandPool(dev, e.pool, nil)
		e.pool = nil
	}
}

// RenderPass implements gfx.RenderPass.
type RenderPass struct {
	encoder  *CommandEncoder
	label    string
	extent   gfx.Extent
	pipeline *Pipeline
	dead     bool
	ended    bool
}

func (p *RenderPass) usable() bool {
	return !p.dead && !p.ended && p.encoder.err == nil
}

// SetPipeline implements interface
func (p *RenderPass) SetPipeline(pl gfx.Pipeline) {
	if !p.usable() {
		return
	}
	vp, ok := pl.(*Pipeline)
	if !ok {
		p.encoder.fail(errors.Errorf("pass %q: foreign pipeline", p.label))
		return
	}
	p.pipeline = vp
	vk.CmdBindPipeline(p.encoder.cmd, vk.PipelineBindPointGraphics, vp.pipeline)
}

// SetViewport implements interface
func (p *RenderPass) SetViewport(r image.Rectangle) {
	if !p.usable() {
		return
	}
	r = r.Intersect(image.Rect(0, 0, int(p.extent.Width), int(p.extent.Height)))
	if r.Empty() {
		r = image.Rect(0, 0, 1, 1)
	}
	viewport := vk.Viewport{
		X:        float32(r.Min.X),
		Y:        float32(r.Min.Y),
		Width:    float32(r.Dx()),
		Height:   float32(r.Dy()),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: int32(r.Min.X), Y: int32(r.Min.Y)},
		Extent: vk.Extent2D{Width: uint32(r.Dx()), Height: uint32(r.Dy())},
	}
	vk.CmdSetViewport(p.encoder.cmd, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(p.encoder.cmd, 0, 1, []vk.Rect2D{scissor})
}

// SetTextures implements interface
func (p *RenderPass) SetTextures(textures ...gfx.Texture) {
	if !p.usable() || len(textures) == 0 {
		return
	}
	if len(textures) > MaxTextures {
		p.encoder.fail(errors.Errorf("pass %q: %d textures bound, at most %d are supported", p.label, len(textures), MaxTextures))
		return
	}
	set, err := p.encoder.descriptorSet()
	if err != nil {
		p.encoder.fail(err)
		return
	}

	writes := make([]vk.WriteDescriptorSet, 0, len(textures))
	for i, tex := range textures {
		t, ok := tex.(*Texture)
		if !ok || t.sampled == nil {
			p.encoder.fail(errors.Errorf("pass %q: texture %d can not be sampled", p.label, i))
			return
		}
		sampler := p.encoder.device.linear
		if nearestOnly(t.desc.Format) {
			sampler = p.encoder.device.nearest
		}
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(i),
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   t.sampled,
				ImageLayout: t.resting,
			}},
		})
	}
	vk.UpdateDescriptorSets(p.encoder.device.device, uint32(len(writes)), writes, 0, nil)
	vk.CmdBindDescriptorSets(p.encoder.cmd, vk.PipelineBindPointGraphics, p.encoder.device.layout, 0, 1, []vk.DescriptorSet{set}, 0, nil)
}

// SetVertexBuffer implements interface. A nil buffer binds zeroed vertices.
func (p *RenderPass) SetVertexBuffer(b gfx.Buffer) {
	if !p.usable() {
		return
	}
	vb := p.encoder.device.nullVertices
	if b != nil {
		var ok bool
		if vb, ok = b.(*Buffer); !ok {
			p.encoder.fail(errors.Errorf("pass %q: foreign vertex buffer", p.label))
			return
		}
	}
	vk.CmdBindVertexBuffers(p.encoder.cmd, 0, 1, []vk.Buffer{vb.buffer}, []vk.DeviceSize{0})
}

// SetPushConstants implements interface
func (p *RenderPass) SetPushConstants(pc gfx.PushConstants) {
	if !p.usable() {
		return
	}
	pc.Transform = clipCorrection.Mul4(pc.Transform)
	vk.CmdPushConstants(p.encoder.cmd, p.encoder.device.layout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
		0, pushConstantSize, unsafe.Pointer(&pc))
}

// Draw implements interface
func (p *RenderPass) Draw(vertexCount, instanceCount uint32) {
	if !p.usable() {
		return
	}
	if p.pipeline == nil {
		p.encoder.fail(errors.Errorf("pass %q: draw without a pipeline", p.label))
		return
	}
	vk.CmdDraw(p.encoder.cmd, vertexCount, instanceCount, 0, 0)
}

// End implements interface
func (p *RenderPass) End() {
	if p.ended {
		return
	}
	p.ended = true
	if !p.dead {
		vk.CmdEndRenderPass(p.encoder.cmd)
	}
	if p.encoder.current == p {
		p.encoder.current = nil
	}
}

// attachmentKey describes one attachment of a render pass, passes with
// equal keys are shared.
type attachmentKey struct {
	format  vk.Format
	load    gfx.LoadOp
	initial vk.ImageLayout
	final   vk.ImageLayout
	depth   bool
}

// renderPass returns the cached render pass for the attachments, the depth
// attachment, when present, is the last one.
func (d *Device) renderPass(keys []attachmentKey) (vk.RenderPass, error) {
	id := fmt.Sprint(keys)
	d.passMu.Lock()
	defer d.passMu.Unlock()
	if rp, ok := d.passes[id]; ok {
		return rp, nil
	}
	rp, err := d.createRenderPass(keys)
	if err != nil {
		return nil, err
	}
	d.passes[id] = rp
	return rp, nil
}

func (d *Device) createRenderPass(keys []attachmentKey) (vk.RenderPass, error) {
	var (
		attachments []vk.AttachmentDescription
		colorRefs   []vk.AttachmentReference
		depthRef    *vk.AttachmentReference
	)
	for i, k := range keys {
		load := vk.AttachmentLoadOpLoad
		if k.load == gfx.LoadOpClear {
			load = vk.AttachmentLoadOpClear
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         k.format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         load,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  k.initial,
			FinalLayout:    k.final,
		})
		if k.depth {
			depthRef = &vk.AttachmentReference{
				Attachment: uint32(i),
				Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
			}
			continue
		}
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorRefs)),
		PColorAttachments:       colorRefs,
		PDepthStencilAttachment: depthRef,
	}

	// Passes of one frame are recorded into separate command buffers, the
	// external dependencies order them against each other and copies.
	attachmentStages := vk.PipelineStageColorAttachmentOutputBit |
		vk.PipelineStageEarlyFragmentTestsBit |
		vk.PipelineStageLateFragmentTestsBit
	attachmentWrites := vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(attachmentStages | vk.PipelineStageFragmentShaderBit | vk.PipelineStageTransferBit),
		SrcAccessMask: vk.AccessFlags(attachmentWrites),
		DstStageMask:  vk.PipelineStageFlags(attachmentStages | vk.PipelineStageFragmentShaderBit),
		DstAccessMask: vk.AccessFlags(attachmentWrites |
			vk.AccessColorAttachmentReadBit |
			vk.AccessDepthStencilAttachmentReadBit |
			vk.AccessShaderReadBit),
	}, {
		SrcSubpass:    0,
		DstSubpass:    vk.SubpassExternal,
		SrcStageMask:  vk.PipelineStageFlags(attachmentStages),
		SrcAccessMask: vk.AccessFlags(attachmentWrites),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageTransferBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessTransferReadBit),
	}}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
	var renderPass vk.RenderPass
	if err := vkError("CreateRenderPass", vk.CreateRenderPass(d.device, &rpci, nil, &renderPass)); err != nil {
		return nil, err
	}
	return renderPass, nil
}
