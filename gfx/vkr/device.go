// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"
	"sync"

	"github.com/devblok/korender/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrReleased is returned when a released device is used.
var ErrReleased = errors.New("vkr: device released")

// DeviceConfiguration is used to create a Device.
type DeviceConfiguration struct {
	// Adapter indexes Instance.Adapters
	Adapter int

	// Extensions are enabled on the logical device, the swapchain
	// extension is always enabled.
	Extensions []string

	Shaders *ShaderLibrary
	Logger  log.FieldLogger
}

// Device implements gfx.Device.
type Device struct {
	instance *Instance
	physical vk.PhysicalDevice
	device   vk.Device
	info     gfx.AdapterInfo
	logger   log.FieldLogger

	queue       Queue
	queueFamily uint32
	queueHandle vk.Queue

	// queueMu guards the queue and pool, both need external
	// synchronization.
	queueMu sync.Mutex
	pool    vk.CommandPool

	allocator *MemoryAllocator
	shaders   *ShaderLibrary

	setLayout     vk.DescriptorSetLayout
	layout        vk.PipelineLayout
	pipelineCache vk.PipelineCache
	linear        vk.Sampler
	nearest       vk.Sampler
	nullVertices  *Buffer

	passMu sync.Mutex
	passes map[string]vk.RenderPass

	mu        sync.Mutex
	inflight  []*batch
	fences    []vk.Fence
	maps      []mapRequest
	submitted uint64
	retired   uint64
	released  bool
}

type mapRequest struct {
	buffer       *Buffer
	offset, size uint64
	callback     func([]byte, error)
	serial       uint64
}

// batch is one vk.QueueSubmit guarded by a fence.
type batch struct {
	serial  uint64
	fence   vk.Fence
	buffers []*CommandBuffer
	release []func()
}

// NewDevice creates a logical device able to present to surface.
func NewDevice(inst *Instance, surface vk.Surface, cfg DeviceConfiguration) (*Device, error) {
	if cfg.Adapter < 0 || cfg.Adapter >= len(inst.availableDevices) {
		return nil, errors.Errorf("no adapter %d", cfg.Adapter)
	}
	if cfg.Shaders == nil {
		return nil, errors.New("no shader library")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	d := &Device{
		instance: inst,
		physical: inst.availableDevices[cfg.Adapter],
		shaders:  cfg.Shaders,
		passes:   make(map[string]vk.RenderPass),
		logger:   logger.WithField("backend", "vulkan"),
	}
	d.queue.device = d
	d.info = adapterInfo(d.physical)

	family, err := findQueueFamily(d.physical, surface)
	if err != nil {
		return nil, err
	}
	d.queueFamily = family

	extensions := []string{vk.KhrSwapchainExtensionName}
	for _, ext := range cfg.Extensions {
		if ext != vk.KhrSwapchainExtensionName {
			extensions = append(extensions, ext)
		}
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			ImageCubeArray: vk.True,
		}},
	}
	var device vk.Device
	if err := vkError("CreateDevice", vk.CreateDevice(d.physical, &dci, nil, &device)); err != nil {
		return nil, err
	}
	d.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, family, 0, &queue)
	d.queueHandle = queue
	d.allocator = NewMemoryAllocator(device, d.physical)

	for _, step := range []func() error{
		d.createCommandPool,
		d.createPipelineCache,
		d.createPipelineLayout,
		d.createSamplers,
		d.createNullVertices,
	} {
		if err := step(); err != nil {
			d.Release()
			return nil, err
		}
	}

	d.logger.WithFields(log.Fields{
		"adapter": d.info.Name,
		"family":  family,
	}).Info("vulkan device created")
	return d, nil
}

// findQueueFamily returns a queue family supporting both graphics and
// presentation to surface.
func findQueueFamily(pd vk.PhysicalDevice, surface vk.Surface) (uint32, error) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return 0, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queuefamilies on GPU")
	}
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, queueFamilies)

	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		if surface == vk.NullSurface {
			return i, nil
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, i, surface, &supportsPresent)
		if supportsPresent.B() {
			return i, nil
		}
	}
	return 0, errors.New("vulkan error: could not find a queue family with graphics and present capabilities")
}

func (d *Device) createCommandPool() error {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var commandPool vk.CommandPool
	if err := vkError("CreateCommandPool", vk.CreateCommandPool(d.device, &cpci, nil, &commandPool)); err != nil {
		return err
	}
	d.pool = commandPool
	return nil
}

func (d *Device) createPipelineCache() error {
	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	var pipelineCache vk.PipelineCache
	if err := vkError("CreatePipelineCache", vk.CreatePipelineCache(d.device, &pcci, nil, &pipelineCache)); err != nil {
		return err
	}
	d.pipelineCache = pipelineCache
	return nil
}

// createPipelineLayout creates the layout every pipeline shares: MaxTextures
// sampled textures and the push constant block.
func (d *Device) createPipelineLayout() error {
	bindings := make([]vk.DescriptorSetLayoutBinding, MaxTextures)
	for i := range bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}
	}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var setLayout vk.DescriptorSetLayout
	if err := vkError("CreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &setLayout)); err != nil {
		return err
	}
	d.setLayout = setLayout

	pcr := []vk.PushConstantRange{{
		Offset:     0,
		Size:       pushConstantSize,
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
	}}
	plci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{setLayout},
		PushConstantRangeCount: uint32(len(pcr)),
		PPushConstantRanges:    pcr,
	}
	var pipelineLayout vk.PipelineLayout
	if err := vkError("CreatePipelineLayout", vk.CreatePipelineLayout(d.device, &plci, nil, &pipelineLayout)); err != nil {
		return err
	}
	d.layout = pipelineLayout
	return nil
}

func (d *Device) createSamplers() error {
	create := func(filter vk.Filter) (vk.Sampler, error) {
		sci := vk.SamplerCreateInfo{
			SType:                   vk.StructureTypeSamplerCreateInfo,
			MagFilter:               filter,
			MinFilter:               filter,
			AddressModeU:            vk.SamplerAddressModeClampToEdge,
			AddressModeV:            vk.SamplerAddressModeClampToEdge,
			AddressModeW:            vk.SamplerAddressModeClampToEdge,
			BorderColor:             vk.BorderColorFloatOpaqueBlack,
			UnnormalizedCoordinates: vk.False,
			CompareEnable:           vk.False,
			CompareOp:               vk.CompareOpAlways,
			MipmapMode:              vk.SamplerMipmapModeNearest,
		}
		var sampler vk.Sampler
		if err := vkError("CreateSampler", vk.CreateSampler(d.device, &sci, nil, &sampler)); err != nil {
			return nil, err
		}
		return sampler, nil
	}
	var err error
	if d.linear, err = create(vk.FilterLinear); err != nil {
		return err
	}
	d.nearest, err = create(vk.FilterNearest)
	return err
}

// createNullVertices creates the zeroed buffer bound when a draw has no
// vertex buffer, pipelines then generate vertices from their index.
func (d *Device) createNullVertices() error {
	b, err := d.newBuffer(gfx.BufferDescriptor{
		Label: "null-vertices",
		Size:  NullVertexCount * gfx.VertexStride,
		Usage: gfx.BufferUsageVertex,
	}, make([]byte, NullVertexCount*gfx.VertexStride))
	if err != nil {
		return err
	}
	d.nullVertices = b
	return nil
}

// Info implements interface
func (d *Device) Info() gfx.AdapterInfo {
	return d.info
}

// CreateTexture implements interface
func (d *Device) CreateTexture(desc gfx.TextureDescriptor) (gfx.Texture, error) {
	if d.isReleased() {
		return nil, ErrReleased
	}
	return d.newTexture(desc)
}

// CreateBuffer implements interface
func (d *Device) CreateBuffer(desc gfx.BufferDescriptor, data []byte) (gfx.Buffer, error) {
	if d.isReleased() {
		return nil, ErrReleased
	}
	return d.newBuffer(desc, data)
}

// CreatePipeline implements interface
func (d *Device) CreatePipeline(desc gfx.PipelineDescriptor) (gfx.Pipeline, error) {
	if d.isReleased() {
		return nil, ErrReleased
	}
	return d.newPipeline(desc)
}

// CreateCommandEncoder implements interface
func (d *Device) CreateCommandEncoder(label string) (gfx.CommandEncoder, error) {
	if d.isReleased() {
		return nil, ErrReleased
	}
	return d.newEncoder(label)
}

// Queue implements interface
func (d *Device) Queue() gfx.Queue {
	return &d.queue
}

// Poll implements interface
func (d *Device) Poll(wait bool) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrReleased
	}
	var done []*batch
	for len(d.inflight) > 0 {
		b := d.inflight[0]
		if wait {
			if err := vkError("WaitForFences", vk.WaitForFences(d.device, 1, []vk.Fence{b.fence}, vk.True, math.MaxUint64)); err != nil {
				d.mu.Unlock()
				return err
			}
		} else if vk.GetFenceStatus(d.device, b.fence) != vk.Success {
			break
		}
		d.inflight = d.inflight[1:]
		d.retired = b.serial
		done = append(done, b)
	}

	var ready, pending []mapRequest
	for _, m := range d.maps {
		if m.serial <= d.retired {
			ready = append(ready, m)
		} else {
			pending = append(pending, m)
		}
	}
	d.maps = pending
	d.mu.Unlock()

	for _, b := range done {
		d.retire(b)
	}
	for _, m := range ready {
		m.buffer.read(m.offset, m.size, m.callback)
	}
	return nil
}

func (d *Device) retire(b *batch) {
	for _, cb := range b.buffers {
		cb.encoder.destroy()
	}
	for _, fn := range b.release {
		fn()
	}
	vk.ResetFences(d.device, 1, []vk.Fence{b.fence})
	d.mu.Lock()
	d.fences = append(d.fences, b.fence)
	d.mu.Unlock()
}

func (d *Device) requestMap(r mapRequest) {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		r.callback(nil, ErrReleased)
		return
	}
	r.serial = d.submitted
	d.maps = append(d.maps, r)
	d.mu.Unlock()
}

// deferRelease runs fn once all work submitted so far has been retired.
func (d *Device) deferRelease(fn func()) {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	if n := len(d.inflight); n > 0 {
		last := d.inflight[n-1]
		last.release = append(last.release, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn()
}

func (d *Device) isReleased() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

func (d *Device) fence() (vk.Fence, error) {
	d.mu.Lock()
	if n := len(d.fences); n > 0 {
		f := d.fences[n-1]
		d.fences = d.fences[:n-1]
		d.mu.Unlock()
		return f, nil
	}
	d.mu.Unlock()

	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := vkError("CreateFence", vk.CreateFence(d.device, &fci, nil, &fence)); err != nil {
		return nil, err
	}
	return fence, nil
}

// submitSync submits an empty batch waiting on wait and signalling
// signal. Semaphore operations are ordered with all other submissions,
// so waiting before and signalling after a frame needs no command buffers.
func (d *Device) submitSync(wait, signal vk.Semaphore) error {
	si := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
	}
	if wait != nil {
		si.WaitSemaphoreCount = 1
		si.PWaitSemaphores = []vk.Semaphore{wait}
		si.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageTransferBit),
		}
	}
	if signal != nil {
		si.SignalSemaphoreCount = 1
		si.PSignalSemaphores = []vk.Semaphore{signal}
	}
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	return vkError("QueueSubmit", vk.QueueSubmit(d.queueHandle, 1, []vk.SubmitInfo{si}, nil))
}

func (d *Device) beginSingleTimeCommands() (vk.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        d.pool,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vkError("AllocateCommandBuffers", vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		return nil, err
	}
	commandBuffer := commandBuffers[0]

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vkError("BeginCommandBuffer", vk.BeginCommandBuffer(commandBuffer, &cbbi)); err != nil {
		vk.FreeCommandBuffers(d.device, d.pool, 1, commandBuffers)
		return nil, err
	}
	return commandBuffer, nil
}

func (d *Device) endSingleTimeCommands(commandBuffer vk.CommandBuffer) error {
	defer vk.FreeCommandBuffers(d.device, d.pool, 1, []vk.CommandBuffer{commandBuffer})
	if err := vkError("EndCommandBuffer", vk.EndCommandBuffer(commandBuffer)); err != nil {
		return err
	}

	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer},
	}
	if err := vkError("QueueSubmit", vk.QueueSubmit(d.queueHandle, 1, []vk.SubmitInfo{si}, nil)); err != nil {
		return err
	}
	return vkError("QueueWaitIdle", vk.QueueWaitIdle(d.queueHandle))
}

// transitionLayout moves every layer of t from old to new and waits for it.
func (d *Device) transitionLayout(t *Texture, old, new vk.ImageLayout) error {
	if old == new {
		return nil
	}
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	cmd, err := d.beginSingleTimeCommands()
	if err != nil {
		return err
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           old,
		NewLayout:           new,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectOf(t.desc.Format),
			LevelCount: 1,
			LayerCount: t.desc.Size.Layers,
		},
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return d.endSingleTimeCommands(cmd)
}

// Release implements interface
func (d *Device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	if d.device != nil {
		vk.DeviceWaitIdle(d.device)
		d.Poll(true)
	}

	d.mu.Lock()
	d.released = true
	maps := d.maps
	d.maps = nil
	d.mu.Unlock()
	for _, m := range maps {
		m.callback(nil, ErrReleased)
	}
	if d.device == nil {
		return
	}

	if d.nullVertices != nil {
		d.nullVertices.destroy()
	}
	for _, f := range d.fences {
		vk.DestroyFence(d.device, f, nil)
	}
	for _, rp := range d.passes {
		vk.DestroyRenderPass(d.device, rp, nil)
	}
	vk.DestroySampler(d.device, d.linear, nil)
	vk.DestroySampler(d.device, d.nearest, nil)
	vk.DestroyPipelineLayout(d.device, d.layout, nil)
	vk.DestroyDescriptorSetLayout(d.device, d.setLayout, nil)
	vk.DestroyPipelineCache(d.device, d.pipelineCache, nil)
	vk.DestroyCommandPool(d.device, d.pool, nil)
	vk.DestroyDevice(d.device, nil)
	d.device = nil
}
