// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/devblok/korender/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// InstanceConfiguration is used to create a vulkan instance.
type InstanceConfiguration struct {
	Extensions []string
	Layers     []string

	// Debug enables the validation layers
	Debug bool
}

// NewInstance creates a Vulkan instance. procAddr is the platform's
// vkGetInstanceProcAddr, when nil the default loader is used.
func NewInstance(procAddr unsafe.Pointer, cfg InstanceConfiguration) (*Instance, error) {
	if cfg.Debug {
		cfg.Layers = append(cfg.Layers, "VK_LAYER_LUNARG_standard_validation")
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.New("vk.InstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        DefaultApplicationInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: safeStrings(cfg.Extensions),
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     safeStrings(cfg.Layers),
	}

	var instance vk.Instance
	if err := vkError("CreateInstance", vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, err
	}
	vk.InitInstance(instance)

	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, errors.Wrap(err, "enumerate devices")
	}
	if len(physicalDevices) == 0 {
		vk.DestroyInstance(instance, nil)
		return nil, errors.New("no vulkan capable device found")
	}

	return &Instance{
		configuration:    cfg,
		instance:         instance,
		availableDevices: physicalDevices,
	}, nil
}

// Instance describes a Vulkan API Instance
type Instance struct {
	configuration    InstanceConfiguration
	availableDevices []vk.PhysicalDevice
	instance         vk.Instance
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vkError("EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, err
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vkError("EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, err
	}
	return availableDevices, nil
}

// Adapters returns information about every physical device.
func (v *Instance) Adapters() []gfx.AdapterInfo {
	infos := make([]gfx.AdapterInfo, len(v.availableDevices))
	for i, pd := range v.availableDevices {
		infos[i] = adapterInfo(pd)
	}
	return infos
}

// Extensions returns the extensions the instance was created with.
func (v *Instance) Extensions() []string {
	return v.configuration.Extensions
}

// DeviceExtensions lists the extensions a physical device supports.
func (v *Instance) DeviceExtensions(adapter int) ([]string, error) {
	if adapter < 0 || adapter >= len(v.availableDevices) {
		return nil, errors.Errorf("no adapter %d", adapter)
	}
	pd := v.availableDevices[adapter]
	var numDeviceExtensions uint32
	if err := vkError("EnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, nil)); err != nil {
		return nil, err
	}
	deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
	if err := vkError("EnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, deviceExt)); err != nil {
		return nil, err
	}
	var out []string
	for _, ext := range deviceExt {
		ext.Deref()
		out = append(out, vk.ToString(ext.ExtensionName[:]))
	}
	return out, nil
}

func adapterInfo(pd vk.PhysicalDevice) gfx.AdapterInfo {
	info := gfx.AdapterInfo{Backend: "vulkan"}

	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memoryProperties)
	memoryProperties.Deref()
	for iMem := uint32(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
		memoryProperties.MemoryHeaps[iMem].Deref()
		info.Memory += uint(memoryProperties.MemoryHeaps[iMem].Size)
	}

	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()
	info.ID = int(properties.DeviceID)
	info.VendorID = int(properties.VendorID)
	info.Name = vk.ToString(properties.DeviceName[:])
	info.DriverVersion = int(properties.DriverVersion)
	return info
}

// Inner returns the vulkan instance handle, it is used by the
// windowing layer to create surfaces.
func (v *Instance) Inner() vk.Instance {
	return v.instance
}

// SurfaceFromPointer wraps a platform surface handle.
func (v *Instance) SurfaceFromPointer(p unsafe.Pointer) vk.Surface {
	if p == nil {
		return vk.NullSurface
	}
	return vk.SurfaceFromPointer(uintptr(p))
}

// Release implements interface
func (v *Instance) Release() {
	v.availableDevices = nil
	vk.DestroyInstance(v.instance, nil)
}
