// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the gfx interfaces on top of Vulkan.
//
// Work is submitted in batches, every batch is guarded by a fence. Device.Poll
// retires batches whose fence has been signalled, destroys the transient
// objects their encoders created and runs the buffer mapping callbacks that
// were requested before the batch was submitted.
package vkr

import (
	"fmt"
	"unsafe"

	"github.com/devblok/korender/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// DefaultApplicationInfo describes the application to the driver.
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   safeString("Koru3D"),
	PEngineName:        safeString("Koru3D"),
}

// MaxTextures is the number of texture bindings every pipeline has.
const MaxTextures = 8

// NullVertexCount is the number of vertices a pipeline can generate
// when no vertex buffer is bound.
const NullVertexCount = 1024

var pushConstantSize = uint32(unsafe.Sizeof(gfx.PushConstants{}))

// vkError wraps a failed vulkan call the same way everywhere.
func vkError(call string, ret vk.Result) error {
	if err := vk.Error(ret); err != nil {
		return errors.New("vk." + call + "(): " + err.Error())
	}
	return nil
}

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		safe = append(safe, safeString(s))
	}
	return safe
}

// SliceUint32 reslices bytes into a uint32, that is used
// to sumbit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func mapped(ptr unsafe.Pointer, size int) []byte {
	return unsafe.Slice((*byte)(ptr), size)
}
