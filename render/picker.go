// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"encoding/binary"
	"image"

	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PickerFormat is the format of the picker id image.
const PickerFormat = gfx.FormatR32Uint

// PaddedWidth rounds width up so a row of f texels is a multiple of
// gfx.CopyRowAlignment bytes.
func PaddedWidth(width uint32, f gfx.Format) uint32 {
	align := uint32(gfx.CopyRowAlignment / f.BytesPerPixel())
	return (width + align - 1) / align * align
}

// NewPickerTarget creates the picker id image, its depth buffer and the
// staging buffer reads are copied into.
func NewPickerTarget(dev gfx.Device, d *diag.Service, width, height uint32) (*PickerTarget, error) {
	padded := PaddedWidth(width, PickerFormat)
	size := gfx.Extent{Width: padded, Height: height, Layers: 1}

	tx := textures{dev: dev, diag: d}
	t := &PickerTarget{
		target: target{label: "picker"},
		diag:   d,
		width:  width,
		height: height,
		padded: padded,
		Color:  tx.create("picker-ids", size, PickerFormat, gfx.TextureUsageRenderAttachment|gfx.TextureUsageCopySrc, false),
		Depth:  tx.create("picker-depth", size, DepthFormat, gfx.TextureUsageRenderAttachment, false),
	}
	if err := tx.err(); err != nil {
		return nil, err
	}

	staging, err := dev.CreateBuffer(gfx.BufferDescriptor{
		Label: d.Label("picker-staging"),
		Size:  uint64(t.BytesPerRow()) * uint64(height),
		Usage: gfx.BufferUsageCopyDst | gfx.BufferUsageMapRead,
	}, nil)
	if err != nil {
		t.Release()
		return nil, errors.Wrap(err, "create picker staging buffer")
	}
	t.Staging = staging
	return t, nil
}

type pickerRead struct {
	offset uint64
	dest   *PickerValue
}

// PickerTarget renders ids of what is under every pixel. The id image is
// wider than the window so whole rows can be copied out.
type PickerTarget struct {
	target
	diag *diag.Service

	width, height uint32
	padded        uint32

	Color   gfx.Texture
	Depth   gfx.Texture
	Staging gfx.Buffer

	copied bool
	reads  []pickerRead
}

// Size returns the window size the picker covers.
func (t *PickerTarget) Size() (uint32, uint32) { return t.width, t.height }

// PaddedWidth returns the width of the id image.
func (t *PickerTarget) PaddedWidth() uint32 { return t.padded }

// BytesPerRow returns the row pitch of the staging buffer.
func (t *PickerTarget) BytesPerRow() uint32 {
	return t.padded * uint32(PickerFormat.BytesPerPixel())
}

// StartPass starts the id pass, the ids and depth are cleared. The
// viewport covers the window, not the padding.
func (t *PickerTarget) StartPass(enc gfx.CommandEncoder) *Pass {
	p := t.begin(enc, gfx.RenderPassDescriptor{
		Label: "picker",
		Color: []gfx.Attachment{colorAttachment(t.Color, true, gfx.Color{})},
		Depth: depthAttachment(t.Depth, 0),
	})
	p.SetViewport(image.Rect(0, 0, int(t.width), int(t.height)))
	return p
}

// Offset returns the staging buffer offset of the id under window
// coordinates x, y. Coordinates outside the window are clamped.
func (t *PickerTarget) Offset(x, y int) uint64 {
	x = clamp(x, 0, int(t.width)-1)
	y = clamp(y, 0, int(t.height)-1)
	index := uint64(y)*uint64(t.padded) + uint64(x)
	return index * uint64(PickerFormat.BytesPerPixel())
}

// QueueReadPickerValue records the copy of the id image into the staging
// buffer and remembers that the id at x, y is to be stored into dest.
// The read itself is issued by CommitReads once enc has been submitted.
func (t *PickerTarget) QueueReadPickerValue(enc gfx.CommandEncoder, x, y int, dest *PickerValue) {
	if !t.copied {
		enc.CopyTextureToBuffer(
			gfx.TextureCopy{Texture: t.Color},
			gfx.BufferCopy{Buffer: t.Staging, BytesPerRow: t.BytesPerRow()},
			image.Pt(int(t.padded), int(t.height)),
		)
		t.copied = true
	}
	t.reads = append(t.reads, pickerRead{offset: t.Offset(x, y), dest: dest})
	t.diag.PickerQueued()
}

// PendingReads returns the number of reads waiting for CommitReads.
func (t *PickerTarget) PendingReads() int { return len(t.reads) }

// CommitReads maps the staging buffer for every queued read. The values
// are published when the device completes the mapping, the caller never
// waits for it.
func (t *PickerTarget) CommitReads(logger log.FieldLogger) {
	for _, r := range t.reads {
		dest := r.dest
		t.Staging.MapAsync(r.offset, 4, func(data []byte, err error) {
			if err != nil {
				logger.WithError(err).Warn("picker read failed")
				return
			}
			dest.Store(binary.LittleEndian.Uint32(data))
			t.diag.PickerResolved()
		})
	}
	t.reads = t.reads[:0]
	t.copied = false
}

// DropReads forgets the queued reads of a frame that was not submitted
// and returns how many there were.
func (t *PickerTarget) DropReads() int {
	n := len(t.reads)
	t.reads = t.reads[:0]
	t.copied = false
	return n
}

// Release implements interface
func (t *PickerTarget) Release() {
	release(t.Color, t.Depth, t.Staging)
}

// ToPixels converts a position in window coordinates to the drawable's
// pixels. They differ on high density displays.
func ToPixels(p, window, drawable image.Point) image.Point {
	if window.X <= 0 || window.Y <= 0 {
		return p
	}
	return image.Pt(p.X*drawable.X/window.X, p.Y*drawable.Y/window.Y)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
