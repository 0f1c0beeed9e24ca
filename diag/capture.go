// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package diag

import (
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/devblok/korender/gfx"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
)

// Capture reads one layer of a texture back from the device and writes it
// to w as a BMP image. It blocks until the device has finished the copy,
// so it is meant for debugging only.
func (s *Service) Capture(dev gfx.Device, tex gfx.Texture, layer uint32, w io.Writer) error {
	img, err := s.Readback(dev, tex, layer)
	if err != nil {
		return err
	}
	if err := bmp.Encode(w, img); err != nil {
		return errors.Wrap(err, "bmp.Encode()")
	}
	return nil
}

// Readback copies one layer of a texture into an image.
func (s *Service) Readback(dev gfx.Device, tex gfx.Texture, layer uint32) (*image.NRGBA, error) {
	format := tex.Format()
	bpp := format.BytesPerPixel()
	if bpp != 4 && bpp != 1 {
		return nil, errors.Errorf("capture of %s textures is not supported", format)
	}

	size := tex.Size().Point()
	rowBytes := uint32(size.X * bpp)
	stride := (rowBytes + gfx.CopyRowAlignment - 1) / gfx.CopyRowAlignment * gfx.CopyRowAlignment
	bufSize := uint64(stride) * uint64(size.Y)

	staging, err := dev.CreateBuffer(gfx.BufferDescriptor{
		Label: s.Label("capture"),
		Size:  bufSize,
		Usage: gfx.BufferUsageCopyDst | gfx.BufferUsageMapRead,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "capture staging buffer")
	}
	defer staging.Release()

	enc, err := dev.CreateCommandEncoder("capture")
	if err != nil {
		return nil, errors.Wrap(err, "capture encoder")
	}
	enc.CopyTextureToBuffer(
		gfx.TextureCopy{Texture: tex, Layer: layer},
		gfx.BufferCopy{Buffer: staging, BytesPerRow: stride},
		size,
	)
	if err := dev.Queue().Submit(enc.Finish()); err != nil {
		return nil, errors.Wrap(err, "capture submit")
	}

	img := image.NewNRGBA(image.Rectangle{Max: size})
	var mapErr error
	staging.MapAsync(0, bufSize, func(data []byte, err error) {
		if err != nil {
			mapErr = err
			return
		}
		for y := 0; y < size.Y; y++ {
			row := data[uint32(y)*stride:]
			for x := 0; x < size.X; x++ {
				img.SetNRGBA(x, y, texelColor(format, row[x*bpp:x*bpp+bpp]))
			}
		}
	})
	if err := dev.Poll(true); err != nil {
		return nil, errors.Wrap(err, "capture poll")
	}
	if mapErr != nil {
		return nil, errors.Wrap(mapErr, "capture map")
	}
	return img, nil
}

func texelColor(f gfx.Format, b []byte) color.NRGBA {
	switch f {
	case gfx.FormatBGRA8Unorm, gfx.FormatBGRA8UnormSrgb:
		return color.NRGBA{R: b[2], G: b[1], B: b[0], A: b[3]}
	case gfx.FormatRGBA8Unorm, gfx.FormatRGBA8UnormSrgb:
		return color.NRGBA{R: b[0], G: b[1], B: b[2], A: b[3]}
	case gfx.FormatR8Unorm:
		return color.NRGBA{R: b[0], G: b[0], B: b[0], A: 255}
	case gfx.FormatDepth32Float:
		d := math.Float32frombits(binary.LittleEndian.Uint32(b))
		v := uint8(math.Max(0, math.Min(1, float64(d))) * 255)
		return color.NRGBA{R: v, G: v, B: v, A: 255}
	}
	// ids and other raw values are shown as their bytes
	return color.NRGBA{R: b[0], G: b[1], B: b[2], A: 255}
}
