// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"fmt"
	"sync/atomic"
)

// PickerValue is the last id read back from the picker. It is written by
// the device when a read completes and read by input handling, an atomic
// scalar so neither side waits on the other.
type PickerValue struct {
	raw atomic.Uint32
}

// Store publishes a raw id.
func (v *PickerValue) Store(raw uint32) { v.raw.Store(raw) }

// Raw returns the last published raw id.
func (v *PickerValue) Raw() uint32 { return v.raw.Load() }

// Load decodes the last published id.
func (v *PickerValue) Load() Pick { return DecodePick(v.raw.Load()) }

// PickKind tags what a pick resolved to.
type PickKind int

// Pick kinds
const (
	PickNone PickKind = iota
	PickEntity
	PickTile
	PickMarker
)

func (k PickKind) String() string {
	switch k {
	case PickEntity:
		return "entity"
	case PickTile:
		return "tile"
	case PickMarker:
		return "marker"
	}
	return "none"
}

// Pick is a decoded picker id.
type Pick struct {
	Kind PickKind

	// ID is set for entities and markers.
	ID uint32

	// X and Y are set for tiles.
	X, Y uint32
}

func (p Pick) String() string {
	switch p.Kind {
	case PickEntity, PickMarker:
		return fmt.Sprintf("%s(%d)", p.Kind, p.ID)
	case PickTile:
		return fmt.Sprintf("tile(%d,%d)", p.X, p.Y)
	}
	return "none"
}

// The top two bits of an id hold its tag.
const (
	tagShift  = 30
	tagMask   = 0x3 << tagShift
	tagEntity = 0x0 << tagShift
	tagTile   = 0x1 << tagShift
	tagMarker = 0x2 << tagShift

	tileBits = 15
	tileMask = 1<<tileBits - 1
	idMask   = 1<<tagShift - 1
)

// MaxTileXY is the largest tile coordinate a picker id can hold.
const MaxTileXY = tileMask

// EncodeEntity returns the picker id of an entity, id must be nonzero
// and fit into 30 bits.
func EncodeEntity(id uint32) uint32 { return tagEntity | id&idMask }

// EncodeTile returns the picker id of the tile at x, y. Coordinates
// larger than MaxTileXY are truncated.
func EncodeTile(x, y uint32) uint32 {
	return tagTile | (y&tileMask)<<tileBits | x&tileMask
}

// EncodeMarker returns the picker id of a debug marker.
func EncodeMarker(id uint32) uint32 { return tagMarker | id&idMask }

// DecodePick decodes a raw picker id.
func DecodePick(raw uint32) Pick {
	if raw == 0 {
		return Pick{}
	}
	switch raw & tagMask {
	case tagEntity:
		return Pick{Kind: PickEntity, ID: raw & idMask}
	case tagTile:
		return Pick{Kind: PickTile, X: raw & tileMask, Y: raw >> tileBits & tileMask}
	case tagMarker:
		return Pick{Kind: PickMarker, ID: raw & idMask}
	}
	return Pick{}
}
