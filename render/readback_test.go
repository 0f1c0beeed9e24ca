// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodePick(t *testing.T) {
	for _, c := range []struct {
		raw  uint32
		want Pick
	}{
		{0, Pick{}},
		{EncodeEntity(42), Pick{Kind: PickEntity, ID: 42}},
		{EncodeTile(3, 4), Pick{Kind: PickTile, X: 3, Y: 4}},
		{EncodeTile(MaxTileXY, MaxTileXY), Pick{Kind: PickTile, X: MaxTileXY, Y: MaxTileXY}},
		{EncodeMarker(7), Pick{Kind: PickMarker, ID: 7}},
		{0xc0000001, Pick{}},
	} {
		assert.Equal(t, c.want, DecodePick(c.raw), "raw %#x", c.raw)
	}

	assert.Equal(t, "tile(3,4)", DecodePick(EncodeTile(3, 4)).String())
	assert.Equal(t, "entity(42)", DecodePick(EncodeEntity(42)).String())
	assert.Equal(t, "none", Pick{}.String())
}

func TestPickerValueConcurrentAccess(t *testing.T) {
	var v PickerValue
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := uint32(1); i <= 1000; i++ {
			v.Store(EncodeEntity(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			p := v.Load()
			if p.Kind != PickNone {
				assert.Equal(t, PickEntity, p.Kind)
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, Pick{Kind: PickEntity, ID: 1000}, v.Load())
}

func BenchmarkDecodePick(b *testing.B) {
	raw := EncodeTile(120, 77)
	for i := 0; i < b.N; i++ {
		DecodePick(raw)
	}
}
