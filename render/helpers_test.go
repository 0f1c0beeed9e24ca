// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"testing"

	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/soft"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// flatWorld looks through identity matrices, so models are placed
// directly in clip space.
type flatWorld struct {
	objects ObjectSet
	lights  []PointLight
}

func (w *flatWorld) Camera(aspect float32) Camera {
	return Camera{View: glm.Ident4(), Projection: glm.Ident4()}
}

func (w *flatWorld) Sun() DirectionalLight {
	return DirectionalLight{Direction: glm.Vec3{0, 0, -1}, Color: glm.Vec3{1, 1, 1}, HalfExtent: 2}
}

func (w *flatWorld) PointLights() []PointLight { return w.lights }

func (w *flatWorld) Cull(v Volume) ObjectSet { return w.objects.Cull(v) }

func unitQuad(t *testing.T, dev gfx.Device) Mesh {
	b, err := dev.CreateBuffer(gfx.BufferDescriptor{Label: "quad", Usage: gfx.BufferUsageVertex}, gfx.EncodeVertices(screenQuadVertices))
	require.NoError(t, err)
	return Mesh{Buffer: b, VertexCount: uint32(len(screenQuadVertices))}
}

// quadrant places the unit quad over one quarter of clip space.
func quadrant(m Mesh, cx, cy float32, value uint32) DrawInstruction {
	return DrawInstruction{
		Mesh:        m,
		Model:       glm.Translate3D(cx, cy, 0).Mul4(glm.Scale3D(0.5, 0.5, 1)),
		Bounds:      Sphere{Center: glm.Vec3{cx, cy, 0}, Radius: 0.75},
		Value:       value,
		CastsShadow: true,
	}
}

// quadrantWorld has an entity in the upper left quarter, an entity in
// the upper right, a tile in the lower left and a marker in the lower
// right.
func quadrantWorld(t *testing.T, dev gfx.Device) *flatWorld {
	m := unitQuad(t, dev)
	return &flatWorld{objects: ObjectSet{
		Opaque: []DrawInstruction{
			quadrant(m, -0.5, 0.5, EncodeEntity(1)),
			quadrant(m, 0.5, 0.5, EncodeEntity(2)),
		},
		Tiles:   []DrawInstruction{quadrant(m, -0.5, -0.5, EncodeTile(3, 4))},
		Markers: []DrawInstruction{quadrant(m, 0.5, -0.5, EncodeMarker(5))},
	}}
}

type fixture struct {
	dev     *soft.Device
	surface *soft.Surface
	diag    *diag.Service
	r       *Renderer
}

// newFixture creates a renderer on the software device, world builds the
// scene on that device and may be nil for an empty scene.
func newFixture(t *testing.T, world func(*testing.T, gfx.Device) *flatWorld, s Settings) *fixture {
	f := &fixture{
		dev:     soft.NewDevice(),
		surface: soft.NewSurface(gfx.FormatBGRA8UnormSrgb),
		diag:    diag.New(quietLogger()),
	}
	w := &flatWorld{}
	if world != nil {
		w = world(t, f.dev)
	}
	r, err := NewRenderer(f.dev, f.surface, w, &StaticInterface{}, s, f.diag, quietLogger())
	require.NoError(t, err)
	t.Cleanup(r.Release)
	f.r = r
	return f
}

func smallSettings() Settings {
	return Settings{
		Width:          8,
		Height:         4,
		Buffering:      2,
		ShadowDetail:   ShadowLow,
		MaxPointLights: 2,
	}
}
