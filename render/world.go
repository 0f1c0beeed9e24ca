// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/devblok/korender/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
)

// Mesh is vertex data in the gfx.VertexStride layout.
type Mesh struct {
	Buffer      gfx.Buffer
	VertexCount uint32
}

// DrawInstruction is one object to draw.
type DrawInstruction struct {
	Mesh   Mesh
	Model  glm.Mat4
	Bounds Sphere

	// Value is the picker id for pickable objects and
	// a shading parameter otherwise.
	Value uint32

	CastsShadow bool
}

// ObjectSet is what survived culling against one volume. It is not
// modified once created.
type ObjectSet struct {
	Opaque      []DrawInstruction
	Translucent []DrawInstruction
	Sprites     []DrawInstruction
	Tiles       []DrawInstruction
	Particles   []DrawInstruction
	Markers     []DrawInstruction
}

// Len returns the number of instructions in the set.
func (s ObjectSet) Len() int {
	return len(s.Opaque) + len(s.Translucent) + len(s.Sprites) +
		len(s.Tiles) + len(s.Particles) + len(s.Markers)
}

// Casters returns the shadow casting opaque geometry, tiles and sprites.
func (s ObjectSet) Casters() []DrawInstruction {
	var out []DrawInstruction
	for _, list := range [][]DrawInstruction{s.Opaque, s.Tiles, s.Sprites} {
		for _, di := range list {
			if di.CastsShadow {
				out = append(out, di)
			}
		}
	}
	return out
}

// Cull returns the part of the set intersecting v.
func (s ObjectSet) Cull(v Volume) ObjectSet {
	return ObjectSet{
		Opaque:      CullInstructions(s.Opaque, v),
		Translucent: CullInstructions(s.Translucent, v),
		Sprites:     CullInstructions(s.Sprites, v),
		Tiles:       CullInstructions(s.Tiles, v),
		Particles:   CullInstructions(s.Particles, v),
		Markers:     CullInstructions(s.Markers, v),
	}
}

// World supplies the scene. It is called from the frame goroutine only.
type World interface {
	// Camera returns the main camera for a surface of the given aspect.
	Camera(aspect float32) Camera

	Sun() DirectionalLight
	PointLights() []PointLight

	// Cull returns the objects intersecting v.
	Cull(v Volume) ObjectSet
}

// Overlay is the interface drawn over the scene.
type Overlay struct {
	// Clear is set when the overlay changed and must be redrawn
	// from scratch, otherwise the previous contents are kept.
	Clear bool
	Quads []DrawInstruction
}

// Interface supplies the overlay every frame.
type Interface interface {
	Overlay() Overlay
}

// StaticWorld is a World with fixed contents.
type StaticWorld struct {
	Eye, Center, Up glm.Vec3
	FovY            float32
	Near, Far       float32

	SunLight DirectionalLight
	Lights   []PointLight
	Objects  ObjectSet
}

// Camera implements interface
func (w *StaticWorld) Camera(aspect float32) Camera {
	return NewPerspectiveCamera(w.Eye, w.Center, w.Up, w.FovY, aspect, w.Near, w.Far)
}

// Sun implements interface
func (w *StaticWorld) Sun() DirectionalLight { return w.SunLight }

// PointLights implements interface
func (w *StaticWorld) PointLights() []PointLight { return w.Lights }

// Cull implements interface
func (w *StaticWorld) Cull(v Volume) ObjectSet { return w.Objects.Cull(v) }

// StaticInterface is an Interface with fixed quads, cleared only on the
// first frame and after Invalidate.
type StaticInterface struct {
	Quads []DrawInstruction
	drawn bool
}

// Overlay implements interface
func (i *StaticInterface) Overlay() Overlay {
	clear := !i.drawn
	i.drawn = true
	return Overlay{Clear: clear, Quads: i.Quads}
}

// Invalidate makes the next overlay clear the interface.
func (i *StaticInterface) Invalidate() { i.drawn = false }
