// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model builds the meshes the demo draws and uploads them.
package model

import (
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/render"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// ErrNoGeometry is returned when uploading a model without vertices.
var ErrNoGeometry = errors.New("model has no triangles")

// Model is triangle list geometry in the gfx.Vertex layout.
type Model struct {
	Name     string
	Vertices []gfx.Vertex
	Bounds   render.Sphere
}

var cubeFaces = [6]struct{ normal, u, v glm.Vec3 }{
	{glm.Vec3{1, 0, 0}, glm.Vec3{0, 1, 0}, glm.Vec3{0, 0, 1}},
	{glm.Vec3{-1, 0, 0}, glm.Vec3{0, -1, 0}, glm.Vec3{0, 0, 1}},
	{glm.Vec3{0, 1, 0}, glm.Vec3{-1, 0, 0}, glm.Vec3{0, 0, 1}},
	{glm.Vec3{0, -1, 0}, glm.Vec3{1, 0, 0}, glm.Vec3{0, 0, 1}},
	{glm.Vec3{0, 0, 1}, glm.Vec3{1, 0, 0}, glm.Vec3{0, 1, 0}},
	{glm.Vec3{0, 0, -1}, glm.Vec3{1, 0, 0}, glm.Vec3{0, -1, 0}},
}

// quad appends two counter clockwise triangles spanning center ± u ± v.
func quad(out []gfx.Vertex, center, u, v, normal glm.Vec3) []gfx.Vertex {
	corner := func(su, sv float32) gfx.Vertex {
		return gfx.Vertex{
			Position: center.Add(u.Mul(su)).Add(v.Mul(sv)),
			Normal:   normal,
			UV:       glm.Vec2{(su + 1) / 2, (1 - sv) / 2},
		}
	}
	a, b, c, d := corner(-1, -1), corner(1, -1), corner(1, 1), corner(-1, 1)
	return append(out, a, b, c, a, c, d)
}

// Cube returns an axis aligned cube with the given half extent.
func Cube(half float32) *Model {
	verts := make([]gfx.Vertex, 0, 36)
	for _, f := range cubeFaces {
		verts = quad(verts, f.normal.Mul(half), f.u.Mul(half), f.v.Mul(half), f.normal)
	}
	return &Model{Name: "cube", Vertices: verts, Bounds: Bounds(verts)}
}

// Plane returns a square in the xy plane facing +z, split into n×n quads.
func Plane(half float32, n int) *Model {
	n = max(n, 1)
	step := 2 * half / float32(n)
	verts := make([]gfx.Vertex, 0, n*n*6)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			center := glm.Vec3{-half + step*(float32(x)+0.5), -half + step*(float32(y)+0.5), 0}
			verts = quad(verts, center, glm.Vec3{step / 2, 0, 0}, glm.Vec3{0, step / 2, 0}, glm.Vec3{0, 0, 1})
		}
	}
	return &Model{Name: "plane", Vertices: verts, Bounds: Bounds(verts)}
}

// Bounds returns a sphere around the center of the vertices' bounding box.
func Bounds(verts []gfx.Vertex) render.Sphere {
	if len(verts) == 0 {
		return render.Sphere{}
	}
	lo, hi := verts[0].Position, verts[0].Position
	for _, v := range verts[1:] {
		for i := range v.Position {
			lo[i] = min(lo[i], v.Position[i])
			hi[i] = max(hi[i], v.Position[i])
		}
	}
	center := lo.Add(hi).Mul(0.5)
	var radius float32
	for _, v := range verts {
		radius = max(radius, v.Position.Sub(center).Len())
	}
	return render.Sphere{Center: center, Radius: radius}
}

// Upload creates a vertex buffer holding the model.
func (m *Model) Upload(dev gfx.Device) (render.Mesh, error) {
	if len(m.Vertices) == 0 {
		return render.Mesh{}, ErrNoGeometry
	}
	data := gfx.EncodeVertices(m.Vertices)
	buf, err := dev.CreateBuffer(gfx.BufferDescriptor{
		Label: m.Name,
		Size:  uint64(len(data)),
		Usage: gfx.BufferUsageVertex,
	}, data)
	if err != nil {
		return render.Mesh{}, errors.Wrapf(err, "upload %s", m.Name)
	}
	return render.Mesh{
		Buffer:      buf,
		VertexCount: uint32(len(m.Vertices)),
	}, nil
}

// Instance returns a draw instruction of a mesh placed by transform.
// The bounds assume transform does not scale.
func Instance(mesh render.Mesh, bounds render.Sphere, transform glm.Mat4, value uint32) render.DrawInstruction {
	center := transform.Mul4x1(bounds.Center.Vec4(1)).Vec3()
	return render.DrawInstruction{
		Mesh:        mesh,
		Model:       transform,
		Bounds:      render.Sphere{Center: center, Radius: bounds.Radius},
		Value:       value,
		CastsShadow: true,
	}
}
