// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"testing"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/soft"
	"github.com/devblok/korender/model"
	"github.com/devblok/korender/render"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCubeFacesPointOutwards(t *testing.T) {
	m := model.Cube(1)
	require.Len(t, m.Vertices, 36)
	for i := 0; i < len(m.Vertices); i += 3 {
		a, b, c := m.Vertices[i], m.Vertices[i+1], m.Vertices[i+2]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position)).Normalize()
		assert.InDelta(t, 1, n.Dot(a.Normal), 1e-5, "triangle %d", i/3)
		center := a.Position.Add(b.Position).Add(c.Position).Mul(1.0 / 3)
		assert.Greater(t, center.Dot(a.Normal), float32(0), "triangle %d", i/3)
	}
	assert.Equal(t, glm.Vec3{0, 0, 0}, m.Bounds.Center)
	assert.InDelta(t, 1.73205, m.Bounds.Radius, 1e-4)
}

func TestPlane(t *testing.T) {
	m := model.Plane(1, 2)
	require.Len(t, m.Vertices, 24)
	for _, v := range m.Vertices {
		assert.Equal(t, glm.Vec3{0, 0, 1}, v.Normal)
		assert.Equal(t, float32(0), v.Position.Z())
		assert.True(t, v.UV.X() >= 0 && v.UV.X() <= 1)
		assert.True(t, v.UV.Y() >= 0 && v.UV.Y() <= 1)
	}
	assert.InDelta(t, 1.41421, m.Bounds.Radius, 1e-4)

	assert.Len(t, model.Plane(1, 0).Vertices, 6)
}

func TestBounds(t *testing.T) {
	assert.Equal(t, render.Sphere{}, model.Bounds(nil))
	b := model.Bounds([]gfx.Vertex{
		{Position: glm.Vec3{2, 0, 0}},
		{Position: glm.Vec3{4, 0, 0}},
	})
	assert.Equal(t, glm.Vec3{3, 0, 0}, b.Center)
	assert.Equal(t, float32(1), b.Radius)
}

func TestUpload(t *testing.T) {
	dev := soft.NewDevice()
	defer dev.Release()

	mesh, err := model.Cube(0.5).Upload(dev)
	require.NoError(t, err)
	assert.Equal(t, uint32(36), mesh.VertexCount)
	assert.Equal(t, uint64(36*gfx.VertexStride), mesh.Buffer.Size())
	assert.Equal(t, "cube", mesh.Buffer.Label())

	_, err = (&model.Model{Name: "empty"}).Upload(dev)
	assert.Equal(t, model.ErrNoGeometry, err)
}

func TestInstanceMovesBounds(t *testing.T) {
	m := model.Cube(1)
	di := model.Instance(render.Mesh{VertexCount: 36}, m.Bounds, glm.Translate3D(5, 0, 0), 7)
	assert.Equal(t, glm.Vec3{5, 0, 0}, di.Bounds.Center)
	assert.Equal(t, m.Bounds.Radius, di.Bounds.Radius)
	assert.Equal(t, uint32(7), di.Value)
	assert.True(t, di.CastsShadow)
}
