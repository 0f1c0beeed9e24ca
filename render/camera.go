// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	glm "github.com/go-gl/mathgl/mgl32"
)

// Camera is a view and projection pair.
type Camera struct {
	Position   glm.Vec3
	View       glm.Mat4
	Projection glm.Mat4
}

// NewPerspectiveCamera creates a camera at eye looking at center.
// fovy is in degrees.
func NewPerspectiveCamera(eye, center, up glm.Vec3, fovy, aspect, near, far float32) Camera {
	return Camera{
		Position:   eye,
		View:       glm.LookAtV(eye, center, up),
		Projection: glm.Perspective(glm.DegToRad(fovy), aspect, near, far),
	}
}

// ViewProjection returns Projection * View.
func (c Camera) ViewProjection() glm.Mat4 {
	return c.Projection.Mul4(c.View)
}

// Frustum returns the view volume of the camera.
func (c Camera) Frustum() Frustum {
	return NewFrustum(c.ViewProjection())
}

// DirectionalLight is the sun.
type DirectionalLight struct {
	Direction glm.Vec3
	Color     glm.Vec3

	// Center and HalfExtent bound the shadowed area.
	Center     glm.Vec3
	HalfExtent float32
}

// Camera returns the orthographic camera the shadow map is rendered with.
func (l DirectionalLight) Camera() Camera {
	dir := l.Direction
	if dir.Len() == 0 {
		dir = glm.Vec3{0, -1, 0}
	}
	dir = dir.Normalize()
	e := l.HalfExtent
	if e <= 0 {
		e = 1
	}
	eye := l.Center.Sub(dir.Mul(2 * e))
	return Camera{
		Position:   eye,
		View:       glm.LookAtV(eye, l.Center, upFor(dir)),
		Projection: glm.Ortho(-e, e, -e, e, 0, 4*e),
	}
}

// PointLight is a light with a position and a range.
type PointLight struct {
	Position glm.Vec3
	Color    glm.Vec3
	Range    float32
}

// Bounds returns the sphere the light reaches.
func (l PointLight) Bounds() Sphere {
	return Sphere{Center: l.Position, Radius: l.Range}
}

var cubeFaces = [CubeFaces]struct{ dir, up glm.Vec3 }{
	{glm.Vec3{1, 0, 0}, glm.Vec3{0, -1, 0}},
	{glm.Vec3{-1, 0, 0}, glm.Vec3{0, -1, 0}},
	{glm.Vec3{0, 1, 0}, glm.Vec3{0, 0, 1}},
	{glm.Vec3{0, -1, 0}, glm.Vec3{0, 0, -1}},
	{glm.Vec3{0, 0, 1}, glm.Vec3{0, -1, 0}},
	{glm.Vec3{0, 0, -1}, glm.Vec3{0, -1, 0}},
}

// FaceCameras returns the six 90 degree cameras of the light's shadow cube,
// in +X, -X, +Y, -Y, +Z, -Z order.
func (l PointLight) FaceCameras() [CubeFaces]Camera {
	far := l.Range
	if far <= 0 {
		far = 1
	}
	proj := glm.Perspective(glm.DegToRad(90), 1, 0.05, far)

	var out [CubeFaces]Camera
	for i, f := range cubeFaces {
		out[i] = Camera{
			Position:   l.Position,
			View:       glm.LookAtV(l.Position, l.Position.Add(f.dir), f.up),
			Projection: proj,
		}
	}
	return out
}

func upFor(dir glm.Vec3) glm.Vec3 {
	if abs(dir.Dot(glm.Vec3{0, 1, 0})) > 0.99 {
		return glm.Vec3{0, 0, 1}
	}
	return glm.Vec3{0, 1, 0}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
