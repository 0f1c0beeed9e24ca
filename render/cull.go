// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	glm "github.com/go-gl/mathgl/mgl32"
)

// Volume is something objects are culled against.
type Volume interface {
	Intersects(s Sphere) bool
}

// Sphere is a bounding sphere.
type Sphere struct {
	Center glm.Vec3
	Radius float32
}

// Intersects implements interface
func (s Sphere) Intersects(o Sphere) bool {
	r := s.Radius + o.Radius
	d := s.Center.Sub(o.Center)
	return d.Dot(d) <= r*r
}

// Plane is n.p + d = 0 with a unit normal n pointing inside.
type Plane struct {
	Normal glm.Vec3
	D      float32
}

// Distance returns the signed distance of v from the plane.
func (p Plane) Distance(v glm.Vec3) float32 {
	return p.Normal.Dot(v) + p.D
}

// Frustum is a view volume bounded by six planes.
type Frustum [6]Plane

// NewFrustum extracts the planes of a view projection matrix.
func NewFrustum(vp glm.Mat4) Frustum {
	r0, r1, r2, r3 := vp.Row(0), vp.Row(1), vp.Row(2), vp.Row(3)
	var f Frustum
	for i, v := range [6]glm.Vec4{
		r3.Add(r0), r3.Sub(r0),
		r3.Add(r1), r3.Sub(r1),
		r3.Add(r2), r3.Sub(r2),
	} {
		n := v.Vec3()
		l := n.Len()
		if l == 0 {
			l = 1
		}
		f[i] = Plane{Normal: n.Mul(1 / l), D: v[3] / l}
	}
	return f
}

// Intersects implements interface
func (f Frustum) Intersects(s Sphere) bool {
	for _, p := range f {
		if p.Distance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// CullInstructions returns the instructions whose bounds intersect v.
func CullInstructions(in []DrawInstruction, v Volume) []DrawInstruction {
	var out []DrawInstruction
	for _, di := range in {
		if v.Intersects(di.Bounds) {
			out = append(out, di)
		}
	}
	return out
}
