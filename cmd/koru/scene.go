// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"sync"
	"time"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/model"
	"github.com/devblok/korender/render"
	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
)

const (
	gridSize    = 8
	objectCount = 3
)

type sceneObject struct {
	mesh   render.Mesh
	bounds render.Sphere
	base   glm.Mat4
	spin   float32
	value  uint32
}

// scene is the demo world, objects spin around their z axis and the
// point lights orbit the center.
type scene struct {
	mu      sync.Mutex
	elapsed time.Duration

	objects []sceneObject
	tiles   []render.DrawInstruction
	markers []render.DrawInstruction
	buffers []gfx.Buffer
}

func newScene(dev gfx.Device) (*scene, error) {
	s := &scene{}
	upload := func(m *model.Model) (render.Mesh, error) {
		mesh, err := m.Upload(dev)
		if err != nil {
			return render.Mesh{}, err
		}
		s.buffers = append(s.buffers, mesh.Buffer)
		log.WithFields(log.Fields{
			"model":    m.Name,
			"vertices": len(m.Vertices),
		}).Debug("model uploaded")
		return mesh, nil
	}

	cube := model.Cube(1)
	cubeMesh, err := upload(cube)
	if err != nil {
		return nil, err
	}
	tile := model.Plane(1, 1)
	tileMesh, err := upload(tile)
	if err != nil {
		s.Release()
		return nil, err
	}

	for i := 0; i < objectCount; i++ {
		x := float32(i)*4 - float32(objectCount-1)*2
		s.objects = append(s.objects, sceneObject{
			mesh:   cubeMesh,
			bounds: cube.Bounds,
			base:   glm.Translate3D(x, 0, 1),
			spin:   0.5 + 0.25*float32(i),
			value:  render.EncodeEntity(uint32(i + 1)),
		})
	}

	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			transform := glm.Translate3D(float32(x-gridSize/2)*2+1, float32(y-gridSize/2)*2+1, 0)
			di := model.Instance(tileMesh, tile.Bounds, transform, render.EncodeTile(uint32(x), uint32(y)))
			s.tiles = append(s.tiles, di)
		}
	}

	marker := model.Instance(cubeMesh, cube.Bounds, glm.Translate3D(0, 0, 4), render.EncodeMarker(1))
	marker.CastsShadow = false
	s.markers = append(s.markers, marker)
	return s, nil
}

// Advance sets the scene time.
func (s *scene) Advance(elapsed time.Duration) {
	s.mu.Lock()
	s.elapsed = elapsed
	s.mu.Unlock()
}

func (s *scene) seconds() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float32(s.elapsed.Seconds())
}

// Camera implements render.World
func (s *scene) Camera(aspect float32) render.Camera {
	return render.NewPerspectiveCamera(glm.Vec3{0, -14, 10}, glm.Vec3{0, 0, 0}, glm.Vec3{0, 0, 1}, 60, aspect, 0.1, 100)
}

// Sun implements render.World
func (s *scene) Sun() render.DirectionalLight {
	return render.DirectionalLight{
		Direction:  glm.Vec3{-0.4, 0.3, -1},
		Color:      glm.Vec3{1, 0.95, 0.85},
		HalfExtent: gridSize + 2,
	}
}

// PointLights implements render.World
func (s *scene) PointLights() []render.PointLight {
	t := s.seconds()
	colors := []glm.Vec3{{1, 0.3, 0.2}, {0.2, 1, 0.3}, {0.3, 0.4, 1}}
	lights := make([]render.PointLight, len(colors))
	for i, c := range colors {
		rot := glm.HomogRotate3DZ(t*0.4 + float32(i)*2.094)
		lights[i] = render.PointLight{
			Position: rot.Mul4x1(glm.Vec4{6, 0, 3, 1}).Vec3(),
			Color:    c,
			Range:    8,
		}
	}
	return lights
}

// Cull implements render.World
func (s *scene) Cull(v render.Volume) render.ObjectSet {
	t := s.seconds()
	set := render.ObjectSet{
		Tiles:   s.tiles,
		Markers: s.markers,
	}
	for _, o := range s.objects {
		transform := o.base.Mul4(glm.HomogRotate3DZ(t * o.spin))
		set.Opaque = append(set.Opaque, model.Instance(o.mesh, o.bounds, transform, o.value))
	}
	return set.Cull(v)
}

// Release releases the uploaded models.
func (s *scene) Release() {
	for _, b := range s.buffers {
		b.Release()
	}
	s.buffers = nil
}

// newInterface returns a status bar and a cursor quad, in clip space.
func newInterface() *render.StaticInterface {
	quad := render.Mesh{VertexCount: 6}
	return &render.StaticInterface{
		Quads: []render.DrawInstruction{{
			Mesh:  quad,
			Model: glm.Translate3D(0, -0.95, 0).Mul4(glm.Scale3D(1, 0.05, 1)),
			Value: 0x202020c0,
		}, {
			Mesh:  quad,
			Model: glm.Scale3D(0.01, 0.01, 1),
			Value: 0xffffffff,
		}},
	}
}
