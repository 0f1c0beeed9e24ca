// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"context"
	"sync"
	"time"

	"github.com/devblok/korender/diag"
	"github.com/devblok/korender/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Command buffer labels
const (
	LabelPickerRender      = "picker-render"
	LabelPickerReadback    = "picker-readback"
	LabelInterface         = "interface"
	LabelDirectionalShadow = "directional-shadow"
	LabelPointShadow       = "point-shadow"
	LabelDeferredGeometry  = "deferred-geometry"
	LabelDeferredScreen    = "deferred-screen"
)

// SubmissionOrder is the order command buffers are submitted in every
// frame. The screen pass samples both shadow maps so it comes after them.
var SubmissionOrder = [...]string{
	LabelPickerRender,
	LabelPickerReadback,
	LabelInterface,
	LabelDirectionalShadow,
	LabelPointShadow,
	LabelDeferredGeometry,
	LabelDeferredScreen,
}

// recordTasks is the number of parallel recording tasks of a frame.
const recordTasks = 5

// FrameInfo describes a presented frame.
type FrameInfo struct {
	Frame uint64
	Slot  int

	Width, Height uint32
	PickerWidth   uint32

	ShadowResolution      uint32
	PointShadowResolution uint32
	PointLights           int

	Objects   int
	Submitted []string

	// Elapsed is the time since the renderer started, Delta the time
	// since the previous frame.
	Elapsed time.Duration
	Delta   time.Duration
}

type pickRequest struct {
	x, y int
	dest *PickerValue
}

// targetSet is one copy of every per-frame render target.
type targetSet struct {
	deferred     *DeferredTarget
	picker       *PickerTarget
	overlay      *SingleTarget
	overlayFresh bool

	directional *DirectionalShadowTarget
	point       *PointShadowTarget
}

func (s *targetSet) releaseSurfaceTargets() {
	if s.deferred != nil {
		s.deferred.Release()
		s.deferred = nil
	}
	if s.picker != nil {
		s.picker.Release()
		s.picker = nil
	}
	if s.overlay != nil {
		s.overlay.Release()
		s.overlay = nil
	}
}

func (s *targetSet) releaseShadowTargets() {
	if s.directional != nil {
		s.directional.Release()
		s.directional = nil
	}
	if s.point != nil {
		s.point.Release()
		s.point = nil
	}
}

// NewRenderer creates a renderer drawing world and ui onto surface.
// ui may be nil.
func NewRenderer(dev gfx.Device, surface gfx.Surface, world World, ui Interface, s Settings, d *diag.Service, logger log.FieldLogger) (*Renderer, error) {
	if world == nil {
		return nil, errors.New("renderer needs a world")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if !s.ShadowDetail.valid() {
		s.ShadowDetail = ShadowMedium
	}
	if s.MaxPointLights <= 0 {
		s.MaxPointLights = DefaultMaxPointLights
	}
	if s.Workers <= 0 || s.Workers > recordTasks {
		s.Workers = recordTasks
	}

	presenter, err := NewSurfacePresenter(surface, s, d, logger)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		dev:       dev,
		presenter: presenter,
		diag:      d,
		log:       logger.WithField("component", "renderer"),
		world:     world,
		ui:        ui,
		detail:    s.ShadowDetail,
		workers:   s.Workers,
		maxLights: s.MaxPointLights,
		now:       time.Now,
	}

	quad, err := dev.CreateBuffer(gfx.BufferDescriptor{
		Label: d.Label("screen-quad"),
		Usage: gfx.BufferUsageVertex,
	}, gfx.EncodeVertices(screenQuadVertices))
	if err != nil {
		return nil, errors.Wrap(err, "create screen quad")
	}
	r.screenQuad = Mesh{Buffer: quad, VertexCount: uint32(len(screenQuadVertices))}

	cfg := presenter.Configuration()
	if r.pipelines, err = NewPipelines(dev, cfg.Format); err != nil {
		r.Release()
		return nil, err
	}
	if err := r.buildSlots(cfg); err != nil {
		r.Release()
		return nil, err
	}
	r.start = r.now()
	r.last = r.start
	return r, nil
}

var screenQuadVertices = []gfx.Vertex{
	{Position: glm.Vec3{-1, -1, 0}, UV: glm.Vec2{0, 1}},
	{Position: glm.Vec3{1, -1, 0}, UV: glm.Vec2{1, 1}},
	{Position: glm.Vec3{1, 1, 0}, UV: glm.Vec2{1, 0}},
	{Position: glm.Vec3{-1, -1, 0}, UV: glm.Vec2{0, 1}},
	{Position: glm.Vec3{1, 1, 0}, UV: glm.Vec2{1, 0}},
	{Position: glm.Vec3{-1, 1, 0}, UV: glm.Vec2{0, 0}},
}

// Renderer produces frames. RenderFrame is called from a single
// goroutine, the setters and QueueReadPickerValue from any.
type Renderer struct {
	dev       gfx.Device
	presenter *SurfacePresenter
	diag      *diag.Service
	log       log.FieldLogger
	world     World
	ui        Interface

	pipelines  *Pipelines
	screenQuad Mesh
	slots      []*targetSet
	slot       int
	frame      uint64

	width, height uint32
	detail        ShadowDetail
	workers       int
	maxLights     int

	now         func() time.Time
	start, last time.Time

	mu            sync.Mutex
	pendingDetail ShadowDetail
	detailPending bool
	pendingReads  []pickRequest
	debugCamera   *Camera
}

// Presenter returns the surface presenter.
func (r *Renderer) Presenter() *SurfacePresenter { return r.presenter }

// ShadowDetail returns the shadow detail in use.
func (r *Renderer) ShadowDetail() ShadowDetail { return r.detail }

// SetShadowDetail changes the shadow detail from the next frame on.
func (r *Renderer) SetShadowDetail(d ShadowDetail) {
	if !d.valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingDetail = d
	r.detailPending = true
}

// SetPresentMode changes the present mode from the next frame on.
func (r *Renderer) SetPresentMode(m gfx.PresentMode) {
	r.presenter.SetPresentMode(m)
}

// SetBufferingDepth changes the buffering depth from the next frame on.
func (r *Renderer) SetBufferingDepth(n int) {
	r.presenter.SetBufferingDepth(n)
}

// UpdateWindowSize resizes the surface and every target from the next
// frame on.
func (r *Renderer) UpdateWindowSize(width, height uint32) {
	r.presenter.Resize(width, height)
}

// SetDebugCamera renders through c instead of the world's camera, culling
// still uses the world's camera. nil restores the world's camera.
func (r *Renderer) SetDebugCamera(c *Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debugCamera = c
}

// QueueReadPickerValue reads the id under window coordinates x, y during
// the next frame. dest is updated once the device completes the read,
// which is observable by the frame after.
func (r *Renderer) QueueReadPickerValue(x, y int, dest *PickerValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingReads = append(r.pendingReads, pickRequest{x: x, y: y, dest: dest})
}

func (r *Renderer) newSurfaceTargets(s *targetSet, cfg gfx.SurfaceConfiguration) error {
	var err error
	if s.deferred, err = NewDeferredTarget(r.dev, r.diag, cfg.Width, cfg.Height); err != nil {
		return err
	}
	if s.picker, err = NewPickerTarget(r.dev, r.diag, cfg.Width, cfg.Height); err != nil {
		return err
	}
	s.overlay, err = NewSingleTarget(r.dev, r.diag, SingleTargetDescriptor{
		Label:  "interface",
		Format: InterfaceFormat,
		Clear:  ClearColor,
		Width:  cfg.Width,
		Height: cfg.Height,
	})
	if err != nil {
		return err
	}
	s.overlayFresh = true
	return nil
}

func (r *Renderer) newShadowTargets(s *targetSet, d ShadowDetail) error {
	var err error
	if s.directional, err = NewDirectionalShadowTarget(r.dev, r.diag, d.DirectionalResolution()); err != nil {
		return err
	}
	s.point, err = NewPointShadowTarget(r.dev, r.diag, d.PointResolution(), r.maxLights)
	return err
}

func (r *Renderer) buildSlots(cfg gfx.SurfaceConfiguration) error {
	for _, s := range r.slots {
		s.releaseSurfaceTargets()
		s.releaseShadowTargets()
	}
	r.slots = make([]*targetSet, cfg.BufferCount)
	for i := range r.slots {
		s := &targetSet{}
		r.slots[i] = s
		if err := r.newSurfaceTargets(s, cfg); err != nil {
			return err
		}
		if err := r.newShadowTargets(s, r.detail); err != nil {
			return err
		}
	}
	r.slot = 0
	r.width, r.height = cfg.Width, cfg.Height
	r.diag.TargetsRecreated()
	return nil
}

// applyPending applies the changes requested since the last frame.
func (r *Renderer) applyPending() error {
	r.mu.Lock()
	detail, detailChanged := r.pendingDetail, r.detailPending
	r.detailPending = false
	r.mu.Unlock()
	detailChanged = detailChanged && detail != r.detail

	if r.presenter.IsInvalid() {
		if _, err := r.presenter.Reconfigure(); err != nil {
			return errors.Wrap(err, "apply surface configuration")
		}
	}
	cfg := r.presenter.Configuration()
	formatChanged := cfg.Format != r.pipelines.Format()
	depthChanged := cfg.BufferCount != len(r.slots)
	sizeChanged := cfg.Width != r.width || cfg.Height != r.height

	if !formatChanged && !depthChanged && !sizeChanged && !detailChanged {
		return nil
	}

	// in flight work may still use what is about to be released
	if err := r.dev.Poll(true); err != nil {
		return errors.Wrap(err, "wait for device")
	}

	if formatChanged {
		if err := r.rebuildPipelines(cfg.Format); err != nil {
			return err
		}
	}
	if detailChanged {
		r.log.WithFields(log.Fields{"old": r.detail, "new": detail}).Info("shadow detail changed")
		r.detail = detail
	}

	switch {
	case depthChanged:
		r.log.WithField("depth", cfg.BufferCount).Info("buffering depth changed")
		return r.buildSlots(cfg)
	case sizeChanged:
		r.log.WithFields(log.Fields{"width": cfg.Width, "height": cfg.Height}).Info("recreating targets")
		for _, s := range r.slots {
			s.releaseSurfaceTargets()
			if err := r.newSurfaceTargets(s, cfg); err != nil {
				return err
			}
		}
		r.width, r.height = cfg.Width, cfg.Height
		r.diag.TargetsRecreated()
	}
	if detailChanged {
		for _, s := range r.slots {
			s.releaseShadowTargets()
			if err := r.newShadowTargets(s, r.detail); err != nil {
				return err
			}
		}
		r.diag.TargetsRecreated()
	}
	return nil
}

func (r *Renderer) rebuildPipelines(f gfx.Format) error {
	p, err := NewPipelines(r.dev, f)
	if err != nil {
		return err
	}
	r.pipelines.Release()
	r.pipelines = p
	return nil
}

// frameState is everything computed before recording starts.
type frameState struct {
	frame   uint64
	slot    int
	elapsed time.Duration
	delta   time.Duration
	surface gfx.SurfaceTexture

	main     Camera
	view     Camera
	sun      Camera
	sunLight DirectionalLight
	lights   []PointLight
	faces    [][CubeFaces]Camera

	overlay Overlay
	reads   []pickRequest
}

func (r *Renderer) computeFrameState() (*frameState, error) {
	now := r.now()
	fs := &frameState{
		frame:   r.frame,
		slot:    r.slot,
		elapsed: now.Sub(r.start),
		delta:   now.Sub(r.last),
	}
	r.last = now

	st, err := r.presenter.Acquire()
	if err != nil {
		return nil, err
	}
	fs.surface = st
	// a reconfiguration during acquisition can change the format
	if f := r.presenter.Configuration().Format; f != r.pipelines.Format() {
		if err := r.dev.Poll(true); err != nil {
			return nil, errors.Wrap(err, "wait for device")
		}
		if err := r.rebuildPipelines(f); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	debug := r.debugCamera
	fs.reads = r.pendingReads
	r.pendingReads = nil
	r.mu.Unlock()

	aspect := float32(r.width) / float32(r.height)
	fs.main = r.world.Camera(aspect)
	fs.view = fs.main
	if debug != nil {
		fs.view = *debug
	}
	fs.sunLight = r.world.Sun()
	fs.sun = fs.sunLight.Camera()

	fs.lights = r.world.PointLights()
	if len(fs.lights) > r.maxLights {
		fs.lights = fs.lights[:r.maxLights]
	}
	fs.faces = make([][CubeFaces]Camera, len(fs.lights))
	for i, l := range fs.lights {
		fs.faces[i] = l.FaceCameras()
	}

	if r.ui != nil {
		fs.overlay = r.ui.Overlay()
	}
	// every slot keeps its own overlay image, a cleared interface must
	// reach all of them
	if fs.overlay.Clear {
		for _, s := range r.slots {
			s.overlayFresh = true
		}
	}
	return fs, nil
}

// sceneSets are the culled objects of a frame, one set per volume.
type sceneSets struct {
	main   ObjectSet
	sun    ObjectSet
	lights []ObjectSet
}

func (r *Renderer) cullScene(fs *frameState) *sceneSets {
	sets := &sceneSets{
		main:   r.world.Cull(fs.main.Frustum()),
		sun:    r.world.Cull(fs.sun.Frustum()),
		lights: make([]ObjectSet, len(fs.lights)),
	}
	for i, l := range fs.lights {
		sets.lights[i] = r.world.Cull(l.Bounds())
	}
	return sets
}

// recordings are the finished command buffers of a frame.
type recordings struct {
	pickerRender   gfx.CommandBuffer
	pickerReadback gfx.CommandBuffer
	overlay        gfx.CommandBuffer
	directional    gfx.CommandBuffer
	point          gfx.CommandBuffer
	geometry       gfx.CommandBuffer
	screen         gfx.CommandBuffer
}

func (rec *recordings) ordered() []gfx.CommandBuffer {
	return []gfx.CommandBuffer{
		rec.pickerRender,
		rec.pickerReadback,
		rec.overlay,
		rec.directional,
		rec.point,
		rec.geometry,
		rec.screen,
	}
}

func (r *Renderer) encoder(label string) (gfx.CommandEncoder, error) {
	enc, err := r.dev.CreateCommandEncoder(label)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s encoder", label)
	}
	return enc, nil
}

// recordParallel records every pass family in its own task. A task only
// writes to its own target and encoders.
func (r *Renderer) recordParallel(fs *frameState, sets *sceneSets) (*recordings, error) {
	set := r.slots[fs.slot]
	rec := &recordings{}

	var g errgroup.Group
	g.SetLimit(r.workers)
	g.Go(func() (err error) {
		rec.pickerRender, rec.pickerReadback, err = r.recordPicker(set.picker, fs, sets.main)
		return
	})
	g.Go(func() (err error) {
		rec.directional, err = r.recordDirectionalShadow(set.directional, fs, sets.sun)
		return
	})
	g.Go(func() (err error) {
		rec.point, err = r.recordPointShadows(set.point, fs, sets.lights)
		return
	})
	g.Go(func() (err error) {
		rec.geometry, rec.screen, err = r.recordDeferred(set, fs, sets.main)
		return
	})
	g.Go(func() (err error) {
		rec.overlay, err = r.recordInterface(set, fs)
		return
	})
	if err := g.Wait(); err != nil {
		return rec, err
	}
	return rec, nil
}

func (r *Renderer) drawList(p *Pass, id SubRenderer, vp glm.Mat4, list []DrawInstruction, textures ...gfx.Texture) {
	for _, di := range list {
		p.Bind(id, r.pipelines.Get(id), textures...)
		p.DrawMesh(di.Mesh, gfx.PushConstants{Transform: vp.Mul4(di.Model), Value: di.Value})
	}
}

func (r *Renderer) recordPicker(t *PickerTarget, fs *frameState, objects ObjectSet) (gfx.CommandBuffer, gfx.CommandBuffer, error) {
	enc, err := r.encoder(LabelPickerRender)
	if err != nil {
		return nil, nil, err
	}
	vp := fs.view.ViewProjection()
	pass := t.StartPass(enc)
	r.drawList(pass, SubRendererPickerTile, vp, objects.Tiles)
	r.drawList(pass, SubRendererPickerEntity, vp, objects.Opaque)
	r.drawList(pass, SubRendererPickerEntity, vp, objects.Sprites)
	r.drawList(pass, SubRendererPickerMarker, vp, objects.Markers)
	pass.End()
	render := t.Finish(enc)

	readback, err := r.encoder(LabelPickerReadback)
	if err != nil {
		render.Release()
		return nil, nil, err
	}
	for _, rd := range fs.reads {
		t.QueueReadPickerValue(readback, rd.x, rd.y, rd.dest)
	}
	return render, t.Finish(readback), nil
}

func (r *Renderer) recordDirectionalShadow(t *DirectionalShadowTarget, fs *frameState, objects ObjectSet) (gfx.CommandBuffer, error) {
	enc, err := r.encoder(LabelDirectionalShadow)
	if err != nil {
		return nil, err
	}
	pass := t.StartPass(enc)
	r.drawList(pass, SubRendererShadow, fs.sun.ViewProjection(), objects.Casters())
	pass.End()
	return t.Finish(enc), nil
}

// recordPointShadows records the six faces of every light into a single
// encoder, so one command buffer holds the shadows of all lights.
func (r *Renderer) recordPointShadows(t *PointShadowTarget, fs *frameState, objects []ObjectSet) (gfx.CommandBuffer, error) {
	enc, err := r.encoder(LabelPointShadow)
	if err != nil {
		return nil, err
	}
	for i := range fs.lights {
		if i >= t.Lights() {
			break
		}
		casters := objects[i].Casters()
		for face, cam := range fs.faces[i] {
			pass := t.StartFacePass(enc, i, face)
			r.drawList(pass, SubRendererShadow, cam.ViewProjection(), casters)
			pass.End()
		}
	}
	return t.Finish(enc), nil
}

func packColor(c glm.Vec3) uint32 {
	ch := func(v float32) uint32 {
		return uint32(clamp(int(v*255+0.5), 0, 255))
	}
	return ch(c[0]) | ch(c[1])<<8 | ch(c[2])<<16 | 0xff<<24
}

func (r *Renderer) recordDeferred(set *targetSet, fs *frameState, objects ObjectSet) (gfx.CommandBuffer, gfx.CommandBuffer, error) {
	t := set.deferred
	genc, err := r.encoder(LabelDeferredGeometry)
	if err != nil {
		return nil, nil, err
	}
	vp := fs.view.ViewProjection()
	pass := t.StartGeometryPass(genc)
	r.drawList(pass, SubRendererTerrain, vp, objects.Tiles)
	r.drawList(pass, SubRendererModel, vp, objects.Opaque)
	r.drawList(pass, SubRendererSprite, vp, objects.Sprites)
	r.drawList(pass, SubRendererWater, vp, objects.Translucent)
	pass.End()
	geometry := t.Finish(genc)

	senc, err := r.encoder(LabelDeferredScreen)
	if err != nil {
		geometry.Release()
		return nil, nil, err
	}
	inputs := t.Inputs()
	ident := glm.Ident4()
	screen := t.StartScreenPass(senc, fs.surface.Texture)

	screen.Bind(SubRendererAmbient, r.pipelines.Get(SubRendererAmbient), inputs...)
	screen.DrawMesh(r.screenQuad, gfx.PushConstants{Transform: ident, Value: packColor(glm.Vec3{0.2, 0.2, 0.2})})

	screen.Bind(SubRendererDirectionalLight, r.pipelines.Get(SubRendererDirectionalLight), append(inputs, set.directional.Depth)...)
	screen.DrawMesh(r.screenQuad, gfx.PushConstants{Transform: ident, Value: packColor(fs.sunLight.Color)})

	for i, l := range fs.lights {
		screen.Bind(SubRendererPointLight, r.pipelines.Get(SubRendererPointLight), append(inputs, set.point.Depth)...)
		// the light index selects the shadow cube
		screen.DrawMesh(r.screenQuad, gfx.PushConstants{Transform: ident, Value: uint32(i)<<24 | packColor(l.Color)&0xffffff})
	}

	r.drawList(screen, SubRendererMarker, vp, objects.Markers)
	r.drawList(screen, SubRendererParticle, vp, objects.Particles)

	screen.Bind(SubRendererComposite, r.pipelines.Get(SubRendererComposite), set.overlay.Texture)
	screen.DrawMesh(r.screenQuad, gfx.PushConstants{Transform: ident})
	screen.End()
	return geometry, t.Finish(senc), nil
}

func (r *Renderer) recordInterface(set *targetSet, fs *frameState) (gfx.CommandBuffer, error) {
	enc, err := r.encoder(LabelInterface)
	if err != nil {
		return nil, err
	}
	clear := set.overlayFresh
	set.overlayFresh = false
	pass := set.overlay.StartPass(enc, clear)
	r.drawList(pass, SubRendererInterface, glm.Ident4(), fs.overlay.Quads)
	pass.End()
	return set.overlay.Finish(enc), nil
}

// retire waits for the device to retire earlier frames, which runs the
// pending picker reads. It is the frame's only wait and comes before any
// encoder of the frame is created.
func (r *Renderer) retire() error {
	return errors.Wrap(r.dev.Poll(true), "wait for device")
}

// submit submits the frame in SubmissionOrder and issues its picker reads.
func (r *Renderer) submit(fs *frameState, rec *recordings) error {
	if err := r.dev.Queue().Submit(rec.ordered()...); err != nil {
		return errors.Wrap(err, "submit frame")
	}
	r.slots[fs.slot].picker.CommitReads(r.log)
	return nil
}

// discard releases the recordings of a frame that will not be submitted.
// The picker reads of the frame are dropped, their values stay as they were.
func (r *Renderer) discard(fs *frameState, rec *recordings) {
	if rec != nil {
		for _, cb := range rec.ordered() {
			if cb != nil {
				cb.Release()
			}
		}
	}
	r.slots[fs.slot].picker.DropReads()
	if n := len(fs.reads); n > 0 {
		r.log.WithField("reads", n).Warn("picker reads dropped")
	}
}

// RenderFrame renders and presents one frame. Changes requested since the
// previous frame are applied first. An error ends frame production, a
// failed acquisition has ErrSurfaceFatal as its cause.
func (r *Renderer) RenderFrame(ctx context.Context) (FrameInfo, error) {
	if err := ctx.Err(); err != nil {
		return FrameInfo{}, err
	}
	if err := r.applyPending(); err != nil {
		return FrameInfo{}, err
	}

	fs, err := r.computeFrameState()
	if err != nil {
		r.log.WithError(err).Error("frame aborted")
		return FrameInfo{}, err
	}
	sets := r.cullScene(fs)
	if err := r.retire(); err != nil {
		r.discard(fs, nil)
		return FrameInfo{}, err
	}
	rec, err := r.recordParallel(fs, sets)
	if err != nil {
		r.discard(fs, rec)
		return FrameInfo{}, err
	}
	if err := r.submit(fs, rec); err != nil {
		r.discard(fs, rec)
		return FrameInfo{}, err
	}
	if err := r.presenter.Present(fs.surface); err != nil {
		return FrameInfo{}, err
	}

	set := r.slots[fs.slot]
	info := FrameInfo{
		Frame:                 fs.frame,
		Slot:                  fs.slot,
		Width:                 r.width,
		Height:                r.height,
		PickerWidth:           set.picker.PaddedWidth(),
		ShadowResolution:      set.directional.Resolution(),
		PointShadowResolution: set.point.Resolution(),
		PointLights:           len(fs.lights),
		Objects:               sets.main.Len(),
		Submitted:             append([]string(nil), SubmissionOrder[:]...),
		Elapsed:               fs.elapsed,
		Delta:                 fs.delta,
	}
	r.diag.FramePresented()
	r.frame++
	r.slot = (r.slot + 1) % len(r.slots)
	return info, nil
}

// Release waits for the device and releases every target.
func (r *Renderer) Release() {
	if err := r.dev.Poll(true); err != nil {
		r.log.WithError(err).Warn("release without idle device")
	}
	for _, s := range r.slots {
		s.releaseSurfaceTargets()
		s.releaseShadowTargets()
	}
	r.slots = nil
	if r.pipelines != nil {
		r.pipelines.Release()
	}
	release(r.screenQuad.Buffer)
}
