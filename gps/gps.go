// Package gps is the station's geospatial engine. It turns position updates
// into map state: connection status, a bounded trail, a smoothly animated
// marker, the current destination and arrival detection. After every change
// it asks a Composer for a new raster and publishes it on Renders.
package gps

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/sendergui/groundstation/events"
	"github.com/sendergui/groundstation/logging"
	"github.com/sendergui/groundstation/metrics"
)

// TileProvider produces the base map image for a viewport.
type TileProvider interface {
	BaseImage(ctx context.Context, v Viewport) (image.Image, error)
}

// Composer draws map state over a base image. It must not modify base.
type Composer interface {
	Compose(base image.Image, st MapState) (image.Image, error)
}

// followMargin is the fraction of the view the vehicle may approach before
// the map is recentered.
const followMargin = 0.15

type Engine struct {
	cfg      Config
	tiles    TileProvider
	composer Composer
	log      zerolog.Logger

	// Renders carries every composed raster.
	Renders *events.Feed[Render]
	// Arrivals carries the destination that was reached.
	Arrivals *events.Feed[Position]
	// FirstFix fires once, on the first position update.
	FirstFix *events.Feed[Position]

	mu          sync.Mutex
	connected   bool
	latest      Position
	displayed   r2.Vec
	anim        animation
	trail       *trail
	destination *Position
	pathVisible bool
	viewport    Viewport // geometry of base
	wanted      Viewport // last requested geometry
	base        image.Image
	baseCtx     context.Context

	fetchMu  sync.Mutex
	renderMu sync.Mutex
	seq      uint64
}

// NewEngine returns an engine showing cfg.Center. Call Refresh to load the
// first base image and Run to start the animation ticker.
func NewEngine(cfg Config, tiles TileProvider, composer Composer) *Engine {
	cfg.setDefaults()
	vp := Viewport{Center: cfg.Center, Zoom: cfg.Zoom, Width: cfg.Width, Height: cfg.Height}
	return &Engine{
		cfg:         cfg,
		tiles:       tiles,
		composer:    composer,
		log:         logging.Component("engine"),
		Renders:     events.NewFeed[Render](),
		Arrivals:    events.NewFeed[Position](),
		FirstFix:    events.NewFeed[Position](),
		displayed:   cfg.Center.vec(),
		trail:       newTrail(cfg.PathCapacity),
		pathVisible: true,
		viewport:    vp,
		wanted:      vp,
		baseCtx:     context.Background(),
	}
}

// UpdatePosition applies one position fix.
func (e *Engine) UpdatePosition(lat, lon float64) {
	pos := Position{Latitude: lat, Longitude: lon}
	now := e.cfg.Now()

	e.mu.Lock()
	first := !e.connected
	e.connected = true
	e.latest = pos
	e.trail.add(pos)

	if first {
		e.displayed = pos.vec()
		e.anim = animation{to: pos.vec()}
	} else {
		e.anim.retarget(e.displayed, pos.vec(), now, e.cfg.AnimationDuration)
	}

	var reached *Position
	if e.destination != nil {
		d := DistanceMeters(pos, *e.destination)
		if WithinArrival(d, e.cfg.ArrivalThreshold) {
			reached = e.destination
			e.destination = nil
			e.log.Info().Stringer("destination", *reached).Float64("distance_m", d).Msg("destination reached")
		}
	}

	var recenter *Viewport
	if e.cfg.Follow {
		px, err := e.wanted.Project(pos)
		if first || err != nil || !e.wanted.Inside(px, followMargin) {
			v := e.wanted
			v.Center = pos
			e.wanted = v
			recenter = &v
		}
	}
	ctx := e.baseCtx
	e.mu.Unlock()

	metrics.PositionUpdates.Inc()

	if first {
		e.log.Info().Stringer("position", pos).Msg("gps connected")
		e.FirstFix.Publish(pos)
	}
	if reached != nil {
		metrics.Arrivals.Inc()
		e.Arrivals.Publish(*reached)
	}
	if recenter != nil {
		go e.fetch(ctx, *recenter)
	}
	e.render()
}

// SetWaypoints makes the last coordinate the destination, or clears it.
func (e *Engine) SetWaypoints(coords []Position) {
	e.mu.Lock()
	if len(coords) == 0 {
		e.destination = nil
	} else {
		d := coords[len(coords)-1]
		e.destination = &d
	}
	e.mu.Unlock()
	e.render()
}

// Tick advances the marker animation and re-renders only if the displayed
// position moved. It reports whether a render happened.
func (e *Engine) Tick(now time.Time) bool {
	e.mu.Lock()
	if !e.anim.active {
		e.mu.Unlock()
		return false
	}
	v, done := e.anim.at(now)
	if done {
		e.anim.active = false
	}
	changed := v != e.displayed
	e.displayed = v
	e.mu.Unlock()

	if changed {
		e.render()
	}
	return changed
}

// Run drives Tick at the configured interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick(e.cfg.Now())
		}
	}
}

// Refresh reloads the base image for the current view.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	v := e.wanted
	e.mu.Unlock()
	return e.fetch(ctx, v)
}

// SetZoom changes the zoom level (clamped to MinZoom..MaxZoom) and reloads
// the base image. It returns the effective level.
func (e *Engine) SetZoom(ctx context.Context, zoom int) (int, error) {
	zoom = ClampZoom(zoom)
	e.mu.Lock()
	if e.wanted.Zoom == zoom {
		e.mu.Unlock()
		return zoom, nil
	}
	e.wanted.Zoom = zoom
	v := e.wanted
	e.mu.Unlock()

	e.log.Info().Int("zoom", zoom).Msg("zoom changed")
	return zoom, e.fetch(ctx, v)
}

// ZoomBy changes the zoom level by delta.
func (e *Engine) ZoomBy(ctx context.Context, delta int) (int, error) {
	e.mu.Lock()
	z := e.wanted.Zoom
	e.mu.Unlock()
	return e.SetZoom(ctx, z+delta)
}

// Recenter moves the map center to p and reloads the base image.
func (e *Engine) Recenter(ctx context.Context, p Position) error {
	if _, err := WorldPixel(p, MinZoom); err != nil {
		return err
	}
	e.mu.Lock()
	e.wanted.Center = p
	v := e.wanted
	e.mu.Unlock()
	return e.fetch(ctx, v)
}

// ClearPath drops the trail.
func (e *Engine) ClearPath() {
	e.mu.Lock()
	e.trail.clear()
	e.mu.Unlock()
	e.render()
}

// SetPathVisible shows or hides the trail.
func (e *Engine) SetPathVisible(visible bool) {
	e.mu.Lock()
	e.pathVisible = visible
	e.mu.Unlock()
	e.render()
}

// TogglePath flips trail visibility and returns the new state.
func (e *Engine) TogglePath() bool {
	e.mu.Lock()
	e.pathVisible = !e.pathVisible
	v := e.pathVisible
	e.mu.Unlock()
	e.render()
	return v
}

// Status returns the data for the status label.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		Connected:   e.connected,
		Position:    e.latest,
		Displayed:   positionOf(e.displayed),
		Zoom:        e.wanted.Zoom,
		PathPoints:  e.trail.len(),
		PathVisible: e.pathVisible,
	}
	if e.destination != nil {
		d := *e.destination
		s.Destination = &d
	}
	return s
}

// Path returns the trail, oldest first.
func (e *Engine) Path() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trail.snapshot()
}

// Latest returns the most recent fix and whether one has been received.
func (e *Engine) Latest() (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.connected
}

// Snapshot returns the current map state without composing it.
func (e *Engine) Snapshot() MapState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() MapState {
	vp := e.viewport
	st := MapState{Base: e.base, Viewport: vp, PathVisible: e.pathVisible}

	if e.connected {
		if cur, err := vp.Project(positionOf(e.displayed)); err == nil {
			st.Current = &cur
		}
	}
	if e.destination != nil && st.Current != nil {
		if d, err := vp.Project(*e.destination); err == nil {
			st.Destination = &d
		}
	}
	if e.pathVisible && e.trail.len() >= 2 {
		pts := make([]r2.Vec, 0, e.trail.len())
		for _, p := range e.trail.points {
			if px, err := vp.Project(p); err == nil {
				pts = append(pts, px)
			}
		}
		if len(pts) >= 2 {
			st.Path = pts
		}
	}
	return st
}

// fetch loads the base image for v. Fetches are serialized; a result is
// dropped when a newer view was requested meanwhile.
func (e *Engine) fetch(ctx context.Context, v Viewport) error {
	e.fetchMu.Lock()
	defer e.fetchMu.Unlock()

	e.mu.Lock()
	stale := e.wanted != v
	e.mu.Unlock()
	if stale {
		return nil
	}

	if e.tiles == nil {
		e.mu.Lock()
		e.viewport = v
		e.mu.Unlock()
		e.render()
		return nil
	}

	img, err := e.tiles.BaseImage(ctx, v)
	if err != nil {
		metrics.TileFetches.WithLabelValues("error").Inc()
		e.log.Warn().Err(err).Int("zoom", v.Zoom).Stringer("center", v.Center).Msg("base tile unavailable")
		return err
	}
	metrics.TileFetches.WithLabelValues("ok").Inc()

	e.mu.Lock()
	if e.wanted != v {
		e.mu.Unlock()
		return nil
	}
	e.viewport = v
	e.base = img
	e.mu.Unlock()

	e.render()
	return nil
}

func (e *Engine) render() {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()

	e.mu.Lock()
	st := e.snapshotLocked()
	e.mu.Unlock()

	start := time.Now()
	var (
		img image.Image
		err error
	)
	if e.composer != nil {
		img, err = e.composer.Compose(st.Base, st)
	}
	metrics.RenderDuration.Observe(time.Since(start).Seconds())

	r := Render{Image: img, State: st, Err: err}
	if r.Available() {
		metrics.Renders.WithLabelValues("ok").Inc()
	} else {
		metrics.Renders.WithLabelValues("no_image").Inc()
	}

	e.seq++
	r.Seq = e.seq
	e.Renders.Publish(r)
}
