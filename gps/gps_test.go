package gps

import (
	"context"
	"errors"
	"image"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendergui/groundstation/events"
)

type tileFunc func(ctx context.Context, v Viewport) (image.Image, error)

func (f tileFunc) BaseImage(ctx context.Context, v Viewport) (image.Image, error) { return f(ctx, v) }

type passComposer struct{}

func (passComposer) Compose(base image.Image, st MapState) (image.Image, error) {
	if base == nil {
		return nil, errors.New("no base image")
	}
	return base, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type recorder struct {
	mu      sync.Mutex
	renders []Render
	zooms   []int
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renders)
}

func (r *recorder) last() Render {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders[len(r.renders)-1]
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *clock, *recorder) {
	t.Helper()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	rec := &recorder{}
	cfg := Config{Width: 400, Height: 300, Now: clk.Now}
	if mutate != nil {
		mutate(&cfg)
	}
	tiles := tileFunc(func(_ context.Context, v Viewport) (image.Image, error) {
		rec.mu.Lock()
		rec.zooms = append(rec.zooms, v.Zoom)
		rec.mu.Unlock()
		return image.NewRGBA(image.Rect(0, 0, v.Width, v.Height)), nil
	})
	e := NewEngine(cfg, tiles, passComposer{})
	e.Renders.Subscribe(func(r Render) {
		rec.mu.Lock()
		rec.renders = append(rec.renders, r)
		rec.mu.Unlock()
	})
	return e, clk, rec
}

// north returns a position meters due north of p.
func north(p Position, meters float64) Position {
	return Position{Latitude: p.Latitude + meters/EarthRadius*180/math.Pi, Longitude: p.Longitude}
}

func TestFirstUpdateConnectsOnce(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	fixes := 0
	e.FirstFix.Subscribe(func(Position) { fixes++ })

	assert.False(t, e.Status().Connected)
	assert.Nil(t, e.Snapshot().Current, "no marker before the first fix")

	e.UpdatePosition(23.8, 90.4)
	e.UpdatePosition(23.81, 90.41)

	s := e.Status()
	assert.True(t, s.Connected)
	assert.Equal(t, 1, fixes)
	assert.Equal(t, Position{23.81, 90.41}, s.Position)
	assert.Equal(t, Position{23.8, 90.4}, s.Displayed, "second fix animates, first one jumps")
	assert.Equal(t, 2, s.PathPoints)
}

func TestTickInterpolatesAndSkipsIdleFrames(t *testing.T) {
	e, clk, rec := newTestEngine(t, nil)
	e.UpdatePosition(10, 20)
	t0 := clk.Now()
	e.UpdatePosition(10.001, 20.002)
	rendersAfterUpdate := rec.count()

	assert.True(t, e.Tick(t0.Add(400*time.Millisecond)))
	mid := e.Status().Displayed
	assert.InDelta(t, 10.0005, mid.Latitude, 1e-9)
	assert.InDelta(t, 20.001, mid.Longitude, 1e-9)

	assert.True(t, e.Tick(t0.Add(800*time.Millisecond)))
	assert.Equal(t, Position{10.001, 20.002}, e.Status().Displayed)

	assert.False(t, e.Tick(t0.Add(850*time.Millisecond)))
	assert.False(t, e.Tick(t0.Add(900*time.Millisecond)))
	assert.Equal(t, rendersAfterUpdate+2, rec.count())
}

func TestNewTargetSupersedesAnimation(t *testing.T) {
	e, clk, _ := newTestEngine(t, nil)
	e.UpdatePosition(0, 0)
	e.UpdatePosition(0, 0.01)

	t1 := clk.advance(400 * time.Millisecond)
	e.Tick(t1)
	mid := e.Status().Displayed
	require.InDelta(t, 0.005, mid.Longitude, 1e-12)

	e.UpdatePosition(0, -0.01)
	e.Tick(t1)
	assert.Equal(t, mid, e.Status().Displayed, "new animation starts from the displayed position")

	e.Tick(t1.Add(800 * time.Millisecond))
	assert.Equal(t, Position{0, -0.01}, e.Status().Displayed)
}

func TestArrivalClearsDestination(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)

	var arrivals []Position
	e.Arrivals.Subscribe(func(p Position) {
		arrivals = append(arrivals, p)
		// the mission table reacts by clearing its list
		e.SetWaypoints(nil)
	})

	e.SetWaypoints([]Position{{10, 20}})
	require.NotNil(t, e.Status().Destination)
	assert.Equal(t, Position{10, 20}, *e.Status().Destination)

	e.UpdatePosition(10, 20)

	assert.Equal(t, []Position{{10, 20}}, arrivals)
	assert.Nil(t, e.Status().Destination)
	assert.Nil(t, e.Snapshot().Destination)
}

func TestArrivalThreshold(t *testing.T) {
	dest := Position{10, 20}

	e, _, _ := newTestEngine(t, nil)
	arrived := 0
	e.Arrivals.Subscribe(func(Position) { arrived++ })
	e.SetWaypoints([]Position{{0, 0}, dest})

	e.UpdatePosition(north(dest, 5.1).Latitude, dest.Longitude)
	assert.Zero(t, arrived)
	assert.NotNil(t, e.Status().Destination)

	e.UpdatePosition(north(dest, 4.9).Latitude, dest.Longitude)
	assert.Equal(t, 1, arrived)
	assert.Nil(t, e.Status().Destination)

	// no destination, no further arrivals
	e.UpdatePosition(dest.Latitude, dest.Longitude)
	assert.Equal(t, 1, arrived)
}

func TestDestinationIsLastWaypoint(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	e.SetWaypoints([]Position{{1, 1}, {2, 2}, {3, 3}})
	assert.Equal(t, Position{3, 3}, *e.Status().Destination)

	e.SetWaypoints([]Position{{1, 1}})
	assert.Equal(t, Position{1, 1}, *e.Status().Destination)

	e.SetWaypoints(nil)
	assert.Nil(t, e.Status().Destination)
}

func TestDestinationLayerWaitsForFirstFix(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.Center = Position{10, 20} })
	e.SetWaypoints([]Position{{10.001, 20.001}})

	st := e.Snapshot()
	assert.Nil(t, st.Current)
	assert.Nil(t, st.Destination, "destination line needs a vehicle marker to start from")
	require.NotNil(t, e.Status().Destination)

	e.UpdatePosition(10, 20)
	st = e.Snapshot()
	require.NotNil(t, st.Current)
	assert.NotNil(t, st.Destination)
}

func TestPathHistoryBounded(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	for i := 0; i < 150; i++ {
		e.UpdatePosition(float64(i)/1000, 0)
	}
	path := e.Path()
	require.Len(t, path, 100)
	assert.Equal(t, Position{0.05, 0}, path[0])
	assert.Equal(t, Position{0.149, 0}, path[99])
	assert.Equal(t, 100, e.Status().PathPoints)

	e.ClearPath()
	assert.Empty(t, e.Path())
}

func TestSnapshotLayers(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.Center = Position{10, 20} })
	require.NoError(t, e.Refresh(context.Background()))

	e.UpdatePosition(10, 20)
	st := e.Snapshot()
	require.NotNil(t, st.Current)
	assert.InDelta(t, 200, st.Current.X, 1e-6)
	assert.InDelta(t, 150, st.Current.Y, 1e-6)
	assert.Nil(t, st.Path, "a single point draws no trail")
	assert.Nil(t, st.Destination)
	assert.NotNil(t, st.Base)

	e.UpdatePosition(10.0001, 20.0001)
	e.SetWaypoints([]Position{{10.001, 20.001}})
	st = e.Snapshot()
	assert.Len(t, st.Path, 2)
	require.NotNil(t, st.Destination)
	assert.Less(t, st.Destination.Y, st.Current.Y, "north is up")

	assert.False(t, e.TogglePath())
	assert.Nil(t, e.Snapshot().Path)
	e.SetPathVisible(true)
	assert.Len(t, e.Snapshot().Path, 2)
}

func TestUnprojectableDestinationOmitted(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	e.UpdatePosition(10, 20)
	e.SetWaypoints([]Position{{90, 0}})

	st := e.Snapshot()
	assert.NotNil(t, st.Current)
	assert.Nil(t, st.Destination)
}

func TestZoomClampedAndRefetches(t *testing.T) {
	e, _, rec := newTestEngine(t, nil)
	ctx := context.Background()

	z, err := e.SetZoom(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, MaxZoom, z)

	z, err = e.ZoomBy(ctx, +1)
	require.NoError(t, err)
	assert.Equal(t, MaxZoom, z)

	z, err = e.ZoomBy(ctx, -20)
	require.NoError(t, err)
	assert.Equal(t, MinZoom, z)

	assert.Equal(t, []int{19, 10}, rec.zooms, "unchanged zoom does not refetch")
	assert.Equal(t, MinZoom, e.Status().Zoom)
	assert.Equal(t, MinZoom, e.Snapshot().Viewport.Zoom)
}

func TestTileFailureDegradesToNoImage(t *testing.T) {
	rec := &recorder{}
	failing := tileFunc(func(context.Context, Viewport) (image.Image, error) {
		return nil, errors.New("tile server down")
	})
	e := NewEngine(Config{}, failing, passComposer{})
	e.Renders.Subscribe(func(r Render) { rec.renders = append(rec.renders, r) })

	assert.Error(t, e.Refresh(context.Background()))
	e.UpdatePosition(1, 2)

	require.NotZero(t, rec.count())
	last := rec.last()
	assert.False(t, last.Available())
	assert.NotNil(t, last.State.Current, "state is still computed without a base")
}

func TestRenderSequence(t *testing.T) {
	e, _, rec := newTestEngine(t, nil)
	e.UpdatePosition(1, 1)
	e.SetWaypoints(nil)
	e.ClearPath()

	require.Equal(t, 3, rec.count())
	for i, r := range rec.renders {
		assert.Equal(t, uint64(i+1), r.Seq)
	}
}

func TestFollowRecentersOnFirstFix(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.Follow = true })
	require.NoError(t, e.Refresh(context.Background()))

	e.UpdatePosition(23.8, 90.4)
	require.Eventually(t, func() bool {
		return e.Snapshot().Viewport.Center == Position{23.8, 90.4}
	}, 2*time.Second, 5*time.Millisecond)

	// small moves stay inside the view
	e.UpdatePosition(23.8001, 90.4001)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Position{23.8, 90.4}, e.Snapshot().Viewport.Center)

	// a jump out of view recenters again
	e.UpdatePosition(24.5, 91.0)
	require.Eventually(t, func() bool {
		return e.Snapshot().Viewport.Center == Position{24.5, 91.0}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.TickInterval = time.Millisecond; c.Now = time.Now })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.UpdatePosition(1, 1)
	e.UpdatePosition(1.001, 1.001)
	require.Eventually(t, func() bool {
		return e.Status().Displayed == Position{1.001, 1.001}
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "GPS: Waiting for data... | Zoom: 15", Status{Zoom: 15}.Text())
	s := Status{Connected: true, Position: Position{23.8, 90.4}, Zoom: 16, PathPoints: 7}
	assert.Equal(t, "GPS: Connected | Lat: 23.800000, Lon: 90.400000 | Zoom: 16 | Path: 7 pts", s.Text())
}

func TestHandlers(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	j, err := events.OpenJournal("")
	require.NoError(t, err)
	mux := http.NewServeMux()
	NewHandlers(e, j).SetupHandlers(mux)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/gps/status", "")
	assert.Contains(t, rec.Body.String(), "GPS: Waiting for data... | Zoom: 15")

	assert.Equal(t, http.StatusConflict, do(http.MethodPost, "/gps/recenter", "").Code)

	e.UpdatePosition(23.8, 90.4)
	rec = do(http.MethodGet, "/gps/status", "")
	assert.Contains(t, rec.Body.String(), "GPS: Connected | Lat: 23.800000, Lon: 90.400000 | Zoom: 15 | Path: 1 pts")
	assert.Contains(t, rec.Body.String(), "23°48&#39;0.00&#34;N")

	rec = do(http.MethodPost, "/gps/zoom-in", "")
	assert.Contains(t, rec.Body.String(), "Zoom: 16")
	assert.Equal(t, http.StatusMethodNotAllowed, do(http.MethodGet, "/gps/zoom-in", "").Code)

	rec = do(http.MethodPost, "/gps/zoom", "zoom=3")
	assert.Contains(t, rec.Body.String(), "Zoom: 10")
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/gps/zoom", "zoom=x").Code)

	rec = do(http.MethodPost, "/gps/path/toggle", "")
	assert.Contains(t, rec.Body.String(), "Show Path")

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/gps/recenter", "lat=95&lon=0").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/gps/recenter", "lat=22.5&lon=90.1").Code)
	assert.Equal(t, Position{22.5, 90.1}, e.Snapshot().Viewport.Center)

	rec = do(http.MethodPost, "/gps/path/clear", "")
	assert.Contains(t, rec.Body.String(), "Path: 0 pts")

	types := []string{}
	for _, ev := range j.Recent() {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, "zoom_changed")
	assert.Contains(t, types, "path_cleared")
	assert.Contains(t, types, "map_recentered")
}

func TestDegreesToDMS(t *testing.T) {
	assert.Equal(t, "23°48'0.00\"N", degreesToDMS(23.8, true))
	assert.Equal(t, "0°30'0.00\"W", degreesToDMS(-0.5, false))
}

func TestStatusFragments(t *testing.T) {
	ctx := context.Background()
	dest := Position{Latitude: 10.001, Longitude: 20}
	var b strings.Builder

	require.NoError(t, GPSStatus(Status{Zoom: 15, Destination: &dest}).Render(ctx, &b))
	assert.Contains(t, b.String(), `class="font-bold p-1 text-orange-600"`)
	assert.NotContains(t, b.String(), "Destination")

	b.Reset()
	st := Status{Connected: true, Position: Position{Latitude: 10, Longitude: 20}, Zoom: 15, Destination: &dest}
	require.NoError(t, GPSStatus(st).Render(ctx, &b))
	assert.Contains(t, b.String(), `class="font-bold p-1 text-green-700"`)
	assert.Contains(t, b.String(), "Destination: 10.001000,20.000000 (111.2 m)")

	b.Reset()
	require.NoError(t, PathToggle(true).Render(ctx, &b))
	assert.Equal(t, `<button hx-post="/gps/path/toggle" hx-swap="outerHTML" class="btn">Hide Path</button>`, b.String())
}
