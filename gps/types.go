package gps

import (
	"fmt"
	"image"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// Position is a WGS84 coordinate in decimal degrees.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (p Position) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

func (p Position) vec() r2.Vec { return r2.Vec{X: p.Longitude, Y: p.Latitude} }

func positionOf(v r2.Vec) Position { return Position{Latitude: v.Y, Longitude: v.X} }

// Config tunes the engine.
type Config struct {
	// Center is the initial map center.
	Center Position
	// Zoom is the initial zoom level, clamped to MinZoom..MaxZoom.
	Zoom          int
	Width, Height int

	PathCapacity      int
	ArrivalThreshold  float64 // meters, inclusive
	AnimationDuration time.Duration
	TickInterval      time.Duration

	// Follow recenters the base map on the first fix and whenever the
	// vehicle leaves the inner part of the view.
	Follow bool

	Now func() time.Time
}

const (
	DefaultPathCapacity      = 100
	DefaultArrivalThreshold  = 5.0
	DefaultAnimationDuration = 800 * time.Millisecond
	DefaultTickInterval      = 50 * time.Millisecond
	DefaultWidth             = 800
	DefaultHeight            = 600
)

// DefaultCenter is used until the first fix arrives.
var DefaultCenter = Position{Latitude: 22.80978657890875, Longitude: 90.41065979003906}

func (c *Config) setDefaults() {
	if c.Center == (Position{}) {
		c.Center = DefaultCenter
	}
	if c.Zoom == 0 {
		c.Zoom = DefaultZoom
	}
	c.Zoom = ClampZoom(c.Zoom)
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.PathCapacity <= 0 {
		c.PathCapacity = DefaultPathCapacity
	}
	if c.ArrivalThreshold <= 0 {
		c.ArrivalThreshold = DefaultArrivalThreshold
	}
	if c.AnimationDuration <= 0 {
		c.AnimationDuration = DefaultAnimationDuration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// MapState is an immutable snapshot handed to the composer. Marker and
// path coordinates are pixels in the base image.
type MapState struct {
	Base     image.Image
	Viewport Viewport

	// Current is nil before the first fix or when the displayed position
	// cannot be projected.
	Current *r2.Vec
	// Destination is set only when a destination exists and both it and
	// the current position project.
	Destination *r2.Vec
	// Path holds at least two points, or none.
	Path        []r2.Vec
	PathVisible bool
}

// Render is published after every composition. Image is nil when nothing
// could be composed; the UI shows "no image available" then.
type Render struct {
	Seq   uint64
	Image image.Image
	State MapState
	Err   error
}

// Available reports whether the render produced an image.
func (r Render) Available() bool {
	return r.Image != nil && r.Err == nil
}

// Status is the data behind the GPS status label.
type Status struct {
	Connected   bool      `json:"connected"`
	Position    Position  `json:"position"`
	Displayed   Position  `json:"displayed"`
	Zoom        int       `json:"zoom"`
	PathPoints  int       `json:"path_points"`
	PathVisible bool      `json:"path_visible"`
	Destination *Position `json:"destination,omitempty"`
}

// Text formats the status label.
func (s Status) Text() string {
	if !s.Connected {
		return fmt.Sprintf("GPS: Waiting for data... | Zoom: %d", s.Zoom)
	}
	return fmt.Sprintf("GPS: Connected | Lat: %.6f, Lon: %.6f | Zoom: %d | Path: %d pts",
		s.Position.Latitude, s.Position.Longitude, s.Zoom, s.PathPoints)
}
