package gps

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// EarthRadius is the mean Earth radius used by DistanceMeters.
	EarthRadius = 6371000.0

	TileSize    = 256
	MinZoom     = 10
	MaxZoom     = 19
	DefaultZoom = 15
)

// ErrUnprojectable is returned for coordinates outside the Web Mercator domain.
var ErrUnprojectable = errors.New("coordinate cannot be projected")

// DistanceMeters returns the haversine great-circle distance.
func DistanceMeters(a, b Position) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadius * c
}

// WithinArrival reports whether distance counts as arrived. The threshold
// is inclusive.
func WithinArrival(distance, threshold float64) bool {
	return distance <= threshold
}

// ClampZoom limits z to MinZoom..MaxZoom.
func ClampZoom(z int) int {
	return max(MinZoom, min(MaxZoom, z))
}

// WorldPixel projects p to global Web Mercator pixel coordinates at zoom.
func WorldPixel(p Position, zoom int) (r2.Vec, error) {
	lat, lon := p.Latitude, p.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) || math.Abs(lat) >= 90 {
		return r2.Vec{}, ErrUnprojectable
	}

	scale := math.Exp2(float64(zoom)) * TileSize
	rad := lat * math.Pi / 180
	x := (lon + 180) / 360 * scale
	y := (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * scale

	if math.IsNaN(y) || math.IsInf(y, 0) {
		return r2.Vec{}, ErrUnprojectable
	}
	return r2.Vec{X: x, Y: y}, nil
}

// Viewport is the geometry of one base image.
type Viewport struct {
	Center Position
	Zoom   int
	Width  int
	Height int
}

// Project converts p to pixel coordinates inside the viewport's image. The
// result may lie outside the image bounds.
func (v Viewport) Project(p Position) (r2.Vec, error) {
	c, err := WorldPixel(v.Center, v.Zoom)
	if err != nil {
		return r2.Vec{}, err
	}
	pt, err := WorldPixel(p, v.Zoom)
	if err != nil {
		return r2.Vec{}, err
	}
	half := r2.Vec{X: float64(v.Width) / 2, Y: float64(v.Height) / 2}
	return r2.Add(half, r2.Sub(pt, c)), nil
}

// Inside reports whether px lies at least margin (a fraction of the image
// size) away from every edge.
func (v Viewport) Inside(px r2.Vec, margin float64) bool {
	mx := float64(v.Width) * margin
	my := float64(v.Height) * margin
	return px.X >= mx && px.X <= float64(v.Width)-mx &&
		px.Y >= my && px.Y <= float64(v.Height)-my
}
