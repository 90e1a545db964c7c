package gps

import (
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// easeInOutQuad accelerates through the first half and decelerates through
// the second.
func easeInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return -1 + (4-2*t)*t
}

// animation moves the displayed marker from one coordinate to another. A
// new target always starts from wherever the marker currently is.
type animation struct {
	from, to r2.Vec
	start    time.Time
	duration time.Duration
	active   bool
}

func (a *animation) retarget(from, to r2.Vec, now time.Time, d time.Duration) {
	a.from, a.to, a.start, a.duration, a.active = from, to, now, d, true
}

// at returns the interpolated value and whether the animation has finished.
func (a *animation) at(now time.Time) (r2.Vec, bool) {
	if !a.active {
		return a.to, true
	}
	t := float64(now.Sub(a.start)) / float64(a.duration)
	if t >= 1 {
		return a.to, true
	}
	if t < 0 {
		t = 0
	}
	return r2.Add(a.from, r2.Scale(easeInOutQuad(t), r2.Sub(a.to, a.from))), false
}
