// Package mapview composes the map raster: the base image from a tile
// provider with the vehicle trail, destination and position markers drawn
// on top.
package mapview

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/sendergui/groundstation/gps"
)

// ErrNoBaseImage is returned when there is nothing to draw on.
var ErrNoBaseImage = errors.New("no base image available")

// Style holds marker colors and sizes, in pixels.
type Style struct {
	Path          color.Color
	PathWidth     float64
	DestLine      color.Color
	DestLineWidth float64
	DestDash      []float64
	Destination   color.Color
	Current       color.Color
	Halo          color.Color
	Border        color.Color
	BorderWidth   float64
	MarkerRadius  float64
	HaloRadius    float64
	DotRadius     float64
}

// DefaultStyle matches the familiar blue-dot/red-pin map look.
func DefaultStyle() Style {
	return Style{
		Path:          color.NRGBA{R: 66, G: 133, B: 244, A: 180},
		PathWidth:     4,
		DestLine:      color.NRGBA{R: 234, G: 67, B: 53, A: 200},
		DestLineWidth: 4,
		DestDash:      []float64{16, 8},
		Destination:   color.NRGBA{R: 234, G: 67, B: 53, A: 255},
		Current:       color.NRGBA{R: 66, G: 133, B: 244, A: 255},
		Halo:          color.NRGBA{R: 66, G: 133, B: 244, A: 60},
		Border:        color.White,
		BorderWidth:   3,
		MarkerRadius:  12,
		HaloRadius:    22,
		DotRadius:     4,
	}
}

// pointsPerInch makes one vg point one pixel.
const pointsPerInch = 72

// Composer implements gps.Composer.
type Composer struct {
	Style Style
}

func NewComposer() *Composer {
	return &Composer{Style: DefaultStyle()}
}

// Compose returns a new image: a copy of base with the trail, the dashed
// line and destination marker, and the current marker drawn in that order.
// base is never modified.
func (c *Composer) Compose(base image.Image, st gps.MapState) (image.Image, error) {
	if base == nil {
		return nil, ErrNoBaseImage
	}
	b := base.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, ErrNoBaseImage
	}

	cv := vgimg.NewWith(
		vgimg.UseWH(vg.Length(w), vg.Length(h)),
		vgimg.UseDPI(pointsPerInch),
		vgimg.UseBackgroundColor(color.Transparent),
	)
	o := overlay{cv: cv, height: float64(h), style: c.Style}

	if len(st.Path) >= 2 {
		o.polyline(st.Path)
	}
	if st.Destination != nil && st.Current != nil {
		o.destination(*st.Current, *st.Destination)
	}
	if st.Current != nil {
		o.current(*st.Current)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), base, b.Min, draw.Src)
	draw.Draw(dst, dst.Bounds(), cv.Image(), image.Point{}, draw.Over)
	return dst, nil
}

// overlay draws in image pixel coordinates; vg's y axis points up.
type overlay struct {
	cv     *vgimg.Canvas
	height float64
	style  Style
}

func (o overlay) pt(v r2.Vec) vg.Point {
	return vg.Point{X: vg.Length(v.X), Y: vg.Length(o.height - v.Y)}
}

func (o overlay) polyline(pts []r2.Vec) {
	var p vg.Path
	p.Move(o.pt(pts[0]))
	for _, v := range pts[1:] {
		p.Line(o.pt(v))
	}
	o.cv.SetColor(o.style.Path)
	o.cv.SetLineWidth(vg.Length(o.style.PathWidth))
	o.cv.SetLineDash(nil, 0)
	o.cv.Stroke(p)
}

func (o overlay) destination(from, to r2.Vec) {
	var line vg.Path
	line.Move(o.pt(from))
	line.Line(o.pt(to))

	dash := make([]vg.Length, len(o.style.DestDash))
	for i, d := range o.style.DestDash {
		dash[i] = vg.Length(d)
	}
	o.cv.SetColor(o.style.DestLine)
	o.cv.SetLineWidth(vg.Length(o.style.DestLineWidth))
	o.cv.SetLineDash(dash, 0)
	o.cv.Stroke(line)
	o.cv.SetLineDash(nil, 0)

	o.marker(to, o.style.Destination)
}

func (o overlay) current(at r2.Vec) {
	o.cv.SetColor(o.style.Halo)
	o.cv.Fill(o.circle(at, o.style.HaloRadius))
	o.marker(at, o.style.Current)
}

// marker is a filled disc with a border and a center dot.
func (o overlay) marker(at r2.Vec, fill color.Color) {
	disc := o.circle(at, o.style.MarkerRadius)
	o.cv.SetColor(fill)
	o.cv.Fill(disc)
	o.cv.SetColor(o.style.Border)
	o.cv.SetLineWidth(vg.Length(o.style.BorderWidth))
	o.cv.Stroke(disc)
	o.cv.SetColor(o.style.Border)
	o.cv.Fill(o.circle(at, o.style.DotRadius))
}

func (o overlay) circle(at r2.Vec, radius float64) vg.Path {
	c := o.pt(at)
	r := vg.Length(radius)
	var p vg.Path
	p.Move(vg.Point{X: c.X + r, Y: c.Y})
	p.Arc(c, r, 0, 2*math.Pi)
	p.Close()
	return p
}
