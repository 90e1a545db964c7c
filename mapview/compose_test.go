package mapview

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/sendergui/groundstation/gps"
)

func whiteBase(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

func rgba(img image.Image, x, y int) (r, g, b, a uint8) {
	c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
	return c.R, c.G, c.B, c.A
}

func vec(x, y float64) *r2.Vec { return &r2.Vec{X: x, Y: y} }

func TestComposeRequiresBase(t *testing.T) {
	c := NewComposer()
	_, err := c.Compose(nil, gps.MapState{})
	assert.ErrorIs(t, err, ErrNoBaseImage)

	_, err = c.Compose(image.NewRGBA(image.Rect(0, 0, 0, 0)), gps.MapState{})
	assert.ErrorIs(t, err, ErrNoBaseImage)
}

func TestComposeLeavesBaseUntouched(t *testing.T) {
	base := whiteBase(200, 200)
	before := append([]uint8(nil), base.Pix...)

	out, err := NewComposer().Compose(base, gps.MapState{
		Current: vec(100, 100),
		Path:    []r2.Vec{{X: 20, Y: 150}, {X: 180, Y: 150}},
	})
	require.NoError(t, err)
	assert.Equal(t, before, base.Pix)
	assert.Equal(t, base.Bounds(), out.Bounds())
}

func TestComposeWithoutOverlaysCopiesBase(t *testing.T) {
	base := whiteBase(50, 40)
	base.Set(10, 10, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	out, err := NewComposer().Compose(base, gps.MapState{})
	require.NoError(t, err)

	r, g, b, _ := rgba(out, 10, 10)
	assert.Equal(t, [3]uint8{1, 2, 3}, [3]uint8{r, g, b})
}

func TestComposeMarkers(t *testing.T) {
	base := whiteBase(200, 200)
	out, err := NewComposer().Compose(base, gps.MapState{
		Current:     vec(60, 120),
		Destination: vec(100, 40),
	})
	require.NoError(t, err)

	// both markers carry a white center dot
	r, g, b, _ := rgba(out, 100, 40)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})
	r, g, b, _ = rgba(out, 60, 120)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})

	// destination fill is red, current fill is blue
	r, _, b, _ = rgba(out, 108, 40)
	assert.Greater(t, int(r), int(b)+50)
	r, _, b, _ = rgba(out, 68, 120)
	assert.Greater(t, int(b), int(r)+50)

	// far corner untouched
	r, g, b, _ = rgba(out, 195, 195)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})
}

func TestComposeDestinationNeedsCurrent(t *testing.T) {
	base := whiteBase(200, 200)
	out, err := NewComposer().Compose(base, gps.MapState{Destination: vec(100, 40)})
	require.NoError(t, err)

	r, g, b, _ := rgba(out, 108, 40)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})
}

func TestComposePath(t *testing.T) {
	base := whiteBase(200, 200)
	out, err := NewComposer().Compose(base, gps.MapState{
		Path: []r2.Vec{{X: 20, Y: 150}, {X: 180, Y: 150}},
	})
	require.NoError(t, err)

	r, _, b, _ := rgba(out, 60, 150)
	assert.Greater(t, int(b), int(r)+50)

	r, g, b, _ := rgba(out, 60, 100)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})
}

func TestPlainProviderSize(t *testing.T) {
	v := gps.Viewport{Center: gps.DefaultCenter, Zoom: 15, Width: 320, Height: 240}
	img, err := PlainProvider{}.BaseImage(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
}

func TestPlainProviderUnprojectable(t *testing.T) {
	v := gps.Viewport{Center: gps.Position{Latitude: 90}, Zoom: 15, Width: 10, Height: 10}
	_, err := PlainProvider{}.BaseImage(context.Background(), v)
	assert.ErrorIs(t, err, gps.ErrUnprojectable)
}

func TestHTTPProviderURL(t *testing.T) {
	p := NewHTTPProvider("https://tiles.test/static?c={lat},{lon}&z={zoom}&s={width}x{height}", time.Second)
	got := p.URL(gps.Viewport{Center: gps.Position{Latitude: 22.5, Longitude: 90.25}, Zoom: 16, Width: 800, Height: 600})
	assert.Equal(t, "https://tiles.test/static?c=22.500000,90.250000&z=16&s=800x600", got)
}

func TestHTTPProviderFetchAndScale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "15", r.URL.Query().Get("z"))
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, whiteBase(100, 50))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/?z={zoom}", time.Second)
	img, err := p.BaseImage(context.Background(), gps.Viewport{Center: gps.DefaultCenter, Zoom: 15, Width: 200, Height: 100})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), img.Bounds())
}

func TestHTTPProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	v := gps.Viewport{Center: gps.DefaultCenter, Zoom: 15, Width: 10, Height: 10}

	_, err := NewHTTPProvider(srv.URL+"/missing", time.Second).BaseImage(context.Background(), v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = NewHTTPProvider(srv.URL+"/garbage", time.Second).BaseImage(context.Background(), v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewHTTPProvider(srv.URL, time.Second).BaseImage(ctx, v)
	assert.ErrorIs(t, err, context.Canceled)
}
