package mapview

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/sendergui/groundstation/gps"
)

// PlainProvider draws a flat background with the slippy-map tile grid. It
// needs no network and is the default when no tile URL is configured.
type PlainProvider struct {
	Background color.Color
	Grid       color.Color
}

func (p PlainProvider) BaseImage(_ context.Context, v gps.Viewport) (image.Image, error) {
	bg, grid := p.Background, p.Grid
	if bg == nil {
		bg = color.RGBA{R: 233, G: 229, B: 220, A: 255}
	}
	if grid == nil {
		grid = color.RGBA{R: 205, G: 200, B: 190, A: 255}
	}

	img := image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	c, err := gps.WorldPixel(v.Center, v.Zoom)
	if err != nil {
		return nil, fmt.Errorf("plain tiles: %w", err)
	}
	// world pixel of the image's top-left corner
	ox := c.X - float64(v.Width)/2
	oy := c.Y - float64(v.Height)/2

	for x := int(math.Ceil(ox/gps.TileSize)) * gps.TileSize; float64(x) < ox+float64(v.Width); x += gps.TileSize {
		px := int(float64(x) - ox)
		for y := 0; y < v.Height; y++ {
			img.Set(px, y, grid)
		}
	}
	for y := int(math.Ceil(oy/gps.TileSize)) * gps.TileSize; float64(y) < oy+float64(v.Height); y += gps.TileSize {
		py := int(float64(y) - oy)
		for x := 0; x < v.Width; x++ {
			img.Set(x, py, grid)
		}
	}
	return img, nil
}

// HTTPProvider fetches one static map image per viewport from a URL
// template with {lat}, {lon}, {zoom}, {width} and {height} placeholders.
// Images of a different size are scaled to the viewport.
type HTTPProvider struct {
	URLTemplate string
	Client      *http.Client
	UserAgent   string
}

// NewHTTPProvider returns a provider with its own client and timeout.
func NewHTTPProvider(urlTemplate string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		URLTemplate: urlTemplate,
		Client:      &http.Client{Timeout: timeout},
		UserAgent:   "groundstation/1.0",
	}
}

// URL expands the template for v.
func (p *HTTPProvider) URL(v gps.Viewport) string {
	return strings.NewReplacer(
		"{lat}", strconv.FormatFloat(v.Center.Latitude, 'f', 6, 64),
		"{lon}", strconv.FormatFloat(v.Center.Longitude, 'f', 6, 64),
		"{zoom}", strconv.Itoa(v.Zoom),
		"{width}", strconv.Itoa(v.Width),
		"{height}", strconv.Itoa(v.Height),
	).Replace(p.URLTemplate)
}

func (p *HTTPProvider) BaseImage(ctx context.Context, v gps.Viewport) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(v), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tile request: %w", err)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile server returned %s", resp.Status)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile: %w", err)
	}

	if b := img.Bounds(); b.Dx() == v.Width && b.Dy() == v.Height {
		return img, nil
	}
	scaled := image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return scaled, nil
}
