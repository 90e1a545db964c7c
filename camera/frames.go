package camera

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Frames keeps the latest raw frame. Decoding happens on demand and at
// most once per frame.
type Frames struct {
	mu       sync.Mutex
	data     []byte
	seq      uint64
	received time.Time

	decodedSeq uint64
	decoded    image.Image
	format     string
}

func NewFrames() *Frames {
	return &Frames{}
}

// Put stores frame as the latest. The store keeps the slice; callers must
// not modify it afterwards.
func (f *Frames) Put(frame []byte) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.data = frame
	f.received = time.Now()
	return f.seq
}

// Latest returns the raw bytes of the newest frame.
func (f *Frames) Latest() (data []byte, seq uint64, received time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.seq, f.received
}

// Image decodes the newest frame. A frame that does not decode yields
// ok == false; the previous good image is not substituted.
func (f *Frames) Image() (img image.Image, format string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		return nil, "", false
	}
	if f.decodedSeq != f.seq {
		f.decodedSeq = f.seq
		f.decoded, f.format = nil, ""
		if m, fm, err := image.Decode(bytes.NewReader(f.data)); err == nil {
			f.decoded, f.format = m, fm
		}
	}
	return f.decoded, f.format, f.decoded != nil
}

// Fit scales img to fit inside w x h keeping its aspect ratio.
func Fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return img
	}
	scale := min(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	dw := max(1, int(float64(b.Dx())*scale))
	dh := max(1, int(float64(b.Dy())*scale))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
