package mapview

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/sendergui/groundstation/gps"
)

// Store keeps the latest composed raster and encodes it on demand.
type Store struct {
	mu      sync.Mutex
	seq     uint64
	img     image.Image
	err     error
	encoded []byte
	encSeq  uint64
}

func NewStore() *Store {
	return &Store{}
}

// Update records a render. Older sequence numbers are ignored.
func (s *Store) Update(r gps.Render) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Seq != 0 && r.Seq < s.seq {
		return
	}
	s.seq = r.Seq
	s.img = r.Image
	s.err = r.Err
	if !r.Available() {
		s.img = nil
	}
}

// Latest returns the current image, or nil with the reason when none exists.
func (s *Store) Latest() (image.Image, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		err := s.err
		if err == nil {
			err = ErrNoBaseImage
		}
		return nil, s.seq, err
	}
	return s.img, s.seq, nil
}

// PNG returns the latest image encoded as PNG.
func (s *Store) PNG() ([]byte, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		err := s.err
		if err == nil {
			err = ErrNoBaseImage
		}
		return nil, s.seq, err
	}
	if s.encoded != nil && s.encSeq == s.seq {
		return s.encoded, s.seq, nil
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, s.img); err != nil {
		return nil, s.seq, fmt.Errorf("failed to encode map: %w", err)
	}
	s.encoded = buf.Bytes()
	s.encSeq = s.seq
	return s.encoded, s.seq, nil
}
