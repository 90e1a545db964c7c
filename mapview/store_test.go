package mapview

import (
	"bytes"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendergui/groundstation/gps"
)

func TestStoreEmpty(t *testing.T) {
	s := NewStore()
	_, _, err := s.PNG()
	assert.ErrorIs(t, err, ErrNoBaseImage)

	mux := http.NewServeMux()
	s.SetupHandlers(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map.png", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "No image available")
}

func TestStoreServesLatest(t *testing.T) {
	s := NewStore()
	s.Update(gps.Render{Seq: 1, Image: whiteBase(8, 4)})
	s.Update(gps.Render{Seq: 3, Image: whiteBase(16, 8)})
	s.Update(gps.Render{Seq: 2, Image: whiteBase(4, 4)})

	mux := http.NewServeMux()
	s.SetupHandlers(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "3", rec.Header().Get("X-Render-Seq"))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestStoreEncodesOncePerSeq(t *testing.T) {
	s := NewStore()
	s.Update(gps.Render{Seq: 1, Image: whiteBase(8, 8)})

	a, _, err := s.PNG()
	require.NoError(t, err)
	b, _, err := s.PNG()
	require.NoError(t, err)
	assert.Same(t, &a[0], &b[0])
}

func TestStoreFailedRenderClearsImage(t *testing.T) {
	s := NewStore()
	s.Update(gps.Render{Seq: 1, Image: whiteBase(8, 8)})
	boom := errors.New("tile server down")
	s.Update(gps.Render{Seq: 2, Err: boom})

	_, seq, err := s.Latest()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(2), seq)

	mux := http.NewServeMux()
	s.SetupHandlers(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map/info", nil))
	assert.JSONEq(t, `{"seq":2,"available":false,"reason":"tile server down"}`, rec.Body.String())
}
