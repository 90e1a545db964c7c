package mapview

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
)

func (s *Store) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/map.png", s.handleImage)
	mux.HandleFunc("/map/info", s.handleInfo)
}

func (s *Store) handleImage(w http.ResponseWriter, r *http.Request) {
	data, seq, err := s.PNG()
	if err != nil {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "No image available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Render-Seq", strconv.FormatUint(seq, 10))
	_, _ = w.Write(data)
}

func (s *Store) handleInfo(w http.ResponseWriter, r *http.Request) {
	_, seq, err := s.Latest()
	info := struct {
		Seq       uint64 `json:"seq"`
		Available bool   `json:"available"`
		Reason    string `json:"reason,omitempty"`
	}{Seq: seq, Available: err == nil}
	if err != nil {
		info.Reason = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
