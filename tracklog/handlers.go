package tracklog

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

type Handlers struct {
	recorder *Recorder
}

func NewHandlers(recorder *Recorder) *Handlers {
	return &Handlers{recorder: recorder}
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/tracklog/status", h.handleStatus)
	mux.HandleFunc("/tracklog/export.csv", h.handleCSVExport)
	mux.HandleFunc("/tracklog/export.xlsx", h.handleXLSXExport)
	mux.HandleFunc("/tracklog/path.wkt", h.handleWKT)
	mux.HandleFunc("/tracklog/stats", h.handleStats)
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.recorder.Summary(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s)
}

func (h *Handlers) load(w http.ResponseWriter, r *http.Request) ([]Sample, []Entry, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, nil, false
	}
	store := h.recorder.Store()
	samples, err := store.Positions(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get positions: %v", err), http.StatusInternalServerError)
		return nil, nil, false
	}
	entries, err := store.Entries(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get events: %v", err), http.StatusInternalServerError)
		return nil, nil, false
	}
	return samples, entries, true
}

func (h *Handlers) handleCSVExport(w http.ResponseWriter, r *http.Request) {
	samples, entries, ok := h.load(w, r)
	if !ok {
		return
	}
	buf, err := ExportCSV(samples, entries)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate CSV files: %v", err), http.StatusInternalServerError)
		return
	}
	name := Filename(h.recorder.Store().Session(), "zip", time.Now())
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handlers) handleXLSXExport(w http.ResponseWriter, r *http.Request) {
	samples, entries, ok := h.load(w, r)
	if !ok {
		return
	}
	buf, err := ExportXLSX(samples, entries)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate workbook: %v", err), http.StatusInternalServerError)
		return
	}
	name := Filename(h.recorder.Store().Session(), "xlsx", time.Now())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handlers) handleWKT(w http.ResponseWriter, r *http.Request) {
	samples, _, ok := h.load(w, r)
	if !ok {
		return
	}
	ls, err := PathLineString(samples)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Track-Length-Meters", strconv.FormatFloat(TrackLength(samples), 'f', 1, 64))
	_, _ = w.Write([]byte(ls.AsText()))
}

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	samples, _, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Statistics(samples))
}
