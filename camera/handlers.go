package camera

import (
	"bytes"
	"errors"
	"image/jpeg"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/sendergui/groundstation/events"
)

//go:generate go tool templ generate

// Preview and full-screen frame sizes.
const (
	PreviewWidth     = 480
	PreviewHeight    = 360
	FullscreenWidth  = 1920
	FullscreenHeight = 1000
)

type Handlers struct {
	catalog *Catalog
	frames  *Frames
	viewer  *Viewer
	journal *events.Journal
}

func NewHandlers(catalog *Catalog, frames *Frames, viewer *Viewer, journal *events.Journal) *Handlers {
	return &Handlers{catalog: catalog, frames: frames, viewer: viewer, journal: journal}
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/camera/list", h.handleList)
	mux.HandleFunc("/camera/cameras", h.handleCameras)
	mux.HandleFunc("/camera/frame", h.handleFrame)
	mux.HandleFunc("/camera/preview.jpg", h.handlePreview)
	mux.HandleFunc("/camera/launch", h.handleLaunch)
	mux.HandleFunc("/camera/kill", h.handleKill)
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r)
}

func (h *Handlers) handleCameras(w http.ResponseWriter, r *http.Request) {
	cams, updated := h.catalog.List()
	resp := struct {
		Cameras any   `json:"cameras"`
		Viewers any   `json:"viewers"`
		Updated int64 `json:"updated_unix,omitempty"`
	}{Cameras: cams, Viewers: h.viewer.States()}
	if !updated.IsZero() {
		resp.Updated = updated.Unix()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) handleFrame(w http.ResponseWriter, r *http.Request) {
	data, seq, _ := h.frames.Latest()
	if data == nil {
		http.Error(w, "Waiting for stream...", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	_, _ = w.Write(data)
}

func (h *Handlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	img, _, ok := h.frames.Image()
	if !ok {
		http.Error(w, "Waiting for stream...", http.StatusServiceUnavailable)
		return
	}
	width, height := PreviewWidth, PreviewHeight
	if r.URL.Query().Get("size") == "full" {
		width, height = FullscreenWidth, FullscreenHeight
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Fit(img, width, height), &jpeg.Options{Quality: 80}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handlers) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	label := r.FormValue("label")
	cam, ok := h.catalog.Lookup(label)
	if !ok {
		http.Error(w, "Camera not found", http.StatusNotFound)
		return
	}
	if _, err := h.viewer.Launch(cam); err != nil {
		h.record("viewer_failed", err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.record("viewer_launched", label)
	h.renderList(w, r)
}

func (h *Handlers) handleKill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	label := r.FormValue("label")
	err := h.viewer.Kill(label)
	switch {
	case errors.Is(err, ErrNotRunning):
		// nothing to do; show the current state
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	default:
		h.record("viewer_killed", label)
	}
	h.renderList(w, r)
}

func (h *Handlers) renderList(w http.ResponseWriter, r *http.Request) {
	cams, _ := h.catalog.List()
	states := map[string]ViewerState{}
	for _, st := range h.viewer.States() {
		states[st.Label] = st
	}
	w.Header().Set("Content-Type", "text/html")
	if err := CameraList(cams, states).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) record(eventType, detail string) {
	if h.journal == nil {
		return
	}
	h.journal.Record(events.Event{Type: eventType, Source: "Camera", Detail: detail})
}
