package gps

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/sendergui/groundstation/events"
)

//go:generate go tool templ generate

// Handlers exposes engine controls to the UI.
type Handlers struct {
	engine  *Engine
	journal *events.Journal
}

func NewHandlers(engine *Engine, journal *events.Journal) *Handlers {
	return &Handlers{engine: engine, journal: journal}
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/gps/status", h.handleStatus)
	mux.HandleFunc("/gps/position", h.handlePosition)
	mux.HandleFunc("/gps/path", h.handlePath)
	mux.HandleFunc("/gps/zoom-in", h.handleZoom(+1))
	mux.HandleFunc("/gps/zoom-out", h.handleZoom(-1))
	mux.HandleFunc("/gps/zoom", h.handleSetZoom)
	mux.HandleFunc("/gps/path/toggle", h.handleTogglePath)
	mux.HandleFunc("/gps/path/clear", h.handleClearPath)
	mux.HandleFunc("/gps/recenter", h.handleRecenter)
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r)
}

func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := GPSStatus(h.engine.Status()).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) handlePosition(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Status())
}

func (h *Handlers) handlePath(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Path())
}

func (h *Handlers) handleZoom(delta int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		zoom, err := h.engine.ZoomBy(r.Context(), delta)
		h.afterZoom(w, r, zoom, err)
	}
}

func (h *Handlers) handleSetZoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	level, err := strconv.Atoi(r.FormValue("zoom"))
	if err != nil {
		http.Error(w, "Invalid zoom level", http.StatusBadRequest)
		return
	}
	zoom, err := h.engine.SetZoom(r.Context(), level)
	h.afterZoom(w, r, zoom, err)
}

func (h *Handlers) afterZoom(w http.ResponseWriter, r *http.Request, zoom int, err error) {
	if err != nil {
		// zoom applies once a tile arrives; the label already shows the new level
		h.record("tile_failed", err.Error())
	} else {
		h.record("zoom_changed", strconv.Itoa(zoom))
	}
	h.renderStatus(w, r)
}

func (h *Handlers) handleTogglePath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	visible := h.engine.TogglePath()

	w.Header().Set("Content-Type", "text/html")
	if err := PathToggle(visible).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) handleClearPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.engine.ClearPath()
	h.record("path_cleared", "")
	h.renderStatus(w, r)
}

func (h *Handlers) handleRecenter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var p Position
	if r.FormValue("lat") == "" && r.FormValue("lon") == "" {
		latest, ok := h.engine.Latest()
		if !ok {
			http.Error(w, "No GPS fix yet", http.StatusConflict)
			return
		}
		p = latest
	} else {
		lat, err := strconv.ParseFloat(r.FormValue("lat"), 64)
		if err != nil || lat < -90 || lat > 90 {
			http.Error(w, "Invalid latitude", http.StatusBadRequest)
			return
		}
		lon, err := strconv.ParseFloat(r.FormValue("lon"), 64)
		if err != nil || lon < -180 || lon > 180 {
			http.Error(w, "Invalid longitude", http.StatusBadRequest)
			return
		}
		p = Position{Latitude: lat, Longitude: lon}
	}

	if err := h.engine.Recenter(r.Context(), p); err != nil {
		http.Error(w, fmt.Sprintf("Failed to recenter: %v", err), http.StatusBadGateway)
		return
	}
	h.record("map_recentered", p.String())
	h.renderStatus(w, r)
}

func (h *Handlers) record(eventType, detail string) {
	if h.journal == nil {
		return
	}
	h.journal.Record(events.Event{Type: eventType, Source: "GPS", Detail: detail})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Helper functions for templates

func degreesToDMS(decimalDegrees float64, isLatitude bool) string {
	absolute := math.Abs(decimalDegrees)

	degrees := int(absolute)
	minutesNotTruncated := (absolute - float64(degrees)) * 60
	minutes := int(minutesNotTruncated)
	seconds := (minutesNotTruncated - float64(minutes)) * 60

	var direction string
	if isLatitude {
		direction = "N"
		if decimalDegrees < 0 {
			direction = "S"
		}
	} else {
		direction = "E"
		if decimalDegrees < 0 {
			direction = "W"
		}
	}

	return fmt.Sprintf("%d°%d'%.2f\"%s", degrees, minutes, seconds, direction)
}
