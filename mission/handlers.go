package mission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/events"
	"github.com/sendergui/groundstation/gps"
)

//go:generate go tool templ generate

// Sender delivers mission commands to the vehicle.
type Sender interface {
	SendMission(ctx context.Context, cmd codec.MissionCommand) error
}

// Locator supplies the starting coordinates for mission commands.
type Locator interface {
	Latest() (gps.Position, bool)
}

type Handlers struct {
	table   *Table
	sender  Sender
	locator Locator
	journal *events.Journal
}

func NewHandlers(table *Table, sender Sender, locator Locator, journal *events.Journal) *Handlers {
	return &Handlers{table: table, sender: sender, locator: locator, journal: journal}
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/mission", h.handleTable)
	mux.HandleFunc("/mission/waypoints", h.handleWaypoints)
	mux.HandleFunc("/mission/add", h.handleAdd)
	mux.HandleFunc("/mission/remove", h.handleRemove)
	mux.HandleFunc("/mission/clear", h.handleClear)
	mux.HandleFunc("/mission/push", h.handlePush)
	mux.HandleFunc("/mission/command", h.handleCommand)
}

func (h *Handlers) handleTable(w http.ResponseWriter, r *http.Request) {
	h.renderTable(w, r)
}

func (h *Handlers) handleWaypoints(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.table.List()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wp, err := h.table.Add(Submission{
		Control:   r.FormValue("control"),
		Type:      r.FormValue("type"),
		Latitude:  r.FormValue("latitude"),
		Longitude: r.FormValue("longitude"),
		Altitude:  r.FormValue("altitude"),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.record("waypoint_added", fmt.Sprintf("#%d %s,%s", wp.ID, wp.Latitude, wp.Longitude))
	h.renderTable(w, r)
}

func (h *Handlers) handleRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := formID(w, r)
	if !ok {
		return
	}
	if err := h.table.Remove(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.record("waypoint_removed", "#"+strconv.Itoa(id))
	h.renderTable(w, r)
}

func (h *Handlers) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.table.Clear()
	h.record("waypoints_cleared", "")
	h.renderTable(w, r)
}

func (h *Handlers) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := formID(w, r)
	if !ok {
		return
	}
	wp, err := h.table.Push(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.record("mission_pushed", fmt.Sprintf("#%d %s %s", wp.ID, wp.Control, wp.Type))
	h.renderTable(w, r)
}

func (h *Handlers) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var start *gps.Position
	if h.locator != nil {
		if p, ok := h.locator.Latest(); ok {
			start = &p
		}
	}
	action := r.FormValue("action")
	cmd, err := h.table.Command(action, start)
	switch {
	case errors.Is(err, ErrNoPrimary):
		http.Error(w, "No waypoint selected to push", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sender.SendMission(r.Context(), cmd); err != nil {
		h.record("command_failed", err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.record("mission_command", fmt.Sprintf("%s -> %s,%s", action, cmd.Ending.Latitude, cmd.Ending.Longitude))

	w.Header().Set("Content-Type", "text/html")
	wp, _ := h.table.Primary()
	if err := MissionBar(wp, action).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) renderTable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := WaypointTable(h.table.List()).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) record(eventType, detail string) {
	if h.journal == nil {
		return
	}
	h.journal.Record(events.Event{Type: eventType, Source: "Mission", Detail: detail})
}

func formID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.FormValue("id"))
	if err != nil {
		http.Error(w, "Invalid waypoint id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
