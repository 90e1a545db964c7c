package command

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/events"
)

type Handlers struct {
	actuator *Actuator
	mission  *MissionLink
	journal  *events.Journal
}

func NewHandlers(actuator *Actuator, mission *MissionLink, journal *events.Journal) *Handlers {
	return &Handlers{actuator: actuator, mission: mission, journal: journal}
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/command/status", h.handleStatus)
	mux.HandleFunc("/command/actuator", h.handleActuator)
	mux.HandleFunc("/command/speed", h.handleSpeed)
	mux.HandleFunc("/command/target", h.handleTarget)
}

type status struct {
	Actuator string `json:"actuator"`
	Mission  string `json:"mission"`
	Speed    int    `json:"speed"`
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	s := status{Actuator: h.actuator.Target(), Speed: h.actuator.Speed()}
	if h.mission != nil {
		s.Mission = h.mission.Peer()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) handleActuator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := strings.ToUpper(strings.TrimSpace(r.FormValue("cmd")))
	switch token {
	case codec.ActuatorForward, codec.ActuatorBackward, codec.ActuatorLeft, codec.ActuatorRight, codec.ActuatorStop:
	default:
		http.Error(w, "Unknown actuator command", http.StatusBadRequest)
		return
	}
	h.send(w, r, token, func(ctx context.Context) error { return h.actuator.Send(ctx, token) })
}

func (h *Handlers) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	speed, err := strconv.Atoi(r.FormValue("speed"))
	if err != nil || speed < MinSpeed || speed > MaxSpeed {
		http.Error(w, "Invalid speed", http.StatusBadRequest)
		return
	}
	line := codec.SpeedCommand(speed)
	h.send(w, r, line, func(ctx context.Context) error { return h.actuator.SendSpeed(ctx, speed) })
}

func (h *Handlers) handleTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	port, err := strconv.Atoi(r.FormValue("port"))
	if err != nil {
		http.Error(w, "Invalid port", http.StatusBadRequest)
		return
	}
	if err := h.actuator.SetTarget(r.FormValue("host"), port); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.record("actuator_target", h.actuator.Target())
	h.handleStatus(w, r)
}

func (h *Handlers) send(w http.ResponseWriter, r *http.Request, line string, fn func(context.Context) error) {
	if err := fn(r.Context()); err != nil {
		h.record("command_failed", err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.record("actuator_command", line)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) record(eventType, detail string) {
	if h.journal == nil {
		return
	}
	h.journal.Record(events.Event{Type: eventType, Source: "Actuator", Detail: detail})
}
