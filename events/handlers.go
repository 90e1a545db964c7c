package events

import (
	"net/http"
	"slices"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/sendergui/groundstation/logging"
)

//go:generate go tool templ generate

// Handlers serves the journal and the websocket endpoint.
type Handlers struct {
	journal  *Journal
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandlers(journal *Journal, hub *Hub) *Handlers {
	return &Handlers{
		journal: journal,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// any origin; the UI is reached through field-network addresses
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/events", h.handleEvents)
	mux.HandleFunc("/events/list", h.handleEventsList)
	mux.HandleFunc("/events/manual", h.handleManualEvent)
	mux.HandleFunc("/events/ws", h.handleWebSocket)
}

func (h *Handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.journal.Recent()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) handleEventsList(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r)
}

func (h *Handlers) handleManualEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventType := r.FormValue("type")
	source := r.FormValue("source")
	if eventType == "" || source == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	h.journal.Record(Event{Type: eventType, Source: source, Detail: r.FormValue("detail")})
	h.renderList(w, r)
}

func (h *Handlers) renderList(w http.ResponseWriter, r *http.Request) {
	// newest first
	list := h.journal.Recent()
	slices.Reverse(list)

	w.Header().Set("Content-Type", "text/html")
	if err := EventsList(list).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.hub.Attach(conn)
}
