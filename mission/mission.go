// Package mission holds the operator's waypoint table: submission,
// removal, the pushed primary waypoint and the mission commands built from it.
package mission

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/events"
	"github.com/sendergui/groundstation/gps"
	"github.com/sendergui/groundstation/logging"
)

var (
	ErrNoPrimary = errors.New("no waypoint pushed")
	ErrNoRow     = errors.New("no such waypoint")
)

// Table is safe for concurrent use. Every mutation publishes the full list
// on Changes after the row lock is released. Mutations and their publishes
// are serialized by pubMu, so subscribers see lists in mutation order.
type Table struct {
	pubMu sync.Mutex

	mu      sync.Mutex
	rows    []Waypoint
	primary int // index into rows, -1 when none

	Changes *events.Feed[[]Waypoint]

	log zerolog.Logger
}

func NewTable() *Table {
	return &Table{
		primary: -1,
		Changes: events.NewFeed[[]Waypoint](),
		log:     logging.Component("mission"),
	}
}

// Add validates and appends a waypoint with status NULL.
func (t *Table) Add(s Submission) (Waypoint, error) {
	w, err := s.normalize()
	if err != nil {
		return Waypoint{}, err
	}

	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	t.mu.Lock()
	w.ID = len(t.rows) + 1
	t.rows = append(t.rows, w)
	list := t.listLocked()
	t.mu.Unlock()

	t.log.Info().Int("wp", w.ID).Str("lat", w.Latitude).Str("lon", w.Longitude).Msg("waypoint added")
	t.Changes.Publish(list)
	return w, nil
}

// Remove deletes the row at the 1-based id and renumbers the rest.
func (t *Table) Remove(id int) error {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	t.mu.Lock()
	i := id - 1
	if i < 0 || i >= len(t.rows) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoRow, id)
	}
	t.rows = slices.Delete(t.rows, i, i+1)
	for j := range t.rows {
		t.rows[j].ID = j + 1
	}
	switch {
	case t.primary == i:
		t.primary = -1
	case t.primary > i:
		t.primary--
	}
	list := t.listLocked()
	t.mu.Unlock()

	t.log.Info().Int("wp", id).Msg("waypoint removed")
	t.Changes.Publish(list)
	return nil
}

// Clear empties the table and forgets the primary waypoint.
func (t *Table) Clear() {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	t.mu.Lock()
	t.rows = nil
	t.primary = -1
	t.mu.Unlock()

	t.Changes.Publish([]Waypoint{})
}

// Push makes the row at the 1-based id the primary waypoint.
func (t *Table) Push(id int) (Waypoint, error) {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	t.mu.Lock()
	i := id - 1
	if i < 0 || i >= len(t.rows) {
		t.mu.Unlock()
		return Waypoint{}, fmt.Errorf("%w: %d", ErrNoRow, id)
	}
	t.resetStatusLocked()
	t.rows[i].Status = StatusPushed
	t.primary = i
	w := t.rows[i]
	list := t.listLocked()
	t.mu.Unlock()

	t.log.Info().Int("wp", id).Str("control", w.Control).Str("type", w.Type).Msg("waypoint pushed")
	t.Changes.Publish(list)
	return w, nil
}

// ApplyTelemetry writes the packet's mission_state, or N/A, into the
// primary row. Without a primary waypoint it does nothing.
func (t *Table) ApplyTelemetry(p codec.Telemetry) {
	state := TypeNone
	if p.HasMissionState {
		state = p.MissionState
	}

	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	t.mu.Lock()
	if t.primary < 0 {
		t.mu.Unlock()
		return
	}
	changed := t.rows[t.primary].Status != state
	t.resetStatusLocked()
	t.rows[t.primary].Status = state
	list := t.listLocked()
	t.mu.Unlock()

	if changed {
		t.log.Debug().Str("state", state).Msg("mission state")
		t.Changes.Publish(list)
	}
}

// List returns a copy of the rows.
func (t *Table) List() []Waypoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listLocked()
}

// Primary returns the pushed waypoint.
func (t *Table) Primary() (Waypoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.primary < 0 {
		return Waypoint{}, false
	}
	return t.rows[t.primary], true
}

// Command builds the mission command for the primary waypoint. start is
// the vehicle's last known position; nil sends zeros.
func (t *Table) Command(action string, start *gps.Position) (codec.MissionCommand, error) {
	if !codec.ValidCommand(action) {
		return codec.MissionCommand{}, fmt.Errorf("unknown mission command %q", action)
	}
	w, ok := t.Primary()
	if !ok {
		return codec.MissionCommand{}, ErrNoPrimary
	}

	from := codec.Coordinates{Longitude: "0", Latitude: "0", Altitude: "0"}
	if start != nil {
		from.Longitude = strconv.FormatFloat(start.Longitude, 'f', -1, 64)
		from.Latitude = strconv.FormatFloat(start.Latitude, 'f', -1, 64)
	}
	return codec.MissionCommand{
		Command:  action,
		Starting: from,
		Ending: codec.Coordinates{
			Longitude: w.Longitude,
			Latitude:  w.Latitude,
			Altitude:  w.Altitude,
		},
		Type:    w.Type,
		Control: w.Control,
	}, nil
}

// Positions converts a waypoint list for the map engine.
func Positions(list []Waypoint) []gps.Position {
	out := make([]gps.Position, 0, len(list))
	for _, w := range list {
		p, err := w.Position()
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (t *Table) resetStatusLocked() {
	for i := range t.rows {
		t.rows[i].Status = StatusNull
	}
}

func (t *Table) listLocked() []Waypoint {
	return slices.Clone(t.rows)
}
