// Package events carries station events: typed in-process feeds, the
// operator journal written to disk, and the websocket hub that pushes
// updates to the browser.
package events

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sendergui/groundstation/logging"
)

// RecentLimit is how many journal entries are kept in memory.
const RecentLimit = 50

// Event is one journal entry.
type Event struct {
	Type      string    `json:"type"`   // "gps_connected", "arrival", "mission_pushed", "mission_command", ...
	Source    string    `json:"source"` // component or operator that raised it
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal appends events to logs/events_<timestamp>.log and keeps the most
// recent ones for the UI.
type Journal struct {
	mu     sync.Mutex
	recent []Event
	file   *os.File
}

// OpenJournal creates a new session file in dir. An empty dir gives an
// in-memory journal.
func OpenJournal(dir string) (*Journal, error) {
	j := &Journal{}
	if dir == "" {
		return j, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("events_%s.log", now.Format("2006-01-02_15-04-05")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "=== Event Log Started at %s ===\n", now.Format("2006-01-02 15:04:05")); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write journal header: %w", err)
	}
	j.file = f
	return j, nil
}

// Path returns the journal file path, or "" for an in-memory journal.
func (j *Journal) Path() string {
	if j.file == nil {
		return ""
	}
	return j.file.Name()
}

// Record appends an event. A zero Timestamp is set to now.
func (j *Journal) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.recent = append(j.recent, e)
	if len(j.recent) > RecentLimit {
		j.recent = append(j.recent[:0:0], j.recent[len(j.recent)-RecentLimit:]...)
	}

	if j.file == nil {
		return
	}

	// [timestamp] EVENT_TYPE: source detail
	line := fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("2006-01-02 15:04:05"), strings.ToUpper(e.Type), e.Source)
	if e.Detail != "" {
		line += " " + e.Detail
	}
	if _, err := j.file.WriteString(line + "\n"); err != nil {
		logging.Warn().Err(err).Msg("failed to write journal entry")
	}
}

// Recent returns up to RecentLimit entries, oldest first.
func (j *Journal) Recent() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, len(j.recent))
	copy(out, j.recent)
	return out
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
