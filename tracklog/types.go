package tracklog

import "time"

// Sample is one recorded position. X and Y are Web Mercator meters.
type Sample struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
}

// Entry is one recorded station event.
type Entry struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Detail     string    `json:"detail,omitempty"`
}

// Summary describes the current session.
type Summary struct {
	Session   string    `json:"session"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
	Positions int       `json:"positions"`
	Events    int       `json:"events"`
	Dropped   uint64    `json:"dropped"`
}
