package mission

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sendergui/groundstation/gps"
)

// Control modes.
const (
	ControlManual     = "Manual"
	ControlAutonomous = "Autonomous"
)

// Waypoint types selectable for autonomous control. Manual waypoints are
// always TypeNone.
const (
	TypeGPS    = "GPS"
	TypeArUco  = "ArUco"
	TypeObject = "Object"
	TypeNone   = "N/A"
)

// Row statuses. Telemetry replaces the primary row's status with the
// reported mission_state.
const (
	StatusNull   = "NULL"
	StatusPushed = "PUSHED"
)

// Submission is a waypoint as entered by the operator, text fields untouched.
type Submission struct {
	Control   string `json:"control"`
	Type      string `json:"type"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Altitude  string `json:"altitude"`
}

// Waypoint is one row of the mission table. ID is the dense 1-based WP#.
type Waypoint struct {
	ID        int    `json:"id"`
	Control   string `json:"control"`
	Type      string `json:"type"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Altitude  string `json:"altitude"`
	Status    string `json:"status"`
}

// Position parses the waypoint's coordinates.
func (w Waypoint) Position() (gps.Position, error) {
	lat, err := strconv.ParseFloat(w.Latitude, 64)
	if err != nil {
		return gps.Position{}, fmt.Errorf("waypoint %d latitude: %w", w.ID, err)
	}
	lon, err := strconv.ParseFloat(w.Longitude, 64)
	if err != nil {
		return gps.Position{}, fmt.Errorf("waypoint %d longitude: %w", w.ID, err)
	}
	return gps.Position{Latitude: lat, Longitude: lon}, nil
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range []string{"control", "type", "latitude", "longitude", "altitude"} {
		if msg, ok := e.Fields[k]; ok {
			parts = append(parts, k+": "+msg)
		}
	}
	return "invalid waypoint: " + strings.Join(parts, "; ")
}

func (s Submission) normalize() (Waypoint, error) {
	w := Waypoint{
		Control:   strings.TrimSpace(s.Control),
		Type:      strings.TrimSpace(s.Type),
		Latitude:  strings.TrimSpace(s.Latitude),
		Longitude: strings.TrimSpace(s.Longitude),
		Altitude:  strings.TrimSpace(s.Altitude),
		Status:    StatusNull,
	}
	bad := map[string]string{}

	switch w.Control {
	case "":
		w.Control = ControlManual
	case ControlManual, ControlAutonomous:
	default:
		bad["control"] = "must be Manual or Autonomous"
	}
	if w.Control == ControlManual {
		w.Type = TypeNone
	} else {
		switch w.Type {
		case "":
			w.Type = TypeGPS
		case TypeGPS, TypeArUco, TypeObject:
		default:
			bad["type"] = "must be GPS, ArUco or Object"
		}
	}

	if !inRange(w.Latitude, -90, 90) {
		bad["latitude"] = "must be a number between -90 and 90"
	}
	if !inRange(w.Longitude, -180, 180) {
		bad["longitude"] = "must be a number between -180 and 180"
	}
	if w.Altitude == "" {
		w.Altitude = "0"
	} else if _, err := strconv.ParseFloat(w.Altitude, 64); err != nil {
		bad["altitude"] = "must be a number"
	}

	if len(bad) > 0 {
		return Waypoint{}, &ValidationError{Fields: bad}
	}
	return w, nil
}

func inRange(s string, lo, hi float64) bool {
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && v >= lo && v <= hi
}
