package codec

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Telemetry is a decoded telemetry datagram.
type Telemetry struct {
	// Fields holds the decoded JSON object verbatim. It is nil for packets
	// that arrived in the bare "lat,lon" form.
	Fields map[string]any

	Lat, Lon    float64
	HasPosition bool

	MissionState    string
	HasMissionState bool
}

// Position returns the packet's coordinates when both were present and numeric.
func (t Telemetry) Position() (lat, lon float64, ok bool) {
	return t.Lat, t.Lon, t.HasPosition
}

// Structured reports whether the packet was a JSON object.
func (t Telemetry) Structured() bool {
	return t.Fields != nil
}

// DecodeTelemetry accepts a JSON object or, when the payload is not JSON at
// all, exactly two comma separated numbers read as "lat,lon".
func DecodeTelemetry(data []byte) (Telemetry, error) {
	obj, syntaxOK, err := decodeObject(data)
	if err == nil {
		return telemetryFromObject(obj), nil
	}
	if syntaxOK {
		return Telemetry{}, err
	}

	lat, lon, ok := parsePair(data)
	if !ok {
		return Telemetry{}, decodeErr("telemetry is neither a JSON object nor a lat,lon pair")
	}
	return Telemetry{Lat: lat, Lon: lon, HasPosition: true}, nil
}

func telemetryFromObject(obj map[string]any) Telemetry {
	t := Telemetry{Fields: obj}
	lat, latOK := number(obj["lat"])
	lon, lonOK := number(obj["lon"])
	if latOK && lonOK {
		t.Lat, t.Lon, t.HasPosition = lat, lon, true
	}
	if s, ok := obj["mission_state"].(string); ok {
		t.MissionState, t.HasMissionState = s, true
	}
	return t
}

// number accepts JSON numbers and numeric strings. Non-finite values are rejected.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parsePair(data []byte) (lat, lon float64, ok bool) {
	parts := strings.Split(string(bytes.TrimSpace(data)), ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, latOK := number(parts[0])
	lon, lonOK := number(parts[1])
	if !latOK || !lonOK {
		return 0, 0, false
	}
	return lat, lon, true
}
