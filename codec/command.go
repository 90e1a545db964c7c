package codec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Mission command verbs.
const (
	CommandStart = "start"
	CommandPause = "pause"
	CommandStop  = "stop"
)

// ValidCommand reports whether verb is a mission command verb.
func ValidCommand(verb string) bool {
	switch verb {
	case CommandStart, CommandPause, CommandStop:
		return true
	}
	return false
}

// Coordinates are sent as text, exactly as entered by the operator.
type Coordinates struct {
	Longitude string `json:"longitude"`
	Latitude  string `json:"latitude"`
	Altitude  string `json:"altitude"`
}

// MissionCommand is the JSON object sent to the mission peer.
type MissionCommand struct {
	Command  string      `json:"command"`
	Starting Coordinates `json:"starting"`
	Ending   Coordinates `json:"ending"`
	Type     string      `json:"type"`
	Control  string      `json:"control"`
}

// EncodeCommand serializes payload as one JSON object. Payloads that do not
// encode to an object are rejected.
func EncodeCommand(payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	if !bytes.HasPrefix(b, []byte("{")) {
		return nil, fmt.Errorf("command payload must encode to a JSON object, got %.20s", b)
	}
	return b, nil
}

// Actuator direction tokens understood by the drive controller.
const (
	ActuatorForward  = "FORWARD"
	ActuatorBackward = "BACKWARD"
	ActuatorLeft     = "LEFT"
	ActuatorRight    = "RIGHT"
	ActuatorStop     = "STOP"
)

const maxActuatorLine = 64

// EncodeActuator validates a single actuator line: printable ASCII, no
// line breaks, at most 64 bytes.
func EncodeActuator(line string) ([]byte, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("actuator command is empty")
	}
	if len(line) > maxActuatorLine {
		return nil, fmt.Errorf("actuator command longer than %d bytes", maxActuatorLine)
	}
	for i := 0; i < len(line); i++ {
		if c := line[i]; c < 0x20 || c > 0x7e {
			return nil, fmt.Errorf("actuator command contains non-printable byte 0x%02x", c)
		}
	}
	return []byte(line), nil
}

// SpeedCommand formats the speed setpoint line.
func SpeedCommand(speed int) string {
	return "SPEED " + strconv.Itoa(speed)
}
