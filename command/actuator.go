package command

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"go.bug.st/serial"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/metrics"
)

// Speed setpoint range accepted by the drive controller.
const (
	MinSpeed     = 0
	MaxSpeed     = 2000
	DefaultSpeed = 1500
)

// Actuator sends plaintext lines to the drive controller, over UDP to a
// peer that can be changed at runtime, or over a serial line.
type Actuator struct {
	mu     sync.Mutex
	d      *Dispatcher
	host   string
	port   int
	serial io.WriteCloser
	device string
	speed  int
}

// NewActuator sends through d to host:port.
func NewActuator(d *Dispatcher, host string, port int) *Actuator {
	return &Actuator{d: d, host: host, port: port, speed: DefaultSpeed}
}

// OpenSerialActuator opens device at baud, 8N1.
func OpenSerialActuator(device string, baud int) (*Actuator, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}
	return newLineActuator(port, device), nil
}

func newLineActuator(w io.WriteCloser, device string) *Actuator {
	return &Actuator{serial: w, device: device, speed: DefaultSpeed}
}

// SetTarget points the UDP transport at a new peer.
func (a *Actuator) SetTarget(host string, port int) error {
	if net.ParseIP(host) == nil {
		return fmt.Errorf("invalid actuator host %q", host)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid actuator port %d", port)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serial != nil {
		return fmt.Errorf("actuator uses serial device %s", a.device)
	}
	a.host, a.port = host, port
	return nil
}

// Target describes where lines go.
func (a *Actuator) Target() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serial != nil {
		return "serial:" + a.device
	}
	return net.JoinHostPort(a.host, strconv.Itoa(a.port))
}

// Speed returns the last speed setpoint sent.
func (a *Actuator) Speed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speed
}

// Send validates and sends one line.
func (a *Actuator) Send(ctx context.Context, line string) error {
	b, err := codec.EncodeActuator(line)
	if err != nil {
		metrics.CommandsSent.WithLabelValues("actuator", "invalid").Inc()
		return err
	}

	a.mu.Lock()
	w, host, port := a.serial, a.host, a.port
	if w != nil {
		// serial lines are newline framed; the lock keeps writes whole
		_, err = w.Write(append(b, '\n'))
		if err != nil {
			err = &SendError{Peer: "serial:" + a.device, Err: err}
		}
	}
	a.mu.Unlock()

	if w == nil {
		err = a.d.SendBytes(ctx, host, port, b)
	}
	metrics.CommandsSent.WithLabelValues("actuator", result(err)).Inc()
	return err
}

// SendSpeed sends "SPEED n".
func (a *Actuator) SendSpeed(ctx context.Context, speed int) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("speed %d outside %d..%d", speed, MinSpeed, MaxSpeed)
	}
	if err := a.Send(ctx, codec.SpeedCommand(speed)); err != nil {
		return err
	}
	a.mu.Lock()
	a.speed = speed
	a.mu.Unlock()
	return nil
}

// Close releases the serial device, if any.
func (a *Actuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serial == nil {
		return nil
	}
	return a.serial.Close()
}
