// Package command sends mission and actuator commands to the vehicle.
// Sends are single best-effort datagrams: no acknowledgement, no retry.
package command

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/logging"
	"github.com/sendergui/groundstation/metrics"
)

// SendError reports a failed send to Peer.
type SendError struct {
	Peer string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Peer, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Dispatcher owns one unconnected UDP socket shared by all senders. Each
// datagram is written under the lock.
type Dispatcher struct {
	mu   sync.Mutex
	conn net.PacketConn
	log  zerolog.Logger
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{log: logging.Component("dispatcher")}
}

// Send encodes payload as a JSON object and sends it to host:port.
func (d *Dispatcher) Send(ctx context.Context, host string, port int, payload any) error {
	b, err := codec.EncodeCommand(payload)
	if err != nil {
		return &SendError{Peer: net.JoinHostPort(host, strconv.Itoa(port)), Err: err}
	}
	return d.SendBytes(ctx, host, port, b)
}

// SendBytes sends b as one datagram.
func (d *Dispatcher) SendBytes(ctx context.Context, host string, port int, b []byte) error {
	peer := net.JoinHostPort(host, strconv.Itoa(port))
	if err := ctx.Err(); err != nil {
		return &SendError{Peer: peer, Err: err}
	}
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return &SendError{Peer: peer, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		conn, err := net.ListenPacket("udp", ":0")
		if err != nil {
			return &SendError{Peer: peer, Err: fmt.Errorf("open socket: %w", err)}
		}
		d.conn = conn
	}

	deadline := time.Time{}
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		d.log.Warn().Err(err).Str("peer", peer).Msg("failed to set write deadline")
		return &SendError{Peer: peer, Err: fmt.Errorf("set write deadline: %w", err)}
	}

	if _, err := d.conn.WriteTo(b, addr); err != nil {
		d.log.Warn().Err(err).Str("peer", peer).Msg("send failed")
		return &SendError{Peer: peer, Err: err}
	}
	d.log.Debug().Str("peer", peer).Int("bytes", len(b)).Msg("sent")
	return nil
}

// Close releases the socket. A later send opens a new one.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// MissionLink sends mission commands to the mission computer.
type MissionLink struct {
	d    *Dispatcher
	host string
	port int
}

func NewMissionLink(d *Dispatcher, host string, port int) *MissionLink {
	return &MissionLink{d: d, host: host, port: port}
}

func (m *MissionLink) SendMission(ctx context.Context, cmd codec.MissionCommand) error {
	err := m.d.Send(ctx, m.host, m.port, cmd)
	metrics.CommandsSent.WithLabelValues("mission", result(err)).Inc()
	if err == nil {
		m.d.log.Info().Str("command", cmd.Command).Str("lat", cmd.Ending.Latitude).Str("lon", cmd.Ending.Longitude).Msg("mission command sent")
	}
	return err
}

// Peer is host:port of the mission computer.
func (m *MissionLink) Peer() string {
	return net.JoinHostPort(m.host, strconv.Itoa(m.port))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
