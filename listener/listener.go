// Package listener runs the station's inbound UDP sockets. Each Listener owns
// one socket and one goroutine, polls with a read deadline so Stop is noticed
// within one timeout, and hands every datagram to a Handler.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/logging"
	"github.com/sendergui/groundstation/metrics"
)

const (
	DefaultReadTimeout = time.Second
	DefaultBufferSize  = 4096
)

// Handler processes one datagram. payload is only valid for the duration of
// the call. Errors wrapping codec.ErrDecode count as dropped datagrams.
type Handler func(payload []byte, from net.Addr) error

// Config describes a listener.
type Config struct {
	// Name labels logs and metrics.
	Name string

	// Address is host:port to bind.
	Address string

	// Broadcast enables SO_BROADCAST in addition to SO_REUSEADDR.
	Broadcast bool

	// BufferSize is the largest datagram accepted. Default: 4096
	BufferSize int

	// ReadTimeout bounds each blocking read. Default: 1s
	ReadTimeout time.Duration

	Handler Handler
}

// BindError is returned by Start when the socket cannot be bound.
type BindError struct {
	Listener string
	Addr     string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s listener: bind %s: %v", e.Listener, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ErrRunning is returned by Start on a listener that has not been stopped.
var ErrRunning = errors.New("listener already running")

type Listener struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	conn   net.PacketConn
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an unstarted listener.
func New(cfg Config) *Listener {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "udp"
	}
	if cfg.Handler == nil {
		cfg.Handler = func([]byte, net.Addr) error { return nil }
	}
	return &Listener{
		cfg: cfg,
		log: logging.Component("listener").With().Str("listener", cfg.Name).Logger(),
	}
}

// Name returns the configured listener name.
func (l *Listener) Name() string { return l.cfg.Name }

// Start binds the socket and spawns the read loop. A bind failure is logged
// once and returned as *BindError; the listener does not retry.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		select {
		case <-l.done:
		default:
			return ErrRunning
		}
	}

	lc := net.ListenConfig{Control: socketControl(l.cfg.Broadcast)}
	conn, err := lc.ListenPacket(context.Background(), "udp", l.cfg.Address)
	if err != nil {
		bindErr := &BindError{Listener: l.cfg.Name, Addr: l.cfg.Address, Err: err}
		l.log.Error().Err(err).Str("addr", l.cfg.Address).Msg("bind failed")
		return bindErr
	}
	if udp, ok := conn.(*net.UDPConn); ok {
		if err := udp.SetReadBuffer(l.cfg.BufferSize * 4); err != nil {
			l.log.Warn().Err(err).Msg("failed to set receive buffer")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.conn, l.cancel, l.done = conn, cancel, done

	l.log.Info().Str("addr", conn.LocalAddr().String()).Bool("broadcast", l.cfg.Broadcast).Msg("listening")
	go l.run(runCtx, conn, done)
	return nil
}

// Stop asks the loop to exit and blocks until it has, and the socket is closed.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the read loop has exited. It is nil before Start.
func (l *Listener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Addr is the bound local address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *Listener) run(ctx context.Context, conn net.PacketConn, done chan struct{}) {
	defer close(done)
	defer conn.Close()

	running := metrics.ListenersRunning.WithLabelValues(l.cfg.Name)
	running.Set(1)
	defer running.Set(0)

	buf := make([]byte, l.cfg.BufferSize)
	for {
		if ctx.Err() != nil {
			l.log.Info().Msg("stopped")
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
			l.log.Error().Err(err).Msg("failed to set read deadline")
			return
		}

		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			metrics.ReadErrors.WithLabelValues(l.cfg.Name).Inc()
			l.log.Warn().Err(err).Msg("read error")
			continue
		}

		metrics.DatagramsReceived.WithLabelValues(l.cfg.Name).Inc()
		metrics.DatagramBytes.WithLabelValues(l.cfg.Name).Add(float64(n))
		l.dispatch(buf[:n], from)
	}
}

func (l *Listener) dispatch(payload []byte, from net.Addr) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("handler panicked, datagram dropped")
		}
	}()

	err := l.cfg.Handler(payload, from)
	switch {
	case err == nil:
	case errors.Is(err, codec.ErrDecode):
		metrics.DecodeDrops.WithLabelValues(l.cfg.Name).Inc()
		l.log.Debug().Err(err).Stringer("from", from).Int("size", len(payload)).Msg("dropped datagram")
	default:
		l.log.Warn().Err(err).Stringer("from", from).Msg("handler failed")
	}
}
