package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sendergui/groundstation/config"
	"github.com/sendergui/groundstation/logging"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		logging.Error().Err(err).Msg("ground station stopped with error")
		os.Exit(1)
	}
}

// run starts the station and blocks until ctx is done or the HTTP server
// fails. ready, if non-nil, receives the station once everything is up.
func run(ctx context.Context, cfg *config.Config, ready func(*station, string)) error {
	s, err := newStation(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(s.hub.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(s.engine.Run(gctx)) })
	if s.recorder != nil {
		g.Go(func() error { return s.recorder.Run(gctx) })
	}
	g.Go(func() error {
		if err := s.engine.Refresh(gctx); err != nil {
			s.log.Warn().Err(err).Msg("initial map load failed")
		}
		return nil
	})

	if n := s.startListeners(gctx); n < len(s.listeners) {
		s.log.Warn().Int("started", n).Int("configured", len(s.listeners)).Msg("some listeners are not running")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := (&net.ListenConfig{}).Listen(gctx, "tcp", srv.Addr)
	if err != nil {
		s.stopListeners()
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("http server started")
	if ready != nil {
		ready(s, ln.Addr().String())
	}

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("shutting down")
		s.stopListeners()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
