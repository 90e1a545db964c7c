package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sendergui/groundstation/camera"
	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/command"
	"github.com/sendergui/groundstation/config"
	"github.com/sendergui/groundstation/events"
	"github.com/sendergui/groundstation/gps"
	"github.com/sendergui/groundstation/listener"
	"github.com/sendergui/groundstation/logging"
	"github.com/sendergui/groundstation/mapview"
	"github.com/sendergui/groundstation/metrics"
	"github.com/sendergui/groundstation/mission"
	"github.com/sendergui/groundstation/tracklog"
)

// station owns every long-lived component of the process.
type station struct {
	cfg *config.Config
	log zerolog.Logger

	journal  *events.Journal
	hub      *events.Hub
	recorder *tracklog.Recorder // nil when the track log is disabled

	engine *gps.Engine
	store  *mapview.Store
	table  *mission.Table

	dispatcher *command.Dispatcher
	link       *command.MissionLink
	actuator   *command.Actuator

	catalog *camera.Catalog
	frames  *camera.Frames
	viewer  *camera.Viewer

	listeners []*listener.Listener
	unsub     []func()
	closeOnce sync.Once
}

func newStation(cfg *config.Config) (*station, error) {
	s := &station{cfg: cfg, log: logging.Component("station")}

	journal, err := events.OpenJournal(cfg.Events.Dir)
	if err != nil {
		return nil, err
	}
	s.journal = journal
	s.hub = events.NewHub()

	if cfg.Tracklog.Enabled {
		store, err := tracklog.Open(cfg.Tracklog.Dir)
		if err != nil {
			journal.Close()
			return nil, err
		}
		s.recorder = tracklog.NewRecorder(store, cfg.Tracklog.Buffer)
	}

	var tiles gps.TileProvider = mapview.PlainProvider{}
	if cfg.Map.TileURL != "" {
		tiles = mapview.NewHTTPProvider(cfg.Map.TileURL, cfg.Map.TileTimeout)
	}
	s.engine = gps.NewEngine(gps.Config{
		Center:            gps.Position{Latitude: cfg.Map.CenterLat, Longitude: cfg.Map.CenterLon},
		Zoom:              cfg.Map.Zoom,
		Width:             cfg.Map.Width,
		Height:            cfg.Map.Height,
		PathCapacity:      cfg.Map.PathCapacity,
		ArrivalThreshold:  cfg.Map.ArrivalThreshold,
		AnimationDuration: cfg.Map.AnimationDuration,
		TickInterval:      cfg.Map.TickInterval,
		Follow:            cfg.Map.Follow,
	}, tiles, mapview.NewComposer())
	s.store = mapview.NewStore()
	s.table = mission.NewTable()

	s.dispatcher = command.NewDispatcher()
	s.link = command.NewMissionLink(s.dispatcher, cfg.Mission.Host, cfg.Mission.Port)
	if cfg.Actuator.Transport == "serial" {
		s.actuator, err = command.OpenSerialActuator(cfg.Actuator.SerialPort, cfg.Actuator.BaudRate)
		if err != nil {
			s.Close()
			return nil, err
		}
	} else {
		s.actuator = command.NewActuator(s.dispatcher, cfg.Actuator.Host, cfg.Actuator.Port)
	}

	s.catalog = camera.NewCatalog()
	s.frames = camera.NewFrames()
	s.viewer = camera.NewViewer(cfg.Camera.Player, cfg.Camera.PlayerArgs)

	s.listeners = []*listener.Listener{
		listener.Discovery(listenerConfig(cfg.Discovery), s.onCameras),
		listener.Telemetry(listenerConfig(cfg.Telemetry), s.onTelemetry, s.onPosition),
		listener.Frames(listenerConfig(cfg.Frames), s.onFrame),
	}

	s.subscribe()
	return s, nil
}

func listenerConfig(c config.ListenerConfig) listener.Config {
	return listener.Config{
		Address:     c.Addr(),
		BufferSize:  c.BufferSize,
		ReadTimeout: c.ReadTimeout,
	}
}

// subscribe connects the feeds. Subscribers run on the publisher's
// goroutine and must not block.
func (s *station) subscribe() {
	s.unsub = append(s.unsub,
		s.engine.Renders.Subscribe(func(r gps.Render) {
			s.store.Update(r)
			info := map[string]any{"seq": r.Seq, "available": r.Available()}
			if r.Err != nil {
				info["reason"] = r.Err.Error()
			}
			s.hub.Broadcast(events.MessageRender, info)
		}),
		s.engine.FirstFix.Subscribe(func(p gps.Position) {
			s.record(events.Event{Type: "gps_connected", Source: "GPS", Detail: p.String()})
		}),
		s.engine.Arrivals.Subscribe(func(p gps.Position) {
			s.record(events.Event{Type: "arrival", Source: "GPS", Detail: p.String()})
			s.hub.Broadcast(events.MessageArrival, p)
			s.table.Clear()
		}),
		s.table.Changes.Subscribe(func(list []mission.Waypoint) {
			s.engine.SetWaypoints(mission.Positions(list))
			s.hub.Broadcast(events.MessageMission, list)
		}),
		s.catalog.Changes.Subscribe(func(cams []codec.CameraDescriptor) {
			s.hub.Broadcast(events.MessageCameras, cams)
		}),
	)
}

func (s *station) onPosition(lat, lon float64) {
	s.engine.UpdatePosition(lat, lon)
	if s.recorder != nil {
		s.recorder.RecordPosition(lat, lon)
	}
	s.hub.Broadcast(events.MessagePosition, gps.Position{Latitude: lat, Longitude: lon})
}

func (s *station) onTelemetry(t codec.Telemetry) {
	s.table.ApplyTelemetry(t)
	s.hub.Broadcast(events.MessageTelemetry, t)
}

func (s *station) onCameras(cams []codec.CameraDescriptor) {
	if s.catalog.Replace(cams) {
		s.log.Info().Int("cameras", len(cams)).Msg("camera list updated")
	}
}

func (s *station) onFrame(frame []byte) {
	seq := s.frames.Put(frame)
	s.hub.Broadcast(events.MessageFrame, map[string]any{"seq": seq, "size": len(frame)})
}

// record journals e, copies it into the track log and pushes it to the browser.
func (s *station) record(e events.Event) {
	s.journal.Record(e)
	if s.recorder != nil {
		s.recorder.RecordEvent(e)
	}
	s.hub.Broadcast(events.MessageJournal, e)
}

// startListeners binds every listener. A listener that fails to bind is
// journaled and skipped; the others keep running.
func (s *station) startListeners(ctx context.Context) int {
	started := 0
	for _, l := range s.listeners {
		err := l.Start(ctx)
		if err == nil {
			started++
			continue
		}
		var bindErr *listener.BindError
		if errors.As(err, &bindErr) {
			s.record(events.Event{Type: "listener_failed", Source: l.Name(), Detail: bindErr.Addr})
			continue
		}
		s.log.Warn().Err(err).Str("listener", l.Name()).Msg("listener not started")
	}
	return started
}

// stopListeners stops every listener and waits for all of them to exit.
func (s *station) stopListeners() {
	var wg sync.WaitGroup
	for _, l := range s.listeners {
		wg.Add(1)
		go func(l *listener.Listener) {
			defer wg.Done()
			l.Stop()
		}(l)
	}
	wg.Wait()
}

func (s *station) routes() *http.ServeMux {
	mux := http.NewServeMux()

	events.NewHandlers(s.journal, s.hub).SetupHandlers(mux)
	gps.NewHandlers(s.engine, s.journal).SetupHandlers(mux)
	s.store.SetupHandlers(mux)
	mission.NewHandlers(s.table, s.link, s.engine, s.journal).SetupHandlers(mux)
	command.NewHandlers(s.actuator, s.link, s.journal).SetupHandlers(mux)
	camera.NewHandlers(s.catalog, s.frames, s.viewer, s.journal).SetupHandlers(mux)
	if s.recorder != nil {
		tracklog.NewHandlers(s.recorder).SetupHandlers(mux)
	}

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleOverview)
	return mux
}

func (s *station) handleHealth(w http.ResponseWriter, r *http.Request) {
	var down []string
	for _, l := range s.listeners {
		if l.Addr() == nil {
			down = append(down, l.Name())
			continue
		}
		select {
		case <-l.Done():
			down = append(down, l.Name())
		default:
		}
	}
	if len(down) > 0 {
		http.Error(w, fmt.Sprintf("listeners down: %s", strings.Join(down, ", ")), http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

// Close releases sockets, child processes and files. Listeners must be
// stopped first.
func (s *station) Close() {
	s.closeOnce.Do(func() {
		for _, u := range s.unsub {
			u()
		}
		if s.viewer != nil {
			s.viewer.KillAll()
		}
		if s.actuator != nil {
			if err := s.actuator.Close(); err != nil {
				s.log.Warn().Err(err).Msg("failed to close actuator")
			}
		}
		if s.dispatcher != nil {
			if err := s.dispatcher.Close(); err != nil {
				s.log.Warn().Err(err).Msg("failed to close command socket")
			}
		}
		if s.recorder != nil {
			if err := s.recorder.Store().Close(); err != nil {
				s.log.Warn().Err(err).Msg("failed to close track log")
			}
		}
		if err := s.journal.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close journal")
		}
	})
}
