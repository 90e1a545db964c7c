// Package metrics holds the station's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Listener metrics, labelled by listener name (discovery, telemetry, frames).
	DatagramsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_datagrams_received_total",
			Help: "Datagrams read from a listener socket",
		},
		[]string{"listener"},
	)

	DatagramBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_datagram_bytes_total",
			Help: "Payload bytes read from a listener socket",
		},
		[]string{"listener"},
	)

	DecodeDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_decode_drops_total",
			Help: "Datagrams dropped because they could not be decoded",
		},
		[]string{"listener"},
	)

	ReadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_read_errors_total",
			Help: "Non-timeout socket read errors",
		},
		[]string{"listener"},
	)

	ListenersRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "station_listener_running",
			Help: "1 while the listener goroutine is alive",
		},
		[]string{"listener"},
	)

	// Outbound commands, labelled by kind (mission, actuator) and result (ok, error).
	CommandsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_commands_sent_total",
			Help: "Outbound command datagrams",
		},
		[]string{"kind", "result"},
	)

	// Engine
	PositionUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "station_position_updates_total",
			Help: "Position updates applied to the map engine",
		},
	)

	Arrivals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "station_arrivals_total",
			Help: "Destination arrivals detected",
		},
	)

	Renders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_renders_total",
			Help: "Map compositions, by result (ok, no_image)",
		},
		[]string{"result"},
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "station_render_duration_seconds",
			Help:    "Time spent composing one map raster",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	TileFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_tile_fetches_total",
			Help: "Base tile requests to the tile provider, by result",
		},
		[]string{"result"},
	)

	// UI push
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "station_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	WebSocketDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "station_websocket_dropped_total",
			Help: "Messages dropped because a client send buffer was full",
		},
	)

	// Track log
	TrackRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_track_records_total",
			Help: "Track log writes, by result (ok, error, dropped)",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
