package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/config"
	"github.com/sendergui/groundstation/events"
)

type started struct {
	s    *station
	addr string
}

func testConfig(t *testing.T, missionPort int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.HTTP.Address = "127.0.0.1:0"
	for _, l := range []*config.ListenerConfig{&cfg.Discovery, &cfg.Telemetry, &cfg.Frames} {
		l.Host = "127.0.0.1"
		l.Port = 0
	}
	cfg.Mission = config.PeerConfig{Host: "127.0.0.1", Port: missionPort}
	cfg.Actuator.Host = "127.0.0.1"
	cfg.Events.Dir = t.TempDir()
	cfg.Tracklog.Dir = ""
	cfg.Map.Width, cfg.Map.Height = 320, 240
	cfg.Camera.Player = "/nonexistent/player-binary"
	return cfg
}

func startStation(t *testing.T, cfg *config.Config) (started, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan started, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- run(ctx, cfg, func(s *station, addr string) { ready <- started{s: s, addr: addr} })
	}()

	select {
	case st := <-ready:
		return st, cancel, errc
	case err := <-errc:
		cancel()
		t.Fatalf("station did not start: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("station did not start in time")
	}
	return started{}, cancel, errc
}

func postForm(t *testing.T, u string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(u, form)
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func hasEvent(list []events.Event, eventType string) bool {
	for _, e := range list {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

func TestStationMissionToArrival(t *testing.T) {
	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	cfg := testConfig(t, peer.LocalAddr().(*net.UDPAddr).Port)
	st, cancel, errc := startStation(t, cfg)
	base := "http://" + st.addr

	resp := postForm(t, base+"/mission/add", url.Values{"latitude": {"10"}, "longitude": {"20"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postForm(t, base+"/mission/push", url.Values{"id": {"1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postForm(t, base+"/mission/command", url.Values{"action": {"start"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := make([]byte, 2048)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := peer.ReadFrom(buf)
	require.NoError(t, err)
	var cmd codec.MissionCommand
	require.NoError(t, json.Unmarshal(buf[:n], &cmd))
	assert.Equal(t, "start", cmd.Command)
	assert.Equal(t, codec.Coordinates{Longitude: "0", Latitude: "0", Altitude: "0"}, cmd.Starting)
	assert.Equal(t, "10", cmd.Ending.Latitude)
	assert.Equal(t, "20", cmd.Ending.Longitude)

	telemetry := st.s.listeners[1].Addr()
	require.NotNil(t, telemetry)
	conn, err := net.Dial("udp", telemetry.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"lat": 10.00001, "lon": 20, "mission_state": "RUNNING"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(st.s.table.List()) == 0 && hasEvent(st.s.journal.Recent(), "arrival")
	}, 3*time.Second, 20*time.Millisecond)
	assert.True(t, hasEvent(st.s.journal.Recent(), "gps_connected"))

	latest, ok := st.s.engine.Latest()
	require.True(t, ok)
	assert.InDelta(t, 10.00001, latest.Latitude, 1e-9)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/map.png")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK && resp.Header.Get("Content-Type") == "image/png"
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		sum, err := st.s.recorder.Summary(context.Background())
		return err == nil && sum.Positions == 1 && sum.Events >= 2
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("station did not stop")
	}
	for _, l := range st.s.listeners {
		select {
		case <-l.Done():
		default:
			t.Fatalf("listener %s still running", l.Name())
		}
	}
}

func TestStationListenerBindFailure(t *testing.T) {
	taken, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig(t, 5006)
	cfg.Frames.Port = taken.LocalAddr().(*net.UDPAddr).Port
	st, cancel, errc := startStation(t, cfg)
	defer func() {
		cancel()
		<-errc
	}()

	assert.True(t, hasEvent(st.s.journal.Recent(), "listener_failed"))
	assert.NotNil(t, st.s.listeners[0].Addr())
	assert.NotNil(t, st.s.listeners[1].Addr())

	resp, err := http.Get("http://" + st.addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "frames")
}

func TestOverviewPage(t *testing.T) {
	cfg := testConfig(t, 5006)
	cfg.Tracklog.Enabled = false
	st, cancel, errc := startStation(t, cfg)
	defer func() {
		cancel()
		<-errc
	}()

	resp, err := http.Get("http://" + st.addr + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `src="/map.png"`)
	assert.Contains(t, string(body), "GPS: Waiting for data...")
	assert.Contains(t, string(body), `<div hx-get="/gps/status" hx-trigger="every 1s"><div id="gps-status"`)
	assert.Contains(t, string(body), "No waypoints")
	assert.True(t, strings.HasPrefix(string(body), "<!doctype html>"))

	resp, err = http.Get("http://" + st.addr + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get("http://" + st.addr + "/tracklog/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
