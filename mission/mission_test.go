package mission

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/events"
	"github.com/sendergui/groundstation/gps"
)

func add(t *testing.T, tb *Table, lat, lon string) Waypoint {
	t.Helper()
	w, err := tb.Add(Submission{Control: ControlAutonomous, Type: TypeGPS, Latitude: lat, Longitude: lon, Altitude: "3"})
	require.NoError(t, err)
	return w
}

func statuses(list []Waypoint) []string {
	out := make([]string, len(list))
	for i, w := range list {
		out[i] = w.Status
	}
	return out
}

func TestAddAssignsDenseIDs(t *testing.T) {
	tb := NewTable()
	add(t, tb, "10", "20")
	add(t, tb, "11", "21")
	w := add(t, tb, "12", "22")

	assert.Equal(t, 3, w.ID)
	assert.Equal(t, StatusNull, w.Status)
}

func TestAddValidation(t *testing.T) {
	tb := NewTable()

	_, err := tb.Add(Submission{Latitude: "91", Longitude: "abc", Altitude: "x"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "latitude")
	assert.Contains(t, verr.Fields, "longitude")
	assert.Contains(t, verr.Fields, "altitude")
	assert.Empty(t, tb.List())

	_, err = tb.Add(Submission{Control: "Remote", Latitude: "1", Longitude: "1"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "control")

	_, err = tb.Add(Submission{Control: ControlAutonomous, Type: "Balloon", Latitude: "1", Longitude: "1"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "type")
}

func TestManualForcesTypeNone(t *testing.T) {
	tb := NewTable()
	w, err := tb.Add(Submission{Control: ControlManual, Type: TypeArUco, Latitude: " 10.5 ", Longitude: "20", Altitude: ""})
	require.NoError(t, err)
	assert.Equal(t, TypeNone, w.Type)
	assert.Equal(t, "10.5", w.Latitude)
	assert.Equal(t, "0", w.Altitude)
}

func TestRemoveReindexesAndKeepsPrimary(t *testing.T) {
	tb := NewTable()
	add(t, tb, "1", "1")
	add(t, tb, "2", "2")
	add(t, tb, "3", "3")
	_, err := tb.Push(3)
	require.NoError(t, err)

	require.NoError(t, tb.Remove(1))
	list := tb.List()
	require.Len(t, list, 2)
	assert.Equal(t, []int{1, 2}, []int{list[0].ID, list[1].ID})

	p, ok := tb.Primary()
	require.True(t, ok)
	assert.Equal(t, "3", p.Latitude)
	assert.Equal(t, 2, p.ID)

	require.NoError(t, tb.Remove(2))
	_, ok = tb.Primary()
	assert.False(t, ok)

	assert.ErrorIs(t, tb.Remove(5), ErrNoRow)
	assert.ErrorIs(t, tb.Remove(0), ErrNoRow)
}

func TestPushResetsOtherStatuses(t *testing.T) {
	tb := NewTable()
	add(t, tb, "1", "1")
	add(t, tb, "2", "2")

	_, err := tb.Push(1)
	require.NoError(t, err)
	tb.ApplyTelemetry(codec.Telemetry{MissionState: "RUNNING", HasMissionState: true})
	assert.Equal(t, []string{"RUNNING", StatusNull}, statuses(tb.List()))

	w, err := tb.Push(2)
	require.NoError(t, err)
	assert.Equal(t, StatusPushed, w.Status)
	assert.Equal(t, []string{StatusNull, StatusPushed}, statuses(tb.List()))

	_, err = tb.Push(3)
	assert.ErrorIs(t, err, ErrNoRow)
}

func TestApplyTelemetry(t *testing.T) {
	tb := NewTable()
	add(t, tb, "1", "1")

	tb.ApplyTelemetry(codec.Telemetry{MissionState: "RUNNING", HasMissionState: true})
	assert.Equal(t, []string{StatusNull}, statuses(tb.List()), "no primary, no change")

	_, err := tb.Push(1)
	require.NoError(t, err)
	tb.ApplyTelemetry(codec.Telemetry{Fields: map[string]any{"speed": 1.0}})
	assert.Equal(t, []string{TypeNone}, statuses(tb.List()))
}

func TestChangesPublishedOnEveryMutation(t *testing.T) {
	tb := NewTable()
	var got [][]Waypoint
	tb.Changes.Subscribe(func(l []Waypoint) { got = append(got, l) })

	add(t, tb, "10", "20")
	add(t, tb, "11", "21")
	_, _ = tb.Push(1)
	tb.ApplyTelemetry(codec.Telemetry{MissionState: "DONE", HasMissionState: true})
	tb.ApplyTelemetry(codec.Telemetry{MissionState: "DONE", HasMissionState: true})
	_ = tb.Remove(2)
	tb.Clear()

	require.Len(t, got, 6)
	assert.Empty(t, got[5])

	want := []gps.Position{{Latitude: 10, Longitude: 20}, {Latitude: 11, Longitude: 21}}
	if diff := cmp.Diff(want, Positions(got[1])); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
}

func TestCommand(t *testing.T) {
	tb := NewTable()
	add(t, tb, "10.5", "20.25")

	_, err := tb.Command(codec.CommandStart, nil)
	assert.ErrorIs(t, err, ErrNoPrimary)

	_, err = tb.Push(1)
	require.NoError(t, err)

	_, err = tb.Command("launch", nil)
	assert.Error(t, err)

	cmd, err := tb.Command(codec.CommandStart, nil)
	require.NoError(t, err)
	want := codec.MissionCommand{
		Command:  "start",
		Starting: codec.Coordinates{Longitude: "0", Latitude: "0", Altitude: "0"},
		Ending:   codec.Coordinates{Longitude: "20.25", Latitude: "10.5", Altitude: "3"},
		Type:     TypeGPS,
		Control:  ControlAutonomous,
	}
	if diff := cmp.Diff(want, cmd); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}

	cmd, err = tb.Command(codec.CommandPause, &gps.Position{Latitude: 10.1, Longitude: 20.2})
	require.NoError(t, err)
	assert.Equal(t, codec.Coordinates{Longitude: "20.2", Latitude: "10.1", Altitude: "0"}, cmd.Starting)
}

type fakeSender struct {
	sent []codec.MissionCommand
	err  error
}

func (f *fakeSender) SendMission(_ context.Context, cmd codec.MissionCommand) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

type fixedLocator struct {
	p  gps.Position
	ok bool
}

func (l fixedLocator) Latest() (gps.Position, bool) { return l.p, l.ok }

func TestHandlers(t *testing.T) {
	tb := NewTable()
	sender := &fakeSender{}
	j, err := events.OpenJournal("")
	require.NoError(t, err)
	mux := http.NewServeMux()
	NewHandlers(tb, sender, fixedLocator{p: gps.Position{Latitude: 1, Longitude: 2}, ok: true}, j).SetupHandlers(mux)

	do := func(method, target string, form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/mission/add", url.Values{"control": {"Autonomous"}, "type": {"ArUco"}, "latitude": {"10"}, "longitude": {"20"}, "altitude": {"5"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<td>ArUco</td>")

	rec = do(http.MethodPost, "/mission/add", url.Values{"latitude": {"100"}, "longitude": {"20"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/mission/command", url.Values{"action": {"start"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(http.MethodPost, "/mission/push", url.Values{"id": {"1"}})
	assert.Contains(t, rec.Body.String(), "PUSHED")
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/mission/push", url.Values{"id": {"9"}}).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/mission/push", url.Values{"id": {"x"}}).Code)

	rec = do(http.MethodPost, "/mission/command", url.Values{"action": {"start"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Current Selected: #1")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "1", sender.sent[0].Starting.Latitude)
	assert.Equal(t, "ArUco", sender.sent[0].Type)

	sender.err = errors.New("network unreachable")
	rec = do(http.MethodPost, "/mission/command", url.Values{"action": {"stop"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(http.MethodGet, "/mission/waypoints", nil)
	assert.Contains(t, rec.Body.String(), `"status":"PUSHED"`)

	rec = do(http.MethodPost, "/mission/clear", nil)
	assert.Contains(t, rec.Body.String(), "No waypoints")
	assert.Equal(t, http.StatusMethodNotAllowed, do(http.MethodGet, "/mission/clear", nil).Code)

	types := make([]string, 0)
	for _, e := range j.Recent() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"waypoint_added", "mission_pushed", "mission_command", "command_failed", "waypoints_cleared"}, types)
}

func TestChangesFollowMutationOrder(t *testing.T) {
	for round := 0; round < 200; round++ {
		tb := NewTable()

		var mu sync.Mutex
		var dest *gps.Position
		tb.Changes.Subscribe(func(list []Waypoint) {
			if len(list) == 0 {
				time.Sleep(50 * time.Microsecond)
			}
			ps := Positions(list)
			mu.Lock()
			defer mu.Unlock()
			if len(ps) == 0 {
				dest = nil
				return
			}
			d := ps[len(ps)-1]
			dest = &d
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			tb.Clear()
		}()
		go func() {
			defer wg.Done()
			_, err := tb.Add(Submission{Latitude: "10", Longitude: "20"})
			assert.NoError(t, err)
		}()
		wg.Wait()

		want := Positions(tb.List())
		mu.Lock()
		if len(want) == 0 {
			require.Nil(t, dest, "round %d", round)
		} else {
			require.NotNil(t, dest, "round %d", round)
			require.Equal(t, want[len(want)-1], *dest, "round %d", round)
		}
		mu.Unlock()
	}
}

func TestMissionFragments(t *testing.T) {
	ctx := context.Background()
	var b strings.Builder

	require.NoError(t, MissionBar(Waypoint{}, "").Render(ctx, &b))
	assert.Equal(t, `<div id="mission-bar">Current Selected: #None </div>`, b.String())

	b.Reset()
	require.NoError(t, MissionBar(Waypoint{ID: 2}, "<start>").Render(ctx, &b))
	assert.Contains(t, b.String(), `Current Selected: #2 <span class="text-indigo-700">sent &lt;start&gt;</span>`)

	tb := NewTable()
	add(t, tb, "10", "20")
	_, err := tb.Push(1)
	require.NoError(t, err)

	b.Reset()
	require.NoError(t, WaypointTable(tb.List()).Render(ctx, &b))
	assert.Contains(t, b.String(), `<tr class="bg-green-50"><td>1</td>`)
	assert.Contains(t, b.String(), `hx-vals="{&#34;id&#34;:&#34;1&#34;}"`)
	assert.NotContains(t, b.String(), "No waypoints")
}
