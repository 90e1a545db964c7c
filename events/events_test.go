package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSubscribePublish(t *testing.T) {
	f := NewFeed[int]()
	var a, b []int
	unsubA := f.Subscribe(func(v int) { a = append(a, v) })
	f.Subscribe(func(v int) { b = append(b, v) })
	assert.Equal(t, 2, f.Len())

	f.Publish(1)
	unsubA()
	unsubA()
	f.Publish(2)

	assert.Equal(t, []int{1}, a)
	assert.Equal(t, []int{1, 2}, b)
	assert.Equal(t, 1, f.Len())
}

func TestFeedPublishFromSubscriber(t *testing.T) {
	f := NewFeed[string]()
	g := NewFeed[string]()
	var got []string
	g.Subscribe(func(s string) { got = append(got, s) })
	f.Subscribe(func(s string) {
		f.Subscribe(func(string) {})
		g.Publish("relayed " + s)
	})

	f.Publish("x")
	assert.Equal(t, []string{"relayed x"}, got)
}

func TestFeedConcurrentUse(t *testing.T) {
	f := NewFeed[int]()
	var mu sync.Mutex
	total := 0
	f.Subscribe(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.Publish(1)
				unsub := f.Subscribe(func(int) {})
				unsub()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, total)
}

func TestJournalWritesFileAndKeepsRecent(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	require.NoError(t, err)

	for i := 0; i < RecentLimit+5; i++ {
		j.Record(Event{Type: "waypoint_added", Source: "mission"})
	}
	j.Record(Event{Type: "arrival", Source: "engine", Detail: "10.000000,20.000000"})

	recent := j.Recent()
	assert.Len(t, recent, RecentLimit)
	assert.Equal(t, "arrival", recent[len(recent)-1].Type)
	assert.False(t, recent[0].Timestamp.IsZero())

	path := j.Path()
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "=== Event Log Started at "))
	assert.Contains(t, string(data), "ARRIVAL: engine 10.000000,20.000000")
	assert.Equal(t, RecentLimit+7, strings.Count(string(data), "\n"))
}

func TestInMemoryJournal(t *testing.T) {
	j, err := OpenJournal("")
	require.NoError(t, err)
	j.Record(Event{Type: "x", Source: "y"})
	assert.Len(t, j.Recent(), 1)
	assert.Empty(t, j.Path())
	assert.NoError(t, j.Close())
}

func TestHandlersListAndManual(t *testing.T) {
	j, _ := OpenJournal("")
	h := NewHandlers(j, NewHub())
	mux := http.NewServeMux()
	h.SetupHandlers(mux)

	req := httptest.NewRequest(http.MethodPost, "/events/manual", strings.NewReader("type=path_cleared&source=<operator>"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Path Cleared")
	assert.Contains(t, rec.Body.String(), "&lt;operator&gt;")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/manual", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	var list []Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "<operator>", list[0].Source)
}

func TestHubBroadcastReachesClient(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	j, _ := OpenJournal("")
	mux := http.NewServeMux()
	NewHandlers(j, hub).SetupHandlers(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(MessagePosition, map[string]float64{"lat": 23.8, "lon": 90.4})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string             `json:"type"`
		Data map[string]float64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessagePosition, msg.Type)
	assert.Equal(t, 23.8, msg.Data["lat"])

	cancel()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
