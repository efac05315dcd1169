package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/climated/internal/emitter"
	"github.com/dokzlo13/climated/internal/eventbus"
	"github.com/dokzlo13/climated/internal/schedule"
)

func TestNotifierDeliversTransitions(t *testing.T) {
	var (
		mu       sync.Mutex
		received []map[string]any
	)
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		received = append(received, body)
		mu.Unlock()
	}))
	defer ok.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	var failures []string
	n := New([]string{broken.URL, ok.URL}, time.Second)
	n.OnError(func(url string, err error) { failures = append(failures, url) })

	bus := eventbus.NewWithConfig(1, 10)
	n.Attach(bus)
	em := emitter.New(bus, nil)
	em.Transition(emitter.Transition{
		Group:    "living",
		Entities: []string{"climate.a"},
		Node:     schedule.Node{Time: schedule.MustTime("07:00"), Temp: schedule.Float(21)},
		Day:      schedule.DayWeekday,
		Trigger:  emitter.TriggerScheduled,
	})
	bus.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "living", received[0]["group"])
	assert.Equal(t, "weekday", received[0]["day"])
	assert.Equal(t, "scheduled", received[0]["trigger_type"])
	node := received[0]["node"].(map[string]any)
	assert.Equal(t, "07:00", node["time"])
	assert.Equal(t, 21.0, node["temp"])

	assert.Equal(t, []string{broken.URL}, failures)
}

func TestNotifierWithoutURLsDoesNotSubscribe(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 1)
	New(nil, 0).Attach(bus)
	dropped := 0
	bus.OnDrop(func(eventbus.EventType) { dropped++ })

	for i := 0; i < 5; i++ {
		bus.Publish(eventbus.Event{Type: eventbus.EventTypeTransition})
	}
	bus.Close(context.Background())
	assert.Zero(t, dropped)
}
