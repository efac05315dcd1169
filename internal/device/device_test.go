package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecordsAndFails(t *testing.T) {
	m := NewMemory(false)
	m.AddDevice("climate.living", DefaultCapabilities(), State{HVACMode: "heat"})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, "climate.living", Command{Call: CallSetTemperature, Temp: 21}))
	st, err := m.State(ctx, "climate.living")
	require.NoError(t, err)
	assert.Equal(t, 21.0, *st.Temperature)

	boom := errors.New("boom")
	m.FailCall("climate.living", CallSetFanMode, boom)
	assert.ErrorIs(t, m.Apply(ctx, "climate.living", Command{Call: CallSetFanMode, Value: "low"}), boom)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, boom, calls[1].Err)

	_, err = m.State(ctx, "climate.unknown")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

type haServer struct {
	mu      sync.Mutex
	calls   []string
	bodies  []map[string]any
	failOff bool
}

func (s *haServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/states/climate.living", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"entity_id": "climate.living",
			"state": "heat",
			"attributes": {
				"hvac_modes": ["off", "heat"],
				"fan_modes": ["auto"],
				"temperature": 20.5,
				"current_temperature": 19.0,
				"fan_mode": "auto",
				"supported_features": 129
			}
		}`))
	})
	mux.HandleFunc("/api/services/climate/", func(w http.ResponseWriter, r *http.Request) {
		service := r.URL.Path[len("/api/services/climate/"):]
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.calls = append(s.calls, service)
		s.bodies = append(s.bodies, body)
		fail := s.failOff && service == "turn_off"
		s.mu.Unlock()

		if fail {
			http.Error(w, "not supported", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	return mux
}

func TestHomeAssistantStateAndCapabilities(t *testing.T) {
	srv := &haServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	ha := NewHomeAssistant(ts.URL, "secret", time.Second, 100)
	ctx := context.Background()

	caps, err := ha.Capabilities(ctx, "climate.living")
	require.NoError(t, err)
	assert.True(t, caps.SupportsHVAC("heat"))
	assert.False(t, caps.SupportsSwing("on"))
	assert.True(t, caps.TurnOff)

	st, err := ha.State(ctx, "climate.living")
	require.NoError(t, err)
	assert.Equal(t, "heat", st.HVACMode)
	assert.Equal(t, 20.5, *st.Temperature)

	_, err = ha.State(ctx, "climate.missing")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestHomeAssistantApply(t *testing.T) {
	srv := &haServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	ha := NewHomeAssistant(ts.URL, "secret", time.Second, 100)
	ctx := context.Background()

	require.NoError(t, ha.Apply(ctx, "climate.living", Command{Call: CallSetTemperature, Temp: 21.5}))
	require.NoError(t, ha.Apply(ctx, "climate.living", Command{Call: CallSetHVACMode, Value: "heat"}))

	srv.mu.Lock()
	srv.failOff = true
	srv.mu.Unlock()
	require.NoError(t, ha.Apply(ctx, "climate.living", Command{Call: CallTurnOff}))

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []string{"set_temperature", "set_hvac_mode", "turn_off", "set_hvac_mode"}, srv.calls)
	assert.Equal(t, 21.5, srv.bodies[0]["temperature"])
	assert.Equal(t, "off", srv.bodies[3]["hvac_mode"])
}
