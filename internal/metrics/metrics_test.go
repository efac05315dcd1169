package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/climated/internal/device"
	"github.com/dokzlo13/climated/internal/eventbus"
)

func TestCallDoneCountsByResult(t *testing.T) {
	m := New()

	m.CallDone("climate.a", device.Command{Call: device.CallSetTemperature, Temp: 21}, 10*time.Millisecond, nil)
	m.CallDone("climate.a", device.Command{Call: device.CallSetTemperature, Temp: 21}, 10*time.Millisecond, errors.New("boom"))
	m.CallDone("climate.a", device.Command{Call: device.CallTurnOff}, time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeviceCalls.WithLabelValues("set_temperature", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeviceCalls.WithLabelValues("set_temperature", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeviceCalls.WithLabelValues("turn_off", "ok")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Ticks.Inc()
	m.EventDropped(eventbus.EventTypeTransition)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, "climated_ticks_total 1"))
	assert.True(t, strings.Contains(out, `climated_eventbus_dropped_total{type="transition"} 1`))
	assert.True(t, strings.Contains(out, "go_goroutines"))
}
