package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/climated/internal/api"
	"github.com/dokzlo13/climated/internal/apply"
	"github.com/dokzlo13/climated/internal/coordinator"
	"github.com/dokzlo13/climated/internal/db"
	"github.com/dokzlo13/climated/internal/device"
	"github.com/dokzlo13/climated/internal/emitter"
	"github.com/dokzlo13/climated/internal/eventbus"
	"github.com/dokzlo13/climated/internal/history"
	"github.com/dokzlo13/climated/internal/override"
	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/schedule"
	"github.com/dokzlo13/climated/internal/state"
	"github.com/dokzlo13/climated/internal/store"
)

// startTestServer starts a control API backed by a temp database and the memory driver.
func startTestServer(t *testing.T) string {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "cli.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC))

	st := store.New(state.NewStore(database.DB, mock))
	_, err = st.Load()
	require.NoError(t, err)

	bus := eventbus.NewWithConfig(1, 100)
	t.Cleanup(func() { bus.Close(context.Background()) })

	cal := resolver.DefaultCalendar()
	hist := history.New(database.DB)
	coord := coordinator.New(st, override.NewManager(cal, hist), apply.NewEngine(device.NewMemory(true), time.Second, nil),
		emitter.New(bus, mock), cal, coordinator.Options{Clock: mock, History: hist})

	ts := httptest.NewServer(api.New("127.0.0.1", 0, st, coord, cal, mock))
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestParseNodes(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{name: "temperature", args: []string{"06:30=21.5"}, want: []string{"06:30 21.5 -"}},
		{name: "with hvac", args: []string{"22:00=18/heat"}, want: []string{"22:00 18.0 heat"}},
		{name: "mode only", args: []string{"23:00=-/off"}, want: []string{"23:00 - off"}},
		{name: "missing equals", args: []string{"06:00"}, wantErr: true},
		{name: "bad time", args: []string{"6pm=20"}, wantErr: true},
		{name: "bad temp", args: []string{"06:00=warm"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := parseNodes(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, n := range nodes {
				got = append(got, n.Time.String()+" "+formatTemp(n.Temp)+" "+orDash(n.HVACMode))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScheduleCommands(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, "--server", url, "schedule", "set", "climate.bedroom", "06:00=21", "22:00=18")
	require.NoError(t, err)
	assert.Contains(t, out, "__entity_climate.bedroom (enabled)")
	assert.Contains(t, out, "22:00")

	out, err = runCLI(t, "--server", url, "--json", "schedule", "get", "climate.bedroom")
	require.NoError(t, err)
	var view scheduleView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Len(t, view.Effective.Days[schedule.DayAll], 2)

	out, err = runCLI(t, "--server", url, "schedule", "upcoming", "climate.bedroom", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-10 22:00")
	assert.Contains(t, out, "2024-01-11 06:00")

	_, err = runCLI(t, "--server", url, "schedule", "get", "climate.unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")
}

func TestGroupAndAdvanceCommands(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, "--server", url, "group", "create", "living", "climate.a", "climate.b")
	require.NoError(t, err)
	assert.Contains(t, out, "Group created: living (2 entities)")

	out, err = runCLI(t, "--server", url, "group", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "climate.a,climate.b")

	out, err = runCLI(t, "--server", url, "advance", "climate.b")
	require.NoError(t, err)
	assert.Contains(t, out, "Advanced living")

	out, err = runCLI(t, "--server", url, "advance", "status", "living")
	require.NoError(t, err)
	assert.Contains(t, out, "Group living: advanced to")

	out, err = runCLI(t, "--server", url, "advance", "cancel", "living")
	require.NoError(t, err)
	assert.Contains(t, out, "Advance cancelled: living")

	out, err = runCLI(t, "--server", url, "advance", "cancel", "living")
	require.NoError(t, err)
	assert.Contains(t, out, "No active advance on living")

	out, err = runCLI(t, "--server", url, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 1 groups")
}

func TestSettingsCommands(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, "--server", url, "settings", "set", "--max-temp", "26")
	require.NoError(t, err)
	assert.Contains(t, out, "max_temp: 26.0")

	_, err = runCLI(t, "--server", url, "settings", "set")
	assert.Error(t, err)

	_, err = runCLI(t, "--server", url, "settings", "set", "--min-temp", "30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation_error")
}
