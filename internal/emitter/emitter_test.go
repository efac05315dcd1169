package emitter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/climated/internal/db"
	"github.com/dokzlo13/climated/internal/eventbus"
	"github.com/dokzlo13/climated/internal/ledger"
	"github.com/dokzlo13/climated/internal/schedule"
)

func TestTransitionRecordedOnce(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "emitter.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC))

	bus := eventbus.NewWithConfig(1, 10)
	l := ledger.New(database.DB, mock)
	RecordToLedger(bus, l)
	em := New(bus, mock)

	node := schedule.Node{Time: schedule.MustTime("22:00"), Temp: schedule.Float(18)}
	sent := em.Transition(Transition{
		Group:    "living",
		Entities: []string{"climate.a"},
		Node:     node,
		Day:      schedule.DayAll,
		Trigger:  TriggerManualAdvance,
	})
	require.NotEmpty(t, sent.ID)
	assert.Equal(t, mock.Now(), sent.At)

	// Publishing the same event twice must not duplicate the ledger row.
	em.Transition(sent)
	em.ApplyFailed(ApplyFailure{Group: "living", EntityID: "climate.a", Command: "set_temperature(18.0)", Error: "boom"})
	bus.Close(context.Background())

	entries, err := l.GetByGroup("living", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byType := map[ledger.EventType]*ledger.Entry{}
	for _, e := range entries {
		byType[e.EventType] = e
	}
	require.Contains(t, byType, ledger.EventTransition)
	assert.Equal(t, sent.ID, byType[ledger.EventTransition].EventID)
	assert.Equal(t, "manual_advance", byType[ledger.EventTransition].Payload["trigger_type"])
	assert.Equal(t, "boom", byType[ledger.EventApplyFailed].Payload["error"])
}

func TestOverrideChangesUseSeparateTypes(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "emitter.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	bus := eventbus.NewWithConfig(1, 10)
	l := ledger.New(database.DB, nil)
	RecordToLedger(bus, l)
	em := New(bus, nil)

	em.Override(OverrideChange{Group: "living", OverrideID: "ov-1", Activated: true})
	em.Override(OverrideChange{Group: "living", OverrideID: "ov-1", Reason: "expired"})
	bus.Close(context.Background())

	activated, err := l.GetByType(ledger.EventOverrideActivated, 10)
	require.NoError(t, err)
	assert.Len(t, activated, 1)

	ended, err := l.GetByType(ledger.EventOverrideEnded, 10)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, "expired", ended[0].Payload["reason"])
}
