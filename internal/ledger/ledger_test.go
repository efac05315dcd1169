package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/climated/internal/db"
)

func newLedger(t *testing.T) (*Ledger, *clock.Mock) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	return New(database.DB, mock), mock
}

func TestAppendDeduplicatesByEventID(t *testing.T) {
	l, _ := newLedger(t)

	payload := map[string]any{"node": "07:00"}
	require.NoError(t, l.Append(EventTransition, "evt-1", "living", "scheduled", payload))
	require.NoError(t, l.Append(EventTransition, "evt-1", "living", "scheduled", payload))
	require.NoError(t, l.Append(EventApplyFailed, "", "living", "scheduled", nil))
	require.NoError(t, l.Append(EventApplyFailed, "", "living", "scheduled", nil))

	transitions, err := l.GetByType(EventTransition, 10)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "07:00", transitions[0].Payload["node"])
	assert.Equal(t, "living", transitions[0].GroupID)

	failures, err := l.GetByGroup("living", 10)
	require.NoError(t, err)
	assert.Len(t, failures, 3)
}

func TestDeleteOlderThan(t *testing.T) {
	l, mock := newLedger(t)

	require.NoError(t, l.Append(EventTransition, "old", "living", "scheduled", nil))
	mock.Add(48 * time.Hour)
	require.NoError(t, l.Append(EventTransition, "new", "living", "scheduled", nil))

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	left, err := l.GetByTimeRange(mock.Now().Add(-time.Hour), mock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].EventID)
}
