package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/climated/internal/db"
	"github.com/dokzlo13/climated/internal/schedule"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestRecordEndAndQuery(t *testing.T) {
	s := newStore(t)
	base := time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC)
	target := schedule.Node{Time: schedule.MustTime("22:00"), Temp: schedule.Float(18)}

	require.NoError(t, s.Record(Entry{
		ID: "a1", Group: "living", ActivatedAt: base, NaturalTime: base.Add(15 * time.Hour),
		TargetDay: schedule.DayAll, TargetNode: target,
	}))
	require.NoError(t, s.End("a1", base.Add(time.Hour), EndCancelled))
	// A second End must not overwrite the first.
	require.NoError(t, s.End("a1", base.Add(2*time.Hour), EndExpired))

	entries, err := s.Since("living", base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, EndCancelled, entries[0].EndReason)
	require.NotNil(t, entries[0].EndedAt)
	assert.Equal(t, base.Add(time.Hour), *entries[0].EndedAt)
	assert.Equal(t, target, entries[0].TargetNode)

	none, err := s.Since("living", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClearAndRetention(t *testing.T) {
	s := newStore(t)
	base := time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC)
	node := schedule.Node{Time: schedule.MustTime("22:00")}

	require.NoError(t, s.Record(Entry{ID: "old", Group: "living", ActivatedAt: base.AddDate(0, 0, -40), NaturalTime: base, TargetDay: schedule.DayAll, TargetNode: node}))
	require.NoError(t, s.End("old", base.AddDate(0, 0, -40), EndExpired))
	require.NoError(t, s.Record(Entry{ID: "open", Group: "living", ActivatedAt: base.AddDate(0, 0, -40), NaturalTime: base, TargetDay: schedule.DayAll, TargetNode: node}))
	require.NoError(t, s.Record(Entry{ID: "other", Group: "office", ActivatedAt: base, NaturalTime: base, TargetDay: schedule.DayAll, TargetNode: node}))

	deleted, err := s.DeleteOlderThan(base.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "open entries are kept")

	cleared, err := s.Clear("living")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	office, err := s.Since("office", time.Time{})
	require.NoError(t, err)
	assert.Len(t, office, 1)
}
