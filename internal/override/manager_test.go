package override

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/climated/internal/history"
	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/schedule"
)

type fakeRecorder struct {
	recorded []history.Entry
	ended    map[string]history.EndReason
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{ended: map[string]history.EndReason{}}
}

func (f *fakeRecorder) Record(e history.Entry) error {
	f.recorded = append(f.recorded, e)
	return nil
}

func (f *fakeRecorder) End(id string, _ time.Time, reason history.EndReason) error {
	if _, done := f.ended[id]; !done {
		f.ended[id] = reason
	}
	return nil
}

func twoNodeSchedule() schedule.Schedule {
	return schedule.Schedule{Mode: schedule.ModeAllDays, Days: map[schedule.DayKey][]schedule.Node{
		schedule.DayAll: {
			{Time: schedule.MustTime("06:00"), Temp: schedule.Float(21)},
			{Time: schedule.MustTime("22:00"), Temp: schedule.Float(18)},
		},
	}}
}

func at(hh, mm int) time.Time {
	return time.Date(2024, 1, 10, hh, mm, 0, 0, time.UTC)
}

func TestAdvanceThenExpire(t *testing.T) {
	rec := newFakeRecorder()
	m := NewManager(resolver.DefaultCalendar(), rec)
	s := twoNodeSchedule()

	o, err := m.Advance("living", s, at(7, 0))
	require.NoError(t, err)
	assert.Equal(t, "22:00", o.TargetNode.Time.String())
	assert.Equal(t, at(22, 0), o.NaturalTime)
	require.Len(t, rec.recorded, 1)

	eff, err := m.Effective("living", s, at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, SourceOverride, eff.Source)
	assert.Equal(t, 18.0, *eff.Resolution.Node.Temp)
	assert.Nil(t, eff.Expired)

	eff, err = m.Effective("living", s, at(22, 0))
	require.NoError(t, err)
	assert.Equal(t, SourceSchedule, eff.Source)
	require.NotNil(t, eff.Expired, "expiry is reported on the call that reaches natural time")
	assert.Equal(t, "22:00", eff.Resolution.Node.Time.String())
	assert.Equal(t, history.EndExpired, rec.ended[o.ID])

	eff, err = m.Effective("living", s, at(22, 1))
	require.NoError(t, err)
	assert.Nil(t, eff.Expired, "expiry happens once")
	assert.False(t, m.Status("living").IsActive)
}

func TestOverrideAndExpiredResolutionShareIdentity(t *testing.T) {
	m := NewManager(resolver.DefaultCalendar(), nil)
	s := twoNodeSchedule()

	_, err := m.Advance("living", s, at(7, 0))
	require.NoError(t, err)
	during, err := m.Effective("living", s, at(21, 59))
	require.NoError(t, err)
	after, err := m.Effective("living", s, at(22, 0))
	require.NoError(t, err)

	assert.Equal(t, during.Resolution.Identity(), after.Resolution.Identity())
}

func TestCancel(t *testing.T) {
	rec := newFakeRecorder()
	m := NewManager(resolver.DefaultCalendar(), rec)
	s := twoNodeSchedule()

	_, ok := m.Cancel("living", at(7, 0))
	assert.False(t, ok, "cancel without override is a no-op")

	o, err := m.Advance("living", s, at(7, 0))
	require.NoError(t, err)

	cancelled, ok := m.Cancel("living", at(8, 0))
	require.True(t, ok)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, history.EndCancelled, rec.ended[o.ID])

	eff, err := m.Effective("living", s, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, SourceSchedule, eff.Source)
	assert.Equal(t, "06:00", eff.Resolution.Node.Time.String())
}

func TestAdvanceReplaces(t *testing.T) {
	rec := newFakeRecorder()
	m := NewManager(resolver.DefaultCalendar(), rec)
	s := twoNodeSchedule()

	first, err := m.Advance("living", s, at(7, 0))
	require.NoError(t, err)
	second, err := m.Advance("living", s, at(8, 0))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, history.EndReplaced, rec.ended[first.ID])
	st := m.Status("living")
	require.True(t, st.IsActive)
	assert.Equal(t, at(8, 0), *st.ActivatedAt)
}

func TestAdvanceAcrossMidnight(t *testing.T) {
	m := NewManager(resolver.DefaultCalendar(), nil)
	o, err := m.Advance("living", twoNodeSchedule(), at(23, 0))
	require.NoError(t, err)
	assert.Equal(t, "06:00", o.TargetNode.Time.String())
	assert.Equal(t, at(6, 0).AddDate(0, 0, 1), o.NaturalTime)
}

func TestAdvanceEmptySchedule(t *testing.T) {
	m := NewManager(resolver.DefaultCalendar(), nil)
	_, err := m.Advance("living", schedule.NewSchedule(schedule.ModeAllDays), at(7, 0))
	assert.True(t, errors.Is(err, schedule.ErrEmptySchedule))
	assert.False(t, m.Status("living").IsActive)
}

func TestRenameAndForget(t *testing.T) {
	rec := newFakeRecorder()
	m := NewManager(resolver.DefaultCalendar(), rec)
	o, err := m.Advance("living", twoNodeSchedule(), at(7, 0))
	require.NoError(t, err)

	m.Rename("living", "lounge")
	assert.False(t, m.Status("living").IsActive)
	assert.True(t, m.Status("lounge").IsActive)

	m.Forget("lounge", at(8, 0))
	assert.False(t, m.Status("lounge").IsActive)
	assert.Equal(t, history.EndDeleted, rec.ended[o.ID])
}
