package resolver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/climated/internal/schedule"
)

func node(hhmm string, temp float64) schedule.Node {
	return schedule.Node{Time: schedule.MustTime(hhmm), Temp: schedule.Float(temp)}
}

func allDays(nodes ...schedule.Node) schedule.Schedule {
	return schedule.Schedule{Mode: schedule.ModeAllDays, Days: map[schedule.DayKey][]schedule.Node{schedule.DayAll: nodes}}
}

// 2024-01-10 is a Wednesday.
func at(hhmm string) time.Time {
	t := schedule.MustTime(hhmm)
	return time.Date(2024, 1, 10, t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func TestActiveNode(t *testing.T) {
	sched := allDays(node("06:00", 21), node("22:00", 18))

	tests := []struct {
		name     string
		now      time.Time
		wantTime string
		wantTemp float64
	}{
		{"before first node wraps to last", at("03:00"), "22:00", 18},
		{"exactly on first node", at("06:00"), "06:00", 21},
		{"between nodes", at("12:30"), "06:00", 21},
		{"exactly on last node", at("22:00"), "22:00", 18},
		{"late evening", at("23:59"), "22:00", 18},
		{"midnight", at("00:00"), "22:00", 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ActiveNode(sched, tt.now, DefaultCalendar())
			require.NoError(t, err)
			assert.Equal(t, tt.wantTime, res.Node.Time.String())
			assert.Equal(t, tt.wantTemp, *res.Node.Temp)
			assert.Equal(t, schedule.DayAll, res.Day)
		})
	}
}

func TestActiveNodeRotationInvariant(t *testing.T) {
	nodes := []schedule.Node{node("00:00", 18), node("07:00", 21), node("17:30", 22), node("23:00", 18)}
	cal := DefaultCalendar()

	for rot := 0; rot < len(nodes); rot++ {
		rotated := append(append([]schedule.Node{}, nodes[rot:]...), nodes[:rot]...)
		for minute := 0; minute < schedule.MinutesPerDay; minute += 7 {
			now := time.Date(2024, 1, 10, 0, minute, 0, 0, time.UTC)
			want, err := ActiveNode(allDays(nodes...), now, cal)
			require.NoError(t, err)
			got, err := ActiveNode(allDays(rotated...), now, cal)
			require.NoError(t, err)
			assert.Equal(t, want.Node.Key(), got.Node.Key(), "rotation %d at %s", rot, now.Format("15:04"))
		}
	}
}

func TestActiveNodeEmpty(t *testing.T) {
	_, err := ActiveNode(allDays(), at("10:00"), DefaultCalendar())
	assert.True(t, errors.Is(err, schedule.ErrEmptySchedule))
}

func TestDayKeyForIsTotalAndExclusive(t *testing.T) {
	cal := DefaultCalendar()
	modes := []schedule.Mode{schedule.ModeAllDays, schedule.ModeWeekdayWeekend, schedule.ModeIndividual}

	for _, mode := range modes {
		for i := 0; i < 7; i++ {
			date := time.Date(2024, 1, 8+i, 12, 0, 0, 0, time.UTC) // Mon..Sun
			key := DayKeyFor(mode, date, cal)
			assert.True(t, mode.Uses(key), "mode %s mapped %s to %s", mode, date.Weekday(), key)
		}
	}

	assert.Equal(t, schedule.DayWeekday, DayKeyFor(schedule.ModeWeekdayWeekend, at("12:00"), cal))
	assert.Equal(t, schedule.DayWeekend, DayKeyFor(schedule.ModeWeekdayWeekend, at("12:00").AddDate(0, 0, 3), cal))
	assert.Equal(t, schedule.DayWed, DayKeyFor(schedule.ModeIndividual, at("12:00"), cal))
}

func TestDayKeyForUsesHolidays(t *testing.T) {
	cal, err := NewWeekCalendar([]string{"mon", "tue", "wed", "thu", "fri"}, []string{"2024-01-10"})
	require.NoError(t, err)
	assert.Equal(t, schedule.DayWeekend, DayKeyFor(schedule.ModeWeekdayWeekend, at("12:00"), cal))
}

func TestNextNode(t *testing.T) {
	cal := DefaultCalendar()

	t.Run("later today", func(t *testing.T) {
		next, err := NextNode(allDays(node("06:00", 21), node("22:00", 18)), at("12:00"), cal)
		require.NoError(t, err)
		assert.Equal(t, "22:00", next.Node.Time.String())
		assert.Equal(t, at("22:00"), next.At)
	})

	t.Run("strictly after now", func(t *testing.T) {
		next, err := NextNode(allDays(node("06:00", 21), node("22:00", 18)), at("06:00"), cal)
		require.NoError(t, err)
		assert.Equal(t, "22:00", next.Node.Time.String())
	})

	t.Run("crosses midnight", func(t *testing.T) {
		next, err := NextNode(allDays(node("06:00", 21), node("22:00", 18)), at("23:00"), cal)
		require.NoError(t, err)
		assert.Equal(t, "06:00", next.Node.Time.String())
		assert.Equal(t, at("06:00").AddDate(0, 0, 1), next.At)
	})

	t.Run("weekend list reported with its own day key", func(t *testing.T) {
		s := schedule.Schedule{Mode: schedule.ModeWeekdayWeekend, Days: map[schedule.DayKey][]schedule.Node{
			schedule.DayWeekday: {node("06:00", 21)},
			schedule.DayWeekend: {node("09:00", 20)},
		}}
		friday := time.Date(2024, 1, 12, 23, 0, 0, 0, time.UTC)
		next, err := NextNode(s, friday, cal)
		require.NoError(t, err)
		assert.Equal(t, schedule.DayWeekend, next.Day)
		assert.Equal(t, time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC), next.At)
	})

	t.Run("sparse individual schedule finds next week", func(t *testing.T) {
		s := schedule.Schedule{Mode: schedule.ModeIndividual, Days: map[schedule.DayKey][]schedule.Node{
			schedule.DayWed: {node("06:00", 21)},
		}}
		next, err := NextNode(s, at("07:00"), cal)
		require.NoError(t, err)
		assert.Equal(t, at("06:00").AddDate(0, 0, 7), next.At)
	})

	t.Run("empty schedule", func(t *testing.T) {
		_, err := NextNode(allDays(), at("07:00"), cal)
		assert.True(t, errors.Is(err, schedule.ErrEmptySchedule))
	})

	t.Run("nodes only under unused day keys", func(t *testing.T) {
		s := schedule.Schedule{Mode: schedule.ModeAllDays, Days: map[schedule.DayKey][]schedule.Node{
			schedule.DayMon: {node("06:00", 21)},
		}}
		_, err := NextNode(s, at("07:00"), cal)
		assert.True(t, errors.Is(err, schedule.ErrEmptySchedule), "got %v", err)
		assert.False(t, errors.Is(err, ErrNoFutureNode))
	})
}

func TestUpcoming(t *testing.T) {
	s := allDays(node("06:00", 21), node("22:00", 18))
	got, err := Upcoming(s, at("12:00"), DefaultCalendar(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, at("22:00"), got[0].At)
	assert.Equal(t, at("06:00").AddDate(0, 0, 1), got[1].At)
	assert.Equal(t, at("22:00").AddDate(0, 0, 1), got[2].At)
}

func TestFormatDay(t *testing.T) {
	out := FormatDay("living", allDays(node("06:00", 21), node("22:00", 18)), at("00:00"), at("12:00"), DefaultCalendar())
	assert.Contains(t, out, "Schedule for living on 2024-01-10")
	assert.Contains(t, out, "21.0")
	assert.Contains(t, out, "22:00")
}
