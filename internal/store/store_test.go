package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/climated/internal/db"
	"github.com/dokzlo13/climated/internal/schedule"
	"github.com/dokzlo13/climated/internal/state"
)

func openBase(t *testing.T) *state.Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "store.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return state.NewStore(database.DB, nil)
}

func newStore(t *testing.T) (*Store, *state.Store) {
	t.Helper()
	base := openBase(t)
	s := New(base)
	_, err := s.Load()
	require.NoError(t, err)
	return s, base
}

func nodes(pairs ...any) []schedule.Node {
	var out []schedule.Node
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, schedule.Node{
			Time: schedule.MustTime(pairs[i].(string)),
			Temp: schedule.Float(pairs[i+1].(float64)),
		})
	}
	return out
}

func TestSetScheduleOnEntityCreatesWrapperGroup(t *testing.T) {
	s, _ := newStore(t)

	g, err := s.SetSchedule("climate.bedroom", nodes("06:00", 21.0, "22:00", 18.0), "", "")
	require.NoError(t, err)
	assert.Equal(t, "__entity_climate.bedroom", g.Name)
	assert.True(t, g.SingleEntity)
	assert.True(t, g.Enabled)
	assert.Len(t, g.Schedule.Days[schedule.DayAll], 2)

	name, err := s.ResolveTarget("climate.bedroom")
	require.NoError(t, err)
	assert.Equal(t, g.Name, name)
}

func TestSetScheduleRejectsInvalidInput(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateGroup("living", []string{"climate.living"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		nodes []schedule.Node
		day   string
		mode  string
	}{
		{"duplicate time", nodes("06:00", 21.0, "06:00", 19.0), "", ""},
		{"unknown day", nodes("06:00", 21.0), "someday", ""},
		{"unknown mode", nodes("06:00", 21.0), "", "fortnightly"},
		{"day not used by mode", nodes("06:00", 21.0), "mon", ""},
		{"empty list on enabled group", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SetSchedule("living", tt.nodes, tt.day, tt.mode)
			require.Error(t, err)
			assert.True(t, errors.Is(err, schedule.ErrValidation), "got %v", err)
		})
	}

	view, err := s.GetSchedule("living")
	require.NoError(t, err)
	assert.Equal(t, schedule.DefaultNodes(), view.Effective.Days[schedule.DayAll], "rejected writes must not persist")
}

func TestModeSwitchSeedsMissingDays(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateGroup("living", nil)
	require.NoError(t, err)

	g, err := s.SetSchedule("living", nodes("08:00", 20.0), "weekend", "weekday_weekend")
	require.NoError(t, err)
	assert.Equal(t, schedule.ModeWeekdayWeekend, g.Schedule.Mode)
	assert.Equal(t, schedule.DefaultNodes(), g.Schedule.Days[schedule.DayWeekday])
	assert.Equal(t, "08:00", g.Schedule.Days[schedule.DayWeekend][0].Time.String())
}

func TestClearThenEnableIsRejected(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateGroup("living", nil)
	require.NoError(t, err)

	require.NoError(t, s.ClearSchedule("living"))
	g, err := s.Group("living")
	require.NoError(t, err)
	assert.False(t, g.Enabled)

	err = s.Enable("living")
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrValidation))

	g, err = s.Group("living")
	require.NoError(t, err)
	assert.False(t, g.Enabled)
}

func TestProfilesAreIsolated(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateGroup("living", nil)
	require.NoError(t, err)

	_, err = s.CreateProfile("living", "winter")
	require.NoError(t, err)
	_, err = s.CreateProfile("living", "summer")
	require.NoError(t, err)

	require.NoError(t, s.SetActiveProfile("living", "winter"))
	_, err = s.SetSchedule("living", nodes("05:00", 23.0), "", "")
	require.NoError(t, err)

	byName := map[string]schedule.Profile{}
	for _, p := range s.Profiles() {
		byName[p.Name] = p
	}
	assert.Equal(t, "05:00", byName["winter"].Schedule.Days[schedule.DayAll][0].Time.String())
	assert.Equal(t, schedule.DefaultNodes(), byName["summer"].Schedule.Days[schedule.DayAll])

	g, err := s.Group("living")
	require.NoError(t, err)
	assert.Equal(t, schedule.DefaultNodes(), g.Schedule.Days[schedule.DayAll], "own schedule untouched while a profile is active")

	_, eff, err := s.Effective("living")
	require.NoError(t, err)
	assert.Equal(t, "05:00", eff.Days[schedule.DayAll][0].Time.String())
}

func TestSharedProfileStaysCompleteForEnabledUsers(t *testing.T) {
	s, _ := newStore(t)
	for _, name := range []string{"a", "b"} {
		_, err := s.CreateGroup(name, nil)
		require.NoError(t, err)
	}
	_, err := s.CreateProfile("a", "shared")
	require.NoError(t, err)
	require.NoError(t, s.SetActiveProfile("a", "shared"))
	require.NoError(t, s.SetActiveProfile("b", "shared"))
	require.NoError(t, s.Disable("a"))

	_, err = s.SetSchedule("a", nil, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrValidation), "got %v", err)

	g, eff, err := s.Effective("b")
	require.NoError(t, err)
	assert.True(t, g.Enabled)
	assert.NoError(t, eff.CheckComplete())

	// Once no enabled group uses the profile it may be emptied.
	require.NoError(t, s.Disable("b"))
	_, err = s.SetSchedule("a", nil, "", "")
	assert.NoError(t, err)
}

func TestEmptyDayRejectedOnEnabledGroup(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateGroup("living", nil)
	require.NoError(t, err)
	_, err = s.SetSchedule("living", nodes("08:00", 20.0), "weekend", "5/2")
	require.NoError(t, err)

	_, err = s.SetSchedule("living", nil, "weekday", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrValidation), "got %v", err)

	g, err := s.Group("living")
	require.NoError(t, err)
	assert.Equal(t, schedule.DefaultNodes(), g.Schedule.Days[schedule.DayWeekday])

	require.NoError(t, s.Disable("living"))
	g, err = s.SetSchedule("living", nil, "weekday", "")
	require.NoError(t, err)
	assert.False(t, g.Enabled)
}

func TestProfileLifecycle(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateGroup("living", nil)
	require.NoError(t, err)

	_, err = s.CreateProfile("living", "away")
	require.NoError(t, err)
	_, err = s.CreateProfile("living", "away")
	assert.True(t, errors.Is(err, ErrExists))

	require.NoError(t, s.SetActiveProfile("living", "away"))
	assert.True(t, errors.Is(s.DeleteProfile("away"), ErrProfileInUse))

	require.NoError(t, s.RenameProfile("away", "vacation"))
	active, _, err := s.GroupProfiles("living")
	require.NoError(t, err)
	assert.Equal(t, "vacation", active)

	require.NoError(t, s.SetActiveProfile("living", ""))
	require.NoError(t, s.DeleteProfile("vacation"))
	assert.Empty(t, s.Profiles())
	assert.True(t, errors.Is(s.SetActiveProfile("living", "missing"), ErrNotFound))
}

func TestGroupMembership(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.SetSchedule("climate.office", nodes("07:00", 21.0), "", "")
	require.NoError(t, err)

	_, err = s.CreateGroup("upstairs", []string{"climate.office", "climate.hall"})
	require.NoError(t, err)

	_, err = s.Group("__entity_climate.office")
	assert.True(t, errors.Is(err, ErrNotFound), "wrapper group released on claim")

	name, err := s.ResolveTarget("climate.office")
	require.NoError(t, err)
	assert.Equal(t, "upstairs", name)

	_, err = s.CreateGroup("downstairs", []string{"climate.hall"})
	assert.True(t, errors.Is(err, ErrExists))

	require.NoError(t, s.RemoveEntity("upstairs", "climate.hall"))
	require.NoError(t, s.AddEntity("upstairs", "climate.kitchen"))

	require.NoError(t, s.RenameGroup("upstairs", "first_floor"))
	name, err = s.ResolveTarget("climate.kitchen")
	require.NoError(t, err)
	assert.Equal(t, "first_floor", name)

	require.NoError(t, s.DeleteGroup("first_floor"))
	_, err = s.ResolveTarget("climate.kitchen")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestChangesArePublished(t *testing.T) {
	s, _ := newStore(t)
	var got []Change
	s.Subscribe(func(c Change) { got = append(got, c) })

	_, err := s.CreateGroup("living", nil)
	require.NoError(t, err)
	require.NoError(t, s.Disable("living"))

	require.Len(t, got, 2)
	assert.Equal(t, Change{Kind: ChangeSchedule, Group: "living"}, got[0])
	assert.Equal(t, Change{Kind: ChangeEnabled, Group: "living"}, got[1])
}

func TestReloadRoundTrip(t *testing.T) {
	base := openBase(t)
	s := New(base)
	_, err := s.Load()
	require.NoError(t, err)

	_, err = s.CreateGroup("living", []string{"climate.living"})
	require.NoError(t, err)
	_, err = s.SetSchedule("living", []schedule.Node{
		{Time: schedule.MustTime("06:30"), Temp: schedule.Float(21), HVACMode: schedule.Str("heat")},
	}, "", "")
	require.NoError(t, err)
	require.NoError(t, s.SaveSettings(schedule.Settings{MinTemp: 10, MaxTemp: 25}))

	reloaded := New(base)
	report, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups)
	assert.Empty(t, report.Migrated)

	g, err := reloaded.Group("living")
	require.NoError(t, err)
	assert.Equal(t, "heat", *g.Schedule.Days[schedule.DayAll][0].HVACMode)
	assert.Equal(t, 25.0, reloaded.Settings().MaxTemp)
}

func TestLoadMigratesLegacyRecords(t *testing.T) {
	base := openBase(t)
	require.NoError(t, base.Set(kindGroup, "bedroom", []byte(`{
		"entities": ["climate.bedroom", "climate.bedroom"],
		"nodes": [{"time":"07:00","temp":21,"hvac_mode":"no_change"},{"time":"bogus","temp":1}],
		"profiles": {"Default": {"schedule_mode":"all_days","schedules":{"all_days":[{"time":"06:00","temp":"20"}]}}},
		"active_profile": "Default"
	}`)))
	require.NoError(t, base.Set(kindGroup, "broken", []byte(`{not json`)))

	s := New(base)
	report, err := s.Load()
	require.NoError(t, err)

	assert.Contains(t, report.Migrated, "group/bedroom")
	assert.Contains(t, report.Repaired, "group/bedroom")
	assert.Equal(t, []string{"group/broken"}, report.Quarantined)

	g, err := s.Group("bedroom")
	require.NoError(t, err)
	assert.True(t, g.Enabled, "missing enabled flag defaults to true")
	assert.Equal(t, []string{"climate.bedroom"}, g.Entities)
	require.Len(t, g.Schedule.Days[schedule.DayAll], 1)
	assert.Nil(t, g.Schedule.Days[schedule.DayAll][0].HVACMode)
	assert.Empty(t, g.ActiveProfile)

	profiles := s.Profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, "bedroom:Default", profiles[0].Name)
	assert.True(t, profiles[0].Legacy)
	assert.Equal(t, 20.0, *profiles[0].Schedule.Days[schedule.DayAll][0].Temp)

	payload, _, err := base.Get(kindQuarantine, "group/broken")
	require.NoError(t, err)
	assert.NotNil(t, payload)
}

func TestImportLegacyDocument(t *testing.T) {
	s, _ := newStore(t)
	report, err := s.ImportLegacy([]byte(`{
		"entities": {
			"climate.attic": {"nodes": [{"time":"00:00","temp":16}], "enabled": false},
			"climate.den": {"nodes": [{"time":"00:00","temp":19}]}
		},
		"groups": {
			"downstairs": {"entities": ["climate.den"], "enabled": true,
				"schedule_mode": "5/2",
				"schedules": {"weekday": [{"time":"06:00","temp":21}]}}
		},
		"settings": {"min_temp": 7, "max_temp": 28}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Groups)

	attic, err := s.Group("__entity_climate.attic")
	require.NoError(t, err)
	assert.False(t, attic.Enabled)
	assert.True(t, attic.SingleEntity)

	down, err := s.Group("downstairs")
	require.NoError(t, err)
	assert.True(t, down.Enabled)
	assert.Len(t, down.Schedule.Days[schedule.DayWeekend], 1, "missing weekend list seeded on load")

	assert.Equal(t, 7.0, s.Settings().MinTemp)
}

func TestReset(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateGroup("living", nil)
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	assert.Empty(t, s.Groups())
	assert.Equal(t, schedule.DefaultSettings(), s.Settings())
}
