package schedule

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"00:00", "00:00", false},
		{"7:05", "07:05", false},
		{"23:59", "23:59", false},
		{"24:00", "23:59", false},
		{"06:30:00", "06:30", false},
		{"24:01", "", true},
		{"12:60", "", true},
		{"noon", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestNodeUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    Node
		wantErr bool
	}{
		{
			name: "full node",
			json: `{"time":"07:00","temp":21.5,"hvac_mode":"heat","fan_mode":"auto"}`,
			want: Node{Time: MustTime("07:00"), Temp: Float(21.5), HVACMode: Str("heat"), FanMode: Str("auto")},
		},
		{
			name: "legacy sentinels become absent",
			json: `{"time":"08:00","temp":"19","hvac_mode":"no_change","swing_mode":""}`,
			want: Node{Time: MustTime("08:00"), Temp: Float(19)},
		},
		{
			name: "temp omitted",
			json: `{"time":"09:00","hvac_mode":"off"}`,
			want: Node{Time: MustTime("09:00"), HVACMode: Str("off")},
		},
		{name: "non numeric temp", json: `{"time":"09:00","temp":"warm"}`, wantErr: true},
		{name: "missing time", json: `{"temp":20}`, wantErr: true},
		{name: "bad time", json: `{"time":"25:00","temp":20}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Node
			err := json.Unmarshal([]byte(tt.json), &n)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation), "want validation error, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestNormalizeNodesRejectsDuplicates(t *testing.T) {
	_, err := NormalizeNodes([]Node{
		{Time: MustTime("07:00"), Temp: Float(20)},
		{Time: MustTime("07:00"), Temp: Float(21)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	sorted, err := NormalizeNodes([]Node{
		{Time: MustTime("22:00"), Temp: Float(18)},
		{Time: MustTime("06:00"), Temp: Float(21)},
	})
	require.NoError(t, err)
	assert.Equal(t, "06:00", sorted[0].Time.String())
	assert.Equal(t, "22:00", sorted[1].Time.String())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("weekday_weekend")
	require.NoError(t, err)
	assert.Equal(t, ModeWeekdayWeekend, m)
	assert.Equal(t, []DayKey{DayWeekday, DayWeekend}, m.DayKeys())

	_, err = ParseMode("fortnightly")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSeedMissing(t *testing.T) {
	s := Schedule{Mode: ModeIndividual, Days: map[DayKey][]Node{
		DayWeekday: {{Time: MustTime("06:00"), Temp: Float(21)}},
		DayWeekend: {{Time: MustTime("09:00"), Temp: Float(20)}},
	}}
	s.SeedMissing()

	require.NoError(t, s.CheckComplete())
	assert.Equal(t, "06:00", s.Days[DayTue][0].Time.String())
	assert.Equal(t, "09:00", s.Days[DaySun][0].Time.String())
}

func TestCheckComplete(t *testing.T) {
	s := Schedule{Mode: ModeWeekdayWeekend, Days: map[DayKey][]Node{
		DayWeekday: DefaultNodes(),
	}}
	err := s.CheckComplete()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weekend")
}

func TestSettingsClamp(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 5.0, s.Clamp(2))
	assert.Equal(t, 30.0, s.Clamp(35))
	assert.Equal(t, 21.0, s.Clamp(21))
	assert.Error(t, Settings{MinTemp: 20, MaxTemp: 10}.Validate())
}
