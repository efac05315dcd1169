// Package schedule defines the schedule data model: nodes, day keys, modes,
// groups and profiles, together with input validation.
package schedule

import (
	"encoding/json"
	"strings"
	"time"
)

// DayKey selects which node list of a schedule applies on a given date.
type DayKey string

const (
	DayAll     DayKey = "all_days"
	DayWeekday DayKey = "weekday"
	DayWeekend DayKey = "weekend"
	DayMon     DayKey = "mon"
	DayTue     DayKey = "tue"
	DayWed     DayKey = "wed"
	DayThu     DayKey = "thu"
	DayFri     DayKey = "fri"
	DaySat     DayKey = "sat"
	DaySun     DayKey = "sun"
)

// weekdayKeys is indexed by time.Weekday (Sunday = 0).
var weekdayKeys = [7]DayKey{DaySun, DayMon, DayTue, DayWed, DayThu, DayFri, DaySat}

// WeekdayKey returns the individual day key for a weekday.
func WeekdayKey(d time.Weekday) DayKey {
	return weekdayKeys[d]
}

// ParseWeekday maps a mon..sun key back to its weekday.
func ParseWeekday(s string) (time.Weekday, bool) {
	key := DayKey(strings.ToLower(strings.TrimSpace(s)))
	for i, k := range weekdayKeys {
		if k == key {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Valid reports whether k is a known day key.
func (k DayKey) Valid() bool {
	switch k {
	case DayAll, DayWeekday, DayWeekend, DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun:
		return true
	}
	return false
}

// ParseDayKey validates a day key string.
func ParseDayKey(s string) (DayKey, error) {
	k := DayKey(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", invalid("day", "unknown day key %q", s)
	}
	return k, nil
}

// Mode selects how dates map to day keys.
type Mode string

const (
	ModeAllDays        Mode = "all_days"
	ModeWeekdayWeekend Mode = "5/2"
	ModeIndividual     Mode = "individual"
)

// ParseMode validates a schedule mode. "weekday_weekend" is accepted as an alias of "5/2".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all_days", "":
		return ModeAllDays, nil
	case "5/2", "weekday_weekend":
		return ModeWeekdayWeekend, nil
	case "individual":
		return ModeIndividual, nil
	}
	return "", invalid("schedule_mode", "unknown schedule mode %q", s)
}

// DayKeys lists the day keys a mode reads from.
func (m Mode) DayKeys() []DayKey {
	switch m {
	case ModeWeekdayWeekend:
		return []DayKey{DayWeekday, DayWeekend}
	case ModeIndividual:
		return []DayKey{DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun}
	default:
		return []DayKey{DayAll}
	}
}

// Uses reports whether the mode reads from day key k.
func (m Mode) Uses(k DayKey) bool {
	for _, key := range m.DayKeys() {
		if key == k {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts any spelling ParseMode accepts.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return invalid("schedule_mode", "schedule mode must be a string")
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Schedule is a mode plus the node lists for its day keys.
type Schedule struct {
	Mode Mode              `json:"schedule_mode"`
	Days map[DayKey][]Node `json:"schedules"`
}

// NewSchedule returns an empty schedule in the given mode.
func NewSchedule(mode Mode) Schedule {
	return Schedule{Mode: mode, Days: make(map[DayKey][]Node)}
}

// DefaultNodes is the schedule seeded for new targets.
func DefaultNodes() []Node {
	return []Node{
		{Time: MustTime("00:00"), Temp: Float(18)},
		{Time: MustTime("07:00"), Temp: Float(21)},
		{Time: MustTime("23:00"), Temp: Float(18)},
	}
}

// Nodes returns a sorted copy of the list for day key k.
func (s Schedule) Nodes(k DayKey) []Node {
	return SortNodes(s.Days[k])
}

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	c := Schedule{Mode: s.Mode, Days: make(map[DayKey][]Node, len(s.Days))}
	for k, nodes := range s.Days {
		c.Days[k] = SortNodes(nodes)
	}
	return c
}

// IsEmpty reports whether no day key used by the mode has any node.
func (s Schedule) IsEmpty() bool {
	for _, k := range s.Mode.DayKeys() {
		if len(s.Days[k]) > 0 {
			return false
		}
	}
	return true
}

// CheckComplete returns a ValidationError naming the first day key of the
// mode whose list is empty.
func (s Schedule) CheckComplete() error {
	for _, k := range s.Mode.DayKeys() {
		if len(s.Days[k]) == 0 {
			return invalid("schedules", "day %q has no nodes", k)
		}
	}
	return nil
}

// SeedMissing fills empty lists for every day key of the mode from the best
// available source: the all_days list, weekday/weekend lists, or any other list.
func (s *Schedule) SeedMissing() {
	if s.Days == nil {
		s.Days = make(map[DayKey][]Node)
	}
	for _, k := range s.Mode.DayKeys() {
		if len(s.Days[k]) > 0 {
			continue
		}
		if src := s.seedSource(k); len(src) > 0 {
			s.Days[k] = SortNodes(src)
		}
	}
}

func (s Schedule) seedSource(k DayKey) []Node {
	candidates := []DayKey{DayAll}
	switch k {
	case DaySat, DaySun:
		candidates = append(candidates, DayWeekend, DayWeekday)
	case DayMon, DayTue, DayWed, DayThu, DayFri:
		candidates = append(candidates, DayWeekday, DayWeekend)
	case DayAll:
		candidates = []DayKey{DayWeekday, DayMon, DayWeekend}
	case DayWeekday:
		candidates = append(candidates, DayMon, DayTue, DayWed, DayThu, DayFri, DayWeekend)
	case DayWeekend:
		candidates = append(candidates, DaySat, DaySun, DayWeekday)
	}
	for _, c := range candidates {
		if len(s.Days[c]) > 0 {
			return s.Days[c]
		}
	}
	return nil
}

// SingleEntityPrefix names the wrapper group created for a bare entity.
const SingleEntityPrefix = "__entity_"

// SingleEntityGroupName returns the wrapper group name for an entity.
func SingleEntityGroupName(entityID string) string {
	return SingleEntityPrefix + entityID
}

// Group is a named set of devices sharing one schedule.
type Group struct {
	Name          string   `json:"name"`
	Entities      []string `json:"entities"`
	Enabled       bool     `json:"enabled"`
	Ignored       bool     `json:"ignored"`
	Schedule      Schedule `json:"schedule"`
	ActiveProfile string   `json:"active_profile,omitempty"`
	SingleEntity  bool     `json:"single_entity,omitempty"`
}

// Clone returns a deep copy.
func (g Group) Clone() Group {
	c := g
	c.Entities = append([]string(nil), g.Entities...)
	c.Schedule = g.Schedule.Clone()
	return c
}

// HasEntity reports whether the group contains entityID.
func (g Group) HasEntity(entityID string) bool {
	for _, e := range g.Entities {
		if e == entityID {
			return true
		}
	}
	return false
}

// Active reports whether the coordinator should drive this group.
func (g Group) Active() bool {
	return g.Enabled && !g.Ignored
}

// Profile is a named, reusable schedule shared across groups.
type Profile struct {
	Name     string   `json:"name"`
	Schedule Schedule `json:"schedule"`
	Legacy   bool     `json:"legacy,omitempty"`
	Origin   string   `json:"origin,omitempty"` // group a legacy profile was migrated from
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	c := p
	c.Schedule = p.Schedule.Clone()
	return c
}

// Settings are global tunables applied to every group.
type Settings struct {
	MinTemp float64 `json:"min_temp"`
	MaxTemp float64 `json:"max_temp"`
}

// DefaultSettings returns the factory settings.
func DefaultSettings() Settings {
	return Settings{MinTemp: 5.0, MaxTemp: 30.0}
}

// Validate checks the temperature bounds.
func (s Settings) Validate() error {
	if s.MinTemp >= s.MaxTemp {
		return invalid("settings", "min_temp %.1f must be below max_temp %.1f", s.MinTemp, s.MaxTemp)
	}
	return nil
}

// Clamp bounds v to [MinTemp, MaxTemp].
func (s Settings) Clamp(v float64) float64 {
	if v < s.MinTemp {
		return s.MinTemp
	}
	if v > s.MaxTemp {
		return s.MaxTemp
	}
	return v
}
