package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dokzlo13/climated/internal/schedule"
)

// recordVersion is written on every record; older records are migrated on load.
const recordVersion = 2

// groupRecord is the persisted form of a group. It also accepts every older
// layout: a flat "nodes" list, a missing "enabled" flag, per-group profiles,
// and the "_is_single_entity_group" marker.
type groupRecord struct {
	Version       int                          `json:"v,omitempty"`
	Name          string                       `json:"name,omitempty"`
	Entities      []string                     `json:"entities"`
	Enabled       *bool                        `json:"enabled,omitempty"`
	Ignored       bool                         `json:"ignored,omitempty"`
	ScheduleMode  string                       `json:"schedule_mode,omitempty"`
	Schedules     map[string][]json.RawMessage `json:"schedules,omitempty"`
	ActiveProfile string                       `json:"active_profile,omitempty"`
	SingleEntity  bool                         `json:"single_entity,omitempty"`
	Nodes         []json.RawMessage            `json:"nodes,omitempty"`
	Profiles      map[string]profileRecord     `json:"profiles,omitempty"`
	LegacySingle  bool                         `json:"_is_single_entity_group,omitempty"`
}

// profileRecord is the persisted form of a global profile.
type profileRecord struct {
	Version      int                          `json:"v,omitempty"`
	ScheduleMode string                       `json:"schedule_mode,omitempty"`
	Schedules    map[string][]json.RawMessage `json:"schedules,omitempty"`
	Nodes        []json.RawMessage            `json:"nodes,omitempty"`
	Legacy       bool                         `json:"legacy,omitempty"`
	Origin       string                       `json:"origin,omitempty"`
}

// decodeResult carries what was repaired while converting a record.
type decodeResult struct {
	repairs  []string
	migrated bool
}

func (r *decodeResult) repair(format string, args ...any) {
	r.repairs = append(r.repairs, fmt.Sprintf(format, args...))
}

func decodeSchedule(mode string, days map[string][]json.RawMessage, flat []json.RawMessage, res *decodeResult) schedule.Schedule {
	m, err := schedule.ParseMode(mode)
	if err != nil {
		res.repair("unknown schedule mode %q reset to all_days", mode)
		m = schedule.ModeAllDays
	}
	s := schedule.NewSchedule(m)

	if len(flat) > 0 {
		res.migrated = true
		if _, ok := days[string(schedule.DayAll)]; !ok {
			s.Days[schedule.DayAll] = decodeNodes(string(schedule.DayAll), flat, res)
		}
	}

	for key, raw := range days {
		day, err := schedule.ParseDayKey(key)
		if err != nil {
			res.repair("dropped unknown day key %q", key)
			continue
		}
		s.Days[day] = decodeNodes(key, raw, res)
	}
	return s
}

// decodeNodes decodes a node list, dropping malformed or duplicate nodes.
func decodeNodes(day string, raw []json.RawMessage, res *decodeResult) []schedule.Node {
	nodes := make([]schedule.Node, 0, len(raw))
	seen := make(map[schedule.TimeOfDay]bool, len(raw))
	for _, r := range raw {
		var n schedule.Node
		if err := json.Unmarshal(r, &n); err != nil {
			res.repair("dropped malformed node on %s: %v", day, err)
			continue
		}
		if seen[n.Time] {
			res.repair("dropped duplicate node %s on %s", n.Time, day)
			continue
		}
		seen[n.Time] = true
		nodes = append(nodes, n)
	}
	return schedule.SortNodes(nodes)
}

func (r groupRecord) toGroup(id string) (schedule.Group, decodeResult) {
	var res decodeResult
	if r.Version < recordVersion {
		res.migrated = true
	}

	g := schedule.Group{
		Name:          id,
		Entities:      dedupe(r.Entities),
		Ignored:       r.Ignored,
		ActiveProfile: r.ActiveProfile,
		SingleEntity:  r.SingleEntity || r.LegacySingle,
		Schedule:      decodeSchedule(r.ScheduleMode, r.Schedules, r.Nodes, &res),
	}
	if r.Enabled == nil {
		g.Enabled = true
		res.migrated = true
	} else {
		g.Enabled = *r.Enabled
	}
	if len(g.Entities) != len(r.Entities) {
		res.repair("dropped duplicate entities")
	}
	return g, res
}

func encodeGroup(g schedule.Group) groupRecord {
	enabled := g.Enabled
	return groupRecord{
		Version:       recordVersion,
		Name:          g.Name,
		Entities:      append([]string{}, g.Entities...),
		Enabled:       &enabled,
		Ignored:       g.Ignored,
		ScheduleMode:  string(g.Schedule.Mode),
		Schedules:     encodeDays(g.Schedule),
		ActiveProfile: g.ActiveProfile,
		SingleEntity:  g.SingleEntity,
	}
}

func (r profileRecord) toProfile(name string) (schedule.Profile, decodeResult) {
	var res decodeResult
	if r.Version < recordVersion {
		res.migrated = true
	}
	return schedule.Profile{
		Name:     name,
		Schedule: decodeSchedule(r.ScheduleMode, r.Schedules, r.Nodes, &res),
		Legacy:   r.Legacy,
		Origin:   r.Origin,
	}, res
}

func encodeProfile(p schedule.Profile) profileRecord {
	return profileRecord{
		Version:      recordVersion,
		ScheduleMode: string(p.Schedule.Mode),
		Schedules:    encodeDays(p.Schedule),
		Legacy:       p.Legacy,
		Origin:       p.Origin,
	}
}

func encodeDays(s schedule.Schedule) map[string][]json.RawMessage {
	out := make(map[string][]json.RawMessage, len(s.Days))
	for day, nodes := range s.Days {
		list := make([]json.RawMessage, 0, len(nodes))
		for _, n := range schedule.SortNodes(nodes) {
			b, err := json.Marshal(n)
			if err != nil {
				continue
			}
			list = append(list, b)
		}
		out[string(day)] = list
	}
	return out
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
