// Package store is the single owner of groups, profiles and settings.
// Every mutation is validated, persisted, and then published to subscribers.
package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/schedule"
	"github.com/dokzlo13/climated/internal/state"
)

const (
	kindGroup      = "group"
	kindProfile    = "profile"
	kindSettings   = "settings"
	kindQuarantine = "quarantine"

	settingsID = "global"
)

// ChangeKind describes what changed on a group.
type ChangeKind string

const (
	ChangeSchedule ChangeKind = "schedule"
	ChangeEnabled  ChangeKind = "enabled"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRenamed  ChangeKind = "renamed"
	ChangeMembers  ChangeKind = "members"
	ChangeSettings ChangeKind = "settings"
	ChangeReset    ChangeKind = "reset"
)

// Change is published after a successful mutation.
type Change struct {
	Kind    ChangeKind
	Group   string // empty for global changes
	OldName string // set for renames
}

// Store holds the in-memory view of all schedules, backed by the state store.
type Store struct {
	base     *state.Store
	groups   *state.TypedStore[groupRecord]
	profiles *state.TypedStore[profileRecord]
	settings *state.TypedStore[schedule.Settings]

	mu          sync.RWMutex
	groupCache  map[string]schedule.Group
	profCache   map[string]schedule.Profile
	settingsVal schedule.Settings
	entityIndex map[string]string // entity id -> group name

	listenersMu sync.RWMutex
	listeners   []func(Change)
}

// New creates a Store. Call Load before use.
func New(base *state.Store) *Store {
	return &Store{
		base:        base,
		groups:      state.NewTypedStore[groupRecord](base, kindGroup),
		profiles:    state.NewTypedStore[profileRecord](base, kindProfile),
		settings:    state.NewTypedStore[schedule.Settings](base, kindSettings),
		groupCache:  make(map[string]schedule.Group),
		profCache:   make(map[string]schedule.Profile),
		settingsVal: schedule.DefaultSettings(),
		entityIndex: make(map[string]string),
	}
}

// Subscribe registers fn to be called after every successful mutation.
func (s *Store) Subscribe(fn func(Change)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) publish(changes ...Change) {
	s.listenersMu.RLock()
	listeners := append([]func(Change){}, s.listeners...)
	s.listenersMu.RUnlock()

	for _, c := range changes {
		for _, fn := range listeners {
			fn(c)
		}
	}
}

// Groups returns copies of all groups sorted by name.
func (s *Store) Groups() []schedule.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schedule.Group, 0, len(s.groupCache))
	for _, name := range sortedKeys(s.groupCache) {
		out = append(out, s.groupCache[name].Clone())
	}
	return out
}

// Group returns a copy of the named group.
func (s *Store) Group(name string) (schedule.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groupCache[name]
	if !ok {
		return schedule.Group{}, fmt.Errorf("group %q: %w", name, ErrNotFound)
	}
	return g.Clone(), nil
}

// ResolveTarget maps a group name or an entity id to a group name.
func (s *Store) ResolveTarget(target string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(target)
}

func (s *Store) resolveLocked(target string) (string, error) {
	if _, ok := s.groupCache[target]; ok {
		return target, nil
	}
	if g, ok := s.entityIndex[target]; ok {
		return g, nil
	}
	return "", fmt.Errorf("target %q: %w", target, ErrNotFound)
}

// resolveOrCreateLocked resolves target, wrapping an unknown entity id in a
// new single-entity group.
func (s *Store) resolveOrCreateLocked(target string) (schedule.Group, bool, error) {
	if name, err := s.resolveLocked(target); err == nil {
		return s.groupCache[name].Clone(), false, nil
	}
	if !looksLikeEntity(target) {
		return schedule.Group{}, false, fmt.Errorf("target %q: %w", target, ErrNotFound)
	}
	sched := schedule.NewSchedule(schedule.ModeAllDays)
	sched.Days[schedule.DayAll] = schedule.DefaultNodes()
	return schedule.Group{
		Name:         schedule.SingleEntityGroupName(target),
		Entities:     []string{target},
		Enabled:      true,
		Schedule:     sched,
		SingleEntity: true,
	}, true, nil
}

// looksLikeEntity reports whether s has the "domain.object_id" shape of a device id.
func looksLikeEntity(s string) bool {
	i := strings.IndexByte(s, '.')
	return i > 0 && i < len(s)-1
}

// Effective returns the schedule currently governing a group: its active
// profile's schedule when one is set, otherwise its own.
func (s *Store) Effective(group string) (schedule.Group, schedule.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groupCache[group]
	if !ok {
		return schedule.Group{}, schedule.Schedule{}, fmt.Errorf("group %q: %w", group, ErrNotFound)
	}
	return g.Clone(), s.effectiveLocked(g).Clone(), nil
}

func (s *Store) effectiveLocked(g schedule.Group) schedule.Schedule {
	if g.ActiveProfile != "" {
		if p, ok := s.profCache[g.ActiveProfile]; ok {
			return p.Schedule
		}
	}
	return g.Schedule
}

// ScheduleView is what get_schedule reports for a target.
type ScheduleView struct {
	Group     schedule.Group
	Effective schedule.Schedule
}

// GetSchedule returns the group and effective schedule for a target.
func (s *Store) GetSchedule(target string) (ScheduleView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, err := s.resolveLocked(target)
	if err != nil {
		return ScheduleView{}, err
	}
	g := s.groupCache[name]
	return ScheduleView{Group: g.Clone(), Effective: s.effectiveLocked(g).Clone()}, nil
}

// SetSchedule replaces the node list for one day key of the target's
// effective schedule, optionally switching its mode. An empty day defaults
// to all_days, or to the mode's only key.
func (s *Store) SetSchedule(target string, nodes []schedule.Node, day string, mode string) (schedule.Group, error) {
	normalized, err := schedule.NormalizeNodes(nodes)
	if err != nil {
		return schedule.Group{}, err
	}

	s.mu.Lock()
	g, created, err := s.resolveOrCreateLocked(target)
	if err != nil {
		s.mu.Unlock()
		return schedule.Group{}, err
	}

	// Writes go to the active profile when one governs the group.
	var prof *schedule.Profile
	sched := g.Schedule.Clone()
	if g.ActiveProfile != "" {
		if p, ok := s.profCache[g.ActiveProfile]; ok {
			cp := p.Clone()
			prof = &cp
			sched = cp.Schedule
		}
	}

	if mode != "" {
		m, err := schedule.ParseMode(mode)
		if err != nil {
			s.mu.Unlock()
			return schedule.Group{}, err
		}
		sched.Mode = m
	}

	key := schedule.DayAll
	if day != "" {
		key, err = schedule.ParseDayKey(day)
		if err != nil {
			s.mu.Unlock()
			return schedule.Group{}, err
		}
	} else if keys := sched.Mode.DayKeys(); len(keys) == 1 {
		key = keys[0]
	}
	if !sched.Mode.Uses(key) {
		s.mu.Unlock()
		return schedule.Group{}, &schedule.ValidationError{
			Field:  "day",
			Reason: fmt.Sprintf("day %q is not used by schedule mode %q", key, sched.Mode),
		}
	}

	// A shared profile must stay complete for every enabled group using it.
	enforce := g.Enabled || (prof != nil && s.profileDrivesLocked(prof.Name))
	if enforce && len(normalized) == 0 {
		s.mu.Unlock()
		return schedule.Group{}, &schedule.ValidationError{
			Field:  "nodes",
			Reason: fmt.Sprintf("day %q cannot be emptied while an enabled group uses it", key),
		}
	}

	sched.Days[key] = normalized
	sched.SeedMissing()
	if enforce {
		if err := sched.CheckComplete(); err != nil {
			s.mu.Unlock()
			return schedule.Group{}, err
		}
	}

	var changes []Change
	if prof != nil {
		prof.Schedule = sched
		if err := s.saveProfileLocked(*prof); err != nil {
			s.mu.Unlock()
			return schedule.Group{}, err
		}
		changes = s.groupsUsingLocked(prof.Name, ChangeSchedule)
	} else {
		g.Schedule = sched
		if err := s.saveGroupLocked(g); err != nil {
			s.mu.Unlock()
			return schedule.Group{}, err
		}
		changes = []Change{{Kind: ChangeSchedule, Group: g.Name}}
	}
	result := s.groupCache[g.Name].Clone()
	s.mu.Unlock()

	if created {
		log.Info().Str("group", g.Name).Str("entity", g.Entities[0]).Msg("Created single-entity group")
	}
	log.Info().
		Str("group", g.Name).
		Str("day", string(key)).
		Str("mode", string(sched.Mode)).
		Int("nodes", len(normalized)).
		Msg("Schedule updated")

	s.publish(changes...)
	return result, nil
}

// ClearSchedule empties every list of the group's own schedule, drops its
// active profile, and disables it.
func (s *Store) ClearSchedule(target string) error {
	return s.mutateGroup(target, ChangeSchedule, func(g *schedule.Group) error {
		g.Schedule = schedule.NewSchedule(g.Schedule.Mode)
		g.ActiveProfile = ""
		g.Enabled = false
		return nil
	})
}

// Enable turns scheduling on. Rejected when any day of the effective schedule is empty.
func (s *Store) Enable(target string) error {
	return s.mutateGroup(target, ChangeEnabled, func(g *schedule.Group) error {
		if err := s.effectiveLocked(*g).CheckComplete(); err != nil {
			return err
		}
		g.Enabled = true
		return nil
	})
}

// Disable turns scheduling off.
func (s *Store) Disable(target string) error {
	return s.mutateGroup(target, ChangeEnabled, func(g *schedule.Group) error {
		g.Enabled = false
		return nil
	})
}

// SetIgnored excludes or re-includes a group from scheduling without touching its schedule.
func (s *Store) SetIgnored(target string, ignored bool) error {
	return s.mutateGroup(target, ChangeEnabled, func(g *schedule.Group) error {
		g.Ignored = ignored
		return nil
	})
}

func (s *Store) mutateGroup(target string, kind ChangeKind, fn func(g *schedule.Group) error) error {
	s.mu.Lock()
	name, err := s.resolveLocked(target)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	g := s.groupCache[name].Clone()
	if err := fn(&g); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.saveGroupLocked(g); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	log.Info().Str("group", name).Str("change", string(kind)).
		Bool("enabled", g.Enabled).Bool("ignored", g.Ignored).Msg("Group updated")
	s.publish(Change{Kind: kind, Group: name})
	return nil
}

// Settings returns the global settings.
func (s *Store) Settings() schedule.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settingsVal
}

// SaveSettings validates and persists global settings.
func (s *Store) SaveSettings(settings schedule.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.settings.Set(settingsID, settings); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to save settings: %w", err)
	}
	s.settingsVal = settings
	s.mu.Unlock()

	log.Info().Float64("min_temp", settings.MinTemp).Float64("max_temp", settings.MaxTemp).Msg("Settings updated")
	s.publish(Change{Kind: ChangeSettings})
	return nil
}

// Reset removes every group, profile and setting.
func (s *Store) Reset() error {
	s.mu.Lock()
	for _, kind := range []string{kindGroup, kindProfile, kindSettings, kindQuarantine} {
		if err := s.base.Clear(kind); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to clear %s: %w", kind, err)
		}
	}
	s.groupCache = make(map[string]schedule.Group)
	s.profCache = make(map[string]schedule.Profile)
	s.entityIndex = make(map[string]string)
	s.settingsVal = schedule.DefaultSettings()
	s.mu.Unlock()

	log.Warn().Msg("Schedule store reset")
	s.publish(Change{Kind: ChangeReset})
	return nil
}

// saveGroupLocked persists g and refreshes the cache and entity index.
func (s *Store) saveGroupLocked(g schedule.Group) error {
	if err := s.groups.Set(g.Name, encodeGroup(g)); err != nil {
		return fmt.Errorf("failed to save group %q: %w", g.Name, err)
	}
	s.putGroupLocked(g)
	return nil
}

func (s *Store) putGroupLocked(g schedule.Group) {
	if old, ok := s.groupCache[g.Name]; ok {
		for _, e := range old.Entities {
			if s.entityIndex[e] == g.Name {
				delete(s.entityIndex, e)
			}
		}
	}
	s.groupCache[g.Name] = g
	for _, e := range g.Entities {
		s.entityIndex[e] = g.Name
	}
}

func (s *Store) dropGroupLocked(name string) {
	if old, ok := s.groupCache[name]; ok {
		for _, e := range old.Entities {
			if s.entityIndex[e] == name {
				delete(s.entityIndex, e)
			}
		}
	}
	delete(s.groupCache, name)
}

func (s *Store) saveProfileLocked(p schedule.Profile) error {
	if err := s.profiles.Set(p.Name, encodeProfile(p)); err != nil {
		return fmt.Errorf("failed to save profile %q: %w", p.Name, err)
	}
	s.profCache[p.Name] = p
	return nil
}

// profileDrivesLocked reports whether an enabled group uses profile.
func (s *Store) profileDrivesLocked(profile string) bool {
	for _, g := range s.groupCache {
		if g.ActiveProfile == profile && g.Enabled {
			return true
		}
	}
	return false
}

func (s *Store) groupsUsingLocked(profile string, kind ChangeKind) []Change {
	var changes []Change
	for _, name := range sortedKeys(s.groupCache) {
		if s.groupCache[name].ActiveProfile == profile {
			changes = append(changes, Change{Kind: kind, Group: name})
		}
	}
	return changes
}
