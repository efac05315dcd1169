package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/schedule"
)

// Profiles returns copies of all global profiles sorted by name.
func (s *Store) Profiles() []schedule.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schedule.Profile, 0, len(s.profCache))
	for _, name := range sortedKeys(s.profCache) {
		out = append(out, s.profCache[name].Clone())
	}
	return out
}

// GroupProfiles returns the group's active profile name and every profile it may activate.
func (s *Store) GroupProfiles(target string) (string, []schedule.Profile, error) {
	s.mu.RLock()
	name, err := s.resolveLocked(target)
	if err != nil {
		s.mu.RUnlock()
		return "", nil, err
	}
	active := s.groupCache[name].ActiveProfile
	s.mu.RUnlock()

	return active, s.Profiles(), nil
}

// CreateProfile copies the group's effective schedule into a new global profile.
func (s *Store) CreateProfile(target, name string) (schedule.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return schedule.Profile{}, &schedule.ValidationError{Field: "name", Reason: "profile name must not be empty"}
	}

	s.mu.Lock()
	groupName, err := s.resolveLocked(target)
	if err != nil {
		s.mu.Unlock()
		return schedule.Profile{}, err
	}
	if _, ok := s.profCache[name]; ok {
		s.mu.Unlock()
		return schedule.Profile{}, fmt.Errorf("profile %q: %w", name, ErrExists)
	}

	p := schedule.Profile{
		Name:     name,
		Schedule: s.effectiveLocked(s.groupCache[groupName]).Clone(),
		Origin:   groupName,
	}
	if err := s.saveProfileLocked(p); err != nil {
		s.mu.Unlock()
		return schedule.Profile{}, err
	}
	s.mu.Unlock()

	log.Info().Str("profile", name).Str("group", groupName).Msg("Profile created")
	return p.Clone(), nil
}

// DeleteProfile removes a profile that no group has active.
func (s *Store) DeleteProfile(name string) error {
	s.mu.Lock()
	if _, ok := s.profCache[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}
	if users := s.groupsUsingLocked(name, ChangeSchedule); len(users) > 0 {
		s.mu.Unlock()
		return fmt.Errorf("profile %q active on %q: %w", name, users[0].Group, ErrProfileInUse)
	}
	if err := s.profiles.Delete(name); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to delete profile %q: %w", name, err)
	}
	delete(s.profCache, name)
	s.mu.Unlock()

	log.Info().Str("profile", name).Msg("Profile deleted")
	return nil
}

// RenameProfile renames a profile and rewrites references to it.
func (s *Store) RenameProfile(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return &schedule.ValidationError{Field: "name", Reason: "profile name must not be empty"}
	}

	s.mu.Lock()
	p, ok := s.profCache[oldName]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("profile %q: %w", oldName, ErrNotFound)
	}
	if _, taken := s.profCache[newName]; taken {
		s.mu.Unlock()
		return fmt.Errorf("profile %q: %w", newName, ErrExists)
	}

	renamed := p.Clone()
	renamed.Name = newName
	if err := s.profiles.Rename(oldName, newName, encodeProfile(renamed)); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to rename profile %q: %w", oldName, err)
	}
	delete(s.profCache, oldName)
	s.profCache[newName] = renamed

	var users []string
	for _, c := range s.groupsUsingLocked(oldName, ChangeSchedule) {
		g := s.groupCache[c.Group].Clone()
		g.ActiveProfile = newName
		if err := s.saveGroupLocked(g); err != nil {
			s.mu.Unlock()
			return err
		}
		users = append(users, g.Name)
	}
	s.mu.Unlock()

	sort.Strings(users)
	log.Info().Str("profile", newName).Str("old_name", oldName).Strs("groups", users).Msg("Profile renamed")
	return nil
}

// SetActiveProfile selects the profile governing a group. An empty name
// returns the group to its own schedule.
func (s *Store) SetActiveProfile(target, name string) error {
	return s.mutateGroup(target, ChangeSchedule, func(g *schedule.Group) error {
		if name == "" {
			g.ActiveProfile = ""
			return nil
		}
		p, ok := s.profCache[name]
		if !ok {
			return fmt.Errorf("profile %q: %w", name, ErrNotFound)
		}
		if g.Enabled {
			if err := p.Schedule.CheckComplete(); err != nil {
				return err
			}
		}
		g.ActiveProfile = name
		return nil
	})
}
