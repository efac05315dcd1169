package store

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/schedule"
)

func validateGroupName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &schedule.ValidationError{Field: "name", Reason: "group name must not be empty"}
	}
	if strings.HasPrefix(name, schedule.SingleEntityPrefix) {
		return &schedule.ValidationError{Field: "name", Reason: fmt.Sprintf("prefix %q is reserved", schedule.SingleEntityPrefix)}
	}
	return nil
}

// CreateGroup adds a group seeded with the default schedule.
// Entities already in a single-entity group are moved into the new group.
func (s *Store) CreateGroup(name string, entities []string) (schedule.Group, error) {
	if err := validateGroupName(name); err != nil {
		return schedule.Group{}, err
	}

	s.mu.Lock()
	if _, ok := s.groupCache[name]; ok {
		s.mu.Unlock()
		return schedule.Group{}, fmt.Errorf("group %q: %w", name, ErrExists)
	}

	sched := schedule.NewSchedule(schedule.ModeAllDays)
	sched.Days[schedule.DayAll] = schedule.DefaultNodes()
	g := schedule.Group{Name: name, Enabled: true, Schedule: sched}

	var changes []Change
	for _, e := range dedupe(entities) {
		c, err := s.claimEntityLocked(e, name)
		if err != nil {
			s.mu.Unlock()
			return schedule.Group{}, err
		}
		changes = append(changes, c...)
		g.Entities = append(g.Entities, e)
	}

	if err := s.saveGroupLocked(g); err != nil {
		s.mu.Unlock()
		return schedule.Group{}, err
	}
	s.mu.Unlock()

	log.Info().Str("group", name).Strs("entities", g.Entities).Msg("Group created")
	s.publish(append(changes, Change{Kind: ChangeSchedule, Group: name})...)
	return g.Clone(), nil
}

// claimEntityLocked frees entity for use by group. An entity held by a
// single-entity wrapper is released by deleting the wrapper; one held by a
// regular group is a conflict.
func (s *Store) claimEntityLocked(entity, group string) ([]Change, error) {
	if !looksLikeEntity(entity) {
		return nil, &schedule.ValidationError{Field: "entity", Reason: fmt.Sprintf("%q is not an entity id", entity)}
	}
	owner, ok := s.entityIndex[entity]
	if !ok || owner == group {
		return nil, nil
	}
	if !s.groupCache[owner].SingleEntity {
		return nil, fmt.Errorf("entity %q belongs to group %q: %w", entity, owner, ErrExists)
	}
	if err := s.groups.Delete(owner); err != nil {
		return nil, fmt.Errorf("failed to delete group %q: %w", owner, err)
	}
	s.dropGroupLocked(owner)
	return []Change{{Kind: ChangeDeleted, Group: owner}}, nil
}

// DeleteGroup removes a group.
func (s *Store) DeleteGroup(name string) error {
	s.mu.Lock()
	if _, ok := s.groupCache[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("group %q: %w", name, ErrNotFound)
	}
	if err := s.groups.Delete(name); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to delete group %q: %w", name, err)
	}
	s.dropGroupLocked(name)
	s.mu.Unlock()

	log.Info().Str("group", name).Msg("Group deleted")
	s.publish(Change{Kind: ChangeDeleted, Group: name})
	return nil
}

// RenameGroup renames a group, keeping its schedule and membership.
func (s *Store) RenameGroup(oldName, newName string) error {
	if err := validateGroupName(newName); err != nil {
		return err
	}

	s.mu.Lock()
	g, ok := s.groupCache[oldName]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("group %q: %w", oldName, ErrNotFound)
	}
	if _, taken := s.groupCache[newName]; taken {
		s.mu.Unlock()
		return fmt.Errorf("group %q: %w", newName, ErrExists)
	}

	renamed := g.Clone()
	renamed.Name = newName
	renamed.SingleEntity = false
	if err := s.groups.Rename(oldName, newName, encodeGroup(renamed)); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to rename group %q: %w", oldName, err)
	}
	s.dropGroupLocked(oldName)
	s.putGroupLocked(renamed)
	s.mu.Unlock()

	log.Info().Str("group", newName).Str("old_name", oldName).Msg("Group renamed")
	s.publish(Change{Kind: ChangeRenamed, Group: newName, OldName: oldName})
	return nil
}

// AddEntity adds an entity to a group.
func (s *Store) AddEntity(group, entity string) error {
	s.mu.Lock()
	g, ok := s.groupCache[group]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("group %q: %w", group, ErrNotFound)
	}
	if g.HasEntity(entity) {
		s.mu.Unlock()
		return nil
	}
	changes, err := s.claimEntityLocked(entity, group)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	g = g.Clone()
	g.Entities = append(g.Entities, entity)
	if err := s.saveGroupLocked(g); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	log.Info().Str("group", group).Str("entity", entity).Msg("Entity added to group")
	s.publish(append(changes, Change{Kind: ChangeMembers, Group: group})...)
	return nil
}

// RemoveEntity removes an entity from a group. Removing the last entity of a
// single-entity group deletes the group.
func (s *Store) RemoveEntity(group, entity string) error {
	s.mu.Lock()
	g, ok := s.groupCache[group]
	if !ok || !g.HasEntity(entity) {
		s.mu.Unlock()
		return fmt.Errorf("entity %q in group %q: %w", entity, group, ErrNotFound)
	}

	g = g.Clone()
	kept := g.Entities[:0]
	for _, e := range g.Entities {
		if e != entity {
			kept = append(kept, e)
		}
	}
	g.Entities = kept

	change := Change{Kind: ChangeMembers, Group: group}
	if g.SingleEntity && len(g.Entities) == 0 {
		if err := s.groups.Delete(group); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to delete group %q: %w", group, err)
		}
		s.dropGroupLocked(group)
		change.Kind = ChangeDeleted
	} else if err := s.saveGroupLocked(g); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	log.Info().Str("group", group).Str("entity", entity).Msg("Entity removed from group")
	s.publish(change)
	return nil
}
