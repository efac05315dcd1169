// Package override manages manual "skip ahead" overrides per group.
//
// A group is either without override or holds exactly one. An override pins
// the group to the next scheduled node until that node's natural activation
// time, at which point it expires and normal resolution resumes.
package override

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/history"
	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/schedule"
)

// Source says where an effective node came from.
type Source string

const (
	SourceSchedule Source = "schedule"
	SourceOverride Source = "override"
)

// Override pins a group to an upcoming node.
type Override struct {
	ID          string          `json:"id"`
	Group       string          `json:"group"`
	TargetNode  schedule.Node   `json:"target_node"`
	TargetDay   schedule.DayKey `json:"target_day"`
	ActivatedAt time.Time       `json:"activated_at"`
	NaturalTime time.Time       `json:"natural_time"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
}

// Resolution returns the override's target as a resolver result.
func (o Override) Resolution() resolver.Resolution {
	return resolver.Resolution{Node: o.TargetNode, Day: o.TargetDay, Index: -1}
}

// Recorder persists override lifecycle. *history.Store implements it.
type Recorder interface {
	Record(e history.Entry) error
	End(id string, at time.Time, reason history.EndReason) error
}

// Effective is the node governing a group at an instant.
type Effective struct {
	Resolution resolver.Resolution
	Source     Source
	Override   *Override // the active override, if Source is SourceOverride
	Expired    *Override // set only on the call that expired an override
}

// Status describes a group's override state.
type Status struct {
	IsActive    bool            `json:"is_active"`
	ActivatedAt *time.Time      `json:"activated_at,omitempty"`
	TargetNode  *schedule.Node  `json:"target_node,omitempty"`
	TargetDay   schedule.DayKey `json:"target_day,omitempty"`
	NaturalTime *time.Time      `json:"natural_time,omitempty"`
}

// Manager holds the active override of every group.
type Manager struct {
	mu       sync.Mutex
	active   map[string]*Override
	calendar resolver.Calendar
	recorder Recorder
}

// NewManager creates a manager. recorder may be nil.
func NewManager(cal resolver.Calendar, recorder Recorder) *Manager {
	return &Manager{
		active:   make(map[string]*Override),
		calendar: cal,
		recorder: recorder,
	}
}

// Advance pins group to the next node after now, replacing any existing override.
func (m *Manager) Advance(group string, s schedule.Schedule, now time.Time) (Override, error) {
	next, err := resolver.NextNode(s, now, m.calendar)
	if err != nil {
		return Override{}, err
	}

	o := &Override{
		ID:          uuid.NewString(),
		Group:       group,
		TargetNode:  next.Node.Clone(),
		TargetDay:   next.Day,
		ActivatedAt: now,
		NaturalTime: next.At,
	}

	m.mu.Lock()
	prev := m.active[group]
	m.active[group] = o
	m.mu.Unlock()

	if prev != nil {
		m.end(prev, now, history.EndReplaced)
	}
	if m.recorder != nil {
		err := m.recorder.Record(history.Entry{
			ID:          o.ID,
			Group:       group,
			ActivatedAt: now,
			NaturalTime: next.At,
			TargetDay:   next.Day,
			TargetNode:  o.TargetNode,
		})
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("Failed to record advance history")
		}
	}

	log.Info().
		Str("group", group).
		Str("target_node", o.TargetNode.String()).
		Str("target_day", string(o.TargetDay)).
		Time("natural_time", o.NaturalTime).
		Msg("Advance activated")
	return *o, nil
}

// Cancel ends the group's override. Returns false when there was none.
func (m *Manager) Cancel(group string, now time.Time) (Override, bool) {
	m.mu.Lock()
	o := m.active[group]
	delete(m.active, group)
	m.mu.Unlock()

	if o == nil {
		return Override{}, false
	}
	t := now
	o.CancelledAt = &t
	m.end(o, now, history.EndCancelled)

	log.Info().Str("group", group).Str("target_node", o.TargetNode.String()).Msg("Advance cancelled")
	return *o, true
}

// Effective returns the node governing group at now. An override whose
// natural time has been reached expires here, exactly once.
func (m *Manager) Effective(group string, s schedule.Schedule, now time.Time) (Effective, error) {
	m.mu.Lock()
	o := m.active[group]
	var expired *Override
	if o != nil && !now.Before(o.NaturalTime) {
		delete(m.active, group)
		expired, o = o, nil
	}
	m.mu.Unlock()

	if o != nil {
		cp := *o
		return Effective{Resolution: cp.Resolution(), Source: SourceOverride, Override: &cp}, nil
	}

	if expired != nil {
		m.end(expired, now, history.EndExpired)
		log.Info().Str("group", group).Str("target_node", expired.TargetNode.String()).Msg("Advance expired")
	}

	res, err := resolver.ActiveNode(s, now, m.calendar)
	if err != nil {
		return Effective{Expired: expired}, err
	}
	return Effective{Resolution: res, Source: SourceSchedule, Expired: expired}, nil
}

// Status reports the group's override state.
func (m *Manager) Status(group string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.active[group]
	if o == nil {
		return Status{IsActive: false}
	}
	node := o.TargetNode.Clone()
	activated, natural := o.ActivatedAt, o.NaturalTime
	return Status{
		IsActive:    true,
		ActivatedAt: &activated,
		TargetNode:  &node,
		TargetDay:   o.TargetDay,
		NaturalTime: &natural,
	}
}

// Forget drops a deleted group's override.
func (m *Manager) Forget(group string, now time.Time) {
	m.mu.Lock()
	o := m.active[group]
	delete(m.active, group)
	m.mu.Unlock()

	if o != nil {
		m.end(o, now, history.EndDeleted)
	}
}

// Rename moves an override to a renamed group.
func (m *Manager) Rename(oldGroup, newGroup string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o := m.active[oldGroup]; o != nil {
		o.Group = newGroup
		m.active[newGroup] = o
		delete(m.active, oldGroup)
	}
}

// Reset drops every override.
func (m *Manager) Reset(now time.Time) {
	m.mu.Lock()
	all := m.active
	m.active = make(map[string]*Override)
	m.mu.Unlock()

	for _, o := range all {
		m.end(o, now, history.EndDeleted)
	}
}

func (m *Manager) end(o *Override, at time.Time, reason history.EndReason) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.End(o.ID, at, reason); err != nil {
		log.Warn().Err(err).Str("group", o.Group).Str("reason", string(reason)).Msg("Failed to close advance history")
	}
}
