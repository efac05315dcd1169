// Package emitter publishes schedule transitions and their side records.
package emitter

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/eventbus"
	"github.com/dokzlo13/climated/internal/ledger"
	"github.com/dokzlo13/climated/internal/schedule"
)

// Trigger says what caused a transition.
type Trigger string

const (
	TriggerScheduled     Trigger = "scheduled"
	TriggerManualAdvance Trigger = "manual_advance"
	TriggerTest          Trigger = "test"
)

// Transition is the payload fired once per effective-node change.
type Transition struct {
	ID       string          `json:"event_id"`
	Group    string          `json:"group"`
	Entities []string        `json:"entities"`
	Node     schedule.Node   `json:"node"`
	Day      schedule.DayKey `json:"day"`
	Trigger  Trigger         `json:"trigger_type"`
	At       time.Time       `json:"timestamp"`
}

// ApplyFailure reports a device call that will be retried.
type ApplyFailure struct {
	Group    string    `json:"group"`
	EntityID string    `json:"entity_id"`
	Command  string    `json:"command,omitempty"`
	Error    string    `json:"error"`
	At       time.Time `json:"timestamp"`
}

// OverrideChange reports an override starting or ending.
type OverrideChange struct {
	Group       string          `json:"group"`
	OverrideID  string          `json:"override_id"`
	Activated   bool            `json:"activated"`
	Reason      string          `json:"reason,omitempty"`
	TargetNode  schedule.Node   `json:"target_node"`
	TargetDay   schedule.DayKey `json:"target_day"`
	NaturalTime time.Time       `json:"natural_time"`
	At          time.Time       `json:"timestamp"`
}

// Emitter stamps events and publishes them on the bus.
type Emitter struct {
	bus   *eventbus.Bus
	clock clock.Clock
}

// New creates an emitter. A nil clock means the wall clock.
func New(bus *eventbus.Bus, clk clock.Clock) *Emitter {
	if clk == nil {
		clk = clock.New()
	}
	return &Emitter{bus: bus, clock: clk}
}

// Transition publishes t, filling in its id and timestamp, and returns it.
func (e *Emitter) Transition(t Transition) Transition {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.At.IsZero() {
		t.At = e.clock.Now()
	}
	t.Entities = append([]string(nil), t.Entities...)

	log.Info().
		Str("group", t.Group).
		Str("trigger", string(t.Trigger)).
		Str("day", string(t.Day)).
		Str("node", t.Node.String()).
		Str("event_id", t.ID).
		Msg("Schedule transition")

	e.bus.Publish(eventbus.Event{Type: eventbus.EventTypeTransition, Payload: &t})
	return t
}

// ApplyFailed publishes a device failure.
func (e *Emitter) ApplyFailed(f ApplyFailure) {
	if f.At.IsZero() {
		f.At = e.clock.Now()
	}
	e.bus.Publish(eventbus.Event{Type: eventbus.EventTypeApplyFailed, Payload: &f})
}

// Override publishes an override activation or end.
func (e *Emitter) Override(c OverrideChange) {
	if c.At.IsZero() {
		c.At = e.clock.Now()
	}
	e.bus.Publish(eventbus.Event{Type: eventbus.EventTypeOverride, Payload: &c})
}

// RecordToLedger subscribes a recorder that appends every event to l.
func RecordToLedger(bus *eventbus.Bus, l *ledger.Ledger) {
	bus.Subscribe(eventbus.EventTypeTransition, func(ev eventbus.Event) {
		t, ok := ev.Payload.(*Transition)
		if !ok {
			return
		}
		payload := map[string]any{
			"entities":     t.Entities,
			"node":         t.Node,
			"day":          t.Day,
			"trigger_type": t.Trigger,
		}
		if err := l.Append(ledger.EventTransition, t.ID, t.Group, string(t.Trigger), payload); err != nil {
			log.Error().Err(err).Str("group", t.Group).Msg("Failed to record transition")
		}
	})

	bus.Subscribe(eventbus.EventTypeApplyFailed, func(ev eventbus.Event) {
		f, ok := ev.Payload.(*ApplyFailure)
		if !ok {
			return
		}
		payload := map[string]any{
			"entity_id": f.EntityID,
			"command":   f.Command,
			"error":     f.Error,
		}
		if err := l.Append(ledger.EventApplyFailed, "", f.Group, "apply", payload); err != nil {
			log.Error().Err(err).Str("group", f.Group).Msg("Failed to record apply failure")
		}
	})

	bus.Subscribe(eventbus.EventTypeOverride, func(ev eventbus.Event) {
		c, ok := ev.Payload.(*OverrideChange)
		if !ok {
			return
		}
		eventType := ledger.EventOverrideEnded
		if c.Activated {
			eventType = ledger.EventOverrideActivated
		}
		payload := map[string]any{
			"override_id":  c.OverrideID,
			"reason":       c.Reason,
			"target_node":  c.TargetNode,
			"target_day":   c.TargetDay,
			"natural_time": c.NaturalTime,
		}
		if err := l.Append(eventType, c.OverrideID, c.Group, "override", payload); err != nil {
			log.Error().Err(err).Str("group", c.Group).Msg("Failed to record override change")
		}
	})
}
