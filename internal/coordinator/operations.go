package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/apply"
	"github.com/dokzlo13/climated/internal/emitter"
	"github.com/dokzlo13/climated/internal/history"
	"github.com/dokzlo13/climated/internal/override"
	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/schedule"
)

// statusWindow is how far back AdvanceStatus reports history.
const statusWindow = 24 * time.Hour

// AdvanceStatus is the override state of a group plus its recent history.
type AdvanceStatus struct {
	Group string `json:"group"`
	override.Status
	History []history.Entry `json:"history"`
}

// lockActive resolves target to an active group and locks its state.
// The caller must unlock gs.mu.
func (c *Coordinator) lockActive(target string) (*groupState, schedule.Group, schedule.Schedule, error) {
	name, err := c.store.ResolveTarget(target)
	if err != nil {
		return nil, schedule.Group{}, schedule.Schedule{}, err
	}
	gs := c.state(name)
	gs.mu.Lock()

	g, sched, err := c.store.Effective(name)
	if err != nil {
		gs.mu.Unlock()
		return nil, schedule.Group{}, schedule.Schedule{}, err
	}
	if !g.Active() {
		gs.mu.Unlock()
		return nil, schedule.Group{}, schedule.Schedule{}, fmt.Errorf("group %q: %w", name, ErrGroupInactive)
	}
	return gs, g, sched, nil
}

// Advance skips the target's group to its next node, applying and emitting
// immediately. Advancing again replaces the previous override.
func (c *Coordinator) Advance(ctx context.Context, target string) (override.Override, error) {
	gs, g, sched, err := c.lockActive(target)
	if err != nil {
		return override.Override{}, err
	}
	defer gs.mu.Unlock()

	// Settle any pending expiry before the new override replaces it.
	_, _ = c.effectiveLocked(g.Name, sched)

	o, err := c.overrides.Advance(g.Name, sched, c.clock.Now())
	if err != nil {
		return override.Override{}, err
	}
	c.emitter.Override(emitter.OverrideChange{
		Group:       g.Name,
		OverrideID:  o.ID,
		Activated:   true,
		TargetNode:  o.TargetNode,
		TargetDay:   o.TargetDay,
		NaturalTime: o.NaturalTime,
	})

	res := o.Resolution()
	c.applyLocked(ctx, gs, g, res.Node)
	c.emitTransition(g, res, emitter.TriggerManualAdvance)
	gs.identity = res.Identity()
	return o, nil
}

// CancelAdvance ends the target's override and re-resolves at once. Cancelling
// without an active override is a no-op; the returned flag reports whether
// one was cancelled.
func (c *Coordinator) CancelAdvance(ctx context.Context, target string) (bool, error) {
	name, err := c.store.ResolveTarget(target)
	if err != nil {
		return false, err
	}
	gs := c.state(name)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	o, ok := c.overrides.Cancel(name, c.clock.Now())
	if !ok {
		return false, nil
	}
	c.emitOverrideEnd(o, history.EndCancelled)

	g, sched, err := c.store.Effective(name)
	if err != nil {
		return true, err
	}
	if g.Active() {
		c.resolveLocked(ctx, gs, g, sched, emitter.TriggerScheduled)
	}
	return true, nil
}

// AdvanceStatus reports the target's override and the last day of history.
func (c *Coordinator) AdvanceStatus(target string) (AdvanceStatus, error) {
	name, err := c.store.ResolveTarget(target)
	if err != nil {
		return AdvanceStatus{}, err
	}
	st := AdvanceStatus{Group: name, Status: c.overrides.Status(name), History: []history.Entry{}}
	if c.history != nil {
		entries, err := c.history.Since(name, c.clock.Now().Add(-statusWindow))
		if err != nil {
			return AdvanceStatus{}, fmt.Errorf("failed to read advance history: %w", err)
		}
		if entries != nil {
			st.History = entries
		}
	}
	return st, nil
}

// ClearAdvanceHistory deletes the target group's advance history.
func (c *Coordinator) ClearAdvanceHistory(target string) (int64, error) {
	name, err := c.store.ResolveTarget(target)
	if err != nil {
		return 0, err
	}
	if c.history == nil {
		return 0, nil
	}
	n, err := c.history.Clear(name)
	if err != nil {
		return 0, fmt.Errorf("failed to clear advance history: %w", err)
	}
	log.Info().Str("group", name).Int64("deleted", n).Msg("Advance history cleared")
	return n, nil
}

// TestFire emits a test transition without touching devices. A nil node
// fires the currently effective node; an empty day uses the day it resolved under.
func (c *Coordinator) TestFire(target string, node *schedule.Node, day string) (emitter.Transition, error) {
	name, err := c.store.ResolveTarget(target)
	if err != nil {
		return emitter.Transition{}, err
	}
	gs := c.state(name)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	g, sched, err := c.store.Effective(name)
	if err != nil {
		return emitter.Transition{}, err
	}

	var res resolver.Resolution
	if node != nil {
		res.Node = node.Clone()
		res.Day = resolver.DayKeyFor(sched.Mode, c.clock.Now(), c.calendar)
	} else {
		eff, err := c.effectiveLocked(name, sched)
		if err != nil {
			return emitter.Transition{}, err
		}
		res = eff.Resolution
	}
	if day != "" {
		key, err := schedule.ParseDayKey(day)
		if err != nil {
			return emitter.Transition{}, err
		}
		res.Day = key
	}
	return c.emitTransition(g, res, emitter.TriggerTest), nil
}

// Sync forgets last-applied signatures and re-applies the current node to
// one group, or to every active group when target is empty. It returns the
// number of groups synced. Events fire only when the node itself changed.
func (c *Coordinator) Sync(ctx context.Context, target string) (int, error) {
	var names []string
	if target != "" {
		name, err := c.store.ResolveTarget(target)
		if err != nil {
			return 0, err
		}
		names = []string{name}
	} else {
		for _, g := range c.store.Groups() {
			if g.Active() {
				names = append(names, g.Name)
			}
		}
	}

	synced := 0
	for _, name := range names {
		gs := c.state(name)
		gs.mu.Lock()
		g, sched, err := c.store.Effective(name)
		if err == nil && g.Active() {
			gs.sigs = make(map[string]apply.Signature)
			gs.reapply.Store(true)
			c.resolveLocked(ctx, gs, g, sched, emitter.TriggerScheduled)
			synced++
		}
		gs.mu.Unlock()
	}
	log.Info().Int("groups", synced).Msg("Sync completed")
	return synced, nil
}
