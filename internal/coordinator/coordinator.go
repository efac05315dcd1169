// Package coordinator drives every active group: it resolves the effective
// node on each tick, applies transitions to devices and emits events.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dokzlo13/climated/internal/apply"
	"github.com/dokzlo13/climated/internal/emitter"
	"github.com/dokzlo13/climated/internal/history"
	"github.com/dokzlo13/climated/internal/metrics"
	"github.com/dokzlo13/climated/internal/override"
	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/schedule"
	"github.com/dokzlo13/climated/internal/store"
)

// ErrGroupInactive is returned for operations that need an enabled, not ignored group.
var ErrGroupInactive = errors.New("group is disabled or ignored")

// groupState is the per-group runtime state. mu serialises ticks and
// external operations on the group; busy marks a dispatched pass.
type groupState struct {
	mu       sync.Mutex
	busy     atomic.Bool
	identity string                     // last effective node seen
	sigs     map[string]apply.Signature // last applied per entity
	retry    bool                       // previous apply had failures
	reapply  atomic.Bool                // membership or settings changed
}

// Options configures a Coordinator.
type Options struct {
	TickInterval time.Duration
	Workers      int
	Clock        clock.Clock
	History      *history.Store   // optional
	Metrics      *metrics.Metrics // optional
}

// Coordinator owns last-seen nodes and last-applied signatures.
type Coordinator struct {
	store     *store.Store
	overrides *override.Manager
	engine    *apply.Engine
	emitter   *emitter.Emitter
	calendar  resolver.Calendar
	history   *history.Store
	metrics   *metrics.Metrics
	clock     clock.Clock

	tickInterval time.Duration
	workers      int
	slots        *semaphore.Weighted

	mu      sync.Mutex
	groups  map[string]*groupState
	pending map[string]struct{}
	trigger chan struct{}
}

// New creates a coordinator and subscribes it to store changes.
func New(st *store.Store, ov *override.Manager, eng *apply.Engine, em *emitter.Emitter, cal resolver.Calendar, opts Options) *Coordinator {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	c := &Coordinator{
		store:        st,
		overrides:    ov,
		engine:       eng,
		emitter:      em,
		calendar:     cal,
		history:      opts.History,
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		tickInterval: opts.TickInterval,
		workers:      opts.Workers,
		slots:        semaphore.NewWeighted(int64(opts.Workers)),
		groups:       make(map[string]*groupState),
		pending:      make(map[string]struct{}),
		trigger:      make(chan struct{}, 1),
	}
	st.Subscribe(c.onChange)
	return c
}

func (c *Coordinator) state(group string) *groupState {
	c.mu.Lock()
	defer c.mu.Unlock()

	gs, ok := c.groups[group]
	if !ok {
		gs = &groupState{sigs: make(map[string]apply.Signature)}
		c.groups[group] = gs
	}
	return gs
}

// TriggerGroup asks the run loop to resolve group without waiting for the next tick.
func (c *Coordinator) TriggerGroup(group string) {
	c.mu.Lock()
	c.pending[group] = struct{}{}
	c.mu.Unlock()
	c.kick()
}

// Run resolves all groups once, then on every tick and trigger until ctx is
// done. Passes run in the background; the loop never waits for a slow group.
func (c *Coordinator) Run(ctx context.Context) error {
	log.Info().Dur("tick_interval", c.tickInterval).Int("workers", c.workers).Msg("Coordinator started")

	ticker := c.clock.Ticker(c.tickInterval)
	defer ticker.Stop()

	var running sync.WaitGroup
	track := func(done <-chan struct{}) {
		running.Add(1)
		go func() {
			defer running.Done()
			<-done
		}()
	}

	track(c.startTick(ctx))
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Coordinator stopping")
			running.Wait()
			return nil
		case <-c.trigger:
			track(c.startPending(ctx))
		case <-ticker.C:
			track(c.startTick(ctx))
		}
	}
}

// Tick resolves every active group with bounded parallelism and waits for
// the passes it started.
func (c *Coordinator) Tick(ctx context.Context) {
	<-c.startTick(ctx)
}

func (c *Coordinator) startTick(ctx context.Context) <-chan struct{} {
	start := c.clock.Now()

	// Pending triggers are covered by a full pass.
	c.mu.Lock()
	c.pending = make(map[string]struct{})
	c.mu.Unlock()

	var names []string
	overrides := 0
	for _, g := range c.store.Groups() {
		if !g.Active() {
			c.forgetApplied(g.Name)
			continue
		}
		names = append(names, g.Name)
		if c.overrides.Status(g.Name).IsActive {
			overrides++
		}
	}

	if c.metrics != nil {
		c.metrics.Ticks.Inc()
		c.metrics.ActiveGroups.Set(float64(len(names)))
		c.metrics.ActiveOverride.Set(float64(overrides))
	}

	batch := c.dispatch(ctx, names)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = batch.Wait()
		if c.metrics != nil {
			c.metrics.TickDuration.Observe(c.clock.Since(start).Seconds())
		}
		log.Debug().Int("groups", len(names)).Dur("elapsed", c.clock.Since(start)).Msg("Tick completed")
	}()
	return done
}

// resolvePending resolves triggered groups and waits for them.
func (c *Coordinator) resolvePending(ctx context.Context) {
	<-c.startPending(ctx)
}

func (c *Coordinator) startPending(ctx context.Context) <-chan struct{} {
	c.mu.Lock()
	snapshot := c.pending
	c.pending = make(map[string]struct{})
	c.mu.Unlock()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	log.Debug().Int("pending_count", len(names)).Msg("Resolving triggered groups")

	batch := c.dispatch(ctx, names)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = batch.Wait()
	}()
	return done
}

// dispatch starts one pass per named group and returns at once. A group
// whose previous pass is still running is skipped and left pending; it is
// kicked again when that pass ends. Concurrent passes are bounded by workers.
func (c *Coordinator) dispatch(ctx context.Context, names []string) *errgroup.Group {
	batch := new(errgroup.Group)
	for _, name := range names {
		name := name
		gs := c.state(name)
		if !gs.busy.CompareAndSwap(false, true) {
			c.mu.Lock()
			c.pending[name] = struct{}{}
			c.mu.Unlock()
			log.Debug().Str("group", name).Msg("Previous pass still running, deferring group")
			continue
		}
		batch.Go(func() error {
			defer c.finish(name, gs)
			if err := c.slots.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer c.slots.Release(1)
			c.resolve(ctx, name, gs)
			return nil
		})
	}
	return batch
}

func (c *Coordinator) finish(name string, gs *groupState) {
	gs.busy.Store(false)
	c.mu.Lock()
	_, again := c.pending[name]
	c.mu.Unlock()
	if again {
		c.kick()
	}
}

// resolve runs one resolution pass for a group under its lock.
func (c *Coordinator) resolve(ctx context.Context, name string, gs *groupState) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	g, sched, err := c.store.Effective(name)
	if err != nil {
		return
	}
	if !g.Active() {
		gs.identity = ""
		gs.sigs = make(map[string]apply.Signature)
		gs.retry = false
		return
	}
	c.resolveLocked(ctx, gs, g, sched, emitter.TriggerScheduled)
}

// resolveLocked applies and emits when the effective node changed, and only
// re-applies when the previous apply failed or devices need a refresh.
func (c *Coordinator) resolveLocked(ctx context.Context, gs *groupState, g schedule.Group, sched schedule.Schedule, trigger emitter.Trigger) {
	eff, err := c.effectiveLocked(g.Name, sched)
	if err != nil {
		log.Warn().Err(err).Str("group", g.Name).Msg("Cannot resolve group")
		return
	}

	identity := eff.Resolution.Identity()
	reapply := gs.reapply.Swap(false)
	switch {
	case identity != gs.identity:
		c.applyLocked(ctx, gs, g, eff.Resolution.Node)
		c.emitTransition(g, eff.Resolution, trigger)
		gs.identity = identity
	case gs.retry || reapply:
		log.Debug().Str("group", g.Name).Bool("retry", gs.retry).Msg("Re-applying current node")
		c.applyLocked(ctx, gs, g, eff.Resolution.Node)
	}
}

// effectiveLocked wraps override.Manager.Effective and reports an expiry.
func (c *Coordinator) effectiveLocked(group string, sched schedule.Schedule) (override.Effective, error) {
	eff, err := c.overrides.Effective(group, sched, c.clock.Now())
	if eff.Expired != nil {
		c.emitOverrideEnd(*eff.Expired, history.EndExpired)
	}
	return eff, err
}

func (c *Coordinator) applyLocked(ctx context.Context, gs *groupState, g schedule.Group, node schedule.Node) {
	res := c.engine.Apply(ctx, g.Entities, node, gs.sigs, c.store.Settings())
	gs.retry = res.Failed()

	for _, f := range res.Failures {
		failure := emitter.ApplyFailure{Group: g.Name, EntityID: f.EntityID, Error: f.Err.Error()}
		if f.Command != nil {
			failure.Command = f.Command.String()
		}
		c.emitter.ApplyFailed(failure)
	}
	if res.Failed() {
		log.Warn().
			Str("group", g.Name).
			Int("failures", len(res.Failures)).
			Msg("Apply incomplete, retrying next tick")
	}
}

func (c *Coordinator) emitTransition(g schedule.Group, res resolver.Resolution, trigger emitter.Trigger) emitter.Transition {
	t := c.emitter.Transition(emitter.Transition{
		Group:    g.Name,
		Entities: g.Entities,
		Node:     res.Node,
		Day:      res.Day,
		Trigger:  trigger,
	})
	if c.metrics != nil {
		c.metrics.Transitions.WithLabelValues(string(trigger)).Inc()
	}
	return t
}

func (c *Coordinator) emitOverrideEnd(o override.Override, reason history.EndReason) {
	c.emitter.Override(emitter.OverrideChange{
		Group:       o.Group,
		OverrideID:  o.ID,
		Reason:      string(reason),
		TargetNode:  o.TargetNode,
		TargetDay:   o.TargetDay,
		NaturalTime: o.NaturalTime,
	})
}

// forgetApplied drops runtime state of a group that stopped being driven.
// A group busy with a device call is left for the next tick.
func (c *Coordinator) forgetApplied(group string) {
	c.mu.Lock()
	gs, ok := c.groups[group]
	c.mu.Unlock()
	if !ok || !gs.mu.TryLock() {
		return
	}
	gs.identity = ""
	gs.sigs = make(map[string]apply.Signature)
	gs.retry = false
	gs.mu.Unlock()
}
