package apply

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/device"
	"github.com/dokzlo13/climated/internal/schedule"
)

// Observer is told about every device call the engine makes.
type Observer interface {
	CallDone(entityID string, cmd device.Command, elapsed time.Duration, err error)
}

// Failure is one device call that did not succeed.
type Failure struct {
	EntityID string
	Command  *device.Command // nil when the device could not be inspected
	Err      error
}

func (f Failure) Error() string {
	if f.Command == nil {
		return fmt.Sprintf("%s: %v", f.EntityID, f.Err)
	}
	return fmt.Sprintf("%s: %s: %v", f.EntityID, f.Command, f.Err)
}

// Result summarises one apply over a set of devices.
type Result struct {
	Calls    int
	Skipped  int // devices already in the desired state
	Failures []Failure
}

// Failed reports whether anything needs a retry.
func (r Result) Failed() bool { return len(r.Failures) > 0 }

// Engine applies nodes to devices.
type Engine struct {
	adapter     device.Adapter
	callTimeout time.Duration
	observer    Observer
}

// NewEngine creates an engine. A zero callTimeout means 10s; observer may be nil.
func NewEngine(adapter device.Adapter, callTimeout time.Duration, observer Observer) *Engine {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Engine{adapter: adapter, callTimeout: callTimeout, observer: observer}
}

// Apply brings every entity to node. sigs holds the last-applied signature per
// entity and is updated in place for each call that succeeds. Entities are
// applied in sorted order; a failure never stops the remaining calls.
func (e *Engine) Apply(ctx context.Context, entities []string, node schedule.Node, sigs map[string]Signature, settings schedule.Settings) Result {
	ordered := append([]string(nil), entities...)
	sort.Strings(ordered)

	var res Result
	for _, id := range ordered {
		e.applyDevice(ctx, id, node, sigs, settings, &res)
	}
	return res
}

func (e *Engine) applyDevice(ctx context.Context, id string, node schedule.Node, sigs map[string]Signature, settings schedule.Settings, res *Result) {
	caps, err := e.capabilities(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("entity", id).Msg("Failed to read device capabilities")
		res.Failures = append(res.Failures, Failure{EntityID: id, Err: err})
		return
	}

	last, known := sigs[id]
	if !known {
		st, err := e.state(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("entity", id).Msg("Failed to read device state")
			res.Failures = append(res.Failures, Failure{EntityID: id, Err: err})
			return
		}
		last = FromState(st)
	}

	desired := Desired(node, last, caps, settings)
	cmds := Plan(desired, last, caps)
	if len(cmds) == 0 {
		res.Skipped++
		sigs[id] = last
		log.Debug().Str("entity", id).Msg("Device already in desired state")
		return
	}

	for _, cmd := range cmds {
		start := time.Now()
		err := e.call(ctx, id, cmd)
		elapsed := time.Since(start)
		res.Calls++
		if e.observer != nil {
			e.observer.CallDone(id, cmd, elapsed, err)
		}
		if err != nil {
			c := cmd
			res.Failures = append(res.Failures, Failure{EntityID: id, Command: &c, Err: err})
			log.Error().Err(err).
				Str("entity", id).
				Str("command", cmd.String()).
				Msg("Device call failed")
			continue
		}
		record(&last, cmd)
		log.Debug().
			Str("entity", id).
			Str("command", cmd.String()).
			Dur("elapsed", elapsed).
			Msg("Device call applied")
	}
	sigs[id] = last
}

func (e *Engine) call(ctx context.Context, id string, cmd device.Command) error {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.adapter.Apply(ctx, id, cmd)
}

func (e *Engine) capabilities(ctx context.Context, id string) (device.Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.adapter.Capabilities(ctx, id)
}

func (e *Engine) state(ctx context.Context, id string) (device.State, error) {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.adapter.State(ctx, id)
}
