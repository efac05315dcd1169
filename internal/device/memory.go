package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Memory is an in-process adapter. It records every call and can be told to
// fail specific calls. Used for dry runs and tests.
type Memory struct {
	mu       sync.Mutex
	devices  map[string]*memDevice
	calls    []RecordedCall
	failures map[string]map[Call]error
	autoAdd  bool
}

type memDevice struct {
	caps  Capabilities
	state State
}

// RecordedCall is one call observed by Memory.
type RecordedCall struct {
	EntityID string
	Command  Command
	Err      error
}

// DefaultCapabilities is what auto-added devices advertise.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		HVACModes:   []string{"off", "heat", "cool", "auto"},
		FanModes:    []string{"auto", "low", "high"},
		PresetModes: []string{"none", "eco", "comfort"},
		TurnOff:     true,
	}
}

// NewMemory creates a memory adapter. With autoAdd, unknown entity ids are
// created on first use with DefaultCapabilities.
func NewMemory(autoAdd bool) *Memory {
	return &Memory{
		devices:  make(map[string]*memDevice),
		failures: make(map[string]map[Call]error),
		autoAdd:  autoAdd,
	}
}

// AddDevice registers a device with the given capabilities and initial state.
func (m *Memory) AddDevice(entityID string, caps Capabilities, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[entityID] = &memDevice{caps: caps, state: st}
}

// FailCall makes every subsequent cmd call on entityID return err. A nil err clears it.
func (m *Memory) FailCall(entityID string, call Call, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures[entityID] == nil {
		m.failures[entityID] = make(map[Call]error)
	}
	if err == nil {
		delete(m.failures[entityID], call)
		return
	}
	m.failures[entityID][call] = err
}

// Calls returns the calls observed so far.
func (m *Memory) Calls() []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedCall(nil), m.calls...)
}

// ResetCalls forgets observed calls.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Memory) device(entityID string) (*memDevice, error) {
	d, ok := m.devices[entityID]
	if ok {
		return d, nil
	}
	if !m.autoAdd {
		return nil, fmt.Errorf("%s: %w", entityID, ErrUnknownDevice)
	}
	d = &memDevice{caps: DefaultCapabilities(), state: State{HVACMode: "heat"}}
	m.devices[entityID] = d
	return d, nil
}

// Apply implements Adapter.
func (m *Memory) Apply(ctx context.Context, entityID string, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.device(entityID)
	if err != nil {
		return err
	}
	if err := m.failures[entityID][cmd.Call]; err != nil {
		m.calls = append(m.calls, RecordedCall{EntityID: entityID, Command: cmd, Err: err})
		return err
	}

	switch cmd.Call {
	case CallTurnOff:
		d.state.HVACMode = "off"
	case CallSetHVACMode:
		d.state.HVACMode = cmd.Value
	case CallSetTemperature:
		t := cmd.Temp
		d.state.Temperature = &t
	case CallSetFanMode:
		d.state.FanMode = cmd.Value
	case CallSetSwingMode:
		d.state.SwingMode = cmd.Value
	case CallSetPresetMode:
		d.state.PresetMode = cmd.Value
	}
	m.calls = append(m.calls, RecordedCall{EntityID: entityID, Command: cmd})

	log.Debug().Str("entity", entityID).Str("command", cmd.String()).Msg("Memory device call")
	return nil
}

// Capabilities implements Adapter.
func (m *Memory) Capabilities(_ context.Context, entityID string) (Capabilities, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.device(entityID)
	if err != nil {
		return Capabilities{}, err
	}
	return d.caps, nil
}

// State implements Adapter.
func (m *Memory) State(_ context.Context, entityID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.device(entityID)
	if err != nil {
		return State{}, err
	}
	st := d.state
	if st.Temperature != nil {
		t := *st.Temperature
		st.Temperature = &t
	}
	return st, nil
}
