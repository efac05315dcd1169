// Package device abstracts the climate devices schedules drive.
package device

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownDevice is returned for entity ids the adapter does not know.
var ErrUnknownDevice = errors.New("unknown device")

// Call names one device operation.
type Call string

const (
	CallTurnOff        Call = "turn_off"
	CallSetHVACMode    Call = "set_hvac_mode"
	CallSetTemperature Call = "set_temperature"
	CallSetFanMode     Call = "set_fan_mode"
	CallSetSwingMode   Call = "set_swing_mode"
	CallSetPresetMode  Call = "set_preset_mode"
)

// Command is one device call. Value carries the mode for mode calls; Temp
// carries the setpoint for CallSetTemperature.
type Command struct {
	Call  Call
	Value string
	Temp  float64
}

func (c Command) String() string {
	switch c.Call {
	case CallSetTemperature:
		return fmt.Sprintf("%s(%.1f)", c.Call, c.Temp)
	case CallTurnOff:
		return string(c.Call)
	default:
		return fmt.Sprintf("%s(%s)", c.Call, c.Value)
	}
}

// Capabilities lists the values a device advertises. An empty list means the
// device does not support that setting.
type Capabilities struct {
	HVACModes   []string `json:"hvac_modes"`
	FanModes    []string `json:"fan_modes"`
	SwingModes  []string `json:"swing_modes"`
	PresetModes []string `json:"preset_modes"`
	TurnOff     bool     `json:"turn_off"`
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// SupportsHVAC reports whether mode is advertised.
func (c Capabilities) SupportsHVAC(mode string) bool { return contains(c.HVACModes, mode) }

// SupportsFan reports whether mode is advertised.
func (c Capabilities) SupportsFan(mode string) bool { return contains(c.FanModes, mode) }

// SupportsSwing reports whether mode is advertised.
func (c Capabilities) SupportsSwing(mode string) bool { return contains(c.SwingModes, mode) }

// SupportsPreset reports whether mode is advertised.
func (c Capabilities) SupportsPreset(mode string) bool { return contains(c.PresetModes, mode) }

// State is a device's reported telemetry.
type State struct {
	HVACMode    string   `json:"hvac_mode"`
	Temperature *float64 `json:"temperature,omitempty"`
	Current     *float64 `json:"current_temperature,omitempty"`
	FanMode     string   `json:"fan_mode,omitempty"`
	SwingMode   string   `json:"swing_mode,omitempty"`
	PresetMode  string   `json:"preset_mode,omitempty"`
}

// Adapter drives devices. Implementations must be safe for concurrent use.
type Adapter interface {
	Apply(ctx context.Context, entityID string, cmd Command) error
	Capabilities(ctx context.Context, entityID string) (Capabilities, error)
	State(ctx context.Context, entityID string) (State, error)
}
