// Package apply turns a resolved schedule node into device calls.
package apply

import (
	"github.com/dokzlo13/climated/internal/device"
	"github.com/dokzlo13/climated/internal/schedule"
)

// Signature is the device state last applied, or last observed. Empty
// strings and a nil Temp mean "unknown".
type Signature struct {
	HVACMode string   `json:"hvac_mode,omitempty"`
	Temp     *float64 `json:"temp,omitempty"`
	Fan      string   `json:"fan_mode,omitempty"`
	Swing    string   `json:"swing_mode,omitempty"`
	Preset   string   `json:"preset_mode,omitempty"`
}

// FromState builds a signature from device telemetry.
func FromState(st device.State) Signature {
	sig := Signature{
		HVACMode: st.HVACMode,
		Fan:      st.FanMode,
		Swing:    st.SwingMode,
		Preset:   st.PresetMode,
	}
	if st.Temperature != nil {
		t := *st.Temperature
		sig.Temp = &t
	}
	return sig
}

// Equal reports whether two signatures describe the same device state.
func (s Signature) Equal(o Signature) bool {
	if s.HVACMode != o.HVACMode || s.Fan != o.Fan || s.Swing != o.Swing || s.Preset != o.Preset {
		return false
	}
	return tempEqual(s.Temp, o.Temp)
}

func tempEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Clone returns a deep copy.
func (s Signature) Clone() Signature {
	c := s
	if s.Temp != nil {
		t := *s.Temp
		c.Temp = &t
	}
	return c
}

// Desired merges node over base. Fields the node leaves unset, or sets to a
// value the device does not advertise, keep their base value. The setpoint is
// clamped to settings and left untouched while the desired mode is off.
func Desired(node schedule.Node, base Signature, caps device.Capabilities, settings schedule.Settings) Signature {
	d := base.Clone()

	if node.HVACMode != nil && supportsMode(caps, *node.HVACMode) {
		d.HVACMode = *node.HVACMode
	}
	if node.Temp != nil && d.HVACMode != schedule.HVACOff {
		t := settings.Clamp(*node.Temp)
		d.Temp = &t
	}
	if node.FanMode != nil && caps.SupportsFan(*node.FanMode) {
		d.Fan = *node.FanMode
	}
	if node.SwingMode != nil && caps.SupportsSwing(*node.SwingMode) {
		d.Swing = *node.SwingMode
	}
	if node.PresetMode != nil && caps.SupportsPreset(*node.PresetMode) {
		d.Preset = *node.PresetMode
	}
	return d
}

func supportsMode(caps device.Capabilities, mode string) bool {
	if mode == schedule.HVACOff && caps.TurnOff {
		return true
	}
	return caps.SupportsHVAC(mode)
}

// Plan lists the calls that move a device from last to desired. The mode goes
// first so a device turned off never receives a setpoint; the setpoint is
// skipped entirely while the mode is off.
func Plan(desired, last Signature, caps device.Capabilities) []device.Command {
	if desired.Equal(last) {
		return nil
	}

	var cmds []device.Command
	if desired.HVACMode != "" && desired.HVACMode != last.HVACMode {
		if desired.HVACMode == schedule.HVACOff && caps.TurnOff {
			cmds = append(cmds, device.Command{Call: device.CallTurnOff})
		} else {
			cmds = append(cmds, device.Command{Call: device.CallSetHVACMode, Value: desired.HVACMode})
		}
	}
	if desired.Temp != nil && !tempEqual(desired.Temp, last.Temp) && desired.HVACMode != schedule.HVACOff {
		cmds = append(cmds, device.Command{Call: device.CallSetTemperature, Temp: *desired.Temp})
	}
	if desired.Fan != "" && desired.Fan != last.Fan {
		cmds = append(cmds, device.Command{Call: device.CallSetFanMode, Value: desired.Fan})
	}
	if desired.Swing != "" && desired.Swing != last.Swing {
		cmds = append(cmds, device.Command{Call: device.CallSetSwingMode, Value: desired.Swing})
	}
	if desired.Preset != "" && desired.Preset != last.Preset {
		cmds = append(cmds, device.Command{Call: device.CallSetPresetMode, Value: desired.Preset})
	}
	return cmds
}

// record updates the field of sig that cmd set.
func record(sig *Signature, cmd device.Command) {
	switch cmd.Call {
	case device.CallTurnOff:
		sig.HVACMode = schedule.HVACOff
	case device.CallSetHVACMode:
		sig.HVACMode = cmd.Value
	case device.CallSetTemperature:
		t := cmd.Temp
		sig.Temp = &t
	case device.CallSetFanMode:
		sig.Fan = cmd.Value
	case device.CallSetSwingMode:
		sig.Swing = cmd.Value
	case device.CallSetPresetMode:
		sig.Preset = cmd.Value
	}
}
