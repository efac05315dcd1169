package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// HVACOff is the hvac mode that turns a device off.
const HVACOff = "off"

// legacyNoChange is the sentinel older data used instead of omitting a field.
const legacyNoChange = "no_change"

// Node is one step of a day's schedule. Nil fields mean "leave unchanged".
type Node struct {
	Time       TimeOfDay `json:"time"`
	Temp       *float64  `json:"temp,omitempty"`
	HVACMode   *string   `json:"hvac_mode,omitempty"`
	FanMode    *string   `json:"fan_mode,omitempty"`
	SwingMode  *string   `json:"swing_mode,omitempty"`
	PresetMode *string   `json:"preset_mode,omitempty"`
}

type rawNode struct {
	Time       *TimeOfDay      `json:"time"`
	Temp       json.RawMessage `json:"temp"`
	HVACMode   *string         `json:"hvac_mode"`
	FanMode    *string         `json:"fan_mode"`
	SwingMode  *string         `json:"swing_mode"`
	PresetMode *string         `json:"preset_mode"`
}

// UnmarshalJSON decodes a node, mapping legacy "no_change" sentinels to absent fields.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		return invalid("node", "%v", err)
	}
	if raw.Time == nil {
		return invalid("time", "node has no time")
	}

	temp, err := parseTemp(raw.Temp)
	if err != nil {
		return err
	}

	*n = Node{
		Time:       *raw.Time,
		Temp:       temp,
		HVACMode:   optionalMode(raw.HVACMode),
		FanMode:    optionalMode(raw.FanMode),
		SwingMode:  optionalMode(raw.SwingMode),
		PresetMode: optionalMode(raw.PresetMode),
	}
	return nil
}

func parseTemp(raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		// Older records stored numbers as strings
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil, invalid("temp", "temperature must be numeric")
		}
		if s == "" || s == legacyNoChange {
			return nil, nil
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, invalid("temp", "temperature %q is not numeric", s)
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, invalid("temp", "temperature must be finite")
	}
	return &v, nil
}

func optionalMode(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || v == legacyNoChange {
		return nil
	}
	return &v
}

// Key identifies the node's content. Two nodes with equal keys drive devices identically.
func (n Node) Key() string {
	var b strings.Builder
	b.WriteString(n.Time.String())
	if n.Temp != nil {
		fmt.Fprintf(&b, "|t=%g", *n.Temp)
	}
	writeOpt(&b, "h", n.HVACMode)
	writeOpt(&b, "f", n.FanMode)
	writeOpt(&b, "s", n.SwingMode)
	writeOpt(&b, "p", n.PresetMode)
	return b.String()
}

func writeOpt(b *strings.Builder, tag string, v *string) {
	if v != nil {
		b.WriteString("|" + tag + "=" + *v)
	}
}

// String renders the node for logs.
func (n Node) String() string {
	parts := []string{n.Time.String()}
	if n.Temp != nil {
		parts = append(parts, fmt.Sprintf("%.1f°", *n.Temp))
	}
	if n.HVACMode != nil {
		parts = append(parts, "mode="+*n.HVACMode)
	}
	if n.FanMode != nil {
		parts = append(parts, "fan="+*n.FanMode)
	}
	if n.SwingMode != nil {
		parts = append(parts, "swing="+*n.SwingMode)
	}
	if n.PresetMode != nil {
		parts = append(parts, "preset="+*n.PresetMode)
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy.
func (n Node) Clone() Node {
	c := Node{Time: n.Time}
	if n.Temp != nil {
		v := *n.Temp
		c.Temp = &v
	}
	c.HVACMode = cloneStr(n.HVACMode)
	c.FanMode = cloneStr(n.FanMode)
	c.SwingMode = cloneStr(n.SwingMode)
	c.PresetMode = cloneStr(n.PresetMode)
	return c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// SortNodes returns a sorted deep copy of nodes.
func SortNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// NormalizeNodes validates a node list and returns it sorted by time.
// Duplicate times within one list are rejected.
func NormalizeNodes(nodes []Node) ([]Node, error) {
	sorted := SortNodes(nodes)
	for i, n := range sorted {
		if i > 0 && sorted[i-1].Time == n.Time {
			return nil, invalid("time", "duplicate node time %s", n.Time)
		}
		if n.Temp != nil && (math.IsNaN(*n.Temp) || math.IsInf(*n.Temp, 0)) {
			return nil, invalid("temp", "temperature at %s must be finite", n.Time)
		}
	}
	return sorted, nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Str returns a pointer to s.
func Str(s string) *string { return &s }
