// Package resolver computes which schedule node governs a given instant.
// Every function is pure: the caller supplies the schedule, the time, and the calendar.
package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dokzlo13/climated/internal/schedule"
)

// searchHorizonDays bounds NextNode's forward search.
const searchHorizonDays = 7

// ErrNoFutureNode is returned when no node activates within the search horizon.
var ErrNoFutureNode = errors.New("no future node within search horizon")

// Resolution is the node in effect at an instant.
type Resolution struct {
	Node  schedule.Node
	Day   schedule.DayKey
	Index int // position in the day's sorted list
}

// Identity distinguishes one effective node from another for transition detection.
func (r Resolution) Identity() string {
	return string(r.Day) + "@" + r.Node.Key()
}

// Next is an upcoming node activation.
type Next struct {
	Node schedule.Node   `json:"node"`
	Day  schedule.DayKey `json:"day"`
	At   time.Time       `json:"at"`
}

// DayKeyFor maps a date to the day key its mode reads from.
func DayKeyFor(mode schedule.Mode, date time.Time, cal Calendar) schedule.DayKey {
	switch mode {
	case schedule.ModeWeekdayWeekend:
		if cal.IsWorkday(date) {
			return schedule.DayWeekday
		}
		return schedule.DayWeekend
	case schedule.ModeIndividual:
		return schedule.WeekdayKey(date.Weekday())
	default:
		return schedule.DayAll
	}
}

// ActiveNode returns the node with the greatest time at or before now.
// Before the first node of the day, the last node of the same list is in effect.
func ActiveNode(s schedule.Schedule, now time.Time, cal Calendar) (Resolution, error) {
	day := DayKeyFor(s.Mode, now, cal)
	nodes := s.Nodes(day)
	if len(nodes) == 0 {
		return Resolution{}, fmt.Errorf("day %q: %w", day, schedule.ErrEmptySchedule)
	}

	tod := schedule.Of(now)
	// First index whose time is after now; the active node precedes it.
	i := sort.Search(len(nodes), func(i int) bool { return nodes[i].Time > tod })
	idx := i - 1
	if idx < 0 {
		idx = len(nodes) - 1
	}
	return Resolution{Node: nodes[idx], Day: day, Index: idx}, nil
}

// NextNode returns the first node activating strictly after now, searching
// later days when today has none left.
func NextNode(s schedule.Schedule, now time.Time, cal Calendar) (Next, error) {
	if !hasAnyNode(s) {
		return Next{}, schedule.ErrEmptySchedule
	}

	tod := schedule.Of(now)
	day := DayKeyFor(s.Mode, now, cal)
	for _, n := range s.Nodes(day) {
		if n.Time > tod {
			return Next{Node: n, Day: day, At: n.Time.On(now)}, nil
		}
	}

	for offset := 1; offset <= searchHorizonDays; offset++ {
		date := addDays(now, offset)
		key := DayKeyFor(s.Mode, date, cal)
		nodes := s.Nodes(key)
		if len(nodes) == 0 {
			continue
		}
		return Next{Node: nodes[0], Day: key, At: nodes[0].Time.On(date)}, nil
	}
	return Next{}, ErrNoFutureNode
}

// Upcoming returns the next n activations after now in chronological order.
func Upcoming(s schedule.Schedule, now time.Time, cal Calendar, n int) ([]Next, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []Next
	cursor := now
	for len(out) < n {
		next, err := NextNode(s, cursor, cal)
		if err != nil {
			if len(out) > 0 && errors.Is(err, ErrNoFutureNode) {
				break
			}
			return out, err
		}
		out = append(out, next)
		// Advance past this activation; node times are minute-aligned.
		cursor = next.At.Add(time.Minute - time.Nanosecond)
	}
	return out, nil
}

// hasAnyNode reports whether a day key the mode reads from has nodes.
func hasAnyNode(s schedule.Schedule) bool {
	for _, k := range s.Mode.DayKeys() {
		if len(s.Days[k]) > 0 {
			return true
		}
	}
	return false
}

func addDays(t time.Time, days int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, t.Location())
}

// FormatDay returns a human-readable listing of a group's activations for one day.
func FormatDay(group string, s schedule.Schedule, day, now time.Time, cal Calendar) string {
	key := DayKeyFor(s.Mode, day, cal)
	nodes := s.Nodes(key)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Schedule for %s on %s (%s, timezone: %s)\n",
		group, day.Format("2006-01-02"), key, day.Location().String()))
	sb.WriteString(fmt.Sprintf("%-3s %-8s %-8s %-10s %-10s %-10s %s\n", "", "TIME", "TEMP", "HVAC", "FAN", "SWING", "PRESET"))
	sb.WriteString(strings.Repeat("-", 70) + "\n")

	for _, n := range nodes {
		status := " "
		if n.Time.On(day).Before(now) {
			status = "✓"
		}
		temp := "-"
		if n.Temp != nil {
			temp = fmt.Sprintf("%.1f", *n.Temp)
		}
		sb.WriteString(fmt.Sprintf("%-3s %-8s %-8s %-10s %-10s %-10s %s\n",
			status, n.Time, temp, orDash(n.HVACMode), orDash(n.FanMode), orDash(n.SwingMode), orDash(n.PresetMode)))
	}

	if len(nodes) == 0 {
		sb.WriteString("No nodes for this day\n")
	}

	return sb.String()
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
