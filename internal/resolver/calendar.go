package resolver

import (
	"fmt"
	"time"

	"github.com/dokzlo13/climated/internal/schedule"
)

// Calendar answers whether a date is a workday. 5/2 schedules use it to pick
// between the weekday and weekend lists.
type Calendar interface {
	IsWorkday(date time.Time) bool
}

// WeekCalendar treats a fixed set of weekdays as workdays, minus listed holidays.
type WeekCalendar struct {
	workdays [7]bool
	holidays map[string]struct{}
}

// DefaultCalendar returns a Monday to Friday calendar without holidays.
func DefaultCalendar() *WeekCalendar {
	c := &WeekCalendar{holidays: map[string]struct{}{}}
	for d := time.Monday; d <= time.Friday; d++ {
		c.workdays[d] = true
	}
	return c
}

// NewWeekCalendar builds a calendar from mon..sun keys and YYYY-MM-DD holidays.
func NewWeekCalendar(workdays, holidays []string) (*WeekCalendar, error) {
	c := &WeekCalendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, w := range workdays {
		d, ok := schedule.ParseWeekday(w)
		if !ok {
			return nil, fmt.Errorf("unknown workday %q", w)
		}
		c.workdays[d] = true
	}
	for _, h := range holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		c.holidays[h] = struct{}{}
	}
	return c, nil
}

// IsWorkday implements Calendar.
func (c *WeekCalendar) IsWorkday(date time.Time) bool {
	if _, ok := c.holidays[date.Format("2006-01-02")]; ok {
		return false
	}
	return c.workdays[date.Weekday()]
}

// CalendarFunc adapts a function to Calendar.
type CalendarFunc func(date time.Time) bool

// IsWorkday implements Calendar.
func (f CalendarFunc) IsWorkday(date time.Time) bool { return f(date) }
