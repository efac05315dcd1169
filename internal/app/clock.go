package app

import (
	"time"

	"github.com/benbjohnson/clock"
)

// zonedClock reports Now in the configured timezone so schedules resolve
// against local wall-clock time regardless of the host zone.
type zonedClock struct {
	clock.Clock
	loc *time.Location
}

func newZonedClock(base clock.Clock, loc *time.Location) *zonedClock {
	return &zonedClock{Clock: base, loc: loc}
}

func (c *zonedClock) Now() time.Time {
	return c.Clock.Now().In(c.loc)
}
