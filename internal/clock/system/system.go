// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock reports the current time in a fixed location, so calendar arithmetic
// such as "yesterday" happens in that zone.
type Clock struct {
	loc *time.Location
}

// New creates a Clock for loc. A nil location means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}
