// Package system provides a wall clock pinned to the cafeteria's time zone.
package system

import (
	"fmt"
	"time"
)

// DefaultTimeZone is the zone the cafeteria publishes menus in.
const DefaultTimeZone = "Asia/Seoul"

// Clock implements menu.Clock using time.Now.
type Clock struct {
	loc *time.Location
}

// New creates a Clock reporting times in loc. A nil loc means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// NewInZone loads the named IANA zone and returns a Clock for it.
func NewInZone(name string) (*Clock, error) {
	if name == "" {
		name = DefaultTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current time in the clock's zone.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}
