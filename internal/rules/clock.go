package rules

import "time"

// Clock supplies the current instant for relative-date resolution.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Used by tests and previews.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }
