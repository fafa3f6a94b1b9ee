package domain

import "time"

// Clock is the time source for deadline comparisons. It is injected so that
// ordinary callers can never influence it and tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
