package clock

import "time"

// Clock abstracts wall-clock reads so workers and the daily schedule can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
