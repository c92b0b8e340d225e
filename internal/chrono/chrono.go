package chrono

import (
	"time"
)

// API is the interface that anything depending on the system clock should use.
type API interface {
	Now() time.Time
}

// StandardImpl is the standard implementation of API using the standard library.
type StandardImpl struct{}

func (StandardImpl) Now() time.Time {
	return time.Now()
}

// Fixed always returns the same instant, it exists so tests can pin timestamps.
type Fixed time.Time

func (f Fixed) Now() time.Time {
	return time.Time(f)
}

// InvocationTime returns the timestamp used for everything written in a single
// invocation: UTC, truncated to whole seconds.
func InvocationTime(c API) time.Time {
	return c.Now().UTC().Truncate(time.Second)
}
