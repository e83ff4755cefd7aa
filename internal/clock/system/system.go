// Package system provides the wall clock used to stamp runs and mirrored
// ledger rows.
package system

import "time"

// Precision matches Postgres TIMESTAMPTZ so mirrored rows read back equal.
const Precision = time.Microsecond

// Clock reads the wall clock in UTC.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to Precision, without a
// monotonic reading.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(Precision)
}
