// Package clock provides an injectable source of the current time so that
// router, heartbeat, and monitor ticks can be driven deterministically in
// tests rather than racing against wall-clock time.
package clock

import "time"

// Clock returns the current instant. Production code uses Real; tests
// supply a Fixed or a manually-advanced clock.
type Clock interface {
	Now() time.Time
}

// Real is the wall-clock implementation.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed always returns the same instant. Useful for assertions that
// compare a recorded timestamp against an expected literal.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }

// IsoZ renders t as RFC3339 in UTC with a literal "Z" suffix, matching the
// timestamp format written throughout the filesystem substrate (envelopes,
// acks, task states, alerts, delivery log entries).
func IsoZ(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}
