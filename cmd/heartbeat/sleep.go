package main

import (
	"context"
	"time"
)

// sleepInterval waits seconds (or returns immediately false if ctx is
// already done), reporting whether the caller should keep looping.
func sleepInterval(ctx context.Context, seconds float64) bool {
	if seconds <= 0 {
		seconds = 1
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return true
	}
}
