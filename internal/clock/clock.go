// Package clock abstracts the time operations the knock pipeline waits on
// (settle delay, degraded backoff, stream throttle) so tests can drive them
// deterministically.
//
// Production code uses Real(). Tests use Fake(), call WaitForTimers to make
// sure the goroutine under test has registered its wait, then Advance.
package clock

import "time"

// Clock is the subset of the time package used by knockcam.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after d.
	// If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
