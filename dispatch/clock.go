package dispatch

import "time"

// Clock is the host time source that drives the guest timer.
type Clock interface {
	// Microseconds returns a monotonic timestamp.
	Microseconds() uint64

	// Idle is called while the hart waits for an interrupt.
	Idle()
}

// IdleInterval is how long SystemClock.Idle sleeps.
const IdleInterval = 500 * time.Microsecond

// SystemClock reads the host monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock that counts from now.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Microseconds() uint64 {
	return uint64(time.Since(c.start).Microseconds())
}

func (c *SystemClock) Idle() {
	time.Sleep(IdleInterval)
}
