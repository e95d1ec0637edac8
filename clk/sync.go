package clk

import (
	"time"

	"github.com/Jon-Bright/mx5clk/regio"
)

// DefaultTimeout bounds every busy/lock wait. PLL relock and divider
// handshakes finish in tens of microseconds on real parts.
const DefaultTimeout = time.Millisecond

// Sync waits for a status register to settle after a write that started an
// asynchronous hardware transition.
type Sync struct {
	Bus     regio.Bus
	Timeout time.Duration
	// Now defaults to time.Now, whose readings carry the monotonic clock.
	Now func() time.Time
}

// Wait polls a until a&mask == want. The deadline is fixed before the first
// poll and compared against fresh readings, so a preempted poller never
// waits less than Timeout and stops at the first poll past it. Running out
// of time is fatal: the write that started the transition can't be undone.
func (s *Sync) Wait(a regio.Addr, mask, want uint32, what string) {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := now()
	deadline := start.Add(timeout)
	for {
		v := s.Bus.Read32(a)
		if v&mask == want {
			return
		}
		if t := now(); !t.Before(deadline) {
			Fatal(FaultTimeout, what, "register %08X = %08X, mask %08X never became %08X within %v (waited %v)",
				uint32(a), v, mask, want, timeout, t.Sub(start))
		}
	}
}
