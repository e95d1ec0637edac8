package clk

import (
	"testing"
	"time"

	"github.com/Jon-Bright/mx5clk/regio"
)

type fakeClock struct {
	t    time.Time
	step time.Duration
	last time.Time
}

func (c *fakeClock) Now() time.Time {
	c.last = c.t
	c.t = c.t.Add(c.step)
	return c.last
}

func newTestRegistry() (*Registry, *regio.Sim) {
	sim := regio.NewSim()
	return NewRegistry(sim, Config{}), sim
}

func mustRegister(t *testing.T, r *Registry, s Spec) Handle {
	t.Helper()
	h, err := r.Register(s)
	if err != nil {
		t.Fatalf("Register(%v) failed: %v", s.ID, err)
	}
	return h
}

// expectFault runs fn and returns the *Fault it panicked with.
func expectFault(t *testing.T, kind FaultKind, fn func()) (f *Fault) {
	t.Helper()
	func() {
		defer func() {
			r := recover()
			var ok bool
			if f, ok = r.(*Fault); !ok {
				t.Fatalf("got panic %v, want *Fault", r)
			}
		}()
		fn()
	}()
	if f.Kind != kind {
		t.Errorf("fault kind, got: %v, want: %v", f.Kind, kind)
	}
	return f
}
