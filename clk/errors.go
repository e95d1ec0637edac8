package clk

import (
	"fmt"
	"log"

	"github.com/pkg/errors"
)

// Caller errors. Nothing has been written to hardware when one of these is
// returned.
var (
	ErrInvalidRate  = errors.New("clk: rate not achievable by divider")
	ErrNotSupported = errors.New("clk: operation not supported by this clock")
	ErrPLLRange     = errors.New("clk: PLL multiplier out of range")
)

type FaultKind int

const (
	// FaultTimeout means a busy or lock bit never cleared. Registers have
	// already been written, so the clock network is mid-transition.
	FaultTimeout FaultKind = iota
	// FaultTopology means the request cannot be represented by the
	// registers at all: an illegal parent, or a PLL multiplier the field
	// can't hold.
	FaultTopology
)

func (k FaultKind) String() string {
	switch k {
	case FaultTimeout:
		return "timeout"
	case FaultTopology:
		return "topology"
	}
	return fmt.Sprintf("FaultKind(%d)", int(k))
}

// Fault is the value Fatal panics with.
type Fault struct {
	Kind  FaultKind
	Clock string
	Msg   string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("clk: %v fault on %s: %s", f.Kind, f.Clock, f.Msg)
}

// Fatal is the controller's abort path. It never returns. Callers all over
// the system assume enable/disable/set_parent cannot fail silently, so there
// is no error value to ignore: the fault is logged and the goroutine panics
// with a *Fault. Nothing in this module recovers it.
func Fatal(kind FaultKind, clock string, format string, args ...interface{}) {
	f := &Fault{
		Kind:  kind,
		Clock: clock,
		Msg:   fmt.Sprintf(format, args...),
	}
	log.Printf("FATAL %v", f)
	panic(f)
}
