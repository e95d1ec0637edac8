package clk

import (
	"github.com/Jon-Bright/mx5clk/regio"
)

type Flags uint32

const (
	// RatePropagates: re-evaluate this clock whenever its parent's rate
	// changes.
	RatePropagates Flags = 1 << iota
	// AHBHighSetPoint and AHBMedSetPoint: while enabled, this clock needs
	// the bus at least at that performance tier.
	AHBHighSetPoint
	AHBMedSetPoint
	// CPUFreqTrigUpdate: enabling or disabling this clock asks for a
	// deferred CPU frequency re-evaluation.
	CPUFreqTrigUpdate
)

// Kind is the behaviour of a node. The set of kinds is closed: Fixed,
// PassThrough, Gate, Divider, CompositeDivider, Mux, MuxDivider and Pll.
// What a kind can do is found by asserting the capability interfaces below;
// a kind without e.g. an enable capability simply has nothing to switch.
type Kind interface {
	kindName() string
}

type recalculator interface {
	recalc(r *Registry, n *node, parentRate uint64) uint64
}

type enabler interface {
	enable(r *Registry, n *node)
}

type disabler interface {
	disable(r *Registry, n *node)
}

type rateSetter interface {
	setRate(r *Registry, n *node, parentRate, rate uint64) error
}

type rateRounder interface {
	roundRate(parentRate, rate uint64) uint64
}

type parentSetter interface {
	candidates() []Handle
	setParent(r *Registry, n *node, code uint32)
	readParent(r *Registry) Handle
}

type dividerSetter interface {
	setDivider(r *Registry, n *node, div uint32) error
}

type validator interface {
	validate(r *Registry) error
}

// Field is a bit field of a control register.
type Field struct {
	Reg   regio.Addr
	Shift uint
	Width uint
}

func (f Field) valid() bool {
	return f.Reg != 0 && f.Width > 0
}

func (f Field) max() uint32 {
	return 1<<f.Width - 1
}

func (f Field) mask() uint32 {
	return f.max() << f.Shift
}

func (f Field) get(b regio.Bus) uint32 {
	return (b.Read32(f.Reg) & f.mask()) >> f.Shift
}

func (f Field) set(b regio.Bus, v uint32) {
	regio.Modify(b, f.Reg, f.mask(), (v<<f.Shift)&f.mask())
}

// Status is a busy bit: set while the hardware is applying a change, clear
// once it's done.
type Status struct {
	Reg  regio.Addr
	Mask uint32
}

func (s Status) valid() bool {
	return s.Reg != 0 && s.Mask != 0
}

func (s Status) wait(r *Registry, what string) {
	if s.valid() {
		r.sync.Wait(s.Reg, s.Mask, 0, what)
	}
}

// Fixed is a root: a crystal or oscillator whose rate is measured on the
// board and seeded at boot.
type Fixed struct {
	Hz uint64
}

func (f *Fixed) kindName() string { return "fixed" }

func (f *Fixed) recalc(r *Registry, n *node, parentRate uint64) uint64 {
	return f.Hz
}

// PassThrough has no hardware of its own and runs at its parent's rate.
type PassThrough struct{}

func (p *PassThrough) kindName() string { return "passthrough" }

const (
	// Clock gates are two bits wide: 0 off, 1 on in run mode only, 3 on
	// in run and wait mode.
	CG_OFF     = 0
	CG_RUN     = 1
	CG_ON      = 3
	CG_WIDTH   = 2
	CG_PER_REG = 16
)

// Gate switches a clock on and off without changing its rate. Bypass is the
// low-power handshake bypass bit: cleared while the clock is enabled so that
// entering a sleep state waits for the peripheral's acknowledgment, set again
// once it is disabled.
type Gate struct {
	CG     Field
	Bypass Status
}

func (g *Gate) kindName() string { return "gate" }

func (g *Gate) enable(r *Registry, n *node) {
	if g.Bypass.valid() {
		regio.Modify(r.bus, g.Bypass.Reg, g.Bypass.Mask, 0)
	}
	if g.CG.valid() {
		g.CG.set(r.bus, CG_ON)
	}
}

func (g *Gate) disable(r *Registry, n *node) {
	if g.CG.valid() {
		g.CG.set(r.bus, CG_OFF)
	}
	if g.Bypass.valid() {
		regio.Modify(r.bus, g.Bypass.Reg, 0, g.Bypass.Mask)
	}
}
