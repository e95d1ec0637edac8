package clk

import (
	"log"

	"github.com/pkg/errors"
)

func (r *Registry) parentRate(n *node) uint64 {
	if n.parent == NoClock {
		return 0
	}
	return r.nodes[n.parent].rate
}

func (r *Registry) recalc(n *node) {
	if rc, ok := n.kind.(recalculator); ok {
		n.rate = rc.recalc(r, n, r.parentRate(n))
		return
	}
	if n.parent != NoClock {
		n.rate = r.parentRate(n)
	}
}

// Propagate recomputes h's rate and then, depth first, that of every child
// flagged RatePropagates. A child is never evaluated before its parent.
func (r *Registry) Propagate(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.propagate(h)
}

func (r *Registry) propagate(h Handle) {
	r.recalc(r.node(h))
	for c := 1; c < len(r.nodes); c++ {
		cn := r.nodes[c]
		if cn.parent == h && cn.flags&RatePropagates != 0 {
			r.propagate(Handle(c))
		}
	}
}

// PropagateAll recomputes every clock. Handles are allocated parents first,
// so a single pass in handle order sees each parent's fresh rate.
func (r *Registry) PropagateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h := 1; h < len(r.nodes); h++ {
		r.recalc(r.nodes[h])
	}
}

// SyncParents reads every mux selector once and sets the parents to what
// the hardware is actually using.
func (r *Registry) SyncParents() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h := 1; h < len(r.nodes); h++ {
		n := r.nodes[h]
		ps, ok := n.kind.(parentSetter)
		if !ok {
			continue
		}
		p := ps.readParent(r)
		if p == NoClock {
			log.Printf("clk: %v selects an unusable input, keeping %d", n.id, n.parent)
			continue
		}
		n.parent = p
	}
}

// RoundRate returns the rate h would run at if asked for rate. Nothing is
// written.
func (r *Registry) RoundRate(h Handle, rate uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.node(h)
	rr, ok := n.kind.(rateRounder)
	if !ok {
		return 0, errors.Wrapf(ErrNotSupported, "round rate of %v", n.id)
	}
	if rate == 0 {
		return 0, errors.Wrapf(ErrInvalidRate, "round %v to 0 Hz", n.id)
	}
	return rr.roundRate(r.parentRate(n), rate), nil
}

// SetRate changes h's rate and propagates the change. Caller errors leave
// the hardware untouched. A PLL asked for a rate outside its multiplier
// range, or a busy bit that never clears, is fatal.
func (r *Registry) SetRate(h Handle, rate uint64) error {
	r.mu.Lock()
	defer r.unlock()
	n := r.node(h)
	rs, ok := n.kind.(rateSetter)
	if !ok {
		return errors.Wrapf(ErrNotSupported, "set rate of %v", n.id)
	}
	if rate == 0 {
		return errors.Wrapf(ErrInvalidRate, "set %v to 0 Hz", n.id)
	}
	if err := rs.setRate(r, n, r.parentRate(n), rate); err != nil {
		return errors.Wrapf(err, "set %v to %d Hz", n.id, rate)
	}
	r.propagate(h)
	log.Printf("clk: %v now %d Hz", n.id, n.rate)
	return nil
}

// SetDivider writes a raw divider value to a Divider clock.
func (r *Registry) SetDivider(h Handle, div uint32) error {
	r.mu.Lock()
	defer r.unlock()
	n := r.node(h)
	ds, ok := n.kind.(dividerSetter)
	if !ok {
		return errors.Wrapf(ErrNotSupported, "set divider of %v", n.id)
	}
	if err := ds.setDivider(r, n, div); err != nil {
		return errors.Wrapf(err, "set %v divider", n.id)
	}
	r.propagate(h)
	return nil
}

// SetParent switches h's mux to parent. Clocks without a mux get
// ErrNotSupported. A parent that is not one of h's candidates is a
// topology fault, raised before any register is touched. If h is enabled,
// its reference moves from the old parent to the new one.
func (r *Registry) SetParent(h, parent Handle) error {
	r.mu.Lock()
	defer r.unlock()
	n := r.node(h)
	ps, ok := n.kind.(parentSetter)
	if !ok {
		return errors.Wrapf(ErrNotSupported, "set parent of %v", n.id)
	}
	code, ok := MuxCode(parent, ps.candidates())
	if !ok {
		name := "none"
		if r.registered(parent) {
			name = r.nodes[parent].id.String()
		}
		Fatal(FaultTopology, n.id.String(), "%s is not a legal parent", name)
	}
	old := n.parent
	if n.count > 0 {
		r.enable(parent)
	}
	ps.setParent(r, n, code)
	n.parent = parent
	if n.count > 0 && old != NoClock {
		r.disable(old)
	}
	r.propagate(h)
	log.Printf("clk: %v parent now %v, %d Hz", n.id, r.nodes[parent].id, n.rate)
	return nil
}

// PLLSettings reads back the current programming of a Pll clock.
func (r *Registry) PLLSettings(h Handle) (PLLSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.node(h)
	p, ok := n.kind.(*Pll)
	if !ok {
		return PLLSettings{}, errors.Wrapf(ErrNotSupported, "%v is not a PLL", n.id)
	}
	return p.settings(r.bus), nil
}

// ProgramPLL runs the full reprogramming sequence on a Pll clock: stop
// auto-update, write the settings, re-enable, force a restart and wait for
// lock. The caller must first move anything that can't tolerate the PLL
// going away onto another source.
func (r *Registry) ProgramPLL(h Handle, s PLLSettings) error {
	r.mu.Lock()
	defer r.unlock()
	n := r.node(h)
	p, ok := n.kind.(*Pll)
	if !ok {
		return errors.Wrapf(ErrNotSupported, "%v is not a PLL", n.id)
	}
	if s.MFI < PLL_MFI_MIN || s.MFI > PLL_MFI_MAX || s.PDF > PLL_PDF_MAX {
		Fatal(FaultTopology, n.id.String(), "MFI %d PDF %d not representable", s.MFI, s.PDF)
	}
	p.program(r, n, s)
	r.propagate(h)
	log.Printf("clk: %v relocked at %d Hz", n.id, n.rate)
	return nil
}
