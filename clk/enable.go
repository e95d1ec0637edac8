package clk

import (
	"log"
)

// Enable takes a reference on h. The first reference enables, in order, the
// parent, the secondary clock and the gate, and registers the clock with
// the bus set point counters. A hardware failure here is fatal, not
// returned.
func (r *Registry) Enable(h Handle) {
	r.mu.Lock()
	defer r.unlock()
	r.enable(h)
}

// Disable drops a reference on h; the last one is the exact mirror of the
// first Enable.
func (r *Registry) Disable(h Handle) {
	r.mu.Lock()
	defer r.unlock()
	r.disable(h)
}

func (r *Registry) enable(h Handle) {
	n := r.node(h)
	n.count++
	if n.count != 1 {
		return
	}
	if n.parent != NoClock {
		r.enable(n.parent)
	}
	if n.secondary != NoClock {
		r.enable(n.secondary)
	}
	if e, ok := n.kind.(enabler); ok {
		e.enable(r, n)
	}
	if n.flags&AHBHighSetPoint != 0 {
		r.busHighUsers++
	}
	if n.flags&AHBMedSetPoint != 0 {
		r.busMedUsers++
	}
	if n.flags&CPUFreqTrigUpdate != 0 {
		r.triggered = true
	}
}

func (r *Registry) disable(h Handle) {
	n := r.node(h)
	if n.count == 0 {
		log.Printf("clk: unbalanced disable of %v", n.id)
		return
	}
	n.count--
	if n.count != 0 {
		return
	}
	if d, ok := n.kind.(disabler); ok {
		d.disable(r, n)
	}
	if n.flags&AHBHighSetPoint != 0 && r.busHighUsers > 0 {
		r.busHighUsers--
	}
	if n.flags&AHBMedSetPoint != 0 && r.busMedUsers > 0 {
		r.busMedUsers--
	}
	if n.flags&CPUFreqTrigUpdate != 0 {
		r.triggered = true
	}
	if n.secondary != NoClock {
		r.disable(n.secondary)
	}
	if n.parent != NoClock {
		r.disable(n.parent)
	}
}
