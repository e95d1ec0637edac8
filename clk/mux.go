package clk

import (
	"github.com/pkg/errors"
)

// MuxCode returns the selector code for parent: its position in the
// ordered candidate list. ok is false if parent isn't a candidate.
func MuxCode(parent Handle, candidates []Handle) (code uint32, ok bool) {
	if parent == NoClock {
		return 0, false
	}
	for i, c := range candidates {
		if c == parent {
			return uint32(i), true
		}
	}
	return 0, false
}

// Mux selects one of up to 1<<Sel.Width parents. NoClock entries in
// Parents are selector codes that must not be used.
type Mux struct {
	Sel     Field
	Parents []Handle
	Busy    Status
}

func (m *Mux) kindName() string { return "mux" }

func (m *Mux) candidates() []Handle {
	return m.Parents
}

func (m *Mux) setParent(r *Registry, n *node, code uint32) {
	m.Sel.set(r.bus, code)
	m.Busy.wait(r, n.id.String())
}

func (m *Mux) readParent(r *Registry) Handle {
	code := m.Sel.get(r.bus)
	if int(code) >= len(m.Parents) {
		return NoClock
	}
	return m.Parents[code]
}

func (m *Mux) validate(r *Registry) error {
	if !m.Sel.valid() {
		return errors.New("mux without selector field")
	}
	if len(m.Parents) == 0 || len(m.Parents) > 1<<m.Sel.Width {
		return errors.Errorf("%d parents for a %d-bit selector", len(m.Parents), m.Sel.Width)
	}
	for _, p := range m.Parents {
		if p != NoClock && !r.registered(p) {
			return errors.Errorf("mux candidate %d not registered yet", p)
		}
	}
	return nil
}

// MuxDivider is the usual peripheral root: parent mux, pre/post divider and
// gate in one node.
type MuxDivider struct {
	Mux
	CompositeDivider
	Gate
}

func (m *MuxDivider) kindName() string { return "muxdiv" }

func (m *MuxDivider) validate(r *Registry) error {
	if err := m.Mux.validate(r); err != nil {
		return err
	}
	return m.CompositeDivider.validate(r)
}
