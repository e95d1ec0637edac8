package clk

import (
	"log"
	"sync"
	"time"

	"github.com/Jon-Bright/mx5clk/regio"
	"github.com/pkg/errors"
)

// Handle addresses a node in a Registry. Parent and secondary links are
// handles, so a node never owns another node.
type Handle int

// NoClock is the zero Handle: no parent, no secondary, or an unusable mux
// selector code.
const NoClock Handle = 0

type node struct {
	id        ID
	rate      uint64
	parent    Handle
	secondary Handle
	count     int
	flags     Flags
	kind      Kind
}

// Spec describes a node to Register.
type Spec struct {
	ID     ID
	Parent Handle
	// Secondary is enabled before and disabled after this node, e.g. a
	// peripheral's bus interface clock.
	Secondary Handle
	Flags     Flags
	// Kind defaults to PassThrough.
	Kind Kind
}

type Config struct {
	// Timeout bounds every busy/lock wait; DefaultTimeout if zero.
	Timeout time.Duration
	// Now replaces time.Now for the waits, for tests.
	Now func() time.Time
}

// Registry owns every clock for the life of the process. Nodes are only
// added at boot; nothing is ever removed.
//
// Each public method runs under the registry lock, but ordering between
// calls (e.g. not reparenting a clock while a caller is part way through a
// rate change on its subtree) is up to the callers.
type Registry struct {
	mu    sync.Mutex
	bus   regio.Bus
	sync  *Sync
	nodes []*node
	byID  map[ID]Handle

	busHighUsers int
	busMedUsers  int

	trigger   func()
	triggered bool
}

func NewRegistry(bus regio.Bus, cfg Config) *Registry {
	return &Registry{
		bus: bus,
		sync: &Sync{
			Bus:     bus,
			Timeout: cfg.Timeout,
			Now:     cfg.Now,
		},
		nodes: []*node{nil},
		byID:  make(map[ID]Handle),
	}
}

// Sync returns the registry's hardware waiter, for register sequences
// driven from outside the registry.
func (r *Registry) Sync() *Sync {
	return r.sync
}

func (r *Registry) Bus() regio.Bus {
	return r.bus
}

func (r *Registry) registered(h Handle) bool {
	return h > NoClock && int(h) < len(r.nodes)
}

func (r *Registry) node(h Handle) *node {
	if !r.registered(h) {
		panic(errors.Errorf("clk: invalid handle %d", h))
	}
	return r.nodes[h]
}

// Register adds a node. Parent, secondary and mux candidates must already
// be registered, which keeps the graph acyclic.
func (r *Registry) Register(s Spec) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID.Name == "" {
		return NoClock, errors.New("clock without a name")
	}
	if _, ok := r.byID[s.ID]; ok {
		return NoClock, errors.Errorf("clock %v already registered", s.ID)
	}
	if s.Parent != NoClock && !r.registered(s.Parent) {
		return NoClock, errors.Errorf("clock %v: parent %d not registered", s.ID, s.Parent)
	}
	if s.Secondary != NoClock && !r.registered(s.Secondary) {
		return NoClock, errors.Errorf("clock %v: secondary %d not registered", s.ID, s.Secondary)
	}
	if s.Kind == nil {
		s.Kind = &PassThrough{}
	}
	if v, ok := s.Kind.(validator); ok {
		if err := v.validate(r); err != nil {
			return NoClock, errors.Wrapf(err, "clock %v", s.ID)
		}
	}
	h := Handle(len(r.nodes))
	r.nodes = append(r.nodes, &node{
		id:        s.ID,
		parent:    s.Parent,
		secondary: s.Secondary,
		flags:     s.Flags,
		kind:      s.Kind,
	})
	r.byID[s.ID] = h
	return h, nil
}

func (r *Registry) Lookup(id ID) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	return h, ok
}

// MustLookup is Lookup for boot tables, where a missing clock is a bug.
func (r *Registry) MustLookup(id ID) Handle {
	h, ok := r.Lookup(id)
	if !ok {
		panic(errors.Errorf("clk: no clock %v", id))
	}
	return h
}

// Handles lists every registered clock, parents before children.
func (r *Registry) Handles() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs := make([]Handle, 0, len(r.nodes)-1)
	for h := 1; h < len(r.nodes); h++ {
		hs = append(hs, Handle(h))
	}
	return hs
}

// Info is a snapshot of one node.
type Info struct {
	ID          ID
	Kind        string
	Rate        uint64
	Parent      Handle
	Secondary   Handle
	EnableCount int
	Flags       Flags
}

func (r *Registry) Info(h Handle) Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info(r.node(h))
}

func (r *Registry) info(n *node) Info {
	return Info{
		ID:          n.id,
		Kind:        n.kind.kindName(),
		Rate:        n.rate,
		Parent:      n.parent,
		Secondary:   n.secondary,
		EnableCount: n.count,
		Flags:       n.flags,
	}
}

func (r *Registry) ID(h Handle) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.node(h).id
}

// Rate is the last computed rate; stale after a parent change until the
// change has been propagated.
func (r *Registry) Rate(h Handle) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.node(h).rate
}

func (r *Registry) Parent(h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.node(h).parent
}

func (r *Registry) EnableCount(h Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.node(h).count
}

func (r *Registry) Flags(h Handle) Flags {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.node(h).flags
}

// Walk calls fn for every clock in handle order, parents before children.
// fn must not call back into the registry.
func (r *Registry) Walk(fn func(h Handle, info Info)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h := 1; h < len(r.nodes); h++ {
		fn(Handle(h), r.info(r.nodes[h]))
	}
}

// Candidates returns the legal parents of a mux in selector order, or nil
// for clocks whose parent is fixed.
func (r *Registry) Candidates(h Handle) []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.node(h).kind.(parentSetter)
	if !ok {
		return nil
	}
	return append([]Handle(nil), ps.candidates()...)
}

// BusUsers returns how many enabled clocks currently need the high and
// medium bus set points.
func (r *Registry) BusUsers() (high, med int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busHighUsers, r.busMedUsers
}

// OnCPUFreqTrigger sets the function called after an enable or disable
// transition of a CPUFreqTrigUpdate clock. It runs outside the registry
// lock, on the caller's goroutine.
func (r *Registry) OnCPUFreqTrigger(fn func()) {
	r.mu.Lock()
	r.trigger = fn
	r.mu.Unlock()
}

// unlock releases the registry lock and then runs a pending CPU frequency
// trigger, if any.
func (r *Registry) unlock() {
	var fn func()
	if r.triggered {
		r.triggered = false
		fn = r.trigger
	}
	r.mu.Unlock()
	if fn != nil {
		log.Printf("clk: CPU frequency re-evaluation requested")
		fn()
	}
}
