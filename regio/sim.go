package regio

import (
	"sync"
)

// Write is one entry in a Sim's write log.
type Write struct {
	Addr  Addr
	Value uint32
}

// WriteHook sees the old register value and the value being written, and
// returns what the register holds afterwards.
type WriteHook func(old, v uint32) uint32

// ReadHook sees the stored value and returns the value the reader observes
// and the value stored afterwards.
type ReadHook func(v uint32) (seen, next uint32)

// Sim is an in-memory register file. Hooks model hardware side effects such
// as a PLL relocking after a restart pulse or a busy bit that clears after a
// while. Hooks run with the Sim locked and must not call back into it.
type Sim struct {
	mu     sync.Mutex
	regs   map[Addr]uint32
	wHooks map[Addr]WriteHook
	rHooks map[Addr]ReadHook
	log    []Write
}

func NewSim() *Sim {
	return &Sim{
		regs:   make(map[Addr]uint32),
		wHooks: make(map[Addr]WriteHook),
		rHooks: make(map[Addr]ReadHook),
	}
}

func (s *Sim) Read32(a Addr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.regs[a]
	if h, ok := s.rHooks[a]; ok {
		var next uint32
		v, next = h(v)
		s.regs[a] = next
	}
	return v
}

func (s *Sim) Write32(a Addr, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, Write{a, v})
	if h, ok := s.wHooks[a]; ok {
		v = h(s.regs[a], v)
	}
	s.regs[a] = v
}

// Poke sets a register without logging or running hooks.
func (s *Sim) Poke(a Addr, v uint32) {
	s.mu.Lock()
	s.regs[a] = v
	s.mu.Unlock()
}

// Peek reads a register without running hooks.
func (s *Sim) Peek(a Addr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[a]
}

func (s *Sim) OnWrite(a Addr, h WriteHook) {
	s.mu.Lock()
	s.wHooks[a] = h
	s.mu.Unlock()
}

func (s *Sim) OnRead(a Addr, h ReadHook) {
	s.mu.Lock()
	s.rHooks[a] = h
	s.mu.Unlock()
}

// Writes returns a copy of the write log.
func (s *Sim) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.log...)
}

// WritesTo returns the logged writes to a, oldest first.
func (s *Sim) WritesTo(a Addr) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var vs []uint32
	for _, w := range s.log {
		if w.Addr == a {
			vs = append(vs, w.Value)
		}
	}
	return vs
}

func (s *Sim) ResetLog() {
	s.mu.Lock()
	s.log = nil
	s.mu.Unlock()
}
