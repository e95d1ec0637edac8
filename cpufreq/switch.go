package cpufreq

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/Jon-Bright/mx5clk/clk"
	"github.com/pkg/errors"
)

type State int32

const (
	Idle State = iota
	// FastPath: only the ARM divider changes; PLL1 keeps running.
	FastPath
	// SlowPath: the CPU runs from the step clock while PLL1 relocks.
	SlowPath
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FastPath:
		return "fast"
	case SlowPath:
		return "slow"
	}
	return "unknown"
}

type SwitchConfig struct {
	// CPU is the ARM core clock, a divider on PLL1SW.
	CPU clk.Handle
	// PLL1SW is the mux in front of the ARM divider, normally on PLL1Main.
	PLL1SW   clk.Handle
	PLL1Main clk.Handle
	// Step is the fixed low-speed source the CPU runs from while PLL1 is
	// being reprogrammed.
	Step clk.Handle
	// FastPath reports whether PLL1 has to stay where it is, so only the
	// ARM divider may change.
	FastPath func() bool
	// Regulator is optional.
	Regulator Regulator
}

// Switch moves the CPU between working points. One transition runs at a
// time; a second caller gets ErrBusy rather than queueing.
type Switch struct {
	mu    sync.Mutex
	state atomic.Int32
	r     *clk.Registry
	cfg   SwitchConfig
	table Table
	cur   int
}

func NewSwitch(r *clk.Registry, table Table, cfg SwitchConfig) (*Switch, error) {
	if len(table) == 0 {
		return nil, ErrNoWorkingPoint
	}
	if cfg.CPU == clk.NoClock || cfg.PLL1SW == clk.NoClock || cfg.PLL1Main == clk.NoClock || cfg.Step == clk.NoClock {
		return nil, errors.New("cpufreq: switch needs cpu, pll1_sw, pll1 and step clocks")
	}
	s := &Switch{r: r, cfg: cfg, table: table}
	if i, ok := table.Index(r.Rate(cfg.CPU)); ok {
		s.cur = i
	}
	return s, nil
}

func (s *Switch) Table() Table {
	return s.table
}

func (s *Switch) State() State {
	return State(s.state.Load())
}

// Current returns the index and contents of the active working point.
func (s *Switch) Current() (int, WorkingPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur, s.table[s.cur]
}

// SetRate moves to the working point running the CPU at exactly rate.
func (s *Switch) SetRate(rate uint64) error {
	i, ok := s.table.Index(rate)
	if !ok {
		return errors.Wrapf(ErrUnknownRate, "%d Hz", rate)
	}
	return s.SetWorkingPoint(i)
}

// SetWorkingPoint moves the CPU to row i. The core voltage is raised before
// speeding up and lowered after slowing down. Clock errors are returned
// before any hardware changes; a PLL that fails to relock is fatal.
func (s *Switch) SetWorkingPoint(i int) error {
	if i < 0 || i >= len(s.table) {
		return errors.Errorf("cpufreq: no working point %d", i)
	}
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()
	defer s.state.Store(int32(Idle))

	from, to := s.table[s.cur], s.table[i]
	reg := s.cfg.Regulator
	if reg != nil && to.CPUVoltage > from.CPUVoltage {
		if err := reg.SetVoltage(to.CPUVoltage); err != nil {
			return errors.Wrapf(err, "cpufreq: raise voltage for %v", to)
		}
	}
	var err error
	if s.cfg.FastPath != nil && s.cfg.FastPath() {
		s.state.Store(int32(FastPath))
		err = s.fast(to)
	} else {
		s.state.Store(int32(SlowPath))
		err = s.slow(from, to)
	}
	if err != nil {
		if reg != nil && to.CPUVoltage > from.CPUVoltage {
			if verr := reg.SetVoltage(from.CPUVoltage); verr != nil {
				log.Printf("cpufreq: couldn't restore voltage for %v: %v", from, verr)
			}
		}
		return err
	}
	s.cur = i
	log.Printf("cpufreq: %v path, now %v", s.State(), to)
	if reg != nil && to.CPUVoltage != 0 && to.CPUVoltage < from.CPUVoltage {
		if err := reg.SetVoltage(to.CPUVoltage); err != nil {
			return errors.Wrapf(err, "cpufreq: lower voltage for %v", to)
		}
	}
	return nil
}

func (s *Switch) fast(to WorkingPoint) error {
	return s.r.SetDivider(s.cfg.CPU, to.CPUPodf+1)
}

func (s *Switch) slow(from, to WorkingPoint) error {
	if err := s.r.SetParent(s.cfg.PLL1SW, s.cfg.Step); err != nil {
		return err
	}
	if err := s.r.SetDivider(s.cfg.CPU, to.CPUPodf+1); err != nil {
		s.rollback(from, false)
		return err
	}
	if err := s.r.ProgramPLL(s.cfg.PLL1Main, to.PLLSettings()); err != nil {
		s.rollback(from, true)
		return err
	}
	return s.r.SetParent(s.cfg.PLL1SW, s.cfg.PLL1Main)
}

// rollback moves the CPU back onto PLL1, which hasn't been touched yet,
// restoring from's ARM divider first if it was already changed.
func (s *Switch) rollback(from WorkingPoint, divider bool) {
	if divider {
		if err := s.r.SetDivider(s.cfg.CPU, from.CPUPodf+1); err != nil {
			log.Printf("cpufreq: couldn't restore ARM divider for %v: %v", from, err)
		}
	}
	if err := s.r.SetParent(s.cfg.PLL1SW, s.cfg.PLL1Main); err != nil {
		log.Printf("cpufreq: couldn't move CPU back to PLL1: %v", err)
	}
}

// Refresh re-reads the CPU rate and points the switch at the matching row.
// It is the registry's CPU frequency trigger and does nothing while a
// transition is running.
func (s *Switch) Refresh() {
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()
	s.r.Propagate(s.cfg.CPU)
	rate := s.r.Rate(s.cfg.CPU)
	i, ok := s.table.Index(rate)
	if !ok {
		log.Printf("cpufreq: CPU at %d Hz matches no working point", rate)
		return
	}
	s.cur = i
}
