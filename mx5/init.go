package mx5

import (
	"log"

	"github.com/Jon-Bright/mx5clk/clk"
	"github.com/Jon-Bright/mx5clk/cpufreq"
	"github.com/Jon-Bright/mx5clk/regio"
	"github.com/pkg/errors"
)

// Default is one board policy step applied right after boot propagation:
// reparent Clock if Parent is set, then set its rate if Rate is non-zero.
type Default struct {
	Clock  clk.ID
	Parent clk.ID
	Rate   uint64
}

// Board holds what the chip can't know about itself: the crystal rates,
// the board's default clock choices and the core voltage regulator.
type Board struct {
	Osc, Ckih, Ckih2, Ckil uint64
	Defaults               []Default
	// Regulator is optional; without it working point changes leave the
	// core voltage alone.
	Regulator cpufreq.Regulator
}

// Babbage is the Freescale i.MX51 reference board.
var Babbage = Board{
	Osc:   24000000,
	Ckih:  22579200,
	Ckih2: 0,
	Ckil:  32768,
	Defaults: []Default{
		// The UARTs don't need PLL3; run them from the oscillator.
		{Clock: clk.Named("uart_root_clk"), Parent: clk.Named("lp_apm_clk"), Rate: 24000000},
		{Clock: clk.Named("ipu_di0_clk"), Parent: clk.Named("pll3_sw_clk")},
		{Clock: clk.ID{Name: "esdhc_clk", Index: 0}, Parent: clk.Named("pll2_sw_clk"), Rate: 166250000},
	},
}

// QSB is the i.MX53 Quick Start board.
var QSB = Board{
	Osc:   24000000,
	Ckih:  0,
	Ckih2: 0,
	Ckil:  32768,
	Defaults: []Default{
		{Clock: clk.Named("uart_root_clk"), Parent: clk.Named("lp_apm_clk"), Rate: 24000000},
		{Clock: clk.Named("ipu_di0_clk"), Parent: clk.Named("pll4_sw_clk")},
	},
}

// Chip is a booted clock controller.
type Chip struct {
	Variant  *Variant
	Registry *clk.Registry
	Clocks   Clocks
	Table    cpufreq.Table
	Switch   *cpufreq.Switch
}

// Init brings up the clock tree of v on bus: gates off except the always-on
// set, registry built and synced with the hardware muxes, rates propagated,
// working points trimmed to what PLL1 runs at, and then the board defaults
// applied before any peripheral clock is enabled.
func Init(bus regio.Bus, v *Variant, board Board, cfg clk.Config) (*Chip, error) {
	m := ccm(v.CCMBase)
	for i, on := range v.AlwaysOn {
		bus.Write32(m.ccgr(i), on)
	}

	r := clk.NewRegistry(bus, cfg)
	c, err := register(r, v, board)
	if err != nil {
		return nil, errors.Wrapf(err, "%s clock tree", v.Name)
	}
	r.SyncParents()
	r.PropagateAll()

	pll1, err := r.PLLSettings(c.PLL1)
	if err != nil {
		return nil, err
	}
	ddrOnPLL1 := func() bool {
		return r.Parent(c.DDR) == c.DDRHF
	}
	tbl, err := cpufreq.Build(v.WorkingPoints, r.Rate(c.PLL1), cpufreq.BuildOptions{
		FixedPLL:     ddrOnPLL1(),
		PLL1Settings: pll1,
	})
	if err != nil {
		return nil, err
	}
	sw, err := cpufreq.NewSwitch(r, tbl, cpufreq.SwitchConfig{
		CPU:       c.CPU,
		PLL1SW:    c.PLL1SW,
		PLL1Main:  c.PLL1,
		Step:      c.Step,
		FastPath:  ddrOnPLL1,
		Regulator: board.Regulator,
	})
	if err != nil {
		return nil, err
	}
	r.OnCPUFreqTrigger(sw.Refresh)

	for _, d := range board.Defaults {
		if err := applyDefault(r, d); err != nil {
			return nil, err
		}
	}

	// The core never stops; hold a reference so nothing below them is
	// switched off by a peripheral's last disable.
	for _, h := range []clk.Handle{c.CPU, c.DDR, c.AHB, c.IPG, c.EMISlow} {
		r.Enable(h)
	}

	log.Printf("mx5: %s clocks up, cpu %d Hz, ddr %d Hz, ahb %d Hz, %d working points",
		v.Name, r.Rate(c.CPU), r.Rate(c.DDR), r.Rate(c.AHB), len(tbl))
	return &Chip{
		Variant:  v,
		Registry: r,
		Clocks:   c,
		Table:    tbl,
		Switch:   sw,
	}, nil
}

func applyDefault(r *clk.Registry, d Default) error {
	h, ok := r.Lookup(d.Clock)
	if !ok {
		return errors.Errorf("board default for unknown clock %v", d.Clock)
	}
	if d.Parent.Name != "" {
		p, ok := r.Lookup(d.Parent)
		if !ok {
			return errors.Errorf("board default parent %v of %v unknown", d.Parent, d.Clock)
		}
		if err := r.SetParent(h, p); err != nil {
			return errors.Wrapf(err, "board default for %v", d.Clock)
		}
	}
	if d.Rate != 0 {
		if err := r.SetRate(h, d.Rate); err != nil {
			return errors.Wrapf(err, "board default for %v", d.Clock)
		}
	}
	return nil
}

func InitMX51(bus regio.Bus, board Board, cfg clk.Config) (*Chip, error) {
	return Init(bus, &MX51, board, cfg)
}

func InitMX53(bus regio.Bus, board Board, cfg clk.Config) (*Chip, error) {
	return Init(bus, &MX53, board, cfg)
}

// MapWindows maps v's CCM and PLL register blocks from /dev/mem.
func MapWindows(v *Variant) (*regio.Map, error) {
	m := &regio.Map{}
	bases := append([]regio.Addr{v.CCMBase}, v.PLLBases...)
	for i, base := range bases {
		size := clk.MXC_PLL_WINDOW
		if i == 0 {
			size = MXC_CCM_WINDOW
		}
		w, err := regio.MapMem(base, size)
		if err != nil {
			m.Close()
			return nil, errors.Wrapf(err, "%s registers at %08X", v.Name, uint32(base))
		}
		m.Add(w)
	}
	return m, nil
}
