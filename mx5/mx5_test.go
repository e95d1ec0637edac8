package mx5

import (
	"testing"

	"github.com/Jon-Bright/mx5clk/clk"
	"github.com/Jon-Bright/mx5clk/regio"
)

func bootMX51(t *testing.T, prep func(sim *regio.Sim)) (*Chip, *regio.Sim) {
	t.Helper()
	sim := NewSim(&MX51)
	if prep != nil {
		prep(sim)
	}
	chip, err := InitMX51(sim, Babbage, clk.Config{})
	if err != nil {
		t.Fatalf("InitMX51 failed: %v", err)
	}
	sim.ResetLog()
	return chip, sim
}

func checkRates(t *testing.T, r *clk.Registry, want map[string]uint64) {
	t.Helper()
	for name, hz := range want {
		id, err := clk.ParseID(name)
		if err != nil {
			t.Fatalf("ParseID(%q) failed: %v", name, err)
		}
		h, ok := r.Lookup(id)
		if !ok {
			t.Errorf("no clock %s", name)
			continue
		}
		if got := r.Rate(h); got != hz {
			t.Errorf("rate of %s, got: %d, want %d", name, got, hz)
		}
	}
}

var mx51CCM = ccm(MX51_CCM_BASE)

func TestInitMX51(t *testing.T) {
	sim := NewSim(&MX51)
	chip, err := InitMX51(sim, Babbage, clk.Config{})
	if err != nil {
		t.Fatalf("InitMX51 failed: %v", err)
	}
	checkRates(t, chip.Registry, map[string]uint64{
		"osc":           24000000,
		"ckil":          32768,
		"pll1_main_clk": 800000000,
		"pll2_sw_clk":   665000000,
		"pll3_sw_clk":   216000000,
		"cpu_clk":       800000000,
		"ddr_hf_clk":    200000000,
		"ddr_clk":       200000000,
		"main_bus_clk":  665000000,
		"ahb_clk":       133000000,
		"ipg_clk":       66500000,
		"emi_slow_clk":  133000000,
		"nfc_clk":       33250000,
		"uart_root_clk": 24000000,
		"uart_clk.2":    24000000,
		"esdhc_clk.0":   166250000,
		"ipu_di0_clk":   216000000,
	})
	for i, on := range MX51.AlwaysOn {
		if got := sim.Peek(mx51CCM.ccgr(i)); got != on {
			t.Errorf("CCGR%d, got: %08X, want %08X", i, got, on)
		}
	}
	if _, ok := chip.Registry.Lookup(clk.Named("pll4_sw_clk")); ok {
		t.Errorf("MX51 has a PLL4")
	}

	// PLL1 runs at 800 MHz, so the 1 GHz point goes.
	var rates []uint64
	for _, wp := range chip.Table {
		rates = append(rates, wp.CPURate)
	}
	if len(rates) != 3 || rates[0] != 800000000 || rates[1] != 400000000 || rates[2] != 160000000 {
		t.Errorf("working points, got: %v, want [800000000 400000000 160000000]", rates)
	}
	if got := chip.Registry.EnableCount(chip.Clocks.PLL1); got == 0 {
		t.Errorf("PLL1 not held on after boot")
	}
}

func TestInitMX51OneGigahertz(t *testing.T) {
	pll1 := regio.Addr(MX51_PLL1_BASE)
	chip, _ := bootMX51(t, func(sim *regio.Sim) {
		sim.Poke(pll1+clk.MXC_PLL_DP_OP, 10<<clk.MXC_PLL_DP_OP_MFI_OFFSET)
		sim.Poke(pll1+clk.MXC_PLL_DP_MFD, 11)
		sim.Poke(pll1+clk.MXC_PLL_DP_MFN, 5)
	})
	checkRates(t, chip.Registry, map[string]uint64{
		"pll1_main_clk": 1000000000,
		"cpu_clk":       1000000000,
		"ddr_clk":       250000000,
	})
	if len(chip.Table) != 4 || chip.Table[0].CPURate != 1000000000 {
		t.Errorf("working points, got: %v, want four starting at 1 GHz", chip.Table)
	}
}

func TestInitMX53(t *testing.T) {
	chip, err := InitMX53(NewSim(&MX53), QSB, clk.Config{})
	if err != nil {
		t.Fatalf("InitMX53 failed: %v", err)
	}
	checkRates(t, chip.Registry, map[string]uint64{
		"pll4_sw_clk": 455000000,
		"ipu_di0_clk": 455000000,
		"cpu_clk":     800000000,
	})
	if len(chip.Table) != 3 {
		t.Errorf("working points, got: %v, want 3", chip.Table)
	}
}

func TestCPUFastPath(t *testing.T) {
	chip, sim := bootMX51(t, nil)
	if err := chip.Switch.SetRate(400000000); err != nil {
		t.Fatalf("SetRate failed: %v", err)
	}
	checkRates(t, chip.Registry, map[string]uint64{
		"cpu_clk": 400000000,
		"ddr_clk": 200000000,
	})
	if got := sim.Peek(mx51CCM.reg(MXC_CCM_CACRR)); got != 1 {
		t.Errorf("ARM_PODF, got: %d, want 1", got)
	}
	if w := sim.WritesTo(mx51CCM.reg(MXC_CCM_CCSR)); len(w) != 0 {
		t.Errorf("fast path touched CCSR: %08X", w)
	}
}

func TestCPUSlowPath(t *testing.T) {
	ddrOnAXI := func(sim *regio.Sim) {
		a := mx51CCM.reg(MXC_CCM_CBCDR)
		sim.Poke(a, sim.Peek(a)&^(1<<MXC_CCM_CBCDR_DDR_HF_SEL))
	}
	chip, sim := bootMX51(t, ddrOnAXI)
	checkRates(t, chip.Registry, map[string]uint64{"ddr_clk": 133000000})
	if err := chip.Switch.SetRate(160000000); err != nil {
		t.Fatalf("SetRate failed: %v", err)
	}
	checkRates(t, chip.Registry, map[string]uint64{"cpu_clk": 160000000})
	ccsr := sim.WritesTo(mx51CCM.reg(MXC_CCM_CCSR))
	step := uint32(1 << MXC_CCM_CCSR_PLL1_SW_CLK_SEL)
	if len(ccsr) != 2 || ccsr[0]&step == 0 || ccsr[1]&step != 0 {
		t.Errorf("CCSR writes, got: %08X, want a switch to the step clock and back", ccsr)
	}
	restarted := false
	for _, v := range sim.WritesTo(MX51_PLL1_BASE + clk.MXC_PLL_DP_CTL) {
		if v&clk.MXC_PLL_DP_CTL_RST != 0 {
			restarted = true
		}
	}
	if !restarted {
		t.Errorf("PLL1 never restarted")
	}
	if got := chip.Registry.Parent(chip.Clocks.PLL1SW); got != chip.Clocks.PLL1 {
		t.Errorf("pll1_sw_clk parent, got: %v, want pll1_main_clk", chip.Registry.ID(got))
	}
}

func TestPeripheralEnable(t *testing.T) {
	chip, sim := bootMX51(t, nil)
	r, c := chip.Registry, chip.Clocks
	ccgr1 := mx51CCM.ccgr(1)

	r.Enable(c.UART[0])
	want := []uint32{clk.CG_ON << 6, clk.CG_ON<<6 | clk.CG_ON<<8}
	if got := sim.WritesTo(ccgr1); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("CCGR1 writes, got: %08X, want %08X", got, want)
	}
	r.Disable(c.UART[0])
	if got := sim.Peek(ccgr1); got != 0 {
		t.Errorf("CCGR1 after disable, got: %08X, want 0", got)
	}

	clpcr := mx51CCM.reg(MXC_CCM_CLPCR)
	r.Enable(c.IPU)
	if got := sim.Peek(clpcr) & MXC_CCM_CLPCR_BYPASS_IPU_LPM_HS; got != 0 {
		t.Errorf("IPU handshake still bypassed while enabled")
	}
	if high, _ := r.BusUsers(); high != 1 {
		t.Errorf("high set point users, got: %d, want 1", high)
	}
	r.Disable(c.IPU)
	if got := sim.Peek(clpcr) & MXC_CCM_CLPCR_BYPASS_IPU_LPM_HS; got == 0 {
		t.Errorf("IPU handshake not bypassed after disable")
	}
	if i, _ := chip.Switch.Current(); i != 0 {
		t.Errorf("working point after IPU refresh, got: %d, want 0", i)
	}
}

func TestPeripheralRates(t *testing.T) {
	chip, sim := bootMX51(t, nil)
	r, c := chip.Registry, chip.Clocks
	cscdr1 := mx51CCM.reg(MXC_CCM_CSCDR1)
	uartMask := uint32(0x3F << MXC_CCM_CSCDR1_UART_PODF)
	esdhcMask := uint32(7<<MXC_CCM_CSCDR1_ESDHC1_PRED | 7<<MXC_CCM_CSCDR1_ESDHC1_PODF)

	tests := []struct {
		clock clk.Handle
		rate  uint64
		mask  uint32
		reg   uint32
		also  clk.Handle
	}{
		// uart_root_clk runs from the 24 MHz lp_apm_clk.
		{c.UARTRoot, 12000000, uartMask, 1 << MXC_CCM_CSCDR1_UART_PRED, c.UART[0]},
		{c.UARTRoot, 1000000, uartMask, 7<<MXC_CCM_CSCDR1_UART_PRED | 2<<MXC_CCM_CSCDR1_UART_PODF, c.UART[2]},
		{c.UARTRoot, 3000000, uartMask, 7 << MXC_CCM_CSCDR1_UART_PRED, c.UART[1]},
		// esdhc_clk.0 runs from the 665 MHz PLL2.
		{c.ESDHC, 665000000 / 40, esdhcMask, 7<<MXC_CCM_CSCDR1_ESDHC1_PRED | 4<<MXC_CCM_CSCDR1_ESDHC1_PODF, c.ESDHC},
		{c.ESDHC, 665000000 / 6, esdhcMask, 5 << MXC_CCM_CSCDR1_ESDHC1_PRED, c.ESDHC},
	}
	for _, test := range tests {
		name := r.ID(test.clock)
		if err := r.SetRate(test.clock, test.rate); err != nil {
			t.Errorf("SetRate(%v, %d) failed: %v", name, test.rate, err)
			continue
		}
		if got := sim.Peek(cscdr1) & test.mask; got != test.reg {
			t.Errorf("SetRate(%v, %d) CSCDR1, got: %08X, want %08X", name, test.rate, got, test.reg)
		}
		if got := r.Rate(test.clock); got != test.rate {
			t.Errorf("rate of %v, got: %d, want %d", name, got, test.rate)
		}
		if got := r.Rate(test.also); got != test.rate {
			t.Errorf("rate of %v, got: %d, want %d", r.ID(test.also), got, test.rate)
		}
	}
}

func TestIllegalParentIsFatal(t *testing.T) {
	chip, sim := bootMX51(t, nil)
	r, c := chip.Registry, chip.Clocks
	func() {
		defer func() {
			f, ok := recover().(*clk.Fault)
			if !ok || f.Kind != clk.FaultTopology {
				t.Errorf("got: %v, want a topology fault", f)
			}
		}()
		r.SetParent(c.UARTRoot, c.DDR)
	}()
	if w := sim.WritesTo(mx51CCM.reg(MXC_CCM_CSCMR1)); len(w) != 0 {
		t.Errorf("CSCMR1 written after illegal parent: %08X", w)
	}
	// A NoClock hole in the candidate list is never selectable either.
	func() {
		defer func() {
			if _, ok := recover().(*clk.Fault); !ok {
				t.Errorf("PLL4 selected on an MX51")
			}
		}()
		r.SetParent(c.DI0, c.PLL4)
	}()
}

func TestBoardDefaultErrors(t *testing.T) {
	board := Babbage
	board.Defaults = []Default{{Clock: clk.Named("no_such_clk"), Rate: 1}}
	if _, err := InitMX51(NewSim(&MX51), board, clk.Config{}); err == nil {
		t.Errorf("Init with an unknown default clock succeeded")
	}
	board.Defaults = []Default{{Clock: clk.Named("uart_root_clk"), Rate: 7}}
	if _, err := InitMX51(NewSim(&MX51), board, clk.Config{}); err == nil {
		t.Errorf("Init with an impossible default rate succeeded")
	}
}

func TestVariantByName(t *testing.T) {
	tests := []struct {
		name string
		want *Variant
	}{
		{"mx51", &MX51},
		{"i.MX53", &MX53},
		{"imx51", &MX51},
		{"mx6", nil},
	}
	for _, test := range tests {
		got, err := VariantByName(test.name)
		if (err != nil) != (test.want == nil) || got != test.want {
			t.Errorf("VariantByName(%q), got: %v, %v", test.name, got, err)
		}
	}
}

func TestVariantFromCompatible(t *testing.T) {
	v, err := variantFromCompatible([]byte("fsl,imx53-qsb\x00fsl,imx53\x00"))
	if err != nil || v != &MX53 {
		t.Errorf("got: %v, %v, want MX53", v, err)
	}
	if _, err := variantFromCompatible([]byte("fsl,imx6q\x00")); err == nil {
		t.Errorf("i.MX6 identified as an i.MX5")
	}
}
