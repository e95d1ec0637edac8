package mx5

import (
	"github.com/Jon-Bright/mx5clk/clk"
)

// Clocks holds the handles of the clocks the boot sequence and the CPU
// frequency switch need by name. Everything is also reachable through
// Registry.Lookup.
type Clocks struct {
	Osc, Ckih, Ckih2, Ckil clk.Handle

	PLL1, PLL2, PLL3, PLL4 clk.Handle
	LPAPM, Step, PLL1SW    clk.Handle
	CPU                    clk.Handle

	PeriphAPM, MainBus, AXIA, AXIB, AHB, IPG clk.Handle
	EMISel, EMISlow, NFC                     clk.Handle
	DDRHF, DDRLF, DDR                        clk.Handle

	UARTRoot        clk.Handle
	UART, UARTIPG   [3]clk.Handle
	ESDHC, ESDHCIPG clk.Handle
	IPU, SDMA, DI0  clk.Handle
}

type builder struct {
	r   *clk.Registry
	err error
}

func (b *builder) add(s clk.Spec) clk.Handle {
	if b.err != nil {
		return clk.NoClock
	}
	h, err := b.r.Register(s)
	if err != nil {
		b.err = err
	}
	return h
}

func named(name string, parent clk.Handle, kind clk.Kind) clk.Spec {
	return clk.Spec{ID: clk.Named(name), Parent: parent, Flags: clk.RatePropagates, Kind: kind}
}

// register builds the clock tree, parents first. Initial parents are the
// reset defaults; SyncParents corrects them from the hardware afterwards.
func register(r *clk.Registry, v *Variant, board Board) (Clocks, error) {
	var c Clocks
	b := &builder{r: r}
	m := ccm(v.CCMBase)

	root := func(name string, hz uint64) clk.Handle {
		return b.add(clk.Spec{ID: clk.Named(name), Kind: &clk.Fixed{Hz: hz}})
	}
	c.Osc = root("osc", board.Osc)
	c.Ckih = root("ckih", board.Ckih)
	c.Ckih2 = root("ckih2", board.Ckih2)
	c.Ckil = root("ckil", board.Ckil)

	c.PLL1 = b.add(named("pll1_main_clk", c.Osc, &clk.Pll{Base: v.PLLBases[0]}))
	c.PLL2 = b.add(named("pll2_sw_clk", c.Osc, &clk.Pll{Base: v.PLLBases[1]}))
	c.PLL3 = b.add(named("pll3_sw_clk", c.Osc, &clk.Pll{Base: v.PLLBases[2]}))
	if len(v.PLLBases) > 3 {
		c.PLL4 = b.add(named("pll4_sw_clk", c.Osc, &clk.Pll{Base: v.PLLBases[3]}))
	}

	c.LPAPM = b.add(named("lp_apm_clk", c.Osc, &clk.Mux{
		Sel:     m.field(MXC_CCM_CCSR, MXC_CCM_CCSR_LP_APM_SEL, 1),
		Parents: []clk.Handle{c.Osc, c.Ckil},
	}))
	c.Step = b.add(named("step_clk", c.LPAPM, &clk.Mux{
		Sel:     m.field(MXC_CCM_CCSR, MXC_CCM_CCSR_STEP_SEL, 2),
		Parents: []clk.Handle{c.LPAPM, clk.NoClock, c.PLL2, c.PLL3},
	}))
	c.PLL1SW = b.add(named("pll1_sw_clk", c.PLL1, &clk.Mux{
		Sel:     m.field(MXC_CCM_CCSR, MXC_CCM_CCSR_PLL1_SW_CLK_SEL, 1),
		Parents: []clk.Handle{c.PLL1, c.Step},
	}))
	c.CPU = b.add(named("cpu_clk", c.PLL1SW, &clk.Divider{
		Field: m.field(MXC_CCM_CACRR, 0, 3),
		Busy:  m.busy(MXC_CCM_CDHIPR_ARM_PODF_BUSY),
	}))

	c.PeriphAPM = b.add(named("periph_apm_clk", c.PLL1SW, &clk.Mux{
		Sel:     m.field(MXC_CCM_CBCMR, MXC_CCM_CBCMR_PERIPH_APM_SEL, 2),
		Parents: []clk.Handle{c.PLL1SW, c.PLL3, c.LPAPM},
	}))
	c.MainBus = b.add(named("main_bus_clk", c.PLL2, &clk.Mux{
		Sel:     m.field(MXC_CCM_CBCDR, MXC_CCM_CBCDR_PERIPH_CLK_SEL, 1),
		Parents: []clk.Handle{c.PLL2, c.PeriphAPM},
		Busy:    m.busy(MXC_CCM_CDHIPR_PERIPH_CLK_SEL_BUSY),
	}))
	div := func(name string, parent clk.Handle, shift, width uint, busy uint32) clk.Handle {
		d := &clk.Divider{Field: m.field(MXC_CCM_CBCDR, shift, width)}
		if busy != 0 {
			d.Busy = m.busy(busy)
		}
		return b.add(named(name, parent, d))
	}
	c.AXIA = div("axi_a_clk", c.MainBus, MXC_CCM_CBCDR_AXI_A_PODF, 3, MXC_CCM_CDHIPR_AXI_A_PODF_BUSY)
	c.AXIB = div("axi_b_clk", c.MainBus, MXC_CCM_CBCDR_AXI_B_PODF, 3, MXC_CCM_CDHIPR_AXI_B_PODF_BUSY)
	c.AHB = div("ahb_clk", c.MainBus, MXC_CCM_CBCDR_AHB_PODF, 3, MXC_CCM_CDHIPR_AHB_PODF_BUSY)
	c.IPG = div("ipg_clk", c.AHB, MXC_CCM_CBCDR_IPG_PODF, 2, 0)

	c.EMISel = b.add(named("emi_sel_clk", c.MainBus, &clk.Mux{
		Sel:     m.field(MXC_CCM_CBCDR, MXC_CCM_CBCDR_EMI_CLK_SEL, 1),
		Parents: []clk.Handle{c.MainBus, c.AHB},
		Busy:    m.busy(MXC_CCM_CDHIPR_EMI_CLK_SEL_BUSY),
	}))
	c.EMISlow = div("emi_slow_clk", c.EMISel, MXC_CCM_CBCDR_EMI_PODF, 3, MXC_CCM_CDHIPR_EMI_PODF_BUSY)
	c.NFC = div("nfc_clk", c.EMISlow, MXC_CCM_CBCDR_NFC_PODF, 3, MXC_CCM_CDHIPR_NFC_PODF_BUSY)

	c.DDRHF = div("ddr_hf_clk", c.PLL1SW, MXC_CCM_CBCDR_DDR_PODF, 3, MXC_CCM_CDHIPR_DDR_PODF_BUSY)
	c.DDRLF = b.add(named("ddr_lf_clk", c.AXIA, &clk.Mux{
		Sel:     m.field(MXC_CCM_CBCMR, MXC_CCM_CBCMR_DDR_CLK_SEL, 2),
		Parents: []clk.Handle{c.AXIA, c.AXIB, c.EMISlow, c.AHB},
	}))
	c.DDR = b.add(named("ddr_clk", c.DDRHF, &clk.Mux{
		Sel:     m.field(MXC_CCM_CBCDR, MXC_CCM_CBCDR_DDR_HF_SEL, 1),
		Parents: []clk.Handle{c.DDRLF, c.DDRHF},
	}))

	c.UARTRoot = b.add(named("uart_root_clk", c.PLL3, &clk.MuxDivider{
		Mux: clk.Mux{
			Sel:     m.field(MXC_CCM_CSCMR1, MXC_CCM_CSCMR1_UART_CLK_SEL, 2),
			Parents: []clk.Handle{c.PLL1SW, c.PLL2, c.PLL3, c.LPAPM},
		},
		CompositeDivider: clk.CompositeDivider{
			Pre:  m.field(MXC_CCM_CSCDR1, MXC_CCM_CSCDR1_UART_PRED, 3),
			Post: m.field(MXC_CCM_CSCDR1, MXC_CCM_CSCDR1_UART_PODF, 3),
		},
	}))
	for i := range c.UART {
		c.UARTIPG[i] = b.add(clk.Spec{
			ID:     clk.ID{Name: "uart_ipg_clk", Index: i},
			Parent: c.IPG,
			Flags:  clk.RatePropagates,
			Kind:   &clk.Gate{CG: m.gate(1, 3+2*i)},
		})
		c.UART[i] = b.add(clk.Spec{
			ID:        clk.ID{Name: "uart_clk", Index: i},
			Parent:    c.UARTRoot,
			Secondary: c.UARTIPG[i],
			Flags:     clk.RatePropagates,
			Kind:      &clk.Gate{CG: m.gate(1, 4+2*i)},
		})
	}

	c.ESDHCIPG = b.add(clk.Spec{
		ID:     clk.ID{Name: "esdhc_ipg_clk", Index: 0},
		Parent: c.IPG,
		Flags:  clk.RatePropagates,
		Kind:   &clk.Gate{CG: m.gate(3, 0)},
	})
	c.ESDHC = b.add(clk.Spec{
		ID:        clk.ID{Name: "esdhc_clk", Index: 0},
		Parent:    c.PLL2,
		Secondary: c.ESDHCIPG,
		Flags:     clk.RatePropagates | clk.AHBMedSetPoint | clk.CPUFreqTrigUpdate,
		Kind: &clk.MuxDivider{
			Mux: clk.Mux{
				Sel:     m.field(MXC_CCM_CSCMR1, MXC_CCM_CSCMR1_ESDHC1_CLK_SEL, 2),
				Parents: []clk.Handle{c.PLL1SW, c.PLL2, c.PLL3, c.LPAPM},
			},
			CompositeDivider: clk.CompositeDivider{
				Pre:  m.field(MXC_CCM_CSCDR1, MXC_CCM_CSCDR1_ESDHC1_PRED, 3),
				Post: m.field(MXC_CCM_CSCDR1, MXC_CCM_CSCDR1_ESDHC1_PODF, 3),
			},
			Gate: clk.Gate{CG: m.gate(3, 1)},
		},
	})

	c.IPU = b.add(clk.Spec{
		ID:     clk.Named("ipu_clk"),
		Parent: c.AHB,
		Flags:  clk.RatePropagates | clk.AHBHighSetPoint | clk.CPUFreqTrigUpdate,
		Kind: &clk.Gate{
			CG:     m.gate(5, 5),
			Bypass: m.bypass(MXC_CCM_CLPCR_BYPASS_IPU_LPM_HS),
		},
	})
	c.SDMA = b.add(clk.Spec{
		ID:     clk.Named("sdma_clk"),
		Parent: c.AHB,
		Flags:  clk.RatePropagates,
		Kind: &clk.Gate{
			CG:     m.gate(4, 15),
			Bypass: m.bypass(MXC_CCM_CLPCR_BYPASS_SDMA_LPM_HS),
		},
	})
	// PLL4 only exists on the MX53; its selector code is unusable on the
	// MX51, where c.PLL4 is NoClock.
	c.DI0 = b.add(named("ipu_di0_clk", c.PLL3, &clk.MuxDivider{
		Mux: clk.Mux{
			Sel:     m.field(MXC_CCM_CSCMR2, MXC_CCM_CSCMR2_DI0_CLK_SEL, 3),
			Parents: []clk.Handle{c.PLL3, c.Osc, c.Ckih, c.PLL4, clk.NoClock, clk.NoClock},
		},
		Gate: clk.Gate{CG: m.gate(6, 5)},
	}))
	return c, b.err
}
