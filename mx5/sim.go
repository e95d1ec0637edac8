package mx5

import (
	"github.com/Jon-Bright/mx5clk/clk"
	"github.com/Jon-Bright/mx5clk/regio"
)

type simPLL struct {
	pdf, mfi, mfd, mfn uint32
}

// Reset programming left behind by the boot loader: PLL1 800 MHz, PLL2
// 665 MHz, PLL3 216 MHz and, on the MX53, PLL4 455 MHz, all from 24 MHz.
var simPLLs = []simPLL{
	{0, 8, 2, 1},
	{0, 6, 95, 89},
	{3, 9, 0, 0},
	{1, 9, 47, 23},
}

// NewSim returns a simulated register file for v in the state a boot loader
// leaves it in: DDR on the PLL1 high-frequency tap, every gate on and every
// low-power handshake bypassed. PLLs relock on a restart pulse or when
// re-enabled, and each divider or mux change in CBCDR or CACRR reads busy
// once.
func NewSim(v *Variant) *regio.Sim {
	sim := regio.NewSim()
	for i, base := range v.PLLBases {
		p := simPLLs[i]
		sim.Poke(base+clk.MXC_PLL_DP_CTL, clk.MXC_PLL_DP_CTL_DPDCK0_2_EN|clk.MXC_PLL_DP_CTL_UPEN|clk.MXC_PLL_DP_CTL_LRF)
		sim.Poke(base+clk.MXC_PLL_DP_CONFIG, clk.MXC_PLL_DP_CONFIG_AREN)
		sim.Poke(base+clk.MXC_PLL_DP_OP, p.mfi<<clk.MXC_PLL_DP_OP_MFI_OFFSET|p.pdf)
		sim.Poke(base+clk.MXC_PLL_DP_MFD, p.mfd)
		sim.Poke(base+clk.MXC_PLL_DP_MFN, p.mfn)
		sim.OnWrite(base+clk.MXC_PLL_DP_CTL, simPLLControl)
	}

	m := ccm(v.CCMBase)
	sim.Poke(m.reg(MXC_CCM_CBCDR), 1<<MXC_CCM_CBCDR_DDR_HF_SEL|
		3<<MXC_CCM_CBCDR_DDR_PODF|
		4<<MXC_CCM_CBCDR_EMI_PODF|
		4<<MXC_CCM_CBCDR_AXI_B_PODF|
		4<<MXC_CCM_CBCDR_AXI_A_PODF|
		3<<MXC_CCM_CBCDR_NFC_PODF|
		4<<MXC_CCM_CBCDR_AHB_PODF|
		1<<MXC_CCM_CBCDR_IPG_PODF)
	sim.Poke(m.reg(MXC_CCM_CSCMR1), 2<<MXC_CCM_CSCMR1_UART_CLK_SEL)
	sim.Poke(m.reg(MXC_CCM_CSCMR2), 1<<MXC_CCM_CSCMR2_DI0_CLK_SEL)
	sim.Poke(m.reg(MXC_CCM_CSCDR1), 1<<MXC_CCM_CSCDR1_ESDHC1_PRED|
		1<<MXC_CCM_CSCDR1_ESDHC1_PODF|
		3<<MXC_CCM_CSCDR1_UART_PODF)
	sim.Poke(m.reg(MXC_CCM_CLPCR), MXC_CCM_CLPCR_BYPASS_IPU_LPM_HS|MXC_CCM_CLPCR_BYPASS_SDMA_LPM_HS)
	for i := 0; i < MXC_CCM_CCGR_COUNT; i++ {
		sim.Poke(m.ccgr(i), 0xFFFFFFFF)
	}

	var busy uint32
	sim.OnWrite(m.reg(MXC_CCM_CACRR), func(old, val uint32) uint32 {
		busy |= MXC_CCM_CDHIPR_ARM_PODF_BUSY
		return val
	})
	sim.OnWrite(m.reg(MXC_CCM_CBCDR), func(old, val uint32) uint32 {
		busy |= 0xFF
		return val
	})
	sim.OnRead(m.reg(MXC_CCM_CDHIPR), func(val uint32) (uint32, uint32) {
		seen := val | busy
		busy = 0
		return seen, val
	})
	return sim
}

// simPLLControl models DP_CTL: lock is lost while UPEN is clear and regained
// on a restart pulse or when UPEN is set again.
func simPLLControl(old, v uint32) uint32 {
	switch {
	case v&clk.MXC_PLL_DP_CTL_UPEN == 0:
		return v &^ (clk.MXC_PLL_DP_CTL_LRF | clk.MXC_PLL_DP_CTL_RST)
	case v&clk.MXC_PLL_DP_CTL_RST != 0, old&clk.MXC_PLL_DP_CTL_UPEN == 0:
		return v&^clk.MXC_PLL_DP_CTL_RST | clk.MXC_PLL_DP_CTL_LRF
	}
	return v&^clk.MXC_PLL_DP_CTL_LRF | old&clk.MXC_PLL_DP_CTL_LRF
}
