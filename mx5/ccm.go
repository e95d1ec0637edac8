package mx5

import (
	"github.com/Jon-Bright/mx5clk/clk"
	"github.com/Jon-Bright/mx5clk/regio"
)

// CCM register offsets.
const (
	MXC_CCM_CCR    = 0x00
	MXC_CCM_CCSR   = 0x0C
	MXC_CCM_CACRR  = 0x10
	MXC_CCM_CBCDR  = 0x14
	MXC_CCM_CBCMR  = 0x18
	MXC_CCM_CSCMR1 = 0x1C
	MXC_CCM_CSCMR2 = 0x20
	MXC_CCM_CSCDR1 = 0x24
	MXC_CCM_CDHIPR = 0x48
	MXC_CCM_CLPCR  = 0x54
	MXC_CCM_CCGR0  = 0x68

	MXC_CCM_CCGR_COUNT = 7
	MXC_CCM_WINDOW     = 0x1000
)

// CCSR
const (
	MXC_CCM_CCSR_LP_APM_SEL      = 9
	MXC_CCM_CCSR_STEP_SEL        = 7
	MXC_CCM_CCSR_PLL1_SW_CLK_SEL = 2
)

// CBCDR
const (
	MXC_CCM_CBCDR_DDR_HF_SEL     = 30
	MXC_CCM_CBCDR_DDR_PODF       = 27
	MXC_CCM_CBCDR_EMI_CLK_SEL    = 26
	MXC_CCM_CBCDR_PERIPH_CLK_SEL = 25
	MXC_CCM_CBCDR_EMI_PODF       = 22
	MXC_CCM_CBCDR_AXI_B_PODF     = 19
	MXC_CCM_CBCDR_AXI_A_PODF     = 16
	MXC_CCM_CBCDR_NFC_PODF       = 13
	MXC_CCM_CBCDR_AHB_PODF       = 10
	MXC_CCM_CBCDR_IPG_PODF       = 8
)

// CBCMR
const (
	MXC_CCM_CBCMR_PERIPH_APM_SEL = 12
	MXC_CCM_CBCMR_DDR_CLK_SEL    = 10
)

// CSCMR1, CSCMR2, CSCDR1
const (
	MXC_CCM_CSCMR1_UART_CLK_SEL   = 24
	MXC_CCM_CSCMR1_ESDHC1_CLK_SEL = 20
	MXC_CCM_CSCMR2_DI0_CLK_SEL    = 26

	MXC_CCM_CSCDR1_ESDHC1_PRED = 16
	MXC_CCM_CSCDR1_ESDHC1_PODF = 11
	MXC_CCM_CSCDR1_UART_PRED   = 3
	MXC_CCM_CSCDR1_UART_PODF   = 0
)

// CDHIPR busy bits, set while a divider or mux change is in progress.
const (
	MXC_CCM_CDHIPR_ARM_PODF_BUSY       = 1 << 16
	MXC_CCM_CDHIPR_DDR_PODF_BUSY       = 1 << 7
	MXC_CCM_CDHIPR_EMI_CLK_SEL_BUSY    = 1 << 6
	MXC_CCM_CDHIPR_PERIPH_CLK_SEL_BUSY = 1 << 5
	MXC_CCM_CDHIPR_NFC_PODF_BUSY       = 1 << 4
	MXC_CCM_CDHIPR_AHB_PODF_BUSY       = 1 << 3
	MXC_CCM_CDHIPR_EMI_PODF_BUSY       = 1 << 2
	MXC_CCM_CDHIPR_AXI_B_PODF_BUSY     = 1 << 1
	MXC_CCM_CDHIPR_AXI_A_PODF_BUSY     = 1 << 0
)

// CLPCR low-power handshake bypass bits.
const (
	MXC_CCM_CLPCR_BYPASS_SDMA_LPM_HS = 1 << 22
	MXC_CCM_CLPCR_BYPASS_IPU_LPM_HS  = 1 << 18
)

// ccm addresses registers relative to one chip's CCM base.
type ccm regio.Addr

func (c ccm) reg(off regio.Addr) regio.Addr {
	return regio.Addr(c) + off
}

func (c ccm) field(off regio.Addr, shift, width uint) clk.Field {
	return clk.Field{Reg: c.reg(off), Shift: shift, Width: width}
}

func (c ccm) busy(mask uint32) clk.Status {
	return clk.Status{Reg: c.reg(MXC_CCM_CDHIPR), Mask: mask}
}

func (c ccm) bypass(mask uint32) clk.Status {
	return clk.Status{Reg: c.reg(MXC_CCM_CLPCR), Mask: mask}
}

func (c ccm) ccgr(n int) regio.Addr {
	return c.reg(MXC_CCM_CCGR0 + regio.Addr(4*n))
}

// gate is clock gate cg of CCGRn.
func (c ccm) gate(n, cg int) clk.Field {
	return clk.Field{Reg: c.ccgr(n), Shift: uint(cg * clk.CG_WIDTH), Width: clk.CG_WIDTH}
}
