package clk

import (
	"github.com/Jon-Bright/mx5clk/regio"
	"github.com/pkg/errors"
)

// DPLL register offsets from a PLL's base address.
const (
	MXC_PLL_DP_CTL     = 0x00
	MXC_PLL_DP_CONFIG  = 0x04
	MXC_PLL_DP_OP      = 0x08
	MXC_PLL_DP_MFD     = 0x0C
	MXC_PLL_DP_MFN     = 0x10
	MXC_PLL_DP_HFS_OP  = 0x1C
	MXC_PLL_DP_HFS_MFD = 0x20
	MXC_PLL_DP_HFS_MFN = 0x24
	MXC_PLL_WINDOW     = 0x28
)

const (
	MXC_PLL_DP_CTL_DPDCK0_2_EN = 1 << 12
	MXC_PLL_DP_CTL_HFSM        = 1 << 7
	MXC_PLL_DP_CTL_UPEN        = 1 << 5
	MXC_PLL_DP_CTL_RST         = 1 << 4
	MXC_PLL_DP_CTL_LRF         = 1 << 0

	MXC_PLL_DP_CONFIG_AREN = 1 << 1

	MXC_PLL_DP_OP_MFI_OFFSET = 4
	MXC_PLL_DP_OP_MFI_MASK   = 0xF << MXC_PLL_DP_OP_MFI_OFFSET
	MXC_PLL_DP_OP_PDF_MASK   = 0xF

	MXC_PLL_DP_MFD_MASK = 0x07FFFFFF
	MXC_PLL_DP_MFN_MASK = 0x07FFFFFF
	MXC_PLL_DP_MFN_SIGN = 0x04000000
)

const (
	PLL_MFI_MIN = 5
	PLL_MFI_MAX = 15
	PLL_PDF_MAX = 15
	// SolvePLL always uses a fractional denominator of a million.
	PLL_MFD_FIXED = 999999
)

// PLLSettings is a DPLL programming: pre-divider, integer multiplier and
// signed fraction MFN/(MFD+1), applied to the parent rate times 2, or 4 with
// the doubler on.
type PLLSettings struct {
	Doubler bool
	PDF     uint32
	MFI     uint32
	MFD     uint32
	MFN     int32
}

// DecodeMFN sign-extends the 27-bit MFN register field.
func DecodeMFN(raw uint32) int32 {
	raw &= MXC_PLL_DP_MFN_MASK
	if raw&MXC_PLL_DP_MFN_SIGN != 0 {
		raw |= ^uint32(MXC_PLL_DP_MFN_MASK)
	}
	return int32(raw)
}

// EncodeMFN is the inverse of DecodeMFN.
func EncodeMFN(mfn int32) uint32 {
	return uint32(mfn) & MXC_PLL_DP_MFN_MASK
}

func (s PLLSettings) refRate(parentRate uint64) uint64 {
	mult := uint64(2)
	if s.Doubler {
		mult = 4
	}
	return parentRate * mult / uint64(s.PDF+1)
}

// PLLRate is the PLL's output rate for the given reference rate.
func PLLRate(parentRate uint64, s PLLSettings) uint64 {
	mfi := s.MFI
	if mfi < PLL_MFI_MIN {
		mfi = PLL_MFI_MIN
	}
	ref := s.refRate(parentRate)
	mfn := int64(s.MFN)
	neg := mfn < 0
	if neg {
		mfn = -mfn
	}
	den := uint64(s.MFD) + 1
	frac := (ref*uint64(mfn) + den/2) / den
	rate := ref * uint64(mfi)
	if neg {
		return rate - frac
	}
	return rate + frac
}

// SolvePLL finds settings producing target from parentRate with the doubler
// on. It raises the pre-divider until the multiplier reaches its hardware
// floor and fails if that leaves it above the 4-bit field.
func SolvePLL(parentRate, target uint64) (PLLSettings, error) {
	if parentRate == 0 || target == 0 {
		return PLLSettings{}, errors.Wrapf(ErrPLLRange, "%d Hz from %d Hz", target, parentRate)
	}
	quad := 4 * parentRate
	var pdf, mfi uint64
	for pdf = 0; pdf <= PLL_PDF_MAX; pdf++ {
		mfi = target * (pdf + 1) / quad
		if mfi >= PLL_MFI_MIN {
			break
		}
	}
	if mfi < PLL_MFI_MIN || mfi > PLL_MFI_MAX {
		return PLLSettings{}, errors.Wrapf(ErrPLLRange, "%d Hz from %d Hz needs MFI %d", target, parentRate, mfi)
	}
	s := PLLSettings{
		Doubler: true,
		PDF:     uint32(pdf),
		MFI:     uint32(mfi),
		MFD:     PLL_MFD_FIXED,
	}
	ref := s.refRate(parentRate)
	rem := target - ref*mfi
	den := uint64(PLL_MFD_FIXED) + 1
	s.MFN = int32((rem*den + ref/2) / ref)
	return s, nil
}

// PLLRange is the lowest and highest rate SolvePLL can reach from parentRate.
func PLLRange(parentRate uint64) (lo, hi uint64) {
	quad := 4 * parentRate
	return ceilDiv(quad*PLL_MFI_MIN, PLL_PDF_MAX+1), quad * PLL_MFI_MAX
}

// Pll is a fractional-N DPLL with its register window at Base.
type Pll struct {
	Base regio.Addr
}

func (p *Pll) kindName() string { return "pll" }

func (p *Pll) settings(b regio.Bus) PLLSettings {
	ctl := b.Read32(p.Base + MXC_PLL_DP_CTL)
	op, mfd, mfn := p.Base+MXC_PLL_DP_OP, p.Base+MXC_PLL_DP_MFD, p.Base+MXC_PLL_DP_MFN
	if ctl&MXC_PLL_DP_CTL_HFSM != 0 {
		op, mfd, mfn = p.Base+MXC_PLL_DP_HFS_OP, p.Base+MXC_PLL_DP_HFS_MFD, p.Base+MXC_PLL_DP_HFS_MFN
	}
	opv := b.Read32(op)
	return PLLSettings{
		Doubler: ctl&MXC_PLL_DP_CTL_DPDCK0_2_EN != 0,
		PDF:     opv & MXC_PLL_DP_OP_PDF_MASK,
		MFI:     (opv & MXC_PLL_DP_OP_MFI_MASK) >> MXC_PLL_DP_OP_MFI_OFFSET,
		MFD:     b.Read32(mfd) & MXC_PLL_DP_MFD_MASK,
		MFN:     DecodeMFN(b.Read32(mfn)),
	}
}

// write programs the normal (non-HFS) register set and selects it.
func (p *Pll) write(b regio.Bus, s PLLSettings) {
	var dbl uint32
	if s.Doubler {
		dbl = MXC_PLL_DP_CTL_DPDCK0_2_EN
	}
	regio.Modify(b, p.Base+MXC_PLL_DP_CTL, MXC_PLL_DP_CTL_HFSM|MXC_PLL_DP_CTL_DPDCK0_2_EN, dbl)
	b.Write32(p.Base+MXC_PLL_DP_OP, s.MFI<<MXC_PLL_DP_OP_MFI_OFFSET|s.PDF&MXC_PLL_DP_OP_PDF_MASK)
	b.Write32(p.Base+MXC_PLL_DP_MFD, s.MFD&MXC_PLL_DP_MFD_MASK)
	b.Write32(p.Base+MXC_PLL_DP_MFN, EncodeMFN(s.MFN))
}

func (p *Pll) relock(r *Registry, n *node) {
	regio.Modify(r.bus, p.Base+MXC_PLL_DP_CTL, 0, MXC_PLL_DP_CTL_RST)
	p.waitLock(r, n)
}

func (p *Pll) waitLock(r *Registry, n *node) {
	r.sync.Wait(p.Base+MXC_PLL_DP_CTL, MXC_PLL_DP_CTL_LRF, MXC_PLL_DP_CTL_LRF, n.id.String())
}

func (p *Pll) recalc(r *Registry, n *node, parentRate uint64) uint64 {
	return PLLRate(parentRate, p.settings(r.bus))
}

func (p *Pll) roundRate(parentRate, rate uint64) uint64 {
	lo, hi := PLLRange(parentRate)
	if rate < lo {
		rate = lo
	}
	if rate > hi {
		rate = hi
	}
	s, err := SolvePLL(parentRate, rate)
	if err != nil {
		return 0
	}
	return PLLRate(parentRate, s)
}

// setRate reprograms the PLL in place. Without auto-restart the new
// settings only take effect after a restart pulse.
func (p *Pll) setRate(r *Registry, n *node, parentRate, rate uint64) error {
	s, err := SolvePLL(parentRate, rate)
	if err != nil {
		Fatal(FaultTopology, n.id.String(), "%v", err)
	}
	p.write(r.bus, s)
	if r.bus.Read32(p.Base+MXC_PLL_DP_CONFIG)&MXC_PLL_DP_CONFIG_AREN == 0 {
		regio.Modify(r.bus, p.Base+MXC_PLL_DP_CTL, 0, MXC_PLL_DP_CTL_RST)
	}
	p.waitLock(r, n)
	return nil
}

// program is the full stop/write/restart sequence used when the PLL is
// not currently driving anything that matters.
func (p *Pll) program(r *Registry, n *node, s PLLSettings) {
	regio.Modify(r.bus, p.Base+MXC_PLL_DP_CTL, MXC_PLL_DP_CTL_UPEN, 0)
	p.write(r.bus, s)
	regio.Modify(r.bus, p.Base+MXC_PLL_DP_CTL, 0, MXC_PLL_DP_CTL_UPEN)
	p.relock(r, n)
}

func (p *Pll) enable(r *Registry, n *node) {
	regio.Modify(r.bus, p.Base+MXC_PLL_DP_CTL, 0, MXC_PLL_DP_CTL_UPEN)
	p.waitLock(r, n)
}

func (p *Pll) disable(r *Registry, n *node) {
	regio.Modify(r.bus, p.Base+MXC_PLL_DP_CTL, MXC_PLL_DP_CTL_UPEN, 0)
}
