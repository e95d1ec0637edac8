package clk

import (
	"strings"
	"testing"
	"time"

	"github.com/Jon-Bright/mx5clk/regio"
	"github.com/pkg/errors"
)

const testPLL = regio.Addr(0x1000)

func TestPLLRateOneGigahertz(t *testing.T) {
	s := PLLSettings{Doubler: true, PDF: 0, MFI: 10, MFD: 11, MFN: 5}
	if got := PLLRate(24000000, s); got != 1000000000 {
		t.Errorf("PLLRate, got: %d, want: 1000000000", got)
	}
	s.MFN = -5
	if got := PLLRate(24000000, s); got != 920000000 {
		t.Errorf("PLLRate with negative MFN, got: %d, want: 920000000", got)
	}
	s = PLLSettings{Doubler: false, PDF: 1, MFI: 2, MFD: 0, MFN: 0}
	if got := PLLRate(24000000, s); got != 120000000 {
		t.Errorf("PLLRate with MFI below 5, got: %d, want: 120000000", got)
	}
}

func TestDecodeMFN(t *testing.T) {
	tests := []struct {
		raw  uint32
		want int32
	}{
		{0, 0},
		{5, 5},
		{0x03FFFFFF, 0x03FFFFFF},
		{0x04000000, -0x04000000},
		{0x07FFFFFF, -1},
		{0xF7FFFFFF, -1},
	}
	for _, test := range tests {
		if got := DecodeMFN(test.raw); got != test.want {
			t.Errorf("DecodeMFN(%08X), got: %d, want: %d", test.raw, got, test.want)
		}
		if test.raw <= MXC_PLL_DP_MFN_MASK {
			if got := EncodeMFN(test.want); got != test.raw {
				t.Errorf("EncodeMFN(%d), got: %08X, want: %08X", test.want, got, test.raw)
			}
		}
	}
}

func TestSolvePLLRoundTrip(t *testing.T) {
	for _, parent := range []uint64{24000000, 26000000} {
		for _, target := range []uint64{1000000000, 800000000, 665000000, 533000000, 400000000, 216000000} {
			s, err := SolvePLL(parent, target)
			if err != nil {
				t.Errorf("SolvePLL(%d, %d) failed: %v", parent, target, err)
				continue
			}
			if !s.Doubler || s.MFD != PLL_MFD_FIXED {
				t.Errorf("SolvePLL(%d, %d), got: %+v, want doubler on and MFD %d", parent, target, s, PLL_MFD_FIXED)
			}
			if s.MFI < PLL_MFI_MIN || s.MFI > PLL_MFI_MAX || s.PDF > PLL_PDF_MAX {
				t.Errorf("SolvePLL(%d, %d), got: %+v, fields out of range", parent, target, s)
			}
			got := PLLRate(parent, s)
			tol := s.refRate(parent)/(uint64(s.MFD)+1) + 1
			if d := rateDiff(got, target); d > tol {
				t.Errorf("PLLRate(SolvePLL(%d, %d)), got: %d, off by %d, tolerance %d", parent, target, got, d, tol)
			}
		}
	}
}

func TestSolvePLLSmallTargetRaisesPDF(t *testing.T) {
	s, err := SolvePLL(24000000, 400000000)
	if err != nil {
		t.Fatalf("SolvePLL failed: %v", err)
	}
	if s.PDF != 1 || s.MFI != 8 {
		t.Errorf("SolvePLL(24MHz, 400MHz), got: PDF %d MFI %d, want: PDF 1 MFI 8", s.PDF, s.MFI)
	}
}

func TestSolvePLLOutOfRange(t *testing.T) {
	for _, target := range []uint64{0, 20000000, 2000000000} {
		if _, err := SolvePLL(24000000, target); errors.Cause(err) != ErrPLLRange {
			t.Errorf("SolvePLL(24MHz, %d), got err: %v, want ErrPLLRange", target, err)
		}
	}
	lo, hi := PLLRange(24000000)
	for _, target := range []uint64{lo, hi} {
		if _, err := SolvePLL(24000000, target); err != nil {
			t.Errorf("SolvePLL(24MHz, %d) at range edge failed: %v", target, err)
		}
	}
}

func rateDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// relockingPLL makes the sim's PLL drop lock on every control write and
// reacquire it on a restart pulse.
func relockingPLL(sim *regio.Sim) {
	sim.OnWrite(testPLL+MXC_PLL_DP_CTL, func(old, v uint32) uint32 {
		if v&MXC_PLL_DP_CTL_RST != 0 {
			return v&^MXC_PLL_DP_CTL_RST | MXC_PLL_DP_CTL_LRF
		}
		return v &^ MXC_PLL_DP_CTL_LRF
	})
}

func newTestPLL(t *testing.T, cfg Config) (*Registry, *regio.Sim, Handle) {
	sim := regio.NewSim()
	r := NewRegistry(sim, cfg)
	osc := mustRegister(t, r, Spec{ID: Named("osc"), Kind: &Fixed{Hz: 24000000}})
	pll := mustRegister(t, r, Spec{ID: Named("pll1_main_clk"), Parent: osc, Kind: &Pll{Base: testPLL}})
	sim.Poke(testPLL+MXC_PLL_DP_CTL, MXC_PLL_DP_CTL_DPDCK0_2_EN|MXC_PLL_DP_CTL_UPEN|MXC_PLL_DP_CTL_LRF)
	sim.Poke(testPLL+MXC_PLL_DP_OP, 10<<MXC_PLL_DP_OP_MFI_OFFSET)
	sim.Poke(testPLL+MXC_PLL_DP_MFD, 11)
	sim.Poke(testPLL+MXC_PLL_DP_MFN, 5)
	return r, sim, pll
}

func TestPllRecalc(t *testing.T) {
	r, sim, pll := newTestPLL(t, Config{})
	r.PropagateAll()
	if got := r.Rate(pll); got != 1000000000 {
		t.Errorf("rate, got: %d, want: 1000000000", got)
	}

	// In HFS mode the alternate register set is live.
	sim.Poke(testPLL+MXC_PLL_DP_CTL, sim.Peek(testPLL+MXC_PLL_DP_CTL)|MXC_PLL_DP_CTL_HFSM)
	sim.Poke(testPLL+MXC_PLL_DP_HFS_OP, 8<<MXC_PLL_DP_OP_MFI_OFFSET)
	sim.Poke(testPLL+MXC_PLL_DP_HFS_MFD, 2)
	sim.Poke(testPLL+MXC_PLL_DP_HFS_MFN, 1)
	r.Propagate(pll)
	if got := r.Rate(pll); got != 800000000 {
		t.Errorf("HFS rate, got: %d, want: 800000000", got)
	}
	s, err := r.PLLSettings(pll)
	if err != nil {
		t.Fatalf("PLLSettings failed: %v", err)
	}
	if want := (PLLSettings{Doubler: true, MFI: 8, MFD: 2, MFN: 1}); s != want {
		t.Errorf("PLLSettings, got: %+v, want: %+v", s, want)
	}
}

func TestPllSetRateRestarts(t *testing.T) {
	r, sim, pll := newTestPLL(t, Config{})
	relockingPLL(sim)
	r.PropagateAll()
	if err := r.SetRate(pll, 800000000); err != nil {
		t.Fatalf("SetRate failed: %v", err)
	}
	if got := r.Rate(pll); rateDiff(got, 800000000) > 97 {
		t.Errorf("rate, got: %d, want: 800000000", got)
	}
	if got := sim.Peek(testPLL + MXC_PLL_DP_OP); got != 8<<MXC_PLL_DP_OP_MFI_OFFSET {
		t.Errorf("DP_OP, got: %08X, want: %08X", got, 8<<MXC_PLL_DP_OP_MFI_OFFSET)
	}
	ctl := sim.WritesTo(testPLL + MXC_PLL_DP_CTL)
	if len(ctl) == 0 || ctl[len(ctl)-1]&MXC_PLL_DP_CTL_RST == 0 {
		t.Errorf("DP_CTL writes, got: %08X, want a final restart pulse", ctl)
	}
}

func TestPllSetRateAutoRestart(t *testing.T) {
	r, sim, pll := newTestPLL(t, Config{})
	sim.Poke(testPLL+MXC_PLL_DP_CONFIG, MXC_PLL_DP_CONFIG_AREN)
	r.PropagateAll()
	if err := r.SetRate(pll, 665000000); err != nil {
		t.Fatalf("SetRate failed: %v", err)
	}
	for _, v := range sim.WritesTo(testPLL + MXC_PLL_DP_CTL) {
		if v&MXC_PLL_DP_CTL_RST != 0 {
			t.Errorf("DP_CTL write %08X restarts a PLL with auto-restart on", v)
		}
	}
}

func TestPllSetRateOutOfRangeIsFatal(t *testing.T) {
	r, sim, pll := newTestPLL(t, Config{})
	r.PropagateAll()
	expectFault(t, FaultTopology, func() { r.SetRate(pll, 2000000000) })
	if w := sim.Writes(); len(w) != 0 {
		t.Errorf("writes after rejected PLL rate, got: %v, want none", w)
	}
	// The registry lock is released by the fault.
	if got := r.Rate(pll); got != 1000000000 {
		t.Errorf("rate after fault, got: %d, want: 1000000000", got)
	}
}

func TestPllLockTimeout(t *testing.T) {
	start := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := &fakeClock{t: start, step: 100 * time.Microsecond}
	r, sim, pll := newTestPLL(t, Config{Timeout: time.Millisecond, Now: fc.Now})
	sim.OnWrite(testPLL+MXC_PLL_DP_CTL, func(old, v uint32) uint32 {
		return v &^ MXC_PLL_DP_CTL_LRF
	})
	r.PropagateAll()
	f := expectFault(t, FaultTimeout, func() { r.SetRate(pll, 800000000) })
	if got := fc.last.Sub(start); got != time.Millisecond {
		t.Errorf("time waited, got: %v, want: %v", got, time.Millisecond)
	}
	if f.Clock != "pll1_main_clk" || !strings.Contains(f.Msg, "waited 1ms") {
		t.Errorf("fault, got: %v", f)
	}
}

func TestProgramPLL(t *testing.T) {
	r, sim, pll := newTestPLL(t, Config{})
	relockingPLL(sim)
	r.PropagateAll()
	s := PLLSettings{Doubler: true, MFI: 6, MFD: 47, MFN: 44}
	if err := r.ProgramPLL(pll, s); err != nil {
		t.Fatalf("ProgramPLL failed: %v", err)
	}
	if got := r.Rate(pll); got != 664000000 {
		t.Errorf("rate, got: %d, want: 664000000", got)
	}
	ctl := sim.WritesTo(testPLL + MXC_PLL_DP_CTL)
	if len(ctl) < 3 || ctl[0]&MXC_PLL_DP_CTL_UPEN != 0 || ctl[len(ctl)-1]&MXC_PLL_DP_CTL_RST == 0 {
		t.Errorf("DP_CTL writes, got: %08X, want UPEN cleared first and a restart last", ctl)
	}
	expectFault(t, FaultTopology, func() { r.ProgramPLL(pll, PLLSettings{MFI: 3}) })

	osc := r.MustLookup(Named("osc"))
	if err := r.ProgramPLL(osc, s); errors.Cause(err) != ErrNotSupported {
		t.Errorf("ProgramPLL on a fixed clock, got err: %v, want ErrNotSupported", err)
	}
}
