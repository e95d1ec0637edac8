package cpufreq

import (
	"fmt"
	"log"
	"sort"

	"github.com/Jon-Bright/mx5clk/clk"
	"github.com/pkg/errors"
)

var (
	ErrNoWorkingPoint = errors.New("cpufreq: no working point reachable with this PLL1 rate")
	ErrUnknownRate    = errors.New("cpufreq: rate is not a working point")
	ErrBusy           = errors.New("cpufreq: another frequency change is in progress")
)

// WorkingPoint is one CPU operating point: the PLL1 programming, the ARM
// divider applied to it and the core voltage it needs.
type WorkingPoint struct {
	PLLRate uint64
	CPURate uint64
	// CPUPodf is the ARM_PODF field value, so the divider is CPUPodf+1.
	CPUPodf uint32
	PDF     uint32
	MFI     uint32
	MFD     uint32
	MFN     int32
	// CPUVoltage is in microvolts; zero leaves the regulator alone.
	CPUVoltage int
}

// PLLSettings returns the row's PLL1 programming.
func (wp WorkingPoint) PLLSettings() clk.PLLSettings {
	return clk.PLLSettings{
		Doubler: true,
		PDF:     wp.PDF,
		MFI:     wp.MFI,
		MFD:     wp.MFD,
		MFN:     wp.MFN,
	}
}

func (wp WorkingPoint) String() string {
	return fmt.Sprintf("%d MHz (PLL %d MHz / %d, %d mV)",
		wp.CPURate/1000000, wp.PLLRate/1000000, wp.CPUPodf+1, wp.CPUVoltage/1000)
}

// Table is the working point list, fastest first.
type Table []WorkingPoint

// Index returns the row running the CPU at exactly rate.
func (t Table) Index(rate uint64) (int, bool) {
	for i, wp := range t {
		if wp.CPURate == rate {
			return i, true
		}
	}
	return 0, false
}

type BuildOptions struct {
	// FixedPLL is set when DDR is clocked from PLL1, so PLL1 can't move
	// and every row runs from the measured rate and its settings.
	FixedPLL bool
	// PLL1Settings is PLL1's current programming, as read back at boot.
	PLL1Settings clk.PLLSettings
}

// Build trims the platform's candidate working points down to those PLL1
// can actually deliver. Rows faster than measuredPLL1 are dropped; the rest
// are sorted fastest first and their ARM divider recomputed so the stored
// CPU rate is what the divider produces, never above the rate asked for.
// Rows left at the same CPU rate are merged. Row 0 always describes PLL1 as
// measured.
func Build(candidates []WorkingPoint, measuredPLL1 uint64, opts BuildOptions) (Table, error) {
	var t Table
	for _, wp := range candidates {
		if wp.CPURate == 0 || wp.CPURate > measuredPLL1 {
			log.Printf("cpufreq: dropping working point %v, PLL1 runs at %d Hz", wp, measuredPLL1)
			continue
		}
		t = append(t, wp)
	}
	if len(t) == 0 {
		return nil, errors.Wrapf(ErrNoWorkingPoint, "PLL1 at %d Hz", measuredPLL1)
	}
	if len(t) == 1 {
		log.Printf("cpufreq: only %v is reachable, CPU frequency is fixed", t[0])
	}
	sort.SliceStable(t, func(i, j int) bool {
		return t[i].CPURate > t[j].CPURate
	})
	for i := range t {
		wp := &t[i]
		if opts.FixedPLL || i == 0 {
			wp.PLLRate = measuredPLL1
			setPLL(wp, opts.PLL1Settings)
		}
		wp.CPUPodf, wp.CPURate = podf(wp.PLLRate, wp.CPURate)
	}
	t[0].CPUPodf, t[0].CPURate = 0, measuredPLL1
	return dedup(t), nil
}

// dedup folds rows that ended up at the same CPU rate into the first of
// them. The later row asked for a rate no higher than the first, so its
// voltage covers the shared rate.
func dedup(t Table) Table {
	out := t[:1]
	for _, wp := range t[1:] {
		last := &out[len(out)-1]
		if wp.CPURate != last.CPURate {
			out = append(out, wp)
			continue
		}
		log.Printf("cpufreq: %v duplicates row %d, keeping %d mV", wp, len(out)-1, wp.CPUVoltage/1000)
		last.CPUVoltage = wp.CPUVoltage
	}
	return out
}

func setPLL(wp *WorkingPoint, s clk.PLLSettings) {
	wp.PDF, wp.MFI, wp.MFD, wp.MFN = s.PDF, s.MFI, s.MFD, s.MFN
}

// podf picks the ARM divider nearest pllRate/want, stepping up one if that
// would run the CPU faster than want.
func podf(pllRate, want uint64) (uint32, uint64) {
	div := (pllRate + want/2) / want
	if div < 1 {
		div = 1
	}
	if pllRate/div > want {
		div++
	}
	return uint32(div - 1), pllRate / div
}
