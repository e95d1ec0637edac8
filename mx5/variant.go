package mx5

import (
	"bytes"
	"os"
	"strings"

	"github.com/Jon-Bright/mx5clk/cpufreq"
	"github.com/Jon-Bright/mx5clk/regio"
	"github.com/pkg/errors"
)

// Variant is what differs between the i.MX5 parts: where the CCM and the
// DPLLs live, which gates must stay on and the CPU working points.
type Variant struct {
	Name          string
	CCMBase       regio.Addr
	PLLBases      []regio.Addr
	AlwaysOn      [MXC_CCM_CCGR_COUNT]uint32
	WorkingPoints []cpufreq.WorkingPoint
}

const (
	MX51_CCM_BASE  = 0x73FD4000
	MX51_PLL1_BASE = 0x83F80000
	MX51_PLL2_BASE = 0x83F84000
	MX51_PLL3_BASE = 0x83F88000

	MX53_CCM_BASE  = 0x53FD4000
	MX53_PLL1_BASE = 0x63F80000
	MX53_PLL2_BASE = 0x63F84000
	MX53_PLL3_BASE = 0x63F88000
	MX53_PLL4_BASE = 0x63F8C000
)

var MX51 = Variant{
	Name:     "i.MX51",
	CCMBase:  MX51_CCM_BASE,
	PLLBases: []regio.Addr{MX51_PLL1_BASE, MX51_PLL2_BASE, MX51_PLL3_BASE},
	// ARM debug, AHB/AXI bridges, EMI, IIM, the TZIC, GPC and SRC.
	AlwaysOn: [MXC_CCM_CCGR_COUNT]uint32{
		0xFF0F0015,
		0,
		0,
		0,
		0x00010000,
		0x0000F3D0,
		0x00000100,
	},
	WorkingPoints: []cpufreq.WorkingPoint{
		{PLLRate: 1000000000, CPURate: 1000000000, MFI: 10, MFD: 11, MFN: 5, CPUVoltage: 1175000},
		{PLLRate: 800000000, CPURate: 800000000, MFI: 8, MFD: 2, MFN: 1, CPUVoltage: 1100000},
		{PLLRate: 800000000, CPURate: 400000000, CPUPodf: 1, MFI: 8, MFD: 2, MFN: 1, CPUVoltage: 950000},
		{PLLRate: 800000000, CPURate: 160000000, CPUPodf: 4, MFI: 8, MFD: 2, MFN: 1, CPUVoltage: 850000},
	},
}

var MX53 = Variant{
	Name:     "i.MX53",
	CCMBase:  MX53_CCM_BASE,
	PLLBases: []regio.Addr{MX53_PLL1_BASE, MX53_PLL2_BASE, MX53_PLL3_BASE, MX53_PLL4_BASE},
	AlwaysOn: [MXC_CCM_CCGR_COUNT]uint32{
		0xFF0F0015,
		0,
		0,
		0,
		0x00010000,
		0x0000F3D0,
		0x00000300,
	},
	WorkingPoints: []cpufreq.WorkingPoint{
		{PLLRate: 1200000000, CPURate: 1200000000, MFI: 12, MFD: 1, MFN: 1, CPUVoltage: 1350000},
		{PLLRate: 1000000000, CPURate: 1000000000, MFI: 10, MFD: 11, MFN: 5, CPUVoltage: 1250000},
		{PLLRate: 800000000, CPURate: 800000000, MFI: 8, MFD: 2, MFN: 1, CPUVoltage: 1050000},
		{PLLRate: 800000000, CPURate: 400000000, CPUPodf: 1, MFI: 8, MFD: 2, MFN: 1, CPUVoltage: 950000},
		{PLLRate: 800000000, CPURate: 160000000, CPUPodf: 4, MFI: 8, MFD: 2, MFN: 1, CPUVoltage: 900000},
	},
}

// variants is keyed by device tree compatible string.
var variants = map[string]*Variant{
	"fsl,imx51": &MX51,
	"fsl,imx53": &MX53,
}

// VariantByName accepts "mx51", "imx53", "i.MX51" and similar.
func VariantByName(name string) (*Variant, error) {
	n := strings.ToLower(name)
	n = strings.TrimPrefix(strings.TrimPrefix(n, "i."), "i")
	switch n {
	case "mx51":
		return &MX51, nil
	case "mx53":
		return &MX53, nil
	}
	return nil, errors.Errorf("unknown chip %q", name)
}

// DetectVariant works out which part we're running on from the device tree.
func DetectVariant() (*Variant, error) {
	b, err := os.ReadFile("/proc/device-tree/compatible")
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read device tree compatible")
	}
	return variantFromCompatible(b)
}

func variantFromCompatible(b []byte) (*Variant, error) {
	for _, c := range bytes.Split(bytes.TrimRight(b, "\x00"), []byte{0}) {
		if v, ok := variants[string(c)]; ok {
			return v, nil
		}
	}
	return nil, errors.Errorf("couldn't identify chip from %q", b)
}
