package cpufreq

import (
	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
)

// Regulator supplies the CPU core voltage, in microvolts.
type Regulator interface {
	Voltage() (int, error)
	SetVoltage(uV int) error
}

const (
	// MC13892 power management IC, as fitted to the Freescale MX51/MX53
	// reference boards.
	MC13892_ADDR = 0x08

	MC13892_REG_SW_0 = 24 // SW1 output voltage
	MC13892_SW1_MASK = 0x1F

	MC13892_SW_MIN_UV  = 600000
	MC13892_SW_STEP_UV = 25000
	MC13892_SW_MAX_UV  = MC13892_SW_MIN_UV + MC13892_SW1_MASK*MC13892_SW_STEP_UV
)

// MC13892 drives the SW1 buck, which feeds the ARM core. Its registers are
// 24 bits wide and transferred most significant byte first.
type MC13892 struct {
	bus  drivers.I2C
	addr uint16
}

func NewMC13892(bus drivers.I2C, addr uint16) *MC13892 {
	return &MC13892{bus: bus, addr: addr}
}

func (m *MC13892) readReg(reg uint8) (uint32, error) {
	var b [3]byte
	if err := m.bus.Tx(m.addr, []byte{reg}, b[:]); err != nil {
		return 0, errors.Wrapf(err, "mc13892: read register %d", reg)
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

func (m *MC13892) writeReg(reg uint8, v uint32) error {
	w := []byte{reg, byte(v >> 16), byte(v >> 8), byte(v)}
	if err := m.bus.Tx(m.addr, w, nil); err != nil {
		return errors.Wrapf(err, "mc13892: write register %d", reg)
	}
	return nil
}

func (m *MC13892) Voltage() (int, error) {
	v, err := m.readReg(MC13892_REG_SW_0)
	if err != nil {
		return 0, err
	}
	return MC13892_SW_MIN_UV + int(v&MC13892_SW1_MASK)*MC13892_SW_STEP_UV, nil
}

// SetVoltage rounds up to the next 25 mV step.
func (m *MC13892) SetVoltage(uV int) error {
	if uV < MC13892_SW_MIN_UV || uV > MC13892_SW_MAX_UV {
		return errors.Errorf("mc13892: %d uV outside SW1 range", uV)
	}
	code := uint32((uV - MC13892_SW_MIN_UV + MC13892_SW_STEP_UV - 1) / MC13892_SW_STEP_UV)
	v, err := m.readReg(MC13892_REG_SW_0)
	if err != nil {
		return err
	}
	return m.writeReg(MC13892_REG_SW_0, v&^MC13892_SW1_MASK|code)
}
