package main

import (
	"flag"
	"log"
	"time"

	"github.com/Jon-Bright/mx5clk/cpufreq"
	"github.com/Jon-Bright/mx5clk/i2cdev"
	"github.com/pkg/errors"
)

var pmicBus = flag.Int("pmicbus", -1, "The /dev/i2c-N bus the MC13892 PMIC is on. -1 means don't touch the core voltage.")
var pmicAddr = flag.Uint("pmicaddr", cpufreq.MC13892_ADDR, "The I2C address of the MC13892 PMIC")
var voltageWait = flag.Duration("voltagewait", 10*time.Millisecond, "How long to wait for the core voltage to read back as set. Only relevant if pmicbus is specified.")

// settlingRegulator only returns from SetVoltage once the PMIC reports the
// new voltage, so the CPU is never clocked up on a rail that's still rising.
type settlingRegulator struct {
	cpufreq.Regulator
	wait time.Duration
	now  func() time.Time
}

func (r *settlingRegulator) SetVoltage(uV int) error {
	err := r.Regulator.SetVoltage(uV)
	if err != nil {
		return err
	}
	// The PMIC rounds up to its next step.
	want := cpufreq.MC13892_SW_MIN_UV
	if uV > want {
		want += (uV - want + cpufreq.MC13892_SW_STEP_UV - 1) / cpufreq.MC13892_SW_STEP_UV * cpufreq.MC13892_SW_STEP_UV
	}
	start := r.now()
	for {
		got, err := r.Voltage()
		if err != nil {
			return errors.Wrap(err, "couldn't read back core voltage")
		}
		t := r.now()
		if got == want {
			log.Printf("Core voltage %d uV after %v", got, t.Sub(start))
			return nil
		}
		if t.Sub(start) > r.wait {
			return errors.Errorf("timed out waiting for core voltage %d uV, have %d uV", want, got)
		}
		time.Sleep(time.Millisecond)
	}
}

func initRegulator() (cpufreq.Regulator, error) {
	if *pmicBus < 0 {
		return nil, nil
	}
	bus, err := i2cdev.Open(*pmicBus)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open PMIC bus")
	}
	pmic := cpufreq.NewMC13892(bus, uint16(*pmicAddr))
	uV, err := pmic.Voltage()
	if err != nil {
		bus.Close()
		return nil, errors.Wrap(err, "couldn't read core voltage")
	}
	log.Printf("MC13892 on i2c-%d at %02x, core at %d uV", *pmicBus, *pmicAddr, uV)
	return &settlingRegulator{Regulator: pmic, wait: *voltageWait, now: time.Now}, nil
}
