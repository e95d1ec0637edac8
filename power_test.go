package main

import (
	"testing"
	"time"
)

// slowRail reports the old voltage for a number of reads after a change.
type slowRail struct {
	uV, target int
	lag        int
}

func (s *slowRail) Voltage() (int, error) {
	if s.lag > 0 {
		s.lag--
		return s.uV, nil
	}
	s.uV = s.target
	return s.uV, nil
}

func (s *slowRail) SetVoltage(uV int) error {
	// The PMIC rounds up to a 25 mV step.
	s.target = (uV + 24999) / 25000 * 25000
	return nil
}

func TestSettlingRegulator(t *testing.T) {
	var now time.Time
	clock := func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
	tests := []struct {
		lag     int
		uV      int
		wantErr bool
	}{
		{0, 1100000, false},
		{3, 1100000, false},
		{3, 1110000, false},
		{50, 1100000, true},
	}
	for _, tc := range tests {
		rail := &slowRail{uV: 1050000, lag: tc.lag}
		r := &settlingRegulator{Regulator: rail, wait: 10 * time.Millisecond, now: clock}
		err := r.SetVoltage(tc.uV)
		if (err != nil) != tc.wantErr {
			t.Errorf("SetVoltage(%d) with lag %d, got: %v, want error %v", tc.uV, tc.lag, err, tc.wantErr)
		}
	}
}

func TestInitRegulatorNone(t *testing.T) {
	reg, err := initRegulator()
	if reg != nil || err != nil {
		t.Errorf("initRegulator with -pmicbus -1, got: %v, %v, want nil, nil", reg, err)
	}
}
