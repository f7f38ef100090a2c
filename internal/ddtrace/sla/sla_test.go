package sla

import (
	"testing"

	"github.com/kolkov/ddtrace/internal/ddtrace/record"
)

func TestDefaultFlagsOverThreshold(t *testing.T) {
	rule := Default()

	const cyclesPerSec = 1e9 // 1 cycle == 1ns
	over := record.IntervalRecord{StartCycles: 0, EndCycles: 200_000, CyclesPerSec: cyclesPerSec} // 200us
	under := record.IntervalRecord{StartCycles: 0, EndCycles: 50_000, CyclesPerSec: cyclesPerSec}  // 50us

	if !rule(over) {
		t.Errorf("rule(200us interval) = false, want true")
	}
	if rule(under) {
		t.Errorf("rule(50us interval) = true, want false")
	}
}

func TestThresholdCustomValue(t *testing.T) {
	rule := Threshold(10)
	const cyclesPerSec = 1e9

	rec := record.IntervalRecord{StartCycles: 0, EndCycles: 15_000, CyclesPerSec: cyclesPerSec} // 15us
	if !rule(rec) {
		t.Errorf("rule(15us interval, 10us threshold) = false, want true")
	}
}

func TestRuleZeroCyclesPerSecNeverFlags(t *testing.T) {
	rule := Default()
	rec := record.IntervalRecord{StartCycles: 0, EndCycles: 1_000_000}
	if rule(rec) {
		t.Errorf("rule with CyclesPerSec=0 = true, want false")
	}
}
