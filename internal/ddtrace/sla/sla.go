// Package sla classifies finished intervals against a pluggable
// threshold, deciding whether a record also belongs in a channel's
// sla-exceeded ring (spec.md §4.F).
package sla

import "github.com/kolkov/ddtrace/internal/ddtrace/record"

// Rule decides whether an interval's measured duration breached its
// budget. CyclesPerSec lets a Rule convert cycle counts to wall time
// without the caller needing to know the conversion itself.
type Rule func(rec record.IntervalRecord) bool

// DefaultThresholdMicros is the wall-clock duration above which an
// interval is considered SLA-exceeding when no caller-supplied Rule
// overrides it (spec.md §4.F).
const DefaultThresholdMicros = 100

// Default returns a Rule that flags intervals longer than
// DefaultThresholdMicros, computed from cycles and the measured
// cycles-per-second calibration carried in the record.
func Default() Rule {
	return Threshold(DefaultThresholdMicros)
}

// Threshold returns a Rule flagging intervals whose wall-clock duration
// exceeds thresholdMicros microseconds.
func Threshold(thresholdMicros float64) Rule {
	return func(rec record.IntervalRecord) bool {
		if rec.CyclesPerSec <= 0 {
			return false
		}
		cycles := rec.EndCycles - rec.StartCycles
		micros := float64(cycles) / rec.CyclesPerSec * 1e6
		return micros > thresholdMicros
	}
}
