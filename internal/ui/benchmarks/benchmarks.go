// Package benchmarks provides timing estimates for deployment phases.
package benchmarks

import (
	"time"
)

// DefaultTimings are median durations from end-to-end runs (seconds).
var DefaultTimings = map[string]int{
	"preflight-backup": 20,
	"infrastructure":   600,
	"cluster-access":   5,
	"platform":         180,
	"certificate":      60,
	"workload":         120,
	"restore":          30,
	// Individual releases
	"release:ingress-nginx": 60,
	"release:cert-manager":  45,
	"release:open-webui":    90,
}

// PhaseOrder defines the sequence of apply phases for ETA calculation.
var PhaseOrder = []string{
	"validation",
	"preflight-backup",
	"infrastructure",
	"cluster-access",
	"platform",
	"certificate",
	"workload",
	"restore",
}

// PhaseRecord is the observed timing of one phase.
type PhaseRecord struct {
	Phase     string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Duration returns how long the phase ran, or zero while it is running.
func (r PhaseRecord) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// EstimateRemaining calculates the estimated time remaining based on
// current phase, elapsed time, and completed phase records.
func EstimateRemaining(currentPhase string, phaseElapsed time.Duration, history []PhaseRecord) time.Duration {
	return EstimateRemainingWithScale(currentPhase, phaseElapsed, history, PerformanceScale(currentPhase, phaseElapsed, history))
}

// EstimateRemainingWithScale calculates ETA while applying a performance scale factor.
func EstimateRemainingWithScale(
	currentPhase string,
	phaseElapsed time.Duration,
	history []PhaseRecord,
	scale float64,
) time.Duration {
	var remaining time.Duration

	currentIdx := -1
	for i, p := range PhaseOrder {
		if p == currentPhase {
			currentIdx = i
			break
		}
	}
	if currentIdx < 0 {
		return 0
	}

	// For the current phase: max(0, expected - elapsed)
	if expected, ok := DefaultTimings[currentPhase]; ok {
		expectedDur := time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		if expectedDur > phaseElapsed {
			remaining += expectedDur - phaseElapsed
		}
	}

	completed := make(map[string]bool)
	for _, rec := range history {
		if rec.EndedAt != nil {
			completed[rec.Phase] = true
		}
	}

	for i := currentIdx + 1; i < len(PhaseOrder); i++ {
		phase := PhaseOrder[i]
		if completed[phase] {
			continue
		}
		if expected, ok := DefaultTimings[phase]; ok {
			remaining += time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		}
	}

	return remaining
}

// PerformanceScale derives a speed multiplier from observed-vs-expected durations.
// Example: expected 10m, observed 15m => scale=1.5 (future ETAs are stretched by 50%).
func PerformanceScale(currentPhase string, phaseElapsed time.Duration, history []PhaseRecord) float64 {
	var expectedTotal time.Duration
	var actualTotal time.Duration

	for _, rec := range history {
		expectedSecs, ok := DefaultTimings[rec.Phase]
		if !ok || rec.EndedAt == nil {
			continue
		}
		expectedTotal += time.Duration(expectedSecs) * time.Second
		actualTotal += rec.Duration()
	}

	// An overrunning current phase is folded in immediately so the ETA adapts.
	if expectedSecs, ok := DefaultTimings[currentPhase]; ok && phaseElapsed > 0 {
		expectedCurrent := time.Duration(expectedSecs) * time.Second
		if phaseElapsed > expectedCurrent {
			expectedTotal += expectedCurrent
			actualTotal += phaseElapsed
		}
	}

	if expectedTotal == 0 || actualTotal == 0 {
		return 1.0
	}

	scale := float64(actualTotal) / float64(expectedTotal)
	if scale < 0.6 {
		return 0.6
	}
	if scale > 3.0 {
		return 3.0
	}
	return scale
}

// ReleaseExpectedDuration returns the benchmark duration for a Helm release.
func ReleaseExpectedDuration(release string) (time.Duration, bool) {
	secs, ok := DefaultTimings["release:"+release]
	if !ok {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// TotalEstimate returns the total estimated apply time.
func TotalEstimate() time.Duration {
	var total time.Duration
	for _, phase := range PhaseOrder {
		if secs, ok := DefaultTimings[phase]; ok {
			total += time.Duration(secs) * time.Second
		}
	}
	return total
}
