// Package predict defines the narrow contract the decision engine
// consumes to obtain a success probability for an ai_aware job, plus a
// null implementation used when no real classifier is configured.
package predict

import (
	"context"
	"errors"
	"time"

	"smartcron/pkg/job"
	"smartcron/pkg/telemetry"
)

var errNoPredictor = errors.New("predict: no predictor configured")

// FeatureVectorLength is the fixed, contractually ordered size of the
// vector passed to Predictor.Predict.
const FeatureVectorLength = 8

// Predictor is the external inference contract. Implementations must
// be safe for concurrent use; the decision engine calls it once per
// ai_aware job per tick.
type Predictor interface {
	Predict(ctx context.Context, features []float64) (probability float64, reason string, err error)
}

// BuildFeatureVector assembles the fixed 8-element feature vector in
// the order the predictor contract specifies. Missing signals take the
// documented stand-in values rather than being omitted, so the vector
// length is always exactly FeatureVectorLength.
func BuildFeatureVector(metrics telemetry.Snapshot, state job.State, now time.Time) []float64 {
	batteryLevel := 100.0
	isCharging := 1.0

	if metrics.Battery != nil {
		batteryLevel = metrics.Battery.Percent

		isCharging = 0.0
		if metrics.Battery.IsCharging {
			isCharging = 1.0
		}
	}

	idleTimeSec := 0.0
	if metrics.IdleTimeSec != nil {
		idleTimeSec = float64(*metrics.IdleTimeSec)
	}

	lastJobSuccess := 1.0
	if state.LastRunSuccess != nil && !*state.LastRunSuccess {
		lastJobSuccess = 0.0
	}

	return []float64{
		metrics.CPU.Load5m,
		metrics.CPU.CPUPercent,
		metrics.Memory.Percent,
		batteryLevel,
		isCharging,
		idleTimeSec,
		lastJobSuccess,
		float64(now.Hour()),
	}
}

// NullPredictor implements the static path: it is consulted by nothing
// that checks ai_aware correctly, but stands in whenever the decision
// engine is constructed without a real predictor so callers never need
// a nil check.
type NullPredictor struct{}

// Predict always reports unavailability so the caller falls back to
// the static path, per the "ai_aware with no predictor behaves as
// ai_aware=false" invariant.
func (NullPredictor) Predict(_ context.Context, _ []float64) (float64, string, error) {
	return 0, "no predictor configured", errNoPredictor
}
