// Package decision implements the scheduler's core policy: for a job
// and a metrics snapshot, decide whether to run it now, defer it to a
// later deadline, or skip it entirely this tick.
package decision

import (
	"context"
	"fmt"
	"time"

	"smartcron/pkg/constraint"
	"smartcron/pkg/job"
	"smartcron/pkg/predict"
	"smartcron/pkg/telemetry"
)

const (
	outsideWindowDefer = time.Hour
	constraintDefer    = 5 * time.Minute
	predictorHighDefer = 10 * time.Minute
	predictorLowDefer  = 30 * time.Minute
	preferredTimeDefer = 30 * time.Minute

	predictorRunThreshold   = 0.8
	predictorDeferThreshold = 0.5
)

// Decision is the transient outcome of evaluating one job for one
// tick.
type Decision struct {
	JobName    string
	ShouldRun  bool
	Reason     string
	Score      float64
	DeferUntil *time.Time
}

// Decide evaluates a single job against the current snapshot. now is
// passed explicitly so the caller's tick time is used consistently
// rather than each decision sampling its own clock. force bypasses
// everything past enablement, matching the operator-override and
// run_job_now semantics.
func Decide(
	ctx context.Context,
	j *job.Job,
	metrics telemetry.Snapshot,
	predictor predict.Predictor,
	now time.Time,
	force bool,
) Decision {
	name := j.Name()

	if !j.Spec.Enabled {
		return Decision{JobName: name, ShouldRun: false, Reason: "disabled"}
	}

	if force {
		return Decision{JobName: name, ShouldRun: true, Reason: "forced", Score: 1.0}
	}

	if !j.Spec.InScheduleWindow(now) {
		deadline := now.Add(outsideWindowDefer)

		return Decision{JobName: name, ShouldRun: false, Reason: "outside window", DeferUntil: &deadline}
	}

	if !j.Spec.Constraints.Empty() {
		ok, failures := constraint.Check(metrics, j.Spec.Constraints)
		if !ok {
			deadline := now.Add(constraintDefer)

			return Decision{
				JobName:    name,
				ShouldRun:  false,
				Reason:     joinFailures(failures),
				DeferUntil: &deadline,
			}
		}
	}

	usePredictor := j.Spec.AIAware && predictor != nil

	var decision Decision

	if usePredictor {
		decision, usePredictor = decideWithPredictor(ctx, j, metrics, predictor, now)
	} else {
		decision = Decision{JobName: name, ShouldRun: true, Reason: "constraints met", Score: 1.0}
	}

	return applyPreferredTimeBias(j, decision, usePredictor, now)
}

// decideWithPredictor also reports whether the predictor answered; it
// is false only when the predictor returned an error.
func decideWithPredictor(
	ctx context.Context,
	j *job.Job,
	metrics telemetry.Snapshot,
	predictor predict.Predictor,
	now time.Time,
) (Decision, bool) {
	name := j.Name()

	features := predict.BuildFeatureVector(metrics, j.State, now)

	probability, reason, err := predictor.Predict(ctx, features)
	if err != nil {
		// Predictor errors degrade to predictor-absent for this
		// decision; never fail the tick over it.
		return Decision{JobName: name, ShouldRun: true, Reason: "constraints met", Score: 1.0}, false
	}

	switch {
	case probability >= predictorRunThreshold:
		return Decision{JobName: name, ShouldRun: true, Reason: reason, Score: probability}, true
	case probability >= predictorDeferThreshold:
		deadline := now.Add(predictorHighDefer)

		return Decision{
			JobName:    name,
			ShouldRun:  false,
			Reason:     fmt.Sprintf("%s (%.2f%%)", reason, probability*100),
			Score:      probability,
			DeferUntil: &deadline,
		}, true
	default:
		deadline := now.Add(predictorLowDefer)

		return Decision{
			JobName:    name,
			ShouldRun:  false,
			Reason:     fmt.Sprintf("%s (%.2f%%)", reason, probability*100),
			Score:      probability,
			DeferUntil: &deadline,
		}, true
	}
}

// applyPreferredTimeBias implements the last-mile calendar hint. It
// defers a tentative static-path run when the current hour misses
// every preferred time, but deliberately leaves a predictor-approved
// run alone — the predictor has already weighed time-of-day as a
// feature, and re-vetoing it here would double-count the signal. This
// is the one place the engine's two paths genuinely diverge in
// strictness; see the project notes on why that asymmetry is kept
// rather than "fixed".
func applyPreferredTimeBias(j *job.Job, decision Decision, usedPredictor bool, now time.Time) Decision {
	if len(j.Spec.PreferredTime) == 0 {
		return decision
	}

	if j.Spec.NearPreferredTime(now) {
		return decision
	}

	if usedPredictor && decision.ShouldRun {
		return decision
	}

	if !decision.ShouldRun {
		return decision
	}

	deadline := now.Add(preferredTimeDefer)

	return Decision{
		JobName:    decision.JobName,
		ShouldRun:  false,
		Reason:     "outside preferred time",
		Score:      decision.Score,
		DeferUntil: &deadline,
	}
}

func joinFailures(failures []string) string {
	joined := ""

	for i, failure := range failures {
		if i > 0 {
			joined += "; "
		}

		joined += failure
	}

	return joined
}
