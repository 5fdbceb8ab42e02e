package executor

import (
	"context"
	"time"

	"smartcron/pkg/job"
	"smartcron/pkg/telemetry"
)

// RetrySleep is the pause between attempts; a package variable so
// tests can shrink it.
var RetrySleep = 60 * time.Second

// ExecuteWithRetry runs j.Spec.Command once if retry_on_fail is false.
// Otherwise it attempts up to max_retries+1 times, sleeping RetrySleep
// between attempts and stopping at the first success. The returned
// result is always the final attempt's outcome; retry bookkeeping on j
// is left to the caller (the scheduler), which already needs to decide
// whether to re-defer between attempts.
func (e *Executor) ExecuteWithRetry(ctx context.Context, j *job.Job, metrics telemetry.Snapshot) Result {
	if !j.Spec.RetryOnFail {
		return e.Execute(ctx, j, metrics)
	}

	attempts := j.Spec.MaxRetries + 1

	var result Result

	for attempt := 0; attempt < attempts; attempt++ {
		result = e.Execute(ctx, j, metrics)
		if result.Success {
			return result
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return result
			case <-time.After(RetrySleep):
			}
		}
	}

	return result
}
