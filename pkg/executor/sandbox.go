package executor

import (
	"context"
	"fmt"
	"runtime"

	"smartcron/pkg/job"
	"smartcron/pkg/telemetry"
)

// ExecuteSandboxed runs the job wrapped under "systemd-run --user
// --scope --quiet" when useSystemd is true and the host is Linux; the
// wrapped command is swapped in only for this call and the original is
// restored before returning, so repeated calls never accumulate
// wrapping.
func (e *Executor) ExecuteSandboxed(
	ctx context.Context,
	j *job.Job,
	metrics telemetry.Snapshot,
	useSystemd bool,
) Result {
	if !useSystemd || runtime.GOOS != "linux" {
		return e.ExecuteWithRetry(ctx, j, metrics)
	}

	original := j.Spec.Command
	j.Spec.Command = fmt.Sprintf("systemd-run --user --scope --quiet %s", original)

	result := e.ExecuteWithRetry(ctx, j, metrics)

	j.Spec.Command = original

	return result
}
