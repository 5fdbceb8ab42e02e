package executor

import (
	"testing"
	"time"

	"smartcron/pkg/job"
	"smartcron/pkg/telemetry"
)

func newTestJob(command string) *job.Job {
	return &job.Job{Spec: job.Spec{Name: "test-job", Command: command}}
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	e := New()
	j := newTestJob("echo hello")

	result := e.Execute(t.Context(), j, telemetry.Snapshot{})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	if result.Stdout != "hello\n" {
		t.Fatalf("unexpected stdout: %q", result.Stdout)
	}

	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", result.ExitCode)
	}

	if j.State.LastRunSuccess != nil {
		t.Fatal("expected Execute to leave job state untouched; callers record results")
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	t.Parallel()

	e := New()
	j := newTestJob("exit 7")

	result := e.Execute(t.Context(), j, telemetry.Snapshot{})
	if result.Success {
		t.Fatal("expected failure")
	}

	if result.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %d", result.ExitCode)
	}
}

func TestExecuteCapturesStderr(t *testing.T) {
	t.Parallel()

	e := New()
	j := newTestJob("echo oops >&2; exit 1")

	result := e.Execute(t.Context(), j, telemetry.Snapshot{})
	if result.Stderr != "oops\n" {
		t.Fatalf("unexpected stderr: %q", result.Stderr)
	}
}

func TestExecuteTimesOut(t *testing.T) {
	t.Parallel()

	e := New()
	timeout := 1
	j := &job.Job{Spec: job.Spec{Name: "slow-job", Command: "sleep 5", TimeoutSec: &timeout}}

	result := e.Execute(t.Context(), j, telemetry.Snapshot{})
	if !result.TimedOut || result.Success {
		t.Fatalf("expected timeout, got %+v", result)
	}
}

func TestExecuteRejectsUnstartableCommand(t *testing.T) {
	t.Parallel()

	e := &Executor{ShellPath: "/nonexistent/shell"}
	j := newTestJob("echo hi")

	result := e.Execute(t.Context(), j, telemetry.Snapshot{})
	if result.Success {
		t.Fatal("expected failure when shell cannot start")
	}
}

func TestExecuteWithRetryNoRetryOnFail(t *testing.T) {
	t.Parallel()

	e := New()
	j := &job.Job{Spec: job.Spec{Name: "once-job", Command: "exit 1", RetryOnFail: false}}

	result := e.ExecuteWithRetry(t.Context(), j, telemetry.Snapshot{})
	if result.Success {
		t.Fatal("expected failure with no retry")
	}
}

func TestExecuteWithRetrySucceedsEventually(t *testing.T) {
	original := RetrySleep
	RetrySleep = time.Millisecond

	t.Cleanup(func() { RetrySleep = original })

	dir := t.TempDir()
	marker := dir + "/attempts"

	e := New()
	j := &job.Job{
		Spec: job.Spec{
			Name: "eventually-job",
			Command: "test -f " + marker +
				" && exit 0 || (touch " + marker + " && exit 1)",
			RetryOnFail: true,
			MaxRetries:  2,
		},
	}

	result := e.ExecuteWithRetry(t.Context(), j, telemetry.Snapshot{})
	if !result.Success {
		t.Fatalf("expected eventual success, got %+v", result)
	}
}

func TestExecuteWithRetryExhaustsAttempts(t *testing.T) {
	original := RetrySleep
	RetrySleep = time.Millisecond

	t.Cleanup(func() { RetrySleep = original })

	e := New()
	j := &job.Job{Spec: job.Spec{Name: "always-fails", Command: "exit 1", RetryOnFail: true, MaxRetries: 1}}

	result := e.ExecuteWithRetry(t.Context(), j, telemetry.Snapshot{})
	if result.Success {
		t.Fatal("expected exhausted retries to still be a failure")
	}
}

func TestExecuteSandboxedRestoresOriginalCommand(t *testing.T) {
	t.Parallel()

	e := New()
	j := newTestJob("echo hi")
	original := j.Spec.Command

	e.ExecuteSandboxed(t.Context(), j, telemetry.Snapshot{}, false)

	if j.Spec.Command != original {
		t.Fatalf("expected command to be restored, got %q", j.Spec.Command)
	}
}
