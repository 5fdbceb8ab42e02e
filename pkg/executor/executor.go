// Package executor runs job commands under a shell, capturing output
// and applying a per-job timeout enforced against the whole process
// group.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"smartcron/pkg/job"
	"smartcron/pkg/telemetry"
)

const timedOutExitCode = -1

// Result is the outcome of one execution attempt.
type Result struct {
	JobName       string
	StartTime     time.Time
	EndTime       time.Time
	ExitCode      int
	Stdout        string
	Stderr        string
	ExecutionTime time.Duration
	Success       bool
	TimedOut      bool
}

// Executor runs job commands. ShellPath defaults to /bin/sh when
// empty.
type Executor struct {
	ShellPath string
}

// New constructs an Executor using the host's default shell.
func New() *Executor {
	return &Executor{ShellPath: "/bin/sh"}
}

// Execute runs j.Spec.Command once and returns the captured result.
// metrics is accepted for parity with the decision/logging call sites
// that pass the same snapshot through, though the executor itself does
// not consult it. Execute only reads j — it never writes j.State,
// since it commonly runs on a worker goroutine while other goroutines
// may be reading that job's state; the caller is responsible for
// recording the result against j under its own synchronization.
func (e *Executor) Execute(ctx context.Context, j *job.Job, _ telemetry.Snapshot) Result {
	start := time.Now()

	shell := e.ShellPath
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell, "-c", j.Spec.Command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runCtx := ctx

	var cancel context.CancelFunc

	if j.Spec.TimeoutSec != nil {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(*j.Spec.TimeoutSec)*time.Second)
		defer cancel()
	}

	startErr := cmd.Start()
	if startErr != nil {
		end := time.Now()

		return Result{
			JobName:       j.Name(),
			StartTime:     start,
			EndTime:       end,
			ExitCode:      timedOutExitCode,
			Stderr:        startErr.Error(),
			ExecutionTime: end.Sub(start),
			Success:       false,
			TimedOut:      false,
		}
	}

	waitDone := make(chan error, 1)

	go func() { waitDone <- cmd.Wait() }()

	var waitErr error

	timedOut := false

	select {
	case waitErr = <-waitDone:
	case <-runCtx.Done():
		timedOut = true

		killProcessGroup(cmd.Process.Pid)

		waitErr = <-waitDone
	}

	end := time.Now()
	executionTime := end.Sub(start)

	if timedOut {
		return Result{
			JobName:       j.Name(),
			StartTime:     start,
			EndTime:       end,
			ExitCode:      timedOutExitCode,
			Stdout:        stdout.String(),
			Stderr:        fmt.Sprintf("Job timed out\n%s", stderr.String()),
			ExecutionTime: executionTime,
			Success:       false,
			TimedOut:      true,
		}
	}

	exitCode := 0
	success := true

	if waitErr != nil {
		success = false

		exitErr, ok := waitErr.(*exec.ExitError)
		if ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = timedOutExitCode
		}
	}

	return Result{
		JobName:       j.Name(),
		StartTime:     start,
		EndTime:       end,
		ExitCode:      exitCode,
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExecutionTime: executionTime,
		Success:       success,
		TimedOut:      false,
	}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}

	_ = unix.Kill(-pid, unix.SIGKILL)
}
