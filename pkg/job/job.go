// Package job defines the job configuration and runtime state model
// consumed by the decision engine, executor, and scheduler loop.
package job

import "time"

// Spec is the configuration loaded from a job file. Reload replaces the
// whole Spec rather than mutating fields on it; the one in-place change
// is executor.ExecuteSandboxed, which swaps Command for the duration of
// a single call and restores it afterwards.
type Spec struct {
	Name    string
	Command string
	Enabled bool

	Constraints Constraints

	PreferredTime       []string
	ScheduleWindowStart string
	ScheduleWindowEnd   string

	TimeoutSec  *int
	RetryOnFail bool
	MaxRetries  int

	AIAware bool
}

// Constraints holds the optional resource preconditions a job requires
// before it is allowed to run. A nil field means the constraint is not
// configured.
type Constraints struct {
	MaxCPUPercent    *float64
	MaxMemoryPercent *float64
	MinBatteryPct    *float64
	MinDiskFreeGB    *float64
	MinIdleTimeSec   *int
}

// Empty reports whether no constraint is configured.
func (c Constraints) Empty() bool {
	return c.MaxCPUPercent == nil &&
		c.MaxMemoryPercent == nil &&
		c.MinBatteryPct == nil &&
		c.MinDiskFreeGB == nil &&
		c.MinIdleTimeSec == nil
}

// State is the mutable runtime state the scheduler owns for a job,
// keyed by job name. It is kept separate from Spec so that reloading
// config from disk never clobbers in-memory run history, and so job
// files on disk stay free of daemon-owned bookkeeping fields.
type State struct {
	RetryCount     int
	LastRunTime    *time.Time
	LastRunSuccess *bool
}

// Job pairs a Spec with its current State for convenience at call
// sites that need both (the decision engine, the executor).
type Job struct {
	Spec  Spec
	State State
}

// Name returns the job's unique identity.
func (j *Job) Name() string {
	return j.Spec.Name
}

// RecordRun updates runtime state after an execution attempt completes.
func (j *Job) RecordRun(at time.Time, success bool) {
	j.State.LastRunTime = &at
	j.State.LastRunSuccess = &success
}

// ResetRetries clears the retry counter, called after a terminal
// success or a terminal (non-retryable) failure.
func (j *Job) ResetRetries() {
	j.State.RetryCount = 0
}

// IncrementRetry bumps the retry counter. Callers must ensure it never
// exceeds Spec.MaxRetries; the invariant is enforced by the scheduler,
// not by this method, since the decision of whether another retry is
// due belongs to the caller's policy, not the data type.
func (j *Job) IncrementRetry() {
	j.State.RetryCount++
}
