// Package sink persists job executions and metric snapshots to an
// append-only store and exposes the history queries the operator CLI
// needs.
package sink

import (
	"context"
	"time"

	"smartcron/pkg/executor"
	"smartcron/pkg/telemetry"
)

// ExecutionRecord is one row of execution history: the captured
// result plus the snapshot and predictor reasoning that drove it.
type ExecutionRecord struct {
	Result           executor.Result
	Metrics          telemetry.Snapshot
	AIDecisionReason string
}

// Sink is the append-only contract the scheduler and the operator CLI
// consume. Implementations must be safe for concurrent use; callers
// do not serialize their own calls.
type Sink interface {
	LogExecution(ctx context.Context, record ExecutionRecord) error
	LogMetrics(ctx context.Context, snapshot telemetry.Snapshot) error

	JobHistory(ctx context.Context, jobName string, limit int) ([]ExecutionRecord, error)
	JobSuccessRate(ctx context.Context, jobName string, lastN int) (float64, error)
	AverageExecutionTime(ctx context.Context, jobName string, lastN int) (time.Duration, error)

	Close() error
}
