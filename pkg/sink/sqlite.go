package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"smartcron/pkg/executor"
	"smartcron/pkg/telemetry"
)

const (
	createExecutionsTable = `
		CREATE TABLE IF NOT EXISTS job_executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_name TEXT NOT NULL,
			start_time REAL NOT NULL,
			end_time REAL,
			exit_code INTEGER,
			stdout TEXT,
			stderr TEXT,
			execution_time_sec REAL,
			timed_out BOOLEAN,
			system_state TEXT,
			ai_decision_reason TEXT,
			success BOOLEAN,
			timestamp TEXT
		)`

	createSnapshotsTable = `
		CREATE TABLE IF NOT EXISTS system_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp REAL NOT NULL,
			cpu_load REAL,
			memory_percent REAL,
			battery_percent REAL,
			is_charging BOOLEAN,
			idle_time_sec INTEGER,
			metrics_json TEXT
		)`

	insertExecution = `
		INSERT INTO job_executions
			(job_name, start_time, end_time, exit_code, stdout, stderr,
			 execution_time_sec, timed_out, system_state, ai_decision_reason, success, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSnapshot = `
		INSERT INTO system_snapshots
			(timestamp, cpu_load, memory_percent, battery_percent, is_charging, idle_time_sec, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectHistory = `
		SELECT job_name, start_time, end_time, exit_code, stdout, stderr,
		       execution_time_sec, timed_out, ai_decision_reason, success
		FROM job_executions
		WHERE job_name = ?
		ORDER BY start_time DESC
		LIMIT ?`
)

// SQLiteSink is a pure-Go, cgo-free sink backed by modernc.org/sqlite.
// It mirrors the original project's SmartCronLogger schema (the
// job_executions/system_snapshots tables), with a timed_out column
// added since this rewrite's ExecutionResult tracks that distinctly
// from a non-zero exit code.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (creating if absent) the database at path and
// ensures its schema exists.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	_, err = db.Exec(createExecutionsTable)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create job_executions table: %w", err)
	}

	_, err = db.Exec(createSnapshotsTable)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create system_snapshots table: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// LogExecution appends one execution record. Errors are the caller's
// to log and swallow per the scheduler's "sink errors never abort the
// tick" policy; this method itself always reports them.
func (s *SQLiteSink) LogExecution(ctx context.Context, record ExecutionRecord) error {
	stateJSON, err := json.Marshal(record.Metrics)
	if err != nil {
		return fmt.Errorf("marshal system state: %w", err)
	}

	result := record.Result

	_, err = s.db.ExecContext(ctx, insertExecution,
		result.JobName,
		float64(result.StartTime.Unix()),
		float64(result.EndTime.Unix()),
		result.ExitCode,
		result.Stdout,
		result.Stderr,
		result.ExecutionTime.Seconds(),
		result.TimedOut,
		string(stateJSON),
		record.AIDecisionReason,
		result.Success,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert job execution: %w", err)
	}

	return nil
}

// LogMetrics appends one system snapshot row.
func (s *SQLiteSink) LogMetrics(ctx context.Context, snapshot telemetry.Snapshot) error {
	metricsJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}

	var (
		batteryPercent sql.NullFloat64
		isCharging     sql.NullBool
	)

	if snapshot.Battery != nil {
		batteryPercent = sql.NullFloat64{Float64: snapshot.Battery.Percent, Valid: true}
		isCharging = sql.NullBool{Bool: snapshot.Battery.IsCharging, Valid: true}
	}

	var idleTimeSec sql.NullInt64
	if snapshot.IdleTimeSec != nil {
		idleTimeSec = sql.NullInt64{Int64: int64(*snapshot.IdleTimeSec), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, insertSnapshot,
		float64(snapshot.Timestamp.Unix()),
		snapshot.CPU.CPUPercent,
		snapshot.Memory.Percent,
		batteryPercent,
		isCharging,
		idleTimeSec,
		string(metricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert system snapshot: %w", err)
	}

	return nil
}

// JobHistory returns up to limit most-recent executions for jobName,
// newest first.
func (s *SQLiteSink) JobHistory(ctx context.Context, jobName string, limit int) ([]ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectHistory, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord

	for rows.Next() {
		var (
			name             string
			startUnix        float64
			endUnix          float64
			exitCode         int
			stdout           string
			stderr           string
			executionSeconds float64
			timedOut         bool
			aiReason         sql.NullString
			success          bool
		)

		scanErr := rows.Scan(
			&name, &startUnix, &endUnix, &exitCode, &stdout, &stderr,
			&executionSeconds, &timedOut, &aiReason, &success,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job history row: %w", scanErr)
		}

		records = append(records, ExecutionRecord{
			Result: executor.Result{
				JobName:       name,
				StartTime:     time.Unix(int64(startUnix), 0),
				EndTime:       time.Unix(int64(endUnix), 0),
				ExitCode:      exitCode,
				Stdout:        stdout,
				Stderr:        stderr,
				ExecutionTime: time.Duration(executionSeconds * float64(time.Second)),
				Success:       success,
				TimedOut:      timedOut,
			},
			AIDecisionReason: aiReason.String,
		})
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate job history rows: %w", err)
	}

	return records, nil
}

// JobSuccessRate returns the fraction of the last lastN executions
// that succeeded. A job with no history is treated as fully
// trustworthy (1.0), matching the original project's default.
func (s *SQLiteSink) JobSuccessRate(ctx context.Context, jobName string, lastN int) (float64, error) {
	history, err := s.JobHistory(ctx, jobName, lastN)
	if err != nil {
		return 0, err
	}

	if len(history) == 0 {
		return 1.0, nil
	}

	successes := 0

	for _, record := range history {
		if record.Result.Success {
			successes++
		}
	}

	return float64(successes) / float64(len(history)), nil
}

// AverageExecutionTime returns the mean execution duration over the
// last lastN executions, or zero when there is no history.
func (s *SQLiteSink) AverageExecutionTime(ctx context.Context, jobName string, lastN int) (time.Duration, error) {
	history, err := s.JobHistory(ctx, jobName, lastN)
	if err != nil {
		return 0, err
	}

	if len(history) == 0 {
		return 0, nil
	}

	var total time.Duration

	for _, record := range history {
		total += record.Result.ExecutionTime
	}

	return total / time.Duration(len(history)), nil
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close sqlite db: %w", err)
	}

	return nil
}
