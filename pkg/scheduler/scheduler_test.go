package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"smartcron/pkg/executor"
	"smartcron/pkg/httpmetrics"
	"smartcron/pkg/job"
	"smartcron/pkg/sink"
	"smartcron/pkg/telemetry"
)

type memorySink struct {
	mu      sync.Mutex
	records []sink.ExecutionRecord
	metrics []telemetry.Snapshot
}

func (m *memorySink) LogExecution(_ context.Context, record sink.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, record)

	return nil
}

func (m *memorySink) LogMetrics(_ context.Context, snapshot telemetry.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics = append(m.metrics, snapshot)

	return nil
}

func (m *memorySink) JobHistory(context.Context, string, int) ([]sink.ExecutionRecord, error) {
	return nil, nil
}

func (m *memorySink) JobSuccessRate(context.Context, string, int) (float64, error) {
	return 1.0, nil
}

func (m *memorySink) AverageExecutionTime(context.Context, string, int) (time.Duration, error) {
	return 0, nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.records)
}

func writeJobFile(t *testing.T, dir, name, contents string) {
	t.Helper()

	err := os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(contents), 0o600)
	if err != nil {
		t.Fatalf("write job file %s: %v", name, err)
	}
}

func newTestScheduler(t *testing.T, dir string, eventSink sink.Sink) *Scheduler {
	t.Helper()

	loader := job.NewLoader(dir, nil)

	s, err := New(Dependencies{
		Loader:        loader,
		Prober:        telemetry.NewProber(nil),
		Executor:      executor.New(),
		Sink:          eventSink,
		CheckInterval: time.Hour,
		WorkerLimit:   2,
	})
	if err != nil {
		t.Fatalf("construct scheduler: %v", err)
	}

	return s
}

func TestNewLoadsJobsFromDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJobFile(t, dir, "backup", "job_name: backup\ncommand: /bin/true\nenabled: true\n")
	writeJobFile(t, dir, "cleanup", "job_name: cleanup\ncommand: /bin/true\nenabled: false\n")

	s := newTestScheduler(t, dir, &memorySink{})

	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs loaded, got %d", len(jobs))
	}

	if jobs[0].Name() != "backup" || jobs[1].Name() != "cleanup" {
		t.Fatalf("expected jobs sorted by name, got %+v", jobs)
	}
}

func TestJobReturnsErrJobNotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestScheduler(t, dir, &memorySink{})

	_, err := s.Job("ghost")
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestCandidatesExcludesDeferredJobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJobFile(t, dir, "backup", "job_name: backup\ncommand: /bin/true\nenabled: true\n")
	writeJobFile(t, dir, "cleanup", "job_name: cleanup\ncommand: /bin/true\nenabled: true\n")

	s := newTestScheduler(t, dir, &memorySink{})

	now := time.Now()
	s.deferrals.Add("backup", now.Add(time.Hour))

	candidates := s.candidates(now)
	if len(candidates) != 1 || candidates[0].Name() != "cleanup" {
		t.Fatalf("expected only cleanup to be a candidate, got %+v", candidates)
	}
}

func TestCandidatesReleasesExpiredDeferrals(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJobFile(t, dir, "backup", "job_name: backup\ncommand: /bin/true\nenabled: true\n")

	s := newTestScheduler(t, dir, &memorySink{})

	past := time.Now().Add(-time.Minute)
	s.deferrals.Add("backup", past)

	candidates := s.candidates(time.Now())
	if len(candidates) != 1 {
		t.Fatalf("expected the expired deferral to release the job, got %+v", candidates)
	}

	if s.deferrals.Contains("backup") {
		t.Fatal("expected deferral entry to be removed once released")
	}
}

func TestRunJobNowBypassesDisabledAndLogsExecution(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJobFile(t, dir, "backup", "job_name: backup\ncommand: /bin/true\nenabled: false\n")

	eventSink := &memorySink{}
	s := newTestScheduler(t, dir, eventSink)

	err := s.RunJobNow(context.Background(), "backup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if eventSink.recordCount() != 1 {
		t.Fatalf("expected one execution record logged, got %d", eventSink.recordCount())
	}
}

func TestRunJobNowUnknownJobReturnsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestScheduler(t, dir, &memorySink{})

	err := s.RunJobNow(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestHandleOutcomeSchedulesRetryOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJobFile(t, dir, "backup", "job_name: backup\ncommand: exit 1\nenabled: true\nretry_on_fail: true\nmax_retries: 3\n")

	eventSink := &memorySink{}
	s := newTestScheduler(t, dir, eventSink)

	j := s.lookup("backup")
	if j == nil {
		t.Fatal("expected backup job to be loaded")
	}

	s.handleOutcome(outcome{
		jobName: "backup",
		result:  executor.Result{JobName: "backup", Success: false},
	})

	if j.State.RetryCount != 1 {
		t.Fatalf("expected retry count 1 after a retryable failure, got %d", j.State.RetryCount)
	}

	if !s.deferrals.Contains("backup") {
		t.Fatal("expected a retry deferral to be recorded")
	}
}

func TestHandleOutcomeClearsStateOnSuccess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJobFile(t, dir, "backup", "job_name: backup\ncommand: /bin/true\nenabled: true\n")

	eventSink := &memorySink{}
	s := newTestScheduler(t, dir, eventSink)

	j := s.lookup("backup")
	if j == nil {
		t.Fatal("expected backup job to be loaded")
	}

	j.IncrementRetry()
	s.deferrals.Add("backup", time.Now().Add(time.Hour))

	s.handleOutcome(outcome{
		jobName: "backup",
		result:  executor.Result{JobName: "backup", Success: true},
	})

	if j.State.RetryCount != 0 {
		t.Fatalf("expected retry count reset after success, got %d", j.State.RetryCount)
	}

	if s.deferrals.Contains("backup") {
		t.Fatal("expected deferral to be cleared after success")
	}
}

func TestHandleOutcomeExhaustsRetriesWithoutRescheduling(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJobFile(t, dir, "backup",
		"job_name: backup\ncommand: exit 1\nenabled: true\nretry_on_fail: true\nmax_retries: 1\n")

	eventSink := &memorySink{}
	s := newTestScheduler(t, dir, eventSink)

	j := s.lookup("backup")
	if j == nil {
		t.Fatal("expected backup job to be loaded")
	}

	j.State.RetryCount = 1

	s.handleOutcome(outcome{
		jobName: "backup",
		result:  executor.Result{JobName: "backup", Success: false},
	})

	if s.deferrals.Contains("backup") {
		t.Fatal("expected no further deferral once retries are exhausted")
	}
}

func TestReloadPreservesRuntimeStateForSurvivingJobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJobFile(t, dir, "backup", "job_name: backup\ncommand: /bin/true\nenabled: true\n")

	s := newTestScheduler(t, dir, &memorySink{})

	j := s.lookup("backup")
	if j == nil {
		t.Fatal("expected backup job to be loaded")
	}

	j.IncrementRetry()

	s.reload(time.Now())

	reloaded, err := s.Job("backup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reloaded.State.RetryCount != 1 {
		t.Fatalf("expected retry state to survive reload, got %d", reloaded.State.RetryCount)
	}
}

func TestReloadDropsJobsRemovedFromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJobFile(t, dir, "backup", "job_name: backup\ncommand: /bin/true\nenabled: true\n")

	s := newTestScheduler(t, dir, &memorySink{})

	err := os.Remove(filepath.Join(dir, "backup.yaml"))
	if err != nil {
		t.Fatalf("remove job file: %v", err)
	}

	s.reload(time.Now())

	if len(s.Jobs()) != 0 {
		t.Fatalf("expected the removed job to drop out, got %+v", s.Jobs())
	}
}

func TestTickDispatchesCandidatesAndRecordsMetrics(t *testing.T) {
	dir := t.TempDir()
	writeJobFile(t, dir, "backup", "job_name: backup\ncommand: /bin/true\nenabled: true\n")

	eventSink := &memorySink{}

	exporter := httpmetrics.NewExporter()

	loader := job.NewLoader(dir, nil)

	s, err := New(Dependencies{
		Loader:          loader,
		Prober:          telemetry.NewProber(nil),
		Executor:        executor.New(),
		Sink:            eventSink,
		CheckInterval:   time.Hour,
		WorkerLimit:     2,
		MetricsExporter: exporter,
	})
	if err != nil {
		t.Fatalf("construct scheduler: %v", err)
	}

	ctx := context.Background()

	s.tick(ctx, time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for eventSink.recordCount() == 0 && time.Now().Before(deadline) {
		select {
		case o := <-s.outcomes:
			s.handleOutcome(o)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if eventSink.recordCount() == 0 {
		t.Fatal("expected the dispatched job to log an execution record")
	}

	rendered, err := exporter.Render()
	if err != nil {
		t.Fatalf("render metrics: %v", err)
	}

	if len(rendered) == 0 {
		t.Fatal("expected metrics export to be non-empty after a tick")
	}
}
