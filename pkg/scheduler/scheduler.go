// Package scheduler drives the periodic tick that ties telemetry,
// decision-making, deferral, and execution together into the daemon's
// main loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartcron/pkg/decision"
	"smartcron/pkg/deferral"
	"smartcron/pkg/executor"
	"smartcron/pkg/httpmetrics"
	"smartcron/pkg/job"
	"smartcron/pkg/predict"
	"smartcron/pkg/sink"
	"smartcron/pkg/telemetry"
)

// ReloadInterval is the minimum time between config-directory reloads.
const ReloadInterval = 300 * time.Second

// Scheduler owns the job set, the deferral store, and the single
// ticking loop. It is not safe to call Run concurrently with itself.
// Job runtime state (retry count, last-run fields) is only ever
// written while holding mu — by the loop goroutine in handleOutcome,
// or by RunJobNow on whatever goroutine calls it — and Jobs/Job take
// the same lock and hand back a copy of each Job, so those three and
// the HTTP surfaces built on them are safe to call from other
// goroutines while Run is active.
type Scheduler struct {
	logger *zap.Logger

	loader     *job.Loader
	prober     *telemetry.Prober
	predictor  predict.Predictor
	executor   *executor.Executor
	eventSink  sink.Sink
	fileLogger *sink.FileLogger
	deferrals  *deferral.Store
	metrics    *httpmetrics.Exporter

	checkInterval time.Duration
	workerLimit   int

	mu         sync.Mutex
	jobs       map[string]*job.Job
	lastReload time.Time

	outcomes chan outcome
	workers  chan struct{}
}

// Dependencies wires every collaborator the scheduler needs. Fields
// left nil get a harmless default: Predictor becomes a NullPredictor,
// Logger becomes a no-op logger.
type Dependencies struct {
	Loader        *job.Loader
	Prober        *telemetry.Prober
	Predictor     predict.Predictor
	Executor      *executor.Executor
	Sink          sink.Sink
	FileLogger    *sink.FileLogger
	Logger        *zap.Logger
	CheckInterval time.Duration
	WorkerLimit   int

	// MetricsExporter is optional. When set, the scheduler feeds it job
	// counts, tick timestamps, host telemetry, and execution outcomes
	// for the HTTP metrics surface.
	MetricsExporter *httpmetrics.Exporter
}

const (
	defaultCheckInterval = 60 * time.Second
	defaultWorkerLimit   = 4
	terminalRetryDefer   = 5 * time.Minute
)

// New constructs a Scheduler. It performs an initial synchronous load
// of the job directory so Run starts with a populated job set.
func New(deps Dependencies) (*Scheduler, error) {
	if deps.Predictor == nil {
		deps.Predictor = predict.NullPredictor{}
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	if deps.CheckInterval <= 0 {
		deps.CheckInterval = defaultCheckInterval
	}

	if deps.WorkerLimit <= 0 {
		deps.WorkerLimit = defaultWorkerLimit
	}

	s := &Scheduler{
		logger:        deps.Logger,
		loader:        deps.Loader,
		prober:        deps.Prober,
		predictor:     deps.Predictor,
		executor:      deps.Executor,
		eventSink:     deps.Sink,
		fileLogger:    deps.FileLogger,
		deferrals:     deferral.NewStore(),
		metrics:       deps.MetricsExporter,
		checkInterval: deps.CheckInterval,
		workerLimit:   deps.WorkerLimit,
		jobs:          make(map[string]*job.Job),
		outcomes:      make(chan outcome, deps.WorkerLimit),
		workers:       make(chan struct{}, deps.WorkerLimit),
	}

	s.reload(time.Now())

	return s, nil
}

type outcome struct {
	jobName          string
	result           executor.Result
	metrics          telemetry.Snapshot
	aiDecisionReason string
}

// Run drives the tick loop until ctx is cancelled. It returns the
// context's error on exit. Cancellation is cooperative: the current
// tick's already-dispatched jobs are not killed.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now)
		case result := <-s.outcomes:
			s.handleOutcome(result)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if now.Sub(s.lastReloadTime()) > ReloadInterval {
		s.reload(now)
	}

	candidates := s.candidates(now)
	if len(candidates) == 0 {
		return
	}

	metrics := s.prober.Sample(ctx)

	if s.eventSink != nil {
		err := s.eventSink.LogMetrics(ctx, metrics)
		if err != nil {
			s.logger.Warn("log metrics snapshot failed", zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveTick(now.Unix())
		s.observeHostMetrics(metrics)
		s.observeJobCounts()
	}

	decisions := make([]decision.Decision, 0, len(candidates))

	for _, j := range candidates {
		decisions = append(decisions, decision.Decide(ctx, j, metrics, s.predictor, now, false))
	}

	prioritized := decision.Prioritize(decisions)

	for _, d := range prioritized {
		s.dispatch(ctx, d, metrics)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, d decision.Decision, metrics telemetry.Snapshot) {
	if d.ShouldRun {
		j := s.lookup(d.JobName)
		if j == nil {
			return
		}

		s.deferrals.Add(d.JobName, deferral.InFlightDeadline)

		s.workers <- struct{}{}

		go func() {
			defer func() { <-s.workers }()

			result := s.executor.ExecuteWithRetry(context.WithoutCancel(ctx), j, metrics)

			s.outcomes <- outcome{
				jobName:          d.JobName,
				result:           result,
				metrics:          metrics,
				aiDecisionReason: d.Reason,
			}
		}()

		return
	}

	if d.DeferUntil != nil {
		s.deferrals.Add(d.JobName, *d.DeferUntil)
	}
}

func (s *Scheduler) handleOutcome(o outcome) {
	j := s.lookup(o.jobName)
	if j == nil {
		return
	}

	if s.metrics != nil {
		s.metrics.ObserveExecution(o.result.Success)
	}

	if s.eventSink != nil {
		record := sink.ExecutionRecord{Result: o.result, Metrics: o.metrics, AIDecisionReason: o.aiDecisionReason}

		err := s.eventSink.LogExecution(context.Background(), record)
		if err != nil {
			s.logger.Warn("log execution failed", zap.Error(err), zap.String("job", o.jobName))
		}

		if s.fileLogger != nil {
			err = s.fileLogger.Append(record)
			if err != nil {
				s.logger.Warn("append job log file failed", zap.Error(err), zap.String("job", o.jobName))
			}
		}
	}

	retry := false

	s.withJobState(j, func() {
		j.RecordRun(o.result.EndTime, o.result.Success)

		if !o.result.Success && j.Spec.RetryOnFail && j.State.RetryCount < j.Spec.MaxRetries {
			j.IncrementRetry()
			retry = true

			return
		}

		j.ResetRetries()
	})

	// The in-flight lock dispatch set before handing the job to a
	// worker must be cleared before any re-defer: Store.Add keeps the
	// most patient deadline, so adding a nearer retry deadline on top
	// of the still-live in-flight sentinel would be silently dropped
	// and the job would never be released again.
	s.deferrals.Clear(o.jobName)

	if retry {
		s.deferrals.Add(o.jobName, time.Now().Add(terminalRetryDefer))

		s.logger.Info("job will be retried",
			zap.String("job", o.jobName), zap.Int("attempt", j.State.RetryCount), zap.Int("max_retries", j.Spec.MaxRetries))
	}
}

// withJobState mutates j's runtime fields while holding the
// scheduler's mutex, so a concurrent read via Jobs or Job — which
// takes the same lock before copying a Job out — never observes a
// partial write from the loop goroutine or a forced RunJobNow call.
func (s *Scheduler) withJobState(j *job.Job, mutate func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mutate()
}

// RunJobNow bypasses the decision engine (force=true) but still
// samples metrics and logs normally, matching the operator-override
// bypass.
func (s *Scheduler) RunJobNow(ctx context.Context, jobName string) error {
	j := s.lookup(jobName)
	if j == nil {
		return fmt.Errorf("run job now: %w: %s", ErrJobNotFound, jobName)
	}

	metrics := s.prober.Sample(ctx)

	d := decision.Decide(ctx, j, metrics, s.predictor, time.Now(), true)

	result := s.executor.ExecuteWithRetry(ctx, j, metrics)

	if s.eventSink != nil {
		record := sink.ExecutionRecord{Result: result, Metrics: metrics, AIDecisionReason: d.Reason}

		err := s.eventSink.LogExecution(ctx, record)
		if err != nil {
			return fmt.Errorf("run job now: log execution: %w", err)
		}

		if s.fileLogger != nil {
			err = s.fileLogger.Append(record)
			if err != nil {
				return fmt.Errorf("run job now: append job log: %w", err)
			}
		}
	}

	s.withJobState(j, func() {
		j.RecordRun(result.EndTime, result.Success)
		j.ResetRetries()
	})

	s.deferrals.Clear(jobName)

	return nil
}

// candidates returns jobs eligible for decision this tick: every job
// not currently parked under a still-live deferral (including an
// in-flight lock), plus any job whose deferral has just come due.
func (s *Scheduler) candidates(now time.Time) []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make(map[string]bool)
	for _, name := range s.deferrals.ReleaseDue(now) {
		due[name] = true
	}

	result := make([]*job.Job, 0, len(s.jobs))

	for name, j := range s.jobs {
		if due[name] || !s.deferrals.Contains(name) {
			result = append(result, j)
		}
	}

	sort.Slice(result, func(i, k int) bool { return result[i].Name() < result[k].Name() })

	return result
}

func (s *Scheduler) observeHostMetrics(metrics telemetry.Snapshot) {
	var battery *float64
	if metrics.Battery != nil {
		percent := metrics.Battery.Percent
		battery = &percent
	}

	s.metrics.ObserveHostMetrics(metrics.CPU.CPUPercent, metrics.Memory.Percent, metrics.Disk.FreeGB, battery)
}

func (s *Scheduler) observeJobCounts() {
	s.mu.Lock()
	total := len(s.jobs)
	s.mu.Unlock()

	deferred := s.deferrals.Len()

	s.metrics.SetJobCounts(total, deferred)
}

func (s *Scheduler) lookup(name string) *job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jobs[name]
}

func (s *Scheduler) lastReloadTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastReload
}

// reload replaces the active job set from disk. Jobs removed from disk
// are dropped; jobs present in both sets keep their runtime state;
// new jobs start fresh. Config errors are logged and the offending
// file is skipped.
func (s *Scheduler) reload(now time.Time) {
	specs, errs := s.loader.LoadAll()

	for _, err := range errs {
		s.logger.Warn("job config load error", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*job.Job, len(specs))

	for _, spec := range specs {
		if existing, ok := s.jobs[spec.Name]; ok {
			next[spec.Name] = &job.Job{Spec: spec, State: existing.State}
		} else {
			next[spec.Name] = &job.Job{Spec: spec}
		}
	}

	s.jobs = next
	s.lastReload = now
}

// Jobs returns a snapshot copy of the current job set, for the status
// and operator CLI surfaces. Each entry is copied out while mu is
// held, so its State reflects a consistent point in time and the
// caller never races the loop goroutine's subsequent writes.
func (s *Scheduler) Jobs() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		snapshot := *j
		result = append(result, &snapshot)
	}

	sort.Slice(result, func(i, k int) bool { return result[i].Name() < result[k].Name() })

	return result
}

// ErrJobNotFound is returned by RunJobNow and Job for an unknown name.
var ErrJobNotFound = errors.New("scheduler: job not found")

// Job returns a copy of a single job by name, or ErrJobNotFound.
func (s *Scheduler) Job(name string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	snapshot := *j

	return &snapshot, nil
}
