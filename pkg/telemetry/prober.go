package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SampleBudget bounds the wall-clock cost of one Sample call so a slow
// or hanging source cannot starve the scheduler tick.
const SampleBudget = 200 * time.Millisecond

// loadAverages is the OS load-average reading. It is reduced to zero
// (with a warning logged) when the load API is unavailable.
type loadAverages struct {
	Load1m  float64
	Load5m  float64
	Load15m float64
}

// Prober samples a Snapshot on demand. Each field is resolved by its own
// function so unit tests can substitute fakes without touching the
// others; the zero value wires nothing and must go through NewProber.
type Prober struct {
	logger *zap.Logger

	cpuLoad    func(ctx context.Context) (loadAverages, error)
	cpuPercent func(ctx context.Context) (float64, error)
	memory     func(ctx context.Context) (Memory, error)
	battery    func(ctx context.Context) (*Battery, error)
	disk       func(ctx context.Context) (Disk, error)
	idleTime   func(ctx context.Context) (*int, error)

	now func() time.Time
}

// NewProber constructs a Prober wired to this host's OS-specific
// sources. logger may be nil, in which case a no-op logger is used.
func NewProber(logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Prober{
		logger:     logger,
		cpuLoad:    sampleCPULoad,
		cpuPercent: sampleCPUPercent,
		memory:     sampleMemory,
		battery:    sampleBattery,
		disk:       sampleDisk,
		idleTime:   sampleIdleTime,
		now:        time.Now,
	}
}

// Sample produces a complete Snapshot. No single missing signal fails
// the call: a field that errors or exceeds the budget degrades to its
// documented default and is logged (at warn level for CPU, memory and
// disk; at debug level for idle time and battery).
func (p *Prober) Sample(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, SampleBudget)
	defer cancel()

	snapshot := Snapshot{Timestamp: p.now()}

	var wg sync.WaitGroup

	wg.Add(5)

	go func() {
		defer wg.Done()

		loads, err := p.cpuLoad(ctx)
		if err != nil {
			p.logger.Warn("cpu load unavailable", zap.Error(err))

			return
		}

		snapshot.CPU.Load1m = loads.Load1m
		snapshot.CPU.Load5m = loads.Load5m
		snapshot.CPU.Load15m = loads.Load15m
	}()

	go func() {
		defer wg.Done()

		percent, err := p.cpuPercent(ctx)
		if err != nil {
			p.logger.Warn("cpu percent unavailable", zap.Error(err))

			return
		}

		snapshot.CPU.CPUPercent = percent
	}()

	go func() {
		defer wg.Done()

		memory, err := p.memory(ctx)
		if err != nil {
			p.logger.Warn("memory metrics unavailable", zap.Error(err))

			return
		}

		snapshot.Memory = memory
	}()

	go func() {
		defer wg.Done()

		disk, err := p.disk(ctx)
		if err != nil {
			p.logger.Warn("disk metrics unavailable", zap.Error(err))

			return
		}

		snapshot.Disk = disk
	}()

	go func() {
		defer wg.Done()

		idle, err := p.idleTime(ctx)
		if err != nil {
			p.logger.Debug("idle time unavailable", zap.Error(err))

			return
		}

		snapshot.IdleTimeSec = idle
	}()

	// Battery absence is not an error (no battery on host); it runs on
	// the calling goroutine only after the others are in flight so its
	// own blocking cost still counts against the shared budget.
	battery, err := p.battery(ctx)
	if err != nil {
		p.logger.Debug("battery metrics unavailable", zap.Error(err))
	} else {
		snapshot.Battery = battery
	}

	wg.Wait()

	return snapshot
}
