// Package httpmetrics exposes scheduler and host-telemetry gauges as
// a hand-rolled OpenMetrics text surface — the same approach the
// daemon has always used for its HTTP metrics endpoint, with no
// Prometheus client library pulled in.
package httpmetrics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
)

const contentType = "application/openmetrics-text; version=1.0.0; charset=utf-8"

var errNilWriter = errors.New("httpmetrics: writer is nil")

// Exporter tracks scheduler and telemetry gauges and serves them over
// HTTP.
type Exporter struct {
	mu sync.RWMutex

	jobsTotal         float64
	jobsDeferred      float64
	lastTickEpoch     float64
	hostCPUPercent    float64
	hostMemoryPercent float64
	hostDiskFreeGB    float64
	batteryPresent    float64
	batteryPercent    float64
	executionsTotal   float64
	executionFailures float64
}

// NewExporter constructs an Exporter with zeroed gauges.
func NewExporter() *Exporter {
	return new(Exporter)
}

// SetJobCounts records the total job count and how many currently have
// a live deferral entry.
func (e *Exporter) SetJobCounts(total, deferred int) {
	e.mu.Lock()
	e.jobsTotal = sanitize(float64(total))
	e.jobsDeferred = sanitize(float64(deferred))
	e.mu.Unlock()
}

// ObserveTick records the epoch seconds of the most recently completed
// tick.
func (e *Exporter) ObserveTick(epochSeconds int64) {
	e.mu.Lock()
	e.lastTickEpoch = float64(epochSeconds)
	e.mu.Unlock()
}

// ObserveHostMetrics records the latest telemetry snapshot's
// CPU/memory/disk/battery readings.
func (e *Exporter) ObserveHostMetrics(cpuPercent, memoryPercent, diskFreeGB float64, battery *float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hostCPUPercent = sanitize(cpuPercent)
	e.hostMemoryPercent = sanitize(memoryPercent)
	e.hostDiskFreeGB = sanitize(diskFreeGB)

	if battery == nil {
		e.batteryPresent = 0
		e.batteryPercent = 0

		return
	}

	e.batteryPresent = 1
	e.batteryPercent = sanitize(*battery)
}

// ObserveExecution increments the execution counters.
func (e *Exporter) ObserveExecution(success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.executionsTotal++

	if !success {
		e.executionFailures++
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}

// ServeHTTP implements http.Handler.
func (e *Exporter) ServeHTTP(writer http.ResponseWriter, _ *http.Request) {
	data, err := e.Render()
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)

		return
	}

	writer.Header().Set("Content-Type", contentType)
	_, _ = writer.Write(data)
}

// Render returns the current gauges encoded as OpenMetrics text.
func (e *Exporter) Render() ([]byte, error) {
	var buffer bytes.Buffer

	_, err := e.WriteTo(&buffer)
	if err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

// WriteTo writes the current gauges to dst.
func (e *Exporter) WriteTo(dst io.Writer) (int64, error) {
	if dst == nil {
		return 0, errNilWriter
	}

	snapshot := e.snapshot()

	lines := []string{
		"# HELP smartcron_jobs_total Number of jobs currently loaded.\n",
		"# TYPE smartcron_jobs_total gauge\n",
		fmt.Sprintf("smartcron_jobs_total %.0f\n", snapshot.jobsTotal),
		"# HELP smartcron_jobs_deferred Number of jobs currently holding a deferral entry.\n",
		"# TYPE smartcron_jobs_deferred gauge\n",
		fmt.Sprintf("smartcron_jobs_deferred %.0f\n", snapshot.jobsDeferred),
		"# HELP smartcron_last_tick_epoch Unix epoch seconds of the last completed tick.\n",
		"# TYPE smartcron_last_tick_epoch counter\n",
		fmt.Sprintf("smartcron_last_tick_epoch %.0f\n", snapshot.lastTickEpoch),
		"# HELP host_cpu_percent Last sampled host CPU utilisation percentage.\n",
		"# TYPE host_cpu_percent gauge\n",
		fmt.Sprintf("host_cpu_percent %.2f\n", snapshot.hostCPUPercent),
		"# HELP host_memory_percent Last sampled host memory utilisation percentage.\n",
		"# TYPE host_memory_percent gauge\n",
		fmt.Sprintf("host_memory_percent %.2f\n", snapshot.hostMemoryPercent),
		"# HELP host_disk_free_gb Last sampled free disk space at / in gigabytes.\n",
		"# TYPE host_disk_free_gb gauge\n",
		fmt.Sprintf("host_disk_free_gb %.2f\n", snapshot.hostDiskFreeGB),
		"# HELP host_battery_present Whether the host reports a battery (1) or not (0).\n",
		"# TYPE host_battery_present gauge\n",
		fmt.Sprintf("host_battery_present %.0f\n", snapshot.batteryPresent),
		"# HELP host_battery_percent Last sampled battery percentage, 0 when absent.\n",
		"# TYPE host_battery_percent gauge\n",
		fmt.Sprintf("host_battery_percent %.2f\n", snapshot.batteryPercent),
		"# HELP smartcron_executions_total Total job executions dispatched.\n",
		"# TYPE smartcron_executions_total counter\n",
		fmt.Sprintf("smartcron_executions_total %.0f\n", snapshot.executionsTotal),
		"# HELP smartcron_execution_failures_total Total job executions that did not succeed.\n",
		"# TYPE smartcron_execution_failures_total counter\n",
		fmt.Sprintf("smartcron_execution_failures_total %.0f\n", snapshot.executionFailures),
		"# EOF\n",
	}

	var total int64

	for _, line := range lines {
		n, writeErr := io.WriteString(dst, line)

		total += int64(n)
		if writeErr != nil {
			return total, fmt.Errorf("write metrics: %w", writeErr)
		}
	}

	return total, nil
}

type exporterSnapshot struct {
	jobsTotal         float64
	jobsDeferred      float64
	lastTickEpoch     float64
	hostCPUPercent    float64
	hostMemoryPercent float64
	hostDiskFreeGB    float64
	batteryPresent    float64
	batteryPercent    float64
	executionsTotal   float64
	executionFailures float64
}

func (e *Exporter) snapshot() exporterSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return exporterSnapshot{
		jobsTotal:         e.jobsTotal,
		jobsDeferred:      e.jobsDeferred,
		lastTickEpoch:     e.lastTickEpoch,
		hostCPUPercent:    e.hostCPUPercent,
		hostMemoryPercent: e.hostMemoryPercent,
		hostDiskFreeGB:    e.hostDiskFreeGB,
		batteryPresent:    e.batteryPresent,
		batteryPercent:    e.batteryPercent,
		executionsTotal:   e.executionsTotal,
		executionFailures: e.executionFailures,
	}
}
