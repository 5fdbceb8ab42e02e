// Package httpstatus renders the daemon's job status as JSON, the
// same small hand-rolled handler pattern the daemon has always used
// for its status endpoint.
package httpstatus

import (
	"encoding/json"
	"net/http"

	"smartcron/pkg/job"
)

// Source exposes the read-only job view the handler renders.
type Source interface {
	Jobs() []*job.Job
}

// JobStatus is one job's entry in the status payload.
type JobStatus struct {
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	LastRunTime    *int64 `json:"last_run_time"`
	LastRunSuccess *bool  `json:"last_run_success"`
	RetryCount     int    `json:"retry_count"`
}

// Snapshot is the full status payload.
type Snapshot struct {
	Jobs []JobStatus `json:"jobs"`
}

// Handler renders the scheduler's job status as JSON.
type Handler struct {
	source Source
}

// NewHandler constructs a Handler backed by source.
func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(writer http.ResponseWriter, _ *http.Request) {
	if h == nil || h.source == nil {
		http.Error(writer, "scheduler unavailable", http.StatusServiceUnavailable)

		return
	}

	jobs := h.source.Jobs()
	snapshot := Snapshot{Jobs: make([]JobStatus, 0, len(jobs))}

	for _, j := range jobs {
		status := JobStatus{
			Name:       j.Name(),
			Enabled:    j.Spec.Enabled,
			RetryCount: j.State.RetryCount,
		}

		if j.State.LastRunTime != nil {
			epoch := j.State.LastRunTime.Unix()
			status.LastRunTime = &epoch
		}

		if j.State.LastRunSuccess != nil {
			success := *j.State.LastRunSuccess
			status.LastRunSuccess = &success
		}

		snapshot.Jobs = append(snapshot.Jobs, status)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		http.Error(writer, "marshal status", http.StatusInternalServerError)

		return
	}

	writer.Header().Set("Content-Type", "application/json")
	_, _ = writer.Write(payload)
}
