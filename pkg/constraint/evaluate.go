// Package constraint evaluates a job's resource constraints against a
// telemetry snapshot. Check is a pure function: no I/O, no clock.
package constraint

import (
	"fmt"

	"smartcron/pkg/job"
	"smartcron/pkg/telemetry"
)

// Check reports whether every configured constraint holds against the
// given snapshot. Failures carry one human-readable string per
// violated constraint, naming the observed value and the limit. An
// absent or unknown metric backing a configured constraint fails
// conservatively, except battery: a host with no battery always
// passes a battery constraint vacuously.
func Check(metrics telemetry.Snapshot, constraints job.Constraints) (bool, []string) {
	var failures []string

	if constraints.MaxCPUPercent != nil && metrics.CPU.CPUPercent > *constraints.MaxCPUPercent {
		failures = append(failures, fmt.Sprintf(
			"CPU %.1f%% > %.0f%%", metrics.CPU.CPUPercent, *constraints.MaxCPUPercent))
	}

	if constraints.MaxMemoryPercent != nil && metrics.Memory.Percent > *constraints.MaxMemoryPercent {
		failures = append(failures, fmt.Sprintf(
			"memory %.1f%% > %.0f%%", metrics.Memory.Percent, *constraints.MaxMemoryPercent))
	}

	if constraints.MinBatteryPct != nil {
		if failure, ok := checkBattery(metrics.Battery, *constraints.MinBatteryPct); !ok {
			failures = append(failures, failure)
		}
	}

	if constraints.MinDiskFreeGB != nil && metrics.Disk.FreeGB < *constraints.MinDiskFreeGB {
		failures = append(failures, fmt.Sprintf(
			"disk free %.1fGB < %.1fGB", metrics.Disk.FreeGB, *constraints.MinDiskFreeGB))
	}

	if constraints.MinIdleTimeSec != nil {
		if failure, ok := checkIdleTime(metrics.IdleTimeSec, *constraints.MinIdleTimeSec); !ok {
			failures = append(failures, failure)
		}
	}

	return len(failures) == 0, failures
}

func checkBattery(battery *telemetry.Battery, limit float64) (string, bool) {
	if battery == nil {
		return "", true
	}

	if battery.IsCharging {
		return "", true
	}

	if battery.Percent >= limit {
		return "", true
	}

	return fmt.Sprintf("battery %.0f%% < %.0f%%", battery.Percent, limit), false
}

func checkIdleTime(idleSec *int, limit int) (string, bool) {
	if idleSec == nil {
		return "idle time unknown", false
	}

	if *idleSec >= limit {
		return "", true
	}

	return fmt.Sprintf("idle %ds < %ds", *idleSec, limit), false
}
