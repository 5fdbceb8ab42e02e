//go:build linux

package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"golang.org/x/sys/unix"
)

const (
	procStatPath         = "/proc/stat"
	minimumCPUStatFields = 5
	idleFieldIndex       = 3
	ioWaitFieldIndex     = 4
	loadScale            = 65536.0
)

var ErrUnexpectedProcStatFormat = errors.New("telemetry: unexpected /proc/stat format")

// sampleCPULoad prefers the OS load-average API (gopsutil, backed by
// /proc/loadavg) and falls back to unix.Sysinfo's fixed-point load
// fields, matching the "required; zero with a warning if unavailable"
// source ordering.
func sampleCPULoad(ctx context.Context) (loadAverages, error) {
	avg, err := load.AvgWithContext(ctx)
	if err == nil {
		return loadAverages{Load1m: avg.Load1, Load5m: avg.Load5, Load15m: avg.Load15}, nil
	}

	var info unix.Sysinfo_t

	sysErr := unix.Sysinfo(&info)
	if sysErr != nil {
		return loadAverages{}, fmt.Errorf("load average: gopsutil: %w; sysinfo: %w", err, sysErr)
	}

	return loadAverages{
		Load1m:  float64(info.Loads[0]) / loadScale,
		Load5m:  float64(info.Loads[1]) / loadScale,
		Load15m: float64(info.Loads[2]) / loadScale,
	}, nil
}

// sampleCPUPercent prefers gopsutil's non-blocking percent reading and
// falls back to a point read of /proc/stat computing 1 − idle/total
// over the cumulative jiffy counters.
func sampleCPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(percents) > 0 {
		return percents[0], nil
	}

	file, openErr := os.Open(procStatPath)
	if openErr != nil {
		return 0, fmt.Errorf("cpu percent: gopsutil: %v; open %s: %w", err, procStatPath, openErr)
	}
	defer file.Close()

	idle, total, parseErr := parseProcStatTotals(file)
	if parseErr != nil {
		return 0, fmt.Errorf("cpu percent: parse %s: %w", procStatPath, parseErr)
	}

	if total == 0 {
		return 0, nil
	}

	percent := (1 - float64(idle)/float64(total)) * 100
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	return percent, nil
}

func parseProcStatTotals(f *os.File) (idle, total uint64, err error) {
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		scanErr := scanner.Err()
		if scanErr != nil {
			return 0, 0, fmt.Errorf("scan: %w", scanErr)
		}

		return 0, 0, fmt.Errorf("%w: empty file", ErrUnexpectedProcStatFormat)
	}

	line := scanner.Text()
	if !strings.HasPrefix(line, "cpu ") {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnexpectedProcStatFormat, line)
	}

	fields := strings.Fields(line)
	if len(fields) < minimumCPUStatFields {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnexpectedProcStatFormat, line)
	}

	for index, field := range fields[1:] {
		value, convErr := strconv.ParseUint(field, 10, 64)
		if convErr != nil {
			return 0, 0, fmt.Errorf("parse field %d: %w", index+1, convErr)
		}

		total += value

		if index == idleFieldIndex || index == ioWaitFieldIndex {
			idle += value
		}
	}

	return idle, total, nil
}
