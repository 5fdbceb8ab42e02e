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

	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerMB = 1024 * 1024

var ErrUnexpectedMeminfoFormat = errors.New("telemetry: unexpected /proc/meminfo format")

// sampleMemory prefers gopsutil's virtual memory reading and falls
// back to /proc/meminfo, computing used = MemTotal − MemAvailable (or
// MemTotal − MemFree when MemAvailable is absent, as on older kernels).
func sampleMemory(ctx context.Context) (Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		return Memory{
			TotalMB:     float64(vm.Total) / bytesPerMB,
			UsedMB:      float64(vm.Used) / bytesPerMB,
			AvailableMB: float64(vm.Available) / bytesPerMB,
			Percent:     vm.UsedPercent,
		}, nil
	}

	fields, readErr := readMeminfoFields("/proc/meminfo")
	if readErr != nil {
		return Memory{}, fmt.Errorf("memory: gopsutil: %v; meminfo: %w", err, readErr)
	}

	totalKB, ok := fields["MemTotal"]
	if !ok {
		return Memory{}, fmt.Errorf("%w: missing MemTotal", ErrUnexpectedMeminfoFormat)
	}

	availableKB, ok := fields["MemAvailable"]
	if !ok {
		availableKB, ok = fields["MemFree"]
		if !ok {
			return Memory{}, fmt.Errorf("%w: missing MemAvailable and MemFree", ErrUnexpectedMeminfoFormat)
		}
	}

	usedKB := totalKB - availableKB
	if usedKB < 0 {
		usedKB = 0
	}

	percent := 0.0
	if totalKB > 0 {
		percent = float64(usedKB) / float64(totalKB) * 100
	}

	const kbPerMB = 1024

	return Memory{
		TotalMB:     float64(totalKB) / kbPerMB,
		UsedMB:      float64(usedKB) / kbPerMB,
		AvailableMB: float64(availableKB) / kbPerMB,
		Percent:     percent,
	}, nil
}

func readMeminfoFields(path string) (map[string]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	fields := make(map[string]int64, 8)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])

		valueField := strings.Fields(strings.TrimSuffix(strings.TrimSpace(parts[1]), " kB"))
		if len(valueField) == 0 {
			continue
		}

		value, convErr := strconv.ParseInt(valueField[0], 10, 64)
		if convErr != nil {
			continue
		}

		fields[key] = value
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	return fields, nil
}
