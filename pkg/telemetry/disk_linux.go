//go:build linux

package telemetry

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

const (
	diskRoot   = "/"
	bytesPerGB = 1024 * 1024 * 1024
)

// sampleDisk prefers gopsutil's usage reading and falls back to a
// direct unix.Statfs call on the root filesystem.
func sampleDisk(ctx context.Context) (Disk, error) {
	usage, err := disk.UsageWithContext(ctx, diskRoot)
	if err == nil {
		return Disk{
			TotalGB: float64(usage.Total) / bytesPerGB,
			UsedGB:  float64(usage.Used) / bytesPerGB,
			FreeGB:  float64(usage.Free) / bytesPerGB,
			Percent: usage.UsedPercent,
		}, nil
	}

	var stat unix.Statfs_t

	statErr := unix.Statfs(diskRoot, &stat)
	if statErr != nil {
		return Disk{}, fmt.Errorf("disk: gopsutil: %v; statfs: %w", err, statErr)
	}

	blockSize := uint64(stat.Bsize)
	totalBytes := stat.Blocks * blockSize
	freeBytes := stat.Bavail * blockSize
	usedBytes := uint64(0)

	if totalBytes > freeBytes {
		usedBytes = totalBytes - freeBytes
	}

	percent := 0.0
	if totalBytes > 0 {
		percent = float64(usedBytes) / float64(totalBytes) * 100
	}

	return Disk{
		TotalGB: float64(totalBytes) / bytesPerGB,
		UsedGB:  float64(usedBytes) / bytesPerGB,
		FreeGB:  float64(freeBytes) / bytesPerGB,
		Percent: percent,
	}, nil
}
