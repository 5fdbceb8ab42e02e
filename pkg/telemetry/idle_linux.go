//go:build linux

package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const millisecondsPerSecond = 1000

var (
	lookXprintidle = func() (string, error) { return exec.LookPath("xprintidle") }
	runCommand     = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).Output()
	}
)

// sampleIdleTime invokes the X-idle helper first. On failure it checks
// for any logged-in session (idle time 0 if one exists), and failing
// that falls back to system uptime — a known, documented overestimate
// of true idleness, since it assumes nobody has ever touched the host.
func sampleIdleTime(ctx context.Context) (*int, error) {
	path, err := lookXprintidle()
	if err == nil {
		out, runErr := runCommand(ctx, path)
		if runErr == nil {
			millis, parseErr := strconv.Atoi(strings.TrimSpace(string(out)))
			if parseErr == nil {
				seconds := millis / millisecondsPerSecond

				return &seconds, nil
			}
		}
	}

	sessionActive, whoErr := hasActiveSession(ctx)
	if whoErr == nil {
		if sessionActive {
			zero := 0

			return &zero, nil
		}

		uptime, uptimeErr := readUptimeSeconds("/proc/uptime")
		if uptimeErr == nil {
			return &uptime, nil
		}

		return nil, fmt.Errorf("idle time: uptime fallback: %w", uptimeErr)
	}

	return nil, fmt.Errorf("idle time: xprintidle unavailable and who failed: %w", whoErr)
}

func hasActiveSession(ctx context.Context) (bool, error) {
	out, err := runCommand(ctx, "who")
	if err != nil {
		return false, fmt.Errorf("run who: %w", err)
	}

	return len(bytes.TrimSpace(out)) > 0, nil
}

func readUptimeSeconds(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("%s: empty", path)
	}

	uptime, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parse uptime: %w", err)
	}

	return int(uptime), nil
}
