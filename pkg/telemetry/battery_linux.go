//go:build linux

package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// batteryCandidates lists the power-supply nodes probed in order; the
// first one present wins. No battery library exists anywhere in the
// dependency set used here, so this source is stdlib-only by
// necessity rather than choice.
var batteryCandidates = []string{
	"/sys/class/power_supply/BAT0",
	"/sys/class/power_supply/BAT1",
}

// sampleBattery returns nil, nil when the host has no battery — that
// is not an error, just the documented "no battery on host" state.
func sampleBattery(_ context.Context) (*Battery, error) {
	for _, dir := range batteryCandidates {
		percent, err := readBatteryInt(dir + "/capacity")
		if err != nil {
			continue
		}

		status, err := readBatteryString(dir + "/status")
		if err != nil {
			status = ""
		}

		charging := status == "Charging" || status == "Full"

		return &Battery{Percent: float64(percent), IsCharging: charging}, nil
	}

	return nil, nil
}

func readBatteryInt(path string) (int, error) {
	raw, err := readBatteryString(path)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	return value, nil
}

func readBatteryString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}
