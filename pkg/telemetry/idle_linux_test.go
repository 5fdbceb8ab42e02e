//go:build linux

package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var errNoIdleTool = errors.New("telemetry: xprintidle not found")

func stubIdleSources(t *testing.T, xprintidleOut string, xprintidleErr error, whoOut string, whoErr error) {
	t.Helper()

	originalLook := lookXprintidle
	originalRun := runCommand

	t.Cleanup(func() {
		lookXprintidle = originalLook
		runCommand = originalRun
	})

	lookXprintidle = func() (string, error) {
		if xprintidleErr != nil {
			return "", xprintidleErr
		}

		return "/usr/bin/xprintidle", nil
	}

	runCommand = func(_ context.Context, name string, _ ...string) ([]byte, error) {
		if name == "who" {
			return []byte(whoOut), whoErr
		}

		return []byte(xprintidleOut), xprintidleErr
	}
}

func TestSampleIdleTimePrefersXprintidle(t *testing.T) {
	stubIdleSources(t, "45000\n", nil, "", nil)

	idle, err := sampleIdleTime(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if idle == nil || *idle != 45 {
		t.Fatalf("expected 45 seconds idle, got %v", idle)
	}
}

func TestSampleIdleTimeFallsBackToActiveSession(t *testing.T) {
	stubIdleSources(t, "", errNoIdleTool, "alice tty1\n", nil)

	idle, err := sampleIdleTime(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if idle == nil || *idle != 0 {
		t.Fatalf("expected 0 seconds idle for an active session, got %v", idle)
	}
}

func TestSampleIdleTimeFallsBackToUptimeWhenNoSession(t *testing.T) {
	originalLook := lookXprintidle
	originalRun := runCommand

	t.Cleanup(func() {
		lookXprintidle = originalLook
		runCommand = originalRun
	})

	lookXprintidle = func() (string, error) { return "", errNoIdleTool }
	runCommand = func(context.Context, string, ...string) ([]byte, error) { return []byte(""), nil }

	dir := t.TempDir()
	uptimePath := filepath.Join(dir, "uptime")

	err := os.WriteFile(uptimePath, []byte("123.45 67.89\n"), 0o600)
	if err != nil {
		t.Fatalf("write uptime file: %v", err)
	}

	uptime, readErr := readUptimeSeconds(uptimePath)
	if readErr != nil {
		t.Fatalf("unexpected error reading uptime: %v", readErr)
	}

	if uptime != 123 {
		t.Fatalf("expected uptime 123, got %d", uptime)
	}

	idle, sampleErr := sampleIdleTime(t.Context())
	if sampleErr != nil {
		t.Fatalf("unexpected error from uptime fallback: %v", sampleErr)
	}

	if idle == nil {
		t.Fatal("expected uptime fallback to report an idle time")
	}
}

func TestReadUptimeSecondsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := readUptimeSeconds(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing uptime file")
	}
}
