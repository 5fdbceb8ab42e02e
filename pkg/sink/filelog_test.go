package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"smartcron/pkg/executor"
)

func TestFileLoggerAppendCreatesLogFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger := NewFileLogger(filepath.Join(dir, "logs"))

	record := ExecutionRecord{
		Result: executor.Result{
			JobName:       "backup",
			StartTime:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			ExitCode:      0,
			Stdout:        "all good",
			ExecutionTime: 2 * time.Second,
			Success:       true,
		},
		AIDecisionReason: "predictor approved",
	}

	err := logger.Append(record)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "logs", "backup.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	contents := string(data)

	for _, want := range []string{"SUCCESS", "Exit Code: 0", "all good", "predictor approved"} {
		if !strings.Contains(contents, want) {
			t.Fatalf("expected log contents to contain %q, got %q", want, contents)
		}
	}
}

func TestFileLoggerAppendIsCumulative(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger := NewFileLogger(dir)

	for i := 0; i < 2; i++ {
		err := logger.Append(ExecutionRecord{
			Result: executor.Result{JobName: "cleanup", StartTime: time.Now(), Success: true},
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "cleanup.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	if strings.Count(string(data), logSeparator) != 4 {
		t.Fatalf("expected two appended entries (4 separators), got contents: %q", string(data))
	}
}

func TestFileLoggerAppendIncludesStderrWhenPresent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger := NewFileLogger(dir)

	err := logger.Append(ExecutionRecord{
		Result: executor.Result{JobName: "job", StartTime: time.Now(), Stderr: "boom", Success: false},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "job.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	if !strings.Contains(string(data), "STDERR:\nboom") {
		t.Fatalf("expected stderr section, got %q", string(data))
	}

	if !strings.Contains(string(data), "FAILED") {
		t.Fatalf("expected FAILED status, got %q", string(data))
	}
}

func TestFileLoggerCreatesDirLazily(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger := NewFileLogger(dir)

	err := logger.Append(ExecutionRecord{
		Result: executor.Result{JobName: "job", StartTime: time.Now(), Success: true},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected log dir to be created, got %v", err)
	}
}
