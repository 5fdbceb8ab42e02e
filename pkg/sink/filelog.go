package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const logSeparator = "================================================================================"

// FileLogger appends a human-readable execution record to
// "<dir>/<job-name>.log", mirroring the original project's per-job log
// file alongside the structured sink.
type FileLogger struct {
	Dir string
}

// NewFileLogger constructs a FileLogger rooted at dir. dir is created
// lazily on first write.
func NewFileLogger(dir string) *FileLogger {
	return &FileLogger{Dir: dir}
}

// Append writes one execution record to the job's log file.
func (f *FileLogger) Append(record ExecutionRecord) error {
	err := os.MkdirAll(f.Dir, 0o755)
	if err != nil {
		return fmt.Errorf("create log dir %q: %w", f.Dir, err)
	}

	path := filepath.Join(f.Dir, record.Result.JobName+".log")

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open job log %q: %w", path, err)
	}
	defer file.Close()

	_, err = file.WriteString(formatEntry(record))
	if err != nil {
		return fmt.Errorf("write job log %q: %w", path, err)
	}

	return nil
}

func formatEntry(record ExecutionRecord) string {
	result := record.Result

	status := "FAILED"
	if result.Success {
		status = "SUCCESS"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "\n%s\n", logSeparator)
	fmt.Fprintf(&b, "Execution at %s\n", result.StartTime.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Exit Code: %d\n", result.ExitCode)
	fmt.Fprintf(&b, "Duration: %.2fs\n", result.ExecutionTime.Seconds())

	if record.AIDecisionReason != "" {
		fmt.Fprintf(&b, "AI Decision: %s\n", record.AIDecisionReason)
	}

	fmt.Fprintf(&b, "\nSTDOUT:\n%s\n", result.Stdout)

	if result.Stderr != "" {
		fmt.Fprintf(&b, "\nSTDERR:\n%s\n", result.Stderr)
	}

	fmt.Fprintf(&b, "%s\n", logSeparator)

	return b.String()
}
