// Package main wires the smartcronctl operator CLI entrypoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"smartcron/pkg/job"
	"smartcron/pkg/sink"
	"smartcron/pkg/telemetry"
)

const (
	defaultConfigDir = "/etc/smartcron/jobs"
	defaultDBPath    = "/var/lib/smartcron/logs.db"

	nonRootConfigDir = "./jobs"
	nonRootDBPath    = "./smartcron_logs.db"

	defaultHistoryLimit = 10

	exitCodeSuccess = 0
	exitCodeFailure = 1
	exitCodeUsage   = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type globalOptions struct {
	configDir string
	dbPath    string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global, rest, err := parseGlobalOptions(args)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)

		return exitCodeUsage
	}

	if len(rest) == 0 {
		fmt.Fprintln(stdout, usageText())

		return exitCodeSuccess
	}

	command, rest := rest[0], rest[1:]

	switch command {
	case "list":
		return cmdList(global, stdout, stderr)
	case "show":
		return cmdShow(global, rest, stdout, stderr)
	case "status":
		return cmdStatus(ctx, stdout, stderr)
	case "history":
		return cmdHistory(ctx, global, rest, stdout, stderr)
	case "enable":
		return cmdToggle(global, rest, true, stdout, stderr)
	case "disable":
		return cmdToggle(global, rest, false, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", command)
		fmt.Fprintln(stdout, usageText())

		return exitCodeUsage
	}
}

func usageText() string {
	return "usage: smartcronctl [--config-dir dir] [--db path] <list|show|status|history|enable|disable> ..."
}

// parseGlobalOptions extracts the shared --config-dir/--db flags,
// which may appear anywhere before the subcommand name, and returns
// the remaining arguments starting at the subcommand.
func parseGlobalOptions(args []string) (globalOptions, []string, error) {
	opts := globalOptions{configDir: defaultConfigDir, dbPath: defaultDBPath}

	if !isElevated() {
		opts.configDir = nonRootConfigDir
		opts.dbPath = nonRootDBPath
	}

	flagSet := flag.NewFlagSet("smartcronctl", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.configDir, "config-dir", opts.configDir, "Job configuration directory")
	flagSet.StringVar(&opts.dbPath, "db", opts.dbPath, "Execution log database path")

	err := flagSet.Parse(args)
	if err != nil {
		return globalOptions{}, nil, fmt.Errorf("parse CLI arguments: %w", err)
	}

	return opts, flagSet.Args(), nil
}

var isElevated = func() bool { return os.Geteuid() == 0 } //nolint:gochecknoglobals // overridden in tests

func cmdList(global globalOptions, stdout, stderr io.Writer) int {
	loader := job.NewLoader(global.configDir, nil)

	specs, errs := loader.LoadAll()
	for _, loadErr := range errs {
		fmt.Fprintf(stderr, "warning: %v\n", loadErr)
	}

	if len(specs) == 0 {
		fmt.Fprintln(stdout, "No jobs configured.")

		return exitCodeSuccess
	}

	fmt.Fprintf(stdout, "\n%-30s %-10s %-10s\n", "Job Name", "Enabled", "AI Aware")
	fmt.Fprintln(stdout, strings.Repeat("-", 60))

	for _, spec := range specs {
		fmt.Fprintf(stdout, "%-30s %-10s %-10s\n", spec.Name, yesNo(spec.Enabled), yesNo(spec.AIAware))
	}

	fmt.Fprintln(stdout)

	return exitCodeSuccess
}

func cmdShow(global globalOptions, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: smartcronctl show <job_name>")

		return exitCodeUsage
	}

	name := args[0]

	path, err := job.FindConfigFile(global.configDir, name)
	if err != nil {
		fmt.Fprintf(stdout, "Job %q not found.\n", name)

		return exitCodeFailure
	}

	loader := job.NewLoader(global.configDir, nil)

	spec, err := loader.LoadOne(path)
	if err != nil {
		fmt.Fprintf(stdout, "Error loading job: %v\n", err)

		return exitCodeFailure
	}

	fmt.Fprintf(stdout, "\nJob: %s\n", spec.Name)
	fmt.Fprintln(stdout, strings.Repeat("=", 60))
	fmt.Fprintf(stdout, "Command: %s\n", spec.Command)
	fmt.Fprintf(stdout, "Enabled: %t\n", spec.Enabled)
	fmt.Fprintf(stdout, "AI Aware: %t\n", spec.AIAware)
	fmt.Fprintf(stdout, "Retry on Fail: %t\n", spec.RetryOnFail)

	if len(spec.PreferredTime) > 0 {
		fmt.Fprintf(stdout, "Preferred Times: %s\n", strings.Join(spec.PreferredTime, ", "))
	}

	printConstraints(stdout, spec.Constraints)

	printLastRun(stdout, global.dbPath, spec.Name)

	fmt.Fprintln(stdout)

	return exitCodeSuccess
}

func printConstraints(stdout io.Writer, constraints job.Constraints) {
	if constraints.Empty() {
		return
	}

	fmt.Fprintln(stdout, "\nConstraints:")

	if constraints.MaxCPUPercent != nil {
		fmt.Fprintf(stdout, "  - max_cpu_percent: %.1f\n", *constraints.MaxCPUPercent)
	}

	if constraints.MaxMemoryPercent != nil {
		fmt.Fprintf(stdout, "  - max_memory_percent: %.1f\n", *constraints.MaxMemoryPercent)
	}

	if constraints.MinBatteryPct != nil {
		fmt.Fprintf(stdout, "  - min_battery_percent: %.1f\n", *constraints.MinBatteryPct)
	}

	if constraints.MinDiskFreeGB != nil {
		fmt.Fprintf(stdout, "  - min_disk_free_gb: %.1f\n", *constraints.MinDiskFreeGB)
	}

	if constraints.MinIdleTimeSec != nil {
		fmt.Fprintf(stdout, "  - min_idle_time_sec: %d\n", *constraints.MinIdleTimeSec)
	}
}

func printLastRun(stdout io.Writer, dbPath, jobName string) {
	eventSink, err := sink.OpenSQLiteSink(dbPath)
	if err != nil {
		return
	}
	defer eventSink.Close()

	history, err := eventSink.JobHistory(context.Background(), jobName, 1)
	if err != nil || len(history) == 0 {
		return
	}

	latest := history[0].Result

	status := "FAILED"
	if latest.Success {
		status = "SUCCESS"
	}

	fmt.Fprintf(stdout, "\nLast Run: %s (%s)\n", latest.StartTime.Format("2006-01-02 15:04:05"), status)
}

func cmdStatus(ctx context.Context, stdout, _ io.Writer) int {
	prober := telemetry.NewProber(zap.NewNop())
	metrics := prober.Sample(ctx)

	fmt.Fprintln(stdout, "\nSystem Status")
	fmt.Fprintln(stdout, strings.Repeat("=", 60))

	fmt.Fprintln(stdout, "\nCPU:")
	fmt.Fprintf(stdout, "  Load Average: %.2f, %.2f, %.2f\n", metrics.CPU.Load1m, metrics.CPU.Load5m, metrics.CPU.Load15m)
	fmt.Fprintf(stdout, "  CPU Usage: %.1f%%\n", metrics.CPU.CPUPercent)

	fmt.Fprintln(stdout, "\nMemory:")
	fmt.Fprintf(stdout, "  Total: %.0f MB\n", metrics.Memory.TotalMB)
	fmt.Fprintf(stdout, "  Used: %.0f MB (%.1f%%)\n", metrics.Memory.UsedMB, metrics.Memory.Percent)
	fmt.Fprintf(stdout, "  Available: %.0f MB\n", metrics.Memory.AvailableMB)

	if metrics.Battery != nil {
		charging := "Not Charging"
		if metrics.Battery.IsCharging {
			charging = "Charging"
		}

		fmt.Fprintln(stdout, "\nBattery:")
		fmt.Fprintf(stdout, "  Level: %.1f%%\n", metrics.Battery.Percent)
		fmt.Fprintf(stdout, "  Status: %s\n", charging)

		if metrics.Battery.SecondsLeft != nil && *metrics.Battery.SecondsLeft > 0 {
			hours := *metrics.Battery.SecondsLeft / 3600
			minutes := (*metrics.Battery.SecondsLeft % 3600) / 60
			fmt.Fprintf(stdout, "  Time Left: %dh %dm\n", hours, minutes)
		}
	}

	fmt.Fprintln(stdout, "\nDisk (/):")
	fmt.Fprintf(stdout, "  Total: %.1f GB\n", metrics.Disk.TotalGB)
	fmt.Fprintf(stdout, "  Used: %.1f GB (%.1f%%)\n", metrics.Disk.UsedGB, metrics.Disk.Percent)
	fmt.Fprintf(stdout, "  Free: %.1f GB\n", metrics.Disk.FreeGB)

	if metrics.IdleTimeSec != nil {
		fmt.Fprintf(stdout, "\nUser Idle Time: %d minutes\n", *metrics.IdleTimeSec/60)
	}

	fmt.Fprintln(stdout)

	return exitCodeSuccess
}

func cmdHistory(ctx context.Context, global globalOptions, args []string, stdout, stderr io.Writer) int {
	flagSet := flag.NewFlagSet("history", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	limit := flagSet.Int("limit", defaultHistoryLimit, "Number of records to show")
	verbose := flagSet.Bool("verbose", false, "Show detailed output")
	flagSet.BoolVar(verbose, "v", false, "Show detailed output")

	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: smartcronctl history <job_name> [--limit N] [--verbose]")

		return exitCodeUsage
	}

	name := args[0]

	err := flagSet.Parse(args[1:])
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)

		return exitCodeUsage
	}

	eventSink, err := sink.OpenSQLiteSink(global.dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "open event log: %v\n", err)

		return exitCodeFailure
	}
	defer eventSink.Close()

	history, err := eventSink.JobHistory(ctx, name, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "read job history: %v\n", err)

		return exitCodeFailure
	}

	if len(history) == 0 {
		fmt.Fprintf(stdout, "No execution history found for job %q.\n", name)

		return exitCodeSuccess
	}

	fmt.Fprintf(stdout, "\nExecution History for: %s\n", name)
	fmt.Fprintln(stdout, strings.Repeat("=", 80))

	for _, record := range history {
		printHistoryEntry(stdout, record, *verbose)
	}

	fmt.Fprintln(stdout)

	successRate, err := eventSink.JobSuccessRate(ctx, name, *limit)
	if err == nil {
		fmt.Fprintf(stdout, "Success Rate (last %d): %.1f%%\n", *limit, successRate*100)
	}

	avgTime, err := eventSink.AverageExecutionTime(ctx, name, *limit)
	if err == nil {
		fmt.Fprintf(stdout, "Average Execution Time: %.2fs\n", avgTime.Seconds())
	}

	fmt.Fprintln(stdout)

	return exitCodeSuccess
}

const verboseOutputLimit = 200

func printHistoryEntry(stdout io.Writer, record sink.ExecutionRecord, verbose bool) {
	result := record.Result

	status := "FAILED"
	if result.Success {
		status = "SUCCESS"
	}

	fmt.Fprintf(stdout, "\n[%s] %s (Exit Code: %d, Duration: %.2fs)\n",
		result.StartTime.Format("2006-01-02 15:04:05"), status, result.ExitCode, result.ExecutionTime.Seconds())

	if !verbose {
		return
	}

	if result.Stdout != "" {
		fmt.Fprintf(stdout, "  STDOUT: %s\n", truncate(result.Stdout, verboseOutputLimit))
	}

	if result.Stderr != "" {
		fmt.Fprintf(stdout, "  STDERR: %s\n", truncate(result.Stderr, verboseOutputLimit))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}

func cmdToggle(global globalOptions, args []string, enabled bool, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: smartcronctl <enable|disable> <job_name>")

		return exitCodeUsage
	}

	name := args[0]

	path, err := job.FindConfigFile(global.configDir, name)
	if err != nil {
		fmt.Fprintf(stdout, "Job %q not found.\n", name)

		return exitCodeFailure
	}

	err = job.SetEnabled(path, enabled)
	if err != nil {
		fmt.Fprintf(stdout, "Error %s job: %v\n", verbFor(enabled), err)

		return exitCodeFailure
	}

	fmt.Fprintf(stdout, "Job %q %s.\n", name, pastTenseFor(enabled))

	return exitCodeSuccess
}

func verbFor(enabled bool) string {
	if enabled {
		return "enabling"
	}

	return "disabling"
}

func pastTenseFor(enabled bool) string {
	if enabled {
		return "enabled"
	}

	return "disabled"
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}

	return "No"
}
