// Package main wires the smartcrond daemon entrypoint.
package main

//nolint:depguard // main wires project-internal modules and zap logging
import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"smartcron/internal/buildinfo"
	"smartcron/pkg/executor"
	"smartcron/pkg/httpmetrics"
	"smartcron/pkg/httpstatus"
	"smartcron/pkg/job"
	"smartcron/pkg/predict"
	"smartcron/pkg/scheduler"
	"smartcron/pkg/sink"
	"smartcron/pkg/telemetry"
)

const (
	defaultConfigPath = ""
	defaultLogLevel   = "info"

	exitCodeSuccess      = 0
	exitCodeRuntimeError = 1
	exitCodeParseError   = 2

	httpShutdownGrace = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], defaultRunDeps(), os.Stderr)
	exitProcess(code)
}

var exitProcess = os.Exit //nolint:gochecknoglobals // overridden in tests

type runDeps struct {
	newLogger        func(level string) (*zap.Logger, error)
	loadConfig       func(path string) (runtimeConfig, error)
	currentBuildInfo func() buildinfo.Info
	newScheduler     func(cfg runtimeConfig, logger *zap.Logger, exporter *httpmetrics.Exporter) (*scheduler.Scheduler, func(), error)
}

func defaultRunDeps() runDeps {
	return runDeps{
		newLogger:        newLogger,
		loadConfig:       loadConfig,
		currentBuildInfo: buildinfo.Current,
		newScheduler:     newProductionScheduler,
	}
}

func run(ctx context.Context, args []string, deps runDeps, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)

		return exitCodeParseError
	}

	logger, err := deps.newLogger(opts.logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "failed to configure logger: %v\n", err)

		return exitCodeRuntimeError
	}

	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := deps.loadConfig(opts.configPath)
	if err != nil {
		logger.Error("load configuration failed", zap.Error(err))

		return exitCodeRuntimeError
	}

	applyFlagOverrides(&cfg, opts)

	info := deps.currentBuildInfo()
	logger.Info("starting smartcrond",
		zap.String("version", info.Version),
		zap.String("commit", info.GitCommit),
		zap.String("buildDate", info.BuildDate),
		zap.String("configDir", cfg.ConfigDir),
		zap.String("dbPath", cfg.DBPath),
		zap.String("logDir", cfg.LogDir),
		zap.Duration("interval", cfg.Interval),
		zap.String("httpAddr", cfg.HTTPBind),
	)

	exporter := httpmetrics.NewExporter()

	sched, closeDeps, err := deps.newScheduler(cfg, logger, exporter)
	if err != nil {
		logger.Error("initialize scheduler failed", zap.Error(err))

		return exitCodeRuntimeError
	}

	defer closeDeps()

	opts.runNow = strings.TrimSpace(opts.runNow)
	if opts.runNow != "" {
		err = sched.RunJobNow(ctx, opts.runNow)
		if err != nil {
			logger.Error("run-now failed", zap.String("job", opts.runNow), zap.Error(err))

			return exitCodeRuntimeError
		}

		logger.Info("run-now completed", zap.String("job", opts.runNow))

		return exitCodeSuccess
	}

	httpServer := startHTTPServer(cfg.HTTPBind, exporter, sched, logger)
	defer stopHTTPServer(httpServer, logger)

	runErr := sched.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		logger.Error("scheduler execution failed", zap.Error(runErr))

		return exitCodeRuntimeError
	}

	logger.Info("smartcrond stopped", zap.String("reason", runErr.Error()))

	return exitCodeSuccess
}

func startHTTPServer(addr string, exporter *httpmetrics.Exporter, sched *scheduler.Scheduler, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter)
	mux.Handle("/status", httpstatus.NewHandler(sched))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http server stopped unexpectedly", zap.Error(err))
		}
	}()

	return server
}

func stopHTTPServer(server *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownGrace)
	defer cancel()

	err := server.Shutdown(ctx)
	if err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}
}

func newProductionScheduler(
	cfg runtimeConfig,
	logger *zap.Logger,
	exporter *httpmetrics.Exporter,
) (*scheduler.Scheduler, func(), error) {
	validator, err := job.NewValidator()
	if err != nil {
		logger.Warn("job schema unavailable, validation disabled", zap.Error(err))

		validator = nil
	}

	eventSink, err := sink.OpenSQLiteSink(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open event sink: %w", err)
	}

	var predictor predict.Predictor = predict.NullPredictor{}

	if strings.TrimSpace(cfg.ModelPath) != "" {
		predictor = predict.NewCircuitBreaker(
			predict.NewProcessPredictor(cfg.ModelPath),
			predict.DefaultBreakerSettings("model"),
		)
	}

	sched, err := scheduler.New(scheduler.Dependencies{
		Loader:          job.NewLoader(cfg.ConfigDir, validator),
		Prober:          telemetry.NewProber(logger),
		Predictor:       predictor,
		Executor:        executor.New(),
		Sink:            eventSink,
		FileLogger:      sink.NewFileLogger(cfg.LogDir),
		Logger:          logger,
		CheckInterval:   cfg.Interval,
		MetricsExporter: exporter,
	})
	if err != nil {
		_ = eventSink.Close()

		return nil, nil, fmt.Errorf("construct scheduler: %w", err)
	}

	closeFn := func() {
		err := eventSink.Close()
		if err != nil {
			logger.Warn("close event sink failed", zap.Error(err))
		}
	}

	return sched, closeFn, nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = defaultLogLevel
	}

	cfg := zap.NewProductionConfig()

	err := cfg.Level.UnmarshalText([]byte(level))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidLogLevel, err)
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.CallerKey = "caller"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return logger, nil
}

type options struct {
	configPath string
	logLevel   string
	configDir  string
	modelPath  string
	dbPath     string
	logDir     string
	interval   time.Duration
	httpBind   string
	runNow     string
}

func parseArgs(args []string) (options, error) {
	var opts options

	flagSet := flag.NewFlagSet("smartcrond", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to an optional YAML overrides file")
	flagSet.StringVar(&opts.logLevel, "log-level", defaultLogLevel, "Structured log level (debug, info, warn, error)")
	flagSet.StringVar(&opts.configDir, "config-dir", "", "Directory of per-job YAML/JSON config files")
	flagSet.StringVar(&opts.modelPath, "model", "", "Path to an external predictor executable")
	flagSet.StringVar(&opts.dbPath, "db", "", "Path to the SQLite execution log database")
	flagSet.StringVar(&opts.logDir, "log-dir", "", "Directory for per-job text log files")
	flagSet.DurationVar(&opts.interval, "interval", 0, "Scheduling tick interval")
	flagSet.StringVar(&opts.httpBind, "http-addr", "", "Address to bind the metrics/status HTTP server")
	flagSet.StringVar(&opts.runNow, "run-now", "", "Run the named job once, bypassing schedule and disabled state, then exit")

	err := flagSet.Parse(args)
	if err != nil {
		return options{}, fmt.Errorf("parse CLI arguments: %w", err)
	}

	opts.logLevel = strings.TrimSpace(opts.logLevel)
	if opts.logLevel == "" {
		opts.logLevel = defaultLogLevel
	}

	opts.configPath = strings.TrimSpace(opts.configPath)

	if opts.interval < 0 {
		return options{}, fmt.Errorf("%w: interval must not be negative", errInvalidInterval)
	}

	return opts, nil
}

// applyFlagOverrides layers CLI flags on top of the already-resolved
// config, matching the file-then-env precedence loadConfig applies
// internally: flags are the outermost, highest-precedence layer.
func applyFlagOverrides(cfg *runtimeConfig, opts options) {
	if opts.configDir != "" {
		cfg.ConfigDir = opts.configDir
	}

	if opts.modelPath != "" {
		cfg.ModelPath = opts.modelPath
	}

	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}

	if opts.logDir != "" {
		cfg.LogDir = opts.logDir
	}

	if opts.interval > 0 {
		cfg.Interval = opts.interval
	}

	if opts.httpBind != "" {
		cfg.HTTPBind = opts.httpBind
	}
}

var (
	errInvalidLogLevel = errors.New("invalid log level")
	errInvalidInterval = errors.New("invalid interval")
)
