package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingName is returned when a job document omits job_name.
	ErrMissingName = errors.New("job: job_name is required")
	// ErrMissingCommand is returned when a job document omits command.
	ErrMissingCommand = errors.New("job: command is required")
	// ErrUnsupportedFormat is returned for files with an unrecognized extension.
	ErrUnsupportedFormat = errors.New("job: unsupported config file format")
)

// document is the on-disk shape of a job file. gopkg.in/yaml.v3 parses
// JSON documents the same way it parses YAML (JSON is a YAML subset),
// so one decode path serves both ".yaml"/".yml" and ".json" files.
type document struct {
	JobName             string   `yaml:"job_name"`
	Command             string   `yaml:"command"`
	Enabled             *bool    `yaml:"enabled"`
	PreferredTime       []string `yaml:"preferred_time"`
	MaxCPUPercent       *float64 `yaml:"max_cpu_percent"`
	MaxMemoryPercent    *float64 `yaml:"max_memory_percent"`
	MinBatteryPercent   *float64 `yaml:"min_battery_percent"`
	MinDiskFreeGB       *float64 `yaml:"min_disk_free_gb"`
	MinIdleTimeSec      *int     `yaml:"min_idle_time_sec"`
	AIAware             bool     `yaml:"ai_aware"`
	RetryOnFail         bool     `yaml:"retry_on_fail"`
	MaxRetries          *int     `yaml:"max_retries"`
	TimeoutSec          *int     `yaml:"timeout_sec"`
	ScheduleWindowStart string   `yaml:"schedule_window_start"`
	ScheduleWindowEnd   string   `yaml:"schedule_window_end"`
}

const defaultMaxRetries = 3

// Loader reads job configuration files from a directory. A nil
// Validator tolerates unknown keys; a non-nil one rejects them.
type Loader struct {
	Dir       string
	Validator *Validator
}

// NewLoader constructs a Loader for the given config directory.
func NewLoader(dir string, validator *Validator) *Loader {
	return &Loader{Dir: dir, Validator: validator}
}

// LoadAll reads every ".yaml", ".yml", and ".json" file in the config
// directory. A file that fails to parse or validate is logged by the
// caller (via the returned per-file errors) and skipped; the rest of
// the set still loads. Disabled jobs are included in the result so
// they remain visible to operators, but the scheduler must never
// evaluate or run them.
func (l *Loader) LoadAll() ([]Spec, []error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, []error{fmt.Errorf("read config dir %q: %w", l.Dir, err)}
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if isJobConfigFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	var (
		specs []Spec
		errs  []error
	)

	for _, name := range names {
		path := filepath.Join(l.Dir, name)

		spec, loadErr := l.loadFile(path)
		if loadErr != nil {
			errs = append(errs, fmt.Errorf("load job %q: %w", name, loadErr))

			continue
		}

		specs = append(specs, spec)
	}

	return specs, errs
}

func (l *Loader) loadFile(path string) (Spec, error) {
	if !isJobConfigFile(path) {
		return Spec{}, ErrUnsupportedFormat
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read file: %w", err)
	}

	if l.Validator != nil {
		var doc map[string]any

		err = yaml.Unmarshal(data, &doc)
		if err != nil {
			return Spec{}, fmt.Errorf("decode document for validation: %w", err)
		}

		err = l.Validator.Validate(doc)
		if err != nil {
			return Spec{}, err
		}
	}

	var doc document

	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		return Spec{}, fmt.Errorf("decode document: %w", err)
	}

	return specFromDocument(doc)
}

func specFromDocument(doc document) (Spec, error) {
	if strings.TrimSpace(doc.JobName) == "" {
		return Spec{}, ErrMissingName
	}

	if strings.TrimSpace(doc.Command) == "" {
		return Spec{}, ErrMissingCommand
	}

	enabled := true
	if doc.Enabled != nil {
		enabled = *doc.Enabled
	}

	maxRetries := defaultMaxRetries
	if doc.MaxRetries != nil {
		maxRetries = *doc.MaxRetries
	}

	return Spec{
		Name:    doc.JobName,
		Command: doc.Command,
		Enabled: enabled,
		Constraints: Constraints{
			MaxCPUPercent:    doc.MaxCPUPercent,
			MaxMemoryPercent: doc.MaxMemoryPercent,
			MinBatteryPct:    doc.MinBatteryPercent,
			MinDiskFreeGB:    doc.MinDiskFreeGB,
			MinIdleTimeSec:   doc.MinIdleTimeSec,
		},
		PreferredTime:       doc.PreferredTime,
		ScheduleWindowStart: doc.ScheduleWindowStart,
		ScheduleWindowEnd:   doc.ScheduleWindowEnd,
		TimeoutSec:          doc.TimeoutSec,
		RetryOnFail:         doc.RetryOnFail,
		MaxRetries:          maxRetries,
		AIAware:             doc.AIAware,
	}, nil
}

func isJobConfigFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))

	switch ext {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
