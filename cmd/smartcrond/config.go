package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigDir = "SMARTCROND_CONFIG_DIR"
	envModel     = "SMARTCROND_MODEL"
	envDB        = "SMARTCROND_DB"
	envLogDir    = "SMARTCROND_LOG_DIR"
	envInterval  = "SMARTCROND_INTERVAL"
	envHTTPBind  = "SMARTCROND_HTTP_ADDR"

	defaultInterval = 60 * time.Second
	defaultHTTPBind = ":9108"

	rootConfigDir = "/etc/smartcron/jobs"
	rootDBPath    = "/var/lib/smartcron/logs.db"
	rootLogDir    = "/var/log/smartcron"

	nonRootConfigDir = "./jobs"
	nonRootDBPath    = "./smartcron_logs.db"
	nonRootLogDir    = "./logs"
)

// runtimeConfig is the daemon's fully resolved configuration, after
// defaults, an optional YAML file, and environment overrides have been
// applied in that order.
type runtimeConfig struct {
	ConfigDir string
	ModelPath string
	DBPath    string
	LogDir    string
	Interval  time.Duration
	HTTPBind  string
}

// fileConfig is the pointer-shaped YAML document: only keys present in
// the file override the defaults already computed.
type fileConfig struct {
	ConfigDir *string        `yaml:"configDir"`
	Model     *string        `yaml:"model"`
	DB        *string        `yaml:"db"`
	LogDir    *string        `yaml:"logDir"`
	Interval  *time.Duration `yaml:"interval"`
	HTTPBind  *string        `yaml:"httpAddr"`
}

// defaultRuntimeConfig relocates default paths under the working
// directory when not running with elevated privileges.
func defaultRuntimeConfig() runtimeConfig {
	cfg := runtimeConfig{
		Interval: defaultInterval,
		HTTPBind: defaultHTTPBind,
	}

	if isElevated() {
		cfg.ConfigDir = rootConfigDir
		cfg.DBPath = rootDBPath
		cfg.LogDir = rootLogDir

		return cfg
	}

	cfg.ConfigDir = nonRootConfigDir
	cfg.DBPath = nonRootDBPath
	cfg.LogDir = nonRootLogDir

	return cfg
}

func loadConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()

	trimmed := strings.TrimSpace(path)
	if trimmed != "" {
		data, err := os.ReadFile(trimmed)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return runtimeConfig{}, fmt.Errorf("read config file %q: %w", trimmed, err)
			}
		} else {
			var file fileConfig

			err = yaml.Unmarshal(data, &file)
			if err != nil {
				return runtimeConfig{}, fmt.Errorf("decode config file %q: %w", trimmed, err)
			}

			mergeFileConfig(&cfg, file)
		}
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func mergeFileConfig(dst *runtimeConfig, src fileConfig) {
	assignString(&dst.ConfigDir, src.ConfigDir)
	assignString(&dst.ModelPath, src.Model)
	assignString(&dst.DBPath, src.DB)
	assignString(&dst.LogDir, src.LogDir)
	assignDuration(&dst.Interval, src.Interval)
	assignString(&dst.HTTPBind, src.HTTPBind)
}

func applyEnvOverrides(cfg *runtimeConfig) {
	cfg.ConfigDir = envString(envConfigDir, cfg.ConfigDir)
	cfg.ModelPath = envString(envModel, cfg.ModelPath)
	cfg.DBPath = envString(envDB, cfg.DBPath)
	cfg.LogDir = envString(envLogDir, cfg.LogDir)
	cfg.Interval = envDuration(envInterval, cfg.Interval)
	cfg.HTTPBind = envString(envHTTPBind, cfg.HTTPBind)

	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
}

var lookupEnv = os.LookupEnv //nolint:gochecknoglobals // overridden in tests

var isElevated = func() bool { return os.Geteuid() == 0 }

func assignString(target *string, value *string) {
	if value != nil {
		*target = strings.TrimSpace(*value)
	}
}

func assignDuration(target *time.Duration, value *time.Duration) {
	if value != nil {
		*target = *value
	}
}

func envString(key, fallback string) string {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	return trimmed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	duration, err := time.ParseDuration(trimmed)
	if err != nil {
		seconds, convErr := strconv.Atoi(trimmed)
		if convErr != nil {
			return fallback
		}

		return time.Duration(seconds) * time.Second
	}

	return duration
}
