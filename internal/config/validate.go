package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"

	"github.com/soyeahso/harvestagent/internal/logging"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	validDrivers := []string{DriverPostgres, DriverSQLite}
	if !slices.Contains(validDrivers, cfg.Database.Driver) {
		add("DBDriver", "must be one of %v, got %q", validDrivers, cfg.Database.Driver)
	}
	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.Host == "" {
			add("DBHost", "host is required")
		}
		if cfg.Database.Name == "" {
			add("DBName", "database name is required")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			add("DBPort", "port must be 1-65535, got %d", cfg.Database.Port)
		}
	case DriverSQLite:
		if cfg.Database.Path == "" {
			add("DBPath", "path is required for sqlite")
		}
	}

	if cfg.Logging.Dir != "" && !filepath.IsAbs(cfg.Logging.Dir) {
		add("LogDir", "must be an absolute path, got %q", cfg.Logging.Dir)
	}
	if !logging.ValidLevel(cfg.Logging.Level) {
		add("LogLevel", "unknown log level %q", cfg.Logging.Level)
	}

	if u, err := url.Parse(cfg.CMS.URL); err != nil || u.Scheme == "" || u.Host == "" {
		add("CMSUrl", "must be an absolute URL, got %q", cfg.CMS.URL)
	}

	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		add("APIPort", "port must be 0-65535, got %d", cfg.API.Port)
	}

	if cfg.Scheduler.Enabled && cfg.Scheduler.Interval <= 0 {
		add("SchedulerInterval", "must be positive when the scheduler is enabled")
	}

	if cfg.Harvest.MaxAttempts < 1 {
		add("MaxAttempts", "must be at least 1, got %d", cfg.Harvest.MaxAttempts)
	}
	if cfg.Harvest.NewRecordLimit < 0 {
		add("NewRecordLimit", "must not be negative, got %d", cfg.Harvest.NewRecordLimit)
	}
	if cfg.Harvest.FetchConcurrency < 1 {
		add("FetchConcurrency", "must be at least 1, got %d", cfg.Harvest.FetchConcurrency)
	}
	if cfg.Harvest.RequestRate < 0 {
		add("RequestRate", "must not be negative")
	}
	if cfg.Harvest.HTTPRetries < 0 {
		add("HTTPRetries", "must not be negative, got %d", cfg.Harvest.HTTPRetries)
	}

	return issues
}
