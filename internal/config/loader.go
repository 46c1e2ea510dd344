package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// SectionName is the INI section holding the agent settings.
const SectionName = "Agent"

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields lets credentials be written as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Database.Password = expandEnvVars(cfg.Database.Password)
	cfg.API.Token = expandEnvVars(cfg.API.Token)
}

// Load reads the config file at path, applies defaults for unset values and
// AGENT_* environment overrides. Files ending in .yaml or .yml are parsed as
// YAML; anything else as INI with an [Agent] section.
func Load(path string) (Config, error) {
	cfg := Defaults()

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return cfg, configError(nil, "Configuration file %s not found", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, configError(err, "Error in configuration file %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, configError(err, "Error in configuration file %s", path)
		}
	default:
		if err := loadINI(path, &cfg); err != nil {
			return cfg, configError(err, "Error in configuration file %s", path)
		}
	}

	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, configError(err, "Error in environment overrides")
	}
	expandSensitiveFields(&cfg)

	if cfg.Logging.Dir != "" && !filepath.IsAbs(cfg.Logging.Dir) {
		return cfg, configError(nil, "Error in configuration file %s: LogDir must be an absolute path", path)
	}
	return cfg, nil
}

func loadINI(path string, cfg *Config) error {
	f, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, path)
	if err != nil {
		return err
	}
	sec, err := f.GetSection(SectionName)
	if err != nil {
		// An absent section leaves everything at its default.
		return nil
	}
	for _, field := range iniFields {
		if !sec.HasKey(field.Key) {
			continue
		}
		v := strings.TrimSpace(sec.Key(field.Key).String())
		if err := field.set(cfg, v); err != nil {
			return configError(err, "%s", field.Key)
		}
	}
	return nil
}

// applyDefaults fills zero-value fields with defaults. YAML files may leave
// whole sections out.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = d.Database.Driver
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = d.Database.Host
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = d.Database.Port
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = d.Database.Name
	}
	if cfg.Database.User == "" {
		cfg.Database.User = d.Database.User
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = d.Database.SSLMode
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.CMS.URL == "" {
		cfg.CMS.URL = d.CMS.URL
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = d.API.Port
	}
	if cfg.API.Bind == "" {
		cfg.API.Bind = d.API.Bind
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = d.Scheduler.Interval
	}
	if cfg.Harvest.MaxAttempts == 0 {
		cfg.Harvest.MaxAttempts = d.Harvest.MaxAttempts
	}
	if cfg.Harvest.FetchConcurrency == 0 {
		cfg.Harvest.FetchConcurrency = d.Harvest.FetchConcurrency
	}
	if cfg.Harvest.RequestRate == 0 {
		cfg.Harvest.RequestRate = d.Harvest.RequestRate
	}
	if cfg.Harvest.HTTPTimeout == 0 {
		cfg.Harvest.HTTPTimeout = d.Harvest.HTTPTimeout
	}
}

// applyEnvOverrides reads AGENT_* environment variables. Each INI key maps to
// an upper snake-case variable, e.g. DBHost -> AGENT_DB_HOST.
func applyEnvOverrides(cfg *Config) error {
	for _, field := range iniFields {
		v, ok := os.LookupEnv(field.EnvVar())
		if !ok || v == "" {
			continue
		}
		if err := field.set(cfg, strings.TrimSpace(v)); err != nil {
			return configError(err, "%s", field.EnvVar())
		}
	}
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
