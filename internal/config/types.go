package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Config is the root configuration for the agent. It can be read from the
// [Agent] section of agent.ini or from a YAML file with the same structure
// as the struct tags below.
type Config struct {
	Database  DatabaseConfig  `yaml:"database,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	CMS       CMSConfig       `yaml:"cms,omitempty"`
	API       APIConfig       `yaml:"api,omitempty"`
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
	Harvest   HarvestConfig   `yaml:"harvest,omitempty"`
}

// DatabaseConfig selects and addresses the agent database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver,omitempty"` // "postgres" | "sqlite"
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Name     string `yaml:"name,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"sslMode,omitempty"`
	Path     string `yaml:"path,omitempty"` // sqlite file; ":memory:" for tests
}

// DSN returns a PostgreSQL connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted describes the database target without credentials.
func (d DatabaseConfig) Redacted() string {
	if d.Driver == DriverSQLite {
		return "sqlite:" + d.Path
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", d.User, d.Host, d.Port, d.Name)
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	Dir   string `yaml:"dir,omitempty"`   // must be absolute
	Level string `yaml:"level,omitempty"` // DEBUG, INFO, ... or debug, info, ...
}

// CMSConfig addresses the content management system that holds harvester
// definitions.
type CMSConfig struct {
	URL string `yaml:"url,omitempty"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Port  int    `yaml:"port,omitempty"`
	Bind  string `yaml:"bind,omitempty"`
	Token string `yaml:"token,omitempty"`
}

// Addr returns the listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Bind, a.Port)
}

// SchedulerConfig controls the background loop that runs due harvesters.
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
}

// HarvestConfig tunes harvesting and outbound HTTP.
type HarvestConfig struct {
	// MaxAttempts is the number of times an operation on one record is
	// attempted before the record is left in its error state.
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
	// NewRecordLimit caps how many new records one invocation collects;
	// 0 means no limit.
	NewRecordLimit   int           `yaml:"newRecordLimit,omitempty"`
	FetchConcurrency int           `yaml:"fetchConcurrency,omitempty"`
	RequestRate      float64       `yaml:"requestRate,omitempty"` // requests/s per host
	HTTPTimeout      time.Duration `yaml:"httpTimeout,omitempty"`
	HTTPRetries      int           `yaml:"httpRetries,omitempty"`
}
