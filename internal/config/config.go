package config

import (
	"time"

	"github.com/soyeahso/harvestagent/internal/domain"
)

// Default values. They match the fallbacks of the [Agent] section keys.
const (
	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBName            = "agentdb"
	DefaultDBUser            = "agent"
	DefaultDBPass            = "agent"
	DefaultDBSSLMode         = "disable"
	DefaultLogLevel          = "INFO"
	DefaultCMSURL            = "http://localhost:8080/Plone"
	DefaultAPIPort           = 9090
	DefaultAPIBind           = "0.0.0.0"
	DefaultSchedulerInterval = time.Minute
	DefaultMaxAttempts       = 10
	DefaultNewRecordLimit    = 1
	DefaultFetchConcurrency  = 4
	DefaultRequestRate       = 10.0
	DefaultHTTPTimeout       = 60 * time.Second
	DefaultHTTPRetries       = 3
)

// configError wraps a message as a domain.ErrConfig.
func configError(cause error, format string, args ...any) error {
	if cause == nil {
		return domain.Errorf(domain.ErrConfig, format, args...)
	}
	return domain.Wrap(domain.ErrConfig, cause, format, args...)
}

// Defaults returns a Config with every default applied. LogDir is left empty
// and filled from the resolved paths by the loader.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     DefaultDBHost,
			Port:     DefaultDBPort,
			Name:     DefaultDBName,
			User:     DefaultDBUser,
			Password: DefaultDBPass,
			SSLMode:  DefaultDBSSLMode,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
		CMS: CMSConfig{
			URL: DefaultCMSURL,
		},
		API: APIConfig{
			Port: DefaultAPIPort,
			Bind: DefaultAPIBind,
		},
		Scheduler: SchedulerConfig{
			Interval: DefaultSchedulerInterval,
		},
		Harvest: HarvestConfig{
			MaxAttempts:      DefaultMaxAttempts,
			NewRecordLimit:   DefaultNewRecordLimit,
			FetchConcurrency: DefaultFetchConcurrency,
			RequestRate:      DefaultRequestRate,
			HTTPTimeout:      DefaultHTTPTimeout,
			HTTPRetries:      DefaultHTTPRetries,
		},
	}
}
