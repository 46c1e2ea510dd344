package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".agent"

// Paths holds resolved filesystem paths for agent data.
type Paths struct {
	Base   string // ~/.agent
	Config string // ~/.agent/config/agent.ini
	Logs   string // ~/.agent/log
	Data   string // ~/.agent/data
}

// ResolvePaths computes all standard paths from the home directory.
// If AGENT_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("AGENT_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return Paths{}, err
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config", "agent.ini"),
		Logs:   filepath.Join(base, "log"),
		Data:   filepath.Join(base, "data"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, filepath.Dir(p.Config), p.Logs, p.Data}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// ApplyPaths fills path-derived settings the config file left empty: the log
// directory and the sqlite database file.
func ApplyPaths(cfg *Config, p Paths) {
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = p.Logs
	}
	if cfg.Database.Driver == DriverSQLite && cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(p.Data, "agent.db")
	}
}
