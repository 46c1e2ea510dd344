package cli

import (
	"context"
	"fmt"

	"github.com/soyeahso/harvestagent/internal/agent"
	"github.com/soyeahso/harvestagent/internal/collector"
	"github.com/soyeahso/harvestagent/internal/config"
	"github.com/soyeahso/harvestagent/internal/curator"
	"github.com/soyeahso/harvestagent/internal/harvest"
	"github.com/soyeahso/harvestagent/internal/hooks"
	"github.com/soyeahso/harvestagent/internal/httpclient"
	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/soyeahso/harvestagent/internal/store"
)

// app holds the components shared by the commands that harvest.
type app struct {
	cfg    config.Config
	log    *logging.Logger
	db     *store.DB
	hooks  *hooks.Manager
	engine *harvest.Engine
	agent  *agent.Agent
}

// loadConfig reads and validates the configuration file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	config.ApplyPaths(&cfg, paths)

	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openStore loads the configuration, switches to the file-backed logger and
// opens the database.
func openStore(ctx context.Context) (config.Config, *logging.Logger, *store.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, nil, err
	}

	level := logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	l, err := logging.NewWithFile(console, cfg.Logging.Dir, level)
	if err != nil {
		return cfg, nil, nil, err
	}

	db, err := store.Open(ctx, cfg.Database, l)
	if err != nil {
		l.Close()
		return cfg, nil, nil, fmt.Errorf("opening database %s: %w", cfg.Database.Redacted(), err)
	}
	return cfg, l, db, nil
}

// newApp wires the database, outbound HTTP client, collector and curator
// registries, harvest engine and agent.
func newApp(ctx context.Context) (*app, error) {
	cfg, l, db, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	hc := httpclient.New(httpclient.Options{
		Timeout: cfg.Harvest.HTTPTimeout,
		Retries: cfg.Harvest.HTTPRetries,
		Rate:    cfg.Harvest.RequestRate,
	}, l)
	hm := hooks.NewManager(l)

	engine := harvest.New(db,
		collector.NewDefaultRegistry(hc, l),
		curator.NewDefaultRegistry(hc, l),
		hm,
		harvest.Options{
			MaxAttempts:      cfg.Harvest.MaxAttempts,
			FetchConcurrency: cfg.Harvest.FetchConcurrency,
		}, l)

	ag := agent.New(db, engine, hc, hm, agent.Options{
		CMSURL:         cfg.CMS.URL,
		NewRecordLimit: cfg.Harvest.NewRecordLimit,
	}, l)

	return &app{cfg: cfg, log: l, db: db, hooks: hm, engine: engine, agent: ag}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing database")
	}
	a.log.Close()
}
