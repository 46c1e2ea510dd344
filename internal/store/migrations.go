package store

// migration represents a single schema migration, written once per dialect.
type migration struct {
	Version  int
	Name     string
	Postgres string
	SQLite   string
}

func (m migration) sql(dialect string) string {
	if dialect == DialectPostgres {
		return m.Postgres
	}
	return m.SQLite
}

var migrationsTable = map[string]string{
	DialectPostgres: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	DialectSQLite: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
}

// dropOrder lists every table, dependents first.
var dropOrder = []string{
	"harvestedrecord",
	"harvester",
	"datasource",
	"repository",
	"config_history",
	"schema_migrations",
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create harvesting tables",
		Postgres: `
			CREATE TABLE datasource (
				datasource_id SERIAL PRIMARY KEY,
				uid           TEXT NOT NULL UNIQUE,
				url           TEXT NOT NULL,
				username      TEXT NOT NULL DEFAULT '',
				password      TEXT NOT NULL DEFAULT '',
				version       INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE repository (
				repository_id SERIAL PRIMARY KEY,
				uid           TEXT NOT NULL UNIQUE,
				url           TEXT NOT NULL,
				username      TEXT NOT NULL DEFAULT '',
				password      TEXT NOT NULL DEFAULT '',
				institution   TEXT NOT NULL DEFAULT '',
				version       INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE harvester (
				harvester_id         SERIAL PRIMARY KEY,
				uid                  TEXT NOT NULL UNIQUE,
				datasource_uid       TEXT NOT NULL,
				repository_uid       TEXT NOT NULL,
				protocol             TEXT NOT NULL,
				metadata_schema      TEXT NOT NULL,
				default_values       JSONB NOT NULL,
				supplementary_values JSONB NOT NULL,
				granularity          JSONB NOT NULL,
				search_url           TEXT NOT NULL,
				commit_url           TEXT NOT NULL,
				frequency            TEXT NOT NULL CHECK (frequency IN (
					'Never', '60 Seconds', '12 Hours', '1 Days', '2 Days',
					'7 Days', '14 Days', '30 Days', '6 Months', '12 Months')),
				status               TEXT NOT NULL CHECK (status IN ('Active', 'Inactive', 'Deleted')),
				lastrun              TIMESTAMPTZ,
				version              INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE harvestedrecord (
				datasource_id INTEGER NOT NULL REFERENCES datasource (datasource_id),
				repository_id INTEGER NOT NULL REFERENCES repository (repository_id),
				uid           TEXT NOT NULL,
				"timestamp"   TIMESTAMPTZ,
				metadata      JSONB,
				metadata_uid  TEXT,
				status        TEXT NOT NULL CHECK (status IN ('Pending', 'Fetched', 'Committed')),
				lasterror     TEXT,
				errorcount    INTEGER NOT NULL DEFAULT 0,
				updated       TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (datasource_id, repository_id, uid)
			);

			CREATE INDEX idx_harvestedrecord_status ON harvestedrecord (datasource_id, repository_id, status);
		`,
		SQLite: `
			CREATE TABLE datasource (
				datasource_id INTEGER PRIMARY KEY AUTOINCREMENT,
				uid           TEXT NOT NULL UNIQUE,
				url           TEXT NOT NULL,
				username      TEXT NOT NULL DEFAULT '',
				password      TEXT NOT NULL DEFAULT '',
				version       INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE repository (
				repository_id INTEGER PRIMARY KEY AUTOINCREMENT,
				uid           TEXT NOT NULL UNIQUE,
				url           TEXT NOT NULL,
				username      TEXT NOT NULL DEFAULT '',
				password      TEXT NOT NULL DEFAULT '',
				institution   TEXT NOT NULL DEFAULT '',
				version       INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE harvester (
				harvester_id         INTEGER PRIMARY KEY AUTOINCREMENT,
				uid                  TEXT NOT NULL UNIQUE,
				datasource_uid       TEXT NOT NULL,
				repository_uid       TEXT NOT NULL,
				protocol             TEXT NOT NULL,
				metadata_schema      TEXT NOT NULL,
				default_values       TEXT NOT NULL,
				supplementary_values TEXT NOT NULL,
				granularity          TEXT NOT NULL,
				search_url           TEXT NOT NULL,
				commit_url           TEXT NOT NULL,
				frequency            TEXT NOT NULL CHECK (frequency IN (
					'Never', '60 Seconds', '12 Hours', '1 Days', '2 Days',
					'7 Days', '14 Days', '30 Days', '6 Months', '12 Months')),
				status               TEXT NOT NULL CHECK (status IN ('Active', 'Inactive', 'Deleted')),
				lastrun              DATETIME,
				version              INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE harvestedrecord (
				datasource_id INTEGER NOT NULL REFERENCES datasource (datasource_id),
				repository_id INTEGER NOT NULL REFERENCES repository (repository_id),
				uid           TEXT NOT NULL,
				"timestamp"   DATETIME,
				metadata      TEXT,
				metadata_uid  TEXT,
				status        TEXT NOT NULL CHECK (status IN ('Pending', 'Fetched', 'Committed')),
				lasterror     TEXT,
				errorcount    INTEGER NOT NULL DEFAULT 0,
				updated       DATETIME NOT NULL,
				PRIMARY KEY (datasource_id, repository_id, uid)
			);

			CREATE INDEX idx_harvestedrecord_status ON harvestedrecord (datasource_id, repository_id, status);
		`,
	},
	{
		Version: 2,
		Name:    "create config history",
		Postgres: `
			CREATE TABLE config_history (
				history_id SERIAL PRIMARY KEY,
				entity     TEXT NOT NULL,
				uid        TEXT NOT NULL,
				version    INTEGER NOT NULL,
				data       JSONB NOT NULL,
				changed    TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX idx_config_history_entity ON config_history (entity, uid, version);
		`,
		SQLite: `
			CREATE TABLE config_history (
				history_id INTEGER PRIMARY KEY AUTOINCREMENT,
				entity     TEXT NOT NULL,
				uid        TEXT NOT NULL,
				version    INTEGER NOT NULL,
				data       TEXT NOT NULL,
				changed    DATETIME NOT NULL
			);

			CREATE INDEX idx_config_history_entity ON config_history (entity, uid, version);
		`,
	},
}
