package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/soyeahso/harvestagent/internal/domain"
)

// Queries holds every read and write the agent performs. A Queries is bound
// either to the database itself or to one transaction (see DB.WithTx).
type Queries struct {
	ext     sqlx.ExtContext
	dialect string
}

func (q *Queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *Queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

// insertReturningID runs a named INSERT ... RETURNING <id> statement.
func (q *Queries) insertReturningID(ctx context.Context, query string, arg any) (int64, error) {
	bound, args, err := q.ext.BindNamed(query, arg)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := q.ext.QueryRowxContext(ctx, bound, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (q *Queries) namedExec(ctx context.Context, query string, arg any) (int64, error) {
	res, err := sqlx.NamedExecContext(ctx, q.ext, query, arg)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Errorf(domain.ErrNotFound, format, args...)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func now() time.Time {
	return time.Now().UTC()
}

// --- Harvesters ---

const harvesterColumns = `harvester_id, uid, datasource_uid, repository_uid, protocol, metadata_schema,
	default_values, supplementary_values, granularity, search_url, commit_url,
	frequency, status, lastrun, version`

// GetHarvester returns the harvester with the given uid, or an ErrNotFound error.
func (q *Queries) GetHarvester(ctx context.Context, uid string) (*domain.Harvester, error) {
	var h domain.Harvester
	err := q.get(ctx, &h, `SELECT `+harvesterColumns+` FROM harvester WHERE uid = ?`, uid)
	if err != nil {
		return nil, notFound(err, "harvester %s not found", uid)
	}
	return &h, nil
}

// GetOrCreateHarvester returns the stored harvester, or a new unsaved one
// with only its uid set. The second result reports whether it is new.
func (q *Queries) GetOrCreateHarvester(ctx context.Context, uid string) (*domain.Harvester, bool, error) {
	h, err := q.GetHarvester(ctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Harvester{UID: uid}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return h, false, nil
}

// ListHarvesters returns harvesters ordered by id. An empty status lists all.
func (q *Queries) ListHarvesters(ctx context.Context, status domain.HarvesterStatus) ([]domain.Harvester, error) {
	var hs []domain.Harvester
	var err error
	if status == "" {
		err = q.selectAll(ctx, &hs, `SELECT `+harvesterColumns+` FROM harvester ORDER BY harvester_id`)
	} else {
		err = q.selectAll(ctx, &hs, `SELECT `+harvesterColumns+` FROM harvester WHERE status = ? ORDER BY harvester_id`, status)
	}
	if err != nil {
		return nil, fmt.Errorf("listing harvesters: %w", err)
	}
	return hs, nil
}

// SaveHarvester inserts a new harvester or updates a stored one. Updates that
// change its configuration archive the previous row in config_history and
// bump the version; lastrun alone is not versioned.
func (q *Queries) SaveHarvester(ctx context.Context, h *domain.Harvester) error {
	for _, m := range []*domain.JSONMap{&h.DefaultValues, &h.SupplementaryValues, &h.Granularity} {
		if *m == nil {
			*m = domain.JSONMap{}
		}
	}

	if h.ID == 0 {
		h.Version = 1
		id, err := q.insertReturningID(ctx, `
			INSERT INTO harvester (uid, datasource_uid, repository_uid, protocol, metadata_schema,
				default_values, supplementary_values, granularity, search_url, commit_url,
				frequency, status, lastrun, version)
			VALUES (:uid, :datasource_uid, :repository_uid, :protocol, :metadata_schema,
				:default_values, :supplementary_values, :granularity, :search_url, :commit_url,
				:frequency, :status, :lastrun, :version)
			RETURNING harvester_id`, h)
		if err != nil {
			return fmt.Errorf("inserting harvester %s: %w", h.UID, err)
		}
		h.ID = id
		return nil
	}

	var old domain.Harvester
	if err := q.get(ctx, &old, `SELECT `+harvesterColumns+` FROM harvester WHERE harvester_id = ?`, h.ID); err != nil {
		return notFound(err, "harvester %d not found", h.ID)
	}
	h.Version = old.Version
	if !sameHarvesterConfig(&old, h) {
		if err := q.archive(ctx, "harvester", old.UID, old.Version, &old); err != nil {
			return err
		}
		h.Version = old.Version + 1
	}

	_, err := q.namedExec(ctx, `
		UPDATE harvester SET uid = :uid, datasource_uid = :datasource_uid, repository_uid = :repository_uid,
			protocol = :protocol, metadata_schema = :metadata_schema, default_values = :default_values,
			supplementary_values = :supplementary_values, granularity = :granularity,
			search_url = :search_url, commit_url = :commit_url, frequency = :frequency,
			status = :status, lastrun = :lastrun, version = :version
		WHERE harvester_id = :harvester_id`, h)
	if err != nil {
		return fmt.Errorf("updating harvester %s: %w", h.UID, err)
	}
	return nil
}

// SetLastRun records when a harvester last started running.
func (q *Queries) SetLastRun(ctx context.Context, harvesterID int64, t time.Time) error {
	n, err := q.namedExec(ctx, `UPDATE harvester SET lastrun = :lastrun WHERE harvester_id = :id`,
		map[string]any{"lastrun": t, "id": harvesterID})
	if err != nil {
		return fmt.Errorf("setting lastrun of harvester %d: %w", harvesterID, err)
	}
	if n == 0 {
		return domain.Errorf(domain.ErrNotFound, "harvester %d not found", harvesterID)
	}
	return nil
}

func sameHarvesterConfig(a, b *domain.Harvester) bool {
	x, y := *a, *b
	x.ID, y.ID = 0, 0
	x.LastRun, y.LastRun = nil, nil
	x.Version, y.Version = 0, 0
	return sameJSON(x, y)
}

// --- Datasources ---

const datasourceColumns = `datasource_id, uid, url, username, password, version`

// GetDatasource returns the datasource with the given uid, or an ErrNotFound error.
func (q *Queries) GetDatasource(ctx context.Context, uid string) (*domain.Datasource, error) {
	var d domain.Datasource
	if err := q.get(ctx, &d, `SELECT `+datasourceColumns+` FROM datasource WHERE uid = ?`, uid); err != nil {
		return nil, notFound(err, "datasource %s not found", uid)
	}
	return &d, nil
}

// GetOrCreateDatasource mirrors GetOrCreateHarvester.
func (q *Queries) GetOrCreateDatasource(ctx context.Context, uid string) (*domain.Datasource, bool, error) {
	d, err := q.GetDatasource(ctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Datasource{UID: uid}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return d, false, nil
}

// SaveDatasource inserts or updates a datasource, versioning changes.
func (q *Queries) SaveDatasource(ctx context.Context, d *domain.Datasource) error {
	if d.ID == 0 {
		d.Version = 1
		id, err := q.insertReturningID(ctx, `
			INSERT INTO datasource (uid, url, username, password, version)
			VALUES (:uid, :url, :username, :password, :version)
			RETURNING datasource_id`, d)
		if err != nil {
			return fmt.Errorf("inserting datasource %s: %w", d.UID, err)
		}
		d.ID = id
		return nil
	}

	var old domain.Datasource
	if err := q.get(ctx, &old, `SELECT `+datasourceColumns+` FROM datasource WHERE datasource_id = ?`, d.ID); err != nil {
		return notFound(err, "datasource %d not found", d.ID)
	}
	d.Version = old.Version
	x, y := old, *d
	x.Version, y.Version = 0, 0
	if x != y {
		if err := q.archive(ctx, "datasource", old.UID, old.Version, &old); err != nil {
			return err
		}
		d.Version = old.Version + 1
	}

	_, err := q.namedExec(ctx, `
		UPDATE datasource SET uid = :uid, url = :url, username = :username, password = :password, version = :version
		WHERE datasource_id = :datasource_id`, d)
	if err != nil {
		return fmt.Errorf("updating datasource %s: %w", d.UID, err)
	}
	return nil
}

// --- Repositories ---

const repositoryColumns = `repository_id, uid, url, username, password, institution, version`

// GetRepository returns the repository with the given uid, or an ErrNotFound error.
func (q *Queries) GetRepository(ctx context.Context, uid string) (*domain.Repository, error) {
	var r domain.Repository
	if err := q.get(ctx, &r, `SELECT `+repositoryColumns+` FROM repository WHERE uid = ?`, uid); err != nil {
		return nil, notFound(err, "repository %s not found", uid)
	}
	return &r, nil
}

// GetOrCreateRepository mirrors GetOrCreateHarvester.
func (q *Queries) GetOrCreateRepository(ctx context.Context, uid string) (*domain.Repository, bool, error) {
	r, err := q.GetRepository(ctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Repository{UID: uid}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return r, false, nil
}

// SaveRepository inserts or updates a repository, versioning changes.
func (q *Queries) SaveRepository(ctx context.Context, r *domain.Repository) error {
	if r.ID == 0 {
		r.Version = 1
		id, err := q.insertReturningID(ctx, `
			INSERT INTO repository (uid, url, username, password, institution, version)
			VALUES (:uid, :url, :username, :password, :institution, :version)
			RETURNING repository_id`, r)
		if err != nil {
			return fmt.Errorf("inserting repository %s: %w", r.UID, err)
		}
		r.ID = id
		return nil
	}

	var old domain.Repository
	if err := q.get(ctx, &old, `SELECT `+repositoryColumns+` FROM repository WHERE repository_id = ?`, r.ID); err != nil {
		return notFound(err, "repository %d not found", r.ID)
	}
	r.Version = old.Version
	x, y := old, *r
	x.Version, y.Version = 0, 0
	if x != y {
		if err := q.archive(ctx, "repository", old.UID, old.Version, &old); err != nil {
			return err
		}
		r.Version = old.Version + 1
	}

	_, err := q.namedExec(ctx, `
		UPDATE repository SET uid = :uid, url = :url, username = :username, password = :password,
			institution = :institution, version = :version
		WHERE repository_id = :repository_id`, r)
	if err != nil {
		return fmt.Errorf("updating repository %s: %w", r.UID, err)
	}
	return nil
}

// HarvesterTargets loads a harvester together with the datasource it
// collects from and the repository it commits to.
func (q *Queries) HarvesterTargets(ctx context.Context, uid string) (*domain.Harvester, *domain.Datasource, *domain.Repository, error) {
	h, err := q.GetHarvester(ctx, uid)
	if err != nil {
		return nil, nil, nil, err
	}
	ds, err := q.GetDatasource(ctx, h.DatasourceUID)
	if err != nil {
		return nil, nil, nil, err
	}
	repo, err := q.GetRepository(ctx, h.RepositoryUID)
	if err != nil {
		return nil, nil, nil, err
	}
	return h, ds, repo, nil
}

func sameJSON(a, b any) bool {
	x, err := json.Marshal(a)
	if err != nil {
		return false
	}
	y, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(x) == string(y)
}
