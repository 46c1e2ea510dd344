package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/harvestagent/internal/domain"
)

const recordColumns = `datasource_id, repository_id, uid, "timestamp", metadata, metadata_uid,
	status, lasterror, errorcount, updated`

// RecordFilter selects harvested records. Zero fields are ignored.
type RecordFilter struct {
	DatasourceID int64
	RepositoryID int64
	Status       domain.RecordStatus
	// MaxErrorCount keeps only records with errorcount below it.
	MaxErrorCount int
	Limit         int
}

// RecordExists reports whether a record with this key has been harvested.
func (q *Queries) RecordExists(ctx context.Context, datasourceID, repositoryID int64, uid string) (bool, error) {
	var count int
	err := q.get(ctx, &count, `
		SELECT COUNT(*) FROM harvestedrecord
		WHERE datasource_id = ? AND repository_id = ? AND uid = ?`, datasourceID, repositoryID, uid)
	if err != nil {
		return false, fmt.Errorf("checking record %s: %w", uid, err)
	}
	return count > 0, nil
}

// GetRecord returns one harvested record, or an ErrNotFound error.
func (q *Queries) GetRecord(ctx context.Context, datasourceID, repositoryID int64, uid string) (*domain.HarvestedRecord, error) {
	var r domain.HarvestedRecord
	err := q.get(ctx, &r, `SELECT `+recordColumns+` FROM harvestedrecord
		WHERE datasource_id = ? AND repository_id = ? AND uid = ?`, datasourceID, repositoryID, uid)
	if err != nil {
		return nil, notFound(err, "record %s not found", uid)
	}
	return &r, nil
}

// InsertRecord stores a new harvested record.
func (q *Queries) InsertRecord(ctx context.Context, r *domain.HarvestedRecord) error {
	if r.Updated.IsZero() {
		r.Updated = now()
	}
	_, err := q.namedExec(ctx, `
		INSERT INTO harvestedrecord (datasource_id, repository_id, uid, "timestamp", metadata, metadata_uid,
			status, lasterror, errorcount, updated)
		VALUES (:datasource_id, :repository_id, :uid, :timestamp, :metadata, :metadata_uid,
			:status, :lasterror, :errorcount, :updated)`, r)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", r.UID, err)
	}
	return nil
}

// UpdateRecord writes back every mutable column of a harvested record.
func (q *Queries) UpdateRecord(ctx context.Context, r *domain.HarvestedRecord) error {
	n, err := q.namedExec(ctx, `
		UPDATE harvestedrecord SET "timestamp" = :timestamp, metadata = :metadata, metadata_uid = :metadata_uid,
			status = :status, lasterror = :lasterror, errorcount = :errorcount, updated = :updated
		WHERE datasource_id = :datasource_id AND repository_id = :repository_id AND uid = :uid`, r)
	if err != nil {
		return fmt.Errorf("updating record %s: %w", r.UID, err)
	}
	if n == 0 {
		return domain.Errorf(domain.ErrNotFound, "record %s not found", r.UID)
	}
	return nil
}

// ListRecords returns the records matching f, ordered by uid.
func (q *Queries) ListRecords(ctx context.Context, f RecordFilter) ([]domain.HarvestedRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.DatasourceID != 0 {
		where = append(where, "datasource_id = ?")
		args = append(args, f.DatasourceID)
	}
	if f.RepositoryID != 0 {
		where = append(where, "repository_id = ?")
		args = append(args, f.RepositoryID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.MaxErrorCount > 0 {
		where = append(where, "errorcount < ?")
		args = append(args, f.MaxErrorCount)
	}

	query := `SELECT ` + recordColumns + ` FROM harvestedrecord`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY datasource_id, repository_id, uid"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var records []domain.HarvestedRecord
	if err := q.selectAll(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// CountRecordsByStatus counts the records of one datasource/repository pair.
// Every status is present in the result.
func (q *Queries) CountRecordsByStatus(ctx context.Context, datasourceID, repositoryID int64) (map[domain.RecordStatus]int, error) {
	var rows []struct {
		Status domain.RecordStatus `db:"status"`
		Count  int                 `db:"n"`
	}
	err := q.selectAll(ctx, &rows, `
		SELECT status, COUNT(*) AS n FROM harvestedrecord
		WHERE datasource_id = ? AND repository_id = ?
		GROUP BY status`, datasourceID, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	counts := make(map[domain.RecordStatus]int, len(domain.RecordStatuses))
	for _, s := range domain.RecordStatuses {
		counts[s] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
