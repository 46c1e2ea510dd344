package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soyeahso/harvestagent/internal/domain"
)

// HistoryEntry is an archived version of a harvester, datasource or
// repository row.
type HistoryEntry struct {
	ID      int64          `db:"history_id" json:"id"`
	Entity  string         `db:"entity" json:"entity"`
	UID     string         `db:"uid" json:"uid"`
	Version int            `db:"version" json:"version"`
	Data    domain.JSONMap `db:"data" json:"data"`
	Changed time.Time      `db:"changed" json:"changed"`
}

func (q *Queries) archive(ctx context.Context, entity, uid string, version int, row any) error {
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encoding %s %s: %w", entity, uid, err)
	}
	var data domain.JSONMap
	if err := json.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("encoding %s %s: %w", entity, uid, err)
	}

	_, err = q.namedExec(ctx, `
		INSERT INTO config_history (entity, uid, version, data, changed)
		VALUES (:entity, :uid, :version, :data, :changed)`, &HistoryEntry{
		Entity:  entity,
		UID:     uid,
		Version: version,
		Data:    data,
		Changed: now(),
	})
	if err != nil {
		return fmt.Errorf("archiving %s %s v%d: %w", entity, uid, version, err)
	}
	return nil
}

// History returns the archived versions of one entity ("harvester",
// "datasource" or "repository"), oldest first.
func (q *Queries) History(ctx context.Context, entity, uid string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := q.selectAll(ctx, &entries, `
		SELECT history_id, entity, uid, version, data, changed FROM config_history
		WHERE entity = ? AND uid = ? ORDER BY version`, entity, uid)
	if err != nil {
		return nil, fmt.Errorf("loading history of %s %s: %w", entity, uid, err)
	}
	return entries, nil
}
