// Package harvest runs harvesters: it collects new records from a
// datasource, fetches the metadata of records still pending, and commits
// fetched metadata to the repository. Progress lives in the harvestedrecord
// table, so an interrupted harvest resumes where it left off.
package harvest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/harvestagent/internal/collector"
	"github.com/soyeahso/harvestagent/internal/curator"
	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/hooks"
	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/soyeahso/harvestagent/internal/store"
)

// DefaultMaxAttempts is how many times an operation on a record is tried
// before the record is left in its error state.
const DefaultMaxAttempts = 10

// Options tunes an Engine.
type Options struct {
	MaxAttempts      int
	FetchConcurrency int
}

// Engine harvests metadata for harvesters stored in the database.
type Engine struct {
	db         *store.DB
	collectors *collector.Registry
	curators   *curator.Registry
	hooks      *hooks.Manager
	opts       Options
	log        *logging.Logger
	now        func() time.Time
}

// New creates an engine. hm may be nil.
func New(db *store.DB, collectors *collector.Registry, curators *curator.Registry,
	hm *hooks.Manager, opts Options, log *logging.Logger) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	return &Engine{
		db:         db,
		collectors: collectors,
		curators:   curators,
		hooks:      hm,
		opts:       opts,
		log:        log.Sub("harvest"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Supports returns an error unless a collector exists for the protocol
// and schema and a curator exists for the schema.
func (e *Engine) Supports(protocol, schema string) error {
	if !e.collectors.Supports(protocol, schema) {
		return domain.HarvestingErrorf(
			"No Collector class found that supports protocol '%s' and schema '%s'", protocol, schema)
	}
	if !e.curators.Supports(schema) {
		return domain.HarvestingErrorf("No Curator class found that supports schema '%s'", schema)
	}
	return nil
}

// Summary counts what one harvest did.
type Summary struct {
	Harvester    string        `json:"harvester"`
	Collected    int           `json:"collected"`
	New          int           `json:"new"`
	Fetched      int           `json:"fetched"`
	FetchErrors  int           `json:"fetchErrors"`
	Committed    int           `json:"committed"`
	CommitErrors int           `json:"commitErrors"`
	Duration     time.Duration `json:"duration"`
}

func (s *Summary) fields() map[string]any {
	return map[string]any{
		"harvester":    s.Harvester,
		"collected":    s.Collected,
		"new":          s.New,
		"fetched":      s.Fetched,
		"fetchErrors":  s.FetchErrors,
		"committed":    s.Committed,
		"commitErrors": s.CommitErrors,
		"durationMs":   s.Duration.Milliseconds(),
	}
}

// run holds the per-harvest state.
type run struct {
	h    *domain.Harvester
	ds   *domain.Datasource
	repo *domain.Repository
	col  collector.Collector
	cur  curator.Curator
	log  *logging.Logger

	mu      sync.Mutex
	summary Summary
}

// Harvest runs one harvest of h, collecting at most limit new records
// (0 means no limit). The harvester's lastrun is recorded before any
// records are touched, so it advances even when a later stage fails.
func (e *Engine) Harvest(ctx context.Context, h *domain.Harvester, limit int) (*Summary, error) {
	if h.Status != domain.HarvesterActive {
		return nil, domain.HarvestingErrorf("Cannot harvest: harvester status is %s", h.Status)
	}

	ds, err := e.db.GetDatasource(ctx, h.DatasourceUID)
	if err != nil {
		return nil, err
	}
	repo, err := e.db.GetRepository(ctx, h.RepositoryUID)
	if err != nil {
		return nil, err
	}

	col, err := e.collectors.Create(h.Protocol, h.Schema, ds.URL, ds.Username, ds.Password)
	if err != nil {
		return nil, err
	}
	cur, err := e.curators.Create(ctx, curator.Target{
		Schema:              h.Schema,
		DefaultValues:       h.DefaultValues,
		SupplementaryValues: h.SupplementaryValues,
		Granularity:         h.Granularity,
		RepositoryURL:       repo.URL,
		SearchURL:           h.SearchURL,
		CommitURL:           h.CommitURL,
		Username:            repo.Username,
		Password:            repo.Password,
		Institution:         repo.Institution,
	})
	if err != nil {
		return nil, err
	}

	start := e.now()
	if err := e.db.SetLastRun(ctx, h.ID, start); err != nil {
		return nil, err
	}
	h.LastRun = &start

	r := &run{
		h:       h,
		ds:      ds,
		repo:    repo,
		col:     col,
		cur:     cur,
		log:     e.log.With("harvester", h.UID),
		summary: Summary{Harvester: h.UID},
	}
	e.hooks.Emit(ctx, hooks.EventHarvestStart, map[string]any{
		"harvester":  h.UID,
		"datasource": ds.UID,
		"repository": repo.UID,
		"limit":      limit,
	})

	err = e.fetchNewRecords(ctx, r, limit)
	if err == nil {
		err = e.fetchPendingRecords(ctx, r)
	}
	if err == nil {
		err = e.commitRecords(ctx, r)
	}

	r.summary.Duration = time.Since(start)
	fields := r.summary.fields()
	if err != nil {
		fields["error"] = err.Error()
	}
	e.hooks.Emit(ctx, hooks.EventHarvestFinish, fields)

	if err != nil {
		r.log.Error().Err(err).Msg("harvest failed")
		return &r.summary, err
	}
	r.log.Info().
		Int("new", r.summary.New).
		Int("fetched", r.summary.Fetched).
		Int("committed", r.summary.Committed).
		Int("errors", r.summary.FetchErrors+r.summary.CommitErrors).
		Dur("duration", r.summary.Duration).
		Msg("harvest finished")
	return &r.summary, nil
}

// fetchNewRecords asks the collector for records and inserts those not yet
// known. The collector has already done the remote work, so all inserts
// share one transaction.
func (e *Engine) fetchNewRecords(ctx context.Context, r *run, limit int) error {
	r.log.Debug().Msg("fetching new records")

	collected, err := r.col.FetchRecords(ctx, nil, limit)
	if err != nil {
		return err
	}
	r.summary.Collected = len(collected)
	if len(collected) == 0 {
		return nil
	}

	var inserted []*domain.HarvestedRecord
	err = e.db.WithTx(ctx, func(q *store.Queries) error {
		for _, c := range collected {
			exists, err := q.RecordExists(ctx, r.ds.ID, r.repo.ID, c.UID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			rec := domain.NewHarvestedRecord(r.ds, r.repo, c, e.now())
			if err := q.InsertRecord(ctx, rec); err != nil {
				return err
			}
			inserted = append(inserted, rec)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.summary.New = len(inserted)
	for _, rec := range inserted {
		switch {
		case rec.Status == domain.RecordFetched:
			r.summary.Fetched++
			e.emitRecord(ctx, hooks.EventRecordFetched, r, rec)
		case rec.LastError != nil:
			r.summary.FetchErrors++
			e.emitRecord(ctx, hooks.EventRecordError, r, rec)
		}
	}
	r.log.Debug().Int("collected", len(collected)).Int("new", len(inserted)).Msg("new records stored")
	return nil
}

// fetchPendingRecords fetches metadata for Pending records that have not
// used up their attempts. Fetches run concurrently; each record is
// updated in its own transaction.
func (e *Engine) fetchPendingRecords(ctx context.Context, r *run) error {
	r.log.Debug().Msg("fetching pending records")

	pending, err := e.db.ListRecords(ctx, store.RecordFilter{
		DatasourceID:  r.ds.ID,
		RepositoryID:  r.repo.ID,
		Status:        domain.RecordPending,
		MaxErrorCount: e.opts.MaxAttempts,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.FetchConcurrency)
	for i := range pending {
		rec := &pending[i]
		g.Go(func() error {
			return e.fetchPendingRecord(gctx, r, rec)
		})
	}
	return g.Wait()
}

func (e *Engine) fetchPendingRecord(ctx context.Context, r *run, rec *domain.HarvestedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	collected, ferr := r.col.FetchMetadata(ctx, rec.UID)
	switch {
	case ferr != nil:
		setError(rec, ferr.Error())
	case collected.Status == domain.CollectSuccess:
		rec.Timestamp = collected.Timestamp
		rec.Metadata = collected.Metadata
		rec.Status = domain.RecordFetched
		rec.LastError = nil
		rec.ErrorCount = 0
	default:
		rec.Timestamp = collected.Timestamp
		msg := collected.Error
		if msg == "" {
			msg = "metadata not available"
		}
		setError(rec, msg)
	}
	rec.Updated = e.now()

	if err := e.db.WithTx(ctx, func(q *store.Queries) error {
		return q.UpdateRecord(ctx, rec)
	}); err != nil {
		return err
	}

	r.mu.Lock()
	if rec.Status == domain.RecordFetched {
		r.summary.Fetched++
	} else {
		r.summary.FetchErrors++
	}
	r.mu.Unlock()

	if rec.Status == domain.RecordFetched {
		e.emitRecord(ctx, hooks.EventRecordFetched, r, rec)
	} else {
		r.log.Warn().Str("record", rec.UID).Int("attempts", rec.ErrorCount).Str("error", *rec.LastError).
			Msg("error fetching metadata")
		e.emitRecord(ctx, hooks.EventRecordError, r, rec)
	}
	return nil
}

// commitRecords commits Fetched records one at a time: each commit may
// create the repository record that the next one merges into.
func (e *Engine) commitRecords(ctx context.Context, r *run) error {
	r.log.Debug().Msg("committing records")

	fetched, err := e.db.ListRecords(ctx, store.RecordFilter{
		DatasourceID:  r.ds.ID,
		RepositoryID:  r.repo.ID,
		Status:        domain.RecordFetched,
		MaxErrorCount: e.opts.MaxAttempts,
	})
	if err != nil {
		return err
	}

	for i := range fetched {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := &fetched[i]

		uid, cerr := r.cur.CommitMetadata(ctx, rec.Metadata, r.h.DatasourceUID, rec.UID)
		if cerr != nil {
			setError(rec, cerr.Error())
			r.log.Error().Err(cerr).Str("record", rec.UID).Msg("error committing record")
		} else {
			if uid != "" {
				rec.MetadataUID = &uid
			} else {
				rec.MetadataUID = nil
			}
			rec.Status = domain.RecordCommitted
			rec.LastError = nil
			rec.ErrorCount = 0
		}
		rec.Updated = e.now()

		if err := e.db.WithTx(ctx, func(q *store.Queries) error {
			return q.UpdateRecord(ctx, rec)
		}); err != nil {
			return err
		}

		if cerr != nil {
			r.summary.CommitErrors++
			e.emitRecord(ctx, hooks.EventRecordError, r, rec)
		} else {
			r.summary.Committed++
			e.emitRecord(ctx, hooks.EventRecordCommitted, r, rec)
		}
	}
	return nil
}

func setError(rec *domain.HarvestedRecord, msg string) {
	rec.LastError = &msg
	rec.ErrorCount++
}

func (e *Engine) emitRecord(ctx context.Context, event string, r *run, rec *domain.HarvestedRecord) {
	data := map[string]any{
		"harvester":  r.h.UID,
		"record":     rec.UID,
		"status":     string(rec.Status),
		"errorCount": rec.ErrorCount,
	}
	if rec.LastError != nil {
		data["error"] = *rec.LastError
	}
	if rec.MetadataUID != nil {
		data["metadataUid"] = *rec.MetadataUID
	}
	e.hooks.Emit(ctx, event, data)
}
