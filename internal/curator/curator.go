// Package curator commits harvested metadata to a repository. A curator
// finds the repository record that a harvested record belongs to (by
// granule) and either updates that record or creates a new one.
package curator

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/soyeahso/harvestagent/internal/metadata"
)

// Curator commits metadata records to a repository.
type Curator interface {
	// CommitMetadata creates or updates the repository record for dict and
	// returns the repository's id for it. datasourceUID and recordUID
	// identify the record's origin.
	CommitMetadata(ctx context.Context, dict domain.JSONMap, datasourceUID, recordUID string) (string, error)
}

// HTTP is the client a curator uses. *httpclient.Client implements it.
type HTTP interface {
	Get(ctx context.Context, url string) ([]byte, error)
	GetQuery(ctx context.Context, url string, params url.Values) ([]byte, error)
	SendForm(ctx context.Context, method, url string, form url.Values) ([]byte, error)
}

// Target describes where and how a harvester's records are committed.
type Target struct {
	Schema              string
	DefaultValues       domain.JSONMap
	SupplementaryValues domain.JSONMap
	Granularity         domain.JSONMap
	RepositoryURL       string
	SearchURL           string
	CommitURL           string
	Username            string
	Password            string
	Institution         string
}

// Factory creates a curator for a target. The granularity is already
// parsed and its polygons loaded.
type Factory func(t Target, g *metadata.Granularity, h HTTP, log *logging.Logger) Curator

// Registry maps metadata schemas to curator factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	http      HTTP
	log       *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(h HTTP, log *logging.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		http:      h,
		log:       log.Sub("curator"),
	}
}

// NewDefaultRegistry creates a registry holding the built-in curators.
func NewDefaultRegistry(h HTTP, log *logging.Logger) *Registry {
	r := NewRegistry(h, log)
	_ = r.Register(domain.SchemaDataCite, NewDataCite)
	return r
}

// Register adds a factory for a schema.
func (r *Registry) Register(schema string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[schema]; exists {
		return fmt.Errorf("curator already registered for schema %q", schema)
	}
	r.factories[schema] = factory
	r.log.Debug().Str("schema", schema).Msg("curator registered")
	return nil
}

// Supports reports whether a curator is registered for schema.
func (r *Registry) Supports(schema string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[schema]
	return ok
}

// Schemas returns the supported schemas in sorted order.
func (r *Registry) Schemas() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Create builds the curator for t.Schema. The granularity's spatial extent,
// if any, is loaded here so that a bad polygon source fails the harvest
// before any record is committed.
func (r *Registry) Create(ctx context.Context, t Target) (Curator, error) {
	r.mu.RLock()
	factory, ok := r.factories[t.Schema]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.HarvestingErrorf("No Curator class found that supports schema '%s'", t.Schema)
	}

	g, err := metadata.ParseGranularity(t.Granularity)
	if err != nil {
		return nil, err
	}
	if err := g.LoadPolygons(ctx, r.http); err != nil {
		return nil, err
	}
	return factory(t, g, r.http, r.log.With("schema", t.Schema)), nil
}
