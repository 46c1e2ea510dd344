// Package collector fetches metadata records from remote datasources. Each
// collector understands one transport protocol and produces metadata in one
// schema; the Registry picks the collector for a harvester.
package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/logging"
)

// Collector fetches metadata records from a datasource.
type Collector interface {
	// FetchRecords lists records in the datasource. since is a hint that
	// only records added after it are wanted; collectors that cannot
	// filter by time ignore it. A limit of 0 means no limit.
	FetchRecords(ctx context.Context, since *time.Time, limit int) ([]domain.CollectedRecord, error)
	// FetchMetadata fetches the metadata of one record. Failures specific
	// to the record are reported in the returned record's Status and
	// Error, not as an error.
	FetchMetadata(ctx context.Context, uid string) (domain.CollectedRecord, error)
}

// Fetcher performs HTTP GET requests. *httpclient.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Source describes the datasource a collector reads from.
type Source struct {
	Protocol string
	Schema   string
	URL      string // always ends with "/"
	Username string
	Password string
}

// Factory creates a collector for a datasource.
type Factory func(src Source, f Fetcher, log *logging.Logger) Collector

// Kind is a supported (protocol, schema) pair.
type Kind struct {
	Protocol string `json:"protocol"`
	Schema   string `json:"schema"`
}

// Registry maps (protocol, schema) pairs to collector factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
	fetcher   Fetcher
	log       *logging.Logger
}

// NewRegistry creates an empty registry. Collectors it creates share f.
func NewRegistry(f Fetcher, log *logging.Logger) *Registry {
	return &Registry{
		factories: make(map[Kind]Factory),
		fetcher:   f,
		log:       log.Sub("collector"),
	}
}

// NewDefaultRegistry creates a registry holding the built-in collectors.
func NewDefaultRegistry(f Fetcher, log *logging.Logger) *Registry {
	r := NewRegistry(f, log)
	_ = r.Register(domain.ProtocolOPeNDAPNetCDF, domain.SchemaDataCite, NewNetCDF)
	_ = r.Register(domain.ProtocolObservationsAPI, domain.SchemaDataCite, NewObservations)
	return r
}

// Register adds a factory for a (protocol, schema) pair.
func (r *Registry) Register(protocol, schema string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := Kind{Protocol: protocol, Schema: schema}
	if _, exists := r.factories[k]; exists {
		return fmt.Errorf("collector already registered for protocol %q and schema %q", protocol, schema)
	}
	r.factories[k] = factory
	r.log.Debug().Str("protocol", protocol).Str("schema", schema).Msg("collector registered")
	return nil
}

// Create builds the collector supporting protocol and schema.
func (r *Registry) Create(protocol, schema, url, username, password string) (Collector, error) {
	r.mu.RLock()
	factory, ok := r.factories[Kind{Protocol: protocol, Schema: schema}]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.HarvestingErrorf(
			"No Collector class found that supports protocol '%s' and schema '%s'", protocol, schema)
	}

	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	src := Source{
		Protocol: protocol,
		Schema:   schema,
		URL:      url,
		Username: username,
		Password: password,
	}
	return factory(src, r.fetcher, r.log.With("protocol", protocol)), nil
}

// Supports reports whether a collector is registered for the pair.
func (r *Registry) Supports(protocol, schema string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[Kind{Protocol: protocol, Schema: schema}]
	return ok
}

// Kinds returns the supported pairs sorted by protocol then schema.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Protocol != out[j].Protocol {
			return out[i].Protocol < out[j].Protocol
		}
		return out[i].Schema < out[j].Schema
	})
	return out
}

func errorRecord(uid string, timestamp *time.Time, err error) domain.CollectedRecord {
	return domain.CollectedRecord{
		UID:       uid,
		Timestamp: timestamp,
		Status:    domain.CollectError,
		Error:     err.Error(),
	}
}
