// Package domain holds the agent's core types: harvesters, the datasources
// they collect from, the repositories they commit to, and the records that
// move between them.
package domain

import (
	"fmt"
	"time"
)

// HarvesterStatus is the lifecycle state of a harvester.
type HarvesterStatus string

const (
	HarvesterActive   HarvesterStatus = "Active"
	HarvesterInactive HarvesterStatus = "Inactive"
	HarvesterDeleted  HarvesterStatus = "Deleted"
)

// Known transport protocols and metadata schemas.
const (
	ProtocolOPeNDAPNetCDF   = "OPeNDAP-NetCDF"
	ProtocolObservationsAPI = "ObservationsAPI"

	SchemaDataCite = "DataCite"
)

// Harvester holds everything needed to fetch metadata from a Datasource
// (through a collector) and commit it to a Repository (through a curator).
// It refers to its datasource and repository by uid only and does not own
// the records it produces.
type Harvester struct {
	ID                  int64           `db:"harvester_id" json:"id"`
	UID                 string          `db:"uid" json:"uid"`
	DatasourceUID       string          `db:"datasource_uid" json:"datasourceUid"`
	RepositoryUID       string          `db:"repository_uid" json:"repositoryUid"`
	Protocol            string          `db:"protocol" json:"protocol"`
	Schema              string          `db:"metadata_schema" json:"schema"`
	DefaultValues       JSONMap         `db:"default_values" json:"defaultValues"`
	SupplementaryValues JSONMap         `db:"supplementary_values" json:"supplementaryValues"`
	Granularity         JSONMap         `db:"granularity" json:"granularity"`
	SearchURL           string          `db:"search_url" json:"searchUrl"`
	CommitURL           string          `db:"commit_url" json:"commitUrl"`
	Frequency           Frequency       `db:"frequency" json:"frequency"`
	Status              HarvesterStatus `db:"status" json:"status"`
	LastRun             *time.Time      `db:"lastrun" json:"lastRun,omitempty"`
	Version             int             `db:"version" json:"version"`
}

func (h *Harvester) String() string {
	return fmt.Sprintf("<Harvester:%d>", h.ID)
}

// IsHarvestDue reports whether at least one frequency interval has passed
// since the last run. Inactive harvesters and those set to "Never" are never
// due; a harvester that has never run is always due.
func (h *Harvester) IsHarvestDue(now time.Time) bool {
	if h.Status != HarvesterActive {
		return false
	}
	interval, ok := h.Frequency.Interval()
	if !ok {
		return false
	}
	if h.LastRun == nil {
		return true
	}
	return now.After(h.LastRun.Add(interval))
}

// Datasource is a remote store from which metadata records are harvested.
type Datasource struct {
	ID       int64  `db:"datasource_id" json:"id"`
	UID      string `db:"uid" json:"uid"`
	URL      string `db:"url" json:"url"`
	Username string `db:"username" json:"username,omitempty"`
	Password string `db:"password" json:"-"`
	Version  int    `db:"version" json:"version"`
}

func (d *Datasource) String() string {
	return fmt.Sprintf("<Datasource:%d>", d.ID)
}

// Repository is a destination for harvested metadata records.
type Repository struct {
	ID          int64  `db:"repository_id" json:"id"`
	UID         string `db:"uid" json:"uid"`
	URL         string `db:"url" json:"url"`
	Username    string `db:"username" json:"username,omitempty"`
	Password    string `db:"password" json:"-"`
	Institution string `db:"institution" json:"institution,omitempty"`
	Version     int    `db:"version" json:"version"`
}

func (r *Repository) String() string {
	return fmt.Sprintf("<Repository:%d>", r.ID)
}
