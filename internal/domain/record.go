package domain

import "time"

// RecordStatus tracks a harvested record through fetch and commit.
type RecordStatus string

const (
	RecordPending   RecordStatus = "Pending"
	RecordFetched   RecordStatus = "Fetched"
	RecordCommitted RecordStatus = "Committed"
)

// RecordStatuses lists every record status.
var RecordStatuses = []RecordStatus{RecordPending, RecordFetched, RecordCommitted}

// HarvestedRecord is a metadata record (to be) harvested from one datasource
// and (to be) committed to one repository. (DatasourceID, RepositoryID, UID)
// is unique.
type HarvestedRecord struct {
	DatasourceID int64        `db:"datasource_id" json:"datasourceId"`
	RepositoryID int64        `db:"repository_id" json:"repositoryId"`
	UID          string       `db:"uid" json:"uid"`
	Timestamp    *time.Time   `db:"timestamp" json:"timestamp,omitempty"`
	Metadata     JSONMap      `db:"metadata" json:"metadata,omitempty"`
	MetadataUID  *string      `db:"metadata_uid" json:"metadataUid,omitempty"`
	Status       RecordStatus `db:"status" json:"status"`
	LastError    *string      `db:"lasterror" json:"lastError,omitempty"`
	ErrorCount   int          `db:"errorcount" json:"errorCount"`
	Updated      time.Time    `db:"updated" json:"updated"`
}

// CollectStatus is the outcome reported by a collector for one record.
type CollectStatus string

const (
	// CollectPending means only the record's identity is known; metadata
	// must be fetched separately.
	CollectPending CollectStatus = "Pending"
	CollectSuccess CollectStatus = "Success"
	CollectError   CollectStatus = "Error"
)

// CollectedRecord is what a collector returns for one remote record.
type CollectedRecord struct {
	UID       string
	Timestamp *time.Time
	Metadata  JSONMap
	Status    CollectStatus
	Error     string
}

// NewHarvestedRecord converts a freshly collected record into the row to
// insert: successes arrive Fetched, everything else waits as Pending, and
// collector errors count as the first failed attempt.
func NewHarvestedRecord(ds *Datasource, repo *Repository, c CollectedRecord, now time.Time) *HarvestedRecord {
	rec := &HarvestedRecord{
		DatasourceID: ds.ID,
		RepositoryID: repo.ID,
		UID:          c.UID,
		Timestamp:    c.Timestamp,
		Status:       RecordPending,
		Updated:      now,
	}
	switch c.Status {
	case CollectSuccess:
		rec.Metadata = c.Metadata
		rec.Status = RecordFetched
	case CollectError:
		msg := c.Error
		rec.LastError = &msg
		rec.ErrorCount = 1
	}
	return rec
}
