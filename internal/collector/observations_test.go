package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/harvestagent/internal/domain"
)

const observationList = `[
	{"id": 1, "timestamp": "2020-05-01T10:00:00Z", "title": "Rainfall", "latitude": -33.9, "longitude": 18.4, "station": "Cape Town"},
	{"title": "no id"},
	{"id": "x2", "timestamp": "2020-13-45"},
	{"id": "x3", "name": "Wind", "latitude": "north", "longitude": 18}
]`

func observationsServer(t *testing.T, paths *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if paths != nil {
			*paths = append(*paths, r.URL.Path)
		}
		switch r.URL.Path {
		case "/api/Metadata", "/api/Metadata/2020-01-01T00:00:00Z":
			_, _ = w.Write([]byte(observationList))
		case "/api/Metadata/abc":
			_, _ = w.Write([]byte(`{"id": "abc", "description": "Daily rainfall"}`))
		case "/api/Metadata/wrapped":
			_, _ = w.Write([]byte(`[{"id": "wrapped"}]`))
		case "/api/Metadata/none":
			_, _ = w.Write([]byte(`[]`))
		case "/api/Metadata/junk":
			_, _ = w.Write([]byte(`<html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newObservations(t *testing.T, base string) Collector {
	t.Helper()
	reg := NewDefaultRegistry(testClient(), testLogger())
	c, err := reg.Create(domain.ProtocolObservationsAPI, domain.SchemaDataCite, base, "", "")
	require.NoError(t, err)
	return c
}

func TestObservations_FetchRecords(t *testing.T) {
	srv := observationsServer(t, nil)
	c := newObservations(t, srv.URL+"/api")

	records, err := c.FetchRecords(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	rec := records[0]
	assert.Equal(t, "1", rec.UID)
	assert.Equal(t, domain.CollectSuccess, rec.Status)
	require.NotNil(t, rec.Timestamp)
	assert.True(t, rec.Timestamp.Equal(time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Observation", rec.Metadata["resourceType"])
	assert.Equal(t, []any{map[string]any{"title": "Rainfall"}}, rec.Metadata["titles"])
	assert.Equal(t, []any{map[string]any{"geoLocationPoint": "-33.9 18.4"}}, rec.Metadata["geoLocations"])
	assert.Equal(t, []any{map[string]any{
		"date":     "2020-05-01T10:00:00Z/2020-05-01T10:00:00Z",
		"dateType": "Collected",
	}}, rec.Metadata["dates"])
	assert.Equal(t, map[string]any{"station": "Cape Town"}, rec.Metadata["additionalFields"])

	assert.Equal(t, "x2", records[1].UID)
	assert.Equal(t, domain.CollectError, records[1].Status)
	assert.Contains(t, records[1].Error, "Invalid timestamp for x2")

	assert.Equal(t, "x3", records[2].UID)
	assert.Equal(t, domain.CollectError, records[2].Status)
	assert.Contains(t, records[2].Error, "Invalid latitude")
}

func TestObservations_FetchRecords_SinceAndLimit(t *testing.T) {
	var paths []string
	srv := observationsServer(t, &paths)
	c := newObservations(t, srv.URL+"/api/")

	since := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	records, err := c.FetchRecords(context.Background(), &since, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"/api/Metadata/2020-01-01T00:00:00Z"}, paths)
}

func TestObservations_FetchRecords_Errors(t *testing.T) {
	srv := observationsServer(t, nil)

	c := newObservations(t, srv.URL+"/missing")
	_, err := c.FetchRecords(context.Background(), nil, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHarvesting))
	assert.Contains(t, err.Error(), "Error requesting "+srv.URL+"/missing/Metadata")
}

func TestObservations_FetchMetadata(t *testing.T) {
	srv := observationsServer(t, nil)
	c := newObservations(t, srv.URL+"/api")

	rec, err := c.FetchMetadata(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, domain.CollectSuccess, rec.Status)
	assert.Equal(t, "abc", rec.UID)
	assert.Nil(t, rec.Timestamp)
	assert.Equal(t, []any{map[string]any{
		"description":     "Daily rainfall",
		"descriptionType": "Abstract",
	}}, rec.Metadata["description"])

	rec, err = c.FetchMetadata(context.Background(), "wrapped")
	require.NoError(t, err)
	assert.Equal(t, domain.CollectSuccess, rec.Status)
	assert.Equal(t, "wrapped", rec.UID)

	rec, err = c.FetchMetadata(context.Background(), "none")
	require.NoError(t, err)
	assert.Equal(t, domain.CollectError, rec.Status)
	assert.Equal(t, "none", rec.UID)

	_, err = c.FetchMetadata(context.Background(), "junk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid response from")
}
