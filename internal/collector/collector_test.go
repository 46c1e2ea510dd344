package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/httpclient"
	"github.com/soyeahso/harvestagent/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Options{Timeout: 5 * time.Second}, testLogger())
}

type stubCollector struct{ src Source }

func (s *stubCollector) FetchRecords(context.Context, *time.Time, int) ([]domain.CollectedRecord, error) {
	return nil, nil
}

func (s *stubCollector) FetchMetadata(_ context.Context, uid string) (domain.CollectedRecord, error) {
	return domain.CollectedRecord{UID: uid, Status: domain.CollectSuccess}, nil
}

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry(testClient(), testLogger())
	require.NoError(t, reg.Register("P", "S", func(src Source, _ Fetcher, _ *logging.Logger) Collector {
		return &stubCollector{src: src}
	}))

	c, err := reg.Create("P", "S", "http://example.org/data", "user", "pass")
	require.NoError(t, err)
	stub := c.(*stubCollector)
	assert.Equal(t, "http://example.org/data/", stub.src.URL)
	assert.Equal(t, "user", stub.src.Username)
	assert.Equal(t, "pass", stub.src.Password)

	c, err = reg.Create("P", "S", "http://example.org/data/", "", "")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/data/", c.(*stubCollector).src.URL)
}

func TestRegistry_Unsupported(t *testing.T) {
	reg := NewDefaultRegistry(testClient(), testLogger())

	_, err := reg.Create("FTP", "DataCite", "http://example.org/", "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrHarvesting))
	assert.Equal(t, "No Collector class found that supports protocol 'FTP' and schema 'DataCite'", err.Error())
}

func TestRegistry_Duplicate(t *testing.T) {
	reg := NewDefaultRegistry(testClient(), testLogger())
	err := reg.Register(domain.ProtocolOPeNDAPNetCDF, domain.SchemaDataCite, NewNetCDF)
	assert.Error(t, err)
}

func TestRegistry_Defaults(t *testing.T) {
	reg := NewDefaultRegistry(testClient(), testLogger())

	assert.True(t, reg.Supports(domain.ProtocolOPeNDAPNetCDF, domain.SchemaDataCite))
	assert.True(t, reg.Supports(domain.ProtocolObservationsAPI, domain.SchemaDataCite))
	assert.False(t, reg.Supports(domain.ProtocolOPeNDAPNetCDF, "ISO19115"))

	assert.Equal(t, []Kind{
		{Protocol: domain.ProtocolOPeNDAPNetCDF, Schema: domain.SchemaDataCite},
		{Protocol: domain.ProtocolObservationsAPI, Schema: domain.SchemaDataCite},
	}, reg.Kinds())

	c, err := reg.Create(domain.ProtocolOPeNDAPNetCDF, domain.SchemaDataCite, "http://example.org/", "", "")
	require.NoError(t, err)
	assert.IsType(t, &NetCDF{}, c)

	c, err = reg.Create(domain.ProtocolObservationsAPI, domain.SchemaDataCite, "http://example.org/", "", "")
	require.NoError(t, err)
	assert.IsType(t, &Observations{}, c)
}
