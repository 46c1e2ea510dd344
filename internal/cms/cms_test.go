package cms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/httpclient"
	"github.com/soyeahso/harvestagent/internal/logging"
)

const harvesterJSON = `[{
	"uid": "h1",
	"transport": "OPeNDAP-NetCDF",
	"standard": "DataCite",
	"defaultValues": {"language": "en"},
	"supplementaryValues": "{\"subjects\": [{\"subject\": \"SAEON\"}]}",
	"granularity": null,
	"updatefrequency": "1 Days",
	"searchUrl": "http://repo/search",
	"commitUrl": "http://repo/commit",
	"url": "http://thredds/data/",
	"username": "dsuser",
	"password": "dspass"
}]`

func newClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	hc := httpclient.New(httpclient.Options{Timeout: 5 * time.Second}, nil)
	return New(srv.URL+"/Plone", "admin", "secret", hc, logging.New(nil, "silent")), srv
}

func TestHarvesterConfig(t *testing.T) {
	var query url.Values
	var path string
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.Query()
		_, _ = w.Write([]byte(harvesterJSON))
	})

	cfg, err := c.HarvesterConfig(context.Background(), "h1")
	require.NoError(t, err)

	assert.Equal(t, "/Plone/jsonContent", path)
	assert.Equal(t, "Harvester", query.Get("types"))
	assert.Equal(t, "h1", query.Get("uid"))
	assert.Equal(t, "admin", query.Get("__ac_name"))
	assert.Equal(t, "secret", query.Get("__ac_password"))

	assert.Equal(t, "OPeNDAP-NetCDF", cfg.Transport)
	assert.Equal(t, "DataCite", cfg.Standard)
	assert.Equal(t, map[string]any{"language": "en"}, cfg.DefaultValues)
	assert.Equal(t, `{"subjects": [{"subject": "SAEON"}]}`, cfg.SupplementaryValues)
	assert.Nil(t, cfg.Granularity)
	assert.Equal(t, "1 Days", cfg.UpdateFrequency)
	assert.Equal(t, "http://repo/search", cfg.SearchURL)
	assert.Equal(t, "http://repo/commit", cfg.CommitURL)
	assert.Equal(t, "http://thredds/data/", cfg.URL)
	assert.Equal(t, "dsuser", cfg.Username)
	assert.Equal(t, "dspass", cfg.Password)
}

func TestHarvesterConfig_NotFound(t *testing.T) {
	bodies := []string{`[]`, `[{"uid": "a"}, {"uid": "b"}]`, `["h1"]`, `{"uid": "h1"}`, `"h1"`, `null`}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.HarvesterConfig(context.Background(), "h1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrCMS))
			assert.Equal(t, "Cannot find a harvester with uid h1", err.Error())
		})
	}
}

func TestHarvesterConfig_MissingKey(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"transport": "OPeNDAP-NetCDF"}]`))
	})
	_, err := c.HarvesterConfig(context.Background(), "h1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCMS))
	assert.Equal(t, "Harvester h1 config is missing 'standard'", err.Error())
}

func TestHarvesterConfig_RequestErrors(t *testing.T) {
	c, srv := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	})
	_, err := c.HarvesterConfig(context.Background(), "h1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCMS))
	assert.Contains(t, err.Error(), "Error requesting "+srv.URL+"/Plone/jsonContent")
	assert.NotContains(t, err.Error(), "secret")

	c, srv = newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>login</html>"))
	})
	_, err = c.HarvesterConfig(context.Background(), "h1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCMS))
	assert.Contains(t, err.Error(), "Invalid response from "+srv.URL+"/Plone/jsonContent")
}
