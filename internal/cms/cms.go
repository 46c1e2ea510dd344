// Package cms reads harvester configuration from the content management
// system, which publishes its content as JSON through the jsonContent view.
package cms

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/logging"
)

// Querier performs GET requests with query parameters.
// *httpclient.Client implements it.
type Querier interface {
	GetQuery(ctx context.Context, url string, params url.Values) ([]byte, error)
}

// Client talks to the CMS on behalf of one user.
type Client struct {
	serverURL string
	username  string
	password  string
	http      Querier
	log       *logging.Logger
}

// New creates a CMS client. Requests authenticate as username.
func New(serverURL, username, password string, q Querier, log *logging.Logger) *Client {
	if !strings.HasSuffix(serverURL, "/") {
		serverURL += "/"
	}
	return &Client{
		serverURL: serverURL,
		username:  username,
		password:  password,
		http:      q,
		log:       log.Sub("cms"),
	}
}

// HarvesterConfig is a Harvester object as published by the CMS.
type HarvesterConfig struct {
	Transport           string
	Standard            string
	DefaultValues       any
	SupplementaryValues any
	Granularity         any
	UpdateFrequency     string
	SearchURL           string
	CommitURL           string
	URL                 string
	Username            string
	Password            string
}

var requiredKeys = []string{"transport", "standard", "updatefrequency", "searchUrl", "commitUrl", "url"}

// HarvesterConfig fetches the configuration of the harvester with the
// given uid.
func (c *Client) HarvesterConfig(ctx context.Context, uid string) (*HarvesterConfig, error) {
	var resp any
	if err := c.request(ctx, "jsonContent", url.Values{
		"types": {"Harvester"},
		"uid":   {uid},
	}, &resp); err != nil {
		return nil, err
	}
	list, ok := resp.([]any)
	if !ok || len(list) != 1 {
		return nil, domain.Errorf(domain.ErrCMS, "Cannot find a harvester with uid %s", uid)
	}
	obj, ok := list[0].(map[string]any)
	if !ok {
		return nil, domain.Errorf(domain.ErrCMS, "Cannot find a harvester with uid %s", uid)
	}

	for _, key := range requiredKeys {
		if _, ok := obj[key]; !ok {
			return nil, domain.Errorf(domain.ErrCMS, "Harvester %s config is missing '%s'", uid, key)
		}
	}
	c.log.Debug().Str("uid", uid).Msg("fetched harvester config")

	return &HarvesterConfig{
		Transport:           str(obj["transport"]),
		Standard:            str(obj["standard"]),
		DefaultValues:       obj["defaultValues"],
		SupplementaryValues: obj["supplementaryValues"],
		Granularity:         obj["granularity"],
		UpdateFrequency:     str(obj["updatefrequency"]),
		SearchURL:           str(obj["searchUrl"]),
		CommitURL:           str(obj["commitUrl"]),
		URL:                 str(obj["url"]),
		Username:            str(obj["username"]),
		Password:            str(obj["password"]),
	}, nil
}

func (c *Client) request(ctx context.Context, path string, params url.Values, out any) error {
	target := c.serverURL + strings.TrimPrefix(path, "/")
	params.Set("__ac_name", c.username)
	params.Set("__ac_password", c.password)

	body, err := c.http.GetQuery(ctx, target, params)
	if err != nil {
		return domain.Wrap(domain.ErrCMS, err, "Error requesting %s", target)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.Wrap(domain.ErrCMS, err, "Invalid response from %s", target)
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
