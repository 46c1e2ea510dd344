package curator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/geo"
	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/soyeahso/harvestagent/internal/metadata"
)

var uuidPattern = regexp.MustCompile(`\buuid=(\w+)\b`)

// granuleCurator implements the commit workflow shared by all schemas;
// the schema only decides how a dictionary is wrapped.
type granuleCurator struct {
	target      Target
	granularity *metadata.Granularity
	wrap        func(domain.JSONMap) metadata.Metadata
	http        HTTP
	log         *logging.Logger
}

// NewDataCite is the Factory for the DataCite schema.
func NewDataCite(t Target, g *metadata.Granularity, h HTTP, log *logging.Logger) Curator {
	return &granuleCurator{
		target:      t,
		granularity: g,
		wrap:        func(d domain.JSONMap) metadata.Metadata { return metadata.NewDataCite(d) },
		http:        h,
		log:         log,
	}
}

func (c *granuleCurator) CommitMetadata(ctx context.Context, dict domain.JSONMap, datasourceUID, recordUID string) (string, error) {
	record := c.wrap(dict.Clone())
	record.SetSourceIdentifiers(datasourceUID, recordUID)
	c.applyDefaultSupplementaryValues(record.Dict())

	granule, err := metadata.NewGranule(c.granularity, record)
	if err != nil {
		return "", err
	}
	candidates, err := c.findCandidates(ctx, granule)
	if err != nil {
		return "", err
	}
	existing, err := spatialMatch(granule, candidates)
	if err != nil {
		return "", err
	}

	if existing != nil {
		if err := metadata.Merge(existing, record); err != nil {
			return "", domain.Wrap(domain.ErrHarvesting, err, "Error merging metadata for %s", recordUID)
		}
		c.log.Debug().Str("record", recordUID).Msg("updating existing repository record")
		return c.submit(ctx, existing, http.MethodPut)
	}
	c.log.Debug().Str("record", recordUID).Msg("creating repository record")
	return c.submit(ctx, record, http.MethodPost)
}

// applyDefaultSupplementaryValues fills missing keys from the default
// values, then adds the supplementary values: missing keys are set, and
// lists are extended when both sides are lists.
func (c *granuleCurator) applyDefaultSupplementaryValues(dict domain.JSONMap) {
	defaults := c.target.DefaultValues.Clone()
	for key, value := range defaults {
		if _, ok := dict[key]; !ok {
			dict[key] = value
		}
	}

	supplementary := c.target.SupplementaryValues.Clone()
	for key, value := range supplementary {
		existing, ok := dict[key]
		if !ok {
			dict[key] = value
			continue
		}
		have, ok1 := existing.([]any)
		add, ok2 := value.([]any)
		if ok1 && ok2 {
			dict[key] = append(have, add...)
		}
	}
}

// findCandidates queries the repository for records in the granule. The
// search API cannot filter spatially, so the results still need to be
// checked against the granule polygon.
func (c *granuleCurator) findCandidates(ctx context.Context, g *metadata.Granule) ([]metadata.Metadata, error) {
	params := url.Values{
		"types":         {"Metadata"},
		"depth":         {"-1"},
		"datasource_id": {g.DatasourceID},
		"__ac_name":     {c.target.Username},
		"__ac_password": {c.target.Password},
	}
	if g.Values != nil {
		b, err := json.Marshal(g.Values)
		if err != nil {
			return nil, domain.Wrap(domain.ErrHarvesting, err, "Invalid granule key values")
		}
		params.Set("metadata_values", string(b))
	}
	if g.HasTimeframe() {
		params.Set("collected_date", metadata.FormatTime(g.Start)+"|"+metadata.FormatTime(g.End))
	}

	body, err := c.http.GetQuery(ctx, c.target.SearchURL, params)
	if err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Error requesting %s", c.target.SearchURL)
	}
	var results []map[string]any
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Invalid response from %s", c.target.SearchURL)
	}

	out := make([]metadata.Metadata, 0, len(results))
	for _, res := range results {
		data, ok := res["jsonData"].(map[string]any)
		if !ok {
			return nil, domain.HarvestingErrorf("Invalid response from %s", c.target.SearchURL)
		}
		out = append(out, c.wrap(data))
	}
	return out, nil
}

// spatialMatch picks the candidate lying within the granule polygon. Without
// a polygon every candidate matches. Candidates lacking usable locations
// are skipped, and a location only counts if it lies within the polygon.
func spatialMatch(g *metadata.Granule, candidates []metadata.Metadata) (metadata.Metadata, error) {
	var matches []metadata.Metadata
	if g.Polygon == nil {
		matches = candidates
	} else {
	candidate:
		for _, m := range candidates {
			locations, err := metadata.LocationGeometries(m)
			if err != nil {
				continue
			}
			for _, loc := range locations {
				if !geo.Within(loc, g.Polygon) {
					continue candidate
				}
			}
			matches = append(matches, m)
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, domain.HarvestingErrorf("Multiple matching metadata records found")
	}
}

type submission struct {
	JSON       domain.JSONMap `json:"json"`
	Schema     string         `json:"schema"`
	Mode       string         `json:"mode"`
	PID        string         `json:"PID"`
	TypePID    string         `json:"typePID"`
	Repository repository     `json:"repository"`
}

type repository struct {
	URL         string `json:"URL"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Institution string `json:"institution"`
}

type submitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// submit creates (POST) or updates (PUT) a repository record and returns
// the uuid reported by the repository, or "" if it reported none.
func (c *granuleCurator) submit(ctx context.Context, m metadata.Metadata, method string) (string, error) {
	id, idType := m.MetadataID()
	payload, err := json.Marshal(submission{
		JSON:    m.Dict(),
		Schema:  c.target.Schema,
		Mode:    "manual",
		PID:     id,
		TypePID: idType,
		Repository: repository{
			URL:         c.target.RepositoryURL,
			Username:    c.target.Username,
			Password:    c.target.Password,
			Institution: c.target.Institution,
		},
	})
	if err != nil {
		return "", domain.Wrap(domain.ErrHarvesting, err, "Cannot encode metadata record")
	}

	body, err := c.http.SendForm(ctx, method, c.target.CommitURL, url.Values{"json": {string(payload)}})
	if err != nil {
		return "", domain.Wrap(domain.ErrHarvesting, err, "Error %s'ing to %s", method, c.target.CommitURL)
	}
	var res submitResult
	if err := json.Unmarshal(body, &res); err != nil {
		return "", domain.Wrap(domain.ErrHarvesting, err, "Invalid response from %s", c.target.CommitURL)
	}
	if !res.Success {
		verb := "creating"
		if method == http.MethodPut {
			verb = "updating"
		}
		return "", domain.HarvestingErrorf("Error %s metadata record in repository: %s", verb, res.Message)
	}

	uuid := ""
	if match := uuidPattern.FindStringSubmatch(res.Message); match != nil {
		uuid = match[1]
	}
	c.log.Info().Str("method", method).Str("uuid", uuid).Msg("metadata record committed")
	return uuid, nil
}
