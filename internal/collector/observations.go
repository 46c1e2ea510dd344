package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/soyeahso/harvestagent/internal/metadata"
)

// Observations collects records from the Observations DB web API, which
// serves JSON at <url>/Metadata[/<uid>][/<start>][/<end>].
type Observations struct {
	src   Source
	fetch Fetcher
	log   *logging.Logger
}

// NewObservations is the Factory for the ObservationsAPI protocol.
func NewObservations(src Source, f Fetcher, log *logging.Logger) Collector {
	return &Observations{src: src, fetch: f, log: log.Sub("observations")}
}

// observation fields mapped onto DataCite elements; everything else goes
// to additionalFields.
var observationFields = map[string]bool{
	"title":       true,
	"name":        true,
	"description": true,
	"latitude":    true,
	"longitude":   true,
	"place":       true,
}

// FetchRecords fetches records with a timestamp at or after since. Items
// without an id are logged and skipped.
func (c *Observations) FetchRecords(ctx context.Context, since *time.Time, limit int) ([]domain.CollectedRecord, error) {
	body, target, err := c.request(ctx, "", since, nil)
	if err != nil {
		return nil, err
	}
	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Invalid response from %s", target)
	}

	records := make([]domain.CollectedRecord, 0, len(items))
	for _, item := range items {
		rec, err := c.parseItem(item)
		if err != nil {
			c.log.Error().Err(err).Msg("skipping record")
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) == limit {
			break
		}
	}
	c.log.Debug().Int("count", len(records)).Str("url", c.src.URL).Msg("fetched records")
	return records, nil
}

// FetchMetadata fetches a single record by uid.
func (c *Observations) FetchMetadata(ctx context.Context, uid string) (domain.CollectedRecord, error) {
	body, target, err := c.request(ctx, uid, nil, nil)
	if err != nil {
		return domain.CollectedRecord{}, err
	}

	var item map[string]any
	if err := json.Unmarshal(body, &item); err != nil {
		// Some deployments wrap the single result in a list.
		var items []map[string]any
		if err2 := json.Unmarshal(body, &items); err2 != nil {
			return domain.CollectedRecord{}, domain.Wrap(domain.ErrHarvesting, err, "Invalid response from %s", target)
		}
		if len(items) == 0 {
			return errorRecord(uid, nil, domain.HarvestingErrorf("No record with uid %s at %s", uid, target)), nil
		}
		item = items[0]
	}

	rec, err := c.parseItem(item)
	if err != nil {
		return errorRecord(uid, nil, err), nil
	}
	return rec, nil
}

func (c *Observations) endpoint(uid string, start, end *time.Time) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(c.src.URL, "/"))
	b.WriteString("/Metadata")
	if uid != "" {
		b.WriteString("/" + url.PathEscape(uid))
	}
	if start != nil {
		b.WriteString("/" + url.PathEscape(metadata.FormatTime(*start)))
	}
	if end != nil {
		b.WriteString("/" + url.PathEscape(metadata.FormatTime(*end)))
	}
	return b.String()
}

func (c *Observations) request(ctx context.Context, uid string, start, end *time.Time) ([]byte, string, error) {
	target := c.endpoint(uid, start, end)
	body, err := c.fetch.Get(ctx, target)
	if err != nil {
		return nil, target, domain.Wrap(domain.ErrHarvesting, err, "Error requesting %s", target)
	}
	return body, target, nil
}

// parseItem converts one API item. A missing id is an error; problems with
// the rest of the item yield an Error record.
func (c *Observations) parseItem(item map[string]any) (domain.CollectedRecord, error) {
	id, ok := item["id"]
	if !ok || id == nil {
		raw, _ := json.Marshal(item)
		return domain.CollectedRecord{}, domain.HarvestingErrorf("Invalid record received from %s: %s", c.src.URL, raw)
	}
	uid := scalarString(id)

	fields := make(map[string]any, len(item))
	for k, v := range item {
		if k != "id" && k != "timestamp" {
			fields[k] = v
		}
	}

	var ts *time.Time
	if v, ok := item["timestamp"]; ok && v != nil {
		t, err := metadata.ParseTime(scalarString(v))
		if err != nil {
			c.log.Error().Err(err).Str("uid", uid).Msg("invalid timestamp")
			return errorRecord(uid, nil, domain.Wrap(domain.ErrHarvesting, err, "Invalid timestamp for %s", uid)), nil
		}
		ts = &t
	}

	dc, err := observationDataCite(fields, ts)
	if err != nil {
		c.log.Error().Err(err).Str("uid", uid).Str("url", c.src.URL).Msg("error fetching metadata")
		return errorRecord(uid, ts, err), nil
	}
	c.log.Debug().Str("uid", uid).Str("url", c.src.URL).Msg("fetched metadata")
	return domain.CollectedRecord{UID: uid, Timestamp: ts, Metadata: dc, Status: domain.CollectSuccess}, nil
}

// observationDataCite maps an observation onto DataCite: title (or name),
// description, a geoLocationPoint from latitude/longitude and a Collected
// date at the observation time. Remaining fields are kept under
// additionalFields.
func observationDataCite(fields map[string]any, ts *time.Time) (domain.JSONMap, error) {
	dc := domain.JSONMap{
		"resourceType":        "Observation",
		"resourceTypeGeneral": "Dataset",
	}
	d := metadata.NewDataCite(dc)

	title := scalarString(fields["title"])
	if title == "" {
		title = scalarString(fields["name"])
	}
	if title != "" {
		dc["titles"] = []any{map[string]any{"title": title}}
	}
	if desc := scalarString(fields["description"]); desc != "" {
		dc["description"] = []any{map[string]any{
			"description":     desc,
			"descriptionType": "Abstract",
		}}
	}

	_, hasLat := fields["latitude"]
	_, hasLon := fields["longitude"]
	if hasLat || hasLon {
		lat, err := coordinate(fields, "latitude")
		if err != nil {
			return nil, err
		}
		lon, err := coordinate(fields, "longitude")
		if err != nil {
			return nil, err
		}
		d.SetGeoLocations([]metadata.GeoLocation{{
			Kind:  metadata.GeoPoint,
			Place: scalarString(fields["place"]),
			Lat1:  lat,
			Lon1:  lon,
		}})
	}

	if ts != nil {
		if err := d.SetCollectedDates(*ts, *ts); err != nil {
			return nil, err
		}
	}

	extra := make(map[string]any)
	for k, v := range fields {
		if !observationFields[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		dc["additionalFields"] = extra
	}
	return dc, nil
}

func coordinate(fields map[string]any, key string) (float64, error) {
	switch v := fields[key].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, domain.HarvestingErrorf("Invalid %s: %v", key, fields[key])
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
