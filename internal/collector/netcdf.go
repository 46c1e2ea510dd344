package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/soyeahso/harvestagent/internal/dap"
	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/soyeahso/harvestagent/internal/metadata"
)

// netCDFExtensions are the data file extensions the NetCDF collector
// picks out of an OPeNDAP directory listing.
var netCDFExtensions = []string{".nc"}

// NetCDF collects DataCite metadata for the NetCDF files published by an
// OPeNDAP server. Records are listed from the server's HTML directory page
// and described by each file's DAS.
type NetCDF struct {
	src   Source
	base  *url.URL
	fetch Fetcher
	log   *logging.Logger
}

// NewNetCDF is the Factory for the OPeNDAP-NetCDF protocol.
func NewNetCDF(src Source, f Fetcher, log *logging.Logger) Collector {
	base, _ := url.Parse(src.URL)
	return &NetCDF{src: src, base: base, fetch: f, log: log.Sub("netcdf")}
}

// FetchRecords lists the data files on the server as Pending records,
// sorted by name. since is ignored: OPeNDAP listings carry no usable
// timestamps.
func (c *NetCDF) FetchRecords(ctx context.Context, _ *time.Time, limit int) ([]domain.CollectedRecord, error) {
	body, err := c.request(ctx, "")
	if err != nil {
		return nil, err
	}
	files, err := listDataFiles(body, netCDFExtensions)
	if err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Invalid response from %s", c.src.URL)
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	records := make([]domain.CollectedRecord, 0, len(files))
	for _, name := range files {
		records = append(records, domain.CollectedRecord{UID: name, Status: domain.CollectPending})
	}
	c.log.Debug().Int("count", len(records)).Str("url", c.src.URL).Msg("found data files")
	return records, nil
}

// FetchMetadata fetches and converts the DAS of one data file.
func (c *NetCDF) FetchMetadata(ctx context.Context, uid string) (domain.CollectedRecord, error) {
	dc, err := c.dataCite(ctx, uid)
	if err != nil {
		c.log.Error().Err(err).Str("uid", uid).Str("url", c.src.URL).Msg("error fetching metadata")
		return errorRecord(uid, nil, err), nil
	}
	c.log.Debug().Str("uid", uid).Str("url", c.src.URL).Msg("fetched metadata")
	return domain.CollectedRecord{UID: uid, Metadata: dc, Status: domain.CollectSuccess}, nil
}

func (c *NetCDF) resolve(path string) (string, error) {
	if c.base == nil {
		return "", fmt.Errorf("invalid datasource URL %q", c.src.URL)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return c.base.ResolveReference(ref).String(), nil
}

func (c *NetCDF) request(ctx context.Context, path string) ([]byte, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Error requesting %s%s", c.src.URL, path)
	}
	body, err := c.fetch.Get(ctx, target)
	if err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Error requesting %s", target)
	}
	return body, nil
}

// listDataFiles returns the sorted, de-duplicated data file names linked
// from an OPeNDAP listing. Only contentUrl anchors pointing at a DAS
// document are considered; the ".das" suffix is removed.
func listDataFiles(page []byte, exts []string) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && getAttr(n, "itemprop") == "contentUrl" {
			href := getAttr(n, "href")
			lower := strings.ToLower(href)
			for _, ext := range exts {
				if strings.HasSuffix(lower, ext+".das") {
					seen[href[:len(href)-len(".das")]] = struct{}{}
					break
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	files := make([]string, 0, len(seen))
	for name := range seen {
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func (c *NetCDF) das(ctx context.Context, filename string) (dap.Container, error) {
	body, err := c.request(ctx, filename+".das")
	if err != nil {
		return nil, err
	}
	das, err := dap.Parse(string(body))
	if err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Error parsing Data Attribute Structure for %s", filename)
	}
	return das, nil
}

// dataCite builds a DataCite dictionary from the NC_GLOBAL attributes of
// a file's DAS, following the ACDD attribute conventions.
func (c *NetCDF) dataCite(ctx context.Context, filename string) (domain.JSONMap, error) {
	das, err := c.das(ctx, filename)
	if err != nil {
		return nil, err
	}
	nc, ok := das.Container("NC_GLOBAL")
	if !ok {
		return nil, domain.HarvestingErrorf("'NC_GLOBAL' not found in Data Attribute Structure")
	}
	attrs := ncGlobal(nc)

	issued, err := attrs.time("date_issued")
	if err != nil {
		return nil, err
	}
	start, err := attrs.time("time_coverage_start")
	if err != nil {
		return nil, err
	}
	end, err := attrs.time("time_coverage_end")
	if err != nil {
		return nil, err
	}
	keywords, err := attrs.list("keywords", ",", -1, "")
	if err != nil {
		return nil, err
	}
	creators, err := attrs.list("creator_name", ";", -1, "")
	if err != nil {
		return nil, err
	}
	creatorInsts, err := attrs.list("creator_institution", ";", len(creators), "creator_name")
	if err != nil {
		return nil, err
	}
	contributors, err := attrs.list("contributor_name", ";", -1, "")
	if err != nil {
		return nil, err
	}
	contributorInsts, err := attrs.list("contributor_institution", ";", len(contributors), "contributor_name")
	if err != nil {
		return nil, err
	}

	href, err := c.resolve(filename)
	if err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Invalid file name %s", filename)
	}

	dc := domain.JSONMap{
		"resourceType":        "NetCDF",
		"resourceTypeGeneral": "Dataset",
		"additionalFields": map[string]any{
			"onlineResources": []any{map[string]any{"href": href}},
		},
	}

	if id := attrs.str("id"); id != "" {
		dc["alternateIdentifiers"] = []any{map[string]any{
			"alternateIdentifier":    id,
			"alternateIdentiferType": metadata.AltIDDataset,
		}}
	}
	if title := attrs.str("title"); title != "" {
		dc["titles"] = []any{map[string]any{"title": title}}
	}
	if summary := attrs.str("summary"); summary != "" {
		dc["description"] = []any{map[string]any{
			"description":     summary,
			"descriptionType": "Abstract",
		}}
	}
	if len(keywords) > 0 {
		subjects := make([]any, len(keywords))
		for i, kw := range keywords {
			subjects[i] = map[string]any{"subject": kw}
		}
		dc["subjects"] = subjects
	}
	if len(creators) > 0 {
		dc["creators"] = people("creatorName", creators, creatorInsts)
	}
	if len(contributors) > 0 {
		dc["contributors"] = people("contributorName", contributors, contributorInsts)
	}
	if publisher := attrs.str("publisher_name"); publisher != "" {
		dc["publisher"] = publisher
	}
	if issued != nil {
		dc["publicationYear"] = issued.Year()
	}
	if start != nil && end != nil {
		dc["dates"] = []any{map[string]any{
			"date":     metadata.FormatTime(*start) + "/" + metadata.FormatTime(*end),
			"dateType": metadata.DateCollected,
		}}
	}

	bounds := []string{
		attrs.str("geospatial_lat_min"),
		attrs.str("geospatial_lon_min"),
		attrs.str("geospatial_lat_max"),
		attrs.str("geospatial_lon_max"),
	}
	if bounds[0] != "" && bounds[1] != "" && bounds[2] != "" && bounds[3] != "" {
		dc["geoLocations"] = []any{map[string]any{
			"geoLocationBox": strings.Join(bounds, " "),
		}}
	}
	return dc, nil
}

func people(nameKey string, names, affiliations []string) []any {
	out := make([]any, len(names))
	for i, name := range names {
		p := map[string]any{nameKey: name}
		if i < len(affiliations) {
			p["affiliation"] = affiliations[i]
		}
		out[i] = p
	}
	return out
}

// ncGlobal reads NC_GLOBAL attribute values.
type ncGlobal dap.Container

// str returns the attribute as trimmed text; missing attributes are "".
func (nc ncGlobal) str(field string) string {
	switch v := nc[field].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = ncGlobal{"v": item}.str("v")
		}
		return strings.Join(parts, " ")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (nc ncGlobal) time(field string) (*time.Time, error) {
	s := nc.str(field)
	if s == "" {
		return nil, nil
	}
	t, err := metadata.ParseTime(s)
	if err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Invalid date/time for %s", field)
	}
	return &t, nil
}

// list splits a separated attribute. When related is not negative, the
// list must hold exactly that many values (the length of relatedField's
// list).
func (nc ncGlobal) list(field, sep string, related int, relatedField string) ([]string, error) {
	if _, ok := nc[field]; !ok {
		return nil, nil
	}
	raw := nc.str(field)
	parts := strings.Split(raw, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if related >= 0 && len(parts) != related {
		return nil, domain.HarvestingErrorf("%s and %s must contain the same number of values separated by %s",
			relatedField, field, sep)
	}
	return parts, nil
}
