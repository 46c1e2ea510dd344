package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/harvestagent/internal/domain"
)

// DataCite element and attribute names. The alternate identifier type key
// is spelled the way the repository expects it.
const (
	keyAltIDs     = "alternateIdentifiers"
	keyAltID      = "alternateIdentifier"
	keyAltIDType  = "alternateIdentiferType"
	keyIdentifier = "identifier"
	keyIDType     = "identifierType"
	keyDates      = "dates"
	keyDate       = "date"
	keyDateType   = "dateType"
	keyGeoLocs    = "geoLocations"
	keyGeoPoint   = "geoLocationPoint"
	keyGeoBox     = "geoLocationBox"
	keyGeoPlace   = "geoLocationPlace"

	AltIDDatasource = "DatasourceID"
	AltIDRecord     = "RecordID"
	AltIDDataset    = "DatasetID"
	DateCollected   = "Collected"
)

// DataCite is a DataCite metadata dictionary.
type DataCite struct {
	dict domain.JSONMap
}

// NewDataCite wraps dict. A nil dict starts empty.
func NewDataCite(dict domain.JSONMap) *DataCite {
	if dict == nil {
		dict = domain.JSONMap{}
	}
	return &DataCite{dict: dict}
}

func (d *DataCite) Dict() domain.JSONMap { return d.dict }

// SetSourceIdentifiers sets (or adds) the DatasourceID and RecordID
// alternate identifiers.
func (d *DataCite) SetSourceIdentifiers(datasourceID, recordID string) {
	ids := asList(d.dict[keyAltIDs])
	ids = upsertAltID(ids, AltIDDatasource, datasourceID)
	ids = upsertAltID(ids, AltIDRecord, recordID)
	d.dict[keyAltIDs] = ids
}

func upsertAltID(ids []any, idType, value string) []any {
	for _, item := range ids {
		m, ok := asMap(item)
		if ok && m[keyAltIDType] == idType {
			m[keyAltID] = value
			return ids
		}
	}
	return append(ids, map[string]any{keyAltID: value, keyAltIDType: idType})
}

// MetadataID returns the primary identifier and its type, or ("", "DOI")
// when the record has none.
func (d *DataCite) MetadataID() (string, string) {
	if m, ok := asMap(d.dict[keyIdentifier]); ok {
		return toString(m[keyIdentifier]), toString(m[keyIDType])
	}
	return "", "DOI"
}

// DatasourceID returns the DatasourceID alternate identifier.
func (d *DataCite) DatasourceID() (string, error) {
	for _, item := range asList(d.dict[keyAltIDs]) {
		m, ok := asMap(item)
		if ok && m[keyAltIDType] == AltIDDatasource {
			if v, ok := m[keyAltID]; ok && v != nil {
				return toString(v), nil
			}
		}
	}
	return "", domain.HarvestingErrorf("Metadata contains no alternate identifier of type '%s'", AltIDDatasource)
}

// Value returns the top-level element key.
func (d *DataCite) Value(key string) (any, error) {
	v, ok := d.dict[key]
	if !ok || v == nil {
		return nil, domain.HarvestingErrorf("Metadata contains no '%s' element", key)
	}
	return v, nil
}

// CollectedDates returns the start and end of the single Collected date
// range. A single date is returned as both start and end.
func (d *DataCite) CollectedDates() (time.Time, time.Time, error) {
	var values []string
	for _, item := range asList(d.dict[keyDates]) {
		m, ok := asMap(item)
		if ok && m[keyDateType] == DateCollected {
			values = append(values, toString(m[keyDate]))
		}
	}
	switch {
	case len(values) == 0:
		return time.Time{}, time.Time{}, domain.HarvestingErrorf("Metadata contains no collected date element")
	case len(values) > 1:
		return time.Time{}, time.Time{}, domain.HarvestingErrorf("Metadata contains too many collected date elements")
	}

	parts := strings.Split(values[0], "/")
	if len(parts) > 2 {
		return time.Time{}, time.Time{}, domain.HarvestingErrorf("Collected date element contains too many parts")
	}
	times := make([]time.Time, 0, 2)
	for _, p := range parts {
		t, err := ParseTime(p)
		if err != nil {
			return time.Time{}, time.Time{}, domain.Wrap(domain.ErrHarvesting, err, "Error parsing collected date from metadata")
		}
		times = append(times, t)
	}
	if len(times) == 1 {
		return times[0], times[0], nil
	}
	return times[0], times[1], nil
}

// SetCollectedDates rewrites the Collected date range, adding one if the
// record has none.
func (d *DataCite) SetCollectedDates(start, end time.Time) error {
	value := FormatTime(start) + "/" + FormatTime(end)
	dates := asList(d.dict[keyDates])
	for _, item := range dates {
		if m, ok := asMap(item); ok && m[keyDateType] == DateCollected {
			m[keyDate] = value
			d.dict[keyDates] = dates
			return nil
		}
	}
	d.dict[keyDates] = append(dates, map[string]any{keyDate: value, keyDateType: DateCollected})
	return nil
}

// GeoLocations decodes geoLocationPoint ("lat lon") and geoLocationBox
// ("lat1 lon1 lat2 lon2") elements.
func (d *DataCite) GeoLocations() ([]GeoLocation, error) {
	var out []GeoLocation
	for _, item := range asList(d.dict[keyGeoLocs]) {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		place := toString(m[keyGeoPlace])
		if v, ok := m[keyGeoPoint]; ok {
			c, err := parseCoords(toString(v), 2)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", keyGeoPoint, err)
			}
			out = append(out, GeoLocation{Kind: GeoPoint, Place: place, Lat1: c[0], Lon1: c[1]})
		}
		if v, ok := m[keyGeoBox]; ok {
			c, err := parseCoords(toString(v), 4)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", keyGeoBox, err)
			}
			out = append(out, GeoLocation{Kind: GeoBox, Place: place, Lat1: c[0], Lon1: c[1], Lat2: c[2], Lon2: c[3]})
		}
	}
	return out, nil
}

// SetGeoLocations replaces the geoLocations element.
func (d *DataCite) SetGeoLocations(locations []GeoLocation) {
	elements := make([]any, 0, len(locations))
	for _, loc := range locations {
		var el map[string]any
		switch loc.Kind {
		case GeoPoint:
			el = map[string]any{keyGeoPoint: formatCoord(loc.Lat1) + " " + formatCoord(loc.Lon1)}
		case GeoBox:
			el = map[string]any{keyGeoBox: strings.Join([]string{
				formatCoord(loc.Lat1), formatCoord(loc.Lon1), formatCoord(loc.Lat2), formatCoord(loc.Lon2),
			}, " ")}
		default:
			continue
		}
		if loc.Place != "" {
			el[keyGeoPlace] = loc.Place
		}
		elements = append(elements, el)
	}
	d.dict[keyGeoLocs] = elements
}

func parseCoords(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("expecting %d values, got %q", n, s)
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q", f)
		}
		out[i] = v
	}
	return out, nil
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
