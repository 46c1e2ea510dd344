// Package metadata wraps harvested metadata dictionaries with the
// schema-specific accessors the curators need, and models granularity: the
// rules that decide which repository record a harvested record belongs to.
package metadata

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/paulmach/orb"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/geo"
)

// Metadata is a metadata dictionary in some schema.
type Metadata interface {
	// Dict returns the underlying dictionary; changes are visible to it.
	Dict() domain.JSONMap
	SetSourceIdentifiers(datasourceID, recordID string)
	MetadataID() (id, idType string)
	DatasourceID() (string, error)
	Value(key string) (any, error)
	CollectedDates() (start, end time.Time, err error)
	SetCollectedDates(start, end time.Time) error
	GeoLocations() ([]GeoLocation, error)
	SetGeoLocations(locations []GeoLocation)
}

// GeoLocation is a point or a box with an optional place name.
type GeoLocation struct {
	Kind  string // GeoPoint or GeoBox
	Place string
	// Lat1/Lon1 hold the point, or the first corner of a box.
	Lat1, Lon1 float64
	Lat2, Lon2 float64
}

const (
	GeoPoint = "point"
	GeoBox   = "box"
)

// Geometry converts the location to a geometry.
func (g GeoLocation) Geometry() orb.Geometry {
	if g.Kind == GeoBox {
		return geo.Box(g.Lon1, g.Lat1, g.Lon2, g.Lat2)
	}
	return geo.Point(g.Lon1, g.Lat1)
}

// Merge widens m with the granularity-related values of other: the
// collected date range and any new geolocations. Other values in m are
// assumed unchanged.
func Merge(m, other Metadata) error {
	start, end, err := m.CollectedDates()
	if err != nil {
		return err
	}
	newStart, newEnd, err := other.CollectedDates()
	if err != nil {
		return err
	}
	if newStart.Before(start) {
		start = newStart
	}
	if newEnd.After(end) {
		end = newEnd
	}
	if err := m.SetCollectedDates(start, end); err != nil {
		return err
	}

	locations, err := m.GeoLocations()
	if err != nil {
		return err
	}
	newLocations, err := other.GeoLocations()
	if err != nil {
		return err
	}
	changed := false
	for _, loc := range newLocations {
		if !containsLocation(locations, loc) {
			locations = append(locations, loc)
			changed = true
		}
	}
	if changed {
		m.SetGeoLocations(locations)
	}
	return nil
}

func containsLocation(list []GeoLocation, loc GeoLocation) bool {
	for _, l := range list {
		if l == loc {
			return true
		}
	}
	return false
}

// LocationGeometries returns the geometry of every geolocation in m. It is
// an error for m to have none.
func LocationGeometries(m Metadata) ([]orb.Geometry, error) {
	locations, err := m.GeoLocations()
	if err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Error parsing geolocation info from metadata")
	}
	geometries := make([]orb.Geometry, 0, len(locations))
	for _, loc := range locations {
		geometries = append(geometries, loc.Geometry())
	}
	if len(geometries) == 0 {
		return nil, domain.HarvestingErrorf("Metadata contains no geolocation info")
	}
	return geometries, nil
}

// ParseTime parses a date/time in any common layout. Values without a zone
// are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	return dateparse.ParseIn(strings.TrimSpace(s), time.UTC)
}

// FormatTime renders t as ISO 8601.
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// asList accepts the list shapes a dictionary may hold depending on whether
// it was decoded from JSON or built in code.
func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out
	case []domain.JSONMap:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = map[string]any(m)
		}
		return out
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.JSONMap:
		return m, true
	}
	return nil, false
}
