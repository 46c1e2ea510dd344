package metadata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/geo"
)

// Granularity periods.
const (
	PeriodHour  = "hour"
	PeriodDay   = "day"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// Granularity describes how harvested records are grouped into repository
// records: by key field values, by time period and by bounding polygon.
// Every part is optional.
type Granularity struct {
	KeyFields     []string
	Period        string
	SpatialExtent string

	polygons *geo.PolygonSource
}

// ParseGranularity reads the key_fields, temporal_extent and spatial_extent
// elements of a harvester's granularity object.
func ParseGranularity(m domain.JSONMap) (*Granularity, error) {
	g := &Granularity{}

	if v, ok := m["key_fields"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, domain.Errorf(domain.ErrInvalid, "Invalid granularity 'key_fields' element; expecting list")
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, domain.Errorf(domain.ErrInvalid, "Invalid granularity 'key_fields' element; expecting list of strings")
			}
			g.KeyFields = append(g.KeyFields, s)
		}
		if g.KeyFields == nil {
			g.KeyFields = []string{}
		}
	}

	if v, ok := m["temporal_extent"]; ok && v != nil {
		s, _ := v.(string)
		switch s {
		case PeriodHour, PeriodDay, PeriodMonth, PeriodYear:
			g.Period = s
		default:
			return nil, domain.Errorf(domain.ErrInvalid, "Invalid value for granularity 'temporal_extent' element")
		}
	}

	if v, ok := m["spatial_extent"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, domain.Errorf(domain.ErrInvalid, "Invalid value for granularity 'spatial_extent' element")
		}
		g.SpatialExtent = s
	}
	return g, nil
}

// LoadPolygons loads the spatial extent's polygons. It is a no-op when no
// spatial extent is set.
func (g *Granularity) LoadPolygons(ctx context.Context, f geo.Fetcher) error {
	if g.SpatialExtent == "" || g.polygons != nil {
		return nil
	}
	ps, err := geo.LoadPolygonSource(ctx, f, g.SpatialExtent)
	if err != nil {
		return domain.Wrap(domain.ErrHarvesting, err, "Error loading granularity polygons")
	}
	g.polygons = ps
	return nil
}

// SetPolygons installs an already loaded polygon source.
func (g *Granularity) SetPolygons(ps *geo.PolygonSource) {
	g.polygons = ps
}

// HasPolygons reports whether polygons are loaded.
func (g *Granularity) HasPolygons() bool {
	return g.polygons != nil
}

// Timeframe returns the period containing every time in times. The end is
// the start of the next period.
func (g *Granularity) Timeframe(times []time.Time) (time.Time, time.Time, error) {
	if g.Period == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("granularity period has not been set")
	}
	if len(times) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("no datetime values given")
	}

	var start, end time.Time
	for i, t := range times {
		s, e := g.frame(t)
		if i > 0 && (!s.Equal(start) || !e.Equal(end)) {
			return time.Time{}, time.Time{}, domain.HarvestingErrorf("Metadata dates span multiple granularity periods")
		}
		start, end = s, e
	}
	return start, end, nil
}

func (g *Granularity) frame(t time.Time) (time.Time, time.Time) {
	loc := t.Location()
	switch g.Period {
	case PeriodHour:
		s := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
		return s, s.Add(time.Hour)
	case PeriodDay:
		s := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		return s, s.AddDate(0, 0, 1)
	case PeriodMonth:
		s := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
		return s, s.AddDate(0, 1, 0)
	default:
		s := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, loc)
		return s, s.AddDate(1, 0, 0)
	}
}

// Polygon returns the single polygon bounding all locations.
func (g *Granularity) Polygon(locations []orb.Geometry) (orb.Polygon, error) {
	if g.polygons == nil {
		return nil, fmt.Errorf("granularity polygons have not been loaded")
	}
	poly, err := g.polygons.Polygon(locations)
	if err != nil {
		return nil, domain.Wrap(domain.ErrHarvesting, err, "Error finding bounding polygon for %s",
			g.unbounded(locations))
	}
	return poly, nil
}

// unbounded describes the locations no polygon contains, or all of them
// when each lies in some polygon but not the same one.
func (g *Granularity) unbounded(locations []orb.Geometry) string {
	var outside, all []string
	for i, poly := range g.polygons.Polygons(locations) {
		d := geo.Describe(locations[i])
		all = append(all, d)
		if poly == nil {
			outside = append(outside, d)
		}
	}
	if len(outside) > 0 {
		return strings.Join(outside, ", ")
	}
	return strings.Join(all, ", ")
}
