package metadata

import (
	"time"

	"github.com/paulmach/orb"
)

// Granule is one mutually exclusive unit of a granularity: a datasource,
// the values of its key fields, a time window and a bounding polygon.
type Granule struct {
	DatasourceID string
	Values       map[string]any // nil unless the granularity has key fields
	Start, End   time.Time      // zero unless the granularity has a period
	Polygon      orb.Polygon    // nil unless the granularity has a spatial extent
}

// NewGranule computes the granule of g that m falls into.
func NewGranule(g *Granularity, m Metadata) (*Granule, error) {
	dsID, err := m.DatasourceID()
	if err != nil {
		return nil, err
	}
	gr := &Granule{DatasourceID: dsID}

	if g.KeyFields != nil {
		gr.Values = make(map[string]any, len(g.KeyFields))
		for _, key := range g.KeyFields {
			v, err := m.Value(key)
			if err != nil {
				return nil, err
			}
			gr.Values[key] = v
		}
	}

	if g.Period != "" {
		start, end, err := m.CollectedDates()
		if err != nil {
			return nil, err
		}
		gr.Start, gr.End, err = g.Timeframe([]time.Time{start, end})
		if err != nil {
			return nil, err
		}
	}

	if g.HasPolygons() {
		locations, err := LocationGeometries(m)
		if err != nil {
			return nil, err
		}
		gr.Polygon, err = g.Polygon(locations)
		if err != nil {
			return nil, err
		}
	}
	return gr, nil
}

// HasTimeframe reports whether the granule is bounded in time.
func (gr *Granule) HasTimeframe() bool {
	return !gr.Start.IsZero() && !gr.End.IsZero()
}
