package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *DataCite {
	return NewDataCite(domain.JSONMap{
		"titles": []any{map[string]any{"title": "SST"}},
		"alternateIdentifiers": []any{
			map[string]any{"alternateIdentifier": "SAEON.1", "alternateIdentiferType": "DatasetID"},
		},
		"dates": []any{
			map[string]any{"date": "2017-01-01T06:00:00Z/2017-01-01T18:00:00Z", "dateType": "Collected"},
			map[string]any{"date": "2018", "dateType": "Issued"},
		},
		"geoLocations": []any{
			map[string]any{"geoLocationBox": "-34.5 18.25 -34 19"},
		},
	})
}

func TestSetSourceIdentifiers(t *testing.T) {
	m := sampleRecord()
	m.SetSourceIdentifiers("ds-1", "file1.nc")

	ds, err := m.DatasourceID()
	require.NoError(t, err)
	assert.Equal(t, "ds-1", ds)

	ids := m.Dict()["alternateIdentifiers"].([]any)
	require.Len(t, ids, 3)
	assert.Equal(t, "RecordID", ids[2].(map[string]any)["alternateIdentiferType"])

	// A second call updates in place.
	m.SetSourceIdentifiers("ds-2", "file2.nc")
	ids = m.Dict()["alternateIdentifiers"].([]any)
	require.Len(t, ids, 3)
	assert.Equal(t, "ds-2", ids[1].(map[string]any)["alternateIdentifier"])
	assert.Equal(t, "file2.nc", ids[2].(map[string]any)["alternateIdentifier"])
}

func TestDatasourceID_Missing(t *testing.T) {
	_, err := NewDataCite(nil).DatasourceID()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHarvesting)
	assert.Contains(t, err.Error(), "DatasourceID")
}

func TestMetadataID(t *testing.T) {
	id, typ := sampleRecord().MetadataID()
	assert.Equal(t, "", id)
	assert.Equal(t, "DOI", typ)

	m := NewDataCite(domain.JSONMap{"identifier": map[string]any{"identifier": "10.1/x", "identifierType": "DOI"}})
	id, typ = m.MetadataID()
	assert.Equal(t, "10.1/x", id)
	assert.Equal(t, "DOI", typ)
}

func TestValue(t *testing.T) {
	m := sampleRecord()
	v, err := m.Value("titles")
	require.NoError(t, err)
	assert.NotNil(t, v)

	_, err = m.Value("publisher")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Metadata contains no 'publisher' element")
}

func TestCollectedDates(t *testing.T) {
	start, end, err := sampleRecord().CollectedDates()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 1, 1, 6, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, time.Date(2017, 1, 1, 18, 0, 0, 0, time.UTC), end.UTC())

	single := NewDataCite(domain.JSONMap{"dates": []any{
		map[string]any{"date": "2017-03-04T00:00:00", "dateType": "Collected"},
	}})
	start, end, err = single.CollectedDates()
	require.NoError(t, err)
	assert.True(t, start.Equal(end))
}

func TestCollectedDates_Errors(t *testing.T) {
	tests := []struct {
		name  string
		dates []any
		want  string
	}{
		{"none", nil, "no collected date element"},
		{"too many", []any{
			map[string]any{"date": "2017", "dateType": "Collected"},
			map[string]any{"date": "2018", "dateType": "Collected"},
		}, "too many collected date elements"},
		{"too many parts", []any{
			map[string]any{"date": "2017-01-01/2017-01-02/2017-01-03", "dateType": "Collected"},
		}, "too many parts"},
		{"unparseable", []any{
			map[string]any{"date": "yesterday-ish", "dateType": "Collected"},
		}, "Error parsing collected date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewDataCite(domain.JSONMap{"dates": tt.dates})
			_, _, err := m.CollectedDates()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrHarvesting)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSetCollectedDates(t *testing.T) {
	m := NewDataCite(nil)
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2017, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.SetCollectedDates(start, end))

	gotStart, gotEnd, err := m.CollectedDates()
	require.NoError(t, err)
	assert.True(t, start.Equal(gotStart))
	assert.True(t, end.Equal(gotEnd))

	dates := m.Dict()["dates"].([]any)
	assert.Equal(t, "2017-01-01T00:00:00Z/2017-01-02T00:00:00Z", dates[0].(map[string]any)["date"])
}

func TestGeoLocations_RoundTrip(t *testing.T) {
	m := NewDataCite(domain.JSONMap{"geoLocations": []any{
		map[string]any{"geoLocationPoint": "-34 18.5", "geoLocationPlace": "Cape Town"},
		map[string]any{"geoLocationBox": "-35 18 -34 19"},
	}})
	locs, err := m.GeoLocations()
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, GeoLocation{Kind: GeoPoint, Place: "Cape Town", Lat1: -34, Lon1: 18.5}, locs[0])
	assert.Equal(t, GeoLocation{Kind: GeoBox, Lat1: -35, Lon1: 18, Lat2: -34, Lon2: 19}, locs[1])

	m.SetGeoLocations(locs)
	els := m.Dict()["geoLocations"].([]any)
	assert.Equal(t, map[string]any{"geoLocationPoint": "-34 18.5", "geoLocationPlace": "Cape Town"}, els[0])
	assert.Equal(t, map[string]any{"geoLocationBox": "-35 18 -34 19"}, els[1])
}

func TestGeoLocations_Invalid(t *testing.T) {
	m := NewDataCite(domain.JSONMap{"geoLocations": []any{
		map[string]any{"geoLocationPoint": "-34"},
	}})
	_, err := m.GeoLocations()
	assert.Error(t, err)

	_, err = LocationGeometries(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error parsing geolocation info")
}

func TestLocationGeometries(t *testing.T) {
	geoms, err := LocationGeometries(sampleRecord())
	require.NoError(t, err)
	require.Len(t, geoms, 1)
	assert.True(t, geo.Within(geoms[0], geo.Box(18, -35, 20, -33)))

	_, err = LocationGeometries(NewDataCite(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no geolocation info")
}

func TestMerge(t *testing.T) {
	existing := sampleRecord()
	incoming := NewDataCite(domain.JSONMap{
		"dates": []any{
			map[string]any{"date": "2017-01-01T00:00:00Z/2017-01-01T12:00:00Z", "dateType": "Collected"},
		},
		"geoLocations": []any{
			map[string]any{"geoLocationBox": "-34.5 18.25 -34 19"},
			map[string]any{"geoLocationPoint": "-34.2 18.6"},
		},
	})

	require.NoError(t, Merge(existing, incoming))

	start, end, err := existing.CollectedDates()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, time.Date(2017, 1, 1, 18, 0, 0, 0, time.UTC), end.UTC())

	locs, err := existing.GeoLocations()
	require.NoError(t, err)
	assert.Len(t, locs, 2)
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity(domain.JSONMap{
		"key_fields":      []any{"titles"},
		"temporal_extent": "day",
		"spatial_extent":  "/tmp/regions.geojson",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"titles"}, g.KeyFields)
	assert.Equal(t, PeriodDay, g.Period)
	assert.Equal(t, "/tmp/regions.geojson", g.SpatialExtent)

	empty, err := ParseGranularity(domain.JSONMap{})
	require.NoError(t, err)
	assert.Nil(t, empty.KeyFields)
	assert.Empty(t, empty.Period)

	_, err = ParseGranularity(domain.JSONMap{"key_fields": "titles"})
	assert.ErrorIs(t, err, domain.ErrInvalid)
	_, err = ParseGranularity(domain.JSONMap{"temporal_extent": "week"})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestTimeframe(t *testing.T) {
	at := func(s string) time.Time {
		tm, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return tm
	}
	tests := []struct {
		period     string
		times      []string
		start, end string
	}{
		{PeriodHour, []string{"2017-05-06T07:08:09Z"}, "2017-05-06T07:00:00Z", "2017-05-06T08:00:00Z"},
		{PeriodDay, []string{"2017-05-06T07:08:09Z", "2017-05-06T23:00:00Z"}, "2017-05-06T00:00:00Z", "2017-05-07T00:00:00Z"},
		{PeriodMonth, []string{"2017-12-06T07:08:09Z"}, "2017-12-01T00:00:00Z", "2018-01-01T00:00:00Z"},
		{PeriodYear, []string{"2017-05-06T07:08:09Z"}, "2017-01-01T00:00:00Z", "2018-01-01T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			g := &Granularity{Period: tt.period}
			var times []time.Time
			for _, s := range tt.times {
				times = append(times, at(s))
			}
			start, end, err := g.Timeframe(times)
			require.NoError(t, err)
			assert.True(t, at(tt.start).Equal(start), "start %s", start)
			assert.True(t, at(tt.end).Equal(end), "end %s", end)
		})
	}

	g := &Granularity{Period: PeriodDay}
	_, _, err := g.Timeframe([]time.Time{at("2017-05-06T07:00:00Z"), at("2017-05-07T07:00:00Z")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "span multiple granularity periods")

	_, _, err = (&Granularity{}).Timeframe([]time.Time{at("2017-05-06T07:00:00Z")})
	assert.Error(t, err)
}

const regionsGeoJSON = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {},
   "geometry": {"type": "Polygon", "coordinates": [[[18, -35], [20, -35], [20, -33], [18, -33], [18, -35]]]}}
]}`

func TestNewGranule(t *testing.T) {
	ps, err := geo.ParsePolygonSource("test", []byte(regionsGeoJSON))
	require.NoError(t, err)

	g := &Granularity{KeyFields: []string{"titles"}, Period: PeriodDay}
	g.SetPolygons(ps)

	m := sampleRecord()
	m.SetSourceIdentifiers("ds-1", "file1.nc")

	gr, err := NewGranule(g, m)
	require.NoError(t, err)
	assert.Equal(t, "ds-1", gr.DatasourceID)
	assert.Contains(t, gr.Values, "titles")
	assert.True(t, gr.HasTimeframe())
	assert.Equal(t, time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), gr.Start.UTC())
	assert.NotNil(t, gr.Polygon)
}

func TestNewGranule_Minimal(t *testing.T) {
	m := sampleRecord()
	m.SetSourceIdentifiers("ds-1", "file1.nc")

	gr, err := NewGranule(&Granularity{}, m)
	require.NoError(t, err)
	assert.Nil(t, gr.Values)
	assert.False(t, gr.HasTimeframe())
	assert.Nil(t, gr.Polygon)

	_, err = NewGranule(&Granularity{}, NewDataCite(nil))
	assert.ErrorIs(t, err, domain.ErrHarvesting)
}

func TestGranularity_Polygon(t *testing.T) {
	ps, err := geo.ParsePolygonSource("test", []byte(regionsGeoJSON))
	require.NoError(t, err)
	g := &Granularity{}
	g.SetPolygons(ps)

	poly, err := g.Polygon([]orb.Geometry{geo.Point(19, -34), geo.Box(18.5, -34.5, 19.5, -33.5)})
	require.NoError(t, err)
	assert.NotNil(t, poly)

	_, err = g.Polygon([]orb.Geometry{geo.Point(25, -20)})
	require.ErrorIs(t, err, domain.ErrHarvesting)
	assert.ErrorIs(t, err, geo.ErrNoPolygon)
	assert.Contains(t, err.Error(), "Error finding bounding polygon for POINT (25 -20)")

	_, err = g.Polygon([]orb.Geometry{geo.Point(19, -34), geo.Point(25, -20)})
	require.ErrorIs(t, err, domain.ErrHarvesting)
	assert.Contains(t, err.Error(), "Error finding bounding polygon for POINT (25 -20):")
	assert.NotContains(t, err.Error(), "POINT (19 -34)")

	_, err = (&Granularity{}).Polygon([]orb.Geometry{geo.Point(19, -34)})
	assert.Error(t, err)
}

func TestLoadPolygons_File(t *testing.T) {
	g := &Granularity{}
	require.NoError(t, g.LoadPolygons(context.Background(), nil))
	assert.False(t, g.HasPolygons())

	g.SpatialExtent = "/nonexistent/regions.geojson"
	err := g.LoadPolygons(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrHarvesting)
}
