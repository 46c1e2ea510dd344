package geo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regionsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "line"},
     "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]}},
    {"type": "Feature", "properties": {"name": "west"},
     "geometry": {"type": "Polygon", "coordinates": [[[10, -40], [20, -40], [20, -30], [10, -30], [10, -40]]]}},
    {"type": "Feature", "properties": {"name": "east"},
     "geometry": {"type": "Polygon", "coordinates": [[[20, -40], [30, -40], [30, -30], [20, -30], [20, -40]]]}}
  ]
}`

type fakeFetcher struct {
	data []byte
	urls []string
}

func (f *fakeFetcher) Get(_ context.Context, rawURL string) ([]byte, error) {
	f.urls = append(f.urls, rawURL)
	return f.data, nil
}

func testSource(t *testing.T) *PolygonSource {
	t.Helper()
	ps, err := ParsePolygonSource("test", []byte(regionsGeoJSON))
	require.NoError(t, err)
	return ps
}

func TestWithin(t *testing.T) {
	square := Box(0, 0, 10, 10)

	assert.True(t, Within(Point(5, 5), square))
	assert.False(t, Within(Point(15, 5), square))
	assert.True(t, Within(Box(1, 1, 2, 2), square))
	assert.False(t, Within(Box(5, 5, 12, 8), square))
	assert.False(t, Within(orb.LineString{{1, 1}}, square))
}

func TestParsePolygonSource_SkipsNonPolygons(t *testing.T) {
	ps := testSource(t)
	assert.Equal(t, 2, ps.Len())

	_, err := ParsePolygonSource("bad", []byte("not json"))
	assert.Error(t, err)
}

func TestPolygon(t *testing.T) {
	ps := testSource(t)

	poly, err := ps.Polygon([]orb.Geometry{Point(15, -35), Box(11, -39, 12, -38)})
	require.NoError(t, err)
	assert.Equal(t, 10.0, poly.Bound().Min.Lon())

	_, err = ps.Polygon([]orb.Geometry{Point(15, -35), Point(25, -35)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not all fall within one polygon")

	_, err = ps.Polygon([]orb.Geometry{Point(50, 50)})
	assert.ErrorIs(t, err, ErrNoPolygon)

	_, err = ps.Polygon(nil)
	assert.Error(t, err)
}

func TestPolygons(t *testing.T) {
	ps := testSource(t)

	result := ps.Polygons([]orb.Geometry{Point(25, -35), Point(50, 50), Point(15, -35)})
	require.Len(t, result, 3)
	assert.Equal(t, 20.0, result[0].Bound().Min.Lon())
	assert.Nil(t, result[1])
	assert.Equal(t, 10.0, result[2].Bound().Min.Lon())
}

func TestLoadPolygonSource(t *testing.T) {
	ctx := context.Background()

	f := &fakeFetcher{data: []byte(regionsGeoJSON)}
	ps, err := LoadPolygonSource(ctx, f, "https://maps.example.org/regions.geojson")
	require.NoError(t, err)
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, []string{"https://maps.example.org/regions.geojson"}, f.urls)

	path := filepath.Join(t.TempDir(), "regions.geojson")
	require.NoError(t, os.WriteFile(path, []byte(regionsGeoJSON), 0o600))

	ps, err = LoadPolygonSource(ctx, nil, path)
	require.NoError(t, err)
	assert.Equal(t, 2, ps.Len())

	ps, err = LoadPolygonSource(ctx, nil, "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, 2, ps.Len())

	_, err = LoadPolygonSource(ctx, nil, filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "POINT (18.5 -34)", Describe(Point(18.5, -34)))
	assert.Equal(t, "BOX (1 2, 3 4)", Describe(Box(1, 2, 3, 4)))
}
