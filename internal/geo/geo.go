// Package geo holds the small amount of geometry the agent needs: point and
// box locations, containment tests and GeoJSON polygon sources used for
// spatial granularity.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Point returns the location lon, lat.
func Point(lon, lat float64) orb.Point {
	return orb.Point{lon, lat}
}

// Box returns the rectangle with south-west corner (lon1, lat1) and
// north-east corner (lon2, lat2) as a closed polygon.
func Box(lon1, lat1, lon2, lat2 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{lon1, lat1},
		{lon2, lat1},
		{lon2, lat2},
		{lon1, lat2},
		{lon1, lat1},
	}}
}

// Within reports whether location lies inside polygon. Points must be
// contained; boxes and other polygons must have every vertex contained.
func Within(location orb.Geometry, polygon orb.Polygon) bool {
	switch g := location.(type) {
	case orb.Point:
		return planar.PolygonContains(polygon, g)
	case orb.Polygon:
		if len(g) == 0 {
			return false
		}
		for _, ring := range g {
			for _, p := range ring {
				if !planar.PolygonContains(polygon, p) {
					return false
				}
			}
		}
		return true
	case orb.Ring:
		return Within(orb.Polygon{g}, polygon)
	default:
		return false
	}
}

// Fetcher retrieves remote documents.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// PolygonSource holds the polygon features of a GeoJSON FeatureCollection.
type PolygonSource struct {
	Source   string
	polygons []orb.Polygon
}

// LoadPolygonSource reads a GeoJSON FeatureCollection from an http(s) URL
// (via f), a file:// URL or a local path. Features that are not polygons
// are ignored.
func LoadPolygonSource(ctx context.Context, f Fetcher, source string) (*PolygonSource, error) {
	var (
		data []byte
		err  error
	)
	u, perr := url.Parse(source)
	switch {
	case perr == nil && (u.Scheme == "http" || u.Scheme == "https"):
		if f == nil {
			return nil, fmt.Errorf("no fetcher for %s", source)
		}
		data, err = f.Get(ctx, source)
	case perr == nil && u.Scheme == "file":
		data, err = os.ReadFile(u.Path)
	default:
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("loading polygons from %s: %w", source, err)
	}
	return ParsePolygonSource(source, data)
}

// ParsePolygonSource decodes a GeoJSON FeatureCollection.
func ParsePolygonSource(source string, data []byte) (*PolygonSource, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing GeoJSON from %s: %w", source, err)
	}
	ps := &PolygonSource{Source: source}
	for _, feature := range fc.Features {
		if poly, ok := feature.Geometry.(orb.Polygon); ok {
			ps.polygons = append(ps.polygons, poly)
		}
	}
	return ps, nil
}

// Len returns the number of polygons.
func (ps *PolygonSource) Len() int {
	return len(ps.polygons)
}

// ErrNoPolygon is returned when no polygon bounds the given locations.
var ErrNoPolygon = errors.New("could not find bounding polygon for the given location(s)")

// Polygon returns the first polygon containing the first location. Every
// other location must fall in the same polygon.
func (ps *PolygonSource) Polygon(locations []orb.Geometry) (orb.Polygon, error) {
	if len(locations) == 0 {
		return nil, errors.New("no location(s) given")
	}
	first := locations[0]
	for _, poly := range ps.polygons {
		if !Within(first, poly) {
			continue
		}
		for _, other := range locations[1:] {
			if !Within(other, poly) {
				return nil, errors.New("locations do not all fall within one polygon")
			}
		}
		return poly, nil
	}
	return nil, ErrNoPolygon
}

// Polygons returns the bounding polygon of each location, in order; nil
// where none was found.
func (ps *PolygonSource) Polygons(locations []orb.Geometry) []orb.Polygon {
	result := make([]orb.Polygon, len(locations))
	found := 0
	for _, poly := range ps.polygons {
		for i, loc := range locations {
			if result[i] != nil || !Within(loc, poly) {
				continue
			}
			result[i] = poly
			found++
		}
		if found == len(locations) {
			break
		}
	}
	return result
}

// Describe renders a location for log and error messages.
func Describe(g orb.Geometry) string {
	switch v := g.(type) {
	case orb.Point:
		return fmt.Sprintf("POINT (%g %g)", v.Lon(), v.Lat())
	case orb.Polygon:
		b := v.Bound()
		return fmt.Sprintf("BOX (%g %g, %g %g)", b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat())
	default:
		return strings.ToUpper(g.GeoJSONType())
	}
}
