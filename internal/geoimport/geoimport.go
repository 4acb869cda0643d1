// Package geoimport turns GeoJSON documents into region ring-sets.
//
// Each Polygon or MultiPolygon feature becomes one ring-set. MultiPolygon
// rings are flattened in order. Every second ring is reversed so that the
// drawing layer reads it as a hole, and the repeated closing vertex is
// dropped. Anything else is rejected as a whole; no partial imports.
package geoimport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

var (
	// ErrUnsupportedGeometry is returned for geometry types other than
	// Polygon and MultiPolygon.
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
	// ErrMalformedGeometry is returned for unparsable documents, empty
	// polygons, degenerate rings and out-of-range coordinates.
	ErrMalformedGeometry = errors.New("malformed geometry")
)

// Shape is one imported ring-set with the bound of its source geometry.
type Shape struct {
	Rings region.RingSet
	Bound orb.Bound
	Props map[string]any
}

// Name returns the feature's "name" or "title" property, if any.
func (s Shape) Name() string {
	for _, key := range []string{"name", "title"} {
		if v, ok := s.Props[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Read parses a GeoJSON document from r.
func Read(r io.Reader) ([]Shape, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading geojson: %w", err)
	}
	return Parse(data)
}

// Parse accepts a FeatureCollection, a Feature or a bare geometry.
func Parse(data []byte) ([]Shape, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
		}
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("%w: feature collection is empty", ErrMalformedGeometry)
		}
		out := make([]Shape, 0, len(fc.Features))
		for i, f := range fc.Features {
			s, err := fromGeometry(f.Geometry)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			s.Props = f.Properties
			out = append(out, s)
		}
		return out, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
		}
		s, err := fromGeometry(f.Geometry)
		if err != nil {
			return nil, err
		}
		s.Props = f.Properties
		return []Shape{s}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedGeometry)

	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
		}
		s, err := fromGeometry(g.Geometry())
		if err != nil {
			return nil, err
		}
		return []Shape{s}, nil
	}
}

func fromGeometry(g orb.Geometry) (Shape, error) {
	var rings []orb.Ring
	switch g := g.(type) {
	case orb.Polygon:
		rings = g
	case orb.MultiPolygon:
		for _, p := range g {
			rings = append(rings, p...)
		}
	case nil:
		return Shape{}, fmt.Errorf("%w: missing geometry", ErrMalformedGeometry)
	default:
		return Shape{}, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
	}
	if len(rings) == 0 {
		return Shape{}, fmt.Errorf("%w: polygon has no rings", ErrMalformedGeometry)
	}

	out := make(region.RingSet, 0, len(rings))
	for i, ring := range rings {
		r, err := convertRing(ring)
		if err != nil {
			return Shape{}, fmt.Errorf("ring %d: %w", i, err)
		}
		if i%2 == 1 {
			reverse(r)
		}
		out = append(out, r)
	}
	return Shape{Rings: out, Bound: g.Bound()}, nil
}

func convertRing(ring orb.Ring) (region.Ring, error) {
	if len(ring) > 1 && ring[0].Equal(ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("%w: ring needs at least 3 distinct vertices, got %d", ErrMalformedGeometry, len(ring))
	}
	out := make(region.Ring, len(ring))
	for i, p := range ring {
		lng, lat := p.Lon(), p.Lat()
		if !finite(lat) || !finite(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return nil, fmt.Errorf("%w: coordinate (%v, %v) out of range", ErrMalformedGeometry, lng, lat)
		}
		out[i] = region.Point{Lat: lat, Lng: lng}
	}
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func reverse(r region.Ring) {
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
}

// Bound returns the orb bound of a ring-set.
func Bound(rs region.RingSet) orb.Bound {
	var mp orb.MultiPoint
	for _, r := range rs {
		for _, p := range r {
			mp = append(mp, orb.Point{p.Lng, p.Lat})
		}
	}
	if len(mp) == 0 {
		return orb.Bound{}
	}
	return mp.Bound()
}
