// Package region defines the region model shared by the registry, the
// playback engines and the remote compute client.
package region

import (
	"github.com/google/uuid"
)

// None is the sentinel for "no frame child".
const None = ""

// Computation labels attached to regions, as reported to the server.
const (
	ComputationNone         = ""
	ComputationIntersection = "Intersection"
	ComputationUnion        = "Union"
	ComputationDifference   = "Difference"
	ComputationCombined     = "Combined"
	ComputationInterpolated = "Interpolated Regions"
	ComputationFrame        = "From Interpolated"
	ComputationImported     = "Imported"
)

// Point is a (latitude, longitude) pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ring is an ordered sequence of points. The closing edge is implicit.
type Ring []Point

// RingSet is an ordered list of rings making up one region.
type RingSet []Ring

// Clone returns a deep copy.
func (rs RingSet) Clone() RingSet {
	if rs == nil {
		return nil
	}
	out := make(RingSet, len(rs))
	for i, r := range rs {
		out[i] = append(Ring(nil), r...)
	}
	return out
}

// Vertices returns the total number of points across all rings.
func (rs RingSet) Vertices() int {
	n := 0
	for _, r := range rs {
		n += len(r)
	}
	return n
}

// Region is a polygon or multi-ring shape tracked by the registry.
type Region struct {
	ID          string  `json:"id"`
	Geometry    RingSet `json:"geometry"`
	Visible     bool    `json:"visible"`
	Selected    bool    `json:"selected"`
	FillColor   string  `json:"fill_color"`
	Computation string  `json:"computation,omitempty"`

	// Interpolation envelope fields, meaningful only when Is3D is set.
	Is3D                 bool   `json:"is_3d"`
	StartTime            int    `json:"start_time,omitempty"`
	EndTime              int    `json:"end_time,omitempty"`
	InterpolatedRegionID string `json:"interpolated_region_id,omitempty"`
}

// New returns a visible, unselected 2D region.
func New(geometry RingSet, computation string) Region {
	return Region{
		Geometry:    geometry,
		Visible:     true,
		Computation: computation,
	}
}

// NewEnvelope returns a 3D region spanning [start, end]. The bounds are
// swapped if given in the wrong order.
func NewEnvelope(geometry RingSet, start, end int) Region {
	if start > end {
		start, end = end, start
	}
	r := New(geometry, ComputationInterpolated)
	r.Is3D = true
	r.StartTime = start
	r.EndTime = end
	return r
}

// Clone returns a deep copy, safe to hand to observers.
func (r Region) Clone() Region {
	r.Geometry = r.Geometry.Clone()
	return r
}

// HasFrame reports whether a frame child is linked.
func (r Region) HasFrame() bool {
	return r.Is3D && r.InterpolatedRegionID != None
}

// NewID generates a fresh region id.
func NewID() string {
	return uuid.NewString()
}
