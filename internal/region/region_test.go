package region

import (
	"math/rand/v2"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
)

func TestColorAllocatorStaysLight(t *testing.T) {
	const eps = 1e-9
	a := NewColorAllocator(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		c := a.Color()
		_, s, v := c.Hsv()
		if s < fillSatMin-eps || s > fillSatMax+eps {
			t.Fatalf("saturation %f out of range", s)
		}
		if v < fillValMin-eps || v > fillValMax+eps {
			t.Fatalf("value %f out of range", v)
		}
		if l, _, _ := c.Lab(); l < 0.45 {
			t.Fatalf("fill %s too dark (L=%f)", c.Hex(), l)
		}
	}
}

func TestColorAllocatorHex(t *testing.T) {
	a := NewColorAllocator(rand.NewPCG(3, 4))
	for i := 0; i < 100; i++ {
		c := a.Next()
		if len(c) != 7 || c[0] != '#' {
			t.Fatalf("malformed color %q", c)
		}
		if _, err := colorful.Hex(c); err != nil {
			t.Fatalf("colorful rejected %q: %v", c, err)
		}
	}
}

func TestNewEnvelopeOrdersBounds(t *testing.T) {
	r := NewEnvelope(nil, 9, 3)
	if !r.Is3D || r.StartTime != 3 || r.EndTime != 9 {
		t.Errorf("expected 3D [3,9], got is3D=%v [%d,%d]", r.Is3D, r.StartTime, r.EndTime)
	}
	if r.Computation != ComputationInterpolated {
		t.Errorf("expected interpolated computation, got %q", r.Computation)
	}
	if !r.Visible || r.Selected {
		t.Errorf("expected visible and unselected by default")
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := New(RingSet{{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}}}, ComputationNone)
	c := r.Clone()
	c.Geometry[0][0].Lat = 99
	if r.Geometry[0][0].Lat != 1 {
		t.Errorf("clone shares geometry with original")
	}
	if got := r.Geometry.Vertices(); got != 2 {
		t.Errorf("expected 2 vertices, got %d", got)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
