package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

func square() region.RingSet {
	return region.RingSet{{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}}}
}

type recorder struct {
	events []Event
}

func (r *recorder) RegionEvent(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds() []EventKind {
	var out []EventKind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestAddAssignsUniqueIDs(t *testing.T) {
	reg := New()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := reg.Add(region.New(square(), region.ComputationNone))
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if reg.Len() != 200 {
		t.Errorf("expected 200 regions, got %d", reg.Len())
	}
}

// TestAddRegeneratesCollidingIDs verifies a colliding generated id is never
// used to overwrite an existing region.
func TestAddRegeneratesCollidingIDs(t *testing.T) {
	ids := []string{"a", "a", "b"}
	n := 0
	reg := New(WithIDSource(func() string {
		id := ids[n%len(ids)]
		n++
		return id
	}))

	first, err := reg.Add(region.New(square(), region.ComputationNone))
	if err != nil || first != "a" {
		t.Fatalf("expected id a, got %q (%v)", first, err)
	}
	second, err := reg.Add(region.New(square(), region.ComputationNone))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if second != "b" {
		t.Errorf("expected regenerated id b, got %q", second)
	}
}

func TestAddRejectsDuplicateSuppliedID(t *testing.T) {
	reg := New()
	r := region.New(square(), region.ComputationNone)
	r.ID = "restored-1"
	if _, err := reg.Add(r); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	r.FillColor = "#000000"
	if _, err := reg.Add(r); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	got, _ := reg.Get("restored-1")
	if got.FillColor == "#000000" {
		t.Errorf("existing region was overwritten")
	}
}

func TestAddNormalisesFlags(t *testing.T) {
	reg := New()
	r := region.New(square(), region.ComputationNone)
	r.Visible = false
	r.Selected = true
	r.StartTime = 4
	r.InterpolatedRegionID = "ghost"
	id, _ := reg.Add(r)

	got, _ := reg.Get(id)
	if got.Selected {
		t.Errorf("hidden region must not be selected")
	}
	if got.StartTime != 0 || got.InterpolatedRegionID != region.None {
		t.Errorf("2D region kept time/frame fields: %+v", got)
	}
	if got.FillColor == "" {
		t.Errorf("expected a fill color to be assigned")
	}
}

func TestHideForcesDeselection(t *testing.T) {
	rec := &recorder{}
	reg := New()
	reg.Subscribe(rec)

	id, _ := reg.Add(region.New(square(), region.ComputationNone))
	if !reg.SetSelected(id, true) {
		t.Fatal("expected selection to change")
	}
	if !reg.Hide(id) {
		t.Fatal("expected Hide to change visibility")
	}

	got, _ := reg.Get(id)
	if got.Visible || got.Selected {
		t.Errorf("expected hidden and deselected, got visible=%v selected=%v", got.Visible, got.Selected)
	}
	want := []EventKind{Added, Selected, Deselected, Hidden}
	if fmt.Sprint(rec.kinds()) != fmt.Sprint(want) {
		t.Errorf("expected events %v, got %v", want, rec.kinds())
	}

	if reg.SetSelected(id, true) {
		t.Errorf("selecting a hidden region must be refused")
	}
	if !reg.Show(id) || reg.Show(id) {
		t.Errorf("Show should change visibility exactly once")
	}
}

// TestDeleteIdempotent verifies deleting an absent id is a silent no-op.
func TestDeleteIdempotent(t *testing.T) {
	rec := &recorder{}
	reg := New()
	reg.Subscribe(rec)

	id, _ := reg.Add(region.New(square(), region.ComputationNone))
	if !reg.Delete(id) {
		t.Fatal("expected first delete to remove the region")
	}
	if reg.Delete(id) {
		t.Error("second delete should be a no-op")
	}
	if reg.Delete("never-existed") {
		t.Error("deleting an unknown id should be a no-op")
	}
	if len(rec.events) != 2 {
		t.Errorf("expected Added+Removed only, got %v", rec.kinds())
	}
}

func TestLinkFrameAndUnlinkOnDelete(t *testing.T) {
	reg := New()
	parent, _ := reg.Add(region.NewEnvelope(square(), 0, 5))
	child, _ := reg.Add(region.New(square(), region.ComputationFrame))

	if err := reg.LinkFrame(parent, child); err != nil {
		t.Fatalf("LinkFrame failed: %v", err)
	}
	p, _ := reg.Get(parent)
	if p.InterpolatedRegionID != child {
		t.Fatalf("expected link to %s, got %q", child, p.InterpolatedRegionID)
	}

	other, _ := reg.Add(region.New(square(), region.ComputationFrame))
	if err := reg.LinkFrame(parent, other); err == nil {
		t.Error("relinking while the previous child is registered must fail")
	}

	reg.Delete(child)
	p, _ = reg.Get(parent)
	if p.InterpolatedRegionID != region.None {
		t.Errorf("expected link cleared after child delete, got %q", p.InterpolatedRegionID)
	}
	if err := reg.LinkFrame(parent, other); err != nil {
		t.Errorf("LinkFrame after delete failed: %v", err)
	}
}

func TestLinkFrameRejectsBadEndpoints(t *testing.T) {
	reg := New()
	flat, _ := reg.Add(region.New(square(), region.ComputationNone))
	env, _ := reg.Add(region.NewEnvelope(square(), 0, 1))
	env2, _ := reg.Add(region.NewEnvelope(square(), 0, 1))

	if err := reg.LinkFrame(flat, env); err == nil {
		t.Error("2D parent must be rejected")
	}
	if err := reg.LinkFrame(env, env2); err == nil {
		t.Error("3D child must be rejected")
	}
	if err := reg.LinkFrame(env, "missing"); err == nil {
		t.Error("unknown child must be rejected")
	}
}

func TestClearRemovesEverything(t *testing.T) {
	reg := New()
	for i := 0; i < 5; i++ {
		reg.Add(region.New(square(), region.ComputationNone))
	}
	removed := reg.Clear()
	if len(removed) != 5 || reg.Len() != 0 {
		t.Errorf("expected 5 removed and empty registry, got %d removed, %d left", len(removed), reg.Len())
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	reg := New()
	var want []string
	for i := 0; i < 4; i++ {
		r := region.New(square(), region.ComputationNone)
		r.ID = fmt.Sprintf("r-%d", i)
		id, _ := reg.Add(r)
		want = append(want, id)
	}
	reg.Delete("r-1")
	want = append(want[:1], want[2:]...)

	got := reg.IDs()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
