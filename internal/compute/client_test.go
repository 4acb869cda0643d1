package compute_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Mr-Dark-debug/regionplay/internal/compute"
	"github.com/Mr-Dark-debug/regionplay/internal/compute/computetest"
	"github.com/Mr-Dark-debug/regionplay/internal/logger"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

var square = region.RingSet{{
	{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0},
}}

func newClient(url string) *compute.Client {
	return compute.New(url, compute.WithLogger(logger.Discard()))
}

// TestManageAddSendsFormEncodedJSON checks the wire shape of an add.
func TestManageAddSendsFormEncodedJSON(t *testing.T) {
	srv := computetest.NewServer()
	defer srv.Close()
	c := newClient(srv.URL)

	r := region.New(square, region.ComputationUnion)
	r.ID = "r1"
	if err := c.ManageRegion(context.Background(), compute.NewAdd(r)); err != nil {
		t.Fatalf("ManageRegion failed: %v", err)
	}

	calls := srv.CallsTo(compute.PathManage)
	if len(calls) != 1 {
		t.Fatalf("expected 1 manage call, got %d", len(calls))
	}
	var got map[string]any
	if err := json.Unmarshal(calls[0].Data, &got); err != nil {
		t.Fatalf("data field is not JSON: %v", err)
	}
	if got["id"] != "r1" || got["action"] != "add" || got["computation"] != "Union" {
		t.Errorf("unexpected request %v", got)
	}
	if _, ok := got["path"]; !ok {
		t.Errorf("add must carry the path")
	}

	p, ok := srv.Session("r1")
	if !ok || p.Path.Vertices() != 4 {
		t.Errorf("expected server to store the path, got %+v", p)
	}
}

func TestManageNonAddOmitsPath(t *testing.T) {
	srv := computetest.NewServer()
	defer srv.Close()
	c := newClient(srv.URL)

	comp := "x"
	err := c.ManageRegion(context.Background(), compute.ManageRequest{ID: "r1", Action: compute.ActionDelete, Path: square, Computation: &comp})
	if err != nil {
		t.Fatalf("ManageRegion failed: %v", err)
	}
	var got map[string]any
	json.Unmarshal(srv.CallsTo(compute.PathManage)[0].Data, &got)
	if _, ok := got["path"]; ok {
		t.Errorf("delete must not carry a path: %v", got)
	}
	if _, ok := got["computation"]; ok {
		t.Errorf("delete must not carry a computation: %v", got)
	}
}

func TestUnsuccessfulEnvelope(t *testing.T) {
	srv := computetest.NewServer()
	defer srv.Close()
	srv.Fail(compute.PathClear, true)
	c := newClient(srv.URL)

	if err := c.ClearSession(context.Background()); !errors.Is(err, compute.ErrUnsuccessful) {
		t.Errorf("expected ErrUnsuccessful, got %v", err)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Post(compute.PathCombine, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	if _, err := newClient(srv.URL).CombineRegions(context.Background()); err == nil {
		t.Error("expected an error for status 500")
	}
}

func TestSetOperationAcceptsBothShapes(t *testing.T) {
	r := chi.NewRouter()
	r.Post(compute.PathIntersections, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success": true, "data": [[[{"lat":1,"lng":2},{"lat":3,"lng":4}]], [[{"lat":5,"lng":6}]]]}`))
	})
	r.Post(compute.PathUnions, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success": true, "data": [[{"lat":1,"lng":2},{"lat":3,"lng":4}]]}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	c := newClient(srv.URL)

	many, err := c.FindIntersections(context.Background())
	if err != nil {
		t.Fatalf("FindIntersections failed: %v", err)
	}
	if len(many) != 2 || many[1][0][0].Lat != 5 {
		t.Errorf("expected 2 ring-sets, got %v", many)
	}

	one, err := c.FindUnions(context.Background())
	if err != nil {
		t.Fatalf("FindUnions failed: %v", err)
	}
	if len(one) != 1 || one[0][0][1].Lng != 4 {
		t.Errorf("expected a single wrapped ring-set, got %v", one)
	}
}

func TestFindRegionAtTime(t *testing.T) {
	srv := computetest.NewServer()
	defer srv.Close()
	c := newClient(srv.URL)

	rs, err := c.FindRegionAtTime(context.Background(), "env", 7)
	if err != nil {
		t.Fatalf("FindRegionAtTime failed: %v", err)
	}
	if rs[0][0].Lat != 7 {
		t.Errorf("expected frame for t=7, got %v", rs)
	}
	var req struct {
		Time      int    `json:"time"`
		PolygonID string `json:"polygonID"`
	}
	json.Unmarshal(srv.CallsTo(compute.PathRegionAtTime)[0].Data, &req)
	if req.Time != 7 || req.PolygonID != "env" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestRestoreSession(t *testing.T) {
	srv := computetest.NewServer()
	defer srv.Close()
	start, end := 0, 5
	srv.Seed(computetest.Polygon{ID: "a", Path: square, Computation: region.ComputationInterpolated, Visible: true, StartTime: &start, EndTime: &end})
	srv.Seed(computetest.Polygon{ID: "b", Path: square, Computation: region.ComputationUnion, Visible: false})
	c := newClient(srv.URL)

	got, err := c.RestoreSession(context.Background())
	if err != nil {
		t.Fatalf("RestoreSession failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(got))
	}
	a := got[0].Region()
	if !a.Is3D || a.EndTime != 5 || a.ID != "a" {
		t.Errorf("expected 3D region a over [0,5], got %+v", a)
	}
	b := got[1].Region()
	if b.Is3D || b.Visible {
		t.Errorf("expected hidden 2D region b, got %+v", b)
	}
}

func TestRestoredInterpolatedWithoutTimesIsFlat(t *testing.T) {
	rr := compute.RestoredRegion{ID: "x", Coords: square, Computation: region.ComputationInterpolated}
	if r := rr.Region(); r.Is3D || !r.Visible {
		t.Errorf("expected visible 2D region, got %+v", r)
	}
}

func TestContextCancelled(t *testing.T) {
	srv := computetest.NewServer()
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newClient(srv.URL).RestoreSession(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
