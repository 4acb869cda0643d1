// Package computetest provides an in-process fake of the compute service
// for tests.
package computetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/Mr-Dark-debug/regionplay/internal/compute"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

// Call is one request received by the fake.
type Call struct {
	Path string
	Data json.RawMessage
}

// Polygon is a region held in the fake session.
type Polygon struct {
	ID          string
	Path        region.RingSet
	Computation string
	Visible     bool
	Selected    bool
	StartTime   *int
	EndTime     *int
}

// Server is a fake compute service keeping a session like the real one.
// Set operations return the rings of every selected region merged into
// one ring-set; frames are a single point at (t, t).
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	calls   []Call
	order   []string
	session map[string]*Polygon
	failing map[string]bool
}

// NewServer starts a fake service. Close it when done.
func NewServer() *Server {
	s := &Server{
		session: make(map[string]*Polygon),
		failing: make(map[string]bool),
	}
	r := chi.NewRouter()
	r.Post(compute.PathIntersections, s.handleSetOp)
	r.Post(compute.PathUnions, s.handleSetOp)
	r.Post(compute.PathDifference, s.handleSetOp)
	r.Post(compute.PathInterpolate, s.handleMerged)
	r.Post(compute.PathCombine, s.handleMerged)
	r.Post(compute.PathRegionAtTime, s.handleRegionAtTime)
	r.Post(compute.PathManage, s.handleManage)
	r.Post(compute.PathRestore, s.handleRestore)
	r.Get(compute.PathRestore, s.handleRestore)
	r.Post(compute.PathClear, s.handleClear)
	s.Server = httptest.NewServer(s.record(r))
	return s
}

// Fail makes path answer success=false until called with false.
func (s *Server) Fail(path string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[path] = fail
}

// Seed puts a polygon into the session as if a previous client added it.
func (s *Server) Seed(p Polygon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.session[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	cp := p
	s.session[p.ID] = &cp
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the requests received on one path.
func (s *Server) CallsTo(path string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Session returns a copy of a session polygon.
func (s *Server) Session(id string) (Polygon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.session[id]
	if !ok {
		return Polygon{}, false
	}
	return *p, true
}

// SessionLen returns the number of session polygons.
func (s *Server) SessionLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.session)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.calls = append(s.calls, Call{Path: r.URL.Path, Data: json.RawMessage(r.PostForm.Get("data"))})
		failing := s.failing[r.URL.Path]
		s.mu.Unlock()
		if failing {
			reply(w, false, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func reply(w http.ResponseWriter, ok bool, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": ok, "data": data})
}

// merged returns the rings of all selected polygons in session order.
// Callers hold mu.
func (s *Server) merged() region.RingSet {
	out := region.RingSet{}
	for _, id := range s.order {
		if p := s.session[id]; p.Selected {
			out = append(out, p.Path.Clone()...)
		}
	}
	return out
}

func (s *Server) handleSetOp(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	rs := s.merged()
	s.mu.Unlock()
	reply(w, true, []region.RingSet{rs})
}

func (s *Server) handleMerged(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	rs := s.merged()
	s.mu.Unlock()
	reply(w, true, rs)
}

func (s *Server) handleRegionAtTime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time int `json:"time"`
	}
	if err := json.Unmarshal([]byte(r.PostForm.Get("data")), &req); err != nil {
		reply(w, false, nil)
		return
	}
	reply(w, true, region.RingSet{{{Lat: float64(req.Time), Lng: float64(req.Time)}}})
}

func (s *Server) handleManage(w http.ResponseWriter, r *http.Request) {
	var req compute.ManageRequest
	if err := json.Unmarshal([]byte(r.PostForm.Get("data")), &req); err != nil {
		reply(w, false, nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, exists := s.session[req.ID]
	switch req.Action {
	case compute.ActionAdd:
		comp := ""
		if req.Computation != nil {
			comp = *req.Computation
		}
		if !exists {
			s.order = append(s.order, req.ID)
		}
		s.session[req.ID] = &Polygon{ID: req.ID, Path: req.Path, Computation: comp, Visible: true}
	case compute.ActionDelete:
		if exists {
			delete(s.session, req.ID)
			for i, id := range s.order {
				if id == req.ID {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		}
	case compute.ActionSelect:
		if exists {
			p.Selected = !p.Selected
		}
	case compute.ActionVisible:
		if exists {
			p.Visible = !p.Visible
			if !p.Visible {
				p.Selected = false
			}
		}
	default:
		reply(w, false, nil)
		return
	}
	reply(w, true, nil)
}

func (s *Server) handleRestore(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	polygons := make([]compute.RestoredRegion, 0, len(s.order))
	for _, id := range s.order {
		p := s.session[id]
		visible := p.Visible
		polygons = append(polygons, compute.RestoredRegion{
			ID:          p.ID,
			Coords:      p.Path,
			Computation: p.Computation,
			Visible:     &visible,
			StartTime:   p.StartTime,
			EndTime:     p.EndTime,
		})
	}
	reply(w, true, map[string]any{"polygons": polygons})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.session = make(map[string]*Polygon)
	s.order = nil
	s.mu.Unlock()
	reply(w, true, nil)
}
