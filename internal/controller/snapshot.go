package controller

import (
	"github.com/Mr-Dark-debug/regionplay/internal/playback"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

// Snapshot is a copy of the workspace state, safe to hand to another
// goroutine.
type Snapshot struct {
	SessionID   string
	Regions     []region.Region
	Selected    []string
	Sessions    []playback.Status
	GroupActive bool
}

// Snapshot copies the current state.
func (w *Workspace) Snapshot() Snapshot {
	s := Snapshot{
		SessionID:   w.session,
		Regions:     w.reg.List(),
		Selected:    w.sel.SelectedIDs(),
		GroupActive: w.group.Active(),
	}
	for _, id := range w.group.IDs() {
		if e, ok := w.group.Engine(id); ok {
			s.Sessions = append(s.Sessions, e.Status())
		}
	}
	return s
}

// Region returns a copy of one region.
func (w *Workspace) Region(id string) (region.Region, bool) {
	return w.reg.Get(id)
}

// Regions returns copies of all regions in insertion order.
func (w *Workspace) Regions() []region.Region {
	return w.reg.List()
}

// SelectedIDs returns the sorted selected ids.
func (w *Workspace) SelectedIDs() []string {
	return w.sel.SelectedIDs()
}

// Status returns the playback status of a 3D region.
func (w *Workspace) Status(id string) (playback.Status, bool) {
	e, ok := w.group.Engine(id)
	if !ok {
		return playback.Status{}, false
	}
	return e.Status(), true
}

// GroupActive reports whether group playback controls are available.
func (w *Workspace) GroupActive() bool {
	return w.group.Active()
}
