// Package registry owns the authoritative in-memory set of regions.
//
// The registry is not safe for concurrent use: it is only ever touched from
// the event loop. Every state change is announced to subscribed listeners
// synchronously, after the change has been applied.
package registry

import (
	"errors"
	"fmt"

	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

// ErrDuplicateID is returned by Add when a supplied id is already taken.
var ErrDuplicateID = errors.New("region id already registered")

// EventKind discriminates registry notifications.
type EventKind int

const (
	Added EventKind = iota
	Removed
	Hidden
	Shown
	Selected
	Deselected
	FrameLinked
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Hidden:
		return "hidden"
	case Shown:
		return "shown"
	case Selected:
		return "selected"
	case Deselected:
		return "deselected"
	case FrameLinked:
		return "frame_linked"
	default:
		return "unknown"
	}
}

// Event describes one applied change. Region is a copy taken after the change
// (for Removed, the region as it was just before removal).
type Event struct {
	Kind   EventKind
	Region region.Region
}

// Listener receives registry events.
type Listener interface {
	RegionEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) RegionEvent(ev Event) { f(ev) }

// Registry is the single shared mutable store of regions.
type Registry struct {
	regions   map[string]*region.Region
	order     []string
	listeners []Listener
	newID     func() string
	colors    *region.ColorAllocator
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDSource overrides id generation (tests).
func WithIDSource(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithColors overrides the color allocator.
func WithColors(a *region.ColorAllocator) Option {
	return func(r *Registry) { r.colors = a }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		regions: make(map[string]*region.Region),
		newID:   region.NewID,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.colors == nil {
		r.colors = region.NewColorAllocator(nil)
	}
	return r
}

// Subscribe registers a listener. Listeners are called in subscription order.
func (r *Registry) Subscribe(l Listener) {
	r.listeners = append(r.listeners, l)
}

func (r *Registry) emit(kind EventKind, reg *region.Region) {
	ev := Event{Kind: kind, Region: reg.Clone()}
	for _, l := range r.listeners {
		l.RegionEvent(ev)
	}
}

// Add inserts a region and returns its id. An empty id gets a fresh one;
// a supplied id that is already registered is rejected, never overwritten.
// A region without a fill color gets one from the allocator.
func (r *Registry) Add(reg region.Region) (string, error) {
	if reg.ID == region.None {
		id := r.newID()
		for attempts := 0; r.has(id); attempts++ {
			if attempts >= 16 {
				return "", fmt.Errorf("generating region id: %w", ErrDuplicateID)
			}
			id = r.newID()
		}
		reg.ID = id
	} else if r.has(reg.ID) {
		return "", fmt.Errorf("adding region %s: %w", reg.ID, ErrDuplicateID)
	}

	if reg.FillColor == "" {
		reg.FillColor = r.colors.Next()
	}
	if !reg.Visible {
		reg.Selected = false
	}
	if !reg.Is3D {
		reg.StartTime, reg.EndTime = 0, 0
	} else if reg.StartTime > reg.EndTime {
		reg.StartTime, reg.EndTime = reg.EndTime, reg.StartTime
	}
	// A new envelope never starts with a frame; frames are linked explicitly.
	reg.InterpolatedRegionID = region.None

	stored := reg.Clone()
	r.regions[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	r.emit(Added, &stored)
	return stored.ID, nil
}

func (r *Registry) has(id string) bool {
	_, ok := r.regions[id]
	return ok
}

// Get returns a copy of the region.
func (r *Registry) Get(id string) (region.Region, bool) {
	reg, ok := r.regions[id]
	if !ok {
		return region.Region{}, false
	}
	return reg.Clone(), true
}

// Exists reports whether id is registered.
func (r *Registry) Exists(id string) bool {
	return r.has(id)
}

// Len returns the number of registered regions.
func (r *Registry) Len() int {
	return len(r.regions)
}

// List returns copies of all regions in insertion order.
func (r *Registry) List() []region.Region {
	out := make([]region.Region, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.regions[id].Clone())
	}
	return out
}

// IDs returns the registered ids in insertion order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Hide makes a region invisible, deselecting it first if needed.
// Returns false if the region is unknown or already hidden.
func (r *Registry) Hide(id string) bool {
	reg, ok := r.regions[id]
	if !ok || !reg.Visible {
		return false
	}
	if reg.Selected {
		reg.Selected = false
		r.emit(Deselected, reg)
	}
	reg.Visible = false
	r.emit(Hidden, reg)
	return true
}

// Show makes a region visible. Returns false if unknown or already visible.
func (r *Registry) Show(id string) bool {
	reg, ok := r.regions[id]
	if !ok || reg.Visible {
		return false
	}
	reg.Visible = true
	r.emit(Shown, reg)
	return true
}

// SetSelected changes the selection flag. Selecting a hidden region is
// refused. Returns whether the flag changed.
func (r *Registry) SetSelected(id string, selected bool) bool {
	reg, ok := r.regions[id]
	if !ok || reg.Selected == selected {
		return false
	}
	if selected && !reg.Visible {
		return false
	}
	reg.Selected = selected
	if selected {
		r.emit(Selected, reg)
	} else {
		r.emit(Deselected, reg)
	}
	return true
}

// LinkFrame points a 3D parent at its displayed frame child, or at
// region.None to clear the link. The previous child, if any, must already
// have been deleted.
func (r *Registry) LinkFrame(parentID, childID string) error {
	parent, ok := r.regions[parentID]
	if !ok {
		return fmt.Errorf("linking frame: parent %s not registered", parentID)
	}
	if !parent.Is3D {
		return fmt.Errorf("linking frame: parent %s is not a 3D region", parentID)
	}
	if childID != region.None {
		child, ok := r.regions[childID]
		if !ok {
			return fmt.Errorf("linking frame: child %s not registered", childID)
		}
		if child.Is3D {
			return fmt.Errorf("linking frame: child %s is a 3D region", childID)
		}
	}
	if prev := parent.InterpolatedRegionID; prev != region.None && prev != childID && r.has(prev) {
		return fmt.Errorf("linking frame: previous child %s of %s still registered", prev, parentID)
	}
	if parent.InterpolatedRegionID == childID {
		return nil
	}
	parent.InterpolatedRegionID = childID
	r.emit(FrameLinked, parent)
	return nil
}

// Delete removes a region. Unknown ids are a no-op, so every path racing to
// remove the same frame child can call it safely. Parents that referenced
// the deleted region as their frame are unlinked afterwards.
func (r *Registry) Delete(id string) bool {
	reg, ok := r.regions[id]
	if !ok {
		return false
	}
	delete(r.regions, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.emit(Removed, reg)

	for _, pid := range r.order {
		parent := r.regions[pid]
		if parent.InterpolatedRegionID == id {
			parent.InterpolatedRegionID = region.None
			r.emit(FrameLinked, parent)
		}
	}
	return true
}

// Clear deletes every region and returns the removed ids.
func (r *Registry) Clear() []string {
	ids := r.IDs()
	for _, id := range ids {
		r.Delete(id)
	}
	return ids
}

// Selected returns the ids of selected regions in insertion order.
func (r *Registry) Selected() []string {
	var out []string
	for _, id := range r.order {
		if r.regions[id].Selected {
			out = append(out, id)
		}
	}
	return out
}

// Envelopes returns the ids of 3D regions in insertion order.
func (r *Registry) Envelopes() []string {
	var out []string
	for _, id := range r.order {
		if r.regions[id].Is3D {
			out = append(out, id)
		}
	}
	return out
}
