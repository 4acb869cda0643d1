// Package selection tracks which registry entries are selected and
// announces emphasis changes for the rendering adapter.
package selection

import (
	"sort"

	"github.com/Mr-Dark-debug/regionplay/internal/registry"
)

// EmphasisFunc is called whenever a region gains or loses its selection
// emphasis, whatever the cause (toggle, clear, hide, delete).
type EmphasisFunc func(id string, emphasized bool)

// Controller owns the selected set. It subscribes to the registry so that
// hides and deletes made elsewhere keep the set consistent.
type Controller struct {
	reg      *registry.Registry
	selected map[string]struct{}
	emphasis EmphasisFunc
}

// New creates a controller bound to reg and subscribes it.
func New(reg *registry.Registry, emphasis EmphasisFunc) *Controller {
	c := &Controller{
		reg:      reg,
		selected: make(map[string]struct{}),
		emphasis: emphasis,
	}
	for _, id := range reg.Selected() {
		c.selected[id] = struct{}{}
	}
	reg.Subscribe(c)
	return c
}

// RegionEvent keeps the selected set in sync with the registry.
func (c *Controller) RegionEvent(ev registry.Event) {
	id := ev.Region.ID
	switch ev.Kind {
	case registry.Selected:
		c.selected[id] = struct{}{}
		c.emphasize(id, true)
	case registry.Deselected:
		delete(c.selected, id)
		c.emphasize(id, false)
	case registry.Removed:
		if _, ok := c.selected[id]; ok {
			delete(c.selected, id)
			c.emphasize(id, false)
		}
	}
}

func (c *Controller) emphasize(id string, on bool) {
	if c.emphasis != nil {
		c.emphasis(id, on)
	}
}

// ToggleSelect flips the selection of a visible region. Hidden or unknown
// regions are left alone and ok is false.
func (c *Controller) ToggleSelect(id string) (selected bool, ok bool) {
	reg, exists := c.reg.Get(id)
	if !exists || !reg.Visible {
		return false, false
	}
	want := !reg.Selected
	if !c.reg.SetSelected(id, want) {
		return reg.Selected, false
	}
	return want, true
}

// ClearSelection deselects every selected region and returns their ids.
func (c *Controller) ClearSelection() []string {
	ids := c.SelectedIDs()
	for _, id := range ids {
		c.reg.SetSelected(id, false)
	}
	return ids
}

// SelectedIDs returns a sorted snapshot of the selected ids.
func (c *Controller) SelectedIDs() []string {
	out := make([]string, 0, len(c.selected))
	for id := range c.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsSelected reports whether id is selected.
func (c *Controller) IsSelected(id string) bool {
	_, ok := c.selected[id]
	return ok
}

// Len returns the number of selected regions.
func (c *Controller) Len() int {
	return len(c.selected)
}
