package playback

import (
	"errors"
	"sort"
)

// ErrGroupInactive is returned by PlayAll and StopAll when fewer than two
// sessions exist.
var ErrGroupInactive = errors.New("group playback needs at least two 3D regions")

// Group coordinates every tracked engine. It shares its SpeedOverride with
// the engines so that PlayAll can force one speed on all of them.
type Group struct {
	engines  map[string]*Engine
	override *SpeedOverride
	active   bool
	onChange func(active bool)
}

// NewGroup creates an empty, inactive group. onChange, if set, is called
// whenever the group crosses the two-session threshold.
func NewGroup(override *SpeedOverride, onChange func(active bool)) *Group {
	if override == nil {
		override = &SpeedOverride{}
	}
	return &Group{
		engines:  make(map[string]*Engine),
		override: override,
		onChange: onChange,
	}
}

// Override returns the shared speed override.
func (g *Group) Override() *SpeedOverride { return g.override }

// Track adds an engine.
func (g *Group) Track(e *Engine) {
	g.engines[e.ID()] = e
	g.evaluate()
}

// Untrack removes the engine of a region.
func (g *Group) Untrack(id string) {
	if _, ok := g.engines[id]; !ok {
		return
	}
	delete(g.engines, id)
	g.evaluate()
}

// Engine returns the tracked engine of a region.
func (g *Group) Engine(id string) (*Engine, bool) {
	e, ok := g.engines[id]
	return e, ok
}

func (g *Group) evaluate() {
	active := len(g.engines) >= 2
	if active == g.active {
		return
	}
	g.active = active
	if !active {
		g.override.Clear()
	}
	if g.onChange != nil {
		g.onChange(active)
	}
}

// Active reports whether group controls are available.
func (g *Group) Active() bool { return g.active }

// Len returns the number of tracked engines.
func (g *Group) Len() int { return len(g.engines) }

// IDs returns the tracked region ids, sorted.
func (g *Group) IDs() []string {
	ids := make([]string, 0, len(g.engines))
	for id := range g.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PlayAll sets the group speed and plays every engine. A zero speed means
// the default speed.
func (g *Group) PlayAll(speed float64) error {
	if !g.active {
		return ErrGroupInactive
	}
	g.override.Set(ResolveSpeed(speed, nil))
	for _, id := range g.IDs() {
		g.engines[id].Play()
	}
	return nil
}

// StopAll stops every engine and drops the group speed.
func (g *Group) StopAll() error {
	if !g.active {
		return ErrGroupInactive
	}
	g.override.Clear()
	for _, id := range g.IDs() {
		g.engines[id].Stop()
	}
	return nil
}
