package controller

import (
	"github.com/Mr-Dark-debug/regionplay/internal/playback"
	"github.com/Mr-Dark-debug/regionplay/internal/registry"
)

// Action names reported through ActionCompleted.
const (
	ActionIntersect   = "intersect"
	ActionUnion       = "union"
	ActionDifference  = "difference"
	ActionCombine     = "combine"
	ActionInterpolate = "interpolate"
	ActionRestore     = "restore"
	ActionClear       = "clear"
	ActionManage      = "manage"
)

// ActionResult reports the completion of an asynchronous action. IDs are
// the regions it created.
type ActionResult struct {
	Action string
	IDs    []string
	Err    error
}

// Observer receives state changes for a rendering adapter. All methods
// are called on the event loop and must not block.
type Observer interface {
	RegionEvent(ev registry.Event)
	SelectionChanged(id string, selected bool)
	PlaybackChanged(st playback.Status)
	GroupChanged(active bool)
	ActionCompleted(res ActionResult)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) RegionEvent(registry.Event) {}
func (NopObserver) SelectionChanged(string, bool) {}
func (NopObserver) PlaybackChanged(playback.Status) {}
func (NopObserver) GroupChanged(bool) {}
func (NopObserver) ActionCompleted(ActionResult) {}
