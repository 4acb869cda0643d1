package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mr-Dark-debug/regionplay/internal/compute"
	"github.com/Mr-Dark-debug/regionplay/internal/geoimport"
	"github.com/Mr-Dark-debug/regionplay/internal/playback"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
	"github.com/Mr-Dark-debug/regionplay/internal/registry"
)

// Draw registers a user-drawn region and returns its id.
func (w *Workspace) Draw(geometry region.RingSet) (string, error) {
	return w.reg.Add(region.New(geometry.Clone(), region.ComputationNone))
}

// AddRegion registers a prepared region, for instance a 3D region with
// known bounds. A supplied id must be unused.
func (w *Workspace) AddRegion(r region.Region) (string, error) {
	return w.reg.Add(r.Clone())
}

// Import registers one region per imported shape.
func (w *Workspace) Import(shapes []geoimport.Shape) ([]string, error) {
	if len(shapes) == 0 {
		return nil, fmt.Errorf("importing: %w", geoimport.ErrMalformedGeometry)
	}
	ids := make([]string, 0, len(shapes))
	for _, s := range shapes {
		id, err := w.reg.Add(region.New(s.Rings.Clone(), region.ComputationImported))
		if err != nil {
			return ids, fmt.Errorf("importing: %w", err)
		}
		w.log.Info("region_imported", "region", id, "name", s.Name(), "rings", len(s.Rings))
		ids = append(ids, id)
	}
	return ids, nil
}

// ToggleSelect flips the selection of a visible region. It reports
// whether anything changed.
func (w *Workspace) ToggleSelect(id string) bool {
	_, ok := w.sel.ToggleSelect(id)
	return ok
}

// ClearSelection deselects everything and returns the affected ids.
func (w *Workspace) ClearSelection() []string {
	return w.sel.ClearSelection()
}

// Hide hides a region, dropping its selection.
func (w *Workspace) Hide(id string) bool { return w.reg.Hide(id) }

// Show reveals a hidden region.
func (w *Workspace) Show(id string) bool { return w.reg.Show(id) }

// ToggleVisible hides a visible region or shows a hidden one.
func (w *Workspace) ToggleVisible(id string) bool {
	r, ok := w.reg.Get(id)
	if !ok {
		return false
	}
	if r.Visible {
		return w.reg.Hide(id)
	}
	return w.reg.Show(id)
}

// Delete removes a region locally and from the server session. Unknown
// ids are a no-op: nothing changes and nothing is sent.
func (w *Workspace) Delete(id string) bool {
	return w.reg.Delete(id)
}

// DeleteSelected deletes every selected region and returns their ids.
func (w *Workspace) DeleteSelected() []string {
	ids := w.sel.SelectedIDs()
	for _, id := range ids {
		w.reg.Delete(id)
	}
	return ids
}

// ClearAll deletes every region, then drops the server session.
func (w *Workspace) ClearAll() {
	ids := w.reg.Clear()
	w.log.Info("workspace_cleared", "regions", len(ids))
	w.run(ActionClear, w.remote.ClearSession, func() ([]string, error) { return nil, nil })
}

// Intersect asks for the intersection of the selected regions.
func (w *Workspace) Intersect() {
	w.setOperation(ActionIntersect, region.ComputationIntersection, w.remote.FindIntersections)
}

// Union asks for the union of the selected regions.
func (w *Workspace) Union() {
	w.setOperation(ActionUnion, region.ComputationUnion, w.remote.FindUnions)
}

// Difference asks for the difference of the selected regions.
func (w *Workspace) Difference() {
	w.setOperation(ActionDifference, region.ComputationDifference, w.remote.FindDifference)
}

// setOperation adds one region per returned ring-set, then clears the
// selection.
func (w *Workspace) setOperation(action, label string, find func(context.Context) ([]region.RingSet, error)) {
	var results []region.RingSet
	w.run(action, func(ctx context.Context) (err error) {
		results, err = find(ctx)
		return err
	}, func() ([]string, error) {
		var ids []string
		for _, rs := range results {
			if len(rs) == 0 {
				continue
			}
			id, err := w.reg.Add(region.New(rs, label))
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
		w.sel.ClearSelection()
		if len(ids) == 0 {
			return nil, ErrEmptyResult
		}
		return ids, nil
	})
}

// Combine merges the selected regions into one and deletes the sources.
func (w *Workspace) Combine() {
	var result region.RingSet
	w.run(ActionCombine, func(ctx context.Context) (err error) {
		result, err = w.remote.CombineRegions(ctx)
		return err
	}, func() ([]string, error) {
		if len(result) == 0 {
			return nil, ErrEmptyResult
		}
		id, err := w.reg.Add(region.New(result, region.ComputationCombined))
		if err != nil {
			return nil, err
		}
		w.DeleteSelected()
		return []string{id}, nil
	})
}

// Interpolate asks for the interpolation of the selected regions over
// [start, end]. The sources are deleted and replaced by one 3D region.
func (w *Workspace) Interpolate(start, end int) {
	if start > end {
		start, end = end, start
	}
	var result region.RingSet
	w.run(ActionInterpolate, func(ctx context.Context) (err error) {
		result, err = w.remote.FindInterpolatedRegions(ctx, start, end)
		return err
	}, func() ([]string, error) {
		if len(result) == 0 {
			return nil, ErrEmptyResult
		}
		w.DeleteSelected()
		id, err := w.reg.Add(region.NewEnvelope(result, start, end))
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	})
}

// Restore recreates the regions of the server session. Entries are
// independent: ids already registered are skipped, the rest keep their
// server ids and visibility.
func (w *Workspace) Restore() {
	var entries []compute.RestoredRegion
	w.run(ActionRestore, func(ctx context.Context) (err error) {
		entries, err = w.remote.RestoreSession(ctx)
		return err
	}, func() ([]string, error) {
		w.restoring = true
		defer func() { w.restoring = false }()

		var ids []string
		for _, e := range entries {
			if e.ID == region.None {
				w.log.Warn("restore_skip", "reason", "missing id")
				continue
			}
			id, err := w.reg.Add(e.Region())
			if errors.Is(err, registry.ErrDuplicateID) {
				w.log.Warn("restore_skip", "region", e.ID, "reason", "duplicate id")
				continue
			}
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	})
}

func (w *Workspace) engine(id string) (*playback.Engine, error) {
	e, ok := w.group.Engine(id)
	if !ok {
		return nil, fmt.Errorf("region %s: %w", id, ErrNoSession)
	}
	return e, nil
}

// Play starts or resumes playback of a 3D region.
func (w *Workspace) Play(id string) error {
	e, err := w.engine(id)
	if err != nil {
		return err
	}
	e.Play()
	return nil
}

// Pause pauses playback of a 3D region.
func (w *Workspace) Pause(id string) error {
	e, err := w.engine(id)
	if err != nil {
		return err
	}
	e.Pause()
	return nil
}

// Stop stops playback of a 3D region and rewinds it.
func (w *Workspace) Stop(id string) error {
	e, err := w.engine(id)
	if err != nil {
		return err
	}
	e.Stop()
	return nil
}

// Scrub moves the time slider of a 3D region and shows that frame.
func (w *Workspace) Scrub(id string, t int) error {
	e, err := w.engine(id)
	if err != nil {
		return err
	}
	e.Scrub(t)
	return nil
}

// SetPosition moves the time slider without requesting a frame.
func (w *Workspace) SetPosition(id string, t int) error {
	e, err := w.engine(id)
	if err != nil {
		return err
	}
	e.SetPosition(t)
	return nil
}

// SetSpeed sets the session speed of a 3D region; zero defers.
func (w *Workspace) SetSpeed(id string, speed float64) error {
	e, err := w.engine(id)
	if err != nil {
		return err
	}
	e.SetSpeed(speed)
	return nil
}

// SetLoop toggles looping of a 3D region.
func (w *Workspace) SetLoop(id string, loop bool) error {
	e, err := w.engine(id)
	if err != nil {
		return err
	}
	e.SetLoop(loop)
	return nil
}

// SetSingleFrame switches a 3D region between single- and multi-frame mode.
func (w *Workspace) SetSingleFrame(id string, single bool) error {
	e, err := w.engine(id)
	if err != nil {
		return err
	}
	e.SetSingleFrame(single)
	return nil
}

// PlayAll plays every session at one group speed.
func (w *Workspace) PlayAll(speed float64) error {
	return w.group.PlayAll(speed)
}

// StopAll stops every session and drops the group speed.
func (w *Workspace) StopAll() error {
	return w.group.StopAll()
}
