// Package controller glues the core together: it turns user actions into
// registry, selection and playback calls, mirrors every region change to
// the remote session and reports state changes to an Observer.
//
// A Workspace is owned by one event loop. Every exported method must be
// called on that loop (eventloop.Runner.Do or Post); remote calls run off
// the loop and their results are posted back.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mr-Dark-debug/regionplay/internal/compute"
	"github.com/Mr-Dark-debug/regionplay/internal/database"
	"github.com/Mr-Dark-debug/regionplay/internal/eventloop"
	"github.com/Mr-Dark-debug/regionplay/internal/logger"
	"github.com/Mr-Dark-debug/regionplay/internal/metrics"
	"github.com/Mr-Dark-debug/regionplay/internal/playback"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
	"github.com/Mr-Dark-debug/regionplay/internal/registry"
	"github.com/Mr-Dark-debug/regionplay/internal/selection"
)

var (
	// ErrNoSession is returned by playback controls for regions without a
	// playback session (unknown or not 3D).
	ErrNoSession = errors.New("no playback session for region")
	// ErrEmptyResult is returned when the service answers without geometry.
	ErrEmptyResult = errors.New("compute service returned no geometry")
)

// Remote is the compute service as the workspace uses it.
type Remote interface {
	FindIntersections(ctx context.Context) ([]region.RingSet, error)
	FindUnions(ctx context.Context) ([]region.RingSet, error)
	FindDifference(ctx context.Context) ([]region.RingSet, error)
	FindInterpolatedRegions(ctx context.Context, start, end int) (region.RingSet, error)
	FindRegionAtTime(ctx context.Context, regionID string, t int) (region.RingSet, error)
	CombineRegions(ctx context.Context) (region.RingSet, error)
	ManageRegion(ctx context.Context, req compute.ManageRequest) error
	RestoreSession(ctx context.Context) ([]compute.RestoredRegion, error)
	ClearSession(ctx context.Context) error
}

// Journal receives region events and frame outcomes. database.Recorder
// implements it.
type Journal interface {
	RecordEvent(ev *database.RegionEvent)
	RecordFrame(f *database.FrameRecord)
}

// PendingWriter keeps failed manage_region calls for a later resend. It is
// called off the event loop.
type PendingWriter interface {
	WritePendingManage(sessionID string, payload []byte) (int64, error)
}

// Config wires a Workspace.
type Config struct {
	Remote Remote
	Loop   eventloop.Loop

	// Context bounds every remote call; Timeout applies per call.
	Context context.Context
	Timeout time.Duration

	Logger    *slog.Logger
	Observer  Observer
	Journal   Journal
	Pending   PendingWriter
	SessionID string

	// DefaultSpeed is the session speed new playback sessions start with.
	// Zero defers to the playback default.
	DefaultSpeed float64

	RegistryOptions []registry.Option
}

// Workspace is the client-side controller.
type Workspace struct {
	remote  Remote
	loop    eventloop.Loop
	ctx     context.Context
	timeout time.Duration
	log     *slog.Logger
	obs     Observer
	journal Journal
	pending PendingWriter
	session string
	speed   float64

	reg      *registry.Registry
	sel      *selection.Controller
	override *playback.SpeedOverride
	group    *playback.Group

	// restoring suppresses manage "add" for regions the server already has.
	restoring bool

	// calls counts manage_region requests not yet answered. No call is
	// added once closed is set, so Settle never races an Add from zero.
	calls  sync.WaitGroup
	closed bool
}

// New creates a workspace with an empty registry.
func New(cfg Config) *Workspace {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.L()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}

	w := &Workspace{
		remote:  cfg.Remote,
		loop:    cfg.Loop,
		ctx:     cfg.Context,
		timeout: cfg.Timeout,
		log:     cfg.Logger,
		obs:     cfg.Observer,
		journal: cfg.Journal,
		pending: cfg.Pending,
		session: cfg.SessionID,
		speed:   cfg.DefaultSpeed,
	}
	w.reg = registry.New(cfg.RegistryOptions...)
	w.override = &playback.SpeedOverride{}
	w.group = playback.NewGroup(w.override, w.groupChanged)
	w.reg.Subscribe(registry.ListenerFunc(w.regionEvent))
	w.sel = selection.New(w.reg, w.obs.SelectionChanged)
	return w
}

// SessionID returns the journal session id.
func (w *Workspace) SessionID() string { return w.session }

// regionEvent mirrors registry changes to the server, keeps playback
// sessions in step with 3D regions and forwards the event.
func (w *Workspace) regionEvent(ev registry.Event) {
	r := ev.Region
	switch ev.Kind {
	case registry.Added:
		if !w.restoring {
			w.manage(compute.NewAdd(r))
		}
		if r.Is3D {
			w.openSession(r.ID)
		}
	case registry.Removed:
		if e, ok := w.group.Engine(r.ID); ok {
			e.Dispose()
			w.group.Untrack(r.ID)
		}
		w.manage(compute.ManageRequest{ID: r.ID, Action: compute.ActionDelete})
	case registry.Selected, registry.Deselected:
		w.manage(compute.ManageRequest{ID: r.ID, Action: compute.ActionSelect})
	case registry.Hidden, registry.Shown:
		w.manage(compute.ManageRequest{ID: r.ID, Action: compute.ActionVisible})
	}

	metrics.RegionsActive.Set(float64(w.reg.Len()))
	if w.journal != nil {
		w.journal.RecordEvent(&database.RegionEvent{
			SessionID:   w.session,
			RegionID:    r.ID,
			Kind:        ev.Kind.String(),
			Computation: r.Computation,
			Is3D:        r.Is3D,
			Vertices:    r.Geometry.Vertices(),
			Timestamp:   time.Now().UnixNano(),
		})
	}
	w.obs.RegionEvent(ev)
}

func (w *Workspace) openSession(id string) {
	e, err := playback.NewEngine(id, playback.Deps{
		Registry: w.reg,
		Loop:     w.loop,
		Source:   w.remote,
		Frames:   w,
		Override: w.override,
		Context:  w.ctx,
		Timeout:  w.timeout,
		Logger:   w.log,
		OnStatus: w.playbackChanged,
		OnFrame:  w.frameOutcome,
	})
	if err != nil {
		w.log.Error("playback_session_failed", "region", id, "err", err)
		return
	}
	if w.speed != 0 {
		e.SetSpeed(w.speed)
	}
	w.group.Track(e)
}

func (w *Workspace) groupChanged(active bool) {
	w.log.Debug("group_playback_changed", "active", active, "sessions", w.group.Len())
	w.obs.GroupChanged(active)
}

func (w *Workspace) playbackChanged(st playback.Status) {
	playing := 0
	for _, id := range w.group.IDs() {
		if e, _ := w.group.Engine(id); e.State() == playback.Playing {
			playing++
		}
	}
	metrics.SessionsPlaying.Set(float64(playing))
	w.obs.PlaybackChanged(st)
}

func (w *Workspace) frameOutcome(o playback.FrameOutcome) {
	metrics.FramesTotal.WithLabelValues(o.Result.String()).Inc()
	if w.journal == nil {
		return
	}
	rec := &database.FrameRecord{
		SessionID: w.session,
		RegionID:  o.RegionID,
		Seq:       o.Seq,
		TimeIndex: o.Time,
		Single:    o.Single,
		Result:    o.Result.String(),
		LatencyMs: o.Latency.Milliseconds(),
		Timestamp: time.Now().UnixNano(),
	}
	if o.FrameID != "" {
		id := o.FrameID
		rec.FrameID = &id
	}
	if o.Err != nil {
		msg := o.Err.Error()
		rec.ErrorMessage = &msg
	}
	w.journal.RecordFrame(rec)
}

// AddFrame registers a playback frame. It is mirrored like any region.
func (w *Workspace) AddFrame(_ string, geometry region.RingSet) (string, error) {
	return w.reg.Add(region.New(geometry, region.ComputationFrame))
}

// DeleteFrame removes a playback frame; unknown ids are ignored.
func (w *Workspace) DeleteFrame(id string) {
	w.reg.Delete(id)
}

// manage mirrors one change to the server session. Failures are journaled
// for a manual resend and reported; nothing is rolled back.
func (w *Workspace) manage(req compute.ManageRequest) {
	if w.closed {
		w.log.Debug("manage_region_dropped", "region", req.ID, "action", req.Action, "reason", "closed")
		return
	}
	ctx, timeout, remote := w.ctx, w.timeout, w.remote
	w.calls.Add(1)
	w.loop.Go(func() func() {
		defer w.calls.Done()
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := remote.ManageRegion(cctx, req)
		if err == nil {
			return nil
		}
		w.keepPending(req, err)
		err = fmt.Errorf("manage %s %s: %w", req.Action, req.ID, err)
		return func() { w.obs.ActionCompleted(ActionResult{Action: ActionManage, IDs: []string{req.ID}, Err: err}) }
	})
}

// Settle waits until every manage_region call issued so far has been
// answered or journaled. It may be called from any goroutine once Close
// has run on the loop.
func (w *Workspace) Settle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.calls.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// keepPending runs off the loop and touches only goroutine-safe state.
func (w *Workspace) keepPending(req compute.ManageRequest, cause error) {
	w.log.Warn("manage_region_failed", "region", req.ID, "action", req.Action, "err", cause)
	if w.pending == nil {
		return
	}
	payload, err := json.Marshal(req)
	if err != nil {
		w.log.Error("manage_region_encode_failed", "region", req.ID, "err", err)
		return
	}
	if _, err := w.pending.WritePendingManage(w.session, payload); err != nil {
		w.log.Error("manage_region_journal_failed", "region", req.ID, "err", err)
		return
	}
	metrics.PendingManageTotal.Inc()
}

// run performs call off the loop and, on success, apply on the loop.
// Either way the outcome is reported as action.
func (w *Workspace) run(action string, call func(context.Context) error, apply func() ([]string, error)) {
	ctx, timeout := w.ctx, w.timeout
	w.loop.Go(func() func() {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := call(cctx); err != nil {
			return func() { w.finish(action, nil, err) }
		}
		return func() {
			ids, err := apply()
			w.finish(action, ids, err)
		}
	})
}

func (w *Workspace) finish(action string, ids []string, err error) {
	if err != nil {
		w.log.Warn("action_failed", "action", action, "err", err)
	} else {
		w.log.Info("action_completed", "action", action, "regions", len(ids))
	}
	w.obs.ActionCompleted(ActionResult{Action: action, IDs: ids, Err: err})
}

// Close disposes every playback session and stops mirroring changes to
// the server.
func (w *Workspace) Close() {
	w.closed = true
	for _, id := range w.group.IDs() {
		if e, ok := w.group.Engine(id); ok {
			e.Dispose()
		}
	}
}
