package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Mr-Dark-debug/regionplay/internal/compute"
	"github.com/Mr-Dark-debug/regionplay/internal/config"
	"github.com/Mr-Dark-debug/regionplay/internal/controller"
	"github.com/Mr-Dark-debug/regionplay/internal/database"
	"github.com/Mr-Dark-debug/regionplay/internal/eventloop"
	"github.com/Mr-Dark-debug/regionplay/internal/playback"
	"github.com/Mr-Dark-debug/regionplay/pkg/timeutil"
)

// headless runs a workspace without a UI: its own event loop, a journal
// recorder and a session row in the database.
type headless struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *database.DBService
	runner   *eventloop.Runner
	recorder *database.Recorder
	ws       *controller.Workspace
	obs      *watcher

	stop context.CancelFunc
	g    *errgroup.Group
}

func openStore(path string) (*database.DBService, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return database.NewDBService(path)
}

func newClient(cfg *config.Config, log *slog.Logger) *compute.Client {
	return compute.New(cfg.ServerURL,
		compute.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		compute.WithLogger(log))
}

// startHeadless opens the store, records a new session and starts the
// loop and recorder. ctx bounds remote calls; the loop itself runs until
// close.
func startHeadless(ctx context.Context, cfg *config.Config, log *slog.Logger) (*headless, error) {
	store, err := openStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sessionID := uuid.NewString()
	if err := store.StartSession(&database.Session{
		SessionID: sessionID,
		ServerURL: cfg.ServerURL,
		StartedAt: time.Now().UnixNano(),
	}); err != nil {
		store.Close()
		return nil, fmt.Errorf("starting session: %w", err)
	}

	h := &headless{
		cfg:      cfg,
		log:      log.With("session", sessionID),
		store:    store,
		runner:   eventloop.NewRunner(0),
		recorder: database.NewRecorder(store, database.DefaultRecorderConfig(), log),
		obs:      newWatcher(),
	}
	h.ws = controller.New(controller.Config{
		Remote:       newClient(cfg, log),
		Loop:         h.runner,
		Context:      ctx,
		Timeout:      cfg.RequestTimeout,
		Logger:       h.log,
		Observer:     h.obs,
		Journal:      h.recorder,
		Pending:      store,
		SessionID:    sessionID,
		DefaultSpeed: cfg.DefaultSpeed,
	})

	loopCtx, stop := context.WithCancel(context.Background())
	h.stop = stop
	h.g, loopCtx = errgroup.WithContext(loopCtx)
	h.g.Go(func() error { return h.runner.Run(loopCtx) })
	h.g.Go(func() error { return h.recorder.Run(loopCtx) })
	h.log.Info("session_started", "server", cfg.ServerURL, "db", cfg.DBPath)
	return h, nil
}

// do runs fn on the loop.
func (h *headless) do(ctx context.Context, fn func(ws *controller.Workspace)) error {
	return h.runner.Do(ctx, func() { fn(h.ws) })
}

// await blocks until the named action completes and returns its result.
func (h *headless) await(ctx context.Context, action string) (controller.ActionResult, error) {
	for {
		select {
		case <-ctx.Done():
			return controller.ActionResult{}, ctx.Err()
		case res := <-h.obs.actions:
			if res.Action == action {
				return res, res.Err
			}
			if res.Err != nil {
				h.log.Warn("action_failed", "action", res.Action, "err", res.Err)
			}
		}
	}
}

// close disposes the workspace, waits for outstanding manage calls, stops
// the loop and the recorder and ends the session row.
func (h *headless) close(ctx context.Context) {
	if err := h.do(ctx, func(ws *controller.Workspace) { ws.Close() }); err != nil {
		h.log.Warn("workspace_close_failed", "err", err)
	}
	settleCtx, cancel := context.WithTimeout(context.Background(), h.cfg.RequestTimeout)
	if err := h.ws.Settle(settleCtx); err != nil {
		h.log.Warn("manage_calls_unsettled", "err", err)
	}
	cancel()

	h.stop()
	if err := h.g.Wait(); err != nil {
		h.log.Error("shutdown_failed", "err", err)
	}
	if err := h.store.EndSession(h.ws.SessionID(), time.Now().UnixNano()); err != nil {
		h.log.Error("session_end_failed", "err", err)
	}
	m := h.recorder.Metrics()
	h.log.Info("session_ended",
		"events_written", m.EventsWritten,
		"frames_written", m.FramesWritten,
		"errors", m.ErrorCount)
	h.store.Close()
}

// watcher forwards completed actions and tracks which sessions play. Its
// observer methods run on the loop and never block.
type watcher struct {
	controller.NopObserver

	actions chan controller.ActionResult

	// playing is only touched on the loop.
	playing  map[string]bool
	verbose  bool
	idle     chan struct{}
	idleOnce sync.Once
}

func newWatcher() *watcher {
	return &watcher{
		actions: make(chan controller.ActionResult, 64),
		playing: make(map[string]bool),
		idle:    make(chan struct{}),
	}
}

func (w *watcher) ActionCompleted(res controller.ActionResult) {
	select {
	case w.actions <- res:
	default:
	}
}

func (w *watcher) PlaybackChanged(st playback.Status) {
	wasPlaying := w.playing[st.RegionID]
	if st.State == playback.Playing {
		w.playing[st.RegionID] = true
	} else {
		delete(w.playing, st.RegionID)
	}
	if w.verbose && (st.State == playback.Playing || wasPlaying) {
		fmt.Printf("%s  %-8s %s %s  %s\n",
			timeutil.Clock(time.Now().UnixNano()),
			st.RegionID[:min(8, len(st.RegionID))],
			st.State,
			timeutil.Position(st.CurrentTime, st.StartTime, st.EndTime),
			timeutil.Speed(st.EffectiveSpeed))
	}
	if wasPlaying && len(w.playing) == 0 {
		w.idleOnce.Do(func() { close(w.idle) })
	}
}
