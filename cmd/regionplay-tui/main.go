// regionplay TUI: interactive region workspace against a compute service.
//
// Usage:
//
//	regionplay-tui [flags]
//
// Flags:
//
//	--server   Compute service URL (default: SERVER_URL or http://localhost:5000)
//	--db       Path to SQLite journal (default: DB_PATH or regionplay.db)
//	--log      Log file (default: LOG_FILE or regionplay.log)
//	--speed    Speed new playback sessions start with
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Mr-Dark-debug/regionplay/internal/compute"
	"github.com/Mr-Dark-debug/regionplay/internal/config"
	"github.com/Mr-Dark-debug/regionplay/internal/controller"
	"github.com/Mr-Dark-debug/regionplay/internal/database"
	"github.com/Mr-Dark-debug/regionplay/internal/eventloop"
	"github.com/Mr-Dark-debug/regionplay/internal/logger"
	"github.com/Mr-Dark-debug/regionplay/internal/metrics"
	"github.com/Mr-Dark-debug/regionplay/internal/tui"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	server := flag.String("server", "", "Compute service URL")
	dbPath := flag.String("db", "", "Path to SQLite database file")
	logFile := flag.String("log", "", "Log file")
	speed := flag.Float64("speed", 0, "Speed new playback sessions start with")
	noRestore := flag.Bool("no-restore", false, "Start empty instead of restoring the server session")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *speed > 0 {
		cfg.DefaultSpeed = *speed
	}

	// The terminal belongs to the program; logs go to a file.
	f, err := tea.LogToFile(cfg.LogFile, "")
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", cfg.LogFile, err)
	}
	defer f.Close()
	l := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: f})

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	store, err := database.NewDBService(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database at %s: %v", cfg.DBPath, err)
	}
	defer store.Close()

	sessionID := uuid.NewString()
	if err := store.StartSession(&database.Session{
		SessionID: sessionID,
		ServerURL: cfg.ServerURL,
		StartedAt: time.Now().UnixNano(),
	}); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	l = l.With("session", sessionID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := eventloop.NewRunner(0)
	recorder := database.NewRecorder(store, database.DefaultRecorderConfig(), l)
	bridge := tui.NewBridge()

	ws := controller.New(controller.Config{
		Remote: compute.New(cfg.ServerURL,
			compute.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
			compute.WithLogger(l)),
		Loop:         runner,
		Context:      ctx,
		Timeout:      cfg.RequestTimeout,
		Logger:       l,
		Observer:     bridge,
		Journal:      recorder,
		Pending:      store,
		SessionID:    sessionID,
		DefaultSpeed: cfg.DefaultSpeed,
	})
	bridge.Bind(ws)

	model := tui.NewModel(func(fn func(ws *controller.Workspace) error) error {
		var ferr error
		if err := runner.Do(ctx, func() { ferr = fn(ws) }); err != nil {
			return err
		}
		return ferr
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.SetSender(p.Send)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return recorder.Run(gctx) })
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(gctx, cfg.MetricsAddr); err != nil {
				l.Error("metrics_server_failed", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
	}

	runner.Post(func() {
		bridge.Refresh()
		if !*noRestore {
			ws.Restore()
		}
	})
	l.Info("tui_started", "server", cfg.ServerURL, "db", cfg.DBPath)

	_, runErr := p.Run()

	if err := runner.Do(context.Background(), ws.Close); err != nil {
		l.Warn("workspace_close_failed", "err", err)
	}
	settleCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	if err := ws.Settle(settleCtx); err != nil {
		l.Warn("manage_calls_unsettled", "err", err)
	}
	cancel()
	stopLoop()
	if err := g.Wait(); err != nil {
		l.Error("shutdown_failed", "err", err)
	}
	if err := store.EndSession(sessionID, time.Now().UnixNano()); err != nil {
		l.Error("session_end_failed", "err", err)
	}
	l.Info("tui_stopped")

	if runErr != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", runErr)
		os.Exit(1)
	}
}
