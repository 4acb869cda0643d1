// regionplay CLI: headless access to the compute service session and the
// local journal.
//
// Usage:
//
//	regionplay <command> [flags]
//
// Commands:
//
//	restore   Print the regions held by the server session
//	import    Add the polygons of a GeoJSON file to the session
//	clear     Clear the server session
//	play      Play 3D regions of the restored session
//	history   List journaled sessions, events and frames
//	report    Analyse a journaled session
//	resend    Deliver journaled manage_region calls
//	version   Print version information
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Mr-Dark-debug/regionplay/internal/analysis"
	"github.com/Mr-Dark-debug/regionplay/internal/config"
	"github.com/Mr-Dark-debug/regionplay/internal/controller"
	"github.com/Mr-Dark-debug/regionplay/internal/database"
	"github.com/Mr-Dark-debug/regionplay/internal/geoimport"
	"github.com/Mr-Dark-debug/regionplay/internal/logger"
	"github.com/Mr-Dark-debug/regionplay/internal/metrics"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
	"github.com/Mr-Dark-debug/regionplay/pkg/jsonutil"
	"github.com/Mr-Dark-debug/regionplay/pkg/timeutil"
)

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "restore":
		cmdRestore()
	case "import":
		cmdImport()
	case "clear":
		cmdClear()
	case "play":
		cmdPlay()
	case "history":
		cmdHistory()
	case "report":
		cmdReport()
	case "resend":
		cmdResend()
	case "version":
		fmt.Printf("regionplay v%s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`regionplay: draw, combine and play back map regions

Usage:
  regionplay <command> [flags]

Commands:
  restore    Print the regions held by the server session
  import     Add the polygons of a GeoJSON file to the session
  clear      Clear the server session
  play       Play 3D regions of the restored session
  history    List journaled sessions, events and frames
  report     Analyse a journaled session
  resend     Deliver journaled manage_region calls
  version    Print version information

Settings come from the environment (SERVER_URL, DB_PATH, LOG_LEVEL, ...)
or a .env file. Run 'regionplay <command> --help' for command flags.`)
}

// common holds the flags every command shares. Set flags win over the
// environment.
type common struct {
	envFile *string
	server  *string
	db      *string
}

func commonFlags(fs *flag.FlagSet) *common {
	return &common{
		envFile: fs.String("env", ".env", "Path to an optional .env file"),
		server:  fs.String("server", "", "Compute service URL (overrides SERVER_URL)"),
		db:      fs.String("db", "", "Path to SQLite database (overrides DB_PATH)"),
	}
}

// load reads the config and sets up logging to stderr.
func (c *common) load() (*config.Config, *slog.Logger) {
	cfg, err := config.Load(*c.envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *c.server != "" {
		cfg.ServerURL = *c.server
	}
	if *c.db != "" {
		cfg.DBPath = *c.db
	}
	l := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, l
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// restoreInto loads the server session into the workspace.
func restoreInto(ctx context.Context, h *headless) error {
	if err := h.do(ctx, func(ws *controller.Workspace) { ws.Restore() }); err != nil {
		return err
	}
	_, err := h.await(ctx, controller.ActionRestore)
	return err
}

// restoredRow is the printed form of a region.
type restoredRow struct {
	ID          string `json:"id"`
	Computation string `json:"computation,omitempty"`
	Rings       int    `json:"rings"`
	Vertices    int    `json:"vertices"`
	Visible     bool   `json:"visible"`
	Is3D        bool   `json:"is_3d"`
	StartTime   int    `json:"start_time,omitempty"`
	EndTime     int    `json:"end_time,omitempty"`
	Frame       string `json:"frame,omitempty"`
}

func rowOf(r region.Region) restoredRow {
	return restoredRow{
		ID:          r.ID,
		Computation: r.Computation,
		Rings:       len(r.Geometry),
		Vertices:    r.Geometry.Vertices(),
		Visible:     r.Visible,
		Is3D:        r.Is3D,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Frame:       r.InterpolatedRegionID,
	}
}

// cmdRestore prints what the server session holds.
func cmdRestore() {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	c := commonFlags(fs)
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(os.Args[2:])
	cfg, l := c.load()

	ctx, cancel := signalContext()
	defer cancel()

	h, err := startHeadless(ctx, cfg, l)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer h.close(context.Background())

	if err := restoreInto(ctx, h); err != nil {
		l.Error("restore_failed", "err", err)
		return
	}
	var regions []region.Region
	h.do(ctx, func(ws *controller.Workspace) { regions = ws.Regions() })

	rows := make([]restoredRow, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, rowOf(r))
	}

	switch *format {
	case "json":
		jsonutil.Write(os.Stdout, rows)
	case "table":
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCOMPUTATION\tRINGS\tVERTICES\tVISIBLE\tTIME")
		for _, r := range rows {
			span := "-"
			if r.Is3D {
				span = fmt.Sprintf("%d..%d", r.StartTime, r.EndTime)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%s\n",
				r.ID, orDash(r.Computation), r.Rings, r.Vertices, r.Visible, span)
		}
		tw.Flush()
	default:
		fmt.Fprintf(os.Stderr, "Unknown format: %s\n", *format)
		os.Exit(1)
	}
}

// cmdImport adds every polygon of a GeoJSON file to the server session.
func cmdImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	c := commonFlags(fs)
	file := fs.String("file", "", "GeoJSON file to import (required)")
	restore := fs.Bool("restore", true, "Restore the server session first")
	fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		fs.Usage()
		os.Exit(1)
	}
	cfg, l := c.load()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *file, err)
	}
	shapes, err := geoimport.Read(f)
	f.Close()
	if err != nil {
		log.Fatalf("Failed to parse %s: %v", *file, err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	h, err := startHeadless(ctx, cfg, l)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer h.close(context.Background())

	if *restore {
		if err := restoreInto(ctx, h); err != nil {
			l.Warn("restore_failed", "err", err)
		}
	}

	var (
		ids  []string
		ierr error
	)
	if err := h.do(ctx, func(ws *controller.Workspace) { ids, ierr = ws.Import(shapes) }); err != nil {
		ierr = err
	}
	if err := ierr; err != nil {
		l.Error("import_failed", "file", *file, "err", err)
		return
	}
	fmt.Printf("Imported %d region(s) from %s\n", len(ids), *file)
	for i, id := range ids {
		if name := shapes[i].Name(); name != "" {
			fmt.Printf("  %s  %s\n", id, name)
		}
	}
}

// cmdClear empties the server session.
func cmdClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	c := commonFlags(fs)
	fs.Parse(os.Args[2:])
	cfg, l := c.load()

	ctx, cancel := signalContext()
	defer cancel()

	h, err := startHeadless(ctx, cfg, l)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer h.close(context.Background())

	if err := h.do(ctx, func(ws *controller.Workspace) { ws.ClearAll() }); err != nil {
		l.Error("clear_failed", "err", err)
		return
	}
	if _, err := h.await(ctx, controller.ActionClear); err != nil {
		l.Error("clear_failed", "err", err)
		return
	}
	fmt.Println("Session cleared")
}

// cmdPlay restores the server session and plays its 3D regions until they
// stop or the process is interrupted.
func cmdPlay() {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	c := commonFlags(fs)
	regionID := fs.String("region", "", "3D region to play (default: every 3D region)")
	speed := fs.Float64("speed", 0, "Playback speed, 0.25 to 4 (0 keeps the default)")
	loop := fs.Bool("loop", false, "Loop back to the start time")
	multi := fs.Bool("multi", false, "Keep every frame instead of only the latest")
	metricsAddr := fs.String("metrics", "", "Serve /metrics on this address (overrides METRICS_ADDR)")
	quiet := fs.Bool("quiet", false, "Do not print playback progress")
	fs.Parse(os.Args[2:])
	cfg, l := c.load()
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				l.Error("metrics_server_failed", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
	}

	h, err := startHeadless(ctx, cfg, l)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer h.close(context.Background())
	h.obs.verbose = !*quiet

	if err := restoreInto(ctx, h); err != nil {
		l.Error("restore_failed", "err", err)
		return
	}

	var perr error
	if err := h.do(ctx, func(ws *controller.Workspace) {
		perr = startPlayback(ws, *regionID, *speed, *loop, !*multi)
	}); err != nil {
		perr = err
	}
	if err := perr; err != nil {
		l.Error("play_failed", "err", err)
		return
	}

	select {
	case <-h.obs.idle:
		l.Info("playback_finished")
	case <-ctx.Done():
		l.Info("playback_interrupted")
	}
}

var errNothingToPlay = errors.New("no 3D region in the session")

// startPlayback runs on the loop.
func startPlayback(ws *controller.Workspace, id string, speed float64, loop, single bool) error {
	var ids []string
	if id != "" {
		ids = []string{id}
	} else {
		for _, r := range ws.Regions() {
			if r.Is3D {
				ids = append(ids, r.ID)
			}
		}
	}
	if len(ids) == 0 {
		return errNothingToPlay
	}

	for _, id := range ids {
		if err := ws.SetLoop(id, loop); err != nil {
			return err
		}
		if err := ws.SetSingleFrame(id, single); err != nil {
			return err
		}
	}
	if len(ids) > 1 {
		return ws.PlayAll(speed)
	}
	if speed > 0 {
		if err := ws.SetSpeed(ids[0], speed); err != nil {
			return err
		}
	}
	return ws.Play(ids[0])
}

// cmdHistory lists journaled sessions, or the events and frames of one.
func cmdHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	c := commonFlags(fs)
	sessionID := fs.String("session", "", "Show events and frames of one session")
	regionID := fs.String("region", "", "With --session, only frames of this region")
	limit := fs.Int("limit", 20, "Maximum sessions")
	since := fs.Duration("since", 0, "Only sessions started within this duration")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(os.Args[2:])
	cfg, _ := c.load()

	store, err := openStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()
	now := time.Now()

	if *sessionID == "" {
		filter := database.SessionFilter{Limit: *limit}
		if *since > 0 {
			s := now.Add(-*since).UnixNano()
			filter.Since = &s
		}
		sessions, err := store.QuerySessions(filter)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		if *format == "json" {
			jsonutil.Write(os.Stdout, sessions)
			return
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tSERVER\tSTARTED\tDURATION")
		for _, s := range sessions {
			dur := "running"
			if s.EndedAt != nil {
				dur = time.Duration(*s.EndedAt - s.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s (%s)\t%s\n",
				s.SessionID, s.ServerURL, timeutil.Stamp(s.StartedAt), timeutil.Ago(s.StartedAt, now), dur)
		}
		tw.Flush()
		return
	}

	events, err := store.QueryRegionEvents(*sessionID)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	var regionFilter *string
	if *regionID != "" {
		regionFilter = regionID
	}
	frames, err := store.QueryFrames(*sessionID, regionFilter)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	if *format == "json" {
		jsonutil.Write(os.Stdout, map[string]any{"events": events, "frames": frames})
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tREGION\tCOMPUTATION\tVERTICES")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			timeutil.Clock(ev.Timestamp), ev.Kind, ev.RegionID, orDash(ev.Computation), ev.Vertices)
	}
	tw.Flush()
	fmt.Println()

	tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREGION\tSEQ\tT\tRESULT\tLATENCY")
	for _, f := range frames {
		result := f.Result
		if f.ErrorMessage != nil {
			result += ": " + jsonutil.Truncate(*f.ErrorMessage, 40)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			timeutil.Clock(f.Timestamp), f.RegionID, f.Seq, f.TimeIndex, result, timeutil.Latency(f.LatencyMs))
	}
	tw.Flush()
}

// cmdReport runs the session analysis and prints a report.
func cmdReport() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	c := commonFlags(fs)
	sessionID := fs.String("session", "", "Session to analyse (default: latest)")
	outputFormat := fs.String("format", "markdown", "Output format: markdown, json")
	fs.Parse(os.Args[2:])
	cfg, _ := c.load()

	store, err := openStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	id := *sessionID
	if id == "" {
		latest, err := store.QuerySessions(database.SessionFilter{Limit: 1})
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		if len(latest) == 0 {
			fmt.Fprintln(os.Stderr, "No journaled sessions")
			os.Exit(1)
		}
		id = latest[0].SessionID
	}

	report, err := analysis.NewAnalyzer(store).FullAnalysis(id, time.Now())
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	switch *outputFormat {
	case "json":
		jsonutil.Write(os.Stdout, report)
	case "markdown":
		fmt.Print(analysis.FormatReport(report))
	default:
		fmt.Fprintf(os.Stderr, "Unknown format: %s\n", *outputFormat)
		os.Exit(1)
	}
}

// cmdResend delivers manage_region calls that failed in earlier sessions.
func cmdResend() {
	fs := flag.NewFlagSet("resend", flag.ExitOnError)
	c := commonFlags(fs)
	list := fs.Bool("list", false, "Only list pending calls")
	full := fs.Bool("full", false, "With --list, print each payload in full")
	fs.Parse(os.Args[2:])
	cfg, l := c.load()

	store, err := openStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	if *list {
		pending, err := store.GetPendingManage()
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		if *full {
			for _, p := range pending {
				fmt.Printf("#%d  session %s  %s  attempts %d\n%s\n\n",
					p.WriteID, p.SessionID, timeutil.Stamp(p.CreatedAt), p.Attempts, jsonutil.Pretty(p.Payload))
			}
			return
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSESSION\tCREATED\tATTEMPTS\tPAYLOAD")
		for _, p := range pending {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
				p.WriteID, p.SessionID, timeutil.Stamp(p.CreatedAt), p.Attempts,
				jsonutil.Truncate(jsonutil.Compact(p.Payload), 60))
		}
		tw.Flush()
		return
	}

	ctx, cancel := signalContext()
	defer cancel()

	rep, err := controller.Resend(ctx, store, newClient(cfg, l), l)
	if err != nil {
		log.Fatalf("Resend failed: %v", err)
	}
	fmt.Printf("Sent %d, failed %d, skipped %d\n", rep.Sent, rep.Failed, rep.Skipped)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
