package analysis

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Mr-Dark-debug/regionplay/internal/database"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

func TestLinearRegression(t *testing.T) {
	// Perfect linear: y = 2x + 1
	points := []dataPoint{
		{0, 1}, {1, 3}, {2, 5}, {3, 7}, {4, 9},
	}

	slope, intercept, rSquared := linearRegression(points)

	if math.Abs(slope-2.0) > 0.001 {
		t.Errorf("expected slope=2.0, got %.3f", slope)
	}
	if math.Abs(intercept-1.0) > 0.001 {
		t.Errorf("expected intercept=1.0, got %.3f", intercept)
	}
	if math.Abs(rSquared-1.0) > 0.001 {
		t.Errorf("expected R²=1.0, got %.3f", rSquared)
	}
}

func TestLinearRegressionFlat(t *testing.T) {
	points := []dataPoint{{0, 2}, {1, 2}, {2, 2}, {3, 2}}

	slope, intercept, rSquared := linearRegression(points)

	if math.Abs(slope) > 0.001 || math.Abs(intercept-2.0) > 0.001 {
		t.Errorf("expected flat line at 2, got slope=%.3f intercept=%.3f", slope, intercept)
	}
	if rSquared < 0.99 {
		t.Errorf("expected R²=1.0, got %.3f", rSquared)
	}
	if s, _, _ := linearRegression(points[:1]); s != 0 {
		t.Errorf("expected slope=0 for single point, got %.3f", s)
	}
}

func TestPercentile(t *testing.T) {
	vals := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if got := percentile(vals, 0.5); got != 50 {
		t.Errorf("expected p50=50, got %d", got)
	}
	if got := percentile(vals, 0.95); got != 100 {
		t.Errorf("expected p95=100, got %d", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("expected 0 for no values, got %d", got)
	}
}

// newJournal builds an in-memory journal holding one played session.
func newJournal(t *testing.T) *database.DBService {
	t.Helper()
	store, err := database.NewDBService(":memory:")
	if err != nil {
		t.Fatalf("NewDBService failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.StartSession(&database.Session{SessionID: "s1", ServerURL: "http://x", StartedAt: 1}); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	sec := int64(time.Second)
	events := []*database.RegionEvent{
		{SessionID: "s1", RegionID: "a", Kind: "added", Timestamp: 1 * sec},
		{SessionID: "s1", RegionID: "b", Kind: "added", Timestamp: 2 * sec},
		{SessionID: "s1", RegionID: "u", Kind: "added", Computation: region.ComputationUnion, Timestamp: 3 * sec},
		{SessionID: "s1", RegionID: "env", Kind: "added", Computation: region.ComputationInterpolated, Is3D: true, Timestamp: 4 * sec},
		{SessionID: "s1", RegionID: "a", Kind: "removed", Timestamp: 5 * sec},
		{SessionID: "s1", RegionID: "u", Kind: "selected", Computation: region.ComputationUnion, Timestamp: 6 * sec},
	}
	if err := store.BatchInsertRegionEvents(events); err != nil {
		t.Fatalf("BatchInsertRegionEvents failed: %v", err)
	}

	var frames []*database.FrameRecord
	for i := 0; i < 20; i++ {
		frames = append(frames, &database.FrameRecord{
			SessionID: "s1", RegionID: "env", Seq: uint64(i + 1), TimeIndex: i,
			Single: true, Result: database.FrameApplied, LatencyMs: 20, Timestamp: int64(10+i) * sec,
		})
	}
	frames[19].LatencyMs = 900
	frames[3].Result = database.FrameStale
	frames = append(frames, &database.FrameRecord{
		SessionID: "s1", RegionID: "env", Seq: 21, TimeIndex: 0,
		Single: true, Result: database.FrameFailed, LatencyMs: 5000, Timestamp: 40 * sec,
	})
	if err := store.BatchInsertFrames(frames); err != nil {
		t.Fatalf("BatchInsertFrames failed: %v", err)
	}
	return store
}

func TestCountComputations(t *testing.T) {
	a := NewAnalyzer(newJournal(t))

	counts, err := a.CountComputations("s1")
	if err != nil {
		t.Fatalf("CountComputations failed: %v", err)
	}
	if len(counts) != 3 {
		t.Fatalf("expected 3 labels, got %+v", counts)
	}
	if counts[0].Computation != drawnLabel || counts[0].Added != 2 {
		t.Errorf("expected drawn regions first with 2, got %+v", counts[0])
	}
}

func TestSummarizeFrames(t *testing.T) {
	a := NewAnalyzer(newJournal(t))

	sums, err := a.SummarizeFrames("s1")
	if err != nil {
		t.Fatalf("SummarizeFrames failed: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("expected one 3D region, got %d", len(sums))
	}
	s := sums[0]
	if s.Applied != 19 || s.Stale != 1 || s.Failed != 1 {
		t.Errorf("unexpected outcome counts %+v", s)
	}
	if s.P50Ms != 20 || s.MaxMs != 900 {
		t.Errorf("failed requests must not count toward latency, got %+v", s)
	}
	if math.Abs(s.StaleRatio-0.048) > 0.001 {
		t.Errorf("expected stale ratio 0.048, got %.3f", s.StaleRatio)
	}
}

func TestDetectLatencyHotspots(t *testing.T) {
	a := NewAnalyzer(newJournal(t))

	hot, err := a.DetectLatencyHotspots("s1")
	if err != nil {
		t.Fatalf("DetectLatencyHotspots failed: %v", err)
	}
	if len(hot) != 1 {
		t.Fatalf("expected exactly one hotspot, got %+v", hot)
	}
	if hot[0].TimeIndex != 19 || hot[0].Severity != "high" {
		t.Errorf("unexpected hotspot %+v", hot[0])
	}
}

func TestAnalyzeGrowthIgnoresOtherEvents(t *testing.T) {
	a := NewAnalyzer(newJournal(t))

	g, err := a.AnalyzeGrowth("s1")
	if err != nil {
		t.Fatalf("AnalyzeGrowth failed: %v", err)
	}
	if g.TotalEvents != 5 || g.FinalRegions != 3 || g.PeakRegions != 4 {
		t.Errorf("unexpected growth report %+v", g)
	}
}

func TestFullAnalysisAndFormat(t *testing.T) {
	a := NewAnalyzer(newJournal(t))

	report, err := a.FullAnalysis("s1", time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("FullAnalysis failed: %v", err)
	}
	if report.Stats.FramesApplied != 19 {
		t.Errorf("expected 19 applied frames in stats, got %d", report.Stats.FramesApplied)
	}

	md := FormatReport(report)
	for _, want := range []string{"# Session Report", "`s1`", "## Playback", "## Latency Hotspots", "LATENCY HOTSPOT: env t=19"} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
