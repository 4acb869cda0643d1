// Package analysis builds deterministic reports over a journaled session:
// what was computed, how playback frames fared, and whether the region
// count kept growing while playing.
//
// Key capabilities:
//   - Region counts per computation label
//   - Frame outcome and latency statistics per 3D region
//   - Latency hotspot detection via Z-score analysis
//   - Region growth trend via linear regression (frame leak check)
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Mr-Dark-debug/regionplay/internal/database"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
	"github.com/Mr-Dark-debug/regionplay/pkg/timeutil"
)

// Source is the journal side an Analyzer reads.
type Source interface {
	QueryRegionEvents(sessionID string) ([]*database.RegionEvent, error)
	QueryFrames(sessionID string, regionID *string) ([]*database.FrameRecord, error)
	GetSessionStats(sessionID string) (*database.SessionStats, error)
}

// Analyzer performs analysis on journaled sessions.
type Analyzer struct {
	store Source
}

// NewAnalyzer creates a new analysis engine backed by the given store.
func NewAnalyzer(store Source) *Analyzer {
	return &Analyzer{store: store}
}

// ============================================================
// Computations
// ============================================================

// ComputationCount is how many regions of one kind were added.
type ComputationCount struct {
	Computation string `json:"computation"`
	Added       int    `json:"added"`
}

// drawnLabel names regions without a computation label in reports.
const drawnLabel = "Drawn"

// CountComputations tallies added regions per computation label, most
// frequent first.
func (a *Analyzer) CountComputations(sessionID string) ([]ComputationCount, error) {
	events, err := a.store.QueryRegionEvents(sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying region events for computation counts: %w", err)
	}

	counts := make(map[string]int)
	for _, ev := range events {
		if ev.Kind != "added" {
			continue
		}
		label := ev.Computation
		if label == region.ComputationNone {
			label = drawnLabel
		}
		counts[label]++
	}

	out := make([]ComputationCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, ComputationCount{Computation: label, Added: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Added != out[j].Added {
			return out[i].Added > out[j].Added
		}
		return out[i].Computation < out[j].Computation
	})
	return out, nil
}

// ============================================================
// Frame Statistics
// ============================================================

// FrameSummary aggregates the frame outcomes of one 3D region.
type FrameSummary struct {
	RegionID   string  `json:"region_id"`
	Applied    int     `json:"applied"`
	Stale      int     `json:"stale"`
	Failed     int     `json:"failed"`
	StaleRatio float64 `json:"stale_ratio"`
	P50Ms      int64   `json:"p50_ms"`
	P95Ms      int64   `json:"p95_ms"`
	MaxMs      int64   `json:"max_ms"`
}

// SummarizeFrames groups frame outcomes by 3D region, sorted by region id.
// Latency percentiles cover answered requests (applied and stale).
func (a *Analyzer) SummarizeFrames(sessionID string) ([]FrameSummary, error) {
	frames, err := a.store.QueryFrames(sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("querying frames for summary: %w", err)
	}

	byRegion := make(map[string]*FrameSummary)
	latencies := make(map[string][]int64)
	for _, f := range frames {
		s, ok := byRegion[f.RegionID]
		if !ok {
			s = &FrameSummary{RegionID: f.RegionID}
			byRegion[f.RegionID] = s
		}
		switch f.Result {
		case database.FrameApplied:
			s.Applied++
		case database.FrameStale:
			s.Stale++
		case database.FrameFailed:
			s.Failed++
			continue
		}
		latencies[f.RegionID] = append(latencies[f.RegionID], f.LatencyMs)
	}

	out := make([]FrameSummary, 0, len(byRegion))
	for id, s := range byRegion {
		if total := s.Applied + s.Stale + s.Failed; total > 0 {
			s.StaleRatio = math.Round(float64(s.Stale)/float64(total)*1000) / 1000
		}
		ls := latencies[id]
		sort.Slice(ls, func(i, j int) bool { return ls[i] < ls[j] })
		s.P50Ms = percentile(ls, 0.50)
		s.P95Ms = percentile(ls, 0.95)
		if len(ls) > 0 {
			s.MaxMs = ls[len(ls)-1]
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegionID < out[j].RegionID })
	return out, nil
}

// percentile returns the nearest-rank percentile of sorted values.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}

// ============================================================
// Latency Hotspot Detection
// ============================================================

// LatencyHotspot identifies a frame request with abnormally high latency.
type LatencyHotspot struct {
	RegionID  string  `json:"region_id"`
	Seq       uint64  `json:"seq"`
	TimeIndex int     `json:"time_index"`
	LatencyMs int64   `json:"latency_ms"`
	ZScore    float64 `json:"z_score"`
	Severity  string  `json:"severity"` // "low", "medium", "high"
}

// DetectLatencyHotspots calculates the Z-score of frame latency across all
// answered requests of a session.
//
// A Z-score > 2.0 is a "medium" hotspot, > 3.0 a "high" one.
func (a *Analyzer) DetectLatencyHotspots(sessionID string) ([]LatencyHotspot, error) {
	frames, err := a.store.QueryFrames(sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("querying frames for hotspot analysis: %w", err)
	}

	var answered []*database.FrameRecord
	for _, f := range frames {
		if f.Result != database.FrameFailed {
			answered = append(answered, f)
		}
	}
	if len(answered) < 2 {
		return nil, nil
	}

	var sum, sumSq float64
	for _, f := range answered {
		v := float64(f.LatencyMs)
		sum += v
		sumSq += v * v
	}
	n := float64(len(answered))
	mean := sum / n
	stddev := math.Sqrt(sumSq/n - mean*mean)
	if stddev == 0 || math.IsNaN(stddev) {
		return nil, nil
	}

	var hotspots []LatencyHotspot
	for _, f := range answered {
		z := (float64(f.LatencyMs) - mean) / stddev
		if z <= 1.5 {
			continue
		}
		severity := "low"
		if z > 3.0 {
			severity = "high"
		} else if z > 2.0 {
			severity = "medium"
		}
		hotspots = append(hotspots, LatencyHotspot{
			RegionID:  f.RegionID,
			Seq:       f.Seq,
			TimeIndex: f.TimeIndex,
			LatencyMs: f.LatencyMs,
			ZScore:    math.Round(z*100) / 100,
			Severity:  severity,
		})
	}

	sort.Slice(hotspots, func(i, j int) bool {
		return hotspots[i].ZScore > hotspots[j].ZScore
	})
	return hotspots, nil
}

// ============================================================
// Region Growth Analysis
// ============================================================

// GrowthReport describes how the number of live regions evolved.
type GrowthReport struct {
	FinalRegions int     `json:"final_regions"`
	PeakRegions  int     `json:"peak_regions"`
	TotalEvents  int     `json:"total_events"`
	Slope        float64 `json:"slope"` // regions per second
	RSquared     float64 `json:"r_squared"`
	IsUnbounded  bool    `json:"is_unbounded"`
}

// dataPoint is one observation of the live region count.
type dataPoint struct {
	seconds float64 // since the first event
	count   float64
}

// AnalyzeGrowth fits a line through the live region count over time. A
// steep, well-fitting slope during playback means frames are not being
// removed.
func (a *Analyzer) AnalyzeGrowth(sessionID string) (*GrowthReport, error) {
	events, err := a.store.QueryRegionEvents(sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying region events for growth analysis: %w", err)
	}

	report := &GrowthReport{}
	if len(events) == 0 {
		return report, nil
	}

	base := events[0].Timestamp
	live := 0
	var points []dataPoint
	for _, ev := range events {
		switch ev.Kind {
		case "added":
			live++
		case "removed":
			live--
		default:
			continue
		}
		report.TotalEvents++
		if live > report.PeakRegions {
			report.PeakRegions = live
		}
		points = append(points, dataPoint{
			seconds: float64(ev.Timestamp-base) / 1e9,
			count:   float64(live),
		})
	}
	report.FinalRegions = live

	slope, _, rSquared := linearRegression(points)
	report.Slope = math.Round(slope*1000) / 1000
	report.RSquared = math.Round(rSquared*1000) / 1000
	report.IsUnbounded = len(points) >= 4 && slope > 0.5 && rSquared > 0.7
	return report, nil
}

// linearRegression computes ordinary least squares regression.
// Returns slope (m), intercept (b), and R-squared goodness of fit.
func linearRegression(points []dataPoint) (slope, intercept, rSquared float64) {
	n := float64(len(points))
	if n < 2 {
		return 0, 0, 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range points {
		sumX += p.seconds
		sumY += p.count
		sumXY += p.seconds * p.count
		sumX2 += p.seconds * p.seconds
	}

	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for _, p := range points {
		predicted := slope*p.seconds + intercept
		ssRes += (p.count - predicted) * (p.count - predicted)
		ssTot += (p.count - meanY) * (p.count - meanY)
	}
	if ssTot == 0 {
		rSquared = 1.0
	} else {
		rSquared = 1 - ssRes/ssTot
	}
	return slope, intercept, rSquared
}

// ============================================================
// Full Report
// ============================================================

// Report is the complete output of `regionplay report`.
type Report struct {
	SessionID    string                 `json:"session_id"`
	GeneratedAt  string                 `json:"generated_at"`
	Stats        *database.SessionStats `json:"stats"`
	Computations []ComputationCount     `json:"computations"`
	Frames       []FrameSummary         `json:"frames"`
	Hotspots     []LatencyHotspot       `json:"latency_hotspots"`
	Growth       *GrowthReport          `json:"growth"`
	Warnings     []string               `json:"warnings"`
}

// FullAnalysis runs every pass. Only the stats query is fatal; the other
// passes turn their failures into warnings.
func (a *Analyzer) FullAnalysis(sessionID string, now time.Time) (*Report, error) {
	report := &Report{
		SessionID:   sessionID,
		GeneratedAt: now.Format(time.RFC3339),
	}

	stats, err := a.store.GetSessionStats(sessionID)
	if err != nil {
		return nil, fmt.Errorf("gathering session stats: %w", err)
	}
	report.Stats = stats

	if report.Computations, err = a.CountComputations(sessionID); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Computation count failed: %v", err))
	}
	if report.Frames, err = a.SummarizeFrames(sessionID); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Frame summary failed: %v", err))
	}
	if report.Hotspots, err = a.DetectLatencyHotspots(sessionID); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Latency hotspot analysis failed: %v", err))
	}
	if report.Growth, err = a.AnalyzeGrowth(sessionID); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Growth analysis failed: %v", err))
	}

	if report.Growth != nil && report.Growth.IsUnbounded {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("UNBOUNDED REGION GROWTH (slope=%.3f regions/sec, R²=%.3f). Frames may not be removed.",
				report.Growth.Slope, report.Growth.RSquared))
	}
	for _, f := range report.Frames {
		if f.StaleRatio > 0.5 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("HIGH STALE RATIO on %s: %.0f%% of frames discarded. Consider a lower speed.",
					f.RegionID, f.StaleRatio*100))
		}
	}
	for _, h := range report.Hotspots {
		if h.Severity == "high" {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("LATENCY HOTSPOT: %s t=%d took %s (Z-score: %.2f).",
					h.RegionID, h.TimeIndex, timeutil.Latency(h.LatencyMs), h.ZScore))
		}
	}
	if stats.PendingManage > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d manage_region call(s) not delivered. Run `regionplay resend`.", stats.PendingManage))
	}
	return report, nil
}

// FormatReport generates a human-readable markdown report.
func FormatReport(report *Report) string {
	var b strings.Builder

	b.WriteString("# Session Report\n\n")
	fmt.Fprintf(&b, "**Session ID:** `%s`\n", report.SessionID)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", report.GeneratedAt)

	if s := report.Stats; s != nil {
		b.WriteString("## Summary\n\n")
		b.WriteString("| Metric | Value |\n")
		b.WriteString("|--------|-------|\n")
		fmt.Fprintf(&b, "| Region Events | %d |\n", s.RegionEvents)
		fmt.Fprintf(&b, "| Regions Added | %d |\n", s.RegionsAdded)
		fmt.Fprintf(&b, "| Regions Removed | %d |\n", s.RegionsRemoved)
		fmt.Fprintf(&b, "| 3D Regions | %d |\n", s.Envelopes)
		fmt.Fprintf(&b, "| Frames Applied | %d |\n", s.FramesApplied)
		fmt.Fprintf(&b, "| Frames Discarded | %d |\n", s.FramesStale)
		fmt.Fprintf(&b, "| Frames Failed | %d |\n", s.FramesFailed)
		fmt.Fprintf(&b, "| Avg Frame Latency | %s |\n", timeutil.Latency(int64(math.Round(s.AvgLatencyMs))))
		fmt.Fprintf(&b, "| Pending Manage Calls | %d |\n\n", s.PendingManage)
	}

	if len(report.Computations) > 0 {
		b.WriteString("## Computations\n\n")
		b.WriteString("| Computation | Added |\n")
		b.WriteString("|-------------|-------|\n")
		for _, c := range report.Computations {
			fmt.Fprintf(&b, "| %s | %d |\n", c.Computation, c.Added)
		}
		b.WriteString("\n")
	}

	if len(report.Frames) > 0 {
		b.WriteString("## Playback\n\n")
		b.WriteString("| Region | Applied | Stale | Failed | Stale % | p50 | p95 | max |\n")
		b.WriteString("|--------|---------|-------|--------|---------|-----|-----|-----|\n")
		for _, f := range report.Frames {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %.1f%% | %s | %s | %s |\n",
				f.RegionID, f.Applied, f.Stale, f.Failed, f.StaleRatio*100,
				timeutil.Latency(f.P50Ms), timeutil.Latency(f.P95Ms), timeutil.Latency(f.MaxMs))
		}
		b.WriteString("\n")
	}

	if len(report.Hotspots) > 0 {
		b.WriteString("## Latency Hotspots\n\n")
		b.WriteString("| Region | Time | Latency | Z-Score | Severity |\n")
		b.WriteString("|--------|------|---------|---------|----------|\n")
		for _, h := range report.Hotspots {
			fmt.Fprintf(&b, "| %s | %d | %s | %.2f | %s |\n",
				h.RegionID, h.TimeIndex, timeutil.Latency(h.LatencyMs), h.ZScore, h.Severity)
		}
		b.WriteString("\n")
	}

	if g := report.Growth; g != nil {
		b.WriteString("## Region Growth\n\n")
		fmt.Fprintf(&b, "- **Live Regions:** %d (peak %d)\n", g.FinalRegions, g.PeakRegions)
		fmt.Fprintf(&b, "- **Add/Remove Events:** %d\n", g.TotalEvents)
		fmt.Fprintf(&b, "- **Slope:** %.3f regions/sec\n", g.Slope)
		fmt.Fprintf(&b, "- **R² Fit:** %.3f\n", g.RSquared)
		b.WriteString("\n")
	}

	if len(report.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}
