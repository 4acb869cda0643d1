package tui

import (
	"fmt"
	"strings"

	"github.com/Mr-Dark-debug/regionplay/internal/geoimport"
	"github.com/Mr-Dark-debug/regionplay/internal/playback"
	"github.com/Mr-Dark-debug/regionplay/pkg/timeutil"
)

// renderDetail renders the region detail pane (right side).
func renderDetail(m *Model, width, height int) string {
	titleStyle := panelTitleDimStyle
	if m.activePane == PaneDetail {
		titleStyle = panelTitleStyle
	}
	title := titleStyle.Render("Detail")

	r, ok := m.current()
	if !ok {
		return title + "\n\n" + emptyStateStyle.Render("Select a region to view details.")
	}

	lines := []string{title, ""}

	// ── Metadata ──

	lines = append(lines, detailRow("ID", shortID(r.ID, 24)))
	lines = append(lines, detailRow("Kind", computationLabel(r)))
	if r.Computation != "" {
		lines = append(lines, detailRow("Computation", r.Computation))
	}
	lines = append(lines, detailRow("Fill", swatch(r.FillColor, " "+r.FillColor+" ")))
	lines = append(lines, detailRow("Visible", fmt.Sprintf("%t", r.Visible)))
	lines = append(lines, detailRow("Selected", fmt.Sprintf("%t", r.Selected)))

	// ── Geometry ──

	lines = append(lines, "")
	lines = append(lines, detailSectionStyle.Render("Geometry"))
	lines = append(lines, detailRow("Rings", fmt.Sprintf("%d", len(r.Geometry))))
	lines = append(lines, detailRow("Vertices", fmt.Sprintf("%d", r.Geometry.Vertices())))
	if r.Geometry.Vertices() > 0 {
		b := geoimport.Bound(r.Geometry)
		lines = append(lines, detailRow("Lat", fmt.Sprintf("%.5f .. %.5f", b.Min.Lat(), b.Max.Lat())))
		lines = append(lines, detailRow("Lng", fmt.Sprintf("%.5f .. %.5f", b.Min.Lon(), b.Max.Lon())))
	}

	// ── Playback ──

	if st, ok := m.status(r.ID); ok {
		lines = append(lines, "")
		lines = append(lines, detailSectionStyle.Render("Playback"))
		lines = append(lines, detailRow("State", stateLabel(st.State)))
		lines = append(lines, detailRow("Time", timeutil.Position(st.CurrentTime, st.StartTime, st.EndTime)))
		lines = append(lines, detailRow("Speed", fmt.Sprintf("%s (every %s)",
			timeutil.Speed(st.EffectiveSpeed), st.Interval)))
		mode := "single frame"
		if !st.SingleFrame {
			mode = "multi frame"
		}
		lines = append(lines, detailRow("Mode", mode))
		lines = append(lines, detailRow("Loop", fmt.Sprintf("%t", st.Loop)))
		if st.InFlight > 0 {
			lines = append(lines, detailRow("In flight", fmt.Sprintf("%d", st.InFlight)))
		}

		barWidth := width - 6
		if barWidth > 50 {
			barWidth = 50
		}
		if bar := renderProgress(st, barWidth); bar != "" {
			lines = append(lines, bar)
		}
		if m.snap.GroupActive {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("group of %d sessions", len(m.snap.Sessions))))
		}
	}

	if len(lines) > height && height > 0 {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

// renderDetailPanel wraps detail in a styled panel.
func renderDetailPanel(m *Model, width, height int) string {
	content := renderDetail(m, width-4, height-2)

	style := panelStyle
	if m.activePane == PaneDetail {
		style = panelActiveStyle
	}
	return style.Width(width).Height(height).Render(content)
}

// ── helpers ──

func detailRow(label, value string) string {
	return detailLabelStyle.Render(label) + "  " + detailValueStyle.Render(value)
}

func stateLabel(s playback.State) string {
	switch s {
	case playback.Playing:
		return statePlayingStyle.Render(s.String())
	case playback.Paused:
		return statePausedStyle.Render(s.String())
	}
	return stateStoppedStyle.Render(s.String())
}

// renderProgress draws the time slider of a session.
func renderProgress(st playback.Status, barWidth int) string {
	span := st.EndTime - st.StartTime
	if barWidth < 4 {
		return ""
	}
	filled := barWidth
	if span > 0 {
		filled = barWidth * clamp(st.CurrentTime-st.StartTime, 0, span) / span
	}
	return progressFilledStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
}
