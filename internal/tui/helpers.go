package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

// ────────────────────────────────────────────────────────────
// Region tree construction
// ────────────────────────────────────────────────────────────

// regionNode is a region in the list view with its depth level.
type regionNode struct {
	region region.Region
	depth  int
}

// buildRegionTree flattens regions in insertion order, placing each linked
// frame child right under its 3D parent.
func buildRegionTree(regions []region.Region) []regionNode {
	if len(regions) == 0 {
		return nil
	}

	byID := make(map[string]region.Region, len(regions))
	linked := make(map[string]bool)
	for _, r := range regions {
		byID[r.ID] = r
		if r.HasFrame() {
			linked[r.InterpolatedRegionID] = true
		}
	}

	result := make([]regionNode, 0, len(regions))
	for _, r := range regions {
		if linked[r.ID] {
			continue
		}
		result = append(result, regionNode{region: r})
		if r.HasFrame() {
			if child, ok := byID[r.InterpolatedRegionID]; ok {
				result = append(result, regionNode{region: child, depth: 1})
			}
		}
	}
	return result
}

// ────────────────────────────────────────────────────────────
// Region rendering
// ────────────────────────────────────────────────────────────

// computationLabel names a region's origin for display.
func computationLabel(r region.Region) string {
	switch {
	case r.Is3D:
		return "3D"
	case r.Computation == region.ComputationNone:
		return "Drawn"
	case r.Computation == region.ComputationFrame:
		return "Frame"
	}
	return r.Computation
}

// swatch renders text on the region's fill color, picking dark or light
// text by the fill's lightness.
func swatch(fill, text string) string {
	c, err := colorful.Hex(fill)
	if err != nil {
		return dimStyle.Render(text)
	}
	fg := colorText
	if l, _, _ := c.Lab(); l > 0.6 {
		fg = colorBg
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(fill)).
		Foreground(fg).
		Render(text)
}

// ────────────────────────────────────────────────────────────
// String helpers
// ────────────────────────────────────────────────────────────

// truncate cuts a string to maxLen runes and appends "..." if truncated.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// shortID returns first n characters of an ID string.
func shortID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// clamp restricts val to [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
