package tui

import (
	"fmt"
	"strings"
)

// renderRegionList renders the region list in the left pane.
func renderRegionList(m *Model, width, height int) string {
	titleStyle := panelTitleDimStyle
	if m.activePane == PaneRegions {
		titleStyle = panelTitleStyle
	}

	title := titleStyle.Render("Regions")
	if n := len(m.snap.Regions); n > 0 {
		title += dimStyle.Render(fmt.Sprintf("  %d total  %d selected", n, len(m.snap.Selected)))
	}

	if len(m.tree) == 0 {
		return title + "\n\n" +
			emptyStateStyle.Render("No regions.\n\nPress r to restore the server session\nor i to import a GeoJSON file.")
	}

	lines := []string{title, ""}
	contentHeight := height - 2
	if contentHeight < 1 {
		contentHeight = 1
	}

	// Scroll so the cursor is visible
	scrollStart := 0
	if m.cursor >= contentHeight {
		scrollStart = m.cursor - contentHeight + 1
	}
	end := scrollStart + contentHeight
	if end > len(m.tree) {
		end = len(m.tree)
	}

	for i := scrollStart; i < end; i++ {
		node := m.tree[i]
		r := node.region

		indent := ""
		if node.depth > 0 {
			indent = treeBranchStyle.Render("  └─") + " "
		}

		mark := regionUnselectedMark
		if r.Selected {
			mark = regionSelectedMark
		}

		label := computationLabel(r)
		if r.Is3D {
			if st, ok := m.status(r.ID); ok {
				label = badge3DStyle.Render(fmt.Sprintf("3D %s t=%d", st.State, st.CurrentTime))
			} else {
				label = badge3DStyle.Render(label)
			}
		}

		name := truncate(shortID(r.ID, 8), width-node.depth*4-24)
		line := fmt.Sprintf("%s%s %s %s %s", indent, mark, swatch(r.FillColor, "  "), name, label)

		switch {
		case i == m.cursor:
			line = regionCursorStyle.Width(width).Render(line)
		case !r.Visible:
			line = regionHiddenStyle.Render(line + " (hidden)")
		default:
			line = regionNormalStyle.Render(line)
		}
		lines = append(lines, line)
	}

	if len(m.tree) > contentHeight {
		lines = append(lines, dimStyle.Render(fmt.Sprintf(" %d/%d", m.cursor+1, len(m.tree))))
	}

	return strings.Join(lines, "\n")
}

// renderRegionPanel wraps the region list in a styled panel.
func renderRegionPanel(m *Model, width, height int) string {
	content := renderRegionList(m, width-4, height-2)

	style := panelStyle
	if m.activePane == PaneRegions {
		style = panelActiveStyle
	}
	return style.Width(width).Height(height).Render(content)
}
