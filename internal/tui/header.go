package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/regionplay/internal/playback"
)

// renderHeader produces the top bar:
//
//	REGIONPLAY | session 3f2a1c | 4 regions | 2 playing | GROUP
func renderHeader(m *Model) string {
	sep := headerSepStyle.Render(" │ ")

	parts := []string{headerBrandStyle.Render("REGIONPLAY")}
	if m.snap.SessionID != "" {
		parts = append(parts, sep, headerMetaStyle.Render("session "+shortID(m.snap.SessionID, 8)))
	}
	parts = append(parts, sep, headerMetaStyle.Render(fmt.Sprintf("%d regions", len(m.snap.Regions))))

	playing := 0
	for _, st := range m.snap.Sessions {
		if st.State == playback.Playing {
			playing++
		}
	}
	if len(m.snap.Sessions) > 0 {
		parts = append(parts, sep, headerMetaStyle.Render(
			fmt.Sprintf("%d/%d playing", playing, len(m.snap.Sessions))))
	}
	if m.snap.GroupActive {
		parts = append(parts, sep, headerGroupStyle.Render("GROUP"))
	}

	return headerBarStyle.Width(m.width).Render(strings.Join(parts, ""))
}

// renderFooter produces the bottom status bar with keyboard hints.
func renderFooter(m *Model) string {
	var left, right string

	if m.prompt != promptNone {
		cursor := promptCursorStyle.Render(" ")
		left = promptBarStyle.Render(fmt.Sprintf("%s %s%s", m.prompt.label(), m.input, cursor))
		right = renderHints([]hint{
			{"enter", "ok"},
			{"esc", "cancel"},
		})
	} else {
		if m.statusMsg != "" {
			left = statusStyle.Render(m.statusMsg)
		}
		hints := []hint{
			{"↑↓", "move"},
			{"space", "select"},
			{"n/u/f/c", "ops"},
			{"t", "interp"},
			{"p", "play"},
		}
		if m.snap.GroupActive {
			hints = append(hints, hint{"P/V/S", "group"})
		}
		hints = append(hints, hint{"?", "keys"}, hint{"q", "quit"})
		right = renderHints(hints)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	bar := left + strings.Repeat(" ", gap) + right
	return lipgloss.NewStyle().
		Background(colorBgSurface).
		Width(m.width).
		Render(bar)
}

type hint struct {
	key  string
	desc string
}

func renderHints(hints []hint) string {
	var parts []string
	for _, h := range hints {
		parts = append(parts, hintKeyStyle.Render(h.key)+" "+hintDescStyle.Render(h.desc))
	}
	return strings.Join(parts, hintDescStyle.Render("  "))
}
