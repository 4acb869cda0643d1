package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mr-Dark-debug/regionplay/pkg/timeutil"
)

type entryKind int

const (
	entryInfo entryKind = iota
	entryAdd
	entryRemove
	entryError
)

// journalEntry is one line of the journal pane.
type journalEntry struct {
	at   time.Time
	kind entryKind
	text string
}

// maxJournal bounds the lines kept in memory.
const maxJournal = 200

// appendJournal keeps the newest maxJournal entries.
func appendJournal(entries []journalEntry, e journalEntry) []journalEntry {
	entries = append(entries, e)
	if len(entries) > maxJournal {
		entries = entries[len(entries)-maxJournal:]
	}
	return entries
}

// renderJournal renders the newest entries first (bottom pane).
func renderJournal(m *Model, width, height int) string {
	titleStyle := panelTitleDimStyle
	if m.activePane == PaneJournal {
		titleStyle = panelTitleStyle
	}
	title := titleStyle.Render("Journal")

	if len(m.journal) == 0 {
		return title + "\n" + dimStyle.Render("No activity yet.")
	}
	title += dimStyle.Render(fmt.Sprintf("  %d entries", len(m.journal)))

	var lines []string
	for i := len(m.journal) - 1; i >= 0; i-- {
		e := m.journal[i]
		ts := journalTimeStyle.Render(timeutil.Clock(e.at.UnixNano()))
		text := truncate(e.text, width-16)
		switch e.kind {
		case entryAdd:
			text = journalAddStyle.Render("+ " + text)
		case entryRemove:
			text = journalDelStyle.Render("- " + text)
		case entryError:
			text = journalErrStyle.Render("! " + text)
		default:
			text = journalInfoStyle.Render("  " + text)
		}
		lines = append(lines, ts+" "+text)
	}

	contentHeight := height - 2
	if m.journalScroll > 0 && m.journalScroll < len(lines) {
		lines = lines[m.journalScroll:]
	}
	if contentHeight > 0 && len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}

	return title + "\n" + strings.Join(lines, "\n")
}

// renderJournalPanel wraps the journal in a styled panel.
func renderJournalPanel(m *Model, width, height int) string {
	content := renderJournal(m, width-4, height-2)

	style := panelStyle
	if m.activePane == PaneJournal {
		style = panelActiveStyle
	}
	return style.Width(width).Height(height).Render(content)
}
