package tui

import "github.com/charmbracelet/lipgloss"

// ────────────────────────────────────────────────────────────
// Color Palette
// ────────────────────────────────────────────────────────────
//
// All chrome colors are defined here. Region fills come from the
// registry and are only ever used for swatches.

var (
	// Base
	colorBg        = lipgloss.Color("#0d1117")
	colorBgSurface = lipgloss.Color("#1c2128")

	// Text
	colorText      = lipgloss.Color("#e6edf3")
	colorTextDim   = lipgloss.Color("#8b949e")
	colorTextMuted = lipgloss.Color("#484f58")

	// Accents
	colorBlue   = lipgloss.Color("#58a6ff")
	colorGreen  = lipgloss.Color("#3fb950")
	colorRed    = lipgloss.Color("#f85149")
	colorYellow = lipgloss.Color("#d29922")
	colorPurple = lipgloss.Color("#bc8cff")

	// Structural
	colorDivider   = lipgloss.Color("#30363d")
	colorHighlight = lipgloss.Color("#1f6feb")
)

// ────────────────────────────────────────────────────────────
// Component Styles
// ────────────────────────────────────────────────────────────

// Header bar
var (
	headerBarStyle = lipgloss.NewStyle().
			Background(colorBgSurface).
			Foreground(colorText).
			Padding(0, 1)

	headerBrandStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorBlue)

	headerSepStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	headerMetaStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	headerGroupStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPurple)
)

// Panel chrome
var (
	panelStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.Border{Top: "─"}).
			BorderForeground(colorDivider)

	panelActiveStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Border(lipgloss.Border{Top: "─"}).
				BorderForeground(colorBlue)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	panelTitleDimStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted).
				Bold(true)
)

// Region list
var (
	regionNormalStyle = lipgloss.NewStyle().
				Foreground(colorText)

	regionCursorStyle = lipgloss.NewStyle().
				Background(colorHighlight).
				Foreground(colorText).
				Bold(true)

	regionHiddenStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)

	regionSelectedMark = lipgloss.NewStyle().
				Foreground(colorYellow).
				Render("●")

	regionUnselectedMark = lipgloss.NewStyle().
				Foreground(colorTextMuted).
				Render("○")

	badge3DStyle = lipgloss.NewStyle().
			Foreground(colorPurple)

	treeBranchStyle = lipgloss.NewStyle().
			Foreground(colorDivider)
)

// Detail pane
var (
	detailLabelStyle = lipgloss.NewStyle().
				Foreground(colorBlue)

	detailValueStyle = lipgloss.NewStyle().
				Foreground(colorText)

	detailSectionStyle = lipgloss.NewStyle().
				Foreground(colorDivider)

	progressFilledStyle = lipgloss.NewStyle().
				Foreground(colorPurple)

	progressEmptyStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)

	statePlayingStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	statePausedStyle = lipgloss.NewStyle().
				Foreground(colorYellow)

	stateStoppedStyle = lipgloss.NewStyle().
				Foreground(colorTextDim)
)

// Journal
var (
	journalTimeStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)

	journalAddStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	journalDelStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	journalInfoStyle = lipgloss.NewStyle().
				Foreground(colorTextDim)

	journalErrStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)
)

// Footer / status bar
var (
	statusStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorBgSurface).
			Padding(0, 1)

	hintKeyStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	hintDescStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	emptyStateStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Padding(1, 2)
)

// Prompt bar
var (
	promptBarStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorBgSurface).
			Padding(0, 1)

	promptCursorStyle = lipgloss.NewStyle().
				Background(colorBlue).
				Foreground(colorBg)
)
