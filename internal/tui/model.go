package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/regionplay/internal/controller"
	"github.com/Mr-Dark-debug/regionplay/internal/geoimport"
	"github.com/Mr-Dark-debug/regionplay/internal/playback"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

// ────────────────────────────────────────────────────────────
// Pane focuses
// ────────────────────────────────────────────────────────────

// Pane represents which UI pane currently has keyboard focus.
type Pane int

const (
	PaneRegions Pane = iota
	PaneDetail
	PaneJournal
)

// Dispatch runs fn against the workspace on its event loop and waits for
// it. It is called from command goroutines, never from Update.
type Dispatch func(fn func(ws *controller.Workspace) error) error

// ────────────────────────────────────────────────────────────
// Model
// ────────────────────────────────────────────────────────────

// Model is the root BubbleTea model. It renders snapshots sent by the
// Bridge and turns keys into dispatched workspace calls.
type Model struct {
	dispatch  Dispatch
	readShape func(path string) ([]geoimport.Shape, error)

	// Data
	snap    controller.Snapshot
	tree    []regionNode
	journal []journalEntry

	// UI state
	activePane    Pane
	cursor        int
	journalScroll int
	width         int
	height        int
	prompt        promptKind
	input         string
	showHelp      bool

	// Status
	statusMsg string
}

const waitingStatus = "Waiting for the workspace..."

// NewModel creates a model that drives the workspace through dispatch.
func NewModel(dispatch Dispatch) Model {
	return Model{
		dispatch:  dispatch,
		readShape: readGeoJSONFile,
		statusMsg: waitingStatus,
	}
}

func readGeoJSONFile(path string) ([]geoimport.Shape, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return geoimport.Read(f)
}

// ────────────────────────────────────────────────────────────
// Messages
// ────────────────────────────────────────────────────────────

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type statusMsg string

// ────────────────────────────────────────────────────────────
// Init
// ────────────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return nil
}

// run wraps a workspace call into a command reporting its error.
func (m Model) run(fn func(ws *controller.Workspace) error) tea.Cmd {
	dispatch := m.dispatch
	return func() tea.Msg {
		if err := dispatch(fn); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

// ────────────────────────────────────────────────────────────
// Update
// ────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		m.applySnapshot(msg.snap)
		if msg.entry != nil {
			m.journal = appendJournal(m.journal, *msg.entry)
			if msg.entry.kind == entryError {
				m.statusMsg = msg.entry.text
			}
		}
		if m.statusMsg == waitingStatus {
			m.statusMsg = fmt.Sprintf("%d regions", len(m.snap.Regions))
		}
		return m, nil

	case statusMsg:
		m.statusMsg = string(msg)
		return m, nil

	case errMsg:
		m.statusMsg = fmt.Sprintf("Error: %v", msg.err)
		return m, nil
	}

	return m, nil
}

// applySnapshot replaces the state, keeping the cursor on the same region
// when it still exists.
func (m *Model) applySnapshot(s controller.Snapshot) {
	var curID string
	if r, ok := m.current(); ok {
		curID = r.ID
	}
	m.snap = s
	m.tree = buildRegionTree(s.Regions)
	for i, n := range m.tree {
		if n.region.ID == curID {
			m.cursor = i
			return
		}
	}
	m.cursor = clamp(m.cursor, 0, max(len(m.tree)-1, 0))
}

// current returns the region under the cursor.
func (m *Model) current() (region.Region, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tree) {
		return region.Region{}, false
	}
	return m.tree[m.cursor].region, true
}

// status returns the playback status of a 3D region.
func (m *Model) status(id string) (playback.Status, bool) {
	for _, st := range m.snap.Sessions {
		if st.RegionID == id {
			return st, true
		}
	}
	return playback.Status{}, false
}

// ────────────────────────────────────────────────────────────
// View
// ────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := renderHeader(&m)
	footer := renderFooter(&m)
	bodyHeight := m.height - 2 // header + footer

	var body string
	if m.showHelp {
		body = renderHelp(m.width, bodyHeight)
	} else {
		body = m.renderMainLayout(bodyHeight)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// renderMainLayout assembles the three-pane view.
func (m Model) renderMainLayout(totalHeight int) string {
	// Responsive: collapse to single pane on narrow terminals
	if m.width < 60 {
		return m.renderCompactLayout(totalHeight)
	}

	leftWidth := m.width * 45 / 100
	rightWidth := m.width - leftWidth
	topHeight := totalHeight * 65 / 100
	bottomHeight := totalHeight - topHeight

	list := renderRegionPanel(&m, leftWidth, topHeight)
	detail := renderDetailPanel(&m, rightWidth, topHeight)
	journal := renderJournalPanel(&m, m.width, bottomHeight)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, list, detail)
	return lipgloss.JoinVertical(lipgloss.Left, topRow, journal)
}

// renderCompactLayout is used when the terminal is narrow (< 60 cols).
// Only the focused pane is shown.
func (m Model) renderCompactLayout(totalHeight int) string {
	switch m.activePane {
	case PaneDetail:
		return renderDetailPanel(&m, m.width, totalHeight)
	case PaneJournal:
		return renderJournalPanel(&m, m.width, totalHeight)
	default:
		return renderRegionPanel(&m, m.width, totalHeight)
	}
}
