package tui

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Mr-Dark-debug/regionplay/internal/controller"
	"github.com/Mr-Dark-debug/regionplay/internal/geoimport"
	"github.com/Mr-Dark-debug/regionplay/internal/playback"
)

// errNot3D is shown when a playback key is used on a flat region.
var errNot3D = errors.New("not a 3D region")

// promptKind selects what the footer input is collecting.
type promptKind int

const (
	promptNone promptKind = iota
	promptInterpolate
	promptImport
	promptScrub
	promptSpeed
	promptGroupSpeed
)

func (p promptKind) label() string {
	switch p {
	case promptInterpolate:
		return "interpolate start end:"
	case promptImport:
		return "import geojson file:"
	case promptScrub:
		return "scrub to time:"
	case promptSpeed:
		return "speed (0.25-4):"
	case promptGroupSpeed:
		return "play all at speed (0.25-4):"
	}
	return ""
}

// keyHelp lists the bindings shown by "?".
var keyHelp = []hint{
	{"↑↓ / j k", "move cursor"},
	{"tab", "next pane"},
	{"space", "toggle selection"},
	{"esc", "clear selection"},
	{"h", "hide / show"},
	{"x / X", "delete region / delete selected"},
	{"n u f", "intersect, union, difference of selected"},
	{"c", "combine selected"},
	{"t", "interpolate selected over a time range"},
	{"i", "import a GeoJSON file"},
	{"r", "restore the server session"},
	{"C", "clear everything"},
	{"p", "play / pause 3D region"},
	{"s", "stop 3D region"},
	{"[ ] / g", "step back / forward, scrub to time"},
	{"+ - / v", "double / halve speed, set speed"},
	{"l", "toggle loop"},
	{"m", "toggle single / multi frame"},
	{"P / S", "play all / stop all (2+ 3D regions)"},
	{"V", "play all at a given speed"},
	{"q", "quit"},
}

// handleKey routes keyboard input based on current mode.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.prompt != promptNone {
		return m.handlePromptKey(msg)
	}
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	// ── Global ──

	switch key {
	case "q":
		return m, tea.Quit
	case "?":
		m.showHelp = true
		return m, nil
	case "tab":
		m.activePane = (m.activePane + 1) % 3
		return m, nil
	case "shift+tab":
		m.activePane = (m.activePane + 2) % 3
		return m, nil
	case "j", "down":
		if m.activePane == PaneJournal {
			m.journalScroll++
		} else if m.cursor < len(m.tree)-1 {
			m.cursor++
		}
		return m, nil
	case "k", "up":
		if m.activePane == PaneJournal {
			m.journalScroll = max(m.journalScroll-1, 0)
		} else if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	}

	// ── Workspace-wide actions ──

	switch key {
	case "esc":
		return m, m.run(func(ws *controller.Workspace) error { ws.ClearSelection(); return nil })
	case "X":
		return m, m.run(func(ws *controller.Workspace) error { ws.DeleteSelected(); return nil })
	case "n":
		return m, m.run(func(ws *controller.Workspace) error { ws.Intersect(); return nil })
	case "u":
		return m, m.run(func(ws *controller.Workspace) error { ws.Union(); return nil })
	case "f":
		return m, m.run(func(ws *controller.Workspace) error { ws.Difference(); return nil })
	case "c":
		return m, m.run(func(ws *controller.Workspace) error { ws.Combine(); return nil })
	case "r":
		return m, m.run(func(ws *controller.Workspace) error { ws.Restore(); return nil })
	case "C":
		return m, m.run(func(ws *controller.Workspace) error { ws.ClearAll(); return nil })
	case "P":
		return m, m.run(func(ws *controller.Workspace) error { return ws.PlayAll(0) })
	case "S":
		return m, m.run(func(ws *controller.Workspace) error { return ws.StopAll() })
	case "V":
		if !m.snap.GroupActive {
			m.statusMsg = "play all needs at least two 3D regions"
			return m, nil
		}
		return m.startPrompt(promptGroupSpeed)
	case "t":
		return m.startPrompt(promptInterpolate)
	case "i":
		return m.startPrompt(promptImport)
	}

	// ── Region under the cursor ──

	r, ok := m.current()
	if !ok {
		return m, nil
	}
	id := r.ID

	switch key {
	case " ":
		return m, m.run(func(ws *controller.Workspace) error { ws.ToggleSelect(id); return nil })
	case "h":
		return m, m.run(func(ws *controller.Workspace) error { ws.ToggleVisible(id); return nil })
	case "x", "delete":
		return m, m.run(func(ws *controller.Workspace) error { ws.Delete(id); return nil })
	}

	st, is3D := m.status(id)
	switch key {
	case "p", "s", "[", "]", "+", "-", "l", "m", "g", "v":
		if !is3D {
			m.statusMsg = fmt.Sprintf("%s: %v", shortID(id, 8), errNot3D)
			return m, nil
		}
	default:
		return m, nil
	}

	switch key {
	case "p":
		if st.State == playback.Playing {
			return m, m.run(func(ws *controller.Workspace) error { return ws.Pause(id) })
		}
		return m, m.run(func(ws *controller.Workspace) error { return ws.Play(id) })
	case "s":
		return m, m.run(func(ws *controller.Workspace) error { return ws.Stop(id) })
	case "[":
		t := st.CurrentTime - 1
		return m, m.run(func(ws *controller.Workspace) error { return ws.Scrub(id, t) })
	case "]":
		t := st.CurrentTime + 1
		return m, m.run(func(ws *controller.Workspace) error { return ws.Scrub(id, t) })
	case "+":
		s := playback.ClampSpeed(st.EffectiveSpeed * 2)
		return m, m.run(func(ws *controller.Workspace) error { return ws.SetSpeed(id, s) })
	case "-":
		s := playback.ClampSpeed(st.EffectiveSpeed / 2)
		return m, m.run(func(ws *controller.Workspace) error { return ws.SetSpeed(id, s) })
	case "l":
		loop := !st.Loop
		return m, m.run(func(ws *controller.Workspace) error { return ws.SetLoop(id, loop) })
	case "m":
		single := !st.SingleFrame
		return m, m.run(func(ws *controller.Workspace) error { return ws.SetSingleFrame(id, single) })
	case "g":
		return m.startPrompt(promptScrub)
	case "v":
		return m.startPrompt(promptSpeed)
	}
	return m, nil
}

func (m Model) startPrompt(p promptKind) (tea.Model, tea.Cmd) {
	m.prompt = p
	m.input = ""
	return m, nil
}

// handlePromptKey edits the footer input and submits it on enter.
func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompt, m.input = promptNone, ""
		return m, nil
	case tea.KeyBackspace:
		if _, size := utf8.DecodeLastRuneInString(m.input); size > 0 {
			m.input = m.input[:len(m.input)-size]
		}
		return m, nil
	case tea.KeyEnter:
		p, input := m.prompt, strings.TrimSpace(m.input)
		m.prompt, m.input = promptNone, ""
		cmd, err := m.submit(p, input)
		if err != nil {
			m.statusMsg = fmt.Sprintf("Error: %v", err)
			return m, nil
		}
		return m, cmd
	case tea.KeySpace:
		m.input += " "
		return m, nil
	case tea.KeyRunes:
		m.input += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

// submit turns a finished prompt into a command.
func (m Model) submit(p promptKind, input string) (tea.Cmd, error) {
	switch p {
	case promptInterpolate:
		start, end, err := parseRange(input)
		if err != nil {
			return nil, err
		}
		return m.run(func(ws *controller.Workspace) error { ws.Interpolate(start, end); return nil }), nil

	case promptImport:
		if input == "" {
			return nil, errors.New("no file given")
		}
		read, dispatch := m.readShape, m.dispatch
		return func() tea.Msg {
			shapes, err := read(input)
			if err != nil {
				return errMsg{fmt.Errorf("importing %s: %w", input, err)}
			}
			var ids []string
			err = dispatch(func(ws *controller.Workspace) error {
				var ierr error
				ids, ierr = ws.Import(shapes)
				return ierr
			})
			if err != nil {
				return errMsg{err}
			}
			msg := fmt.Sprintf("imported %d region(s) from %s", len(ids), input)
			if names := shapeNames(shapes); names != "" {
				msg += " (" + names + ")"
			}
			return statusMsg(msg)
		}, nil

	case promptGroupSpeed:
		s, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return nil, fmt.Errorf("speed %q: %w", input, err)
		}
		return m.run(func(ws *controller.Workspace) error { return ws.PlayAll(s) }), nil
	}

	r, ok := m.current()
	if !ok {
		return nil, errors.New("no region under the cursor")
	}
	id := r.ID
	switch p {
	case promptScrub:
		t, err := strconv.Atoi(input)
		if err != nil {
			return nil, fmt.Errorf("time %q: %w", input, err)
		}
		return m.run(func(ws *controller.Workspace) error { return ws.Scrub(id, t) }), nil
	case promptSpeed:
		s, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return nil, fmt.Errorf("speed %q: %w", input, err)
		}
		return m.run(func(ws *controller.Workspace) error { return ws.SetSpeed(id, s) }), nil
	}
	return nil, nil
}

// shapeNames joins the feature names of an import, skipping unnamed ones.
func shapeNames(shapes []geoimport.Shape) string {
	var names []string
	for _, sh := range shapes {
		if n := sh.Name(); n != "" {
			names = append(names, n)
		}
	}
	return truncate(strings.Join(names, ", "), 40)
}

// rangeDash matches the "start-end" form; either bound may be negative.
var rangeDash = regexp.MustCompile(`^(-?\d+)-(-?\d+)$`)

// parseRange reads "start end", "start, end" or "start-end" as two
// integers.
func parseRange(s string) (int, int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) == 1 {
		if m := rangeDash.FindStringSubmatch(fields[0]); m != nil {
			fields = m[1:]
		}
	}
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected \"start end\", got %q", s)
	}
	start, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("start %q: %w", fields[0], err)
	}
	end, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("end %q: %w", fields[1], err)
	}
	return start, end, nil
}

// renderHelp lists every key binding.
func renderHelp(width, height int) string {
	lines := []string{panelTitleStyle.Render("Keys"), ""}
	for _, h := range keyHelp {
		lines = append(lines, fmt.Sprintf("%-12s %s", hintKeyStyle.Render(h.key), hintDescStyle.Render(h.desc)))
	}
	lines = append(lines, "", dimStyle.Render("press any key to close"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, strings.Join(lines, "\n"))
}
