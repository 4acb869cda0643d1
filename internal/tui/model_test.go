package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mr-Dark-debug/regionplay/internal/compute"
	"github.com/Mr-Dark-debug/regionplay/internal/compute/computetest"
	"github.com/Mr-Dark-debug/regionplay/internal/controller"
	"github.com/Mr-Dark-debug/regionplay/internal/eventloop"
	"github.com/Mr-Dark-debug/regionplay/internal/geoimport"
	"github.com/Mr-Dark-debug/regionplay/internal/logger"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

type fixture struct {
	loop   *eventloop.Manual
	ws     *controller.Workspace
	bridge *Bridge
	msgs   []tea.Msg
	model  Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := computetest.NewServer()
	t.Cleanup(srv.Close)

	f := &fixture{loop: eventloop.NewManual(), bridge: NewBridge()}
	f.ws = controller.New(controller.Config{
		Remote:   compute.New(srv.URL, compute.WithLogger(logger.Discard())),
		Loop:     f.loop,
		Logger:   logger.Discard(),
		Observer: f.bridge,
	})
	f.bridge.Bind(f.ws)
	f.bridge.SetSender(func(msg tea.Msg) { f.msgs = append(f.msgs, msg) })

	f.model = NewModel(func(fn func(ws *controller.Workspace) error) error {
		err := fn(f.ws)
		f.loop.CompleteAll()
		return err
	})
	f.update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return f
}

func (f *fixture) update(msg tea.Msg) tea.Cmd {
	m, cmd := f.model.Update(msg)
	f.model = m.(Model)
	return cmd
}

// press sends a key, runs the resulting command and feeds back what the
// bridge sent meanwhile.
func (f *fixture) press(t *testing.T, msg tea.KeyMsg) {
	t.Helper()
	cmd := f.update(msg)
	if cmd != nil {
		if out := cmd(); out != nil {
			f.update(out)
		}
	}
	f.flush()
}

func (f *fixture) flush() {
	msgs := f.msgs
	f.msgs = nil
	for _, msg := range msgs {
		f.update(msg)
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func square(x float64) region.RingSet {
	return region.RingSet{{{Lat: x, Lng: x}, {Lat: x, Lng: x + 1}, {Lat: x + 1, Lng: x + 1}}}
}

func TestBuildRegionTreeNestsLinkedFrame(t *testing.T) {
	parent := region.NewEnvelope(square(0), 0, 5)
	parent.ID = "env"
	parent.InterpolatedRegionID = "frame"
	flat := region.New(square(1), "")
	flat.ID = "a"
	frame := region.New(square(2), region.ComputationFrame)
	frame.ID = "frame"

	tree := buildRegionTree([]region.Region{parent, flat, frame})
	if len(tree) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(tree))
	}
	want := []struct {
		id    string
		depth int
	}{{"env", 0}, {"frame", 1}, {"a", 0}}
	for i, w := range want {
		if tree[i].region.ID != w.id || tree[i].depth != w.depth {
			t.Errorf("node %d: expected %s@%d, got %s@%d", i, w.id, w.depth, tree[i].region.ID, tree[i].depth)
		}
	}
}

func TestBridgeSendsJournalEntries(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ws.Draw(square(1)); err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	f.flush()

	if len(f.model.snap.Regions) != 1 {
		t.Fatalf("expected 1 region in the model, got %d", len(f.model.snap.Regions))
	}
	if len(f.model.journal) != 1 || f.model.journal[0].kind != entryAdd {
		t.Errorf("expected one add entry, got %+v", f.model.journal)
	}
}

func TestKeysDriveWorkspace(t *testing.T) {
	f := newFixture(t)
	f.ws.Draw(square(1))
	f.ws.Draw(square(5))
	f.flush()

	f.press(t, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if got := f.ws.SelectedIDs(); len(got) != 1 || got[0] != f.model.tree[0].region.ID {
		t.Fatalf("expected first region selected, got %v", got)
	}

	f.press(t, runes("j"))
	f.press(t, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if got := len(f.ws.SelectedIDs()); got != 2 {
		t.Fatalf("expected 2 selected, got %d", got)
	}

	f.press(t, runes("c"))
	if got := len(f.ws.Regions()); got != 1 {
		t.Fatalf("expected combine to leave 1 region, got %d", got)
	}
	if r := f.ws.Regions()[0]; r.Computation != region.ComputationCombined {
		t.Errorf("expected combined region, got %q", r.Computation)
	}
	if f.model.cursor != 0 {
		t.Errorf("cursor not clamped after removal: %d", f.model.cursor)
	}
}

func TestPlaybackKeyOnFlatRegion(t *testing.T) {
	f := newFixture(t)
	f.ws.Draw(square(1))
	f.flush()

	f.press(t, runes("p"))
	if !strings.Contains(f.model.statusMsg, "not a 3D region") {
		t.Errorf("expected a not-3D status, got %q", f.model.statusMsg)
	}
}

func TestPlayAndScrubKeys(t *testing.T) {
	f := newFixture(t)
	id, err := f.ws.AddRegion(region.NewEnvelope(square(0), 0, 5))
	if err != nil {
		t.Fatalf("AddRegion failed: %v", err)
	}
	f.loop.CompleteAll()
	f.flush()

	f.press(t, runes("p"))
	st, _ := f.ws.Status(id)
	if st.State.String() != "playing" {
		t.Fatalf("expected playing, got %s", st.State)
	}

	f.press(t, runes("p"))
	f.press(t, runes("]"))
	st, _ = f.ws.Status(id)
	if st.State.String() != "paused" || st.CurrentTime != 1 {
		t.Errorf("expected paused at 1, got %s at %d", st.State, st.CurrentTime)
	}

	view := f.model.View()
	for _, want := range []string{"REGIONPLAY", "Playback", "t=1 [0..5]"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestInterpolatePrompt(t *testing.T) {
	f := newFixture(t)
	f.ws.Draw(square(1))
	f.flush()
	f.press(t, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})

	f.press(t, runes("t"))
	if f.model.prompt != promptInterpolate {
		t.Fatalf("expected interpolate prompt, got %d", f.model.prompt)
	}
	for _, k := range []tea.KeyMsg{runes("8"), {Type: tea.KeySpace}, runes("2")} {
		f.press(t, k)
	}
	f.press(t, tea.KeyMsg{Type: tea.KeyEnter})

	regions := f.ws.Regions()
	if len(regions) != 1 || !regions[0].Is3D || regions[0].StartTime != 2 || regions[0].EndTime != 8 {
		t.Fatalf("expected one 3D region over [2, 8], got %+v", regions)
	}
}

func TestParseRange(t *testing.T) {
	cases := []struct {
		in         string
		start, end int
		ok         bool
	}{
		{"0 5", 0, 5, true},
		{"3-7", 3, 7, true},
		{"2, 4", 2, 4, true},
		{"-5 3", -5, 3, true},
		{"-3--1", -3, -1, true},
		{"-5,-2", -5, -2, true},
		{"5", 0, 0, false},
		{"-5", 0, 0, false},
		{"a b", 0, 0, false},
	}
	for _, c := range cases {
		s, e, err := parseRange(c.in)
		if (err == nil) != c.ok || s != c.start || e != c.end {
			t.Errorf("parseRange(%q) = %d, %d, %v", c.in, s, e, err)
		}
	}
}

func TestPromptBackspaceRemovesWholeRune(t *testing.T) {
	f := newFixture(t)
	f.press(t, runes("i"))
	f.press(t, runes("aü"))
	f.press(t, tea.KeyMsg{Type: tea.KeyBackspace})
	if f.model.input != "a" {
		t.Fatalf("expected input %q, got %q", "a", f.model.input)
	}
	f.press(t, tea.KeyMsg{Type: tea.KeyBackspace})
	f.press(t, tea.KeyMsg{Type: tea.KeyBackspace})
	if f.model.input != "" {
		t.Errorf("expected empty input, got %q", f.model.input)
	}
}

func TestGroupSpeedPrompt(t *testing.T) {
	f := newFixture(t)
	a, err := f.ws.AddRegion(region.NewEnvelope(square(0), 0, 5))
	if err != nil {
		t.Fatalf("AddRegion failed: %v", err)
	}
	b, err := f.ws.AddRegion(region.NewEnvelope(square(3), 0, 5))
	if err != nil {
		t.Fatalf("AddRegion failed: %v", err)
	}
	f.loop.CompleteAll()
	f.flush()

	f.press(t, runes("V"))
	if f.model.prompt != promptGroupSpeed {
		t.Fatalf("expected group speed prompt, got %d", f.model.prompt)
	}
	f.press(t, runes("4"))
	f.press(t, tea.KeyMsg{Type: tea.KeyEnter})

	for _, id := range []string{a, b} {
		st, _ := f.ws.Status(id)
		if st.State.String() != "playing" || st.EffectiveSpeed != 4 {
			t.Errorf("%s: expected playing at 4x, got %s at %g", id, st.State, st.EffectiveSpeed)
		}
	}
}

func TestGroupSpeedPromptNeedsGroup(t *testing.T) {
	f := newFixture(t)
	f.ws.AddRegion(region.NewEnvelope(square(0), 0, 5))
	f.loop.CompleteAll()
	f.flush()

	f.press(t, runes("V"))
	if f.model.prompt != promptNone {
		t.Fatalf("expected no prompt with a single 3D region, got %d", f.model.prompt)
	}
}

func TestImportPromptReportsFeatureNames(t *testing.T) {
	f := newFixture(t)
	f.model.readShape = func(path string) ([]geoimport.Shape, error) {
		if path != "parks.json" {
			t.Errorf("unexpected path %q", path)
		}
		return []geoimport.Shape{
			{Rings: square(1), Props: map[string]any{"name": "north park"}},
			{Rings: square(4)},
		}, nil
	}

	f.press(t, runes("i"))
	f.press(t, runes("parks.json"))
	f.press(t, tea.KeyMsg{Type: tea.KeyEnter})

	if got := len(f.ws.Regions()); got != 2 {
		t.Fatalf("expected 2 imported regions, got %d", got)
	}
	if !strings.Contains(f.model.statusMsg, "imported 2 region(s) from parks.json (north park)") {
		t.Errorf("unexpected status %q", f.model.statusMsg)
	}
}
