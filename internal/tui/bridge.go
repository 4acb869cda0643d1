package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mr-Dark-debug/regionplay/internal/controller"
	"github.com/Mr-Dark-debug/regionplay/internal/playback"
	"github.com/Mr-Dark-debug/regionplay/internal/registry"
)

// Snapshotter is the read side of the workspace.
type Snapshotter interface {
	Snapshot() controller.Snapshot
}

// snapshotMsg carries the workspace state and, optionally, one journal line.
type snapshotMsg struct {
	snap  controller.Snapshot
	entry *journalEntry
}

// Bridge is a controller.Observer that forwards state to a running
// program. It lives on the event loop; Send is safe from there.
type Bridge struct {
	ws   Snapshotter
	send func(tea.Msg)
	now  func() time.Time
}

// NewBridge creates an unbound bridge. Bind and SetSender must be called
// before the event loop starts.
func NewBridge() *Bridge {
	return &Bridge{now: time.Now}
}

// Bind attaches the workspace whose snapshots are sent.
func (b *Bridge) Bind(ws Snapshotter) { b.ws = ws }

// SetSender sets the message sink, usually tea.Program.Send.
func (b *Bridge) SetSender(send func(tea.Msg)) { b.send = send }

func (b *Bridge) publish(entry *journalEntry) {
	if b.ws == nil || b.send == nil {
		return
	}
	b.send(snapshotMsg{snap: b.ws.Snapshot(), entry: entry})
}

// Refresh sends the current state without a journal line.
func (b *Bridge) Refresh() { b.publish(nil) }

func (b *Bridge) RegionEvent(ev registry.Event) {
	var kind entryKind
	switch ev.Kind {
	case registry.Added:
		kind = entryAdd
	case registry.Removed:
		kind = entryRemove
	default:
		b.publish(nil)
		return
	}
	label := ev.Region.Computation
	if label == "" {
		label = "drawn"
	}
	b.publish(&journalEntry{
		at:   b.now(),
		kind: kind,
		text: fmt.Sprintf("%s %s (%s)", ev.Kind, shortID(ev.Region.ID, 8), label),
	})
}

func (b *Bridge) SelectionChanged(string, bool) { b.publish(nil) }

func (b *Bridge) PlaybackChanged(playback.Status) { b.publish(nil) }

func (b *Bridge) GroupChanged(active bool) {
	text := "group playback off"
	if active {
		text = "group playback on"
	}
	b.publish(&journalEntry{at: b.now(), kind: entryInfo, text: text})
}

func (b *Bridge) ActionCompleted(res controller.ActionResult) {
	e := &journalEntry{at: b.now(), kind: entryInfo}
	if res.Err != nil {
		e.kind = entryError
		e.text = fmt.Sprintf("%s failed: %v", res.Action, res.Err)
	} else {
		e.text = fmt.Sprintf("%s done, %d region(s)", res.Action, len(res.IDs))
	}
	b.publish(e)
}

var _ controller.Observer = (*Bridge)(nil)
