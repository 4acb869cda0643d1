package database

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DBService {
	t.Helper()
	svc, err := NewDBService(":memory:")
	if err != nil {
		t.Fatalf("NewDBService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func startSession(t *testing.T, svc *DBService, id string, at int64) {
	t.Helper()
	if err := svc.StartSession(&Session{SessionID: id, ServerURL: "http://localhost:5000", StartedAt: at}); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
}

// TestNewDBService verifies that the database initializes correctly
// with the embedded schema using an in-memory SQLite instance.
func TestNewDBService(t *testing.T) {
	svc, err := NewDBService(":memory:")
	if err != nil {
		t.Fatalf("NewDBService(:memory:) failed: %v", err)
	}
	defer svc.Close()
}

// TestSessionLifecycle verifies start → end → query ordering.
func TestSessionLifecycle(t *testing.T) {
	svc := newTestDB(t)
	now := time.Now().UnixNano()

	startSession(t, svc, "s-old", now-int64(time.Hour))
	startSession(t, svc, "s-new", now)
	startSession(t, svc, "s-new", now+1) // no-op

	if err := svc.EndSession("s-old", now-int64(time.Minute)); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	sessions, err := svc.QuerySessions(SessionFilter{Limit: 10})
	if err != nil {
		t.Fatalf("QuerySessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "s-new" || sessions[0].StartedAt != now {
		t.Errorf("expected s-new first with original start, got %+v", sessions[0])
	}
	if sessions[1].EndedAt == nil {
		t.Errorf("expected s-old to be ended")
	}

	since := now - 1
	recent, err := svc.QuerySessions(SessionFilter{Since: &since})
	if err != nil {
		t.Fatalf("QuerySessions failed: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("expected 1 recent session, got %d", len(recent))
	}
}

// TestRegionEventsAndStats inserts region events and frames and checks the
// aggregates.
func TestRegionEventsAndStats(t *testing.T) {
	svc := newTestDB(t)
	startSession(t, svc, "s1", 1)

	events := []*RegionEvent{
		{SessionID: "s1", RegionID: "a", Kind: "added", Vertices: 4, Timestamp: 10},
		{SessionID: "s1", RegionID: "env", Kind: "added", Computation: "Interpolated Regions", Is3D: true, Timestamp: 11},
		{SessionID: "s1", RegionID: "env", Kind: "frame_linked", Is3D: true, Timestamp: 12},
		{SessionID: "s1", RegionID: "a", Kind: "removed", Timestamp: 13},
	}
	if err := svc.BatchInsertRegionEvents(events); err != nil {
		t.Fatalf("BatchInsertRegionEvents failed: %v", err)
	}
	if events[0].EventID == 0 {
		t.Errorf("expected event ids to be filled in")
	}

	got, err := svc.QueryRegionEvents("s1")
	if err != nil {
		t.Fatalf("QueryRegionEvents failed: %v", err)
	}
	if len(got) != 4 || got[1].Kind != "added" || !got[1].Is3D {
		t.Fatalf("unexpected events %+v", got)
	}

	for i, lat := range []int64{10, 20, 30} {
		f := &FrameRecord{SessionID: "s1", RegionID: "env", Seq: uint64(i + 1), TimeIndex: i, Single: true, Result: FrameApplied, LatencyMs: lat, Timestamp: int64(20 + i)}
		if err := svc.InsertFrame(f); err != nil {
			t.Fatalf("InsertFrame failed: %v", err)
		}
	}
	msg := "timeout"
	if err := svc.BatchInsertFrames([]*FrameRecord{
		{SessionID: "s1", RegionID: "env", Seq: 4, TimeIndex: 3, Result: FrameStale, LatencyMs: 40, Timestamp: 30},
		{SessionID: "s1", RegionID: "env", Seq: 5, TimeIndex: 4, Result: FrameFailed, ErrorMessage: &msg, Timestamp: 31},
	}); err != nil {
		t.Fatalf("BatchInsertFrames failed: %v", err)
	}

	stats, err := svc.GetSessionStats("s1")
	if err != nil {
		t.Fatalf("GetSessionStats failed: %v", err)
	}
	if stats.RegionsAdded != 2 || stats.RegionsRemoved != 1 || stats.Envelopes != 1 {
		t.Errorf("unexpected region stats %+v", stats)
	}
	if stats.FramesApplied != 3 || stats.FramesStale != 1 || stats.FramesFailed != 1 {
		t.Errorf("unexpected frame stats %+v", stats)
	}
	if stats.MaxLatencyMs != 40 || stats.AvgLatencyMs != 20 {
		t.Errorf("expected max 40 avg 20, got %d %v", stats.MaxLatencyMs, stats.AvgLatencyMs)
	}
}

func TestQueryFramesByRegion(t *testing.T) {
	svc := newTestDB(t)
	startSession(t, svc, "s1", 1)
	for i := 0; i < 3; i++ {
		region := fmt.Sprintf("env-%d", i%2)
		if err := svc.InsertFrame(&FrameRecord{SessionID: "s1", RegionID: region, Seq: uint64(i), Result: FrameApplied, Timestamp: int64(i)}); err != nil {
			t.Fatalf("InsertFrame failed: %v", err)
		}
	}

	all, err := svc.QueryFrames("s1", nil)
	if err != nil {
		t.Fatalf("QueryFrames failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 frames, got %d", len(all))
	}
	id := "env-0"
	some, err := svc.QueryFrames("s1", &id)
	if err != nil {
		t.Fatalf("QueryFrames failed: %v", err)
	}
	if len(some) != 2 || some[1].Seq != 2 {
		t.Errorf("expected frames 0 and 2 of env-0, got %+v", some)
	}
}

// TestFrameRequiresSession checks the foreign key to sessions.
func TestFrameRequiresSession(t *testing.T) {
	svc := newTestDB(t)
	if err := svc.InsertFrame(&FrameRecord{SessionID: "nope", RegionID: "x", Result: FrameApplied}); err == nil {
		t.Error("expected foreign key violation")
	}
}

// TestPendingManageLifecycle verifies write → bump → commit.
func TestPendingManageLifecycle(t *testing.T) {
	svc := newTestDB(t)
	startSession(t, svc, "s1", 1)

	id1, err := svc.WritePendingManage("s1", []byte(`{"id":"a","action":"delete"}`))
	if err != nil {
		t.Fatalf("WritePendingManage failed: %v", err)
	}
	if _, err := svc.WritePendingManage("s1", []byte(`{"id":"b","action":"select"}`)); err != nil {
		t.Fatalf("WritePendingManage failed: %v", err)
	}
	if err := svc.BumpPendingManage(id1); err != nil {
		t.Fatalf("BumpPendingManage failed: %v", err)
	}

	pending, err := svc.GetPendingManage()
	if err != nil {
		t.Fatalf("GetPendingManage failed: %v", err)
	}
	if len(pending) != 2 || pending[0].Attempts != 2 {
		t.Fatalf("expected 2 pending with first at 2 attempts, got %+v", pending)
	}

	if err := svc.CommitPendingManage(id1); err != nil {
		t.Fatalf("CommitPendingManage failed: %v", err)
	}
	pending, _ = svc.GetPendingManage()
	if len(pending) != 1 || string(pending[0].Payload) != `{"id":"b","action":"select"}` {
		t.Errorf("expected only b pending, got %+v", pending)
	}

	stats, _ := svc.GetSessionStats("s1")
	if stats.PendingManage != 1 {
		t.Errorf("expected 1 pending in stats, got %d", stats.PendingManage)
	}
}

// TestRecorderFlushesOnShutdown queues records and checks they all land
// once the recorder stops.
func TestRecorderFlushesOnShutdown(t *testing.T) {
	svc := newTestDB(t)
	startSession(t, svc, "s1", 1)

	rec := NewRecorder(svc, RecorderConfig{BatchSize: 2, FlushInterval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	for i := 0; i < 3; i++ {
		rec.RecordEvent(&RegionEvent{SessionID: "s1", RegionID: fmt.Sprintf("r%d", i), Kind: "added", Timestamp: int64(i)})
	}
	rec.RecordFrame(&FrameRecord{SessionID: "s1", RegionID: "env", Seq: 1, Result: FrameApplied, Timestamp: 5})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events, _ := svc.QueryRegionEvents("s1")
	frames, _ := svc.QueryFrames("s1", nil)
	if len(events) != 3 || len(frames) != 1 {
		t.Errorf("expected 3 events and 1 frame, got %d and %d", len(events), len(frames))
	}
	m := rec.Metrics()
	if m.EventsWritten != 3 || m.FramesWritten != 1 || m.Dropped != 0 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	svc := newTestDB(t)
	rec := NewRecorder(svc, RecorderConfig{BatchSize: 1, FlushInterval: time.Hour}, nil)
	for i := 0; i < 5; i++ {
		rec.RecordFrame(&FrameRecord{SessionID: "s1"})
	}
	if got := rec.Metrics().Dropped; got != 3 {
		t.Errorf("expected 3 dropped with a buffer of 2, got %d", got)
	}
}
