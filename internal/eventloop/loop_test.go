package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestRunnerSerialisesWork verifies posted functions run on the loop in order.
func TestRunnerSerialisesWork(t *testing.T) {
	r := NewRunner(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		r.Post(func() { got = append(got, i) })
	}
	if err := r.Do(ctx, func() {}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("expected ordered execution, got %v", got)
		}
	}
}

// TestRunnerCancelStopsTicks verifies no tick body runs after Cancel returns.
func TestRunnerCancelStopsTicks(t *testing.T) {
	r := NewRunner(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	var ticks atomic.Int32
	var task Task
	if err := r.Do(ctx, func() {
		task = r.Every(time.Millisecond, func() { ticks.Add(1) })
	}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
	}

	var atCancel int32
	if err := r.Do(ctx, func() {
		task.Cancel()
		atCancel = ticks.Load()
	}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := r.Do(ctx, func() {}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if ticks.Load() != atCancel {
		t.Errorf("tick ran after cancel: %d -> %d", atCancel, ticks.Load())
	}
}

// TestRunnerGoPostsResult verifies async work completes back on the loop.
func TestRunnerGoPostsResult(t *testing.T) {
	r := NewRunner(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	done := make(chan int, 1)
	r.Go(func() func() {
		v := 42
		return func() { done <- v }
	})

	select {
	case v := <-done:
		if v != 42 {
			t.Errorf("expected 42, got %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async result never applied")
	}
}

// TestRunnerDoAfterStop verifies Do reports a stopped loop.
func TestRunnerDoAfterStop(t *testing.T) {
	r := NewRunner(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if err := r.Do(context.Background(), func() {}); err != ErrStopped {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestManualCompleteOutOfOrder(t *testing.T) {
	m := NewManual()
	var applied []string
	m.Go(func() func() { return func() { applied = append(applied, "first") } })
	m.Go(func() func() { return func() { applied = append(applied, "second") } })

	m.Complete(1)
	m.Complete(0)

	if len(applied) != 2 || applied[0] != "second" || applied[1] != "first" {
		t.Errorf("expected [second first], got %v", applied)
	}
	if m.Pending() != 0 {
		t.Errorf("expected no pending jobs, got %d", m.Pending())
	}
}

func TestManualTickSkipsCancelled(t *testing.T) {
	m := NewManual()
	var a, b int
	ta := m.Every(time.Second, func() { a++ })
	m.Every(2*time.Second, func() { b++ })

	m.Tick()
	ta.Cancel()
	m.Tick()

	if a != 1 || b != 2 {
		t.Errorf("expected a=1 b=2, got a=%d b=%d", a, b)
	}
	if p := m.Periods(); len(p) != 1 || p[0] != 2*time.Second {
		t.Errorf("expected one live 2s task, got %v", p)
	}
}
