package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStreamGroup_empty_group_signals(t *testing.T) {
	g := NewStreamGroup(nil, testLogger())

	if _, ok := g.Master(); ok {
		t.Error("Master of empty group should not be ok")
	}
	if _, err := g.SeekAll(5); !errors.Is(err, ErrNoActiveStream) {
		t.Errorf("SeekAll = %v; want ErrNoActiveStream", err)
	}
	if err := g.PlayAll(0); !errors.Is(err, ErrNoActiveStream) {
		t.Errorf("PlayAll = %v; want ErrNoActiveStream", err)
	}
	if err := g.PauseAll(); !errors.Is(err, ErrNoActiveStream) {
		t.Errorf("PauseAll = %v; want ErrNoActiveStream", err)
	}
	if g.MasterTime() != 0 {
		t.Errorf("MasterTime = %v; want 0", g.MasterTime())
	}
}

func TestStreamGroup_master_is_first(t *testing.T) {
	a := newFakeStream("a", 60)
	b := newFakeStream("b", 60)
	g := NewStreamGroup([]MediaStream{a, b}, testLogger())

	m, ok := g.Master()
	if !ok || m.ID() != "a" {
		t.Errorf("Master = %v, %v; want a", m, ok)
	}
	a.set(func(f *fakeStream) { f.currentTime = 12.5 })
	if g.MasterTime() != 12.5 {
		t.Errorf("MasterTime = %v; want 12.5", g.MasterTime())
	}
}

func TestStreamGroup_seek_all_skips_unready(t *testing.T) {
	a := newFakeStream("a", 60)
	b := newFakeStream("b", 60)
	b.set(func(f *fakeStream) { f.readyState = Unstarted })
	g := NewStreamGroup([]MediaStream{a, b}, testLogger())

	skipped, err := g.SeekAll(10)
	if err != nil {
		t.Fatalf("SeekAll: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d; want 1", skipped)
	}
	if a.CurrentTime() != 10 {
		t.Errorf("a time = %v; want 10", a.CurrentTime())
	}
	if b.CurrentTime() != 0 {
		t.Errorf("unready b should not move, time = %v", b.CurrentTime())
	}
}

func TestStreamGroup_seek_failure_isolated(t *testing.T) {
	a := newFakeStream("a", 60)
	b := newFakeStream("b", 60)
	a.set(func(f *fakeStream) { f.seekErr = errRejected })
	g := NewStreamGroup([]MediaStream{a, b}, testLogger())

	if _, err := g.SeekAll(10); err != nil {
		t.Fatalf("SeekAll: %v", err)
	}
	if b.CurrentTime() != 10 {
		t.Errorf("b should still seek, time = %v", b.CurrentTime())
	}
}

func TestStreamGroup_play_all_marks_user_initiated(t *testing.T) {
	a := newFakeStream("a", 60)
	b := newFakeStream("b", 60)
	b.set(func(f *fakeStream) { f.playErr = errRejected })
	g := NewStreamGroup([]MediaStream{a, b}, testLogger())

	if err := g.PlayAll(0); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	if a.Paused() || !a.UserInitiated() {
		t.Error("a should be playing and user initiated")
	}
	// A rejected play excludes only that stream.
	if !b.Paused() || b.UserInitiated() {
		t.Error("rejected b should stay paused and unmarked")
	}
}

func TestStreamGroup_wait_ready(t *testing.T) {
	a := newFakeStream("a", 60)
	a.set(func(f *fakeStream) { f.readyState = Unstarted })
	g := NewStreamGroup([]MediaStream{a}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := g.WaitReady(ctx, CanPlay); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady on stuck stream = %v; want deadline exceeded", err)
	}

	a.set(func(f *fakeStream) { f.readyState = CanPlay })
	if err := g.WaitReady(context.Background(), CanPlay); err != nil {
		t.Errorf("WaitReady on ready stream: %v", err)
	}
}

func TestStreamGroup_seek_all_when_ready_waits_for_late_stream(t *testing.T) {
	a := newFakeStream("a", 60)
	b := newFakeStream("b", 60)
	b.set(func(f *fakeStream) { f.readyState = Unstarted })
	g := NewStreamGroup([]MediaStream{a, b}, testLogger())

	done := make(chan error, 1)
	go func() { done <- g.SeekAllWhenReady(context.Background(), 15) }()

	// The ready stream is positioned on the first pass; the late one once
	// its metadata arrives.
	time.Sleep(20 * time.Millisecond)
	if a.CurrentTime() != 15 {
		t.Errorf("ready a should be seeked immediately, time = %v", a.CurrentTime())
	}
	b.set(func(f *fakeStream) { f.readyState = HasMetadata })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SeekAllWhenReady: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SeekAllWhenReady did not finish after the late stream became ready")
	}
	if b.CurrentTime() != 15 {
		t.Errorf("late b time = %v; want 15", b.CurrentTime())
	}
}

func TestStreamGroup_destroy_releases_streams(t *testing.T) {
	a := newFakeStream("a", 60)
	g := NewStreamGroup([]MediaStream{a}, testLogger())
	g.Destroy()

	a.mu.Lock()
	destroyed := a.destroyed
	a.mu.Unlock()
	if !destroyed {
		t.Error("stream should be destroyed")
	}
	if g.Len() != 0 {
		t.Errorf("Len after destroy = %d", g.Len())
	}
}
