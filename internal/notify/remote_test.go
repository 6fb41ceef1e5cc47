package notify

import (
	"errors"
	"testing"
	"time"

	"segment-annotator/internal/engine"
)

func newRemoteFixture() (*Registry, engine.MediaStream) {
	hub := NewHub(testLogger(), nil)
	registry := NewRegistry(hub, testLogger())
	return registry, registry.NewStream("s1#0", "v.mp4")
}

func TestRemoteStream_commands_require_client(t *testing.T) {
	_, stream := newRemoteFixture()

	if err := stream.Play(); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("Play without a UI client = %v; want ErrNoPlayer", err)
	}
	if err := stream.SeekTo(5); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("SeekTo without a UI client = %v; want ErrNoPlayer", err)
	}
}

func TestRemoteStream_absorbs_report(t *testing.T) {
	registry, stream := newRemoteFixture()

	registry.handleReport(StreamReport{
		StreamID:    "s1#0",
		Kind:        "pause",
		CurrentTime: 12,
		Duration:    60,
		ReadyState:  int(engine.CanPlay),
		Paused:      true,
		BufferedEnd: 30,
		InViewport:  false,
	})

	if stream.CurrentTime() != 12 {
		t.Errorf("time = %v; want 12", stream.CurrentTime())
	}
	if stream.ReadyState() != engine.CanPlay {
		t.Errorf("ready state = %v", stream.ReadyState())
	}
	if !stream.Paused() {
		t.Error("stream should be paused")
	}
	if stream.BufferedAhead() != 18 {
		t.Errorf("buffered ahead = %v; want 18", stream.BufferedAhead())
	}
	if stream.InViewport() {
		t.Error("stream should be off screen")
	}
}

func TestRemoteStream_extrapolates_while_playing(t *testing.T) {
	registry, stream := newRemoteFixture()

	registry.handleReport(StreamReport{
		StreamID:    "s1#0",
		Kind:        "play",
		CurrentTime: 10,
		Duration:    60,
		ReadyState:  int(engine.CanPlayThrough),
		Paused:      false,
	})
	time.Sleep(30 * time.Millisecond)

	if got := stream.CurrentTime(); got <= 10 {
		t.Errorf("playing time = %v; want extrapolated past 10", got)
	}
}

func TestRemoteStream_paused_time_is_stable(t *testing.T) {
	registry, stream := newRemoteFixture()

	registry.handleReport(StreamReport{
		StreamID:    "s1#0",
		Kind:        "pause",
		CurrentTime: 10,
		Duration:    60,
		ReadyState:  int(engine.CanPlayThrough),
		Paused:      true,
	})
	time.Sleep(30 * time.Millisecond)

	if got := stream.CurrentTime(); got != 10 {
		t.Errorf("paused time = %v; want exactly 10", got)
	}
}

func TestRemoteStream_extrapolation_capped_at_duration(t *testing.T) {
	registry, stream := newRemoteFixture()

	registry.handleReport(StreamReport{
		StreamID:    "s1#0",
		Kind:        "play",
		CurrentTime: 59.999,
		Duration:    60,
		ReadyState:  int(engine.CanPlayThrough),
		Paused:      false,
	})
	time.Sleep(20 * time.Millisecond)

	if got := stream.CurrentTime(); got > 60 {
		t.Errorf("time = %v; must not pass the duration", got)
	}
}

func TestRemoteStream_reload_resets_buffer_state(t *testing.T) {
	registry, stream := newRemoteFixture()

	registry.handleReport(StreamReport{
		StreamID:    "s1#0",
		Kind:        "pause",
		CurrentTime: 10,
		Duration:    60,
		ReadyState:  int(engine.CanPlayThrough),
		Paused:      true,
		BufferedEnd: 40,
	})
	stream.ReloadSource()

	if stream.ReadyState() != engine.Unstarted {
		t.Errorf("ready state after reload = %v; want unstarted", stream.ReadyState())
	}
	if stream.BufferedAhead() != 0 {
		t.Errorf("buffered ahead after reload = %v; want 0", stream.BufferedAhead())
	}
}

func TestRegistry_unknown_stream_report_dropped(t *testing.T) {
	registry, _ := newRemoteFixture()
	var got []engine.StreamEvent
	registry.SetEventSink(func(ev engine.StreamEvent) { got = append(got, ev) })

	registry.handleReport(StreamReport{StreamID: "ghost", Kind: "play"})
	if len(got) != 0 {
		t.Errorf("sink received %d events for an unknown stream", len(got))
	}
}
