package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNoActiveStream is returned by group operations when no streams are
// mounted. Callers treat it as a signal, not a failure.
var ErrNoActiveStream = errors.New("no active stream")

const (
	// DefaultPlayStagger is the delay between starting consecutive
	// streams. Issuing many concurrent decode-start requests to the host
	// media stack is a known cause of stutter.
	DefaultPlayStagger = 50 * time.Millisecond

	readyPollInterval = 200 * time.Millisecond
)

// StreamGroup presents a uniform playback surface over the 1..N streams
// of the current sample, hiding the single-vs-multi distinction. The
// first stream is always the master.
type StreamGroup struct {
	streams []MediaStream
	log     *slog.Logger
}

// NewStreamGroup builds a group over the given streams. The slice order
// is viewpoint order; index 0 is the master.
func NewStreamGroup(streams []MediaStream, log *slog.Logger) *StreamGroup {
	return &StreamGroup{streams: streams, log: log}
}

// Streams returns the group's streams in viewpoint order.
func (g *StreamGroup) Streams() []MediaStream {
	return g.streams
}

// Len returns the number of mounted streams.
func (g *StreamGroup) Len() int {
	return len(g.streams)
}

// Master returns the authoritative stream; ok is false for an empty group.
func (g *StreamGroup) Master() (MediaStream, bool) {
	if len(g.streams) == 0 {
		return nil, false
	}
	return g.streams[0], true
}

// ByID looks up a mounted stream.
func (g *StreamGroup) ByID(id string) (MediaStream, bool) {
	for _, s := range g.streams {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// MasterTime returns the master's playhead, or 0 for an empty group.
func (g *StreamGroup) MasterTime() float64 {
	m, ok := g.Master()
	if !ok {
		return 0
	}
	return m.CurrentTime()
}

// MasterDuration returns the master's duration; ok is false while the
// duration is unknown or the group is empty.
func (g *StreamGroup) MasterDuration() (float64, bool) {
	m, ok := g.Master()
	if !ok {
		return 0, false
	}
	return m.Duration()
}

// IsAnyPaused reports whether at least one stream is paused.
func (g *StreamGroup) IsAnyPaused() bool {
	for _, s := range g.streams {
		if s.Paused() {
			return true
		}
	}
	return false
}

// AllReady reports whether every stream has reached at least min.
func (g *StreamGroup) AllReady(min ReadyState) bool {
	if len(g.streams) == 0 {
		return false
	}
	for _, s := range g.streams {
		if s.ReadyState() < min {
			return false
		}
	}
	return true
}

// SeekAll seeks every stream that has loaded metadata and returns how
// many were skipped because they had not. Seek failures are logged and
// do not abort the remaining streams.
func (g *StreamGroup) SeekAll(seconds float64) (skipped int, err error) {
	if len(g.streams) == 0 {
		return 0, ErrNoActiveStream
	}
	for _, s := range g.streams {
		if s.ReadyState() < HasMetadata {
			skipped++
			continue
		}
		if err := s.SeekTo(seconds); err != nil {
			g.log.Warn("stream seek failed",
				slog.String("stream_id", s.ID()),
				slog.String("error", err.Error()))
		}
	}
	return skipped, nil
}

// SeekAllWhenReady seeks streams as they become ready, polling every
// 200ms until every stream has been positioned or ctx is done. A late
// loading follower would otherwise silently desynchronize.
func (g *StreamGroup) SeekAllWhenReady(ctx context.Context, seconds float64) error {
	if len(g.streams) == 0 {
		return ErrNoActiveStream
	}

	seeked := make(map[string]bool, len(g.streams))
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		remaining := 0
		for _, s := range g.streams {
			if seeked[s.ID()] {
				continue
			}
			if s.ReadyState() < HasMetadata {
				remaining++
				continue
			}
			if err := s.SeekTo(seconds); err != nil {
				g.log.Warn("stream seek failed",
					slog.String("stream_id", s.ID()),
					slog.String("error", err.Error()))
			}
			seeked[s.ID()] = true
		}
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitReady blocks until every stream has reached min or ctx is done,
// polling every 200ms.
func (g *StreamGroup) WaitReady(ctx context.Context, min ReadyState) error {
	if len(g.streams) == 0 {
		return ErrNoActiveStream
	}
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		if g.AllReady(min) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PlayAll starts every stream in staggered order, stagger apart, and
// marks each started stream as user initiated. A rejected playback
// request excludes only that stream.
func (g *StreamGroup) PlayAll(stagger time.Duration) error {
	if len(g.streams) == 0 {
		return ErrNoActiveStream
	}
	for i, s := range g.streams {
		if i > 0 && stagger > 0 {
			time.Sleep(stagger)
		}
		if err := s.Play(); err != nil {
			g.log.Warn("stream play rejected",
				slog.String("stream_id", s.ID()),
				slog.String("error", err.Error()))
			continue
		}
		s.SetUserInitiated(true)
	}
	return nil
}

// PauseAll pauses every stream.
func (g *StreamGroup) PauseAll() error {
	if len(g.streams) == 0 {
		return ErrNoActiveStream
	}
	for _, s := range g.streams {
		s.Pause()
	}
	return nil
}

// Destroy pauses and releases every stream. The group must not be used
// afterwards.
func (g *StreamGroup) Destroy() {
	for _, s := range g.streams {
		s.Pause()
		s.Destroy()
	}
	g.streams = nil
}
