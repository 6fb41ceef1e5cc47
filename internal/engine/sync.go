package engine

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"segment-annotator/internal/platform/metrics"
)

// DefaultSyncThreshold is the minimum drift, in seconds, before a
// corrective seek is issued. Below it, normal decode jitter would cause
// constant micro-corrections.
const DefaultSyncThreshold = 0.1

const (
	playPauseDebounce  = 10 * time.Millisecond
	seekedDebounce     = 20 * time.Millisecond
	correctionCooldown = 100 * time.Millisecond
	seekCooldown       = 50 * time.Millisecond
	seekRateLimit      = 50 * time.Millisecond
	reconcileInterval  = 200 * time.Millisecond
	advanceInterval    = 20 * time.Millisecond
)

// SyncPhase is the synchronizer's explicit correction state. Every
// corrective action re-triggers the same native events it listens for;
// SyncCorrecting absorbs that cascade until the cooldown expires.
type SyncPhase int

const (
	SyncIdle SyncPhase = iota
	SyncCorrecting
)

type pendingKey struct {
	streamID string
	kind     EventKind
}

type pendingEvent struct {
	event StreamEvent
	due   time.Time
}

// Synchronizer keeps followers aligned with the master stream. It
// consumes the closed set of stream events, debounces them, detects
// drift against the originating stream, and issues corrective seeks,
// replicating play/pause across the group. A periodic reconciliation
// tick catches slow accumulated drift that discrete events miss.
type Synchronizer struct {
	group     *StreamGroup
	threshold float64
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu                 sync.Mutex
	phase              SyncPhase
	correctingUntil    time.Time
	lastSeekCorrection time.Time
	lastReconcile      time.Time
	pending            map[pendingKey]pendingEvent
}

// NewSynchronizer builds a synchronizer over the group. A threshold of 0
// selects DefaultSyncThreshold. Metrics may be nil.
func NewSynchronizer(group *StreamGroup, threshold float64, log *slog.Logger, m *metrics.Metrics) *Synchronizer {
	if threshold <= 0 {
		threshold = DefaultSyncThreshold
	}
	return &Synchronizer{
		group:     group,
		threshold: threshold,
		log:       log,
		metrics:   m,
		pending:   make(map[pendingKey]pendingEvent),
	}
}

// Phase returns the current correction phase.
func (s *Synchronizer) Phase() SyncPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// HandleEvent records a native stream event. Play, pause and seeked are
// debounced: a repeat of the same event from the same stream within the
// debounce window replaces the earlier one and restarts its timer.
// Time-advance ticks carry no correction intent and are dropped here;
// the reconciliation pass reads playheads directly.
func (s *Synchronizer) HandleEvent(ev StreamEvent) {
	if ev.Kind == EventTimeAdvance {
		return
	}
	var debounce time.Duration
	switch ev.Kind {
	case EventPlay, EventPause:
		debounce = playPauseDebounce
	case EventSeeked:
		debounce = seekedDebounce
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pendingKey{ev.StreamID, ev.Kind}] = pendingEvent{
		event: ev,
		due:   ev.At.Add(debounce),
	}
}

// Advance drives the synchronizer forward to now: it releases an expired
// correction window, applies debounced events that have come due, and
// runs the periodic reconciliation pass. The run loop calls it on a
// short interval; tests call it directly with a crafted clock.
func (s *Synchronizer) Advance(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == SyncCorrecting && !now.Before(s.correctingUntil) {
		s.phase = SyncIdle
	}

	s.flushPending(now)

	if now.Sub(s.lastReconcile) >= reconcileInterval {
		s.lastReconcile = now
		s.reconcile(now)
	}
}

// Run drives Advance on a short interval until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) {
	ticker := time.NewTicker(advanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.Advance(t)
		}
	}
}

// flushPending applies due events in arrival order. Caller holds s.mu.
func (s *Synchronizer) flushPending(now time.Time) {
	if len(s.pending) == 0 {
		return
	}
	due := make([]pendingEvent, 0, len(s.pending))
	for key, p := range s.pending {
		if !now.Before(p.due) {
			due = append(due, p)
			delete(s.pending, key)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].event.At.Before(due[j].event.At) })
	for _, p := range due {
		s.apply(p.event, now)
	}
}

// apply processes one debounced event. Caller holds s.mu.
func (s *Synchronizer) apply(ev StreamEvent, now time.Time) {
	if s.group.Len() <= 1 {
		return
	}
	// Events arriving inside a correction window are echoes of our own
	// corrections; acting on them is how infinite loops start.
	if s.phase == SyncCorrecting {
		return
	}
	origin, ok := s.group.ByID(ev.StreamID)
	if !ok {
		return
	}

	switch ev.Kind {
	case EventPlay, EventPause:
		s.replicate(origin, ev.Kind, now)
	case EventSeeked:
		if now.Sub(s.lastSeekCorrection) < seekRateLimit {
			return
		}
		s.lastSeekCorrection = now
		s.alignTimes(origin, now)
	}
}

// replicate aligns every other stream to the originating stream's time
// and mirrors its play/pause action, skipping the originator. Caller
// holds s.mu.
func (s *Synchronizer) replicate(origin MediaStream, kind EventKind, now time.Time) {
	s.phase = SyncCorrecting
	s.correctingUntil = now.Add(correctionCooldown)

	target := origin.CurrentTime()
	for _, st := range s.group.Streams() {
		if st.ID() == origin.ID() || st.ReadyState() < CanPlay {
			continue
		}
		if drift := math.Abs(st.CurrentTime() - target); drift > s.threshold {
			if err := st.SeekTo(target); err != nil {
				s.log.Warn("follower seek failed",
					slog.String("stream_id", st.ID()),
					slog.String("error", err.Error()))
				continue
			}
			s.recordCorrection(drift)
		}
		if kind == EventPlay {
			if err := st.Play(); err != nil {
				s.log.Warn("follower play rejected",
					slog.String("stream_id", st.ID()),
					slog.String("error", err.Error()))
				continue
			}
		} else {
			st.Pause()
		}
	}
}

// alignTimes seeks every other ready stream to the originating stream's
// time without touching play/pause state. Caller holds s.mu.
func (s *Synchronizer) alignTimes(origin MediaStream, now time.Time) {
	s.phase = SyncCorrecting
	s.correctingUntil = now.Add(seekCooldown)

	target := origin.CurrentTime()
	for _, st := range s.group.Streams() {
		if st.ID() == origin.ID() || st.ReadyState() < CanPlay {
			continue
		}
		if _, ok := st.Duration(); !ok {
			continue
		}
		drift := math.Abs(st.CurrentTime() - target)
		if drift <= s.threshold {
			continue
		}
		if err := st.SeekTo(target); err != nil {
			s.log.Warn("follower seek failed",
				slog.String("stream_id", st.ID()),
				slog.String("error", err.Error()))
			continue
		}
		s.recordCorrection(drift)
	}
}

// reconcile scans followers for drift beyond the threshold while the
// master plays, correcting by direct time assignment. Native time-update
// signals alone are not reliable enough to catch slow accumulated drift
// between discrete seek events. Caller holds s.mu.
func (s *Synchronizer) reconcile(now time.Time) {
	if s.group.Len() <= 1 || s.phase == SyncCorrecting {
		return
	}
	master, ok := s.group.Master()
	if !ok || master.Paused() || master.ReadyState() < CanPlay {
		return
	}

	masterTime := master.CurrentTime()
	drifted := false
	for _, st := range s.group.Streams() {
		if st.ID() == master.ID() || st.ReadyState() < CanPlay {
			continue
		}
		if math.Abs(st.CurrentTime()-masterTime) > s.threshold {
			drifted = true
			break
		}
	}
	if !drifted {
		return
	}

	s.phase = SyncCorrecting
	s.correctingUntil = now.Add(seekCooldown)

	for _, st := range s.group.Streams() {
		if st.ID() == master.ID() || st.ReadyState() < CanPlay {
			continue
		}
		drift := math.Abs(st.CurrentTime() - masterTime)
		if drift <= s.threshold {
			continue
		}
		if err := st.SeekTo(masterTime); err != nil {
			s.log.Warn("drift correction failed",
				slog.String("stream_id", st.ID()),
				slog.String("error", err.Error()))
			continue
		}
		s.log.Debug("corrected follower drift",
			slog.String("stream_id", st.ID()),
			slog.Float64("drift_s", drift))
		s.recordCorrection(drift)
	}
}

func (s *Synchronizer) recordCorrection(drift float64) {
	if s.metrics != nil {
		s.metrics.IncSyncCorrections()
		s.metrics.ObserveDrift(drift)
	}
}
