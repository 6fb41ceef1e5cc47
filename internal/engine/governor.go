package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"segment-annotator/internal/platform/metrics"
)

const (
	// DefaultVisibilityInterval spaces the viewport sweeps.
	DefaultVisibilityInterval = 3 * time.Second
	// DefaultBufferInterval spaces the buffer-health sweeps.
	DefaultBufferInterval = 5 * time.Second

	maxBufferedAhead   = 20.0
	maxTotalBuffered   = 100.0
	maxReloadsPerSweep = 3
)

// Governor throttles the resource cost of the active stream group: it
// pauses playing streams that have scrolled off screen, resumes
// user-started streams that return to view, and forces source reloads on
// streams whose buffers have grown out of bounds.
type Governor struct {
	group              *StreamGroup
	log                *slog.Logger
	metrics            *metrics.Metrics
	visibilityInterval time.Duration
	bufferInterval     time.Duration
}

// NewGovernor builds a governor over the group. Metrics may be nil.
func NewGovernor(group *StreamGroup, log *slog.Logger, m *metrics.Metrics) *Governor {
	return &Governor{
		group:              group,
		log:                log,
		metrics:            m,
		visibilityInterval: DefaultVisibilityInterval,
		bufferInterval:     DefaultBufferInterval,
	}
}

// SetIntervals overrides the sweep intervals; non-positive values keep
// the defaults.
func (g *Governor) SetIntervals(visibility, buffer time.Duration) {
	if visibility > 0 {
		g.visibilityInterval = visibility
	}
	if buffer > 0 {
		g.bufferInterval = buffer
	}
}

// Run sweeps periodically until ctx is done.
func (g *Governor) Run(ctx context.Context) {
	visTicker := time.NewTicker(g.visibilityInterval)
	bufTicker := time.NewTicker(g.bufferInterval)
	defer visTicker.Stop()
	defer bufTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-visTicker.C:
			g.SweepVisibility()
		case <-bufTicker.C:
			g.SweepBuffers()
		}
	}
}

// SweepVisibility pauses playing streams that are not fully in view and
// resumes in-view paused streams the user had explicitly started.
func (g *Governor) SweepVisibility() {
	for _, st := range g.group.Streams() {
		inView := st.InViewport()
		switch {
		case !inView && !st.Paused():
			g.log.Debug("pausing off-screen stream", slog.String("stream_id", st.ID()))
			st.Pause()
		case inView && st.Paused() && st.UserInitiated():
			if err := st.Play(); err != nil {
				g.log.Warn("auto-resume rejected",
					slog.String("stream_id", st.ID()),
					slog.String("error", err.Error()))
			}
		}
	}
}

// SweepBuffers reloads the sources of the worst-buffering streams when
// any single stream holds more than 20s past the playhead, or the group
// total exceeds 100s. At most three streams are reloaded per sweep.
func (g *Governor) SweepBuffers() {
	type buffered struct {
		stream MediaStream
		ahead  float64
	}

	var total float64
	var offenders []buffered
	var all []buffered
	for _, st := range g.group.Streams() {
		ahead := st.BufferedAhead()
		total += ahead
		all = append(all, buffered{st, ahead})
		if ahead > maxBufferedAhead {
			offenders = append(offenders, buffered{st, ahead})
		}
	}

	if len(offenders) == 0 {
		if total <= maxTotalBuffered {
			return
		}
		// No single stream is over its own limit but the group is; trim
		// the worst few anyway.
		offenders = all
	}

	sort.Slice(offenders, func(i, j int) bool { return offenders[i].ahead > offenders[j].ahead })
	if len(offenders) > maxReloadsPerSweep {
		offenders = offenders[:maxReloadsPerSweep]
	}
	for _, b := range offenders {
		g.log.Info("reloading over-buffered stream",
			slog.String("stream_id", b.stream.ID()),
			slog.Float64("buffered_ahead_s", b.ahead))
		b.stream.ReloadSource()
		if g.metrics != nil {
			g.metrics.IncBufferReloads()
		}
	}
}
