package engine

import "math"

// Marker layout constants. The visual marker grid is discretized in
// percent of the timeline width, so time-space and percent-space each get
// their own clamp pass.
const (
	minMarkerGapPercent = 2.0
	dragGapPercent      = 0.5
	maxStartPercent     = 98.0
	minEndPercent       = 2.0
	minExtentPercent    = 1.0

	defaultRegionSpan = 10.0
	defaultEndPercent = 10.0
)

// Region is the selected [start, end] interval together with the rendered
// marker positions, in percent of the timeline width.
type Region struct {
	StartTime    float64
	EndTime      float64
	StartPercent float64
	EndPercent   float64
}

// Extent is the rendered selection block between the two markers.
type Extent struct {
	LeftPercent  float64
	WidthPercent float64
}

// Timeline owns the current selection region and translates between
// time-space and percent-space for a stream whose duration may not be
// known yet. While a drag is in progress the percentages are the source
// of truth; canonical times are re-derived when the drag commits.
type Timeline struct {
	region   Region
	duration float64 // 0 while unknown
	dragging bool
}

// NewTimeline returns a timeline holding the default region.
func NewTimeline() *Timeline {
	t := &Timeline{}
	t.Reset()
	return t
}

// Reset restores the default region. Invoked whenever a new sample or
// stream is loaded, before the duration is known.
func (t *Timeline) Reset() {
	t.duration = 0
	t.dragging = false
	t.region = Region{
		StartTime:    0,
		EndTime:      defaultRegionSpan,
		StartPercent: 0,
		EndPercent:   defaultEndPercent,
	}
}

// SetFromTimes installs a region expressed in seconds, clamping first in
// time-space and then in percent-space. An inverted or zero-width region
// is recentered rather than rejected. With an unknown duration the times
// are kept but the markers fall back to the fixed default positions.
func (t *Timeline) SetFromTimes(startTime, endTime, duration float64) {
	t.duration = duration

	if math.IsNaN(startTime) || math.IsNaN(endTime) || startTime < 0 || endTime < 0 {
		return
	}

	if duration <= 0 || math.IsNaN(duration) {
		t.region = Region{
			StartTime:    startTime,
			EndTime:      endTime,
			StartPercent: 0,
			EndPercent:   defaultEndPercent,
		}
		return
	}

	// Time-space clamp. The end's lower bound shrinks with sub-second
	// streams so the bounds can never invert.
	startTime = clampFloat(startTime, 0, math.Max(0, duration-1))
	endTime = clampFloat(endTime, math.Min(1, duration), duration)
	if startTime >= endTime {
		startTime = math.Max(0, endTime-defaultRegionSpan)
	}

	startPct := startTime / duration * 100
	endPct := endTime / duration * 100

	// Percent-space clamp, then the minimum gap is enforced by pulling
	// the start down relative to the end.
	startPct = clampFloat(startPct, 0, maxStartPercent)
	endPct = clampFloat(endPct, minEndPercent, 100)
	finalStart := math.Min(startPct, endPct-minMarkerGapPercent)
	finalEnd := math.Max(endPct, finalStart+minMarkerGapPercent)

	t.region = Region{
		StartTime:    startTime,
		EndTime:      endTime,
		StartPercent: finalStart,
		EndPercent:   finalEnd,
	}
}

// BeginDrag marks the start of an interactive marker drag.
func (t *Timeline) BeginDrag() {
	t.dragging = true
}

// Dragging reports whether a marker drag is in progress.
func (t *Timeline) Dragging() bool {
	return t.dragging
}

// SetFromPercent installs marker positions directly, used while the user
// drags. Markers may close to within half a percent of each other here;
// the full gap is restored on commit. This path deliberately does not
// feed back through the time-space clamp, which would make the marker
// snap away from the pointer mid-drag.
func (t *Timeline) SetFromPercent(startPercent, endPercent, duration float64) {
	t.duration = duration

	startPercent = clampFloat(startPercent, 0, 100)
	endPercent = clampFloat(endPercent, 0, 100)
	if startPercent > endPercent-dragGapPercent {
		startPercent = math.Max(0, endPercent-dragGapPercent)
	}
	if endPercent < startPercent+dragGapPercent {
		endPercent = math.Min(100, startPercent+dragGapPercent)
	}

	r := Region{StartPercent: startPercent, EndPercent: endPercent}
	if duration > 0 && !math.IsNaN(duration) {
		r.StartTime = startPercent / 100 * duration
		r.EndTime = endPercent / 100 * duration
	} else {
		r.StartTime = t.region.StartTime
		r.EndTime = t.region.EndTime
	}
	t.region = r
}

// CommitDrag ends an interactive drag and re-derives the canonical region
// from the dragged times.
func (t *Timeline) CommitDrag() {
	if !t.dragging {
		return
	}
	t.dragging = false
	t.SetFromTimes(t.region.StartTime, t.region.EndTime, t.duration)
}

// Region returns the current selection region.
func (t *Timeline) Region() Region {
	return t.region
}

// Duration returns the stream duration; ok is false while unknown.
func (t *Timeline) Duration() (float64, bool) {
	if t.duration <= 0 || math.IsNaN(t.duration) {
		return 0, false
	}
	return t.duration, true
}

// Extent returns the rendered selection block, clamped to the marker
// bounds with a minimum visible width of one percent.
func (t *Timeline) Extent() Extent {
	left := math.Min(t.region.StartPercent, t.region.EndPercent)
	right := math.Max(t.region.StartPercent, t.region.EndPercent)
	left = clampFloat(left, 0, maxStartPercent)
	right = clampFloat(right, minEndPercent, 100)
	return Extent{
		LeftPercent:  left,
		WidthPercent: math.Max(minExtentPercent, right-left),
	}
}

// Labels returns the marker label texts for the current region.
func (t *Timeline) Labels() (start, end string) {
	return FormatTimecode(t.region.StartTime), FormatTimecode(t.region.EndTime)
}

// Progress maps a playhead position onto the selection block: the
// returned extent grows from the region start as playback advances.
// ok is false when the playhead is outside the region or the duration is
// unknown, in which case the progress bar is hidden.
func (t *Timeline) Progress(currentTime float64) (Extent, bool) {
	if t.duration <= 0 || math.IsNaN(t.duration) {
		return Extent{}, false
	}
	r := t.region
	if currentTime < r.StartTime || currentTime > r.EndTime || r.EndTime <= r.StartTime {
		return Extent{}, false
	}
	frac := (currentTime - r.StartTime) / (r.EndTime - r.StartTime)
	return Extent{
		LeftPercent:  r.StartPercent,
		WidthPercent: (r.EndPercent - r.StartPercent) * frac,
	}, true
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
