package engine

import (
	"context"
	"errors"
	"log/slog"
)

// Navigation signals. They mark bounded navigation and empty lists;
// callers surface them as notices, not failures.
var (
	ErrNoSegments = errors.New("no segments available")
	ErrNoSamples  = errors.New("no samples available")
	ErrAtEnd      = errors.New("already at the last segment of the last sample")
	ErrAtStart    = errors.New("already at the first segment of the first sample")
)

// DefaultPageSize is the number of segments rendered per page.
const DefaultPageSize = 10

// ListPosition names which end of a freshly loaded segment list a
// pending selection targets.
type ListPosition int

const (
	FirstSegment ListPosition = iota
	LastSegment
)

// PendingSelection is a deferred navigation intent: navigation crossed
// into a sample whose segment list has not been rendered yet. At most
// one exists at a time; a newer intent overwrites it, and it is consumed
// exactly once when the target list arrives.
type PendingSelection struct {
	SegmentID string
	SampleID  string
	Position  ListPosition
}

// SegmentSource fetches the ordered segment list for a sample.
type SegmentSource interface {
	SampleSegments(ctx context.Context, sampleID string) ([]Segment, error)
}

// Navigator is a linear cursor over the active sample's segments with
// cross-sample continuation and page tracking. It is not safe for
// concurrent use; the session serializes access.
type Navigator struct {
	source SegmentSource
	log    *slog.Logger

	samples   []Sample
	sampleID  string
	segments  []Segment
	currentID string
	pageSize  int
	page      int
	pending   *PendingSelection

	// onSampleChange fires when navigation moves to another sample, so
	// the owner can rebuild the stream group and reload the list.
	onSampleChange func(Sample)
}

// NewNavigator builds a navigator backed by source. A pageSize of 0
// selects DefaultPageSize.
func NewNavigator(source SegmentSource, pageSize int, log *slog.Logger) *Navigator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Navigator{
		source:   source,
		log:      log,
		pageSize: pageSize,
		page:     1,
	}
}

// OnSampleChange registers the sample-switch callback.
func (n *Navigator) OnSampleChange(fn func(Sample)) {
	n.onSampleChange = fn
}

// SetSamples installs the ordered sample list of the active dataset.
func (n *Navigator) SetSamples(samples []Sample) {
	n.samples = samples
}

// Samples returns the dataset's sample list.
func (n *Navigator) Samples() []Sample {
	return n.samples
}

// ActiveSample returns the sample the cursor is in.
func (n *Navigator) ActiveSample() (Sample, bool) {
	return n.sampleByID(n.sampleID)
}

// SelectSample moves the cursor to the given sample and clears the
// segment list and selection until fresh segments arrive.
func (n *Navigator) SelectSample(id string) (Sample, bool) {
	sample, ok := n.sampleByID(id)
	if !ok {
		return Sample{}, false
	}
	n.sampleID = id
	n.segments = nil
	n.currentID = ""
	n.page = 1
	return sample, true
}

// SetSegments installs a freshly loaded segment list for sampleID. The
// list is dropped when the user has navigated away since the fetch
// started. A matching pending selection is consumed exactly once and the
// chosen segment is returned; otherwise a selection whose id vanished
// from the fresh list is cleared.
func (n *Navigator) SetSegments(sampleID string, segments []Segment) *Segment {
	if sampleID != n.sampleID {
		n.log.Debug("dropping stale segment list", slog.String("sample_id", sampleID))
		return nil
	}
	n.segments = segments

	if p := n.pending; p != nil && p.SampleID == sampleID {
		n.pending = nil
		if len(segments) == 0 {
			return nil
		}
		seg, ok := n.segmentByID(p.SegmentID)
		if !ok {
			if p.Position == LastSegment {
				seg = segments[len(segments)-1]
			} else {
				seg = segments[0]
			}
		}
		n.currentID = seg.ID
		n.ensureVisible()
		return &seg
	}

	if n.currentID != "" {
		if _, ok := n.segmentByID(n.currentID); !ok {
			n.currentID = ""
		}
	}
	n.ensureVisible()
	return nil
}

// Segments returns the full segment list of the active sample.
func (n *Navigator) Segments() []Segment {
	return n.segments
}

// Pending returns the outstanding deferred selection, if any.
func (n *Navigator) Pending() *PendingSelection {
	return n.pending
}

// Current returns the selected segment.
func (n *Navigator) Current() (Segment, bool) {
	return n.segmentByID(n.currentID)
}

// Select marks the segment with the given id as selected and moves the
// page so the selection is always on a rendered page.
func (n *Navigator) Select(id string) (Segment, bool) {
	seg, ok := n.segmentByID(id)
	if !ok {
		return Segment{}, false
	}
	n.currentID = seg.ID
	n.ensureVisible()
	return seg, true
}

// ClearSelection drops the current selection.
func (n *Navigator) ClearSelection() {
	n.currentID = ""
}

// Page returns the 1-based page the selection lives on.
func (n *Navigator) Page() int {
	return n.page
}

// PageCount returns the number of pages for the current list.
func (n *Navigator) PageCount() int {
	if len(n.segments) == 0 {
		return 1
	}
	return (len(n.segments) + n.pageSize - 1) / n.pageSize
}

// PageSlice returns the segments on the current page.
func (n *Navigator) PageSlice() []Segment {
	start := (n.page - 1) * n.pageSize
	if start >= len(n.segments) {
		return nil
	}
	end := start + n.pageSize
	if end > len(n.segments) {
		end = len(n.segments)
	}
	return n.segments[start:end]
}

// Next advances to the next segment. On the last segment of the sample
// it hands off to the next sample, deferring the concrete selection
// until that sample's list is rendered. At the very end it returns
// ErrAtEnd and leaves the selection untouched. A nil segment with a nil
// error means the selection is deferred (or the target sample is empty).
func (n *Navigator) Next(ctx context.Context) (*Segment, error) {
	if len(n.segments) == 0 {
		return nil, ErrNoSegments
	}
	if n.currentID == "" {
		seg := n.selectIndex(0)
		return &seg, nil
	}
	idx, ok := n.indexOf(n.currentID)
	if !ok {
		// Stale reference: the selected id vanished from the list.
		seg := n.selectIndex(0)
		return &seg, nil
	}
	if idx < len(n.segments)-1 {
		seg := n.selectIndex(idx + 1)
		return &seg, nil
	}
	return n.crossSample(ctx, +1)
}

// Previous is the mirror of Next, crossing into the previous sample's
// last segment and returning ErrAtStart at the very beginning.
func (n *Navigator) Previous(ctx context.Context) (*Segment, error) {
	if len(n.segments) == 0 {
		return nil, ErrNoSegments
	}
	if n.currentID == "" {
		seg := n.selectIndex(len(n.segments) - 1)
		return &seg, nil
	}
	idx, ok := n.indexOf(n.currentID)
	if !ok {
		seg := n.selectIndex(0)
		return &seg, nil
	}
	if idx > 0 {
		seg := n.selectIndex(idx - 1)
		return &seg, nil
	}
	return n.crossSample(ctx, -1)
}

// crossSample moves the cursor into the adjacent sample and parks a
// pending selection for its first or last segment.
func (n *Navigator) crossSample(ctx context.Context, direction int) (*Segment, error) {
	if len(n.samples) == 0 {
		return nil, ErrNoSamples
	}

	si := n.sampleIndex(n.sampleID)
	if si == -1 {
		// Stale sample reference; restart from the first sample.
		n.switchSample(n.samples[0])
		return nil, nil
	}

	ti := si + direction
	if ti >= len(n.samples) {
		return nil, ErrAtEnd
	}
	if ti < 0 {
		return nil, ErrAtStart
	}

	target := n.samples[ti]
	n.switchSample(target)

	segments, err := n.source.SampleSegments(ctx, target.ID)
	if err != nil {
		n.log.Warn("segment fetch failed",
			slog.String("sample_id", target.ID),
			slog.String("error", err.Error()))
		return nil, err
	}
	if len(segments) == 0 {
		return nil, nil
	}

	pos := FirstSegment
	segID := segments[0].ID
	if direction < 0 {
		pos = LastSegment
		segID = segments[len(segments)-1].ID
	}
	// Overwrite, never queue: the latest intent wins.
	n.pending = &PendingSelection{SegmentID: segID, SampleID: target.ID, Position: pos}
	return nil, nil
}

func (n *Navigator) switchSample(sample Sample) {
	n.sampleID = sample.ID
	n.segments = nil
	n.currentID = ""
	n.page = 1
	if n.onSampleChange != nil {
		n.onSampleChange(sample)
	}
}

func (n *Navigator) selectIndex(i int) Segment {
	seg := n.segments[i]
	n.currentID = seg.ID
	n.ensureVisible()
	return seg
}

// ensureVisible recomputes the page from the selection's absolute index
// so the selection never points at an element absent from the rendered
// page.
func (n *Navigator) ensureVisible() {
	idx, ok := n.indexOf(n.currentID)
	if !ok {
		if n.page > n.PageCount() {
			n.page = n.PageCount()
		}
		return
	}
	target := idx/n.pageSize + 1
	if target != n.page {
		n.page = target
	}
}

func (n *Navigator) indexOf(id string) (int, bool) {
	for i, s := range n.segments {
		if s.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (n *Navigator) segmentByID(id string) (Segment, bool) {
	if id == "" {
		return Segment{}, false
	}
	i, ok := n.indexOf(id)
	if !ok {
		return Segment{}, false
	}
	return n.segments[i], true
}

func (n *Navigator) sampleIndex(id string) int {
	for i, s := range n.samples {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (n *Navigator) sampleByID(id string) (Sample, bool) {
	i := n.sampleIndex(id)
	if i == -1 {
		return Sample{}, false
	}
	return n.samples[i], true
}
