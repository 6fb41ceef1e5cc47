package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"segment-annotator/internal/platform/metrics"
)

// Boundary validation signals. Invalid input is rejected before any
// state mutation.
var (
	ErrNoActiveSample    = errors.New("no sample selected")
	ErrNoSegmentSelected = errors.New("no segment selected")
	ErrInvalidTimecode   = errors.New("invalid timecode")
	ErrInvalidRegion     = errors.New("region start must be before region end")
	ErrInvalidBatch      = errors.New("invalid batch segment duration")
)

const (
	defaultCommentSaveDelay   = time.Second
	defaultBatchCreateSpacing = 100 * time.Millisecond
	regionEndPollInterval     = 100 * time.Millisecond
)

// AnnotationStore persists segments and review state. The backend
// service is the system of record; every method is a network call.
type AnnotationStore interface {
	SegmentSource
	CreateSegment(ctx context.Context, seg Segment) error
	UpdateSegment(ctx context.Context, seg Segment) error
	DeleteSegment(ctx context.Context, id string) error
	RemoveRejected(ctx context.Context, datasetID string) error
	MarkSampleReviewed(ctx context.Context, sampleID string) error
	MarkSampleUnreviewed(ctx context.Context, sampleID string) error
}

// StreamFactory mounts a playable stream handle for one media source.
type StreamFactory interface {
	NewStream(id, sourceURI string) MediaStream
}

// Notifier receives the engine's state notifications for the UI layer.
// The UI owns all presentation; the engine only guarantees the carried
// state is correct and current.
type Notifier interface {
	SelectionChanged(sample *Sample, segment *Segment)
	RegionChanged(region Region, extent Extent, startLabel, endLabel string)
	PlaybackStateChanged(playing bool)
}

// SessionConfig tunes the engine. Zero values select defaults.
type SessionConfig struct {
	SyncThreshold      float64
	PlayStagger        time.Duration
	PageSize           int
	VisibilityInterval time.Duration
	BufferInterval     time.Duration
	CommentSaveDelay   time.Duration
	BatchCreateSpacing time.Duration
}

// Session coordinates one annotator working through a dataset: it owns
// the active StreamGroup, the timeline and the navigator, and restarts
// the playback cycle whenever the selection changes.
type Session struct {
	store    AnnotationStore
	factory  StreamFactory
	notifier Notifier
	cfg      SessionConfig
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	timeline *Timeline
	nav      *Navigator
	cache    *SegmentCache

	group       *StreamGroup
	sync        *Synchronizer
	governor    *Governor
	groupCancel context.CancelFunc
	watchCancel context.CancelFunc

	switchedTo *Sample

	commentMu    sync.Mutex
	commentTimer *time.Timer
}

// NewSession wires a session. Metrics may be nil.
func NewSession(store AnnotationStore, factory StreamFactory, notifier Notifier, cfg SessionConfig, log *slog.Logger, m *metrics.Metrics) *Session {
	if cfg.PlayStagger <= 0 {
		cfg.PlayStagger = DefaultPlayStagger
	}
	if cfg.CommentSaveDelay <= 0 {
		cfg.CommentSaveDelay = defaultCommentSaveDelay
	}
	if cfg.BatchCreateSpacing <= 0 {
		cfg.BatchCreateSpacing = defaultBatchCreateSpacing
	}
	s := &Session{
		store:    store,
		factory:  factory,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		metrics:  m,
		timeline: NewTimeline(),
		cache:    NewSegmentCache(),
	}
	s.nav = NewNavigator(store, cfg.PageSize, log)
	s.nav.OnSampleChange(func(sample Sample) {
		s.switchedTo = &sample
	})
	return s
}

// Navigator exposes the segment cursor for read-side queries.
func (s *Session) Navigator() *Navigator {
	return s.nav
}

// Timeline exposes the region model for read-side queries.
func (s *Session) Timeline() *Timeline {
	return s.timeline
}

// SetSamples installs the ordered sample list of the active dataset and
// drops all cached segment lists.
func (s *Session) SetSamples(samples []Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav.SetSamples(samples)
	s.cache.Clear()
}

// SelectSample makes the given sample active: the previous stream group
// is destroyed, a fresh one is mounted from the sample's sources, the
// timeline resets to the default region, and the segment list loads.
func (s *Session) SelectSample(ctx context.Context, sampleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample, ok := s.nav.SelectSample(sampleID)
	if !ok {
		return fmt.Errorf("select sample %q: %w", sampleID, ErrNoActiveSample)
	}
	s.mountSample(sample)
	if err := s.loadSegmentsLocked(ctx, sample.ID); err != nil {
		return err
	}
	s.notifier.SelectionChanged(&sample, nil)
	return nil
}

// mountSample tears down the previous group and builds the new one.
// Caller holds s.mu.
func (s *Session) mountSample(sample Sample) {
	s.teardownGroupLocked()

	var streams []MediaStream
	for i, uri := range sample.SourceURIs() {
		id := fmt.Sprintf("%s#%d", sample.ID, i)
		streams = append(streams, s.factory.NewStream(id, uri))
	}
	s.group = NewStreamGroup(streams, s.log)
	s.sync = NewSynchronizer(s.group, s.cfg.SyncThreshold, s.log, s.metrics)
	s.governor = NewGovernor(s.group, s.log, s.metrics)
	s.governor.SetIntervals(s.cfg.VisibilityInterval, s.cfg.BufferInterval)
	if s.metrics != nil {
		s.metrics.SetStreamsActive(s.group.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.groupCancel = cancel
	go s.sync.Run(ctx)
	go s.governor.Run(ctx)

	s.timeline.Reset()
	s.notifyRegionLocked()
}

// teardownGroupLocked stops the group-scoped loops and releases the
// streams. Caller holds s.mu.
func (s *Session) teardownGroupLocked() {
	s.stopRegionWatchLocked()
	if s.groupCancel != nil {
		s.groupCancel()
		s.groupCancel = nil
	}
	if s.group != nil {
		s.group.Destroy()
		s.group = nil
	}
	s.sync = nil
	s.governor = nil
	if s.metrics != nil {
		s.metrics.SetStreamsActive(0)
	}
}

// Close releases everything owned by the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownGroupLocked()
}

// loadSegmentsLocked loads the active sample's segments, from cache when
// possible, and installs them on the navigator. Caller holds s.mu.
func (s *Session) loadSegmentsLocked(ctx context.Context, sampleID string) error {
	segments, ok := s.cache.Get(sampleID)
	if !ok {
		var err error
		segments, err = s.store.SampleSegments(ctx, sampleID)
		if err != nil {
			return fmt.Errorf("load segments for %q: %w", sampleID, err)
		}
		s.cache.Put(sampleID, segments)
	}
	if selected := s.nav.SetSegments(sampleID, segments); selected != nil {
		s.applySegmentLocked(*selected)
	}
	return nil
}

// HandleStreamEvent forwards a native player signal to the synchronizer
// of the active group.
func (s *Session) HandleStreamEvent(ev StreamEvent) {
	s.mu.Lock()
	sy := s.sync
	s.mu.Unlock()
	if sy != nil {
		sy.HandleEvent(ev)
	}
}

// SelectSegment selects a segment of the active sample, pauses playback
// and seeds the region from the segment bounds.
func (s *Session) SelectSegment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.nav.Select(id)
	if !ok {
		return fmt.Errorf("select segment %q: %w", id, ErrNoSegmentSelected)
	}
	s.applySegmentLocked(seg)
	return nil
}

// applySegmentLocked makes seg the selection. Caller holds s.mu.
func (s *Session) applySegmentLocked(seg Segment) {
	if s.group != nil && s.group.PauseAll() == nil {
		s.notifier.PlaybackStateChanged(false)
	}
	duration, _ := s.masterDurationLocked()
	s.timeline.SetFromTimes(seg.StartTime, seg.EndTime, duration)

	sample, _ := s.nav.ActiveSample()
	s.notifier.SelectionChanged(&sample, &seg)
	s.notifyRegionLocked()
}

// NextSegment advances the cursor; terminal position surfaces ErrAtEnd.
func (s *Session) NextSegment(ctx context.Context) error {
	return s.step(ctx, func() (*Segment, error) { return s.nav.Next(ctx) })
}

// PreviousSegment moves the cursor back; ErrAtStart marks the beginning.
func (s *Session) PreviousSegment(ctx context.Context) error {
	return s.step(ctx, func() (*Segment, error) { return s.nav.Previous(ctx) })
}

func (s *Session) step(ctx context.Context, move func() (*Segment, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.switchedTo = nil
	seg, err := move()
	if err != nil {
		return err
	}

	// Navigation may have crossed into another sample; remount and let
	// the fresh list consume the pending selection.
	if s.switchedTo != nil {
		sample := *s.switchedTo
		s.switchedTo = nil
		s.mountSample(sample)
		s.cache.Invalidate(sample.ID)
		if err := s.loadSegmentsLocked(ctx, sample.ID); err != nil {
			return err
		}
		return nil
	}

	if seg != nil {
		s.applySegmentLocked(*seg)
	}
	return nil
}

// SetRegionFromInput installs a region from the two time input texts.
func (s *Session) SetRegionFromInput(startText, endText string) error {
	start, ok := ParseTimecode(startText)
	if !ok {
		return fmt.Errorf("start %q: %w", startText, ErrInvalidTimecode)
	}
	end, ok := ParseTimecode(endText)
	if !ok {
		return fmt.Errorf("end %q: %w", endText, ErrInvalidTimecode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	duration, _ := s.masterDurationLocked()
	s.timeline.SetFromTimes(float64(start), float64(end), duration)
	s.notifyRegionLocked()
	return nil
}

// DragStartMarker moves the start marker while a drag is in progress and
// scrubs every stream to the new start so the user sees the frame under
// the marker.
func (s *Session) DragStartMarker(percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline.BeginDrag()
	duration, _ := s.masterDurationLocked()
	r := s.timeline.Region()
	s.timeline.SetFromPercent(percent, r.EndPercent, duration)
	if s.group != nil {
		if _, err := s.group.SeekAll(s.timeline.Region().StartTime); err != nil {
			s.log.Debug("drag scrub skipped", slog.String("error", err.Error()))
		}
	}
	s.notifyRegionLocked()
}

// DragEndMarker moves the end marker while a drag is in progress.
func (s *Session) DragEndMarker(percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline.BeginDrag()
	duration, _ := s.masterDurationLocked()
	r := s.timeline.Region()
	s.timeline.SetFromPercent(r.StartPercent, percent, duration)
	s.notifyRegionLocked()
}

// CommitDrag ends a marker drag and re-derives the canonical region.
func (s *Session) CommitDrag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline.CommitDrag()
	s.notifyRegionLocked()
}

// PlayRegion seeks every stream to the region start and plays them in
// staggered order, then watches for the region end and pauses there.
func (s *Session) PlayRegion(ctx context.Context) error {
	s.mu.Lock()
	group := s.group
	region := s.timeline.Region()
	stagger := s.cfg.PlayStagger
	s.mu.Unlock()

	if group == nil || group.Len() == 0 {
		return ErrNoActiveStream
	}
	if region.StartTime >= region.EndTime {
		return ErrInvalidRegion
	}

	if err := group.WaitReady(ctx, CanPlay); err != nil {
		return err
	}
	if err := group.PauseAll(); err != nil {
		return err
	}
	if err := group.SeekAllWhenReady(ctx, region.StartTime); err != nil {
		return err
	}
	if err := group.PlayAll(stagger); err != nil {
		return err
	}
	s.notifier.PlaybackStateChanged(true)
	s.startRegionWatch(region.EndTime)
	return nil
}

// Resume continues playback from the current position without seeking.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	group := s.group
	region := s.timeline.Region()
	stagger := s.cfg.PlayStagger
	s.mu.Unlock()

	if group == nil || group.Len() == 0 {
		return ErrNoActiveStream
	}
	if err := group.WaitReady(ctx, CanPlay); err != nil {
		return err
	}
	if err := group.PlayAll(stagger); err != nil {
		return err
	}
	s.notifier.PlaybackStateChanged(true)
	s.startRegionWatch(region.EndTime)
	return nil
}

// Pause pauses every stream.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group == nil {
		return ErrNoActiveStream
	}
	s.stopRegionWatchLocked()
	err := s.group.PauseAll()
	if err == nil {
		s.notifier.PlaybackStateChanged(false)
	}
	return err
}

// startRegionWatch pauses the group once the master playhead reaches the
// region end.
func (s *Session) startRegionWatch(endTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRegionWatchLocked()
	if s.group == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	group := s.group
	go func() {
		ticker := time.NewTicker(regionEndPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if group.MasterTime() >= endTime {
					if group.PauseAll() == nil {
						s.notifier.PlaybackStateChanged(false)
					}
					return
				}
			}
		}
	}()
}

func (s *Session) stopRegionWatchLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
}

// CreateSegmentFromRegion persists a new pending segment spanning the
// current region.
func (s *Session) CreateSegmentFromRegion(ctx context.Context) (Segment, error) {
	s.mu.Lock()
	sample, ok := s.nav.ActiveSample()
	region := s.timeline.Region()
	duration, hasDuration := s.masterDurationLocked()
	s.mu.Unlock()

	if !ok {
		return Segment{}, ErrNoActiveSample
	}
	if err := validateRegion(region, duration, hasDuration); err != nil {
		return Segment{}, err
	}

	seg := Segment{
		ID:         uuid.NewString(),
		SampleID:   sample.ID,
		StartTime:  region.StartTime,
		EndTime:    region.EndTime,
		Status:     StatusPending,
		VideoPaths: sample.SourceURIs(),
	}
	if err := s.store.CreateSegment(ctx, seg); err != nil {
		return Segment{}, err
	}
	if s.metrics != nil {
		s.metrics.IncSegmentsCreated()
	}
	return seg, s.reloadSegments(ctx, sample.ID)
}

// BatchPlan describes how a region splits into equal-length segments.
// The remainder past the last full segment is ignored.
type BatchPlan struct {
	StartTime       float64
	SegmentDuration float64
	Count           int
	Remainder       float64
}

// PlanBatch computes the batch split for the current region. A
// non-positive duration or a duration longer than the region is invalid.
func (s *Session) PlanBatch(segmentDuration float64) (BatchPlan, error) {
	s.mu.Lock()
	region := s.timeline.Region()
	duration, hasDuration := s.masterDurationLocked()
	s.mu.Unlock()

	if segmentDuration <= 0 || math.IsNaN(segmentDuration) {
		return BatchPlan{}, ErrInvalidBatch
	}
	if err := validateRegion(region, duration, hasDuration); err != nil {
		return BatchPlan{}, err
	}

	total := region.EndTime - region.StartTime
	count := int(total / segmentDuration)
	if count == 0 {
		return BatchPlan{}, fmt.Errorf("segment duration %.1fs exceeds region span %.1fs: %w",
			segmentDuration, total, ErrInvalidBatch)
	}
	return BatchPlan{
		StartTime:       region.StartTime,
		SegmentDuration: segmentDuration,
		Count:           count,
		Remainder:       total - float64(count)*segmentDuration,
	}, nil
}

// CreateBatch persists the planned segments, spacing the requests so the
// backend is not hammered. It returns how many were created; a failed
// create aborts the rest.
func (s *Session) CreateBatch(ctx context.Context, plan BatchPlan) (int, error) {
	s.mu.Lock()
	sample, ok := s.nav.ActiveSample()
	spacing := s.cfg.BatchCreateSpacing
	s.mu.Unlock()
	if !ok {
		return 0, ErrNoActiveSample
	}

	created := 0
	for i := 0; i < plan.Count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return created, ctx.Err()
			case <-time.After(spacing):
			}
		}
		start := plan.StartTime + float64(i)*plan.SegmentDuration
		seg := Segment{
			ID:         uuid.NewString(),
			SampleID:   sample.ID,
			StartTime:  start,
			EndTime:    start + plan.SegmentDuration,
			Status:     StatusPending,
			VideoPaths: sample.SourceURIs(),
		}
		if err := s.store.CreateSegment(ctx, seg); err != nil {
			return created, fmt.Errorf("batch create %d/%d: %w", i+1, plan.Count, err)
		}
		created++
		if s.metrics != nil {
			s.metrics.IncSegmentsCreated()
		}
	}
	return created, s.reloadSegments(ctx, sample.ID)
}

// UpdateSegmentStatus records an annotation decision.
func (s *Session) UpdateSegmentStatus(ctx context.Context, id string, status SegmentStatus) error {
	return s.updateSegment(ctx, id, func(seg *Segment) { seg.Status = status })
}

// UpdateSegmentBounds rewrites the selected segment's boundaries from
// the current region.
func (s *Session) UpdateSegmentBounds(ctx context.Context) error {
	s.mu.Lock()
	seg, ok := s.nav.Current()
	region := s.timeline.Region()
	duration, hasDuration := s.masterDurationLocked()
	s.mu.Unlock()

	if !ok {
		return ErrNoSegmentSelected
	}
	if err := validateRegion(region, duration, hasDuration); err != nil {
		return err
	}
	return s.updateSegment(ctx, seg.ID, func(seg *Segment) {
		seg.StartTime = region.StartTime
		seg.EndTime = region.EndTime
	})
}

// SetComment schedules a comment save, debounced so a save fires one
// second after the last keystroke rather than on every one.
func (s *Session) SetComment(segmentID, text string) {
	s.commentMu.Lock()
	defer s.commentMu.Unlock()
	if s.commentTimer != nil {
		s.commentTimer.Stop()
	}
	s.commentTimer = time.AfterFunc(s.cfg.CommentSaveDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.updateSegment(ctx, segmentID, func(seg *Segment) { seg.Comment = text }); err != nil {
			s.log.Warn("comment save failed",
				slog.String("segment_id", segmentID),
				slog.String("error", err.Error()))
		}
	})
}

// FlushComment forces a pending debounced comment save to run now.
func (s *Session) FlushComment() {
	s.commentMu.Lock()
	timer := s.commentTimer
	s.commentTimer = nil
	s.commentMu.Unlock()
	if timer != nil && timer.Stop() {
		timer.Reset(0)
	}
}

func (s *Session) updateSegment(ctx context.Context, id string, mutate func(*Segment)) error {
	s.mu.Lock()
	seg, ok := s.nav.segmentByID(id)
	sampleID := s.nav.sampleID
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("update segment %q: %w", id, ErrNoSegmentSelected)
	}

	mutate(&seg)
	if err := s.store.UpdateSegment(ctx, seg); err != nil {
		return err
	}
	return s.reloadSegments(ctx, sampleID)
}

// DeleteSegment removes a segment and refreshes the list.
func (s *Session) DeleteSegment(ctx context.Context, id string) error {
	s.mu.Lock()
	sampleID := s.nav.sampleID
	s.mu.Unlock()
	if sampleID == "" {
		return ErrNoActiveSample
	}
	if err := s.store.DeleteSegment(ctx, id); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncSegmentsDeleted()
	}
	return s.reloadSegments(ctx, sampleID)
}

// RemoveRejected bulk-deletes every rejected segment of the dataset.
func (s *Session) RemoveRejected(ctx context.Context, datasetID string) error {
	if err := s.store.RemoveRejected(ctx, datasetID); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache.Clear()
	sampleID := s.nav.sampleID
	s.mu.Unlock()
	if sampleID == "" {
		return nil
	}
	return s.reloadSegments(ctx, sampleID)
}

// MarkReviewed flags the active sample as reviewed.
func (s *Session) MarkReviewed(ctx context.Context) error {
	s.mu.Lock()
	sample, ok := s.nav.ActiveSample()
	s.mu.Unlock()
	if !ok {
		return ErrNoActiveSample
	}
	return s.store.MarkSampleReviewed(ctx, sample.ID)
}

// MarkUnreviewed clears the active sample's reviewed flag.
func (s *Session) MarkUnreviewed(ctx context.Context) error {
	s.mu.Lock()
	sample, ok := s.nav.ActiveSample()
	s.mu.Unlock()
	if !ok {
		return ErrNoActiveSample
	}
	return s.store.MarkSampleUnreviewed(ctx, sample.ID)
}

// reloadSegments refetches a sample's list and reinstalls it, guarding
// against the user having navigated away mid-flight.
func (s *Session) reloadSegments(ctx context.Context, sampleID string) error {
	s.cache.Invalidate(sampleID)
	segments, err := s.store.SampleSegments(ctx, sampleID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Put(sampleID, segments)
	if selected := s.nav.SetSegments(sampleID, segments); selected != nil {
		s.applySegmentLocked(*selected)
	}
	return nil
}

// notifyRegionLocked publishes the current region. Caller holds s.mu.
func (s *Session) notifyRegionLocked() {
	startLabel, endLabel := s.timeline.Labels()
	s.notifier.RegionChanged(s.timeline.Region(), s.timeline.Extent(), startLabel, endLabel)
}

func (s *Session) masterDurationLocked() (float64, bool) {
	if s.group == nil {
		return 0, false
	}
	return s.group.MasterDuration()
}

// validateRegion rejects regions that leave the stream bounds before any
// persistence happens.
func validateRegion(r Region, duration float64, hasDuration bool) error {
	if r.StartTime < 0 {
		return fmt.Errorf("start %.1fs is negative: %w", r.StartTime, ErrInvalidRegion)
	}
	if r.StartTime >= r.EndTime {
		return ErrInvalidRegion
	}
	if hasDuration && r.EndTime > duration {
		return fmt.Errorf("end %.1fs past stream duration %.1fs: %w", r.EndTime, duration, ErrInvalidRegion)
	}
	return nil
}
