package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeSegmentSource serves canned per-sample segment lists.
type fakeSegmentSource struct {
	lists map[string][]Segment
	err   error
}

func (f *fakeSegmentSource) SampleSegments(_ context.Context, sampleID string) ([]Segment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lists[sampleID], nil
}

func seg(id, sampleID string, start, end float64) Segment {
	return Segment{ID: id, SampleID: sampleID, StartTime: start, EndTime: end, Status: StatusPending}
}

func newNavFixture() (*Navigator, *fakeSegmentSource) {
	source := &fakeSegmentSource{lists: map[string][]Segment{
		"s1": {seg("1a", "s1", 0, 5), seg("1b", "s1", 5, 10)},
		"s2": {seg("2a", "s2", 0, 5), seg("2b", "s2", 5, 10), seg("2c", "s2", 10, 15)},
		"s3": {seg("3a", "s3", 0, 5)},
	}}
	nav := NewNavigator(source, 0, testLogger())
	nav.SetSamples([]Sample{
		{ID: "s1", Type: SingleVideo, VideoPath: "v1.mp4"},
		{ID: "s2", Type: SingleVideo, VideoPath: "v2.mp4"},
		{ID: "s3", Type: SingleVideo, VideoPath: "v3.mp4"},
	})
	return nav, source
}

func mustSelectSample(t *testing.T, nav *Navigator, source *fakeSegmentSource, id string) {
	t.Helper()
	if _, ok := nav.SelectSample(id); !ok {
		t.Fatalf("SelectSample(%s) failed", id)
	}
	nav.SetSegments(id, source.lists[id])
}

func TestNavigator_next_within_sample(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s1")

	s, err := nav.Next(context.Background())
	if err != nil || s == nil || s.ID != "1a" {
		t.Fatalf("first Next = %v, %v; want 1a", s, err)
	}
	s, err = nav.Next(context.Background())
	if err != nil || s == nil || s.ID != "1b" {
		t.Fatalf("second Next = %v, %v; want 1b", s, err)
	}
}

func TestNavigator_previous_with_no_selection_takes_last(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s2")

	s, err := nav.Previous(context.Background())
	if err != nil || s == nil || s.ID != "2c" {
		t.Fatalf("Previous = %v, %v; want 2c", s, err)
	}
}

func TestNavigator_next_crosses_into_next_sample(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s1")
	nav.Select("1b")

	var switched []string
	nav.OnSampleChange(func(s Sample) { switched = append(switched, s.ID) })

	s, err := nav.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if s != nil {
		t.Fatalf("cross-sample Next should defer, got %v", s)
	}
	if len(switched) != 1 || switched[0] != "s2" {
		t.Fatalf("sample change callbacks = %v; want [s2]", switched)
	}
	p := nav.Pending()
	if p == nil || p.SampleID != "s2" || p.SegmentID != "2a" || p.Position != FirstSegment {
		t.Fatalf("pending = %+v; want first segment of s2", p)
	}

	// The deferred selection lands when the fresh list is installed, and
	// is consumed exactly once.
	sel := nav.SetSegments("s2", source.lists["s2"])
	if sel == nil || sel.ID != "2a" {
		t.Fatalf("deferred selection = %v; want 2a", sel)
	}
	if nav.Pending() != nil {
		t.Error("pending should be consumed")
	}
	if sel = nav.SetSegments("s2", source.lists["s2"]); sel != nil {
		t.Errorf("second install should not re-select, got %v", sel)
	}
}

func TestNavigator_previous_crosses_to_last_segment(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s2")
	nav.Select("2a")

	s, err := nav.Previous(context.Background())
	if err != nil || s != nil {
		t.Fatalf("Previous = %v, %v; want deferred", s, err)
	}
	sel := nav.SetSegments("s1", source.lists["s1"])
	if sel == nil || sel.ID != "1b" {
		t.Fatalf("deferred selection = %v; want last segment 1b", sel)
	}
}

func TestNavigator_terminal_bounds(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s3")
	nav.Select("3a")

	if _, err := nav.Next(context.Background()); !errors.Is(err, ErrAtEnd) {
		t.Errorf("Next at the very end = %v; want ErrAtEnd", err)
	}
	if cur, ok := nav.Current(); !ok || cur.ID != "3a" {
		t.Errorf("selection must survive a terminal Next, got %v, %v", cur, ok)
	}

	mustSelectSample(t, nav, source, "s1")
	nav.Select("1a")
	if _, err := nav.Previous(context.Background()); !errors.Is(err, ErrAtStart) {
		t.Errorf("Previous at the very start = %v; want ErrAtStart", err)
	}
}

func TestNavigator_pending_overwritten_by_newer_intent(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s1")
	nav.Select("1b")

	if _, err := nav.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	// The s2 list never arrives; the user moves on to s3 and navigates
	// backwards into s2 instead.
	mustSelectSample(t, nav, source, "s3")
	nav.Select("3a")
	if _, err := nav.Previous(context.Background()); err != nil {
		t.Fatalf("Previous: %v", err)
	}

	p := nav.Pending()
	if p == nil || p.SampleID != "s2" || p.Position != LastSegment {
		t.Fatalf("pending = %+v; want last segment of s2 (latest intent wins)", p)
	}
	sel := nav.SetSegments("s2", source.lists["s2"])
	if sel == nil || sel.ID != "2c" {
		t.Fatalf("deferred selection = %v; want 2c", sel)
	}
}

func TestNavigator_pending_id_fallback_to_position(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s1")
	nav.Select("1b")
	if _, err := nav.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}

	// The list changed between the fetch and the render: the pending id
	// is gone, so the position decides.
	altered := []Segment{seg("2x", "s2", 0, 5), seg("2y", "s2", 5, 10)}
	sel := nav.SetSegments("s2", altered)
	if sel == nil || sel.ID != "2x" {
		t.Fatalf("fallback selection = %v; want first segment 2x", sel)
	}
}

func TestNavigator_stale_list_dropped(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s1")

	if sel := nav.SetSegments("s2", source.lists["s2"]); sel != nil {
		t.Fatalf("stale list produced selection %v", sel)
	}
	if len(nav.Segments()) != 2 {
		t.Errorf("active list should be untouched, len = %d", len(nav.Segments()))
	}
}

func TestNavigator_vanished_selection_cleared(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s1")
	nav.Select("1a")

	nav.SetSegments("s1", []Segment{seg("1b", "s1", 5, 10)})
	if _, ok := nav.Current(); ok {
		t.Error("selection whose id vanished should be cleared")
	}
}

func TestNavigator_stale_selection_restarts_at_first(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s1")
	nav.currentID = "ghost"

	s, err := nav.Next(context.Background())
	if err != nil || s == nil || s.ID != "1a" {
		t.Fatalf("Next with stale selection = %v, %v; want restart at 1a", s, err)
	}
}

func TestNavigator_empty_list(t *testing.T) {
	nav, _ := newNavFixture()
	if _, ok := nav.SelectSample("s1"); !ok {
		t.Fatal("SelectSample failed")
	}
	nav.SetSegments("s1", nil)

	if _, err := nav.Next(context.Background()); !errors.Is(err, ErrNoSegments) {
		t.Errorf("Next on empty list = %v; want ErrNoSegments", err)
	}
}

func TestNavigator_page_follows_selection(t *testing.T) {
	source := &fakeSegmentSource{lists: map[string][]Segment{}}
	var list []Segment
	for i := 0; i < 25; i++ {
		list = append(list, seg(fmt.Sprintf("g%02d", i), "s1", float64(i), float64(i+1)))
	}
	source.lists["s1"] = list

	nav := NewNavigator(source, 10, testLogger())
	nav.SetSamples([]Sample{{ID: "s1", Type: SingleVideo, VideoPath: "v.mp4"}})
	mustSelectSample(t, nav, source, "s1")

	if nav.PageCount() != 3 {
		t.Errorf("PageCount = %d; want 3", nav.PageCount())
	}
	nav.Select("g14")
	if nav.Page() != 2 {
		t.Errorf("Page = %d; want 2 for index 14", nav.Page())
	}
	slice := nav.PageSlice()
	if len(slice) != 10 || slice[0].ID != "g10" {
		t.Errorf("PageSlice = len %d first %s; want 10 from g10", len(slice), slice[0].ID)
	}
	nav.Select("g24")
	if nav.Page() != 3 {
		t.Errorf("Page = %d; want 3 for index 24", nav.Page())
	}
	if got := nav.PageSlice(); len(got) != 5 {
		t.Errorf("last page len = %d; want 5", len(got))
	}
}

func TestNavigator_fetch_failure_surfaces(t *testing.T) {
	nav, source := newNavFixture()
	mustSelectSample(t, nav, source, "s1")
	nav.Select("1b")
	source.err = errRejected

	if _, err := nav.Next(context.Background()); !errors.Is(err, errRejected) {
		t.Errorf("Next = %v; want fetch error surfaced", err)
	}
}
