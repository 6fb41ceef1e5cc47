package engine

import "testing"

func TestSegmentCache_put_get(t *testing.T) {
	c := NewSegmentCache()

	if _, ok := c.Get("s1"); ok {
		t.Error("empty cache should miss")
	}

	list := []Segment{seg("a", "s1", 0, 5)}
	c.Put("s1", list)

	got, ok := c.Get("s1")
	if !ok || len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("Get = %v, %v", got, ok)
	}

	// The cache holds a copy; mutating the caller's slice must not leak in.
	list[0].ID = "mutated"
	got, _ = c.Get("s1")
	if got[0].ID != "a" {
		t.Errorf("cache shares the caller's backing array, got %s", got[0].ID)
	}
}

func TestSegmentCache_invalidate(t *testing.T) {
	c := NewSegmentCache()
	c.Put("s1", []Segment{seg("a", "s1", 0, 5)})
	c.Put("s2", []Segment{seg("b", "s2", 0, 5)})

	c.Invalidate("s1")
	if _, ok := c.Get("s1"); ok {
		t.Error("invalidated sample should miss")
	}
	if _, ok := c.Get("s2"); !ok {
		t.Error("other samples should survive invalidation")
	}

	c.Clear()
	if _, ok := c.Get("s2"); ok {
		t.Error("cleared cache should miss everything")
	}
}
