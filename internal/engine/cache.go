package engine

import "sync"

// SegmentCache is the client-side transient copy of loaded segment
// lists, keyed by sample. The backend stays the system of record; the
// cache only spares a refetch when the user bounces between samples, and
// every mutation invalidates the affected sample.
type SegmentCache struct {
	mu       sync.RWMutex
	segments map[string][]Segment
}

// NewSegmentCache returns an empty cache.
func NewSegmentCache() *SegmentCache {
	return &SegmentCache{segments: make(map[string][]Segment)}
}

// Get returns the cached list for a sample.
func (c *SegmentCache) Get(sampleID string) ([]Segment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	segs, ok := c.segments[sampleID]
	return segs, ok
}

// Put stores a copy of the list for a sample.
func (c *SegmentCache) Put(sampleID string, segments []Segment) {
	cp := make([]Segment, len(segments))
	copy(cp, segments)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments[sampleID] = cp
}

// Invalidate drops a sample's cached list.
func (c *SegmentCache) Invalidate(sampleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.segments, sampleID)
}

// Clear drops everything, used when the dataset changes.
func (c *SegmentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = make(map[string][]Segment)
}
