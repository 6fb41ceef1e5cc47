package engine

import (
	"errors"
	"sync"
)

// fakeStream is the in-memory MediaStream used across the engine tests.
// Playback advances only through explicit test mutation.
type fakeStream struct {
	mu sync.Mutex

	id        string
	sourceURI string

	readyState    ReadyState
	currentTime   float64
	duration      float64
	paused        bool
	bufferedEnd   float64
	inViewport    bool
	userInitiated bool

	playErr error
	seekErr error

	playCalls   int
	pauseCalls  int
	seekCalls   int
	reloadCalls int
	destroyed   bool
}

func newFakeStream(id string, duration float64) *fakeStream {
	return &fakeStream{
		id:         id,
		sourceURI:  "media/" + id + ".mp4",
		readyState: CanPlayThrough,
		duration:   duration,
		paused:     true,
		inViewport: true,
	}
}

func (f *fakeStream) ID() string        { return f.id }
func (f *fakeStream) SourceURI() string { return f.sourceURI }

func (f *fakeStream) ReadyState() ReadyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readyState
}

func (f *fakeStream) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentTime
}

func (f *fakeStream) Duration() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.duration <= 0 {
		return 0, false
	}
	return f.duration, true
}

func (f *fakeStream) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeStream) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playCalls++
	if f.playErr != nil {
		return f.playErr
	}
	f.paused = false
	return nil
}

func (f *fakeStream) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
	f.paused = true
}

func (f *fakeStream) SeekTo(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekCalls++
	if f.seekErr != nil {
		return f.seekErr
	}
	f.currentTime = seconds
	return nil
}

func (f *fakeStream) BufferedAhead() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ahead := f.bufferedEnd - f.currentTime
	if ahead < 0 {
		return 0
	}
	return ahead
}

func (f *fakeStream) InViewport() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inViewport
}

func (f *fakeStream) ReloadSource() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloadCalls++
	f.bufferedEnd = f.currentTime
}

func (f *fakeStream) UserInitiated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userInitiated
}

func (f *fakeStream) SetUserInitiated(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userInitiated = v
}

func (f *fakeStream) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
}

func (f *fakeStream) set(mutate func(*fakeStream)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(f)
}

func (f *fakeStream) counts() (plays, pauses, seeks, reloads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playCalls, f.pauseCalls, f.seekCalls, f.reloadCalls
}

var errRejected = errors.New("rejected by media stack")
