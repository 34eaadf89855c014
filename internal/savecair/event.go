package savecair

import "sync"

// event is a resettable level-triggered signal. Waiters block on the
// channel returned by Wait until Set is called; Clear re-arms it.
type event struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

func newEvent() *event {
	return &event{ch: make(chan struct{})}
}

// Set releases all current and future waiters until the next Clear.
func (e *event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		close(e.ch)
		e.set = true
	}
}

// Clear re-arms the event. Waiters holding the old channel stay released.
func (e *event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		e.ch = make(chan struct{})
		e.set = false
	}
}

// Wait returns a channel that is closed once the event is set.
func (e *event) Wait() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}

// IsSet reports whether the event is currently set.
func (e *event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}
