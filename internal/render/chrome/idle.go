package chrome

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

const minIdlePoll = 10 * time.Millisecond

// idleTracker counts in-flight network requests of a page.
// Safe for concurrent event handler calls.
type idleTracker struct {
	mu         sync.Mutex
	inflight   map[string]struct{}
	lastChange time.Time
	total      int
	failed     int
	now        func() time.Time
}

func newIdleTracker() *idleTracker {
	return newIdleTrackerWithClock(time.Now)
}

func newIdleTrackerWithClock(now func() time.Time) *idleTracker {
	return &idleTracker{
		inflight:   make(map[string]struct{}),
		lastChange: now(),
		now:        now,
	}
}

// handle is registered with chromedp.ListenTarget
func (t *idleTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.started(string(e.RequestID))
	case *network.EventLoadingFinished:
		t.finished(string(e.RequestID), false)
	case *network.EventLoadingFailed:
		t.finished(string(e.RequestID), true)
	}
}

func (t *idleTracker) started(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// redirects reuse the request id
	if _, ok := t.inflight[id]; !ok {
		t.total++
	}
	t.inflight[id] = struct{}{}
	t.lastChange = t.now()
}

func (t *idleTracker) finished(id string, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	if failed {
		t.failed++
	}
	t.lastChange = t.now()
}

// quietFor returns how long the page has had no requests in flight, zero while busy
func (t *idleTracker) quietFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.inflight) > 0 {
		return 0
	}
	return t.now().Sub(t.lastChange)
}

func (t *idleTracker) stats() (total, failed, inflight int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, t.failed, len(t.inflight)
}

// wait blocks until no request has been in flight for window, or ctx ends
func (t *idleTracker) wait(ctx context.Context, window time.Duration) error {
	poll := window / 5
	if poll < minIdlePoll {
		poll = minIdlePoll
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if t.quietFor() >= window {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
