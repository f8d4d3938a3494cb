package server

import (
	"sync"
	"time"
)

// pushDeduper serializes push-triggered runs per PR URL. At most one run is
// active and one is pending; anything beyond that is dropped. The pending
// run is released exactly once when the active run finishes.
type pushDeduper struct {
	mu     sync.Mutex
	states map[string]*pushState
}

type pushState struct {
	running      bool
	pending      bool
	promoted     bool
	pendingSince time.Time
	release      chan struct{}
}

func newPushDeduper() *pushDeduper {
	return &pushDeduper{states: make(map[string]*pushState)}
}

// Begin registers a push for the given PR, first sweeping pending entries
// older than ttl. Returns run=true when the caller should run immediately;
// otherwise wait is non-nil when the caller was queued, and nil when the push
// was dropped because one is already pending.
func (d *pushDeduper) Begin(url string, ttl time.Duration) (run bool, wait <-chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ttl > 0 {
		d.sweepLocked(ttl)
	}

	st := d.states[url]
	if st == nil {
		st = &pushState{}
		d.states[url] = st
	}
	if !st.running {
		st.running = true
		return true, nil
	}
	if st.pending || st.promoted {
		return false, nil
	}
	st.pending = true
	st.pendingSince = time.Now()
	st.release = make(chan struct{})
	return false, st.release
}

// End finishes the active run. A pending run, if any, is promoted and its
// wait channel closed; otherwise the slot is freed.
func (d *pushDeduper) End(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.states[url]
	if st == nil {
		return
	}
	if st.pending {
		st.pending = false
		st.promoted = true
		close(st.release)
		st.release = nil
		// running stays true: ownership passes to the promoted waiter.
		return
	}
	st.running = false
	delete(d.states, url)
}

// Claim is called by a woken waiter. It reports whether the waiter now owns
// the run slot; a false return means the pending push was cancelled or swept
// and the waiter must not run.
func (d *pushDeduper) Claim(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.states[url]
	if st == nil || !st.promoted {
		return false
	}
	st.promoted = false
	return true
}

// CancelPending withdraws a queued push, e.g. when its TTL expired. It is a
// no-op when the waiter was already promoted; Claim then still succeeds.
func (d *pushDeduper) CancelPending(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.states[url]
	if st == nil || !st.pending {
		return
	}
	st.pending = false
	if st.release != nil {
		close(st.release)
		st.release = nil
	}
}

// Sweep cancels pending pushes older than ttl and returns how many it
// dropped. Their waiters wake, fail Claim, and give up.
func (d *pushDeduper) Sweep(ttl time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sweepLocked(ttl)
}

func (d *pushDeduper) sweepLocked(ttl time.Duration) int {
	swept := 0
	cutoff := time.Now().Add(-ttl)
	for _, st := range d.states {
		if st.pending && st.pendingSince.Before(cutoff) {
			st.pending = false
			close(st.release)
			st.release = nil
			swept++
		}
	}
	return swept
}
