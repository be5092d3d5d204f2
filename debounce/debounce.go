// Package debounce provides the timer combinators used to bound
// recomputation cost: debounced search filtering and camera settle,
// throttled render writes.
package debounce

import (
	"sync"
	"time"
)

// Debounce wraps fn so that it runs once the calls have settled for d.
// Every call resets the timer. cancel drops a pending run; it is safe to
// call at any time.
func Debounce(d time.Duration, fn func()) (call func(), cancel func()) {
	var mu sync.Mutex
	var timer *time.Timer

	call = func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d, fn)
	}

	cancel = func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}

	return call, cancel
}

// Throttle wraps fn so that it runs at most once per d: immediately on
// the leading edge, and once more at the end of the window if calls kept
// arriving. cancel drops a pending trailing run.
func Throttle(d time.Duration, fn func()) (call func(), cancel func()) {
	var mu sync.Mutex
	var last time.Time
	var timer *time.Timer

	call = func() {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if elapsed := now.Sub(last); elapsed >= d {
			last = now
			go fn()
			return
		}

		if timer != nil {
			return // trailing run already scheduled
		}
		wait := d - now.Sub(last)
		timer = time.AfterFunc(wait, func() {
			mu.Lock()
			last = time.Now()
			timer = nil
			mu.Unlock()
			fn()
		})
	}

	cancel = func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}

	return call, cancel
}
