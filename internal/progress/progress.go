// Package progress provides the cosmetic progress counter shown while an
// analysis is pending. It is a UX affordance only: nothing reads it to decide
// whether an analysis has finished.
package progress

import (
	"sync"
	"time"

	"github.com/kozaktomas/hijabist/internal/constants"
)

// Reporter increments a percentage on a timer while running.
type Reporter struct {
	step     int
	interval time.Duration
	limit    int

	mu        sync.Mutex
	value     int
	stop      chan struct{}
	done      chan struct{}
	listeners map[int]func(int)
	nextID    int
}

// NewReporter creates a reporter with the default step, interval and cap.
func NewReporter() *Reporter {
	return NewReporterWith(constants.ProgressStep, constants.ProgressInterval, constants.ProgressCap)
}

// NewReporterWith creates a reporter with custom timing, mainly for tests.
func NewReporterWith(step int, interval time.Duration, limit int) *Reporter {
	return &Reporter{
		step:      step,
		interval:  interval,
		limit:     limit,
		listeners: make(map[int]func(int)),
	}
}

// Start resets the counter to 0 and starts ticking. A running ticker is
// restarted.
func (r *Reporter) Start() {
	r.Stop()

	r.mu.Lock()
	stop := make(chan struct{})
	done := make(chan struct{})
	r.stop = stop
	r.done = done
	r.mu.Unlock()

	r.set(0)
	go r.run(stop, done)
}

func (r *Reporter) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.value >= r.limit {
				r.mu.Unlock()
				continue
			}
			next := min(r.value+r.step, r.limit)
			r.mu.Unlock()
			r.set(next)
		}
	}
}

// Complete stops ticking and snaps to 100.
func (r *Reporter) Complete() {
	r.Stop()
	r.set(constants.ProgressDone)
}

// Fail stops ticking and resets to 0.
func (r *Reporter) Fail() {
	r.Stop()
	r.set(0)
}

// Stop halts the ticker, keeping the current value.
func (r *Reporter) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Value returns the current percentage.
func (r *Reporter) Value() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Subscribe registers fn for every value change and returns an unsubscribe func.
func (r *Reporter) Subscribe(fn func(int)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Reporter) set(v int) {
	r.mu.Lock()
	if r.value == v {
		r.mu.Unlock()
		return
	}
	r.value = v
	listeners := make([]func(int), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}
