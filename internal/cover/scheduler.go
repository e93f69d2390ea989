package cover

import (
	"sync"
	"time"
)

// Cancel stops a scheduled callback. It is safe to call more than once.
type Cancel func()

// Scheduler is the clock and timer source of a controller.
type Scheduler interface {
	Now() time.Time
	// Every runs fn every d until canceled.
	Every(d time.Duration, fn func()) Cancel
	// After runs fn once after d unless canceled first.
	After(d time.Duration, fn func()) Cancel
}

// RealScheduler uses wall-clock time and runtime timers.
type RealScheduler struct{}

func (RealScheduler) Now() time.Time { return time.Now() }

func (RealScheduler) Every(d time.Duration, fn func()) Cancel {
	t := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (RealScheduler) After(d time.Duration, fn func()) Cancel {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
