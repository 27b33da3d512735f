package sync

import (
	"log"
	stdsync "sync"
)

// flightLock serializes coordinated sync operations.
//
// At most one operation holds the lock at a time; contending callers park on
// a strict FIFO wait list and are woken in arrival order. Release hands the
// lock directly to the head waiter rather than going idle first, so a late
// arrival can never steal the lock from a queued caller.
//
// There is no acquisition timeout: a stuck holder blocks all subsequent sync
// activity. The transport bounds every network call (turso.DefaultTimeout)
// so a slow remote cannot hold the lock forever.
type flightLock struct {
	mu      stdsync.Mutex
	held    bool
	holder  string
	waiters []chan struct{}
	logger  *log.Logger
}

func newFlightLock(logger *log.Logger) *flightLock {
	return &flightLock{logger: logger}
}

// Acquire blocks until the caller holds the lock. The operation name is
// recorded for status reporting and logging only.
func (l *flightLock) Acquire(operation string) {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.holder = operation
		l.mu.Unlock()
		return
	}

	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.logger.Printf("%s waiting for sync lock (held by %s, %d queued)", operation, l.holder, len(l.waiters))
	l.mu.Unlock()

	<-ch

	// The releaser handed the lock over without idling; we are the holder.
	l.mu.Lock()
	l.holder = operation
	l.mu.Unlock()
}

// Release frees the lock or wakes the next queued caller.
// Callers must release in a defer so every exit path, including panics,
// frees the lock.
func (l *flightLock) Release(operation string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.waiters) > 0 {
		ch := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(ch)
		return
	}
	l.held = false
	l.holder = ""
}

// Held reports whether any operation currently holds the lock.
func (l *flightLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
