// ABOUTME: Worker supervision and idempotent shutdown
// ABOUTME: Running flag, cancellation, delayed connection close, terminal error
package relay

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyStarted is returned by a second Start
var ErrAlreadyStarted = errors.New("relay client already started")

// ErrNotStarted is returned by controls used before Start
var ErrNotStarted = errors.New("relay client not started")

// ErrShutdown is returned by Start after Shutdown
var ErrShutdown = errors.New("relay client shut down")

// lifecycle starts workers and propagates one shutdown signal to them.
// The running flag only ever goes from true to false.
type lifecycle struct {
	sessionID string
	grace     time.Duration

	running  atomic.Bool
	started  atomic.Bool
	stopping atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	closeFn     func() error
	beforeClose func()
	closeOnce   sync.Once

	// onShutdown runs once, right after cancellation, to unblock workers
	// that do not watch ctx
	onShutdown func()

	wg   sync.WaitGroup
	done chan struct{}

	errMu sync.Mutex
	err   error
}

func newLifecycle(sessionID string, grace time.Duration) *lifecycle {
	return &lifecycle{
		sessionID: sessionID,
		grace:     grace,
		done:      make(chan struct{}),
	}
}

// begin marks the session started; it fails after a previous begin or
// after Shutdown
func (l *lifecycle) begin(parent context.Context) error {
	if l.stopping.Load() {
		return ErrShutdown
	}
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	l.ctx, l.cancel = context.WithCancel(parent)
	l.running.Store(true)

	// a cancelled parent counts as a shutdown request
	go func() {
		select {
		case <-l.ctx.Done():
			l.shutdown()
		case <-l.done:
		}
	}()
	return nil
}

// abort undoes begin when connection setup fails
func (l *lifecycle) abort() {
	l.stopping.Store(true)
	l.running.Store(false)
	if l.cancel != nil {
		l.cancel()
	}
	close(l.done)
}

// attach registers the connection closer; beforeClose runs first, once
func (l *lifecycle) attach(closeFn func() error, beforeClose func()) {
	l.closeFn = closeFn
	l.beforeClose = beforeClose
}

// spawn runs fn as a supervised worker
func (l *lifecycle) spawn(name string, fn func(ctx context.Context)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn(l.ctx)
		log.Printf("[%s] %s worker stopped", l.shortID(), name)
	}()
}

// supervise closes done once every worker has exited
func (l *lifecycle) supervise() {
	go func() {
		l.wg.Wait()
		l.closeConnection()
		close(l.done)
	}()
}

func (l *lifecycle) isRunning() bool {
	return l.running.Load()
}

func (l *lifecycle) isStopping() bool {
	return l.stopping.Load()
}

// shutdown flips the running flag, cancels workers and closes the
// connection after the grace delay. Returns false if already underway.
func (l *lifecycle) shutdown() bool {
	if !l.stopping.CompareAndSwap(false, true) {
		return false
	}
	l.running.Store(false)
	if l.cancel != nil {
		l.cancel()
	}
	if l.onShutdown != nil {
		l.onShutdown()
	}
	if l.started.Load() {
		time.AfterFunc(l.grace, l.closeConnection)
	}
	return true
}

func (l *lifecycle) closeConnection() {
	l.closeOnce.Do(func() {
		if l.beforeClose != nil {
			l.beforeClose()
		}
		if l.closeFn != nil {
			if err := l.closeFn(); err != nil {
				log.Printf("[%s] connection close: %v", l.shortID(), err)
			}
		}
	})
}

// fail records the terminal error, if none yet, and shuts down
func (l *lifecycle) fail(err error) {
	l.setErr(err)
	l.shutdown()
}

func (l *lifecycle) setErr(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

func (l *lifecycle) getErr() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

func (l *lifecycle) wait() {
	if !l.started.Load() {
		return
	}
	<-l.done
}

func (l *lifecycle) shortID() string {
	if len(l.sessionID) > 8 {
		return l.sessionID[:8]
	}
	return l.sessionID
}

// sleepCtx sleeps for d, returning false if ctx ends first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
