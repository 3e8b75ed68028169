// Package loop implements the single-threaded cooperative event-loop
// runtime that the connection state machine runs on: one goroutine, one
// reusable timer, and a work queue accepting closures posted from other
// threads. Everything posted, and every timer fire, executes on the loop
// goroutine, serialized with respect to everything else posted.
package loop

import (
	"sync/atomic"
	"time"
)

// Loop is a channel-based single-threaded scheduler. The zero value is
// not usable; use New.
type Loop struct {
	work chan func()
	quit chan struct{}
	done chan struct{}

	running int32 // 0 until Run is called, then 1

	// timer state: only ever touched from the loop goroutine.
	timer *time.Timer
	epoch uint64
}

// New creates a Loop with a modestly buffered work queue so that a burst
// of Post calls from control threads doesn't block its callers on the
// loop picking them up.
func New() *Loop {
	return &Loop{
		work: make(chan func(), 64),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Post enqueues fn to run on the loop goroutine. Safe to call from any
// goroutine, including the loop goroutine itself. A Post after Stop is a
// silent no-op — there's no loop left to run it.
func (l *Loop) Post(fn func()) {
	select {
	case l.work <- fn:
	case <-l.quit:
	}
}

// ArmTimer cancels any previously armed deadline and arms a new one.
// fn runs on the loop goroutine after d elapses, unless the timer is
// cancelled or re-armed first. Must be called from the loop goroutine.
func (l *Loop) ArmTimer(d time.Duration, fn func()) {
	l.cancelTimer()
	l.epoch++
	epoch := l.epoch
	l.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if l.epoch == epoch {
				fn()
			}
		})
	})
}

// CancelTimer cancels any armed deadline. A fire already in flight on
// another goroutine is neutralized by the epoch check in ArmTimer's
// callback. Must be called from the loop goroutine.
func (l *Loop) CancelTimer() {
	l.cancelTimer()
	l.epoch++
}

func (l *Loop) cancelTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Run blocks, executing posted work until Stop is called, then drains
// anything already queued before returning.
func (l *Loop) Run() {
	atomic.StoreInt32(&l.running, 1)
	defer close(l.done)
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-l.quit:
			l.drain()
			return
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.work:
			fn()
		default:
			return
		}
	}
}

// Stop signals Run to return once the current and already-queued work
// finishes. Not idempotent: a second call panics on the closed channel.
// The agent calls it when its shutdown completes, from whichever of
// internalShutdown, finishConnect or onConnClosed finishes it.
func (l *Loop) Stop() {
	close(l.quit)
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Running reports whether Run has been called.
func (l *Loop) Running() bool { return atomic.LoadInt32(&l.running) == 1 }
