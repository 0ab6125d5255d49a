package quiz

import (
	"context"
	"fmt"
	"time"
)

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

var newTicker = func(d time.Duration) ticker { // mockable
	return timeTicker{time.NewTicker(d)}
}

// StartTimer runs the countdown of a timed attempt in the background, one Tick per second.
// It stops on Close, when ctx is done, or once the attempt no longer counts down.
// Calling it again while a countdown runs does nothing.
func (e *Engine) StartTimer(ctx context.Context) {
	e.mutex.Lock()
	if !e.countingDown() || e.stopTimer != nil {
		e.mutex.Unlock()
		return
	}
	tctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.stopTimer, e.timerDone = cancel, done
	e.mutex.Unlock()

	tk := newTicker(time.Second)
	go func() {
		defer func() {
			tk.Stop()
			e.mutex.Lock()
			if e.timerDone == done {
				e.stopTimer, e.timerDone = nil, nil
			}
			e.mutex.Unlock()
			cancel()
			close(done)
		}()

		for {
			select {
			case <-tctx.Done():
				return
			case <-tk.C():
				if err := e.Tick(tctx); err != nil {
					e.logger.Error(fmt.Sprintf("quiz countdown: %v", err), err)
				}
				e.mutex.Lock()
				running := e.countingDown()
				e.mutex.Unlock()
				if !running {
					return
				}
			}
		}
	}()
}

// countingDown must be called with the mutex held.
// A manual submit in flight keeps the countdown alive, since it may still fail.
func (e *Engine) countingDown() bool {
	if e.attempt.TimeRemaining == nil || e.expired {
		return false
	}
	return e.state == StateInProgress || e.state == StateSubmitting
}

// Close stops the countdown and waits for an in-flight tick to finish.
func (e *Engine) Close() {
	e.mutex.Lock()
	cancel, done := e.stopTimer, e.timerDone
	e.mutex.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
