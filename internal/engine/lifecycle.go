package engine

import (
	"context"
	"sync"
	"time"
)

// lifecycle runs at most one worker goroutine and implements the
// Idle → Running → StopRequested → Idle state machine shared by all engines.
type lifecycle struct {
	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	// idle закрывается, когда остановка завершена целиком (включая after)
	idle chan struct{}
}

// State returns current lifecycle state.
func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// start spawns run in a new goroutine. prepare runs under the lifecycle lock only
// when a worker is actually started. Starting a running engine is a no-op; starting
// while a stop is joining returns ErrStopping.
func (l *lifecycle) start(prepare func(), run func(ctx context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateRunning:
		return nil
	case StateStopRequested:
		return ErrStopping
	}

	if prepare != nil {
		prepare()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.state, l.cancel, l.done = StateRunning, cancel, done

	go func() {
		defer close(done)
		defer l.exited(done)
		run(ctx)
	}()
	return nil
}

// exited returns the lifecycle to idle when the worker finished on its own.
// A worker exiting because of stop leaves the transition to stop.
func (l *lifecycle) exited(done chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != done || l.state != StateRunning {
		return
	}
	l.cancel()
	l.state, l.cancel, l.done = StateIdle, nil, nil
}

// stop cancels the worker and waits for it to exit, then runs after (still before
// the engine becomes idle, so no new worker can start in between).
// A concurrent stop returns only once the first one has finished, after included.
func (l *lifecycle) stop(after func()) {
	l.mu.Lock()
	if l.state != StateRunning {
		idle := l.idle
		l.mu.Unlock()
		if idle != nil {
			<-idle
		}
		return
	}
	l.state = StateStopRequested
	cancel, done := l.cancel, l.done
	idle := make(chan struct{})
	l.idle = idle
	l.mu.Unlock()

	cancel()
	<-done

	if after != nil {
		after()
	}

	l.mu.Lock()
	l.state, l.cancel, l.done, l.idle = StateIdle, nil, nil, nil
	l.mu.Unlock()
	close(idle)
}

// sleep waits for d or until ctx is cancelled. Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
