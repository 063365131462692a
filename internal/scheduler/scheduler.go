// Package scheduler runs the periodic service loops. Each loop is a
// goroutine executing run-then-sleep; a failed run sleeps the loop's
// backoff interval instead of its regular one, and cancellation is
// observed at every sleep boundary.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loop is one periodic unit of work. Run errors are logged and stretch the
// next sleep to Backoff; they never stop the loop.
type Loop struct {
	Name     string
	Interval time.Duration
	Backoff  time.Duration
	Run      func(ctx context.Context) error
}

// Timer abstracts time for tests; the zero Scheduler uses the wall clock.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

type wallClock struct{}

func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Scheduler struct {
	Logger *zap.Logger
	Clock  Timer

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func (s *Scheduler) clock() Timer {
	if s.Clock != nil {
		return s.Clock
	}
	return wallClock{}
}

// Start launches one goroutine per loop. It is an error to start a running
// scheduler twice; the second call is a no-op.
func (s *Scheduler) Start(ctx context.Context, loops ...Loop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	for _, loop := range loops {
		s.wg.Add(1)
		go s.runLoop(ctx, loop)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, loop Loop) {
	defer s.wg.Done()
	if s.Logger != nil {
		s.Logger.Info("loop started",
			zap.String("loop", loop.Name),
			zap.Duration("interval", loop.Interval),
		)
	}
	for {
		sleep := loop.Interval
		if err := loop.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.Logger != nil {
				s.Logger.Error("loop cycle failed",
					zap.String("loop", loop.Name),
					zap.Error(err),
				)
			}
			if loop.Backoff > 0 {
				sleep = loop.Backoff
			}
		}
		select {
		case <-ctx.Done():
			if s.Logger != nil {
				s.Logger.Info("loop stopped", zap.String("loop", loop.Name))
			}
			return
		case <-s.clock().After(sleep):
		}
	}
}

// Stop cancels all loops and waits for in-flight cycles to return, up to
// the given timeout. Returns false if the wait timed out.
func (s *Scheduler) Stop(timeout time.Duration) bool {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return true
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
