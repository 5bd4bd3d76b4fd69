// Package feed turns point reads of remote configuration into live
// subscriptions: the current value first, then every change until the
// subscription is cancelled.
package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Subscription delivers values on Updates until Cancel is called. Only the
// newest undelivered value is kept, so a slow reader skips intermediate
// ones.
type Subscription[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Cancel stops polling and closes Updates. It blocks until the poller has
// exited and is safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}

// Watch polls fetch every interval and publishes the value whenever it
// differs from the last published one. Failed fetches are logged and
// skipped; the subscriber keeps the last good value.
func Watch[T any](ctx context.Context, interval time.Duration, fetch func(context.Context) (T, error), equal func(a, b T) bool, log *zap.Logger) *Subscription[T] {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		updates: make(chan T, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.updates)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var (
			last T
			seen bool
		)
		for {
			v, err := fetch(ctx)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					log.Warn("feed poll failed", zap.Error(err))
				}
			case !seen || !equal(last, v):
				last, seen = v, true
				offer(s.updates, v)
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s
}

// offer replaces any value still waiting in ch with v.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
