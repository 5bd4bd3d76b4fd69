// Package sequencer hands out order numbers from a shared counter.
package sequencer

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/repository"
	"go.uber.org/zap"
)

const (
	Prefix = "#UA"

	// DefaultBase is where numbering starts when the counter holds zero.
	DefaultBase = 1000

	defaultMaxAttempts = 20
)

var (
	ErrCounterNotFound = errors.New("order counter not found")
	ErrCounterConflict = errors.New("order counter contention: retries exhausted")
)

type Sequencer struct {
	repo        repository.CounterRepository
	log         *zap.Logger
	maxAttempts int
}

type Option func(*Sequencer)

func WithMaxAttempts(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Sequencer) {
		s.log = l
	}
}

func New(repo repository.CounterRepository, opts ...Option) *Sequencer {
	s := &Sequencer{
		repo:        repo,
		log:         zap.NewNop(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next reserves the next order number. The read and the write form one
// compare-and-swap, so two callers can never get the same number; a caller
// that loses the race re-reads and tries again.
func (s *Sequencer) Next(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		last, err := s.repo.ReadOrderCounter(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrCounterNotFound
		}
		if err != nil {
			return "", fmt.Errorf("failed to read order counter: %w", err)
		}

		current := last
		if current == 0 {
			current = DefaultBase
		}
		next := current + 1

		ok, err := s.repo.SwapOrderCounter(ctx, last, next)
		if err != nil {
			return "", fmt.Errorf("failed to advance order counter: %w", err)
		}
		if ok {
			return Format(next), nil
		}
		s.log.Debug("order counter moved, retrying", zap.Int("attempt", attempt), zap.Int64("seen", last))
	}
	return "", ErrCounterConflict
}

func Format(n int64) string {
	return fmt.Sprintf("%s%d", Prefix, n)
}
