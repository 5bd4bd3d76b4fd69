package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultIdleTTL is how long an unused session stays in memory.
const DefaultIdleTTL = 30 * time.Minute

type session struct {
	manager  *Manager
	lastUsed atomic.Int64 // unix nanoseconds
}

// Registry hands out one loaded Manager per user. Sessions that go unused
// for the idle TTL are dropped by the eviction loop and reloaded from the
// store on next use.
type Registry struct {
	store cache.KeyValueStore
	log   *zap.Logger
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	sfg      singleflight.Group // one Load per user at a time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRegistry(store cache.KeyValueStore, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:    store,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*session),
		stop:     make(chan struct{}),
	}
}

// Get returns the user's manager, loading it on first use. A failed load is
// not cached, so the next call retries.
func (r *Registry) Get(ctx context.Context, userID string) (*Manager, error) {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if ok {
		s.lastUsed.Store(r.now().UnixNano())
		return s.manager, nil
	}

	v, err, _ := r.sfg.Do(userID, func() (interface{}, error) {
		r.mu.RLock()
		existing, ok := r.sessions[userID]
		r.mu.RUnlock()
		if ok {
			existing.lastUsed.Store(r.now().UnixNano())
			return existing.manager, nil
		}

		m := NewManager(userID, r.store, r.log)
		if err := m.Load(ctx); err != nil {
			r.log.Warn("session load failed", zap.String("user_id", userID), zap.Error(err))
			return nil, err
		}

		s := &session{manager: m}
		s.lastUsed.Store(r.now().UnixNano())
		r.mu.Lock()
		r.sessions[userID] = s
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manager), nil
}

// Len reports how many sessions are held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle drops sessions unused for at least maxIdle. A session with a
// live subscriber or a write still in flight is kept. It returns how many
// were dropped.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for userID, s := range r.sessions {
		if s.lastUsed.Load() > cutoff || !s.manager.quiet() {
			continue
		}
		delete(r.sessions, userID)
		evicted++
	}
	return evicted
}

// Start runs the eviction loop every interval. Stop it with Close.
func (r *Registry) Start(interval, maxIdle time.Duration) {
	if maxIdle <= 0 {
		maxIdle = DefaultIdleTTL
	}
	if interval <= 0 {
		interval = maxIdle / 4
	}
	r.wg.Add(1)
	go r.evictLoop(interval, maxIdle)
}

func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Registry) evictLoop(interval, maxIdle time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.EvictIdle(maxIdle); n > 0 {
				r.log.Debug("idle sessions evicted", zap.Int("count", n))
			}
		case <-r.stop:
			return
		}
	}
}

// Flush waits for every session's pending writes.
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.RLock()
	managers := make([]*Manager, 0, len(r.sessions))
	for _, s := range r.sessions {
		managers = append(managers, s.manager)
	}
	r.mu.RUnlock()

	for _, m := range managers {
		if err := m.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}
