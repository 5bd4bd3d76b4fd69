package cart

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/cache"
)

type mockStore struct {
	m      sync.Mutex
	data   map[string][]byte
	sets   int
	getErr error
	setErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]byte)}
}

func (s *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *mockStore) Set(_ context.Context, key string, value []byte) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *mockStore) Delete(_ context.Context, key string) error {
	s.m.Lock()
	defer s.m.Unlock()
	delete(s.data, key)
	return nil
}

func (s *mockStore) raw(key string) (string, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	v, ok := s.data[key]
	return string(v), ok
}

func (s *mockStore) failGets(err error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.getErr = err
}
