package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/resmatch/internal/db"
)

// memStore is an in-memory implementation of the consumer interface.
type memStore struct {
	kv       map[string][]byte
	counters map[string]int64
	setErr   error
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.kv[key] = value
	return nil
}

func (m *memStore) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = value
	return true, nil
}

func (m *memStore) Incr(_ context.Context, key string) (int64, error) {
	m.counters[key]++
	return m.counters[key], nil
}

func newTestRepo(t *testing.T) (*Repo, *memStore) {
	t.Helper()
	ms := &memStore{kv: map[string][]byte{}, counters: map[string]int64{}}
	return New(ms, "rm:"), ms
}
