package feedback

import (
	"context"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/db"
)

// memStore is an in-memory implementation of the consumer interface.
type memStore struct {
	kv      map[string][]byte
	lists   map[string][]string
	streams map[string][]db.StreamEntry
	seq     int

	xaddErr  error
	rpushErr error
}

func newMemStore() *memStore {
	return &memStore{
		kv:      map[string][]byte{},
		lists:   map[string][]string{},
		streams: map[string][]db.StreamEntry{},
	}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = value
	return true, nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	delete(m.kv, key)
	return nil
}

func (m *memStore) RPush(_ context.Context, key string, values ...string) error {
	if m.rpushErr != nil {
		return m.rpushErr
	}
	m.lists[key] = append(m.lists[key], values...)
	return nil
}

func (m *memStore) LRange(_ context.Context, key string, _, _ int64) ([]string, error) {
	return m.lists[key], nil
}

func (m *memStore) XAdd(_ context.Context, stream string, fields map[string]string) (string, error) {
	if m.xaddErr != nil {
		return "", m.xaddErr
	}
	m.seq++
	id := strconv.Itoa(m.seq) + "-0"
	m.streams[stream] = append(m.streams[stream], db.StreamEntry{ID: id, Fields: fields})
	return id, nil
}

func (m *memStore) XRange(_ context.Context, stream, after string, count int64) ([]db.StreamEntry, error) {
	var out []db.StreamEntry
	passed := after == ""
	for _, e := range m.streams[stream] {
		if !passed {
			passed = e.ID == after
			continue
		}
		out = append(out, e)
		if int64(len(out)) == count {
			break
		}
	}
	return out, nil
}

func newTestRepo(t *testing.T) (*Repo, *memStore) {
	t.Helper()
	ms := newMemStore()
	return New(ms, "rm:", zap.NewNop()), ms
}
