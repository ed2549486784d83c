package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/kapu/chess-arena-go/internal/session"
)

// MemStore is an in-process fallback for running without Redis. Sessions
// are stored as JSON so Load hands out independent copies, matching the
// redis-backed behavior.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Load(_ context.Context, roomID string) (*session.Session, error) {
	s.mu.RLock()
	raw, ok := s.data[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MemStore) Save(_ context.Context, sess *session.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[sess.RoomID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	delete(s.data, roomID)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) RoomIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (s *MemStore) Close() error { return nil }
