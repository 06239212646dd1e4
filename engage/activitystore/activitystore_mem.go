package activitystore

import (
	"context"
	"sync"
)

type MemActivityStore struct {
	lk      sync.Mutex
	Records map[string]Record
}

var _ ActivityStore = (*MemActivityStore)(nil)

func NewMemActivityStore() *MemActivityStore {
	return &MemActivityStore{
		Records: make(map[string]Record),
	}
}

func (s *MemActivityStore) Get(ctx context.Context, user string) (Record, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.Records[user], nil
}

func (s *MemActivityStore) Put(ctx context.Context, user string, rec Record) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.Records[user] = rec
	return nil
}
