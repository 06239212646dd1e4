package dedupe

import (
	"context"
	"sync"
)

type MemTracker struct {
	lk   sync.Mutex
	seen map[Key]struct{}
}

var _ Tracker = (*MemTracker)(nil)

func NewMemTracker() *MemTracker {
	return &MemTracker{
		seen: make(map[Key]struct{}),
	}
}

func (t *MemTracker) MarkEvaluated(ctx context.Context, user, submission string) (bool, error) {
	t.lk.Lock()
	defer t.lk.Unlock()
	k := Key{User: user, Submission: submission}
	if _, ok := t.seen[k]; ok {
		return false, nil
	}
	t.seen[k] = struct{}{}
	return true, nil
}

func (t *MemTracker) IsEvaluated(ctx context.Context, user, submission string) (bool, error) {
	t.lk.Lock()
	defer t.lk.Unlock()
	_, ok := t.seen[Key{User: user, Submission: submission}]
	return ok, nil
}

func (t *MemTracker) Len() int {
	t.lk.Lock()
	defer t.lk.Unlock()
	return len(t.seen)
}
