package dedupe

import (
	"context"
)

// Tracker which reads through to a base tracker but keeps its own marks in memory, leaving the base untouched. Used for dry-run evaluations.
type OverlayTracker struct {
	Base  Tracker
	local *MemTracker
}

var _ Tracker = (*OverlayTracker)(nil)

func NewOverlayTracker(base Tracker) *OverlayTracker {
	return &OverlayTracker{
		Base:  base,
		local: NewMemTracker(),
	}
}

func (t *OverlayTracker) MarkEvaluated(ctx context.Context, user, submission string) (bool, error) {
	seen, err := t.Base.IsEvaluated(ctx, user, submission)
	if err != nil || seen {
		return false, err
	}
	return t.local.MarkEvaluated(ctx, user, submission)
}

func (t *OverlayTracker) IsEvaluated(ctx context.Context, user, submission string) (bool, error) {
	seen, err := t.Base.IsEvaluated(ctx, user, submission)
	if err != nil || seen {
		return seen, err
	}
	return t.local.IsEvaluated(ctx, user, submission)
}
