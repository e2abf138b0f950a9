package search

import (
	"context"
	"sync"
)

// Latest wraps a Collaborator so that only the newest query wins. Issuing a
// query cancels the one in flight; a response that arrives after a newer
// query was issued is reported as ErrStale.
type Latest struct {
	inner Collaborator

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewLatest wraps inner.
func NewLatest(inner Collaborator) *Latest {
	return &Latest{inner: inner}
}

// Do runs query, superseding any earlier call.
func (l *Latest) Do(ctx context.Context, query string) ([]Result, error) {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	l.cancel = cancel
	l.mu.Unlock()

	results, err := l.inner.Search(ctx, query)

	l.mu.Lock()
	current := gen == l.gen
	if current {
		l.cancel = nil
	}
	l.mu.Unlock()
	cancel()

	if !current {
		return nil, ErrStale
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Search lets Latest stand in for a Collaborator.
func (l *Latest) Search(ctx context.Context, query string) ([]Result, error) {
	return l.Do(ctx, query)
}

// Cancel aborts the in-flight query, if any.
func (l *Latest) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
}
