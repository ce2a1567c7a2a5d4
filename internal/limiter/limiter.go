package limiter

import (
	"context"
	"strings"
	"sync"
)

// Inflight caps concurrent in-flight requests per provider:model pair, so a
// burst of grading jobs cannot stampede one upstream model.
type Inflight struct {
	mu   sync.Mutex
	size int
	sem  map[string]chan struct{}
}

// NewInflight creates a limiter allowing size concurrent requests per pair.
// size <= 0 disables limiting; Acquire then returns immediately.
func NewInflight(size int) *Inflight {
	return &Inflight{size: size, sem: map[string]chan struct{}{}}
}

func (l *Inflight) slot(provider, model string) chan struct{} {
	key := strings.ToLower(provider) + ":" + strings.ToLower(model)
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.sem[key]
	if !ok {
		ch = make(chan struct{}, l.size)
		l.sem[key] = ch
	}
	return ch
}

// Acquire blocks until a slot for provider:model is free or ctx is done.
// The returned release func must be called exactly once.
func (l *Inflight) Acquire(ctx context.Context, provider, model string) (func(), error) {
	if l == nil || l.size <= 0 {
		return func() {}, nil
	}
	ch := l.slot(provider, model)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire reserves a slot without blocking. Returns false when the pair is
// already at capacity.
func (l *Inflight) TryAcquire(provider, model string) (func(), bool) {
	if l == nil || l.size <= 0 {
		return func() {}, true
	}
	ch := l.slot(provider, model)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return nil, false
	}
}
