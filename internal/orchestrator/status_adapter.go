package orchestrator

import (
	"context"

	"github.com/local/exammarker/internal/store"
)

type redisStatusAdapter struct{ s *store.RedisStatus }

// NewStatusAdapter exposes the Redis status store through the package-local
// StatusStore interface.
func NewStatusAdapter(s *store.RedisStatus) StatusStore { return &redisStatusAdapter{s: s} }

func (a *redisStatusAdapter) Set(ctx context.Context, jobID string, st Status) error {
	m := st.Metadata
	if m == nil {
		m = map[string]any{}
	}
	return a.s.Set(ctx, jobID, store.Status{
		Status:   st.Status,
		Progress: st.Progress,
		Message:  st.Message,
		Start:    st.Start,
		End:      st.End,
		Metadata: m,
	})
}

func (a *redisStatusAdapter) Get(ctx context.Context, jobID string) (Status, bool, error) {
	st, ok, err := a.s.Get(ctx, jobID)
	if !ok || err != nil {
		return Status{}, ok, err
	}
	return Status{
		Status:   st.Status,
		Progress: st.Progress,
		Message:  st.Message,
		Start:    st.Start,
		End:      st.End,
		Metadata: st.Metadata,
	}, true, nil
}
