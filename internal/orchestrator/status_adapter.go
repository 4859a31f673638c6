package orchestrator

import (
    "context"

    "github.com/local/invoicebrain/internal/store"
)

type redisStatusAdapter struct { s *store.RedisStatus }

func NewStatusAdapter(s *store.RedisStatus) StatusStore { return &redisStatusAdapter{s: s} }

func (a *redisStatusAdapter) Set(ctx context.Context, docID string, st Status) error {
    if err := a.s.Set(ctx, docID, store.Status{
        Stage:    st.Stage,
        Type:     st.Type,
        Message:  st.Message,
        File:     st.File,
        Stem:     st.Stem,
        Start:    st.Start,
        End:      st.End,
        Metadata: st.Metadata,
    }); err != nil {
        return err
    }
    if st.IntakeName != "" {
        return a.s.SetIntakeMapping(ctx, st.IntakeName, docID)
    }
    return nil
}

func (a *redisStatusAdapter) Get(ctx context.Context, docID string) (Status, bool, error) {
    st, ok, err := a.s.Get(ctx, docID)
    if !ok || err != nil { return Status{}, ok, err }
    return Status{
        Stage:    st.Stage,
        Type:     st.Type,
        Message:  st.Message,
        File:     st.File,
        Stem:     st.Stem,
        Start:    st.Start,
        End:      st.End,
        Metadata: st.Metadata,
    }, true, nil
}

func (a *redisStatusAdapter) DocByIntakeName(ctx context.Context, name string) (string, bool, error) {
    return a.s.DocByIntakeName(ctx, name)
}
