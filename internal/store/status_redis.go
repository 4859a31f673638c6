package store

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Status is the last known pipeline state of one document.
type Status struct {
    Stage    string                 `json:"stage"`
    Type     string                 `json:"type"`
    Message  string                 `json:"message"`
    File     string                 `json:"file"`
    Stem     string                 `json:"stem,omitempty"`
    Start    *time.Time             `json:"start_time,omitempty"`
    End      *time.Time             `json:"end_time,omitempty"`
    Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type RedisStatus struct {
    client *redis.Client
    keyNS  string
    ttl    time.Duration
}

func NewRedisStatus(redisURL string) (*RedisStatus, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil { return nil, err }
    return &RedisStatus{client: c, keyNS: "doc", ttl: 30 * 24 * time.Hour}, nil
}

func (s *RedisStatus) key(docID string) string { return statusKey(s.keyNS, docID) }

func statusKey(ns, docID string) string { return fmt.Sprintf("%s:%s:status", ns, docID) }

func intakeKey(name string) string { return fmt.Sprintf("intake_to_doc:%s", name) }

// encode flattens a Status into Redis hash fields.
func encode(st Status) map[string]interface{} {
    m := map[string]interface{}{
        "stage":   st.Stage,
        "type":    st.Type,
        "message": st.Message,
        "file":    st.File,
        "stem":    st.Stem,
    }
    if st.Start != nil { m["start"] = st.Start.Format(time.RFC3339Nano) }
    if st.End != nil { m["end"] = st.End.Format(time.RFC3339Nano) }
    if st.Metadata != nil {
        b, _ := json.Marshal(st.Metadata)
        m["metadata"] = string(b)
    }
    return m
}

// decode is the inverse of encode; unparsable optional fields are dropped.
func decode(res map[string]string) Status {
    st := Status{
        Stage:   res["stage"],
        Type:    res["type"],
        Message: res["message"],
        File:    res["file"],
        Stem:    res["stem"],
    }
    if v := res["start"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.Start = &t }
    }
    if v := res["end"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.End = &t }
    }
    if v := res["metadata"]; v != "" {
        _ = json.Unmarshal([]byte(v), &st.Metadata)
    }
    return st
}

func (s *RedisStatus) Set(ctx context.Context, docID string, st Status) error {
    pipe := s.client.TxPipeline()
    pipe.HSet(ctx, s.key(docID), encode(st))
    pipe.Expire(ctx, s.key(docID), s.ttl)
    _, err := pipe.Exec(ctx)
    return err
}

func (s *RedisStatus) Get(ctx context.Context, docID string) (Status, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(docID)).Result()
    if err != nil { return Status{}, false, err }
    if len(res) == 0 { return Status{}, false, nil }
    return decode(res), true, nil
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

// SetIntakeMapping remembers which document an intake file name became.
func (s *RedisStatus) SetIntakeMapping(ctx context.Context, intakeName, docID string) error {
    return s.client.Set(ctx, intakeKey(intakeName), docID, s.ttl).Err()
}

// DocByIntakeName returns the document id created for an intake file name.
func (s *RedisStatus) DocByIntakeName(ctx context.Context, intakeName string) (string, bool, error) {
    docID, err := s.client.Get(ctx, intakeKey(intakeName)).Result()
    if errors.Is(err, redis.Nil) { return "", false, nil }
    if err != nil { return "", false, fmt.Errorf("lookup intake %s: %w", intakeName, err) }
    return docID, true, nil
}
