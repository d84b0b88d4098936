package session

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumeo-ai/lumeo/internal/shared"
)

const (
	sessionTTL = 24 * time.Hour
	metricsTTL = 7 * 24 * time.Hour
)

// Store keeps session records and hourly counters in redis. It is
// best-effort: callers treat failures as log-worthy, never session-fatal.
type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) CreateRecord(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = shared.NewID("sess_")
	}
	rec.Status = StatusActive
	rec.StartedAt = time.Now()
	rec.LastActiveAt = time.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, rec.RedisKey(), data, sessionTTL).Err()
}

func (s *Store) GetRecord(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, "session:"+id).Bytes()
	if err == redis.Nil {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) UpdateRecord(ctx context.Context, rec *Record) error {
	rec.LastActiveAt = time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, rec.RedisKey(), data, sessionTTL).Err()
}

func (s *Store) EndRecord(ctx context.Context, id string, status Status) error {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.Status = status
	return s.UpdateRecord(ctx, rec)
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	return s.redis.Del(ctx, "session:"+id).Err()
}

func (s *Store) IncrementMetric(ctx context.Context, field string, value int64) error {
	now := time.Now().UTC()
	key := MetricsRedisKey(now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, field, value)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) IncrementSessions(ctx context.Context) error {
	return s.IncrementMetric(ctx, "sessions", 1)
}

func (s *Store) IncrementUtterances(ctx context.Context) error {
	return s.IncrementMetric(ctx, "utterances", 1)
}

func (s *Store) IncrementResponses(ctx context.Context) error {
	return s.IncrementMetric(ctx, "responses", 1)
}

func (s *Store) IncrementToolCalls(ctx context.Context) error {
	return s.IncrementMetric(ctx, "tool_calls", 1)
}

func (s *Store) IncrementErrors(ctx context.Context) error {
	return s.IncrementMetric(ctx, "error_count", 1)
}

func (s *Store) GetMetrics(ctx context.Context, hours int) ([]*Metrics, error) {
	now := time.Now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		key := MetricsRedisKey(t.Format("2006-01-02"), t.Hour())

		data, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil || len(data) == 0 {
			continue
		}

		m := &Metrics{
			Date: t.Format("2006-01-02"),
			Hour: t.Hour(),
		}
		if v, ok := data["sessions"]; ok {
			m.Sessions, _ = strconv.ParseInt(v, 10, 64)
		}
		if v, ok := data["utterances"]; ok {
			m.Utterances, _ = strconv.ParseInt(v, 10, 64)
		}
		if v, ok := data["responses"]; ok {
			m.Responses, _ = strconv.ParseInt(v, 10, 64)
		}
		if v, ok := data["tool_calls"]; ok {
			m.ToolCalls, _ = strconv.ParseInt(v, 10, 64)
		}
		if v, ok := data["error_count"]; ok {
			m.ErrorCount, _ = strconv.ParseInt(v, 10, 64)
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}
