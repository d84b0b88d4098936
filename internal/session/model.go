package session

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
	StatusError  Status = "error"
)

// Record is the persisted view of a session, kept in redis with a TTL.
type Record struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func (r *Record) RedisKey() string {
	return "session:" + r.ID
}

// Metrics is one hour of aggregated counters.
type Metrics struct {
	Date       string `json:"date"`
	Hour       int    `json:"hour"`
	Sessions   int64  `json:"sessions"`
	Utterances int64  `json:"utterances"`
	Responses  int64  `json:"responses"`
	ToolCalls  int64  `json:"tool_calls"`
	ErrorCount int64  `json:"error_count"`
}

func MetricsRedisKey(date string, hour int) string {
	return "metrics:" + date + ":" + strconv.Itoa(hour)
}
