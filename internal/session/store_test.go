package session

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lumeo-ai/lumeo/internal/shared"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client)
}

func TestStoreRecordLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{}
	if err := store.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}
	if rec.Status != StatusActive {
		t.Errorf("status %q", rec.Status)
	}

	got, err := store.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != rec.ID || got.Status != StatusActive {
		t.Errorf("got %+v", got)
	}

	if err := store.EndRecord(ctx, rec.ID, StatusEnded); err != nil {
		t.Fatalf("end: %v", err)
	}
	got, err = store.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get after end: %v", err)
	}
	if got.Status != StatusEnded {
		t.Errorf("status after end %q", got.Status)
	}

	if err := store.DeleteRecord(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = store.GetRecord(ctx, rec.ID)
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}

func TestStoreMetrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.IncrementSessions(ctx); err != nil {
		t.Fatalf("increment sessions: %v", err)
	}
	if err := store.IncrementUtterances(ctx); err != nil {
		t.Fatalf("increment utterances: %v", err)
	}
	if err := store.IncrementUtterances(ctx); err != nil {
		t.Fatalf("increment utterances: %v", err)
	}
	if err := store.IncrementToolCalls(ctx); err != nil {
		t.Fatalf("increment tool calls: %v", err)
	}

	metrics, err := store.GetMetrics(ctx, 1)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("expected 1 metrics bucket, got %d", len(metrics))
	}
	m := metrics[0]
	if m.Sessions != 1 || m.Utterances != 2 || m.ToolCalls != 1 {
		t.Errorf("unexpected counters: %+v", m)
	}
}
