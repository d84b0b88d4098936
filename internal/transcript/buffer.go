package transcript

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultIdleFlush = 2 * time.Second

// Buffer accumulates spoken text for one session and writes it to the store
// once no new text has arrived for the idle interval. Tool invocations are
// written through immediately.
type Buffer struct {
	store     *Store
	sessionID string
	idle      time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	pending strings.Builder
	timer   *time.Timer
	closed  bool
}

func NewBuffer(store *Store, sessionID string, log *slog.Logger) *Buffer {
	if log == nil {
		log = slog.Default()
	}
	return &Buffer{
		store:     store,
		sessionID: sessionID,
		idle:      defaultIdleFlush,
		log:       log.With("session_id", sessionID),
	}
}

// AddText appends spoken text and resets the idle flush timer.
func (b *Buffer) AddText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if b.pending.Len() > 0 {
		b.pending.WriteString(" ")
	}
	b.pending.WriteString(strings.TrimSpace(text))

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.idle, b.flushIdle)
}

// AddToolCall records a tool invocation as its own row, bypassing the idle
// buffer so ordering against surrounding speech stays close to real time.
func (b *Buffer) AddToolCall(ctx context.Context, toolName, arguments string) {
	if b.store == nil {
		return
	}
	err := b.store.Append(ctx, Entry{
		Content:   "tool call: " + toolName,
		ToolName:  toolName,
		SessionID: b.sessionID,
		Metadata:  arguments,
	})
	if err != nil {
		b.log.Error("failed to persist tool call", "tool", toolName, "error", err)
	}
}

func (b *Buffer) flushIdle() {
	if err := b.Flush(context.Background()); err != nil {
		b.log.Error("idle transcript flush failed", "error", err)
	}
}

// Flush writes any pending text as one entry. Safe to call with nothing
// pending.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	text := b.pending.String()
	b.pending.Reset()
	b.mu.Unlock()

	if text == "" || b.store == nil {
		return nil
	}
	return b.store.Append(ctx, Entry{
		Content:   text,
		SessionID: b.sessionID,
	})
}

// Close flushes pending text and stops the buffer. Further AddText calls
// are ignored.
func (b *Buffer) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.Flush(context.Background())
}
