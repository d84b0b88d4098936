package transcript

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func countEntries(t *testing.T, db *sql.DB, sessionID string) int {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM entries WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return n
}

func TestStoreAppend(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Append(ctx, Entry{
		Content:   "hello there",
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	err = store.Append(ctx, Entry{
		Content:   "tool call: query_stock_price",
		ToolName:  "query_stock_price",
		SessionID: "sess-1",
		Metadata:  `{"query":"AAPL"}`,
	})
	if err != nil {
		t.Fatalf("append tool entry: %v", err)
	}

	if got := countEntries(t, store.db, "sess-1"); got != 2 {
		t.Errorf("expected 2 entries, got %d", got)
	}

	var content, toolName, metadata sql.NullString
	err = store.db.QueryRow(
		`SELECT content, tool_name, metadata_json FROM entries WHERE tool_name IS NOT NULL`,
	).Scan(&content, &toolName, &metadata)
	if err != nil {
		t.Fatalf("query tool entry: %v", err)
	}
	if toolName.String != "query_stock_price" {
		t.Errorf("tool_name = %q", toolName.String)
	}
	if metadata.String != `{"query":"AAPL"}` {
		t.Errorf("metadata_json = %q", metadata.String)
	}
}

func TestStoreAppendNullableColumns(t *testing.T) {
	store := openTestStore(t)

	if err := store.Append(context.Background(), Entry{Content: "plain text", SessionID: "sess-2"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var toolName, metadata sql.NullString
	err := store.db.QueryRow(`SELECT tool_name, metadata_json FROM entries WHERE session_id = ?`, "sess-2").
		Scan(&toolName, &metadata)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if toolName.Valid || metadata.Valid {
		t.Errorf("expected NULL tool_name and metadata, got %v / %v", toolName, metadata)
	}
}

func TestBufferIdleFlush(t *testing.T) {
	store := openTestStore(t)

	b := NewBuffer(store, "sess-3", nil)
	b.idle = 20 * time.Millisecond

	b.AddText("first part")
	b.AddText("second part")

	deadline := time.Now().Add(2 * time.Second)
	for countEntries(t, store.db, "sess-3") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle flush never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var content string
	err := store.db.QueryRow(`SELECT content FROM entries WHERE session_id = ?`, "sess-3").Scan(&content)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if content != "first part second part" {
		t.Errorf("flushed content %q", content)
	}
}

func TestBufferCloseFlushesPending(t *testing.T) {
	store := openTestStore(t)

	b := NewBuffer(store, "sess-4", nil)
	b.AddText("unflushed text")
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := countEntries(t, store.db, "sess-4"); got != 1 {
		t.Fatalf("expected 1 entry after close, got %d", got)
	}

	// AddText after close is ignored.
	b.AddText("late text")
	time.Sleep(10 * time.Millisecond)
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := countEntries(t, store.db, "sess-4"); got != 1 {
		t.Errorf("expected text after close to be dropped, got %d entries", got)
	}
}

func TestBufferFlushEmptyIsNoop(t *testing.T) {
	store := openTestStore(t)

	b := NewBuffer(store, "sess-5", nil)
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := countEntries(t, store.db, "sess-5"); got != 0 {
		t.Errorf("expected no entries, got %d", got)
	}
}

func TestBufferToolCallWritesThrough(t *testing.T) {
	store := openTestStore(t)

	b := NewBuffer(store, "sess-6", nil)
	b.AddText("still buffered")
	b.AddToolCall(context.Background(), "open_browser", `{"url":"https://example.com"}`)

	// The tool row lands immediately while the text is still pending.
	if got := countEntries(t, store.db, "sess-6"); got != 1 {
		t.Errorf("expected 1 entry before flush, got %d", got)
	}
}
