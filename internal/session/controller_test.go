package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lumeo-ai/lumeo/internal/flow"
	"github.com/lumeo-ai/lumeo/internal/shared"
	"github.com/lumeo-ai/lumeo/internal/transcript"
)

type toolResultCall struct {
	ID      string
	Status  flow.ToolResultStatus
	Content any
}

type fakeConversation struct {
	mu          sync.Mutex
	toolResults []toolResultCall
	closed      bool
	runExit     chan error
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{runExit: make(chan error, 1)}
}

func (f *fakeConversation) Run(ctx context.Context, audio io.Reader) error {
	go func() { _, _ = io.Copy(io.Discard, audio) }()
	select {
	case <-ctx.Done():
		return nil
	case err := <-f.runExit:
		return err
	}
}

func (f *fakeConversation) SendToolResult(_ context.Context, id string, status flow.ToolResultStatus, content any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolResults = append(f.toolResults, toolResultCall{ID: id, Status: status, Content: content})
	return nil
}

func (f *fakeConversation) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConversation) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConversation) results() []toolResultCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]toolResultCall, len(f.toolResults))
	copy(out, f.toolResults)
	return out
}

type fakeDevice struct {
	mu     sync.Mutex
	writes [][]byte
	closes int
}

func (d *fakeDevice) Write(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	d.writes = append(d.writes, cp)
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDevice) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *fakeSleeper) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

func (s *fakeSleeper) observed() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

type dialScript struct {
	mu        sync.Mutex
	attempts  int
	errs      []error // consumed per attempt; nil entry means success
	convs     []*fakeConversation
	callbacks flow.Callbacks
}

func (d *dialScript) dial(_ context.Context, cfg flow.Config) (flow.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = cfg.Callbacks

	var err error
	if d.attempts < len(d.errs) {
		err = d.errs[d.attempts]
	}
	d.attempts++
	if err != nil {
		return nil, err
	}
	conv := newFakeConversation()
	d.convs = append(d.convs, conv)
	return conv, nil
}

func (d *dialScript) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *dialScript) conversations() []*fakeConversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*fakeConversation, len(d.convs))
	copy(out, d.convs)
	return out
}

func newTestController(script *dialScript, sleeper *fakeSleeper) *Controller {
	return NewController(Config{
		SessionID: "test-session",
		Dial:      script.dial,
		Sleep:     sleeper.sleep,
		Device:    &fakeDevice{},
	})
}

func TestStartRetriesQuotaThenSucceeds(t *testing.T) {
	quota := fmt.Errorf("dial: %w", shared.ErrQuotaExceeded)
	script := &dialScript{errs: []error{quota, quota, nil}}
	sleeper := &fakeSleeper{}
	c := newTestController(script, sleeper)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	if got := script.attemptCount(); got != 3 {
		t.Errorf("expected 3 dial attempts, got %d", got)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	got := sleeper.observed()
	if len(got) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if st := c.State(); st != StateActive {
		t.Errorf("expected active state, got %s", st)
	}
}

func TestStartGivesUpAfterAttemptCeiling(t *testing.T) {
	quota := fmt.Errorf("dial: %w", shared.ErrQuotaExceeded)
	script := &dialScript{errs: []error{quota, quota, quota, quota}}
	sleeper := &fakeSleeper{}
	c := newTestController(script, sleeper)

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if !errors.Is(err, shared.ErrQuotaExceeded) {
		t.Errorf("expected quota classification, got %v", err)
	}
	if got := script.attemptCount(); got != 3 {
		t.Errorf("expected exactly 3 dial attempts, got %d", got)
	}
	if got := len(sleeper.observed()); got != 2 {
		t.Errorf("expected 2 sleeps, got %d", got)
	}
	if st := c.State(); st != StateIdle {
		t.Errorf("expected idle state after failure, got %s", st)
	}

	// No playback loop was ever started.
	c.mu.Lock()
	if c.playbackDone != nil || c.outBuf != nil {
		t.Error("playback state left behind after failed start")
	}
	c.mu.Unlock()
}

func TestStartDoesNotRetryOtherErrors(t *testing.T) {
	dialErr := errors.New("connection refused")
	script := &dialScript{errs: []error{dialErr, dialErr, dialErr}}
	sleeper := &fakeSleeper{}
	c := newTestController(script, sleeper)

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := script.attemptCount(); got != 1 {
		t.Errorf("expected a single dial attempt, got %d", got)
	}
	if got := len(sleeper.observed()); got != 0 {
		t.Errorf("expected no sleeps, got %d", got)
	}
	if st := c.State(); st != StateIdle {
		t.Errorf("expected idle state, got %s", st)
	}
}

func TestStopOnNeverStartedController(t *testing.T) {
	c := newTestController(&dialScript{}, &fakeSleeper{})

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st := c.State(); st != StateIdle {
		t.Errorf("expected idle state, got %s", st)
	}
	// Still safe to call again.
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStartWhileActiveResetsFirst(t *testing.T) {
	script := &dialScript{}
	c := newTestController(script, &fakeSleeper{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer c.Stop(context.Background())

	convs := script.conversations()
	if len(convs) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(convs))
	}
	if !convs[0].isClosed() {
		t.Error("first connection still open after restart")
	}
	if convs[1].isClosed() {
		t.Error("second connection closed unexpectedly")
	}
	if st := c.State(); st != StateActive {
		t.Errorf("expected active state, got %s", st)
	}
}

func TestStopReleasesPlaybackDevice(t *testing.T) {
	script := &dialScript{}
	device := &fakeDevice{}
	c := NewController(Config{
		SessionID: "test-session",
		Dial:      script.dial,
		Sleep:     (&fakeSleeper{}).sleep,
		Device:    device,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Stop waits for the playback loop, so the close is visible here.
	if got := device.closeCount(); got != 1 {
		t.Errorf("expected device closed once, got %d", got)
	}
	if st := c.State(); st != StateIdle {
		t.Errorf("expected idle state, got %s", st)
	}
}

func TestSubmitAudioWhileIdleIsDropped(t *testing.T) {
	c := newTestController(&dialScript{}, &fakeSleeper{})

	// Must not panic or block.
	c.SubmitAudio([]byte{1, 2, 3})
	c.SubmitAudio(nil)
}

func TestUnknownToolResultIsStructuredFailure(t *testing.T) {
	script := &dialScript{}
	c := newTestController(script, &fakeSleeper{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	script.mu.Lock()
	cb := script.callbacks
	script.mu.Unlock()

	cb.OnToolInvoke(flow.ToolInvokeEvent{ID: "inv-1", Name: "no_such_tool"})

	conv := script.conversations()[0]
	deadline := time.Now().Add(2 * time.Second)
	for len(conv.results()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("tool result never sent")
		}
		time.Sleep(5 * time.Millisecond)
	}

	res := conv.results()[0]
	if res.ID != "inv-1" {
		t.Errorf("result id %q", res.ID)
	}
	if res.Status != flow.ToolResultFailed {
		t.Errorf("expected failed status, got %q", res.Status)
	}
	content, ok := res.Content.(map[string]string)
	if !ok {
		t.Fatalf("expected map content, got %T", res.Content)
	}
	if _, ok := content["error"]; !ok {
		t.Error("failure content missing error key")
	}
	if st := c.State(); st != StateActive {
		t.Errorf("session state disturbed by unknown tool: %s", st)
	}
}

func TestAudioEventsReachPlaybackDevice(t *testing.T) {
	script := &dialScript{}
	device := &fakeDevice{}
	c := NewController(Config{
		SessionID: "test-session",
		Dial:      script.dial,
		Sleep:     (&fakeSleeper{}).sleep,
		Device:    device,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	script.mu.Lock()
	cb := script.callbacks
	script.mu.Unlock()

	cb.OnAudio([]byte{1, 2})
	cb.OnAudio([]byte{3, 4})

	deadline := time.Now().Add(2 * time.Second)
	for {
		device.mu.Lock()
		var got []byte
		for _, w := range device.writes {
			got = append(got, w...)
		}
		device.mu.Unlock()
		if string(got) == string([]byte{1, 2, 3, 4}) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("playback never drained, got %v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStopDuringConnectDoesNotActivate(t *testing.T) {
	conv := newFakeConversation()
	dialStarted := make(chan struct{})
	dialRelease := make(chan struct{})
	c := NewController(Config{
		SessionID: "test-session",
		Dial: func(context.Context, flow.Config) (flow.Conversation, error) {
			close(dialStarted)
			<-dialRelease
			return conv, nil
		},
		Sleep:  (&fakeSleeper{}).sleep,
		Device: &fakeDevice{},
	})

	startErr := make(chan error, 1)
	go func() { startErr <- c.Start(context.Background()) }()
	<-dialStarted

	// Stop lands while the dial is still in flight.
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(dialRelease)

	if err := <-startErr; err != nil {
		t.Fatalf("start: %v", err)
	}
	if st := c.State(); st != StateIdle {
		t.Errorf("expected idle state after stop, got %s", st)
	}
	if !conv.isClosed() {
		t.Error("late connection not closed")
	}

	// The stopped session holds no handles the late connection could revive.
	c.mu.Lock()
	if c.conv != nil || c.bridge != nil || c.outBuf != nil {
		t.Error("connection state left behind after stop")
	}
	c.mu.Unlock()

	// Must drop, not dereference torn-down buffers.
	c.SubmitAudio([]byte{1, 2, 3})
}

func TestCloseFlushesAndRetiresTranscriptBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.db")
	store, err := transcript.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	buf := transcript.NewBuffer(store, "sess-close", nil)
	c := NewController(Config{
		SessionID:  "sess-close",
		Dial:       (&dialScript{}).dial,
		Sleep:      (&fakeSleeper{}).sleep,
		Device:     &fakeDevice{},
		Transcript: buf,
	})

	buf.AddText("still pending")
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	count := func() int {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM entries WHERE session_id = ?`, "sess-close").Scan(&n); err != nil {
			t.Fatalf("count rows: %v", err)
		}
		return n
	}

	// Close flushes synchronously; no idle wait involved.
	if got := count(); got != 1 {
		t.Fatalf("expected 1 flushed entry, got %d", got)
	}

	// Text after Close is dropped, even through an explicit flush.
	buf.AddText("after close")
	if err := buf.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := count(); got != 1 {
		t.Errorf("expected no rows after close, got %d", got)
	}
}

func TestRunErrorResetsSession(t *testing.T) {
	script := &dialScript{}
	c := newTestController(script, &fakeSleeper{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	conv := script.conversations()[0]
	conv.runExit <- errors.New("connection dropped")

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("session never reset, state %s", c.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !conv.isClosed() {
		t.Error("connection not closed after run error")
	}
}
