package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lumeo-ai/lumeo/internal/audio"
	"github.com/lumeo-ai/lumeo/internal/flow"
	"github.com/lumeo-ai/lumeo/internal/shared"
	"github.com/lumeo-ai/lumeo/internal/tools"
	"github.com/lumeo-ai/lumeo/internal/transcript"
)

// UI is the client-facing surface a session renders into: chat messages,
// the in-place live transcript, tool activity, and errors.
type UI interface {
	tools.Poster
	UpdateLive(ctx context.Context, id, author, text string) error
	NotifyTool(ctx context.Context, name string) error
	NotifyError(ctx context.Context, message string) error
}

// Dialer opens a conversation. Swappable so retry behavior is testable
// without a network.
type Dialer func(ctx context.Context, cfg flow.Config) (flow.Conversation, error)

func defaultDialer(ctx context.Context, cfg flow.Config) (flow.Conversation, error) {
	return flow.Dial(ctx, cfg)
}

type Config struct {
	SessionID    string
	Connection   flow.ConnectionConfig
	Audio        flow.AudioSettings
	Conversation flow.ConversationConfig
	Backoff      shared.BackoffConfig

	Registry   *tools.Registry
	UI         UI
	Device     audio.Device
	Records    *Store             // optional, best-effort
	Transcript *transcript.Buffer // optional

	Dial  Dialer
	Sleep func(time.Duration)
	Log   *slog.Logger
}

// Controller owns one conversation for one UI session: the connection, the
// upstream audio bridge, the playback loop, and event routing. All mutable
// state is per-controller; the lock is never held across a network wait.
type Controller struct {
	id       string
	conn     flow.ConnectionConfig
	audioCfg flow.AudioSettings
	convCfg  flow.ConversationConfig
	backoff  shared.BackoffConfig
	registry *tools.Registry
	ui       UI
	device   audio.Device
	records  *Store
	tbuf     *transcript.Buffer
	dial     Dialer
	sleep    func(time.Duration)
	log      *slog.Logger

	mu             sync.Mutex
	state          State
	epoch          uint64
	conv           flow.Conversation
	bridge         *audio.StreamBridge
	outBuf         *audio.OutputBuffer
	playbackCancel context.CancelFunc
	playbackDone   chan struct{}
	runCancel      context.CancelFunc
	runDone        chan struct{}
	liveID         string
	liveCommitted  string
}

func NewController(cfg Config) *Controller {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.Dial == nil {
		cfg.Dial = defaultDialer
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	return &Controller{
		id:       cfg.SessionID,
		conn:     cfg.Connection,
		audioCfg: flow.NormalizeAudioSettings(cfg.Audio),
		convCfg:  cfg.Conversation,
		backoff:  shared.NormalizeBackoff(cfg.Backoff),
		registry: cfg.Registry,
		ui:       cfg.UI,
		device:   cfg.Device,
		records:  cfg.Records,
		tbuf:     cfg.Transcript,
		dial:     cfg.Dial,
		sleep:    cfg.Sleep,
		log:      log.With("session_id", cfg.SessionID),
	}
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start connects to the conversational service and begins the session. A
// quota rejection is retried with exponential backoff up to the attempt
// ceiling; any other failure resets and propagates immediately. If the
// session is already in use it is fully reset first, so there is never more
// than one active connection.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		c.log.Warn("start requested while session in use, resetting", "state", st.String())
		if err := c.Stop(ctx); err != nil {
			c.log.Error("reset before start failed", "error", err)
		}
		c.mu.Lock()
	}
	c.state = StateConnecting
	c.epoch++
	epoch := c.epoch
	c.bridge = audio.NewStreamBridge()
	c.outBuf = audio.NewOutputBuffer()
	c.liveID = ""
	c.liveCommitted = ""
	c.mu.Unlock()

	conv, err := c.connect(ctx)
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch && c.state == StateConnecting {
			c.state = StateIdle
			c.bridge = nil
			c.outBuf = nil
		}
		c.mu.Unlock()
		c.reportError(ctx, err)
		return err
	}

	playCtx, playCancel := context.WithCancel(context.Background())
	playDone := make(chan struct{})
	runCtx, runCancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})

	c.mu.Lock()
	// A Stop issued during the dial/backoff window already tore the session
	// down; the fresh connection must not resurrect it.
	if c.epoch != epoch || c.state != StateConnecting {
		c.mu.Unlock()
		playCancel()
		runCancel()
		_ = conv.Close()
		c.log.Info("session stopped while connecting, discarding connection")
		return nil
	}
	c.conv = conv
	c.playbackCancel = playCancel
	c.playbackDone = playDone
	c.runCancel = runCancel
	c.runDone = runDone
	c.state = StateActive
	bridge := c.bridge
	outBuf := c.outBuf
	c.mu.Unlock()

	sink := audio.NewSink(outBuf, 0, c.log)
	go func() {
		defer close(playDone)
		sink.Run(playCtx, c.device)
	}()
	go func() {
		defer close(runDone)
		c.onRunExit(conv.Run(runCtx, bridge))
	}()

	c.recordStart(ctx)
	c.log.Info("session active")
	return nil
}

func (c *Controller) connect(ctx context.Context) (flow.Conversation, error) {
	var defs []flow.ToolDefinition
	if c.registry != nil {
		defs = c.registry.Definitions()
	}
	cfg := flow.Config{
		Connection:   c.conn,
		Audio:        c.audioCfg,
		Conversation: c.convCfg,
		Tools:        defs,
		Callbacks:    c.callbacks(),
		Log:          c.log,
	}

	delay := c.backoff.Initial
	var lastErr error
	for attempt := 1; attempt <= c.backoff.MaxAttempts; attempt++ {
		conv, err := c.dial(ctx, cfg)
		if err == nil {
			return conv, nil
		}
		lastErr = err
		if !shared.IsQuotaExceeded(err) {
			return nil, err
		}
		if attempt == c.backoff.MaxAttempts {
			break
		}
		c.log.Warn("capacity exhausted, retrying",
			"attempt", attempt, "delay", delay.String())
		c.sleep(delay)
		delay = time.Duration(float64(delay) * c.backoff.Multiplier)
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", c.backoff.MaxAttempts, lastErr)
}

// SubmitAudio pushes one microphone chunk upstream. Chunks arriving while
// the session is not active are dropped with a warning.
func (c *Controller) SubmitAudio(chunk []byte) {
	if len(chunk) == 0 {
		c.log.Warn("dropping empty audio chunk")
		return
	}

	c.mu.Lock()
	bridge := c.bridge
	active := c.state == StateActive
	c.mu.Unlock()

	if !active || bridge == nil {
		c.log.Warn("audio submitted while session not active")
		return
	}
	bridge.Push(chunk)
}

// EndAudio marks the end of the microphone stream. The conversation keeps
// running so remaining responses and playback still arrive.
func (c *Controller) EndAudio() {
	c.mu.Lock()
	bridge := c.bridge
	c.mu.Unlock()
	if bridge != nil {
		bridge.CloseSend()
	}
}

// Stop tears the session down and returns it to Idle. Idempotent, safe on a
// never-started controller, and waits for the playback loop to finish so
// the device handle is released before any reuse.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateIdle && c.conv == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	bridge := c.bridge
	runCancel := c.runCancel
	runDone := c.runDone
	c.mu.Unlock()

	if bridge != nil {
		bridge.CloseSend()
	}
	if runCancel != nil {
		runCancel()
	}
	if runDone != nil {
		<-runDone
	}

	c.teardown(ctx, StatusEnded)
	c.log.Info("session stopped")
	return nil
}

// Close stops the session and retires the transcript buffer for good. Stop
// alone keeps the buffer usable so the same connection can restart; Close is
// for final removal, after which its idle timer never fires again.
func (c *Controller) Close(ctx context.Context) error {
	err := c.Stop(ctx)
	if c.tbuf != nil {
		if cerr := c.tbuf.Close(); cerr != nil {
			c.log.Error("transcript buffer close failed", "error", cerr)
		}
	}
	return err
}

// onRunExit handles the conversation loop finishing on its own. A
// deliberate Stop owns cleanup instead and is detected by state.
func (c *Controller) onRunExit(err error) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.state = StateError
	} else {
		c.state = StateStopping
	}
	c.mu.Unlock()

	ctx := context.Background()
	if err != nil {
		c.log.Error("conversation ended with error", "error", err)
		c.reportError(ctx, err)
		c.teardown(ctx, StatusError)
		return
	}
	c.log.Info("conversation ended")
	c.teardown(ctx, StatusEnded)
}

func (c *Controller) teardown(ctx context.Context, status Status) {
	c.mu.Lock()
	conv := c.conv
	bridge := c.bridge
	playCancel := c.playbackCancel
	playDone := c.playbackDone
	outBuf := c.outBuf
	c.conv = nil
	c.bridge = nil
	c.outBuf = nil
	c.playbackCancel = nil
	c.playbackDone = nil
	c.runCancel = nil
	c.runDone = nil
	c.liveID = ""
	c.liveCommitted = ""
	c.state = StateIdle
	c.mu.Unlock()

	// Unblocks the connection's audio writer if it is still in a read.
	if bridge != nil {
		bridge.CloseSend()
	}
	if playCancel != nil {
		playCancel()
	}
	if playDone != nil {
		<-playDone
	}
	if conv != nil {
		_ = conv.Close()
	}
	if outBuf != nil {
		outBuf.Reset()
	}
	if c.tbuf != nil {
		if err := c.tbuf.Flush(ctx); err != nil {
			c.log.Error("transcript flush failed", "error", err)
		}
	}
	c.recordEnd(ctx, status)
}

func (c *Controller) callbacks() flow.Callbacks {
	return flow.Callbacks{
		OnStarted: func(conversationID string) {
			c.log.Info("conversation started", "conversation_id", conversationID)
		},
		OnTranscript:          c.onTranscript,
		OnAudio:               c.onAudio,
		OnResponseCompleted:   c.onResponseCompleted,
		OnResponseInterrupted: c.onResponseInterrupted,
		OnToolInvoke:          c.onToolInvoke,
		OnEnded: func() {
			c.log.Info("conversation ended by service")
		},
		OnWarning: func(message string) {
			c.log.Warn("service warning", "reason", message)
		},
		OnError: func(err error) {
			c.log.Error("service error", "error", err)
		},
	}
}

func (c *Controller) onAudio(data []byte) {
	c.mu.Lock()
	buf := c.outBuf
	c.mu.Unlock()
	if buf != nil {
		buf.Append(data)
	}
}

// onTranscript keeps exactly one live user message per utterance: finals
// are committed, partials rendered after the committed prefix, and the
// whole message replaced in place on each update.
func (c *Controller) onTranscript(evt flow.TranscriptEvent) {
	text := strings.TrimSpace(evt.Text)
	if text == "" {
		return
	}
	ctx := context.Background()

	c.mu.Lock()
	if c.liveID == "" {
		c.liveID = shared.NewID("msg_")
	}
	id := c.liveID
	if !evt.IsPartial {
		if c.liveCommitted != "" {
			c.liveCommitted += " "
		}
		c.liveCommitted += text
	}
	rendered := c.liveCommitted
	if evt.IsPartial {
		if rendered != "" {
			rendered += " "
		}
		rendered += text
	}
	c.mu.Unlock()

	if c.ui != nil {
		if err := c.ui.UpdateLive(ctx, id, "user", rendered); err != nil {
			c.log.Error("live transcript update failed", "error", err)
		}
	}
	if !evt.IsPartial {
		if c.tbuf != nil {
			c.tbuf.AddText(text)
		}
		if c.records != nil {
			if err := c.records.IncrementUtterances(ctx); err != nil {
				c.log.Debug("utterance counter update failed", "error", err)
			}
		}
	}
}

func (c *Controller) onResponseCompleted(text string) {
	ctx := context.Background()

	c.mu.Lock()
	c.liveID = ""
	c.liveCommitted = ""
	c.mu.Unlock()

	if text != "" {
		if c.ui != nil {
			if err := c.ui.Post(ctx, tools.Message{Author: "agent", Content: text}); err != nil {
				c.log.Error("failed to post agent message", "error", err)
			}
		}
		if c.tbuf != nil {
			c.tbuf.AddText(text)
		}
	}
	if c.records != nil {
		if err := c.records.IncrementResponses(ctx); err != nil {
			c.log.Debug("response counter update failed", "error", err)
		}
	}
}

func (c *Controller) onResponseInterrupted(text string) {
	ctx := context.Background()

	c.mu.Lock()
	c.liveID = ""
	c.liveCommitted = ""
	c.mu.Unlock()

	if text == "" {
		return
	}
	if c.ui != nil {
		if err := c.ui.Post(ctx, tools.Message{Author: "agent", Content: text}); err != nil {
			c.log.Error("failed to post interrupted agent message", "error", err)
		}
	}
	if c.tbuf != nil {
		c.tbuf.AddText(text)
	}
}

// onToolInvoke runs dispatch off the read loop so a slow tool never stalls
// event delivery.
func (c *Controller) onToolInvoke(evt flow.ToolInvokeEvent) {
	go c.runTool(context.Background(), evt)
}

func (c *Controller) runTool(ctx context.Context, evt flow.ToolInvokeEvent) {
	c.log.Info("tool invoked", "tool", evt.Name, "invocation_id", evt.ID)

	if c.ui != nil {
		if err := c.ui.NotifyTool(ctx, evt.Name); err != nil {
			c.log.Debug("tool notification failed", "error", err)
		}
	}
	if c.tbuf != nil {
		c.tbuf.AddToolCall(ctx, evt.Name, string(evt.Arguments))
	}
	if c.records != nil {
		if err := c.records.IncrementToolCalls(ctx); err != nil {
			c.log.Debug("tool counter update failed", "error", err)
		}
	}

	var res tools.Result
	if c.registry != nil {
		res = c.registry.Dispatch(ctx, evt, c.ui)
	} else {
		res = tools.Failure("unknown tool: " + evt.Name)
	}

	c.mu.Lock()
	conv := c.conv
	c.mu.Unlock()
	if conv == nil {
		c.log.Warn("tool finished after session teardown", "tool", evt.Name)
		return
	}
	if err := conv.SendToolResult(ctx, evt.ID, res.Status, res.Content); err != nil {
		c.log.Error("failed to send tool result", "tool", evt.Name, "error", err)
	}
}

func (c *Controller) reportError(ctx context.Context, err error) {
	if c.ui != nil {
		if uerr := c.ui.NotifyError(ctx, err.Error()); uerr != nil {
			c.log.Debug("error notification failed", "error", uerr)
		}
	}
	if c.records != nil {
		if rerr := c.records.IncrementErrors(ctx); rerr != nil {
			c.log.Debug("error counter update failed", "error", rerr)
		}
	}
}

func (c *Controller) recordStart(ctx context.Context) {
	if c.records == nil {
		return
	}
	rec := &Record{ID: c.id}
	if err := c.records.CreateRecord(ctx, rec); err != nil {
		c.log.Warn("failed to persist session record", "error", err)
	}
	if err := c.records.IncrementSessions(ctx); err != nil {
		c.log.Debug("session counter update failed", "error", err)
	}
}

func (c *Controller) recordEnd(ctx context.Context, status Status) {
	if c.records == nil {
		return
	}
	if err := c.records.EndRecord(ctx, c.id, status); err != nil {
		c.log.Debug("failed to update session record", "error", err)
	}
}
