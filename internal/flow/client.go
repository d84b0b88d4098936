package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumeo-ai/lumeo/internal/shared"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 1024 * 1024
)

type Config struct {
	Connection   ConnectionConfig
	Audio        AudioSettings
	Conversation ConversationConfig
	Tools        []ToolDefinition
	Callbacks    Callbacks
	Log          *slog.Logger
}

// Client speaks the conversational service's websocket protocol: JSON text
// frames for control events, binary frames for audio in both directions.
type Client struct {
	ws       *websocket.Conn
	settings AudioSettings
	cb       Callbacks
	log      *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	seqNo     int
}

// Dial connects and performs the StartConversation handshake. A 429 upgrade
// response or a quota-typed protocol error comes back wrapped as
// shared.ErrQuotaExceeded so callers can retry with backoff.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	settings := NormalizeAudioSettings(cfg.Audio)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	if cfg.Connection.AuthToken != "" {
		header.Set("Authorization", "Bearer "+cfg.Connection.AuthToken)
	}

	ws, resp, err := dialer.DialContext(ctx, cfg.Connection.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", shared.ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("dial conversation service: %w", err)
	}

	c := &Client{
		ws:       ws,
		settings: settings,
		cb:       cfg.Callbacks,
		log:      log,
	}

	start := startConversationMessage{
		Message: "StartConversation",
		AudioFormat: audioFormat{
			Type:       "raw",
			Encoding:   settings.Encoding,
			SampleRate: settings.SampleRate,
		},
		ConversationConfig: cfg.Conversation,
		Tools:              cfg.Tools,
	}
	if err := c.sendJSON(start); err != nil {
		ws.Close()
		return nil, err
	}

	if err := c.awaitStarted(ctx); err != nil {
		ws.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) awaitStarted(ctx context.Context) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetReadDeadline(deadline)

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("await conversation start: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := parseServerMessage(data)
		if err != nil {
			c.log.Warn("unparseable handshake message", "error", err)
			continue
		}
		switch msg.Message {
		case msgConversationStarted:
			if c.cb.OnStarted != nil {
				c.cb.OnStarted(msg.ID)
			}
			return nil
		case msgError:
			return serverError(msg)
		default:
			// Anything else before ConversationStarted is ignored.
		}
	}
}

// Run streams audio from the reader and dispatches server events until the
// conversation ends, the context is cancelled, or the connection fails.
// The audio reader must be unblocked (closed) by the caller on teardown.
func (c *Client) Run(ctx context.Context, audio io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() { writeErr <- c.streamAudio(ctx, audio) }()
	go c.pingLoop(ctx)

	err := c.readLoop(ctx)
	cancel()
	c.Close()

	// The writer may still be blocked in audio.Read; don't wait on it. It
	// unwinds once the caller closes the reader's send side.
	select {
	case werr := <-writeErr:
		if err == nil && werr != nil && !errors.Is(werr, context.Canceled) {
			err = werr
		}
	default:
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) readLoop(ctx context.Context) error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if mt == websocket.BinaryMessage {
			if c.cb.OnAudio != nil && len(data) > 0 {
				c.cb.OnAudio(data)
			}
			continue
		}

		msg, err := parseServerMessage(data)
		if err != nil {
			c.log.Warn("unparseable server message", "error", err)
			continue
		}
		if err := c.dispatch(msg); err != nil {
			return err
		}
		if msg.Message == msgConversationEnded {
			return nil
		}
	}
}

func (c *Client) dispatch(msg *serverMessage) error {
	switch msg.Message {
	case msgAddTranscript, msgAddPartialTranscript:
		text := msg.Content
		if msg.Metadata != nil {
			text = msg.Metadata.Transcript
		}
		if text == "" {
			return nil
		}
		if c.cb.OnTranscript != nil {
			c.cb.OnTranscript(TranscriptEvent{
				Text:      text,
				IsPartial: msg.Message == msgAddPartialTranscript,
			})
		}
	case msgResponseCompleted:
		if c.cb.OnResponseCompleted != nil {
			c.cb.OnResponseCompleted(msg.Content)
		}
	case msgResponseInterrupted:
		if c.cb.OnResponseInterrupted != nil {
			c.cb.OnResponseInterrupted(msg.Content)
		}
	case msgToolInvoke:
		if msg.Function == nil {
			c.log.Warn("tool invocation without function payload", "id", msg.ID)
			return nil
		}
		if c.cb.OnToolInvoke != nil {
			c.cb.OnToolInvoke(ToolInvokeEvent{
				ID:        msg.ID,
				Name:      msg.Function.Name,
				Arguments: msg.Function.Arguments,
			})
		}
	case msgAudioAdded:
		// Upload ack, nothing to do.
	case msgWarning:
		if c.cb.OnWarning != nil {
			c.cb.OnWarning(msg.Reason)
		}
	case msgError:
		err := serverError(msg)
		if c.cb.OnError != nil {
			c.cb.OnError(err)
		}
		return err
	case msgConversationEnded:
		if c.cb.OnEnded != nil {
			c.cb.OnEnded()
		}
	default:
		c.log.Debug("unhandled server message", "message", msg.Message)
	}
	return nil
}

func (c *Client) streamAudio(ctx context.Context, audio io.Reader) error {
	buf := make([]byte, c.settings.ChunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := audio.Read(buf)
		if n > 0 {
			c.seqNo++
			if werr := c.sendBinary(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return c.sendJSON(audioEndedMessage{Message: "AudioEnded", LastSeqNo: c.seqNo})
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) SendToolResult(ctx context.Context, id string, status ToolResultStatus, content any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.sendJSON(toolResultMessage{
		Message: "ToolResult",
		ID:      id,
		Status:  status,
		Content: content,
	})
}

func (c *Client) sendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) sendBinary(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
