package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumeo-ai/lumeo/internal/audio"
	"github.com/lumeo-ai/lumeo/internal/session"
	"github.com/lumeo-ai/lumeo/internal/shared"
	"github.com/lumeo-ai/lumeo/internal/tools"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

type outFrame struct {
	binary bool
	data   []byte
	env    *Envelope
}

// Conn is one browser client connection. Text frames carry Envelope JSON,
// binary frames carry PCM audio: microphone chunks up, playback down. It is
// the session's UI surface and its playback device.
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger

	send      chan outFrame
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	return &Conn{
		ws:   ws,
		log:  log,
		send: make(chan outFrame, 128),
		done: make(chan struct{}),
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) enqueue(f outFrame) error {
	select {
	case <-c.done:
		return shared.ErrNotActive
	default:
	}

	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return shared.ErrNotActive
	default:
		c.log.Warn("send buffer full, dropping frame")
		return nil
	}
}

func (c *Conn) sendEnvelope(env *Envelope) error {
	return c.enqueue(outFrame{env: env})
}

// Post renders a chat message, including any image, link, or chart payload
// a tool attached.
func (c *Conn) Post(_ context.Context, msg tools.Message) error {
	author := msg.Author
	if author == "" {
		author = "agent"
	}
	return c.sendEnvelope(&Envelope{
		Type:    TypeMessage,
		ID:      shared.NewID("msg_"),
		Author:  author,
		Content: msg.Content,
		Image:   msg.ImageURL,
		OpenURL: msg.OpenURL,
		Chart:   msg.ChartJSON,
	})
}

// UpdateLive replaces the live transcript message with the given id.
func (c *Conn) UpdateLive(_ context.Context, id, author, text string) error {
	return c.sendEnvelope(&Envelope{
		Type:    TypeLiveTranscript,
		ID:      id,
		Author:  author,
		Content: text,
	})
}

func (c *Conn) NotifyTool(_ context.Context, name string) error {
	return c.sendEnvelope(&Envelope{Type: TypeTool, Tool: name})
}

func (c *Conn) NotifyError(_ context.Context, message string) error {
	return c.sendEnvelope(&Envelope{Type: TypeError, Error: message})
}

var _ session.UI = (*Conn)(nil)

type playbackDevice struct {
	conn *Conn
}

// PlaybackDevice returns the audio output backed by this connection's
// binary downstream.
func (c *Conn) PlaybackDevice() audio.Device {
	return &playbackDevice{conn: c}
}

func (d *playbackDevice) Write(data []byte) error {
	return d.conn.enqueue(outFrame{binary: true, data: data})
}

// Close is a no-op: the websocket outlives any one playback loop and is
// owned by the connection, not the sink.
func (d *playbackDevice) Close() error {
	return nil
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if f.binary {
				if err := c.ws.WriteMessage(websocket.BinaryMessage, f.data); err != nil {
					c.log.Error("websocket write error", "error", err)
					return
				}
				continue
			}
			data, err := json.Marshal(f.env)
			if err != nil {
				c.log.Error("failed to marshal envelope", "error", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drives the session from the client's lifecycle envelopes until
// the client ends the chat or disconnects.
func (c *Conn) readPump(ctx context.Context, ctrl *session.Controller) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("websocket read error", "error", err)
			}
			return
		}

		if mt == websocket.BinaryMessage {
			ctrl.SubmitAudio(data)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("dropping malformed envelope", "error", err)
			continue
		}

		switch env.Type {
		case TypeChatStart:
			c.log.Info("chat started")
		case TypeAudioStart:
			// Connect retries can take seconds; never stall the read loop.
			go func() {
				if err := ctrl.Start(ctx); err != nil {
					c.log.Error("session start failed", "error", err)
				}
			}()
		case TypeAudioEnd:
			ctrl.EndAudio()
		case TypeStop:
			if err := ctrl.Stop(ctx); err != nil {
				c.log.Error("session stop failed", "error", err)
			}
		case TypeChatEnd:
			c.log.Info("chat ended")
			return
		default:
			c.log.Warn("dropping unknown envelope", "type", env.Type)
		}
	}
}
