package gateway

import "encoding/json"

// Envelope is the JSON frame exchanged with the browser client. Binary
// frames carry raw PCM audio in both directions and have no envelope.
type Envelope struct {
	Type string `json:"type"`

	// Server -> client message payloads.
	ID      string          `json:"id,omitempty"`
	Author  string          `json:"author,omitempty"`
	Content string          `json:"content,omitempty"`
	Image   string          `json:"image_url,omitempty"`
	OpenURL string          `json:"open_url,omitempty"`
	Chart   json.RawMessage `json:"chart,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client -> server envelope types.
const (
	TypeChatStart  = "chat_start"
	TypeAudioStart = "audio_start"
	TypeAudioEnd   = "audio_end"
	TypeStop       = "stop"
	TypeChatEnd    = "chat_end"
)

// Server -> client envelope types.
const (
	TypeMessage        = "message"
	TypeLiveTranscript = "live_transcript"
	TypeTool           = "tool"
	TypeError          = "error"
)
