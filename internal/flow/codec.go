package flow

import (
	"encoding/json"
	"fmt"

	"github.com/lumeo-ai/lumeo/internal/shared"
)

type startConversationMessage struct {
	Message            string             `json:"message"`
	AudioFormat        audioFormat        `json:"audio_format"`
	ConversationConfig ConversationConfig `json:"conversation_config"`
	Tools              []ToolDefinition   `json:"tools,omitempty"`
}

type audioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type audioEndedMessage struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

type toolResultMessage struct {
	Message string           `json:"message"`
	ID      string           `json:"id"`
	Status  ToolResultStatus `json:"status"`
	Content any              `json:"content"`
}

// serverMessage is the superset of fields across all JSON server events.
type serverMessage struct {
	Message  string          `json:"message"`
	ID       string          `json:"id,omitempty"`
	Content  string          `json:"content,omitempty"`
	Type     string          `json:"type,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Metadata *struct {
		Transcript string `json:"transcript"`
	} `json:"metadata,omitempty"`
	Function *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function,omitempty"`
}

func parseServerMessage(data []byte) (*serverMessage, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal server message: %w", err)
	}
	if msg.Message == "" {
		return nil, fmt.Errorf("server message missing type")
	}
	return &msg, nil
}

// serverError converts an Error event into a Go error, classifying the
// transient capacity rejection so the session controller can retry it.
func serverError(msg *serverMessage) error {
	detail := msg.Reason
	if detail == "" {
		detail = msg.Type
	}
	if msg.Type == "quota_exceeded" || shared.IsQuotaExceeded(fmt.Errorf("%s", detail)) {
		return fmt.Errorf("%w: %s", shared.ErrQuotaExceeded, detail)
	}
	return fmt.Errorf("conversation error: %s", detail)
}
