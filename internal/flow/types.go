package flow

import "encoding/json"

type ConnectionConfig struct {
	URL       string
	AuthToken string
}

// AudioSettings describes the raw audio the client uploads. The service
// expects 16-bit little-endian mono PCM.
type AudioSettings struct {
	Encoding   string
	SampleRate int
	ChunkSize  int
}

func NormalizeAudioSettings(s AudioSettings) AudioSettings {
	if s.Encoding == "" {
		s.Encoding = "pcm_s16le"
	}
	if s.SampleRate <= 0 {
		s.SampleRate = 16000
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = 1024
	}
	return s
}

type ConversationConfig struct {
	TemplateID        string            `json:"template_id,omitempty"`
	TemplateVariables map[string]string `json:"template_variables,omitempty"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type TranscriptEvent struct {
	Text      string
	IsPartial bool
}

type ToolInvokeEvent struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type ToolResultStatus string

const (
	ToolResultOK     ToolResultStatus = "ok"
	ToolResultFailed ToolResultStatus = "failed"
)

// Callbacks are invoked from the read loop, one at a time, in arrival
// order. Handlers must not block on the connection they were called from.
type Callbacks struct {
	OnStarted             func(conversationID string)
	OnTranscript          func(evt TranscriptEvent)
	OnAudio               func(data []byte)
	OnResponseCompleted   func(text string)
	OnResponseInterrupted func(text string)
	OnToolInvoke          func(evt ToolInvokeEvent)
	OnEnded               func()
	OnWarning             func(message string)
	OnError               func(err error)
}

// Server message names on the wire.
const (
	msgConversationStarted = "ConversationStarted"
	msgConversationEnded   = "ConversationEnded"
	msgAddTranscript       = "AddTranscript"
	msgAddPartialTranscript = "AddPartialTranscript"
	msgResponseCompleted   = "ResponseCompleted"
	msgResponseInterrupted = "ResponseInterrupted"
	msgToolInvoke          = "ToolInvoke"
	msgAudioAdded          = "AudioAdded"
	msgError               = "Error"
	msgWarning             = "Warning"
)
