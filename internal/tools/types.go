package tools

import (
	"context"
	"encoding/json"

	"github.com/lumeo-ai/lumeo/internal/flow"
)

// Message is posted into the user's conversation by tools that render
// something (search results, images, charts) in addition to returning a
// result to the agent.
type Message struct {
	Author    string          `json:"author,omitempty"`
	Content   string          `json:"content"`
	ImageURL  string          `json:"image_url,omitempty"`
	OpenURL   string          `json:"open_url,omitempty"`
	ChartJSON json.RawMessage `json:"chart,omitempty"`
}

// Poster is the conversation surface a tool can render into.
type Poster interface {
	Post(ctx context.Context, msg Message) error
}

// Result is what goes back to the agent, keyed by the invocation id.
type Result struct {
	Status  flow.ToolResultStatus
	Content any
}

func Failure(msg string) Result {
	return Result{
		Status:  flow.ToolResultFailed,
		Content: map[string]string{"error": msg},
	}
}

type tool struct {
	def flow.ToolDefinition
	run func(ctx context.Context, args json.RawMessage, poster Poster) (any, error)
}

func functionDef(name, description string, parameters string) flow.ToolDefinition {
	return flow.ToolDefinition{
		Type: "function",
		Function: flow.ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  json.RawMessage(parameters),
		},
	}
}
