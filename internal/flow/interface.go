package flow

import (
	"context"
	"io"
)

// Conversation is one live connection to the conversational service.
type Conversation interface {
	Run(ctx context.Context, audio io.Reader) error
	SendToolResult(ctx context.Context, id string, status ToolResultStatus, content any) error
	Close() error
}
