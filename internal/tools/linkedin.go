package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
)

const linkedinSystemPrompt = `Create an engaging LinkedIn post for the given topic, incorporating relevant emojis to capture attention and convey the message effectively. Structure the post with an engaging opening, informative content, and a clear call-to-action where applicable. Return only the post text.`

type linkedinArgs struct {
	Topic string `json:"topic"`
}

func newLinkedInTool(oai *openai.Client, log *slog.Logger) tool {
	def := functionDef(
		"draft_linkedin_post",
		"Creates a LinkedIn post draft and provides it for copying.",
		`{"type":"object","properties":{"topic":{"type":"string","description":"The topic or content description for the LinkedIn post"}},"required":["topic"]}`,
	)

	return tool{
		def: def,
		run: func(ctx context.Context, args json.RawMessage, poster Poster) (any, error) {
			var a linkedinArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if strings.TrimSpace(a.Topic) == "" {
				return nil, fmt.Errorf("topic is required")
			}
			if oai == nil {
				return nil, fmt.Errorf("drafting is not configured")
			}

			draft, err := complete(ctx, oai, linkedinSystemPrompt, a.Topic)
			if err != nil {
				return nil, fmt.Errorf("draft post: %w", err)
			}

			if poster != nil {
				msg := Message{Content: "Here's a LinkedIn post draft:\n\n" + draft}
				if err := poster.Post(ctx, msg); err != nil {
					log.Warn("failed to post draft", "error", err)
				}
			}

			return map[string]string{"status": "success", "draft": draft}, nil
		},
	}
}

// complete runs a single-turn chat completion and returns the text.
func complete(ctx context.Context, oai *openai.Client, system, user string) (string, error) {
	resp, err := oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4o,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return resp.Choices[0].Message.Content, nil
}
