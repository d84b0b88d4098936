package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
)

type browserArgs struct {
	URL string `json:"url"`
}

func newBrowserTool(log *slog.Logger) tool {
	def := functionDef(
		"open_browser",
		"Opens a URL in the user's browser.",
		`{"type":"object","properties":{"url":{"type":"string","description":"The URL to open in the browser (e.g., 'https://example.com')"}},"required":["url"]}`,
	)

	return tool{
		def: def,
		run: func(ctx context.Context, args json.RawMessage, poster Poster) (any, error) {
			var a browserArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}

			u, err := url.Parse(a.URL)
			if err != nil {
				return nil, fmt.Errorf("invalid url: %w", err)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
			}

			if poster != nil {
				msg := Message{
					Content: "Opening " + u.String(),
					OpenURL: u.String(),
				}
				if err := poster.Post(ctx, msg); err != nil {
					log.Warn("failed to post open-url action", "error", err)
				}
			}

			return map[string]string{"status": "success", "url": u.String()}, nil
		},
	}
}
