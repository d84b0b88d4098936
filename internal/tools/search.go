package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const tavilyBaseURL = "https://api.tavily.com"

type searchArgs struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
}

type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results,omitempty"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func newSearchTool(httpClient *http.Client, apiKey string, log *slog.Logger) tool {
	def := functionDef(
		"internet_search",
		"Search the internet for real-time information.",
		`{"type":"object","properties":{"query":{"type":"string","description":"The search query to execute"},"search_depth":{"type":"string","description":"'basic' for quick results or 'advanced' for comprehensive search"}},"required":["query"]}`,
	)

	return tool{
		def: def,
		run: func(ctx context.Context, args json.RawMessage, poster Poster) (any, error) {
			var a searchArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if strings.TrimSpace(a.Query) == "" {
				return nil, fmt.Errorf("query is required")
			}
			if apiKey == "" {
				return nil, fmt.Errorf("search is not configured")
			}

			depth := a.SearchDepth
			if depth != "advanced" {
				depth = "basic"
			}

			resp, err := tavilySearch(ctx, httpClient, apiKey, tavilyRequest{
				Query:         a.Query,
				SearchDepth:   depth,
				IncludeAnswer: true,
				MaxResults:    5,
			})
			if err != nil {
				return nil, err
			}
			if len(resp.Results) == 0 {
				return map[string]string{"answer": "no results found"}, nil
			}

			if poster != nil {
				var sb strings.Builder
				if resp.Answer != "" {
					sb.WriteString("**" + resp.Answer + "**\n\n")
				}
				for i, r := range resp.Results {
					snippet := r.Content
					if len(snippet) > 250 {
						snippet = snippet[:250] + "..."
					}
					fmt.Fprintf(&sb, "%d. [%s](%s)\n%s\n\n", i+1, r.Title, r.URL, snippet)
				}
				if err := poster.Post(ctx, Message{Content: sb.String()}); err != nil {
					log.Warn("failed to post search results", "error", err)
				}
			}

			return resp, nil
		},
	}
}

func tavilySearch(ctx context.Context, client *http.Client, apiKey string, req tavilyRequest) (*tavilyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyBaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search api status %d: %s", resp.StatusCode, data)
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &parsed, nil
}
