package tools

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/openai/openai-go/v3"
)

const notesSystemPrompt = `You summarize video transcripts into structured notes. Produce a short title, key points as bullets, and a one-paragraph takeaway. Return markdown.`

type ytNotesArgs struct {
	YouTubeURL string `json:"youtube_url"`
}

type timedText struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

func newYouTubeNotesTool(httpClient *http.Client, oai *openai.Client, log *slog.Logger) tool {
	def := functionDef(
		"generate_youtube_notes",
		"Generates structured notes from a YouTube video's transcript.",
		`{"type":"object","properties":{"youtube_url":{"type":"string","description":"The YouTube video URL"}},"required":["youtube_url"]}`,
	)

	return tool{
		def: def,
		run: func(ctx context.Context, args json.RawMessage, poster Poster) (any, error) {
			var a ytNotesArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			videoID, err := extractVideoID(a.YouTubeURL)
			if err != nil {
				return nil, err
			}
			if oai == nil {
				return nil, fmt.Errorf("note generation is not configured")
			}

			transcript, err := fetchTranscript(ctx, httpClient, videoID)
			if err != nil {
				return nil, err
			}

			notes, err := complete(ctx, oai, notesSystemPrompt, transcript)
			if err != nil {
				return nil, fmt.Errorf("summarize transcript: %w", err)
			}

			if poster != nil {
				if err := poster.Post(ctx, Message{Content: notes}); err != nil {
					log.Warn("failed to post notes", "error", err)
				}
			}

			return map[string]string{"status": "success", "video_id": videoID, "notes": notes}, nil
		},
	}
}

// extractVideoID handles youtu.be short links and the watch/embed/v path
// forms of youtube.com URLs.
func extractVideoID(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("youtube_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid youtube url: %w", err)
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	switch host {
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		if id == "" {
			return "", fmt.Errorf("no video id in url")
		}
		return id, nil
	case "youtube.com":
		if u.Path == "/watch" {
			if id := u.Query().Get("v"); id != "" {
				return id, nil
			}
		}
		for _, prefix := range []string{"/embed/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				if id := strings.Trim(strings.TrimPrefix(u.Path, prefix), "/"); id != "" {
					return id, nil
				}
			}
		}
	}
	return "", fmt.Errorf("unrecognized youtube url: %s", raw)
}

func fetchTranscript(ctx context.Context, client *http.Client, videoID string) (string, error) {
	u := "https://video.google.com/timedtext?lang=en&v=" + url.QueryEscape(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcript fetch status %d", resp.StatusCode)
	}

	var tt timedText
	if err := xml.NewDecoder(resp.Body).Decode(&tt); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	if len(tt.Texts) == 0 {
		return "", fmt.Errorf("no transcript available for video %s", videoID)
	}

	var sb strings.Builder
	for _, t := range tt.Texts {
		sb.WriteString(html.UnescapeString(t.Value))
		sb.WriteString(" ")
	}
	return strings.TrimSpace(sb.String()), nil
}
