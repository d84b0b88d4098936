package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
)

type imageArgs struct {
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	Style   string `json:"style"`
}

func newImageTool(oai *openai.Client, log *slog.Logger) tool {
	def := functionDef(
		"generate_image",
		"Generates an image based on a given prompt.",
		`{"type":"object","properties":{"prompt":{"type":"string","description":"The prompt to generate an image"},"size":{"type":"string","description":"Size of the image (1024x1024, 1024x1792, or 1792x1024)"},"quality":{"type":"string","description":"Quality of the image (standard or hd)"},"style":{"type":"string","description":"Style of the image (vivid or natural)"}},"required":["prompt"]}`,
	)

	return tool{
		def: def,
		run: func(ctx context.Context, args json.RawMessage, poster Poster) (any, error) {
			var a imageArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if strings.TrimSpace(a.Prompt) == "" {
				return nil, fmt.Errorf("prompt is required")
			}
			if oai == nil {
				return nil, fmt.Errorf("image generation is not configured")
			}

			params := openai.ImageGenerateParams{
				Prompt:  a.Prompt,
				Model:   openai.ImageModelDallE3,
				Size:    imageSize(a.Size),
				Quality: imageQuality(a.Quality),
				Style:   imageStyle(a.Style),
			}

			resp, err := oai.Images.Generate(ctx, params)
			if err != nil {
				return nil, fmt.Errorf("generate image: %w", err)
			}
			if len(resp.Data) == 0 || resp.Data[0].URL == "" {
				return nil, fmt.Errorf("no image returned")
			}
			imageURL := resp.Data[0].URL

			if poster != nil {
				msg := Message{
					Content:  "Here is the image you asked for.",
					ImageURL: imageURL,
				}
				if err := poster.Post(ctx, msg); err != nil {
					log.Warn("failed to post image", "error", err)
				}
			}

			return map[string]string{"status": "success", "image_url": imageURL}, nil
		},
	}
}

func imageSize(s string) openai.ImageGenerateParamsSize {
	switch s {
	case "1024x1792":
		return openai.ImageGenerateParamsSize1024x1792
	case "1792x1024":
		return openai.ImageGenerateParamsSize1792x1024
	default:
		return openai.ImageGenerateParamsSize1024x1024
	}
}

func imageQuality(q string) openai.ImageGenerateParamsQuality {
	if q == "hd" {
		return openai.ImageGenerateParamsQualityHD
	}
	return openai.ImageGenerateParamsQualityStandard
}

func imageStyle(s string) openai.ImageGenerateParamsStyle {
	if s == "natural" {
		return openai.ImageGenerateParamsStyleNatural
	}
	return openai.ImageGenerateParamsStyleVivid
}
