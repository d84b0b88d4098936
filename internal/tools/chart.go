package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

type chartArgs struct {
	Message       string          `json:"message"`
	PlotlyJSONFig json.RawMessage `json:"plotly_json_fig"`
}

func newChartTool(log *slog.Logger) tool {
	def := functionDef(
		"draw_plotly_chart",
		"Draws a Plotly chart from the provided JSON figure and displays it with an accompanying message.",
		`{"type":"object","properties":{"message":{"type":"string","description":"The message to display alongside the chart"},"plotly_json_fig":{"type":"string","description":"A Plotly figure object in JSON format"}},"required":["message","plotly_json_fig"]}`,
	)

	return tool{
		def: def,
		run: func(ctx context.Context, args json.RawMessage, poster Poster) (any, error) {
			var a chartArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}

			fig, err := parseFigure(a.PlotlyJSONFig)
			if err != nil {
				return nil, err
			}

			if poster != nil {
				msg := Message{Content: a.Message, ChartJSON: fig}
				if err := poster.Post(ctx, msg); err != nil {
					log.Warn("failed to post chart", "error", err)
				}
			}

			return map[string]string{"status": "success"}, nil
		},
	}
}

// parseFigure accepts the figure either as a JSON object or as a JSON
// string containing one, and requires the plotly data and layout keys.
func parseFigure(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("plotly_json_fig is required")
	}

	data := []byte(raw)
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		data = []byte(asString)
	}

	var fig map[string]json.RawMessage
	if err := json.Unmarshal(data, &fig); err != nil {
		return nil, fmt.Errorf("invalid figure JSON: %w", err)
	}
	if _, ok := fig["data"]; !ok {
		return nil, fmt.Errorf("invalid figure: missing data")
	}
	if _, ok := fig["layout"]; !ok {
		return nil, fmt.Errorf("invalid figure: missing layout")
	}
	return data, nil
}
