package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/redis/go-redis/v9"

	"github.com/lumeo-ai/lumeo/internal/flow"
)

type Config struct {
	OpenAIKey  string
	TavilyKey  string
	Redis      *redis.Client // optional quote cache
	HTTPClient *http.Client
	Log        *slog.Logger
}

// Registry holds the closed set of tools the assistant exposes. The set is
// fixed at construction; dispatch is by exact name match.
type Registry struct {
	tools map[string]tool
	order []string
	log   *slog.Logger
}

func NewRegistry(cfg Config) *Registry {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	var oai *openai.Client
	if cfg.OpenAIKey != "" {
		c := openai.NewClient(option.WithAPIKey(cfg.OpenAIKey))
		oai = &c
	}

	r := &Registry{
		tools: make(map[string]tool),
		log:   log,
	}

	r.register(newStockTool(httpClient, cfg.Redis, log))
	r.register(newSearchTool(httpClient, cfg.TavilyKey, log))
	r.register(newImageTool(oai, log))
	r.register(newLinkedInTool(oai, log))
	r.register(newYouTubeNotesTool(httpClient, oai, log))
	r.register(newChartTool(log))
	r.register(newBrowserTool(log))

	return r
}

func (r *Registry) register(t tool) {
	r.tools[t.def.Function.Name] = t
	r.order = append(r.order, t.def.Function.Name)
}

// Definitions returns the tool declarations for the conversation handshake,
// in registration order.
func (r *Registry) Definitions() []flow.ToolDefinition {
	defs := make([]flow.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Dispatch executes the named tool. Failures of any kind, including an
// unknown name, malformed arguments, handler errors, and panics, come back
// as a structured failure result and never propagate to the caller.
func (r *Registry) Dispatch(ctx context.Context, inv flow.ToolInvokeEvent, poster Poster) (res Result) {
	log := r.log.With("tool", inv.Name, "invocation_id", inv.ID)

	defer func() {
		if p := recover(); p != nil {
			log.Error("tool handler panicked", "panic", p)
			res = Failure(fmt.Sprintf("tool %s failed: %v", inv.Name, p))
		}
	}()

	t, ok := r.tools[inv.Name]
	if !ok {
		log.Warn("unknown tool requested")
		return Failure("unknown tool: " + inv.Name)
	}

	content, err := t.run(ctx, inv.Arguments, poster)
	if err != nil {
		log.Error("tool execution failed", "error", err)
		return Failure(err.Error())
	}

	log.Info("tool executed")
	return Result{Status: flow.ToolResultOK, Content: content}
}
