package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"crispr-agent/apiclient"
	"crispr-agent/config"

	"go.uber.org/zap"
)

// Result is what every tool call resolves to: a JSON-serializable mapping
// holding either the domain payload or {"error": reason}. Tool calls never
// raise past the registry boundary; the dialogue loop always needs a message
// to append.
type Result map[string]any

// Tool binds a callable contract to the JSON schema advertised to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Run         func(ctx context.Context, args map[string]any) Result
}

// Registry maps tool names to their contracts. It is injected into the
// dialogue loop at construction; there is no process-wide registry.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// NewDefaultRegistry builds the registry with every bioinformatics tool the
// assistant can call, sharing one retrying API client.
func NewDefaultRegistry(cfg *config.Config, api *apiclient.Client, logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(forecastTool(cfg, api))
	r.Register(forecastRepairTool(cfg, api))
	r.Register(guidesByExonTool(cfg, api))
	r.Register(offTargetsTool(cfg, api))
	r.Register(ncbiDatabasesTool(cfg, api))
	r.Register(ncbiLiteratureTool(cfg, api))
	r.Register(ncbiSummariesTool(cfg, api))
	r.Register(webSearchTool(cfg, api))
	return r
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Definitions returns the registered tools in registration order, for
// conversion into the model's tool schema.
func (r *Registry) Definitions() []Tool {
	defs := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name])
	}
	return defs
}

// Dispatch looks up and runs a tool. Unknown names and tool failures resolve
// to an error payload rather than failing the turn.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	tool, ok := r.tools[name]
	if !ok {
		r.logger.Warn("Model requested unknown tool", zap.String("tool", name))
		return errorResult("unknown tool: %s", name)
	}

	result := tool.Run(ctx, args)
	if reason, failed := result["error"]; failed {
		r.logger.Warn("Tool call resolved to error",
			zap.String("tool", name),
			zap.Any("reason", reason))
	}
	return result
}

func errorResult(format string, args ...any) Result {
	return Result{"error": fmt.Sprintf(format, args...)}
}

// Argument extraction helpers. Tool arguments arrive as the decoded JSON the
// model produced, so numbers are float64 and lists are []any.

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func boolArg(args map[string]any, key string) (bool, bool) {
	switch v := args[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

func stringListArg(args map[string]any, key string) ([]string, bool) {
	v, ok := args[key]
	if !ok {
		return nil, false
	}
	switch list := v.(type) {
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s := strings.TrimSpace(fmt.Sprintf("%v", item))
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	case []string:
		if len(list) == 0 {
			return nil, false
		}
		return list, true
	case string:
		if strings.TrimSpace(list) == "" {
			return nil, false
		}
		return []string{strings.TrimSpace(list)}, true
	default:
		return nil, false
	}
}
