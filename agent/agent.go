package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"crispr-agent/config"
	"crispr-agent/prompts"
	"crispr-agent/tools"
	"crispr-agent/web/types"

	"go.uber.org/zap"
)

// DegradedAnswer is returned when a turn is cut off by the tool-cycle budget.
const DegradedAnswer = "I was unable to complete the request within the allowed number of tool steps. Please narrow the question or try again."

// Oracle is the opaque model component that decides tool usage.
type Oracle interface {
	Converse(ctx context.Context, messages []types.AgentMessage, defs []tools.Tool) (types.AgentMessage, error)
	Chat(ctx context.Context, messages []types.AgentMessage, temperature *float64) (string, error)
}

// Dispatcher resolves tool calls to JSON-serializable results.
type Dispatcher interface {
	Definitions() []tools.Tool
	Dispatch(ctx context.Context, name string, args map[string]any) tools.Result
}

type Agent struct {
	cfg      *config.Config
	oracle   Oracle
	registry Dispatcher
	logger   *zap.Logger
}

func NewAgent(cfg *config.Config, oracle Oracle, registry Dispatcher, logger *zap.Logger) *Agent {
	logger.Info("Agent initialized",
		zap.Int("max_tool_turns", cfg.MaxToolTurns),
		zap.Int("registered_tools", len(registry.Definitions())))
	return &Agent{
		cfg:      cfg,
		oracle:   oracle,
		registry: registry,
		logger:   logger,
	}
}

// Run executes one turn of the dialogue loop: the user message plus every
// assistant and tool message produced before the turn reached Done. The
// returned slice is everything to append to the session history; nothing is
// persisted here, so a cancelled turn commits nothing. The final answer is
// the content of the last assistant message.
func (a *Agent) Run(ctx context.Context, input string, sessionID string, history []types.AgentMessage) ([]types.AgentMessage, string, error) {
	userMsg := types.AgentMessage{Role: "user", Content: input}
	appended := []types.AgentMessage{userMsg}

	loop := NewDialogueLoop(a.cfg.MaxToolTurns, a.logger)
	defs := a.registry.Definitions()

	for loop.State() != StateDone {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		default:
		}

		switch loop.State() {
		case StateAwaitingModel:
			reply, err := a.oracle.Converse(ctx, a.buildMessages(history, appended), defs)
			if err != nil {
				a.logger.Error("Model oracle call failed, aborting turn",
					zap.Error(err),
					zap.String("session_id", sessionID))
				return nil, "", err
			}
			appended = append(appended, reply)
			loop.ObserveModelReply(reply)

		case StateExecutingTools:
			appended = append(appended, a.executeTools(ctx, sessionID, loop.PendingCalls())...)
			loop.FinishTools()
		}
	}

	if loop.Exhausted() {
		degraded := types.AgentMessage{Role: "assistant", Content: DegradedAnswer}
		appended = append(appended, degraded)
		return appended, DegradedAnswer, nil
	}

	return appended, lastAssistantContent(appended), nil
}

// executeTools runs the model's requested calls sequentially in request order.
// The dedup set is scoped to this single pass: a call the model re-requested
// with identical name and arguments is skipped and produces no result message,
// while identical calls across turns always execute.
func (a *Agent) executeTools(ctx context.Context, sessionID string, calls []types.ToolCallRequest) []types.AgentMessage {
	seen := make(callSet)
	var results []types.AgentMessage

	for _, call := range calls {
		key, err := callKey(call.Name, call.Arguments)
		if err == nil {
			if seen.seen(key) {
				a.logger.Info("Skipping duplicate tool call within turn",
					zap.String("tool", call.Name),
					zap.String("session_id", sessionID))
				continue
			}
			seen.add(key)
		}

		result := a.registry.Dispatch(ctx, call.Name, call.Arguments)
		content, merr := json.Marshal(result)
		if merr != nil {
			a.logger.Error("Failed to serialize tool result",
				zap.String("tool", call.Name),
				zap.Error(merr))
			content = []byte(`{"error":"tool result could not be serialized"}`)
		}

		// The request id is echoed verbatim so the model can correlate
		// request and response.
		results = append(results, types.AgentMessage{
			Role:       "tool",
			Content:    string(content),
			ToolCallID: call.ID,
		})
	}

	return results
}

func (a *Agent) buildMessages(history, appended []types.AgentMessage) []types.AgentMessage {
	messages := make([]types.AgentMessage, 0, len(history)+len(appended)+1)
	messages = append(messages, types.AgentMessage{Role: "system", Content: prompts.AgentSystem()})
	messages = append(messages, history...)
	messages = append(messages, appended...)
	return messages
}

func lastAssistantContent(messages []types.AgentMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			return messages[i].Content
		}
	}
	return ""
}

// GenerateTitle asks the model for a short session title based on the first
// user message.
func (a *Agent) GenerateTitle(ctx context.Context, content string) (string, error) {
	userPrompt := fmt.Sprintf(`User message:
%s

Respond with only the title.`, content)

	messages := []types.AgentMessage{
		{Role: "system", Content: prompts.TitleGenerator()},
		{Role: "user", Content: userPrompt},
	}

	title, err := a.oracle.Chat(ctx, messages, nil) // nil = use server default temp
	if err != nil {
		return "", fmt.Errorf("llm chat call failed for title generation: %w", err)
	}

	cleaned := sanitizeTitle(strings.TrimSpace(title))
	if cleaned == "" {
		a.logger.Warn("LLM returned invalid title, using fallback",
			zap.String("raw_title", title))
		return "CRISPR Design Session", nil
	}

	// Validate word count
	if words := strings.Fields(cleaned); len(words) > 6 {
		a.logger.Warn("Title exceeds word limit, truncating",
			zap.String("original_title", cleaned),
			zap.Int("word_count", len(words)))
		cleaned = strings.Join(words[:5], " ")
	}

	return cleaned, nil
}

// stripSurroundingQuotes removes a single pair of matching leading/trailing quotes.
// Handles common ASCII and smart quote variants.
func stripSurroundingQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	pairs := map[rune]rune{
		'"':  '"',
		'\'': '\'',
		'“':  '”',
		'”':  '”', // in case only ” is used on both ends
		'‘':  '’',
		'’':  '’', // in case only ’ is used on both ends
	}
	runes := []rune(s)
	first := runes[0]
	last := runes[len(runes)-1]
	if expected, ok := pairs[first]; ok && last == expected {
		return string(runes[1 : len(runes)-1])
	}
	return s
}

func trimQuotesAndSpaces(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = stripSurroundingQuotes(s)
	return strings.TrimSpace(s)
}

func sanitizeTitle(raw string) string {
	if raw == "" {
		return ""
	}

	lines := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r'
	})

	for _, line := range lines {
		candidate := trimQuotesAndSpaces(line)
		if candidate == "" {
			continue
		}

		if strings.HasPrefix(strings.ToLower(candidate), "title:") {
			candidate = trimQuotesAndSpaces(candidate[len("title:"):])
			if candidate == "" {
				continue
			}
		}

		words := strings.Fields(candidate)
		if len(words) > 5 {
			candidate = strings.Join(words[:5], " ")
		}

		return candidate
	}

	return ""
}
