package llmclient

import (
	"context"
	"encoding/json"

	apperrors "crispr-agent/errors"
	"crispr-agent/tools"
	"crispr-agent/web/types"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// Client talks to an OpenAI-compatible chat-completions endpoint. The model is
// treated as an opaque oracle: it maps a message history to either a final
// answer or a set of tool-call requests.
type Client struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

func New(apiKey, baseURL, model string, logger *zap.Logger) *Client {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &Client{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Converse sends the full ordered history to the model along with the tool
// schema and returns the assistant message, which may carry tool-call requests.
func (c *Client) Converse(ctx context.Context, messages []types.AgentMessage, defs []tools.Tool) (types.AgentMessage, error) {
	params := openai.ChatCompletionNewParams{
		Messages: convertMessages(messages),
		Model:    openai.ChatModel(c.model),
	}
	if len(defs) > 0 {
		params.Tools = convertTools(defs)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return types.AgentMessage{}, apperrors.WrapError(apperrors.ErrLLMCommunication, err.Error())
	}
	if len(completion.Choices) == 0 {
		return types.AgentMessage{}, apperrors.WrapError(apperrors.ErrLLMCommunication, "no response choices")
	}

	return c.convertResponse(completion.Choices[0].Message), nil
}

// Chat performs a plain completion without tools, used for session titles.
// temperature is optional; pass nil to use the server default.
func (c *Client) Chat(ctx context.Context, messages []types.AgentMessage, temperature *float64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: convertMessages(messages),
		Model:    openai.ChatModel(c.model),
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrLLMCommunication, err.Error())
	}
	if len(completion.Choices) == 0 {
		return "", apperrors.WrapError(apperrors.ErrLLMCommunication, "no response choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func convertMessages(messages []types.AgentMessage) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			result = append(result, openai.SystemMessage(msg.Content))
		case "user":
			result = append(result, openai.UserMessage(msg.Content))
		case "tool":
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case "assistant":
			if len(msg.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			for _, call := range msg.ToolCalls {
				argJSON, err := json.Marshal(call.Arguments)
				if err != nil {
					argJSON = []byte("{}")
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: call.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      call.Name,
							Arguments: string(argJSON),
						},
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

func convertTools(defs []tools.Tool) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, len(defs))
	for i, def := range defs {
		result[i] = openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters),
			},
		)
	}
	return result
}

func (c *Client) convertResponse(msg openai.ChatCompletionMessage) types.AgentMessage {
	out := types.AgentMessage{
		Role:    "assistant",
		Content: msg.Content,
	}
	for _, call := range msg.ToolCalls {
		if call.Function.Name == "" {
			continue
		}
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				c.logger.Warn("Model produced unparseable tool arguments, using empty set",
					zap.String("tool", call.Function.Name),
					zap.Error(err))
				args = map[string]any{}
			}
		}
		out.ToolCalls = append(out.ToolCalls, types.ToolCallRequest{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return out
}
