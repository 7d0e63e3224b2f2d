package types

import (
	"time"

	"github.com/google/uuid"
)

// AgentMessage represents a message in the format exchanged with the model.
// Tool-result messages carry the ToolCallID of the request that produced them;
// assistant messages may carry one or more ToolCallRequests.
type AgentMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
}

// ToolCallRequest is a single tool invocation requested by the model.
// ID is unique within the turn and must be echoed verbatim in the result message.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Session represents a chat session.
type Session struct {
	ID         uuid.UUID `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Title      string    `json:"title"`
	IsActive   bool      `json:"is_active"`
}
