package agent

import (
	"crispr-agent/web/types"

	"go.uber.org/zap"
)

// LoopState is the dialogue loop's position in its turn state machine.
type LoopState int

const (
	// StateAwaitingModel means the next step is to send the history to the model.
	StateAwaitingModel LoopState = iota
	// StateExecutingTools means the model requested tool calls that have not run yet.
	StateExecutingTools
	// StateDone is terminal for this turn.
	StateDone
)

// DialogueLoop tracks the AwaitingModel / ExecutingTools / Done state machine
// for one turn and enforces the tool-cycle budget. A model that keeps
// requesting tools would otherwise loop forever, so each
// AwaitingModel→ExecutingTools cycle decrements the budget and exhaustion
// forces a degraded terminal answer.
type DialogueLoop struct {
	state     LoopState
	budget    int
	pending   []types.ToolCallRequest
	exhausted bool
	logger    *zap.Logger
}

// NewDialogueLoop creates the loop controller for a single turn.
func NewDialogueLoop(budget int, logger *zap.Logger) *DialogueLoop {
	if budget <= 0 {
		budget = 1
	}
	return &DialogueLoop{
		state:  StateAwaitingModel,
		budget: budget,
		logger: logger,
	}
}

// State returns the loop's current state.
func (l *DialogueLoop) State() LoopState {
	return l.state
}

// ObserveModelReply transitions based on the assistant message: no tool calls
// means the turn is done, otherwise the calls become pending for execution.
func (l *DialogueLoop) ObserveModelReply(msg types.AgentMessage) {
	if len(msg.ToolCalls) == 0 {
		l.state = StateDone
		return
	}
	l.pending = msg.ToolCalls
	l.state = StateExecutingTools
}

// PendingCalls returns the tool calls awaiting execution, in model order.
func (l *DialogueLoop) PendingCalls() []types.ToolCallRequest {
	return l.pending
}

// FinishTools records that all pending calls were processed. The loop returns
// to AwaitingModel so the model can read the results, unless the cycle budget
// is spent.
func (l *DialogueLoop) FinishTools() {
	l.pending = nil
	l.budget--
	if l.budget <= 0 {
		l.logger.Warn("Tool-cycle budget exhausted, forcing turn to finish")
		l.exhausted = true
		l.state = StateDone
		return
	}
	l.state = StateAwaitingModel
}

// Exhausted reports whether the turn was terminated by budget exhaustion
// rather than a final model answer.
func (l *DialogueLoop) Exhausted() bool {
	return l.exhausted
}
