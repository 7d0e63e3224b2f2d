package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crispr-agent/apiclient"
	"crispr-agent/config"
	"crispr-agent/tools"
	"crispr-agent/web/types"

	"go.uber.org/zap"
)

// fakeOracle replays a fixed script of assistant messages. The last reply
// repeats if the script runs out, which lets budget tests loop forever.
type fakeOracle struct {
	script []types.AgentMessage
	calls  int
}

func (f *fakeOracle) Converse(ctx context.Context, messages []types.AgentMessage, defs []tools.Tool) (types.AgentMessage, error) {
	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++
	return f.script[idx], nil
}

func (f *fakeOracle) Chat(ctx context.Context, messages []types.AgentMessage, temperature *float64) (string, error) {
	return "Test Title", nil
}

type fakeDispatcher struct {
	defs       []tools.Tool
	dispatched []string
	result     tools.Result
}

func (f *fakeDispatcher) Definitions() []tools.Tool { return f.defs }

func (f *fakeDispatcher) Dispatch(ctx context.Context, name string, args map[string]any) tools.Result {
	f.dispatched = append(f.dispatched, name)
	if f.result != nil {
		return f.result
	}
	return tools.Result{"ok": true}
}

func testAgent(oracle Oracle, dispatcher Dispatcher) *Agent {
	cfg := &config.Config{MaxToolTurns: 5}
	return NewAgent(cfg, oracle, dispatcher, zap.NewNop())
}

func TestRunDirectAnswer(t *testing.T) {
	oracle := &fakeOracle{script: []types.AgentMessage{
		{Role: "assistant", Content: "PAM stands for protospacer adjacent motif."},
	}}
	dispatcher := &fakeDispatcher{}
	a := testAgent(oracle, dispatcher)

	appended, answer, err := a.Run(context.Background(), "What is a PAM?", "s1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != "PAM stands for protospacer adjacent motif." {
		t.Errorf("unexpected answer: %q", answer)
	}
	if len(appended) != 2 || appended[0].Role != "user" || appended[1].Role != "assistant" {
		t.Errorf("unexpected appended messages: %+v", appended)
	}
	if len(dispatcher.dispatched) != 0 {
		t.Errorf("no tools should run for a direct answer, got %v", dispatcher.dispatched)
	}
}

func TestRunToolTurn(t *testing.T) {
	oracle := &fakeOracle{script: []types.AgentMessage{
		{
			Role: "assistant",
			ToolCalls: []types.ToolCallRequest{{
				ID:        "call_1",
				Name:      "forecast_edit_outcomes",
				Arguments: map[string]any{"target": "ACGT", "pam_position": 17.0},
			}},
		},
		{Role: "assistant", Content: "The dominant outcome is a short deletion."},
	}}
	dispatcher := &fakeDispatcher{result: tools.Result{"summary": "1. Deletion (1-2 bp) D2, none inserted, score 0.87"}}
	a := testAgent(oracle, dispatcher)

	appended, answer, err := a.Run(context.Background(), "forecast this target", "s1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != "The dominant outcome is a short deletion." {
		t.Errorf("unexpected answer: %q", answer)
	}

	// user, assistant(tool calls), tool result, final assistant
	if len(appended) != 4 {
		t.Fatalf("expected 4 appended messages, got %d: %+v", len(appended), appended)
	}
	toolMsg := appended[2]
	if toolMsg.Role != "tool" {
		t.Fatalf("third message role = %q, want tool", toolMsg.Role)
	}
	if toolMsg.ToolCallID != "call_1" {
		t.Errorf("tool result must echo the request id, got %q", toolMsg.ToolCallID)
	}
	if !strings.Contains(toolMsg.Content, "Deletion (1-2 bp)") {
		t.Errorf("tool result content missing payload: %s", toolMsg.Content)
	}
	if oracle.calls != 2 {
		t.Errorf("oracle must be re-invoked after tools, calls = %d", oracle.calls)
	}
}

func TestRunDeduplicatesIdenticalCallsWithinTurn(t *testing.T) {
	argsA := map[string]any{}
	argsB := map[string]any{}
	if err := json.Unmarshal([]byte(`{"target": "ACGT", "pam_position": 17}`), &argsA); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"pam_position": 17, "target": "ACGT"}`), &argsB); err != nil {
		t.Fatal(err)
	}

	oracle := &fakeOracle{script: []types.AgentMessage{
		{
			Role: "assistant",
			ToolCalls: []types.ToolCallRequest{
				{ID: "call_1", Name: "forecast_edit_outcomes", Arguments: argsA},
				{ID: "call_2", Name: "forecast_edit_outcomes", Arguments: argsB},
			},
		},
		{Role: "assistant", Content: "done"},
	}}
	dispatcher := &fakeDispatcher{}
	a := testAgent(oracle, dispatcher)

	appended, _, err := a.Run(context.Background(), "forecast twice", "s1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dispatcher.dispatched) != 1 {
		t.Errorf("identical calls within a turn must execute once, got %d", len(dispatcher.dispatched))
	}

	var toolMsgs []types.AgentMessage
	for _, msg := range appended {
		if msg.Role == "tool" {
			toolMsgs = append(toolMsgs, msg)
		}
	}
	if len(toolMsgs) != 1 {
		t.Fatalf("expected exactly one tool-result message, got %d", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "call_1" {
		t.Errorf("result must correlate to the first request, got %q", toolMsgs[0].ToolCallID)
	}
}

func TestRunRepeatsAcrossTurns(t *testing.T) {
	call := types.ToolCallRequest{
		ID:        "call_1",
		Name:      "forecast_edit_outcomes",
		Arguments: map[string]any{"target": "ACGT"},
	}
	oracle := &fakeOracle{script: []types.AgentMessage{
		{Role: "assistant", ToolCalls: []types.ToolCallRequest{call}},
		{Role: "assistant", ToolCalls: []types.ToolCallRequest{call}},
		{Role: "assistant", Content: "done"},
	}}
	dispatcher := &fakeDispatcher{}
	a := testAgent(oracle, dispatcher)

	if _, _, err := a.Run(context.Background(), "again", "s1", nil); err != nil {
		t.Fatal(err)
	}
	// Dedup is turn-scoped only: the same call in consecutive tool cycles runs twice.
	if len(dispatcher.dispatched) != 2 {
		t.Errorf("identical calls across cycles must both execute, got %d", len(dispatcher.dispatched))
	}
}

func TestRunBudgetExhaustion(t *testing.T) {
	oracle := &fakeOracle{script: []types.AgentMessage{
		{
			Role: "assistant",
			ToolCalls: []types.ToolCallRequest{{
				ID: "call_1", Name: "web_search", Arguments: map[string]any{"query": "loop"},
			}},
		},
	}}
	dispatcher := &fakeDispatcher{}
	cfg := &config.Config{MaxToolTurns: 3}
	a := NewAgent(cfg, oracle, dispatcher, zap.NewNop())

	appended, answer, err := a.Run(context.Background(), "never stops", "s1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != DegradedAnswer {
		t.Errorf("expected degraded answer, got %q", answer)
	}
	if oracle.calls != 3 {
		t.Errorf("oracle calls = %d, want 3 (one per budgeted cycle)", oracle.calls)
	}
	last := appended[len(appended)-1]
	if last.Role != "assistant" || last.Content != DegradedAnswer {
		t.Errorf("turn must end with the degraded assistant message, got %+v", last)
	}
}

// TestRunForecastEndToEnd exercises the loop against the real registry and a
// stub forecast API: user question, tool request, normalization, final answer.
func TestRunForecastEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"data": "header\n1,D2,,0.87"},
		})
	}))
	defer server.Close()

	cfg := &config.Config{
		MaxToolTurns:   5,
		TopPredictions: 10,
		ForecastURL:    server.URL,
	}
	api := apiclient.New(1, 0, 5*time.Second, zap.NewNop())
	registry := tools.NewDefaultRegistry(cfg, api, zap.NewNop())

	oracle := &fakeOracle{script: []types.AgentMessage{
		{
			Role: "assistant",
			ToolCalls: []types.ToolCallRequest{{
				ID:   "call_abc",
				Name: "forecast_edit_outcomes",
				Arguments: map[string]any{
					"target":       strings.Repeat("ACGT", 10),
					"pam_position": 17.0,
				},
			}},
		},
		{Role: "assistant", Content: "The most likely outcome is a Deletion (1-2 bp) with score 0.87."},
	}}

	a := NewAgent(cfg, oracle, registry, zap.NewNop())
	appended, answer, err := a.Run(context.Background(), "forecast for target ACGT... pam=17", "s1", nil)
	if err != nil {
		t.Fatal(err)
	}

	var toolMsg *types.AgentMessage
	for i := range appended {
		if appended[i].Role == "tool" {
			toolMsg = &appended[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool-result message appended")
	}
	if toolMsg.ToolCallID != "call_abc" {
		t.Errorf("request id not echoed: %q", toolMsg.ToolCallID)
	}
	if !strings.Contains(toolMsg.Content, "Deletion (1-2 bp)") || !strings.Contains(toolMsg.Content, "0.87") {
		t.Errorf("normalized payload missing from tool result: %s", toolMsg.Content)
	}
	if !strings.Contains(answer, "Deletion (1-2 bp)") || !strings.Contains(answer, "0.87") {
		t.Errorf("final answer does not reference the prediction: %q", answer)
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "BRCA1 exon guides", "BRCA1 exon guides"},
		{"quoted", `"Off-target check"`, "Off-target check"},
		{"title prefix", "Title: EMX1 forecast", "EMX1 forecast"},
		{"too many words", "one two three four five six seven", "one two three four five"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeTitle(tt.raw); got != tt.want {
				t.Errorf("sanitizeTitle(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
