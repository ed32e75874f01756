package analyst

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/llmbridge"
	"github.com/minusxai/minusx/orchestrator"
	"github.com/minusxai/minusx/tools"
)

// scriptedClient returns one canned Response per Complete call, in order,
// and never streams, exercising AnalystAgent's ErrStreamingUnsupported
// fallback path. Dispatch runs sibling tasks concurrently, so calls must be
// serialized.
type scriptedClient struct {
	mu        sync.Mutex
	responses []*llmbridge.Response
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, req *llmbridge.Request) (*llmbridge.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.responses) {
		return nil, errNoMoreResponses
	}
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func (c *scriptedClient) Stream(ctx context.Context, req *llmbridge.Request) (llmbridge.Streamer, error) {
	return nil, llmbridge.ErrStreamingUnsupported
}

var errNoMoreResponses = &scriptError{"scriptedClient: no more canned responses"}

type scriptError struct{ msg string }

func (e *scriptError) Error() string { return e.msg }

func newTestRegistry(t *testing.T, client llmbridge.Client) *agent.Registry {
	t.Helper()
	reg := agent.NewRegistry()
	if err := tools.RegisterDomainTools(reg); err != nil {
		t.Fatalf("register domain tools: %v", err)
	}
	reg.MustRegister(agent.NewTalkToUser())
	reg.MustRegister(agent.NewPresentFinalAnswer())
	reg.MustRegister(NewAnalystRegistration(client, reg, "test-model", 40))
	return reg
}

func toolCallResponse(id, name string, args map[string]any) *llmbridge.Response {
	payload, _ := json.Marshal(args)
	return &llmbridge.Response{ToolCalls: []llmbridge.ToolUsePart{{ID: id, Name: name, Input: payload}}}
}

func TestAnalystAgent_DispatchesToolCallAndSuspends(t *testing.T) {
	client := &scriptedClient{responses: []*llmbridge.Response{
		toolCallResponse("call_1", "SearchDBSchema", map[string]any{"connection_id": "main", "query": "orders"}),
	}}
	reg := newTestRegistry(t, client)

	err := orchestrator.New(reg, nil, orchestrator.Hooks{}, nil).Run(context.Background(), agent.Call{Agent: AnalystAgentName, Args: map[string]any{"goal": "how many orders?"}}, "")
	if _, ok := orchestrator.AsSuspended(err); !ok {
		t.Fatalf("want suspended error, got %v", err)
	}
}

func TestAnalystAgent_NoToolCallsCompletesWithContent(t *testing.T) {
	client := &scriptedClient{responses: []*llmbridge.Response{
		{Content: []llmbridge.Message{{Role: llmbridge.RoleAssistant, Parts: []llmbridge.Part{llmbridge.TextPart{Text: "There are 42 orders."}}}}},
	}}
	reg := newTestRegistry(t, client)
	orch := orchestrator.New(reg, nil, orchestrator.Hooks{}, nil)

	err := orch.Run(context.Background(), agent.Call{Agent: AnalystAgentName, Args: map[string]any{"goal": "how many orders?"}}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root, rootTask := orch.State().LatestRoot()
	if rootTask == nil {
		t.Fatalf("want a root task")
	}
	task := orch.State().Tasks[root]
	result, ok := task.Result.(map[string]any)
	if !ok {
		t.Fatalf("want map result, got %T", task.Result)
	}
	if result["content"] != "There are 42 orders." {
		t.Fatalf("want content %q, got %v", "There are 42 orders.", result["content"])
	}
}

func TestAnalystAgent_PresentFinalAnswerEndsLoopOnResume(t *testing.T) {
	client := &scriptedClient{responses: []*llmbridge.Response{
		toolCallResponse("call_1", agent.PresentFinalAnswerName, map[string]any{"answer": "Revenue grew 12%."}),
	}}
	reg := newTestRegistry(t, client)
	orch := orchestrator.New(reg, nil, orchestrator.Hooks{}, nil)

	err := orch.Run(context.Background(), agent.Call{Agent: AnalystAgentName, Args: map[string]any{"goal": "summarize revenue"}}, "")
	se, ok := orchestrator.AsSuspended(err)
	if !ok {
		t.Fatalf("want suspended error, got %v", err)
	}
	if len(se.TaskIDs) != 1 {
		t.Fatalf("want exactly one suspended task, got %v", se.TaskIDs)
	}
	pendingID := se.TaskIDs[0]

	log := orch.Log()
	orch2 := orchestrator.New(reg, log, orchestrator.Hooks{}, nil)
	if !orch2.CompleteToolCall(pendingID, map[string]any{"answer": "Revenue grew 12%."}) {
		t.Fatalf("want CompleteToolCall to find pending leaf %q", pendingID)
	}
	if err := orch2.Resume(context.Background()); err != nil {
		t.Fatalf("resume: unexpected error: %v", err)
	}

	root, _ := orch2.State().LatestRoot()
	task := orch2.State().Tasks[root]
	result, ok := task.Result.(map[string]any)
	if !ok {
		t.Fatalf("want map result, got %T", task.Result)
	}
	if result["content"] != "Revenue grew 12%." {
		t.Fatalf("want final content %q, got %v", "Revenue grew 12%.", result["content"])
	}
	// Only one canned response is scripted: the PresentFinalAnswer shortcut
	// in Reduce must end the loop without another LLM call.
	if client.calls != 1 {
		t.Fatalf("want exactly 1 LLM call total, got %d", client.calls)
	}
}
