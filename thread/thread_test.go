package thread_test

import (
	"testing"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/llmbridge"
	"github.com/minusxai/minusx/thread"
)

func TestToolCallsToAgentCallsPrependsTalkToUserFromContent(t *testing.T) {
	calls := thread.ToolCallsToAgentCalls(nil, nil, "here is the answer", nil)
	if len(calls) != 1 || calls[0].Agent != agent.TalkToUserName {
		t.Fatalf("want a single TalkToUser call, got %v", calls)
	}
	blocks := calls[0].Args["content_blocks"].([]any)
	if len(blocks) != 1 || blocks[0].(map[string]any)["text"] != "here is the answer" {
		t.Fatalf("want content wrapped as one text block, got %v", blocks)
	}
}

func TestToolCallsToAgentCallsPrefersContentBlocks(t *testing.T) {
	blocks := []any{map[string]any{"type": "text", "text": "a"}}
	calls := thread.ToolCallsToAgentCalls(nil, blocks, "ignored", nil)
	if len(calls) != 1 || calls[0].Args["content_blocks"] == nil {
		t.Fatalf("want content_blocks call, got %v", calls)
	}
	if calls[0].Args["content_blocks"].([]any)[0].(map[string]any)["text"] != "a" {
		t.Fatalf("want content_blocks content preserved over plain content")
	}
}

func TestToolCallsToAgentCallsPreservesToolCallID(t *testing.T) {
	toolCalls := []llmbridge.ToolUsePart{{ID: "call_1", Name: "SearchDBSchema", Input: []byte(`{"query":"orders"}`)}}
	calls := thread.ToolCallsToAgentCalls(toolCalls, nil, "", nil)
	if len(calls) != 1 {
		t.Fatalf("want 1 call, got %d", len(calls))
	}
	if calls[0].UniqueID != "call_1" || calls[0].Agent != "SearchDBSchema" {
		t.Fatalf("want tool_call_id preserved as UniqueID, got %+v", calls[0])
	}
	if calls[0].Args["query"] != "orders" {
		t.Fatalf("want parsed args, got %v", calls[0].Args)
	}
}

func TestToolCallsToAgentCallsInvalidJSONProducesErrorCall(t *testing.T) {
	toolCalls := []llmbridge.ToolUsePart{{ID: "call_1", Name: "SearchDBSchema", Input: []byte(`not json`)}}
	calls := thread.ToolCallsToAgentCalls(toolCalls, nil, "", nil)
	if len(calls) != 1 {
		t.Fatalf("want 1 call, got %d", len(calls))
	}
	if calls[0].Error == "" {
		t.Fatalf("want an Error set for invalid JSON arguments")
	}
	if calls[0].Args["_original_args"] != "not json" {
		t.Fatalf("want the raw arguments preserved, got %v", calls[0].Args)
	}
	if calls[0].UniqueID != "call_1" {
		t.Fatalf("want the tool_call_id preserved even on parse failure")
	}
}

func TestTaskBatchToThreadStopsAtFirstPendingBatch(t *testing.T) {
	batches := [][]agent.ChildView{
		{
			{UniqueID: "t1", Agent: "SearchDBSchema", Args: map[string]any{"query": "x"}, Result: map[string]any{"tables": []any{}}},
		},
		{
			{UniqueID: "t2", Agent: "ExecuteSQLQuery", Args: map[string]any{"query": "select 1"}, Result: nil},
			{UniqueID: "t3", Agent: "Navigate", Args: map[string]any{"target": "chart"}, Result: map[string]any{"ok": true}},
		},
	}

	msgs := thread.TaskBatchToThread(batches)

	// batch 1: one assistant message (tool call) + one tool-result message for
	// t1. batch 2 mixes a completed task (t3) with a pending one (t2): both
	// surface in the assistant message's tool calls (completed tasks first),
	// t3 still gets its own tool-result message, but translation stops after
	// this batch since t2 is unresolved.
	if len(msgs) != 4 {
		t.Fatalf("want 4 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != llmbridge.RoleAssistant {
		t.Fatalf("want first message to be assistant, got %v", msgs[0].Role)
	}
	if msgs[1].Role != llmbridge.RoleUser {
		t.Fatalf("want second message to be t1's tool result, got %v", msgs[1].Role)
	}
	if msgs[2].Role != llmbridge.RoleAssistant {
		t.Fatalf("want third message to be batch 2's assistant tool-call message, got %v", msgs[2].Role)
	}
	toolUse, ok := msgs[2].Parts[0].(llmbridge.ToolUsePart)
	if !ok || toolUse.ID != "t3" {
		t.Fatalf("want completed task t3 first among batch 2's tool calls, got %+v", msgs[2].Parts)
	}
	if msgs[3].Role != llmbridge.RoleUser {
		t.Fatalf("want fourth message to be t3's tool result, got %v", msgs[3].Role)
	}
}

func TestTasksToAssistantMessageMergesTalkToUserContent(t *testing.T) {
	tasks := []agent.ChildView{
		{Agent: agent.TalkToUserName, Result: map[string]any{"content": "hello"}},
		{UniqueID: "t1", Agent: "Navigate", Args: map[string]any{"target": "dashboard"}},
	}
	msg := thread.TasksToAssistantMessage(tasks)
	if msg == nil {
		t.Fatalf("want a non-nil message")
	}
	if len(msg.Parts) != 2 {
		t.Fatalf("want 2 parts (text + tool use), got %d", len(msg.Parts))
	}
	if _, ok := msg.Parts[0].(llmbridge.TextPart); !ok {
		t.Fatalf("want first part to be text, got %T", msg.Parts[0])
	}
	toolUse, ok := msg.Parts[1].(llmbridge.ToolUsePart)
	if !ok || toolUse.Name != "Navigate" {
		t.Fatalf("want second part to be the Navigate tool use, got %+v", msg.Parts[1])
	}
}

func TestTasksToAssistantMessageNilWhenEmpty(t *testing.T) {
	if msg := thread.TasksToAssistantMessage(nil); msg != nil {
		t.Fatalf("want nil message for an empty batch, got %+v", msg)
	}
}

func TestTaskToToolMessagePanicsWithoutResult(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("want a panic for a pending task")
		}
	}()
	thread.TaskToToolMessage(agent.ChildView{UniqueID: "t1"})
}

func TestRootTasksToThreadIncludesGoalAndFinalAnswer(t *testing.T) {
	roots := []agent.RootView{
		{UniqueID: "root-1", Args: map[string]any{"goal": "how many orders?"}, Result: map[string]any{"content": "42 orders."}},
	}
	msgs := thread.RootTasksToThread(roots, func(string) [][]agent.ChildView { return nil })
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages (user goal + assistant final), got %d", len(msgs))
	}
	if msgs[0].Role != llmbridge.RoleUser {
		t.Fatalf("want first message to be the user goal, got %v", msgs[0].Role)
	}
	text := msgs[0].Parts[0].(llmbridge.TextPart).Text
	if text != "how many orders?" {
		t.Fatalf("want goal text preserved, got %q", text)
	}
	if msgs[1].Role != llmbridge.RoleAssistant {
		t.Fatalf("want trailing assistant message with the final content, got %v", msgs[1].Role)
	}
}

func TestParseJSONFallsBackToString(t *testing.T) {
	if got := thread.ParseJSON("not json"); got != "not json" {
		t.Fatalf("want the raw string on parse failure, got %v", got)
	}
	if got := thread.ParseJSON(`{"a":1}`); got.(map[string]any)["a"] != float64(1) {
		t.Fatalf("want parsed map, got %v", got)
	}
}
