// Package thread translates between the orchestrator's task batches and the
// LLM message thread an analyst agent drives: tool calls become AgentCalls
// and completed/pending task batches become assistant/tool messages, and
// back. TalkToUser tasks are the seam between the two: a task in the
// orchestrator's world, plain assistant content in the LLM's.
package thread

import (
	"encoding/json"
	"fmt"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/llmbridge"
)

// ParseJSON parses s as JSON, returning the string itself when it does not
// parse — the same best-effort behavior the thread translator's tool-call
// argument path uses so a non-JSON payload surfaces as an error rather than
// panicking.
func ParseJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// ToolCallsToAgentCalls converts a streamed model turn's assistant content
// and tool calls into the batch of agent.Call values to dispatch: content
// becomes a leading TalkToUser call (content_blocks preferred, content
// string as a fallback wrapped into a single text block), and every tool
// call becomes one Call carrying the model's tool_call_id as UniqueID so
// task ids and provider ids coincide. A tool call whose arguments fail to
// parse as JSON still produces a Call (so the model sees a stable id to
// respond to) with Error set and its raw argument string preserved under
// "_original_args".
func ToolCallsToAgentCalls(toolCalls []llmbridge.ToolUsePart, contentBlocks []any, content string, citations []any) []agent.Call {
	var calls []agent.Call

	switch {
	case len(contentBlocks) > 0:
		calls = append(calls, agent.Call{
			Agent: agent.TalkToUserName,
			Args:  map[string]any{"content_blocks": contentBlocks},
		})
	case content != "":
		calls = append(calls, agent.Call{
			Agent: agent.TalkToUserName,
			Args: map[string]any{
				"content_blocks": []any{map[string]any{"type": "text", "text": content}},
				"citations":      citations,
			},
		})
	}

	for _, tc := range toolCalls {
		parsed := ParseJSON(string(tc.Input))
		if args, ok := parsed.(map[string]any); ok {
			calls = append(calls, agent.Call{
				Agent:    tc.Name,
				Args:     args,
				UniqueID: tc.ID,
			})
			continue
		}
		calls = append(calls, agent.Call{
			Agent:    tc.Name,
			Args:     map[string]any{"_original_args": string(tc.Input)},
			UniqueID: tc.ID,
			Error:    "Invalid JSON in arguments",
		})
	}

	return calls
}

// TasksToAssistantMessage converts one dispatch batch's tasks into a single
// LLM assistant message: TalkToUser tasks contribute content blocks, every
// other task contributes one tool_calls entry carrying its cleaned
// (underscore-stripped) args as the call's JSON arguments.
func TasksToAssistantMessage(tasks []agent.ChildView) *llmbridge.Message {
	var parts []llmbridge.Part
	var toolUses []llmbridge.Part

	for _, t := range tasks {
		if t.Agent == agent.TalkToUserName {
			if t.Result == nil {
				continue
			}
			parts = append(parts, contentBlocksFromResult(t.Result)...)
			continue
		}
		cleaned := agent.StripReserved(t.Args)
		payload, _ := json.Marshal(cleaned)
		toolUses = append(toolUses, llmbridge.ToolUsePart{ID: t.UniqueID, Name: t.Agent, Input: payload})
	}

	all := append(parts, toolUses...)
	if len(all) == 0 {
		return nil
	}
	return &llmbridge.Message{Role: llmbridge.RoleAssistant, Parts: all}
}

// contentBlocksFromResult extracts content blocks from a TalkToUser task's
// result, tolerating the legacy plain-content shape and an opaque fallback.
func contentBlocksFromResult(result any) []llmbridge.Part {
	m, ok := result.(map[string]any)
	if !ok {
		return []llmbridge.Part{llmbridge.TextPart{Text: fmt.Sprint(result)}}
	}
	if blocks, ok := m["content_blocks"].([]any); ok && len(blocks) > 0 {
		out := make([]llmbridge.Part, 0, len(blocks))
		for _, b := range blocks {
			out = append(out, blockToPart(b))
		}
		return out
	}
	if content, ok := m["content"].(string); ok && content != "" {
		return []llmbridge.Part{llmbridge.TextPart{Text: content}}
	}
	return nil
}

func blockToPart(b any) llmbridge.Part {
	m, ok := b.(map[string]any)
	if !ok {
		return llmbridge.TextPart{Text: fmt.Sprint(b)}
	}
	if text, ok := m["text"].(string); ok {
		return llmbridge.TextPart{Text: text}
	}
	return llmbridge.TextPart{Text: fmt.Sprint(m)}
}

// TaskToToolMessage converts one completed, non-TalkToUser task into its
// tool-result message. Panics if the task has no result: callers must only
// pass completed tasks (see TaskBatchToThread).
func TaskToToolMessage(t agent.ChildView) *llmbridge.Message {
	if t.Result == nil {
		panic(fmt.Sprintf("thread: task %q has no result", t.UniqueID))
	}
	return &llmbridge.Message{
		Role:  llmbridge.RoleUser,
		Parts: []llmbridge.Part{llmbridge.ToolResultPart{ToolUseID: t.UniqueID, Content: t.Result}},
	}
}

// TaskBatchToThread converts a root task's ordered dispatch batches into a
// flat LLM message sequence: one assistant message per batch (tool calls
// plus any TalkToUser content), followed by one tool-result message per
// completed non-TalkToUser task in that batch. Translation stops at the
// first batch containing a pending task, since nothing dispatched after an
// unresolved suspension belongs in the thread yet.
func TaskBatchToThread(batches [][]agent.ChildView) []*llmbridge.Message {
	var out []*llmbridge.Message

	for _, batch := range batches {
		if len(batch) == 0 {
			continue
		}

		var completed, pending []agent.ChildView
		for _, t := range batch {
			if t.Result != nil {
				completed = append(completed, t)
			} else {
				pending = append(pending, t)
			}
		}

		all := append(append([]agent.ChildView{}, completed...), pending...)
		if msg := TasksToAssistantMessage(all); msg != nil {
			out = append(out, msg)
		}
		for _, t := range completed {
			if t.Agent != agent.TalkToUserName {
				out = append(out, TaskToToolMessage(t))
			}
		}

		if len(pending) > 0 {
			break
		}
	}

	return out
}

// RootTasksToThread converts a conversation's full root history (oldest
// first) into an LLM message thread: each root's goal argument becomes a
// leading user message, its dispatch batches translate via
// TaskBatchToThread, and its own final result (if any) becomes a trailing
// assistant message.
func RootTasksToThread(roots []agent.RootView, childrenOf func(rootID string) [][]agent.ChildView) []*llmbridge.Message {
	var out []*llmbridge.Message

	for _, root := range roots {
		goal, _ := root.Args["goal"].(string)
		out = append(out, &llmbridge.Message{Role: llmbridge.RoleUser, Parts: []llmbridge.Part{llmbridge.TextPart{Text: goal}}})

		out = append(out, TaskBatchToThread(childrenOf(root.UniqueID))...)

		if root.Result != nil {
			if text := resultContent(root.Result); text != "" {
				out = append(out, &llmbridge.Message{Role: llmbridge.RoleAssistant, Parts: []llmbridge.Part{llmbridge.TextPart{Text: text}}})
			}
		}
	}

	return out
}

func resultContent(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case map[string]any:
		if c, ok := v["content"].(string); ok {
			return c
		}
	}
	return ""
}
