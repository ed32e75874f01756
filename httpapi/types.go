// Package httpapi implements the Conversation HTTP API: chat, chat/stream,
// and chat/close, the three endpoints that drive one step of the
// orchestrator loop and hand the caller back a log diff plus derived views
// of the task tree. The package holds no conversation state of its own; the
// caller owns the log and resubmits it (plus any new user message or
// tool-call completions) on every request.
package httpapi

import (
	"time"

	"github.com/minusxai/minusx/convlog"
)

type (
	// ChatRequest is the shared input schema for /chat and /chat/stream.
	ChatRequest struct {
		Log                convlog.Log         `json:"log"`
		UserMessage        string              `json:"user_message,omitempty"`
		CompletedToolCalls []CompletedToolCall `json:"completed_tool_calls,omitempty"`
		Agent              string              `json:"agent,omitempty"`
		AgentArgs          map[string]any      `json:"agent_args,omitempty"`
		SessionToken       string              `json:"session_token,omitempty"`
	}

	// CompletedToolCall is one client-supplied tool-call completion.
	CompletedToolCall struct {
		ToolCallID string `json:"tool_call_id"`
		Content    any    `json:"content"`
	}

	// CloseRequest is the input schema for /chat/close.
	CloseRequest struct {
		Log convlog.Log `json:"log"`
	}

	// ChatResponse is the shared JSON response shape for /chat and the final
	// payload of the "done" SSE event on /chat/stream.
	ChatResponse struct {
		LogDiff            convlog.Log               `json:"logDiff"`
		PendingToolCalls   []ToolCallView            `json:"pending_tool_calls"`
		CompletedToolCalls []CompletedToolCallView   `json:"completed_tool_calls"`
		LLMCalls           map[string]LLMCallView    `json:"llm_calls"`
		Error              string                    `json:"error,omitempty"`
	}

	// CloseResponse is the response shape for /chat/close.
	CloseResponse struct {
		LogDiff convlog.Log `json:"logDiff"`
	}

	// ToolCallView is one pending leaf, shaped for the client to present as an
	// outstanding tool call.
	ToolCallView struct {
		ID       string       `json:"id"`
		Type     string       `json:"type"`
		Function FunctionView `json:"function"`
	}

	// FunctionView names the pending agent/tool and its (reserved-stripped)
	// arguments. ChildTasksBatch is attached only when the pending leaf
	// already has completed children, letting the client rehydrate partial
	// tool state without re-deriving it from the full log.
	FunctionView struct {
		Name            string            `json:"name"`
		Arguments       map[string]any    `json:"arguments"`
		ChildTasksBatch [][]ChildTaskView `json:"child_tasks_batch,omitempty"`
	}

	// ChildTaskView is one entry of a pending leaf's child_tasks_batch.
	ChildTaskView struct {
		ToolCallID string         `json:"tool_call_id"`
		Agent      string         `json:"agent"`
		Args       map[string]any `json:"args"`
		Result     any            `json:"result"`
	}

	// CompletedToolCallView is one newly-settled task from this request's log
	// diff, shaped as the "tool" role message the client's own thread would
	// append.
	CompletedToolCallView struct {
		Role       string         `json:"role"`
		ToolCallID string         `json:"tool_call_id"`
		Content    any            `json:"content"`
		RunID      string         `json:"run_id"`
		Function   FunctionNameArgs `json:"function"`
		CreatedAt  time.Time      `json:"created_at"`
	}

	// FunctionNameArgs is the {name, arguments} pair attached to a completed
	// tool call view.
	FunctionNameArgs struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	// LLMCallView summarizes one LLM provider call extracted from a
	// TaskDebug entry in the diff; Extra is removed from the diff itself once
	// copied here.
	LLMCallView struct {
		Model            string         `json:"model"`
		Duration         float64        `json:"duration"`
		PromptTokens     int            `json:"prompt_tokens"`
		CompletionTokens int            `json:"completion_tokens"`
		TotalTokens      int            `json:"total_tokens"`
		Cost             float64        `json:"cost"`
		FinishReason     string         `json:"finish_reason"`
		Extra            map[string]any `json:"extra,omitempty"`
	}
)
