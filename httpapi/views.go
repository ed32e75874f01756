package httpapi

import (
	"fmt"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/compressed"
	"github.com/minusxai/minusx/convlog"
	"github.com/minusxai/minusx/orchestrator"
)

// pendingToolCalls derives the pending_tool_calls view: one entry per
// pending leaf of the latest root, in dispatch order.
func pendingToolCalls(o *orchestrator.Orchestrator) []ToolCallView {
	st := o.State()
	rootID, _ := st.LatestRoot()
	if rootID == "" {
		return nil
	}

	var out []ToolCallView
	for _, leaf := range st.PendingLeaves(rootID) {
		fv := FunctionView{Name: leaf.Agent, Arguments: agent.StripReserved(leaf.Args)}
		if batches := st.Children(leaf.UniqueID); len(batches) > 0 {
			fv.ChildTasksBatch = childTasksBatch(batches)
		}
		out = append(out, ToolCallView{ID: leaf.UniqueID, Type: "function", Function: fv})
	}
	return out
}

func childTasksBatch(batches [][]*compressed.Task) [][]ChildTaskView {
	var out [][]ChildTaskView
	for _, batch := range batches {
		group := make([]ChildTaskView, 0, len(batch))
		for _, t := range batch {
			group = append(group, ChildTaskView{
				ToolCallID: t.UniqueID,
				Agent:      t.Agent,
				Args:       agent.StripReserved(t.Args),
				Result:     t.Result,
			})
		}
		out = append(out, group)
	}
	return out
}

// completedToolCalls derives the completed_tool_calls view by scanning the
// diff for newly-added TaskResult entries and joining each against the task
// it completes, found in the full (pre- plus post-diff) log.
func completedToolCalls(o *orchestrator.Orchestrator, diff convlog.Log) []CompletedToolCallView {
	st := o.State()

	var out []CompletedToolCallView
	for _, entry := range diff {
		tr, ok := entry.(convlog.TaskResult)
		if !ok {
			continue
		}
		t, ok := st.Tasks[tr.TaskUniqueID]
		if !ok {
			continue
		}
		out = append(out, CompletedToolCallView{
			Role:       "tool",
			ToolCallID: tr.TaskUniqueID,
			Content:    tr.Result,
			RunID:      t.RunID,
			Function:   FunctionNameArgs{Name: t.Agent, Arguments: agent.StripReserved(t.Args)},
			CreatedAt:  tr.CreatedAt,
		})
	}
	return out
}

// llmCalls extracts the llm_calls view from the diff's TaskDebug entries and
// returns a copy of diff with every TaskDebug's Extra cleared, so the
// stripped-down diff is what actually goes over the wire.
func llmCalls(diff convlog.Log) (map[string]LLMCallView, convlog.Log) {
	calls := make(map[string]LLMCallView)
	stripped := make(convlog.Log, len(diff))
	copy(stripped, diff)

	for i, entry := range stripped {
		td, ok := entry.(convlog.TaskDebug)
		if !ok {
			continue
		}
		for j, call := range td.LLMDebug {
			key := call.ProviderCallID
			if key == "" {
				key = fmt.Sprintf("%s#%d", td.TaskUniqueID, j)
			}
			calls[key] = LLMCallView{
				Model:            call.Model,
				Duration:         call.Duration,
				PromptTokens:     call.PromptTokens,
				CompletionTokens: call.CompletionTokens,
				TotalTokens:      call.TotalTokens,
				Cost:             call.Cost,
				FinishReason:     call.FinishReason,
				Extra:            td.Extra,
			}
		}
		if td.Extra != nil {
			td.Extra = nil
			stripped[i] = td
		}
	}
	return calls, stripped
}

// derivedViews bundles the three derived-view builders into one ChatResponse
// skeleton (Error left unset; callers fill it in on failure).
func derivedViews(o *orchestrator.Orchestrator) ChatResponse {
	diff := o.LogDiff()
	calls, stripped := llmCalls(diff)
	return ChatResponse{
		LogDiff:            stripped,
		PendingToolCalls:   pendingToolCalls(o),
		CompletedToolCalls: completedToolCalls(o, stripped),
		LLMCalls:           calls,
	}
}
