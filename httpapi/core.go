package httpapi

import (
	"context"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/orchestrator"
)

// processChat runs the shared chat/chat-stream processing steps against req
// and returns the response. It never itself returns an error: a failed
// orchestrator run surfaces as resp.Error, matching the spec's "always
// return a (possibly partial) log diff" contract.
func processChat(ctx context.Context, reg *agent.Registry, req ChatRequest, hooks orchestrator.Hooks) ChatResponse {
	orch := orchestrator.New(reg, req.Log, hooks, nil)
	previousRootID, _ := orch.State().LatestRoot()

	// The leaves pending at the start of this turn are the ones completed_tool_calls
	// is meant to resolve. Short-circuiting below checks against this set, not
	// against leaves newly promoted by resolving it (e.g. a parent agent that
	// becomes a pending leaf itself once every child settles) — those are exactly
	// what Run/Resume below exists to advance.
	pendingBefore := orch.PendingLeafIDs()

	for _, c := range req.CompletedToolCalls {
		orch.CompleteToolCall(c.ToolCallID, c.Content)
	}
	if req.UserMessage != "" {
		orch.InterruptPending()
	}

	anyStillPending := false
	for _, id := range pendingBefore {
		if t, ok := orch.State().Tasks[id]; ok && t.Result == nil {
			anyStillPending = true
			break
		}
	}
	if anyStillPending && req.UserMessage == "" {
		return derivedViews(orch)
	}

	var runErr error
	if req.UserMessage != "" {
		args := make(map[string]any, len(req.AgentArgs)+1)
		for k, v := range req.AgentArgs {
			args[k] = v
		}
		args["goal"] = req.UserMessage
		runErr = orch.Run(ctx, agent.Call{Agent: req.Agent, Args: args}, previousRootID)
	} else {
		runErr = orch.Resume(ctx)
	}

	resp := derivedViews(orch)
	if runErr != nil {
		if _, suspended := orchestrator.AsSuspended(runErr); !suspended {
			resp.Error = runErr.Error()
		}
	}
	return resp
}

// processClose marks every pending leaf of the latest root as interrupted
// and returns the resulting log diff. It never runs the orchestrator's
// dispatch loop.
func processClose(reg *agent.Registry, req CloseRequest) CloseResponse {
	orch := orchestrator.New(reg, req.Log, orchestrator.Hooks{}, nil)
	orch.InterruptPending()
	return CloseResponse{LogDiff: orch.LogDiff()}
}
