package analyst

import (
	"context"
	"testing"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/llmbridge"
	"github.com/minusxai/minusx/orchestrator"
)

func newReportTestRegistry(t *testing.T, analystClient, reportClient llmbridge.Client) *agent.Registry {
	t.Helper()
	reg := agent.NewRegistry()
	reg.MustRegister(agent.NewTalkToUser())
	reg.MustRegister(agent.NewPresentFinalAnswer())
	reg.MustRegister(agent.NewTool("ExecuteSQLQuery", "run a query", nil))
	reg.MustRegister(agent.NewTool("SearchDBSchema", "search schema", nil))
	reg.MustRegister(agent.NewTool("Navigate", "navigate", nil))
	reg.MustRegister(agent.NewTool("EditFile", "edit a file", nil))
	reg.MustRegister(NewAnalystRegistration(analystClient, reg, "test-model", 40))
	reg.MustRegister(NewReportRegistration(reportClient, "test-model"))
	return reg
}

func textResponse(text string) *llmbridge.Response {
	return &llmbridge.Response{Content: []llmbridge.Message{{Role: llmbridge.RoleAssistant, Parts: []llmbridge.Part{llmbridge.TextPart{Text: text}}}}}
}

func TestReportAgent_DispatchesOneAnalystPerReference(t *testing.T) {
	analystClient := &scriptedClient{responses: []*llmbridge.Response{
		textResponse("Q1 revenue is up."),
		textResponse("Q2 revenue is flat."),
	}}
	reportClient := &scriptedClient{responses: []*llmbridge.Response{
		textResponse("## Quarterly Revenue\n\nRevenue trends are positive overall."),
	}}
	reg := newReportTestRegistry(t, analystClient, reportClient)

	req := agent.Call{
		Agent: ReportAgentName,
		Args: map[string]any{
			"report_name": "Quarterly Revenue",
			"references": []any{
				map[string]any{"file_name": "Q1", "prompt": "Analyze Q1 revenue"},
				map[string]any{"file_name": "Q2", "prompt": "Analyze Q2 revenue"},
			},
		},
	}

	orch := orchestrator.New(reg, nil, orchestrator.Hooks{}, nil)
	err := orch.Run(context.Background(), req, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root, rootTask := orch.State().LatestRoot()
	if rootTask == nil {
		t.Fatalf("want a root task")
	}
	result, ok := orch.State().Tasks[root].Result.(map[string]any)
	if !ok {
		t.Fatalf("want map result, got %T", orch.State().Tasks[root].Result)
	}
	if result["success"] != true {
		t.Fatalf("want success, got %v", result)
	}
	if analystClient.calls != 2 {
		t.Fatalf("want one LLM call per reference (2), got %d", analystClient.calls)
	}
	if reportClient.calls != 1 {
		t.Fatalf("want exactly 1 synthesis call, got %d", reportClient.calls)
	}
}

// TestReportAgent_ResumePropagatesThroughNestedAnalystToRoot exercises the
// 3-level shape from SPEC_FULL.md §4.4 operation 2(e): ReportAgent -> nested
// AnalystAgent -> a suspending domain tool. The tool call is completed on a
// fresh orchestrator built off the persisted log, so the nested analyst only
// settles *during* that Resume call rather than before it's even invoked.
// ReportAgent, the root, only becomes a pending leaf once that settling
// happens, so a Resume that doesn't re-examine the tree after each round
// would return nil with the root never reduced/run, leaving it permanently
// stuck (httpapi's pendingToolCalls has no "ReportAgent" tool to complete).
func TestReportAgent_ResumePropagatesThroughNestedAnalystToRoot(t *testing.T) {
	analystClient := &scriptedClient{responses: []*llmbridge.Response{
		toolCallResponse("call_1", "SearchDBSchema", map[string]any{"connection": "main", "query": "orders"}),
		textResponse("Q1 revenue is up."),
	}}
	reportClient := &scriptedClient{responses: []*llmbridge.Response{
		textResponse("## Quarterly Revenue\n\nRevenue trends are positive overall."),
	}}
	reg := newReportTestRegistry(t, analystClient, reportClient)

	req := agent.Call{
		Agent: ReportAgentName,
		Args: map[string]any{
			"report_name": "Quarterly Revenue",
			"references": []any{
				map[string]any{"file_name": "Q1", "prompt": "Analyze Q1 revenue"},
			},
		},
	}

	orch := orchestrator.New(reg, nil, orchestrator.Hooks{}, nil)
	err := orch.Run(context.Background(), req, "")
	se, ok := orchestrator.AsSuspended(err)
	if !ok {
		t.Fatalf("want suspended error, got %v", err)
	}
	if len(se.TaskIDs) != 1 {
		t.Fatalf("want exactly one suspended task (the deep tool call), got %v", se.TaskIDs)
	}
	pendingID := se.TaskIDs[0]

	log := orch.Log()
	orch2 := orchestrator.New(reg, log, orchestrator.Hooks{}, nil)
	if !orch2.CompleteToolCall(pendingID, map[string]any{"success": true, "rows": []any{}}) {
		t.Fatalf("want CompleteToolCall to find pending leaf %q", pendingID)
	}
	if err := orch2.Resume(context.Background()); err != nil {
		t.Fatalf("resume: unexpected error: %v", err)
	}

	root, rootTask := orch2.State().LatestRoot()
	if rootTask == nil {
		t.Fatalf("want a root task")
	}
	result, ok := orch2.State().Tasks[root].Result.(map[string]any)
	if !ok {
		t.Fatalf("want ReportAgent to have completed with a map result after one Resume call, got %T (%v)", orch2.State().Tasks[root].Result, orch2.State().Tasks[root].Result)
	}
	if result["success"] != true {
		t.Fatalf("want success, got %v", result)
	}
	if analystClient.calls != 2 {
		t.Fatalf("want the nested analyst to make its second (post-tool) call within this same Resume, got %d", analystClient.calls)
	}
	if reportClient.calls != 1 {
		t.Fatalf("want ReportAgent's own synthesis call to fire once its only child settles mid-Resume, got %d", reportClient.calls)
	}
}
