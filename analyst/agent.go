// Package analyst implements the root, LLM-driving agent: the one that
// actually talks to a model, turns its response into dispatched tool calls,
// and loops until the model stops calling tools or the step budget runs out.
// Every other package in this module (agent, orchestrator, llmbridge,
// thread) is provider- and domain-agnostic; AnalystAgent is where they are
// wired together into a concrete conversational loop.
package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/convlog"
	"github.com/minusxai/minusx/llmbridge"
	"github.com/minusxai/minusx/orchestrator"
	"github.com/minusxai/minusx/thread"
)

// AnalystAgentName is the registered name of the root analyst agent.
const AnalystAgentName = "AnalystAgent"

// maxStepsSafetyMargin is subtracted from the configured step budget before
// the tool list is still offered to the model, so the loop always has room
// to let the model wrap up with a final PresentFinalAnswer/TalkToUser call
// instead of being cut off mid-tool-call.
const maxStepsSafetyMargin = 5

// AnalystAgent answers a user's data question by looping: build messages
// from history plus the tool thread so far, call the model, dispatch
// whatever it asked for, and repeat once those children settle. It completes
// either when a turn produces no tool calls, or once PresentFinalAnswer is
// acknowledged by the client, or when the step budget is exhausted.
type AnalystAgent struct {
	actx     agent.Context
	client   llmbridge.Client
	registry *agent.Registry
	model    string
	maxSteps int

	goal         string
	connectionID string
	schema       []any
	context      string
	appState     map[string]any
	agentName    string
	homeFolder   string
	city         string

	toolThread  []*llmbridge.Message
	childCount  int
	finalAnswer *string
}

// NewAnalystRegistration builds the AnalystAgent registration. client and
// registry are shared across every task this process runs; model names the
// concrete provider model (e.g. "claude-sonnet-4-5") this registration
// drives, and maxSteps bounds the tool-calling loop per spec's step budget.
func NewAnalystRegistration(client llmbridge.Client, registry *agent.Registry, model string, maxSteps int) agent.Registration {
	return agent.Registration{
		Name:        AnalystAgentName,
		Description: "Answer a user's data question by searching schema and executing SQL queries, narrating progress, and presenting a final answer.",
		Params: []agent.ParamSpec{
			{Name: "goal", Type: agent.ParamString, Required: true, Description: "The user's question or instruction for this turn."},
			{Name: "connection_id", Type: agent.ParamString, Description: "Database connection this agent should query against."},
			{Name: "schema", Type: agent.ParamArray, Description: "Table/column schema metadata available to this agent."},
			{Name: "context", Type: agent.ParamString, Description: "Freeform additional context for this request."},
			{Name: "app_state", Type: agent.ParamObject, Description: "Current client UI state (active query, filters, selected chart, etc.)."},
			{Name: "home_folder", Type: agent.ParamString, Description: "Client-side folder this agent's file tools operate under."},
			{Name: "city", Type: agent.ParamString, Description: "User's city, forwarded to providers with location-aware answers."},
			{Name: "agent_name", Type: agent.ParamString, Description: "Display name this agent narrates under."},
		},
		New: func(actx agent.Context, args map[string]any) (agent.Agent, error) {
			return newAnalystAgent(actx, client, registry, model, maxSteps, args), nil
		},
	}
}

func newAnalystAgent(actx agent.Context, client llmbridge.Client, registry *agent.Registry, model string, maxSteps int, args map[string]any) *AnalystAgent {
	a := &AnalystAgent{
		actx:     actx,
		client:   client,
		registry: registry,
		model:    model,
		maxSteps: maxSteps,
	}
	a.goal, _ = args["goal"].(string)
	a.connectionID, _ = args["connection_id"].(string)
	if a.connectionID == "" {
		a.connectionID = "No connection"
	}
	a.schema, _ = args["schema"].([]any)
	a.context, _ = args["context"].(string)
	a.appState, _ = args["app_state"].(map[string]any)
	a.agentName, _ = args["agent_name"].(string)
	if a.agentName == "" {
		a.agentName = "MinusX"
	}
	a.homeFolder, _ = args["home_folder"].(string)
	if a.homeFolder == "" {
		a.homeFolder = "/"
	}
	a.city, _ = args["city"].(string)
	return a
}

// Reduce folds newly-completed dispatch batches into the LLM tool thread and
// watches for a completed PresentFinalAnswer child, which ends the loop on
// the next Run without another model call.
func (a *AnalystAgent) Reduce(ctx context.Context, batches [][]agent.ChildView) error {
	for _, batch := range batches[a.childCount:] {
		a.toolThread = append(a.toolThread, thread.TaskBatchToThread([][]agent.ChildView{batch})...)
		for _, t := range batch {
			if t.Agent == agent.PresentFinalAnswerName && t.Result != nil {
				if answer := finalAnswerText(t); answer != "" && a.finalAnswer == nil {
					a.finalAnswer = &answer
				}
			}
		}
	}
	a.childCount = len(batches)
	return nil
}

func finalAnswerText(t agent.ChildView) string {
	switch v := t.Result.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["answer"].(string); ok {
			return s
		}
	}
	return ""
}

// Run executes one resumption of the tool-calling loop. It may call the
// model several times in a single Run if every turn dispatches children that
// settle synchronously (e.g. a TalkToUser-only batch); it returns a
// suspended Outcome the moment any dispatched child is still pending.
func (a *AnalystAgent) Run(ctx context.Context) (agent.Outcome, error) {
	if a.finalAnswer != nil {
		return agent.Completed(map[string]any{"success": true, "content": *a.finalAnswer}), nil
	}

	history := thread.RootTasksToThread(a.actx.Orchestrator.PreviousRoots(a.actx.UniqueID), a.actx.Orchestrator.Children)
	base := append(append([]*llmbridge.Message{}, history...), a.userMessage())

	for len(a.toolThread) < a.maxSteps {
		messages := append(append([]*llmbridge.Message{}, base...), a.toolThread...)
		req := &llmbridge.Request{
			RunID:      a.actx.UniqueID,
			Model:      a.model,
			System:     a.systemPrompt(),
			Messages:   messages,
			Tools:      a.toolDefs(),
			ToolChoice: &llmbridge.ToolChoice{Mode: llmbridge.ToolChoiceAuto},
			MaxTokens:  4096,
		}

		resp, err := a.callLLM(ctx, req)
		if err != nil {
			return agent.Outcome{}, fmt.Errorf("analyst: llm call: %w", err)
		}

		content, citations := contentAndCitations(resp)
		if len(resp.ToolCalls) == 0 {
			result := map[string]any{"success": true}
			if content != "" {
				result["content"] = content
				result["citations"] = citations
			}
			return agent.Completed(result), nil
		}

		calls := thread.ToolCallsToAgentCalls(resp.ToolCalls, nil, content, citations)
		dispatchErr := a.actx.Orchestrator.Dispatch(ctx, a.actx.UniqueID, calls...)
		if dispatchErr != nil {
			if _, ok := orchestrator.AsSuspended(dispatchErr); ok {
				return agent.Suspend(), nil
			}
			return agent.Outcome{}, dispatchErr
		}
		// Every dispatched call settled synchronously: loop back and let the
		// model react to the fresh tool-result messages in a.toolThread.
		if err := a.Reduce(ctx, a.actx.Orchestrator.Children(a.actx.UniqueID)); err != nil {
			return agent.Outcome{}, err
		}
	}

	return agent.Completed(map[string]any{
		"success": false,
		"content": fmt.Sprintf("Maximum iterations (%d) reached. Please try a simpler query.", a.maxSteps),
	}), nil
}

// toolDefs lists the tool schemas offered to the model this turn. It stops
// offering tools once the loop enters its safety margin, nudging the model
// toward a final content-only reply instead of one more call that would run
// straight into the step cap.
func (a *AnalystAgent) toolDefs() []*llmbridge.ToolDefinition {
	if len(a.toolThread) >= a.maxSteps-maxStepsSafetyMargin {
		return nil
	}
	var defs []*llmbridge.ToolDefinition
	for _, reg := range a.registry.All() {
		switch reg.Name {
		case agent.TalkToUserName, AnalystAgentName, ReportAgentName:
			continue
		}
		defs = append(defs, llmbridge.ToolSchema(reg))
	}
	return defs
}

func (a *AnalystAgent) systemPrompt() string {
	schemaJSON, _ := json.Marshal(a.schema)
	remaining := a.maxSteps - maxStepsSafetyMargin - len(a.toolThread)
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a BI analyst assistant embedded in a data app.\n", a.agentName)
	fmt.Fprintf(&b, "Active database connection: %s\n", a.connectionID)
	fmt.Fprintf(&b, "Home folder: %s\n", a.homeFolder)
	if a.context != "" {
		fmt.Fprintf(&b, "Additional context:\n%s\n", a.context)
	}
	fmt.Fprintf(&b, "Database schema (JSON):\n%s\n", schemaJSON)
	fmt.Fprintf(&b, "You have about %d tool-call turns left before this conversation ends automatically.\n", remaining)
	b.WriteString("Use SearchDBSchema and ExecuteSQLQuery to investigate the data, TalkToUser to narrate progress, and PresentFinalAnswer once you have a complete answer.\n")
	return b.String()
}

func (a *AnalystAgent) userMessage() *llmbridge.Message {
	appStateJSON := "null"
	if len(a.appState) > 0 {
		if b, err := json.MarshalIndent(a.appState, "", "  "); err == nil {
			appStateJSON = string(b)
		}
	}
	text := fmt.Sprintf("Current app state:\n%s\n\nGoal: %s\nCurrent time: %s",
		appStateJSON, a.goal, time.Now().UTC().Format("2006-01-02 15:04:05"))
	return &llmbridge.Message{Role: llmbridge.RoleUser, Parts: []llmbridge.Part{llmbridge.TextPart{Text: text}}}
}

// callLLM drives one model turn, preferring the streaming path (so content
// deltas reach the client live via EmitContent) and falling back to Complete
// when the configured client doesn't support streaming.
func (a *AnalystAgent) callLLM(ctx context.Context, req *llmbridge.Request) (*llmbridge.Response, error) {
	started := time.Now()

	streamer, err := a.client.Stream(ctx, req)
	if errors.Is(err, llmbridge.ErrStreamingUnsupported) {
		resp, cerr := a.client.Complete(ctx, req)
		if cerr != nil {
			return nil, cerr
		}
		a.recordDebug(req, resp.Usage, resp.StopReason, started)
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	streamID := orchestrator.NewID()
	var resp llmbridge.Response
	var text strings.Builder
	for {
		chunk, err := streamer.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch chunk.Type {
		case llmbridge.ChunkText:
			text.WriteString(chunk.Text)
			a.actx.Orchestrator.EmitContent(chunk.Text, streamID)
		case llmbridge.ChunkToolCall:
			if chunk.ToolCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, *chunk.ToolCall)
			}
		case llmbridge.ChunkStop:
			resp.StopReason = chunk.StopReason
		}
	}
	if text.Len() > 0 {
		resp.Content = []llmbridge.Message{{Role: llmbridge.RoleAssistant, Parts: []llmbridge.Part{llmbridge.TextPart{Text: text.String()}}}}
	}
	resp.Usage = streamer.Usage()
	a.recordDebug(req, resp.Usage, resp.StopReason, started)
	return &resp, nil
}

func (a *AnalystAgent) recordDebug(req *llmbridge.Request, usage llmbridge.TokenUsage, finishReason string, started time.Time) {
	a.actx.Orchestrator.RecordLLMDebug(a.actx.UniqueID, convlog.LLMCallDebug{
		Model:            req.Model,
		Duration:         time.Since(started).Seconds(),
		PromptTokens:     usage.InputTokens,
		CompletionTokens: usage.OutputTokens,
		TotalTokens:      usage.TotalTokens,
		FinishReason:     finishReason,
	})
}

// contentAndCitations flattens a response's assistant content into a single
// string plus any citation metadata, since ToolCallsToAgentCalls wants both
// as plain values rather than a typed Part slice.
func contentAndCitations(resp *llmbridge.Response) (string, []any) {
	var text strings.Builder
	var citations []any
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmbridge.TextPart:
				text.WriteString(p.Text)
			case llmbridge.CitationsPart:
				text.WriteString(p.Text)
				for _, c := range p.Citations {
					citations = append(citations, map[string]any{"title": c.Title, "source": c.Source, "excerpt": c.Excerpt})
				}
			}
		}
	}
	return text.String(), citations
}
