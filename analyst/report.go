package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/llmbridge"
	"github.com/minusxai/minusx/orchestrator"
)

// ReportAgentName is the registered name of the report-synthesis agent.
const ReportAgentName = "ReportAgent"

// reference is one scheduled analysis within a report: a question/dashboard
// to run through its own AnalystAgent, plus the app state capturing the
// query that agent should execute.
type reference struct {
	FileName     string         `json:"file_name"`
	Prompt       string         `json:"prompt"`
	ConnectionID string         `json:"connection_id"`
	AppState     map[string]any `json:"app_state"`
}

// queryResult is one ExecuteSQLQuery call's output, collected from anywhere
// in a reference's child task tree so the synthesis step can embed it as an
// interactive chart via the {{query:ID}} placeholder convention.
type queryResult struct {
	FileName string `json:"fileName"`
	Query    string `json:"query"`
	RowCount int    `json:"rowCount"`
	VizType  string `json:"vizType"`
}

// ReportAgent fans out one AnalystAgent per reference, waits for all of them
// to settle, then makes a single synthesis LLM call to weave the individual
// analyses into one markdown report with embedded chart placeholders.
type ReportAgent struct {
	actx     agent.Context
	client   llmbridge.Client
	model    string
	homeFolder string

	reportName   string
	reportPrompt string
	connectionID string
	schema       []any
	context      string
	references   []reference

	dispatched   bool
	childResults []string // one entry per reference, its final content (possibly empty)
	queries      map[string]queryResult
}

// NewReportRegistration builds the ReportAgent registration, sharing client
// and model with the analyst registration so both LLM calls target the same
// provider configuration.
func NewReportRegistration(client llmbridge.Client, model string) agent.Registration {
	return agent.Registration{
		Name:        ReportAgentName,
		Description: "Run a scheduled report: analyze each reference and synthesize the results into one markdown report.",
		Params: []agent.ParamSpec{
			{Name: "report_name", Type: agent.ParamString, Default: "Untitled Report", Description: "Display name for this report run."},
			{Name: "report_prompt", Type: agent.ParamString, Description: "Synthesis instructions; defaults to an executive-summary prompt."},
			{Name: "references", Type: agent.ParamArray, Description: "List of {file_name, prompt, connection_id, app_state} analyses to run."},
			{Name: "connection_id", Type: agent.ParamString, Description: "Default connection for references that don't specify their own."},
			{Name: "schema", Type: agent.ParamArray, Description: "Database schema metadata shared by every child analyst."},
			{Name: "context", Type: agent.ParamString, Description: "Additional context shared by every child analyst."},
			{Name: "home_folder", Type: agent.ParamString, Description: "Client-side folder child analysts' file tools operate under."},
		},
		New: func(actx agent.Context, args map[string]any) (agent.Agent, error) {
			return newReportAgent(actx, client, model, args), nil
		},
	}
}

func newReportAgent(actx agent.Context, client llmbridge.Client, model string, args map[string]any) *ReportAgent {
	r := &ReportAgent{actx: actx, client: client, model: model, queries: map[string]queryResult{}}
	r.reportName, _ = args["report_name"].(string)
	if r.reportName == "" {
		r.reportName = "Untitled Report"
	}
	r.reportPrompt, _ = args["report_prompt"].(string)
	r.connectionID, _ = args["connection_id"].(string)
	r.schema, _ = args["schema"].([]any)
	r.context, _ = args["context"].(string)
	r.homeFolder, _ = args["home_folder"].(string)
	if raw, ok := args["references"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			ref := reference{ConnectionID: r.connectionID}
			ref.FileName, _ = m["file_name"].(string)
			ref.Prompt, _ = m["prompt"].(string)
			if cid, ok := m["connection_id"].(string); ok && cid != "" {
				ref.ConnectionID = cid
			}
			ref.AppState, _ = m["app_state"].(map[string]any)
			r.references = append(r.references, ref)
		}
	}
	return r
}

// Reduce collects each child AnalystAgent's final content and every
// ExecuteSQLQuery result nested anywhere in its task tree.
func (r *ReportAgent) Reduce(ctx context.Context, batches [][]agent.ChildView) error {
	r.refresh(batches)
	return nil
}

// refresh rebuilds childResults/queries from batches. It is called both from
// Reduce (at the top of every resumed Run) and directly after a Dispatch
// call that settled every child synchronously within the same Run, so a
// report whose analyst children never needed user input completes in one
// turn instead of an extra idle suspend/resume round trip.
func (r *ReportAgent) refresh(batches [][]agent.ChildView) {
	if len(batches) == 0 {
		return
	}
	r.dispatched = true
	latest := batches[len(batches)-1]
	r.childResults = make([]string, len(latest))
	for i, child := range latest {
		if child.Result == nil {
			continue
		}
		r.childResults[i] = resultContent(child.Result)
		r.collectQueries(child, r.referenceFor(i))
	}
}

func (r *ReportAgent) referenceFor(i int) string {
	if i < len(r.references) && r.references[i].FileName != "" {
		return r.references[i].FileName
	}
	return fmt.Sprintf("Reference %d", i+1)
}

// collectQueries recursively walks t's children looking for ExecuteSQLQuery
// results, since a query an AnalystAgent ran may be nested several tool
// calls deep rather than a direct child of the dispatched reference task.
func (r *ReportAgent) collectQueries(t agent.ChildView, fileName string) {
	if t.Agent == "ExecuteSQLQuery" && t.Result != nil {
		if parsed, ok := parseQueryResult(t.Result); ok {
			query, _ := t.Args["query"].(string)
			viz := "table"
			if vs, ok := t.Args["vizSettings"].(map[string]any); ok {
				if tp, ok := vs["type"].(string); ok && tp != "" {
					viz = tp
				}
			}
			r.queries[t.UniqueID] = queryResult{FileName: fileName, Query: query, RowCount: parsed, VizType: viz}
		}
	}
	for _, batch := range r.actx.Orchestrator.Children(t.UniqueID) {
		for _, child := range batch {
			r.collectQueries(child, fileName)
		}
	}
}

// parseQueryResult reports whether result looks like a successful
// ExecuteSQLQuery payload and, if so, its row count.
func parseQueryResult(result any) (int, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		if s, ok := result.(string); ok {
			var parsed map[string]any
			if json.Unmarshal([]byte(s), &parsed) == nil {
				m = parsed
				ok = true
			}
		}
	}
	if !ok {
		return 0, false
	}
	success, _ := m["success"].(bool)
	rows, hasRows := m["rows"].([]any)
	if !success || !hasRows {
		return 0, false
	}
	return len(rows), true
}

func resultContent(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case map[string]any:
		if c, ok := v["content"].(string); ok {
			return c
		}
		b, _ := json.Marshal(v)
		return string(b)
	}
	return fmt.Sprint(result)
}

// Run dispatches one AnalystAgent per reference on the first call, then
// synthesizes the final report once every child has settled.
func (r *ReportAgent) Run(ctx context.Context) (agent.Outcome, error) {
	if !r.dispatched && len(r.references) > 0 {
		r.dispatched = true
		calls := make([]agent.Call, len(r.references))
		for i, ref := range r.references {
			goal := fmt.Sprintf("[%s]%s\n\nThis is a background report execution: run whatever queries are needed from the app state without further confirmation.", ref.FileName, ref.Prompt)
			calls[i] = agent.Call{
				Agent: AnalystAgentName,
				Args: map[string]any{
					"goal":          goal,
					"connection_id": ref.ConnectionID,
					"schema":        r.schema,
					"context":       r.context,
					"app_state":     ref.AppState,
					"home_folder":   r.homeFolder,
					"agent_name":    "ReportAnalyst",
				},
			}
		}
		err := r.actx.Orchestrator.Dispatch(ctx, r.actx.UniqueID, calls...)
		if _, ok := orchestrator.AsSuspended(err); ok {
			return agent.Suspend(), nil
		}
		if err != nil {
			return agent.Outcome{}, err
		}
		// Every child settled synchronously within this same Dispatch call;
		// pull their results now instead of waiting for the next Reduce.
		r.refresh(r.actx.Orchestrator.Children(r.actx.UniqueID))
	}

	for _, c := range r.childResults {
		if c == "" {
			return agent.Suspend(), nil
		}
	}
	if len(r.references) > 0 && len(r.childResults) < len(r.references) {
		return agent.Suspend(), nil
	}

	report, err := r.synthesize(ctx)
	if err != nil {
		return agent.Completed(map[string]any{
			"success": false,
			"content": fmt.Sprintf("Report execution failed: %v", err),
		}), nil
	}

	return agent.Completed(map[string]any{
		"success": true,
		"content": fmt.Sprintf("Report %q executed successfully.", r.reportName),
		"run": map[string]any{
			"reportName":      r.reportName,
			"generatedReport": report,
			"queries":         r.queries,
		},
	}), nil
}

// synthesize makes the second, summarizing LLM call: it is deliberately a
// plain Complete rather than a tool-calling loop, since the synthesis step
// never dispatches children of its own.
func (r *ReportAgent) synthesize(ctx context.Context) (string, error) {
	var analyses strings.Builder
	for i, ref := range r.references {
		content := ""
		if i < len(r.childResults) {
			content = r.childResults[i]
		}
		fmt.Fprintf(&analyses, "### %s\n**Prompt:** %s\n**Analysis:**\n%s\n\n", ref.FileName, ref.Prompt, content)
	}

	var queries strings.Builder
	for id, q := range r.queries {
		fmt.Fprintf(&queries, "- `{{query:%s}}`: %s (%d rows, %s)\n", id, q.FileName, q.RowCount, q.VizType)
	}
	if queries.Len() == 0 {
		queries.WriteString("No queries available")
	}

	instructions := r.reportPrompt
	if instructions == "" {
		instructions = "Synthesize the analyses into a coherent executive summary. Highlight key findings, trends, and actionable insights."
	}

	prompt := fmt.Sprintf(`You are generating a report based on multiple data analyses.

## Report: %s

## Individual Analyses:
%s

## Available Interactive Charts
Embed interactive charts inline using the syntax {{query:ID}}. Available queries:
%s

## Synthesis Instructions:
%s
`, r.reportName, analyses.String(), queries.String(), instructions)

	resp, err := r.client.Complete(ctx, &llmbridge.Request{
		RunID:     r.actx.UniqueID,
		Model:     r.model,
		System:    "You write clear, data-grounded executive reports in markdown.",
		Messages:  []*llmbridge.Message{{Role: llmbridge.RoleUser, Parts: []llmbridge.Part{llmbridge.TextPart{Text: prompt}}}},
		MaxTokens: 4096,
	})
	if err != nil {
		return "", err
	}
	content, _ := contentAndCitations(resp)
	return content, nil
}
