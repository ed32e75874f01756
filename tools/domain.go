// Package tools registers the domain tool surface the conversational agent
// exposes to the model: query execution and schema search, file/dashboard
// editing and discovery, navigation, and clarification. Their semantics are
// out of scope for the orchestrator (see spec §1 non-goals) — the
// orchestrator only ever sees a tool's name, args schema, and opaque result —
// so each is registered here purely as a suspending tool (agent.NewTool)
// whose actual execution happens on the remote client.
package tools

import "github.com/minusxai/minusx/agent"

// RegisterDomainTools adds every built-in domain tool to reg. Callers wire
// this alongside agent.NewPresentFinalAnswer and agent.NewTalkToUser when
// assembling the registry an orchestrator runs against.
func RegisterDomainTools(reg *agent.Registry) error {
	for _, r := range []agent.Registration{
		executeSQLQuery(),
		searchDBSchema(),
		editFile(),
		navigate(),
		clarify(),
		searchFiles(),
		getFiles(),
		getAllQuestions(),
		updateFileMetadata(),
	} {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}

func executeSQLQuery() agent.Registration {
	return agent.NewTool("ExecuteSQLQuery", "Execute a SQL query against the user's database. Supports :paramName parameters and @alias references to other questions (composed as CTEs).", []agent.ParamSpec{
		{Name: "connection_id", Type: agent.ParamString, Required: true, Description: "The database connection ID to use."},
		{Name: "query", Type: agent.ParamString, Required: true, Description: "The SQL query to execute."},
		{Name: "vizSettings", Type: agent.ParamObject, Description: "Chart settings for the query's output.", Properties: []agent.ParamSpec{
			{Name: "type", Type: agent.ParamEnum, Required: true, Enum: []string{"table", "bar", "line", "scatter", "area", "funnel", "pie", "pivot", "trend"}, Description: "Visualization type; default is table."},
			{Name: "xCols", Type: agent.ParamArray, Items: &agent.ParamSpec{Type: agent.ParamString}, Description: "Column names on the x axis (non-pivot types)."},
			{Name: "yCols", Type: agent.ParamArray, Items: &agent.ParamSpec{Type: agent.ParamString}, Description: "Column names on the y axis (non-pivot types)."},
			{Name: "pivotConfig", Type: agent.ParamObject, Description: "Pivot table configuration; only used when type is \"pivot\"."},
			{Name: "columnFormats", Type: agent.ParamObject, Description: "Per-column display formatting keyed by column name."},
		}},
		{Name: "foreground", Type: agent.ParamBoolean, Default: false, Description: "If true, execute in foreground mode and update the current question page UI."},
		{Name: "parameters", Type: agent.ParamArray, Description: "Parameter objects ({name, type, label, value}) for a query using :paramName syntax."},
		{Name: "references", Type: agent.ParamArray, Description: "Question references ({id, alias}) for a query using @alias syntax to compose other questions as CTEs."},
		{Name: "file_id", Type: agent.ParamNumber, Description: "The file ID of the question to update; required when foreground is true."},
	})
}

func searchDBSchema() agent.Registration {
	return agent.NewTool("SearchDBSchema", "Search database schema for tables, columns, and metadata. Queries starting with \"$\" use JSONPath, others use weighted string search.", []agent.ParamSpec{
		{Name: "connection_id", Type: agent.ParamString, Required: true, Description: "The database connection ID to use."},
		{Name: "query", Type: agent.ParamString, Description: "JSONPath query (starts with \"$\") or a free-text search term."},
	})
}

func editFile() agent.Registration {
	return agent.NewTool("EditFile", "Apply an edit to the current page's file: dashboard layout, report content, alert condition, or question definition.", []agent.ParamSpec{
		{Name: "file_id", Type: agent.ParamNumber, Required: true, Description: "The file ID being edited."},
		{Name: "operation", Type: agent.ParamString, Required: true, Description: "The edit operation to apply, specific to the file's type (e.g. add_existing_question, update_layout)."},
		{Name: "params", Type: agent.ParamObject, Description: "Operation-specific parameters."},
	})
}

func navigate() agent.Registration {
	return agent.NewTool("Navigate", "Navigate the client UI to a named view (dashboard, chart, table).", []agent.ParamSpec{
		{Name: "target", Type: agent.ParamString, Required: true, Description: "Identifier of the view to navigate to."},
		{Name: "params", Type: agent.ParamObject, Description: "Optional view parameters (filters, selected chart, etc.)."},
	})
}

func clarify() agent.Registration {
	return agent.NewTool("Clarify", "Ask the user to choose between a small number of options when their request is ambiguous.", []agent.ParamSpec{
		{Name: "question", Type: agent.ParamString, Required: true, Description: "The question to ask the user."},
		{Name: "options", Type: agent.ParamArray, Required: true, Description: "Options, each with a label and optional description. Limit to about 3 for usability."},
		{Name: "multiSelect", Type: agent.ParamBoolean, Default: false, Description: "If true, the user may select more than one option."},
	})
}

func searchFiles() agent.Registration {
	return agent.NewTool("SearchFiles", "Search files by name, description, or content across questions and dashboards.", []agent.ParamSpec{
		{Name: "query", Type: agent.ParamString, Required: true, Description: "Search term to match against file names, descriptions, and content."},
		{Name: "file_types", Type: agent.ParamArray, Items: &agent.ParamSpec{Type: agent.ParamEnum, Enum: []string{"question", "dashboard"}}, Description: "File types to search; defaults to both."},
		{Name: "folder_path", Type: agent.ParamString, Description: "Folder path to search within; defaults to the user's home folder."},
		{Name: "depth", Type: agent.ParamNumber, Default: float64(999), Description: "Folder depth to search."},
		{Name: "limit", Type: agent.ParamNumber, Default: float64(20), Description: "Maximum number of results to return."},
		{Name: "offset", Type: agent.ParamNumber, Default: float64(0), Description: "Number of results to skip, for pagination."},
	})
}

func getFiles() agent.Registration {
	return agent.NewTool("GetFiles", "Load files by id, optionally including their full content, after searching for them.", []agent.ParamSpec{
		{Name: "ids", Type: agent.ParamArray, Required: true, Items: &agent.ParamSpec{Type: agent.ParamNumber}, Description: "File ids to load."},
		{Name: "include_content", Type: agent.ParamBoolean, Default: false, Description: "Include full file content; defaults to metadata only."},
	})
}

func getAllQuestions() agent.Registration {
	return agent.NewTool("GetAllQuestions", "List questions available to add to a dashboard.", []agent.ParamSpec{
		{Name: "folder_path", Type: agent.ParamString, Description: "Folder to search, e.g. the dashboard's parent folder."},
		{Name: "search_query", Type: agent.ParamString, Description: "Filter questions by name or description."},
		{Name: "exclude_ids", Type: agent.ParamArray, Items: &agent.ParamSpec{Type: agent.ParamNumber}, Description: "Question ids to exclude, e.g. already present on the dashboard."},
	})
}

func updateFileMetadata() agent.Registration {
	return agent.NewTool("UpdateFileMetadata", "Update the current file's name, description, or path. At least one field must be supplied.", []agent.ParamSpec{
		{Name: "file_id", Type: agent.ParamNumber, Required: true, Description: "The file id to update."},
		{Name: "name", Type: agent.ParamString, Description: "New display name."},
		{Name: "description", Type: agent.ParamString, Description: "New description."},
		{Name: "path", Type: agent.ParamString, Description: "New full path."},
	})
}
