package agent

import "context"

// TalkToUserName is the registered name of the server-side assistant-chat
// sentinel agent.
const TalkToUserName = "TalkToUser"

// PresentFinalAnswerName is the registered name of the client-side
// final-answer sentinel tool.
const PresentFinalAnswerName = "PresentFinalAnswer"

// talkToUser represents an assistant "chat" message as a task. Unlike every
// other registered agent, it executes entirely server-side: its Run returns
// its own arguments wrapped as a result without ever suspending.
type talkToUser struct {
	args map[string]any
}

// NewTalkToUser constructs the TalkToUser registration. content_blocks (or,
// for backward compatibility, a bare content string) is returned verbatim as
// the task's result so downstream thread translation can read it back.
func NewTalkToUser() Registration {
	return Registration{
		Name:        TalkToUserName,
		Description: "Present a chat message to the user. Always used to carry assistant narration alongside or instead of tool calls.",
		Params: []ParamSpec{
			{Name: "content_blocks", Type: ParamArray, Description: "Ordered structured content blocks (text and opaque provider blocks) to show the user."},
			{Name: "content", Type: ParamString, Description: "Plain-text fallback when content_blocks is not supplied."},
			{Name: "citations", Type: ParamArray, Description: "Optional citation metadata accompanying the message."},
		},
		New: func(_ Context, args map[string]any) (Agent, error) {
			return &talkToUser{args: StripReserved(args)}, nil
		},
	}
}

// Reduce is a no-op: TalkToUser never has children.
func (t *talkToUser) Reduce(context.Context, [][]ChildView) error { return nil }

// Run returns the message verbatim; TalkToUser never suspends.
func (t *talkToUser) Run(context.Context) (Outcome, error) {
	return Completed(map[string]any{
		"content_blocks": t.args["content_blocks"],
		"content":        t.args["content"],
		"citations":      t.args["citations"],
	}), nil
}

// tool is the base behavior shared by every client-executed tool: Reduce is a
// no-op (tools never dispatch children of their own) and Run unconditionally
// suspends, meaning "executed by the client". Domain tools (ExecuteSQLQuery,
// SearchDBSchema, EditFile, Navigate, PresentFinalAnswer, ...) embed this and
// add nothing beyond their ParamSpec list.
type tool struct{}

// Reduce implements Agent. Always a no-op for tools.
func (tool) Reduce(context.Context, [][]ChildView) error { return nil }

// Run implements Agent. Always suspends for tools.
func (tool) Run(context.Context) (Outcome, error) { return Suspend(), nil }

// NewTool registers name as a client-side tool: one whose Run always
// suspends, deferring execution to the client's tool-execution shim. This is
// the constructor used both for the fixed PresentFinalAnswer sentinel and for
// every domain tool (see package tools).
func NewTool(name, description string, params []ParamSpec) Registration {
	return Registration{
		Name:        name,
		Description: description,
		Params:      params,
		New: func(Context, map[string]any) (Agent, error) {
			return tool{}, nil
		},
	}
}

// NewPresentFinalAnswer constructs the PresentFinalAnswer registration: a
// client-side tool whose arguments carry the agent's final, user-facing
// answer. Its presence in a tool call tells the analyst loop's caller that no
// further planner turn is needed once the client acknowledges it.
func NewPresentFinalAnswer() Registration {
	return NewTool(PresentFinalAnswerName, "Present the final answer to the user's request and end the turn.", []ParamSpec{
		{Name: "answer", Type: ParamString, Required: true, Description: "The final, user-facing answer."},
	})
}
