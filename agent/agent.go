// Package agent defines the contract every registered agent/tool class must
// satisfy, plus the reserved constructor wiring (_unique_id, orchestrator)
// the framework supplies at dispatch time.
//
// Two shapes are standardized on top of the same interface: an Agent, whose
// Reduce aggregates across child batches and whose Run typically calls an LLM
// and dispatches further children, and a Tool, whose Reduce is a no-op and
// whose Run unconditionally suspends — meaning "executed by the client".
package agent

import (
	"context"
	"strings"

	"github.com/minusxai/minusx/convlog"
)

type (
	// Outcome is the explicit, sum-typed result of a Run call. This replaces
	// exception-based control flow: rather than raising a UserInput signal to
	// suspend, Run returns Outcome{Suspended: true}.
	Outcome struct {
		// Result holds the task's completion value when Suspended is false. It
		// must be either a string or a JSON-compatible map, matching the
		// convlog.TaskResult.Result contract.
		Result any
		// Suspended reports that this task is awaiting a client-supplied
		// completion (a "user-input-required" signal) and has no result yet.
		Suspended bool
	}

	// Call describes one agent invocation to dispatch: the agent name, its
	// arguments, and an optional caller-supplied id (used for LLM-issued tool
	// call ids so task ids and provider tool-call ids coincide).
	Call struct {
		// Agent is the registered agent name to invoke.
		Agent string
		// Args is the argument mapping for the new task.
		Args map[string]any
		// UniqueID optionally pins the new task's id. Left empty, the
		// orchestrator generates one.
		UniqueID string
		// Error, when non-empty, short-circuits dispatch: the task is still
		// created (so the LLM sees a stable tool_call_id to respond to) but its
		// result is immediately set to this error string and Run is never
		// invoked. Used by the thread translator when a tool call's arguments
		// fail to parse as JSON.
		Error string
		// PreviousUniqueID links a new root task to the previous turn's root.
		// Only meaningful when the call has no parent (see Orchestrator.Run);
		// ignored for any call dispatched as a child of another task.
		PreviousUniqueID string
	}

	// RootView is the read-only view of a previous turn's root task, used by
	// agents (via the thread translator) to rebuild cross-turn history.
	RootView struct {
		UniqueID string
		Args     map[string]any
		Result   any
	}

	// Dispatcher is the subset of the orchestrator an Agent's Run method is
	// allowed to call: dispatching children and reading back the task tree for
	// history reconstruction. Defining it here (rather than importing the
	// orchestrator package) avoids an import cycle between agent and
	// orchestrator; the orchestrator's concrete type implements it.
	Dispatcher interface {
		// Dispatch creates one task per call, all sharing a single run_id, with
		// parentID as their parent. It blocks until every call's task settles
		// (completes or suspends) and aggregates suspensions into a single
		// *SuspendedError naming every id that suspended.
		Dispatch(ctx context.Context, parentID string, calls ...Call) error

		// Children returns taskID's child batches as read-only views, in
		// dispatch order, for thread reconstruction.
		Children(taskID string) [][]ChildView

		// PreviousRoots walks the previous_unique_id chain starting at rootID
		// and returns every earlier root, oldest first. rootID itself is not
		// included.
		PreviousRoots(rootID string) []RootView

		// RecordLLMDebug appends a per-call LLM debug record to taskID's debug
		// entry. Analyst-style agents call this once per LLM request/stream
		// after it completes, so token/cost/latency accounting lands in the
		// log even though llmbridge itself is orchestrator-agnostic.
		RecordLLMDebug(taskID string, call convlog.LLMCallDebug)

		// EmitContent forwards one streamed content delta to the request's
		// on_content hook, if configured. streamID identifies the LLM call
		// distinct from any tool-call id.
		EmitContent(chunk, streamID string)
	}

	// Context bundles the reserved constructor arguments every agent factory
	// receives: the task's own id and a handle back into the orchestrator for
	// dispatching children. These are supplied by the framework and must never
	// be present in a task's user-facing Args (see StripReserved).
	Context struct {
		// UniqueID is this task's own id.
		UniqueID string
		// Orchestrator is the dispatch handle for creating child tasks.
		Orchestrator Dispatcher
	}

	// Agent is the polymorphic interface every registered agent/tool class
	// implements. The orchestrator calls Reduce (always, with the current
	// child batches) and then Run, at most once per request per task.
	Agent interface {
		// Reduce aggregates over the task's current child batches. It is called
		// before every Run and must be idempotent: a resumed task calls Reduce
		// again with the same-or-superset batch list.
		Reduce(ctx context.Context, batches [][]ChildView) error

		// Run executes the agent's logic for this turn. It returns a completed
		// Outcome, a suspended Outcome (awaiting the client), or an error that
		// fails the whole request.
		Run(ctx context.Context) (Outcome, error)
	}

	// ChildView is the read-only view of a child task's state an agent's
	// Reduce method observes: enough to decide whether to keep waiting, treat
	// an interrupted child as terminal, or fold a result into running state.
	ChildView struct {
		UniqueID string
		Agent    string
		Args     map[string]any
		Result   any // nil if the child is still pending
	}
)

// Completed returns the Outcome for a task that finished with result.
func Completed(result any) Outcome { return Outcome{Result: result} }

// Suspend returns the Outcome for a task awaiting client-side completion.
func Suspend() Outcome { return Outcome{Suspended: true} }

// reservedPrefix marks orchestrator-internal argument keys.
const reservedPrefix = "_"

// reservedNames are additional reserved keys beyond the underscore prefix.
// These are the names of the framework-supplied constructor parameters
// (Context.UniqueID, Context.Orchestrator); a caller supplying them explicitly
// in Call.Args is an error, not a silent strip.
var reservedNames = map[string]bool{
	"orchestrator": true,
	"_unique_id":   true,
}

// StripReserved returns a copy of args with every orchestrator-internal key
// removed (anything starting with "_"). Use this before handing args to an
// agent's Run or before serializing them into an LLM tool schema.
func StripReserved(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if strings.HasPrefix(k, reservedPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

// RejectReserved reports the reserved key names (if any) present verbatim in
// args that must never be caller-supplied ("orchestrator", "_unique_id").
// Other underscore-prefixed keys are permitted as caller-supplied
// orchestrator-internal bookkeeping (e.g. "_original_args") and are not
// flagged here; they are simply stripped later by StripReserved.
func RejectReserved(args map[string]any) []string {
	var bad []string
	for name := range reservedNames {
		if _, ok := args[name]; ok {
			bad = append(bad, name)
		}
	}
	return bad
}
