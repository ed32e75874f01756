// Package convlog defines the append-only conversation log: the single source
// of truth from which the in-memory task DAG is rebuilt on every request.
//
// The log never mutates or removes entries within a request. Each entry is one
// of three kinds (Task, TaskResult, TaskDebug), discriminated on the wire by
// the "_type" field. Internal linkage fields are always externalized under
// their underscore-prefixed alias so the wire shape matches what the
// front-end renderer and its tool-execution shim already expect.
package convlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryType discriminates the three kinds of log entries.
type EntryType string

const (
	// EntryTask marks an invocation record of an agent or tool.
	EntryTask EntryType = "task"
	// EntryTaskResult marks the completion of a task.
	EntryTaskResult EntryType = "task_result"
	// EntryTaskDebug marks per-task execution metrics.
	EntryTaskDebug EntryType = "task_debug"
)

type (
	// Entry is the interface implemented by every log entry kind. The log stores
	// Entry values directly; callers type-switch to reach kind-specific fields.
	Entry interface {
		// Type returns the discriminator written to the wire as "_type".
		Type() EntryType
	}

	// Task is one invocation record of an agent or tool.
	Task struct {
		// UniqueID is the opaque identifier for this task. Callers may supply it
		// (e.g., an LLM-issued tool-call id) or leave it empty to have the
		// orchestrator generate one.
		UniqueID string
		// ParentUniqueID is the id of the dispatching task, empty for roots.
		ParentUniqueID string
		// PreviousUniqueID links to the previous root task in this conversation,
		// forming a singly-linked list of roots across turns.
		PreviousUniqueID string
		// RunID groups tasks dispatched together in a single parallel batch.
		RunID string
		// Agent is the registered agent name.
		Agent string
		// Args is the argument mapping supplied to the agent. Keys starting with
		// "_" are orchestrator-internal and are stripped before the args are
		// handed to the agent or serialized into an LLM tool schema.
		Args map[string]any
		// CreatedAt is the entry creation time.
		CreatedAt time.Time
	}

	// TaskResult is the completion of a task.
	TaskResult struct {
		// TaskUniqueID identifies the task this result completes.
		TaskUniqueID string
		// Result is either a string or a JSON-compatible mapping; opaque to the
		// orchestrator.
		Result any
		// CreatedAt is the entry creation time.
		CreatedAt time.Time
	}

	// TaskDebug is per-task execution metrics.
	TaskDebug struct {
		// TaskUniqueID identifies the task these metrics describe.
		TaskUniqueID string
		// Duration is the task's wall-clock execution time in seconds.
		Duration float64
		// LLMDebug lists per-call metrics for every LLM invocation made while
		// executing this task.
		LLMDebug []LLMCallDebug
		// Extra carries the full request/response payloads for debugging. It is
		// stripped before the entry is persisted into a log diff returned over
		// the wire (see httpapi), but remains here for in-process inspection.
		Extra map[string]any
		// CreatedAt is the entry creation time.
		CreatedAt time.Time
	}

	// LLMCallDebug records metrics for a single LLM API call.
	LLMCallDebug struct {
		// Model is the provider model identifier used for the call.
		Model string
		// Duration is the call's wall-clock latency in seconds.
		Duration float64
		// PromptTokens is the number of input tokens consumed.
		PromptTokens int
		// CompletionTokens is the number of output tokens produced.
		CompletionTokens int
		// TotalTokens is the sum of prompt and completion tokens.
		TotalTokens int
		// Cost is the provider-reported (or estimated) cost in USD. Defaults to
		// zero when the provider does not report cost.
		Cost float64
		// FinishReason records why generation stopped.
		FinishReason string
		// ProviderCallID is the provider-issued identifier for this call, used to
		// correlate debug records with provider-side logs.
		ProviderCallID string
		// OverheadMS is the provider-reported connection/queueing overhead, in
		// milliseconds, outside of token generation time.
		OverheadMS float64
	}

	// Log is the ordered, append-only sequence of entries for a conversation.
	// A zero-value Log is ready to use.
	Log []Entry
)

// Type implements Entry.
func (Task) Type() EntryType { return EntryTask }

// Type implements Entry.
func (TaskResult) Type() EntryType { return EntryTaskResult }

// Type implements Entry.
func (TaskDebug) Type() EntryType { return EntryTaskDebug }

// Diff returns the suffix of the log starting at index. It is used to compute
// the log diff returned to callers: log[start:]. A negative or out-of-range
// start clamps to the nearest valid bound.
func (l Log) Diff(start int) Log {
	if start < 0 {
		start = 0
	}
	if start > len(l) {
		start = len(l)
	}
	out := make(Log, len(l)-start)
	copy(out, l[start:])
	return out
}

// wireEntry is the on-the-wire shape shared by all entry kinds. Fields unused
// by a given kind are simply omitted (encoding/json drops zero-value
// omitempty fields).
type wireEntry struct {
	Type             EntryType        `json:"_type"`
	UniqueID         string           `json:"unique_id,omitempty"`
	ParentUniqueID   *string          `json:"_parent_unique_id,omitempty"`
	PreviousUniqueID *string          `json:"_previous_unique_id,omitempty"`
	RunID            string           `json:"_run_id,omitempty"`
	Agent            string           `json:"agent,omitempty"`
	Args             map[string]any   `json:"args,omitempty"`
	TaskUniqueID     string           `json:"_task_unique_id,omitempty"`
	Result           any              `json:"result,omitempty"`
	Duration         float64          `json:"duration,omitempty"`
	LLMDebug         []LLMCallDebug   `json:"llmDebug,omitempty"`
	Extra            map[string]any   `json:"extra,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// MarshalJSON encodes the log using the stable external field aliases
// documented in the wire protocol, preserving entry order.
func (l Log) MarshalJSON() ([]byte, error) {
	out := make([]wireEntry, 0, len(l))
	for _, e := range l {
		w, err := toWire(e)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a log, round-tripping every entry kind without loss.
// An entry with an unrecognized "_type" is a decode error: it is rejected
// with the offending index rather than silently dropped or coerced, since a
// log is the sole source of truth and guessing at unknown entries would risk
// reconstructing the wrong task tree.
func (l *Log) UnmarshalJSON(data []byte) error {
	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(Log, 0, len(wire))
	for i, w := range wire {
		e, err := fromWire(w)
		if err != nil {
			return fmt.Errorf("convlog: decode entry %d: %w", i, err)
		}
		out = append(out, e)
	}
	*l = out
	return nil
}

func toWire(e Entry) (wireEntry, error) {
	switch v := e.(type) {
	case Task:
		w := wireEntry{
			Type:      EntryTask,
			UniqueID:  v.UniqueID,
			RunID:     v.RunID,
			Agent:     v.Agent,
			Args:      v.Args,
			CreatedAt: v.CreatedAt,
		}
		if v.ParentUniqueID != "" {
			w.ParentUniqueID = &v.ParentUniqueID
		}
		if v.PreviousUniqueID != "" {
			w.PreviousUniqueID = &v.PreviousUniqueID
		}
		return w, nil
	case TaskResult:
		return wireEntry{
			Type:         EntryTaskResult,
			TaskUniqueID: v.TaskUniqueID,
			Result:       v.Result,
			CreatedAt:    v.CreatedAt,
		}, nil
	case TaskDebug:
		return wireEntry{
			Type:         EntryTaskDebug,
			TaskUniqueID: v.TaskUniqueID,
			Duration:     v.Duration,
			LLMDebug:     v.LLMDebug,
			Extra:        v.Extra,
			CreatedAt:    v.CreatedAt,
		}, nil
	default:
		return wireEntry{}, fmt.Errorf("convlog: unknown entry type %T", e)
	}
}

func fromWire(w wireEntry) (Entry, error) {
	switch w.Type {
	case EntryTask:
		t := Task{
			UniqueID:  w.UniqueID,
			RunID:     w.RunID,
			Agent:     w.Agent,
			Args:      w.Args,
			CreatedAt: w.CreatedAt,
		}
		if w.ParentUniqueID != nil {
			t.ParentUniqueID = *w.ParentUniqueID
		}
		if w.PreviousUniqueID != nil {
			t.PreviousUniqueID = *w.PreviousUniqueID
		}
		return t, nil
	case EntryTaskResult:
		return TaskResult{
			TaskUniqueID: w.TaskUniqueID,
			Result:       w.Result,
			CreatedAt:    w.CreatedAt,
		}, nil
	case EntryTaskDebug:
		return TaskDebug{
			TaskUniqueID: w.TaskUniqueID,
			Duration:     w.Duration,
			LLMDebug:     w.LLMDebug,
			Extra:        w.Extra,
			CreatedAt:    w.CreatedAt,
		}, nil
	default:
		return nil, fmt.Errorf("convlog: unrecognized _type %q", w.Type)
	}
}
