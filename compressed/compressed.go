// Package compressed rebuilds the in-memory task DAG from a conversation log.
//
// Compressed state is the arena the orchestrator operates against during a
// single request: tasks indexed by id, with child links expressed as id lists
// grouped by run_id rather than pointers. Because links are ids, not pointers,
// rebuilding from a log is trivial, safe, and — critically — deterministic: the
// same log always rebuilds to the same state, and a malformed or truncated log
// never panics the rebuilder.
package compressed

import (
	"github.com/minusxai/minusx/convlog"
)

type (
	// Task is the rebuilt, mutable view of a convlog.Task plus derived linkage.
	Task struct {
		convlog.Task

		// ChildUniqueIDs lists dispatch batches in order; every id within a batch
		// shares a run_id and this task as parent.
		ChildUniqueIDs []Batch

		// Result is the latest assigned result, or nil if the task is pending.
		Result any

		// Debug is the last-assigned debug record for this task, or nil.
		Debug *convlog.TaskDebug
	}

	// Batch is an ordered group of child ids that share a single run_id.
	Batch struct {
		RunID   string
		TaskIDs []string
	}

	// State is the rebuilt compressed view of a conversation log: tasks indexed
	// by id, plus the index at which the current request's diff begins.
	State struct {
		// Tasks indexes every task encountered in the log by UniqueID.
		Tasks map[string]*Task

		// Order preserves the original dispatch order of task ids, which matters
		// for deterministic iteration (e.g., locating the latest root).
		Order []string

		// LogStartIndex is len(log) at rebuild time, i.e. the index at which this
		// request's log diff begins: log[LogStartIndex:].
		LogStartIndex int
	}
)

// Rebuild walks the log in order and reconstructs the compressed task DAG.
//
// Malformed or out-of-order entries (a TaskResult referencing an unknown task,
// a TaskDebug for a task never seen) are ignored individually; Rebuild never
// returns an error and never panics, by design (see package doc).
func Rebuild(log convlog.Log) *State {
	st := &State{
		Tasks:         make(map[string]*Task, len(log)),
		LogStartIndex: len(log),
	}

	for _, entry := range log {
		switch e := entry.(type) {
		case convlog.Task:
			if _, exists := st.Tasks[e.UniqueID]; exists {
				// A replayed Task entry for an id we've already seen is ignored;
				// the first occurrence wins for identity purposes.
				continue
			}
			st.Tasks[e.UniqueID] = &Task{Task: e}
			st.Order = append(st.Order, e.UniqueID)

		case convlog.TaskResult:
			t, ok := st.Tasks[e.TaskUniqueID]
			if !ok {
				continue
			}
			result := e.Result
			t.Result = result

		case convlog.TaskDebug:
			t, ok := st.Tasks[e.TaskUniqueID]
			if !ok {
				continue
			}
			debug := e
			t.Debug = &debug
		}
	}

	// Second pass: link children to parents, grouped by run_id in insertion order.
	for _, id := range st.Order {
		t := st.Tasks[id]
		if t.ParentUniqueID == "" {
			continue
		}
		parent, ok := st.Tasks[t.ParentUniqueID]
		if !ok {
			continue
		}
		parent.appendChild(t.RunID, id)
	}

	return st
}

func (t *Task) appendChild(runID, childID string) {
	for i := range t.ChildUniqueIDs {
		if t.ChildUniqueIDs[i].RunID == runID {
			t.ChildUniqueIDs[i].TaskIDs = append(t.ChildUniqueIDs[i].TaskIDs, childID)
			return
		}
	}
	t.ChildUniqueIDs = append(t.ChildUniqueIDs, Batch{RunID: runID, TaskIDs: []string{childID}})
}

// Completed reports whether the task has an assigned result.
func (t *Task) Completed() bool { return t.Result != nil }

// PendingLeaf reports whether the task is pending (no result) and either has
// no children or every one of its children is completed.
func (t *Task) PendingLeaf(st *State) bool {
	if t.Completed() {
		return false
	}
	for _, batch := range t.ChildUniqueIDs {
		for _, id := range batch.TaskIDs {
			child, ok := st.Tasks[id]
			if !ok || !child.Completed() {
				return false
			}
		}
	}
	return true
}

// PendingLeaves returns every pending leaf task reachable from root, walking
// only tasks dispatched from (or equal to) root so an earlier turn's
// now-irrelevant pending tasks never leak into the current turn's view.
func (st *State) PendingLeaves(rootID string) []*Task {
	var out []*Task
	st.walk(rootID, func(t *Task) {
		if t.PendingLeaf(st) {
			out = append(out, t)
		}
	})
	return out
}

// walk visits id and every descendant, depth-first, in dispatch order.
func (st *State) walk(id string, visit func(*Task)) {
	t, ok := st.Tasks[id]
	if !ok {
		return
	}
	visit(t)
	for _, batch := range t.ChildUniqueIDs {
		for _, childID := range batch.TaskIDs {
			st.walk(childID, visit)
		}
	}
}

// Children returns the ordered child batches for id, each inner slice holding
// the rebuilt Task values for one run_id group in dispatch order.
func (st *State) Children(id string) [][]*Task {
	t, ok := st.Tasks[id]
	if !ok {
		return nil
	}
	out := make([][]*Task, 0, len(t.ChildUniqueIDs))
	for _, batch := range t.ChildUniqueIDs {
		group := make([]*Task, 0, len(batch.TaskIDs))
		for _, childID := range batch.TaskIDs {
			if ct, ok := st.Tasks[childID]; ok {
				group = append(group, ct)
			}
		}
		out = append(out, group)
	}
	return out
}

// LatestRoot returns the most recently dispatched root task (ParentUniqueID
// == "") and its id, or ("", nil) if the log contains no roots.
func (st *State) LatestRoot() (string, *Task) {
	var id string
	var root *Task
	for _, tid := range st.Order {
		t := st.Tasks[tid]
		if t.ParentUniqueID == "" {
			id = tid
			root = t
		}
	}
	return id, root
}

// Roots returns every root task in dispatch order, oldest first. Combined
// with Task.PreviousUniqueID this lets callers walk the full cross-turn
// history of a conversation.
func (st *State) Roots() []*Task {
	var out []*Task
	for _, tid := range st.Order {
		t := st.Tasks[tid]
		if t.ParentUniqueID == "" {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a defensive copy of t suitable for handing to an agent, so the
// agent cannot mutate another agent's in-flight view of the same task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Args != nil {
		cp.Args = make(map[string]any, len(t.Args))
		for k, v := range t.Args {
			cp.Args[k] = v
		}
	}
	if t.ChildUniqueIDs != nil {
		cp.ChildUniqueIDs = make([]Batch, len(t.ChildUniqueIDs))
		for i, b := range t.ChildUniqueIDs {
			ids := make([]string, len(b.TaskIDs))
			copy(ids, b.TaskIDs)
			cp.ChildUniqueIDs[i] = Batch{RunID: b.RunID, TaskIDs: ids}
		}
	}
	return &cp
}
