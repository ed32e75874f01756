// Package orchestrator implements the hybrid scheduler described in the
// system overview: it schedules agent runs, handles parallel dispatch,
// reduce-after-children, user-input suspension, resume of pending leaves
// after client-returned completions, cancellation/interrupt, and
// previous-root linkage across turns.
//
// An Orchestrator is single-request scoped: it holds no state between
// requests. It is constructed fresh from the caller's log on every request,
// mutates an in-memory copy of that log plus the rebuilt compressed state,
// and exposes the new entries as a log diff. The client owns the log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/compressed"
	"github.com/minusxai/minusx/convlog"
)

type (
	// Hooks are optional streaming callbacks the orchestrator invokes at state
	// transitions. Implementations must be non-blocking (e.g., enqueue to a
	// buffered channel) since they are called from the orchestrator's request
	// goroutine and from concurrent task goroutines.
	Hooks struct {
		// OnToolCreated fires once a new task's Task entry has been appended to
		// the log, before the task begins executing. Always fires before
		// OnToolCompleted for the same task.
		OnToolCreated func(t convlog.Task)
		// OnToolCompleted fires once a task's result has been recorded, whether
		// it completed normally or was assigned the interrupted/error sentinel.
		OnToolCompleted func(t convlog.Task, result any)
		// OnContent fires for every non-empty LLM content delta. streamID
		// identifies the LLM call distinct from any tool-call id.
		OnContent func(chunk string, streamID string)
	}

	// Orchestrator runs one request's worth of scheduling against a
	// conversation log. It is not safe to reuse across requests; construct a
	// new one per request via New.
	Orchestrator struct {
		mu       sync.Mutex
		registry *agent.Registry
		log      convlog.Log
		state    *compressed.State
		hooks    Hooks
		idgen    func() string
		now      func() time.Time

		resultWritten map[string]bool
	}

	// SuspendedError aggregates every task id awaiting a client-supplied
	// completion after a Dispatch or Resume call settles. It is not a failure:
	// callers (the Conversation HTTP API) catch it and return the current log
	// diff alongside the derived pending_tool_calls view.
	SuspendedError struct {
		TaskIDs []string
	}
)

// Error implements error.
func (e *SuspendedError) Error() string {
	return fmt.Sprintf("orchestrator: suspended awaiting input for %d task(s): %s", len(e.TaskIDs), strings.Join(e.TaskIDs, ", "))
}

// AsSuspended reports whether err is (or wraps) a *SuspendedError.
func AsSuspended(err error) (*SuspendedError, bool) {
	var se *SuspendedError
	ok := errors.As(err, &se)
	return se, ok
}

// merge combines two suspension sets, preserving first-seen order.
func (e *SuspendedError) merge(other *SuspendedError) *SuspendedError {
	if e == nil {
		return other
	}
	if other == nil {
		return e
	}
	e.TaskIDs = append(e.TaskIDs, other.TaskIDs...)
	return e
}

// New constructs an Orchestrator scoped to log, which is rebuilt once into
// compressed state. hooks may be the zero value (no callbacks). idgen
// generates new task unique ids when a Call does not pin one; it defaults to
// a process-wide random generator (see NewID) when nil.
func New(registry *agent.Registry, log convlog.Log, hooks Hooks, idgen func() string) *Orchestrator {
	if idgen == nil {
		idgen = NewID
	}
	// Defensive copy: the orchestrator appends to its own slice and must never
	// mutate the caller's backing array.
	owned := make(convlog.Log, len(log))
	copy(owned, log)

	return &Orchestrator{
		registry:      registry,
		log:           owned,
		state:         compressed.Rebuild(owned),
		hooks:         hooks,
		idgen:         idgen,
		now:           time.Now,
		resultWritten: make(map[string]bool),
	}
}

// Log returns the full, current log (pre-request entries plus everything
// appended so far this request).
func (o *Orchestrator) Log() convlog.Log {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(convlog.Log, len(o.log))
	copy(out, o.log)
	return out
}

// LogDiff returns the entries appended to the log during this request:
// log[log_start_index:], per the testable property that a diff contains only
// entries added by the current request.
func (o *Orchestrator) LogDiff() convlog.Log {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.log.Diff(o.state.LogStartIndex)
}

// State returns the rebuilt compressed state for read-only inspection (used
// by the Conversation HTTP API to derive pending/completed tool call views).
func (o *Orchestrator) State() *compressed.State {
	return o.state
}

// Run starts a new root task for call, linking it to previousRootID (the id
// of the most recent prior root in this conversation, or "" on the first
// turn). It is a thin wrapper over Dispatch with parentID="".
func (o *Orchestrator) Run(ctx context.Context, call agent.Call, previousRootID string) error {
	call.PreviousUniqueID = previousRootID
	return o.Dispatch(ctx, "", call)
}

// Resume advances every pending leaf of the latest root, and keeps advancing
// newly-promoted leaves until a fixed point is reached. Each leaf is
// instantiated, reduced against its current child batches, and run again;
// this is how a task that suspended in an earlier request picks back up once
// the client supplies the awaited completion(s).
//
// A leaf settling in-request can promote its parent to a pending leaf itself
// (every sibling done, parent still awaiting a result) — e.g. a ReportAgent
// whose only child, a nested AnalystAgent, completes synchronously as part of
// this same Resume call. Per the recursive parent-propagation this models
// (SPEC_FULL.md §4.4 operation 2(e)), Resume re-examines the tree after every
// round instead of computing PendingLeaves once: it tracks which task ids it
// has already attempted this request and keeps looping while fresh,
// unattempted pending leaves appear. Every task is still run at most once per
// request, since ids are never revisited once attempted.
//
// Resume aggregates suspensions exactly like Dispatch: if every advanceable
// leaf completes, it returns nil; if any remain (or newly) suspended, it
// returns a *SuspendedError naming them; any other error fails the request.
func (o *Orchestrator) Resume(ctx context.Context) error {
	rootID, _ := o.state.LatestRoot()
	if rootID == "" {
		return nil
	}

	attempted := make(map[string]bool)
	var suspended *SuspendedError
	for {
		leaves := o.state.PendingLeaves(rootID)
		var fresh []string
		for _, l := range leaves {
			if !attempted[l.UniqueID] {
				fresh = append(fresh, l.UniqueID)
			}
		}
		if len(fresh) == 0 {
			break
		}
		for _, id := range fresh {
			attempted[id] = true
		}

		err := o.runMany(ctx, fresh)
		if err == nil {
			continue
		}
		if se, ok := AsSuspended(err); ok {
			suspended = suspended.merge(se)
			continue
		}
		return err
	}

	if suspended != nil {
		return suspended
	}
	return nil
}

// Dispatch implements agent.Dispatcher. It creates one task per call, all
// sharing a single new run_id, appends every sibling Task entry before any of
// them begins executing (the log encodes parent→children order even though
// execution itself is concurrent), then runs each concurrently and
// aggregates the outcome.
func (o *Orchestrator) Dispatch(ctx context.Context, parentID string, calls ...agent.Call) error {
	if len(calls) == 0 {
		return nil
	}

	runID := o.idgen()
	ids := make([]string, len(calls))

	o.mu.Lock()
	for i, c := range calls {
		if bad := agent.RejectReserved(c.Args); len(bad) > 0 {
			o.mu.Unlock()
			return fmt.Errorf("orchestrator: reserved argument key(s) supplied: %s", strings.Join(bad, ", "))
		}
		id := c.UniqueID
		if id == "" {
			id = o.idgen()
		}
		ids[i] = id

		t := convlog.Task{
			UniqueID:         id,
			ParentUniqueID:   parentID,
			PreviousUniqueID: c.PreviousUniqueID,
			RunID:            runID,
			Agent:            c.Agent,
			Args:             c.Args,
			CreatedAt:        o.now(),
		}
		if parentID != "" {
			// Only a root links to the previous turn's root.
			t.PreviousUniqueID = ""
		}
		o.appendTaskLocked(t)
	}
	o.mu.Unlock()

	for i, id := range ids {
		o.fireCreated(id)
		if calls[i].Error != "" {
			o.recordResult(id, sentinelError(calls[i].Error))
		}
	}

	toRun := make([]string, 0, len(ids))
	for i, id := range ids {
		if calls[i].Error == "" {
			toRun = append(toRun, id)
		}
	}
	return o.runMany(ctx, toRun)
}

// sentinelError renders a pre-dispatch error (e.g. invalid tool-call JSON)
// the same way the thread translator's analyst loop will read it back: a
// plain string result, since the orchestrator treats results as opaque.
func sentinelError(msg string) string { return msg }

// runMany executes runTask for every id concurrently and aggregates the
// results: the first non-suspension error wins (deterministically, by id
// order), otherwise every suspension is merged into one SuspendedError.
func (o *Orchestrator) runMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = o.runTask(ctx, id)
		}(i, id)
	}
	wg.Wait()

	var suspended *SuspendedError
	for _, err := range errs {
		if err == nil {
			continue
		}
		if se, ok := AsSuspended(err); ok {
			suspended = suspended.merge(se)
			continue
		}
		return err
	}
	if suspended != nil {
		return suspended
	}
	return nil
}

// runTask performs the reduce()+run() lifecycle for exactly one task. It is
// called at most once per task per request, whether the task is brand new
// (from Dispatch) or resuming after a prior suspension (from Resume).
func (o *Orchestrator) runTask(ctx context.Context, taskID string) error {
	o.mu.Lock()
	t, ok := o.state.Tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("orchestrator: unknown task %q", taskID)
	}
	if t.Completed() {
		return nil
	}

	reg, ok := o.registry.Lookup(t.Agent)
	if !ok {
		return fmt.Errorf("orchestrator: unregistered agent %q (task %s)", t.Agent, taskID)
	}

	normalized, missing := reg.NormalizeArgs(t.Args)
	if len(missing) > 0 {
		err := &agent.MissingRequiredError{Agent: t.Agent, Params: missing}
		o.recordResult(taskID, err.Sentinel())
		return nil
	}

	started := o.now()
	ag, err := reg.New(agent.Context{UniqueID: taskID, Orchestrator: o}, agent.StripReserved(normalized))
	if err != nil {
		return fmt.Errorf("orchestrator: construct agent %q: %w", t.Agent, err)
	}

	if err := ag.Reduce(ctx, o.Children(taskID)); err != nil {
		return fmt.Errorf("orchestrator: reduce %q (task %s): %w", t.Agent, taskID, err)
	}

	outcome, err := ag.Run(ctx)
	duration := o.now().Sub(started).Seconds()
	o.recordDebug(taskID, duration)
	if err != nil {
		return fmt.Errorf("orchestrator: run %q (task %s): %w", t.Agent, taskID, err)
	}

	if outcome.Suspended {
		// Report the pending leaves under this task (the tool calls actually
		// awaiting the client), not the agent that is waiting on them.
		o.mu.Lock()
		leaves := o.state.PendingLeaves(taskID)
		o.mu.Unlock()
		ids := make([]string, 0, len(leaves))
		for _, l := range leaves {
			ids = append(ids, l.UniqueID)
		}
		if len(ids) == 0 {
			ids = []string{taskID}
		}
		return &SuspendedError{TaskIDs: ids}
	}
	o.recordResult(taskID, outcome.Result)
	return nil
}

// PendingLeafIDs returns the unique ids of every pending leaf of the latest
// root, in dispatch order. The Conversation HTTP API uses this before
// calling Dispatch/Resume to match client-supplied completions and to
// compute interrupts.
func (o *Orchestrator) PendingLeafIDs() []string {
	rootID, _ := o.state.LatestRoot()
	if rootID == "" {
		return nil
	}
	leaves := o.state.PendingLeaves(rootID)
	ids := make([]string, len(leaves))
	for i, l := range leaves {
		ids[i] = l.UniqueID
	}
	return ids
}

// CompleteToolCall records result for taskID if it currently names a pending
// leaf of the latest root; it reports whether the match was found. Intended
// for applying client-supplied tool-call completions before Resume runs.
func (o *Orchestrator) CompleteToolCall(taskID string, result any) bool {
	for _, id := range o.PendingLeafIDs() {
		if id == taskID {
			o.recordResult(taskID, result)
			return true
		}
	}
	return false
}

// InterruptPending assigns the "<Interrupted />" sentinel result to every
// currently pending leaf of the latest root and returns their ids. Used by
// chat/close, and by chat/chat-stream whenever a new user_message arrives
// while tasks are still pending.
func (o *Orchestrator) InterruptPending() []string {
	ids := o.PendingLeafIDs()
	for _, id := range ids {
		o.recordResult(id, "<Interrupted />")
	}
	return ids
}

// Children implements agent.Dispatcher.
func (o *Orchestrator) Children(taskID string) [][]agent.ChildView {
	o.mu.Lock()
	defer o.mu.Unlock()
	groups := o.state.Children(taskID)
	out := make([][]agent.ChildView, len(groups))
	for i, group := range groups {
		views := make([]agent.ChildView, len(group))
		for j, t := range group {
			views[j] = toChildView(t)
		}
		out[i] = views
	}
	return out
}

// PreviousRoots implements agent.Dispatcher.
func (o *Orchestrator) PreviousRoots(rootID string) []agent.RootView {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []agent.RootView
	cur := rootID
	seen := make(map[string]bool)
	for {
		t, ok := o.state.Tasks[cur]
		if !ok || t.PreviousUniqueID == "" || seen[t.PreviousUniqueID] {
			break
		}
		seen[t.PreviousUniqueID] = true
		prev, ok := o.state.Tasks[t.PreviousUniqueID]
		if !ok {
			break
		}
		out = append(out, agent.RootView{UniqueID: prev.UniqueID, Args: prev.Args, Result: prev.Result})
		cur = prev.UniqueID
	}
	// Reverse to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func toChildView(t *compressed.Task) agent.ChildView {
	return agent.ChildView{UniqueID: t.UniqueID, Agent: t.Agent, Args: t.Args, Result: t.Result}
}

// appendTaskLocked appends a Task entry and indexes it into compressed state.
// Callers must hold o.mu.
func (o *Orchestrator) appendTaskLocked(t convlog.Task) {
	o.log = append(o.log, t)
	ct := &compressed.Task{Task: t}
	o.state.Tasks[t.UniqueID] = ct
	o.state.Order = append(o.state.Order, t.UniqueID)
	if t.ParentUniqueID != "" {
		if parent, ok := o.state.Tasks[t.ParentUniqueID]; ok {
			appendChildLocked(parent, t.RunID, t.UniqueID)
		}
	}
}

func appendChildLocked(parent *compressed.Task, runID, childID string) {
	for i := range parent.ChildUniqueIDs {
		if parent.ChildUniqueIDs[i].RunID == runID {
			parent.ChildUniqueIDs[i].TaskIDs = append(parent.ChildUniqueIDs[i].TaskIDs, childID)
			return
		}
	}
	parent.ChildUniqueIDs = append(parent.ChildUniqueIDs, compressed.Batch{RunID: runID, TaskIDs: []string{childID}})
}

// recordResult appends a TaskResult entry and updates compressed state. It
// enforces invariant 2 (at most one TaskResult write per task per request):
// a second attempt within the same request is a programming error and panics
// rather than silently producing a divergent log and state.
func (o *Orchestrator) recordResult(taskID string, result any) {
	o.mu.Lock()
	if o.resultWritten[taskID] {
		o.mu.Unlock()
		panic(fmt.Sprintf("orchestrator: task %q already has a result this request", taskID))
	}
	o.resultWritten[taskID] = true
	o.log = append(o.log, convlog.TaskResult{TaskUniqueID: taskID, Result: result, CreatedAt: o.now()})
	if t, ok := o.state.Tasks[taskID]; ok {
		t.Result = result
	}
	o.mu.Unlock()

	o.fireCompleted(taskID, result)
}

// recordDebug appends a TaskDebug entry summarizing this task's own
// execution time. LLM-level debug entries are appended separately by the
// agent that made the LLM calls, via RecordLLMDebug.
func (o *Orchestrator) recordDebug(taskID string, duration float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := convlog.TaskDebug{TaskUniqueID: taskID, Duration: duration, CreatedAt: o.now()}
	o.log = append(o.log, d)
	if t, ok := o.state.Tasks[taskID]; ok {
		t.Debug = &d
	}
}

// RecordLLMDebug appends a per-call LLM debug record to taskID's debug entry,
// creating one if this is the first LLM call made while executing taskID.
// Analyst agents call this after every provider request/stream completes.
func (o *Orchestrator) RecordLLMDebug(taskID string, call convlog.LLMCallDebug) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := convlog.TaskDebug{TaskUniqueID: taskID, CreatedAt: o.now()}
	if t, ok := o.state.Tasks[taskID]; ok && t.Debug != nil {
		d = *t.Debug
	}
	d.LLMDebug = append(d.LLMDebug, call)
	o.log = append(o.log, d)
	if t, ok := o.state.Tasks[taskID]; ok {
		t.Debug = &d
	}
}

func (o *Orchestrator) fireCreated(taskID string) {
	if o.hooks.OnToolCreated == nil {
		return
	}
	o.mu.Lock()
	t, ok := o.state.Tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return
	}
	o.hooks.OnToolCreated(t.Task)
}

func (o *Orchestrator) fireCompleted(taskID string, result any) {
	if o.hooks.OnToolCompleted == nil {
		return
	}
	o.mu.Lock()
	t, ok := o.state.Tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return
	}
	o.hooks.OnToolCompleted(t.Task, result)
}

// EmitContent forwards a streamed content delta to the OnContent hook, if
// configured. Analyst agents call this for every non-empty text delta their
// streaming LLM calls receive.
func (o *Orchestrator) EmitContent(chunk, streamID string) {
	if o.hooks.OnContent == nil || chunk == "" {
		return
	}
	o.hooks.OnContent(chunk, streamID)
}
