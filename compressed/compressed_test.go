package compressed_test

import (
	"testing"

	"github.com/minusxai/minusx/compressed"
	"github.com/minusxai/minusx/convlog"
)

func TestRebuildGroupsChildrenByRunID(t *testing.T) {
	log := convlog.Log{
		convlog.Task{UniqueID: "root", Agent: "ReportAgent"},
		convlog.Task{UniqueID: "c1", ParentUniqueID: "root", RunID: "run-1", Agent: "AnalystAgent"},
		convlog.Task{UniqueID: "c2", ParentUniqueID: "root", RunID: "run-1", Agent: "AnalystAgent"},
		convlog.Task{UniqueID: "c3", ParentUniqueID: "root", RunID: "run-2", Agent: "AnalystAgent"},
	}

	st := compressed.Rebuild(log)
	root := st.Tasks["root"]
	if root == nil {
		t.Fatalf("want root task indexed")
	}
	if len(root.ChildUniqueIDs) != 2 {
		t.Fatalf("want 2 batches (one per run_id), got %d", len(root.ChildUniqueIDs))
	}
	if got := root.ChildUniqueIDs[0].TaskIDs; len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("want first batch [c1 c2] in insertion order, got %v", got)
	}
	if got := root.ChildUniqueIDs[1].TaskIDs; len(got) != 1 || got[0] != "c3" {
		t.Fatalf("want second batch [c3], got %v", got)
	}
}

func TestRebuildIgnoresMalformedEntries(t *testing.T) {
	log := convlog.Log{
		convlog.Task{UniqueID: "root"},
		convlog.TaskResult{TaskUniqueID: "unknown-task", Result: "orphaned"},
		convlog.TaskDebug{TaskUniqueID: "also-unknown", Duration: 1},
	}

	st := compressed.Rebuild(log)
	if len(st.Tasks) != 1 {
		t.Fatalf("want exactly 1 task indexed, got %d", len(st.Tasks))
	}
	if st.Tasks["root"].Completed() {
		t.Fatalf("want root still pending, orphaned result must not attach")
	}
}

func TestPendingLeafSemantics(t *testing.T) {
	log := convlog.Log{
		convlog.Task{UniqueID: "root"},
		convlog.Task{UniqueID: "child", ParentUniqueID: "root", RunID: "run-1"},
	}
	st := compressed.Rebuild(log)

	if st.Tasks["root"].PendingLeaf(st) {
		t.Fatalf("root has a pending child, must not be a pending leaf")
	}
	if !st.Tasks["child"].PendingLeaf(st) {
		t.Fatalf("childless pending task must be a pending leaf")
	}

	log = append(log, convlog.TaskResult{TaskUniqueID: "child", Result: "done"})
	st = compressed.Rebuild(log)
	if !st.Tasks["root"].PendingLeaf(st) {
		t.Fatalf("root's only child completed, root must now be a pending leaf")
	}
	if st.Tasks["child"].PendingLeaf(st) {
		t.Fatalf("completed child must not be a pending leaf")
	}
}

func TestPendingLeavesScopedToRoot(t *testing.T) {
	log := convlog.Log{
		convlog.Task{UniqueID: "root-1"},
		convlog.Task{UniqueID: "root-1-child", ParentUniqueID: "root-1", RunID: "run-1"},
		convlog.Task{UniqueID: "root-2", PreviousUniqueID: "root-1"},
		convlog.Task{UniqueID: "root-2-child", ParentUniqueID: "root-2", RunID: "run-2"},
	}
	st := compressed.Rebuild(log)

	leaves := st.PendingLeaves("root-2")
	if len(leaves) != 1 || leaves[0].UniqueID != "root-2-child" {
		t.Fatalf("want only root-2's pending leaf, got %v", leaves)
	}
}

func TestLatestRootPicksLastRoot(t *testing.T) {
	log := convlog.Log{
		convlog.Task{UniqueID: "root-1"},
		convlog.Task{UniqueID: "root-2", PreviousUniqueID: "root-1"},
	}
	st := compressed.Rebuild(log)

	id, task := st.LatestRoot()
	if id != "root-2" || task == nil {
		t.Fatalf("want latest root %q, got %q (%v)", "root-2", id, task)
	}

	roots := st.Roots()
	if len(roots) != 2 || roots[0].UniqueID != "root-1" || roots[1].UniqueID != "root-2" {
		t.Fatalf("want both roots oldest-first, got %v", roots)
	}
}

func TestCloneIsDefensive(t *testing.T) {
	log := convlog.Log{
		convlog.Task{UniqueID: "root", Args: map[string]any{"goal": "x"}},
		convlog.Task{UniqueID: "child", ParentUniqueID: "root", RunID: "run-1"},
	}
	st := compressed.Rebuild(log)

	clone := st.Tasks["root"].Clone()
	clone.Args["goal"] = "mutated"
	clone.ChildUniqueIDs[0].TaskIDs[0] = "tampered"

	if st.Tasks["root"].Args["goal"] != "x" {
		t.Fatalf("mutating a clone's args must not affect the original")
	}
	if st.Tasks["root"].ChildUniqueIDs[0].TaskIDs[0] != "child" {
		t.Fatalf("mutating a clone's child ids must not affect the original")
	}
}

func TestChildrenSkipsUnknownIDs(t *testing.T) {
	log := convlog.Log{
		convlog.Task{UniqueID: "root"},
		convlog.Task{UniqueID: "child", ParentUniqueID: "root", RunID: "run-1"},
	}
	st := compressed.Rebuild(log)

	batches := st.Children("root")
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0].UniqueID != "child" {
		t.Fatalf("want one batch with the single known child, got %v", batches)
	}

	if got := st.Children("nonexistent"); got != nil {
		t.Fatalf("want nil batches for unknown id, got %v", got)
	}
}
