package agent_test

import (
	"context"
	"testing"

	"github.com/minusxai/minusx/agent"
)

func dummyRegistration(name string) agent.Registration {
	return agent.Registration{
		Name: name,
		New: func(agent.Context, map[string]any) (agent.Agent, error) {
			return agent.NewPresentFinalAnswer().New(agent.Context{}, nil)
		},
	}
}

func TestRegistryRejectsMissingNameOrFactory(t *testing.T) {
	reg := agent.NewRegistry()
	if err := reg.Register(agent.Registration{New: func(agent.Context, map[string]any) (agent.Agent, error) { return nil, nil }}); err == nil {
		t.Fatalf("want error for missing Name")
	}
	if err := reg.Register(agent.Registration{Name: "X"}); err == nil {
		t.Fatalf("want error for missing New factory")
	}
}

func TestRegistryRejectsDoubleRegistration(t *testing.T) {
	reg := agent.NewRegistry()
	if err := reg.Register(dummyRegistration("Dup")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(dummyRegistration("Dup")); err == nil {
		t.Fatalf("want error registering %q twice", "Dup")
	}
}

func TestRegistryMustRegisterPanicsOnConflict(t *testing.T) {
	reg := agent.NewRegistry()
	reg.MustRegister(dummyRegistration("Dup"))

	defer func() {
		if recover() == nil {
			t.Fatalf("want MustRegister to panic on a duplicate name")
		}
	}()
	reg.MustRegister(dummyRegistration("Dup"))
}

func TestRegistryLookupAndNamesSorted(t *testing.T) {
	reg := agent.NewRegistry()
	reg.MustRegister(dummyRegistration("Zeta"))
	reg.MustRegister(dummyRegistration("Alpha"))

	if _, ok := reg.Lookup("Zeta"); !ok {
		t.Fatalf("want Zeta registered")
	}
	if _, ok := reg.Lookup("Missing"); ok {
		t.Fatalf("want Missing unregistered")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "Alpha" || names[1] != "Zeta" {
		t.Fatalf("want sorted names [Alpha Zeta], got %v", names)
	}

	all := reg.All()
	if len(all) != 2 || all[0].Name != "Alpha" || all[1].Name != "Zeta" {
		t.Fatalf("want All() in Names() order, got %v", all)
	}
}

func TestNormalizeArgsFillsDefaultsAndReportsMissing(t *testing.T) {
	reg := agent.Registration{
		Params: []agent.ParamSpec{
			{Name: "connection_id", Type: agent.ParamString, Required: true},
			{Name: "limit", Type: agent.ParamNumber, Default: float64(10)},
		},
	}

	out, missing := reg.NormalizeArgs(map[string]any{})
	if len(missing) != 1 || missing[0] != "connection_id" {
		t.Fatalf("want missing [connection_id], got %v", missing)
	}
	if out["limit"] != float64(10) {
		t.Fatalf("want default applied for limit, got %v", out["limit"])
	}

	out, missing = reg.NormalizeArgs(map[string]any{"connection_id": "main", "limit": float64(5)})
	if len(missing) != 0 {
		t.Fatalf("want no missing params, got %v", missing)
	}
	if out["limit"] != float64(5) {
		t.Fatalf("want caller-supplied limit preserved, got %v", out["limit"])
	}
}

func TestNormalizeArgsNeverMutatesInput(t *testing.T) {
	reg := agent.Registration{Params: []agent.ParamSpec{{Name: "x", Default: "default"}}}
	in := map[string]any{}
	reg.NormalizeArgs(in)
	if _, present := in["x"]; present {
		t.Fatalf("want NormalizeArgs to leave the input map untouched")
	}
}

func TestMissingRequiredErrorSentinel(t *testing.T) {
	err := &agent.MissingRequiredError{Agent: "ExecuteSQLQuery", Params: []string{"query"}}
	want := `<ERROR>Required parameters missing: [query]</ERROR>`
	if got := err.Sentinel(); got != want {
		t.Fatalf("want sentinel %q, got %q", want, got)
	}
}

func TestStripReservedRemovesUnderscoredKeys(t *testing.T) {
	in := map[string]any{"goal": "x", "_original_args": "raw", "_unique_id": "t1"}
	out := agent.StripReserved(in)
	if len(out) != 1 || out["goal"] != "x" {
		t.Fatalf("want only goal to survive, got %v", out)
	}
	if agent.StripReserved(nil) != nil {
		t.Fatalf("want nil input to yield nil output")
	}
}

func TestRejectReservedFlagsFrameworkKeysOnly(t *testing.T) {
	bad := agent.RejectReserved(map[string]any{"orchestrator": 1, "_unique_id": "t1", "_original_args": "ok"})
	if len(bad) != 2 {
		t.Fatalf("want exactly 2 rejected keys, got %v", bad)
	}
	if len(agent.RejectReserved(map[string]any{"_original_args": "ok"})) != 0 {
		t.Fatalf("want caller-supplied bookkeeping keys other than the two reserved names to pass")
	}
}

func TestTalkToUserCompletesWithoutSuspending(t *testing.T) {
	reg := agent.NewTalkToUser()
	a, err := reg.New(agent.Context{}, map[string]any{"content": "hello"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Reduce(context.Background(), nil); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	out, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Suspended {
		t.Fatalf("want TalkToUser to never suspend")
	}
	result, ok := out.Result.(map[string]any)
	if !ok || result["content"] != "hello" {
		t.Fatalf("want content echoed back, got %v", out.Result)
	}
}

func TestToolAlwaysSuspends(t *testing.T) {
	reg := agent.NewTool("ExecuteSQLQuery", "run a query", nil)
	a, err := reg.New(agent.Context{}, map[string]any{"query": "select 1"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Suspended {
		t.Fatalf("want a client-side tool to always suspend")
	}
}

func TestPresentFinalAnswerRequiresAnswer(t *testing.T) {
	reg := agent.NewPresentFinalAnswer()
	_, missing := reg.NormalizeArgs(map[string]any{})
	if len(missing) != 1 || missing[0] != "answer" {
		t.Fatalf("want answer required, got missing=%v", missing)
	}
}
