package tools_test

import (
	"context"
	"testing"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/tools"
)

func TestRegisterDomainToolsRegistersAll(t *testing.T) {
	reg := agent.NewRegistry()
	if err := tools.RegisterDomainTools(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, name := range []string{
		"ExecuteSQLQuery", "SearchDBSchema", "EditFile", "Navigate",
		"Clarify", "SearchFiles", "GetFiles", "GetAllQuestions", "UpdateFileMetadata",
	} {
		if _, ok := reg.Lookup(name); !ok {
			t.Fatalf("want %q registered", name)
		}
	}
}

func TestRegisterDomainToolsIsIdempotentFailure(t *testing.T) {
	reg := agent.NewRegistry()
	if err := tools.RegisterDomainTools(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := tools.RegisterDomainTools(reg); err == nil {
		t.Fatalf("want error registering domain tools twice into the same registry")
	}
}

func TestExecuteSQLQueryRequiresConnectionIDAndQuery(t *testing.T) {
	reg := agent.NewRegistry()
	if err := tools.RegisterDomainTools(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	def, _ := reg.Lookup("ExecuteSQLQuery")

	_, missing := def.NormalizeArgs(map[string]any{})
	if len(missing) != 2 {
		t.Fatalf("want connection_id and query required, got missing=%v", missing)
	}

	out, missing := def.NormalizeArgs(map[string]any{"connection_id": "main", "query": "select 1"})
	if len(missing) != 0 {
		t.Fatalf("want no missing params, got %v", missing)
	}
	if out["foreground"] != false {
		t.Fatalf("want default foreground false, got %v", out["foreground"])
	}
}

func TestSearchDBSchemaQueryIsOptional(t *testing.T) {
	reg := agent.NewRegistry()
	if err := tools.RegisterDomainTools(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	def, _ := reg.Lookup("SearchDBSchema")

	_, missing := def.NormalizeArgs(map[string]any{"connection_id": "main"})
	if len(missing) != 0 {
		t.Fatalf("want query to be optional, got missing=%v", missing)
	}
}

func TestDomainToolsAlwaysSuspend(t *testing.T) {
	reg := agent.NewRegistry()
	if err := tools.RegisterDomainTools(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	def, _ := reg.Lookup("Navigate")
	a, err := def.New(agent.Context{}, map[string]any{"target": "dashboard"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Suspended {
		t.Fatalf("want Navigate to suspend, deferring execution to the client")
	}
}
