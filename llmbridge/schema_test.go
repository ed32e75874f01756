package llmbridge_test

import (
	"testing"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/llmbridge"
)

func TestToolSchemaMarksRequiredAndDefaultsType(t *testing.T) {
	reg := &agent.Registration{
		Name:        "ExecuteSQLQuery",
		Description: "run a query",
		Params: []agent.ParamSpec{
			{Name: "connection", Type: agent.ParamString, Required: true},
			{Name: "limit", Type: agent.ParamNumber},
			{Name: "vizSettings", Type: agent.ParamObject, Properties: []agent.ParamSpec{
				{Name: "type", Type: agent.ParamEnum, Enum: []string{"table", "bar", "line"}, Required: true},
			}},
		},
	}

	def := llmbridge.ToolSchema(reg)
	if def.Name != "ExecuteSQLQuery" {
		t.Fatalf("want name preserved, got %q", def.Name)
	}

	schema, ok := def.InputSchema.(map[string]any)
	if !ok {
		t.Fatalf("want InputSchema to be a map, got %T", def.InputSchema)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("want properties map, got %T", schema["properties"])
	}
	connSchema := props["connection"].(map[string]any)
	if connSchema["type"] != "string" {
		t.Fatalf("want connection typed as string, got %v", connSchema["type"])
	}

	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "connection" {
		t.Fatalf("want required=[connection], got %v", schema["required"])
	}

	vizSchema := props["vizSettings"].(map[string]any)
	if vizSchema["type"] != "object" {
		t.Fatalf("want vizSettings typed as object, got %v", vizSchema["type"])
	}
	nestedProps := vizSchema["properties"].(map[string]any)
	typeSchema := nestedProps["type"].(map[string]any)
	if typeSchema["type"] != "string" {
		t.Fatalf("want nested enum field typed as string, got %v", typeSchema["type"])
	}
	nestedRequired, ok := vizSchema["required"].([]string)
	if !ok || len(nestedRequired) != 1 || nestedRequired[0] != "type" {
		t.Fatalf("want nested required=[type], got %v", vizSchema["required"])
	}
}

func TestValidateArgsRejectsMissingRequired(t *testing.T) {
	def := llmbridge.ToolSchema(&agent.Registration{
		Name: "ExecuteSQLQuery",
		Params: []agent.ParamSpec{
			{Name: "query", Type: agent.ParamString, Required: true},
		},
	})

	if err := llmbridge.ValidateArgs(def, map[string]any{}); err == nil {
		t.Fatalf("want validation error for missing required field")
	}
	if err := llmbridge.ValidateArgs(def, map[string]any{"query": "select 1"}); err != nil {
		t.Fatalf("want valid args to pass, got %v", err)
	}
}

func TestValidateArgsNilSchemaIsNoop(t *testing.T) {
	if err := llmbridge.ValidateArgs(nil, map[string]any{"anything": true}); err != nil {
		t.Fatalf("want nil definition to skip validation, got %v", err)
	}
}
