package llmbridge

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/minusxai/minusx/agent"
)

// ToolSchema builds the JSON Schema ToolDefinition for a Registration's
// parameter list, used as the InputSchema every provider adapter advertises
// to the model.
func ToolSchema(reg *agent.Registration) *ToolDefinition {
	return &ToolDefinition{
		Name:        reg.Name,
		Description: reg.Description,
		InputSchema: paramsToSchema(reg.Params),
	}
}

func paramsToSchema(params []agent.ParamSpec) map[string]any {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		properties[p.Name] = paramSpecToSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func paramSpecToSchema(p agent.ParamSpec) map[string]any {
	s := map[string]any{"description": p.Description}
	switch p.Type {
	case agent.ParamEnum:
		s["type"] = "string"
		s["enum"] = p.Enum
	case agent.ParamArray:
		s["type"] = "array"
		if p.Items != nil {
			s["items"] = paramSpecToSchema(*p.Items)
		}
	case agent.ParamObject:
		if len(p.Properties) > 0 {
			nested := paramsToSchema(p.Properties)
			s["type"] = "object"
			s["properties"] = nested["properties"]
			if req, ok := nested["required"]; ok {
				s["required"] = req
			}
		} else {
			s["type"] = "object"
		}
	default:
		s["type"] = string(p.Type)
	}
	return s
}

// ValidateArgs compiles def.InputSchema and validates args against it,
// mirroring the registry service's payload-against-schema validation, and
// returns the validation error. A nil def or schema validates anything. The
// thread translator does not call it; tool-call arguments reach the
// orchestrator unvalidated against the schema.
func ValidateArgs(def *ToolDefinition, args map[string]any) error {
	if def == nil || def.InputSchema == nil {
		return nil
	}
	raw, err := json.Marshal(def.InputSchema)
	if err != nil {
		return fmt.Errorf("llmbridge: marshal schema for %q: %w", def.Name, err)
	}
	var schemaDoc any
	if err := json.Unmarshal(raw, &schemaDoc); err != nil {
		return fmt.Errorf("llmbridge: unmarshal schema for %q: %w", def.Name, err)
	}

	c := jsonschema.NewCompiler()
	resource := def.Name + ".json"
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return fmt.Errorf("llmbridge: add schema resource for %q: %w", def.Name, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return fmt.Errorf("llmbridge: compile schema for %q: %w", def.Name, err)
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("llmbridge: marshal args for %q: %w", def.Name, err)
	}
	var payloadDoc any
	if err := json.Unmarshal(payload, &payloadDoc); err != nil {
		return fmt.Errorf("llmbridge: unmarshal args for %q: %w", def.Name, err)
	}
	return schema.Validate(payloadDoc)
}
