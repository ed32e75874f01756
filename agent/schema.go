package agent

import "fmt"

// ParamType names the JSON Schema type a parameter encodes as.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
	ParamEnum    ParamType = "enum"
)

// ParamSpec describes one constructor parameter: enough to validate and fill
// defaults for a direct invocation, and to generate one property of the JSON
// Schema tool descriptor sent to an LLM (see llmbridge.ToolSchema).
type ParamSpec struct {
	// Name is the parameter/argument key.
	Name string
	// Type is the JSON Schema type this parameter encodes as.
	Type ParamType
	// Required marks the parameter as mandatory: an absent Required
	// parameter is reported missing, and its Default is not applied.
	Required bool
	// Default is used to fill the parameter when the caller omits it and
	// Required is false.
	Default any
	// Description is shown to the LLM to explain what the parameter controls.
	Description string
	// Enum lists the allowed values when Type is ParamEnum.
	Enum []string
	// Items describes the element schema when Type is ParamArray.
	Items *ParamSpec
	// Properties describes nested fields when Type is ParamObject.
	Properties []ParamSpec
}

// Registration is the static metadata a name is registered under: its
// parameter list and the factory used to construct a live Agent for a task.
type Registration struct {
	// Name is the agent identifier used in tool calls and log entries.
	Name string
	// Description is shown to the LLM's tool-choice prompt.
	Description string
	// Params is the full constructor parameter list (excluding the reserved
	// _unique_id/orchestrator parameters, which the framework supplies).
	Params []ParamSpec
	// New constructs a live Agent instance for one task.
	New func(actx Context, args map[string]any) (Agent, error)
}

// MissingRequiredError is returned (and recorded as a task's result, per the
// orchestrator's argument-normalization contract) when a required parameter
// is absent.
type MissingRequiredError struct {
	Agent  string
	Params []string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("agent %q missing required parameters: %v", e.Agent, e.Params)
}

// Sentinel renders the wire sentinel string the LLM sees as this task's
// result when required parameters were missing, matching the spec's
// "<ERROR>...</ERROR>" convention so a tool-using model can read the failure
// and retry with corrected arguments.
func (e *MissingRequiredError) Sentinel() string {
	return fmt.Sprintf("<ERROR>Required parameters missing: %v</ERROR>", e.Params)
}

// NormalizeArgs applies defaults for missing optional parameters and reports
// every required parameter still missing after defaulting. It never mutates
// the input map.
func (r *Registration) NormalizeArgs(args map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(args)+len(r.Params))
	for k, v := range args {
		out[k] = v
	}
	var missing []string
	for _, p := range r.Params {
		if _, ok := out[p.Name]; ok {
			continue
		}
		if !p.Required {
			out[p.Name] = p.Default
			continue
		}
		missing = append(missing, p.Name)
	}
	return out, missing
}
