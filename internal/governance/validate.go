package governance

import (
	"encoding/json"
	"fmt"
	"strings"

	"helmsman/internal/llm"
	"helmsman/internal/tenantctx"
)

// SafeProcedurePrefix is the mandatory prefix for backing procedures. A tool
// whose procedure name does not carry it is never executed, regardless of
// what the catalog claims.
const SafeProcedurePrefix = "sp_ai_"

// Violation codes, stable across releases; transports map them to status
// codes and localized messages.
const (
	CodeToolNotEnabled   = "tool_not_enabled"
	CodeMissingRole      = "tool_missing_role"
	CodeUnsafeProcedure  = "tool_unsafe_procedure"
	CodeInvalidArguments = "tool_invalid_arguments"
)

// Violation describes why a tool call was refused. Detail is safe to return
// to callers; SchemaErrors carries the validator's findings for
// argument-shape failures only.
type Violation struct {
	Code         string   `json:"code"`
	Detail       string   `json:"detail"`
	SchemaErrors []string `json:"schema_errors,omitempty"`
}

// Validated is the outcome of a successful governance check.
type Validated struct {
	Tool ToolDefinition
	// Args is the parsed argument object, canonical for downstream use.
	Args map[string]any
}

// Validate checks a requested tool call against the catalog and the caller's
// execution context. Checks short-circuit on the first failure: existence and
// enablement, role superset, safe procedure prefix, then argument schema.
// Pure function of its inputs.
func Validate(call llm.ToolCall, catalog *Catalog, exec tenantctx.ExecutionContext) (Validated, *Violation) {
	tool, ok := catalog.Lookup(call.Name)
	if !ok || !tool.Enabled {
		return Validated{}, &Violation{
			Code:   CodeToolNotEnabled,
			Detail: fmt.Sprintf("tool %q is not enabled", call.Name),
		}
	}

	if !exec.HasRoles(tool.RequiredRoles) {
		return Validated{}, &Violation{
			Code:   CodeMissingRole,
			Detail: fmt.Sprintf("tool %q requires roles the caller does not hold", call.Name),
		}
	}

	if tool.ProcedureName != "" && !strings.HasPrefix(tool.ProcedureName, SafeProcedurePrefix) {
		return Validated{}, &Violation{
			Code:   CodeUnsafeProcedure,
			Detail: fmt.Sprintf("tool %q is backed by a procedure outside the safe namespace", call.Name),
		}
	}

	args := map[string]any{}
	raw := strings.TrimSpace(call.Arguments)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return Validated{}, &Violation{
				Code:         CodeInvalidArguments,
				Detail:       fmt.Sprintf("tool %q arguments are not a JSON object", call.Name),
				SchemaErrors: []string{err.Error()},
			}
		}
	}

	if resolved, ok := catalog.resolved[tool.Name]; ok {
		if err := resolved.Validate(args); err != nil {
			return Validated{}, &Violation{
				Code:         CodeInvalidArguments,
				Detail:       fmt.Sprintf("tool %q arguments failed schema validation", call.Name),
				SchemaErrors: splitSchemaErrors(err),
			}
		}
	}

	return Validated{Tool: tool, Args: args}, nil
}

// splitSchemaErrors flattens the validator's (possibly joined) error into
// individual messages.
func splitSchemaErrors(err error) []string {
	parts := strings.Split(err.Error(), "\n")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
