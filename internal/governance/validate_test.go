package governance

import (
	"encoding/json"
	"testing"

	"helmsman/internal/llm"
	"helmsman/internal/tenantctx"
)

func mustCatalog(t *testing.T, tools []ToolDefinition) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(tools)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return catalog
}

func catalogFixture(t *testing.T) *Catalog {
	return mustCatalog(t, []ToolDefinition{
		{
			Name:          "lookup_streams",
			Schema:        json.RawMessage(`{"type":"object","properties":{"status":{"type":"string"}},"required":["status"]}`),
			ProcedureName: "sp_ai_lookup_streams",
			Enabled:       true,
		},
		{
			Name:          "admin_rotate_keys",
			Schema:        json.RawMessage(`{"type":"object"}`),
			ProcedureName: "sp_ai_rotate_keys",
			RequiredRoles: []string{"admin"},
			Enabled:       true,
		},
		{
			Name:          "legacy_report",
			ProcedureName: "sp_ai_report",
			Enabled:       false,
		},
		{
			Name:          "escape_hatch",
			ProcedureName: "pg_terminate_backend",
			Enabled:       true,
		},
	})
}

func memberExec() tenantctx.ExecutionContext {
	return tenantctx.ExecutionContext{TenantID: "t1", Roles: []string{"member"}}
}

func TestValidateAcceptsWellFormedCall(t *testing.T) {
	catalog := catalogFixture(t)
	validated, violation := Validate(llm.ToolCall{
		Name:      "lookup_streams",
		Arguments: `{"status":"live"}`,
	}, catalog, memberExec())
	if violation != nil {
		t.Fatalf("unexpected violation: %+v", violation)
	}
	if validated.Tool.ProcedureName != "sp_ai_lookup_streams" {
		t.Fatalf("unexpected tool resolved: %+v", validated.Tool)
	}
	if validated.Args["status"] != "live" {
		t.Fatalf("expected parsed arguments, got %v", validated.Args)
	}
}

func TestValidateUnknownAndDisabledTools(t *testing.T) {
	catalog := catalogFixture(t)
	for _, name := range []string{"no_such_tool", "legacy_report"} {
		_, violation := Validate(llm.ToolCall{Name: name}, catalog, memberExec())
		if violation == nil || violation.Code != CodeToolNotEnabled {
			t.Fatalf("%s: expected %s, got %+v", name, CodeToolNotEnabled, violation)
		}
	}
}

func TestValidateRoleSuperset(t *testing.T) {
	catalog := catalogFixture(t)

	_, violation := Validate(llm.ToolCall{Name: "admin_rotate_keys", Arguments: `{}`}, catalog, memberExec())
	if violation == nil || violation.Code != CodeMissingRole {
		t.Fatalf("expected %s for a non-admin, got %+v", CodeMissingRole, violation)
	}

	admin := tenantctx.ExecutionContext{TenantID: "t1", Roles: []string{"member", "admin"}}
	if _, violation := Validate(llm.ToolCall{Name: "admin_rotate_keys", Arguments: `{}`}, catalog, admin); violation != nil {
		t.Fatalf("an admin should pass, got %+v", violation)
	}
}

func TestValidateUnsafeProcedurePrefix(t *testing.T) {
	catalog := catalogFixture(t)
	_, violation := Validate(llm.ToolCall{Name: "escape_hatch", Arguments: `{}`}, catalog, memberExec())
	if violation == nil || violation.Code != CodeUnsafeProcedure {
		t.Fatalf("expected %s, got %+v", CodeUnsafeProcedure, violation)
	}
}

func TestValidateSchemaFailures(t *testing.T) {
	catalog := catalogFixture(t)

	_, violation := Validate(llm.ToolCall{Name: "lookup_streams", Arguments: `{"status":12}`}, catalog, memberExec())
	if violation == nil || violation.Code != CodeInvalidArguments {
		t.Fatalf("expected %s for a type mismatch, got %+v", CodeInvalidArguments, violation)
	}
	if len(violation.SchemaErrors) == 0 {
		t.Fatal("schema failures must carry the validator's findings")
	}

	_, violation = Validate(llm.ToolCall{Name: "lookup_streams", Arguments: `{}`}, catalog, memberExec())
	if violation == nil || violation.Code != CodeInvalidArguments {
		t.Fatalf("expected %s for a missing required field, got %+v", CodeInvalidArguments, violation)
	}

	_, violation = Validate(llm.ToolCall{Name: "lookup_streams", Arguments: `not json`}, catalog, memberExec())
	if violation == nil || violation.Code != CodeInvalidArguments {
		t.Fatalf("expected %s for malformed JSON, got %+v", CodeInvalidArguments, violation)
	}
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]ToolDefinition{
		{Name: "dup", Enabled: true},
		{Name: "dup", Enabled: true},
	})
	if err == nil {
		t.Fatal("duplicate tool names must fail catalog construction")
	}
}

func TestEnabledToolsFiltersByRole(t *testing.T) {
	catalog := catalogFixture(t)
	tools := catalog.EnabledTools(memberExec())
	for _, tool := range tools {
		if tool.Name == "admin_rotate_keys" {
			t.Fatal("role-gated tools must be hidden from callers without the role")
		}
		if tool.Name == "legacy_report" {
			t.Fatal("disabled tools must not be offered to the model")
		}
	}
}

func TestSortedByNameIsStable(t *testing.T) {
	catalog := catalogFixture(t)
	sorted := catalog.SortedByName()
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Name > sorted[i].Name {
			t.Fatalf("catalog not sorted at %d: %s > %s", i, sorted[i-1].Name, sorted[i].Name)
		}
	}
}
