package tenantctx

import (
	"context"
	"testing"
)

func TestExecutionContextRoundTrip(t *testing.T) {
	exec := ExecutionContext{
		TenantID:      "t1",
		UserID:        "u1",
		Roles:         []string{"member", "admin"},
		CorrelationID: "corr-1",
		Language:      "de",
	}
	ctx := WithExecution(context.Background(), exec)

	got, ok := GetExecution(ctx)
	if !ok {
		t.Fatal("expected an execution context")
	}
	if got.TenantID != "t1" || got.Language != "de" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if GetTenantID(ctx) != "t1" {
		t.Fatalf("GetTenantID = %q", GetTenantID(ctx))
	}
	if GetUserID(ctx) != "u1" {
		t.Fatalf("GetUserID = %q", GetUserID(ctx))
	}
}

func TestGetExecutionMissing(t *testing.T) {
	if _, ok := GetExecution(context.Background()); ok {
		t.Fatal("an empty context must not yield an execution context")
	}
	if GetTenantID(context.Background()) != "" {
		t.Fatal("missing tenant must read as empty")
	}
}

func TestHasRoles(t *testing.T) {
	exec := ExecutionContext{Roles: []string{"member", "billing"}}

	if !exec.HasRoles(nil) {
		t.Fatal("no required roles always passes")
	}
	if !exec.HasRoles([]string{"member"}) {
		t.Fatal("held role must pass")
	}
	if !exec.HasRoles([]string{"member", "billing"}) {
		t.Fatal("superset check must pass when all roles are held")
	}
	if exec.HasRoles([]string{"member", "admin"}) {
		t.Fatal("a single missing role must fail the superset check")
	}
}
