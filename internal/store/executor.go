package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"helmsman/internal/tenantctx"
)

// SafeProcedurePrefix is the only procedure namespace tools may invoke.
const SafeProcedurePrefix = "sp_ai_"

var procedureNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ProcedureExecutor runs governed stored procedures. Procedures take the
// tenant ID and a jsonb argument object and return a jsonb result; the name
// is validated here again even though governance already checked it, since
// this is the last hop before SQL.
type ProcedureExecutor struct {
	db *sql.DB
}

func NewProcedureExecutor(db *sql.DB) *ProcedureExecutor {
	return &ProcedureExecutor{db: db}
}

// Execute invokes helmsman.<procedure>(tenant_id, args) for the tenant on
// the context and returns the raw JSON result.
func (e *ProcedureExecutor) Execute(ctx context.Context, procedure string, args map[string]any) (json.RawMessage, error) {
	tenantID := tenantctx.GetTenantID(ctx)
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID is required")
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal procedure arguments: %w", err)
	}
	return e.ExecuteOnStore(ctx, procedure, tenantID, argsJSON)
}

// ExecuteOnStore invokes helmsman.<procedure> with an explicit tenant ID and
// pre-marshaled jsonb arguments.
func (e *ProcedureExecutor) ExecuteOnStore(ctx context.Context, procedure, tenantID string, argsJSON json.RawMessage) (json.RawMessage, error) {
	if !strings.HasPrefix(procedure, SafeProcedurePrefix) {
		return nil, fmt.Errorf("procedure %q is outside the %s namespace", procedure, SafeProcedurePrefix)
	}
	if !procedureNamePattern.MatchString(procedure) {
		return nil, fmt.Errorf("procedure %q is not a valid identifier", procedure)
	}
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if len(argsJSON) == 0 {
		argsJSON = json.RawMessage(`{}`)
	}

	// The name is interpolated because placeholders cannot name a function;
	// the pattern check above restricts it to a bare lowercase identifier.
	query := fmt.Sprintf(`SELECT helmsman.%s($1::uuid, $2::jsonb)`, procedure)

	var result json.RawMessage
	err := e.db.QueryRowContext(ctx, query, tenantID, []byte(argsJSON)).Scan(&result)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", procedure, err)
	}
	return result, nil
}
