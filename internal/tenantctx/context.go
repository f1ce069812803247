package tenantctx

import "context"

// ExecutionContext carries the identity resolved at the transport boundary.
// It is created once per request and read-only inside the pipeline.
type ExecutionContext struct {
	TenantID       string
	UserID         string
	Roles          []string
	CorrelationID  string
	ConversationID string
	TraceID        string
	Language       string
}

// HasRoles reports whether the caller's role set is a superset of required.
func (e ExecutionContext) HasRoles(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(e.Roles))
	for _, role := range e.Roles {
		have[role] = struct{}{}
	}
	for _, role := range required {
		if _, ok := have[role]; !ok {
			return false
		}
	}
	return true
}

type contextKey string

const (
	keyExecution contextKey = "helmsman_execution"
	keyTenantID  contextKey = "helmsman_tenant_id"
	keyUserID    contextKey = "helmsman_user_id"
)

// WithExecution attaches an ExecutionContext to ctx.
func WithExecution(ctx context.Context, exec ExecutionContext) context.Context {
	ctx = context.WithValue(ctx, keyExecution, exec)
	ctx = context.WithValue(ctx, keyTenantID, exec.TenantID)
	return context.WithValue(ctx, keyUserID, exec.UserID)
}

// GetExecution returns the ExecutionContext stored on ctx, if any.
func GetExecution(ctx context.Context) (ExecutionContext, bool) {
	v, ok := ctx.Value(keyExecution).(ExecutionContext)
	return v, ok
}

func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyTenantID, id)
}

func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(keyTenantID).(string); ok {
		return v
	}
	return ""
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(keyUserID).(string); ok {
		return v
	}
	return ""
}
