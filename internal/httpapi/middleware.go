package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"helmsman/internal/tenantctx"
)

// Identity headers set by the upstream gateway after claims resolution.
// Helmsman trusts them; it never sits on the public edge.
const (
	HeaderTenantID      = "X-Tenant-ID"
	HeaderUserID        = "X-User-ID"
	HeaderUserRoles     = "X-User-Roles"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderTraceID       = "X-Trace-ID"
)

// ExecutionContextMiddleware builds the per-request execution context from
// gateway headers and rejects requests without a tenant.
func ExecutionContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(HeaderTenantID)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id missing"})
			return
		}

		correlationID := c.GetHeader(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		exec := tenantctx.ExecutionContext{
			TenantID:      tenantID,
			UserID:        c.GetHeader(HeaderUserID),
			Roles:         parseRoles(c.GetHeader(HeaderUserRoles)),
			CorrelationID: correlationID,
			TraceID:       c.GetHeader(HeaderTraceID),
			Language:      primaryLanguage(c.GetHeader("Accept-Language")),
		}

		ctx := tenantctx.WithExecution(c.Request.Context(), exec)
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderCorrelationID, correlationID)
		c.Next()
	}
}

func parseRoles(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	roles := make([]string, 0, len(parts))
	for _, part := range parts {
		if role := strings.TrimSpace(part); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

// primaryLanguage extracts the first language tag, ignoring quality values.
func primaryLanguage(header string) string {
	if header == "" {
		return "en"
	}
	first := strings.SplitN(header, ",", 2)[0]
	first = strings.SplitN(first, ";", 2)[0]
	first = strings.TrimSpace(strings.ToLower(first))
	if first == "" || first == "*" {
		return "en"
	}
	return first
}
