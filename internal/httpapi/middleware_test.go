package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"helmsman/internal/tenantctx"
)

func TestExecutionContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ExecutionContextMiddleware())

	var captured tenantctx.ExecutionContext
	router.GET("/probe", func(c *gin.Context) {
		captured, _ = tenantctx.GetExecution(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set(HeaderTenantID, "tenant-1")
	req.Header.Set(HeaderUserID, "user-1")
	req.Header.Set(HeaderUserRoles, "member, admin")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.TenantID != "tenant-1" || captured.UserID != "user-1" {
		t.Fatalf("identity not propagated: %+v", captured)
	}
	if len(captured.Roles) != 2 || captured.Roles[1] != "admin" {
		t.Fatalf("roles not parsed: %v", captured.Roles)
	}
	if captured.Language != "de-de" {
		t.Fatalf("expected primary language de-de, got %q", captured.Language)
	}
	if captured.CorrelationID == "" {
		t.Fatal("a correlation ID must be generated when absent")
	}
	if rec.Header().Get(HeaderCorrelationID) != captured.CorrelationID {
		t.Fatal("the correlation ID must be echoed back")
	}
}

func TestExecutionContextMiddlewareRejectsMissingTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ExecutionContextMiddleware())
	router.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a tenant header, got %d", rec.Code)
	}
}

func TestPrimaryLanguage(t *testing.T) {
	cases := map[string]string{
		"":                     "en",
		"*":                    "en",
		"en-US,en;q=0.5":       "en-us",
		"fr":                   "fr",
		"de-DE;q=0.7,en;q=0.3": "de-de",
	}
	for header, want := range cases {
		if got := primaryLanguage(header); got != want {
			t.Errorf("primaryLanguage(%q) = %q, want %q", header, got, want)
		}
	}
}
