package governance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tools.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestFileResolverLoadsCatalog(t *testing.T) {
	path := writeCatalogFile(t, `[
		{"name":"lookup_streams","schema":{"type":"object"},"procedure_name":"sp_ai_lookup_streams","enabled":true}
	]`)

	resolver, err := NewFileResolver(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tools, err := resolver.GetResolvedTools(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "lookup_streams" {
		t.Fatalf("unexpected catalog: %+v", tools)
	}
}

func TestFileResolverRejectsBrokenCatalog(t *testing.T) {
	if _, err := NewFileResolver(writeCatalogFile(t, `not json`)); err == nil {
		t.Fatal("malformed JSON must fail the load")
	}

	dup := writeCatalogFile(t, `[
		{"name":"a","enabled":true},
		{"name":"a","enabled":true}
	]`)
	if _, err := NewFileResolver(dup); err == nil {
		t.Fatal("duplicate tools must fail the load")
	}
}
