package semcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"helmsman/internal/governance"
	"helmsman/internal/prompt"
)

// Key identifies one cacheable answer. Two turns share a key only when the
// normalized question, language, visible toolset and assembled context all
// match; a tool or pack change rotates the digest and invalidates old
// entries implicitly.
type Key struct {
	Language      string
	Question      string
	ToolsetDigest string
	PlanDigest    string
}

// Digest returns the stable hex digest for the key.
func (k Key) Digest() string {
	h := sha256.New()
	writeField(h, k.Language)
	writeField(h, NormalizeQuestion(k.Question))
	writeField(h, k.ToolsetDigest)
	writeField(h, k.PlanDigest)
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0})
}

// NormalizeQuestion lowercases and collapses runs of whitespace so trivially
// reworded questions hit the same entry.
func NormalizeQuestion(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// ToolsetDigest hashes the catalog's visible surface: names, schemas,
// instructions and backing procedures, in name order.
func ToolsetDigest(tools []governance.ToolDefinition) string {
	h := sha256.New()
	for _, tool := range tools {
		writeField(h, tool.Name)
		writeField(h, string(tool.Schema))
		writeField(h, tool.Instructions)
		writeField(h, tool.ProcedureName)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PlanDigest hashes the fitted context packs so a cached answer is only
// reused when the same reference material was in scope.
func PlanDigest(packs []prompt.Pack) string {
	h := sha256.New()
	for _, pack := range packs {
		writeField(h, pack.Name)
		writeField(h, pack.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
