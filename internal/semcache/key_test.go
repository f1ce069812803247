package semcache

import (
	"encoding/json"
	"testing"

	"helmsman/internal/governance"
	"helmsman/internal/prompt"
)

func TestKeyDeterminism(t *testing.T) {
	key := Key{
		Language:      "en",
		Question:      "  How   many streams are LIVE? ",
		ToolsetDigest: "aaa",
		PlanDigest:    "bbb",
	}
	if key.Digest() != key.Digest() {
		t.Fatal("digest must be deterministic")
	}

	same := Key{
		Language:      "en",
		Question:      "how many streams are live?",
		ToolsetDigest: "aaa",
		PlanDigest:    "bbb",
	}
	if key.Digest() != same.Digest() {
		t.Fatal("normalization-equivalent questions must share a digest")
	}
}

func TestKeyChangesWithAnyInput(t *testing.T) {
	base := Key{Language: "en", Question: "hello", ToolsetDigest: "t", PlanDigest: "p"}
	variants := []Key{
		{Language: "de", Question: "hello", ToolsetDigest: "t", PlanDigest: "p"},
		{Language: "en", Question: "goodbye", ToolsetDigest: "t", PlanDigest: "p"},
		{Language: "en", Question: "hello", ToolsetDigest: "t2", PlanDigest: "p"},
		{Language: "en", Question: "hello", ToolsetDigest: "t", PlanDigest: "p2"},
	}
	for i, variant := range variants {
		if variant.Digest() == base.Digest() {
			t.Errorf("variant %d: expected a different digest", i)
		}
	}
}

func TestKeyFieldsDoNotBleed(t *testing.T) {
	a := Key{Language: "en", Question: "ab", ToolsetDigest: "c"}
	b := Key{Language: "en", Question: "a", ToolsetDigest: "bc"}
	if a.Digest() == b.Digest() {
		t.Fatal("field boundaries must be part of the digest")
	}
}

func TestToolsetDigestTracksTools(t *testing.T) {
	tools := []governance.ToolDefinition{
		{Name: "a", Schema: json.RawMessage(`{"type":"object"}`), ProcedureName: "sp_ai_a"},
		{Name: "b", Schema: json.RawMessage(`{"type":"object"}`), ProcedureName: "sp_ai_b"},
	}
	before := ToolsetDigest(tools)

	tools[1].Schema = json.RawMessage(`{"type":"object","required":["x"]}`)
	if ToolsetDigest(tools) == before {
		t.Fatal("schema change must rotate the toolset digest")
	}
}

func TestPlanDigestTracksPacks(t *testing.T) {
	packs := []prompt.Pack{{Name: "catalog", Content: "v1"}}
	before := PlanDigest(packs)

	packs[0].Content = "v2"
	if PlanDigest(packs) == before {
		t.Fatal("pack change must rotate the plan digest")
	}
}

func TestNormalizeQuestion(t *testing.T) {
	got := NormalizeQuestion("  What\tIS \n up? ")
	if got != "what is up?" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}
