package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"helmsman/internal/llm"
)

// ToolDefinition describes one server-side callable tool from the governed
// catalog. Definitions are loaded by an external resolver and treated as
// read-only for the duration of a turn.
type ToolDefinition struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Instructions  string          `json:"instructions,omitempty"`
	Schema        json.RawMessage `json:"schema"`
	ProcedureName string          `json:"procedure_name,omitempty"`
	RequiredRoles []string        `json:"required_roles,omitempty"`
	Enabled       bool            `json:"enabled"`
	Module        string          `json:"module,omitempty"`
}

// Resolver supplies the resolved tool catalog for a turn.
type Resolver interface {
	GetResolvedTools(ctx context.Context) ([]ToolDefinition, error)
}

// Catalog indexes resolved tool definitions and their compiled schemas.
type Catalog struct {
	tools    []ToolDefinition
	byName   map[string]int
	resolved map[string]*jsonschema.Resolved
}

// NewCatalog builds a catalog, compiling each tool's JSON schema up front so
// validation failures surface at load time rather than mid-turn.
func NewCatalog(tools []ToolDefinition) (*Catalog, error) {
	c := &Catalog{
		tools:    tools,
		byName:   make(map[string]int, len(tools)),
		resolved: make(map[string]*jsonschema.Resolved, len(tools)),
	}
	for i, tool := range tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("catalog: tool at index %d has no name", i)
		}
		if _, dup := c.byName[tool.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate tool %q", tool.Name)
		}
		c.byName[tool.Name] = i

		if len(tool.Schema) == 0 {
			continue
		}
		var schema jsonschema.Schema
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("catalog: tool %q schema: %w", tool.Name, err)
		}
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("catalog: tool %q schema resolve: %w", tool.Name, err)
		}
		c.resolved[tool.Name] = resolved
	}
	return c, nil
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (ToolDefinition, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return c.tools[idx], true
}

// Tools returns all definitions in catalog order.
func (c *Catalog) Tools() []ToolDefinition {
	return c.tools
}

// EnabledTools returns the enabled definitions the caller's roles permit,
// shaped for the LLM request.
func (c *Catalog) EnabledTools(roles interface{ HasRoles([]string) bool }) []llm.Tool {
	out := make([]llm.Tool, 0, len(c.tools))
	for _, tool := range c.tools {
		if !tool.Enabled {
			continue
		}
		if roles != nil && !roles.HasRoles(tool.RequiredRoles) {
			continue
		}
		var params map[string]any
		if len(tool.Schema) > 0 {
			_ = json.Unmarshal(tool.Schema, &params)
		}
		out = append(out, llm.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return out
}

// SortedByName returns definitions ordered by tool name, for deterministic
// digests.
func (c *Catalog) SortedByName() []ToolDefinition {
	sorted := make([]ToolDefinition, len(c.tools))
	copy(sorted, c.tools)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}
