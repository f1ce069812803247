package governance

import (
	"context"
	"strings"

	"helmsman/internal/prompt"
)

// CatalogPackProvider renders a summary of the enabled tool catalog as a
// context pack so the model sees usage guidance beyond the schema alone.
func CatalogPackProvider(resolver Resolver) prompt.PackProvider {
	return prompt.PackProviderFunc(func(ctx context.Context) []prompt.Pack {
		tools, err := resolver.GetResolvedTools(ctx)
		if err != nil {
			return nil
		}

		var b strings.Builder
		for _, tool := range tools {
			if !tool.Enabled {
				continue
			}
			b.WriteString("- ")
			b.WriteString(tool.Name)
			if tool.Description != "" {
				b.WriteString(": ")
				b.WriteString(tool.Description)
			}
			if tool.Instructions != "" {
				b.WriteString("\n  ")
				b.WriteString(tool.Instructions)
			}
			b.WriteString("\n")
		}
		if b.Len() == 0 {
			return nil
		}

		return []prompt.Pack{{
			Name:     "tool-catalog",
			Priority: 1,
			Content:  "Available tools:\n" + b.String(),
		}}
	})
}
