package prompt

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended to any pack whose content was trimmed to fit
// the budget.
const TruncationMarker = "\n…[truncated]"

// Pack is a named, priority-ordered block of reference text injected into the
// system prompt. Lower priority numbers are more important and are evicted
// last.
type Pack struct {
	Name     string
	Priority int
	Content  string
}

// PackProvider contributes context packs for a turn. Providers compose: a
// later provider's non-empty pack replaces an earlier pack with the same
// name.
type PackProvider interface {
	Packs(ctx context.Context) []Pack
}

// PackProviderFunc adapts a function to PackProvider.
type PackProviderFunc func(ctx context.Context) []Pack

func (f PackProviderFunc) Packs(ctx context.Context) []Pack {
	return f(ctx)
}

// MergePacks collects packs from all providers in order. For a repeated name,
// the last non-empty content wins; the first occurrence fixes the position.
func MergePacks(ctx context.Context, providers []PackProvider) []Pack {
	var merged []Pack
	index := make(map[string]int)
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		for _, pack := range provider.Packs(ctx) {
			if pack.Name == "" {
				continue
			}
			if i, ok := index[pack.Name]; ok {
				if strings.TrimSpace(pack.Content) != "" {
					merged[i] = pack
				}
				continue
			}
			index[pack.Name] = len(merged)
			merged = append(merged, pack)
		}
	}
	return merged
}

// FitPacks trims the pack set to a character budget. Lower-priority packs
// (higher numbers) are dropped whole first; once only the most-important
// priority tier remains and it still overflows, those packs are trimmed to an
// even share and marked as truncated. Returns packs in priority order.
func FitPacks(packs []Pack, budgetChars int) []Pack {
	kept := make([]Pack, 0, len(packs))
	for _, pack := range packs {
		if strings.TrimSpace(pack.Content) != "" {
			kept = append(kept, pack)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Priority < kept[j].Priority })

	if budgetChars <= 0 {
		return nil
	}

	topPriority := kept[0].Priority
	for totalPackSize(kept) > budgetChars {
		last := len(kept) - 1
		if kept[last].Priority == topPriority {
			// Only the top tier is left: trim, never drop.
			return trimEvenly(kept, budgetChars)
		}
		kept = kept[:last]
	}
	return kept
}

// trimEvenly cuts each pack to an even share of the budget, appending the
// truncation marker to any pack that lost content.
func trimEvenly(packs []Pack, budgetChars int) []Pack {
	share := budgetChars / len(packs)
	if share <= len(TruncationMarker) {
		share = len(TruncationMarker) + 1
	}
	out := make([]Pack, len(packs))
	for i, pack := range packs {
		out[i] = pack
		if len(pack.Content) <= share {
			continue
		}
		cut := share - len(TruncationMarker)
		if cut < 0 {
			cut = 0
		}
		out[i].Content = truncateUTF8(pack.Content, cut) + TruncationMarker
	}
	return out
}

func totalPackSize(packs []Pack) int {
	total := 0
	for _, pack := range packs {
		total += len(pack.Content)
	}
	return total
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
