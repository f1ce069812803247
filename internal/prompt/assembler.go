package prompt

import (
	"context"
	"strings"

	"helmsman/internal/llm"
	"helmsman/internal/logging"
)

// Assembler builds the system prompt and conversation payload sent to the
// model. Context packs are merged by name, fitted into the character budget,
// and appended to the fixed preamble under an untrusted-content fence.
type Assembler struct {
	providers   []PackProvider
	budgetChars int
	retainCount int
	logger      logging.Logger
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithRetainCount sets how many recent assistant messages survive history
// trimming.
func WithRetainCount(n int) AssemblerOption {
	return func(a *Assembler) { a.retainCount = n }
}

// NewAssembler creates an Assembler with a budget expressed in model tokens.
// The budget is converted to characters with the flat chars-per-token
// heuristic; pack fitting and history trimming both work in characters.
func NewAssembler(budgetTokens int, logger logging.Logger, providers []PackProvider, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		providers:   providers,
		budgetChars: budgetTokens * CharsPerToken,
		retainCount: DefaultAssistantRetain,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BudgetChars reports the total character budget for one prompt.
func (a *Assembler) BudgetChars() int {
	return a.budgetChars
}

// RetainCount reports how many recent assistant messages history trimming
// keeps.
func (a *Assembler) RetainCount() int {
	return a.retainCount
}

// Request is the input to Assemble.
type Request struct {
	Question string
	History  []llm.Message
	// Extra packs supplied by the caller. They merge after provider packs,
	// so a call-site pack overrides a provider pack of the same name.
	Packs []Pack
}

// Assembled is the ordered message list ready for the provider, plus the
// packs that survived fitting (used for cache plan digests).
type Assembled struct {
	Messages []llm.Message
	Packs    []Pack
}

// Assemble produces the full message list: system preamble with fitted
// context packs, trimmed history, then the user question. Half of the space
// left after the preamble and question goes to packs and half to history; the
// preamble and question are always included in full.
func (a *Assembler) Assemble(ctx context.Context, req Request) Assembled {
	providers := a.providers
	if len(req.Packs) > 0 {
		extra := req.Packs
		providers = append(append([]PackProvider{}, providers...),
			PackProviderFunc(func(context.Context) []Pack { return extra }))
	}
	merged := MergePacks(ctx, providers)

	reserved := len(SystemPreamble) + len(req.Question)
	remaining := a.budgetChars - reserved
	if remaining < 0 {
		remaining = 0
	}
	packBudget := remaining / 2
	historyBudget := remaining - packBudget

	fitted := FitPacks(merged, packBudget)
	if len(fitted) < len(merged) {
		a.logger.WithFields(logging.Fields{
			"packs_in":  len(merged),
			"packs_out": len(fitted),
		}).Debug("Dropped context packs to fit prompt budget")
	}

	// Trim with the question in place so it is the protected latest user
	// message and older user turns stay evictable. Its length was already
	// reserved, so the history budget grows by the same amount.
	sequence := append(append([]llm.Message{}, req.History...),
		llm.Message{Role: "user", Content: req.Question})
	sequence = TrimHistory(sequence, historyBudget+len(req.Question), a.retainCount)

	messages := make([]llm.Message, 0, len(sequence)+1)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: a.systemPrompt(fitted),
	})
	messages = append(messages, sequence...)

	return Assembled{Messages: messages, Packs: fitted}
}

func (a *Assembler) systemPrompt(packs []Pack) string {
	var b strings.Builder
	b.WriteString(SystemPreamble)
	for _, pack := range packs {
		if pack.Content == "" {
			continue
		}
		b.WriteString("\n\n## ")
		b.WriteString(pack.Name)
		b.WriteString("\n")
		b.WriteString(UntrustedContextHeader)
		b.WriteString(pack.Content)
	}
	return b.String()
}
