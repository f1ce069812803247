package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"helmsman/internal/governance"
	"helmsman/internal/llm"
	"helmsman/internal/logging"
	"helmsman/internal/prompt"
	"helmsman/internal/resilience"
	"helmsman/internal/semcache"
	"helmsman/internal/store"
	"helmsman/internal/tenantctx"
)

// ToolExecutor runs a governed backing procedure and returns its raw JSON
// result.
type ToolExecutor interface {
	Execute(ctx context.Context, procedure string, args map[string]any) (json.RawMessage, error)
}

// TurnStore persists conversation messages and tool execution audit rows.
// All writes are best effort from the turn's point of view.
type TurnStore interface {
	AddMessage(ctx context.Context, conversationID, role, content string, toolCalls json.RawMessage, tokens store.TokenCounts) error
	RecordToolExecution(ctx context.Context, exec store.ToolExecution) error
}

// Config bounds one turn's resource use.
type Config struct {
	MaxSteps               int
	MaxToolCallsPerRequest int
	MaxRecursiveDepth      int
	MaxInputRunes          int
	ToolResultMaxBytes     int
}

// Pipeline drives one conversation turn: input validation, cache lookup,
// the bounded model loop, governed tool execution, and the cache fill.
type Pipeline struct {
	provider  llm.Provider
	resolver  governance.Resolver
	executor  ToolExecutor
	store     TurnStore
	cache     *semcache.AnswerCache
	guard     *semcache.StampedeGuard
	assembler *prompt.Assembler
	policies  *resilience.Registry
	cfg       Config
	logger    logging.Logger
}

type PipelineDeps struct {
	Provider  llm.Provider
	Resolver  governance.Resolver
	Executor  ToolExecutor
	Store     TurnStore
	Cache     *semcache.AnswerCache
	Guard     *semcache.StampedeGuard
	Assembler *prompt.Assembler
	Policies  *resilience.Registry
	Logger    logging.Logger
}

func NewPipeline(deps PipelineDeps, cfg Config) *Pipeline {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 6
	}
	if cfg.MaxRecursiveDepth <= 0 {
		cfg.MaxRecursiveDepth = cfg.MaxSteps
	}
	if cfg.MaxToolCallsPerRequest <= 0 {
		cfg.MaxToolCallsPerRequest = 12
	}
	if cfg.MaxInputRunes <= 0 {
		cfg.MaxInputRunes = 10000
	}
	if cfg.ToolResultMaxBytes <= 0 {
		cfg.ToolResultMaxBytes = 16384
	}
	return &Pipeline{
		provider:  deps.Provider,
		resolver:  deps.Resolver,
		executor:  deps.Executor,
		store:     deps.Store,
		cache:     deps.Cache,
		guard:     deps.Guard,
		assembler: deps.Assembler,
		policies:  deps.Policies,
		cfg:       cfg,
		logger:    deps.Logger,
	}
}

// Request is one user turn.
type Request struct {
	ConversationID string
	Question       string
	History        []llm.Message
	// BypassCache skips both the lookup and the fill for this turn.
	BypassCache bool
	// Sensitive marks the turn as carrying content that must not be cached
	// unless the deployment explicitly allows it.
	Sensitive bool
}

// turnError carries a typed failure through the stampede guard boundary.
type turnError struct {
	code   string
	detail string
}

func (e *turnError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.detail)
}

// Run executes one turn. Events are published to stream as the turn
// progresses; the stream is closed before Run returns. The terminal Result
// mirrors the last final or error event.
func (p *Pipeline) Run(ctx context.Context, req Request, stream *EventStream) Result {
	start := time.Now()
	defer func() {
		turnDuration.Observe(time.Since(start).Seconds())
	}()
	defer stream.Close()

	exec, ok := tenantctx.GetExecution(ctx)
	if !ok || exec.TenantID == "" {
		return p.fail(stream, CodeInternal, "missing execution context", 0, 0)
	}

	question, err := ValidateInput(req.Question, p.cfg.MaxInputRunes)
	if err != nil {
		return p.fail(stream, CodeInvalidInput, err.Error(), 0, 0)
	}

	definitions, err := p.resolver.GetResolvedTools(ctx)
	if err != nil {
		p.logger.WithError(err).Error("Failed to resolve tool catalog")
		return p.fail(stream, CodeInternal, "tool catalog unavailable", 0, 0)
	}
	catalog, err := governance.NewCatalog(definitions)
	if err != nil {
		p.logger.WithError(err).Error("Tool catalog failed to compile")
		return p.fail(stream, CodeInternal, "tool catalog unavailable", 0, 0)
	}

	p.persistMessage(ctx, req.ConversationID, "user", question, nil)

	assembled := p.assembler.Assemble(ctx, prompt.Request{
		Question: question,
		History:  req.History,
	})

	key := semcache.Key{
		Language:      exec.Language,
		Question:      question,
		ToolsetDigest: semcache.ToolsetDigest(catalog.SortedByName()),
		PlanDigest:    semcache.PlanDigest(assembled.Packs),
	}

	useCache := p.cache != nil && p.cache.Enabled() && !req.BypassCache
	if useCache {
		if answer, hit := p.cache.TryGetAnswer(ctx, exec.TenantID, key); hit {
			p.persistMessage(ctx, req.ConversationID, "assistant", answer, nil)
			stream.Publish(Event{Type: EventFinal, Payload: answer})
			turnsTotal.WithLabelValues("ok").Inc()
			turnSteps.Observe(0)
			result := success(answer, 0, 0)
			result.CacheHit = true
			return result
		}
	}

	if useCache && p.guard != nil {
		// Coalesce identical concurrent misses: one caller runs the loop,
		// the rest wait for its answer.
		var local Result
		leader := false
		flightKey := exec.TenantID + ":" + key.Digest()
		answer, _, err := p.guard.Do(ctx, flightKey, func() (string, error) {
			leader = true
			local = p.runLoop(ctx, exec, req, question, catalog, assembled, key, stream)
			if !local.Success {
				return "", &turnError{code: local.Code, detail: local.Detail}
			}
			return local.Content, nil
		})
		if leader {
			return local
		}
		if err != nil {
			var te *turnError
			if errors.As(err, &te) {
				return p.fail(stream, te.code, te.detail, 0, 0)
			}
			if ctx.Err() != nil {
				return p.fail(stream, CodeCancelled, "request cancelled", 0, 0)
			}
			return p.fail(stream, CodeInternal, "request failed", 0, 0)
		}
		// A coalesced follower shares the leader's answer but owns its
		// conversation, so the assistant reply is persisted here too.
		p.persistMessage(ctx, req.ConversationID, "assistant", answer, nil)
		stream.Publish(Event{Type: EventFinal, Payload: answer})
		turnsTotal.WithLabelValues("ok").Inc()
		turnSteps.Observe(0)
		result := success(answer, 0, 0)
		result.CacheHit = true
		return result
	}

	return p.runLoop(ctx, exec, req, question, catalog, assembled, key, stream)
}

func (p *Pipeline) runLoop(
	ctx context.Context,
	exec tenantctx.ExecutionContext,
	req Request,
	question string,
	catalog *governance.Catalog,
	assembled prompt.Assembled,
	key semcache.Key,
	stream *EventStream,
) Result {
	messages := assembled.Messages
	tools := catalog.EnabledTools(exec)
	recursion := NewRecursionPolicy(p.cfg.MaxSteps, p.cfg.MaxRecursiveDepth)
	llmPolicy := p.policies.For("llm")
	sqlPolicy := p.policies.For("sql")
	toolCallCount := 0

	for step := 0; step < p.cfg.MaxSteps; step++ {
		if ctx.Err() != nil {
			return p.fail(stream, CodeCancelled, "request cancelled", step, toolCallCount)
		}

		messages = p.fitMessages(messages)

		completion, err := p.complete(ctx, llmPolicy, messages, tools, stream)
		if err != nil {
			if ctx.Err() != nil {
				return p.fail(stream, CodeCancelled, "request cancelled", step, toolCallCount)
			}
			p.logger.WithError(err).WithField("step", step).Warn("Model call failed")
			if resilience.IsCircuitOpen(err) {
				return p.fail(stream, CodeLLMUnavailable, "the assistant is temporarily unavailable, please retry shortly", step, toolCallCount)
			}
			return p.fail(stream, CodeLLMUnavailable, "the assistant could not be reached, please retry", step, toolCallCount)
		}

		if len(completion.ToolCalls) == 0 {
			p.persistMessage(ctx, req.ConversationID, "assistant", completion.Content, nil)
			if p.cache != nil && !req.BypassCache {
				p.cache.SetAnswer(ctx, exec.TenantID, key, completion.Content, req.Sensitive)
			}
			stream.Publish(Event{Type: EventFinal, Payload: completion.Content})
			turnsTotal.WithLabelValues("ok").Inc()
			turnSteps.Observe(float64(step + 1))
			return success(completion.Content, step+1, toolCallCount)
		}

		if err := recursion.TryAdvance(); err != nil {
			return p.fail(stream, CodeMaxSteps, err.Error(), step, toolCallCount)
		}
		toolCallCount += len(completion.ToolCalls)
		if toolCallCount > p.cfg.MaxToolCallsPerRequest {
			detail := fmt.Sprintf("tool call budget of %d exceeded", p.cfg.MaxToolCallsPerRequest)
			return p.fail(stream, CodeTooManyTools, detail, step, toolCallCount)
		}

		callsJSON, _ := json.Marshal(completion.ToolCalls)
		p.persistMessage(ctx, req.ConversationID, "assistant", completion.Content, callsJSON)
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			toolMsg, failResult := p.executeToolCall(ctx, exec, req, sqlPolicy, catalog, call, stream, recursion.Steps(), toolCallCount)
			if failResult != nil {
				return *failResult
			}
			messages = append(messages, toolMsg)
		}
	}

	detail := fmt.Sprintf("no final answer after %d steps", p.cfg.MaxSteps)
	return p.fail(stream, CodeMaxSteps, detail, p.cfg.MaxSteps, toolCallCount)
}

// complete runs one model round under the resilience policy, streaming
// deltas as they arrive. Retried attempts run silently so the consumer never
// sees the answer's prefix twice; the final event carries the full text.
func (p *Pipeline) complete(ctx context.Context, policy *resilience.Policy, messages []llm.Message, tools []llm.Tool, stream *EventStream) (llm.Completion, error) {
	start := time.Now()
	attempts := 0
	val, err := policy.Execute(ctx, func() (any, error) {
		attempts++
		s, err := p.provider.Complete(ctx, messages, tools)
		if err != nil {
			return nil, err
		}
		var onDelta func(string) error
		if attempts == 1 {
			onDelta = func(delta string) error {
				stream.Publish(Event{Type: EventDelta, Payload: delta})
				return nil
			}
		}
		return llm.Collect(s, onDelta)
	})
	llmDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		llmCallsTotal.WithLabelValues("error").Inc()
		return llm.Completion{}, err
	}
	llmCallsTotal.WithLabelValues("success").Inc()
	return val.(llm.Completion), nil
}

// executeToolCall validates and runs one governed tool call. A non-nil
// failResult aborts the turn.
func (p *Pipeline) executeToolCall(
	ctx context.Context,
	exec tenantctx.ExecutionContext,
	req Request,
	sqlPolicy *resilience.Policy,
	catalog *governance.Catalog,
	call llm.ToolCall,
	stream *EventStream,
	steps, toolCallCount int,
) (llm.Message, *Result) {
	stream.Publish(Event{Type: EventToolCall, Payload: map[string]any{
		"tool":      call.Name,
		"arguments": call.Arguments,
	}})

	validated, violation := governance.Validate(call, catalog, exec)
	if violation != nil {
		governanceRejects.WithLabelValues(violation.Code).Inc()
		p.logger.WithFields(logging.Fields{
			"tool": call.Name,
			"code": violation.Code,
		}).Warn("Tool call refused by governance")
		detail := violation.Detail
		if len(violation.SchemaErrors) > 0 {
			detail = fmt.Sprintf("%s: %v", detail, violation.SchemaErrors)
		}
		result := p.fail(stream, violation.Code, detail, steps, toolCallCount)
		return llm.Message{}, &result
	}

	execStart := time.Now()
	raw, err := sqlPolicy.Execute(ctx, func() (any, error) {
		return p.executor.Execute(ctx, validated.Tool.ProcedureName, validated.Args)
	})
	duration := time.Since(execStart)

	if err != nil {
		toolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		p.logger.WithError(err).WithField("tool", call.Name).Warn("Tool execution failed")
		p.persistToolExecution(ctx, req.ConversationID, validated.Tool, call, nil, false, duration)
		result := p.fail(stream, CodeToolFailed, fmt.Sprintf("tool %s failed", call.Name), steps, toolCallCount)
		return llm.Message{}, &result
	}

	compacted := CompactResult(raw.(json.RawMessage), p.cfg.ToolResultMaxBytes)
	toolCallsTotal.WithLabelValues(call.Name, "success").Inc()
	p.persistToolExecution(ctx, req.ConversationID, validated.Tool, call, json.RawMessage(compacted), true, duration)

	stream.Publish(Event{Type: EventToolResult, Payload: map[string]any{
		"tool":   call.Name,
		"result": compacted,
	}})

	return llm.Message{
		Role:       "tool",
		Content:    compacted,
		Name:       call.Name,
		ToolCallID: call.ID,
	}, nil
}

// fitMessages re-applies the history budget once the loop has grown the
// message list past it. The system prompt and the latest user message are
// preserved.
func (p *Pipeline) fitMessages(messages []llm.Message) []llm.Message {
	if len(messages) < 2 {
		return messages
	}
	budget := p.assembler.BudgetChars() - len(messages[0].Content)
	if budget < 0 {
		budget = 0
	}
	trimmed := prompt.TrimHistory(messages[1:], budget, p.assembler.RetainCount())
	return append(messages[:1:1], trimmed...)
}

func (p *Pipeline) persistMessage(ctx context.Context, conversationID, role, content string, toolCalls json.RawMessage) {
	if p.store == nil || conversationID == "" {
		return
	}
	tokens := store.TokenCounts{}
	switch role {
	case "user":
		tokens.Input = prompt.EstimateTokens(content)
	case "assistant":
		tokens.Output = prompt.EstimateTokens(content)
	}
	if err := p.store.AddMessage(ctx, conversationID, role, content, toolCalls, tokens); err != nil {
		p.logger.WithError(err).WithField("role", role).Warn("Failed to persist message")
	}
}

func (p *Pipeline) persistToolExecution(ctx context.Context, conversationID string, tool governance.ToolDefinition, call llm.ToolCall, result json.RawMessage, ok bool, duration time.Duration) {
	if p.store == nil || conversationID == "" {
		return
	}
	args := json.RawMessage(call.Arguments)
	if !json.Valid(args) {
		args, _ = json.Marshal(call.Arguments)
	}
	// Compaction can cut a JSON result mid-token; re-wrap so the audit
	// column still holds valid JSON.
	if len(result) > 0 && !json.Valid(result) {
		result, _ = json.Marshal(string(result))
	}
	record := store.ToolExecution{
		ConversationID: conversationID,
		ToolName:       tool.Name,
		ProcedureName:  tool.ProcedureName,
		Arguments:      args,
		Result:         result,
		Success:        ok,
		DurationMS:     duration.Milliseconds(),
	}
	if err := p.store.RecordToolExecution(ctx, record); err != nil {
		p.logger.WithError(err).WithField("tool", tool.Name).Warn("Failed to persist tool execution")
	}
}

func (p *Pipeline) fail(stream *EventStream, code, detail string, steps, toolCalls int) Result {
	stream.Publish(Event{Type: EventError, Payload: map[string]string{
		"code":   code,
		"detail": detail,
	}})
	turnsTotal.WithLabelValues(code).Inc()
	turnSteps.Observe(float64(steps))
	return failure(code, detail, steps, toolCalls)
}
