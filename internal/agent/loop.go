package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haldis/strand/internal/observability"
	"github.com/haldis/strand/internal/tools"
	"github.com/haldis/strand/pkg/models"
)

const (
	defaultMaxCycles       = 8
	defaultToolParallelism = 4
	defaultToolTimeout     = 30 * time.Second
	defaultProviderTimeout = 60 * time.Second
)

// Messages shown when a turn degrades instead of failing. The user always
// receives text, never a raw error.
const (
	upstreamFailureText = "I'm having trouble reaching my language model right now. Please try again in a moment."
	exhaustedText       = "I couldn't finish working through that request. Could you rephrase it or break it into smaller steps?"
	malformedText       = "I wasn't able to produce a useful answer for that. Could you try asking differently?"
)

// LoopConfig tunes the reasoning loop. Zero values select defaults.
type LoopConfig struct {
	// MaxCycles caps reasoning/tool cycles per turn.
	MaxCycles int
	// ToolParallelism bounds concurrent tool executions within one cycle.
	ToolParallelism int
	// ToolTimeout bounds each tool call.
	ToolTimeout time.Duration
	// ProviderTimeout bounds each language-model call.
	ProviderTimeout time.Duration
	// MaxTokens caps provider responses; zero uses the provider default.
	MaxTokens int
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.MaxCycles <= 0 {
		c.MaxCycles = defaultMaxCycles
	}
	if c.ToolParallelism <= 0 {
		c.ToolParallelism = defaultToolParallelism
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = defaultToolTimeout
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = defaultProviderTimeout
	}
	return c
}

// Loop drives one turn through the reasoning state machine:
// reasoning → tool_execution → reasoning … → suggestion_generation → terminal.
// It owns no locking and no persistence policy; the runtime supplies both.
type Loop struct {
	provider Provider
	logger   *slog.Logger
	metrics  *observability.Metrics
	cfg      LoopConfig
}

// NewLoop creates a loop. metrics may be nil.
func NewLoop(provider Provider, logger *slog.Logger, metrics *observability.Metrics, cfg LoopConfig) *Loop {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Loop{
		provider: provider,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
	}
}

// Run executes cycles until a terminal decision, the cycle cap, or
// cancellation. checkpoint is called after every completed cycle; a
// cancelled cycle is never checkpointed. Events are emitted in execution
// order: text chunks, then suggestions, then the state update.
func (l *Loop) Run(ctx context.Context, st *models.ConversationState, bound []tools.Tool, checkpoint func(context.Context) error, emit func(models.StreamEvent)) error {
	if emit == nil {
		emit = func(models.StreamEvent) {}
	}

	cycles := 0
	defer func() {
		if l.metrics != nil {
			l.metrics.CyclesPerTurn.Observe(float64(cycles))
		}
	}()

	for {
		if cycles >= l.cfg.MaxCycles {
			l.logger.Warn("cycle cap reached, forcing end",
				"thread_id", st.ThreadID,
				"cycles", cycles,
				"error", ErrReasoningExhausted)
			if l.metrics != nil {
				l.metrics.ReasoningExhausted.Inc()
			}
			st.ResetCycle()
			return l.finish(ctx, st, exhaustedText, false, checkpoint, emit)
		}
		cycles++

		st.ResetCycle()

		dec, err := l.decide(ctx, st, bound)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("reasoning step failed after retry",
				"thread_id", st.ThreadID,
				"cycle", cycles,
				"error", err)
			return l.finish(ctx, st, upstreamFailureText, false, checkpoint, emit)
		}

		switch {
		case dec.IsToolCall():
			// Tools win even when terminal text is present; the text is
			// kept on the turn and re-evaluated next cycle.
			st.NextAction = models.ActionTools
			if err := l.runToolCycle(ctx, st, bound, dec); err != nil {
				return err
			}
			if err := l.checkpointCycle(ctx, st, checkpoint); err != nil {
				return err
			}

		case dec.IsMalformed():
			l.logger.Warn("malformed decision, treating as end",
				"thread_id", st.ThreadID,
				"cycle", cycles)
			return l.finish(ctx, st, malformedText, false, checkpoint, emit)

		default:
			return l.finish(ctx, st, dec.Text, true, checkpoint, emit)
		}
	}
}

// decide runs one reasoning step with a timeout and a single retry on
// upstream failure.
func (l *Loop) decide(ctx context.Context, st *models.ConversationState, bound []tools.Tool) (*Decision, error) {
	req := &Request{
		System:    st.SystemPrompt,
		Turns:     st.Turns,
		Tools:     bound,
		MaxTokens: l.cfg.MaxTokens,
	}

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.ProviderTimeout)
	dec, err := l.provider.Decide(callCtx, req)
	cancel()
	if err == nil {
		return dec, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	callCtx, cancel = context.WithTimeout(ctx, l.cfg.ProviderTimeout)
	dec, err = l.provider.Decide(callCtx, req)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return dec, nil
}

// runToolCycle records the assistant's tool request, executes the calls
// concurrently, and records the results. Each call id owns its own result
// slot, so there is no shared mutable state between executions.
func (l *Loop) runToolCycle(ctx context.Context, st *models.ConversationState, bound []tools.Tool, dec *Decision) error {
	now := time.Now().UTC()
	st.MergeTurns(models.Turn{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   dec.Text,
		ToolCalls: dec.ToolCalls,
		CreatedAt: now,
	})

	byName := make(map[string]tools.Tool, len(bound))
	for _, t := range bound {
		byName[t.Name()] = t
	}

	results := make([]models.ToolResult, len(dec.ToolCalls))
	sem := make(chan struct{}, l.cfg.ToolParallelism)
	var wg sync.WaitGroup

	for i, call := range dec.ToolCalls {
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = l.executeCall(ctx, byName, call)
		}(i, call)
	}
	wg.Wait()

	if ctx.Err() != nil {
		// Cancellation discards the partial cycle: results are not merged
		// and the caller must not checkpoint.
		return ctx.Err()
	}

	for _, res := range results {
		st.ToolResults[res.ToolCallID] = res
	}
	st.MergeTurns(models.Turn{
		ID:          uuid.NewString(),
		Role:        models.RoleTool,
		ToolResults: results,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func (l *Loop) executeCall(ctx context.Context, byName map[string]tools.Tool, call models.ToolCall) models.ToolResult {
	tool, ok := byName[call.Name]
	if !ok {
		l.logger.Warn("requested tool not bound, skipping",
			"tool", call.Name,
			"error", ErrToolNotFound)
		l.countTool(call.Name, "not_found")
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Tool %q is not available in this conversation.", call.Name),
			IsError:    true,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.ToolTimeout)
	defer cancel()

	res, err := tool.Execute(callCtx, call.Input)
	if err != nil {
		l.logger.Warn("tool execution failed",
			"tool", call.Name,
			"error", err)
		l.countTool(call.Name, "error")
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Tool %q could not complete: the service timed out or is unavailable.", call.Name),
			IsError:    true,
		}
	}

	outcome := "ok"
	if res.IsError {
		outcome = "soft_fail"
	}
	l.countTool(call.Name, outcome)
	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    res.Content,
		IsError:    res.IsError,
	}
}

func (l *Loop) countTool(name, outcome string) {
	if l.metrics != nil {
		l.metrics.ToolExecutions.WithLabelValues(name, outcome).Inc()
	}
}

// finish runs the terminal transition: suggestion generation (best-effort),
// final checkpoint, and ordered event emission.
func (l *Loop) finish(ctx context.Context, st *models.ConversationState, text string, withSuggestions bool, checkpoint func(context.Context) error, emit func(models.StreamEvent)) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	st.NextAction = models.ActionEnd
	st.MergeTurns(models.Turn{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	})

	st.Suggestions = nil
	if withSuggestions {
		sugs, err := l.generateSuggestions(ctx, st)
		if err != nil {
			// Best-effort: a suggestion failure never fails the turn.
			l.logger.Debug("suggestion generation failed",
				"thread_id", st.ThreadID,
				"error", err)
		} else {
			st.Suggestions = sugs
		}
	}

	if err := l.checkpointCycle(ctx, st, checkpoint); err != nil {
		return err
	}

	emit(models.StreamEvent{Type: models.EventTextChunk, Text: text})
	emit(models.StreamEvent{Type: models.EventSuggestions, Suggestions: st.Suggestions})
	emit(models.StreamEvent{Type: models.EventStateUpdate, State: map[string]any{
		"thread_id":  st.ThreadID,
		"persona":    st.SubAgentID,
		"turn_count": len(st.Turns),
	}})
	return nil
}

func (l *Loop) checkpointCycle(ctx context.Context, st *models.ConversationState, checkpoint func(context.Context) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	st.UpdatedAt = time.Now().UTC()
	if checkpoint == nil {
		return nil
	}
	if err := checkpoint(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
