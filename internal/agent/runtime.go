package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haldis/strand/internal/checkpoint"
	"github.com/haldis/strand/internal/observability"
	"github.com/haldis/strand/internal/search"
	"github.com/haldis/strand/internal/subagent"
	"github.com/haldis/strand/internal/tools"
	"github.com/haldis/strand/internal/transcript"
	"github.com/haldis/strand/internal/vision"
	"github.com/haldis/strand/pkg/models"
)

// Options configures a Runtime. Provider and Store are required; everything
// else has a working default.
type Options struct {
	Registry *tools.Registry
	Personas *subagent.Loader

	// Search is the knowledge-base backend; nil disables the feature.
	Search search.Service
	// Transcripts is the transcript backend; nil means unavailable.
	Transcripts        transcript.Fetcher
	TranscriptsEnabled bool

	// Vision is the image description backend; nil means unavailable.
	Vision        vision.Describer
	VisionEnabled bool

	Loop    LoopConfig
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Runtime executes turns with per-thread mutual exclusion. Exactly one loop
// may be active per thread id; a new turn for a busy thread cancels the
// in-flight generation, then waits for the lock. Distinct thread ids run
// fully in parallel.
type Runtime struct {
	loop     *Loop
	store    checkpoint.Store
	registry *tools.Registry
	personas *subagent.Loader

	searchSvc          search.Service
	transcripts        transcript.Fetcher
	transcriptsEnabled bool
	vision             vision.Describer
	visionEnabled      bool

	logger  *slog.Logger
	metrics *observability.Metrics

	// threadLocks serializes loop executions per thread id.
	threadLocksMu sync.Mutex
	threadLocks   map[string]*threadLock

	// inflight maps a thread id to its running turn's cancellation handle.
	inflightMu sync.Mutex
	inflight   map[string]*inflightTurn
}

type inflightTurn struct {
	cancel context.CancelFunc
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

// NewRuntime wires a runtime. A nil Personas loader falls back to the
// built-in bundles; a nil Registry gets the default tool set.
func NewRuntime(provider Provider, store checkpoint.Store, opts Options) (*Runtime, error) {
	if provider == nil {
		return nil, errors.New("agent: provider is required")
	}
	if store == nil {
		return nil, errors.New("agent: checkpoint store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	registry := opts.Registry
	if registry == nil {
		registry = tools.NewDefaultRegistry(logger)
	}
	personas := opts.Personas
	if personas == nil {
		var err error
		personas, err = subagent.NewLoader("", logger)
		if err != nil {
			return nil, err
		}
	}

	return &Runtime{
		loop:               NewLoop(provider, logger, opts.Metrics, opts.Loop),
		store:              store,
		registry:           registry,
		personas:           personas,
		searchSvc:          opts.Search,
		transcripts:        opts.Transcripts,
		transcriptsEnabled: opts.TranscriptsEnabled,
		vision:             opts.Vision,
		visionEnabled:      opts.VisionEnabled,
		logger:             logger,
		metrics:            opts.Metrics,
		threadLocks:        map[string]*threadLock{},
		inflight:           map[string]*inflightTurn{},
	}, nil
}

// Turn executes one turn synchronously, emitting ordered events through
// emit. It returns when the turn reaches terminal state, is cancelled, or
// fails on persistence.
func (r *Runtime) Turn(ctx context.Context, req models.TurnRequest, emit func(models.StreamEvent)) error {
	if strings.TrimSpace(req.ThreadID) == "" {
		return fmt.Errorf("%w: empty thread_id", ErrInvalidRequest)
	}
	if !req.Platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidRequest, req.Platform)
	}
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidRequest)
	}

	if r.metrics != nil {
		r.metrics.TurnsStarted.WithLabelValues(string(req.Platform)).Inc()
	}

	// Cancel any in-flight generation for this thread, then queue on the
	// per-thread lock. The cancelled turn unwinds without checkpointing its
	// partial cycle; the last completed checkpoint remains durable.
	r.cancelInflight(req.ThreadID)

	unlock := r.lockThread(req.ThreadID)
	defer unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	entry := r.registerInflight(req.ThreadID, cancel)
	defer r.unregisterInflight(req.ThreadID, entry)
	defer cancel()

	st, err := r.loadState(turnCtx, req)
	if err != nil {
		r.countOutcome("load_error")
		return err
	}

	r.applyRequest(st, req)

	// Tool calls within one cycle run concurrently, and the model may issue
	// more than one persona switch; the mutex keeps each applyPersona atomic
	// so the state never carries fields from two different bundles.
	var personaMu sync.Mutex
	binding := tools.Binding{
		UserID:             st.UserID,
		ThreadID:           st.ThreadID,
		Platform:           st.Platform,
		Language:           st.Language,
		KnowledgeBases:     st.KnowledgeBases,
		Search:             r.searchSvc,
		Transcripts:        r.transcripts,
		TranscriptsEnabled: r.transcriptsEnabled,
		Vision:             r.vision,
		VisionEnabled:      r.visionEnabled,
		Personas:           r.personas,
		ActivePersona:      st.SubAgentID,
		SwitchPersona: func(personaID string) error {
			personaMu.Lock()
			defer personaMu.Unlock()
			r.applyPersona(st, personaID, true)
			return nil
		},
		Logger: r.logger,
	}
	bound := r.registry.Bind(binding, st.EnabledTools)

	save := func(ctx context.Context) error {
		start := time.Now()
		err := r.store.Save(ctx, st.ThreadID, st)
		if r.metrics != nil {
			r.metrics.CheckpointLatency.WithLabelValues("save").Observe(time.Since(start).Seconds())
		}
		return err
	}

	err = r.loop.Run(turnCtx, st, bound, save, emit)
	switch {
	case err == nil:
		r.countOutcome("ok")
	case errors.Is(err, context.Canceled):
		if r.metrics != nil {
			r.metrics.TurnsCancelled.Inc()
		}
	case errors.Is(err, ErrPersistence):
		r.countOutcome("persistence_error")
	default:
		r.countOutcome("error")
	}
	return err
}

// SubmitTurn runs a turn in the background and returns its ordered event
// stream. The channel closes when the turn finishes; fatal failures surface
// as a final friendly text chunk, never as a silent close.
func (r *Runtime) SubmitTurn(ctx context.Context, req models.TurnRequest) <-chan models.StreamEvent {
	ch := make(chan models.StreamEvent, 16)
	go func() {
		defer close(ch)
		emit := func(ev models.StreamEvent) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
		err := r.Turn(ctx, req, emit)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("turn failed",
			"thread_id", req.ThreadID,
			"platform", req.Platform,
			"error", err)
		emit(models.StreamEvent{
			Type: models.EventTextChunk,
			Text: "Something went wrong while handling your message. Please try again.",
		})
	}()
	return ch
}

// History returns the checkpointed state for a thread without running a turn.
func (r *Runtime) History(ctx context.Context, threadID string) (*models.ConversationState, error) {
	start := time.Now()
	st, err := r.store.Load(ctx, threadID)
	if r.metrics != nil {
		r.metrics.CheckpointLatency.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}
	return st, err
}

func (r *Runtime) loadState(ctx context.Context, req models.TurnRequest) (*models.ConversationState, error) {
	start := time.Now()
	st, err := r.store.Load(ctx, req.ThreadID)
	if r.metrics != nil {
		r.metrics.CheckpointLatency.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, checkpoint.ErrNotFound):
		st = models.NewConversationState(req.ThreadID, req.UserID, req.Platform, req.Language)
		r.applyPersona(st, subagent.DefaultPersonaID, false)
		return st, nil
	default:
		return nil, fmt.Errorf("%w: load %s: %v", ErrPersistence, req.ThreadID, err)
	}
}

// applyRequest folds the submission into state and appends the user turn.
func (r *Runtime) applyRequest(st *models.ConversationState, req models.TurnRequest) {
	if req.Language != "" {
		st.Language = req.Language
	}
	if len(req.KnowledgeBases) > 0 {
		st.KnowledgeBases = req.KnowledgeBases
	}
	if len(req.EnabledTools) > 0 {
		st.EnabledTools = req.EnabledTools
	}
	if st.SubAgentID == "" {
		r.applyPersona(st, subagent.DefaultPersonaID, false)
	}

	st.MergeTurns(models.Turn{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   req.Text,
		CreatedAt: time.Now().UTC(),
	})
}

// applyPersona activates a bundle on the state. With force, the bundle's
// tool set and knowledge bases replace the current ones; without, they only
// fill gaps so request-level overrides survive.
func (r *Runtime) applyPersona(st *models.ConversationState, personaID string, force bool) {
	bundle := r.personas.Load(personaID)

	st.SubAgentID = bundle.ID
	st.SubAgentMeta = bundle.Meta()
	st.SubAgentPersona = bundle.Persona()
	st.SuggestionHints = append([]string(nil), bundle.SuggestionHints...)
	st.SystemPrompt = bundle.RenderPrompt(fmt.Sprintf("user %d", st.UserID), st.Platform, st.Language)

	if force || len(st.EnabledTools) == 0 {
		st.EnabledTools = append([]string(nil), bundle.EnabledTools...)
	}
	if force || len(st.KnowledgeBases) == 0 {
		st.KnowledgeBases = bundle.ResolveKnowledgeBases(st.UserID)
	}

	r.logger.Info("persona applied",
		"thread_id", st.ThreadID,
		"persona", bundle.ID)
}

func (r *Runtime) countOutcome(outcome string) {
	if r.metrics != nil {
		r.metrics.TurnsCompleted.WithLabelValues(outcome).Inc()
	}
}

// lockThread serializes loop executions per thread id. Locks are ref-counted
// and removed from the table once the last waiter releases, so the table
// never grows with dead threads.
func (r *Runtime) lockThread(threadID string) func() {
	r.threadLocksMu.Lock()
	lock := r.threadLocks[threadID]
	if lock == nil {
		lock = &threadLock{}
		r.threadLocks[threadID] = lock
	}
	lock.refs++
	r.threadLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.threadLocksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(r.threadLocks, threadID)
		}
		r.threadLocksMu.Unlock()
	}
}

func (r *Runtime) registerInflight(threadID string, cancel context.CancelFunc) *inflightTurn {
	entry := &inflightTurn{cancel: cancel}
	r.inflightMu.Lock()
	r.inflight[threadID] = entry
	r.inflightMu.Unlock()
	return entry
}

func (r *Runtime) unregisterInflight(threadID string, entry *inflightTurn) {
	r.inflightMu.Lock()
	// Only remove our own registration; a newer turn may have replaced it.
	if r.inflight[threadID] == entry {
		delete(r.inflight, threadID)
	}
	r.inflightMu.Unlock()
}

// cancelInflight cancels the running generation for a thread, if any.
func (r *Runtime) cancelInflight(threadID string) {
	r.inflightMu.Lock()
	entry, ok := r.inflight[threadID]
	if ok {
		delete(r.inflight, threadID)
	}
	r.inflightMu.Unlock()
	if ok {
		r.logger.Info("cancelling in-flight generation", "thread_id", threadID)
		entry.cancel()
	}
}

// Cancel aborts the in-flight generation for a thread (front-end disconnect).
func (r *Runtime) Cancel(threadID string) {
	r.cancelInflight(threadID)
}
