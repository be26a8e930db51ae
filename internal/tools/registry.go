package tools

import (
	"log/slog"

	"github.com/haldis/strand/internal/observability"
)

// Factory builds the tools for one capability name. A factory may yield one
// tool or several related ones (the persona capability yields three); every
// factory returns a list so the registry needs no special cases.
type Factory func(b Binding) []Tool

// Registry maps capability names to factories. Registration order is the
// binding order, so tool lists are deterministic and reproducible in logs
// and tests.
type Registry struct {
	names     []string
	factories map[string]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Registry{
		factories: map[string]Factory{},
		logger:    logger,
	}
}

// NewDefaultRegistry creates a registry with all built-in capabilities.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register("knowledge_base", NewKnowledgeBaseTools)
	r.Register("video_transcript", NewTranscriptTools)
	r.Register("image_description", NewImageDescriptionTools)
	r.Register("persona", NewPersonaTools)
	return r
}

// Register adds a factory under a capability name. Re-registering a name
// replaces the factory but keeps its original position.
func (r *Registry) Register(name string, factory Factory) {
	if _, ok := r.factories[name]; !ok {
		r.names = append(r.names, name)
	}
	r.factories[name] = factory
}

// Bind resolves the enabled capability names against the registry and
// returns the flattened tool list in registration order. Unknown names are
// logged and skipped: partial tool availability must not break the
// conversation.
func (r *Registry) Bind(b Binding, enabled []string) []Tool {
	if b.Logger == nil {
		b.Logger = r.logger
	}

	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		if _, ok := r.factories[name]; !ok {
			r.logger.Warn("unknown tool capability, skipping",
				"capability", name,
				"thread_id", b.ThreadID)
			continue
		}
		want[name] = true
	}

	var bound []Tool
	for _, name := range r.names {
		if !want[name] {
			continue
		}
		bound = append(bound, r.factories[name](b)...)
	}

	r.logger.Debug("bound tools",
		"thread_id", b.ThreadID,
		"requested", len(enabled),
		"bound", len(bound))
	return bound
}
