// Package subagent loads persona bundles: named configurations of prompt,
// persona description, default tools, and knowledge-base patterns that can
// be switched mid-conversation.
package subagent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haldis/strand/pkg/models"
)

// DefaultPersonaID is the fallback persona used when none is specified or
// a requested persona cannot be loaded.
const DefaultPersonaID = "general"

// Bundle is one persona configuration.
type Bundle struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Icon        string `yaml:"icon"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`

	Role               string   `yaml:"role"`
	Identity           string   `yaml:"identity"`
	CommunicationStyle string   `yaml:"communication_style"`
	Principles         []string `yaml:"principles"`

	// SystemPrompt may contain {user_name}, {platform} and {language}
	// placeholders, substituted at render time.
	SystemPrompt string `yaml:"system_prompt"`

	// EnabledTools are the capability names active under this persona.
	EnabledTools []string `yaml:"enabled_tools"`

	// KnowledgeBases are index patterns; {user_id} is substituted per user.
	KnowledgeBases []string `yaml:"knowledge_bases"`

	// SuggestionHints guide suggestion generation for this persona.
	SuggestionHints []string `yaml:"suggestion_hints"`
}

// Meta returns the bundle's metadata in state form.
func (b *Bundle) Meta() models.SubAgentMeta {
	return models.SubAgentMeta{
		ID:          b.ID,
		Name:        b.Name,
		Icon:        b.Icon,
		Description: b.Description,
		Version:     b.Version,
	}
}

// Persona returns the bundle's persona description in state form.
func (b *Bundle) Persona() models.SubAgentPersona {
	return models.SubAgentPersona{
		Role:               b.Role,
		Identity:           b.Identity,
		CommunicationStyle: b.CommunicationStyle,
		Principles:         append([]string(nil), b.Principles...),
	}
}

// RenderPrompt substitutes template variables into the system prompt.
func (b *Bundle) RenderPrompt(userName string, platform models.Platform, language string) string {
	r := strings.NewReplacer(
		"{user_name}", userName,
		"{platform}", string(platform),
		"{language}", language,
	)
	return r.Replace(b.SystemPrompt)
}

// ResolveKnowledgeBases expands {user_id} in the bundle's index patterns.
func (b *Bundle) ResolveKnowledgeBases(userID int64) []string {
	out := make([]string, 0, len(b.KnowledgeBases))
	for _, pattern := range b.KnowledgeBases {
		out = append(out, strings.ReplaceAll(pattern, "{user_id}", fmt.Sprintf("%d", userID)))
	}
	return out
}

// Loader resolves persona bundles by id. Built-in bundles are always
// available; a directory of YAML files can add or override them.
type Loader struct {
	bundles map[string]*Bundle
	logger  *slog.Logger
}

// NewLoader creates a loader with the built-in bundles plus any *.yaml
// bundles found in dir (empty dir skips the scan). A broken bundle file is
// logged and skipped; it never prevents startup.
func NewLoader(dir string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{bundles: map[string]*Bundle{}, logger: logger}
	for _, b := range builtinBundles() {
		l.bundles[b.ID] = b
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read persona dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("skipping unreadable persona bundle", "path", path, "error", err)
				continue
			}
			var b Bundle
			if err := yaml.Unmarshal(data, &b); err != nil {
				logger.Warn("skipping invalid persona bundle", "path", path, "error", err)
				continue
			}
			if b.ID == "" {
				logger.Warn("skipping persona bundle without id", "path", path)
				continue
			}
			l.bundles[b.ID] = &b
		}
	}
	return l, nil
}

// Load returns the bundle for id. An unknown id falls back to the default
// persona with a logged warning, matching the conversation-must-continue
// policy for partial configuration.
func (l *Loader) Load(id string) *Bundle {
	if b, ok := l.bundles[id]; ok {
		return b
	}
	l.logger.Warn("unknown persona, falling back to default", "persona", id)
	return l.bundles[DefaultPersonaID]
}

// Known reports whether id resolves without falling back.
func (l *Loader) Known(id string) bool {
	_, ok := l.bundles[id]
	return ok
}

// List returns all bundle ids in stable order.
func (l *Loader) List() []*Bundle {
	ids := make([]string, 0, len(l.bundles))
	for id := range l.bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Bundle, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.bundles[id])
	}
	return out
}

func builtinBundles() []*Bundle {
	return []*Bundle{
		{
			ID:                 "general",
			Name:               "Assistant",
			Icon:               "💬",
			Description:        "General-purpose conversational assistant",
			Version:            "1.0",
			Role:               "assistant",
			Identity:           "a helpful, concise conversational assistant",
			CommunicationStyle: "friendly and direct",
			Principles:         []string{"answer from the knowledge base when possible", "admit uncertainty"},
			SystemPrompt: "You are a helpful AI assistant talking to {user_name} on {platform}.\n" +
				"Reply in the {language} language. Use your tools when they can improve the answer.",
			EnabledTools:   []string{"knowledge_base", "video_transcript", "image_description", "persona"},
			KnowledgeBases: []string{"kb-user-{user_id}"},
			SuggestionHints: []string{
				"offer to search the knowledge base",
				"offer a digest of recent messages",
			},
		},
		{
			ID:                 "analyst",
			Name:               "Analyst",
			Icon:               "📊",
			Description:        "Digest and research persona for knowledge-base heavy work",
			Version:            "1.0",
			Role:               "research analyst",
			Identity:           "a methodical analyst who cites sources from the knowledge base",
			CommunicationStyle: "structured, with short summaries first",
			Principles:         []string{"always ground claims in retrieved messages", "prefer digests over raw dumps"},
			SystemPrompt: "You are a research analyst assisting {user_name} on {platform}.\n" +
				"Reply in {language}. Ground every claim in knowledge base results.",
			EnabledTools:   []string{"knowledge_base", "persona"},
			KnowledgeBases: []string{"kb-user-{user_id}"},
			SuggestionHints: []string{
				"offer weekly digest",
				"offer per-sender summaries",
			},
		},
	}
}
