package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haldis/strand/pkg/models"
)

// suggestionCount is how many follow-up prompts a turn ends with.
const suggestionCount = 3

const suggestionSystemPrompt = "You generate short follow-up prompts a user might tap next. " +
	"Reply with one suggestion per line, no numbering, no commentary. " +
	"Each suggestion is a complete question or request under 60 characters, " +
	"phrased in the user's language."

// generateSuggestions asks the provider for follow-up prompts based on the
// persona's hints and the latest assistant reply. It goes through the same
// Decide boundary as reasoning; callers treat any error as "no suggestions".
func (l *Loop) generateSuggestions(ctx context.Context, st *models.ConversationState) ([]string, error) {
	last := st.LastAssistantTurn()
	if last == nil || strings.TrimSpace(last.Content) == "" {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The assistant just said:\n%s\n\n", last.Content)
	if len(st.SuggestionHints) > 0 {
		sb.WriteString("Persona guidance:\n")
		for _, h := range st.SuggestionHints {
			sb.WriteString("- " + h + "\n")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Suggest %d follow-ups the user might send next (language: %s).", suggestionCount, st.Language)

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.ProviderTimeout)
	defer cancel()

	dec, err := l.provider.Decide(callCtx, &Request{
		System: suggestionSystemPrompt,
		Turns: []models.Turn{{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   sb.String(),
			CreatedAt: time.Now().UTC(),
		}},
		MaxTokens: 256,
	})
	if err != nil {
		return nil, err
	}
	if dec == nil || dec.Text == "" {
		return nil, nil
	}
	return parseSuggestions(dec.Text, suggestionCount), nil
}

// parseSuggestions extracts up to max clean suggestion lines, stripping list
// markers the model tends to add despite instructions.
func parseSuggestions(text string, max int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•")
		for i := 1; i <= 9; i++ {
			line = strings.TrimPrefix(line, fmt.Sprintf("%d.", i))
			line = strings.TrimPrefix(line, fmt.Sprintf("%d)", i))
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}
