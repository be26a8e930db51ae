package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// NewPersonaTools builds the persona management tools: listing available
// personas, reporting the active one, and switching. Switching mutates the
// conversation only through the binding's SwitchPersona callback.
func NewPersonaTools(b Binding) []Tool {
	return []Tool{
		&listPersonasTool{b: b},
		&activePersonaTool{b: b},
		&switchPersonaTool{b: b},
	}
}

type listPersonasTool struct {
	b Binding
}

func (t *listPersonasTool) Name() string { return "list_personas" }

func (t *listPersonasTool) Description() string {
	return "List the personas this assistant can switch to, with a short " +
		"description of each. Use this when the user asks what modes or " +
		"specialists are available."
}

func (t *listPersonasTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *listPersonasTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.b.Personas == nil {
		return &Result{Content: "Persona switching is not available."}, nil
	}
	var sb strings.Builder
	sb.WriteString("Available personas:\n")
	for _, bundle := range t.b.Personas.List() {
		fmt.Fprintf(&sb, "- %s %s (%s): %s\n", bundle.Icon, bundle.Name, bundle.ID, bundle.Description)
	}
	return &Result{Content: strings.TrimRight(sb.String(), "\n")}, nil
}

type activePersonaTool struct {
	b Binding
}

func (t *activePersonaTool) Name() string { return "get_active_persona" }

func (t *activePersonaTool) Description() string {
	return "Report which persona is currently active in this conversation."
}

func (t *activePersonaTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *activePersonaTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.b.ActivePersona == "" {
		return &Result{Content: "No persona is active; the default assistant persona is in effect."}, nil
	}
	if t.b.Personas != nil && t.b.Personas.Known(t.b.ActivePersona) {
		bundle := t.b.Personas.Load(t.b.ActivePersona)
		return &Result{Content: fmt.Sprintf("Active persona: %s %s (%s)", bundle.Icon, bundle.Name, bundle.ID)}, nil
	}
	return &Result{Content: "Active persona: " + t.b.ActivePersona}, nil
}

type switchPersonaTool struct {
	b Binding
}

func (t *switchPersonaTool) Name() string { return "switch_persona" }

func (t *switchPersonaTool) Description() string {
	return "Switch the conversation to a different persona. Use list_personas " +
		"first to see valid ids. The switch takes effect on the next reasoning step."
}

func (t *switchPersonaTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"persona_id": {
				"type": "string",
				"description": "Id of the persona to activate"
			}
		},
		"required": ["persona_id"]
	}`)
}

type switchPersonaInput struct {
	PersonaID string `json:"persona_id"`
}

func (t *switchPersonaTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in switchPersonaInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &Result{Content: "Invalid persona switch arguments: " + err.Error(), IsError: true}, nil
	}
	in.PersonaID = strings.TrimSpace(in.PersonaID)
	if in.PersonaID == "" {
		return &Result{Content: "A persona_id is required.", IsError: true}, nil
	}

	if t.b.Personas == nil || t.b.SwitchPersona == nil {
		return &Result{Content: "Persona switching is not available."}, nil
	}
	if !t.b.Personas.Known(in.PersonaID) {
		return &Result{Content: fmt.Sprintf("Unknown persona %q. Use list_personas to see valid ids.", in.PersonaID), IsError: true}, nil
	}

	if err := t.b.SwitchPersona(in.PersonaID); err != nil {
		t.b.Logger.Warn("persona switch failed",
			"thread_id", t.b.ThreadID,
			"persona", in.PersonaID,
			"error", err)
		return &Result{Content: "Could not switch persona right now. Please try again."}, nil
	}

	bundle := t.b.Personas.Load(in.PersonaID)
	return &Result{Content: fmt.Sprintf("Switched to %s %s. The new persona takes effect immediately.", bundle.Icon, bundle.Name)}, nil
}
