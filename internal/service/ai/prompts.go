package ai

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

//go:embed prompts/*.txt
var promptFS embed.FS

const (
	promptAgentDefault     = "agent_default.txt"
	promptEvaluator        = "evaluator.txt"
	promptAnalysisParty    = "analysis_party.txt"
	promptAnalysisMediator = "analysis_mediator.txt"
)

// PromptLibrary resolves prompt templates. Files in the override directory
// win over the embedded defaults.
type PromptLibrary struct {
	dir string
}

// NewPromptLibrary creates a library with an optional override directory.
func NewPromptLibrary(dir string) *PromptLibrary {
	return &PromptLibrary{dir: dir}
}

// AgentDefault returns the fallback persona prompt.
func (p *PromptLibrary) AgentDefault() string {
	return p.load(promptAgentDefault)
}

// PersonaSystemPrompt composes the full system prompt for one persona turn.
func (p *PromptLibrary) PersonaSystemPrompt(persona conversation.AgentPersona) string {
	base := strings.TrimSpace(persona.SystemPrompt)
	if base == "" {
		base = p.AgentDefault()
	}
	return fmt.Sprintf(
		"%s\n\nDein Name ist %s. Antworte als %s in der Ich-Form und stelle deinen Namen nicht an den Anfang deiner Antwort.",
		base, persona.Name, persona.Name,
	)
}

// EvaluatorSystemPrompt composes the coach prompt for the close-out turn.
func (p *PromptLibrary) EvaluatorSystemPrompt(nameA, nameB string) string {
	prompt := p.load(promptEvaluator)
	prompt = strings.ReplaceAll(prompt, "{agent_a_name}", nameA)
	prompt = strings.ReplaceAll(prompt, "{agent_b_name}", nameB)
	return prompt
}

// PartyAnalysisPrompt returns the instructions for analysing one message
// spoken by a conflict party.
func (p *PromptLibrary) PartyAnalysisPrompt() string {
	return p.load(promptAnalysisParty)
}

// MediatorAnalysisPrompt returns the instructions for analysing one
// mediator intervention.
func (p *PromptLibrary) MediatorAnalysisPrompt() string {
	return p.load(promptAnalysisMediator)
}

// load resolves a template by filename, preferring the override directory.
func (p *PromptLibrary) load(name string) string {
	if p.dir != "" {
		if raw, err := os.ReadFile(filepath.Join(p.dir, name)); err == nil {
			return strings.TrimSpace(string(raw))
		}
	}
	raw, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
