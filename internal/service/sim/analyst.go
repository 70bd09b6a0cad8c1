package sim

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

// Analysis kinds for single-message coaching feedback.
const (
	AnalysisKindParty    = "party"
	AnalysisKindMediator = "mediator"
)

// AnalysisRequest describes one transcript message to analyse on demand.
// The surrounding context travels with the request; no session state is
// read or written.
type AnalysisRequest struct {
	Speaker conversation.Speaker
	Name    string
	Content string
	Context []AnalysisContextEntry
}

// AnalysisContextEntry is one prior message shown to the analyst.
type AnalysisContextEntry struct {
	Name    string
	Content string
}

// AnalyzeMessage produces a short coaching analysis of a single message
// and reports the analysis kind (mediator for mediator interventions,
// party otherwise).
func (e *Engine) AnalyzeMessage(ctx context.Context, req AnalysisRequest) (string, string, error) {
	kind := AnalysisKindParty
	system := e.prompts.PartyAnalysisPrompt()
	if req.Speaker == conversation.SpeakerMediator {
		kind = AnalysisKindMediator
		system = e.prompts.MediatorAnalysisPrompt()
	}

	var user strings.Builder
	if len(req.Context) > 0 {
		user.WriteString("Gesprächskontext:\n")
		for _, entry := range req.Context {
			fmt.Fprintf(&user, "%s: %s\n", entry.Name, entry.Content)
		}
		user.WriteString("\n")
	}
	fmt.Fprintf(&user, "Zu analysierende Aussage von %s:\n%s", req.Name, req.Content)

	analysis, err := e.gen.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user.String()),
	})
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(analysis), kind, nil
}
