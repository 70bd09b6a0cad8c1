package sim

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/ai"
)

// NextSuggester proposes the next speaker after a completed agent turn.
// Implementations may be side-effecting; the deterministic rules remain
// the source of truth whenever a suggester declines or fails.
type NextSuggester interface {
	SuggestNext(ctx context.Context, st *conversation.SessionState) (conversation.Speaker, error)
}

// RuleSuggester applies the deterministic routing rules.
type RuleSuggester struct{}

// SuggestNext returns the rule-based decision.
func (RuleSuggester) SuggestNext(_ context.Context, st *conversation.SessionState) (conversation.Speaker, error) {
	return Decide(st), nil
}

const smartRouteSystem = `Du beobachtest ein laufendes Konfliktgespräch in einer Mediationsübung. Entscheide, ob die beiden Parteien von allein weiterreden sollen oder ob jetzt ein guter Moment für eine Intervention des Mediators ist. Antworte ausschließlich mit JSON in genau dieser Form: {"decision": "continue"} oder {"decision": "wait_for_human"}.`

const smartRouteContext = 6

// SmartSuggester asks the generation capability whether the two personas
// should keep talking or whether a human decision point is due. Any
// failure or unparseable answer falls back to the deterministic rules.
type SmartSuggester struct {
	classifier ai.Classifier
	log        *slog.Logger
}

// NewSmartSuggester wires the capability-driven router variant.
func NewSmartSuggester(classifier ai.Classifier) *SmartSuggester {
	return &SmartSuggester{
		classifier: classifier,
		log:        slog.With("component", "sim"),
	}
}

// SuggestNext overrides only agent-to-agent continuations; stop requests,
// human turns and terminal decisions pass through untouched.
func (s *SmartSuggester) SuggestNext(ctx context.Context, st *conversation.SessionState) (conversation.Speaker, error) {
	ruled := Decide(st)
	if !ruled.IsAgent() {
		return ruled, nil
	}

	raw, err := s.classifier.Classify(ctx, smartRouteSystem, recentTranscript(st, smartRouteContext))
	if err != nil {
		s.log.Warn("smart routing failed, falling back to rules", "session_id", st.ID, "error", err)
		return ruled, nil
	}

	decision, ok := parseRouteDecision(raw)
	if !ok {
		s.log.Warn("smart routing returned unparseable output, falling back to rules", "session_id", st.ID)
		return ruled, nil
	}
	if decision == "wait_for_human" {
		return conversation.SpeakerHuman, nil
	}
	return ruled, nil
}

// parseRouteDecision extracts the decision from the classifier output,
// tolerating prose around the JSON object.
func parseRouteDecision(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}

	var payload struct {
		Decision string `json:"decision"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return "", false
	}

	switch payload.Decision {
	case "continue", "wait_for_human":
		return payload.Decision, true
	}
	return "", false
}

// recentTranscript renders the newest entries for the classifier.
func recentTranscript(st *conversation.SessionState, limit int) string {
	transcript := st.Transcript
	if len(transcript) > limit {
		transcript = transcript[len(transcript)-limit:]
	}

	var b strings.Builder
	for _, m := range transcript {
		b.WriteString(attributedText(st, m))
		b.WriteString("\n")
	}
	return b.String()
}
