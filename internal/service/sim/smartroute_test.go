package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

func TestParseRouteDecision(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"bare continue", `{"decision": "continue"}`, "continue", true},
		{"bare wait", `{"decision": "wait_for_human"}`, "wait_for_human", true},
		{"prose around json", "Meine Einschätzung:\n```json\n{\"decision\": \"wait_for_human\"}\n```", "wait_for_human", true},
		{"unknown decision", `{"decision": "escalate"}`, "", false},
		{"no json", "weiter so", "", false},
		{"broken json", `{"decision": `, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseRouteDecision(tc.raw)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("parseRouteDecision(%q) = %q, %v; want %q, %v", tc.raw, got, ok, tc.want, tc.ok)
			}
		})
	}
}

// stubClassifier answers with a fixed completion or error.
type stubClassifier struct {
	answer string
	err    error
	asked  bool
}

func (c *stubClassifier) Classify(ctx context.Context, system, user string) (string, error) {
	c.asked = true
	return c.answer, c.err
}

func TestSmartSuggesterOverridesOnlyAgentContinuations(t *testing.T) {
	st := mediatorState(1, conversation.SpeakerAgentA)

	cls := &stubClassifier{answer: `{"decision": "wait_for_human"}`}
	next, err := NewSmartSuggester(cls).SuggestNext(context.Background(), st)
	if err != nil {
		t.Fatalf("suggest failed: %v", err)
	}
	if next != conversation.SpeakerHuman {
		t.Fatalf("wait decision must route to the human, got %q", next)
	}

	cls = &stubClassifier{answer: `{"decision": "continue"}`}
	next, _ = NewSmartSuggester(cls).SuggestNext(context.Background(), st)
	if next != conversation.SpeakerAgentB {
		t.Fatalf("continue must keep the ruled speaker, got %q", next)
	}
}

func TestSmartSuggesterPassesThroughNonAgentDecisions(t *testing.T) {
	st := mediatorState(2, conversation.SpeakerAgentA)
	st.StopRequested = true

	cls := &stubClassifier{answer: `{"decision": "continue"}`}
	next, err := NewSmartSuggester(cls).SuggestNext(context.Background(), st)
	if err != nil {
		t.Fatalf("suggest failed: %v", err)
	}
	if next != conversation.SpeakerEvaluator {
		t.Fatalf("stop must still route to the evaluator, got %q", next)
	}
	if cls.asked {
		t.Fatalf("classifier must not be consulted for non-agent decisions")
	}
}

func TestSmartSuggesterFallsBackOnFailure(t *testing.T) {
	st := mediatorState(1, conversation.SpeakerAgentA)

	cls := &stubClassifier{err: errors.New("upstream unavailable")}
	next, err := NewSmartSuggester(cls).SuggestNext(context.Background(), st)
	if err != nil {
		t.Fatalf("fallback must swallow the error, got %v", err)
	}
	if next != conversation.SpeakerAgentB {
		t.Fatalf("expected ruled fallback, got %q", next)
	}

	cls = &stubClassifier{answer: "kein json"}
	next, _ = NewSmartSuggester(cls).SuggestNext(context.Background(), st)
	if next != conversation.SpeakerAgentB {
		t.Fatalf("unparseable answer must fall back, got %q", next)
	}
}
