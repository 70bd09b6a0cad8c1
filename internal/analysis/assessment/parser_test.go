package assessment

import "testing"

const sampleEvaluation = `Das Gespräch hat sich gut entwickelt. Lisa konnte ihre Bedürfnisse
klarer benennen, Thomas hat zugehört.

BEWERTUNG:
Eskalationslevel: 4/10
Lösungsfortschritt: 7/10
Kommunikationsqualität Lisa: 8/10
Kommunikationsqualität Thomas: 6/10`

func TestParseFullBlock(t *testing.T) {
	scores := Parse(sampleEvaluation, "Lisa", "Thomas")
	if scores.Empty() {
		t.Fatalf("expected scores, got none")
	}
	if scores.Escalation == nil || *scores.Escalation != 4 {
		t.Fatalf("unexpected escalation: %v", scores.Escalation)
	}
	if scores.Resolution == nil || *scores.Resolution != 7 {
		t.Fatalf("unexpected resolution: %v", scores.Resolution)
	}
	if scores.CommunicationA == nil || *scores.CommunicationA != 8 {
		t.Fatalf("unexpected communication for first persona: %v", scores.CommunicationA)
	}
	if scores.CommunicationB == nil || *scores.CommunicationB != 6 {
		t.Fatalf("unexpected communication for second persona: %v", scores.CommunicationB)
	}
}

func TestParseMarkdownDecoration(t *testing.T) {
	text := "## Bewertung\n- **Eskalationslevel:** 3 / 10\n- **Lösungsfortschritt:** 9/10\n- **Kommunikationsqualität Sandra:** 7/10"
	scores := Parse(text, "Sandra", "Mehmet")
	if scores.Escalation == nil || *scores.Escalation != 3 {
		t.Fatalf("unexpected escalation: %v", scores.Escalation)
	}
	if scores.Resolution == nil || *scores.Resolution != 9 {
		t.Fatalf("unexpected resolution: %v", scores.Resolution)
	}
	if scores.CommunicationA == nil || *scores.CommunicationA != 7 {
		t.Fatalf("unexpected communication for first persona: %v", scores.CommunicationA)
	}
	if scores.CommunicationB != nil {
		t.Fatalf("expected no score for second persona, got %d", *scores.CommunicationB)
	}
}

func TestParseProseWithoutBlock(t *testing.T) {
	scores := Parse("Ein gutes Gespräch, beide Seiten haben sich bewegt.", "Lisa", "Thomas")
	if !scores.Empty() {
		t.Fatalf("expected empty scores, got %+v", scores)
	}
}

func TestParseRejectsOutOfRangeValues(t *testing.T) {
	text := "BEWERTUNG:\nEskalationslevel: 42/10\nLösungsfortschritt: 17\nKommunikationsqualität Lisa: 10/10"
	scores := Parse(text, "Lisa", "Thomas")
	if scores.Escalation != nil {
		t.Fatalf("expected out-of-range escalation to be dropped, got %d", *scores.Escalation)
	}
	if scores.Resolution != nil {
		t.Fatalf("expected out-of-range resolution to be dropped, got %d", *scores.Resolution)
	}
	if scores.CommunicationA == nil || *scores.CommunicationA != 10 {
		t.Fatalf("unexpected communication for first persona: %v", scores.CommunicationA)
	}
}

func TestParseIgnoresUnknownNames(t *testing.T) {
	text := "BEWERTUNG:\nKommunikationsqualität Julia: 5/10"
	scores := Parse(text, "Lisa", "Thomas")
	if !scores.Empty() {
		t.Fatalf("expected scores for unknown participant to be ignored, got %+v", scores)
	}
}
