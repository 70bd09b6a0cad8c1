package sim

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/konfliktlab/konfliktsim/backend/internal/config"
	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

func transcriptFixture() *conversation.SessionState {
	st := &conversation.SessionState{
		Mode:     conversation.ModeMediator,
		PersonaA: conversation.AgentPersona{Name: "Lisa", SystemPrompt: "Du bist Lisa."},
		PersonaB: conversation.AgentPersona{Name: "Thomas", SystemPrompt: "Du bist Thomas."},
	}
	entries := []conversation.Message{
		{Speaker: conversation.SpeakerSystem, Text: "[SZENARIO: Streit um die WG-Küche]"},
		{Speaker: conversation.SpeakerAgentA, Text: "Die Küche ist schon wieder voll."},
		{Speaker: conversation.SpeakerAgentB, Text: "Ich räume heute Abend auf."},
		{Speaker: conversation.SpeakerMediator, Text: "[MEDIATOR]: Bitte bleibt sachlich."},
		{Speaker: conversation.SpeakerAgentA, Text: "Das sagst du jede Woche."},
	}
	st.Transcript = append(st.Transcript, entries...)
	return st
}

func TestBuildTurnMessagesRoleMapping(t *testing.T) {
	e, _ := testEngine(&scriptedGen{}, config.SimulationConfig{})
	st := transcriptFixture()

	msgs := e.buildTurnMessages(st, conversation.SpeakerAgentB)
	if len(msgs) != len(st.Transcript)+1 {
		t.Fatalf("expected %d messages, got %d", len(st.Transcript)+1, len(msgs))
	}

	if msgs[0].Role != schema.System || !strings.Contains(msgs[0].Content, "Dein Name ist Thomas.") {
		t.Fatalf("unexpected system message: %+v", msgs[0])
	}

	if msgs[1].Role != schema.User || msgs[1].Content != "[SZENARIO: Streit um die WG-Küche]" {
		t.Fatalf("scenario entry must pass through untouched: %+v", msgs[1])
	}
	if msgs[2].Role != schema.User || msgs[2].Content != "Lisa: Die Küche ist schon wieder voll." {
		t.Fatalf("other persona must be attributed: %+v", msgs[2])
	}
	if msgs[3].Role != schema.Assistant || msgs[3].Content != "Ich räume heute Abend auf." {
		t.Fatalf("own entries replay as assistant turns: %+v", msgs[3])
	}
	if msgs[4].Role != schema.User || msgs[4].Content != "[MEDIATOR]: Bitte bleibt sachlich." {
		t.Fatalf("mediator entry keeps its marker: %+v", msgs[4])
	}
}

func TestBuildTurnMessagesHonorsHistoryLimit(t *testing.T) {
	e, _ := testEngine(&scriptedGen{}, config.SimulationConfig{HistoryLimit: 2})
	st := transcriptFixture()

	msgs := e.buildTurnMessages(st, conversation.SpeakerAgentA)
	// System prompt, the pinned scenario entry and the newest transcript entry.
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "SZENARIO") {
		t.Fatalf("scenario must survive the window: %+v", msgs[1])
	}
	if msgs[len(msgs)-1].Role != schema.Assistant || msgs[len(msgs)-1].Content != "Das sagst du jede Woche." {
		t.Fatalf("window must end with the newest entry: %+v", msgs[len(msgs)-1])
	}
}

func TestTranscriptWindow(t *testing.T) {
	st := transcriptFixture()

	if got := transcriptWindow(st.Transcript, 0); len(got) != len(st.Transcript) {
		t.Fatalf("limit 0 disables the window, got %d entries", len(got))
	}
	if got := transcriptWindow(st.Transcript, 10); len(got) != len(st.Transcript) {
		t.Fatalf("large limit keeps everything, got %d entries", len(got))
	}

	got := transcriptWindow(st.Transcript, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Speaker != conversation.SpeakerSystem {
		t.Fatalf("scenario entry must be pinned, got %+v", got[0])
	}
	if got[len(got)-1].Text != "Das sagst du jede Woche." {
		t.Fatalf("window must end with the newest entry, got %+v", got[len(got)-1])
	}
}

func TestBuildEvaluatorMessages(t *testing.T) {
	e, _ := testEngine(&scriptedGen{}, config.SimulationConfig{})
	st := transcriptFixture()
	st.Append(conversation.Message{Speaker: conversation.SpeakerEvaluator, Text: "Alte Auswertung."})

	msgs := e.buildEvaluatorMessages(st)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user message, got %d", len(msgs))
	}
	if msgs[0].Role != schema.System || !strings.Contains(msgs[0].Content, "Lisa") || !strings.Contains(msgs[0].Content, "Thomas") {
		t.Fatalf("coach prompt must name both parties: %+v", msgs[0])
	}

	user := msgs[1].Content
	if !strings.HasPrefix(user, "Konfliktparteien: Lisa und Thomas.") {
		t.Fatalf("unexpected preamble: %q", user)
	}
	if !strings.Contains(user, "Lisa: Die Küche ist schon wieder voll.") {
		t.Fatalf("transcript missing from close-out context: %q", user)
	}
	if strings.Contains(user, "Alte Auswertung.") {
		t.Fatalf("prior evaluations must be excluded: %q", user)
	}
	if !strings.HasSuffix(user, "Bitte werte das Gespräch jetzt aus.") {
		t.Fatalf("missing final instruction: %q", user)
	}
	if strings.Contains(user, "von einem Menschen gespielt") {
		t.Fatalf("mediator mode has no human slot note: %q", user)
	}
}

func TestBuildEvaluatorMessagesNotesHumanSlot(t *testing.T) {
	e, _ := testEngine(&scriptedGen{}, config.SimulationConfig{})
	st := transcriptFixture()
	st.Mode = conversation.ModeParticipant
	st.HumanRole = conversation.SpeakerAgentB

	user := e.buildEvaluatorMessages(st)[1].Content
	if !strings.Contains(user, "Die Rolle von Thomas wurde von einem Menschen gespielt.") {
		t.Fatalf("human slot note missing: %q", user)
	}
}
