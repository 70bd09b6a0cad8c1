package sim

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

// buildTurnMessages assembles the provider context for one agent turn.
// The speaking persona's own prior entries are replayed as assistant
// messages, everything else as user messages with the author's name
// prefixed so authorship survives the role flattening.
func (e *Engine) buildTurnMessages(st *conversation.SessionState, speaker conversation.Speaker) []*schema.Message {
	window := transcriptWindow(st.Transcript, e.historyLimit)

	msgs := make([]*schema.Message, 0, len(window)+1)
	msgs = append(msgs, schema.SystemMessage(e.prompts.PersonaSystemPrompt(st.Persona(speaker))))
	for _, m := range window {
		if m.Speaker == speaker {
			msgs = append(msgs, schema.AssistantMessage(m.Text, nil))
			continue
		}
		msgs = append(msgs, schema.UserMessage(attributedText(st, m)))
	}
	return msgs
}

// buildEvaluatorMessages assembles the close-out context: the coach prompt
// plus the whole conversation replayed as one annotated block.
func (e *Engine) buildEvaluatorMessages(st *conversation.SessionState) []*schema.Message {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Konfliktparteien: %s und %s.\n", st.PersonaA.Name, st.PersonaB.Name))
	if st.Mode == conversation.ModeParticipant && st.HumanRole.IsAgent() {
		b.WriteString(fmt.Sprintf("Die Rolle von %s wurde von einem Menschen gespielt.\n", st.Persona(st.HumanRole).Name))
	}
	b.WriteString("\nGesprächsprotokoll:\n")
	for _, m := range st.Transcript {
		if m.Speaker == conversation.SpeakerEvaluator {
			continue
		}
		b.WriteString(attributedText(st, m))
		b.WriteString("\n")
	}
	b.WriteString("\nBitte werte das Gespräch jetzt aus.")

	return []*schema.Message{
		schema.SystemMessage(e.prompts.EvaluatorSystemPrompt(st.PersonaA.Name, st.PersonaB.Name)),
		schema.UserMessage(b.String()),
	}
}

// attributedText renders a transcript entry with its author visible.
// System and mediator entries already carry their own markers.
func attributedText(st *conversation.SessionState, m conversation.Message) string {
	switch m.Speaker {
	case conversation.SpeakerSystem, conversation.SpeakerMediator:
		return m.Text
	default:
		return st.SpeakerName(m.Speaker) + ": " + m.Text
	}
}

// transcriptWindow bounds the context size, always keeping the leading
// scenario entry so the situation never falls out of the window.
func transcriptWindow(transcript []conversation.Message, limit int) []conversation.Message {
	if limit <= 0 || len(transcript) <= limit {
		return transcript
	}

	window := make([]conversation.Message, 0, limit)
	tail := transcript[len(transcript)-limit:]
	if head := transcript[0]; head.Speaker == conversation.SpeakerSystem && tail[0].Speaker != conversation.SpeakerSystem {
		window = append(window, head)
		tail = tail[1:]
	}
	return append(window, tail...)
}
