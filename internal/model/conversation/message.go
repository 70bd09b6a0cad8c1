package conversation

import "time"

// Speaker identifies who produced a transcript entry or who acts next.
type Speaker string

const (
	SpeakerAgentA    Speaker = "agent_a"
	SpeakerAgentB    Speaker = "agent_b"
	SpeakerMediator  Speaker = "mediator"
	SpeakerSystem    Speaker = "system"
	SpeakerEvaluator Speaker = "evaluator"
	SpeakerHuman     Speaker = "human"
	SpeakerEnd       Speaker = "end"
	SpeakerNone      Speaker = ""
)

// ParseSpeaker validates a wire-level speaker tag.
func ParseSpeaker(s string) (Speaker, bool) {
	switch Speaker(s) {
	case SpeakerAgentA, SpeakerAgentB, SpeakerMediator, SpeakerSystem, SpeakerEvaluator, SpeakerHuman, SpeakerEnd:
		return Speaker(s), true
	}
	return SpeakerNone, false
}

// IsAgent reports whether the speaker is one of the two simulated personas.
func (s Speaker) IsAgent() bool {
	return s == SpeakerAgentA || s == SpeakerAgentB
}

// IsTranscript reports whether the speaker may appear as a transcript entry.
func (s Speaker) IsTranscript() bool {
	switch s {
	case SpeakerAgentA, SpeakerAgentB, SpeakerMediator, SpeakerSystem, SpeakerEvaluator:
		return true
	}
	return false
}

// Other returns the opposite persona slot; callers must pass an agent speaker.
func (s Speaker) Other() Speaker {
	if s == SpeakerAgentA {
		return SpeakerAgentB
	}
	return SpeakerAgentA
}

// Message is one transcript entry, immutable once appended.
type Message struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
