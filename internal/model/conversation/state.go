package conversation

import "time"

// Mode selects how the human takes part in a session.
type Mode string

const (
	// ModeMediator runs both personas as AI and lets the human facilitate.
	ModeMediator Mode = "mediator"
	// ModeParticipant puts the human into one persona slot directly.
	ModeParticipant Mode = "participant"
)

// ParseMode validates a wire-level mode tag.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeMediator, ModeParticipant:
		return Mode(s), true
	}
	return "", false
}

// SessionState is the mutable aggregate for one active conversation.
// The transcript is append-only and TurnCount never decreases; all
// mutation goes through the session store.
type SessionState struct {
	ID            string       `json:"id"`
	Mode          Mode         `json:"mode"`
	Transcript    []Message    `json:"transcript"`
	TurnCount     int          `json:"turn_count"`
	PersonaA      AgentPersona `json:"persona_a"`
	PersonaB      AgentPersona `json:"persona_b"`
	HumanRole     Speaker      `json:"human_role,omitempty"`
	NextSpeaker   Speaker      `json:"next_speaker"`
	StopRequested bool         `json:"stop_requested"`
	Interrupted   bool         `json:"-"`
	AutoRun       bool         `json:"auto_run"`
	Scenario      string       `json:"scenario,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Append adds one entry to the transcript, stamping it if unstamped.
func (st *SessionState) Append(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	st.Transcript = append(st.Transcript, msg)
	st.UpdatedAt = msg.CreatedAt
}

// LastSpeaker returns the speaker of the newest transcript entry.
func (st *SessionState) LastSpeaker() (Speaker, bool) {
	if len(st.Transcript) == 0 {
		return SpeakerNone, false
	}
	return st.Transcript[len(st.Transcript)-1].Speaker, true
}

// Persona resolves the persona occupying an agent slot.
func (st *SessionState) Persona(s Speaker) AgentPersona {
	if s == SpeakerAgentB {
		return st.PersonaB
	}
	return st.PersonaA
}

// SpeakerName resolves the display name used in client-facing events.
func (st *SessionState) SpeakerName(s Speaker) string {
	switch s {
	case SpeakerAgentA:
		return st.PersonaA.Name
	case SpeakerAgentB:
		return st.PersonaB.Name
	case SpeakerMediator:
		return "Mediator"
	case SpeakerEvaluator:
		return "Coach"
	case SpeakerHuman:
		if st.Mode == ModeParticipant && st.HumanRole.IsAgent() {
			return st.Persona(st.HumanRole).Name
		}
		return "Mediator"
	default:
		return string(s)
	}
}

// AIPersonaSlot returns the agent slot driven by the model in participant
// mode; in mediator mode both slots are AI and the question does not arise.
func (st *SessionState) AIPersonaSlot() Speaker {
	if st.Mode == ModeParticipant && st.HumanRole.IsAgent() {
		return st.HumanRole.Other()
	}
	return SpeakerAgentA
}
