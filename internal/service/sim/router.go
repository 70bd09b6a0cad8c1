package sim

import (
	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

// Status is the coarse-grained continuation answer derived from Decide.
type Status string

const (
	StatusContinue     Status = "continue"
	StatusWaitForHuman Status = "wait_for_human"
	StatusEvaluate     Status = "evaluate"
	StatusEnd          Status = "end"
)

// Decide returns who acts next. Rules in order: a requested stop always
// routes to the evaluator; an explicitly set next speaker wins; otherwise
// the decision falls back to the last transcript entry. In participant
// mode the slot occupied by the human is reported as human so no turn is
// ever generated for it.
func Decide(st *conversation.SessionState) conversation.Speaker {
	if st.StopRequested {
		return conversation.SpeakerEvaluator
	}

	switch st.NextSpeaker {
	case conversation.SpeakerAgentA, conversation.SpeakerAgentB:
		return humanize(st, st.NextSpeaker)
	case conversation.SpeakerHuman, conversation.SpeakerEvaluator, conversation.SpeakerEnd:
		return st.NextSpeaker
	}

	return fallbackDecision(st)
}

// fallbackDecision inspects the transcript tail; it only runs when
// NextSpeaker is unset, e.g. on freshly restored state.
func fallbackDecision(st *conversation.SessionState) conversation.Speaker {
	last, ok := st.LastSpeaker()
	if !ok {
		return humanize(st, conversation.SpeakerAgentA)
	}

	if st.Mode == conversation.ModeParticipant {
		switch last {
		case conversation.SpeakerAgentA, conversation.SpeakerAgentB:
			return humanize(st, last.Other())
		case conversation.SpeakerEvaluator:
			return conversation.SpeakerEnd
		default:
			return humanize(st, conversation.SpeakerAgentA)
		}
	}

	switch last {
	case conversation.SpeakerAgentA:
		return conversation.SpeakerAgentB
	case conversation.SpeakerAgentB:
		if st.TurnCount%4 == 0 {
			return conversation.SpeakerHuman
		}
		return conversation.SpeakerAgentA
	case conversation.SpeakerEvaluator:
		return conversation.SpeakerEnd
	default:
		// Mediator, system and anything else hands back to agent A.
		return conversation.SpeakerAgentA
	}
}

// humanize maps the human-occupied persona slot to the human role.
func humanize(st *conversation.SessionState, s conversation.Speaker) conversation.Speaker {
	if st.Mode == conversation.ModeParticipant && s.IsAgent() && s == st.HumanRole {
		return conversation.SpeakerHuman
	}
	return s
}

// ShouldContinue maps the routing decision to a coarse status.
func ShouldContinue(st *conversation.SessionState) Status {
	switch Decide(st) {
	case conversation.SpeakerAgentA, conversation.SpeakerAgentB:
		return StatusContinue
	case conversation.SpeakerHuman:
		return StatusWaitForHuman
	case conversation.SpeakerEvaluator:
		return StatusEvaluate
	default:
		return StatusEnd
	}
}

// ExpectedHumanRole names the role a waiting client should present as "your
// turn": the facilitator in mediator mode, the occupied slot otherwise.
func ExpectedHumanRole(st *conversation.SessionState) string {
	if st.Mode == conversation.ModeParticipant && st.HumanRole.IsAgent() {
		return string(st.HumanRole)
	}
	return string(conversation.SpeakerMediator)
}
