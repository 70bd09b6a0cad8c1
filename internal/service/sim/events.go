package sim

import (
	"time"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

// Kind discriminates the events the executor produces during a run. The
// transport maps them 1:1 onto wire messages and must not reorder them.
type Kind string

const (
	KindSessionStarted     Kind = "session_started"
	KindTyping             Kind = "typing"
	KindStreamingChunk     Kind = "streaming_chunk"
	KindAgentMessage       Kind = "agent_message"
	KindWaitingForInput    Kind = "waiting_for_input"
	KindWaitingForDecision Kind = "waiting_for_decision"
	KindEvaluation         Kind = "evaluation"
	KindInterrupted        Kind = "interrupted"
	KindError              Kind = "error"
)

// Event is one executor notification. Only the fields relevant for the
// kind are populated.
type Event struct {
	Kind          Kind
	SessionID     string
	Speaker       conversation.Speaker
	SpeakerName   string
	Text          string
	Final         bool
	ExpectedRole  string
	Suggested     conversation.Speaker
	SuggestedName string
	AgentAName    string
	AgentBName    string
	Timestamp     time.Time
}

// Emitter receives events in emission order for a single session.
type Emitter func(Event)

func noopEmitter(Event) {}
