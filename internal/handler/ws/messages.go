package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

// PersonaPayload carries one persona definition in a start message.
type PersonaPayload struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}

// StartSessionMessage opens a new session. Personas come either inline or
// from a stored scenario via ScenarioID; inline fields win.
type StartSessionMessage struct {
	Type       string          `json:"type"`
	Mode       string          `json:"mode"`
	PersonaA   *PersonaPayload `json:"persona_a,omitempty"`
	PersonaB   *PersonaPayload `json:"persona_b,omitempty"`
	Scenario   string          `json:"scenario,omitempty"`
	ScenarioID string          `json:"scenario_id,omitempty"`
	HumanRole  string          `json:"human_role,omitempty"`
	AutoRun    *bool           `json:"auto_run,omitempty"`
}

// UserMessage is a human contribution to a running session.
type UserMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Role      string `json:"role"`
}

// ContinueMessage resumes a paused session.
type ContinueMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// StopMessage ends a session and requests the close-out evaluation.
type StopMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// RequestEvaluationMessage requests the close-out evaluation.
type RequestEvaluationMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// InterruptMessage aborts an in-flight streaming turn.
type InterruptMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ContextEntry is one prior message sent along with an analysis request.
type ContextEntry struct {
	Agent     string `json:"agent"`
	AgentName string `json:"agent_name"`
	Content   string `json:"content"`
}

// AnalyzeMessageRequest asks for a coaching analysis of a single message.
type AnalyzeMessageRequest struct {
	Type                string         `json:"type"`
	SessionID           string         `json:"session_id"`
	MessageID           string         `json:"message_id"`
	MessageContent      string         `json:"message_content"`
	MessageAgent        string         `json:"message_agent"`
	AgentName           string         `json:"agent_name"`
	ConversationContext []ContextEntry `json:"conversation_context,omitempty"`
}

// DecodeClientMessage parses one inbound frame into its typed message,
// validating required fields and enum values.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid json frame")
	}

	switch strings.TrimSpace(envelope.Type) {
	case "start_session":
		var msg StartSessionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid start_session frame")
		}
		if _, ok := conversation.ParseMode(msg.Mode); !ok {
			return nil, fmt.Errorf("invalid mode %q", msg.Mode)
		}
		if msg.ScenarioID == "" && (msg.PersonaA == nil || msg.PersonaB == nil) {
			return nil, fmt.Errorf("start_session requires persona_a and persona_b or a scenario_id")
		}
		if msg.HumanRole != "" && msg.HumanRole != string(conversation.SpeakerAgentA) && msg.HumanRole != string(conversation.SpeakerAgentB) {
			return nil, fmt.Errorf("invalid human_role %q", msg.HumanRole)
		}
		return msg, nil

	case "user_message":
		var msg UserMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid user_message frame")
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("user_message requires session_id")
		}
		if strings.TrimSpace(msg.Content) == "" {
			return nil, fmt.Errorf("user_message requires content")
		}
		switch msg.Role {
		case string(conversation.SpeakerMediator), string(conversation.SpeakerAgentA), string(conversation.SpeakerAgentB):
		default:
			return nil, fmt.Errorf("invalid message role %q", msg.Role)
		}
		return msg, nil

	case "continue":
		var msg ContinueMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid continue frame")
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("continue requires session_id")
		}
		return msg, nil

	case "stop":
		var msg StopMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid stop frame")
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("stop requires session_id")
		}
		return msg, nil

	case "request_evaluation":
		var msg RequestEvaluationMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid request_evaluation frame")
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("request_evaluation requires session_id")
		}
		return msg, nil

	case "interrupt":
		var msg InterruptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid interrupt frame")
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("interrupt requires session_id")
		}
		return msg, nil

	case "analyze_message":
		var msg AnalyzeMessageRequest
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid analyze_message frame")
		}
		if msg.SessionID == "" || msg.MessageID == "" {
			return nil, fmt.Errorf("analyze_message requires session_id and message_id")
		}
		if strings.TrimSpace(msg.MessageContent) == "" {
			return nil, fmt.Errorf("analyze_message requires message_content")
		}
		switch msg.MessageAgent {
		case string(conversation.SpeakerAgentA), string(conversation.SpeakerAgentB), string(conversation.SpeakerMediator):
		default:
			return nil, fmt.Errorf("invalid message_agent %q", msg.MessageAgent)
		}
		return msg, nil

	case "":
		return nil, fmt.Errorf("missing message type")
	default:
		return nil, fmt.Errorf("unknown message type: %s", envelope.Type)
	}
}

type sessionStartedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type typingEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Agent     string `json:"agent"`
	AgentName string `json:"agent_name"`
}

type streamingChunkEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Agent     string `json:"agent"`
	AgentName string `json:"agent_name"`
	Chunk     string `json:"chunk"`
	IsFinal   bool   `json:"is_final"`
}

type agentMessageEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Agent     string    `json:"agent"`
	AgentName string    `json:"agent_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type waitingForInputEvent struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	ExpectedRole string `json:"expected_role"`
}

type waitingForDecisionEvent struct {
	Type              string `json:"type"`
	SessionID         string `json:"session_id"`
	SuggestedNext     string `json:"suggested_next"`
	SuggestedNextName string `json:"suggested_next_name"`
	AgentAName        string `json:"agent_a_name"`
	AgentBName        string `json:"agent_b_name"`
}

type evaluationEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

type interruptedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type messageAnalysisEvent struct {
	Type         string `json:"type"`
	MessageID    string `json:"message_id"`
	Analysis     string `json:"analysis"`
	AnalysisType string `json:"analysis_type"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// wireAgent maps a speaker to the short stream tag used on typing, chunk
// and message events.
func wireAgent(s conversation.Speaker) string {
	switch s {
	case conversation.SpeakerAgentA:
		return "a"
	case conversation.SpeakerAgentB:
		return "b"
	default:
		return string(s)
	}
}
