package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
	"github.com/konfliktlab/konfliktsim/backend/internal/model/scenario"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/sim"
)

const (
	readDeadline    = 60 * time.Second
	pingInterval    = 54 * time.Second
	interruptedNote = "Session unterbrochen - Du kannst jetzt eingreifen"
)

// Handler owns the websocket endpoint: it decodes client messages, drives
// engine runs and relays executor events back over the connection.
// Sessions outlive connections; closing a socket tears down nothing
// session-side.
type Handler struct {
	engine    *sim.Engine
	scenarios scenario.Store
	upgrader  websocket.Upgrader
	log       *slog.Logger
}

// New creates the websocket handler.
func New(engine *sim.Engine, scenarios scenario.Store) *Handler {
	return &Handler{
		engine:    engine,
		scenarios: scenarios,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: slog.With("component", "ws"),
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	wc := &wsConn{conn: conn, log: h.log}
	h.log.Info("client connected", "remote", conn.RemoteAddr().String())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(ctx, wc)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					h.log.Warn("websocket read failed", "error", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(readDeadline))

			decoded, err := DecodeClientMessage(data)
			if err != nil {
				wc.send(errorEvent{Type: "error", Message: err.Error()})
				continue
			}
			h.dispatch(ctx, wc, decoded)
		}
	}
}

// dispatch routes one decoded message. Run-triggering messages execute in
// their own goroutine so the read loop stays responsive for interrupts;
// the store's run lock serializes runs per session.
func (h *Handler) dispatch(ctx context.Context, wc *wsConn, msg any) {
	switch m := msg.(type) {
	case StartSessionMessage:
		go h.handleStartSession(ctx, wc, m)
	case UserMessage:
		go h.runEngine(ctx, wc, func(ctx context.Context, emit sim.Emitter) error {
			return h.engine.SubmitUserMessage(ctx, m.SessionID, m.Content, conversation.Speaker(m.Role), emit)
		})
	case ContinueMessage:
		go h.runEngine(ctx, wc, func(ctx context.Context, emit sim.Emitter) error {
			return h.engine.Run(ctx, m.SessionID, emit)
		})
	case StopMessage:
		go h.runEngine(ctx, wc, func(ctx context.Context, emit sim.Emitter) error {
			return h.engine.RequestEvaluation(ctx, m.SessionID, emit)
		})
	case RequestEvaluationMessage:
		go h.runEngine(ctx, wc, func(ctx context.Context, emit sim.Emitter) error {
			return h.engine.RequestEvaluation(ctx, m.SessionID, emit)
		})
	case InterruptMessage:
		h.handleInterrupt(ctx, wc, m)
	case AnalyzeMessageRequest:
		go h.handleAnalyze(ctx, wc, m)
	}
}

func (h *Handler) handleStartSession(ctx context.Context, wc *wsConn, msg StartSessionMessage) {
	params, err := h.startParams(ctx, msg)
	if err != nil {
		wc.send(errorEvent{Type: "error", Message: startErrorMessage(err)})
		return
	}

	st, err := h.engine.StartSession(ctx, params)
	if err != nil {
		wc.send(errorEvent{Type: "error", Message: startErrorMessage(err)})
		return
	}
	wc.send(sessionStartedEvent{Type: "session_started", SessionID: st.ID})

	h.runEngine(ctx, wc, func(ctx context.Context, emit sim.Emitter) error {
		return h.engine.Run(ctx, st.ID, emit)
	})
}

// startParams resolves an optional stored scenario and applies inline
// overrides from the start message.
func (h *Handler) startParams(ctx context.Context, msg StartSessionMessage) (sim.StartParams, error) {
	mode, _ := conversation.ParseMode(msg.Mode)
	params := sim.StartParams{
		Mode:      mode,
		Scenario:  strings.TrimSpace(msg.Scenario),
		HumanRole: conversation.Speaker(msg.HumanRole),
		AutoRun:   true,
	}
	if msg.AutoRun != nil {
		params.AutoRun = *msg.AutoRun
	}

	if msg.ScenarioID != "" {
		sc, err := h.scenarios.FindByID(ctx, msg.ScenarioID)
		if err != nil {
			return sim.StartParams{}, err
		}
		params.PersonaA = sc.PersonaA
		params.PersonaB = sc.PersonaB
		if params.Scenario == "" {
			params.Scenario = sc.Description
		}
	}
	if msg.PersonaA != nil {
		overridePersona(&params.PersonaA, *msg.PersonaA)
	}
	if msg.PersonaB != nil {
		overridePersona(&params.PersonaB, *msg.PersonaB)
	}
	return params, nil
}

func overridePersona(dst *conversation.AgentPersona, p PersonaPayload) {
	if strings.TrimSpace(p.Name) != "" {
		dst.Name = p.Name
	}
	if strings.TrimSpace(p.SystemPrompt) != "" {
		dst.SystemPrompt = p.SystemPrompt
	}
}

func (h *Handler) handleInterrupt(ctx context.Context, wc *wsConn, msg InterruptMessage) {
	if !h.engine.Interrupt(ctx, msg.SessionID) {
		wc.send(errorEvent{Type: "error", Message: "Session nicht gefunden"})
		return
	}
	wc.send(interruptedEvent{Type: "interrupted", SessionID: msg.SessionID, Message: interruptedNote})
}

func (h *Handler) handleAnalyze(ctx context.Context, wc *wsConn, msg AnalyzeMessageRequest) {
	req := sim.AnalysisRequest{
		Speaker: conversation.Speaker(msg.MessageAgent),
		Name:    msg.AgentName,
		Content: msg.MessageContent,
	}
	for _, entry := range msg.ConversationContext {
		req.Context = append(req.Context, sim.AnalysisContextEntry{Name: entry.AgentName, Content: entry.Content})
	}

	analysis, kind, err := h.engine.AnalyzeMessage(ctx, req)
	if err != nil {
		wc.send(errorEvent{Type: "error", Message: err.Error()})
		return
	}
	wc.send(messageAnalysisEvent{
		Type:         "message_analysis",
		MessageID:    msg.MessageID,
		Analysis:     analysis,
		AnalysisType: kind,
	})
}

// runEngine executes one engine call with events relayed to the
// connection. Engine errors have already been emitted as error events.
func (h *Handler) runEngine(ctx context.Context, wc *wsConn, run func(context.Context, sim.Emitter) error) {
	emit := func(ev sim.Event) {
		if payload := wireEvent(ev); payload != nil {
			wc.send(payload)
		}
	}
	if err := run(ctx, emit); err != nil {
		h.log.Error("engine run failed", "error", err)
	}
}

// wireEvent maps an executor event onto its wire message. Events the
// transport emits itself (session_started, interrupted) return nil.
func wireEvent(ev sim.Event) any {
	switch ev.Kind {
	case sim.KindTyping:
		return typingEvent{
			Type: string(ev.Kind), SessionID: ev.SessionID,
			Agent: wireAgent(ev.Speaker), AgentName: ev.SpeakerName,
		}
	case sim.KindStreamingChunk:
		return streamingChunkEvent{
			Type: string(ev.Kind), SessionID: ev.SessionID,
			Agent: wireAgent(ev.Speaker), AgentName: ev.SpeakerName,
			Chunk: ev.Text, IsFinal: ev.Final,
		}
	case sim.KindAgentMessage:
		return agentMessageEvent{
			Type: string(ev.Kind), SessionID: ev.SessionID,
			Agent: wireAgent(ev.Speaker), AgentName: ev.SpeakerName,
			Content: ev.Text, Timestamp: ev.Timestamp,
		}
	case sim.KindWaitingForInput:
		return waitingForInputEvent{
			Type: string(ev.Kind), SessionID: ev.SessionID,
			ExpectedRole: ev.ExpectedRole,
		}
	case sim.KindWaitingForDecision:
		return waitingForDecisionEvent{
			Type: string(ev.Kind), SessionID: ev.SessionID,
			SuggestedNext: string(ev.Suggested), SuggestedNextName: ev.SuggestedName,
			AgentAName: ev.AgentAName, AgentBName: ev.AgentBName,
		}
	case sim.KindEvaluation:
		return evaluationEvent{Type: string(ev.Kind), SessionID: ev.SessionID, Content: ev.Text}
	case sim.KindError:
		return errorEvent{Type: string(ev.Kind), Message: ev.Text}
	default:
		return nil
	}
}

func startErrorMessage(err error) string {
	if errors.Is(err, scenario.ErrNotFound) {
		return "Szenario nicht gefunden"
	}
	return err.Error()
}

// wsConn serializes writes; runs, the read loop and the ping ticker all
// write concurrently.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *slog.Logger
}

func (c *wsConn) send(payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(payload); err != nil {
		c.log.Debug("websocket write failed", "error", err)
	}
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (h *Handler) pingLoop(ctx context.Context, wc *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		}
	}
}
