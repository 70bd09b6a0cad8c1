package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/konfliktlab/konfliktsim/backend/internal/config"
	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
	"github.com/konfliktlab/konfliktsim/backend/internal/model/scenario"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/ai"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/session"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/sim"
)

// scriptedGen replays canned completions in order, streaming each one in
// two chunks.
type scriptedGen struct {
	mu      sync.Mutex
	replies []string
}

func (g *scriptedGen) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.replies) == 0 {
		return "Verstanden."
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply
}

func (g *scriptedGen) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	return g.next(), nil
}

func (g *scriptedGen) GenerateStream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	reply := g.next()
	mid := len(reply) / 2
	for mid < len(reply) && !utf8.RuneStart(reply[mid]) {
		mid++
	}

	sr, sw := schema.Pipe[*schema.Message](2)
	go func() {
		defer sw.Close()
		for _, part := range []string{reply[:mid], reply[mid:]} {
			if part == "" {
				continue
			}
			if sw.Send(schema.AssistantMessage(part, nil), nil) {
				return
			}
		}
	}()
	return sr, nil
}

type stubScenarioStore struct {
	items map[string]scenario.Scenario
}

func (s stubScenarioStore) List(ctx context.Context) ([]scenario.Scenario, error) {
	var out []scenario.Scenario
	for _, sc := range s.items {
		out = append(out, sc)
	}
	return out, nil
}

func (s stubScenarioStore) FindByID(ctx context.Context, id string) (scenario.Scenario, error) {
	sc, ok := s.items[id]
	if !ok {
		return scenario.Scenario{}, scenario.ErrNotFound
	}
	return sc, nil
}

func (s stubScenarioStore) Create(ctx context.Context, sc scenario.Scenario) (scenario.Scenario, error) {
	return sc, nil
}

func (s stubScenarioStore) Update(ctx context.Context, sc scenario.Scenario) (scenario.Scenario, error) {
	return sc, nil
}

func (s stubScenarioStore) Delete(ctx context.Context, id string) error {
	return nil
}

func dialTestServer(t *testing.T, gen ai.Generator, scenarios scenario.Store) *websocket.Conn {
	t.Helper()

	engine := sim.NewEngine(session.NewStore(), gen, ai.NewPromptLibrary(""), config.SimulationConfig{})
	handler := New(engine, scenarios)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var event map[string]any
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	return event
}

// readStreamedTurn consumes typing, the chunk sequence and the closing
// message event for one speaker, returning the full text. The closing
// event is agent_message for personas and evaluation for the coach.
func readStreamedTurn(t *testing.T, conn *websocket.Conn, agent, name, closing string) string {
	t.Helper()

	ev := readEvent(t, conn)
	if ev["type"] != "typing" || ev["agent"] != agent || ev["agent_name"] != name {
		t.Fatalf("expected typing for %s/%s, got %v", agent, name, ev)
	}

	var text strings.Builder
	for {
		ev = readEvent(t, conn)
		if ev["type"] != "streaming_chunk" {
			t.Fatalf("expected streaming_chunk, got %v", ev)
		}
		if ev["agent"] != agent {
			t.Fatalf("chunk for wrong agent: %v", ev)
		}
		if ev["is_final"] == true {
			break
		}
		text.WriteString(ev["chunk"].(string))
	}

	ev = readEvent(t, conn)
	if ev["type"] != closing {
		t.Fatalf("expected %s, got %v", closing, ev)
	}
	if got := ev["content"]; got != text.String() {
		t.Fatalf("%s content %q does not match streamed text %q", closing, got, text.String())
	}
	return text.String()
}

func TestWebSocketSingleTurnFlow(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		"Die Küche ist schon wieder voll mit deinem Geschirr.",
		"Ich hatte eine stressige Woche, ich räume heute Abend auf.",
		"Ihr habt beide nachvollziehbare Bedürfnisse geäußert.\n\nBEWERTUNG:\nEskalationslevel: 4/10",
	}}
	conn := dialTestServer(t, gen, stubScenarioStore{})

	sendMessage(t, conn, `{"type":"start_session","mode":"mediator","persona_a":{"name":"Lisa","system_prompt":"Du bist Lisa."},"persona_b":{"name":"Thomas","system_prompt":"Du bist Thomas."},"scenario":"Streit um die WG-Küche","auto_run":false}`)

	started := readEvent(t, conn)
	if started["type"] != "session_started" {
		t.Fatalf("expected session_started, got %v", started)
	}
	sessionID, _ := started["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("session_started without session_id: %v", started)
	}

	text := readStreamedTurn(t, conn, "a", "Lisa", "agent_message")
	if !strings.Contains(text, "Geschirr") {
		t.Fatalf("unexpected first turn text: %q", text)
	}

	decision := readEvent(t, conn)
	if decision["type"] != "waiting_for_decision" {
		t.Fatalf("expected waiting_for_decision, got %v", decision)
	}
	if decision["suggested_next"] != "agent_b" || decision["suggested_next_name"] != "Thomas" {
		t.Fatalf("unexpected suggestion: %v", decision)
	}
	if decision["agent_a_name"] != "Lisa" || decision["agent_b_name"] != "Thomas" {
		t.Fatalf("missing persona names: %v", decision)
	}

	sendMessage(t, conn, `{"type":"continue","session_id":"`+sessionID+`"}`)
	readStreamedTurn(t, conn, "b", "Thomas", "agent_message")

	decision = readEvent(t, conn)
	if decision["type"] != "waiting_for_decision" || decision["suggested_next"] != "agent_a" {
		t.Fatalf("expected suggestion agent_a, got %v", decision)
	}

	sendMessage(t, conn, `{"type":"stop","session_id":"`+sessionID+`"}`)
	evaluation := readStreamedTurn(t, conn, "evaluator", "Coach", "evaluation")
	if !strings.Contains(evaluation, "BEWERTUNG") {
		t.Fatalf("unexpected evaluation text: %q", evaluation)
	}
}

func TestWebSocketParticipantWaitsForHuman(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		"Du meldest dich nie, wenn du später kommst.",
		"Genau das meine ich, du blockst sofort ab.",
	}}
	conn := dialTestServer(t, gen, stubScenarioStore{})

	sendMessage(t, conn, `{"type":"start_session","mode":"participant","persona_a":{"name":"Sandra","system_prompt":"Du bist Sandra."},"persona_b":{"name":"Mehmet","system_prompt":"Du bist Mehmet."},"human_role":"agent_b"}`)

	started := readEvent(t, conn)
	if started["type"] != "session_started" {
		t.Fatalf("expected session_started, got %v", started)
	}
	sessionID := started["session_id"].(string)

	readStreamedTurn(t, conn, "a", "Sandra", "agent_message")

	waiting := readEvent(t, conn)
	if waiting["type"] != "waiting_for_input" || waiting["expected_role"] != "agent_b" {
		t.Fatalf("expected waiting_for_input for agent_b, got %v", waiting)
	}

	sendMessage(t, conn, `{"type":"user_message","session_id":"`+sessionID+`","content":"Ich wollte dich nicht stören.","role":"agent_b"}`)
	readStreamedTurn(t, conn, "a", "Sandra", "agent_message")

	waiting = readEvent(t, conn)
	if waiting["type"] != "waiting_for_input" || waiting["expected_role"] != "agent_b" {
		t.Fatalf("expected waiting_for_input after user message, got %v", waiting)
	}
}

func TestWebSocketInterruptUnknownSession(t *testing.T) {
	conn := dialTestServer(t, &scriptedGen{}, stubScenarioStore{})

	sendMessage(t, conn, `{"type":"interrupt","session_id":"missing"}`)
	ev := readEvent(t, conn)
	if ev["type"] != "error" || ev["message"] != "Session nicht gefunden" {
		t.Fatalf("expected session not found error, got %v", ev)
	}
}

func TestWebSocketRejectsMalformedMessage(t *testing.T) {
	conn := dialTestServer(t, &scriptedGen{}, stubScenarioStore{})

	sendMessage(t, conn, `{"type":"start_session","mode":"mediator"}`)
	ev := readEvent(t, conn)
	if ev["type"] != "error" {
		t.Fatalf("expected error event, got %v", ev)
	}
}

func TestStartParamsResolvesStoredScenario(t *testing.T) {
	store := stubScenarioStore{items: map[string]scenario.Scenario{
		"wg-kueche": {
			ID:          "wg-kueche",
			Title:       "Streit um die WG-Küche",
			Description: "Lisa und Thomas teilen sich eine Küche.",
			PersonaA:    conversation.AgentPersona{Name: "Lisa", SystemPrompt: "Du bist Lisa."},
			PersonaB:    conversation.AgentPersona{Name: "Thomas", SystemPrompt: "Du bist Thomas."},
			IsPreset:    true,
		},
	}}
	h := New(sim.NewEngine(session.NewStore(), &scriptedGen{}, ai.NewPromptLibrary(""), config.SimulationConfig{}), store)

	params, err := h.startParams(context.Background(), StartSessionMessage{Mode: "mediator", ScenarioID: "wg-kueche"})
	if err != nil {
		t.Fatalf("startParams failed: %v", err)
	}
	if params.PersonaA.Name != "Lisa" || params.PersonaB.Name != "Thomas" {
		t.Fatalf("personas not resolved: %+v", params)
	}
	if params.Scenario != "Lisa und Thomas teilen sich eine Küche." {
		t.Fatalf("description not used as scenario: %q", params.Scenario)
	}
	if !params.AutoRun {
		t.Fatalf("auto_run must default to true")
	}

	params, err = h.startParams(context.Background(), StartSessionMessage{
		Mode:       "mediator",
		ScenarioID: "wg-kueche",
		Scenario:   "Eskalation nach dem Wochenende",
		PersonaA:   &PersonaPayload{Name: "Annika"},
	})
	if err != nil {
		t.Fatalf("startParams failed: %v", err)
	}
	if params.Scenario != "Eskalation nach dem Wochenende" {
		t.Fatalf("inline scenario must win: %q", params.Scenario)
	}
	if params.PersonaA.Name != "Annika" || params.PersonaA.SystemPrompt != "Du bist Lisa." {
		t.Fatalf("partial persona override broken: %+v", params.PersonaA)
	}

	if _, err := h.startParams(context.Background(), StartSessionMessage{Mode: "mediator", ScenarioID: "nope"}); err == nil {
		t.Fatalf("expected error for unknown scenario id")
	}
}
