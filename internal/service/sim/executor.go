package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/konfliktlab/konfliktsim/backend/internal/config"
	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/ai"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/session"
)

const sessionNotFoundMessage = "Session nicht gefunden"

// Archiver persists a session snapshot after every run.
type Archiver interface {
	Save(ctx context.Context, st conversation.SessionState, active bool) error
}

// Engine is the turn executor: it drives repeated agent turns for a
// session until a pause or terminal state, streaming output through the
// emitter. All runs for one session are serialized by the store's run
// lock; the engine itself is safe for concurrent use across sessions.
type Engine struct {
	store        *session.Store
	gen          ai.Generator
	prompts      *ai.PromptLibrary
	suggester    NextSuggester
	archiver     Archiver
	historyLimit int
	maxAutoTurns int
	log          *slog.Logger
	tracer       trace.Tracer
	turns        metric.Int64Counter
	interrupts   metric.Int64Counter
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithSuggester overrides the routing suggester consulted after each
// agent turn.
func WithSuggester(s NextSuggester) Option {
	return func(e *Engine) { e.suggester = s }
}

// WithArchiver installs snapshot persistence.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// NewEngine wires the turn executor.
func NewEngine(store *session.Store, gen ai.Generator, prompts *ai.PromptLibrary, cfg config.SimulationConfig, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		gen:          gen,
		prompts:      prompts,
		suggester:    RuleSuggester{},
		historyLimit: cfg.HistoryLimit,
		maxAutoTurns: cfg.MaxAutoTurns,
		log:          slog.With("component", "sim"),
		tracer:       otel.Tracer("konfliktsim/simulation"),
	}
	if e.maxAutoTurns <= 0 {
		e.maxAutoTurns = 12
	}

	meter := otel.Meter("konfliktsim/simulation")
	if counter, err := meter.Int64Counter("simulation.turns", metric.WithDescription("Agent turns executed")); err == nil {
		e.turns = counter
	}
	if counter, err := meter.Int64Counter("simulation.interrupts", metric.WithDescription("Accepted interrupt requests")); err == nil {
		e.interrupts = counter
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartParams carries everything needed to open a session.
type StartParams struct {
	Mode      conversation.Mode
	PersonaA  conversation.AgentPersona
	PersonaB  conversation.AgentPersona
	Scenario  string
	HumanRole conversation.Speaker
	AutoRun   bool
}

// StartSession registers a new session and seeds its transcript with the
// scenario entry. It does not execute any turn.
func (e *Engine) StartSession(ctx context.Context, p StartParams) (conversation.SessionState, error) {
	if _, ok := conversation.ParseMode(string(p.Mode)); !ok {
		return conversation.SessionState{}, fmt.Errorf("invalid mode %q", p.Mode)
	}
	if strings.TrimSpace(p.PersonaA.Name) == "" || strings.TrimSpace(p.PersonaB.Name) == "" {
		return conversation.SessionState{}, errors.New("both persona names are required")
	}

	st := conversation.SessionState{
		Mode:        p.Mode,
		PersonaA:    p.PersonaA,
		PersonaB:    p.PersonaB,
		AutoRun:     p.AutoRun,
		Scenario:    strings.TrimSpace(p.Scenario),
		NextSpeaker: conversation.SpeakerAgentA,
	}
	if p.Mode == conversation.ModeParticipant {
		st.HumanRole = p.HumanRole
	}

	scenarioText := st.Scenario
	if scenarioText == "" {
		scenarioText = "Offenes Konfliktgespräch ohne weitere Vorgaben"
	}
	st.Append(conversation.Message{
		Speaker: conversation.SpeakerSystem,
		Text:    "[SZENARIO: " + scenarioText + "]",
	})

	created, err := e.store.Create(ctx, st)
	if err != nil {
		return conversation.SessionState{}, err
	}

	e.log.Info("session started", "session_id", created.ID, "mode", created.Mode, "auto_run", created.AutoRun)
	return created, nil
}

// Run executes one engine run for the session.
func (e *Engine) Run(ctx context.Context, sessionID string, emit Emitter) error {
	return e.run(ctx, sessionID, emit, nil)
}

// SubmitUserMessage appends a human message once the session's run lock is
// free, then executes the follow-up run.
func (e *Engine) SubmitUserMessage(ctx context.Context, sessionID, content string, role conversation.Speaker, emit Emitter) error {
	return e.run(ctx, sessionID, emit, func(ctx context.Context) error {
		return e.appendHumanMessage(ctx, sessionID, content, role)
	})
}

// RequestEvaluation marks the session for close-out and runs the
// evaluator turn.
func (e *Engine) RequestEvaluation(ctx context.Context, sessionID string, emit Emitter) error {
	return e.run(ctx, sessionID, emit, func(ctx context.Context) error {
		_, err := e.store.Mutate(ctx, sessionID, func(st *conversation.SessionState) error {
			st.StopRequested = true
			return nil
		})
		return err
	})
}

// Interrupt flags the session for cancellation at the next safe point.
// Reports whether the session exists.
func (e *Engine) Interrupt(ctx context.Context, sessionID string) bool {
	ok := e.store.Interrupt(sessionID)
	if ok {
		e.log.Info("session interrupted", "session_id", sessionID)
		if e.interrupts != nil {
			e.interrupts.Add(ctx, 1)
		}
	}
	return ok
}

// run is the main loop. prepare, when set, mutates the session under the
// freshly acquired run lock before any routing decision.
func (e *Engine) run(ctx context.Context, sessionID string, emit Emitter, prepare func(context.Context) error) error {
	if emit == nil {
		emit = noopEmitter
	}

	release, err := e.store.BeginRun(ctx, sessionID)
	if err != nil {
		emit(Event{Kind: KindError, SessionID: sessionID, Text: sessionNotFoundMessage})
		return err
	}
	defer release()

	// The interrupt flag never survives a run; the snapshot is written
	// even when the run aborts so the archive tracks every mutation.
	defer func() {
		e.store.ClearInterrupt(sessionID)
		e.archive(context.WithoutCancel(ctx), sessionID)
	}()

	if prepare != nil {
		if err := prepare(ctx); err != nil {
			emit(Event{Kind: KindError, SessionID: sessionID, Text: errorText(err)})
			return err
		}
	}

	st, err := e.store.Get(ctx, sessionID)
	if err != nil {
		emit(Event{Kind: KindError, SessionID: sessionID, Text: sessionNotFoundMessage})
		return err
	}

	speaker := Decide(&st)
	pausedForDecision := false
	turnsThisRun := 0

	for speaker.IsAgent() {
		if e.store.Interrupted(sessionID) || st.StopRequested {
			// The cancellation has been honored; clear it so the
			// close-out turn below can stream.
			e.store.ClearInterrupt(sessionID)
			speaker = conversation.SpeakerEvaluator
			break
		}

		done, err := e.executeAgentTurn(ctx, &st, speaker, emit)
		if err != nil {
			e.log.Error("turn failed", "session_id", sessionID, "speaker", speaker, "error", err)
			emit(Event{Kind: KindError, SessionID: sessionID, Text: errorText(err)})
			return err
		}
		if !done {
			// Interrupted mid-stream: the partial text is discarded and
			// the loop-top check routes to the evaluator.
			continue
		}
		turnsThisRun++

		speaker, err = e.reroute(ctx, &st)
		if err != nil {
			emit(Event{Kind: KindError, SessionID: sessionID, Text: errorText(err)})
			return err
		}

		if !st.AutoRun {
			// One turn per client round-trip: hand the decision back.
			if speaker.IsAgent() || speaker == conversation.SpeakerHuman {
				e.emitDecision(&st, speaker, emit)
				pausedForDecision = true
			}
			break
		}

		if speaker.IsAgent() && turnsThisRun >= e.maxAutoTurns {
			e.log.Warn("auto-run turn guard tripped", "session_id", sessionID, "turns", turnsThisRun)
			e.emitDecision(&st, speaker, emit)
			pausedForDecision = true
			break
		}
	}

	if speaker == conversation.SpeakerEvaluator {
		if err := e.executeEvaluatorTurn(ctx, &st, emit); err != nil {
			e.log.Error("evaluation failed", "session_id", sessionID, "error", err)
			emit(Event{Kind: KindError, SessionID: sessionID, Text: errorText(err)})
			return err
		}
	}

	if speaker == conversation.SpeakerHuman && !pausedForDecision {
		emit(Event{
			Kind:         KindWaitingForInput,
			SessionID:    sessionID,
			ExpectedRole: ExpectedHumanRole(&st),
		})
	}
	return nil
}

// executeAgentTurn runs one streamed persona turn. It reports done=false
// without error when the turn was abandoned by an interrupt; the session
// state is only touched once a completed text has been produced.
func (e *Engine) executeAgentTurn(ctx context.Context, st *conversation.SessionState, speaker conversation.Speaker, emit Emitter) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "simulation.turn", trace.WithAttributes(
		attribute.String("session.id", st.ID),
		attribute.String("speaker", string(speaker)),
		attribute.String("mode", string(st.Mode)),
	))
	defer span.End()

	persona := st.Persona(speaker)
	emit(Event{Kind: KindTyping, SessionID: st.ID, Speaker: speaker, SpeakerName: persona.Name})

	msgs := e.buildTurnMessages(st, speaker)
	stream, err := e.gen.GenerateStream(ctx, msgs)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	text, aborted, err := e.consumeStream(st, speaker, persona.Name, stream, emit)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if aborted {
		return false, nil
	}

	if strings.TrimSpace(text) == "" {
		// Empty stream: retry once without streaming, then degrade to an
		// empty message instead of failing the run.
		text, err = e.gen.Generate(ctx, msgs)
		if err != nil {
			span.RecordError(err)
			return false, err
		}
	}

	cleaned := stripEchoedName(text, persona.Name)
	updated, err := e.store.Mutate(ctx, st.ID, func(live *conversation.SessionState) error {
		live.Append(conversation.Message{Speaker: speaker, Text: cleaned})
		live.TurnCount++
		return nil
	})
	if err != nil {
		return false, err
	}
	*st = updated

	emit(Event{
		Kind:        KindAgentMessage,
		SessionID:   st.ID,
		Speaker:     speaker,
		SpeakerName: persona.Name,
		Text:        cleaned,
		Timestamp:   time.Now(),
	})

	if e.turns != nil {
		e.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", string(speaker))))
	}
	return true, nil
}

// executeEvaluatorTurn runs the close-out assessment and seals the session.
func (e *Engine) executeEvaluatorTurn(ctx context.Context, st *conversation.SessionState, emit Emitter) error {
	ctx, span := e.tracer.Start(ctx, "simulation.evaluation", trace.WithAttributes(
		attribute.String("session.id", st.ID),
	))
	defer span.End()

	coachName := st.SpeakerName(conversation.SpeakerEvaluator)
	emit(Event{Kind: KindTyping, SessionID: st.ID, Speaker: conversation.SpeakerEvaluator, SpeakerName: coachName})

	msgs := e.buildEvaluatorMessages(st)
	stream, err := e.gen.GenerateStream(ctx, msgs)
	if err != nil {
		span.RecordError(err)
		return err
	}

	text, aborted, err := e.consumeStream(st, conversation.SpeakerEvaluator, coachName, stream, emit)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if aborted {
		return nil
	}

	if strings.TrimSpace(text) == "" {
		text, err = e.gen.Generate(ctx, msgs)
		if err != nil {
			span.RecordError(err)
			return err
		}
	}

	text = strings.TrimSpace(text)
	updated, err := e.store.Mutate(ctx, st.ID, func(live *conversation.SessionState) error {
		live.Append(conversation.Message{Speaker: conversation.SpeakerEvaluator, Text: text})
		live.NextSpeaker = conversation.SpeakerEnd
		live.StopRequested = false
		return nil
	})
	if err != nil {
		return err
	}
	*st = updated

	emit(Event{Kind: KindEvaluation, SessionID: st.ID, Text: text, Timestamp: time.Now()})
	return nil
}

// consumeStream drains one generation stream, emitting a chunk event per
// delta and polling the interrupt flag at every chunk boundary. On
// interrupt the partial text is dropped wholesale.
func (e *Engine) consumeStream(st *conversation.SessionState, speaker conversation.Speaker, name string, stream *schema.StreamReader[*schema.Message], emit Emitter) (string, bool, error) {
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, err
		}
		if e.store.Interrupted(st.ID) {
			return "", true, nil
		}
		if chunk.Content == "" {
			continue
		}

		text.WriteString(chunk.Content)
		emit(Event{
			Kind:        KindStreamingChunk,
			SessionID:   st.ID,
			Speaker:     speaker,
			SpeakerName: name,
			Text:        chunk.Content,
		})
	}

	if text.Len() > 0 {
		emit(Event{
			Kind:        KindStreamingChunk,
			SessionID:   st.ID,
			Speaker:     speaker,
			SpeakerName: name,
			Final:       true,
		})
	}
	return text.String(), false, nil
}

// reroute clears the consumed next speaker and records the fresh routing
// decision on the session.
func (e *Engine) reroute(ctx context.Context, st *conversation.SessionState) (conversation.Speaker, error) {
	scratch := *st
	scratch.NextSpeaker = conversation.SpeakerNone

	next, err := e.suggester.SuggestNext(ctx, &scratch)
	if err != nil {
		next = Decide(&scratch)
	}

	updated, err := e.store.Mutate(ctx, st.ID, func(live *conversation.SessionState) error {
		live.NextSpeaker = next
		return nil
	})
	if err != nil {
		return conversation.SpeakerNone, err
	}
	*st = updated
	return next, nil
}

// appendHumanMessage applies the role-specific transcript entry and the
// follow-up speaker for a human submission.
func (e *Engine) appendHumanMessage(ctx context.Context, sessionID, content string, role conversation.Speaker) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("message content is required")
	}

	var entry conversation.Message
	var next conversation.Speaker
	switch role {
	case conversation.SpeakerMediator:
		entry = conversation.Message{Speaker: conversation.SpeakerMediator, Text: "[MEDIATOR]: " + content}
		next = conversation.SpeakerAgentA
	case conversation.SpeakerAgentA:
		entry = conversation.Message{Speaker: conversation.SpeakerAgentA, Text: content}
		next = conversation.SpeakerAgentB
	case conversation.SpeakerAgentB:
		entry = conversation.Message{Speaker: conversation.SpeakerAgentB, Text: content}
		next = conversation.SpeakerAgentA
	default:
		return fmt.Errorf("invalid message role %q", role)
	}

	_, err := e.store.Mutate(ctx, sessionID, func(st *conversation.SessionState) error {
		st.Append(entry)
		st.NextSpeaker = next
		return nil
	})
	return err
}

func (e *Engine) emitDecision(st *conversation.SessionState, suggested conversation.Speaker, emit Emitter) {
	emit(Event{
		Kind:          KindWaitingForDecision,
		SessionID:     st.ID,
		Suggested:     suggested,
		SuggestedName: st.SpeakerName(suggested),
		AgentAName:    st.PersonaA.Name,
		AgentBName:    st.PersonaB.Name,
	})
}

// archive persists the current snapshot; failures are logged, never fatal.
func (e *Engine) archive(ctx context.Context, sessionID string) {
	if e.archiver == nil {
		return
	}
	st, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return
	}

	active := st.NextSpeaker != conversation.SpeakerEnd
	if err := e.archiver.Save(ctx, st, active); err != nil {
		e.log.Warn("session snapshot failed", "session_id", sessionID, "error", err)
	}
}

func errorText(err error) string {
	if errors.Is(err, session.ErrSessionNotFound) {
		return sessionNotFoundMessage
	}
	return err.Error()
}
