package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/konfliktlab/konfliktsim/backend/internal/analysis/assessment"
	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

// ErrSessionNotFound signals an unknown archived session id.
var ErrSessionNotFound = errors.New("archived session not found")

// SessionRecord is one archived session snapshot as served over REST.
type SessionRecord struct {
	ID         string                    `json:"id"`
	Mode       conversation.Mode         `json:"mode"`
	AutoRun    bool                      `json:"auto_run"`
	PersonaA   conversation.AgentPersona `json:"persona_a"`
	PersonaB   conversation.AgentPersona `json:"persona_b"`
	Scenario   string                    `json:"scenario"`
	HumanRole  conversation.Speaker      `json:"human_role,omitempty"`
	TurnCount  int                       `json:"turn_count"`
	Transcript []conversation.Message    `json:"transcript,omitempty"`
	Scores     *assessment.Scores        `json:"scores,omitempty"`
	IsActive   bool                      `json:"is_active"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// RecordFromState shapes a live session the way archived rows are
// served, so REST can answer from the in-memory store without a read
// from disk.
func RecordFromState(st conversation.SessionState, active bool) SessionRecord {
	rec := SessionRecord{
		ID:         st.ID,
		Mode:       st.Mode,
		AutoRun:    st.AutoRun,
		PersonaA:   st.PersonaA,
		PersonaB:   st.PersonaB,
		Scenario:   st.Scenario,
		HumanRole:  st.HumanRole,
		TurnCount:  st.TurnCount,
		Transcript: st.Transcript,
		IsActive:   active,
		CreatedAt:  st.CreatedAt,
		UpdatedAt:  st.UpdatedAt,
	}
	if parsed := extractScores(st); !parsed.Empty() {
		rec.Scores = &parsed
	}
	return rec
}

// SessionArchive persists session snapshots to SQLite. The engine writes a
// snapshot after every run; REST reads history through it.
type SessionArchive struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSessionArchive wraps an open database handle.
func NewSessionArchive(conn *sql.DB) *SessionArchive {
	return &SessionArchive{
		db:  conn,
		log: slog.With("component", "session_archive"),
	}
}

// Save upserts the snapshot for one session. The close-out scores are
// re-extracted from the transcript on every call.
func (a *SessionArchive) Save(ctx context.Context, st conversation.SessionState, active bool) error {
	transcript, err := json.Marshal(st.Transcript)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	var scores sql.NullString
	if parsed := extractScores(st); !parsed.Empty() {
		encoded, err := json.Marshal(parsed)
		if err != nil {
			return fmt.Errorf("failed to encode scores: %w", err)
		}
		scores = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO sessions (id, mode, auto_run, persona_a_name, persona_a_prompt,
		     persona_b_name, persona_b_prompt, scenario, human_role, turn_count,
		     transcript, scores, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     mode = excluded.mode,
		     auto_run = excluded.auto_run,
		     persona_a_name = excluded.persona_a_name,
		     persona_a_prompt = excluded.persona_a_prompt,
		     persona_b_name = excluded.persona_b_name,
		     persona_b_prompt = excluded.persona_b_prompt,
		     scenario = excluded.scenario,
		     human_role = excluded.human_role,
		     turn_count = excluded.turn_count,
		     transcript = excluded.transcript,
		     scores = excluded.scores,
		     is_active = excluded.is_active,
		     updated_at = excluded.updated_at`,
		st.ID, st.Mode, st.AutoRun,
		st.PersonaA.Name, st.PersonaA.SystemPrompt,
		st.PersonaB.Name, st.PersonaB.SystemPrompt,
		st.Scenario, string(st.HumanRole), st.TurnCount,
		string(transcript), scores, active,
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session snapshot: %w", err)
	}
	return nil
}

// List returns all archived sessions without transcripts, newest first.
func (a *SessionArchive) List(ctx context.Context) ([]SessionRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, mode, auto_run, persona_a_name, persona_a_prompt,
		        persona_b_name, persona_b_prompt, scenario, human_role,
		        turn_count, scores, is_active, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		rec, err := scanSessionRecord(rows, false)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns one archived session including its transcript.
func (a *SessionArchive) Get(ctx context.Context, id string) (SessionRecord, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id, mode, auto_run, persona_a_name, persona_a_prompt,
		        persona_b_name, persona_b_prompt, scenario, human_role,
		        turn_count, scores, is_active, created_at, updated_at, transcript
		 FROM sessions WHERE id = ?`, id)

	rec, err := scanSessionRecord(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrSessionNotFound
	}
	return rec, err
}

// Delete removes one archived session.
func (a *SessionArchive) Delete(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// extractScores parses the close-out block from the last evaluator entry.
func extractScores(st conversation.SessionState) assessment.Scores {
	for i := len(st.Transcript) - 1; i >= 0; i-- {
		if st.Transcript[i].Speaker == conversation.SpeakerEvaluator {
			return assessment.Parse(st.Transcript[i].Text, st.PersonaA.Name, st.PersonaB.Name)
		}
	}
	return assessment.Scores{}
}

func scanSessionRecord(row rowScanner, withTranscript bool) (SessionRecord, error) {
	var (
		rec        SessionRecord
		humanRole  string
		scores     sql.NullString
		transcript string
	)

	dest := []any{
		&rec.ID, &rec.Mode, &rec.AutoRun,
		&rec.PersonaA.Name, &rec.PersonaA.SystemPrompt,
		&rec.PersonaB.Name, &rec.PersonaB.SystemPrompt,
		&rec.Scenario, &humanRole, &rec.TurnCount,
		&scores, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt,
	}
	if withTranscript {
		dest = append(dest, &transcript)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, err
		}
		return SessionRecord{}, fmt.Errorf("failed to scan session: %w", err)
	}

	rec.HumanRole = conversation.Speaker(humanRole)
	if scores.Valid {
		parsed := &assessment.Scores{}
		if err := json.Unmarshal([]byte(scores.String), parsed); err == nil {
			rec.Scores = parsed
		}
	}
	if withTranscript && transcript != "" {
		if err := json.Unmarshal([]byte(transcript), &rec.Transcript); err != nil {
			return SessionRecord{}, fmt.Errorf("failed to decode transcript: %w", err)
		}
	}
	return rec, nil
}
