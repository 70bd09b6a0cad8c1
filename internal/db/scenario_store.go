package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/scenario"
)

// ScenarioStore is the SQLite-backed scenario.Store.
type ScenarioStore struct {
	db  *sql.DB
	log *slog.Logger
}

var _ scenario.Store = (*ScenarioStore)(nil)

// NewScenarioStore wraps an open database handle.
func NewScenarioStore(conn *sql.DB) *ScenarioStore {
	return &ScenarioStore{
		db:  conn,
		log: slog.With("component", "scenario_store"),
	}
}

const scenarioColumns = `id, title, description, persona_a_name, persona_a_prompt,
	persona_b_name, persona_b_prompt, is_preset, created_at, updated_at`

// SeedPresets inserts the built-in scenarios, skipping ids that already
// exist so user edits of the database survive restarts.
func (s *ScenarioStore) SeedPresets(ctx context.Context) error {
	seeded := 0
	now := time.Now()
	for _, preset := range scenario.Seed() {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO scenarios (`+scenarioColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			preset.ID, preset.Title, preset.Description,
			preset.PersonaA.Name, preset.PersonaA.SystemPrompt,
			preset.PersonaB.Name, preset.PersonaB.SystemPrompt,
			now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed scenario %s: %w", preset.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			seeded++
		}
	}
	if seeded > 0 {
		s.log.Info("seeded preset scenarios", "count", seeded)
	}
	return nil
}

// List returns all scenarios, presets first.
func (s *ScenarioStore) List(ctx context.Context) ([]scenario.Scenario, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scenarioColumns+` FROM scenarios ORDER BY is_preset DESC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	defer rows.Close()

	scenarios := []scenario.Scenario{}
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, rows.Err()
}

// FindByID returns one scenario or scenario.ErrNotFound.
func (s *ScenarioStore) FindByID(ctx context.Context, id string) (scenario.Scenario, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`, id)

	sc, err := scanScenario(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scenario.Scenario{}, scenario.ErrNotFound
	}
	return sc, err
}

// Create stores a new user scenario.
func (s *ScenarioStore) Create(ctx context.Context, sc scenario.Scenario) (scenario.Scenario, error) {
	if err := sc.Validate(); err != nil {
		return scenario.Scenario{}, err
	}

	if strings.TrimSpace(sc.ID) == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now()
	sc.CreatedAt = now
	sc.UpdatedAt = now
	sc.IsPreset = false

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scenarios (`+scenarioColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		sc.ID, sc.Title, sc.Description,
		sc.PersonaA.Name, sc.PersonaA.SystemPrompt,
		sc.PersonaB.Name, sc.PersonaB.SystemPrompt,
		sc.CreatedAt, sc.UpdatedAt,
	)
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("failed to create scenario: %w", err)
	}
	return sc, nil
}

// Update rewrites a user scenario. Presets return ErrPresetReadOnly.
func (s *ScenarioStore) Update(ctx context.Context, sc scenario.Scenario) (scenario.Scenario, error) {
	if err := sc.Validate(); err != nil {
		return scenario.Scenario{}, err
	}
	sc.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE scenarios SET title = ?, description = ?, persona_a_name = ?, persona_a_prompt = ?,
		 persona_b_name = ?, persona_b_prompt = ?, updated_at = ?
		 WHERE id = ? AND is_preset = 0`,
		sc.Title, sc.Description,
		sc.PersonaA.Name, sc.PersonaA.SystemPrompt,
		sc.PersonaB.Name, sc.PersonaB.SystemPrompt,
		sc.UpdatedAt, sc.ID,
	)
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("failed to update scenario: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return scenario.Scenario{}, s.missReason(ctx, sc.ID)
	}

	return s.FindByID(ctx, sc.ID)
}

// Delete removes a user scenario. Presets return ErrPresetReadOnly.
func (s *ScenarioStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scenarios WHERE id = ? AND is_preset = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.missReason(ctx, id)
	}
	return nil
}

// missReason distinguishes a protected preset from a missing row after a
// guarded write matched nothing.
func (s *ScenarioStore) missReason(ctx context.Context, id string) error {
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsPreset {
		return scenario.ErrPresetReadOnly
	}
	return scenario.ErrNotFound
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScenario(row rowScanner) (scenario.Scenario, error) {
	var sc scenario.Scenario
	err := row.Scan(
		&sc.ID, &sc.Title, &sc.Description,
		&sc.PersonaA.Name, &sc.PersonaA.SystemPrompt,
		&sc.PersonaB.Name, &sc.PersonaB.SystemPrompt,
		&sc.IsPreset, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scenario.Scenario{}, err
		}
		return scenario.Scenario{}, fmt.Errorf("failed to scan scenario: %w", err)
	}
	return sc, nil
}
