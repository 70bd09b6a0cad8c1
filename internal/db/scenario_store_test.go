package db

import (
	"context"
	"errors"
	"testing"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
	"github.com/konfliktlab/konfliktsim/backend/internal/model/scenario"
)

func TestSeedPresetsIdempotent(t *testing.T) {
	store := NewScenarioStore(openTestDB(t))
	ctx := context.Background()

	if err := store.SeedPresets(ctx); err != nil {
		t.Fatalf("first seed failed: %v", err)
	}
	if err := store.SeedPresets(ctx); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}

	scenarios, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(scenarios) != len(scenario.Seed()) {
		t.Fatalf("expected %d presets, got %d", len(scenario.Seed()), len(scenarios))
	}
	for _, sc := range scenarios {
		if !sc.IsPreset {
			t.Fatalf("seeded scenario %s not marked as preset", sc.ID)
		}
	}
}

func TestScenarioCRUD(t *testing.T) {
	store := NewScenarioStore(openTestDB(t))
	ctx := context.Background()

	created, err := store.Create(ctx, scenario.Scenario{
		Title:       "Nachbarschaftsstreit",
		Description: "Streit um nächtliche Ruhestörung",
		PersonaA:    conversation.AgentPersona{Name: "Karin", SystemPrompt: "Du bist Karin."},
		PersonaB:    conversation.AgentPersona{Name: "Jens", SystemPrompt: "Du bist Jens."},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.IsPreset {
		t.Fatalf("user scenarios must not be presets")
	}

	found, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.Title != "Nachbarschaftsstreit" || found.PersonaB.Name != "Jens" {
		t.Fatalf("unexpected scenario: %+v", found)
	}

	found.Title = "Ruhestörung"
	updated, err := store.Update(ctx, found)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Title != "Ruhestörung" {
		t.Fatalf("expected updated title, got %q", updated.Title)
	}

	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.FindByID(ctx, created.ID); !errors.Is(err, scenario.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPresetScenariosAreReadOnly(t *testing.T) {
	store := NewScenarioStore(openTestDB(t))
	ctx := context.Background()

	if err := store.SeedPresets(ctx); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	preset := scenario.Seed()[0]

	preset.Title = "manipuliert"
	if _, err := store.Update(ctx, preset); !errors.Is(err, scenario.ErrPresetReadOnly) {
		t.Fatalf("expected ErrPresetReadOnly on update, got %v", err)
	}
	if err := store.Delete(ctx, preset.ID); !errors.Is(err, scenario.ErrPresetReadOnly) {
		t.Fatalf("expected ErrPresetReadOnly on delete, got %v", err)
	}
}

func TestFindUnknownScenario(t *testing.T) {
	store := NewScenarioStore(openTestDB(t))

	if _, err := store.FindByID(context.Background(), "missing"); !errors.Is(err, scenario.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
