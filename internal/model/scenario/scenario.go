package scenario

import (
	"errors"
	"strings"
	"time"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

var (
	// ErrNotFound signals an unknown scenario id.
	ErrNotFound = errors.New("scenario not found")
	// ErrPresetReadOnly signals an attempt to modify or delete a preset.
	ErrPresetReadOnly = errors.New("preset scenarios are read-only")
)

// Scenario is a reusable conflict template: the situation text plus the two
// persona definitions a session is started from.
type Scenario struct {
	ID          string                    `json:"id"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	PersonaA    conversation.AgentPersona `json:"persona_a"`
	PersonaB    conversation.AgentPersona `json:"persona_b"`
	IsPreset    bool                      `json:"is_preset"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// Validate checks the fields a client must supply.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(s.Description) == "" {
		return errors.New("description is required")
	}
	if strings.TrimSpace(s.PersonaA.Name) == "" || strings.TrimSpace(s.PersonaB.Name) == "" {
		return errors.New("both persona names are required")
	}
	return nil
}
