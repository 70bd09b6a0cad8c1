package scenario

import "context"

// Store exposes scenario retrieval and editing for HTTP handlers and the
// session engine. Presets are seeded once and reject Update/Delete.
type Store interface {
	List(ctx context.Context) ([]Scenario, error)
	FindByID(ctx context.Context, id string) (Scenario, error)
	Create(ctx context.Context, s Scenario) (Scenario, error)
	Update(ctx context.Context, s Scenario) (Scenario, error)
	Delete(ctx context.Context, id string) error
}
