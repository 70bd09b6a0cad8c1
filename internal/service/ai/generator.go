package ai

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"
)

// Generator is the narrow surface the turn engine depends on. Messages are
// fully role-tagged by the caller; implementations must not reorder them.
// Streams are lazy, finite and non-restartable: consume via Recv until
// io.EOF and Close on early exit so the provider connection is released.
type Generator interface {
	Generate(ctx context.Context, msgs []*schema.Message) (string, error)
	GenerateStream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error)
}

// Classifier issues one low-temperature completion for routing decisions.
type Classifier interface {
	Classify(ctx context.Context, system, user string) (string, error)
}

// ErrNoProvider is returned by Disabled for every call.
var ErrNoProvider = errors.New("Kein KI-Provider konfiguriert")

// Disabled stands in for a Generator when no provider credentials are
// present. The server still boots and serves scenarios; every
// generation attempt fails with ErrNoProvider.
type Disabled struct{}

var _ Generator = Disabled{}
var _ Classifier = Disabled{}

func (Disabled) Generate(context.Context, []*schema.Message) (string, error) {
	return "", ErrNoProvider
}

func (Disabled) GenerateStream(context.Context, []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	return nil, ErrNoProvider
}

func (Disabled) Classify(context.Context, string, string) (string, error) {
	return "", ErrNoProvider
}
