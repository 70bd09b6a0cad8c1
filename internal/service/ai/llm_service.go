package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/konfliktlab/konfliktsim/backend/internal/config"
)

// Service drives text generation through an Ark chat model behind a
// compiled eino chain.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	log       *slog.Logger
}

var _ Generator = (*Service)(nil)
var _ Classifier = (*Service)(nil)

// NewService creates the Ark-backed generation service.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		chain:     runnable,
		log:       slog.With("component", "ai"),
	}, nil
}

// Generate runs one complete, non-streaming completion.
func (s *Service) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	response, err := s.chain.Invoke(ctx, chainInput(msgs))
	if err != nil {
		return "", fmt.Errorf("failed to run generation chain: %w", err)
	}

	s.log.Debug("generated response", "length", len(response.Content))
	return response.Content, nil
}

// GenerateStream runs one streaming completion.
func (s *Service) GenerateStream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, chainInput(msgs))
	if err != nil {
		return nil, fmt.Errorf("failed to stream generation chain: %w", err)
	}
	return stream, nil
}

// Classify issues a single low-temperature completion, bypassing the chain
// so the routing call can pin its own sampling.
func (s *Service) Classify(ctx context.Context, system, user string) (string, error) {
	response, err := s.chatModel.Generate(ctx,
		[]*schema.Message{
			schema.SystemMessage(system),
			schema.UserMessage(user),
		},
		model.WithTemperature(0.2),
	)
	if err != nil {
		return "", fmt.Errorf("failed to run classification: %w", err)
	}
	return response.Content, nil
}

// ChatModel exposes the underlying model.
func (s *Service) ChatModel() model.ChatModel {
	return s.chatModel
}

// chainInput splits the role-tagged messages into the chain's template
// slots: leading system messages fill {system}, the rest flow through the
// history placeholder untouched.
func chainInput(msgs []*schema.Message) map[string]any {
	var system []string
	history := make([]*schema.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == schema.System && len(history) == 0 {
			system = append(system, msg.Content)
			continue
		}
		history = append(history, msg)
	}
	return map[string]any{
		"system":  strings.Join(system, "\n\n"),
		"history": history,
	}
}
