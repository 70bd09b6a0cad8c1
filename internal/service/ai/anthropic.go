package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/konfliktlab/konfliktsim/backend/internal/config"
)

const anthropicAPIVersion = "2023-06-01"

// AnthropicService drives text generation against the Anthropic Messages
// API directly, without an SDK.
type AnthropicService struct {
	cfg        config.AnthropicConfig
	httpClient *http.Client
	log        *slog.Logger
}

var _ Generator = (*AnthropicService)(nil)
var _ Classifier = (*AnthropicService)(nil)

// NewAnthropicService creates the Anthropic-backed generation service.
func NewAnthropicService(cfg config.AnthropicConfig) (*AnthropicService, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("anthropic credentials missing: provide ANTHROPIC_API_KEY")
	}
	return &AnthropicService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        slog.With("component", "ai"),
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *anthropicError `json:"error"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Generate runs one complete, non-streaming completion.
func (s *AnthropicService) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	resp, err := s.complete(ctx, s.buildRequest(msgs, nil, false))
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	s.log.Debug("generated response", "length", text.Len())
	return text.String(), nil
}

// GenerateStream runs one streaming completion, adapting the SSE events
// into a message stream. The returned reader owns the HTTP connection;
// closing it early releases the connection.
func (s *AnthropicService) GenerateStream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	body, err := s.do(ctx, s.buildRequest(msgs, nil, true))
	if err != nil {
		return nil, err
	}

	reader, writer := schema.Pipe[*schema.Message](8)
	go s.pumpStream(body, writer)
	return reader, nil
}

// Classify issues a single low-temperature completion.
func (s *AnthropicService) Classify(ctx context.Context, system, user string) (string, error) {
	temperature := 0.2
	msgs := []*schema.Message{schema.SystemMessage(system), schema.UserMessage(user)}

	resp, err := s.complete(ctx, s.buildRequest(msgs, &temperature, false))
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", nil
	}
	return resp.Content[0].Text, nil
}

// complete posts one request and decodes the full response body.
func (s *AnthropicService) complete(ctx context.Context, req anthropicRequest) (anthropicResponse, error) {
	body, err := s.do(ctx, req)
	if err != nil {
		return anthropicResponse{}, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return anthropicResponse{}, fmt.Errorf("read anthropic response: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return anthropicResponse{}, fmt.Errorf("decode anthropic response: %w", err)
	}
	return resp, nil
}

// buildRequest flattens role-tagged messages into the Messages API shape:
// leading system messages fill the top-level system field, assistant
// entries keep their role, everything else becomes a user entry.
func (s *AnthropicService) buildRequest(msgs []*schema.Message, temperature *float64, stream bool) anthropicRequest {
	var system []string
	converted := make([]anthropicMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch {
		case msg.Role == schema.System && len(converted) == 0:
			system = append(system, msg.Content)
		case msg.Role == schema.Assistant:
			converted = append(converted, anthropicMessage{Role: "assistant", Content: msg.Content})
		default:
			converted = append(converted, anthropicMessage{Role: "user", Content: msg.Content})
		}
	}

	return anthropicRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		System:      strings.Join(system, "\n\n"),
		Messages:    converted,
		Temperature: temperature,
		Stream:      stream,
	}
}

func (s *AnthropicService) do(ctx context.Context, req anthropicRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", s.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseAnthropicError(resp)
	}
	return resp.Body, nil
}

// pumpStream reads SSE lines off the response body and forwards text
// deltas into the pipe until message_stop, an error event, or the reader
// side going away.
func (s *AnthropicService) pumpStream(body io.ReadCloser, writer *schema.StreamWriter[*schema.Message]) {
	defer body.Close()
	defer writer.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
				continue
			}
			if closed := writer.Send(schema.AssistantMessage(event.Delta.Text, nil), nil); closed {
				return
			}
		case "error":
			message := "anthropic stream error"
			if event.Error != nil {
				message = event.Error.Message
			}
			writer.Send(nil, fmt.Errorf("anthropic stream: %s", message))
			return
		case "message_stop":
			return
		}
	}

	if err := scanner.Err(); err != nil {
		writer.Send(nil, fmt.Errorf("read anthropic stream: %w", err))
	}
}

func parseAnthropicError(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anthropic api status %d", resp.StatusCode)
	}

	var wrapped struct {
		Error *anthropicError `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Error != nil {
		return fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, wrapped.Error.Message)
	}
	return fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
