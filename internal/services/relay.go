package services

import (
	"context"
	"encoding/json"
	"time"

	"gigachat-relay/internal/models"
)

// Completer sends a conversation to a language-model provider and returns
// the text of its reply. Messages must be forwarded unmodified.
type Completer interface {
	Name() string
	Complete(ctx context.Context, messages []json.RawMessage) (string, error)
}

type RelayService struct {
	upstream Completer
	timeout  time.Duration
}

// NewRelayService builds the relay. A zero timeout leaves the upstream call
// bounded only by the request context.
func NewRelayService(upstream Completer, timeout time.Duration) *RelayService {
	return &RelayService{upstream: upstream, timeout: timeout}
}

// Relay forwards messages on behalf of an authenticated identity and wraps
// the provider's text in an assistant reply.
func (s *RelayService) Relay(ctx context.Context, identity string, messages []json.RawMessage) (*models.ChatReply, error) {
	if identity == "" {
		return nil, &UnauthorizedError{Message: "Authentication required"}
	}
	if len(messages) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"messages": "Messages are required"}}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	content, err := s.upstream.Complete(ctx, messages)
	if err != nil {
		return nil, &UpstreamError{Provider: s.upstream.Name(), Err: err}
	}

	return &models.ChatReply{Role: "assistant", Content: content}, nil
}
