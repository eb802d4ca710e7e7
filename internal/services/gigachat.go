package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// tokenRefreshMargin drops a cached token shortly before the provider does.
const tokenRefreshMargin = 60 * time.Second

const maxUpstreamBody = 10 * 1024 * 1024

type GigaChatOptions struct {
	Credentials    string
	Model          string
	BaseURL        string
	AuthURL        string
	Scope          string
	VerifySSL      bool
	ProfanityCheck bool
	Timeout        time.Duration
	ConcurrentReqs int
}

// GigaChatError is a non-2xx answer from the GigaChat API.
type GigaChatError struct {
	Status  int
	Message string
}

func (e *GigaChatError) Error() string {
	return fmt.Sprintf("GigaChat API error (HTTP %d): %s", e.Status, e.Message)
}

type GigaChatService struct {
	opts       GigaChatOptions
	httpClient *http.Client
	tokens     TokenStore
	tokenGroup singleflight.Group
	rateChan   chan struct{} // Token bucket
}

func NewGigaChatService(opts GigaChatOptions, tokens TokenStore) *GigaChatService {
	if opts.ConcurrentReqs <= 0 {
		opts.ConcurrentReqs = 1
	}
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !opts.VerifySSL,
	}

	rateChan := make(chan struct{}, opts.ConcurrentReqs)
	for i := 0; i < opts.ConcurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GigaChatService{
		opts:       opts,
		httpClient: &http.Client{Transport: transport, Timeout: opts.Timeout},
		tokens:     tokens,
		rateChan:   rateChan,
	}
}

func (s *GigaChatService) Name() string { return "gigachat" }

// acquireRate blocks until a rate slot is available
func (s *GigaChatService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *GigaChatService) releaseRate() {
	s.rateChan <- struct{}{}
}

type gigaChatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []json.RawMessage `json:"messages"`
	ProfanityCheck bool              `json:"profanity_check"`
}

type gigaChatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type gigaChatTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // Unix milliseconds
}

// Complete sends the conversation to /chat/completions and returns the text
// of the first choice.
func (s *GigaChatService) Complete(ctx context.Context, messages []json.RawMessage) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	token, err := s.accessToken(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(gigaChatCompletionRequest{
		Model:          s.opts.Model,
		Messages:       messages,
		ProfanityCheck: s.opts.ProfanityCheck,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	respBody, status, err := s.do(req)
	if err != nil {
		return "", err
	}
	if status == http.StatusUnauthorized {
		// Token revoked or expired early; the next request re-authenticates.
		if err := s.tokens.Clear(ctx); err != nil {
			log.Printf("GigaChat: failed to drop access token: %v", err)
		}
	}
	if status < 200 || status >= 300 {
		return "", &GigaChatError{Status: status, Message: upstreamMessage(respBody)}
	}

	var chatResp gigaChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	choice := chatResp.Choices[0]
	if choice.FinishReason != "" && choice.FinishReason != "stop" {
		log.Printf("WARNING: GigaChat stopped due to %s", choice.FinishReason)
	}

	return choice.Message.Content, nil
}

// accessToken returns a cached token or requests a new one via OAuth.
// Concurrent misses share a single OAuth round trip.
func (s *GigaChatService) accessToken(ctx context.Context) (string, error) {
	if tok, ok := s.tokens.Get(ctx); ok {
		return tok.Value, nil
	}

	// The fetch outlives any single caller so that one cancelled request does
	// not fail the others waiting on it; httpClient.Timeout still bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.tokenGroup.DoChan("token", func() (interface{}, error) {
		if tok, ok := s.tokens.Get(fetchCtx); ok {
			return tok.Value, nil
		}
		return s.fetchToken(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *GigaChatService) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{"scope": {s.opts.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+s.opts.Credentials)

	respBody, status, err := s.do(req)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &GigaChatError{Status: status, Message: upstreamMessage(respBody)}
	}

	var tokResp gigaChatTokenResponse
	if err := json.Unmarshal(respBody, &tokResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in OAuth response")
	}

	expiresAt := time.UnixMilli(tokResp.ExpiresAt).Add(-tokenRefreshMargin)
	if time.Now().Before(expiresAt) {
		if err := s.tokens.Set(ctx, AccessToken{Value: tokResp.AccessToken, ExpiresAt: expiresAt}); err != nil {
			log.Printf("GigaChat: failed to cache access token: %v", err)
		}
	}

	return tokResp.AccessToken, nil
}

func (s *GigaChatService) do(req *http.Request) ([]byte, int, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// upstreamMessage pulls the human-readable message out of an error body.
func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
