package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"gigachat-relay/internal/models"
)

type GeminiService struct {
	client    *genai.Client
	modelName string
}

func NewGeminiService(apiKey, modelName string) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{client: client, modelName: modelName}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

func (s *GeminiService) Name() string { return "gemini" }

// Complete replays the conversation as a Gemini chat session and sends the
// final message.
func (s *GeminiService) Complete(ctx context.Context, messages []json.RawMessage) (string, error) {
	system, history, last, err := toGeminiConversation(messages)
	if err != nil {
		return "", err
	}

	// A fresh model per call; SystemInstruction differs between requests.
	model := s.client.GenerativeModel(s.modelName)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("WARNING: Gemini candidate %d stopped due to %s", i, cand.FinishReason)
		}
	}

	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}

// toGeminiConversation splits raw role/content messages into a system
// instruction, prior turns and the message to send.
func toGeminiConversation(messages []json.RawMessage) (system string, history []*genai.Content, last string, err error) {
	var systemParts []string
	var turns []models.ChatMessage

	for i, raw := range messages {
		var msg models.ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return "", nil, "", fmt.Errorf("message %d: %w", i, err)
		}
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}

	if len(turns) == 0 {
		return "", nil, "", fmt.Errorf("conversation has no user message")
	}

	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	return strings.Join(systemParts, "\n\n"), history, turns[len(turns)-1].Content, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
