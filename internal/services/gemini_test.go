package services

import (
	"encoding/json"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToGeminiConversation(t *testing.T) {
	messages := []json.RawMessage{
		json.RawMessage(`{"role":"system","content":"Answer in Russian."}`),
		json.RawMessage(`{"role":"user","content":"hi"}`),
		json.RawMessage(`{"role":"assistant","content":"hello"}`),
		json.RawMessage(`{"role":"user","content":"how are you?"}`),
	}

	system, history, last, err := toGeminiConversation(messages)

	require.NoError(t, err)
	assert.Equal(t, "Answer in Russian.", system)
	assert.Equal(t, "how are you?", last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, genai.Text("hi"), history[0].Parts[0])
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, genai.Text("hello"), history[1].Parts[0])
}

func TestToGeminiConversation_Errors(t *testing.T) {
	_, _, _, err := toGeminiConversation([]json.RawMessage{json.RawMessage(`{"role":"system","content":"x"}`)})
	assert.Error(t, err, "system-only conversation")

	_, _, _, err = toGeminiConversation([]json.RawMessage{json.RawMessage(`"just text"`)})
	assert.Error(t, err, "non-object message")
}

func TestExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("Hel"), genai.Text("lo!")}}},
			{Content: nil},
		},
	}
	assert.Equal(t, "Hello!", extractText(resp))
}
