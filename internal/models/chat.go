package models

import "encoding/json"

// ChatMessage is the conventional shape of one conversation turn.
// The relay itself never rewrites messages; this type is only used by
// upstreams that need to inspect roles.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the predict endpoint. Messages are kept
// raw so they reach the upstream exactly as the caller sent them.
type ChatRequest struct {
	Messages []json.RawMessage `json:"messages"`
}

// ChatReply is the response envelope of the predict endpoint.
type ChatReply struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AuthStatus is returned by the credential check endpoint.
type AuthStatus struct {
	Success bool `json:"success"`
}
