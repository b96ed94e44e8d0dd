// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOpenAIClient_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIClient(); err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is missing")
	}
}

func TestNewOpenAIClient_DefaultModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("LLM_MODEL", "")
	client, err := NewOpenAIClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Model() != "gpt-4o-mini" {
		t.Errorf("Model() = %q, want gpt-4o-mini", client.Model())
	}
}

func TestOpenAIChat_Success(t *testing.T) {
	var captured openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		resp := openaiResponse{
			Choices: []openaiChoice{{
				Message:      openaiMessage{Role: "assistant", Content: `{"ok": true}`},
				FinishReason: "stop",
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", server.URL)

	temp := 0.0
	seed := 42
	reply, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "You score things."},
		{Role: "user", Content: "score this"},
	}, GenerationParams{Temperature: &temp, Seed: &seed, JSONObject: true})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != `{"ok": true}` {
		t.Errorf("reply = %q", reply)
	}

	if captured.Seed == nil || *captured.Seed != 42 {
		t.Errorf("seed not forwarded: %v", captured.Seed)
	}
	if captured.Temperature == nil || *captured.Temperature != 0 {
		t.Errorf("temperature not forwarded: %v", captured.Temperature)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format not forwarded: %+v", captured.ResponseFormat)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Errorf("messages not forwarded: %+v", captured.Messages)
	}
}

func TestOpenAIChat_UnknownRoleMapsToUser(t *testing.T) {
	var captured openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", server.URL)
	if _, err := client.Chat(context.Background(), []Message{{Role: "tool", Content: "x"}}, GenerationParams{}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if captured.Messages[0].Role != "user" {
		t.Errorf("unknown role should map to user, got %q", captured.Messages[0].Role)
	}
}

func TestOpenAIChat_APIErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"type": "rate_limit", "message": "slow down"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", server.URL)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	if err == nil {
		t.Fatal("expected error for 429 status")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should include status code, got: %v", err)
	}
}

func TestOpenAIChat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{})
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", server.URL)
	if _, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerationParams{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIChat_ModelOverride(t *testing.T) {
	var captured openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", server.URL)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}},
		GenerationParams{ModelOverride: "gpt-4o"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if captured.Model != "gpt-4o" {
		t.Errorf("model = %q, want override gpt-4o", captured.Model)
	}
}
