// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides thin clients for the OpenAI REST API using raw
// net/http: chat completions for the extractor and the granular scorer,
// and the embeddings endpoint for the vector index.
//
// The matcher depends on deterministic replies, so GenerationParams
// carries both a temperature and a seed; callers set temperature 0 and a
// fixed seed for every catalog and scoring call.
//
// Thread Safety: all clients in this package are safe for concurrent use.
package llm

import "context"

// Message is a single chat turn (role: system, user, or assistant).
type Message struct {
	Role    string
	Content string
}

// GenerationParams holds provider-agnostic options for one chat request.
type GenerationParams struct {
	// Temperature controls randomness. Nil omits the field and uses the
	// provider default; the matcher always sets an explicit 0.
	Temperature *float64

	// Seed requests deterministic sampling where the backend supports it.
	Seed *int

	// MaxTokens limits the response length. Nil omits the field.
	MaxTokens *int

	// JSONObject forces the reply to be a single JSON object
	// (response_format: json_object).
	JSONObject bool

	// ModelOverride replaces the client's default model for this request.
	ModelOverride string
}

// ChatClient is the minimal chat surface the extractor and scorer need.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// Embedder produces an embedding vector for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
