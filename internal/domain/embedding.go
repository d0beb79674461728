package domain

import (
	"context"
	"fmt"
	"strings"
)

// Embedder turns query text into a vector. Implementations stack as
// decorators: upstream client, cache, instruction prefix, guard.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the vector and the tokens it cost. Cache hits
// report zero tokens.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// InstructionEmbedder prefixes query text with a retrieval instruction, as
// instruction-tuned embedding models expect for the query side only.
// Resource embeddings are supplied precomputed and never pass through it.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder wraps inner with the given instruction prefix.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed rejects blank text, since the instruction alone would still embed.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", ErrEmptyQuery)
	}
	result, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}
