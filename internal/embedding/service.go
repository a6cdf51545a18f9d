package embedding

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// maxTextLen bounds text sent to the provider; both providers reject
// inputs far beyond this, so truncate conservatively.
const maxTextLen = 8000

// boilerplate appended by the upstream feed to every description; stripped
// before the text is embedded so it does not dominate the vector.
const feedBoilerplate = "Sourced from predicthq.com"

// Service wraps a Client with the text-cleaning contract and the sentinel
// fallback. Embed surfaces provider errors (interactive callers need to
// distinguish an outage from "no results"); EmbedOrZero degrades to the
// all-zero sentinel vector so batch producers keep a well-defined vector
// for every record.
type Service struct {
	client    Client
	dimension int
	logger    *zap.Logger
}

func NewService(client Client, dimension int, logger *zap.Logger) *Service {
	return &Service{client: client, dimension: dimension, logger: logger}
}

func (s *Service) Dimension() int { return s.dimension }

// Embed cleans the text and requests a vector, sanitizing the result.
// An empty-after-cleaning input yields the zero vector without a provider
// call. Provider errors propagate to the caller.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	clean := CleanText(text)
	if clean == "" {
		s.logger.Warn("embedding input empty after cleaning, returning zero vector")
		return s.ZeroVector(), nil
	}

	vec, err := s.client.Embed(ctx, clean)
	if err != nil {
		return nil, err
	}
	return s.sanitize(vec), nil
}

// EmbedOrZero never fails: any provider error is logged and replaced with
// the zero sentinel vector.
func (s *Service) EmbedOrZero(ctx context.Context, text string) []float32 {
	vec, err := s.Embed(ctx, text)
	if err != nil {
		s.logger.Error("embedding generation failed, using zero vector", zap.Error(err))
		return s.ZeroVector()
	}
	return vec
}

// EmbedBatchOrZero embeds many texts at once, mapping results back to input
// order. Empty texts and provider failures come back as zero vectors.
func (s *Service) EmbedBatchOrZero(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	cleaned := make([]string, 0, len(texts))
	indices := make([]int, 0, len(texts))

	for i, t := range texts {
		if c := CleanText(t); c != "" {
			cleaned = append(cleaned, c)
			indices = append(indices, i)
		} else {
			out[i] = s.ZeroVector()
		}
	}

	if len(cleaned) == 0 {
		return out
	}

	vecs, err := s.client.EmbedBatch(ctx, cleaned)
	if err != nil {
		s.logger.Error("batch embedding failed, using zero vectors",
			zap.Int("count", len(cleaned)), zap.Error(err))
		for _, i := range indices {
			out[i] = s.ZeroVector()
		}
		return out
	}

	for j, i := range indices {
		out[i] = s.sanitize(vecs[j])
	}
	return out
}

// ZeroVector is the documented sentinel for unavailable embeddings.
func (s *Service) ZeroVector() []float32 {
	return make([]float32, s.dimension)
}

// sanitize enforces the dimension and finiteness invariants, replacing
// invalid vectors with the sentinel rather than propagating them.
func (s *Service) sanitize(vec []float32) []float32 {
	if len(vec) != s.dimension {
		s.logger.Warn("embedding has wrong dimension, using zero vector",
			zap.Int("got", len(vec)), zap.Int("want", s.dimension))
		return s.ZeroVector()
	}
	if !IsFinite(vec) {
		s.logger.Warn("embedding contains NaN/Inf, using zero vector")
		return s.ZeroVector()
	}
	return vec
}

// CleanText normalizes whitespace and truncates oversized input.
func CleanText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxTextLen {
		text = text[:maxTextLen]
	}
	return text
}

// PrepareEventText combines title and description into the canonical text
// fed to the embedder, with feed boilerplate stripped.
func PrepareEventText(title, description string) string {
	description = strings.TrimSpace(strings.ReplaceAll(description, feedBoilerplate, ""))

	combined := "Title: " + title
	if description != "" {
		combined += " Description: " + description
	}
	return strings.TrimSpace(combined)
}
