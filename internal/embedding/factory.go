package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/pulse/internal/config"
)

// NewClient builds the embedding client named by the config.
func NewClient(ctx context.Context, cfg config.EmbeddingConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Dimension), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
