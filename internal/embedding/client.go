package embedding

import (
	"context"
)

// Client maps text to a fixed-dimension vector. Implementations may fail;
// the Service wrapper decides whether a failure surfaces or degrades to the
// sentinel vector.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
