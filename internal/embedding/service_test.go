package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubClient struct {
	vec  []float32
	err  error
	seen []string
}

func (s *stubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	s.seen = append(s.seen, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.seen = append(s.seen, texts...)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func TestEmbedPropagatesProviderError(t *testing.T) {
	svc := NewService(&stubClient{err: errors.New("rate limited")}, 3, zap.NewNop())

	_, err := svc.Embed(context.Background(), "concert tonight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestEmbedOrZeroFallsBackOnError(t *testing.T) {
	svc := NewService(&stubClient{err: errors.New("boom")}, 4, zap.NewNop())

	vec := svc.EmbedOrZero(context.Background(), "anything")
	assert.Equal(t, []float32{0, 0, 0, 0}, vec)
}

func TestEmbedEmptyTextSkipsProvider(t *testing.T) {
	stub := &stubClient{vec: []float32{1, 2, 3}}
	svc := NewService(stub, 3, zap.NewNop())

	vec, err := svc.Embed(context.Background(), "   \n\t  ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, vec)
	assert.Empty(t, stub.seen)
}

func TestEmbedSanitizesBadVectors(t *testing.T) {
	svc := NewService(&stubClient{vec: []float32{1, float32(math.NaN()), 3}}, 3, zap.NewNop())
	vec, err := svc.Embed(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, vec)

	short := NewService(&stubClient{vec: []float32{1, 2}}, 3, zap.NewNop())
	vec, err = short.Embed(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, vec)
}

func TestEmbedBatchOrZeroKeepsOrder(t *testing.T) {
	stub := &stubClient{vec: []float32{0.5, 0.5}}
	svc := NewService(stub, 2, zap.NewNop())

	vecs := svc.EmbedBatchOrZero(context.Background(), []string{"a", "", "b"})
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{0.5, 0.5}, vecs[0])
	assert.Equal(t, []float32{0, 0}, vecs[1])
	assert.Equal(t, []float32{0.5, 0.5}, vecs[2])
	assert.Equal(t, []string{"a", "b"}, stub.seen)
}

func TestCleanTextNormalizesWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CleanText("  a\n\n b\t c  "))
	assert.Equal(t, "", CleanText("   "))

	long := strings.Repeat("x", maxTextLen+100)
	assert.Len(t, CleanText(long), maxTextLen)
}

func TestPrepareEventTextStripsBoilerplate(t *testing.T) {
	got := PrepareEventText("Jazz Night", "Live jazz. Sourced from predicthq.com")
	assert.Equal(t, "Title: Jazz Night Description: Live jazz.", got)

	noDesc := PrepareEventText("Jazz Night", "")
	assert.Equal(t, "Title: Jazz Night", noDesc)
}
