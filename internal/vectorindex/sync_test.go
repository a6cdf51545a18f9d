package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/model"
)

type fakeSyncStore struct {
	backlog []model.Event
	marked  []string
}

func (f *fakeSyncStore) UnindexedEvents(_ context.Context, limit int) ([]model.Event, error) {
	if limit > len(f.backlog) {
		limit = len(f.backlog)
	}
	batch := f.backlog[:limit]
	f.backlog = f.backlog[limit:]
	return batch, nil
}

func (f *fakeSyncStore) MarkIndexed(_ context.Context, ids []string) error {
	f.marked = append(f.marked, ids...)
	return nil
}

type fakeIndex struct {
	upserted []string
	failNext bool
}

func (f *fakeIndex) EnsureCollection(context.Context) error { return nil }

func (f *fakeIndex) Upsert(_ context.Context, events []model.Event) (int, error) {
	if f.failNext {
		return 0, errors.New("index unavailable")
	}
	for _, e := range events {
		f.upserted = append(f.upserted, e.ID)
	}
	return len(events), nil
}

func (f *fakeIndex) Delete(context.Context, string) error { return nil }

func (f *fakeIndex) Search(context.Context, []float32, int, float64) ([]Match, error) {
	return nil, nil
}

func (f *fakeIndex) Close() error { return nil }

func makeBacklog(n int) []model.Event {
	events := make([]model.Event, n)
	for i := range events {
		events[i] = model.Event{ID: fmt.Sprintf("evt-%03d", i)}
	}
	return events
}

func TestSyncerDrainsBacklogInBatches(t *testing.T) {
	store := &fakeSyncStore{backlog: makeBacklog(7)}
	index := &fakeIndex{}
	syncer := NewSyncer(store, index, 3, zap.NewNop())

	total, err := syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, total)
	assert.Len(t, index.upserted, 7)
	assert.Len(t, store.marked, 7)
	assert.Empty(t, store.backlog)
}

func TestSyncerLeavesBatchUnmarkedOnIndexError(t *testing.T) {
	store := &fakeSyncStore{backlog: makeBacklog(2)}
	index := &fakeIndex{failNext: true}
	syncer := NewSyncer(store, index, 10, zap.NewNop())

	_, err := syncer.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.marked)
}

func TestSyncerNoBacklogIsNoop(t *testing.T) {
	store := &fakeSyncStore{}
	index := &fakeIndex{}
	syncer := NewSyncer(store, index, 10, zap.NewNop())

	total, err := syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, index.upserted)
}
