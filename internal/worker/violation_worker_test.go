package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/repository"
)

type fakeViolationStore struct {
	mu        sync.Mutex
	batchErr  error
	singleErr error
	batches   [][]repository.ViolationIncrement
	singles   []repository.ViolationIncrement
}

func (f *fakeViolationStore) IncrementBatch(_ context.Context, incs []repository.ViolationIncrement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return f.batchErr
	}
	f.batches = append(f.batches, append([]repository.ViolationIncrement(nil), incs...))
	return nil
}

func (f *fakeViolationStore) Increment(_ context.Context, inc repository.ViolationIncrement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.singleErr != nil {
		return f.singleErr
	}
	f.singles = append(f.singles, inc)
	return nil
}

func newTestWorker(t *testing.T, store ViolationStore) (*ViolationWorker, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	w := NewViolationWorker(store, rdb, zerolog.Nop())
	w.requeueDelay = 0
	return w, rdb, mr
}

func TestViolationQueue_EnqueueThenNext(t *testing.T) {
	w, rdb, _ := newTestWorker(t, &fakeViolationStore{})
	ctx := context.Background()
	id := uuid.New()
	at := time.Unix(1_700_000_000, 0)

	require.NoError(t, NewViolationQueue(rdb).Enqueue(ctx, id, model.ViolationTabSwitch, at))

	ev, err := w.next(ctx)
	require.NoError(t, err)
	assert.Equal(t, id.String(), ev.SubmissionID)
	assert.Equal(t, model.ViolationTabSwitch, ev.Type)
	assert.Equal(t, at.Unix(), ev.Timestamp)
}

func TestViolationWorker_NextDropsMalformed(t *testing.T) {
	w, rdb, _ := newTestWorker(t, &fakeViolationStore{})
	ctx := context.Background()
	require.NoError(t, rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, "{not json").Err())

	_, err := w.next(ctx)
	assert.ErrorIs(t, err, errQueueEmpty)
}

func TestViolationWorker_AggregatesPerSubmissionAndType(t *testing.T) {
	w, _, _ := newTestWorker(t, &fakeViolationStore{})
	a, b := uuid.New().String(), uuid.New().String()

	incs := w.aggregate([]*ViolationEvent{
		{SubmissionID: a, Type: model.ViolationTabSwitch, Timestamp: 10},
		{SubmissionID: a, Type: model.ViolationTabSwitch, Timestamp: 30},
		{SubmissionID: a, Type: model.ViolationPaste, Timestamp: 20},
		{SubmissionID: b, Type: model.ViolationTabSwitch, Timestamp: 5},
		{SubmissionID: "not-a-uuid", Type: model.ViolationTabSwitch},
		{SubmissionID: b, Type: "screenshot"},
	})

	require.Len(t, incs, 3)
	assert.Equal(t, 2, incs[0].Count)
	assert.Equal(t, time.Unix(30, 0), incs[0].SeenAt)
	assert.Equal(t, model.ViolationPaste, incs[1].Type)
	assert.Equal(t, 1, incs[2].Count)
}

func TestViolationWorker_FlushFallsBackRowByRow(t *testing.T) {
	store := &fakeViolationStore{batchErr: errors.New("batch rejected")}
	w, _, _ := newTestWorker(t, store)

	w.flushSafe(context.Background(), []*ViolationEvent{
		{SubmissionID: uuid.New().String(), Type: model.ViolationCopy},
		{SubmissionID: uuid.New().String(), Type: model.ViolationCut},
	})

	assert.Empty(t, store.batches)
	assert.Len(t, store.singles, 2)
}

func TestViolationWorker_RequeuesWhenStoreIsDown(t *testing.T) {
	down := errors.New("connection refused")
	store := &fakeViolationStore{batchErr: down, singleErr: down}
	w, rdb, _ := newTestWorker(t, store)
	ctx := context.Background()
	id := uuid.New().String()

	w.flushSafe(ctx, []*ViolationEvent{
		{SubmissionID: id, Type: model.ViolationWindowBlur},
		{SubmissionID: id, Type: model.ViolationWindowBlur},
	})

	n, err := rdb.LLen(ctx, config.WorkerKey.PersistViolationsQueue).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
