package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationEvent is one proctoring signal waiting in the queue.
type ViolationEvent struct {
	SubmissionID string              `json:"submission_id"`
	Type         model.ViolationType `json:"type"`
	Timestamp    int64               `json:"timestamp"`
}

// ViolationQueue pushes events for the ViolationWorker.
type ViolationQueue struct {
	rdb redis.Cmdable
}

func NewViolationQueue(rdb redis.Cmdable) *ViolationQueue {
	return &ViolationQueue{rdb: rdb}
}

// Enqueue appends one event. It does not wait for persistence.
func (q *ViolationQueue) Enqueue(ctx context.Context, submissionID uuid.UUID, t model.ViolationType, at time.Time) error {
	data, err := json.Marshal(ViolationEvent{
		SubmissionID: submissionID.String(),
		Type:         t,
		Timestamp:    at.Unix(),
	})
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err()
}

// ViolationStore persists aggregated counters.
type ViolationStore interface {
	IncrementBatch(ctx context.Context, incs []repository.ViolationIncrement) error
	Increment(ctx context.Context, inc repository.ViolationIncrement) error
}

// ViolationWorker drains the violation queue and upserts counters in batches.
type ViolationWorker struct {
	store ViolationStore
	rdb   redis.Cmdable
	log   zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	requeueDelay time.Duration
}

func NewViolationWorker(store ViolationStore, rdb redis.Cmdable, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		store:        store,
		rdb:          rdb,
		log:          log.With().Str("component", "violation_worker").Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		requeueDelay: 2 * time.Second,
	}
}

var errQueueEmpty = errors.New("queue empty")

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*ViolationEvent, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		ev, err := w.next(ctx)
		switch {
		case err == nil:
			buffer = append(buffer, ev)
		case errors.Is(err, errQueueEmpty):
		case ctx.Err() != nil:
			w.shutdown(buffer)
			return
		default:
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
		}
	}
}

// next pops one event. Malformed entries are logged, dropped and reported as an
// empty queue.
func (w *ViolationWorker) next(ctx context.Context) (*ViolationEvent, error) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errQueueEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, errQueueEmpty
	}

	var ev ViolationEvent
	if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
		return nil, errQueueEmpty
	}
	return &ev, nil
}

// aggregate folds events into one increment per (submission, type). Events
// with an unparsable id or an unknown type are dropped.
func (w *ViolationWorker) aggregate(batch []*ViolationEvent) []repository.ViolationIncrement {
	type key struct {
		id uuid.UUID
		t  model.ViolationType
	}
	idx := make(map[key]int, len(batch))
	out := make([]repository.ViolationIncrement, 0, len(batch))

	for _, ev := range batch {
		id, err := uuid.Parse(ev.SubmissionID)
		if err != nil || !ev.Type.Valid() {
			w.log.Error().Str("submission_id", ev.SubmissionID).Str("type", string(ev.Type)).
				Msg("Dropping invalid violation event")
			continue
		}
		seen := time.Unix(ev.Timestamp, 0)
		k := key{id, ev.Type}
		if i, ok := idx[k]; ok {
			out[i].Count++
			if seen.After(out[i].SeenAt) {
				out[i].SeenAt = seen
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, repository.ViolationIncrement{SubmissionID: id, Type: ev.Type, Count: 1, SeenAt: seen})
	}
	return out
}

// flushSafe attempts the batch upsert, then row-by-row, then requeues.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*ViolationEvent) {
	incs := w.aggregate(batch)
	if len(incs) == 0 {
		return
	}
	if err := w.store.IncrementBatch(ctx, incs); err != nil {
		w.log.Warn().Err(err).Int("count", len(incs)).Msg("Batch upsert failed, attempting row-by-row recovery")
		w.fallback(ctx, incs)
	}
}

func (w *ViolationWorker) fallback(ctx context.Context, incs []repository.ViolationIncrement) {
	var requeue []repository.ViolationIncrement
	for _, inc := range incs {
		err := w.store.Increment(ctx, inc)
		if err == nil {
			continue
		}
		if errors.Is(err, repository.ErrConflict) {
			w.log.Error().Err(err).Str("submission_id", inc.SubmissionID.String()).Msg("Dropping violation counter")
			continue
		}
		w.log.Error().Err(err).Str("submission_id", inc.SubmissionID.String()).Msg("Upsert failed, requeueing")
		requeue = append(requeue, inc)
	}
	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

// requeue expands increments back into single events so a later batch can
// aggregate them again.
func (w *ViolationWorker) requeue(ctx context.Context, incs []repository.ViolationIncrement) {
	pipe := w.rdb.Pipeline()
	n := 0
	for _, inc := range incs {
		data, _ := json.Marshal(ViolationEvent{
			SubmissionID: inc.SubmissionID.String(),
			Type:         inc.Type,
			Timestamp:    inc.SeenAt.Unix(),
		})
		for i := 0; i < inc.Count; i++ {
			pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
			n++
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue violations to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", n).Msg("Requeued failed violations back to Redis")
	time.Sleep(w.requeueDelay)
}

func (w *ViolationWorker) shutdown(buffer []*ViolationEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
