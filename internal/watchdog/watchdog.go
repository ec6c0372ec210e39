// Package watchdog ends rooms when their deadline passes. Deadlines live in
// local timers and in a Redis sorted set, so a restarted process picks up
// every room that was armed before it went down.
package watchdog

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/metrics"
)

// FireFunc ends the room whose deadline passed.
type FireFunc func(ctx context.Context, code string) error

type deadline struct {
	at    time.Time
	timer *time.Timer
}

// Watchdog arms one deadline per room.
type Watchdog struct {
	rdb          redis.Cmdable
	pollInterval time.Duration
	log          zerolog.Logger
	now          func() time.Time

	mu      sync.Mutex
	pending map[string]*deadline
	fire    FireFunc
	baseCtx context.Context
}

// New creates a watchdog. Nothing fires until Start installs the callback.
func New(rdb redis.Cmdable, pollInterval time.Duration, log zerolog.Logger) *Watchdog {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Watchdog{
		rdb:          rdb,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "watchdog").Logger(),
		now:          time.Now,
		pending:      make(map[string]*deadline),
		baseCtx:      context.Background(),
	}
}

func key() string { return config.CacheKey.WatchdogDeadlinesKey() }

// Arm schedules code to fire at at, replacing any earlier deadline.
func (w *Watchdog) Arm(ctx context.Context, code string, at time.Time) error {
	code = strings.ToUpper(code)
	err := w.rdb.ZAdd(ctx, key(), redis.Z{Score: float64(at.UnixMilli()), Member: code}).Err()

	w.mu.Lock()
	w.scheduleLocked(code, at)
	w.mu.Unlock()
	return err
}

// Cancel drops the deadline of code.
func (w *Watchdog) Cancel(ctx context.Context, code string) error {
	code = strings.ToUpper(code)
	w.mu.Lock()
	if d, ok := w.pending[code]; ok {
		d.timer.Stop()
		delete(w.pending, code)
	}
	w.mu.Unlock()

	return w.rdb.ZRem(ctx, key(), code).Err()
}

// Pending returns the number of locally armed deadlines.
func (w *Watchdog) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Watchdog) scheduleLocked(code string, at time.Time) {
	if old, ok := w.pending[code]; ok {
		old.timer.Stop()
	}
	delay := at.Sub(w.now())
	if delay < 0 {
		delay = 0
	}
	d := &deadline{at: at}
	d.timer = time.AfterFunc(delay, func() { w.expire(code, d) })
	w.pending[code] = d
}

// expire runs the callback once per armed deadline. A deadline replaced or
// cancelled in the meantime is no longer in pending and does nothing.
func (w *Watchdog) expire(code string, d *deadline) {
	w.mu.Lock()
	if w.pending[code] != d {
		w.mu.Unlock()
		return
	}
	delete(w.pending, code)
	fire, ctx := w.fire, w.baseCtx
	w.mu.Unlock()

	if fire == nil {
		// Start has not run yet; the poller fires it later.
		return
	}

	metrics.WatchdogFires.Inc()
	if err := fire(ctx, code); err != nil {
		// The entry stays in Redis and the poller retries it.
		w.log.Error().Err(err).Str("room_code", code).Msg("Deadline callback failed")
		return
	}
	w.log.Info().Str("room_code", code).Msg("Deadline fired")

	w.mu.Lock()
	_, rearmed := w.pending[code]
	w.mu.Unlock()
	if rearmed {
		return
	}
	if err := w.rdb.ZRem(ctx, key(), code).Err(); err != nil {
		w.log.Warn().Err(err).Str("room_code", code).Msg("Failed to clear fired deadline")
	}
}

// Start installs the callback, re-arms every persisted deadline and polls
// Redis for due deadlines no local timer owns. It returns once the persisted
// set is loaded; polling stops with ctx.
func (w *Watchdog) Start(ctx context.Context, fire FireFunc) error {
	entries, err := w.rdb.ZRangeWithScores(ctx, key(), 0, -1).Result()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.fire = fire
	w.baseCtx = ctx
	for _, z := range entries {
		code, ok := z.Member.(string)
		if !ok {
			continue
		}
		w.scheduleLocked(code, time.UnixMilli(int64(z.Score)))
	}
	w.mu.Unlock()

	w.log.Info().Int("restored", len(entries)).Msg("Watchdog started")
	go w.poll(ctx)
	return nil
}

func (w *Watchdog) poll(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.stopAll()
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Watchdog) pollOnce(ctx context.Context) {
	due, err := w.rdb.ZRangeByScore(ctx, key(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(w.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("Deadline poll failed")
		}
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, code := range due {
		if _, owned := w.pending[code]; owned {
			continue
		}
		w.scheduleLocked(code, w.now())
	}
}

func (w *Watchdog) stopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for code, d := range w.pending {
		d.timer.Stop()
		delete(w.pending, code)
	}
}
