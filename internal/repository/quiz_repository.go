package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// QuizRepository reads quizzes owned by the course service.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetQuiz retrieves a quiz with its questions in authored order.
func (r *QuizRepository) GetQuiz(ctx context.Context, id string) (*model.Quiz, error) {
	q := &model.Quiz{ID: id}
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT title, questions FROM quizzes WHERE id = $1`, id,
	).Scan(&q.Title, &raw)
	if err != nil {
		return nil, translate(err)
	}
	q.Questions, err = model.DecodeQuestions(raw)
	if err != nil {
		return nil, fmt.Errorf("decode questions of quiz %s: %w", id, err)
	}
	return q, nil
}

// QuizLoader is the source a cache falls back to.
type QuizLoader interface {
	GetQuiz(ctx context.Context, id string) (*model.Quiz, error)
}

// CachedQuizRepository keeps decoded quizzes in Redis. Quizzes are immutable
// once a room references them, so entries only expire.
type CachedQuizRepository struct {
	source QuizLoader
	rdb    redis.Cmdable
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedQuizRepository wraps source with a Redis read-through cache.
func NewCachedQuizRepository(source QuizLoader, rdb redis.Cmdable, ttl time.Duration, log zerolog.Logger) *CachedQuizRepository {
	return &CachedQuizRepository{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "quiz_cache").Logger(),
	}
}

// GetQuiz serves from Redis and self-heals the cache on a miss.
func (c *CachedQuizRepository) GetQuiz(ctx context.Context, id string) (*model.Quiz, error) {
	key := config.CacheKey.QuizQuestionsKey(id)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var q model.Quiz
		if jsonErr := json.Unmarshal(data, &q); jsonErr == nil {
			return &q, nil
		}
		c.log.Warn().Str("quiz_id", id).Msg("Discarding undecodable cached quiz")
	case !errors.Is(err, redis.Nil):
		// Redis trouble must not block grading; fall through to PostgreSQL.
		c.log.Warn().Err(err).Str("quiz_id", id).Msg("Quiz cache read failed")
	}

	q, err := c.source.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(q); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("quiz_id", id).Msg("Quiz cache write failed")
		}
	}
	return q, nil
}
