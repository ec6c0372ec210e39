package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/metrics"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
)

// Summary aggregates the completed submissions of a room.
type Summary struct {
	TotalSubmissions  int     `json:"total_submissions"`
	CompletedCount    int     `json:"completed_count"`
	AverageScore      float64 `json:"average_score"`
	AveragePercentage float64 `json:"average_percentage"`
	PassRate          float64 `json:"pass_rate"`
	PassThreshold     int     `json:"pass_threshold"`
	AverageTimeSpent  float64 `json:"average_time_spent"`
	HighestScore      float64 `json:"highest_score"`
	LowestScore       float64 `json:"lowest_score"`
}

// QuestionStat is the breakdown of one question across completed submissions.
type QuestionStat struct {
	Index          int                `json:"index"`
	QuestionID     string             `json:"question_id"`
	Type           model.QuestionType `json:"type"`
	CorrectCount   int                `json:"correct_count"`
	IncorrectCount int                `json:"incorrect_count"`
	CorrectRate    float64            `json:"correct_rate"`
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// Summarize computes room statistics. Averages cover completed submissions
// only; a submission passes when its percentage reaches passThreshold.
func Summarize(subs []model.Submission, passThreshold int) Summary {
	sum := Summary{TotalSubmissions: len(subs), PassThreshold: passThreshold}

	var score, pct, spent float64
	passed := 0
	for i := range subs {
		s := &subs[i]
		if !s.Status.Completed() {
			continue
		}
		if sum.CompletedCount == 0 || s.Score > sum.HighestScore {
			sum.HighestScore = s.Score
		}
		if sum.CompletedCount == 0 || s.Score < sum.LowestScore {
			sum.LowestScore = s.Score
		}
		sum.CompletedCount++

		p := s.Percentage()
		if p >= passThreshold {
			passed++
		}
		score += s.Score
		pct += float64(p)
		spent += s.TimeSpent().Seconds()
	}

	if sum.CompletedCount == 0 {
		return sum
	}
	n := float64(sum.CompletedCount)
	sum.AverageScore = round1(score / n)
	sum.AveragePercentage = round1(pct / n)
	sum.PassRate = round1(float64(passed) / n * 100)
	sum.AverageTimeSpent = round1(spent / n)
	return sum
}

// Breakdown computes per-question correctness across completed submissions.
// Answers are stored in quiz order, so index i of every submission refers to
// question i.
func Breakdown(questions []model.Question, subs []model.Submission) []QuestionStat {
	stats := make([]QuestionStat, len(questions))
	for i := range questions {
		stats[i] = QuestionStat{Index: i, QuestionID: questions[i].ID, Type: questions[i].Type}
	}

	completed := 0
	for i := range subs {
		s := &subs[i]
		if !s.Status.Completed() {
			continue
		}
		completed++
		for j := range stats {
			if j < len(s.Answers) && s.Answers[j].IsCorrect {
				stats[j].CorrectCount++
			}
		}
	}

	for i := range stats {
		stats[i].IncorrectCount = completed - stats[i].CorrectCount
		if completed > 0 {
			stats[i].CorrectRate = round1(float64(stats[i].CorrectCount) / float64(completed) * 100)
		}
	}
	return stats
}

// StatsService serves cached room statistics.
type StatsService struct {
	rooms         RoomStore
	subs          SubmissionStore
	quizzes       QuizStore
	rdb           redis.Cmdable
	ttl           time.Duration
	passThreshold int
	group         singleflight.Group
	log           zerolog.Logger
}

// NewStatsService creates a new StatsService.
func NewStatsService(
	rooms RoomStore,
	subs SubmissionStore,
	quizzes QuizStore,
	rdb redis.Cmdable,
	ttl time.Duration,
	passThreshold int,
	log zerolog.Logger,
) *StatsService {
	return &StatsService{
		rooms:         rooms,
		subs:          subs,
		quizzes:       quizzes,
		rdb:           rdb,
		ttl:           ttl,
		passThreshold: passThreshold,
		log:           log.With().Str("component", "stats_service").Logger(),
	}
}

// authorize lets the owner in at any time and students once the analysis of
// an ended room is published.
func (s *StatsService) authorize(ctx context.Context, code, userID string, role model.Role) (*model.Room, error) {
	room, err := lookupRoom(ctx, s.rooms, code)
	if err != nil {
		return nil, err
	}
	if room.IsOwner(userID) {
		return room, nil
	}
	if role == model.RoleStudent && room.PublishAnalysis && room.Status == model.RoomStatusEnded {
		return room, nil
	}
	return nil, apperror.Forbidden("statistics of room %s are not available", room.Code)
}

// generation returns the cache generation of a room. Entries written under an
// older generation are never read again, so a recompute that races an
// invalidation cannot publish its stale result.
func (s *StatsService) generation(ctx context.Context, roomID string) int64 {
	gen, err := s.rdb.Get(ctx, config.CacheKey.RoomStatsGenerationKey(roomID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("Stats generation read failed")
	}
	return gen
}

// cached serves key from Redis, or runs compute once across concurrent callers
// and stores the result.
func cached[T any](ctx context.Context, s *StatsService, key string, compute func() (T, error)) (T, error) {
	var out T
	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if json.Unmarshal(data, &out) == nil {
			metrics.StatsCache.WithLabelValues("hit").Inc()
			return out, nil
		}
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("key", key).Msg("Stats cache read failed")
	}
	metrics.StatsCache.WithLabelValues("miss").Inc()

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		res, err := compute()
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(res); err == nil {
			if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("Stats cache write failed")
			}
		}
		return res, nil
	})
	if err != nil {
		return out, err
	}
	return v.(T), nil
}

// RoomSummary returns the summary of a room.
func (s *StatsService) RoomSummary(ctx context.Context, code, userID string, role model.Role) (*Summary, error) {
	room, err := s.authorize(ctx, code, userID, role)
	if err != nil {
		return nil, err
	}
	id := room.ID.String()
	sum, err := cached(ctx, s, config.CacheKey.RoomSummaryKey(id, s.generation(ctx, id)), func() (Summary, error) {
		subs, err := s.subs.ListByRoom(ctx, room.ID)
		if err != nil {
			return Summary{}, fmt.Errorf("list submissions: %w", err)
		}
		return Summarize(subs, s.passThreshold), nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// PerQuestionBreakdown returns the per-question correctness of a room.
func (s *StatsService) PerQuestionBreakdown(ctx context.Context, code, userID string, role model.Role) ([]QuestionStat, error) {
	room, err := s.authorize(ctx, code, userID, role)
	if err != nil {
		return nil, err
	}
	id := room.ID.String()
	return cached(ctx, s, config.CacheKey.RoomBreakdownKey(id, s.generation(ctx, id)), func() ([]QuestionStat, error) {
		quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
		if err != nil {
			return nil, fmt.Errorf("get quiz: %w", err)
		}
		subs, err := s.subs.ListByRoom(ctx, room.ID)
		if err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		return Breakdown(quiz.Questions, subs), nil
	})
}

// Invalidate moves a room to a new cache generation. Old entries expire on their TTL.
func (s *StatsService) Invalidate(ctx context.Context, roomID uuid.UUID) {
	id := roomID.String()
	if err := s.rdb.Incr(ctx, config.CacheKey.RoomStatsGenerationKey(id)).Err(); err != nil {
		s.log.Warn().Err(err).Str("room_id", id).Msg("Stats cache invalidation failed")
	}
}
