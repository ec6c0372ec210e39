package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/metrics"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/repository"
)

// forceSubmitConcurrency bounds parallel finalizes during a mass submit.
const forceSubmitConcurrency = 8

// ReviewAnswer is a graded answer as shown back to its author.
type ReviewAnswer struct {
	model.GradedAnswer
	CorrectIndex *int `json:"correct_index,omitempty"`
}

// SubmissionReview is a student's own submission. Answers is nil unless the
// room allows review.
type SubmissionReview struct {
	model.SubmissionView
	Answers []ReviewAnswer `json:"answers"`
}

// SubmissionService records attempts and grades them.
type SubmissionService struct {
	rooms      RoomStore
	subs       SubmissionStore
	quizzes    QuizStore
	violations ViolationSink
	stats      StatsInvalidator
	grace      time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewSubmissionService creates a new SubmissionService. stats may be nil.
func NewSubmissionService(
	rooms RoomStore,
	subs SubmissionStore,
	quizzes QuizStore,
	violations ViolationSink,
	stats StatsInvalidator,
	grace time.Duration,
	log zerolog.Logger,
) *SubmissionService {
	if stats == nil {
		stats = noopInvalidator{}
	}
	return &SubmissionService{
		rooms:      rooms,
		subs:       subs,
		quizzes:    quizzes,
		violations: violations,
		stats:      stats,
		grace:      grace,
		log:        log.With().Str("component", "submission_service").Logger(),
		now:        time.Now,
	}
}

// requireRunning returns the room when it is running and inside its window.
func (s *SubmissionService) requireRunning(ctx context.Context, code string) (*model.Room, error) {
	room, err := lookupRoom(ctx, s.rooms, code)
	if err != nil {
		return nil, err
	}
	switch {
	case room.Status == model.RoomStatusWaiting:
		return nil, apperror.InvalidState("exam in room %s has not started", room.Code)
	case !room.AcceptsSubmissions(s.now(), s.grace):
		return nil, apperror.RoomClosed("room %s is closed", room.Code)
	}
	return room, nil
}

func (s *SubmissionService) getQuiz(ctx context.Context, id string) (*model.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quiz %s: %w", id, err)
	}
	return quiz, nil
}

func (s *SubmissionService) ensureAttempt(ctx context.Context, room *model.Room, studentID string) (*model.Submission, error) {
	sub, created, err := s.subs.CreateAttempt(ctx, room.ID, studentID, room.QuizID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if created {
		s.stats.Invalidate(ctx, room.ID)
	}
	return sub, nil
}

// StartAttempt opens an attempt, or returns the existing one on resume.
func (s *SubmissionService) StartAttempt(ctx context.Context, code, studentID string) (*model.Submission, error) {
	room, err := s.requireRunning(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.ensureAttempt(ctx, room, studentID)
}

// GetPaper returns the questions without answer keys. It is only served
// while the room accepts submissions.
func (s *SubmissionService) GetPaper(ctx context.Context, code string) (*model.ExamPaper, error) {
	room, err := s.requireRunning(ctx, code)
	if err != nil {
		return nil, err
	}
	quiz, err := s.getQuiz(ctx, room.QuizID)
	if err != nil {
		return nil, err
	}
	paper := model.PaperFor(room, quiz)
	return &paper, nil
}

// Submit grades a voluntary submission. A student gets at most one graded
// attempt; any later call fails with DuplicateSubmission.
func (s *SubmissionService) Submit(ctx context.Context, code, studentID string, answers []model.AnswerInput) (*model.Submission, error) {
	room, err := s.requireRunning(ctx, code)
	if err != nil {
		return nil, err
	}
	quiz, err := s.getQuiz(ctx, room.QuizID)
	if err != nil {
		return nil, err
	}
	sub, err := s.ensureAttempt(ctx, room, studentID)
	if err != nil {
		return nil, err
	}
	if sub.Status.Completed() {
		return nil, apperror.DuplicateSubmission("exam already submitted")
	}

	s.finalize(sub, Grade(quiz.Questions, answers), model.SubmissionSubmitted, s.now().UTC())
	err = s.subs.Finalize(ctx, sub)
	if errors.Is(err, repository.ErrNoTransition) {
		return nil, apperror.DuplicateSubmission("exam already submitted")
	}
	if err != nil {
		return nil, fmt.Errorf("finalize submission: %w", err)
	}

	metrics.Submissions.WithLabelValues(string(sub.Status)).Inc()
	s.stats.Invalidate(ctx, room.ID)
	s.log.Info().
		Str("room_code", room.Code).
		Str("student_id", studentID).
		Float64("score", sub.Score).
		Msg("Submission graded")
	return sub, nil
}

func (s *SubmissionService) finalize(sub *model.Submission, res GradeResult, status model.SubmissionStatus, at time.Time) {
	spent := int(at.Sub(sub.StartedAt) / time.Second)
	if spent < 0 {
		spent = 0
	}
	sub.Answers = res.Answers
	sub.Score = res.Score
	sub.TotalPoints = res.TotalPoints
	sub.Status = status
	sub.SubmittedAt = &at
	sub.TimeSpentSeconds = &spent
}

// ForceSubmitAll grades the recorded drafts of every open attempt in an ended
// room. Attempts finalized concurrently by their student are skipped.
func (s *SubmissionService) ForceSubmitAll(ctx context.Context, room *model.Room) (int, error) {
	pending, err := s.subs.ListInProgress(ctx, room.ID)
	if err != nil {
		return 0, fmt.Errorf("list open attempts: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	quiz, err := s.getQuiz(ctx, room.QuizID)
	if err != nil {
		return 0, err
	}

	at := s.now().UTC()
	if room.EndTime != nil && room.EndTime.Before(at) {
		at = room.EndTime.UTC()
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(forceSubmitConcurrency)
	for i := range pending {
		sub := &pending[i]
		g.Go(func() error {
			s.finalize(sub, Grade(quiz.Questions, draftInputs(sub.Drafts)), model.SubmissionAutoSubmitted, at)
			err := s.subs.Finalize(gctx, sub)
			if errors.Is(err, repository.ErrNoTransition) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("auto-submit %s: %w", sub.StudentID, err)
			}
			done.Add(1)
			metrics.Submissions.WithLabelValues(string(model.SubmissionAutoSubmitted)).Inc()
			return nil
		})
	}
	err = g.Wait()

	n := int(done.Load())
	if n > 0 {
		s.stats.Invalidate(ctx, room.ID)
	}
	s.log.Info().Str("room_code", room.Code).Int("count", n).Msg("Open attempts auto-submitted")
	return n, err
}

// SaveAnswer records one draft answer so a forced submit can grade it.
func (s *SubmissionService) SaveAnswer(ctx context.Context, code, studentID, questionID string, answer model.Answer) error {
	room, err := s.requireRunning(ctx, code)
	if err != nil {
		return err
	}
	quiz, err := s.getQuiz(ctx, room.QuizID)
	if err != nil {
		return err
	}
	known := false
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == questionID {
			known = true
			break
		}
	}
	if !known {
		return apperror.Validation("question %s is not part of this exam", questionID)
	}

	sub, err := s.ensureAttempt(ctx, room, studentID)
	if err != nil {
		return err
	}
	if sub.Status.Completed() {
		return apperror.InvalidState("exam already submitted")
	}
	err = s.subs.SaveDraft(ctx, room.ID, studentID, questionID, answer)
	if errors.Is(err, repository.ErrNoTransition) {
		return apperror.InvalidState("exam already submitted")
	}
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// RecordViolation queues a proctoring signal against the student's attempt.
// It never changes the attempt itself. recorded is false when the attempt has
// already been graded.
func (s *SubmissionService) RecordViolation(ctx context.Context, code, studentID string, t model.ViolationType) (bool, error) {
	if !t.Valid() {
		return false, apperror.Validation("unknown violation type %q", t)
	}
	room, err := s.requireRunning(ctx, code)
	if err != nil {
		return false, err
	}
	sub, err := s.ensureAttempt(ctx, room, studentID)
	if err != nil {
		return false, err
	}
	if sub.Status.Completed() {
		return false, nil
	}

	if err := s.violations.Enqueue(ctx, sub.ID, t, s.now()); err != nil {
		s.log.Warn().Err(err).Str("student_id", studentID).Msg("Failed to queue violation")
		return false, apperror.ServiceUnavailable(err, "violation could not be recorded")
	}
	metrics.Violations.WithLabelValues(string(t)).Inc()
	return true, nil
}

// ListByRoom returns every attempt of a room to its owner.
func (s *SubmissionService) ListByRoom(ctx context.Context, code, teacherID string) ([]model.SubmissionView, error) {
	room, err := lookupRoom(ctx, s.rooms, code)
	if err != nil {
		return nil, err
	}
	if !room.IsOwner(teacherID) {
		return nil, apperror.Forbidden("only the room owner can list submissions")
	}

	subs, err := s.subs.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	views := make([]model.SubmissionView, len(subs))
	for i := range subs {
		views[i] = subs[i].View()
	}
	return views, nil
}

// GetOwn returns a student's own attempt. Answers are only included once the
// room has ended and allows review; correct indices only when the room shows
// them.
func (s *SubmissionService) GetOwn(ctx context.Context, code, studentID string) (*SubmissionReview, error) {
	room, err := lookupRoom(ctx, s.rooms, code)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.Get(ctx, room.ID, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("no submission in room %s", room.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}

	review := &SubmissionReview{SubmissionView: sub.View()}
	if room.Status != model.RoomStatusEnded || !room.Settings.AllowReview || !sub.Status.Completed() {
		return review, nil
	}

	var keys map[string]*int
	if room.Settings.ShowCorrectAnswers {
		quiz, err := s.getQuiz(ctx, room.QuizID)
		if err != nil {
			return nil, err
		}
		keys = make(map[string]*int, len(quiz.Questions))
		for i := range quiz.Questions {
			keys[quiz.Questions[i].ID] = quiz.Questions[i].CorrectIndex
		}
	}

	review.Answers = make([]ReviewAnswer, len(sub.Answers))
	for i, a := range sub.Answers {
		review.Answers[i] = ReviewAnswer{GradedAnswer: a, CorrectIndex: keys[a.QuestionID]}
	}
	return review, nil
}
