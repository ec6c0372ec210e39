package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/metrics"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/repository"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/response"
	"github.com/rs/zerolog"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 6
	codeAttempts     = 8
)

// Actor identifies who requests a room transition.
type Actor struct {
	UserID string
	System bool
}

// SystemActor is used by the watchdog and the reconcile sweep.
var SystemActor = Actor{System: true}

// TeacherActor wraps a teacher's user id.
func TeacherActor(userID string) Actor { return Actor{UserID: userID} }

// CreateRoomInput holds what a teacher supplies for a new room.
type CreateRoomInput struct {
	TeacherID       string
	QuizID          string
	DurationMinutes int
	MaxStudents     *int
	Settings        model.RoomSettings
	Metadata        map[string]string
}

// ReconcileReport counts what a reconcile sweep did.
type ReconcileReport struct {
	Rearmed  int `json:"rearmed"`
	Overdue  int `json:"overdue"`
	Repaired int `json:"repaired"`
}

// RoomService owns the room lifecycle: waiting → running → ended.
type RoomService struct {
	rooms       RoomStore
	quizzes     QuizStore
	scheduler   Scheduler
	finalizer   Finalizer
	grace       time.Duration
	maxDuration int
	log         zerolog.Logger
	now         func() time.Time
}

// NewRoomService creates a new RoomService.
func NewRoomService(
	rooms RoomStore,
	quizzes QuizStore,
	scheduler Scheduler,
	finalizer Finalizer,
	grace time.Duration,
	maxDurationMinutes int,
	log zerolog.Logger,
) *RoomService {
	return &RoomService{
		rooms:       rooms,
		quizzes:     quizzes,
		scheduler:   scheduler,
		finalizer:   finalizer,
		grace:       grace,
		maxDuration: maxDurationMinutes,
		log:         log.With().Str("component", "room_service").Logger(),
		now:         time.Now,
	}
}

// lookupRoom resolves a room code, mapping a miss onto NotFound.
func lookupRoom(ctx context.Context, rooms RoomStore, code string) (*model.Room, error) {
	room, err := rooms.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("room %s not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", code, err)
	}
	return room, nil
}

func generateRoomCode() (string, error) {
	base := big.NewInt(int64(len(roomCodeAlphabet)))
	buf := make([]byte, roomCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		buf[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// CreateRoom validates the input and stores a waiting room under a fresh code.
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (*model.Room, error) {
	if in.DurationMinutes < 1 || in.DurationMinutes > s.maxDuration {
		return nil, apperror.Validation("duration must be between 1 and %d minutes", s.maxDuration)
	}
	if in.QuizID == "" {
		return nil, apperror.Validation("exam quiz id is required")
	}
	if in.MaxStudents != nil && *in.MaxStudents < 1 {
		return nil, apperror.Validation("max students must be positive")
	}

	quiz, err := s.quizzes.GetQuiz(ctx, in.QuizID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Validation("quiz %s does not exist", in.QuizID)
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if len(quiz.Questions) == 0 {
		return nil, apperror.Validation("quiz %s has no questions", in.QuizID)
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		room := &model.Room{
			Code:            code,
			TeacherID:       in.TeacherID,
			QuizID:          in.QuizID,
			DurationMinutes: in.DurationMinutes,
			MaxStudents:     in.MaxStudents,
			Settings:        in.Settings,
			Metadata:        in.Metadata,
		}
		err = s.rooms.Create(ctx, room)
		if errors.Is(err, repository.ErrConflict) {
			s.log.Debug().Str("room_code", code).Msg("Room code collision, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}
		s.log.Info().Str("room_code", room.Code).Str("teacher_id", room.TeacherID).Msg("Room created")
		return room, nil
	}
	return nil, apperror.ServiceUnavailable(nil, "could not allocate a unique room code")
}

// GetRoom resolves a room by code.
func (s *RoomService) GetRoom(ctx context.Context, code string) (*model.Room, error) {
	return lookupRoom(ctx, s.rooms, code)
}

// ListTeacherRooms pages through the rooms a teacher created.
func (s *RoomService) ListTeacherRooms(ctx context.Context, teacherID string, page, perPage int) ([]model.Room, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	rooms, total, err := s.rooms.ListByTeacher(ctx, teacherID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list rooms: %w", err)
	}
	if rooms == nil {
		rooms = []model.Room{}
	}

	return rooms, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// StartExam moves a waiting room to running and arms its deadline.
func (s *RoomService) StartExam(ctx context.Context, code, teacherID string) (*model.Room, error) {
	room, err := lookupRoom(ctx, s.rooms, code)
	if err != nil {
		return nil, err
	}
	if !room.IsOwner(teacherID) {
		return nil, apperror.Forbidden("only the room owner can start the exam")
	}

	start := s.now().UTC()
	end := start.Add(room.Duration())
	updated, err := s.rooms.MarkRunning(ctx, room.Code, start, end)
	if errors.Is(err, repository.ErrNoTransition) {
		return nil, apperror.InvalidState("room %s is %s, not waiting", room.Code, room.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("mark running: %w", err)
	}
	metrics.RoomTransitions.WithLabelValues(string(model.RoomStatusRunning)).Inc()

	// A failed arm is repaired by the next reconcile sweep.
	if err := s.scheduler.Arm(ctx, updated.Code, end.Add(s.grace)); err != nil {
		s.log.Error().Err(err).Str("room_code", updated.Code).Msg("Failed to arm deadline")
	}

	s.log.Info().Str("room_code", updated.Code).Time("end_time", end).Msg("Exam started")
	return updated, nil
}

// EndExam moves a running room to ended and force-submits open attempts.
// changed is false when the room had already ended.
func (s *RoomService) EndExam(ctx context.Context, code string, actor Actor) (*model.Room, bool, error) {
	room, err := lookupRoom(ctx, s.rooms, code)
	if err != nil {
		return nil, false, err
	}
	if !actor.System && !room.IsOwner(actor.UserID) {
		return nil, false, apperror.Forbidden("only the room owner can end the exam")
	}

	var endTime *time.Time
	if !actor.System {
		now := s.now().UTC()
		endTime = &now
	}

	updated, err := s.rooms.MarkEnded(ctx, room.Code, endTime)
	if errors.Is(err, repository.ErrNoTransition) {
		current, lookupErr := lookupRoom(ctx, s.rooms, room.Code)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if current.Status == model.RoomStatusEnded {
			return current, false, nil
		}
		return nil, false, apperror.InvalidState("room %s has not started", room.Code)
	}
	if err != nil {
		return nil, false, fmt.Errorf("mark ended: %w", err)
	}
	metrics.RoomTransitions.WithLabelValues(string(model.RoomStatusEnded)).Inc()

	if err := s.scheduler.Cancel(ctx, updated.Code); err != nil {
		s.log.Warn().Err(err).Str("room_code", updated.Code).Msg("Failed to cancel deadline")
	}

	n, err := s.finalizer.ForceSubmitAll(ctx, updated)
	if err != nil {
		// The room stays ended; Reconcile retries the pending attempts.
		s.log.Error().Err(err).Str("room_code", updated.Code).Msg("Force submit failed")
	}

	s.log.Info().
		Str("room_code", updated.Code).
		Bool("system", actor.System).
		Int("auto_submitted", n).
		Msg("Exam ended")
	return updated, true, nil
}

// TogglePublish controls whether students may see the analysis of an ended room.
func (s *RoomService) TogglePublish(ctx context.Context, code, teacherID string, publish bool) (*model.Room, error) {
	room, err := lookupRoom(ctx, s.rooms, code)
	if err != nil {
		return nil, err
	}
	if !room.IsOwner(teacherID) {
		return nil, apperror.Forbidden("only the room owner can publish the analysis")
	}

	updated, err := s.rooms.SetPublish(ctx, room.Code, publish)
	if errors.Is(err, repository.ErrNoTransition) {
		return nil, apperror.InvalidState("analysis can only be published after the room has ended")
	}
	if err != nil {
		return nil, fmt.Errorf("set publish: %w", err)
	}
	return updated, nil
}

// DeleteRoom removes a room that never started.
func (s *RoomService) DeleteRoom(ctx context.Context, code, teacherID string) error {
	room, err := lookupRoom(ctx, s.rooms, code)
	if err != nil {
		return err
	}
	if !room.IsOwner(teacherID) {
		return apperror.Forbidden("only the room owner can delete the room")
	}

	err = s.rooms.DeleteWaiting(ctx, room.Code)
	if errors.Is(err, repository.ErrNoTransition) {
		return apperror.InvalidState("room %s cannot be deleted once started", room.Code)
	}
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	s.log.Info().Str("room_code", room.Code).Msg("Room deleted")
	return nil
}

// Reconcile re-arms every running room's deadline and force-submits attempts
// left open in ended rooms. Deadlines already past fire as soon as they are
// armed, so overdue rooms end through the scheduler's callback.
func (s *RoomService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	now := s.now()

	running, err := s.rooms.ListRunning(ctx)
	if err != nil {
		return report, fmt.Errorf("list running rooms: %w", err)
	}
	for i := range running {
		room := &running[i]
		if room.EndTime == nil {
			s.log.Warn().Str("room_code", room.Code).Msg("Running room without end time")
			continue
		}
		deadline := room.EndTime.Add(s.grace)
		if !now.Before(deadline) {
			report.Overdue++
		}
		if err := s.scheduler.Arm(ctx, room.Code, deadline); err != nil {
			s.log.Error().Err(err).Str("room_code", room.Code).Msg("Failed to re-arm deadline")
			continue
		}
		report.Rearmed++
	}

	pending, err := s.rooms.ListEndedWithPending(ctx)
	if err != nil {
		return report, fmt.Errorf("list ended rooms: %w", err)
	}
	for i := range pending {
		n, err := s.finalizer.ForceSubmitAll(ctx, &pending[i])
		if err != nil {
			s.log.Error().Err(err).Str("room_code", pending[i].Code).Msg("Repair force submit failed")
			continue
		}
		report.Repaired += n
	}

	if report.Rearmed > 0 || report.Repaired > 0 {
		s.log.Info().
			Int("rearmed", report.Rearmed).
			Int("overdue", report.Overdue).
			Int("repaired", report.Repaired).
			Msg("Reconcile sweep finished")
	}
	return report, nil
}
