package service

import (
	"context"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/repository"
	"github.com/google/uuid"
)

// RoomStore is implemented by repository.RoomRepository.
type RoomStore interface {
	Create(ctx context.Context, room *model.Room) error
	GetByCode(ctx context.Context, code string) (*model.Room, error)
	ListByTeacher(ctx context.Context, teacherID string, limit, offset int) ([]model.Room, int, error)
	MarkRunning(ctx context.Context, code string, start, end time.Time) (*model.Room, error)
	MarkEnded(ctx context.Context, code string, endTime *time.Time) (*model.Room, error)
	SetPublish(ctx context.Context, code string, publish bool) (*model.Room, error)
	DeleteWaiting(ctx context.Context, code string) error
	ListRunning(ctx context.Context) ([]model.Room, error)
	ListEndedWithPending(ctx context.Context) ([]model.Room, error)
}

// SubmissionStore is implemented by repository.SubmissionRepository.
type SubmissionStore interface {
	CreateAttempt(ctx context.Context, roomID uuid.UUID, studentID, quizID string, startedAt time.Time) (*model.Submission, bool, error)
	Get(ctx context.Context, roomID uuid.UUID, studentID string) (*model.Submission, error)
	SaveDraft(ctx context.Context, roomID uuid.UUID, studentID, questionID string, answer model.Answer) error
	Finalize(ctx context.Context, sub *model.Submission) error
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]model.Submission, error)
	ListInProgress(ctx context.Context, roomID uuid.UUID) ([]model.Submission, error)
}

// QuizStore is implemented by repository.QuizRepository and its cached wrapper.
type QuizStore = repository.QuizLoader

// ViolationSink receives proctoring signals for asynchronous persistence.
type ViolationSink interface {
	Enqueue(ctx context.Context, submissionID uuid.UUID, t model.ViolationType, at time.Time) error
}

// Scheduler arms and cancels room deadlines. Implemented by watchdog.Watchdog.
type Scheduler interface {
	Arm(ctx context.Context, code string, at time.Time) error
	Cancel(ctx context.Context, code string) error
}

// Finalizer force-submits every open attempt of an ended room.
type Finalizer interface {
	ForceSubmitAll(ctx context.Context, room *model.Room) (int, error)
}

// StatsInvalidator drops cached statistics after a submission write.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, roomID uuid.UUID)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, uuid.UUID) {}
