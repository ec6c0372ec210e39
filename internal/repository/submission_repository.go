package repository

import (
	"context"
	"errors"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Violations are aggregated into a JSON array alongside each row.
const submissionColumns = `s.id, s.room_id, s.student_id, s.quiz_id, s.answers, s.drafts, s.score,
	s.total_points, s.status, s.started_at, s.submitted_at, s.time_spent,
	COALESCE((SELECT json_agg(json_build_object('type', v.type, 'count', v.count) ORDER BY v.type)
	          FROM submission_violations v WHERE v.submission_id = s.id), '[]'::json)`

// SubmissionRepository handles submission data access. (room_id, student_id)
// is UNIQUE in the schema, so at most one attempt row exists per student.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(&s.ID, &s.RoomID, &s.StudentID, &s.QuizID, &s.Answers, &s.Drafts, &s.Score,
		&s.TotalPoints, &s.Status, &s.StartedAt, &s.SubmittedAt, &s.TimeSpentSeconds, &s.Violations)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func collectSubmissions(rows pgx.Rows) ([]model.Submission, error) {
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// CreateAttempt inserts an in-progress attempt unless one already exists, and
// returns whichever row is stored. created is false on resume.
func (r *SubmissionRepository) CreateAttempt(ctx context.Context, roomID uuid.UUID, studentID, quizID string, startedAt time.Time) (*model.Submission, bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO submissions (room_id, student_id, quiz_id, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (room_id, student_id) DO NOTHING
		 RETURNING id`,
		roomID, studentID, quizID, model.SubmissionInProgress, startedAt,
	).Scan(&id)
	created := true
	if errors.Is(err, pgx.ErrNoRows) {
		created = false
	} else if err != nil {
		return nil, false, translate(err)
	}

	sub, err := r.Get(ctx, roomID, studentID)
	if err != nil {
		return nil, false, err
	}
	return sub, created, nil
}

// Get retrieves the attempt of one student in one room.
func (r *SubmissionRepository) Get(ctx context.Context, roomID uuid.UUID, studentID string) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions s
		 WHERE s.room_id = $1 AND s.student_id = $2`, roomID, studentID))
}

// SaveDraft merges one autosaved answer into an in-progress attempt. Returns
// ErrNoTransition when the attempt is missing or already graded.
func (r *SubmissionRepository) SaveDraft(ctx context.Context, roomID uuid.UUID, studentID, questionID string, answer model.Answer) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET drafts = drafts || jsonb_build_object($3::text, $4::jsonb)
		 WHERE room_id = $1 AND student_id = $2 AND status = $5`,
		roomID, studentID, questionID, answer, model.SubmissionInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoTransition
	}
	return nil
}

// Finalize stores the graded result of an in-progress attempt. The WHERE on
// status makes a second finalize of the same attempt match nothing, which is
// reported as ErrNoTransition.
func (r *SubmissionRepository) Finalize(ctx context.Context, sub *model.Submission) error {
	answers := sub.Answers
	if answers == nil {
		answers = []model.GradedAnswer{}
	}
	err := r.pool.QueryRow(ctx,
		`UPDATE submissions
		 SET answers = $3, score = $4, total_points = $5, status = $6,
		     submitted_at = $7, time_spent = $8
		 WHERE room_id = $1 AND student_id = $2 AND status = $9
		 RETURNING id`,
		sub.RoomID, sub.StudentID, answers, sub.Score, sub.TotalPoints, sub.Status,
		sub.SubmittedAt, sub.TimeSpentSeconds, model.SubmissionInProgress,
	).Scan(&sub.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoTransition
	}
	return translate(err)
}

// ListByRoom returns every attempt in a room, earliest first.
func (r *SubmissionRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions s
		 WHERE s.room_id = $1
		 ORDER BY s.started_at ASC`, roomID)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

// ListInProgress returns the attempts of a room that have not been graded yet.
func (r *SubmissionRepository) ListInProgress(ctx context.Context, roomID uuid.UUID) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions s
		 WHERE s.room_id = $1 AND s.status = $2
		 ORDER BY s.started_at ASC`, roomID, model.SubmissionInProgress)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}
