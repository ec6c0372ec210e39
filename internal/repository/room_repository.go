package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const roomColumns = `id, code, teacher_id, quiz_id, status, start_time, end_time,
	duration_minutes, max_students, settings, publish_analysis, metadata, created_at, updated_at`

// RoomRepository handles room data access. Every status change is a
// conditional UPDATE on the current status.
type RoomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository creates a new RoomRepository.
func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	r := &model.Room{}
	err := row.Scan(&r.ID, &r.Code, &r.TeacherID, &r.QuizID, &r.Status, &r.StartTime, &r.EndTime,
		&r.DurationMinutes, &r.MaxStudents, &r.Settings, &r.PublishAnalysis, &r.Metadata,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func collectRooms(rows pgx.Rows) ([]model.Room, error) {
	defer rows.Close()
	var rooms []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}

// Create inserts a waiting room. Returns ErrConflict when the code is taken.
func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	metadata := room.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rooms (code, teacher_id, quiz_id, status, duration_minutes, max_students, settings, metadata)
		 VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		room.Code, room.TeacherID, room.QuizID, model.RoomStatusWaiting,
		room.DurationMinutes, room.MaxStudents, room.Settings, metadata,
	).Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	room.Code = strings.ToUpper(room.Code)
	room.Status = model.RoomStatusWaiting
	return nil
}

// GetByCode looks a room up by its case-insensitive code.
func (r *RoomRepository) GetByCode(ctx context.Context, code string) (*model.Room, error) {
	return scanRoom(r.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE UPPER(code) = UPPER($1)`, code))
}

// ListByTeacher returns a teacher's rooms, newest first, and the total count.
func (r *RoomRepository) ListByTeacher(ctx context.Context, teacherID string, limit, offset int) ([]model.Room, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rooms WHERE teacher_id = $1`, teacherID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+roomColumns+` FROM rooms
		 WHERE teacher_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, teacherID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	rooms, err := collectRooms(rows)
	return rooms, total, err
}

// MarkRunning moves a waiting room to running. Returns ErrNoTransition when the
// room is not waiting.
func (r *RoomRepository) MarkRunning(ctx context.Context, code string, start, end time.Time) (*model.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`UPDATE rooms
		 SET status = $2, start_time = $3, end_time = $4, updated_at = NOW()
		 WHERE UPPER(code) = UPPER($1) AND status = $5
		 RETURNING `+roomColumns,
		code, model.RoomStatusRunning, start, end, model.RoomStatusWaiting))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoTransition
	}
	return room, err
}

// MarkEnded moves a running room to ended. A nil endTime keeps the scheduled
// end; otherwise end_time is pulled forward. Returns ErrNoTransition when the
// room is not running.
func (r *RoomRepository) MarkEnded(ctx context.Context, code string, endTime *time.Time) (*model.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`UPDATE rooms
		 SET status = $2, end_time = COALESCE($3, end_time), updated_at = NOW()
		 WHERE UPPER(code) = UPPER($1) AND status = $4
		 RETURNING `+roomColumns,
		code, model.RoomStatusEnded, endTime, model.RoomStatusRunning))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoTransition
	}
	return room, err
}

// SetPublish flips publish_analysis on an ended room. Returns ErrNoTransition
// when the room has not ended.
func (r *RoomRepository) SetPublish(ctx context.Context, code string, publish bool) (*model.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`UPDATE rooms
		 SET publish_analysis = $2, updated_at = NOW()
		 WHERE UPPER(code) = UPPER($1) AND status = $3
		 RETURNING `+roomColumns,
		code, publish, model.RoomStatusEnded))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoTransition
	}
	return room, err
}

// DeleteWaiting removes a room that has not started. Returns ErrNoTransition
// when no waiting room matched.
func (r *RoomRepository) DeleteWaiting(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM rooms WHERE UPPER(code) = UPPER($1) AND status = $2`,
		code, model.RoomStatusWaiting)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoTransition
	}
	return nil
}

// ListRunning returns every running room, soonest deadline first.
func (r *RoomRepository) ListRunning(ctx context.Context) ([]model.Room, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE status = $1 ORDER BY end_time ASC`,
		model.RoomStatusRunning)
	if err != nil {
		return nil, err
	}
	return collectRooms(rows)
}

// ListEndedWithPending returns ended rooms that still hold in-progress submissions.
func (r *RoomRepository) ListEndedWithPending(ctx context.Context) ([]model.Room, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roomColumns+` FROM rooms r
		 WHERE r.status = $1
		   AND EXISTS (SELECT 1 FROM submissions s WHERE s.room_id = r.id AND s.status = $2)`,
		model.RoomStatusEnded, model.SubmissionInProgress)
	if err != nil {
		return nil, err
	}
	return collectRooms(rows)
}
