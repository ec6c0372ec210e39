package model

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus enumerates the lifecycle states of a room. Transitions only move forward.
type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusRunning RoomStatus = "running"
	RoomStatusEnded   RoomStatus = "ended"
)

// RoomSettings is fixed at creation and read by clients when the exam starts.
type RoomSettings struct {
	ShuffleQuestions   bool `json:"shuffle_questions"`
	ShuffleOptions     bool `json:"shuffle_options"`
	ShowCorrectAnswers bool `json:"show_correct_answers"`
	AllowReview        bool `json:"allow_review"`
}

// Room is one timed exam instance tied to a fixed quiz.
type Room struct {
	ID              uuid.UUID         `json:"id"`
	Code            string            `json:"room_code"`
	TeacherID       string            `json:"teacher_id"`
	QuizID          string            `json:"exam_quiz_id"`
	Status          RoomStatus        `json:"status"`
	StartTime       *time.Time        `json:"start_time,omitempty"`
	EndTime         *time.Time        `json:"end_time,omitempty"`
	DurationMinutes int               `json:"duration"`
	MaxStudents     *int              `json:"max_students,omitempty"`
	Settings        RoomSettings      `json:"settings"`
	PublishAnalysis bool              `json:"publish_analysis"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Duration returns the configured exam length.
func (r *Room) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// IsOwner reports whether userID created the room.
func (r *Room) IsOwner(userID string) bool {
	return userID != "" && r.TeacherID == userID
}

// AcceptsSubmissions reports whether a submit at now is inside the running window,
// extended by grace past the scheduled end.
func (r *Room) AcceptsSubmissions(now time.Time, grace time.Duration) bool {
	if r.Status != RoomStatusRunning {
		return false
	}
	if r.EndTime == nil {
		return true
	}
	return !now.After(r.EndTime.Add(grace))
}

// RoomSnapshot is the view of a room sent to connected clients.
type RoomSnapshot struct {
	RoomCode        string       `json:"room_code"`
	Status          RoomStatus   `json:"status"`
	StartTime       *time.Time   `json:"start_time,omitempty"`
	EndTime         *time.Time   `json:"end_time,omitempty"`
	DurationMinutes int          `json:"duration"`
	MaxStudents     *int         `json:"max_students,omitempty"`
	Settings        RoomSettings `json:"settings"`
	PublishAnalysis bool         `json:"publish_analysis"`
	ServerTime      time.Time    `json:"server_time"`
}

// Snapshot builds the client-facing view of the room at now.
func (r *Room) Snapshot(now time.Time) RoomSnapshot {
	return RoomSnapshot{
		RoomCode:        r.Code,
		Status:          r.Status,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		DurationMinutes: r.DurationMinutes,
		MaxStudents:     r.MaxStudents,
		Settings:        r.Settings,
		PublishAnalysis: r.PublishAnalysis,
		ServerTime:      now.UTC(),
	}
}

// CreateRoomRequest is the payload for creating a new room.
type CreateRoomRequest struct {
	ExamQuizID  string            `json:"exam_quiz_id" binding:"required,max=64"`
	Duration    int               `json:"duration" binding:"required,min=1"`
	MaxStudents *int              `json:"max_students" binding:"omitempty,min=1,max=1000"`
	Settings    RoomSettings      `json:"settings"`
	Metadata    map[string]string `json:"metadata" binding:"omitempty,max=20,dive,keys,max=64,endkeys,max=256"`
}

// PublishRequest toggles whether students may view the analysis of an ended room.
type PublishRequest struct {
	Publish *bool `json:"publish" binding:"required"`
}
