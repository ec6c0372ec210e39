package model

import "time"

// Role distinguishes teachers from students in a room.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Participant is a live roster entry. It is never persisted.
type Participant struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// RosterSnapshot is the full roster broadcast on every change.
type RosterSnapshot struct {
	RoomCode      string        `json:"room_code"`
	Participants  []Participant `json:"participants"`
	TotalStudents int           `json:"total_students"`
}
