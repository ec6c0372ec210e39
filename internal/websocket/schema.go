package websocket

import (
	"encoding/json"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionJoinRoom        Action = "join-room"
	ActionLeave           Action = "leave"
	ActionStartExam       Action = "start-exam"
	ActionEndExam         Action = "end-exam"
	ActionStartAttempt    Action = "start-attempt"
	ActionAutosave        Action = "autosave"
	ActionSubmitExam      Action = "submit-exam"
	ActionReportViolation Action = "report-violation"
	ActionPing            Action = "ping"
)

// RequestEnvelope is used to peek at the action before parsing the payload.
type RequestEnvelope struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// JoinRoomRequest joins a room. UserID and Role, when present, must match the token.
type JoinRoomRequest struct {
	RoomCode string     `json:"roomCode"`
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	Role     model.Role `json:"role"`
}

// RoomRequest carries only the room code.
type RoomRequest struct {
	RoomCode string `json:"roomCode"`
}

// StartExamRequest is sent by the owning teacher.
type StartExamRequest struct {
	RoomCode  string `json:"roomCode"`
	TeacherID string `json:"teacherId"`
}

// AutosaveRequest records a single draft answer.
type AutosaveRequest struct {
	RoomCode   string       `json:"roomCode"`
	QuestionID string       `json:"questionId"`
	Answer     model.Answer `json:"answer"`
}

// SubmitAnswer is one answer inside a submit-exam frame.
type SubmitAnswer struct {
	QuestionID string       `json:"questionId"`
	Answer     model.Answer `json:"answer"`
	TimeTaken  int          `json:"timeTaken"`
}

// SubmitExamRequest finishes the attempt.
type SubmitExamRequest struct {
	RoomCode  string         `json:"roomCode"`
	StudentID string         `json:"studentId"`
	Answers   []SubmitAnswer `json:"answers"`
}

// Inputs converts the frame answers for grading.
func (r *SubmitExamRequest) Inputs() []model.AnswerInput {
	out := make([]model.AnswerInput, len(r.Answers))
	for i, a := range r.Answers {
		out[i] = model.AnswerInput{QuestionID: a.QuestionID, Answer: a.Answer, TimeTakenSeconds: a.TimeTaken}
	}
	return out
}

// ReportViolationRequest reports a proctoring signal.
type ReportViolationRequest struct {
	RoomCode  string              `json:"roomCode"`
	StudentID string              `json:"studentId"`
	Type      model.ViolationType `json:"type"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventJoinedRoom        Event = "joined-room"
	EventRoomUpdate        Event = "room-update"
	EventExamStarted       Event = "exam-started"
	EventExamEnded         Event = "exam-ended"
	EventStudentSubmitted  Event = "student-submitted"
	EventSubmitted         Event = "submitted"
	EventAttemptStarted    Event = "attempt-started"
	EventSaved             Event = "saved"
	EventViolationReported Event = "violation-reported"
	EventLeft              Event = "left"
	EventPong              Event = "pong"
	EventError             Event = "error"
)

// Frame is the envelope of every server message.
type Frame struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ParticipantData is one roster line.
type ParticipantData struct {
	UserID   string     `json:"userId"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

type SettingsData struct {
	ShuffleQuestions   bool `json:"shuffleQuestions"`
	ShuffleOptions     bool `json:"shuffleOptions"`
	ShowCorrectAnswers bool `json:"showCorrectAnswers"`
	AllowReview        bool `json:"allowReview"`
}

// RoomData is the room as clients see it.
type RoomData struct {
	RoomCode        string           `json:"roomCode"`
	Status          model.RoomStatus `json:"status"`
	StartTime       *time.Time       `json:"startTime,omitempty"`
	EndTime         *time.Time       `json:"endTime,omitempty"`
	Duration        int              `json:"duration"`
	MaxStudents     *int             `json:"maxStudents,omitempty"`
	Settings        SettingsData     `json:"settings"`
	PublishAnalysis bool             `json:"publishAnalysis"`
	ServerTime      time.Time        `json:"serverTime"`
}

// JoinedRoomData acknowledges a join.
type JoinedRoomData struct {
	Room         RoomData          `json:"room"`
	Participants []ParticipantData `json:"participants"`
}

// RoomUpdateData is the full roster, sent on every change.
type RoomUpdateData struct {
	RoomCode      string            `json:"roomCode"`
	Participants  []ParticipantData `json:"participants"`
	TotalStudents int               `json:"totalStudents"`
}

// NewRoomData converts a room snapshot for the wire.
func NewRoomData(s model.RoomSnapshot) RoomData {
	return RoomData{
		RoomCode:    s.RoomCode,
		Status:      s.Status,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Duration:    s.DurationMinutes,
		MaxStudents: s.MaxStudents,
		Settings: SettingsData{
			ShuffleQuestions:   s.Settings.ShuffleQuestions,
			ShuffleOptions:     s.Settings.ShuffleOptions,
			ShowCorrectAnswers: s.Settings.ShowCorrectAnswers,
			AllowReview:        s.Settings.AllowReview,
		},
		PublishAnalysis: s.PublishAnalysis,
		ServerTime:      s.ServerTime,
	}
}

// NewParticipants converts roster lines for the wire.
func NewParticipants(ps []model.Participant) []ParticipantData {
	out := make([]ParticipantData, len(ps))
	for i, p := range ps {
		out[i] = ParticipantData{UserID: p.UserID, Name: p.Name, Role: p.Role, JoinedAt: p.JoinedAt}
	}
	return out
}

// NewRoomUpdate converts a roster snapshot for the wire.
func NewRoomUpdate(r model.RosterSnapshot) RoomUpdateData {
	return RoomUpdateData{
		RoomCode:      r.RoomCode,
		Participants:  NewParticipants(r.Participants),
		TotalStudents: r.TotalStudents,
	}
}

type ExamStartedData struct {
	RoomCode  string    `json:"roomCode"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  int       `json:"duration"`
	Message   string    `json:"message"`
}

type ExamEndedData struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
}

// StudentSubmittedData never carries answer content.
type StudentSubmittedData struct {
	RoomCode    string    `json:"roomCode"`
	StudentID   string    `json:"studentId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// SubmittedData is sent only to the submitter.
type SubmittedData struct {
	SubmissionID string                 `json:"submissionId"`
	Status       model.SubmissionStatus `json:"status"`
	Score        float64                `json:"score"`
	TotalPoints  float64                `json:"totalPoints"`
	Percentage   int                    `json:"percentage"`
	TimeSpent    int                    `json:"timeSpent"`
}

type AttemptStartedData struct {
	SubmissionID string    `json:"submissionId"`
	StartedAt    time.Time `json:"startedAt"`
}

type SavedData struct {
	QuestionID string `json:"questionId"`
}

type ViolationReportedData struct {
	RoomCode  string              `json:"roomCode"`
	StudentID string              `json:"studentId"`
	Type      model.ViolationType `json:"type"`
	At        time.Time           `json:"at"`
}

type ErrorData struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
