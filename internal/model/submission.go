package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates the states of a student's attempt.
type SubmissionStatus string

const (
	SubmissionInProgress    SubmissionStatus = "in-progress"
	SubmissionSubmitted     SubmissionStatus = "submitted"
	SubmissionAutoSubmitted SubmissionStatus = "auto-submitted"
	SubmissionGraded        SubmissionStatus = "graded"
)

// Completed reports whether the attempt has been scored.
func (s SubmissionStatus) Completed() bool {
	switch s {
	case SubmissionSubmitted, SubmissionAutoSubmitted, SubmissionGraded:
		return true
	}
	return false
}

// Answer is either a multiple-choice index or essay text. On the wire it is a
// JSON number, a JSON string, or null.
type Answer struct {
	Choice *int
	Text   *string
}

// ChoiceAnswer builds a multiple-choice answer.
func ChoiceAnswer(i int) Answer { return Answer{Choice: &i} }

// TextAnswer builds an essay answer.
func TextAnswer(s string) Answer { return Answer{Text: &s} }

// Empty reports whether nothing was answered.
func (a Answer) Empty() bool { return a.Choice == nil && a.Text == nil }

// ChoiceIndex returns the selected option, accepting numeric strings.
func (a Answer) ChoiceIndex() (int, bool) {
	if a.Choice != nil {
		return *a.Choice, true
	}
	if a.Text != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(*a.Text)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch {
	case a.Choice != nil:
		return json.Marshal(*a.Choice)
	case a.Text != nil:
		return json.Marshal(*a.Text)
	default:
		return []byte("null"), nil
	}
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*a = Answer{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.Text = &s
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.New("answer must be a number, a string or null")
	}
	if f != math.Trunc(f) {
		return errors.New("choice index must be an integer")
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return errors.New("choice index out of range")
	}
	n := int(f)
	a.Choice = &n
	return nil
}

// AnswerInput is one answer as sent by the client.
type AnswerInput struct {
	QuestionID       string `json:"question_id"`
	Answer           Answer `json:"answer"`
	TimeTakenSeconds int    `json:"time_taken"`
}

// GradedAnswer is one answer after grading.
type GradedAnswer struct {
	QuestionID       string  `json:"question_id"`
	Answer           Answer  `json:"answer"`
	IsCorrect        bool    `json:"is_correct"`
	Points           float64 `json:"points"`
	TimeTakenSeconds int     `json:"time_taken"`
}

// ViolationType is the closed set of proctoring signals a client may report.
type ViolationType string

const (
	ViolationTabSwitch  ViolationType = "tab-switch"
	ViolationWindowBlur ViolationType = "window-blur"
	ViolationCopy       ViolationType = "copy-attempt"
	ViolationPaste      ViolationType = "paste-attempt"
	ViolationCut        ViolationType = "cut-attempt"
	ViolationDevtools   ViolationType = "devtools-attempt"
)

// Valid reports whether t is a known violation type.
func (t ViolationType) Valid() bool {
	switch t {
	case ViolationTabSwitch, ViolationWindowBlur, ViolationCopy,
		ViolationPaste, ViolationCut, ViolationDevtools:
		return true
	}
	return false
}

// Violation is an aggregated counter for one proctoring signal.
type Violation struct {
	Type  ViolationType `json:"type"`
	Count int           `json:"count"`
}

// Submission is one student's attempt in a room. At most one exists per
// (RoomID, StudentID).
type Submission struct {
	ID               uuid.UUID         `json:"id"`
	RoomID           uuid.UUID         `json:"room_id"`
	StudentID        string            `json:"student_id"`
	QuizID           string            `json:"quiz_id"`
	Answers          []GradedAnswer    `json:"answers"`
	Drafts           map[string]Answer `json:"-"`
	Score            float64           `json:"score"`
	TotalPoints      float64           `json:"total_points"`
	Status           SubmissionStatus  `json:"status"`
	StartedAt        time.Time         `json:"started_at"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	TimeSpentSeconds *int              `json:"-"`
	Violations       []Violation       `json:"violations"`
}

// Percentage is round(score/totalPoints*100), or 0 for an empty quiz.
func Percentage(score, totalPoints float64) int {
	if totalPoints <= 0 {
		return 0
	}
	return int(math.Round(score / totalPoints * 100))
}

// Percentage derives the percentage from the stored score.
func (s *Submission) Percentage() int {
	return Percentage(s.Score, s.TotalPoints)
}

// TimeSpent returns the tracked time, or submittedAt - startedAt when untracked.
func (s *Submission) TimeSpent() time.Duration {
	if s.TimeSpentSeconds != nil {
		return time.Duration(*s.TimeSpentSeconds) * time.Second
	}
	if s.SubmittedAt == nil {
		return 0
	}
	d := s.SubmittedAt.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// ViolationCount sums every violation counter.
func (s *Submission) ViolationCount() int {
	n := 0
	for _, v := range s.Violations {
		n += v.Count
	}
	return n
}

// SubmissionView adds the derived fields for API responses.
type SubmissionView struct {
	*Submission
	Percentage       int `json:"percentage"`
	TimeSpentSeconds int `json:"time_spent"`
	ViolationCount   int `json:"violation_count"`
}

// View wraps the submission with its derived fields.
func (s *Submission) View() SubmissionView {
	return SubmissionView{
		Submission:       s,
		Percentage:       s.Percentage(),
		TimeSpentSeconds: int(s.TimeSpent() / time.Second),
		ViolationCount:   s.ViolationCount(),
	}
}

// SubmitRequest is the payload of a voluntary submit.
type SubmitRequest struct {
	Answers []AnswerInput `json:"answers" binding:"max=500"`
}

// ViolationRequest reports a proctoring signal.
type ViolationRequest struct {
	Type ViolationType `json:"type" binding:"required"`
}
