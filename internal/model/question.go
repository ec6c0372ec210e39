package model

import "encoding/json"

// QuestionType distinguishes auto-gradable questions from essays.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple-choice"
	QuestionTypeEssay          QuestionType = "essay"
)

// Question is a read-only quiz item. Essays carry no CorrectIndex.
type Question struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Options      []string     `json:"options,omitempty"`
	CorrectIndex *int         `json:"correct_index,omitempty"`
	Points       float64      `json:"points"`
	Type         QuestionType `json:"type"`
}

// Quiz is the question set a room is bound to.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// QuestionForStudent is a question without the correct answer.
type QuestionForStudent struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Options []string     `json:"options,omitempty"`
	Points  float64      `json:"points"`
	Type    QuestionType `json:"type"`
}

// ExamPaper is what a student receives once the exam is running.
type ExamPaper struct {
	RoomCode  string               `json:"room_code"`
	QuizID    string               `json:"quiz_id"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration"`
	Settings  RoomSettings         `json:"settings"`
	Questions []QuestionForStudent `json:"questions"`
}

// PaperFor strips answer keys from the quiz.
func PaperFor(room *Room, quiz *Quiz) ExamPaper {
	qs := make([]QuestionForStudent, len(quiz.Questions))
	for i, q := range quiz.Questions {
		qs[i] = QuestionForStudent{
			ID:      q.ID,
			Text:    q.Text,
			Options: q.Options,
			Points:  q.Points,
			Type:    q.Type,
		}
	}
	return ExamPaper{
		RoomCode:  room.Code,
		QuizID:    quiz.ID,
		Title:     quiz.Title,
		Duration:  room.DurationMinutes,
		Settings:  room.Settings,
		Questions: qs,
	}
}

// questionRecord mirrors the jsonb layout of the questions column.
type questionRecord struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Options      []string     `json:"options"`
	CorrectIndex *int         `json:"correctIndex"`
	Points       float64      `json:"points"`
	Type         QuestionType `json:"type"`
}

// DecodeQuestions parses the question list stored by the quiz authoring service.
func DecodeQuestions(raw []byte) ([]Question, error) {
	var recs []questionRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}
	out := make([]Question, len(recs))
	for i, r := range recs {
		typ := r.Type
		if typ == "" {
			typ = QuestionTypeMultipleChoice
		}
		out[i] = Question{
			ID:           r.ID,
			Text:         r.Text,
			Options:      r.Options,
			CorrectIndex: r.CorrectIndex,
			Points:       r.Points,
			Type:         typ,
		}
	}
	return out, nil
}
