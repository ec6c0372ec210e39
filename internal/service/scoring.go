package service

import "github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"

// GradeResult is the outcome of grading one attempt.
type GradeResult struct {
	Answers     []model.GradedAnswer
	Score       float64
	TotalPoints float64
}

// Percentage is round(score/total*100).
func (r GradeResult) Percentage() int {
	return model.Percentage(r.Score, r.TotalPoints)
}

// strategy grades one answer against one question.
type strategy interface {
	grade(q *model.Question, a model.Answer) (correct bool, points float64)
}

type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) grade(q *model.Question, a model.Answer) (bool, float64) {
	if q.CorrectIndex == nil {
		return false, 0
	}
	idx, ok := a.ChoiceIndex()
	if !ok || idx != *q.CorrectIndex {
		return false, 0
	}
	return true, q.Points
}

// Essays are recorded for manual review and never earn automatic credit.
type essayStrategy struct{}

func (essayStrategy) grade(*model.Question, model.Answer) (bool, float64) {
	return false, 0
}

var strategies = map[model.QuestionType]strategy{
	model.QuestionTypeMultipleChoice: multipleChoiceStrategy{},
	model.QuestionTypeEssay:          essayStrategy{},
}

// Grade scores answers against the quiz. The result holds one entry per
// question in quiz order. An answer is matched by question id, or by its
// position when it carries none; answers to unknown questions are ignored and
// a later answer to the same question replaces an earlier one.
func Grade(questions []model.Question, inputs []model.AnswerInput) GradeResult {
	pos := make(map[string]int, len(questions))
	for i := range questions {
		pos[questions[i].ID] = i
	}

	byIndex := make(map[int]model.AnswerInput, len(inputs))
	for i, in := range inputs {
		if in.QuestionID == "" {
			if i < len(questions) {
				byIndex[i] = in
			}
			continue
		}
		if j, ok := pos[in.QuestionID]; ok {
			byIndex[j] = in
		}
	}

	res := GradeResult{Answers: make([]model.GradedAnswer, len(questions))}
	for i := range questions {
		q := &questions[i]
		res.TotalPoints += q.Points

		in := byIndex[i]
		ga := model.GradedAnswer{
			QuestionID:       q.ID,
			Answer:           in.Answer,
			TimeTakenSeconds: in.TimeTakenSeconds,
		}
		if s, ok := strategies[q.Type]; ok && !in.Answer.Empty() {
			ga.IsCorrect, ga.Points = s.grade(q, in.Answer)
		}
		res.Score += ga.Points
		res.Answers[i] = ga
	}
	return res
}

// draftInputs turns autosaved drafts into grading input.
func draftInputs(drafts map[string]model.Answer) []model.AnswerInput {
	inputs := make([]model.AnswerInput, 0, len(drafts))
	for qid, a := range drafts {
		if qid == "" {
			continue
		}
		inputs = append(inputs, model.AnswerInput{QuestionID: qid, Answer: a})
	}
	return inputs
}
