package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
)

func intPtr(i int) *int { return &i }

func mixedQuiz() []model.Question {
	return []model.Question{
		{ID: "q1", Text: "2+2?", Options: []string{"3", "4"}, CorrectIndex: intPtr(1), Points: 4, Type: model.QuestionTypeMultipleChoice},
		{ID: "q2", Text: "Explain", Points: 6, Type: model.QuestionTypeEssay},
	}
}

func TestGrade_MultipleChoiceAndEssay(t *testing.T) {
	res := Grade(mixedQuiz(), []model.AnswerInput{
		{Answer: model.ChoiceAnswer(1)},
		{Answer: model.TextAnswer("text")},
	})

	assert.Equal(t, 4.0, res.Score)
	assert.Equal(t, 10.0, res.TotalPoints)
	assert.Equal(t, 40, res.Percentage())
	require.Len(t, res.Answers, 2)
	assert.True(t, res.Answers[0].IsCorrect)
	assert.False(t, res.Answers[1].IsCorrect)
	assert.Zero(t, res.Answers[1].Points)
}

func TestGrade_MatchesByQuestionID(t *testing.T) {
	res := Grade(mixedQuiz(), []model.AnswerInput{
		{QuestionID: "q2", Answer: model.TextAnswer("essay")},
		{QuestionID: "q1", Answer: model.ChoiceAnswer(1), TimeTakenSeconds: 12},
		{QuestionID: "q9", Answer: model.ChoiceAnswer(0)},
	})

	assert.Equal(t, 4.0, res.Score)
	assert.Equal(t, "q1", res.Answers[0].QuestionID)
	assert.Equal(t, 12, res.Answers[0].TimeTakenSeconds)
	assert.Equal(t, "q2", res.Answers[1].QuestionID)
}

func TestGrade_WrongEmptyAndNumericString(t *testing.T) {
	qs := mixedQuiz()

	wrong := Grade(qs, []model.AnswerInput{{Answer: model.ChoiceAnswer(0)}})
	assert.Zero(t, wrong.Score)
	assert.Len(t, wrong.Answers, 2)

	none := Grade(qs, nil)
	assert.Zero(t, none.Score)
	assert.Equal(t, 10.0, none.TotalPoints)
	assert.True(t, none.Answers[0].Answer.Empty())

	str := Grade(qs, []model.AnswerInput{{Answer: model.TextAnswer("1")}})
	assert.Equal(t, 4.0, str.Score)
}

func TestGrade_LaterAnswerWins(t *testing.T) {
	res := Grade(mixedQuiz(), []model.AnswerInput{
		{QuestionID: "q1", Answer: model.ChoiceAnswer(1)},
		{QuestionID: "q1", Answer: model.ChoiceAnswer(0)},
	})
	assert.Zero(t, res.Score)
}

func TestGrade_EmptyQuizHasZeroPercentage(t *testing.T) {
	res := Grade(nil, []model.AnswerInput{{Answer: model.ChoiceAnswer(1)}})
	assert.Zero(t, res.TotalPoints)
	assert.Zero(t, res.Percentage())
	assert.Empty(t, res.Answers)
}

func TestGrade_Deterministic(t *testing.T) {
	in := []model.AnswerInput{{Answer: model.ChoiceAnswer(1)}, {Answer: model.TextAnswer("x")}}
	assert.Equal(t, Grade(mixedQuiz(), in), Grade(mixedQuiz(), in))
}
