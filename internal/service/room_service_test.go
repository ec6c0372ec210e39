package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
)

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func TestCreateRoom_GeneratesCodeAndWaits(t *testing.T) {
	f := newFixture()
	room, err := f.roomSvc.CreateRoom(context.Background(), CreateRoomInput{
		TeacherID:       "teacher-1",
		QuizID:          "quiz-1",
		DurationMinutes: 30,
		Metadata:        map[string]string{"title": "Midterm"},
	})
	require.NoError(t, err)
	assert.Regexp(t, roomCodePattern, room.Code)
	assert.Equal(t, model.RoomStatusWaiting, room.Status)
	assert.Nil(t, room.StartTime)
	assert.Equal(t, "Midterm", room.Metadata["title"])
}

func TestCreateRoom_RetriesCodeCollisions(t *testing.T) {
	f := newFixture()
	f.rooms.conflicts = 3

	_, err := f.roomSvc.CreateRoom(context.Background(), CreateRoomInput{
		TeacherID: "teacher-1", QuizID: "quiz-1", DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, f.rooms.creates)
}

func TestCreateRoom_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture()
	f.rooms.conflicts = 100

	_, err := f.roomSvc.CreateRoom(context.Background(), CreateRoomInput{
		TeacherID: "teacher-1", QuizID: "quiz-1", DurationMinutes: 30,
	})
	assert.ErrorIs(t, err, apperror.ErrServiceUnavailable)
	assert.Equal(t, codeAttempts, f.rooms.creates)
}

func TestCreateRoom_Validation(t *testing.T) {
	f := newFixture()
	f.quizzes["empty"] = &model.Quiz{ID: "empty"}
	zero := 0

	cases := map[string]CreateRoomInput{
		"zero duration":   {TeacherID: "t", QuizID: "quiz-1", DurationMinutes: 0},
		"too long":        {TeacherID: "t", QuizID: "quiz-1", DurationMinutes: 241},
		"missing quiz id": {TeacherID: "t", DurationMinutes: 10},
		"unknown quiz":    {TeacherID: "t", QuizID: "nope", DurationMinutes: 10},
		"empty quiz":      {TeacherID: "t", QuizID: "empty", DurationMinutes: 10},
		"zero capacity":   {TeacherID: "t", QuizID: "quiz-1", DurationMinutes: 10, MaxStudents: &zero},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.roomSvc.CreateRoom(context.Background(), in)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestStartExam_SetsWindowAndArmsDeadline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := f.runningRoom(ctx, model.RoomSettings{})

	assert.Equal(t, model.RoomStatusRunning, room.Status)
	require.NotNil(t, room.StartTime)
	require.NotNil(t, room.EndTime)
	assert.Equal(t, f.clock, *room.StartTime)
	assert.Equal(t, f.clock.Add(10*time.Minute), *room.EndTime)

	require.Len(t, f.scheduler.armed, 1)
	assert.Equal(t, room.Code, f.scheduler.armed[0].code)
	assert.Equal(t, room.EndTime.Add(testGrace), f.scheduler.armed[0].at)
}

func TestStartExam_OwnerAndStateGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room, err := f.roomSvc.CreateRoom(ctx, CreateRoomInput{TeacherID: "teacher-1", QuizID: "quiz-1", DurationMinutes: 10})
	require.NoError(t, err)

	_, err = f.roomSvc.StartExam(ctx, room.Code, "teacher-2")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.roomSvc.StartExam(ctx, room.Code, "teacher-1")
	require.NoError(t, err)

	_, err = f.roomSvc.StartExam(ctx, room.Code, "teacher-1")
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	_, err = f.roomSvc.StartExam(ctx, "ZZZZZZ", "teacher-1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestStatusOnlyMovesForward(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := f.runningRoom(ctx, model.RoomSettings{})

	_, changed, err := f.roomSvc.EndExam(ctx, room.Code, TeacherActor("teacher-1"))
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = f.roomSvc.StartExam(ctx, room.Code, "teacher-1")
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	got, err := f.roomSvc.GetRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusEnded, got.Status)
}

func TestEndExam_ManualPullsEndTimeForward(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := f.runningRoom(ctx, model.RoomSettings{})
	f.advance(3 * time.Minute)

	ended, changed, err := f.roomSvc.EndExam(ctx, room.Code, TeacherActor("teacher-1"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, f.clock, *ended.EndTime)
	assert.Equal(t, []string{room.Code}, f.scheduler.cancelled)
}

func TestEndExam_SystemKeepsScheduledEndAndIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := f.runningRoom(ctx, model.RoomSettings{})
	f.advance(10*time.Minute + testGrace)

	ended, changed, err := f.roomSvc.EndExam(ctx, room.Code, SystemActor)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, *room.EndTime, *ended.EndTime)

	again, changed, err := f.roomSvc.EndExam(ctx, room.Code, SystemActor)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.RoomStatusEnded, again.Status)
}

func TestEndExam_Guards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room, err := f.roomSvc.CreateRoom(ctx, CreateRoomInput{TeacherID: "teacher-1", QuizID: "quiz-1", DurationMinutes: 10})
	require.NoError(t, err)

	_, _, err = f.roomSvc.EndExam(ctx, room.Code, TeacherActor("teacher-1"))
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	_, _, err = f.roomSvc.EndExam(ctx, room.Code, TeacherActor("intruder"))
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestEndExam_ForceSubmitsOpenAttempts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := f.runningRoom(ctx, model.RoomSettings{})

	_, err := f.subSvc.StartAttempt(ctx, room.Code, "student-1")
	require.NoError(t, err)
	require.NoError(t, f.subSvc.SaveAnswer(ctx, room.Code, "student-1", "q1", model.ChoiceAnswer(1)))

	_, _, err = f.roomSvc.EndExam(ctx, room.Code, TeacherActor("teacher-1"))
	require.NoError(t, err)

	sub, err := f.subs.Get(ctx, room.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionAutoSubmitted, sub.Status)
	assert.Equal(t, 4.0, sub.Score)
}

func TestTogglePublish(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := f.runningRoom(ctx, model.RoomSettings{})

	_, err := f.roomSvc.TogglePublish(ctx, room.Code, "teacher-1", true)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	_, _, err = f.roomSvc.EndExam(ctx, room.Code, TeacherActor("teacher-1"))
	require.NoError(t, err)

	_, err = f.roomSvc.TogglePublish(ctx, room.Code, "teacher-2", true)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	updated, err := f.roomSvc.TogglePublish(ctx, room.Code, "teacher-1", true)
	require.NoError(t, err)
	assert.True(t, updated.PublishAnalysis)
}

func TestDeleteRoom_OnlyWhileWaiting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	waiting, err := f.roomSvc.CreateRoom(ctx, CreateRoomInput{TeacherID: "teacher-1", QuizID: "quiz-1", DurationMinutes: 10})
	require.NoError(t, err)
	running := f.runningRoom(ctx, model.RoomSettings{})

	assert.ErrorIs(t, f.roomSvc.DeleteRoom(ctx, waiting.Code, "teacher-2"), apperror.ErrForbidden)
	assert.ErrorIs(t, f.roomSvc.DeleteRoom(ctx, running.Code, "teacher-1"), apperror.ErrInvalidState)
	require.NoError(t, f.roomSvc.DeleteRoom(ctx, waiting.Code, "teacher-1"))

	_, err = f.roomSvc.GetRoom(ctx, waiting.Code)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListTeacherRooms_Paginates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.roomSvc.CreateRoom(ctx, CreateRoomInput{TeacherID: "teacher-1", QuizID: "quiz-1", DurationMinutes: 10})
		require.NoError(t, err)
	}

	rooms, page, err := f.roomSvc.ListTeacherRooms(ctx, "teacher-1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)

	none, _, err := f.roomSvc.ListTeacherRooms(ctx, "teacher-9", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReconcile_RearmsRunningAndRepairsEnded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	live := f.runningRoom(ctx, model.RoomSettings{})

	broken := f.runningRoom(ctx, model.RoomSettings{})
	_, err := f.subSvc.StartAttempt(ctx, broken.Code, "student-1")
	require.NoError(t, err)
	// Simulate a crash between the status CAS and the mass submit.
	_, err = f.rooms.MarkEnded(ctx, broken.Code, nil)
	require.NoError(t, err)

	f.scheduler.armed = nil
	f.advance(11 * time.Minute)

	report, err := f.roomSvc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rearmed)
	assert.Equal(t, 1, report.Overdue)
	assert.Equal(t, 1, report.Repaired)
	require.Len(t, f.scheduler.armed, 1)
	assert.Equal(t, live.Code, f.scheduler.armed[0].code)

	sub, err := f.subs.Get(ctx, broken.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionAutoSubmitted, sub.Status)
}
