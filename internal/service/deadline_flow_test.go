package service_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/presence"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/service"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/watchdog"
)

func TestDeadline_EndsRoomAndAutoSubmitsThroughHub(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// A one minute room whose deadline, grace included, is this far away.
	const untilDeadline = 500 * time.Millisecond
	wd := watchdog.New(rdb, 20*time.Millisecond, zerolog.Nop())
	f := service.NewFlowFixture(wd, time.Minute+service.TestGrace-untilDeadline)
	hub := presence.NewHub(f.Rooms, f.Submissions, nil, presence.Options{}, zerolog.Nop())
	t.Cleanup(hub.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, wd.Start(ctx, hub.ExpireRoom))

	room, err := f.Rooms.CreateRoom(ctx, service.CreateRoomInput{TeacherID: "teacher-1", QuizID: "quiz-1", DurationMinutes: 1})
	require.NoError(t, err)

	teacher := presence.NewClient("teacher-1", "T", model.RoleTeacher, 0)
	drafting := presence.NewClient("student-1", "A", model.RoleStudent, 0)
	idle := presence.NewClient("student-2", "B", model.RoleStudent, 0)
	for _, c := range []*presence.Client{teacher, drafting, idle} {
		_, err := hub.Join(ctx, c, presence.JoinRequest{RoomCode: room.Code})
		require.NoError(t, err)
	}

	_, err = hub.StartExam(ctx, room.Code, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, 1, wd.Pending())

	for _, c := range []*presence.Client{drafting, idle} {
		_, err := hub.BeginAttempt(ctx, c, room.Code)
		require.NoError(t, err)
	}
	require.NoError(t, hub.SaveAnswer(ctx, drafting, room.Code, "q1", model.ChoiceAnswer(1)))

	require.Eventually(t, func() bool {
		for _, id := range []string{"student-1", "student-2"} {
			sub, err := f.Submission(room.ID, id)
			if err != nil || sub.Status != model.SubmissionAutoSubmitted {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	ended, err := f.Rooms.GetRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusEnded, ended.Status)

	sub, err := f.Submission(room.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionAutoSubmitted, sub.Status)
	assert.Equal(t, 4.0, sub.Score)
	assert.Equal(t, 10.0, sub.TotalPoints)

	assert.True(t, sawEvent(drafting, "exam-ended"), "students are told the exam ended")
	require.Eventually(t, func() bool {
		return wd.Pending() == 0 && !mr.Exists(config.CacheKey.WatchdogDeadlinesKey())
	}, 2*time.Second, 20*time.Millisecond)
}

func sawEvent(c *presence.Client, event string) bool {
	needle := []byte(`"event":"` + event + `"`)
	for {
		select {
		case frame := <-c.Outbound():
			if bytes.Contains(frame, needle) {
				return true
			}
		default:
			return false
		}
	}
}
