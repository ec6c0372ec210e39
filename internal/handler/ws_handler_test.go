package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/presence"
	ws "github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	detached chan string
	started  chan string
}

func newFakeHub() *fakeHub {
	return &fakeHub{detached: make(chan string, 4), started: make(chan string, 4)}
}

func (f *fakeHub) Join(_ context.Context, c *presence.Client, req presence.JoinRequest) (*ws.JoinedRoomData, error) {
	if req.RoomCode == "FULL00" {
		return nil, apperror.RoomFull("room %s is full", req.RoomCode)
	}
	return &ws.JoinedRoomData{
		Room:         ws.RoomData{RoomCode: req.RoomCode, Status: model.RoomStatusWaiting},
		Participants: []ws.ParticipantData{{UserID: c.UserID, Role: c.Role}},
	}, nil
}

func (f *fakeHub) Leave(context.Context, *presence.Client) error { return nil }

func (f *fakeHub) Detach(c *presence.Client) { f.detached <- c.UserID }

func (f *fakeHub) StartExam(_ context.Context, code, teacherID string) (*model.Room, error) {
	f.started <- code + ":" + teacherID
	return &model.Room{Code: code, Status: model.RoomStatusRunning}, nil
}

func (f *fakeHub) EndExam(_ context.Context, code, _ string) (*model.Room, error) {
	return &model.Room{Code: code, Status: model.RoomStatusEnded}, nil
}

func (f *fakeHub) BeginAttempt(context.Context, *presence.Client, string) (*model.Submission, error) {
	return &model.Submission{ID: uuid.New(), StartedAt: time.Now()}, nil
}

func (f *fakeHub) SaveAnswer(context.Context, *presence.Client, string, string, model.Answer) error {
	return nil
}

func (f *fakeHub) Submit(_ context.Context, _ *presence.Client, _ string, answers []model.AnswerInput) (*model.Submission, error) {
	return &model.Submission{ID: uuid.New(), Status: model.SubmissionSubmitted,
		Score: float64(len(answers)), TotalPoints: 10}, nil
}

func (f *fakeHub) ReportViolation(context.Context, *presence.Client, string, model.ViolationType) error {
	return nil
}

type wsFrame struct {
	Event ws.Event        `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialAs(t *testing.T, hub RoomHub, userID string, role model.Role) *websocket.Conn {
	t.Helper()
	r := gin.New()
	r.GET("/ws", as(userID, role), NewWSHandler(hub, zerolog.Nop(), nil).RoomSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, action ws.Action, payload interface{}) wsFrame {
	t.Helper()
	msg := map[string]interface{}{"action": action}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(msg))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func errorCode(t *testing.T, f wsFrame) string {
	t.Helper()
	require.Equal(t, ws.EventError, f.Event)
	var data ws.ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	return data.Code
}

func TestRoomSocket_StudentFlow(t *testing.T) {
	hub := newFakeHub()
	conn := dialAs(t, hub, "student-1", model.RoleStudent)

	assert.Equal(t, ws.EventPong, roundTrip(t, conn, ws.ActionPing, nil).Event)

	f := roundTrip(t, conn, ws.ActionJoinRoom, ws.JoinRoomRequest{RoomCode: "ABC123"})
	require.Equal(t, ws.EventJoinedRoom, f.Event)
	var joined ws.JoinedRoomData
	require.NoError(t, json.Unmarshal(f.Data, &joined))
	assert.Equal(t, "ABC123", joined.Room.RoomCode)

	assert.Equal(t, "ROOM_FULL", errorCode(t, roundTrip(t, conn, ws.ActionJoinRoom, ws.JoinRoomRequest{RoomCode: "FULL00"})))
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, roundTrip(t, conn, ws.ActionJoinRoom, nil)))

	assert.Equal(t, ws.EventAttemptStarted, roundTrip(t, conn, ws.ActionStartAttempt, nil).Event)

	f = roundTrip(t, conn, ws.ActionAutosave, ws.AutosaveRequest{QuestionID: "q1", Answer: model.ChoiceAnswer(2)})
	assert.Equal(t, ws.EventSaved, f.Event)

	forged := ws.SubmitExamRequest{RoomCode: "ABC123", StudentID: "student-2"}
	assert.Equal(t, "FORBIDDEN", errorCode(t, roundTrip(t, conn, ws.ActionSubmitExam, forged)))

	f = roundTrip(t, conn, ws.ActionSubmitExam, ws.SubmitExamRequest{
		RoomCode: "ABC123",
		Answers:  []ws.SubmitAnswer{{QuestionID: "q1", Answer: model.ChoiceAnswer(2)}, {QuestionID: "q2", Answer: model.ChoiceAnswer(0)}},
	})
	require.Equal(t, ws.EventSubmitted, f.Event)
	var submitted ws.SubmittedData
	require.NoError(t, json.Unmarshal(f.Data, &submitted))
	assert.Equal(t, 20, submitted.Percentage)

	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, roundTrip(t, conn, "teleport", nil)))

	require.NoError(t, conn.Close())
	select {
	case id := <-hub.detached:
		assert.Equal(t, "student-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not detached from the hub")
	}
}

func TestRoomSocket_StartExamUsesTokenIdentity(t *testing.T) {
	hub := newFakeHub()
	conn := dialAs(t, hub, "teacher-1", model.RoleTeacher)

	forged := ws.StartExamRequest{RoomCode: "ABC123", TeacherID: "teacher-2"}
	assert.Equal(t, "FORBIDDEN", errorCode(t, roundTrip(t, conn, ws.ActionStartExam, forged)))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":  ws.ActionStartExam,
		"payload": ws.StartExamRequest{RoomCode: "ABC123"},
	}))
	select {
	case got := <-hub.started:
		assert.Equal(t, "ABC123:teacher-1", got)
	case <-time.After(2 * time.Second):
		t.Fatal("start-exam did not reach the hub")
	}
}
