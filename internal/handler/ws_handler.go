package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/metrics"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/middleware"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/presence"
	ws "github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// actionTimeout bounds the work done for a single inbound frame.
const actionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// RoomHub is implemented by presence.Hub.
type RoomHub interface {
	Join(ctx context.Context, c *presence.Client, req presence.JoinRequest) (*ws.JoinedRoomData, error)
	Leave(ctx context.Context, c *presence.Client) error
	Detach(c *presence.Client)
	StartExam(ctx context.Context, code, teacherID string) (*model.Room, error)
	EndExam(ctx context.Context, code, teacherID string) (*model.Room, error)
	BeginAttempt(ctx context.Context, c *presence.Client, code string) (*model.Submission, error)
	SaveAnswer(ctx context.Context, c *presence.Client, code, questionID string, answer model.Answer) error
	Submit(ctx context.Context, c *presence.Client, code string, answers []model.AnswerInput) (*model.Submission, error)
	ReportViolation(ctx context.Context, c *presence.Client, code string, t model.ViolationType) error
}

// WSHandler serves the room WebSocket.
type WSHandler struct {
	hub      RoomHub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub RoomHub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// RoomSocket godoc
// WS /ws/v1/rooms?token=JWT
// One connection joins at most one room; every room operation is an action frame.
func (h *WSHandler) RoomSocket(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	client := presence.NewClient(claims.UserID, claims.Name, claims.Role, presence.DefaultSendBuffer)
	wsLog := h.log.With().
		Str("user_id", client.UserID).
		Str("role", string(client.Role)).
		Str("conn_id", client.ID).
		Logger()

	metrics.Connections.Inc()
	defer metrics.Connections.Dec()
	wsLog.Info().Msg("Client connected")

	conn.SetReadLimit(ws.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		client.Touch(time.Now())
		return conn.SetReadDeadline(time.Now().Add(ws.PongWait))
	})

	writerDone := make(chan struct{})
	go h.writePump(conn, client, writerDone)

	defer func() {
		h.hub.Detach(client)
		client.Close()
		<-writerDone
	}()

	ctx := c.Request.Context()
	for {
		var env ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		client.Touch(time.Now())

		actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
		reply := h.dispatch(actionCtx, client, &env)
		cancel()

		if reply != nil && !client.Send(reply) {
			wsLog.Warn().Str("action", string(env.Action)).Msg("Outbound queue full, reply dropped")
		}
	}
}

// writePump is the only goroutine that writes to conn.
func (h *WSHandler) writePump(conn *websocket.Conn, client *presence.Client, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(ws.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-client.Outbound():
			if err := ws.WriteRaw(conn, frame); err != nil {
				client.Close()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ws.WriteWait)); err != nil {
				client.Close()
				_ = conn.Close()
				return
			}
		case <-client.Closed():
			// Drain what was already queued, e.g. exam-ended before an eviction.
			for {
				select {
				case frame := <-client.Outbound():
					if ws.WriteRaw(conn, frame) != nil {
						_ = conn.Close()
						return
					}
				default:
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(ws.WriteWait))
					_ = conn.Close()
					return
				}
			}
		}
	}
}

func roomOf(client *presence.Client, code string) string {
	if code != "" {
		return code
	}
	return client.RoomCode()
}

func encode(event ws.Event, data interface{}) []byte {
	b, err := ws.Encode(event, data)
	if err != nil {
		return ws.ErrorFrame(err)
	}
	return b
}

func submittedData(sub *model.Submission) ws.SubmittedData {
	return ws.SubmittedData{
		SubmissionID: sub.ID.String(),
		Status:       sub.Status,
		Score:        sub.Score,
		TotalPoints:  sub.TotalPoints,
		Percentage:   sub.Percentage(),
		TimeSpent:    int(sub.TimeSpent() / time.Second),
	}
}

// dispatch runs one action and returns the direct reply, if any. Broadcasts
// reach the client through the room actor.
func (h *WSHandler) dispatch(ctx context.Context, client *presence.Client, env *ws.RequestEnvelope) []byte {
	reply, err := h.handle(ctx, client, env)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			h.log.Error().Err(err).Str("action", string(env.Action)).Str("user_id", client.UserID).Msg("Action failed")
		}
		return ws.ErrorFrame(err)
	}
	return reply
}

func (h *WSHandler) handle(ctx context.Context, client *presence.Client, env *ws.RequestEnvelope) ([]byte, error) {
	switch env.Action {
	case ws.ActionPing:
		return encode(ws.EventPong, nil), nil

	case ws.ActionJoinRoom:
		var req ws.JoinRoomRequest
		if err := ws.DecodePayload(env, &req); err != nil {
			return nil, err
		}
		if req.RoomCode == "" {
			return nil, apperror.Validation("roomCode is required")
		}
		joined, err := h.hub.Join(ctx, client, presence.JoinRequest{
			RoomCode: req.RoomCode,
			UserID:   req.UserID,
			UserName: req.UserName,
			Role:     req.Role,
		})
		if err != nil {
			return nil, err
		}
		return encode(ws.EventJoinedRoom, joined), nil

	case ws.ActionLeave:
		code := client.RoomCode()
		if err := h.hub.Leave(ctx, client); err != nil {
			return nil, err
		}
		return encode(ws.EventLeft, ws.RoomRequest{RoomCode: code}), nil

	case ws.ActionStartExam:
		var req ws.StartExamRequest
		if err := ws.DecodePayload(env, &req); err != nil {
			return nil, err
		}
		if req.TeacherID != "" && req.TeacherID != client.UserID {
			return nil, apperror.Forbidden("teacher id does not match the token")
		}
		_, err := h.hub.StartExam(ctx, roomOf(client, req.RoomCode), client.UserID)
		return nil, err

	case ws.ActionEndExam:
		var req ws.RoomRequest
		if err := ws.DecodeOptionalPayload(env, &req); err != nil {
			return nil, err
		}
		_, err := h.hub.EndExam(ctx, roomOf(client, req.RoomCode), client.UserID)
		return nil, err

	case ws.ActionStartAttempt:
		var req ws.RoomRequest
		if err := ws.DecodeOptionalPayload(env, &req); err != nil {
			return nil, err
		}
		sub, err := h.hub.BeginAttempt(ctx, client, roomOf(client, req.RoomCode))
		if err != nil {
			return nil, err
		}
		return encode(ws.EventAttemptStarted, ws.AttemptStartedData{
			SubmissionID: sub.ID.String(),
			StartedAt:    sub.StartedAt,
		}), nil

	case ws.ActionAutosave:
		var req ws.AutosaveRequest
		if err := ws.DecodePayload(env, &req); err != nil {
			return nil, err
		}
		if req.QuestionID == "" {
			return nil, apperror.Validation("questionId is required")
		}
		if err := h.hub.SaveAnswer(ctx, client, roomOf(client, req.RoomCode), req.QuestionID, req.Answer); err != nil {
			return nil, err
		}
		return encode(ws.EventSaved, ws.SavedData{QuestionID: req.QuestionID}), nil

	case ws.ActionSubmitExam:
		var req ws.SubmitExamRequest
		if err := ws.DecodePayload(env, &req); err != nil {
			return nil, err
		}
		if req.StudentID != "" && req.StudentID != client.UserID {
			return nil, apperror.Forbidden("student id does not match the token")
		}
		sub, err := h.hub.Submit(ctx, client, roomOf(client, req.RoomCode), req.Inputs())
		if err != nil {
			return nil, err
		}
		return encode(ws.EventSubmitted, submittedData(sub)), nil

	case ws.ActionReportViolation:
		var req ws.ReportViolationRequest
		if err := ws.DecodePayload(env, &req); err != nil {
			return nil, err
		}
		if req.StudentID != "" && req.StudentID != client.UserID {
			return nil, apperror.Forbidden("student id does not match the token")
		}
		return nil, h.hub.ReportViolation(ctx, client, roomOf(client, req.RoomCode), req.Type)

	default:
		return nil, apperror.Validation("unknown action: %s", env.Action)
	}
}
