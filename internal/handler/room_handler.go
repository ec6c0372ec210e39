package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/middleware"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/response"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/service"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/validator"
	"github.com/gin-gonic/gin"
)

// RoomManager is implemented by service.RoomService.
type RoomManager interface {
	CreateRoom(ctx context.Context, in service.CreateRoomInput) (*model.Room, error)
	GetRoom(ctx context.Context, code string) (*model.Room, error)
	ListTeacherRooms(ctx context.Context, teacherID string, page, perPage int) ([]model.Room, *response.Pagination, error)
	TogglePublish(ctx context.Context, code, teacherID string, publish bool) (*model.Room, error)
	DeleteRoom(ctx context.Context, code, teacherID string) error
}

// LiveRooms is the part of presence.Hub that REST reaches into, so that
// transitions made over HTTP are broadcast to connected clients.
type LiveRooms interface {
	StartExam(ctx context.Context, code, teacherID string) (*model.Room, error)
	EndExam(ctx context.Context, code, teacherID string) (*model.Room, error)
	Roster(ctx context.Context, code string) (model.RosterSnapshot, error)
}

// RoomHandler handles room management endpoints.
type RoomHandler struct {
	rooms RoomManager
	live  LiveRooms
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(rooms RoomManager, live LiveRooms) *RoomHandler {
	return &RoomHandler{rooms: rooms, live: live}
}

// CreateRoom godoc
// POST /api/v1/rooms
// Creates a waiting room for one of the teacher's quizzes.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateRoomRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), service.CreateRoomInput{
		TeacherID:       claims.UserID,
		QuizID:          req.ExamQuizID,
		DurationMinutes: req.Duration,
		MaxStudents:     req.MaxStudents,
		Settings:        req.Settings,
		Metadata:        req.Metadata,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"room": room})
}

// ListRooms godoc
// GET /api/v1/rooms
// Lists the teacher's rooms, newest first.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	rooms, pagination, err := h.rooms.ListTeacherRooms(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"rooms": rooms}, pagination)
}

// GetRoom godoc
// GET /api/v1/rooms/:code
// The owner gets the full room; everyone else gets the client snapshot.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	if room.IsOwner(claims.UserID) {
		response.Success(c, http.StatusOK, gin.H{"room": room})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"room": room.Snapshot(time.Now())})
}

// DeleteRoom godoc
// DELETE /api/v1/rooms/:code
// Only waiting rooms can be deleted.
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.rooms.DeleteRoom(c.Request.Context(), c.Param("code"), claims.UserID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Room deleted"})
}

// TogglePublish godoc
// POST /api/v1/rooms/:code/publish
func (h *RoomHandler) TogglePublish(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.PublishRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	room, err := h.rooms.TogglePublish(c.Request.Context(), c.Param("code"), claims.UserID, *req.Publish)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"room": room})
}

// StartExam godoc
// POST /api/v1/rooms/:code/start
func (h *RoomHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	room, err := h.live.StartExam(c.Request.Context(), c.Param("code"), claims.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"room": room})
}

// EndExam godoc
// POST /api/v1/rooms/:code/end
// Ending an already ended room succeeds without side effects.
func (h *RoomHandler) EndExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	room, err := h.live.EndExam(c.Request.Context(), c.Param("code"), claims.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"room": room})
}

// Participants godoc
// GET /api/v1/rooms/:code/participants
// The live roster, owner only.
func (h *RoomHandler) Participants(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !room.IsOwner(claims.UserID) {
		response.FromError(c, apperror.Forbidden("only the room owner can view participants"))
		return
	}

	roster, err := h.live.Roster(c.Request.Context(), room.Code)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, roster)
}
