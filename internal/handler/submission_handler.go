package handler

import (
	"context"
	"net/http"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/middleware"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/response"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

// SubmissionReader is implemented by service.SubmissionService.
type SubmissionReader interface {
	GetPaper(ctx context.Context, code string) (*model.ExamPaper, error)
	ListByRoom(ctx context.Context, code, teacherID string) ([]model.SubmissionView, error)
	GetOwn(ctx context.Context, code, studentID string) (*service.SubmissionReview, error)
}

// SubmissionHandler serves papers and submission results.
type SubmissionHandler struct {
	subs SubmissionReader
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(subs SubmissionReader) *SubmissionHandler {
	return &SubmissionHandler{subs: subs}
}

// GetPaper godoc
// GET /api/v1/rooms/:code/paper
// Returns the questions without answer keys while the exam is running.
func (h *SubmissionHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	paper, err := h.subs.GetPaper(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// ListSubmissions godoc
// GET /api/v1/rooms/:code/submissions
// Lists every attempt in the room. Owner only.
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	subs, err := h.subs.ListByRoom(c.Request.Context(), c.Param("code"), claims.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": subs})
}

// MySubmission godoc
// GET /api/v1/rooms/:code/submissions/me
// Returns the student's own result, with answers when the room allows review.
func (h *SubmissionHandler) MySubmission(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	review, err := h.subs.GetOwn(c.Request.Context(), c.Param("code"), claims.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": review})
}
