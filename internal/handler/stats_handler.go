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

// RoomStats is implemented by service.StatsService.
type RoomStats interface {
	RoomSummary(ctx context.Context, code, userID string, role model.Role) (*service.Summary, error)
	PerQuestionBreakdown(ctx context.Context, code, userID string, role model.Role) ([]service.QuestionStat, error)
}

// StatsHandler serves room analytics.
type StatsHandler struct {
	stats RoomStats
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(stats RoomStats) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// Summary godoc
// GET /api/v1/rooms/:code/stats/summary
// Owners always; students once the analysis is published.
func (h *StatsHandler) Summary(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	summary, err := h.stats.RoomSummary(c.Request.Context(), c.Param("code"), claims.UserID, claims.Role)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

// Questions godoc
// GET /api/v1/rooms/:code/stats/questions
func (h *StatsHandler) Questions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	breakdown, err := h.stats.PerQuestionBreakdown(c.Request.Context(), c.Param("code"), claims.UserID, claims.Role)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": breakdown})
}
