package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/middleware"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/response"
	ws "github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second // a busy room actor must not stall the stream
)

// MonitorHandler streams a room's live events to its owner over SSE. Events
// come from Redis Pub/Sub, so the owner sees rooms served by any instance.
type MonitorHandler struct {
	rdb   redis.UniversalClient
	rooms RoomManager
	live  LiveRooms
	log   zerolog.Logger
}

func NewMonitorHandler(rdb redis.UniversalClient, rooms RoomManager, live LiveRooms, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:   rdb,
		rooms: rooms,
		live:  live,
		log:   log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorRoomSSE godoc
// GET /api/v1/rooms/:code/monitor
func (h *MonitorHandler) MonitorRoomSSE(c *gin.Context) {
	// 1. Auth check
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reqCtx := c.Request.Context()
	room, err := h.rooms.GetRoom(reqCtx, c.Param("code"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !room.IsOwner(claims.UserID) {
		response.FromError(c, apperror.Forbidden("only the room owner can monitor room %s", room.Code))
		return
	}

	// 2. Subscribe before the snapshot so no event falls in between
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.RoomMonitorChannel(room.Code))
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Str("room_code", room.Code).Msg("Monitor subscribe failed")
		response.FromError(c, apperror.ServiceUnavailable(err, "live monitor is unavailable"))
		return
	}
	ch := pubsub.Channel()

	// 3. SSE headers
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	// 4. Initial snapshot
	h.sendSnapshot(c, reqCtx, room.Code)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("room_code", room.Code).Str("teacher_id", claims.UserID).Msg("Teacher attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("room_code", room.Code).Msg("Teacher disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already encoded frames
			fmt.Fprintf(c.Writer, "data: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, code string) {
	ctx, cancel := context.WithTimeout(parent, snapshotTimeout)
	defer cancel()

	roster, err := h.live.Roster(ctx, code)
	if err != nil {
		h.log.Warn().Err(err).Str("room_code", code).Msg("Failed to build monitor snapshot")
		return
	}
	c.SSEvent("snapshot", ws.NewRoomUpdate(roster))
	c.Writer.Flush()
}
