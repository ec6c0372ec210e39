package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const healthTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ActiveRoomCounter is satisfied by *presence.Hub.
type ActiveRoomCounter interface {
	ActiveRooms() int
}

// SystemHandler reports liveness of the process and its dependencies.
type SystemHandler struct {
	db        Pinger
	rdb       redis.Cmdable
	hub       ActiveRoomCounter
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(db Pinger, rdb redis.Cmdable, hub ActiveRoomCounter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		hub:       hub,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthStatus struct {
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	Checks      map[string]string `json:"checks"`
	ActiveRooms int               `json:"active_rooms"`
	Goroutines  int               `json:"goroutines"`
	HeapAlloc   uint64            `json:"heap_alloc"`
	GoVersion   string            `json:"go_version"`

	// Worker Queues
	QueueViolations int64 `json:"queue_violations"`
}

// Health godoc
// GET /health
// 200 when Postgres and Redis answer, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	st := healthStatus{
		Status:      "ok",
		Uptime:      formatDuration(time.Since(h.startTime)),
		Checks:      map[string]string{"postgres": "ok", "redis": "ok"},
		ActiveRooms: h.hub.ActiveRooms(),
		Goroutines:  runtime.NumGoroutine(),
		GoVersion:   runtime.Version(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	st.HeapAlloc = ms.HeapAlloc

	if err := h.db.Ping(ctx); err != nil {
		st.Status = "degraded"
		st.Checks["postgres"] = err.Error()
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		st.Status = "degraded"
		st.Checks["redis"] = err.Error()
	} else if n, err := h.rdb.LLen(ctx, config.WorkerKey.PersistViolationsQueue).Result(); err == nil {
		st.QueueViolations = n
	}

	if st.Status != "ok" {
		h.log.Warn().Interface("checks", st.Checks).Msg("Health check failed")
		c.JSON(http.StatusServiceUnavailable, st)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
