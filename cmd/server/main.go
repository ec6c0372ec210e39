package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/database"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/handler"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/logger"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/middleware"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/presence"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/repository"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/router"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/service"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/validator"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/watchdog"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/worker"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting exam rooms backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	roomRepo := repository.NewRoomRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	quizRepo := repository.NewCachedQuizRepository(repository.NewQuizRepository(pool), rdb, cfg.QuizCacheTTL, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	statsService := service.NewStatsService(roomRepo, submissionRepo, quizRepo, rdb, cfg.StatsCacheTTL, cfg.PassThreshold, log)
	violationQueue := worker.NewViolationQueue(rdb)
	submissionService := service.NewSubmissionService(roomRepo, submissionRepo, quizRepo, violationQueue, statsService, cfg.SubmitGrace, log)
	wd := watchdog.New(rdb, cfg.WatchdogPollInterval, log)
	roomService := service.NewRoomService(roomRepo, quizRepo, wd, submissionService, cfg.SubmitGrace, cfg.MaxDurationMinutes, log)

	// ─── Initialize Presence Hub ──────────────────────────────────────
	hub := presence.NewHub(roomService, submissionService, presence.NewRedisPublisher(rdb), presence.Options{
		MailboxTimeout: cfg.MailboxTimeout,
		PresenceTTL:    cfg.PresenceTTL,
		SweepInterval:  cfg.PresenceSweepInterval,
		IdleTimeout:    cfg.RoomIdleTimeout,
	}, log)
	defer hub.Close()

	// ─── Initialize Handlers ──────────────────────────────────────────
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(),
		Room:        handler.NewRoomHandler(roomService, hub),
		Submission:  handler.NewSubmissionHandler(submissionService),
		Stats:       handler.NewStatsHandler(statsService),
		Monitor:     handler.NewMonitorHandler(rdb, roomService, hub, log),
		WS:          handler.NewWSHandler(hub, log, cfg.AllowedOrigins),
		System:      handler.NewSystemHandler(pool, rdb, hub, log),
		RateLimiter: rateLimiter,
	}

	// ─── Start Watchdog & Reconcile ───────────────────────────────────
	// Deadlines persisted by a previous process fire before traffic arrives.
	if err := wd.Start(ctx, hub.ExpireRoom); err != nil {
		log.Fatal().Err(err).Msg("Failed to start watchdog")
	}
	if report, err := roomService.Reconcile(ctx); err != nil {
		log.Warn().Err(err).Msg("Boot reconcile failed")
	} else {
		log.Info().Interface("report", report).Msg("Boot reconcile finished")
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workers, workerCtx := errgroup.WithContext(workerCtx)

	violationWorker := worker.NewViolationWorker(violationRepo, rdb, log)
	workers.Go(func() error {
		violationWorker.Start(workerCtx)
		return nil
	})
	workers.Go(func() error {
		rateLimiter.Run(workerCtx)
		return nil
	})
	workers.Go(func() error {
		runReconcile(workerCtx, roomService, cfg.ReconcileInterval, log)
		return nil
	})

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked WebSocket
	// connections are closed by the hub below.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close every room actor and its connections, then stop the watchdog.
	hub.Close()
	cancel()

	// 3. Stop background workers; the violation worker flushes its last batch.
	workerCancel()
	if err := workers.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// runReconcile repairs missed deadlines and unfinished force-submits.
func runReconcile(ctx context.Context, rooms *service.RoomService, every time.Duration, log zerolog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := rooms.Reconcile(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Reconcile failed")
				continue
			}
			if report != (service.ReconcileReport{}) {
				log.Info().Interface("report", report).Msg("Reconcile repaired rooms")
			}
		}
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
