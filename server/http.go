package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"transcribe-worker/config"
	"transcribe-worker/constant"
	"transcribe-worker/dto"
	"transcribe-worker/handler"
	"transcribe-worker/hub"
	"transcribe-worker/pkg/rabbitmq"
	"transcribe-worker/provider"
	"transcribe-worker/repository"
	"transcribe-worker/service"
	"transcribe-worker/summary"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := zerolog.Ctx(ctx)
	log.Info().Str("env", cfg.App.Environment).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		log.Error().Err(err).Msg("NewRabbitMQConn")
	}

	repo := repository.NewRepo(cfg.DB)
	speech := provider.NewClient(cfg.Provider)

	var summarizer summary.Generator
	if cfg.Summary.BaseURL != "" {
		summarizer = summary.NewClient(cfg.Summary)
	}

	poller := service.NewPoller(repo, speech, summarizer, cfg)
	manager := service.NewJobManager(repo, poller, cfg.Poll.Interval, *log)
	eventHub := hub.New(*log)

	manager.OnJobEvent(func(event dto.JobEvent) {
		eventHub.Broadcast(event)
	})
	manager.OnJobEvent(func(event dto.JobEvent) {
		log.Info().
			Str("job_id", event.JobId.String()).
			Str("status", event.Status.String()).
			Str("previous_status", event.PreviousStatus.String()).
			Msg("job status changed")
	})
	defer manager.Stop()

	if err := manager.Start(ctx); err != nil {
		log.Error().Err(err).Msg("failed to recover active jobs")
	}

	transcribeService := service.NewService(repo, speech, manager, cfg.Storage, cfg)
	serviceDeps := handler.ServiceDependencies{
		TranscribeService: transcribeService,
	}

	if conn != nil {
		transcribeConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, handler.TranscribeHandler)
		go func() {
			if err := transcribeConsumer.Consume(ctx, serviceDeps); err != nil {
				log.Error().Err(err).Msg("transcribe consumer error")
			}
		}()
	}

	go runHeartbeat(ctx, eventHub, cfg.Server.HeartbeatInterval)

	r := gin.Default()
	addHealth(r)
	addJobRoutes(r, repo, poller)
	addObserverRoute(r, eventHub, *log)

	httpServer := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	log.Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func runHeartbeat(ctx context.Context, eventHub *hub.Hub, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			eventHub.Heartbeat()
		case <-ctx.Done():
			return
		}
	}
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func addJobRoutes(r *gin.Engine, repo repository.Repository, poller service.Poller) {
	r.GET("/jobs/:id", func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}
		job, err := repo.FindJobById(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusOK, job)
	})

	// Synchronous "poll now": bypasses the scheduler. Provider failures
	// surface to the caller instead of being absorbed for retry.
	r.POST("/jobs/:id/poll", func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}
		job, err := repo.FindJobById(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		result, err := poller.PollJob(c.Request.Context(), job)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"job":            result.Job,
			"changed":        result.Changed,
			"previousStatus": result.PreviousStatus,
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
