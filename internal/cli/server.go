package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
	pgstore "trivia-service/internal/infra/postgres"
	redisinfra "trivia-service/internal/infra/redis"
	transport "trivia-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.ContentLoader = memory.NewStaticContentLoader(sampleTrivias())
	if pool != nil {
		loader = pgstore.NewContentLoader(pool)
	}

	contentTTL := config.Duration(cfg.Trivia.ContentTTL, 10*time.Minute)
	var content app.ContentRepository
	if redisClient != nil {
		content = redisinfra.NewContentRepository(redisClient, loader, contentTTL)
	} else {
		content = memory.NewContentCache(loader, contentTTL)
	}

	var attempts app.AttemptRepository
	if pool != nil {
		attempts = pgstore.NewAttemptStore(pool)
	} else {
		attempts = memory.NewAttemptStore()
	}

	timeLimit := config.Duration(cfg.Trivia.TimeLimit, app.DefaultTimeLimit)

	// The sweeper schedule lives in Redis when available so deadlines
	// survive restarts; otherwise in-process timers plus the boot-time
	// recovery sweep cover it.
	var service *app.AttemptService
	if redisClient != nil {
		queue := redisinfra.NewExpiryQueue(redisClient, time.Second)
		service = app.NewAttemptService(content, attempts, queue, timeLimit)
		queue.Start(service.ExpireAttempt)
		defer queue.Stop()
	} else {
		sched := memory.NewScheduler()
		service = app.NewAttemptService(content, attempts, sched, timeLimit)
		sched.SetHandler(service.ExpireAttempt)
		defer sched.Stop()
	}

	if err := service.RecoverExpiry(ctx); err != nil {
		log.Printf("recover expiry sweeps: %v", err)
	}

	handler := transport.NewHandler(service)
	wsHandler := transport.NewRankingWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws/ranking", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting trivia service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTrivias provides minimal demo content; with Postgres configured the
// loader reads real content instead.
func sampleTrivias() map[string]domain.Trivia {
	return map[string]domain.Trivia{
		"trivia-1": {
			ID:          "trivia-1",
			Title:       "General knowledge",
			Description: "A short warm-up trivia",
			Questions: []domain.Question{
				domain.NewQuestion("q1", "What is 2 + 2?", domain.DifficultyEasy, []domain.Answer{
					{ID: "a1", QuestionID: "q1", Text: "3", Correct: false},
					{ID: "a2", QuestionID: "q1", Text: "4", Correct: true},
					{ID: "a3", QuestionID: "q1", Text: "5", Correct: false},
				}),
				domain.NewQuestion("q2", "Which planet is known as the red planet?", domain.DifficultyMedium, []domain.Answer{
					{ID: "a4", QuestionID: "q2", Text: "Venus", Correct: false},
					{ID: "a5", QuestionID: "q2", Text: "Mars", Correct: true},
				}),
			},
			Users: []domain.User{
				{ID: "u1", Name: "Alice"},
				{ID: "u2", Name: "Bob"},
			},
		},
	}
}
