package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"lessonlab/internal/app"
	"lessonlab/internal/config"
	"lessonlab/internal/ratelimit"
	"lessonlab/internal/server"
	"lessonlab/internal/usertoken"
	"lessonlab/internal/util"
	"lessonlab/pkg/ai"
	"lessonlab/pkg/queue"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   time.Duration(cfg.JWTLeewaySeconds) * time.Second,
	})
	if err != nil {
		util.Fatal("failed to init token verifier", "err", err)
	}

	client, err := ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	if err != nil {
		util.Fatal("failed to init model client", "err", err)
	}
	generator := ai.NewGenerator(client, cfg.GenerationModel)
	evaluator := ai.NewEvaluator(client, cfg.GenerationModel)
	reviser := ai.NewReviser(client, cfg.GenerationModel)

	var evalQueue *queue.RedisJobQueue
	var generateLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		evalQueue, err = queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.EvalStream,
			Group:    cfg.EvalGroup,
		})
		if err != nil {
			util.Fatal("failed to init evaluation queue", "err", err)
		}
		generateLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "",
			cfg.GenerateRateLimit, time.Duration(cfg.GenerateRateWindowSeconds)*time.Second,
		)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
	}

	appCfg := app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Generator:   generator,
		Evaluator:   evaluator,
		Reviser:     reviser,
	}
	if evalQueue != nil {
		appCfg.Queue = evalQueue
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	if evalQueue != nil {
		evalQueue.Start(context.Background(), cfg.EvalConcurrency, appCore.ProcessEvaluation)
		slog.Info("evaluation workers started", "stream", cfg.EvalStream, "concurrency", cfg.EvalConcurrency)
	} else {
		slog.Info("no redis configured, evaluations run in-process")
	}

	httpServer := server.New(server.Config{
		App:             appCore,
		TokenVerifier:   tokenVerifier,
		GenerateLimiter: generateLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("lessonlab server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
