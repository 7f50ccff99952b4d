package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"museum-chatbot/handler"
	"museum-chatbot/internal/repository"
	"museum-chatbot/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	historyTable := mustEnv("CONVERSATION_HISTORY_TABLE")
	userTable := mustEnv("USER_TABLE_NAME")
	dateIndex := envString("DATE_INDEX", "date-timestamp-index")
	feedbackIndex := envString("FEEDBACK_INDEX", "feedback-timestamp-index")
	workers := envInt("STATS_WORKERS", 10)
	cacheTTL := time.Duration(envInt("STATS_CACHE_TTL_SECONDS", 60)) * time.Second

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	dynamoClient := awsdynamodb.NewFromConfig(cfg)
	history, err := repository.New(dynamoClient, historyTable,
		repository.WithDateIndex(dateIndex),
		repository.WithFeedbackIndex(feedbackIndex))
	if err != nil {
		slog.Error("failed to create history client", "err", err)
		os.Exit(1)
	}
	userStore, err := repository.NewUserClient(dynamoClient, userTable)
	if err != nil {
		slog.Error("failed to create user client", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	agg, err := usecase.NewAggregator(history, usecase.AggregatorConfig{Workers: workers, CacheTTL: cacheTTL},
		usecase.WithAggregatorLogger(logger))
	if err != nil {
		slog.Error("failed to create aggregator", "err", err)
		os.Exit(1)
	}
	conversations, err := usecase.NewConversations(history, agg, cacheTTL, logger)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}
	feedback, err := usecase.NewFeedbackService(history, logger, time.Now)
	if err != nil {
		slog.Error("failed to create feedback service", "err", err)
		os.Exit(1)
	}
	users, err := usecase.NewUsers(userStore, logger, time.Now)
	if err != nil {
		slog.Error("failed to create user service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewAdminHandler(agg, conversations, feedback, users, logger)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
