package main

import (
	"context"
	"log/slog"
	"os"
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

	userTable := mustEnv("USER_TABLE_NAME")

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	store, err := repository.NewUserClient(awsdynamodb.NewFromConfig(cfg), userTable)
	if err != nil {
		slog.Error("failed to create user client", "err", err)
		os.Exit(1)
	}
	users, err := usecase.NewUsers(store, logger, time.Now)
	if err != nil {
		slog.Error("failed to create user service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewUsersHandler(users, logger)
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
