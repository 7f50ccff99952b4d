package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsbedrock "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"museum-chatbot/handler"
	"museum-chatbot/internal/integrations/bedrock"
	"museum-chatbot/internal/integrations/paramstore"
	"museum-chatbot/internal/observability"
	"museum-chatbot/internal/repository"
	"museum-chatbot/internal/usecase"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	historyTable := mustEnv("CONVERSATION_HISTORY_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	port := envString("PORT", "8080")
	maxRetries := envInt("MAX_RETRIES", 3)
	maxQuestionLen := envInt("MAX_QUESTION_LENGTH", 2000)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Generation settings ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	params, err := ssmClient.LoadPath(ctx, paramPrefix)
	if err != nil {
		slog.Error("failed to load parameters", "prefix", paramPrefix, "err", err)
		os.Exit(1)
	}
	settings := paramstore.Settings(params)
	knowledgeBaseID, err := settings.Require("knowledge_base_id")
	if err != nil {
		slog.Error("missing generation setting", "err", err)
		os.Exit(1)
	}
	modelARN := settings.String("model_arn", bedrock.DefaultModelARN)

	// ---- Clients ----
	generator, err := bedrock.NewClient(awsbedrock.NewFromConfig(cfg), knowledgeBaseID, modelARN)
	if err != nil {
		slog.Error("failed to create generation client", "err", err)
		os.Exit(1)
	}
	history, err := repository.New(awsdynamodb.NewFromConfig(cfg), historyTable)
	if err != nil {
		slog.Error("failed to create history client", "err", err)
		os.Exit(1)
	}

	// ---- Relay + server ----
	metrics := observability.NewMetrics("museum_chat")
	relay, err := usecase.NewRelay(generator, history, usecase.RelayConfig{
		MaxRetries:     maxRetries,
		MaxQuestionLen: maxQuestionLen,
		ModelID:        modelARN,
		Citations: usecase.CitationPolicy{
			PublicPrefix: settings.String("public_prefix", "public/"),
			Region:       settings.String("public_bucket_region", cfg.Region),
		},
	}, usecase.WithRelayLogger(logger), usecase.WithRelayMetrics(metrics))
	if err != nil {
		slog.Error("failed to create relay", "err", err)
		os.Exit(1)
	}

	chat, err := handler.NewChatServer(relay, knowledgeBaseID, metrics, logger)
	if err != nil {
		slog.Error("failed to create chat server", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           chat.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := handler.ListenAndServe(ctx, srv, 15*time.Second, logger); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
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
