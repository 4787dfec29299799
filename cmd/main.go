package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"restaurant-agent/handler"
	"restaurant-agent/internal/integrations/connector"
	"restaurant-agent/internal/integrations/luis"
	"restaurant-agent/internal/integrations/paramstore"
	"restaurant-agent/internal/integrations/qna"
	"restaurant-agent/internal/repository"
	"restaurant-agent/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.Default()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	luisAppID := mustEnv("LUIS_APP_ID")
	qnaKBID := mustEnv("QNA_KB_ID")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state store", "err", err)
		os.Exit(1)
	}

	recognizer, err := luis.NewClient(ssmClient, paramPrefix, luisAppID, luisOptions()...)
	if err != nil {
		slog.Error("failed to create intent client", "err", err)
		os.Exit(1)
	}
	knowledge, err := qna.NewClient(ssmClient, paramPrefix, qnaKBID, qnaOptions()...)
	if err != nil {
		slog.Error("failed to create knowledge client", "err", err)
		os.Exit(1)
	}
	messenger, err := connector.NewClient(ssmClient, paramPrefix, connectorOptions()...)
	if err != nil {
		slog.Error("failed to create connector client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	dispatcher, err := usecase.NewTurnService(recognizer, knowledge, store, messenger, logger)
	if err != nil {
		slog.Error("failed to create turn dispatcher", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(dispatcher)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func luisOptions() []luis.Option {
	if base := os.Getenv("LUIS_BASE_URL"); base != "" {
		return []luis.Option{luis.WithBaseURL(base)}
	}
	return nil
}

func qnaOptions() []qna.Option {
	if base := os.Getenv("QNA_BASE_URL"); base != "" {
		return []qna.Option{qna.WithBaseURL(base)}
	}
	return nil
}

func connectorOptions() []connector.Option {
	if base := os.Getenv("CONNECTOR_BASE_URL"); base != "" {
		return []connector.Option{connector.WithBaseURL(base)}
	}
	return nil
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}
