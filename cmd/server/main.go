package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"radiocare-agent/internal/catalog"
	"radiocare-agent/internal/httpapi"
	"radiocare-agent/internal/integrations/gemini"
	"radiocare-agent/internal/integrations/paramstore"
	"radiocare-agent/internal/repository"
	"radiocare-agent/internal/tasks"
	"radiocare-agent/internal/usecase"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv(logger, "STATE_TABLE")
	paramPrefix := mustEnv(logger, "PARAM_PREFIX")
	port := envStr("PORT", "8080")
	contextsPath := envStr("CONTEXTS_PATH", "configs/contexts.yaml")
	geminiModel := os.Getenv("GEMINI_MODEL")
	quickTimeout := envDuration(logger, "GEMINI_QUICK_TIMEOUT", 10*time.Second)
	detailedTimeout := envDuration(logger, "GEMINI_DETAILED_TIMEOUT", 30*time.Second)
	retries := envInt(logger, "GEMINI_RETRIES", 2)
	defaultCoverage := envInt(logger, "DEFAULT_COVERAGE", 500000)
	taskTimeout := envDuration(logger, "TASK_TIMEOUT", 15*time.Second)

	// ---- AWS SDK config ----
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal("failed to load AWS config", zap.Error(err))
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		logger.Fatal("failed to create SSM client", zap.Error(err))
	}
	repo, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable, int64(defaultCoverage))
	if err != nil {
		logger.Fatal("failed to create repository", zap.Error(err))
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey, err = ssmClient.GetParameter(ctx, paramPrefix+"/gemini-api-key")
		if err != nil {
			logger.Fatal("failed to resolve Gemini API key", zap.Error(err))
		}
	}
	oracle, err := gemini.NewClient(ctx, apiKey, geminiModel,
		gemini.WithTimeouts(quickTimeout, detailedTimeout),
		gemini.WithRetries(retries),
	)
	if err != nil {
		logger.Fatal("failed to create Gemini client", zap.Error(err))
	}

	catalogStore := catalog.NewStore(contextsPath)
	if v := catalog.Validate(catalogStore.Load()); !v.Valid {
		logger.Warn("context catalog has validation issues",
			zap.Strings("errors", v.Errors), zap.Int("contextCount", v.Count))
	} else {
		logger.Info("context catalog loaded", zap.Int("contextCount", catalogStore.Load().Len()))
	}

	runner := tasks.NewRunner(logger, taskTimeout)

	engine, err := usecase.NewChatService(catalogStore, oracle, repo, repo, repo, runner, logger)
	if err != nil {
		logger.Fatal("failed to create chat service", zap.Error(err))
	}

	api, err := httpapi.NewServer(engine, repo, logger)
	if err != nil {
		logger.Fatal("failed to create HTTP server", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	// Let in-flight background writes (turns, alerts) land before exit.
	if err := runner.Drain(shutdownCtx); err != nil {
		logger.Warn("background tasks did not drain in time", zap.Error(err))
	}
}

func mustEnv(logger *zap.Logger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		logger.Fatal("required environment variable is not set", zap.String("key", key))
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(logger *zap.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("invalid integer environment variable, using default",
			zap.String("key", key), zap.String("value", v), zap.Int("default", def))
		return def
	}
	return n
}

func envDuration(logger *zap.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("invalid duration environment variable, using default",
			zap.String("key", key), zap.String("value", v), zap.Duration("default", def))
		return def
	}
	return d
}
