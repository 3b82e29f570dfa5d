package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/avenika/study-helper/internal/auth"
	"github.com/avenika/study-helper/internal/chat"
	"github.com/avenika/study-helper/internal/classifier"
	"github.com/avenika/study-helper/internal/embedding"
	"github.com/avenika/study-helper/internal/learning"
	"github.com/avenika/study-helper/internal/server"
	"github.com/avenika/study-helper/internal/storage"
	"github.com/avenika/study-helper/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}
	if cfg.Log.Development {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// One OpenAI client backs the tutor, the summarizer, the classifier and
	// the embedder.
	client := openai.NewClient(cfg.OpenAI.APIKey)

	var clf learning.Classifier
	if cfg.Classifier.UseLLM {
		clf = classifier.NewLLMClassifier(
			client,
			cfg.Classifier.Model,
			cfg.Classifier.MaxTokens,
			cfg.Classifier.Temperature,
			logger,
		)
	} else {
		logger.Info("Using keyword classifier")
		clf = classifier.NewKeywordClassifier()
	}

	embedder := embedding.NewOpenAIEmbedder(client, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDimensions)

	// Learning pipeline
	registry := prometheus.NewRegistry()
	var extractor learning.SignalExtractor
	if cfg.Learning.ExtractSignals {
		extractor = learning.NewRegexExtractor()
	}
	pipeline := learning.NewPipeline(embedder, clf, store, extractor, learning.NewMetrics(registry), logger)

	// Chat service
	counter, err := chat.NewTiktokenCounter()
	if err != nil {
		logger.Fatal("Failed to load token encoding", zap.Error(err))
	}
	tutor := chat.NewOpenAICompleter(client, cfg.OpenAI.ChatModel, cfg.OpenAI.Temperature)
	summaryModel := chat.NewOpenAICompleter(client, cfg.OpenAI.SummaryModel, cfg.Chat.SummaryTemperature)
	summarizer := chat.NewSummarizer(summaryModel, counter)
	chatSvc := chat.NewService(store, tutor, summarizer, counter, pipeline, cfg.Chat.LearningTimeout, logger)

	// Auth service
	verifier := auth.NewGoogleVerifier(cfg.Auth.GoogleClientID)
	authSvc := auth.NewService(store, verifier, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)

	router := server.NewRouter(server.RouterConfig{
		Auth:           authSvc,
		Chat:           chatSvc,
		Store:          store,
		Logger:         logger,
		Registry:       registry,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}
