package main

import (
	"context"
	"errors"
	"geonews/internal/config"
	"geonews/internal/consumer"
	"geonews/internal/credibility"
	"geonews/internal/db"
	"geonews/internal/enrich"
	"geonews/internal/news"
	"geonews/internal/pipeline"
	"geonews/internal/source"
	"github.com/gorilla/mux"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	// Root context cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stdout, "[news-consumer] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	// Mongo
	mongoClient, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatalf("failed to connect to db: %v", err)
	}
	dbInstance := mongoClient.Database(cfg.MongoDBName)

	// Repositories
	newsRepo, err := news.NewMongoRepository(dbInstance, logger)
	if err != nil {
		logger.Fatalf("failed to init news repository: %v", err)
	}
	userRepo, err := news.NewMongoUserRepository(dbInstance, logger)
	if err != nil {
		logger.Fatalf("failed to init user repository: %v", err)
	}
	logger.Println("repositories initialised")

	// Credibility engine
	credEngine := credibility.NewEngine(newsRepo, userRepo, logger)

	// Enrichment ports
	httpClient := &http.Client{Timeout: cfg.Timeout}
	enrichClient := enrich.NewClient(cfg.EnrichEndpoint, cfg.EnrichAPIKey, httpClient)
	extractor := enrich.NewPageExtractor(httpClient)

	// Pipeline engine
	pipe := pipeline.NewEngine(
		newsRepo,
		credEngine,
		pipeline.Enrichers{
			Detector:   enrichClient,
			Translator: enrichClient,
			Summarizer: enrichClient,
			Classifier: enrichClient,
			Extractor:  extractor,
		},
		cfg.TargetLang,
		cfg.MinBodyLength,
		logger,
	)

	// Message source
	var src source.Source
	switch cfg.SourceKind {
	case "kafka":
		src = source.NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, logger)
	default:
		src, err = source.NewRabbitSource(cfg.RabbitURI, cfg.RabbitQueue, logger)
		if err != nil {
			logger.Fatalf("failed to init rabbit source: %v", err)
		}
	}

	// Consumer loop
	loop := consumer.NewLoop(
		src,
		pipe,
		source.ReceiveOptions{
			MaxMessages:       cfg.MaxMessages,
			WaitTime:          cfg.WaitTime,
			VisibilityTimeout: cfg.VisibilityTimeout,
		},
		cfg.ReceiveBackoff,
		cfg.Workers,
		logger,
	)

	// HTTP health server
	srv := healthz(logger)

	// Start the consumer
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	logger.Println("service started")

	// Block until we receive a signal / ctx cancelled
	<-ctx.Done()
	logger.Println("shutdown signal received, shutting down...")

	// Let in-flight messages reach a terminal state before teardown
	<-done

	// Unified shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Graceful HTTP shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("HTTP server shutdown error: %v", err)
	}

	// Requeue whatever is still leased
	if err := src.Close(); err != nil {
		logger.Printf("source close error: %v", err)
	}

	// Graceful Mongo shutdown
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		logger.Printf("mongo disconnect error: %v", err)
	}

	logger.Println("shutdown complete")
}

func healthz(logger *log.Logger) *http.Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		logger.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("HTTP server error: %v", err)
		}
	}()

	return srv
}
