package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/clipjobs/internal/blob"
	"github.com/cuongbtq/clipjobs/internal/config"
	"github.com/cuongbtq/clipjobs/internal/domain"
	"github.com/cuongbtq/clipjobs/internal/storage"
	"github.com/cuongbtq/clipjobs/internal/transcode"
	"github.com/cuongbtq/clipjobs/internal/transfer"
	"github.com/cuongbtq/clipjobs/internal/worker"
	"github.com/cuongbtq/clipjobs/shared/logger"
	"github.com/cuongbtq/clipjobs/shared/mongodb"
	"github.com/cuongbtq/clipjobs/shared/postgresql"
	"github.com/cuongbtq/clipjobs/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("job_type", cfg.Worker.JobType),
		slog.Duration("poll_interval", cfg.Worker.PollInterval),
	)

	if err := os.MkdirAll(cfg.Worker.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	store, dbCloser, err := initStore(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}
	if dbCloser != nil {
		closers = append(closers, dbCloser)
	}

	processor, err := initProcessor(ctx, cfg, store, appLogger.Logger)
	if err != nil {
		return err
	}

	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		closers = append(closers, rabbitClient)

		appLogger.Info("RabbitMQ connection established")
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Store:         store,
		Processor:     processor,
		JobType:       domain.JobType(cfg.Worker.JobType),
		PollInterval:  cfg.Worker.PollInterval,
		RabbitClient:  rabbitClient,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancelling aborts the in-flight stage; its failure is still recorded
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initProcessor wires the download, transcode and upload stages
func initProcessor(ctx context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger) (*worker.Processor, error) {
	blobs, err := blob.New(ctx, cfg.Storage.BlobConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob storage: %w", err)
	}

	return worker.NewProcessor(&worker.ProcessorConfig{
		Logger:           logger,
		Store:            store,
		Downloader:       transfer.NewHTTPDownloader(nil, logger),
		Uploader:         transfer.NewUploader(blobs, logger, transfer.WithCategory(cfg.Storage.Category)),
		Transcoder:       transcode.NewFFmpeg(cfg.Worker.FFmpegPath, logger),
		ScratchDir:       cfg.Worker.ScratchDir,
		DownloadTimeout:  cfg.Worker.DownloadTimeout,
		TranscodeTimeout: cfg.Worker.TranscodeTimeout,
		UploadTimeout:    cfg.Worker.UploadTimeout,
	}), nil
}

// initStore opens the job store selected by cfg.Driver
func initStore(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (storage.Store, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverMongoDB:
		client, err := mongodb.NewClient(&mongodb.Config{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			MaxPoolSize:    cfg.MongoDB.MaxPoolSize,
			ConnectTimeout: cfg.MongoDB.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}

		store := storage.NewMongoStore(client.Collection(storage.JobsCollection), logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		return store, client, nil

	case config.DriverMemory:
		logger.Warn("Using in-memory job store; only jobs created in this process are visible")
		return storage.NewMemoryStore(logger), nil, nil

	default:
		client, err := postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Host,
			Port:            cfg.Port,
			User:            cfg.User,
			Password:        cfg.Password,
			Database:        cfg.Database,
			SSLMode:         cfg.SSLMode,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		}, logger)
		if err != nil {
			return nil, nil, err
		}

		store := storage.NewPostgresStore(client.GetDB(), logger)
		if err := store.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		return store, client, nil
	}
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}
