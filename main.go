package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"forexflow/config"
	"forexflow/consumer"
	"forexflow/logger"
	"forexflow/processor"
	"forexflow/producer"
	"forexflow/reader/oanda"
	"forexflow/stream"
	"forexflow/writer"
)

const baseCurrency = "USD"

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Forexflow.Name,
		"version": cfg.Forexflow.Version,
	}).Info("starting forexflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.InitCloudWatch(cfg.Stream.Region, cfg.Forexflow.Name)
	logger.StartReport(ctx, log, 60*time.Second)

	streamClient, err := newStreamClient(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("failed to create stream client")
		os.Exit(1)
	}

	rawStore, processedStore, err := newObjectStores(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("failed to create object stores")
		os.Exit(1)
	}

	oandaClient := oanda.NewClient(cfg)
	quoteProducer := producer.NewProducer(cfg, streamClient, oandaClient.FetchPrices)

	archivalConsumer := consumer.New(
		"archival_consumer", cfg, streamClient,
		processor.ValidPricePayload,
		processor.ArchiveLine,
		writer.NewRawSink(rawStore),
	)
	processedConsumer := consumer.New(
		"processed_consumer", cfg, streamClient,
		processor.ValidPricePayload,
		processor.NormalizeQuote(baseCurrency),
		writer.NewQuoteSink(processedStore),
	)

	if err := quoteProducer.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start producer")
		os.Exit(1)
	}

	fatal := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := archivalConsumer.Run(ctx); err != nil {
			log.WithError(err).Error("archival consumer halted")
			fatal <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := processedConsumer.Run(ctx); err != nil {
			log.WithError(err).Error("processed consumer halted")
			fatal <- err
		}
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-fatal:
		// Sink failures are not retried internally; the process halts and
		// relies on external supervision to restart it.
		log.WithError(err).Error("fatal pipeline error, shutting down")
		exitCode = 1
	}

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping producer")
	quoteProducer.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("forexflow stopped")
	os.Exit(exitCode)
}

func newStreamClient(ctx context.Context, cfg *config.Config) (stream.Client, error) {
	log := logger.GetLogger()

	switch cfg.Stream.Backend {
	case "kinesis":
		return stream.NewKinesisClient(ctx, cfg)
	case "kafka":
		return stream.NewKafkaClient(cfg)
	default:
		log.WithComponent("main").Info("using in-memory stream backend")
		return stream.NewMemoryStream(), nil
	}
}

func newObjectStores(ctx context.Context, cfg *config.Config) (writer.ObjectStore, writer.ObjectStore, error) {
	log := logger.GetLogger()

	if !cfg.Storage.S3.Enabled {
		log.WithComponent("main").Info("S3 storage disabled; using in-memory object stores")
		return writer.NewMemoryStore(), writer.NewMemoryStore(), nil
	}

	rawStore, err := writer.NewS3Store(ctx, cfg, cfg.Storage.S3.RawBucket)
	if err != nil {
		return nil, nil, err
	}
	processedStore, err := writer.NewS3Store(ctx, cfg, cfg.Storage.S3.ProcessedBucket)
	if err != nil {
		return nil, nil, err
	}
	return rawStore, processedStore, nil
}
