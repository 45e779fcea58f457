package di

import (
	"context"
	"fmt"
	"time"

	"ThreatLens/internal/detector"
	"ThreatLens/internal/domain/repository"
	"ThreatLens/internal/handler/api"
	mid "ThreatLens/internal/middleware"
	internalrepo "ThreatLens/internal/repository"
	"ThreatLens/internal/service/feed"
	"ThreatLens/internal/usecase"
	"ThreatLens/pkg/cache"
	pkgch "ThreatLens/pkg/clickhouse"
	"ThreatLens/pkg/config"
	pkgkafka "ThreatLens/pkg/kafka"
	applogger "ThreatLens/pkg/logger"
	"ThreatLens/pkg/metrics"
	"ThreatLens/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + ".threat_events (ts DateTime64(3), source_addr String, username String, event_type LowCardinality(String), event_value Float64, source LowCardinality(String)) ENGINE=MergeTree ORDER BY (ts, source_addr)",
		"CREATE TABLE IF NOT EXISTS " + db + ".training_log (ts DateTime64(3), model_id String, started_at DateTime64(3), finished_at DateTime64(3), samples UInt64, result LowCardinality(String), detail String) ENGINE=MergeTree ORDER BY ts",
		"CREATE TABLE IF NOT EXISTS " + db + ".detection_log (ts DateTime64(3), source_addr String, username String, event_type LowCardinality(String), event_value Float64, verdict LowCardinality(String), score Float64, model_id String) ENGINE=MergeTree ORDER BY ts",
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideEventStore creates the ClickHouse event history repository.
func ProvideEventStore(chClient *pkgch.Client, cfg *config.Config) repository.EventStore {
	return internalrepo.NewClickHouseEventStore(chClient.DB(), cfg.ClickHouse.Database+".threat_events")
}

// ProvideAuditSink creates the ClickHouse audit log repository.
func ProvideAuditSink(chClient *pkgch.Client, cfg *config.Config) repository.AuditSink {
	return internalrepo.NewClickHouseAuditSink(
		chClient.DB(),
		cfg.ClickHouse.Database+".training_log",
		cfg.ClickHouse.Database+".detection_log",
	)
}

// ProvideEventPublisher creates the Kafka publisher when the kafka
// backend is configured. With the clickhouse backend events go straight
// to storage and no producer is needed.
func ProvideEventPublisher(cfg *config.Config) (repository.Publisher, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideKafkaConsumer creates a Kafka consumer for the kafka backend.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaEventsHandler registers the handler for the events topic.
func ProvideKafkaEventsHandler(store repository.EventStore, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaEventsHandler {
	return usecase.NewKafkaEventsHandler(cfg.Kafka.Topic, store, metrics)
}

// ProvideFeedStream creates the sensor WebSocket stream, or nil when
// the feed is disabled.
func ProvideFeedStream(cfg *config.Config) repository.EventStream {
	if !cfg.Feed.Enabled {
		return nil
	}
	return feed.New(
		cfg.Feed.APIKey,
		cfg.Feed.URL,
		cfg.Feed.Channels,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideEventProcessor creates the event routing use case.
func ProvideEventProcessor(
	pub repository.Publisher,
	store repository.EventStore,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.EventProcessor {
	return usecase.NewEventProcessor(
		pub,
		store,
		metrics,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideIngestPipeline builds the validation/throttle pipeline in
// front of the processor.
func ProvideIngestPipeline(processor *usecase.EventProcessor, metrics repository.Metrics) *mid.IngestPipeline {
	return mid.NewIngestPipeline(processor, metrics,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideEventCollector creates the feed collector use case, or nil
// when no feed stream is configured.
func ProvideEventCollector(
	stream repository.EventStream,
	processor *usecase.EventProcessor,
	metrics repository.Metrics,
	pipe *mid.IngestPipeline,
) *usecase.EventCollector {
	if stream == nil {
		return nil
	}
	return usecase.NewEventCollector(stream, processor, metrics, pipe)
}

// ProvideRegistry creates the model registry.
func ProvideRegistry() *detector.Registry {
	return detector.NewRegistry()
}

// ProvideRetrainer builds the model training loop.
func ProvideRetrainer(
	store repository.EventStore,
	registry *detector.Registry,
	audit repository.AuditSink,
	metrics repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.Retrainer {
	trainer := detector.NewTrainer(store, log,
		detector.WithContamination(cfg.Detector.Contamination),
		detector.WithSeed(cfg.Detector.Seed),
		detector.WithTrees(cfg.Detector.Trees),
		detector.WithSampleSize(cfg.Detector.SampleSize),
	)
	artifacts := detector.NewArtifactStore(cfg.Detector.ModelPath, log)
	return usecase.NewRetrainer(trainer, registry, artifacts, audit, metrics, log, cfg.Detector.TrainInterval)
}

// ProvideCache builds the caching layer: in-process by default, layered
// over Redis when configured.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	local := cache.NewMemoryCache()
	if !cfg.Cache.Redis.Enabled {
		return local, nil
	}
	remote, err := cache.NewRedisCache(
		cache.WithAddr(cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
		cache.WithPassword(cfg.Cache.Redis.Password),
		cache.WithDB(cfg.Cache.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(local, remote), nil
}

// ProvideDetectionService builds the analyze/status/logs use case.
func ProvideDetectionService(
	registry *detector.Registry,
	store repository.EventStore,
	audit repository.AuditSink,
	metrics repository.Metrics,
	cacheSvc cache.Service,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.DetectionService {
	ttl := cfg.Cache.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return usecase.NewDetectionService(
		detector.NewScorer(registry), registry, store, audit, metrics, cacheSvc, ttl, log,
	)
}

// ProvideEventsHandler creates the HTTP API handler.
func ProvideEventsHandler(
	log *applogger.Logger,
	pipe *mid.IngestPipeline,
	detection *usecase.DetectionService,
	retrainer *usecase.Retrainer,
) *api.EventsHandler {
	return api.NewEventsHandler(log, pipe, detection, retrainer)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.EventCollector,
	processor *usecase.EventProcessor,
	pipe *mid.IngestPipeline,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaEventsHandler,
	chClient *pkgch.Client,
	retrainer *usecase.Retrainer,
	handler *api.EventsHandler,
	cacheSvc cache.Service,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, log, collector, processor, pipe, consumer, kh, chClient, retrainer, handler, cacheSvc)
}
