//go:build wireinject
// +build wireinject

package di

import (
	"ThreatLens/pkg/config"
	"ThreatLens/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideEventPublisher,
		ProvideKafkaConsumer,

		// Repositories
		ProvideEventStore,
		ProvideAuditSink,
		ProvideFeedStream,

		// Detector
		ProvideRegistry,
		ProvideRetrainer,
		ProvideDetectionService,

		// Use cases
		ProvideEventProcessor,
		ProvideIngestPipeline,
		ProvideEventCollector,
		ProvideKafkaEventsHandler,

		// HTTP
		ProvideEventsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
