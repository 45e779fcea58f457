package repository

import (
	"context"
	"time"

	"ThreatLens/internal/domain/models"
)

type EventStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.ThreatEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, e *models.ThreatEvent) error
	PublishBatch(ctx context.Context, events []*models.ThreatEvent) error
	Close() error
}

type EventStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, e *models.ThreatEvent) error
	StoreBatch(ctx context.Context, events []*models.ThreatEvent) error
	FetchAll(ctx context.Context) ([]*models.ThreatEvent, error)
	FetchSince(ctx context.Context, since time.Time, limit int) ([]*models.ThreatEvent, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type AuditSink interface {
	RecordTraining(ctx context.Context, rec *models.TrainingRecord) error
	RecordDetection(ctx context.Context, rec *models.DetectionRecord) error
	FetchTrainings(ctx context.Context, limit int) ([]*models.TrainingRecord, error)
	FetchDetections(ctx context.Context, limit int) ([]*models.DetectionRecord, error)
	Close() error
}

type Metrics interface {
	RecordEventIngested(backend, eventType string)
	RecordDetection(verdict string)
	RecordTrainingRun(result string)
	RecordError(kind string)
	RecordModelInfo(trainedOn int, trainedAtUnix int64)
	RecordLatency(op string, seconds float64)
}
