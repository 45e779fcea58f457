package usecase

import (
	"context"
	"encoding/json"
	"time"

	"ThreatLens/internal/domain/models"
	domrepo "ThreatLens/internal/domain/repository"
	pkgkafka "ThreatLens/pkg/kafka"
)

// KafkaEventsHandler consumes event messages and writes to storage. In
// the kafka backend this is the path that lands events in the history
// the trainer reads.
type KafkaEventsHandler struct {
	topic   string
	storage domrepo.EventStore
	metrics domrepo.Metrics
}

func NewKafkaEventsHandler(topic string, storage domrepo.EventStore, metrics domrepo.Metrics) *KafkaEventsHandler {
	return &KafkaEventsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaEventsHandler) Topic() string { return h.topic }

// incoming message schema: {ts, source_addr, username, event_type, event_value, source}
func (h *KafkaEventsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		TS         string  `json:"ts"`
		SourceAddr string  `json:"source_addr"`
		Username   string  `json:"username"`
		EventType  string  `json:"event_type"`
		EventValue float64 `json:"event_value"`
		Source     string  `json:"source"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	ts, err := time.Parse(time.RFC3339Nano, m.TS)
	if err != nil {
		h.metrics.RecordError("consumer_timestamp")
		return err
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())

	start := time.Now()
	err = h.storage.Store(ctx, &models.ThreatEvent{
		Timestamp:  ts,
		SourceAddr: m.SourceAddr,
		Username:   m.Username,
		EventType:  m.EventType,
		EventValue: m.EventValue,
		Source:     m.Source,
	})
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordEventIngested("clickhouse", m.EventType)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaEventsHandler)(nil)
