package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ThreatLens/internal/domain/models"
	"ThreatLens/internal/domain/repository"
	pkgkafka "ThreatLens/pkg/kafka"
)

// ClickHouseEventStore implements EventStore for ClickHouse.
type ClickHouseEventStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseEventStore creates ClickHouse event storage.
func NewClickHouseEventStore(db *sql.DB, table string) repository.EventStore {
	return &ClickHouseEventStore{db: db, table: table}
}

func (s *ClickHouseEventStore) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseEventStore) Store(ctx context.Context, e *models.ThreatEvent) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, source_addr, username, event_type, event_value, source) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		e.Timestamp,
		e.SourceAddr,
		e.Username,
		e.EventType,
		e.EventValue,
		e.Source,
	)
	return err
}

func (s *ClickHouseEventStore) StoreBatch(ctx context.Context, events []*models.ThreatEvent) error {
	if len(events) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips. Chunk size keeps
	// statements bounded.
	const chunkSize = 2000
	for start := 0; start < len(events); start += chunkSize {
		end := start + chunkSize
		if end > len(events) {
			end = len(events)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, e := range events[start:end] {
			if e == nil || e.SourceAddr == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args,
				e.Timestamp,
				e.SourceAddr,
				e.Username,
				e.EventType,
				e.EventValue,
				e.Source,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, source_addr, username, event_type, event_value, source) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseEventStore) FetchAll(ctx context.Context) ([]*models.ThreatEvent, error) {
	q := fmt.Sprintf("SELECT ts, source_addr, username, event_type, event_value, source FROM %s ORDER BY ts ASC", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *ClickHouseEventStore) FetchSince(ctx context.Context, since time.Time, limit int) ([]*models.ThreatEvent, error) {
	q := fmt.Sprintf("SELECT ts, source_addr, username, event_type, event_value, source FROM %s WHERE ts >= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*models.ThreatEvent, error) {
	var events []*models.ThreatEvent
	for rows.Next() {
		var e models.ThreatEvent
		if err := rows.Scan(&e.Timestamp, &e.SourceAddr, &e.Username, &e.EventType, &e.EventValue, &e.Source); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *ClickHouseEventStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseEventStore) Close() error {
	return nil // Managed by pkg
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e *models.ThreatEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(e.SourceAddr), eventPayload(e))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, events []*models.ThreatEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, e := range events {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(e.SourceAddr),
			Value: eventPayload(e),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func eventPayload(e *models.ThreatEvent) map[string]interface{} {
	return map[string]interface{}{
		"ts":          e.Timestamp.UTC().Format(time.RFC3339Nano),
		"source_addr": e.SourceAddr,
		"username":    e.Username,
		"event_type":  e.EventType,
		"event_value": e.EventValue,
		"source":      e.Source,
	}
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
