package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ThreatLens/internal/domain/models"
	"ThreatLens/internal/domain/repository"
)

// ClickHouseAuditSink writes training and detection audit rows.
type ClickHouseAuditSink struct {
	db             *sql.DB
	trainingTable  string
	detectionTable string
}

// NewClickHouseAuditSink creates the audit sink.
func NewClickHouseAuditSink(db *sql.DB, trainingTable, detectionTable string) repository.AuditSink {
	return &ClickHouseAuditSink{
		db:             db,
		trainingTable:  trainingTable,
		detectionTable: detectionTable,
	}
}

func (s *ClickHouseAuditSink) RecordTraining(ctx context.Context, rec *models.TrainingRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, model_id, started_at, finished_at, samples, result, detail) VALUES (?, ?, ?, ?, ?, ?, ?)", s.trainingTable)
	_, err := s.db.ExecContext(ctx, q,
		rec.FinishedAt,
		rec.ModelID,
		rec.StartedAt,
		rec.FinishedAt,
		rec.Samples,
		rec.Result,
		rec.Detail,
	)
	return err
}

func (s *ClickHouseAuditSink) RecordDetection(ctx context.Context, rec *models.DetectionRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, source_addr, username, event_type, event_value, verdict, score, model_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.detectionTable)
	_, err := s.db.ExecContext(ctx, q,
		rec.Timestamp,
		rec.SourceAddr,
		rec.Username,
		rec.EventType,
		rec.EventValue,
		rec.Verdict,
		rec.Score,
		rec.ModelID,
	)
	return err
}

func (s *ClickHouseAuditSink) FetchTrainings(ctx context.Context, limit int) ([]*models.TrainingRecord, error) {
	q := fmt.Sprintf("SELECT model_id, started_at, finished_at, samples, result, detail FROM %s ORDER BY ts DESC LIMIT ?", s.trainingTable)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.TrainingRecord
	for rows.Next() {
		var r models.TrainingRecord
		if err := rows.Scan(&r.ModelID, &r.StartedAt, &r.FinishedAt, &r.Samples, &r.Result, &r.Detail); err != nil {
			return nil, err
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

func (s *ClickHouseAuditSink) FetchDetections(ctx context.Context, limit int) ([]*models.DetectionRecord, error) {
	q := fmt.Sprintf("SELECT ts, source_addr, username, event_type, event_value, verdict, score, model_id FROM %s ORDER BY ts DESC LIMIT ?", s.detectionTable)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.DetectionRecord
	for rows.Next() {
		var r models.DetectionRecord
		if err := rows.Scan(&r.Timestamp, &r.SourceAddr, &r.Username, &r.EventType, &r.EventValue, &r.Verdict, &r.Score, &r.ModelID); err != nil {
			return nil, err
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

func (s *ClickHouseAuditSink) Close() error {
	return nil // Managed by pkg
}
