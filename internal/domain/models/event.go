package models

import "time"

// ThreatEvent is a single security log entry submitted by a sensor or
// over the API. It is both the unit of ingestion and the unit the
// detector trains on.
type ThreatEvent struct {
	Timestamp  time.Time
	SourceAddr string
	Username   string
	EventType  string // "login_attempt", "file_access", "privilege_escalation", ...
	EventValue float64
	Source     string // "api", "feed", "kafka"
}

// ScoreResult is the outcome of scoring one event against the current
// model.
type ScoreResult struct {
	Event     ThreatEvent
	Verdict   string // "anomaly" | "normal"
	Score     float64
	ModelID   string
	ScoredAt  time.Time
	IsAnomaly bool
}

// TrainingRecord is an audit entry for one training run.
type TrainingRecord struct {
	ModelID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Samples    int
	Result     string // "success" | "skipped" | "failed"
	Detail     string
}

// DetectionRecord is an audit entry for one scored event.
type DetectionRecord struct {
	Timestamp  time.Time
	SourceAddr string
	Username   string
	EventType  string
	EventValue float64
	Verdict    string
	Score      float64
	ModelID    string
}

// ModelInfo describes the currently active model for status reporting.
type ModelInfo struct {
	ID         string
	TrainedAt  time.Time
	TrainedOn  int
	SchemaVer  int
	Loaded     bool // restored from disk rather than trained this run
}
