package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ThreatLens/internal/detector"
	"ThreatLens/internal/domain/models"
	domrepo "ThreatLens/internal/domain/repository"
	"ThreatLens/pkg/cache"
	"ThreatLens/pkg/logger"
)

// DetectionService answers analyze and status queries against the
// current model and serves the audit log endpoints.
type DetectionService struct {
	scorer   *detector.Scorer
	registry *detector.Registry
	store    domrepo.EventStore
	audit    domrepo.AuditSink
	metrics  domrepo.Metrics
	cache    cache.Service
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewDetectionService creates the detection service.
func NewDetectionService(
	scorer *detector.Scorer,
	registry *detector.Registry,
	store domrepo.EventStore,
	audit domrepo.AuditSink,
	metrics domrepo.Metrics,
	cacheSvc cache.Service,
	cacheTTL time.Duration,
	log *logger.Logger,
) *DetectionService {
	return &DetectionService{
		scorer:   scorer,
		registry: registry,
		store:    store,
		audit:    audit,
		metrics:  metrics,
		cache:    cacheSvc,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// Analyze scores one event and records the detection. The event is not
// added to the training history; only submissions are.
func (s *DetectionService) Analyze(ctx context.Context, e *models.ThreatEvent) (*models.ScoreResult, error) {
	start := time.Now()

	res, err := s.scorer.Score(e)
	if err != nil {
		if !errors.Is(err, detector.ErrModelNotReady) {
			s.metrics.RecordError("analyze")
		}
		return nil, err
	}

	s.metrics.RecordDetection(res.Verdict)
	s.metrics.RecordLatency("analyze", time.Since(start).Seconds())

	rec := &models.DetectionRecord{
		Timestamp:  res.ScoredAt,
		SourceAddr: e.SourceAddr,
		Username:   e.Username,
		EventType:  e.EventType,
		EventValue: e.EventValue,
		Verdict:    res.Verdict,
		Score:      res.Score,
		ModelID:    res.ModelID,
	}
	if err := s.audit.RecordDetection(ctx, rec); err != nil {
		// Audit is best effort; scoring already succeeded.
		s.metrics.RecordError("audit_detection")
		s.log.Warn("detection audit write failed", logger.Error(err))
	}

	return res, nil
}

// Status describes the active model and backend health.
type Status struct {
	ModelReady bool              `json:"model_ready"`
	Model      *models.ModelInfo `json:"model,omitempty"`
	StoreOK    bool              `json:"store_ok"`
	Training   bool              `json:"training"`
}

// Status reports the current serving state.
func (s *DetectionService) Status(ctx context.Context, training bool) *Status {
	st := &Status{Training: training}

	if info, ok := s.registry.Info(); ok {
		st.ModelReady = true
		st.Model = &info
	}
	st.StoreOK = s.store.Health(ctx) == nil
	return st
}

// Trainings returns recent training audit rows, cached briefly to keep
// dashboard polling off ClickHouse.
func (s *DetectionService) Trainings(ctx context.Context, limit int) ([]*models.TrainingRecord, error) {
	key := fmt.Sprintf("trainings:%d", limit)

	var cached []*models.TrainingRecord
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	recs, err := s.audit.FetchTrainings(ctx, limit)
	if err != nil {
		s.metrics.RecordError("fetch_trainings")
		return nil, err
	}
	if err := s.cache.Set(ctx, key, recs, s.cacheTTL); err != nil {
		s.log.Warn("training log cache set failed", logger.Error(err))
	}
	return recs, nil
}

// Detections returns recent detection audit rows.
func (s *DetectionService) Detections(ctx context.Context, limit int) ([]*models.DetectionRecord, error) {
	key := fmt.Sprintf("detections:%d", limit)

	var cached []*models.DetectionRecord
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	recs, err := s.audit.FetchDetections(ctx, limit)
	if err != nil {
		s.metrics.RecordError("fetch_detections")
		return nil, err
	}
	if err := s.cache.Set(ctx, key, recs, s.cacheTTL); err != nil {
		s.log.Warn("detection log cache set failed", logger.Error(err))
	}
	return recs, nil
}
