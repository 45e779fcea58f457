package usecase

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ThreatLens/internal/detector"
	"ThreatLens/internal/domain/models"
	"ThreatLens/pkg/cache"
	"ThreatLens/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

type nopMetrics struct{}

func (nopMetrics) RecordEventIngested(string, string) {}
func (nopMetrics) RecordDetection(string)             {}
func (nopMetrics) RecordTrainingRun(string)           {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordModelInfo(int, int64)         {}
func (nopMetrics) RecordLatency(string, float64)      {}

type memEventStore struct {
	mu     sync.Mutex
	events []*models.ThreatEvent
	err    error
}

func (m *memEventStore) Init(context.Context) error   { return nil }
func (m *memEventStore) Health(context.Context) error { return m.err }
func (m *memEventStore) Close() error                 { return nil }

func (m *memEventStore) Store(_ context.Context, e *models.ThreatEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memEventStore) StoreBatch(ctx context.Context, events []*models.ThreatEvent) error {
	for _, e := range events {
		if err := m.Store(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *memEventStore) FetchAll(context.Context) ([]*models.ThreatEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*models.ThreatEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *memEventStore) FetchSince(_ context.Context, since time.Time, limit int) ([]*models.ThreatEvent, error) {
	all, err := m.FetchAll(context.Background())
	if err != nil {
		return nil, err
	}
	if limit > len(all) {
		limit = len(all)
	}
	return all[:limit], nil
}

type memAuditSink struct {
	mu         sync.Mutex
	trainings  []*models.TrainingRecord
	detections []*models.DetectionRecord
	err        error
}

func (m *memAuditSink) RecordTraining(_ context.Context, rec *models.TrainingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.trainings = append(m.trainings, rec)
	return nil
}

func (m *memAuditSink) RecordDetection(_ context.Context, rec *models.DetectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.detections = append(m.detections, rec)
	return nil
}

func (m *memAuditSink) FetchTrainings(context.Context, int) ([]*models.TrainingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainings, m.err
}

func (m *memAuditSink) FetchDetections(context.Context, int) ([]*models.DetectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detections, m.err
}

func (m *memAuditSink) Close() error { return nil }

func seedHistory(store *memEventStore, n int) {
	rng := rand.New(rand.NewSource(31))
	base := time.Date(2025, 2, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		store.events = append(store.events, &models.ThreatEvent{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			SourceAddr: "192.168.1.10",
			Username:   "alice",
			EventType:  "login_attempt",
			EventValue: 1 + rng.Float64(),
		})
	}
}

func newTestRetrainer(t *testing.T, store *memEventStore, audit *memAuditSink) (*Retrainer, *detector.Registry) {
	t.Helper()
	log := testLogger(t)
	trainer := detector.NewTrainer(store, log, detector.WithTrees(10), detector.WithSampleSize(32))
	registry := detector.NewRegistry()
	artifacts := detector.NewArtifactStore(filepath.Join(t.TempDir(), "model.bin"), log)
	return NewRetrainer(trainer, registry, artifacts, audit, nopMetrics{}, log, time.Hour), registry
}

func TestTickTrainsAndPublishes(t *testing.T) {
	store := &memEventStore{}
	seedHistory(store, 200)
	audit := &memAuditSink{}
	r, registry := newTestRetrainer(t, store, audit)

	r.Tick(context.Background())

	m := registry.Current()
	require.NotNil(t, m)
	assert.Equal(t, 200, m.TrainedOn)

	require.Len(t, audit.trainings, 1)
	assert.Equal(t, "success", audit.trainings[0].Result)
	assert.Equal(t, m.ID, audit.trainings[0].ModelID)
}

func TestSequentialTicksTrackHistory(t *testing.T) {
	store := &memEventStore{}
	seedHistory(store, 100)
	audit := &memAuditSink{}
	r, registry := newTestRetrainer(t, store, audit)

	r.Tick(context.Background())
	first := registry.Current()
	require.NotNil(t, first)
	assert.Equal(t, 100, first.TrainedOn)

	seedHistory(store, 150)
	r.Tick(context.Background())
	second := registry.Current()
	require.NotNil(t, second)
	assert.Equal(t, 250, second.TrainedOn)
	assert.NotSame(t, first, second)

	require.Len(t, audit.trainings, 2)
	assert.Equal(t, 100, audit.trainings[0].Samples)
	assert.Equal(t, 250, audit.trainings[1].Samples)
}

func TestTickEmptyHistorySkips(t *testing.T) {
	store := &memEventStore{}
	audit := &memAuditSink{}
	r, registry := newTestRetrainer(t, store, audit)

	r.Tick(context.Background())

	assert.Nil(t, registry.Current())
	require.Len(t, audit.trainings, 1)
	assert.Equal(t, "skipped", audit.trainings[0].Result)
}

func TestTickFailureKeepsCurrentModel(t *testing.T) {
	store := &memEventStore{}
	seedHistory(store, 200)
	audit := &memAuditSink{}
	r, registry := newTestRetrainer(t, store, audit)

	r.Tick(context.Background())
	first := registry.Current()
	require.NotNil(t, first)

	// History fetch breaks; the served model must survive.
	store.mu.Lock()
	store.err = errors.New("clickhouse down")
	store.mu.Unlock()

	r.Tick(context.Background())

	assert.Same(t, first, registry.Current())
	require.Len(t, audit.trainings, 2)
	assert.Equal(t, "failed", audit.trainings[1].Result)
}

func TestTickOverlapDropped(t *testing.T) {
	store := &memEventStore{}
	seedHistory(store, 50)
	audit := &memAuditSink{}
	r, registry := newTestRetrainer(t, store, audit)

	r.training.Store(true)
	r.Tick(context.Background())
	assert.Nil(t, registry.Current())
	assert.Empty(t, audit.trainings)

	r.training.Store(false)
	r.Tick(context.Background())
	assert.NotNil(t, registry.Current())
}

func TestTickAuditFailureDoesNotFailRun(t *testing.T) {
	store := &memEventStore{}
	seedHistory(store, 50)
	audit := &memAuditSink{err: errors.New("audit down")}
	r, registry := newTestRetrainer(t, store, audit)

	r.Tick(context.Background())
	assert.NotNil(t, registry.Current())
}

func TestRestorePublishesSavedModel(t *testing.T) {
	store := &memEventStore{}
	seedHistory(store, 100)
	audit := &memAuditSink{}

	log := testLogger(t)
	path := filepath.Join(t.TempDir(), "model.bin")
	trainer := detector.NewTrainer(store, log, detector.WithTrees(10), detector.WithSampleSize(32))
	artifacts := detector.NewArtifactStore(path, log)

	first := NewRetrainer(trainer, detector.NewRegistry(), artifacts, audit, nopMetrics{}, log, time.Hour)
	first.Tick(context.Background())

	// A fresh process restores the artifact before any training.
	registry := detector.NewRegistry()
	second := NewRetrainer(trainer, registry, artifacts, audit, nopMetrics{}, log, time.Hour)
	require.NoError(t, second.Restore())

	m := registry.Current()
	require.NotNil(t, m)
	assert.True(t, m.Loaded)
	assert.Equal(t, 100, m.TrainedOn)
}

func TestRestoreMissingArtifact(t *testing.T) {
	store := &memEventStore{}
	audit := &memAuditSink{}
	r, registry := newTestRetrainer(t, store, audit)

	require.NoError(t, r.Restore())
	assert.Nil(t, registry.Current())
}

func TestStartStop(t *testing.T) {
	store := &memEventStore{}
	seedHistory(store, 50)
	audit := &memAuditSink{}
	r, registry := newTestRetrainer(t, store, audit)

	ctx := context.Background()
	r.Start(ctx)

	require.Eventually(t, func() bool {
		return registry.Current() != nil
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, r.Stop(stopCtx))
}

func TestAnalyzeRecordsDetection(t *testing.T) {
	store := &memEventStore{}
	seedHistory(store, 300)
	audit := &memAuditSink{}
	r, registry := newTestRetrainer(t, store, audit)
	r.Tick(context.Background())

	svc := NewDetectionService(
		detector.NewScorer(registry),
		registry,
		store,
		audit,
		nopMetrics{},
		cache.NewMemoryCache(),
		time.Second,
		testLogger(t),
	)

	res, err := svc.Analyze(context.Background(), &models.ThreatEvent{
		Timestamp:  time.Date(2031, 1, 1, 3, 0, 0, 0, time.UTC),
		SourceAddr: "203.0.113.99",
		Username:   "svc-unknown",
		EventType:  "privilege_escalation",
		EventValue: 9999,
	})
	require.NoError(t, err)
	assert.Equal(t, "anomaly", res.Verdict)

	require.Len(t, audit.detections, 1)
	assert.Equal(t, "anomaly", audit.detections[0].Verdict)
	assert.Equal(t, res.ModelID, audit.detections[0].ModelID)
	assert.Equal(t, 9999.0, audit.detections[0].EventValue)
}

func TestAnalyzeColdStart(t *testing.T) {
	store := &memEventStore{}
	audit := &memAuditSink{}
	registry := detector.NewRegistry()

	svc := NewDetectionService(
		detector.NewScorer(registry),
		registry,
		store,
		audit,
		nopMetrics{},
		cache.NewMemoryCache(),
		time.Second,
		testLogger(t),
	)

	_, err := svc.Analyze(context.Background(), &models.ThreatEvent{
		Timestamp:  time.Now(),
		SourceAddr: "10.0.0.1",
		Username:   "bob",
		EventValue: 1,
	})
	assert.ErrorIs(t, err, detector.ErrModelNotReady)
	assert.Empty(t, audit.detections)
}

func TestStatusReportsModelAndStore(t *testing.T) {
	store := &memEventStore{}
	seedHistory(store, 50)
	audit := &memAuditSink{}
	r, registry := newTestRetrainer(t, store, audit)

	svc := NewDetectionService(
		detector.NewScorer(registry),
		registry,
		store,
		audit,
		nopMetrics{},
		cache.NewMemoryCache(),
		time.Second,
		testLogger(t),
	)

	st := svc.Status(context.Background(), false)
	assert.False(t, st.ModelReady)
	assert.True(t, st.StoreOK)

	r.Tick(context.Background())
	st = svc.Status(context.Background(), r.Training())
	assert.True(t, st.ModelReady)
	require.NotNil(t, st.Model)
	assert.Equal(t, 50, st.Model.TrainedOn)
	assert.False(t, st.Training)
}
