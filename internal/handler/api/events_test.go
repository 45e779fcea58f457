package api

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ThreatLens/internal/detector"
	"ThreatLens/internal/domain/models"
	mid "ThreatLens/internal/middleware"
	"ThreatLens/internal/usecase"
	"ThreatLens/pkg/cache"
	xhttp "ThreatLens/pkg/http"
	"ThreatLens/pkg/logger"
)

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
}

func (m *memEventStore) Init(context.Context) error   { return nil }
func (m *memEventStore) Health(context.Context) error { return nil }
func (m *memEventStore) Close() error                 { return nil }

func (m *memEventStore) Store(_ context.Context, e *models.ThreatEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	out := make([]*models.ThreatEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *memEventStore) FetchSince(context.Context, time.Time, int) ([]*models.ThreatEvent, error) {
	return m.FetchAll(context.Background())
}

type memAuditSink struct {
	mu         sync.Mutex
	trainings  []*models.TrainingRecord
	detections []*models.DetectionRecord
}

func (m *memAuditSink) RecordTraining(_ context.Context, rec *models.TrainingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainings = append(m.trainings, rec)
	return nil
}

func (m *memAuditSink) RecordDetection(_ context.Context, rec *models.DetectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = append(m.detections, rec)
	return nil
}

func (m *memAuditSink) FetchTrainings(context.Context, int) ([]*models.TrainingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainings, nil
}

func (m *memAuditSink) FetchDetections(context.Context, int) ([]*models.DetectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detections, nil
}

func (m *memAuditSink) Close() error { return nil }

type fixture struct {
	e         *echo.Echo
	store     *memEventStore
	audit     *memAuditSink
	retrainer *usecase.Retrainer
}

func newFixture(t *testing.T, seed int) *fixture {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	store := &memEventStore{}
	rng := rand.New(rand.NewSource(17))
	base := time.Date(2025, 2, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < seed; i++ {
		store.events = append(store.events, &models.ThreatEvent{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			SourceAddr: "192.168.1.10",
			Username:   "alice",
			EventType:  "login_attempt",
			EventValue: 1 + rng.Float64(),
		})
	}
	audit := &memAuditSink{}

	proc := usecase.NewEventProcessor(nil, store, nopMetrics{}, "clickhouse", 100, time.Second)
	pipe := mid.NewIngestPipeline(proc, nopMetrics{}, mid.WithMaxRPS(1000))

	registry := detector.NewRegistry()
	trainer := detector.NewTrainer(store, log, detector.WithTrees(25), detector.WithSampleSize(64))
	artifacts := detector.NewArtifactStore(filepath.Join(t.TempDir(), "model.bin"), log)
	retrainer := usecase.NewRetrainer(trainer, registry, artifacts, audit, nopMetrics{}, log, time.Hour)

	detection := usecase.NewDetectionService(
		detector.NewScorer(registry), registry, store, audit,
		nopMetrics{}, cache.NewMemoryCache(), time.Second, log,
	)

	h := NewEventsHandler(log, pipe, detection, retrainer)
	e := echo.New()
	h.RegisterRoutes(e)

	return &fixture{e: e, store: store, audit: audit, retrainer: retrainer}
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) xhttp.APIResponse {
	t.Helper()
	var env xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSubmitStoresEvent(t *testing.T) {
	f := newFixture(t, 0)

	rec := doJSON(f.e, http.MethodPost, "/api/events",
		`{"source_addr":"10.0.0.5","username":"bob","event_type":"file_access","event_value":2}`)

	env := envelope(t, rec)
	assert.Equal(t, http.StatusCreated, env.Status)

	events, err := f.store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "10.0.0.5", events[0].SourceAddr)
	assert.Equal(t, "api", events[0].Source)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, 0)

	rec := doJSON(f.e, http.MethodPost, "/api/events", `{"username":"bob"}`)
	env := envelope(t, rec)
	assert.Equal(t, http.StatusBadRequest, env.Status)

	// event_type is mandatory.
	rec = doJSON(f.e, http.MethodPost, "/api/events",
		`{"source_addr":"10.0.0.5","username":"bob","event_value":1}`)
	env = envelope(t, rec)
	assert.Equal(t, http.StatusBadRequest, env.Status)

	events, err := f.store.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSubmitAcceptsAnyEventType(t *testing.T) {
	f := newFixture(t, 0)

	rec := doJSON(f.e, http.MethodPost, "/api/events",
		`{"source_addr":"10.0.0.5","username":"bob","event_type":"sensor_heartbeat","event_value":1}`)
	env := envelope(t, rec)
	require.Equal(t, http.StatusCreated, env.Status)

	events, err := f.store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sensor_heartbeat", events[0].EventType)
}

func TestSubmitZeroValuePreserved(t *testing.T) {
	f := newFixture(t, 0)

	rec := doJSON(f.e, http.MethodPost, "/api/events",
		`{"source_addr":"10.0.0.5","username":"bob","event_type":"login_attempt","event_value":0}`)
	env := envelope(t, rec)
	require.Equal(t, http.StatusCreated, env.Status)

	// Omitting the value also means zero, not some substitute.
	rec = doJSON(f.e, http.MethodPost, "/api/events",
		`{"source_addr":"10.0.0.6","username":"bob","event_type":"login_attempt"}`)
	env = envelope(t, rec)
	require.Equal(t, http.StatusCreated, env.Status)

	events, err := f.store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Zero(t, events[0].EventValue)
	assert.Zero(t, events[1].EventValue)
}

func TestSubmitOptionalUsername(t *testing.T) {
	f := newFixture(t, 0)

	rec := doJSON(f.e, http.MethodPost, "/api/events",
		`{"source_addr":"10.0.0.5","event_type":"login_attempt","event_value":1}`)
	env := envelope(t, rec)
	require.Equal(t, http.StatusCreated, env.Status)

	events, err := f.store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Username)
}

func TestSubmitHonorsTimestamp(t *testing.T) {
	f := newFixture(t, 0)

	rec := doJSON(f.e, http.MethodPost, "/api/events",
		`{"source_addr":"10.0.0.5","username":"bob","event_type":"login_attempt","timestamp":"2025-02-05T12:34:56Z"}`)
	env := envelope(t, rec)
	require.Equal(t, http.StatusCreated, env.Status)

	events, err := f.store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2025, 2, 5, 12, 34, 56, 0, time.UTC), events[0].Timestamp.UTC())
}

func TestAnalyzeColdStartReturns503(t *testing.T) {
	f := newFixture(t, 0)

	rec := doJSON(f.e, http.MethodPost, "/api/analyze",
		`{"source_addr":"10.0.0.5","username":"bob","event_type":"login_attempt"}`)
	env := envelope(t, rec)
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
}

func TestAnalyzeVerdicts(t *testing.T) {
	f := newFixture(t, 400)
	f.retrainer.Tick(context.Background())

	// Far outside the seeded history.
	rec := doJSON(f.e, http.MethodPost, "/api/analyze",
		`{"source_addr":"203.0.113.99","username":"svc-unknown","event_type":"privilege_escalation","event_value":9999,"timestamp":"2031-01-01T03:00:00Z"}`)
	env := envelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)

	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "anomaly", data["verdict"])
	assert.Less(t, data["score"].(float64), 0.0)
	assert.NotEmpty(t, data["model_id"])

	require.Len(t, f.audit.detections, 1)
	assert.Equal(t, "anomaly", f.audit.detections[0].Verdict)
	assert.Equal(t, 9999.0, f.audit.detections[0].EventValue)

	// Analyze must not grow the training history.
	events, err := f.store.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 400)
}

func TestStatusLifecycle(t *testing.T) {
	f := newFixture(t, 100)

	rec := doJSON(f.e, http.MethodGet, "/api/status", "")
	env := envelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, false, data["model_ready"])

	f.retrainer.Tick(context.Background())

	rec = doJSON(f.e, http.MethodGet, "/api/status", "")
	env = envelope(t, rec)
	data = env.Data.(map[string]interface{})
	assert.Equal(t, true, data["model_ready"])
	assert.Equal(t, true, data["store_ok"])
}

func TestTrainingsAndDetections(t *testing.T) {
	f := newFixture(t, 200)
	f.retrainer.Tick(context.Background())

	doJSON(f.e, http.MethodPost, "/api/analyze",
		`{"source_addr":"203.0.113.99","username":"x","event_type":"login_attempt","event_value":9999,"timestamp":"2031-01-01T03:00:00Z"}`)

	rec := doJSON(f.e, http.MethodGet, "/api/trainings?limit=10", "")
	env := envelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)
	list := env.Data.(map[string]interface{})
	assert.EqualValues(t, 1, list["total"])

	rec = doJSON(f.e, http.MethodGet, "/api/detections?limit=10", "")
	env = envelope(t, rec)
	require.Equal(t, http.StatusOK, env.Status)
	list = env.Data.(map[string]interface{})
	assert.EqualValues(t, 1, list["total"])
}

func TestListLimitValidation(t *testing.T) {
	f := newFixture(t, 0)

	rec := doJSON(f.e, http.MethodGet, "/api/detections?limit=100000", "")
	env := envelope(t, rec)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}
