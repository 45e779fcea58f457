package detector

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

	"ThreatLens/internal/domain/models"
	"ThreatLens/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

// fakeEventStore serves a fixed history.
type fakeEventStore struct {
	events []*models.ThreatEvent
	err    error
}

func (f *fakeEventStore) Init(context.Context) error                              { return nil }
func (f *fakeEventStore) Store(context.Context, *models.ThreatEvent) error        { return nil }
func (f *fakeEventStore) StoreBatch(context.Context, []*models.ThreatEvent) error { return nil }
func (f *fakeEventStore) Health(context.Context) error                            { return nil }
func (f *fakeEventStore) Close() error                                            { return nil }

func (f *fakeEventStore) FetchAll(context.Context) ([]*models.ThreatEvent, error) {
	return f.events, f.err
}

func (f *fakeEventStore) FetchSince(_ context.Context, _ time.Time, limit int) ([]*models.ThreatEvent, error) {
	if limit > len(f.events) {
		limit = len(f.events)
	}
	return f.events[:limit], f.err
}

func normalHistory(n int) []*models.ThreatEvent {
	rng := rand.New(rand.NewSource(21))
	base := time.Date(2025, 2, 5, 9, 0, 0, 0, time.UTC)
	events := make([]*models.ThreatEvent, n)
	for i := range events {
		events[i] = &models.ThreatEvent{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			SourceAddr: "192.168.1.10",
			Username:   "alice",
			EventType:  "login_attempt",
			EventValue: 1 + rng.Float64(),
		}
	}
	return events
}

func TestTrainerEmptyHistory(t *testing.T) {
	tr := NewTrainer(&fakeEventStore{}, testLogger(t))

	m, rec, err := tr.Train(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Nil(t, m)
	require.NotNil(t, rec)
	assert.Equal(t, "skipped", rec.Result)
	assert.Zero(t, rec.Samples)
}

func TestTrainerStoreError(t *testing.T) {
	tr := NewTrainer(&fakeEventStore{err: errors.New("boom")}, testLogger(t))

	m, rec, err := tr.Train(context.Background())
	assert.Error(t, err)
	assert.Nil(t, m)
	require.NotNil(t, rec)
	assert.Equal(t, "failed", rec.Result)
}

func TestTrainerSuccess(t *testing.T) {
	store := &fakeEventStore{events: normalHistory(300)}
	tr := NewTrainer(store, testLogger(t), WithTrees(25), WithSampleSize(64))

	m, rec, err := tr.Train(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 300, m.TrainedOn)
	assert.NotEmpty(t, m.ID)
	assert.NoError(t, m.Validate())
	require.NotNil(t, rec)
	assert.Equal(t, "success", rec.Result)
	assert.Equal(t, m.ID, rec.ModelID)
	assert.Equal(t, 300, rec.Samples)
}

func TestScorerColdStart(t *testing.T) {
	s := NewScorer(NewRegistry())

	_, err := s.Score(&models.ThreatEvent{
		Timestamp:  time.Now(),
		SourceAddr: "10.0.0.1",
		Username:   "bob",
		EventValue: 1,
	})
	assert.ErrorIs(t, err, ErrModelNotReady)
}

func TestScorerVerdicts(t *testing.T) {
	store := &fakeEventStore{events: normalHistory(500)}
	tr := NewTrainer(store, testLogger(t), WithTrees(100), WithSampleSize(128))

	m, _, err := tr.Train(context.Background())
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Publish(m)
	s := NewScorer(reg)

	// Event in the middle of the training history.
	normal, err := s.Score(&models.ThreatEvent{
		Timestamp:  store.events[250].Timestamp,
		SourceAddr: "192.168.1.10",
		Username:   "alice",
		EventType:  "login_attempt",
		EventValue: 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "normal", normal.Verdict)
	assert.False(t, normal.IsAnomaly)
	assert.Positive(t, normal.Score)
	assert.Equal(t, m.ID, normal.ModelID)

	// Far outside the history in time, address and value.
	anomaly, err := s.Score(&models.ThreatEvent{
		Timestamp:  time.Date(2031, 1, 1, 3, 0, 0, 0, time.UTC),
		SourceAddr: "203.0.113.99",
		Username:   "svc-unknown",
		EventType:  "privilege_escalation",
		EventValue: 9999,
	})
	require.NoError(t, err)
	assert.Equal(t, "anomaly", anomaly.Verdict)
	assert.True(t, anomaly.IsAnomaly)
	assert.Negative(t, anomaly.Score)
}

func TestRegistryPublishAndInfo(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Info()
	assert.False(t, ok)
	assert.Nil(t, reg.Current())

	reg.Publish(nil)
	assert.Nil(t, reg.Current())

	store := &fakeEventStore{events: normalHistory(100)}
	m, _, err := NewTrainer(store, testLogger(t), WithTrees(10), WithSampleSize(32)).Train(context.Background())
	require.NoError(t, err)

	reg.Publish(m)
	info, ok := reg.Info()
	require.True(t, ok)
	assert.Equal(t, m.ID, info.ID)
	assert.Equal(t, 100, info.TrainedOn)
	assert.False(t, info.Loaded)

	age, ok := reg.Age(m.TrainedAt.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, time.Minute, age)
}

func TestRegistryConcurrentSwap(t *testing.T) {
	store := &fakeEventStore{events: normalHistory(100)}
	tr := NewTrainer(store, testLogger(t), WithTrees(10), WithSampleSize(32))

	m1, _, err := tr.Train(context.Background())
	require.NoError(t, err)
	m2, _, err := tr.Train(context.Background())
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Publish(m1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				cur := reg.Current()
				require.NotNil(t, cur)
				assert.NoError(t, cur.Validate())
			}
		}()
	}
	for i := 0; i < 100; i++ {
		reg.Publish(m1)
		reg.Publish(m2)
	}
	wg.Wait()

	assert.Equal(t, m2.ID, reg.Current().ID)
}

func TestArtifactStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	store := NewArtifactStore(path, testLogger(t))

	// Missing file: no model, no error.
	m, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, m)

	events := &fakeEventStore{events: normalHistory(200)}
	trained, _, err := NewTrainer(events, testLogger(t), WithTrees(25), WithSampleSize(64)).Train(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.Save(trained))

	restored, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, trained.ID, restored.ID)
	assert.Equal(t, trained.TrainedOn, restored.TrainedOn)
	assert.True(t, restored.Loaded)
	assert.NoError(t, restored.Validate())

	// A restored model scores identically to the one it was saved from.
	reg := NewRegistry()
	reg.Publish(restored)
	got, err := NewScorer(reg).Score(events.events[0])
	require.NoError(t, err)

	reg2 := NewRegistry()
	reg2.Publish(trained)
	want, err := NewScorer(reg2).Score(events.events[0])
	require.NoError(t, err)

	assert.Equal(t, want.Score, got.Score)
	assert.Equal(t, want.Verdict, got.Verdict)
}

func TestArtifactStoreUnfittedSave(t *testing.T) {
	store := NewArtifactStore(filepath.Join(t.TempDir(), "model.bin"), testLogger(t))
	err := store.Save(&Model{})
	assert.Error(t, err)
}
