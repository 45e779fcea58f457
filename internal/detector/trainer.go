package detector

import (
	"context"
	"fmt"
	"time"

	"ThreatLens/internal/domain/models"
	"ThreatLens/internal/domain/repository"
	"ThreatLens/internal/feature"
	"ThreatLens/pkg/iforest"
	"ThreatLens/pkg/logger"
)

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithContamination sets the expected anomaly fraction.
func WithContamination(c float64) TrainerOption {
	return func(t *Trainer) { t.contamination = c }
}

// WithSeed fixes the forest's random source.
func WithSeed(seed int64) TrainerOption {
	return func(t *Trainer) { t.seed = seed }
}

// WithTrees sets the ensemble size.
func WithTrees(n int) TrainerOption {
	return func(t *Trainer) { t.trees = n }
}

// WithSampleSize sets the per-tree sub-sample size.
func WithSampleSize(n int) TrainerOption {
	return func(t *Trainer) { t.sampleSize = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) { t.now = now }
}

// Trainer builds models from the full event history.
type Trainer struct {
	store repository.EventStore
	log   *logger.Logger

	contamination float64
	seed          int64
	trees         int
	sampleSize    int
	now           func() time.Time
}

// NewTrainer creates a trainer reading history from store.
func NewTrainer(store repository.EventStore, log *logger.Logger, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		store:         store,
		log:           log,
		contamination: 0.05,
		seed:          42,
		trees:         100,
		sampleSize:    256,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fetches the full event history, fits a fresh forest and
// returns the resulting model together with its audit record. The
// returned model is not published; that is the caller's decision.
func (t *Trainer) Train(ctx context.Context) (*Model, *models.TrainingRecord, error) {
	started := t.now()

	events, err := t.store.FetchAll(ctx)
	if err != nil {
		rec := t.record("", started, 0, "failed", err.Error())
		return nil, rec, fmt.Errorf("fetch training history: %w", err)
	}
	if len(events) == 0 {
		rec := t.record("", started, 0, "skipped", "no events in history")
		return nil, rec, ErrInsufficientData
	}

	forest := iforest.New(
		iforest.WithTrees(t.trees),
		iforest.WithSampleSize(t.sampleSize),
		iforest.WithContamination(t.contamination),
		iforest.WithSeed(t.seed),
	)
	if err := forest.Fit(feature.EncodeAll(events)); err != nil {
		rec := t.record("", started, len(events), "failed", err.Error())
		return nil, rec, fmt.Errorf("fit forest: %w", err)
	}

	trainedAt := t.now()
	model := &Model{
		ID:        newModelID(trainedAt),
		Forest:    forest,
		TrainedAt: trainedAt,
		TrainedOn: len(events),
		SchemaVer: feature.SchemaVersion,
	}

	detail := fmt.Sprintf("trained on %d events, %d trees, contamination %.3f",
		len(events), t.trees, t.contamination)
	rec := t.record(model.ID, started, len(events), "success", detail)

	t.log.Info("model trained",
		logger.String("model_id", model.ID),
		logger.Int("samples", len(events)),
		logger.Duration("took", trainedAt.Sub(started)),
	)

	return model, rec, nil
}

func (t *Trainer) record(modelID string, started time.Time, samples int, result, detail string) *models.TrainingRecord {
	return &models.TrainingRecord{
		ModelID:    modelID,
		StartedAt:  started,
		FinishedAt: t.now(),
		Samples:    samples,
		Result:     result,
		Detail:     detail,
	}
}
