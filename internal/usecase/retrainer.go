package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"ThreatLens/internal/detector"
	domrepo "ThreatLens/internal/domain/repository"
	"ThreatLens/pkg/logger"
)

// Retrainer periodically rebuilds the model from the full event
// history and publishes the result. A failed or skipped run never
// touches the currently served model.
type Retrainer struct {
	trainer   *detector.Trainer
	registry  *detector.Registry
	artifacts *detector.ArtifactStore
	audit     domrepo.AuditSink
	metrics   domrepo.Metrics
	log       *logger.Logger

	interval time.Duration
	training atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRetrainer creates the retraining loop.
func NewRetrainer(
	trainer *detector.Trainer,
	registry *detector.Registry,
	artifacts *detector.ArtifactStore,
	audit domrepo.AuditSink,
	metrics domrepo.Metrics,
	log *logger.Logger,
	interval time.Duration,
) *Retrainer {
	return &Retrainer{
		trainer:   trainer,
		registry:  registry,
		artifacts: artifacts,
		audit:     audit,
		metrics:   metrics,
		log:       log,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Restore loads a persisted model into the registry so scoring can
// resume before the first training cycle. A missing artifact is fine.
func (r *Retrainer) Restore() error {
	m, err := r.artifacts.Load()
	if err != nil {
		r.metrics.RecordError("model_restore")
		return err
	}
	if m == nil {
		return nil
	}
	r.registry.Publish(m)
	r.metrics.RecordModelInfo(m.TrainedOn, m.TrainedAt.Unix())
	r.log.Info("model restored from artifact",
		logger.String("model_id", m.ID),
		logger.Int("trained_on", m.TrainedOn),
	)
	return nil
}

// Start runs one immediate training pass, then ticks at the configured
// interval until Stop.
func (r *Retrainer) Start(ctx context.Context) {
	go func() {
		defer close(r.doneCh)

		r.Tick(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.Tick(ctx)
			}
		}
	}()
}

// Stop signals the loop and waits for the in-flight tick to finish.
func (r *Retrainer) Stop(ctx context.Context) error {
	close(r.stopCh)
	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Training reports whether a run is in flight.
func (r *Retrainer) Training() bool { return r.training.Load() }

// Tick runs one training pass. Overlapping ticks are dropped: if a run
// is still in flight the new tick returns immediately.
func (r *Retrainer) Tick(ctx context.Context) {
	if !r.training.CompareAndSwap(false, true) {
		r.log.Warn("training still in flight, skipping tick")
		r.metrics.RecordTrainingRun("overlap_skipped")
		return
	}
	defer r.training.Store(false)

	model, rec, err := r.trainer.Train(ctx)
	if rec != nil {
		if auditErr := r.audit.RecordTraining(ctx, rec); auditErr != nil {
			// Audit is best effort; a failed write never fails the run.
			r.metrics.RecordError("audit_training")
			r.log.Warn("training audit write failed", logger.Error(auditErr))
		}
	}

	switch {
	case errors.Is(err, detector.ErrInsufficientData):
		r.metrics.RecordTrainingRun("skipped")
		r.log.Info("training skipped, no event history yet")
		return
	case err != nil:
		r.metrics.RecordTrainingRun("failed")
		r.log.Error("training failed, keeping current model", logger.Error(err))
		return
	}

	r.registry.Publish(model)
	r.metrics.RecordTrainingRun("success")
	r.metrics.RecordModelInfo(model.TrainedOn, model.TrainedAt.Unix())

	if err := r.artifacts.Save(model); err != nil {
		r.metrics.RecordError("model_persist")
		r.log.Error("model persist failed", logger.Error(err))
	}
}
