package detector

import (
	"sync/atomic"
	"time"

	"ThreatLens/internal/domain/models"
)

// Registry holds the currently active model. Publish swaps the model
// atomically so readers on the hot scoring path never block and never
// observe a half-trained model.
type Registry struct {
	current atomic.Pointer[Model]
}

// NewRegistry returns an empty registry. Current returns nil until the
// first successful training run or artifact restore publishes a model.
func NewRegistry() *Registry {
	return &Registry{}
}

// Publish makes m the active model. A nil model is ignored.
func (r *Registry) Publish(m *Model) {
	if m == nil {
		return
	}
	r.current.Store(m)
}

// Current returns the active model, or nil when none is available.
func (r *Registry) Current() *Model {
	return r.current.Load()
}

// Info reports the active model for status endpoints.
func (r *Registry) Info() (models.ModelInfo, bool) {
	m := r.current.Load()
	if m == nil {
		return models.ModelInfo{}, false
	}
	return models.ModelInfo{
		ID:        m.ID,
		TrainedAt: m.TrainedAt,
		TrainedOn: m.TrainedOn,
		SchemaVer: m.SchemaVer,
		Loaded:    m.Loaded,
	}, true
}

// Age returns how long the active model has been in service.
func (r *Registry) Age(now time.Time) (time.Duration, bool) {
	m := r.current.Load()
	if m == nil {
		return 0, false
	}
	return now.Sub(m.TrainedAt), true
}
