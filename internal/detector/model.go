package detector

import (
	"fmt"
	"time"

	"ThreatLens/internal/feature"
	"ThreatLens/pkg/iforest"
)

// Model is an immutable trained detector. Once published to the
// registry it is never mutated; retraining produces a fresh Model.
type Model struct {
	ID        string
	Forest    *iforest.Forest
	TrainedAt time.Time
	TrainedOn int
	SchemaVer int
	Loaded    bool
}

// newModelID derives a readable unique ID from the training time.
func newModelID(trainedAt time.Time) string {
	return fmt.Sprintf("iforest-%s", trainedAt.UTC().Format("20060102T150405.000Z0700"))
}

// Validate checks the model against the current feature schema.
func (m *Model) Validate() error {
	if m.SchemaVer != feature.SchemaVersion {
		return fmt.Errorf("%w: model schema %d, runtime schema %d",
			ErrSchemaMismatch, m.SchemaVer, feature.SchemaVersion)
	}
	if m.Forest == nil || !m.Forest.Fitted() {
		return ErrModelNotReady
	}
	return nil
}
