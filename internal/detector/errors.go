package detector

import "errors"

var (
	// ErrModelNotReady is returned when scoring is requested before
	// any model has been trained or restored.
	ErrModelNotReady = errors.New("detector: model not yet trained")

	// ErrInsufficientData is returned when a training run finds no
	// events to train on.
	ErrInsufficientData = errors.New("detector: insufficient training data")

	// ErrSchemaMismatch is returned when a persisted model was trained
	// under a different feature schema version.
	ErrSchemaMismatch = errors.New("detector: model feature schema mismatch")
)
