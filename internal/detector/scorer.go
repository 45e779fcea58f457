package detector

import (
	"time"

	"ThreatLens/internal/domain/models"
	"ThreatLens/internal/feature"
)

// Scorer evaluates events against whatever model the registry holds.
type Scorer struct {
	registry *Registry
	now      func() time.Time
}

// NewScorer creates a scorer reading models from the registry.
func NewScorer(registry *Registry) *Scorer {
	return &Scorer{registry: registry, now: time.Now}
}

// Score evaluates one event. It returns ErrModelNotReady during the
// cold-start window before the first model is published.
func (s *Scorer) Score(e *models.ThreatEvent) (*models.ScoreResult, error) {
	m := s.registry.Current()
	if m == nil {
		return nil, ErrModelNotReady
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	score, err := m.Forest.DecisionFunction(feature.Encode(e))
	if err != nil {
		return nil, err
	}

	verdict := "normal"
	anomaly := score < 0
	if anomaly {
		verdict = "anomaly"
	}

	return &models.ScoreResult{
		Event:     *e,
		Verdict:   verdict,
		Score:     score,
		ModelID:   m.ID,
		ScoredAt:  s.now(),
		IsAnomaly: anomaly,
	}, nil
}
