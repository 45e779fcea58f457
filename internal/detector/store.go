package detector

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ThreatLens/pkg/iforest"
	"ThreatLens/pkg/logger"
)

// artifact is the on-disk model envelope. The forest itself carries
// its own gob encoding; the envelope adds identity and schema.
type artifact struct {
	ID        string
	TrainedAt time.Time
	TrainedOn int
	SchemaVer int
	Forest    []byte
}

// ArtifactStore persists trained models so a restart can resume
// scoring without waiting for the first training cycle.
type ArtifactStore struct {
	path string
	log  *logger.Logger
}

// NewArtifactStore persists models at path.
func NewArtifactStore(path string, log *logger.Logger) *ArtifactStore {
	return &ArtifactStore{path: path, log: log}
}

// Save writes the model atomically: encode to a temp file in the same
// directory, then rename over the target.
func (s *ArtifactStore) Save(m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var forestBuf bytes.Buffer
	if err := m.Forest.Encode(&forestBuf); err != nil {
		tmp.Close()
		return fmt.Errorf("encode forest: %w", err)
	}

	art := artifact{
		ID:        m.ID,
		TrainedAt: m.TrainedAt,
		TrainedOn: m.TrainedOn,
		SchemaVer: m.SchemaVer,
		Forest:    forestBuf.Bytes(),
	}
	if err := gob.NewEncoder(tmp).Encode(art); err != nil {
		tmp.Close()
		return fmt.Errorf("encode model artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp model file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("publish model file: %w", err)
	}

	s.log.Info("model artifact saved",
		logger.String("model_id", m.ID),
		logger.String("path", s.path),
	)
	return nil
}

// Load restores the persisted model. A missing file is not an error
// condition worth failing startup over; it returns (nil, nil).
func (s *ArtifactStore) Load() (*Model, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()

	var art artifact
	if err := gob.NewDecoder(f).Decode(&art); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}

	forest, err := iforest.Decode(bytes.NewReader(art.Forest))
	if err != nil {
		return nil, err
	}

	m := &Model{
		ID:        art.ID,
		Forest:    forest,
		TrainedAt: art.TrainedAt,
		TrainedOn: art.TrainedOn,
		SchemaVer: art.SchemaVer,
		Loaded:    true,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
