package trainer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrSchemaMismatch means a persisted model and its feature schema
	// disagree, or the schema was written by an incompatible encoder.
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	// ErrArtifactNotFound means no model has been trained yet.
	ErrArtifactNotFound = errors.New("model artifact not found")
)

// Estimator names.
const (
	EstimatorGBT    = "gbt"
	EstimatorLinear = "linear"
)

// Artifact is the persisted output of a training run: one fitted model
// together with the schema it was trained against.
type Artifact struct {
	Version     string             `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	Estimator   string             `json:"estimator"`
	Schema      *Schema            `json:"schema"`
	Linear      *LinearModel       `json:"linear,omitempty"`
	GBT         *GBTModel          `json:"gbt,omitempty"`
	Metrics     map[string]Metrics `json:"metrics"`
	Importances []Importance       `json:"importances"`
	TrainRows   int                `json:"train_rows"`
	TestRows    int                `json:"test_rows"`
}

// Model returns the fitted estimator named by a.Estimator.
func (a *Artifact) Model() (Model, error) {
	switch a.Estimator {
	case EstimatorGBT:
		if a.GBT != nil {
			return a.GBT, nil
		}
	case EstimatorLinear:
		if a.Linear != nil {
			return a.Linear, nil
		}
	default:
		return nil, fmt.Errorf("unknown estimator %q", a.Estimator)
	}
	return nil, fmt.Errorf("artifact has no %s model", a.Estimator)
}

// Validate checks that the schema is intact and that the model expects
// exactly as many features as the schema encodes.
func (a *Artifact) Validate() error {
	if a.Schema == nil {
		return fmt.Errorf("%w: artifact has no schema", ErrSchemaMismatch)
	}
	if err := a.Schema.Validate(); err != nil {
		return err
	}
	m, err := a.Model()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if m.Width() != a.Schema.Width() {
		return fmt.Errorf("%w: model expects %d features, schema has %d", ErrSchemaMismatch, m.Width(), a.Schema.Width())
	}
	return nil
}

// SaveArtifact writes a to path. The file is written next to its final
// location and renamed into place so readers never see a partial artifact.
func SaveArtifact(path string, a *Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("installing artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads and validates the artifact at path.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decoding artifact: %v", ErrSchemaMismatch, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
