package decision

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

// Engine maps a feature vector to a pump command using a fixed Artifact.
// It never mutates its state after construction and is safe for
// concurrent use.
type Engine struct {
	artifact Artifact
}

func NewEngine(a *Artifact) (*Engine, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil artifact", ErrInvalidArtifact)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &Engine{artifact: *a}, nil
}

// LoadEngine reads the artifact once; call it at process start.
func LoadEngine(path string) (*Engine, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(a)
}

func (e *Engine) Artifact() Artifact { return e.artifact }

// Impute returns a copy of x with NaN entries replaced by the training
// medians.
func (e *Engine) Impute(x []float64) ([]float64, error) {
	if len(x) != entities.NumFeatures {
		return nil, fmt.Errorf("decision: got %d features, want %d", len(x), entities.NumFeatures)
	}
	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) {
			v = e.artifact.Medians[i]
		}
		out[i] = v
	}
	return out, nil
}

// Cluster returns the index of the nearest centroid after imputation. Ties
// go to the lower index.
func (e *Engine) Cluster(x []float64) (int, error) {
	imputed, err := e.Impute(x)
	if err != nil {
		return 0, err
	}
	best, bestDist := 0, math.Inf(1)
	for k := range e.artifact.Centroids {
		d := floats.Distance(imputed, e.artifact.Centroids[k][:], 2)
		if d < bestDist {
			best, bestDist = k, d
		}
	}
	return best, nil
}

// Predict reports whether the pump should be on for x.
func (e *Engine) Predict(x []float64) (bool, error) {
	k, err := e.Cluster(x)
	if err != nil {
		return false, err
	}
	return k == e.artifact.OnLabel, nil
}
