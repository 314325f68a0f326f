// Package trainer fits the pump decision model from persisted readings.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/decision"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

var ErrNoReadings = errors.New("no sensor data found to train the model")

// minRecommendedRows is the size below which training still runs but
// warns about model quality.
const minRecommendedRows = 10

// ReadingSource yields every persisted reading, oldest first.
type ReadingSource interface {
	ReadingsByTime(ctx context.Context) ([]model.Reading, error)
}

type Config struct {
	KMeans KMeansConfig
	Logger *log.Logger
}

type Trainer struct {
	source ReadingSource
	cfg    Config
	logger *log.Logger
}

func New(source ReadingSource, cfg Config) *Trainer {
	if cfg.KMeans.K == 0 {
		cfg.KMeans = DefaultKMeansConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Trainer{source: source, cfg: cfg, logger: logger}
}

// FeatureMatrix builds the (temperature, humidity, soil_moisture) matrix.
func FeatureMatrix(readings []model.Reading) [][]float64 {
	X := make([][]float64, len(readings))
	for i, r := range readings {
		X[i] = r.Features()
	}
	return X
}

// OnLabel picks the cluster whose members have the lower mean soil
// moisture. An empty cluster counts as +Inf; on a tie cluster 1 wins.
func OnLabel(X [][]float64, labels []int) int {
	means := [decision.NumClusters]float64{}
	for k := range means {
		var soil []float64
		for i, l := range labels {
			if l == k {
				soil = append(soil, X[i][entities.FeatureSoilMoisture])
			}
		}
		if len(soil) == 0 {
			means[k] = math.Inf(1)
			continue
		}
		means[k] = stat.Mean(soil, nil)
	}
	if means[0] < means[1] {
		return 0
	}
	return 1
}

// Train loads the readings and fits a new artifact.
func (t *Trainer) Train(ctx context.Context) (*decision.Artifact, error) {
	readings, err := t.source.ReadingsByTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}
	t.logger.Printf("trainer: dataset size: %d rows, features: %d", len(readings), entities.NumFeatures)
	return t.Fit(FeatureMatrix(readings))
}

// Fit trains on an explicit feature matrix. NaN marks a missing value.
func (t *Trainer) Fit(X [][]float64) (*decision.Artifact, error) {
	if len(X) == 0 {
		return nil, ErrNoReadings
	}
	if len(X) < minRecommendedRows {
		t.logger.Printf("trainer: warning: only %d rows available, model quality may be poor", len(X))
	}

	medians, err := FitMedians(X, entities.NumFeatures)
	if err != nil {
		return nil, fmt.Errorf("fit imputer: %w", err)
	}
	imputed := Impute(X, medians)

	cfg := t.cfg.KMeans
	cfg.K = decision.NumClusters
	res, err := KMeans(imputed, cfg)
	if err != nil {
		return nil, fmt.Errorf("fit kmeans: %w", err)
	}

	a := &decision.Artifact{
		OnLabel:     OnLabel(imputed, res.Labels),
		TrainedRows: len(X),
		Inertia:     res.Inertia,
	}
	copy(a.Medians[:], medians)
	for k, c := range res.Centroids {
		copy(a.Centroids[k][:], c)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	t.logger.Printf("trainer: kmeans converged in %d iterations, inertia=%.4f, on_label=%d (lower soil moisture)",
		res.Iterations, res.Inertia, a.OnLabel)
	return a, nil
}
