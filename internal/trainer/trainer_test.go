package trainer

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/decision"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
)

type sliceSource struct {
	readings []model.Reading
	err      error
}

func (s sliceSource) ReadingsByTime(context.Context) ([]model.Reading, error) {
	return s.readings, s.err
}

func quietTrainer(src ReadingSource) *Trainer {
	return New(src, Config{KMeans: DefaultKMeansConfig(), Logger: log.New(io.Discard, "", 0)})
}

// twoGroups returns 6 dry readings (soil ~10) and 6 wet readings (soil ~80),
// interleaved in time.
func twoGroups() []model.Reading {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var out []model.Reading
	for i := 0; i < 6; i++ {
		out = append(out,
			model.Reading{ID: uint(2*i + 1), Temperature: 28 + float64(i)*0.3, Humidity: 45 + float64(i)*0.5, SoilMoisture: 9 + float64(i)*0.4, Timestamp: base.Add(time.Duration(2*i) * time.Minute)},
			model.Reading{ID: uint(2*i + 2), Temperature: 21 + float64(i)*0.3, Humidity: 70 + float64(i)*0.5, SoilMoisture: 79 + float64(i)*0.4, Timestamp: base.Add(time.Duration(2*i+1) * time.Minute)},
		)
	}
	return out
}

func TestTrainSeparatesDryAndWetGroups(t *testing.T) {
	readings := twoGroups()
	a, err := quietTrainer(sliceSource{readings: readings}).Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if a.TrainedRows != 12 {
		t.Fatalf("trained rows = %d", a.TrainedRows)
	}
	on := a.Centroids[a.OnLabel]
	off := a.Centroids[1-a.OnLabel]
	if on[2] > 15 || off[2] < 75 {
		t.Fatalf("on centroid %v should be the dry group, off centroid %v the wet group", on, off)
	}

	e, err := decision.NewEngine(a)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	for _, r := range readings {
		pump, _ := e.Predict(r.Features())
		if pump != (r.SoilMoisture < 50) {
			t.Fatalf("reading %+v -> pump %v", r, pump)
		}
	}
}

func TestTrainIsReproducible(t *testing.T) {
	src := sliceSource{readings: twoGroups()}
	a, err := quietTrainer(src).Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	for i := 0; i < 5; i++ {
		b, err := quietTrainer(src).Train(context.Background())
		if err != nil {
			t.Fatalf("train %d: %v", i, err)
		}
		if *a != *b {
			t.Fatalf("run %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestOnLabelHasStrictlyLowerMeanSoil(t *testing.T) {
	X := [][]float64{{0, 0, 80}, {0, 0, 70}, {0, 0, 10}, {0, 0, 20}}
	if got := OnLabel(X, []int{0, 0, 1, 1}); got != 1 {
		t.Fatalf("on label = %d, want 1", got)
	}
	if got := OnLabel(X, []int{1, 1, 0, 0}); got != 0 {
		t.Fatalf("on label = %d, want 0", got)
	}
	// cluster 1 empty -> +Inf, never ON
	if got := OnLabel(X, []int{0, 0, 0, 0}); got != 0 {
		t.Fatalf("on label with empty cluster 1 = %d, want 0", got)
	}
	// cluster 0 empty -> +Inf, never ON
	if got := OnLabel(X, []int{1, 1, 1, 1}); got != 1 {
		t.Fatalf("on label with empty cluster 0 = %d, want 1", got)
	}
	// equal means -> cluster 1
	tie := [][]float64{{0, 0, 30}, {0, 0, 50}, {0, 0, 40}, {0, 0, 40}}
	if got := OnLabel(tie, []int{0, 0, 1, 1}); got != 1 {
		t.Fatalf("on label with equal means = %d, want 1", got)
	}
}

func TestTrainWithoutReadings(t *testing.T) {
	_, err := quietTrainer(sliceSource{}).Train(context.Background())
	if !errors.Is(err, ErrNoReadings) {
		t.Fatalf("err = %v, want ErrNoReadings", err)
	}
	boom := errors.New("db gone")
	if _, err := quietTrainer(sliceSource{err: boom}).Train(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped source error", err)
	}
}

func TestFitWarnsButTrainsOnSmallDatasets(t *testing.T) {
	X := [][]float64{{25, 60, 12}, {26, 61, 11}, {20, 70, 80}}
	a, err := quietTrainer(nil).Fit(X)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if a.Centroids[a.OnLabel][2] > 20 {
		t.Fatalf("on centroid = %v", a.Centroids[a.OnLabel])
	}
	if _, err := quietTrainer(nil).Fit([][]float64{{1, 2, 3}}); !errors.Is(err, ErrTooFewSamples) {
		t.Fatalf("single row err = %v", err)
	}
}

func TestFitHandlesIdenticalRows(t *testing.T) {
	X := make([][]float64, 10)
	for i := range X {
		X[i] = []float64{22, 50, 40}
	}
	a, err := quietTrainer(nil).Fit(X)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if a.Inertia != 0 {
		t.Fatalf("inertia = %v, want 0", a.Inertia)
	}
}

func TestMediansIgnoreMissingValues(t *testing.T) {
	nan := math.NaN()
	X := [][]float64{{1, nan, 5}, {3, 10, nan}, {2, 20, 7}, {nan, 30, 6}}
	m, err := FitMedians(X, 3)
	if err != nil {
		t.Fatalf("medians: %v", err)
	}
	want := []float64{2, 20, 6}
	for i := range want {
		if m[i] != want[i] {
			t.Fatalf("medians = %v, want %v", m, want)
		}
	}
	even, _ := FitMedians([][]float64{{1, 1, 1}, {4, 4, 4}}, 3)
	if even[0] != 2.5 {
		t.Fatalf("even median = %v, want 2.5", even[0])
	}
	imp := Impute(X, m)
	if imp[0][1] != 20 || imp[1][2] != 6 || imp[3][0] != 2 {
		t.Fatalf("imputed = %v", imp)
	}
	if _, err := FitMedians([][]float64{{nan, 1, 1}}, 3); err == nil {
		t.Fatalf("expected error for all-missing feature")
	}
}
