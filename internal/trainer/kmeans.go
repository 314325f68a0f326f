package trainer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KMeansConfig mirrors the usual k-means knobs. Runs are reproducible for
// a given Seed.
type KMeansConfig struct {
	K       int
	NInit   int
	MaxIter int
	Tol     float64
	Seed    int64
}

func DefaultKMeansConfig() KMeansConfig {
	return KMeansConfig{K: 2, NInit: 10, MaxIter: 300, Tol: 1e-4, Seed: 42}
}

type KMeansResult struct {
	Centroids  [][]float64
	Labels     []int
	Inertia    float64
	Iterations int
}

var ErrTooFewSamples = errors.New("kmeans: fewer samples than clusters")

// KMeans runs Lloyd's algorithm NInit times from k-means++ seeds and keeps
// the run with the lowest inertia (sum of squared distances to the
// assigned centroid).
func KMeans(X [][]float64, cfg KMeansConfig) (KMeansResult, error) {
	if cfg.K <= 0 {
		return KMeansResult{}, fmt.Errorf("kmeans: invalid k %d", cfg.K)
	}
	if len(X) < cfg.K {
		return KMeansResult{}, fmt.Errorf("%w: n_samples=%d k=%d", ErrTooFewSamples, len(X), cfg.K)
	}
	if cfg.NInit <= 0 {
		cfg.NInit = 1
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 300
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	tol := scaledTol(X, cfg.Tol)

	var best KMeansResult
	for run := 0; run < cfg.NInit; run++ {
		centers := initPlusPlus(X, cfg.K, rng)
		res := lloyd(X, centers, cfg.MaxIter, tol)
		if run == 0 || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

// scaledTol makes the tolerance relative to the data spread: tol times the
// mean per-feature variance.
func scaledTol(X [][]float64, tol float64) float64 {
	nf := len(X[0])
	col := make([]float64, len(X))
	var sum float64
	for f := 0; f < nf; f++ {
		for i := range X {
			col[i] = X[i][f]
		}
		sum += stat.PopVariance(col, nil)
	}
	return tol * sum / float64(nf)
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// nearest returns the closest center and its squared distance; ties keep
// the lower index.
func nearest(x []float64, centers [][]float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for k, c := range centers {
		if d := sqDist(x, c); d < bestD {
			best, bestD = k, d
		}
	}
	return best, bestD
}

// initPlusPlus is greedy k-means++: each new center is the best of a few
// D²-weighted candidates.
func initPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(X)
	trials := 2 + int(math.Log(float64(k)))

	centers := make([][]float64, 0, k)
	centers = append(centers, clone(X[rng.Intn(n)]))

	closest := make([]float64, n)
	for i := range X {
		closest[i] = sqDist(X[i], centers[0])
	}
	pot := floats.Sum(closest)

	for len(centers) < k {
		bestCand, bestPot := -1, math.Inf(1)
		var bestClosest []float64
		for t := 0; t < trials; t++ {
			cand := sampleD2(closest, pot, rng)
			next := make([]float64, n)
			for i := range X {
				next[i] = math.Min(closest[i], sqDist(X[i], X[cand]))
			}
			if p := floats.Sum(next); p < bestPot {
				bestCand, bestPot, bestClosest = cand, p, next
			}
		}
		centers = append(centers, clone(X[bestCand]))
		closest, pot = bestClosest, bestPot
	}
	return centers
}

// sampleD2 picks an index with probability proportional to weights. With
// all weights zero (identical points) it picks uniformly.
func sampleD2(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.Intn(len(weights))
	}
	r := rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}

func lloyd(X [][]float64, centers [][]float64, maxIter int, tol float64) KMeansResult {
	n, k, nf := len(X), len(centers), len(X[0])
	labels := make([]int, n)
	dists := make([]float64, n)
	iter := 0

	for iter = 1; iter <= maxIter; iter++ {
		for i, x := range X {
			labels[i], dists[i] = nearest(x, centers)
		}

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, nf)
		}
		for i, x := range X {
			floats.Add(next[labels[i]], x)
			counts[labels[i]]++
		}
		for c := range next {
			if counts[c] == 0 {
				// Reseed an empty cluster on the point farthest from its center.
				far := floats.MaxIdx(dists)
				copy(next[c], X[far])
				dists[far] = 0
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		var shift float64
		for c := range centers {
			shift += sqDist(centers[c], next[c])
		}
		centers = next
		if shift <= tol {
			break
		}
	}
	if iter > maxIter {
		iter = maxIter
	}

	var inertia float64
	for i, x := range X {
		labels[i], dists[i] = nearest(x, centers)
		inertia += dists[i]
	}
	return KMeansResult{Centroids: centers, Labels: labels, Inertia: inertia, Iterations: iter}
}

func clone(x []float64) []float64 {
	return append([]float64(nil), x...)
}
