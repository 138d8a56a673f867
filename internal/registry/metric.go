package registry

import (
	"fmt"
	"math"
)

// Metric is fixed per deployment; distances under different metrics are
// never compared.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricEuclidean:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Distance returns +Inf for vectors of different or zero length.
func (m Metric) Distance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	if m == MetricEuclidean {
		return euclideanDistance(a, b)
	}
	return cosineDistance(a, b)
}

// Confidence maps a distance to a score in [0, 100], rounded to one
// decimal and non-increasing in distance.
//
// Cosine distance is read as a [0, 1] scale: 100 at 0, 0 at 1 or beyond.
// Euclidean distance is unbounded, so it is calibrated against the match
// threshold: 100 at 0, 50 at the threshold, 0 at twice the threshold.
func (m Metric) Confidence(distance, threshold float64) float64 {
	if math.IsNaN(distance) || math.IsInf(distance, 1) {
		return 0
	}

	var raw float64
	switch m {
	case MetricEuclidean:
		if threshold <= 0 {
			return 0
		}
		raw = 1 - distance/(2*threshold)
	default:
		raw = 1 - distance
	}

	score := math.Round(raw*100*10) / 10
	return math.Max(0, math.Min(100, score))
}

func cosineDistance(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 2
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// clamp floating point drift
	similarity = math.Max(-1, math.Min(1, similarity))

	return 1 - similarity
}

func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
