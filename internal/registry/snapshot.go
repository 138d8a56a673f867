package registry

import (
	"math"
	"slices"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// tieTolerance is the distance difference under which two candidates are
// considered equidistant. The earlier entry wins a tie.
const tieTolerance = 1e-12

// Snapshot is an immutable set of known identities. Entries keep load
// order, which is the sorted order of the source file names.
type Snapshot struct {
	entries   []domain.KnownIdentity
	metric    Metric
	threshold float64
}

// NewSnapshot copies entries so callers cannot mutate the snapshot.
func NewSnapshot(entries []domain.KnownIdentity, metric Metric, threshold float64) *Snapshot {
	copied := make([]domain.KnownIdentity, len(entries))
	for i, e := range entries {
		copied[i] = domain.KnownIdentity{
			IdentityID: e.IdentityID,
			Embedding:  slices.Clone(e.Embedding),
			Source:     e.Source,
		}
	}
	return &Snapshot{entries: copied, metric: metric, threshold: threshold}
}

// Match returns the identity with the minimum distance when that distance
// is below the threshold, otherwise UnknownIdentity. Within tieTolerance
// the earlier entry keeps the identity, but the distance returned and
// compared against the threshold is always the true minimum, +Inf for an
// empty snapshot.
func (s *Snapshot) Match(embedding []float64) (string, float64) {
	best := -1
	bestDistance := math.Inf(1)
	minDistance := math.Inf(1)

	for i := range s.entries {
		d := s.metric.Distance(embedding, s.entries[i].Embedding)
		if d < bestDistance-tieTolerance {
			best, bestDistance = i, d
		}
		if d < minDistance {
			minDistance = d
		}
	}

	if best < 0 || minDistance >= s.threshold {
		return domain.UnknownIdentity, minDistance
	}
	return s.entries[best].IdentityID, minDistance
}

// Identify matches an observation and fills in the confidence.
func (s *Snapshot) Identify(obs domain.FaceObservation) domain.IdentificationResult {
	id, distance := s.Match(obs.Embedding)
	return domain.IdentificationResult{
		Box:        obs.Box,
		IdentityID: id,
		Distance:   distance,
		Confidence: s.metric.Confidence(distance, s.threshold),
	}
}

func (s *Snapshot) Len() int {
	return len(s.entries)
}

func (s *Snapshot) Metric() Metric {
	return s.metric
}

func (s *Snapshot) Threshold() float64 {
	return s.threshold
}

// Identities lists identity ids in load order.
func (s *Snapshot) Identities() []domain.KnownIdentity {
	out := make([]domain.KnownIdentity, len(s.entries))
	for i, e := range s.entries {
		out[i] = domain.KnownIdentity{IdentityID: e.IdentityID, Source: e.Source}
	}
	return out
}
