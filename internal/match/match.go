// Package match compares face descriptors and picks the best identity for a probe.
package match

import (
	"math"

	"github.com/your-org/whome/internal/descriptor"
)

// Threshold is the similarity a candidate must strictly exceed to match.
const Threshold = 0.6

// Distance returns the Euclidean distance between a and b. Descriptors of
// different lengths are infinitely far apart.
func Distance(a, b descriptor.Descriptor) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Similarity is 1 - Distance. It is not clamped and goes negative for
// vectors further apart than 1.
func Similarity(a, b descriptor.Descriptor) float64 {
	return 1 - Distance(a, b)
}

// Candidate is anything that carries a stored descriptor.
type Candidate interface {
	CandidateDescriptor() descriptor.Descriptor
}

// BestMatch returns the candidate with the strictly greatest similarity to
// probe, provided it is strictly above Threshold. Candidates without a
// descriptor are skipped; on ties the earliest candidate wins.
func BestMatch[T Candidate](probe descriptor.Descriptor, candidates []T) (T, float64, bool) {
	var best T
	bestScore := Threshold
	found := false

	for _, c := range candidates {
		d := c.CandidateDescriptor()
		if len(d) == 0 {
			continue
		}
		s := Similarity(probe, d)
		if s > bestScore {
			best, bestScore, found = c, s, true
		}
	}

	if !found {
		var zero T
		return zero, 0, false
	}
	return best, bestScore, true
}
