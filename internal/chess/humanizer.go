package chess

import (
	"errors"
	"math/rand"
)

type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

// SelectCandidate picks among the first PrimaryChoices candidates using the preset weights.
// Candidates must be ordered best first.
func SelectCandidate(p DifficultyPreset, candidates []Candidate, r *rand.Rand) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, errors.New("no candidates to choose from")
	}
	if err := ValidatePreset(p); err != nil {
		return Candidate{}, err
	}

	limit := min(p.PrimaryChoices, len(candidates))
	if limit == 1 {
		return candidates[0], nil
	}

	total := 0.0
	for i := 0; i < limit; i++ {
		total += p.CandidateWeights[i]
	}
	if total == 0 {
		return Candidate{}, errors.New("candidate weights sum to zero")
	}

	threshold := r.Float64() * total
	for i := 0; i < limit; i++ {
		threshold -= p.CandidateWeights[i]
		if threshold <= 0 {
			return candidates[i], nil
		}
	}
	return candidates[limit-1], nil
}
