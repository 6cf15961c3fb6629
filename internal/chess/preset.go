package chess

import (
	"fmt"
	"runtime"

	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

// DifficultyPreset tunes the local engine for one difficulty level.
type DifficultyPreset struct {
	Level            domain.Difficulty
	SkillLevel       int
	Elo              int
	Threads          int
	HashMB           int
	MoveTimeMillis   int
	DepthCap         int
	MultiPV          int
	PrimaryChoices   int
	CandidateWeights []float64
}

var defaultThreads = min(max(runtime.NumCPU()/2, 1), 2)

var presets = map[domain.Difficulty]DifficultyPreset{
	domain.Beginner: {
		Level:            domain.Beginner,
		SkillLevel:       0,
		Elo:              0,
		Threads:          1,
		HashMB:           16,
		MoveTimeMillis:   40,
		DepthCap:         5,
		MultiPV:          4,
		PrimaryChoices:   4,
		CandidateWeights: []float64{0.4, 0.3, 0.2, 0.1},
	},
	domain.Intermediate: {
		Level:            domain.Intermediate,
		SkillLevel:       8,
		Elo:              1400,
		Threads:          defaultThreads,
		HashMB:           32,
		MoveTimeMillis:   150,
		DepthCap:         10,
		MultiPV:          3,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.7, 0.2, 0.1},
	},
	domain.Advanced: {
		Level:            domain.Advanced,
		SkillLevel:       20,
		Threads:          defaultThreads,
		HashMB:           128,
		MoveTimeMillis:   800,
		DepthCap:         22,
		MultiPV:          1,
		PrimaryChoices:   1,
		CandidateWeights: []float64{1.0},
	},
}

func GetPreset(level domain.Difficulty) (DifficultyPreset, error) {
	p, ok := presets[level]
	if !ok {
		return DifficultyPreset{}, fmt.Errorf("unknown difficulty %d", level)
	}
	p.CandidateWeights = append([]float64(nil), p.CandidateWeights...)
	return p, nil
}

func ValidatePreset(p DifficultyPreset) error {
	switch {
	case p.SkillLevel < 0 || p.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", p.SkillLevel)
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", p.HashMB)
	case p.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", p.MultiPV)
	case p.PrimaryChoices <= 0:
		return fmt.Errorf("primary choices must be > 0: %d", p.PrimaryChoices)
	case p.PrimaryChoices > p.MultiPV:
		return fmt.Errorf("primary choices (%d) must not exceed multipv (%d)", p.PrimaryChoices, p.MultiPV)
	case len(p.CandidateWeights) < p.PrimaryChoices:
		return fmt.Errorf("candidate weights (%d) must cover primary choices (%d)", len(p.CandidateWeights), p.PrimaryChoices)
	case p.MoveTimeMillis <= 0 && p.DepthCap <= 0:
		return fmt.Errorf("preset %s does not define search limits", p.Level)
	}
	sum := 0.0
	for i := 0; i < p.PrimaryChoices; i++ {
		if p.CandidateWeights[i] < 0 {
			return fmt.Errorf("candidate weight at index %d is negative: %f", i, p.CandidateWeights[i])
		}
		sum += p.CandidateWeights[i]
	}
	if sum == 0 {
		return fmt.Errorf("candidate weights sum to zero")
	}
	return nil
}
