package chess

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/chess/uci"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

var ErrNoLegalMoves = errors.New("no legal moves")

// Engine picks moves with a local Stockfish, weakened per difficulty.
type Engine struct {
	pool   *uci.Pool
	logger *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

type Choice struct {
	Move       string
	BestMove   string
	Candidates []Candidate
	Duration   time.Duration
}

func NewEngine(pool *uci.Pool, logger *zap.Logger) (*Engine, error) {
	if pool == nil {
		return nil, fmt.Errorf("uci pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		pool:   pool,
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Choose searches fen and returns a move in UCI notation.
func (e *Engine) Choose(ctx context.Context, fen string, level domain.Difficulty) (Choice, error) {
	preset, err := GetPreset(level)
	if err != nil {
		return Choice{}, err
	}
	if err := ValidatePreset(preset); err != nil {
		return Choice{}, err
	}

	start := time.Now()
	session, err := e.pool.Acquire(ctx, optionsFromPreset(preset))
	if err != nil {
		return Choice{}, fmt.Errorf("acquire engine: %w", err)
	}
	var releaseErr error
	defer func() { e.pool.Release(session, releaseErr) }()

	res, err := session.Search(ctx, fen, limitsFromPreset(preset))
	if err != nil {
		releaseErr = err
		return Choice{}, err
	}

	candidates := make([]Candidate, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		candidates = append(candidates, Candidate{Move: c.Move, EvalCP: c.EvalCP, Principal: c.Principal})
	}
	if len(candidates) == 0 {
		if res.BestMove == "" {
			return Choice{}, ErrNoLegalMoves
		}
		candidates = append(candidates, Candidate{Move: res.BestMove, Principal: []string{res.BestMove}})
	}

	chosen, err := SelectCandidate(preset, candidates, e.random())
	if err != nil {
		return Choice{}, err
	}
	choice := Choice{
		Move:       chosen.Move,
		BestMove:   res.BestMove,
		Candidates: candidates,
		Duration:   time.Since(start),
	}
	e.logger.Debug("engine move chosen",
		zap.String("fen", fen),
		zap.String("difficulty", level.String()),
		zap.String("move", choice.Move),
		zap.String("best", choice.BestMove),
		zap.Duration("took", choice.Duration))
	return choice, nil
}

func (e *Engine) random() *rand.Rand {
	e.randMu.Lock()
	seed := e.rand.Int63()
	e.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

func (e *Engine) SetRandomSeed(seed int64) {
	e.randMu.Lock()
	e.rand = rand.New(rand.NewSource(seed))
	e.randMu.Unlock()
}

func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}
