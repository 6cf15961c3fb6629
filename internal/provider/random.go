package provider

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
)

// RandomProvider plays a uniformly random legal move. It never fails on a valid position.
type RandomProvider struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRandomProvider(seed int64) *RandomProvider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomProvider{r: rand.New(rand.NewSource(seed))}
}

func (p *RandomProvider) RequestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	if err := ctx.Err(); err != nil {
		return MoveResponse{}, err
	}
	pos, err := chess.Parse(req.FEN)
	if err != nil {
		return MoveResponse{}, err
	}
	moves := chess.LegalUCI(pos)
	if len(moves) == 0 {
		return MoveResponse{}, nil
	}
	p.mu.Lock()
	pick := moves[p.r.Intn(len(moves))]
	p.mu.Unlock()
	return MoveResponse{BestMove: pick, ValidMoves: moves}, nil
}
