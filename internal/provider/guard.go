package provider

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
)

// Guard checks another provider's answer against locally computed legal moves.
//
// The returned bestMove is the model's bestMove if legal, else the first legal entry of its
// validMoves, else the first local move. With local moves disabled the last step is skipped
// and an empty response is returned, leaving the local pick to the caller.
// Transport failures are passed through so the caller can leave the turn pending.
type Guard struct {
	next       MoveProvider
	logger     *zap.Logger
	localMoves bool
}

type GuardOption func(*Guard)

// WithLocalMoves controls whether the guard substitutes the first local legal move when the
// model offered no legal one. It is on by default.
func WithLocalMoves(enabled bool) GuardOption {
	return func(g *Guard) { g.localMoves = enabled }
}

func NewGuard(next MoveProvider, logger *zap.Logger, opts ...GuardOption) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{next: next, logger: logger, localMoves: true}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) RequestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	pos, err := chess.Parse(req.FEN)
	if err != nil {
		return MoveResponse{}, err
	}
	local := chess.LegalUCI(pos)
	if len(local) == 0 {
		return MoveResponse{}, nil
	}

	out, err := g.next.RequestMove(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrMalformedProviderResponse) {
			return MoveResponse{}, err
		}
		g.logger.Debug("provider output unusable, using local moves", zap.String("fen", req.FEN), zap.Error(err))
		out = MoveResponse{}
	}

	if out.BestMove != "" && slices.Contains(local, out.BestMove) {
		return MoveResponse{BestMove: out.BestMove, ValidMoves: local}, nil
	}
	for _, mv := range out.ValidMoves {
		if slices.Contains(local, mv) {
			g.logger.Debug("provider best move rejected, using its first legal move",
				zap.String("fen", req.FEN), zap.String("best", out.BestMove), zap.String("move", mv))
			return MoveResponse{BestMove: mv, ValidMoves: local}, nil
		}
	}
	if !g.localMoves {
		g.logger.Debug("provider gave no legal move", zap.String("fen", req.FEN), zap.String("best", out.BestMove))
		return MoveResponse{}, nil
	}
	g.logger.Debug("provider gave no legal move, using local move",
		zap.String("fen", req.FEN), zap.String("best", out.BestMove), zap.String("move", local[0]))
	return MoveResponse{BestMove: local[0], ValidMoves: local}, nil
}
