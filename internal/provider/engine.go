package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/chess/uci"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

// Chooser is implemented by *chess.Engine.
type Chooser interface {
	Choose(ctx context.Context, fen string, level domain.Difficulty) (chess.Choice, error)
}

// EngineProvider asks the local UCI engine for a move.
type EngineProvider struct {
	engine Chooser
}

func NewEngineProvider(engine Chooser) (*EngineProvider, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	return &EngineProvider{engine: engine}, nil
}

func (p *EngineProvider) RequestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	pos, err := chess.Parse(req.FEN)
	if err != nil {
		return MoveResponse{}, err
	}
	moves := chess.LegalUCI(pos)
	if len(moves) == 0 {
		return MoveResponse{}, nil
	}
	choice, err := p.engine.Choose(ctx, chess.Serialize(pos), req.Difficulty)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return MoveResponse{}, err
		case errors.Is(err, uci.ErrEngineClosed):
			return MoveResponse{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return MoveResponse{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	return MoveResponse{BestMove: choice.Move, ValidMoves: moves}, nil
}
