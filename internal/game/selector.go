package game

import (
	"context"
	"fmt"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/provider"
)

// MoveSelector picks a legal move locally when the provider answered without a usable one.
type MoveSelector interface {
	SelectMove(ctx context.Context, fen string, level domain.Difficulty) (string, error)
}

// FirstLegal plays the first legal move in engine order.
type FirstLegal struct{}

func (FirstLegal) SelectMove(_ context.Context, fen string, _ domain.Difficulty) (string, error) {
	pos, err := chess.Parse(fen)
	if err != nil {
		return "", err
	}
	moves := chess.LegalUCI(pos)
	if len(moves) == 0 {
		return "", chess.ErrNoLegalMoves
	}
	return moves[0], nil
}

// EngineSelector asks the local UCI engine and falls back to FirstLegal when it fails.
type EngineSelector struct {
	Engine provider.Chooser
}

func (s EngineSelector) SelectMove(ctx context.Context, fen string, level domain.Difficulty) (string, error) {
	if s.Engine == nil {
		return FirstLegal{}.SelectMove(ctx, fen, level)
	}
	choice, err := s.Engine.Choose(ctx, fen, level)
	if err != nil || choice.Move == "" {
		mv, ferr := FirstLegal{}.SelectMove(ctx, fen, level)
		if ferr != nil {
			return "", fmt.Errorf("engine select: %v; %w", err, ferr)
		}
		return mv, nil
	}
	return choice.Move, nil
}
