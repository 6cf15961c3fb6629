package provider

import (
	"context"
	"errors"

	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

var (
	ErrProviderFailure           = errors.New("move provider failure")
	ErrMalformedProviderResponse = errors.New("malformed move provider response")
	ErrProviderUnavailable       = errors.New("move provider unavailable")
)

type MoveRequest struct {
	FEN        string
	Difficulty domain.Difficulty
}

// MoveResponse mirrors the provider contract: bestMove may be empty and validMoves may be empty.
// Moves are UCI strings.
type MoveResponse struct {
	BestMove   string   `json:"bestMove"`
	ValidMoves []string `json:"validMoves"`
}

// Empty reports whether the response carries no usable move at all.
func (r MoveResponse) Empty() bool {
	return r.BestMove == "" && len(r.ValidMoves) == 0
}

// MoveProvider chooses a move for the side to move in req.FEN. It may be slow and may fail.
type MoveProvider interface {
	RequestMove(ctx context.Context, req MoveRequest) (MoveResponse, error)
}

// Func adapts a function to MoveProvider.
type Func func(ctx context.Context, req MoveRequest) (MoveResponse, error)

func (f Func) RequestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	return f(ctx, req)
}
