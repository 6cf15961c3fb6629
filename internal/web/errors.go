package web

import (
	"errors"
	"net/http"

	"github.com/park285/Cheese-LLM-Chess/internal/adapter/chesspresenter"
	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/game"
	"github.com/park285/Cheese-LLM-Chess/internal/session"
	"github.com/park285/Cheese-LLM-Chess/pkg/chessdto"
)

var errBadRequest = errors.New("bad request")

// classify maps a domain error to its HTTP status and wire body.
func classify(err error) (int, chessdto.DomainError) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, chessdto.DomainError{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, chesspresenter.ErrInvalidSquare):
		return http.StatusBadRequest, chessdto.DomainError{Code: "invalid_square", Message: err.Error()}
	case errors.Is(err, chess.ErrIllegalMove):
		return http.StatusUnprocessableEntity, chessdto.DomainError{Code: "illegal_move", Message: err.Error()}
	case errors.Is(err, chess.ErrMalformedPosition):
		return http.StatusUnprocessableEntity, chessdto.DomainError{Code: "malformed_position", Message: err.Error()}
	case errors.Is(err, game.ErrNotYourTurn):
		return http.StatusConflict, chessdto.DomainError{Code: "not_your_turn", Message: err.Error(), Retryable: true}
	case errors.Is(err, chesspresenter.ErrInputDisabled):
		return http.StatusConflict, chessdto.DomainError{Code: "input_disabled", Message: err.Error(), Retryable: true}
	case errors.Is(err, game.ErrGameOver):
		return http.StatusConflict, chessdto.DomainError{Code: "game_over", Message: err.Error()}
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, chessdto.DomainError{Code: "session_not_found", Message: err.Error()}
	case errors.Is(err, game.ErrClosed):
		return http.StatusGone, chessdto.DomainError{Code: "session_closed", Message: err.Error()}
	default:
		return http.StatusInternalServerError, chessdto.DomainError{Code: "internal", Message: "internal error", Retryable: true}
	}
}
