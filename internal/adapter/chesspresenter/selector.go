package chesspresenter

import (
	"errors"
	"strings"
	"sync"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/game"
)

var (
	ErrInputDisabled = errors.New("board input disabled")
	ErrInvalidSquare = errors.New("invalid square")
)

// Selector turns click and drag gestures into move descriptors.
type Selector struct {
	mu       sync.Mutex
	selected string
}

// Selected returns the currently selected square, or "".
func (s *Selector) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Selector) Clear() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
}

// Click handles a click on square. It returns a move once a selected piece is sent to
// another square; otherwise it only updates the selection.
func (s *Selector) Click(st game.State, square string) (*chess.MoveDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !st.Interactive() {
		s.selected = ""
		return nil, ErrInputDisabled
	}
	square = strings.ToLower(strings.TrimSpace(square))
	if !chess.IsSquare(square) {
		return nil, ErrInvalidSquare
	}

	own := ownsPiece(chess.BoardFromFEN(st.FEN)[square], st.HumanSide)
	switch {
	case s.selected == "":
		if own {
			s.selected = square
		}
		return nil, nil
	case square == s.selected:
		s.selected = ""
		return nil, nil
	case own:
		s.selected = square
		return nil, nil
	}
	mv := &chess.MoveDescriptor{From: s.selected, To: square}
	s.selected = ""
	return mv, nil
}

// Drop handles a drag from one square to another. Dropping a piece where it started is not a move.
func (s *Selector) Drop(st game.State, from, to string) (*chess.MoveDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
	if !st.Interactive() {
		return nil, ErrInputDisabled
	}
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	if !chess.IsSquare(from) || !chess.IsSquare(to) {
		return nil, ErrInvalidSquare
	}
	if from == to {
		return nil, nil
	}
	return &chess.MoveDescriptor{From: from, To: to}, nil
}

func ownsPiece(piece string, side domain.Side) bool {
	if piece == "" {
		return false
	}
	white := strings.ToUpper(piece) == piece
	return white == (side == domain.White)
}
