package game

import (
	"strings"
	"time"

	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

// Phase is the interactivity state the board is in.
type Phase int

const (
	PhaseWaitingForHuman Phase = iota
	PhaseAwaitingAI
	PhaseGameEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingAI:
		return "awaiting_ai"
	case PhaseGameEnded:
		return "game_ended"
	default:
		return "waiting_for_human"
	}
}

// State is an immutable snapshot of a controller. Version increases with every change,
// Epoch with every reset.
type State struct {
	Version    uint64
	Epoch      uint64
	GameID     string
	FEN        string
	History    []domain.MoveRecord
	HumanSide  domain.Side
	Difficulty domain.Difficulty
	Outcome    domain.Outcome
	InFlight   bool
	LastError  string
	Notice     string
	StartedAt  time.Time
}

// SideToMove is read from the FEN active colour field.
func (s State) SideToMove() domain.Side {
	fields := strings.Fields(s.FEN)
	if len(fields) > 1 && fields[1] == "b" {
		return domain.Black
	}
	return domain.White
}

func (s State) AITurn() bool {
	return !s.Outcome.Ended && s.SideToMove() != s.HumanSide
}

// Pending reports an AI turn with no request outstanding, e.g. after a provider failure.
func (s State) Pending() bool {
	return s.AITurn() && !s.InFlight
}

func (s State) Phase() Phase {
	switch {
	case s.Outcome.Ended:
		return PhaseGameEnded
	case s.AITurn():
		return PhaseAwaitingAI
	default:
		return PhaseWaitingForHuman
	}
}

// Interactive reports whether human input is accepted.
func (s State) Interactive() bool {
	return s.Phase() == PhaseWaitingForHuman
}

func (s State) LastMove() (domain.MoveRecord, bool) {
	if len(s.History) == 0 {
		return domain.MoveRecord{}, false
	}
	return s.History[len(s.History)-1], true
}
