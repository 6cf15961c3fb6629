package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side identifies one of the two players by piece colour.
type Side int

const (
	White Side = iota
	Black
)

func (s Side) Other() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) String() string {
	if s == Black {
		return "black"
	}
	return "white"
}

// Title returns the capitalised colour used in player-facing text.
func (s Side) Title() string {
	if s == Black {
		return "Black"
	}
	return "White"
}

func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return White, fmt.Errorf("unknown side %q", v)
	}
}

// Difficulty is the AI strength setting. It only changes between games.
type Difficulty int

const (
	Beginner Difficulty = iota
	Intermediate
	Advanced
)

var difficultyNames = [...]string{"beginner", "intermediate", "advanced"}

func (d Difficulty) String() string {
	if d < Beginner || d > Advanced {
		return "unknown"
	}
	return difficultyNames[d]
}

func (d Difficulty) Title() string {
	s := d.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

func (d Difficulty) Valid() bool { return d >= Beginner && d <= Advanced }

func ParseDifficulty(v string) (Difficulty, error) {
	key := strings.ToLower(strings.TrimSpace(v))
	for i, name := range difficultyNames {
		if key == name {
			return Difficulty(i), nil
		}
	}
	return Intermediate, fmt.Errorf("unknown difficulty %q", v)
}

// MoveRecord is one applied move. Ordinal starts at 1.
type MoveRecord struct {
	Ordinal int
	Side    Side
	SAN     string
	UCI     string
	FEN     string
}

// EndReason classifies a finished game.
type EndReason int

const (
	ReasonNone EndReason = iota
	ReasonCheckmate
	ReasonStalemate
	ReasonRepetition
	ReasonInsufficientMaterial
	ReasonDrawOther
)

func (r EndReason) String() string {
	switch r {
	case ReasonCheckmate:
		return "checkmate"
	case ReasonStalemate:
		return "stalemate"
	case ReasonRepetition:
		return "repetition"
	case ReasonInsufficientMaterial:
		return "insufficient_material"
	case ReasonDrawOther:
		return "draw"
	default:
		return "none"
	}
}

// Outcome is InProgress when Ended is false. Winner is meaningful only for checkmate.
type Outcome struct {
	Ended  bool
	Reason EndReason
	Winner Side
}

var InProgress = Outcome{}

func Checkmate(winner Side) Outcome {
	return Outcome{Ended: true, Reason: ReasonCheckmate, Winner: winner}
}

func Drawn(reason EndReason) Outcome {
	return Outcome{Ended: true, Reason: reason}
}

// Result returns the PGN style result tag.
func (o Outcome) Result() string {
	switch {
	case !o.Ended:
		return "*"
	case o.Reason == ReasonCheckmate && o.Winner == White:
		return "1-0"
	case o.Reason == ReasonCheckmate:
		return "0-1"
	default:
		return "1/2-1/2"
	}
}

// ArchivedGame is the record written once a game has ended.
type ArchivedGame struct {
	ID         int64
	GameUUID   string
	SessionID  string
	HumanSide  Side
	Difficulty Difficulty
	Result     string
	Method     string
	MovesSAN   []string
	MovesUCI   []string
	FinalFEN   string
	StartedAt  time.Time
	EndedAt    time.Time
}
