package chess

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

var (
	ErrMalformedPosition = errors.New("malformed position")
	ErrIllegalMove       = errors.New("illegal move")
)

// StartFEN is the standard initial arrangement.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is an immutable game position. It carries the move history since it was
// parsed so repetition can be detected.
type Position struct {
	game *nchess.Game
}

// MoveDescriptor names a move either by notation (UCI or SAN) or by squares.
type MoveDescriptor struct {
	Notation  string
	From      string
	To        string
	Promotion string
}

func (d MoveDescriptor) String() string {
	if d.Notation != "" {
		return d.Notation
	}
	return d.From + d.To + d.Promotion
}

// Move is a legal move together with its notations.
type Move struct {
	UCI       string
	SAN       string
	From      string
	To        string
	Promotion string
}

func NewPosition() Position {
	return Position{game: nchess.NewGame()}
}

// Parse reconstructs a position from FEN. The resulting position has no history.
func Parse(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return NewPosition(), nil
	}
	if len(strings.Fields(fen)) != 6 {
		return Position{}, fmt.Errorf("%w: expected 6 fields in %q", ErrMalformedPosition, fen)
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrMalformedPosition, err)
	}
	return Position{game: nchess.NewGame(opt)}, nil
}

func (p Position) valid() bool { return p.game != nil }

// Serialize returns the FEN of the position.
func Serialize(p Position) string {
	if !p.valid() {
		return StartFEN
	}
	return p.game.FEN()
}

func SideToMove(p Position) domain.Side {
	if p.valid() && p.game.Position().Turn() == nchess.Black {
		return domain.Black
	}
	return domain.White
}

// LegalMoves lists the legal moves in engine order. SAN is filled in for each move.
func LegalMoves(p Position) []Move {
	if !p.valid() {
		return nil
	}
	pos := p.game.Position()
	valid := p.game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for i := range valid {
		mv := valid[i]
		m := Move{
			From:      mv.S1().String(),
			To:        mv.S2().String(),
			Promotion: promoLetter(mv.Promo()),
		}
		m.UCI = m.From + m.To + m.Promotion
		if decoded, err := (nchess.UCINotation{}).Decode(pos, m.UCI); err == nil {
			m.SAN = nchess.AlgebraicNotation{}.Encode(pos, decoded)
		}
		out = append(out, m)
	}
	return out
}

// LegalUCI lists legal moves as UCI strings.
func LegalUCI(p Position) []string {
	moves := LegalMoves(p)
	out := make([]string, len(moves))
	for i, m := range moves {
		out[i] = m.UCI
	}
	return out
}

// Apply validates d against p and returns the resulting position. p is never mutated.
func Apply(p Position, d MoveDescriptor) (Position, Move, error) {
	if !p.valid() {
		return Position{}, Move{}, ErrMalformedPosition
	}
	if p.game.Outcome() != nchess.NoOutcome {
		return Position{}, Move{}, fmt.Errorf("%w: game already decided", ErrIllegalMove)
	}
	uci, err := resolveUCI(p, d)
	if err != nil {
		return Position{}, Move{}, err
	}

	pos := p.game.Position()
	decoded, err := (nchess.UCINotation{}).Decode(pos, uci)
	if err != nil {
		return Position{}, Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, decoded)

	next := p.game.Clone()
	if err := next.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return Position{}, Move{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, uci, err)
	}
	m := Move{UCI: uci, SAN: san, From: uci[0:2], To: uci[2:4]}
	if len(uci) == 5 {
		m.Promotion = uci[4:]
	}
	return Position{game: next}, m, nil
}

func resolveUCI(p Position, d MoveDescriptor) (string, error) {
	legal := LegalUCI(p)
	has := func(s string) bool {
		for _, m := range legal {
			if m == s {
				return true
			}
		}
		return false
	}

	raw := strings.TrimSpace(d.Notation)
	if raw == "" {
		raw = strings.TrimSpace(d.From) + strings.TrimSpace(d.To) + strings.TrimSpace(d.Promotion)
	}
	if raw == "" {
		return "", fmt.Errorf("%w: empty move", ErrIllegalMove)
	}

	if cand := strings.ToLower(raw); looksLikeUCI(cand) {
		if has(cand) {
			return cand, nil
		}
		// A pawn dropped on the last rank without a choice becomes a queen.
		if len(cand) == 4 && has(cand+"q") {
			return cand + "q", nil
		}
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}

	decoded, err := nchess.AlgebraicNotation{}.Decode(p.game.Position(), raw)
	if err != nil || decoded == nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}
	uci := strings.ToLower(nchess.UCINotation{}.Encode(p.game.Position(), decoded))
	if !has(uci) {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}
	return uci, nil
}

func looksLikeUCI(s string) bool {
	if len(s) != 4 && len(s) != 5 {
		return false
	}
	if !isSquare(s[0:2]) || !isSquare(s[2:4]) {
		return false
	}
	if len(s) == 5 && !strings.ContainsRune("qrbn", rune(s[4])) {
		return false
	}
	return true
}

func isSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// IsSquare reports whether s names a board square such as "e4".
func IsSquare(s string) bool { return isSquare(strings.ToLower(strings.TrimSpace(s))) }

func promoLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	default:
		return ""
	}
}

func IsCheckmate(p Position) bool {
	return p.valid() && p.game.Method() == nchess.Checkmate
}

func IsStalemate(p Position) bool {
	return p.valid() && p.game.Method() == nchess.Stalemate
}

func IsInsufficientMaterial(p Position) bool {
	return p.valid() && p.game.Method() == nchess.InsufficientMaterial
}

// IsThreefoldRepetition reports whether the current placement, side to move, castling
// rights and en passant square have occurred at least three times.
func IsThreefoldRepetition(p Position) bool {
	if !p.valid() {
		return false
	}
	if p.game.Method() == nchess.FivefoldRepetition {
		return true
	}
	current := repetitionKey(p.game.FEN())
	count := 0
	for _, pos := range p.game.Positions() {
		if pos == nil {
			continue
		}
		if repetitionKey(pos.String()) == current {
			count++
		}
	}
	return count >= 3
}

// IsDraw covers stalemate, insufficient material, repetition and the fifty move rule.
func IsDraw(p Position) bool {
	if !p.valid() {
		return false
	}
	if p.game.Outcome() == nchess.Draw {
		return true
	}
	return IsStalemate(p) || IsInsufficientMaterial(p) || IsThreefoldRepetition(p) || halfmoveClock(p.game.FEN()) >= 100
}

// Outcome classifies p. Checkmate wins over every draw condition.
func Outcome(p Position) domain.Outcome {
	switch {
	case !p.valid():
		return domain.InProgress
	case IsCheckmate(p):
		winner := domain.White
		if p.game.Outcome() == nchess.BlackWon {
			winner = domain.Black
		}
		return domain.Checkmate(winner)
	case IsStalemate(p):
		return domain.Drawn(domain.ReasonStalemate)
	case IsThreefoldRepetition(p):
		return domain.Drawn(domain.ReasonRepetition)
	case IsInsufficientMaterial(p):
		return domain.Drawn(domain.ReasonInsufficientMaterial)
	case IsDraw(p):
		return domain.Drawn(domain.ReasonDrawOther)
	default:
		return domain.InProgress
	}
}

// Board returns the pieces keyed by square name, using FEN letters (upper case for white).
func Board(p Position) map[string]string {
	return BoardFromFEN(Serialize(p))
}

// BoardFromFEN expands the placement field of fen.
func BoardFromFEN(fen string) map[string]string {
	out := make(map[string]string, 32)
	placement := strings.Fields(fen)
	if len(placement) == 0 {
		return out
	}
	rank := 8
	file := 0
	for _, r := range placement[0] {
		switch {
		case r == '/':
			rank--
			file = 0
		case r >= '1' && r <= '8':
			file += int(r - '0')
		default:
			if file < 8 && rank >= 1 {
				out[string(rune('a'+file))+strconv.Itoa(rank)] = string(r)
			}
			file++
		}
	}
	return out
}

func repetitionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return fen
	}
	return strings.Join(fields[:4], " ")
}

func halfmoveClock(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 5 {
		return 0
	}
	n, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return n
}
