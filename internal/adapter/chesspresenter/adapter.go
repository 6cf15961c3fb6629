package chesspresenter

import (
	"strconv"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/pkg/chessdto"
)

// BoardGrid lays fen out as eight rows seen from orientation: rank 8 on top for White,
// rank 1 on top with files reversed for Black.
func BoardGrid(fen string, orientation domain.Side) [][]chessdto.SquareView {
	pieces := chess.BoardFromFEN(fen)
	rows := make([][]chessdto.SquareView, 0, 8)
	for r := 0; r < 8; r++ {
		rank := 8 - r
		if orientation == domain.Black {
			rank = r + 1
		}
		row := make([]chessdto.SquareView, 0, 8)
		for f := 0; f < 8; f++ {
			file := f
			if orientation == domain.Black {
				file = 7 - f
			}
			sq := string(rune('a'+file)) + strconv.Itoa(rank)
			row = append(row, chessdto.SquareView{
				Square: sq,
				Piece:  pieces[sq],
				Light:  (file+rank)%2 == 0,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

// HistoryPairs groups records into numbered White/Black turns. A history that starts with
// Black leaves the first White slot empty.
func HistoryPairs(records []domain.MoveRecord) []chessdto.TurnPair {
	out := make([]chessdto.TurnPair, 0, (len(records)+1)/2)
	for _, rec := range records {
		if rec.Side == domain.White || len(out) == 0 || out[len(out)-1].Black != "" {
			out = append(out, chessdto.TurnPair{Number: len(out) + 1})
		}
		last := &out[len(out)-1]
		if rec.Side == domain.White {
			last.White = rec.SAN
		} else {
			last.Black = rec.SAN
		}
	}
	return out
}
