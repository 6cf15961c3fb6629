package chesspresenter

import (
	"github.com/park285/Cheese-LLM-Chess/internal/game"
	"github.com/park285/Cheese-LLM-Chess/pkg/chessdto"
)

// Presenter builds the browser view of a session.
type Presenter struct {
	formatter *Formatter
}

func NewPresenter(formatter *Formatter) *Presenter {
	if formatter == nil {
		formatter = NewFormatter(nil)
	}
	return &Presenter{formatter: formatter}
}

func (p *Presenter) Formatter() *Formatter { return p.formatter }

// View renders st oriented for the human, marking selected and the last move.
func (p *Presenter) View(sessionID string, st game.State, selected string) chessdto.GameView {
	board := BoardGrid(st.FEN, st.HumanSide)
	last, hasLast := st.LastMove()
	var lastView *chessdto.LastMove
	if hasLast && len(last.UCI) >= 4 {
		lastView = &chessdto.LastMove{From: last.UCI[0:2], To: last.UCI[2:4], SAN: last.SAN}
	}
	if !st.Interactive() {
		selected = ""
	}
	for r := range board {
		for f := range board[r] {
			sq := &board[r][f]
			sq.Selected = selected != "" && sq.Square == selected
			sq.LastMove = lastView != nil && (sq.Square == lastView.From || sq.Square == lastView.To)
		}
	}

	return chessdto.GameView{
		SessionID:   sessionID,
		GameID:      st.GameID,
		FEN:         st.FEN,
		Orientation: st.HumanSide.String(),
		HumanSide:   st.HumanSide.String(),
		SideToMove:  st.SideToMove().String(),
		Difficulty:  st.Difficulty.String(),
		Phase:       st.Phase().String(),
		Interactive: st.Interactive(),
		InFlight:    st.InFlight,
		Pending:     st.Pending(),
		Status:      p.formatter.Status(st),
		Board:       board,
		History:     HistoryPairs(st.History),
		LastMove:    lastView,
		Selected:    selected,
		Outcome:     p.formatter.Dialog(st),
		Notice:      st.Notice,
		Error:       st.LastError,
	}
}
