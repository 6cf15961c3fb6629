package chesspresenter

import (
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/game"
	"github.com/park285/Cheese-LLM-Chess/internal/msgcat"
	"github.com/park285/Cheese-LLM-Chess/pkg/chessdto"
)

// Formatter turns controller state into player-facing text from the message catalog.
type Formatter struct {
	catalog *msgcat.Catalog
}

func NewFormatter(catalog *msgcat.Catalog) *Formatter {
	if catalog == nil {
		catalog = msgcat.MustDefault()
	}
	return &Formatter{catalog: catalog}
}

// OutcomeText describes an ended game, e.g. "Checkmate! White wins.".
func (f *Formatter) OutcomeText(o domain.Outcome) string {
	if !o.Ended {
		return ""
	}
	switch o.Reason {
	case domain.ReasonCheckmate:
		winner := o.Winner.Title()
		return f.catalog.Text("outcome.checkmate", map[string]string{"Winner": winner}, "Checkmate! "+winner+" wins.")
	case domain.ReasonStalemate:
		return f.catalog.Text("outcome.stalemate", nil, "Stalemate!")
	case domain.ReasonRepetition:
		return f.catalog.Text("outcome.repetition", nil, "Draw by three-fold repetition!")
	case domain.ReasonInsufficientMaterial:
		return f.catalog.Text("outcome.insufficient", nil, "Draw by insufficient material!")
	default:
		return f.catalog.Text("outcome.draw", nil, "Draw!")
	}
}

// Dialog returns the terminal dialog, or nil while the game is running.
func (f *Formatter) Dialog(st game.State) *chessdto.OutcomeDialog {
	if !st.Outcome.Ended {
		return nil
	}
	return &chessdto.OutcomeDialog{
		Title:   f.catalog.Text("dialog.title", nil, "Game Over"),
		Message: f.OutcomeText(st.Outcome),
		Result:  st.Outcome.Result(),
		Action:  f.catalog.Text("dialog.action", nil, "New Game"),
	}
}

// Status is the one-line hint above the board.
func (f *Formatter) Status(st game.State) string {
	switch {
	case st.Outcome.Ended:
		return f.OutcomeText(st.Outcome)
	case st.InFlight:
		return f.catalog.Text("status.ai_thinking", nil, "AI is thinking...")
	case st.Pending():
		return f.catalog.Text("status.ai_pending", nil, "The AI did not answer. Retry to ask again.")
	default:
		side := st.HumanSide.Title()
		return f.catalog.Text("status.your_turn", map[string]string{"Side": side}, "Your turn ("+side+").")
	}
}
