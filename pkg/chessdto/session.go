package chessdto

type SquareView struct {
	Square   string `json:"square"`
	Piece    string `json:"piece,omitempty"`
	Light    bool   `json:"light"`
	Selected bool   `json:"selected,omitempty"`
	LastMove bool   `json:"lastMove,omitempty"`
}

// GameView is everything the browser needs to draw one session.
type GameView struct {
	SessionID   string         `json:"sessionId"`
	GameID      string         `json:"gameId"`
	FEN         string         `json:"fen"`
	Orientation string         `json:"orientation"`
	HumanSide   string         `json:"humanSide"`
	SideToMove  string         `json:"sideToMove"`
	Difficulty  string         `json:"difficulty"`
	Phase       string         `json:"phase"`
	Interactive bool           `json:"interactive"`
	InFlight    bool           `json:"inFlight"`
	Pending     bool           `json:"pending"`
	Status      string         `json:"status"`
	Board       [][]SquareView `json:"board"`
	History     []TurnPair     `json:"history"`
	LastMove    *LastMove      `json:"lastMove,omitempty"`
	Selected    string         `json:"selected,omitempty"`
	Outcome     *OutcomeDialog `json:"outcome,omitempty"`
	Notice      string         `json:"notice,omitempty"`
	Error       string         `json:"error,omitempty"`
}
