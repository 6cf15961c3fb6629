package chessdto

// LastMove highlights the most recent move on the board.
type LastMove struct {
	From string `json:"from"`
	To   string `json:"to"`
	SAN  string `json:"san"`
}

// OutcomeDialog is shown once the game has ended.
type OutcomeDialog struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Result  string `json:"result"`
	Action  string `json:"action"`
}
