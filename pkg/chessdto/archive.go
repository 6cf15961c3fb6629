package chessdto

import "time"

// ArchivedGameView is one finished game in the session's results list.
type ArchivedGameView struct {
	GameID     string    `json:"gameId"`
	HumanSide  string    `json:"humanSide"`
	Difficulty string    `json:"difficulty"`
	Result     string    `json:"result"`
	Method     string    `json:"method"`
	Moves      []string  `json:"moves"`
	FinalFEN   string    `json:"finalFen"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
}
