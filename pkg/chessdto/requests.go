package chessdto

type CreateSessionRequest struct {
	HumanSide  string `json:"humanSide,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string   `json:"sessionId"`
	Game      GameView `json:"game"`
}

// MoveRequest carries either a notation string or a from/to pair.
type MoveRequest struct {
	Move      string `json:"move,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
}

type ClickRequest struct {
	Square string `json:"square"`
}

type DifficultyRequest struct {
	Level string `json:"level"`
}
