package chessdto

// TurnPair is one numbered row of the move list. Either side may be empty.
type TurnPair struct {
	Number int    `json:"number"`
	White  string `json:"white,omitempty"`
	Black  string `json:"black,omitempty"`
}
