package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseModelOutput extracts {bestMove, validMoves} from model text. The object may be wrapped
// in a fenced code block or surrounded by prose.
func parseModelOutput(content string) (MoveResponse, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return MoveResponse{}, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return MoveResponse{}, fmt.Errorf("%w: no JSON object in model output", ErrMalformedProviderResponse)
	}

	var raw struct {
		BestMove   *string  `json:"bestMove"`
		ValidMoves []string `json:"validMoves"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return MoveResponse{}, fmt.Errorf("%w: %v", ErrMalformedProviderResponse, err)
	}
	if raw.BestMove == nil && raw.ValidMoves == nil {
		return MoveResponse{}, fmt.Errorf("%w: missing bestMove and validMoves", ErrMalformedProviderResponse)
	}

	out := MoveResponse{ValidMoves: make([]string, 0, len(raw.ValidMoves))}
	if raw.BestMove != nil {
		out.BestMove = normalizeUCI(*raw.BestMove)
	}
	for _, mv := range raw.ValidMoves {
		if n := normalizeUCI(mv); n != "" {
			out.ValidMoves = append(out.ValidMoves, n)
		}
	}
	return out, nil
}

func normalizeUCI(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "=", "")
	return s
}
