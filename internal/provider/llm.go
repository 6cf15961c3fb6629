package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/llm"
	"github.com/park285/Cheese-LLM-Chess/internal/msgcat"
)

// Completer is the chat completion call the LLM provider depends on.
type Completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

type LLMConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// LLMProvider asks a language model for a move using the catalog prompt.
type LLMProvider struct {
	client  Completer
	catalog *msgcat.Catalog
	cfg     LLMConfig
	logger  *zap.Logger
}

func NewLLMProvider(client Completer, catalog *msgcat.Catalog, cfg LLMConfig, logger *zap.Logger) (*LLMProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("message catalog is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMProvider{client: client, catalog: catalog, cfg: cfg, logger: logger}, nil
}

func (p *LLMProvider) RequestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	prompt, err := p.buildPrompt(req)
	if err != nil {
		return MoveResponse{}, err
	}
	system, err := p.catalog.Render("prompt.system", nil)
	if err != nil {
		return MoveResponse{}, err
	}

	requestID := uuid.NewString()
	temp := p.cfg.Temperature
	chat := llm.ChatRequest{
		Model: p.cfg.Model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature:    &temp,
		MaxTokens:      p.cfg.MaxTokens,
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	}

	start := time.Now()
	resp, err := p.client.Complete(ctx, chat)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return MoveResponse{}, err
		}
		p.logger.Warn("llm move request failed",
			zap.String("request_id", requestID),
			zap.String("fen", req.FEN),
			zap.Error(err))
		return MoveResponse{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	out, err := parseModelOutput(resp.Content())
	if err != nil {
		p.logger.Warn("llm move response malformed",
			zap.String("request_id", requestID),
			zap.String("fen", req.FEN),
			zap.String("content", truncate(resp.Content(), 256)),
			zap.Error(err))
		return MoveResponse{}, err
	}
	p.logger.Info("llm move received",
		zap.String("request_id", requestID),
		zap.String("difficulty", req.Difficulty.String()),
		zap.String("move", out.BestMove),
		zap.Int("valid_moves", len(out.ValidMoves)),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

func (p *LLMProvider) buildPrompt(req MoveRequest) (string, error) {
	if !req.Difficulty.Valid() {
		return "", fmt.Errorf("unknown difficulty %d", req.Difficulty)
	}
	strategy, err := p.catalog.Render("prompt.strategy."+req.Difficulty.String(), nil)
	if err != nil {
		return "", err
	}
	return p.catalog.Render("prompt.user", map[string]string{
		"Side":       sideFromFEN(req.FEN).String(),
		"FEN":        req.FEN,
		"Difficulty": req.Difficulty.Title(),
		"Strategy":   strings.TrimSpace(strategy),
	})
}

func sideFromFEN(fen string) domain.Side {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return domain.Black
	}
	return domain.White
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
