package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/chessbuilder"
	appcfg "github.com/park285/Cheese-LLM-Chess/internal/config"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/obslog"
	"github.com/park285/Cheese-LLM-Chess/internal/provider"
)

func main() {
	fen := pflag.String("fen", chess.StartFEN, "position to ask for")
	level := pflag.String("difficulty", "", "beginner | intermediate | advanced (default from config)")
	timeout := pflag.Duration("timeout", 30*time.Second, "overall request timeout")
	pflag.Parse()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *level == "" {
		*level = cfg.DefaultDifficulty
	}
	difficulty, err := domain.ParseDifficulty(*level)
	if err != nil {
		log.Fatalf("difficulty: %v", err)
	}
	pos, err := chess.Parse(*fen)
	if err != nil {
		log.Fatalf("fen: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	deps, err := chessbuilder.Core(ctx, cfg, obslog.Component("providercheck"))
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer deps.Close()

	start := time.Now()
	resp, err := deps.Provider.RequestMove(ctx, provider.MoveRequest{FEN: chess.Serialize(pos), Difficulty: difficulty})
	if err != nil {
		log.Printf("provider error after %s: %v", time.Since(start).Round(time.Millisecond), err)
		_ = deps.Close()
		os.Exit(1)
	}
	log.Printf("provider=%s difficulty=%s took=%s", cfg.ProviderMode, difficulty, time.Since(start).Round(time.Millisecond))

	out := struct {
		FEN      string                `json:"fen"`
		Response provider.MoveResponse `json:"response"`
		SAN      string                `json:"san,omitempty"`
	}{FEN: chess.Serialize(pos), Response: resp}
	if resp.BestMove != "" {
		if _, mv, err := chess.Apply(pos, chess.MoveDescriptor{Notation: resp.BestMove}); err == nil {
			out.SAN = mv.SAN
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
