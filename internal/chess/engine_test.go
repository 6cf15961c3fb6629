package chess

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/park285/Cheese-LLM-Chess/internal/chess/uci"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

const scriptedEngine = `#!/bin/sh
while read line; do
  case "$line" in
    uci) echo "uciok" ;;
    isready) echo "readyok" ;;
    go*)
      echo "info depth 4 multipv 1 score cp 30 pv g1f3 d7d5"
      echo "info depth 4 multipv 2 score cp 10 pv a2a3"
      echo "bestmove g1f3" ;;
    quit) exit 0 ;;
  esac
done
`

func newScriptedEngine(t *testing.T) *Engine {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("scripted engine needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "engine")
	if err := os.WriteFile(path, []byte(scriptedEngine), 0o755); err != nil {
		t.Fatalf("write engine: %v", err)
	}
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: path, PerOptionsCapacity: 1})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	e, err := NewEngine(pool, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngineChooseAdvancedPlaysBestLine(t *testing.T) {
	e := newScriptedEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	choice, err := e.Choose(ctx, StartFEN, domain.Advanced)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if choice.Move != "g1f3" || choice.BestMove != "g1f3" {
		t.Fatalf("unexpected choice %+v", choice)
	}
	if len(choice.Candidates) != 2 {
		t.Fatalf("expected two candidates, got %d", len(choice.Candidates))
	}
}

func TestNewEngineRequiresPool(t *testing.T) {
	if _, err := NewEngine(nil, nil); err == nil {
		t.Fatalf("nil pool must fail")
	}
}
