package uci

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

const fakeEngine = `#!/bin/sh
while read line; do
  case "$line" in
    uci) echo "id name fake"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*)
      echo "info depth 1 multipv 2 score cp 20 pv d2d4 d7d5"
      echo "info depth 1 multipv 1 score cp 35 pv e2e4 e7e5"
      echo "bestmove e2e4 ponder e7e5" ;;
    quit) exit 0 ;;
  esac
done
`

func writeFakeEngine(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine needs /bin/sh")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("fake engine needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(path, []byte(fakeEngine), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

func testOptions() Options {
	return Options{Threads: 1, SkillLevel: 5, HashMB: 16, MultiPV: 2}
}

func TestParseInfo(t *testing.T) {
	rank, cand, ok := parseInfo("info depth 12 seldepth 16 multipv 3 score mate -2 nodes 100 pv g8f6 c2c4")
	if !ok || rank != 3 {
		t.Fatalf("unexpected parse: rank=%d ok=%v", rank, ok)
	}
	if cand.Move != "g8f6" || cand.EvalCP != -mateScore || len(cand.Principal) != 2 {
		t.Fatalf("unexpected candidate %+v", cand)
	}
	if _, _, ok := parseInfo("info depth 3 currmove e2e4"); ok {
		t.Fatalf("lines without pv must be ignored")
	}
}

func TestLimitsGoCommand(t *testing.T) {
	cmd, err := Limits{Depth: 8, MoveTimeMillis: 80}.GoCommand()
	if err != nil || cmd != "go depth 8 movetime 80" {
		t.Fatalf("GoCommand = %q, %v", cmd, err)
	}
	if _, err := (Limits{}).GoCommand(); err == nil {
		t.Fatalf("empty limits must fail")
	}
	if got := (Limits{Depth: 100}).Timeout(); got != 20*time.Second {
		t.Fatalf("depth timeout should cap at 20s, got %v", got)
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := (Options{SkillLevel: 21, HashMB: 16, MultiPV: 1}).Validate(); err == nil {
		t.Fatalf("skill 21 must fail")
	}
	if err := testOptions().Validate(); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
}

func TestSessionSearchAgainstFakeEngine(t *testing.T) {
	bin := writeFakeEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Start(ctx, bin, testOptions(), nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	res, err := s.Search(ctx, "startpos", Limits{MoveTimeMillis: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.BestMove != "e2e4" {
		t.Fatalf("unexpected best move %q", res.BestMove)
	}
	if len(res.Candidates) != 2 || res.Candidates[0].Move != "e2e4" || res.Candidates[1].Move != "d2d4" {
		t.Fatalf("candidates not ordered by multipv: %+v", res.Candidates)
	}
}

func TestPoolReusesSessions(t *testing.T) {
	bin := writeFakeEngine(t)
	pool, err := NewPool(PoolConfig{BinaryPath: bin, PerOptionsCapacity: 1})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := pool.Acquire(ctx, testOptions())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	pool.Release(first, nil)
	second, err := pool.Acquire(ctx, testOptions())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if first != second {
		t.Fatalf("expected the idle session to be reused")
	}

	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	if _, err := pool.Acquire(short, testOptions()); err == nil {
		t.Fatalf("capacity 1 pool must block while the session is out")
	}
	pool.Release(second, nil)
}

func TestNewPoolRequiresBinary(t *testing.T) {
	if _, err := NewPool(PoolConfig{}); err == nil {
		t.Fatalf("empty path must fail")
	}
	if _, err := NewPool(PoolConfig{BinaryPath: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("missing binary must fail")
	}
}
