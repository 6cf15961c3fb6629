package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/provider"
)

type reply struct {
	resp provider.MoveResponse
	err  error
}

// scriptedProvider blocks every request until the test sends a reply. It ignores context
// cancellation so stale responses can be delivered after a reset.
type scriptedProvider struct {
	calls   chan provider.MoveRequest
	replies chan reply

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		calls:   make(chan provider.MoveRequest, 16),
		replies: make(chan reply),
	}
}

func (p *scriptedProvider) RequestMove(_ context.Context, req provider.MoveRequest) (provider.MoveResponse, error) {
	p.mu.Lock()
	p.inFlight++
	p.maxInFlight = max(p.maxInFlight, p.inFlight)
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()
	p.calls <- req
	r := <-p.replies
	return r.resp, r.err
}

func (p *scriptedProvider) expectCall(t *testing.T) provider.MoveRequest {
	t.Helper()
	select {
	case req := <-p.calls:
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a provider request")
		return provider.MoveRequest{}
	}
}

func (p *scriptedProvider) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case req := <-p.calls:
		t.Fatalf("unexpected provider request %+v", req)
	case <-time.After(100 * time.Millisecond):
	}
}

func (p *scriptedProvider) reply(t *testing.T, resp provider.MoveResponse, err error) {
	t.Helper()
	select {
	case p.replies <- reply{resp: resp, err: err}:
	case <-time.After(2 * time.Second):
		t.Fatalf("provider reply not consumed")
	}
}

func newTestController(t *testing.T, p provider.MoveProvider, cfg Config, opts ...Option) *Controller {
	t.Helper()
	if cfg.AIRequestTimeout == 0 {
		cfg.AIRequestTimeout = 5 * time.Second
	}
	c, err := New(p, cfg, opts...)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, c *Controller, what string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := c.Snapshot()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; state %+v", what, st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func fenAfter(t *testing.T, moves ...string) string {
	t.Helper()
	pos := chess.NewPosition()
	for _, mv := range moves {
		next, _, err := chess.Apply(pos, chess.MoveDescriptor{Notation: mv})
		if err != nil {
			t.Fatalf("apply %s: %v", mv, err)
		}
		pos = next
	}
	return chess.Serialize(pos)
}

func mustMove(t *testing.T, c *Controller, mv string) State {
	t.Helper()
	st, err := c.ApplyMove(chess.MoveDescriptor{Notation: mv})
	if err != nil {
		t.Fatalf("apply %s: %v", mv, err)
	}
	return st
}

func TestHumanMoveIssuesExactlyOneRequest(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Intermediate})

	if st := c.Snapshot(); st.Phase() != PhaseWaitingForHuman || st.InFlight {
		t.Fatalf("white human should move first, got phase %v", st.Phase())
	}
	p.expectNoCall(t)

	st := mustMove(t, c, "e2e4")
	if !st.AITurn() || !st.InFlight || st.Phase() != PhaseAwaitingAI {
		t.Fatalf("expected ai turn in flight, got %+v", st)
	}
	req := p.expectCall(t)
	want := provider.MoveRequest{FEN: fenAfter(t, "e2e4"), Difficulty: domain.Intermediate}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	p.expectNoCall(t)

	p.reply(t, provider.MoveResponse{BestMove: "e7e5", ValidMoves: []string{"e7e5", "d7d5"}}, nil)
	st = waitFor(t, c, "ai reply", func(s State) bool { return len(s.History) == 2 })
	if st.InFlight || st.Phase() != PhaseWaitingForHuman {
		t.Fatalf("expected human turn after ai reply, got %+v", st)
	}
	wantHistory := []domain.MoveRecord{
		{Ordinal: 1, Side: domain.White, SAN: "e4", UCI: "e2e4", FEN: fenAfter(t, "e2e4")},
		{Ordinal: 2, Side: domain.Black, SAN: "e5", UCI: "e7e5", FEN: fenAfter(t, "e2e4", "e7e5")},
	}
	if diff := cmp.Diff(wantHistory, st.History); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyBestMoveFallsBackToFirstValidMove(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner})

	mustMove(t, c, "e2e4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{BestMove: "", ValidMoves: []string{"e7e5", "d7d5"}}, nil)

	st := waitFor(t, c, "fallback move", func(s State) bool { return len(s.History) == 2 })
	if got := st.History[1].UCI; got != "e7e5" {
		t.Fatalf("expected first valid move e7e5, got %s", got)
	}
}

func TestBestMoveOutsideValidMovesIsNotPlayed(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner})

	mustMove(t, c, "e2e4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{BestMove: "g8f6", ValidMoves: []string{"d7d5"}}, nil)

	st := waitFor(t, c, "fallback move", func(s State) bool { return len(s.History) == 2 })
	if got := st.History[1].UCI; got != "d7d5" {
		t.Fatalf("expected d7d5, got %s", got)
	}
}

func TestProviderFailureLeavesTurnPending(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Advanced, LocalFallback: true})

	mustMove(t, c, "e2e4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{}, errors.New("upstream 503"))

	st := waitFor(t, c, "failure settled", func(s State) bool { return !s.InFlight })
	if st.Outcome.Ended || len(st.History) != 1 {
		t.Fatalf("failure must not apply a move, got %+v", st)
	}
	if !st.Pending() || st.Phase() != PhaseAwaitingAI || st.LastError == "" {
		t.Fatalf("expected pending ai turn with error, got %+v", st)
	}
	if _, err := c.ApplyMove(chess.MoveDescriptor{Notation: "d2d4"}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("human must not move on the ai turn, got %v", err)
	}
	p.expectNoCall(t)

	st, err := c.RetryAIMove()
	if err != nil || !st.InFlight {
		t.Fatalf("retry: %+v, %v", st, err)
	}
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{BestMove: "c7c5", ValidMoves: []string{"c7c5"}}, nil)
	st = waitFor(t, c, "retried move", func(s State) bool { return len(s.History) == 2 })
	if st.LastError != "" || st.History[1].UCI != "c7c5" {
		t.Fatalf("unexpected state after retry %+v", st)
	}
}

func TestEmptyResponseWithoutLocalFallbackStalls(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner})

	mustMove(t, c, "d2d4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{}, nil)

	st := waitFor(t, c, "settled", func(s State) bool { return !s.InFlight })
	if len(st.History) != 1 || !st.Pending() {
		t.Fatalf("expected stalled ai turn, got %+v", st)
	}
}

func TestEmptyResponseUsesLocalFallback(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner, LocalFallback: true})

	mustMove(t, c, "d2d4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{BestMove: "zz99"}, nil)

	st := waitFor(t, c, "local move", func(s State) bool { return len(s.History) == 2 })
	want, err := FirstLegal{}.SelectMove(context.Background(), fenAfter(t, "d2d4"), domain.Beginner)
	if err != nil {
		t.Fatalf("first legal: %v", err)
	}
	if st.History[1].UCI != want {
		t.Fatalf("expected local move %s, got %s", want, st.History[1].UCI)
	}
}

type selectorFunc func(ctx context.Context, fen string, level domain.Difficulty) (string, error)

func (f selectorFunc) SelectMove(ctx context.Context, fen string, level domain.Difficulty) (string, error) {
	return f(ctx, fen, level)
}

func TestLocalFallbackUsesConfiguredSelector(t *testing.T) {
	p := newScriptedProvider()
	sel := selectorFunc(func(context.Context, string, domain.Difficulty) (string, error) { return "g8f6", nil })
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner, LocalFallback: true}, WithSelector(sel))

	mustMove(t, c, "d2d4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{}, nil)
	st := waitFor(t, c, "selector move", func(s State) bool { return len(s.History) == 2 })
	if st.History[1].UCI != "g8f6" {
		t.Fatalf("expected g8f6, got %s", st.History[1].UCI)
	}
}

func TestGuardedProviderWithoutLocalFallbackStalls(t *testing.T) {
	p := newScriptedProvider()
	var selected atomic.Bool
	sel := selectorFunc(func(context.Context, string, domain.Difficulty) (string, error) {
		selected.Store(true)
		return "g8f6", nil
	})
	guarded := provider.NewGuard(p, nil, provider.WithLocalMoves(false))
	c := newTestController(t, guarded, Config{HumanSide: domain.White, Difficulty: domain.Beginner}, WithSelector(sel))

	mustMove(t, c, "d2d4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{}, nil)

	st := waitFor(t, c, "settled", func(s State) bool { return !s.InFlight })
	if len(st.History) != 1 || !st.Pending() || st.LastError == "" {
		t.Fatalf("expected stalled ai turn with an error, got %+v", st)
	}
	if selected.Load() {
		t.Fatalf("selector must not run without local fallback")
	}
}

func TestGuardedProviderUsesLocalSelector(t *testing.T) {
	p := newScriptedProvider()
	var selected atomic.Bool
	sel := selectorFunc(func(context.Context, string, domain.Difficulty) (string, error) {
		selected.Store(true)
		return "g8f6", nil
	})
	guarded := provider.NewGuard(p, nil, provider.WithLocalMoves(false))
	c := newTestController(t, guarded, Config{HumanSide: domain.White, Difficulty: domain.Beginner, LocalFallback: true}, WithSelector(sel))

	mustMove(t, c, "d2d4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{BestMove: "e2e4"}, nil)

	st := waitFor(t, c, "selector move", func(s State) bool { return len(s.History) == 2 })
	if st.History[1].UCI != "g8f6" || !selected.Load() {
		t.Fatalf("expected the selector's g8f6, got %s", st.History[1].UCI)
	}
}

func TestIllegalMoveLeavesStateUnchanged(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner})

	before := c.Snapshot()
	for _, d := range []chess.MoveDescriptor{
		{Notation: "e2e5"},
		{Notation: "e7e5"},
		{From: "a1", To: "a5"},
		{Notation: "Qh5"},
		{Notation: "nonsense"},
	} {
		st, err := c.ApplyMove(d)
		if !errors.Is(err, chess.ErrIllegalMove) {
			t.Fatalf("%s: expected ErrIllegalMove, got %v", d, err)
		}
		if diff := cmp.Diff(before, st); diff != "" {
			t.Fatalf("%s changed state (-before +after):\n%s", d, diff)
		}
	}
	if diff := cmp.Diff(before, c.Snapshot()); diff != "" {
		t.Fatalf("state changed (-before +after):\n%s", diff)
	}
	p.expectNoCall(t)
}

func TestAtMostOneRequestInFlight(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner})

	mustMove(t, c, "e2e4")
	p.expectCall(t)
	for i := 0; i < 3; i++ {
		if _, err := c.RetryAIMove(); err != nil {
			t.Fatalf("retry while in flight should be a no-op, got %v", err)
		}
		if _, err := c.ApplyMove(chess.MoveDescriptor{Notation: "d2d4"}); !errors.Is(err, ErrNotYourTurn) {
			t.Fatalf("expected ErrNotYourTurn, got %v", err)
		}
	}
	p.expectNoCall(t)
	p.reply(t, provider.MoveResponse{BestMove: "e7e5", ValidMoves: []string{"e7e5"}}, nil)
	waitFor(t, c, "reply", func(s State) bool { return !s.InFlight })

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.maxInFlight != 1 {
		t.Fatalf("expected one concurrent request, got %d", p.maxInFlight)
	}
}

func TestSwitchSidesDiscardsStaleResponse(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner})

	mustMove(t, c, "e2e4")
	staleReq := p.expectCall(t)
	if staleReq.FEN != fenAfter(t, "e2e4") {
		t.Fatalf("unexpected request %+v", staleReq)
	}

	st, err := c.SwitchSides()
	if err != nil {
		t.Fatalf("switch sides: %v", err)
	}
	if st.HumanSide != domain.Black || len(st.History) != 0 || st.FEN != chess.StartFEN {
		t.Fatalf("switch must reset with human black, got %+v", st)
	}
	if !st.InFlight || st.Phase() != PhaseAwaitingAI {
		t.Fatalf("ai plays white after switch and should be thinking, got %+v", st)
	}

	// the stale request for black resolves after the reset
	p.reply(t, provider.MoveResponse{BestMove: "e7e5", ValidMoves: []string{"e7e5"}}, nil)
	fresh := p.expectCall(t)
	if fresh.FEN != chess.StartFEN {
		t.Fatalf("new request should be for the initial position, got %s", fresh.FEN)
	}
	if st := c.Snapshot(); len(st.History) != 0 || st.FEN != chess.StartFEN {
		t.Fatalf("stale response mutated the reset game: %+v", st)
	}

	p.reply(t, provider.MoveResponse{BestMove: "d2d4", ValidMoves: []string{"d2d4"}}, nil)
	st = waitFor(t, c, "ai opening move", func(s State) bool { return len(s.History) == 1 })
	if st.History[0].UCI != "d2d4" || st.Phase() != PhaseWaitingForHuman {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestNewGameDiscardsStaleResponse(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner})

	mustMove(t, c, "e2e4")
	p.expectCall(t)
	before, err := c.NewGame()
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	if before.InFlight || before.Epoch < 2 {
		t.Fatalf("unexpected state after new game %+v", before)
	}
	p.reply(t, provider.MoveResponse{BestMove: "e7e5", ValidMoves: []string{"e7e5"}}, nil)
	time.Sleep(50 * time.Millisecond)
	if diff := cmp.Diff(before, c.Snapshot()); diff != "" {
		t.Fatalf("stale response changed state (-want +got):\n%s", diff)
	}
}

func TestResetCancelsPacingDelay(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner, AIMoveDelay: time.Hour})

	mustMove(t, c, "e2e4")
	if _, err := c.NewGame(); err != nil {
		t.Fatalf("new game: %v", err)
	}
	p.expectNoCall(t)
}

func TestHumanBlackStartsWithAIRequest(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.Black, Difficulty: domain.Advanced})

	req := p.expectCall(t)
	if req.FEN != chess.StartFEN || req.Difficulty != domain.Advanced {
		t.Fatalf("unexpected opening request %+v", req)
	}
	if _, err := c.ApplyMove(chess.MoveDescriptor{Notation: "e7e5"}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	p.reply(t, provider.MoveResponse{BestMove: "e2e4", ValidMoves: []string{"e2e4"}}, nil)
	waitFor(t, c, "ai move", func(s State) bool { return s.Interactive() })
	mustMove(t, c, "c7c5")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{}, errors.New("gone"))
}

func TestCheckmateEndsGameAndArchivesOnce(t *testing.T) {
	p := newScriptedProvider()
	ended := make(chan domain.ArchivedGame, 2)
	c := newTestController(t, p, Config{SessionID: "s-1", HumanSide: domain.White, Difficulty: domain.Beginner},
		WithGameEnded(func(g domain.ArchivedGame) { ended <- g }))

	mustMove(t, c, "f2f3")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{BestMove: "e7e5", ValidMoves: []string{"e7e5"}}, nil)
	waitFor(t, c, "e5", func(s State) bool { return s.Interactive() })
	mustMove(t, c, "g2g4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{BestMove: "d8h4", ValidMoves: []string{"d8h4"}}, nil)

	st := waitFor(t, c, "mate", func(s State) bool { return s.Outcome.Ended })
	if diff := cmp.Diff(domain.Checkmate(domain.Black), st.Outcome); diff != "" {
		t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
	}
	if st.Phase() != PhaseGameEnded || st.AITurn() || st.InFlight {
		t.Fatalf("unexpected terminal state %+v", st)
	}
	if _, err := c.ApplyMove(chess.MoveDescriptor{Notation: "a2a3"}); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
	if _, err := c.RetryAIMove(); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver from retry, got %v", err)
	}
	p.expectNoCall(t)

	select {
	case g := <-ended:
		if g.Result != "0-1" || g.Method != "checkmate" || g.SessionID != "s-1" || g.GameUUID != st.GameID {
			t.Fatalf("unexpected archive record %+v", g)
		}
		if diff := cmp.Diff([]string{"f3", "e5", "g4", "Qh4#"}, g.MovesSAN); diff != "" {
			t.Fatalf("san mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("game ended hook not called")
	}
	select {
	case g := <-ended:
		t.Fatalf("hook called twice: %+v", g)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeAdjuster struct {
	res provider.AdjustResult
	err error
}

func (f fakeAdjuster) Adjust(context.Context, domain.Difficulty) (provider.AdjustResult, error) {
	return f.res, f.err
}

func TestSetDifficultyResetsAndStoresNotice(t *testing.T) {
	p := newScriptedProvider()
	adj := fakeAdjuster{res: provider.AdjustResult{Success: true, Message: "AI difficulty adjusted to Advanced."}}
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner}, WithAdjuster(adj))

	mustMove(t, c, "e2e4")
	p.expectCall(t)

	st, err := c.SetDifficulty(domain.Advanced)
	if err != nil {
		t.Fatalf("set difficulty: %v", err)
	}
	if st.Difficulty != domain.Advanced || len(st.History) != 0 || st.InFlight {
		t.Fatalf("difficulty change must reset the game, got %+v", st)
	}
	waitFor(t, c, "notice", func(s State) bool { return s.Notice == adj.res.Message })

	p.reply(t, provider.MoveResponse{BestMove: "e7e5", ValidMoves: []string{"e7e5"}}, nil)
	if _, err := c.SetDifficulty(domain.Difficulty(9)); err == nil {
		t.Fatalf("invalid difficulty must fail")
	}
}

func TestAdjusterFailureDoesNotBlockReset(t *testing.T) {
	p := newScriptedProvider()
	adj := fakeAdjuster{res: provider.AdjustResult{Message: "Could not adjust AI difficulty."}, err: errors.New("redis down")}
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner}, WithAdjuster(adj))

	st, err := c.SetDifficulty(domain.Intermediate)
	if err != nil || st.Difficulty != domain.Intermediate {
		t.Fatalf("set difficulty: %+v, %v", st, err)
	}
	waitFor(t, c, "failure notice", func(s State) bool { return s.Notice == adj.res.Message })
	mustMove(t, c, "e2e4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{}, errors.New("stop"))
}

func TestSubscribeReceivesStates(t *testing.T) {
	p := newScriptedProvider()
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner})
	ch, cancel := c.Subscribe()
	defer cancel()

	mustMove(t, c, "e2e4")
	p.expectCall(t)
	p.reply(t, provider.MoveResponse{BestMove: "e7e5", ValidMoves: []string{"e7e5"}}, nil)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if len(st.History) == 2 {
				return
			}
		case <-deadline:
			t.Fatalf("subscriber never saw the ai move")
		}
	}
}

func TestClosedControllerRejectsResets(t *testing.T) {
	p := newScriptedProvider()
	adj := fakeAdjuster{res: provider.AdjustResult{Success: true, Message: "ok"}}
	c := newTestController(t, p, Config{HumanSide: domain.White, Difficulty: domain.Beginner}, WithAdjuster(adj))
	before := c.Snapshot()
	c.Close()

	if _, err := c.NewGame(); !errors.Is(err, ErrClosed) {
		t.Fatalf("NewGame after close: expected ErrClosed, got %v", err)
	}
	if _, err := c.SwitchSides(); !errors.Is(err, ErrClosed) {
		t.Fatalf("SwitchSides after close: expected ErrClosed, got %v", err)
	}
	if _, err := c.SetDifficulty(domain.Advanced); !errors.Is(err, ErrClosed) {
		t.Fatalf("SetDifficulty after close: expected ErrClosed, got %v", err)
	}
	after := c.Snapshot()
	if after.GameID != before.GameID || after.HumanSide != domain.White || after.Difficulty != domain.Beginner {
		t.Fatalf("closed controller was reset: %+v", after)
	}
}

func TestNewRequiresProvider(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatalf("nil provider must fail")
	}
	if _, err := New(newScriptedProvider(), Config{Difficulty: domain.Difficulty(-1)}); err == nil {
		t.Fatalf("invalid difficulty must fail")
	}
}

// replay rebuilds the position from the move list so repetition history is kept.
func replay(t *testing.T, history []domain.MoveRecord) chess.Position {
	t.Helper()
	pos := chess.NewPosition()
	for _, rec := range history {
		next, _, err := chess.Apply(pos, chess.MoveDescriptor{Notation: rec.UCI})
		if err != nil {
			t.Fatalf("replay %s: %v", rec.UCI, err)
		}
		pos = next
	}
	return pos
}

func TestRandomPlayoutsAgreeWithPositionEngine(t *testing.T) {
	const (
		games    = 6
		maxPlies = 240
	)
	rng := rand.New(rand.NewSource(20241019))
	for g := 0; g < games; g++ {
		side := domain.White
		if g%2 == 1 {
			side = domain.Black
		}
		c := newTestController(t, provider.NewRandomProvider(int64(g+1)), Config{HumanSide: side, Difficulty: domain.Beginner})
		states, cancel := c.Subscribe()

		settled := func() State {
			t.Helper()
			if st := c.Snapshot(); !st.InFlight {
				return st
			}
			timeout := time.After(2 * time.Second)
			for {
				select {
				case <-states:
					if st := c.Snapshot(); !st.InFlight {
						return st
					}
				case <-timeout:
					t.Fatalf("game %d: ai never answered", g)
				}
			}
		}

		st := settled()
		for len(st.History) < maxPlies && !st.Outcome.Ended {
			if st.SideToMove() != side {
				t.Fatalf("game %d: ai turn left pending: %+v", g, st)
			}
			pos := replay(t, st.History)
			legal := chess.LegalUCI(pos)
			if len(legal) == 0 {
				t.Fatalf("game %d: in progress without legal moves at %s", g, st.FEN)
			}
			mv := legal[rng.Intn(len(legal))]
			if _, err := c.ApplyMove(chess.MoveDescriptor{Notation: mv}); err != nil {
				t.Fatalf("game %d: legal move %s rejected at %s: %v", g, mv, st.FEN, err)
			}
			st = settled()

			final := replay(t, st.History)
			terminal := chess.IsCheckmate(final) || chess.IsDraw(final)
			if st.Outcome.Ended != terminal {
				t.Fatalf("game %d: ended=%v but engine terminal=%v at %s", g, st.Outcome.Ended, terminal, st.FEN)
			}
			if st.Outcome != chess.Outcome(final) {
				t.Fatalf("game %d: outcome %+v, engine %+v", g, st.Outcome, chess.Outcome(final))
			}
		}
		if st.Outcome.Ended {
			if _, err := c.ApplyMove(chess.MoveDescriptor{Notation: "e2e4"}); !errors.Is(err, ErrGameOver) {
				t.Fatalf("game %d: move after end: expected ErrGameOver, got %v", g, err)
			}
		}
		cancel()
		c.Close()
	}
}
