package provider

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/chess/uci"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/llm"
	"github.com/park285/Cheese-LLM-Chess/internal/msgcat"
)

const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type fakeCompleter struct {
	content string
	err     error
	last    llm.ChatRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.last = req
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	return llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.ChatMessage{Role: "assistant", Content: f.content}}}}, nil
}

func fixed(resp MoveResponse, err error) Func {
	return func(context.Context, MoveRequest) (MoveResponse, error) { return resp, err }
}

func TestParseModelOutput(t *testing.T) {
	out, err := parseModelOutput("```json\n{\"bestMove\": \"E7-E5\", \"validMoves\": [\"e7e5\", \" d7d5 \", \"\"]}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.BestMove != "e7e5" || !slices.Equal(out.ValidMoves, []string{"e7e5", "d7d5"}) {
		t.Fatalf("unexpected output %+v", out)
	}

	empty, err := parseModelOutput("   ")
	if err != nil || !empty.Empty() {
		t.Fatalf("blank output should be empty, got %+v, %v", empty, err)
	}

	for _, bad := range []string{"I resign", "{not json}", `{"foo": 1}`} {
		if _, err := parseModelOutput(bad); !errors.Is(err, ErrMalformedProviderResponse) {
			t.Fatalf("parse(%q) err = %v, want malformed", bad, err)
		}
	}
}

func TestLLMProviderBuildsPromptForSideToMove(t *testing.T) {
	fc := &fakeCompleter{content: `{"bestMove":"e7e5","validMoves":["e7e5","d7d5"]}`}
	p, err := NewLLMProvider(fc, msgcat.MustDefault(), LLMConfig{Model: "m"}, nil)
	if err != nil {
		t.Fatalf("NewLLMProvider: %v", err)
	}
	out, err := p.RequestMove(context.Background(), MoveRequest{FEN: afterE4, Difficulty: domain.Beginner})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if out.BestMove != "e7e5" || len(out.ValidMoves) != 2 {
		t.Fatalf("unexpected response %+v", out)
	}
	if len(fc.last.Messages) != 2 || fc.last.Model != "m" {
		t.Fatalf("unexpected chat request %+v", fc.last)
	}
	user := fc.last.Messages[1].Content
	for _, want := range []string{"black pieces", afterE4, "Difficulty: Beginner", "basic principles"} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, user)
		}
	}
	if fc.last.ResponseFormat == nil || fc.last.ResponseFormat.Type != "json_object" {
		t.Fatalf("json response format not requested")
	}
}

func TestLLMProviderWrapsTransportErrors(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("connection refused")}
	p, _ := NewLLMProvider(fc, msgcat.MustDefault(), LLMConfig{Model: "m"}, nil)
	_, err := p.RequestMove(context.Background(), MoveRequest{FEN: chess.StartFEN, Difficulty: domain.Advanced})
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}

	fc = &fakeCompleter{content: "no idea"}
	p, _ = NewLLMProvider(fc, msgcat.MustDefault(), LLMConfig{Model: "m"}, nil)
	if _, err := p.RequestMove(context.Background(), MoveRequest{FEN: chess.StartFEN}); !errors.Is(err, ErrMalformedProviderResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestGuardKeepsLegalBestMove(t *testing.T) {
	g := NewGuard(fixed(MoveResponse{BestMove: "d7d5", ValidMoves: []string{"d7d5"}}, nil), nil)
	out, err := g.RequestMove(context.Background(), MoveRequest{FEN: afterE4})
	if err != nil || out.BestMove != "d7d5" {
		t.Fatalf("unexpected %+v, %v", out, err)
	}
	if len(out.ValidMoves) != 20 {
		t.Fatalf("valid moves should be the local legal list, got %d", len(out.ValidMoves))
	}
}

func TestGuardFallsBackToFirstLegalModelMove(t *testing.T) {
	g := NewGuard(fixed(MoveResponse{BestMove: "e2e4", ValidMoves: []string{"a1a8", "g8f6", "e7e5"}}, nil), nil)
	out, err := g.RequestMove(context.Background(), MoveRequest{FEN: afterE4})
	if err != nil || out.BestMove != "g8f6" {
		t.Fatalf("expected g8f6, got %+v, %v", out, err)
	}
}

func TestGuardFallsBackToLocalMove(t *testing.T) {
	local := chess.LegalUCI(mustParse(t, afterE4))
	for _, next := range []Func{
		fixed(MoveResponse{}, nil),
		fixed(MoveResponse{}, fmt.Errorf("%w: garbage", ErrMalformedProviderResponse)),
		fixed(MoveResponse{BestMove: "zz", ValidMoves: []string{"e2e4"}}, nil),
	} {
		out, err := NewGuard(next, nil).RequestMove(context.Background(), MoveRequest{FEN: afterE4})
		if err != nil || out.BestMove != local[0] {
			t.Fatalf("expected local fallback %s, got %+v, %v", local[0], out, err)
		}
	}
}

func TestGuardWithoutLocalMovesReturnsEmpty(t *testing.T) {
	for _, next := range []Func{
		fixed(MoveResponse{}, nil),
		fixed(MoveResponse{}, fmt.Errorf("%w: garbage", ErrMalformedProviderResponse)),
		fixed(MoveResponse{BestMove: "zz", ValidMoves: []string{"e2e4"}}, nil),
	} {
		out, err := NewGuard(next, nil, WithLocalMoves(false)).RequestMove(context.Background(), MoveRequest{FEN: afterE4})
		if err != nil || !out.Empty() {
			t.Fatalf("expected empty response, got %+v, %v", out, err)
		}
	}

	g := NewGuard(fixed(MoveResponse{BestMove: "zz", ValidMoves: []string{"g8f6"}}, nil), nil, WithLocalMoves(false))
	out, err := g.RequestMove(context.Background(), MoveRequest{FEN: afterE4})
	if err != nil || out.BestMove != "g8f6" {
		t.Fatalf("legal model move must still be kept, got %+v, %v", out, err)
	}
}

func TestGuardPassesThroughFailures(t *testing.T) {
	g := NewGuard(fixed(MoveResponse{}, ErrProviderFailure), nil)
	if _, err := g.RequestMove(context.Background(), MoveRequest{FEN: afterE4}); !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("failure must propagate, got %v", err)
	}
}

func TestGuardSkipsProviderWhenNoLegalMoves(t *testing.T) {
	var called atomic.Bool
	g := NewGuard(Func(func(context.Context, MoveRequest) (MoveResponse, error) {
		called.Store(true)
		return MoveResponse{BestMove: "a1a2"}, nil
	}), nil)
	mated := "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	out, err := g.RequestMove(context.Background(), MoveRequest{FEN: mated})
	if err != nil || !out.Empty() {
		t.Fatalf("expected empty response, got %+v, %v", out, err)
	}
	if called.Load() {
		t.Fatalf("provider must not be called without legal moves")
	}
}

func TestRandomProviderPlaysLegalMoves(t *testing.T) {
	p := NewRandomProvider(42)
	out, err := p.RequestMove(context.Background(), MoveRequest{FEN: chess.StartFEN})
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	if !slices.Contains(out.ValidMoves, out.BestMove) || len(out.ValidMoves) != 20 {
		t.Fatalf("unexpected random response %+v", out)
	}
	if _, err := p.RequestMove(context.Background(), MoveRequest{FEN: "garbage"}); !errors.Is(err, chess.ErrMalformedPosition) {
		t.Fatalf("expected malformed position, got %v", err)
	}
}

type fakeChooser struct {
	move string
	err  error
}

func (f fakeChooser) Choose(context.Context, string, domain.Difficulty) (chess.Choice, error) {
	return chess.Choice{Move: f.move}, f.err
}

func TestEngineProvider(t *testing.T) {
	p, err := NewEngineProvider(fakeChooser{move: "e7e5"})
	if err != nil {
		t.Fatalf("NewEngineProvider: %v", err)
	}
	out, err := p.RequestMove(context.Background(), MoveRequest{FEN: afterE4, Difficulty: domain.Advanced})
	if err != nil || out.BestMove != "e7e5" || len(out.ValidMoves) != 20 {
		t.Fatalf("unexpected %+v, %v", out, err)
	}

	p, _ = NewEngineProvider(fakeChooser{err: errors.New("engine crashed")})
	if _, err := p.RequestMove(context.Background(), MoveRequest{FEN: afterE4}); !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}

	p, _ = NewEngineProvider(fakeChooser{err: fmt.Errorf("acquire engine: %w", uci.ErrEngineClosed)})
	if _, err := p.RequestMove(context.Background(), MoveRequest{FEN: afterE4}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestCachedProviderMemoises(t *testing.T) {
	mr, rdb := newTestRedis(t)
	var calls atomic.Int32
	next := Func(func(context.Context, MoveRequest) (MoveResponse, error) {
		calls.Add(1)
		return MoveResponse{BestMove: "e7e5", ValidMoves: []string{"e7e5"}}, nil
	})
	c := NewCachedProvider(next, rdb, 0, nil)
	req := MoveRequest{FEN: afterE4, Difficulty: domain.Intermediate}

	for i := 0; i < 3; i++ {
		out, err := c.RequestMove(context.Background(), req)
		if err != nil || out.BestMove != "e7e5" {
			t.Fatalf("call %d: %+v, %v", i, out, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", calls.Load())
	}
	if ttl := mr.TTL("chess:move:intermediate:" + afterE4); ttl != defaultCacheTTL {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	other := MoveRequest{FEN: afterE4, Difficulty: domain.Advanced}
	if _, err := c.RequestMove(context.Background(), other); err != nil {
		t.Fatalf("other difficulty: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("difficulty must be part of the cache key")
	}
}

func TestCachedProviderSkipsEmptyAndErrors(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewCachedProvider(fixed(MoveResponse{}, nil), rdb, 0, nil)
	if _, err := c.RequestMove(context.Background(), MoveRequest{FEN: afterE4}); err != nil {
		t.Fatalf("empty: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("empty responses must not be cached, keys %v", mr.Keys())
	}

	c = NewCachedProvider(fixed(MoveResponse{}, ErrProviderFailure), rdb, 0, nil)
	if _, err := c.RequestMove(context.Background(), MoveRequest{FEN: afterE4}); !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("errors must pass through, got %v", err)
	}

	mr.Close()
	c = NewCachedProvider(fixed(MoveResponse{BestMove: "e7e5"}, nil), rdb, 0, nil)
	out, err := c.RequestMove(context.Background(), MoveRequest{FEN: afterE4})
	if err != nil || out.BestMove != "e7e5" {
		t.Fatalf("redis outage must fall through, got %+v, %v", out, err)
	}
}

func TestAdjusterStoresPreference(t *testing.T) {
	_, rdb := newTestRedis(t)
	a := NewAdjuster(NewRedisPreferenceStore(rdb), msgcat.MustDefault(), nil)
	ctx := context.Background()

	res, err := a.ForSession("s1").Adjust(ctx, domain.Advanced)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !res.Success || res.Message != "AI difficulty adjusted to Advanced." {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := a.Preferred(ctx, "s1", domain.Beginner); got != domain.Advanced {
		t.Fatalf("preference not stored, got %v", got)
	}
	if got := a.Preferred(ctx, "unknown", domain.Beginner); got != domain.Beginner {
		t.Fatalf("missing preference should use default, got %v", got)
	}
}

func TestAdjusterWithoutStore(t *testing.T) {
	a := NewAdjuster(nil, nil, nil)
	res, err := a.Adjust(context.Background(), "", domain.Beginner)
	if err != nil || !res.Success || res.Message != "AI difficulty adjusted to Beginner." {
		t.Fatalf("unexpected %+v, %v", res, err)
	}
	if _, err := a.Adjust(context.Background(), "", domain.Difficulty(7)); err == nil {
		t.Fatalf("invalid level must fail")
	}
}

func mustParse(t *testing.T, fen string) chess.Position {
	t.Helper()
	p, err := chess.Parse(fen)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return p
}
