package game

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/provider"
)

var (
	ErrGameOver    = errors.New("game is over")
	ErrNotYourTurn = errors.New("not the human player's turn")
	ErrClosed      = errors.New("controller closed")
)

const (
	defaultAIRequestTimeout = 30 * time.Second
	adjustTimeout           = 5 * time.Second
	subscriberBuffer        = 8
)

// Adjuster acknowledges a difficulty change. Its failure never blocks the reset.
type Adjuster interface {
	Adjust(ctx context.Context, level domain.Difficulty) (provider.AdjustResult, error)
}

type Config struct {
	SessionID  string
	HumanSide  domain.Side
	Difficulty domain.Difficulty
	// AIMoveDelay paces the AI reply; zero replies immediately.
	AIMoveDelay      time.Duration
	AIRequestTimeout time.Duration
	// LocalFallback plays a locally selected move when the provider succeeds without a usable one.
	LocalFallback bool
}

type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithAdjuster(a Adjuster) Option {
	return func(c *Controller) { c.adjuster = a }
}

func WithSelector(s MoveSelector) Option {
	return func(c *Controller) {
		if s != nil {
			c.selector = s
		}
	}
}

// WithGameEnded registers fn to be called once for every game that reaches an end.
func WithGameEnded(fn func(domain.ArchivedGame)) Option {
	return func(c *Controller) { c.onEnded = fn }
}

// Controller owns one game. All mutation happens under mu; the provider call runs in a
// goroutine tagged with the epoch it was issued in and is discarded if the epoch moved on.
type Controller struct {
	provider provider.MoveProvider
	cfg      Config
	logger   *zap.Logger
	adjuster Adjuster
	selector MoveSelector
	onEnded  func(domain.ArchivedGame)

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu         sync.Mutex
	pos        chess.Position
	history    []domain.MoveRecord
	humanSide  domain.Side
	difficulty domain.Difficulty
	outcome    domain.Outcome
	epoch      uint64
	version    uint64
	inFlight   bool
	cancelAI   context.CancelFunc
	lastErr    string
	notice     string
	gameID     string
	startedAt  time.Time
	closed     bool

	subMu     sync.Mutex
	subs      map[int]chan State
	nextSub   int
	published uint64
}

// New starts the first game. If the AI moves first its request is issued immediately.
func New(p provider.MoveProvider, cfg Config, opts ...Option) (*Controller, error) {
	if p == nil {
		return nil, fmt.Errorf("move provider is required")
	}
	if !cfg.Difficulty.Valid() {
		return nil, fmt.Errorf("unknown difficulty %d", cfg.Difficulty)
	}
	if cfg.AIMoveDelay < 0 {
		cfg.AIMoveDelay = 0
	}
	if cfg.AIRequestTimeout <= 0 {
		cfg.AIRequestTimeout = defaultAIRequestTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		provider:   p,
		cfg:        cfg,
		logger:     zap.NewNop(),
		selector:   FirstLegal{},
		baseCtx:    ctx,
		baseCancel: cancel,
		humanSide:  cfg.HumanSide,
		difficulty: cfg.Difficulty,
		subs:       make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("session_id", cfg.SessionID))

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	return c, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ApplyMove applies a human move. An illegal move returns an error wrapping
// chess.ErrIllegalMove and leaves the state untouched.
func (c *Controller) ApplyMove(d chess.MoveDescriptor) (State, error) {
	c.mu.Lock()
	if err := c.humanMayMoveLocked(); err != nil {
		st := c.snapshotLocked()
		c.mu.Unlock()
		return st, err
	}
	mv, ended, err := c.applyLocked(d)
	if err != nil {
		st := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Debug("human move rejected", zap.String("move", d.String()), zap.Error(err))
		return st, err
	}
	c.logger.Debug("human move applied", zap.String("move", mv.UCI), zap.String("san", mv.SAN))
	c.scheduleAILocked()
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(st)
	c.gameEnded(ended)
	return st, nil
}

// NewGame resets to the initial arrangement. A pending AI response from the previous
// game is discarded.
func (c *Controller) NewGame() (State, error) {
	c.mu.Lock()
	if c.closed {
		st := c.snapshotLocked()
		c.mu.Unlock()
		return st, ErrClosed
	}
	c.resetLocked()
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(st)
	return st, nil
}

// SwitchSides hands the human the other colour and starts a new game.
func (c *Controller) SwitchSides() (State, error) {
	c.mu.Lock()
	if c.closed {
		st := c.snapshotLocked()
		c.mu.Unlock()
		return st, ErrClosed
	}
	c.humanSide = c.humanSide.Other()
	c.resetLocked()
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(st)
	return st, nil
}

// SetDifficulty changes the AI strength and starts a new game. The adjuster is called
// in the background and its message becomes the state notice.
func (c *Controller) SetDifficulty(level domain.Difficulty) (State, error) {
	if !level.Valid() {
		return c.Snapshot(), fmt.Errorf("unknown difficulty %d", level)
	}
	c.mu.Lock()
	if c.closed {
		st := c.snapshotLocked()
		c.mu.Unlock()
		return st, ErrClosed
	}
	c.difficulty = level
	c.resetLocked()
	epoch := c.epoch
	st := c.snapshotLocked()
	// wg.Add only under mu while not closed
	if c.adjuster != nil {
		c.wg.Add(1)
	}
	c.mu.Unlock()
	c.publish(st)

	if c.adjuster != nil {
		go c.adjust(epoch, level)
	}
	return st, nil
}

// RetryAIMove re-issues the request for a pending AI turn. It is a no-op while a request
// is already in flight.
func (c *Controller) RetryAIMove() (State, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		st := c.snapshotLocked()
		c.mu.Unlock()
		return st, ErrClosed
	case c.outcome.Ended:
		st := c.snapshotLocked()
		c.mu.Unlock()
		return st, ErrGameOver
	case !c.aiTurnLocked():
		st := c.snapshotLocked()
		c.mu.Unlock()
		return st, ErrNotYourTurn
	}
	c.scheduleAILocked()
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(st)
	return st, nil
}

// Subscribe delivers every new state until cancel is called or the controller closes.
// A slow reader only misses intermediate states, never the latest one.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	ch := make(chan State, subscriberBuffer)
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close cancels any AI work and waits for background goroutines.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	c.inFlight = false
	c.mu.Unlock()
	c.baseCancel()
	c.wg.Wait()

	c.subMu.Lock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.subMu.Unlock()
}

func (c *Controller) humanMayMoveLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.outcome.Ended:
		return ErrGameOver
	case c.inFlight || chess.SideToMove(c.pos) != c.humanSide:
		return ErrNotYourTurn
	}
	return nil
}

func (c *Controller) aiTurnLocked() bool {
	return !c.outcome.Ended && chess.SideToMove(c.pos) != c.humanSide
}

// applyLocked validates d against the current position and commits it. When the move ends
// the game the archived record is returned.
func (c *Controller) applyLocked(d chess.MoveDescriptor) (chess.Move, *domain.ArchivedGame, error) {
	mover := chess.SideToMove(c.pos)
	next, mv, err := chess.Apply(c.pos, d)
	if err != nil {
		return chess.Move{}, nil, err
	}
	c.pos = next
	c.history = append(c.history, domain.MoveRecord{
		Ordinal: len(c.history) + 1,
		Side:    mover,
		SAN:     mv.SAN,
		UCI:     mv.UCI,
		FEN:     chess.Serialize(next),
	})
	c.outcome = chess.Outcome(next)
	c.version++
	if !c.outcome.Ended {
		return mv, nil, nil
	}
	c.logger.Info("game ended",
		zap.String("game_id", c.gameID),
		zap.String("result", c.outcome.Result()),
		zap.String("reason", c.outcome.Reason.String()),
		zap.Int("moves", len(c.history)))
	rec := c.archiveLocked()
	return mv, &rec, nil
}

func (c *Controller) archiveLocked() domain.ArchivedGame {
	san := make([]string, 0, len(c.history))
	uci := make([]string, 0, len(c.history))
	for _, r := range c.history {
		san = append(san, r.SAN)
		uci = append(uci, r.UCI)
	}
	return domain.ArchivedGame{
		GameUUID:   c.gameID,
		SessionID:  c.cfg.SessionID,
		HumanSide:  c.humanSide,
		Difficulty: c.difficulty,
		Result:     c.outcome.Result(),
		Method:     c.outcome.Reason.String(),
		MovesSAN:   san,
		MovesUCI:   uci,
		FinalFEN:   chess.Serialize(c.pos),
		StartedAt:  c.startedAt,
		EndedAt:    time.Now(),
	}
}

func (c *Controller) resetLocked() {
	c.epoch++
	c.version++
	if c.cancelAI != nil {
		c.cancelAI()
		c.cancelAI = nil
	}
	c.inFlight = false
	c.pos = chess.NewPosition()
	c.history = nil
	c.outcome = domain.InProgress
	c.lastErr = ""
	c.notice = ""
	c.gameID = uuid.NewString()
	c.startedAt = time.Now()
	c.logger.Debug("new game",
		zap.String("game_id", c.gameID),
		zap.Uint64("epoch", c.epoch),
		zap.String("human_side", c.humanSide.String()),
		zap.String("difficulty", c.difficulty.String()))
	c.scheduleAILocked()
}

// scheduleAILocked issues at most one provider request for the current epoch.
func (c *Controller) scheduleAILocked() {
	if c.closed || c.inFlight || !c.aiTurnLocked() {
		return
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.inFlight = true
	c.cancelAI = cancel
	c.lastErr = ""
	c.version++
	req := provider.MoveRequest{FEN: chess.Serialize(c.pos), Difficulty: c.difficulty}
	c.wg.Add(1)
	go c.runAITurn(ctx, c.epoch, req)
}

func (c *Controller) runAITurn(ctx context.Context, epoch uint64, req provider.MoveRequest) {
	defer c.wg.Done()

	if c.cfg.AIMoveDelay > 0 {
		timer := time.NewTimer(c.cfg.AIMoveDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.AIRequestTimeout)
	defer cancel()
	start := time.Now()
	resp, err := c.provider.RequestMove(reqCtx, req)
	if err != nil {
		c.finishAITurn(epoch, "", fmt.Errorf("%w: %w", provider.ErrProviderFailure, err))
		return
	}

	move, ok := pickMove(req.FEN, resp)
	if !ok && c.cfg.LocalFallback {
		local, lerr := c.selector.SelectMove(reqCtx, req.FEN, req.Difficulty)
		if lerr == nil {
			c.logger.Info("provider gave no usable move, playing local move",
				zap.String("fen", req.FEN), zap.String("move", local))
			move, ok = local, true
		} else {
			c.logger.Warn("local move selection failed", zap.String("fen", req.FEN), zap.Error(lerr))
		}
	}
	if !ok {
		c.finishAITurn(epoch, "", provider.ErrMalformedProviderResponse)
		return
	}
	c.logger.Debug("ai move resolved", zap.String("move", move), zap.Duration("took", time.Since(start)))
	c.finishAITurn(epoch, move, nil)
}

// pickMove applies the fallback policy: bestMove when it is in validMoves and legal,
// else the first entry of validMoves when legal.
func pickMove(fen string, resp provider.MoveResponse) (string, bool) {
	pos, err := chess.Parse(fen)
	if err != nil {
		return "", false
	}
	legal := func(mv string) bool {
		_, _, err := chess.Apply(pos, chess.MoveDescriptor{Notation: mv})
		return err == nil
	}
	if resp.BestMove != "" && slices.Contains(resp.ValidMoves, resp.BestMove) && legal(resp.BestMove) {
		return resp.BestMove, true
	}
	if len(resp.ValidMoves) > 0 && legal(resp.ValidMoves[0]) {
		return resp.ValidMoves[0], true
	}
	return "", false
}

func (c *Controller) finishAITurn(epoch uint64, move string, cause error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("discarding stale ai response", zap.Uint64("epoch", epoch), zap.String("move", move))
		return
	}
	c.inFlight = false
	c.cancelAI = nil
	c.version++

	if cause != nil {
		c.lastErr = cause.Error()
		st := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Warn("ai move failed, turn left pending", zap.String("fen", st.FEN), zap.Error(cause))
		c.publish(st)
		return
	}

	mv, ended, err := c.applyLocked(chess.MoveDescriptor{Notation: move})
	if err != nil {
		c.lastErr = err.Error()
		st := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Warn("ai move rejected by position engine", zap.String("move", move), zap.Error(err))
		c.publish(st)
		return
	}
	c.scheduleAILocked()
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("ai move applied", zap.String("move", mv.UCI), zap.String("san", mv.SAN))
	c.publish(st)
	c.gameEnded(ended)
}

func (c *Controller) adjust(epoch uint64, level domain.Difficulty) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(c.baseCtx, adjustTimeout)
	defer cancel()
	res, err := c.adjuster.Adjust(ctx, level)
	if err != nil {
		c.logger.Warn("difficulty adjustment failed", zap.String("difficulty", level.String()), zap.Error(err))
	}
	if res.Message == "" {
		return
	}
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.notice = res.Message
	c.version++
	st := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(st)
}

func (c *Controller) gameEnded(rec *domain.ArchivedGame) {
	if rec == nil || c.onEnded == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.onEnded(*rec)
	}()
}

func (c *Controller) snapshotLocked() State {
	return State{
		Version:    c.version,
		Epoch:      c.epoch,
		GameID:     c.gameID,
		FEN:        chess.Serialize(c.pos),
		History:    slices.Clone(c.history),
		HumanSide:  c.humanSide,
		Difficulty: c.difficulty,
		Outcome:    c.outcome,
		InFlight:   c.inFlight,
		LastError:  c.lastErr,
		Notice:     c.notice,
		StartedAt:  c.startedAt,
	}
}

func (c *Controller) publish(st State) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if st.Version <= c.published {
		return
	}
	c.published = st.Version
	for _, ch := range c.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
