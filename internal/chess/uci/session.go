package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout = 4 * time.Second
	mateScore           = 30000
)

var ErrEngineClosed = errors.New("uci engine closed")

type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
	MultiPV    int
	Elo        int
}

func (o Options) Validate() error {
	switch {
	case o.SkillLevel < 0 || o.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", o.SkillLevel)
	case o.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", o.HashMB)
	case o.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", o.MultiPV)
	case o.Elo < 0:
		return fmt.Errorf("elo must be >= 0: %d", o.Elo)
	}
	return nil
}

func (o Options) key() string {
	return fmt.Sprintf("thr=%d|skill=%d|hash=%d|multipv=%d|elo=%d", o.Threads, o.SkillLevel, o.HashMB, o.MultiPV, o.Elo)
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// GoCommand renders the search limits as a UCI "go" command.
func (l Limits) GoCommand() (string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return "", errors.New("no search limits specified")
	}
	return strings.Join(args, " "), nil
}

// Timeout bounds how long a search with these limits may take before the engine is considered stuck.
func (l Limits) Timeout() time.Duration {
	if l.MoveTimeMillis > 0 {
		return time.Duration(l.MoveTimeMillis+2000) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		d := time.Duration(l.Depth) * 300 * time.Millisecond
		return min(max(d, 6*time.Second), 20*time.Second)
	}
	return 6 * time.Second
}

type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

type SearchResult struct {
	Candidates []Candidate
	BestMove   string
}

// Session is one running engine process. Searches are serialised.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	done   chan struct{}
	quit   chan struct{}
	logger *zap.Logger

	writeMu  sync.Mutex
	searchMu sync.Mutex
	closeMu  sync.Once
	closeErr error
}

// Start launches binaryPath and completes the uci/isready handshake with opt applied.
func Start(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 64),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		logger: logger,
	}
	go s.readLoop(stdout)

	if err := s.handshake(ctx, opt); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) readLoop(r io.Reader) {
	defer close(s.done)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case s.lines <- strings.TrimSpace(sc.Text()):
		case <-s.quit:
			return
		}
	}
}

func (s *Session) handshake(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.await(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	threads := opt.Threads
	if threads <= 0 {
		threads = 1
	}
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d", threads),
		fmt.Sprintf("setoption name Hash value %d", opt.HashMB),
		fmt.Sprintf("setoption name Skill Level value %d", opt.SkillLevel),
		fmt.Sprintf("setoption name MultiPV value %d", opt.MultiPV),
		"setoption name Move Overhead value 100",
	}
	if opt.Elo > 0 {
		cmds = append(cmds,
			"setoption name UCI_LimitStrength value true",
			fmt.Sprintf("setoption name UCI_Elo value %d", opt.Elo))
	}
	for _, c := range cmds {
		if err := s.send(c); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return s.ready(initCtx)
}

// EnsureReady pings the engine with isready.
func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()
	return s.ready(readyCtx)
}

func (s *Session) ready(ctx context.Context) error {
	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.await(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// Search runs a bounded search from fen and collects MultiPV candidates ordered by rank.
func (s *Session) Search(ctx context.Context, fen string, limits Limits) (SearchResult, error) {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	goCmd, err := limits.GoCommand()
	if err != nil {
		return SearchResult{}, err
	}
	if err := s.send("ucinewgame"); err != nil {
		return SearchResult{}, fmt.Errorf("send ucinewgame: %w", err)
	}
	if err := s.send(positionCommand(fen)); err != nil {
		return SearchResult{}, fmt.Errorf("send position: %w", err)
	}
	if err := s.send(goCmd); err != nil {
		return SearchResult{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, limits.Timeout())
	defer cancel()

	byRank := make(map[int]Candidate)
	for {
		line, err := s.next(searchCtx)
		if err != nil {
			s.logger.Warn("uci search read failed", zap.String("fen", fen), zap.String("go", goCmd), zap.Error(err))
			_ = s.send("stop")
			return SearchResult{}, fmt.Errorf("read search output: %w", err)
		}
		switch {
		case strings.HasPrefix(line, "info "):
			if rank, cand, ok := parseInfo(line); ok {
				byRank[rank] = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			res := SearchResult{Candidates: rankedCandidates(byRank)}
			if parts := strings.Fields(line); len(parts) >= 2 && parts[1] != "(none)" {
				res.BestMove = parts[1]
			}
			return res, nil
		}
	}
}

func (s *Session) Close() error {
	s.closeMu.Do(func() {
		_ = s.send("quit")
		close(s.quit)
		_ = s.stdin.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if err := s.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

func (s *Session) send(cmd string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := io.WriteString(s.stdin, cmd+"\n")
	return err
}

func (s *Session) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-s.lines:
		return line, nil
	case <-s.done:
		// drain anything buffered before the pipe closed
		select {
		case line := <-s.lines:
			return line, nil
		default:
			return "", ErrEngineClosed
		}
	}
}

func (s *Session) await(ctx context.Context, token string) error {
	for {
		line, err := s.next(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func positionCommand(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return "position startpos"
	}
	return "position fen " + fen
}

func parseInfo(line string) (int, Candidate, bool) {
	parts := strings.Fields(line)
	rank := 1
	eval := 0
	pv := -1
	for i := 0; i < len(parts) && pv < 0; i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					rank = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				v, err := strconv.Atoi(parts[i+2])
				if err == nil {
					switch parts[i+1] {
					case "cp":
						eval = v
					case "mate":
						eval = mateScore
						if v < 0 {
							eval = -mateScore
						}
					}
				}
				i += 2
			}
		case "pv":
			pv = i + 1
		}
	}
	if pv < 0 || pv >= len(parts) {
		return 0, Candidate{}, false
	}
	principal := append([]string(nil), parts[pv:]...)
	return rank, Candidate{Move: principal[0], EvalCP: eval, Principal: principal}, true
}

func rankedCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	ranks := make([]int, 0, len(m))
	for k := range m {
		ranks = append(ranks, k)
	}
	sort.Ints(ranks)
	out := make([]Candidate, 0, len(ranks))
	for _, k := range ranks {
		out = append(out, m[k])
	}
	return out
}
