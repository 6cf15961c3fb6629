package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

type PoolConfig struct {
	BinaryPath string
	// PerOptionsCapacity bounds live processes per distinct Options value.
	PerOptionsCapacity int
	Logger             *zap.Logger
}

// Pool keeps warm engine processes grouped by their option set.
type Pool struct {
	binaryPath string
	capacity   int
	logger     *zap.Logger

	mu     sync.Mutex
	groups map[string]*group
	owner  map[*Session]*group
	closed bool
}

type group struct {
	opt   Options
	idle  chan *Session
	slots chan struct{}
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, errors.New("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("stockfish binary check: %w", err)
	}
	capacity := cfg.PerOptionsCapacity
	if capacity <= 0 {
		capacity = min(max(runtime.NumCPU(), 2), 4)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		binaryPath: cfg.BinaryPath,
		capacity:   capacity,
		logger:     logger,
		groups:     make(map[string]*group),
		owner:      make(map[*Session]*group),
	}, nil
}

// Acquire returns an idle session for opt or starts one when under capacity.
// It blocks until a session frees up or ctx ends.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	g, err := p.group(opt)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case s := <-g.idle:
			if err := s.EnsureReady(ctx); err != nil {
				p.logger.Debug("discarding stale uci session", zap.Error(err))
				p.drop(g, s)
				continue
			}
			p.track(s, g)
			return s, nil
		case g.slots <- struct{}{}:
			s, err := Start(ctx, p.binaryPath, g.opt, p.logger)
			if err != nil {
				<-g.slots
				return nil, err
			}
			p.track(s, g)
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns s to the pool. A non-nil err discards the process.
func (p *Pool) Release(s *Session, err error) {
	if s == nil {
		return
	}
	p.mu.Lock()
	g, ok := p.owner[s]
	delete(p.owner, s)
	closed := p.closed
	p.mu.Unlock()
	if !ok {
		_ = s.Close()
		return
	}
	if err != nil || closed {
		p.drop(g, s)
		return
	}
	select {
	case g.idle <- s:
	default:
		p.drop(g, s)
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	groups := make([]*group, 0, len(p.groups))
	for _, g := range p.groups {
		groups = append(groups, g)
	}
	p.mu.Unlock()

	var errs []error
	for _, g := range groups {
		for {
			select {
			case s := <-g.idle:
				if err := s.Close(); err != nil {
					errs = append(errs, err)
				}
				<-g.slots
				continue
			default:
			}
			break
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) group(opt Options) (*group, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrEngineClosed
	}
	key := opt.key()
	g, ok := p.groups[key]
	if !ok {
		g = &group{
			opt:   opt,
			idle:  make(chan *Session, p.capacity),
			slots: make(chan struct{}, p.capacity),
		}
		p.groups[key] = g
	}
	return g, nil
}

func (p *Pool) track(s *Session, g *group) {
	p.mu.Lock()
	p.owner[s] = g
	p.mu.Unlock()
}

func (p *Pool) drop(g *group, s *Session) {
	_ = s.Close()
	<-g.slots
}
