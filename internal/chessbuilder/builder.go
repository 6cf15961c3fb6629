package chessbuilder

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/adapter/chesspresenter"
	"github.com/park285/Cheese-LLM-Chess/internal/archive"
	corechess "github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/chess/uci"
	"github.com/park285/Cheese-LLM-Chess/internal/config"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/game"
	"github.com/park285/Cheese-LLM-Chess/internal/llm"
	"github.com/park285/Cheese-LLM-Chess/internal/msgcat"
	"github.com/park285/Cheese-LLM-Chess/internal/provider"
	"github.com/park285/Cheese-LLM-Chess/internal/render"
	"github.com/park285/Cheese-LLM-Chess/internal/session"
	"github.com/park285/Cheese-LLM-Chess/internal/web"
)

const pingTimeout = 5 * time.Second

// Deps is everything the web binary needs, built from config.
type Deps struct {
	Catalog  *msgcat.Catalog
	Provider provider.MoveProvider
	Adjuster *provider.Adjuster
	Selector game.MoveSelector
	Recorder *archive.Recorder
	Registry *session.Registry
	Server   *web.Server

	engine *corechess.Engine
	redis  *redis.Client
	db     *sql.DB
}

// Close releases external resources. Sessions are closed first so no AI turn outlives the engine.
func (d *Deps) Close() error {
	var errs []error
	if d.Registry != nil {
		d.Registry.Close()
	}
	if d.engine != nil {
		errs = append(errs, d.engine.Close())
	}
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	return errors.Join(errs...)
}

// Core builds the provider chain and its collaborators without the web surface.
func Core(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}
	fail := func(err error) (*Deps, error) {
		_ = d.Close()
		return nil, err
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fail(fmt.Errorf("load messages: %w", err))
	}
	d.Catalog = catalog

	// Engine (optional unless PROVIDER_MODE=engine)
	if strings.TrimSpace(cfg.StockfishPath) != "" {
		pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: cfg.StockfishPath, Logger: logger.Named("uci")})
		if err != nil {
			return fail(fmt.Errorf("init engine pool: %w", err))
		}
		engine, err := corechess.NewEngine(pool, logger.Named("engine"))
		if err != nil {
			_ = pool.Close()
			return fail(fmt.Errorf("init engine: %w", err))
		}
		d.engine = engine
	}

	// Redis (optional): provider cache and difficulty preferences
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := parseRedisURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		rdb := redis.NewClient(opts)
		d.redis = rdb
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
	}

	base, err := baseProvider(cfg, d, logger)
	if err != nil {
		return fail(err)
	}
	if d.redis != nil && cfg.ProviderCacheTTL > 0 {
		base = provider.NewCachedProvider(base, d.redis, cfg.ProviderCacheTTL, logger.Named("provider.cache"))
	}
	// the controller owns the local pick so LOCAL_FALLBACK and the engine selector apply
	d.Provider = provider.NewGuard(base, logger.Named("provider.guard"), provider.WithLocalMoves(false))

	var store provider.PreferenceStore
	if d.redis != nil {
		store = provider.NewRedisPreferenceStore(d.redis)
	}
	d.Adjuster = provider.NewAdjuster(store, catalog, logger.Named("adjuster"))

	d.Selector = game.FirstLegal{}
	if d.engine != nil {
		d.Selector = game.EngineSelector{Engine: d.engine}
	}

	// Archive (postgres when configured, in-memory otherwise)
	repo := archive.NewMemoryRepository()
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		d.db = db
		repo = archive.NewRepository(db)
	}
	d.Recorder = archive.NewRecorder(repo, logger.Named("archive"))
	return d, nil
}

// New builds the full dependency graph including the session registry and HTTP server.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d, err := Core(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	side, err := domain.ParseSide(cfg.DefaultHumanSide)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	level, err := domain.ParseDifficulty(cfg.DefaultDifficulty)
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	gameLogger := logger.Named("game")
	factory := func(id string, side domain.Side, level domain.Difficulty) (*game.Controller, error) {
		return game.New(d.Provider, game.Config{
			SessionID:        id,
			HumanSide:        side,
			Difficulty:       level,
			AIMoveDelay:      cfg.AIMoveDelay,
			AIRequestTimeout: cfg.AIRequestTimeout,
			LocalFallback:    cfg.LocalFallback,
		},
			game.WithLogger(gameLogger),
			game.WithAdjuster(d.Adjuster.ForSession(id)),
			game.WithSelector(d.Selector),
			game.WithGameEnded(d.Recorder.Record),
		)
	}
	registry, err := session.NewRegistry(factory, cfg.SessionIdleTTL, logger.Named("session"))
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Registry = registry

	server, err := web.NewServer(web.Config{
		Registry:          registry,
		Presenter:         chesspresenter.NewPresenter(chesspresenter.NewFormatter(d.Catalog)),
		Renderer:          render.NewBoardRenderer(0),
		Recorder:          d.Recorder,
		Prefs:             d.Adjuster,
		DefaultHumanSide:  side,
		DefaultDifficulty: level,
		Logger:            logger.Named("web"),
	})
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Server = server
	return d, nil
}

func baseProvider(cfg *config.AppConfig, d *Deps, logger *zap.Logger) (provider.MoveProvider, error) {
	switch cfg.ProviderMode {
	case config.ProviderModeLLM:
		client := llm.NewClient(cfg.LLMBaseURL,
			llm.WithAPIKey(cfg.LLMAPIKey),
			llm.WithTimeout(cfg.LLMTimeout),
			llm.WithRetry(cfg.LLMMaxRetries),
			llm.WithLogger(logger.Named("llm")),
		)
		p, err := provider.NewLLMProvider(client, d.Catalog, provider.LLMConfig{Model: cfg.LLMModel}, logger.Named("provider.llm"))
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderModeEngine:
		if d.engine == nil {
			return nil, fmt.Errorf("%w: STOCKFISH_PATH is required for engine mode", provider.ErrProviderUnavailable)
		}
		p, err := provider.NewEngineProvider(d.engine)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderModeRandom:
		return provider.NewRandomProvider(time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("unknown provider mode %q", cfg.ProviderMode)
	}
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	// basic pool settings
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := archive.EnsureSchema(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	return db, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return nil, err
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{
		Addr:     host + ":" + portStr,
		Username: u.User.Username(),
		Password: pass,
		DB:       db,
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}
