package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/msgcat"
)

const preferenceTTL = 30 * 24 * time.Hour

type AdjustResult struct {
	Success bool
	Message string
}

// PreferenceStore remembers the last difficulty chosen in a browser session.
type PreferenceStore interface {
	SaveDifficulty(ctx context.Context, sessionID string, level domain.Difficulty) error
	LoadDifficulty(ctx context.Context, sessionID string) (domain.Difficulty, bool, error)
}

// Adjuster acknowledges difficulty changes and records them when a store is configured.
type Adjuster struct {
	store   PreferenceStore
	catalog *msgcat.Catalog
	logger  *zap.Logger
}

func NewAdjuster(store PreferenceStore, catalog *msgcat.Catalog, logger *zap.Logger) *Adjuster {
	if catalog == nil {
		catalog = msgcat.MustDefault()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adjuster{store: store, catalog: catalog, logger: logger}
}

// Adjust records level for sessionID and returns the player-facing acknowledgement.
func (a *Adjuster) Adjust(ctx context.Context, sessionID string, level domain.Difficulty) (AdjustResult, error) {
	if !level.Valid() {
		return AdjustResult{Message: a.catalog.Text("difficulty.failed", nil, "Could not adjust AI difficulty.")},
			fmt.Errorf("unknown difficulty %d", level)
	}
	if a.store != nil && sessionID != "" {
		if err := a.store.SaveDifficulty(ctx, sessionID, level); err != nil {
			a.logger.Warn("difficulty preference save failed", zap.String("session_id", sessionID), zap.Error(err))
			return AdjustResult{Message: a.catalog.Text("difficulty.failed", nil, "Could not adjust AI difficulty.")}, err
		}
	}
	msg := a.catalog.Text("difficulty.adjusted", map[string]string{"Level": level.Title()},
		"AI difficulty adjusted to "+level.Title()+".")
	return AdjustResult{Success: true, Message: msg}, nil
}

// Preferred returns the stored difficulty for sessionID, or def when none is stored.
func (a *Adjuster) Preferred(ctx context.Context, sessionID string, def domain.Difficulty) domain.Difficulty {
	if a.store == nil || sessionID == "" {
		return def
	}
	level, ok, err := a.store.LoadDifficulty(ctx, sessionID)
	if err != nil {
		a.logger.Warn("difficulty preference load failed", zap.String("session_id", sessionID), zap.Error(err))
		return def
	}
	if !ok {
		return def
	}
	return level
}

// SessionAdjuster binds an Adjuster to one session.
type SessionAdjuster struct {
	adjuster  *Adjuster
	sessionID string
}

func (a *Adjuster) ForSession(sessionID string) SessionAdjuster {
	return SessionAdjuster{adjuster: a, sessionID: sessionID}
}

func (s SessionAdjuster) Adjust(ctx context.Context, level domain.Difficulty) (AdjustResult, error) {
	return s.adjuster.Adjust(ctx, s.sessionID, level)
}

// RedisPreferenceStore keeps difficulty preferences in Redis.
type RedisPreferenceStore struct{ rdb redis.UniversalClient }

func NewRedisPreferenceStore(rdb redis.UniversalClient) *RedisPreferenceStore {
	return &RedisPreferenceStore{rdb: rdb}
}

func (s *RedisPreferenceStore) key(sessionID string) string {
	return "chess:pref:difficulty:" + strings.TrimSpace(sessionID)
}

func (s *RedisPreferenceStore) SaveDifficulty(ctx context.Context, sessionID string, level domain.Difficulty) error {
	return s.rdb.Set(ctx, s.key(sessionID), level.String(), preferenceTTL).Err()
}

func (s *RedisPreferenceStore) LoadDifficulty(ctx context.Context, sessionID string) (domain.Difficulty, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Intermediate, false, nil
	}
	if err != nil {
		return domain.Intermediate, false, err
	}
	level, err := domain.ParseDifficulty(raw)
	if err != nil {
		return domain.Intermediate, false, nil
	}
	return level, true, nil
}
