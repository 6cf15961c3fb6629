package archive

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

const defaultWriteTimeout = 5 * time.Second

// Recorder writes ended games to a Repository. Failures are logged and never reach the game.
type Recorder struct {
	repo    Repository
	logger  *zap.Logger
	timeout time.Duration
}

func NewRecorder(repo Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger, timeout: defaultWriteTimeout}
}

// Record has the signature expected by game.WithGameEnded.
func (r *Recorder) Record(game domain.ArchivedGame) {
	if r == nil || r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	id, err := r.repo.InsertGame(ctx, &game)
	switch {
	case errors.Is(err, ErrDuplicateGame):
		r.logger.Debug("game already archived", zap.String("game_id", game.GameUUID))
	case err != nil:
		r.logger.Warn("archive game failed", zap.String("game_id", game.GameUUID), zap.Error(err))
	default:
		r.logger.Info("game archived",
			zap.Int64("id", id),
			zap.String("game_id", game.GameUUID),
			zap.String("session_id", game.SessionID),
			zap.String("result", game.Result),
			zap.String("method", game.Method))
	}
}

// Recent lists the latest archived games of a session, newest first.
func (r *Recorder) Recent(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	return r.repo.RecentGames(ctx, sessionID, limit)
}
