package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

var ErrDuplicateGame = errors.New("chess game already archived")

// Repository stores finished games.
type Repository interface {
	InsertGame(ctx context.Context, game *domain.ArchivedGame) (int64, error)
	RecentGames(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error)
}

// Schema creates the archive table in Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS chess_archived_games (
	id          BIGSERIAL PRIMARY KEY,
	game_uuid   TEXT NOT NULL UNIQUE,
	session_id  TEXT NOT NULL,
	human_side  TEXT NOT NULL,
	difficulty  TEXT NOT NULL,
	result      TEXT NOT NULL,
	method      TEXT NOT NULL,
	moves_san   JSONB NOT NULL,
	moves_uci   JSONB NOT NULL,
	final_fen   TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chess_archived_games_session ON chess_archived_games(session_id, ended_at DESC);
`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// EnsureSchema applies Schema. It is safe to call on every start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply archive schema: %w", err)
	}
	return nil
}

func (r *repository) InsertGame(ctx context.Context, game *domain.ArchivedGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil archived game")
	}
	movesSAN, err := json.Marshal(nonNil(game.MovesSAN))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}
	movesUCI, err := json.Marshal(nonNil(game.MovesUCI))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}

	const query = `
		INSERT INTO chess_archived_games (
			game_uuid,
			session_id,
			human_side,
			difficulty,
			result,
			method,
			moves_san,
			moves_uci,
			final_fen,
			started_at,
			ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11)
		ON CONFLICT (game_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(ctx, query,
		game.GameUUID,
		game.SessionID,
		game.HumanSide.String(),
		game.Difficulty.String(),
		game.Result,
		game.Method,
		movesSAN,
		movesUCI,
		game.FinalFEN,
		game.StartedAt,
		game.EndedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert archived game: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) RecentGames(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT
			id,
			game_uuid,
			session_id,
			human_side,
			difficulty,
			result,
			method,
			moves_san,
			moves_uci,
			final_fen,
			started_at,
			ended_at
		FROM chess_archived_games
		WHERE session_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select archived games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.ArchivedGame, 0, limit)
	for rows.Next() {
		var (
			game           domain.ArchivedGame
			side, level    string
			sanJSON, uJSON []byte
		)
		if err := rows.Scan(
			&game.ID,
			&game.GameUUID,
			&game.SessionID,
			&side,
			&level,
			&game.Result,
			&game.Method,
			&sanJSON,
			&uJSON,
			&game.FinalFEN,
			&game.StartedAt,
			&game.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scan archived game: %w", err)
		}
		if game.HumanSide, err = domain.ParseSide(side); err != nil {
			return nil, err
		}
		if game.Difficulty, err = domain.ParseDifficulty(level); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(sanJSON, &game.MovesSAN); err != nil {
			return nil, fmt.Errorf("unmarshal moves_san: %w", err)
		}
		if err := json.Unmarshal(uJSON, &game.MovesUCI); err != nil {
			return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
		}
		games = append(games, &game)
	}
	return games, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
