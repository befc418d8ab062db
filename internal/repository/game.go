package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"

	LeaderboardSize     = 3
	LeaderboardMinGames = 3
)

type GameRepository interface {
	Create(ctx context.Context, player1, player2 entity.Player) (int64, error)
	Finish(ctx context.Context, result entity.GameResult) error
	Leaderboard(ctx context.Context, limit, minGames int) ([]entity.LeaderboardEntry, error)
}

type dbGame struct {
	pool *pgxpool.Pool
}

func NewGameRepository(pool *pgxpool.Pool) GameRepository {
	return &dbGame{
		pool: pool,
	}
}

// Create stores a new in-progress game and returns its id.
func (that *dbGame) Create(ctx context.Context, player1, player2 entity.Player) (int64, error) {
	query := `
		INSERT INTO games (player1_id, player2_id, status)
		VALUES ($1, $2, $3)
		RETURNING id`

	var id int64
	if err := that.pool.QueryRow(ctx, query, player1.ID, player2.ID, StatusInProgress).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create game: %w", err)
	}

	return id, nil
}

func (that *dbGame) Finish(ctx context.Context, result entity.GameResult) error {
	finalState, err := json.Marshal(result.FinalState)
	if err != nil {
		return fmt.Errorf("could not marshal final state: %w", err)
	}

	query := `
		UPDATE games SET
			status = $2,
			winner_id = $3,
			loser_id = $4,
			is_draw = $5,
			player1_move_count = $6,
			player2_move_count = $7,
			final_state = $8,
			updated_at = now()
		WHERE id = $1`

	tag, err := that.pool.Exec(ctx, query,
		result.GameID,
		StatusCompleted,
		nullableID(result.WinnerID),
		nullableID(result.LoserID),
		result.IsDraw,
		result.Player1MoveCount,
		result.Player2MoveCount,
		finalState,
	)
	if err != nil {
		return fmt.Errorf("failed to finish game: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", apperror.ErrGameNotFound, result.GameID)
	}

	return nil
}

// Leaderboard ranks players with at least minGames completed games by wins, then by
// efficiency, the average number of own moves in won games (lower first, none last).
func (that *dbGame) Leaderboard(ctx context.Context, limit, minGames int) ([]entity.LeaderboardEntry, error) {
	query := `
		WITH played AS (
			SELECT
				p.id,
				p.username,
				g.winner_id = p.id AS won,
				g.loser_id = p.id AS lost,
				g.is_draw,
				CASE WHEN g.player1_id = p.id THEN g.player1_move_count ELSE g.player2_move_count END AS moves
			FROM players p
			JOIN games g ON p.id IN (g.player1_id, g.player2_id)
			WHERE g.status = $1
		)
		SELECT
			id,
			username,
			COUNT(*) FILTER (WHERE won) AS wins,
			COUNT(*) FILTER (WHERE lost) AS losses,
			COUNT(*) FILTER (WHERE is_draw) AS draws,
			(AVG(moves) FILTER (WHERE won))::float8 AS efficiency
		FROM played
		GROUP BY id, username
		HAVING COUNT(*) >= $2
		ORDER BY wins DESC, efficiency ASC NULLS LAST, id
		LIMIT $3`

	rows, err := that.pool.Query(ctx, query, StatusCompleted, minGames, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.LeaderboardEntry, error) {
		var entry entity.LeaderboardEntry
		err := row.Scan(&entry.UserID, &entry.Username, &entry.Wins, &entry.Losses, &entry.Draws, &entry.Efficiency)

		return entry, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan leaderboard: %w", err)
	}

	return entries, nil
}

func nullableID(id int64) *int64 {
	if id == entity.NoWinner {
		return nil
	}

	return &id
}
