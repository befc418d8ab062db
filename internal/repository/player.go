package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

var ErrPlayerNotFound = errors.New("player not found")

type PlayerRepository interface {
	CreateOrUpdate(ctx context.Context, player entity.Player) error
	GetByID(ctx context.Context, id int64) (entity.Player, error)
}

type dbPlayer struct {
	pool *pgxpool.Pool
}

func NewPlayerRepository(pool *pgxpool.Pool) PlayerRepository {
	return &dbPlayer{
		pool: pool,
	}
}

func (that *dbPlayer) CreateOrUpdate(ctx context.Context, player entity.Player) error {
	query := `
		INSERT INTO players (id, username) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username`

	if _, err := that.pool.Exec(ctx, query, player.ID, player.Username); err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}

	return nil
}

func (that *dbPlayer) GetByID(ctx context.Context, id int64) (entity.Player, error) {
	query := `SELECT id, username FROM players WHERE id = $1`

	var player entity.Player

	err := that.pool.QueryRow(ctx, query, id).Scan(&player.ID, &player.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.Player{}, ErrPlayerNotFound
	}

	if err != nil {
		return entity.Player{}, fmt.Errorf("failed to get player by ID: %w", err)
	}

	return player, nil
}
