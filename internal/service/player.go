package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

// PlayerService admits authenticated players to the game socket with single-use tokens.
type PlayerService interface {
	IssueConnectionToken(ctx context.Context, credential string) (string, error)
	RedeemConnectionToken(ctx context.Context, token string) (entity.Player, error)
}

type credentialParser interface {
	ParseToken(token string) (entity.Player, error)
}

type playerRepo interface {
	CreateOrUpdate(ctx context.Context, player entity.Player) error
}

type tokenRepo interface {
	Create(ctx context.Context, player entity.Player) (string, error)
	Consume(ctx context.Context, token string) (entity.Player, error)
}

type playerService struct {
	logger     *slog.Logger
	auth       credentialParser
	playerRepo playerRepo
	tokenRepo  tokenRepo
}

func NewPlayerService(logger *slog.Logger, auth credentialParser, playerRepo playerRepo, tokenRepo tokenRepo) PlayerService {
	return &playerService{
		logger:     logger.With("component", "playerService"),
		auth:       auth,
		playerRepo: playerRepo,
		tokenRepo:  tokenRepo,
	}
}

// IssueConnectionToken verifies the credential, records the player and mints a connection token.
func (that *playerService) IssueConnectionToken(ctx context.Context, credential string) (string, error) {
	player, err := that.auth.ParseToken(credential)
	if err != nil {
		return "", fmt.Errorf("failed to parse credential: %w", err)
	}

	if err = that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return "", fmt.Errorf("failed to save player: %w", err)
	}

	token, err := that.tokenRepo.Create(ctx, player)
	if err != nil {
		return "", fmt.Errorf("failed to create connection token: %w", err)
	}

	that.logger.Debug("connection token issued", "player_id", player.ID)

	return token, nil
}

func (that *playerService) RedeemConnectionToken(ctx context.Context, token string) (entity.Player, error) {
	player, err := that.tokenRepo.Consume(ctx, token)
	if err != nil {
		return entity.Player{}, fmt.Errorf("failed to redeem connection token: %w", err)
	}

	return player, nil
}
