package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

const (
	tokenKeyPrefix = "ws_token:"
	TokenTTL       = 300 * time.Second
)

// TokenRepository stores single-use connection tokens.
type TokenRepository interface {
	Create(ctx context.Context, player entity.Player) (string, error)
	Consume(ctx context.Context, token string) (entity.Player, error)
}

type tokenPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type dbToken struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTokenRepository(client *redis.Client, ttl time.Duration) TokenRepository {
	if ttl <= 0 {
		ttl = TokenTTL
	}

	return &dbToken{
		client: client,
		ttl:    ttl,
	}
}

func (that *dbToken) Create(ctx context.Context, player entity.Player) (string, error) {
	payload, err := json.Marshal(tokenPayload{UserID: player.ID, Username: player.Username})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}

	token := uuid.NewString()

	if err = that.client.SetEx(ctx, tokenKeyPrefix+token, payload, that.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	return token, nil
}

// Consume returns the player behind token and deletes it, so a token works once.
func (that *dbToken) Consume(ctx context.Context, token string) (entity.Player, error) {
	if token == "" {
		return entity.Player{}, apperror.ErrInvalidToken
	}

	response, err := that.client.GetDel(ctx, tokenKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return entity.Player{}, apperror.ErrInvalidToken
	}

	if err != nil {
		return entity.Player{}, fmt.Errorf("failed to get token: %w", err)
	}

	var payload tokenPayload
	if err = json.Unmarshal([]byte(response), &payload); err != nil {
		return entity.Player{}, fmt.Errorf("failed to unmarshal token payload: %w", err)
	}

	return entity.Player{ID: payload.UserID, Username: payload.Username}, nil
}
