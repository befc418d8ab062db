package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

const issuer = "tictactoe-realtime"

var ErrTokenExpired = errors.New("token expired")

type AuthService interface {
	GenerateToken(player entity.Player) (string, error)
	ParseToken(token string) (entity.Player, error)
}

// Claims carries the player identity in the long-lived credential.
type Claims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type authServiceImpl struct {
	secretKey []byte
	ttl       time.Duration
}

func NewAuthService(secretKey string, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &authServiceImpl{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}
}

func (that *authServiceImpl) GenerateToken(player entity.Player) (string, error) {
	if !player.IsValid() {
		return "", fmt.Errorf("%w: player id must be positive", apperror.ErrInvalidToken)
	}

	now := time.Now()
	claims := Claims{
		ID:       player.ID,
		Username: player.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(that.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(that.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (that *authServiceImpl) ParseToken(tokenString string) (entity.Player, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return that.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return entity.Player{}, fmt.Errorf("%w: %w", apperror.ErrInvalidToken, ErrTokenExpired)
		}

		return entity.Player{}, fmt.Errorf("%w: %w", apperror.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return entity.Player{}, apperror.ErrInvalidToken
	}

	return claimsPlayer(claims)
}

// PeekPlayer reads the identity from a credential without checking its signature.
// The server still verifies the credential; the client only needs to know who it plays as.
func PeekPlayer(tokenString string) (entity.Player, error) {
	claims := &Claims{}

	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return entity.Player{}, fmt.Errorf("%w: %w", apperror.ErrInvalidToken, err)
	}

	return claimsPlayer(claims)
}

func claimsPlayer(claims *Claims) (entity.Player, error) {
	player := entity.Player{ID: claims.ID, Username: claims.Username}
	if !player.IsValid() {
		return entity.Player{}, fmt.Errorf("%w: missing player id", apperror.ErrInvalidToken)
	}

	return player, nil
}
