// Package handshake trades a long-lived credential for a single-use connection token.
package handshake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
)

const tokenPath = "/game/websocket-token"

type tokenResponse struct {
	Token string `json:"websocket_token"`
}

type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
}

func New(logger *slog.Logger, httpClient *http.Client, apiURL string) *Client {
	return &Client{
		logger:     logger.With("component", "handshake"),
		httpClient: httpClient,
		apiURL:     strings.TrimRight(apiURL, "/"),
	}
}

// ExchangeToken makes one request and never retries. Every failure wraps apperror.ErrAuth.
func (that *Client) ExchangeToken(ctx context.Context, credential string) (string, error) {
	log := that.logger.With("method", "ExchangeToken")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, that.apiURL+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to build request: %w", apperror.ErrAuth, err)
	}

	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := that.httpClient.Do(req)
	if err != nil {
		log.Error("token request failed", "error", err)
		return "", fmt.Errorf("%w: %w", apperror.ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn("token request refused", "status", resp.StatusCode, "body", string(body))

		return "", fmt.Errorf("%w: status %d", apperror.ErrAuth, resp.StatusCode)
	}

	var payload tokenResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", apperror.ErrAuth, err)
	}

	if payload.Token == "" {
		return "", fmt.Errorf("%w: empty websocket_token", apperror.ErrAuth)
	}

	log.Debug("connection token received")

	return payload.Token, nil
}
