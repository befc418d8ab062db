// Package leaderboard polls the ranking endpoint for display.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

const leaderboardPath = "/game/leaderboard"

type Poller struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	interval   time.Duration
}

func NewPoller(logger *slog.Logger, httpClient *http.Client, apiURL string, interval time.Duration) *Poller {
	return &Poller{
		logger:     logger.With("component", "leaderboard"),
		httpClient: httpClient,
		apiURL:     strings.TrimRight(apiURL, "/"),
		interval:   interval,
	}
}

func (that *Poller) Fetch(ctx context.Context) ([]entity.LeaderboardEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, that.apiURL+leaderboardPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := that.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: leaderboard status %d", apperror.ErrTransport, resp.StatusCode)
	}

	var entries []entity.LeaderboardEntry
	if err = json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrDecode, err)
	}

	return entries, nil
}

// Run fetches right away and then on every tick until ctx is done. Failed fetches are
// logged and skipped.
func (that *Poller) Run(ctx context.Context, fn func([]entity.LeaderboardEntry)) {
	log := that.logger.With("method", "Run")

	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	for {
		entries, err := that.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			log.Warn("failed to fetch leaderboard", "error", err)
		} else {
			fn(entries)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
