package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/repository"
)

const bearerPrefix = "Bearer "

type playerService interface {
	IssueConnectionToken(ctx context.Context, credential string) (string, error)
}

type leaderboardRepo interface {
	Leaderboard(ctx context.Context, limit, minGames int) ([]entity.LeaderboardEntry, error)
}

type tokenResponse struct {
	WebsocketToken string `json:"websocket_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	logger      *slog.Logger
	players     playerService
	leaderboard leaderboardRepo
}

// issueToken trades the bearer credential for a single-use websocket token.
func (that *handlers) issueToken(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "issueToken")

	credential, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok || credential == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer credential"})
		return
	}

	token, err := that.players.IssueConnectionToken(r.Context(), credential)
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidToken) {
			log.Info("credential rejected", "error", err)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credential"})

			return
		}

		log.Error("failed to issue connection token", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})

		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{WebsocketToken: token})
}

func (that *handlers) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := that.leaderboard.Leaderboard(r.Context(), repository.LeaderboardSize, repository.LeaderboardMinGames)
	if err != nil {
		that.logger.Error("failed to read leaderboard", "method", "getLeaderboard", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})

		return
	}

	if entries == nil {
		entries = []entity.LeaderboardEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
