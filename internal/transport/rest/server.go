package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server routes the public HTTP API.
type Server struct {
	handler http.Handler
}

func New(logger *slog.Logger, players playerService, leaderboard leaderboardRepo) *Server {
	log := logger.With("component", "rest")

	h := &handlers{
		logger:      log,
		players:     players,
		leaderboard: leaderboard,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ping", pingHandler)
	r.Route("/game", func(r chi.Router) {
		r.Post("/websocket-token", h.issueToken)
		r.Get("/leaderboard", h.getLeaderboard)
	})

	return &Server{
		handler: r,
	}
}

func (that *Server) Handler() http.Handler {
	return that.handler
}
