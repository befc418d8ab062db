package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/client"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/config"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/connection"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/handshake"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/leaderboard"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/repository"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/service"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/transport/rest"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/transport/websocket"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/usecase"
)

const (
	shutdownTimeout   = 5 * time.Second
	httpClientTimeout = 10 * time.Second
)

var (
	ErrAddrNotFound   = errors.New("redis address string is empty")
	ErrSecretNotFound = errors.New("jwt secret is empty")
)

// RunServer runs the HTTP API and the game socket until ctx is done or one of them fails.
func RunServer(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	if conf.JWT.Secret == "" {
		return ErrSecretNotFound
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	pgStorage, err := storage.NewPostgresStorage(ctx, conf.Postgres.DSN, conf.Postgres.MaxConns)
	if err != nil {
		return fmt.Errorf("could not connect to postgres storage: %w", err)
	}
	defer pgStorage.Close()

	authService := service.NewAuthService(conf.JWT.Secret, conf.JWT.TTL)
	playerRepo := repository.NewPlayerRepository(pgStorage.Pool)
	gameRepo := repository.NewGameRepository(pgStorage.Pool)
	tokenRepo := repository.NewTokenRepository(redisStorage.Connection, repository.TokenTTL)

	playerService := service.NewPlayerService(logger, authService, playerRepo, tokenRepo)
	matchmaker := usecase.NewMatchmaker(logger, gameRepo)

	restServer := rest.New(logger, playerService, gameRepo)
	wsServer := websocket.New(logger, playerService, matchmaker)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)

		return serve(groupCtx, log, &http.Server{
			Addr:         ":" + conf.HTTPPort,
			Handler:      restServer.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		})
	})

	// Socket connections outlive any request timeout; the pumps manage their own deadlines.
	group.Go(func() error {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)

		return serve(groupCtx, log, &http.Server{
			Addr:              ":" + conf.SocketPort,
			Handler:           wsServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	})

	if err = group.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("Application context canceled, shutting down")

	return nil
}

func serve(ctx context.Context, log *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server on %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server on %s: %w", srv.Addr, err)
	}

	log.Info("Server stopped", "addr", srv.Addr)

	return nil
}

// RunClient plays one game as the credential's player and prints the outcome to out.
func RunClient(ctx context.Context, logger *slog.Logger, conf *config.Config, credential string, in io.Reader, out io.Writer) error {
	player, err := service.PeekPlayer(credential)
	if err != nil {
		return fmt.Errorf("could not read credential: %w", err)
	}

	httpClient := &http.Client{Timeout: httpClientTimeout}

	opts := client.Options{
		Endpoint:   conf.Client.WSURL,
		Credential: credential,
		PlayerID:   player.ID,
		Input:      in,
		Output:     out,
	}

	if conf.Client.Strategy != "" {
		strategy, err := client.NewStrategy(conf.Client.Strategy, rand.New(rand.NewSource(time.Now().UnixNano())))
		if err != nil {
			return fmt.Errorf("could not create strategy: %w", err)
		}

		opts.Strategy = strategy
	}

	if conf.Client.LeaderboardInterval > 0 {
		opts.Leaderboard = leaderboard.NewPoller(logger, httpClient, conf.Client.APIURL, conf.Client.LeaderboardInterval)
	}

	game := client.New(logger, handshake.New(logger, httpClient, conf.Client.APIURL), connection.New(logger), opts)

	final, err := game.Run(ctx)
	if err != nil {
		return fmt.Errorf("game failed: %w", err)
	}

	logger.Info("game finished", "component", "app", "game_id", final.ID, "winner_id", final.Winner)

	return nil
}

// IssueCredential signs a credential for the player with the configured secret.
func IssueCredential(conf *config.Config, player entity.Player) (string, error) {
	if conf.JWT.Secret == "" {
		return "", ErrSecretNotFound
	}

	if !player.IsValid() {
		return "", fmt.Errorf("player id must be positive, got %d", player.ID)
	}

	token, err := service.NewAuthService(conf.JWT.Secret, conf.JWT.TTL).GenerateToken(player)
	if err != nil {
		return "", fmt.Errorf("could not sign credential: %w", err)
	}

	return token, nil
}
