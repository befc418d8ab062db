// Package websocket serves the game socket: it admits players by connection token, hands
// them to the matchmaker and relays their move intents.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/usecase"
)

const (
	CloseUnauthorized = 4001

	reasonMissingToken = "Missing token"
	reasonInvalidToken = "Invalid token"

	reasonAlreadyConnected = "Already connected"
	reasonInternal         = "Internal error"
)

type tokenRedeemer interface {
	RedeemConnectionToken(ctx context.Context, token string) (entity.Player, error)
}

type matchmaker interface {
	Join(ctx context.Context, player entity.Player, outbox usecase.Outbox) error
	PlayMove(ctx context.Context, gameID, playerID int64, row, col int) error
	Leave(ctx context.Context, playerID int64)
}

type handlerFunc func(ctx context.Context, peer *peer, event protocol.Event) error

type Server struct {
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	players    tokenRedeemer
	matchmaker matchmaker
	handlers   map[protocol.Type]handlerFunc
}

func New(logger *slog.Logger, players tokenRedeemer, matchmaker matchmaker) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		players:    players,
		matchmaker: matchmaker,
		handlers:   make(map[protocol.Type]handlerFunc),
	}

	server.handlers[protocol.TypeGameMove] = server.handleMove

	return server
}

func (that *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/game/ws", that.serveWS)

	return r
}

// serveWS upgrades first so that a bad token can be refused with a close frame.
func (that *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveWS")

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		refuse(conn, CloseUnauthorized, reasonMissingToken)
		return
	}

	player, err := that.players.RedeemConnectionToken(ctx, token)
	if err != nil {
		log.Info("connection token rejected", "error", err)
		refuse(conn, CloseUnauthorized, reasonInvalidToken)

		return
	}

	log = log.With("player_id", player.ID)

	peer := newPeer(that.logger, conn, player)
	go peer.writePump()
	defer peer.close()

	if err = that.matchmaker.Join(ctx, player, peer); err != nil {
		log.Warn("failed to join matchmaking", "error", err)

		if errors.Is(err, apperror.ErrAlreadyInQueue) {
			refuse(conn, websocket.ClosePolicyViolation, reasonAlreadyConnected)
			return
		}

		refuse(conn, websocket.CloseInternalServerErr, reasonInternal)

		return
	}

	log.Info("player connected")

	that.readPump(ctx, peer)

	that.matchmaker.Leave(context.WithoutCancel(ctx), player.ID)
	log.Info("player disconnected")
}

// readPump decodes inbound messages until the connection drops. Bad messages and refused
// moves are logged and skipped.
func (that *Server) readPump(ctx context.Context, peer *peer) {
	log := that.logger.With("method", "readPump", "player_id", peer.player.ID)

	peer.conn.SetReadLimit(maxMessageSize)
	_ = peer.conn.SetReadDeadline(time.Now().Add(pongWait))
	peer.conn.SetPongHandler(func(string) error {
		return peer.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := peer.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("connection dropped", "error", err)
			}

			return
		}

		event, err := protocol.Decode(data)
		if err != nil {
			log.Warn("failed to decode message", "error", err)
			continue
		}

		handler, ok := that.handlers[event.Type()]
		if !ok {
			log.Warn("unsupported event", "type", event.Type())
			continue
		}

		if err = handler(ctx, peer, event); err != nil {
			log.Info("event refused", "type", event.Type(), "error", err)
		}
	}
}

func refuse(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
