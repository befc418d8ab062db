package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-realtime/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/protocol"
)

// Outbox delivers events to one connected player without blocking.
type Outbox interface {
	Send(event protocol.Event) error
}

type gameRepo interface {
	Create(ctx context.Context, player1, player2 entity.Player) (int64, error)
	Finish(ctx context.Context, result entity.GameResult) error
}

type liveGame struct {
	session *entity.Session
	moves   map[int64]int
}

// Matchmaker pairs waiting players first come first served and referees their games.
type Matchmaker struct {
	logger   *slog.Logger
	gameRepo gameRepo

	mu       sync.Mutex
	queue    []entity.Player
	outboxes map[int64]Outbox
	games    map[int64]*liveGame
	playing  map[int64]int64
}

func NewMatchmaker(logger *slog.Logger, gameRepo gameRepo) *Matchmaker {
	return &Matchmaker{
		logger:   logger.With("component", "matchmaker"),
		gameRepo: gameRepo,
		outboxes: make(map[int64]Outbox),
		games:    make(map[int64]*liveGame),
		playing:  make(map[int64]int64),
	}
}

// Join registers the player's connection. When someone is already waiting the two are
// matched: the newcomer becomes player1 and moves first. Otherwise the player waits.
func (that *Matchmaker) Join(ctx context.Context, player entity.Player, outbox Outbox) error {
	log := that.logger.With("method", "Join", "player_id", player.ID)

	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.outboxes[player.ID]; ok {
		return fmt.Errorf("%w: %d", apperror.ErrAlreadyInQueue, player.ID)
	}

	that.outboxes[player.ID] = outbox

	if len(that.queue) == 0 {
		that.queue = append(that.queue, player)
		log.Info("player is waiting for an opponent")

		return nil
	}

	waiting := that.queue[0]
	that.queue = that.queue[1:]

	if err := that.startGame(ctx, player, waiting); err != nil {
		that.queue = append([]entity.Player{waiting}, that.queue...)
		delete(that.outboxes, player.ID)

		return fmt.Errorf("failed to start game: %w", err)
	}

	return nil
}

// PlayMove applies a move from playerID and broadcasts the outcome to both players.
func (that *Matchmaker) PlayMove(ctx context.Context, gameID, playerID int64, row, col int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	game, ok := that.games[gameID]
	if !ok {
		return fmt.Errorf("%w: id %d", apperror.ErrGameNotFound, gameID)
	}

	session := game.session
	if !session.HasPlayer(playerID) {
		return fmt.Errorf("%w: player %d in game %d", apperror.ErrUnknownPlayer, playerID, gameID)
	}

	if err := session.MakeMove(playerID, row, col); err != nil {
		return fmt.Errorf("failed to make move: %w", err)
	}

	game.moves[playerID]++

	that.broadcast(session, protocol.NewMove(gameID, playerID, session.Turn, row, col))

	if session.IsFinished() {
		that.finishGame(ctx, game)
	}

	return nil
}

// Leave drops the player's connection. An unfinished game is forfeited to the opponent.
func (that *Matchmaker) Leave(ctx context.Context, playerID int64) {
	log := that.logger.With("method", "Leave", "player_id", playerID)

	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.outboxes, playerID)

	for i, waiting := range that.queue {
		if waiting.ID == playerID {
			that.queue = append(that.queue[:i], that.queue[i+1:]...)
			break
		}
	}

	gameID, ok := that.playing[playerID]
	if !ok {
		return
	}

	game := that.games[gameID]

	opponent, err := game.session.Opponent(playerID)
	if err != nil {
		log.Error("failed to find opponent", "error", err)
		return
	}

	log.Info("player left a running game, opponent wins", "game_id", gameID)
	game.session.Finish(opponent.ID)
	that.finishGame(ctx, game)
}

// Waiting returns how many players are queued.
func (that *Matchmaker) Waiting() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.queue)
}

// startGame runs with mu held.
func (that *Matchmaker) startGame(ctx context.Context, player1, player2 entity.Player) error {
	id, err := that.gameRepo.Create(ctx, player1, player2)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}

	session := entity.NewSession(id, player1, player2)
	if err = session.Start(player1.ID); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	that.games[id] = &liveGame{session: session, moves: make(map[int64]int)}
	that.playing[player1.ID] = id
	that.playing[player2.ID] = id

	that.logger.Info("game started", "game_id", id, "player1", player1.ID, "player2", player2.ID)

	that.broadcast(session, protocol.GameStart{
		GameID:  id,
		Player1: player1,
		Player2: player2,
		Turn:    session.Turn,
	})

	return nil
}

// finishGame announces the end, stores the result and forgets the game. Runs with mu held.
func (that *Matchmaker) finishGame(ctx context.Context, game *liveGame) {
	log := that.logger.With("method", "finishGame", "game_id", game.session.ID)

	session := game.session

	end := protocol.GameEnd{
		GameID:  session.ID,
		Player1: session.Player1,
		Player2: session.Player2,
	}

	result := entity.GameResult{
		GameID:           session.ID,
		IsDraw:           session.IsDraw(),
		Player1MoveCount: game.moves[session.Player1.ID],
		Player2MoveCount: game.moves[session.Player2.ID],
		FinalState:       session.Board,
	}

	if !session.IsDraw() {
		winner := session.Winner
		end.WinnerID = &winner

		loser, err := session.Opponent(winner)
		if err != nil {
			log.Error("failed to find loser", "error", err)
		}

		result.WinnerID = winner
		result.LoserID = loser.ID
	}

	that.broadcast(session, end)

	delete(that.games, session.ID)
	delete(that.playing, session.Player1.ID)
	delete(that.playing, session.Player2.ID)

	if err := that.gameRepo.Finish(ctx, result); err != nil {
		log.Error("failed to save game result", "error", err)
		return
	}

	log.Info("game finished", "winner_id", result.WinnerID, "is_draw", result.IsDraw)
}

// broadcast runs with mu held.
func (that *Matchmaker) broadcast(session *entity.Session, event protocol.Event) {
	for _, id := range []int64{session.Player1.ID, session.Player2.ID} {
		outbox, ok := that.outboxes[id]
		if !ok {
			continue
		}

		if err := outbox.Send(event); err != nil {
			that.logger.Warn("failed to deliver event", "player_id", id, "type", event.Type(), "error", err)
		}
	}
}
