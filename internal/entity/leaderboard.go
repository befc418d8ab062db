package entity

// LeaderboardEntry is one row of the public leaderboard.
// Efficiency is the average number of moves per win, nil for players without wins.
type LeaderboardEntry struct {
	UserID     int64    `json:"user_id"`
	Username   string   `json:"username"`
	Wins       int      `json:"wins"`
	Losses     int      `json:"losses"`
	Draws      int      `json:"draws"`
	Efficiency *float64 `json:"efficiency"`
}

// GameResult is what the server persists once a session reaches its end.
type GameResult struct {
	GameID           int64
	WinnerID         int64
	LoserID          int64
	IsDraw           bool
	Player1MoveCount int
	Player2MoveCount int
	FinalState       Board
}
