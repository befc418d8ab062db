package entity

// Player is a participant identity issued by the auth system. Ids are positive.
type Player struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (that Player) IsValid() bool {
	return that.ID > 0
}
