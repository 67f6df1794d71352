package lila

// User is the account returned by the login and account endpoints.
type User struct {
	ID         string          `json:"id"`
	Username   string          `json:"username"`
	Online     bool            `json:"online"`
	Engine     *bool           `json:"engine,omitempty"`
	Booster    *bool           `json:"booster,omitempty"`
	Perfs      map[string]Perf `json:"perfs,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
	SeenAt     int64           `json:"seenAt"`
	PlayTime   PlayTime        `json:"playTime"`
	NowPlaying []PlayingGame   `json:"nowPlaying"`
}

type Perf struct {
	Games  int64 `json:"games"`
	Rating int64 `json:"rating"`
	RD     int64 `json:"rd"`
	Prov   *bool `json:"prov,omitempty"`
	Prog   int64 `json:"prog"`
}

type PlayTime struct {
	Total int64 `json:"total"`
	TV    int64 `json:"tv"`
}

// PlayingGame is one entry of the user's ongoing games.
type PlayingGame struct {
	FullID      string          `json:"fullId"`
	GameID      string          `json:"gameId"`
	FEN         string          `json:"fen"`
	Color       string          `json:"color,omitempty"`
	Opponent    PlayingOpponent `json:"opponent"`
	IsMyTurn    bool            `json:"isMyTurn,omitempty"`
	SecondsLeft *int64          `json:"secondsLeft,omitempty"`
}

type PlayingOpponent struct {
	ID       *string `json:"id,omitempty"`
	Username string  `json:"username"`
	Rating   *int64  `json:"rating,omitempty"`
}

// AnonymousUser stands in for a visitor without an account.
func AnonymousUser() *User {
	f := false
	return &User{
		ID:       "anonymous",
		Username: "Anonymous",
		Online:   true,
		Engine:   &f,
		Booster:  &f,
		Perfs:    map[string]Perf{},
	}
}

// Anonymous reports whether u is the stand-in visitor.
func (u *User) Anonymous() bool { return u == nil || u.ID == "anonymous" }
