package game

// Pov is one side's live view of a single game, decoded from the round
// snapshot and then kept current by socket events.
type Pov struct {
	Game           Game                 `json:"game"`
	Clock          *Clock               `json:"clock,omitempty"`
	Correspondence *CorrespondenceClock `json:"correspondence,omitempty"`
	URL            GameURL              `json:"url"`
	Player         Player               `json:"player"`
	Opponent       Player               `json:"opponent"`
	TV             *TV                  `json:"tv,omitempty"`
	OrientationOpt *Color               `json:"orientation,omitempty"`

	// Runtime only.
	Crowd  *Crowd `json:"-"`
	Ended  bool   `json:"-"`
	Winner *Color `json:"-"`
}

type Game struct {
	ID            string  `json:"id"`
	Variant       Variant `json:"variant"`
	Speed         string  `json:"speed"`
	Perf          string  `json:"perf"`
	Rated         bool    `json:"rated"`
	InitialFEN    string  `json:"initialFen"`
	FEN           string  `json:"fen"`
	Player        Color   `json:"player"`
	Turns         uint64  `json:"turns"`
	StartedAtTurn int64   `json:"startedAtTurn"`
	LastMove      *string `json:"lastMove,omitempty"`
	LastMoveSAN   *string `json:"lastMoveSan,omitempty"`
	Threefold     *bool   `json:"threefold,omitempty"`
	Source        string  `json:"source"`
	Status        Status  `json:"status"`
}

type Variant struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Short string `json:"short"`
}

type Status struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Player struct {
	Color     Color   `json:"color"`
	Version   *uint64 `json:"version,omitempty"`
	Spectator *bool   `json:"spectator,omitempty"`
	User      *User   `json:"user,omitempty"`
	Rating    *int64  `json:"rating,omitempty"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type GameURL struct {
	Socket string `json:"socket"`
	Round  string `json:"round"`
}

type TV struct {
	Channel string `json:"channel"`
	Flip    bool   `json:"flip"`
}

// CorrespondenceClock is carried through untouched.
type CorrespondenceClock struct {
	Increment int64   `json:"increment,omitempty"`
	White     float64 `json:"white,omitempty"`
	Black     float64 `json:"black,omitempty"`
}

// Orientation is the side the board is viewed from.
func (p *Pov) Orientation() Color {
	if p.OrientationOpt != nil {
		return *p.OrientationOpt
	}
	return p.Player.Color
}

// Version is the last event version known to the snapshot, 0 when absent.
func (p *Pov) Version() uint64 {
	if p.Player.Version == nil {
		return 0
	}
	return *p.Player.Version
}

// Name returns a display name for pl.
func (pl *Player) Name() string {
	if pl.User != nil && pl.User.Username != "" {
		return pl.User.Username
	}
	return "Anonymous"
}

// Clone returns a deep copy that shares no pointers with p.
func (p *Pov) Clone() Pov {
	out := *p
	out.Game.LastMove = clonePtr(p.Game.LastMove)
	out.Game.LastMoveSAN = clonePtr(p.Game.LastMoveSAN)
	out.Game.Threefold = clonePtr(p.Game.Threefold)
	out.Clock = clonePtr(p.Clock)
	out.Correspondence = clonePtr(p.Correspondence)
	out.TV = clonePtr(p.TV)
	out.OrientationOpt = clonePtr(p.OrientationOpt)
	out.Player = p.Player.clone()
	out.Opponent = p.Opponent.clone()
	out.Crowd = p.Crowd.clone()
	out.Winner = clonePtr(p.Winner)
	return out
}

func (pl Player) clone() Player {
	pl.Version = clonePtr(pl.Version)
	pl.Spectator = clonePtr(pl.Spectator)
	pl.User = clonePtr(pl.User)
	pl.Rating = clonePtr(pl.Rating)
	return pl
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
