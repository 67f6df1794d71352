package game

// Crowd is the presence info pushed with "crowd" events.
type Crowd struct {
	White    bool     `json:"white"`
	Black    bool     `json:"black"`
	Watchers Watchers `json:"watchers"`
}

type Watchers struct {
	Nb    int      `json:"nb"`
	Users []string `json:"users,omitempty"`
	Anons int      `json:"anons,omitempty"`
}

// PlayerPresent reports whether the side viewed from orientation is connected.
func (c *Crowd) PlayerPresent(orientation Color) bool {
	if orientation == Black {
		return c.Black
	}
	return c.White
}

// OpponentPresent reports whether the side opposite orientation is connected.
func (c *Crowd) OpponentPresent(orientation Color) bool {
	return c.PlayerPresent(orientation.Opposite())
}

func (c *Crowd) clone() *Crowd {
	if c == nil {
		return nil
	}
	out := *c
	out.Watchers.Users = append([]string(nil), c.Watchers.Users...)
	return &out
}
