package game

// Color identifies a side of the board.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == Black {
		return White
	}
	return Black
}

// ToMove returns the side to move after ply half-moves from the initial position.
func ToMove(ply uint64) Color {
	if ply%2 == 0 {
		return White
	}
	return Black
}
