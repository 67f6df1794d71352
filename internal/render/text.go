package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/corentings/chess/v2"

	"github.com/park285/liru-go/internal/game"
	"github.com/park285/liru-go/internal/msgcat"
)

// Renderer draws a game snapshot as plain terminal text.
type Renderer struct {
	cat *msgcat.Catalog
}

func New(cat *msgcat.Catalog) *Renderer {
	if cat == nil {
		cat = msgcat.Default()
	}
	return &Renderer{cat: cat}
}

// Text renders p as seen from its orientation: opponent on top, board,
// player at the bottom, then move, turn and latency lines.
func (r *Renderer) Text(p game.Pov, lat game.LatencySnapshot, now time.Time) string {
	orientation := p.Orientation()
	bottom, top := p.Player, p.Opponent
	if bottom.Color != orientation {
		bottom, top = top, bottom
	}

	var b strings.Builder
	b.WriteString(r.cat.Text("game.header", map[string]any{
		"Variant": p.Game.Variant.Name,
		"Speed":   p.Game.Speed,
		"Rated":   p.Game.Rated,
		"Status":  p.Game.Status.Name,
	}))
	b.WriteByte('\n')

	b.WriteString(r.playerLine(p, top, now, false))
	b.WriteByte('\n')
	b.WriteString(Board(p.Game.FEN, orientation))
	b.WriteString(r.playerLine(p, bottom, now, true))
	b.WriteByte('\n')

	if p.Game.LastMove != nil {
		mv := *p.Game.LastMove
		if p.Game.LastMoveSAN != nil {
			mv = *p.Game.LastMoveSAN
		}
		b.WriteString(r.cat.Text("game.last_move", map[string]any{"Move": mv}))
	} else {
		b.WriteString(r.cat.Text("game.no_move", nil))
	}
	b.WriteByte('\n')

	if p.Ended {
		winner := ""
		if p.Winner != nil {
			winner = string(*p.Winner)
		}
		b.WriteString(r.cat.Text("game.ended", map[string]any{"Winner": winner}))
	} else {
		b.WriteString(r.cat.Text("game.to_move", map[string]any{"Color": string(p.Game.Player)}))
	}
	b.WriteByte('\n')

	if p.Crowd != nil && p.Crowd.Watchers.Nb > 0 {
		b.WriteString(r.cat.Text("game.watchers", map[string]any{"Count": p.Crowd.Watchers.Nb}))
		b.WriteByte('\n')
	}

	b.WriteString(r.cat.Text("game.latency", map[string]any{
		"Last":    lat.Last.Milliseconds(),
		"Average": lat.Average.Milliseconds(),
	}))
	b.WriteByte('\n')
	return b.String()
}

func (r *Renderer) playerLine(p game.Pov, pl game.Player, now time.Time, isBottom bool) string {
	present := false
	if p.Crowd != nil {
		if isBottom {
			present = p.Crowd.PlayerPresent(p.Orientation())
		} else {
			present = p.Crowd.OpponentPresent(p.Orientation())
		}
	}
	var rating int64
	if pl.Rating != nil {
		rating = *pl.Rating
	}
	clock := ""
	if p.Clock != nil {
		if p.Ended {
			clock = FormatClock(p.Clock.Of(pl.Color))
		} else {
			clock = FormatClock(p.Clock.Remaining(pl.Color, p.Game.Player, now))
		}
	}
	return r.cat.Text("game.player", map[string]any{
		"Present": present,
		"Name":    pl.Name(),
		"Rating":  rating,
		"Clock":   clock,
	})
}

// FormatClock renders d as mm:ss.t, or h:mm:ss from one hour up.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d >= time.Hour {
		h := d / time.Hour
		m := (d % time.Hour) / time.Minute
		s := (d % time.Minute) / time.Second
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	tenths := (d % time.Second) / (100 * time.Millisecond)
	return fmt.Sprintf("%02d:%02d.%d", m, s, tenths)
}

// Board draws the position in fen with rank and file labels, white pieces in
// upper case. Black orientation flips both axes. A position the chess library
// cannot read is printed as is.
func Board(fen string, orientation game.Color) string {
	board, err := parseBoard(fen)
	if err != nil {
		return fen + "\n"
	}

	ranks := []chess.Rank{chess.Rank8, chess.Rank7, chess.Rank6, chess.Rank5, chess.Rank4, chess.Rank3, chess.Rank2, chess.Rank1}
	files := []chess.File{chess.FileA, chess.FileB, chess.FileC, chess.FileD, chess.FileE, chess.FileF, chess.FileG, chess.FileH}
	if orientation == game.Black {
		reverse(ranks)
		reverse(files)
	}

	var b strings.Builder
	for _, rank := range ranks {
		fmt.Fprintf(&b, "%d ", int(rank)+1)
		for i, file := range files {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte(pieceChar(board.Piece(chess.NewSquare(file, rank))))
		}
		b.WriteByte('\n')
	}
	b.WriteString("  ")
	for i, file := range files {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(byte('a' + int(file)))
	}
	b.WriteByte('\n')
	return b.String()
}

// parseBoard accepts a full FEN or only its placement field, which is what
// move events carry.
func parseBoard(fen string) (*chess.Board, error) {
	fen = strings.TrimSpace(fen)
	if len(strings.Fields(fen)) == 1 {
		fen += " w - - 0 1"
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt).Position().Board(), nil
}

func pieceChar(p chess.Piece) byte {
	var c byte
	switch p.Type() {
	case chess.King:
		c = 'k'
	case chess.Queen:
		c = 'q'
	case chess.Rook:
		c = 'r'
	case chess.Bishop:
		c = 'b'
	case chess.Knight:
		c = 'n'
	case chess.Pawn:
		c = 'p'
	default:
		return '.'
	}
	if p.Color() == chess.White {
		c -= 'a' - 'A'
	}
	return c
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
