package game

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

// Clock holds the remaining time per side as of the last authoritative update.
// updatedAt never travels on the wire; it is stamped when the clock is installed.
type Clock struct {
	White time.Duration
	Black time.Duration

	updatedAt time.Time
}

type wireClock struct {
	White *float64 `json:"white"`
	Black *float64 `json:"black"`
}

// ErrClockIncomplete is returned when a clock payload lacks either side.
var ErrClockIncomplete = errors.New("clock: white and black are required")

// NewClock returns a clock stamped at at.
func NewClock(white, black time.Duration, at time.Time) *Clock {
	return &Clock{White: white, Black: black, updatedAt: at}
}

// UnmarshalJSON reads seconds as floating point numbers. Both sides must be present.
func (c *Clock) UnmarshalJSON(b []byte) error {
	var w wireClock
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.White == nil || w.Black == nil {
		return ErrClockIncomplete
	}
	c.White = seconds(*w.White)
	c.Black = seconds(*w.Black)
	return nil
}

func (c Clock) MarshalJSON() ([]byte, error) {
	white, black := c.White.Seconds(), c.Black.Seconds()
	return json.Marshal(wireClock{White: &white, Black: &black})
}

// Stamp sets the instant the stored values were authoritative.
func (c *Clock) Stamp(at time.Time) { c.updatedAt = at }

// UpdatedAt returns the last stamp.
func (c *Clock) UpdatedAt() time.Time { return c.updatedAt }

// Of returns the stored value for side, without drift correction.
func (c *Clock) Of(side Color) time.Duration {
	if side == Black {
		return c.Black
	}
	return c.White
}

// Remaining returns the time left for side as of now. Only the running side
// loses the wall time elapsed since the last stamp. The clock is not modified.
func (c *Clock) Remaining(side, running Color, now time.Time) time.Duration {
	v := c.Of(side)
	if side != running {
		return v
	}
	return floorZero(v - c.elapsed(now))
}

// Tick charges the running side with the time elapsed since the last stamp and
// restamps the clock at now.
func (c *Clock) Tick(running Color, now time.Time) {
	passed := c.elapsed(now)
	c.updatedAt = now
	if passed == 0 {
		return
	}
	switch running {
	case Black:
		c.Black = floorZero(c.Black - passed)
	default:
		c.White = floorZero(c.White - passed)
	}
}

func (c *Clock) elapsed(now time.Time) time.Duration {
	if c.updatedAt.IsZero() {
		return 0
	}
	d := now.Sub(c.updatedAt)
	if d < 0 {
		return 0
	}
	return d
}

func floorZero(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// seconds converts s to a duration, clamped to [0, MaxInt64].
func seconds(s float64) time.Duration {
	if math.IsNaN(s) || s <= 0 {
		return 0
	}
	ns := s * float64(time.Second)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}
