package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/park285/liru-go/internal/game"
)

const maxBatchDepth = 4

// ErrNotObject is returned for a frame or payload that must be a JSON object.
var ErrNotObject = errors.New("protocol: payload is not an object")

// DecodeError reports a recognized tag whose payload could not be decoded.
type DecodeError struct {
	Tag string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode %q: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type frame struct {
	T string          `json:"t"`
	V *uint64         `json:"v"`
	D json.RawMessage `json:"d"`
}

// Decode turns one text frame into events in wire order. Batch frames are
// flattened in array order. A frame that is not JSON at all yields no events
// and an error. A recognized tag with a bad payload keeps its slot with Err
// set and a nil Event, so its version can still be consumed; those failures
// are also returned joined.
func Decode(raw []byte) ([]Decoded, error) {
	var out []Decoded
	var errs []error
	if err := decodeInto(raw, 0, &out, &errs); err != nil {
		return nil, err
	}
	return out, errors.Join(errs...)
}

func decodeInto(raw []byte, depth int, out *[]Decoded, errs *[]error) error {
	if !isObject(raw) {
		return ErrNotObject
	}
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("protocol: frame: %w", err)
	}

	if f.T == "b" {
		if depth >= maxBatchDepth {
			*errs = append(*errs, &DecodeError{Tag: "b", Err: errors.New("batch nested too deep")})
			return nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(f.D, &items); err != nil {
			*errs = append(*errs, &DecodeError{Tag: "b", Err: err})
			return nil
		}
		for i, item := range items {
			if err := decodeInto(item, depth+1, out, errs); err != nil {
				*errs = append(*errs, &DecodeError{Tag: "b", Err: fmt.Errorf("item %d: %w", i, err)})
			}
		}
		return nil
	}

	ev, err := decodeEvent(f.T, f.D)
	if err != nil {
		de := &DecodeError{Tag: f.T, Err: err}
		*errs = append(*errs, de)
		*out = append(*out, Decoded{Version: f.V, Err: de})
		return nil
	}
	*out = append(*out, Decoded{Event: ev, Version: f.V})
	return nil
}

func decodeEvent(tag string, d json.RawMessage) (Event, error) {
	switch tag {
	case "n":
		return PongReceived{Hint: latencyHint(d)}, nil
	case "move":
		if !isObject(d) {
			return nil, ErrNotObject
		}
		var m MoveApplied
		if err := json.Unmarshal(d, &m); err != nil {
			return nil, err
		}
		if m.FEN == "" {
			return nil, errors.New("missing fen")
		}
		return m, nil
	case "clock":
		if !isObject(d) {
			return nil, ErrNotObject
		}
		var c game.Clock
		if err := json.Unmarshal(d, &c); err != nil {
			return nil, err
		}
		return ClockUpdated{Clock: c}, nil
	case "crowd":
		if !isObject(d) {
			return nil, ErrNotObject
		}
		var c game.Crowd
		if err := json.Unmarshal(d, &c); err != nil {
			return nil, err
		}
		return CrowdUpdated{Crowd: c}, nil
	case "end":
		return GameEnded{Winner: winner(d)}, nil
	default:
		return Unrecognized{Tag: tag}, nil
	}
}

// latencyHint accepts either a bare number of milliseconds or {"latency": n}.
// Anything else, including a value no duration can hold, means no hint.
func latencyHint(d json.RawMessage) *time.Duration {
	d = bytes.TrimSpace(d)
	if len(d) == 0 || bytes.Equal(d, []byte("null")) {
		return nil
	}
	var ms float64
	if err := json.Unmarshal(d, &ms); err != nil {
		var obj struct {
			Latency *float64 `json:"latency"`
		}
		if err := json.Unmarshal(d, &obj); err != nil || obj.Latency == nil {
			return nil
		}
		ms = *obj.Latency
	}
	ns := ms * float64(time.Millisecond)
	if ns < 0 || ns >= math.MaxInt64 {
		return nil
	}
	h := time.Duration(ns)
	return &h
}

// winner accepts "white", "black", {"winner": "..."} or nothing.
func winner(d json.RawMessage) *game.Color {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		var obj struct {
			Winner string `json:"winner"`
		}
		if err := json.Unmarshal(d, &obj); err != nil {
			return nil
		}
		s = obj.Winner
	}
	c := game.Color(s)
	if c != game.White && c != game.Black {
		return nil
	}
	return &c
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}
