// Package replay holds the lap cursor of a replay and the player that advances
// it. The fusion itself stays in package timing.
package replay

// Cursor is the virtual current lap of a replay. It is a value, owners pass
// it around and replace it.
type Cursor struct {
	Lap int `json:"lap"`
	Max int `json:"max"`
}

// NewCursor returns a cursor at lap 1. A maxLap below 1 is raised to 1.
func NewCursor(maxLap int) Cursor {
	return Cursor{Lap: 1, Max: max(1, maxLap)}
}

// Next advances by one lap and wraps to 1 after the last lap
func (c Cursor) Next() Cursor {
	if c.Lap >= c.Max {
		return Cursor{Lap: 1, Max: c.Max}
	}
	return Cursor{Lap: c.Lap + 1, Max: c.Max}
}

// Seek moves to lap, clamped to [1, Max]
func (c Cursor) Seek(lap int) Cursor {
	return Cursor{Lap: min(max(1, lap), max(1, c.Max)), Max: c.Max}
}

func (c Cursor) AtEnd() bool {
	return c.Lap >= c.Max
}
