package toi

import (
	"strconv"
)

// Slots is the number of rank columns kept per team. A sixth concurrent
// player (delayed penalty, bad data) is dropped.
const Slots = 5

// Row is one second of the game. Empty slots hold "".
type Row struct {
	Time int             `json:"time"`
	Home [Slots]PlayerID `json:"home"`
	Away [Slots]PlayerID `json:"away"`
}

// Table is the per-second on-ice table of a single game.
type Table struct {
	HomeTeam string `json:"homeTeam"`
	AwayTeam string `json:"awayTeam"`
	Rows     []Row  `json:"rows"`
}

// Columns names the wide columns: Time, then the home and away rank slots
// prefixed by team code (e.g. BOS1..BOS5).
func (t *Table) Columns() []string {
	cols := make([]string, 0, 1+2*Slots)
	cols = append(cols, "Time")
	for i := 1; i <= Slots; i++ {
		cols = append(cols, t.HomeTeam+strconv.Itoa(i))
	}
	for i := 1; i <= Slots; i++ {
		cols = append(cols, t.AwayTeam+strconv.Itoa(i))
	}
	return cols
}

// Records flattens the rows in Columns order.
func (t *Table) Records() [][]string {
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rec := make([]string, 0, 1+2*Slots)
		rec = append(rec, strconv.Itoa(r.Time))
		for _, p := range r.Home {
			rec = append(rec, string(p))
		}
		for _, p := range r.Away {
			rec = append(rec, string(p))
		}
		out[i] = rec
	}
	return out
}

// OnIce returns the players of team code on ice at second sec, in rank order.
func (t *Table) OnIce(team string, sec int) []PlayerID {
	if sec < 0 || sec >= len(t.Rows) {
		return nil
	}
	var slots [Slots]PlayerID
	switch team {
	case t.HomeTeam:
		slots = t.Rows[sec].Home
	case t.AwayTeam:
		slots = t.Rows[sec].Away
	default:
		return nil
	}
	var out []PlayerID
	for _, p := range slots {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
