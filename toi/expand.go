package toi

import (
	"sort"
)

// seat is one player's claim on a rank slot for a single second.
type seat struct {
	player   PlayerID
	duration int
}

// Expand turns a game's shifts into one row per second of the game naming
// the players on ice for each team, ranked into Slots columns.
//
// Empty team codes are inferred with InferTeams. Inference trusts the order
// of the shift chart and silently misfiles players when that order is not
// home-first, so callers that know the teams should pass them.
//
// An empty shift list yields a nil table and no error. Any malformed record
// aborts the whole expansion.
func Expand(shifts []ShiftRecord, homeTeam, awayTeam string) (*Table, error) {
	if len(shifts) == 0 {
		return nil, nil
	}

	spans := make([]span, len(shifts))
	maxEnd := 0
	for i, s := range shifts {
		sp, err := s.span(i)
		if err != nil {
			return nil, err
		}
		spans[i] = sp
		if i == 0 || sp.end > maxEnd {
			maxEnd = sp.end
		}
	}

	if homeTeam == "" {
		homeTeam = shifts[0].TeamAbbrev
	}
	if awayTeam == "" {
		awayTeam = inferAway(shifts, homeTeam)
	}

	// Time axis: every second from the opening faceoff to the last shift end.
	seconds := maxEnd + 1
	if seconds < 0 {
		seconds = 0
	}
	table := &Table{
		HomeTeam: homeTeam,
		AwayTeam: awayTeam,
		Rows:     make([]Row, seconds),
	}
	for t := range table.Rows {
		table.Rows[t].Time = t
	}
	if seconds == 0 {
		return table, nil
	}

	home := make([][]seat, seconds)
	away := make([][]seat, seconds)
	for _, sp := range spans {
		var side [][]seat
		switch sp.team {
		case homeTeam:
			side = home
		case awayTeam:
			side = away
		default:
			continue
		}
		for t := sp.start; t <= sp.end; t++ {
			side[t] = occupy(side[t], sp)
		}
	}

	for t := range table.Rows {
		fill(&table.Rows[t].Home, home[t])
		fill(&table.Rows[t].Away, away[t])
	}
	return table, nil
}

// occupy adds sp's player to a second. A player listed twice for the same
// second keeps the longer shift; the first one wins a tie.
func occupy(seats []seat, sp span) []seat {
	for i := range seats {
		if seats[i].player == sp.player {
			if sp.duration > seats[i].duration {
				seats[i].duration = sp.duration
			}
			return seats
		}
	}
	return append(seats, seat{player: sp.player, duration: sp.duration})
}

// fill ranks the players of one second by id and keeps the first Slots.
func fill(slots *[Slots]PlayerID, seats []seat) {
	sort.SliceStable(seats, func(i, j int) bool {
		return seats[i].player.less(seats[j].player)
	})
	for i := 0; i < len(seats) && i < Slots; i++ {
		slots[i] = seats[i].player
	}
}

// InferTeams guesses the home and away codes from the chart order: the first
// record is taken as home, and the away team is the first record, scanning
// back from the end, with a different code. away is empty when every record
// has the home code.
func InferTeams(shifts []ShiftRecord) (home, away string) {
	if len(shifts) == 0 {
		return "", ""
	}
	home = shifts[0].TeamAbbrev
	return home, inferAway(shifts, home)
}

func inferAway(shifts []ShiftRecord, home string) string {
	for i := len(shifts) - 1; i >= 0; i-- {
		if shifts[i].TeamAbbrev != home {
			return shifts[i].TeamAbbrev
		}
	}
	return ""
}
