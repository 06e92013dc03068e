package main

import (
	"sort"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gameKey struct {
	season int
	game   int
}

// Registry holds the team, player and game log tables in memory. Merges
// only touch memory; Persist writes what changed since the last Persist.
type Registry struct {
	mu sync.RWMutex

	teams   map[int]Team
	players map[Player]struct{}
	games   map[gameKey]GameLogEntry

	newTeams   []Team
	newPlayers []Player
	dirtyGames map[gameKey]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		teams:      make(map[int]Team),
		players:    make(map[Player]struct{}),
		games:      make(map[gameKey]GameLogEntry),
		dirtyGames: make(map[gameKey]struct{}),
	}
}

// LoadRegistry reads the registry tables from db.
func LoadRegistry(db *gorm.DB) (*Registry, error) {
	r := NewRegistry()

	var teams []Team
	if err := db.Find(&teams).Error; err != nil {
		return nil, err
	}
	for _, t := range teams {
		r.teams[t.ID] = t
	}

	var players []Player
	if err := db.Find(&players).Error; err != nil {
		return nil, err
	}
	for _, p := range players {
		p.RowID = 0
		r.players[p] = struct{}{}
	}

	var games []GameLogEntry
	if err := db.Find(&games).Error; err != nil {
		return nil, err
	}
	for _, g := range games {
		r.games[gameKey{g.Season, g.Game}] = g
	}
	return r, nil
}

func (r *Registry) TeamByID(id int) (Team, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[id]
	return t, ok
}

func (r *Registry) Teams() []Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Team, 0, len(r.teams))
	for _, t := range r.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Abbreviation < out[j].Abbreviation })
	return out
}

// MergeTeam adds t unless a team with its id is already known.
func (r *Registry) MergeTeam(t Team) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[t.ID]; ok {
		return false
	}
	r.teams[t.ID] = t
	r.newTeams = append(r.newTeams, t)
	return true
}

// MergePlayers adds every player tuple not seen before and returns how many
// were added.
func (r *Registry) MergePlayers(players []Player) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, p := range players {
		p.RowID = 0
		if _, ok := r.players[p]; ok {
			continue
		}
		r.players[p] = struct{}{}
		r.newPlayers = append(r.newPlayers, p)
		added++
	}
	return added
}

// Players lists the known players of a team, or every player if team is
// empty, ordered by id.
func (r *Registry) Players(team string) []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Player
	for p := range r.players {
		if team == "" || p.Team == team {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Team < out[j].Team
	})
	return out
}

// MergeGame stores g, replacing a different row for the same game.
func (r *Registry) MergeGame(g GameLogEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := gameKey{g.Season, g.Game}
	if old, ok := r.games[key]; ok && sameGame(old, g) {
		return false
	}
	r.games[key] = g
	r.dirtyGames[key] = struct{}{}
	return true
}

func sameGame(a, b GameLogEntry) bool {
	return a.Datetime.Equal(b.Datetime) &&
		a.Venue == b.Venue &&
		a.Home == b.Home && a.HomeCoach == b.HomeCoach && a.HomeScore == b.HomeScore &&
		a.Away == b.Away && a.AwayCoach == b.AwayCoach && a.AwayScore == b.AwayScore
}

func (r *Registry) Game(season, game int) (GameLogEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[gameKey{season, game}]
	return g, ok
}

// Games lists the game log of a season (every season when season is 0).
func (r *Registry) Games(season int) []GameLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []GameLogEntry
	for k, g := range r.games {
		if season == 0 || k.season == season {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Season != out[j].Season {
			return out[i].Season < out[j].Season
		}
		return out[i].Game < out[j].Game
	})
	return out
}

func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.newTeams) > 0 || len(r.newPlayers) > 0 || len(r.dirtyGames) > 0
}

// Persist writes pending merges to db in one transaction. Pending rows are
// kept when the transaction fails.
func (r *Registry) Persist(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.newTeams) == 0 && len(r.newPlayers) == 0 && len(r.dirtyGames) == 0 {
		return nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if len(r.newTeams) > 0 {
			if err := tx.Create(&r.newTeams).Error; err != nil {
				return err
			}
		}
		if len(r.newPlayers) > 0 {
			for i := range r.newPlayers {
				r.newPlayers[i].RowID = 0
			}
			if err := tx.Create(&r.newPlayers).Error; err != nil {
				return err
			}
		}
		for key := range r.dirtyGames {
			g := r.games[key]
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&g).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.newTeams = nil
	r.newPlayers = nil
	r.dirtyGames = make(map[gameKey]struct{})
	return nil
}
