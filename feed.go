package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const notAvailable = "N/A"

// gameFeed is the part of the statsapi live feed the registries read.
type gameFeed struct {
	GameData struct {
		Game struct {
			Pk int64 `json:"pk"`
		} `json:"game"`
		Datetime struct {
			DateTime string `json:"dateTime"`
		} `json:"datetime"`
		Venue *struct {
			Name string `json:"name"`
		} `json:"venue"`
		Teams struct {
			Home feedTeam `json:"home"`
			Away feedTeam `json:"away"`
		} `json:"teams"`
	} `json:"gameData"`
	LiveData struct {
		Boxscore struct {
			Teams struct {
				Home feedSide `json:"home"`
				Away feedSide `json:"away"`
			} `json:"teams"`
		} `json:"boxscore"`
	} `json:"liveData"`
}

type feedTeam struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Link         string `json:"link"`
	Abbreviation string `json:"abbreviation"`
}

type feedSide struct {
	Team      feedTeam `json:"team"`
	TeamStats struct {
		TeamSkaterStats struct {
			Goals int `json:"goals"`
		} `json:"teamSkaterStats"`
	} `json:"teamStats"`
	Players map[string]feedPlayer `json:"players"`
	Coaches []struct {
		Person struct {
			FullName string `json:"fullName"`
		} `json:"person"`
	} `json:"coaches"`
}

type feedPlayer struct {
	Person struct {
		FullName      string `json:"fullName"`
		ShootsCatches string `json:"shootsCatches"`
	} `json:"person"`
	JerseyNumber string `json:"jerseyNumber"`
	Position     struct {
		Code string `json:"code"`
	} `json:"position"`
}

func decodeFeed(payload []byte) (*gameFeed, error) {
	var feed gameFeed
	if err := json.Unmarshal(payload, &feed); err != nil {
		return nil, fmt.Errorf("decode game feed: %w", err)
	}
	return &feed, nil
}

// players lists the roster of one side, keys ("ID8471214") in order.
func (side *feedSide) players(team string) ([]Player, error) {
	keys := make([]string, 0, len(side.Players))
	for k := range side.Players {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Player, 0, len(keys))
	for _, k := range keys {
		p := side.Players[k]
		id, err := strconv.Atoi(strings.TrimPrefix(k, "ID"))
		if err != nil {
			return nil, fmt.Errorf("player key %q: %w", k, err)
		}
		hand := p.Person.ShootsCatches
		if hand == "" {
			hand = notAvailable
		}
		number := -1
		if n, err := strconv.Atoi(strings.TrimSpace(p.JerseyNumber)); err == nil {
			number = n
		}
		out = append(out, Player{
			ID:     id,
			Name:   p.Person.FullName,
			Team:   team,
			Pos:    p.Position.Code,
			Number: number,
			Hand:   hand,
		})
	}
	return out, nil
}

func (side *feedSide) coach() string {
	if len(side.Coaches) == 0 || side.Coaches[0].Person.FullName == "" {
		return notAvailable
	}
	return side.Coaches[0].Person.FullName
}

// gameLogEntry builds the game log row. home and away are the resolved
// team abbreviations.
func (f *gameFeed) gameLogEntry(home, away string) (GameLogEntry, error) {
	season, game, err := SplitGamePK(f.GameData.Game.Pk)
	if err != nil {
		return GameLogEntry{}, err
	}
	entry := GameLogEntry{
		Season:    season,
		Game:      game,
		Venue:     notAvailable,
		Home:      home,
		HomeCoach: f.LiveData.Boxscore.Teams.Home.coach(),
		HomeScore: f.LiveData.Boxscore.Teams.Home.TeamStats.TeamSkaterStats.Goals,
		Away:      away,
		AwayCoach: f.LiveData.Boxscore.Teams.Away.coach(),
		AwayScore: f.LiveData.Boxscore.Teams.Away.TeamStats.TeamSkaterStats.Goals,
	}
	if v := f.GameData.Venue; v != nil && v.Name != "" {
		entry.Venue = v.Name
	}
	if s := f.GameData.Datetime.DateTime; s != "" {
		dt, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return GameLogEntry{}, fmt.Errorf("game datetime: %w", err)
		}
		entry.Datetime = dt.UTC()
		entry.Date = datatypes.Date(dt.UTC())
	}
	return entry, nil
}
