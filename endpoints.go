package main

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultFeedBase  = "http://statsapi.web.nhl.com/api/v1"
	defaultShiftBase = "http://www.nhl.com/stats/rest/shiftcharts"
	defaultTeamHost  = "https://statsapi.web.nhl.com"
)

// Endpoints holds the upstream base URLs. The defaults are the historical
// statsapi hosts; point them at api.nhle.com (or a test server) via config.
type Endpoints struct {
	FeedBase  string
	ShiftBase string
	TeamHost  string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		FeedBase:  defaultFeedBase,
		ShiftBase: defaultShiftBase,
		TeamHost:  defaultTeamHost,
	}
}

// GameID joins a season (2007 for 2007-08) and a game number (20001) into
// the API game id, 2007020001.
func GameID(season, game int) string {
	return fmt.Sprintf("%d0%d", season, game)
}

// SplitGamePK is the inverse of GameID: the first four digits are the
// season, the remainder is the game number.
func SplitGamePK(pk int64) (season, game int, err error) {
	s := strconv.FormatInt(pk, 10)
	if len(s) < 6 {
		return 0, 0, fmt.Errorf("game pk %d too short", pk)
	}
	season, err = strconv.Atoi(s[:4])
	if err != nil {
		return 0, 0, err
	}
	game, err = strconv.Atoi(s[4:])
	if err != nil {
		return 0, 0, err
	}
	return season, game, nil
}

func (e Endpoints) FeedURL(season, game int) string {
	return fmt.Sprintf("%s/game/%s/feed/live", strings.TrimSuffix(e.FeedBase, "/"), GameID(season, game))
}

func (e Endpoints) ShiftURL(season, game int) string {
	return fmt.Sprintf("%s?cayenneExp=gameId=%s", e.ShiftBase, GameID(season, game))
}

func (e Endpoints) TeamURL(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return strings.TrimSuffix(e.TeamHost, "/") + link
}
