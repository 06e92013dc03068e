package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrapenhl/scrapenhl/toi"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TeamFetcher resolves a team link to a registry row.
type TeamFetcher interface {
	FetchTeam(ctx context.Context, link string) (*Team, error)
}

// GameParser turns cached raw payloads into registry rows and stored
// time-on-ice tables.
type GameParser struct {
	db       *gorm.DB
	cache    *RawCache
	registry *Registry
	teams    TeamFetcher
	logger   *zap.Logger
}

func NewGameParser(db *gorm.DB, cache *RawCache, registry *Registry, teams TeamFetcher, logger *zap.Logger) *GameParser {
	return &GameParser{
		db:       db,
		cache:    cache,
		registry: registry,
		teams:    teams,
		logger:   logger,
	}
}

type ParseResult struct {
	Season       int    `json:"season"`
	Game         int    `json:"game"`
	FeedParsed   bool   `json:"feedParsed"`
	ShiftsParsed bool   `json:"shiftsParsed"`
	HomeTeam     string `json:"homeTeam,omitempty"`
	AwayTeam     string `json:"awayTeam,omitempty"`
	Inferred     bool   `json:"inferred"`
	Seconds      int    `json:"seconds"`
}

// ParseGame parses whatever is cached for a game and not parsed yet (or
// everything, with force). A game without a cached feed still gets its
// shifts parsed, with inferred team codes.
func (p *GameParser) ParseGame(ctx context.Context, season, game int, force bool) (*ParseResult, error) {
	res := &ParseResult{Season: season, Game: game}

	if _, ok := p.registry.Game(season, game); force || !ok {
		err := p.parseFeed(ctx, season, game)
		switch {
		case errors.Is(err, ErrNotCached):
			p.logger.Warn("No cached feed", zap.String("game", GameID(season, game)))
		case err != nil:
			return res, err
		default:
			res.FeedParsed = true
		}
	}

	stored, err := HasTable(p.db, season, game)
	if err != nil {
		return res, err
	}
	if stored && !force {
		return res, nil
	}

	table, inferred, err := p.parseShifts(season, game)
	if errors.Is(err, ErrNotCached) {
		p.logger.Warn("No cached shifts", zap.String("game", GameID(season, game)))
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if table == nil {
		p.logger.Info("No shifts", zap.String("game", GameID(season, game)))
		return res, nil
	}
	if err := SaveTable(p.db, season, game, table); err != nil {
		return res, fmt.Errorf("save toi %s: %w", GameID(season, game), err)
	}
	res.ShiftsParsed = true
	res.HomeTeam = table.HomeTeam
	res.AwayTeam = table.AwayTeam
	res.Inferred = inferred
	res.Seconds = len(table.Rows)
	p.logger.Info("Parsed shifts",
		zap.String("game", GameID(season, game)),
		zap.String("home", table.HomeTeam),
		zap.String("away", table.AwayTeam),
		zap.Bool("inferred", inferred),
		zap.Int("seconds", len(table.Rows)))
	return res, nil
}

// ParseSeason parses games from through to. Like ScrapeSeason it keeps going
// after a failed game.
func (p *GameParser) ParseSeason(ctx context.Context, season, from, to int, force bool) ([]*ParseResult, error) {
	var (
		results []*ParseResult
		errs    []error
	)
	for game := from; game <= to; game++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := p.ParseGame(ctx, season, game, force)
		results = append(results, res)
		if err != nil {
			errs = append(errs, fmt.Errorf("game %s: %w", GameID(season, game), err))
		}
	}
	return results, errors.Join(errs...)
}

func (p *GameParser) parseFeed(ctx context.Context, season, game int) error {
	payload, err := p.cache.Read(ResourceFeed, season, game)
	if err != nil {
		return err
	}
	feed, err := decodeFeed(payload)
	if err != nil {
		return err
	}

	home, err := p.resolveTeam(ctx, feed.LiveData.Boxscore.Teams.Home.Team, feed.GameData.Teams.Home)
	if err != nil {
		return err
	}
	away, err := p.resolveTeam(ctx, feed.LiveData.Boxscore.Teams.Away.Team, feed.GameData.Teams.Away)
	if err != nil {
		return err
	}

	awayPlayers, err := feed.LiveData.Boxscore.Teams.Away.players(away.Abbreviation)
	if err != nil {
		return err
	}
	homePlayers, err := feed.LiveData.Boxscore.Teams.Home.players(home.Abbreviation)
	if err != nil {
		return err
	}
	added := p.registry.MergePlayers(append(awayPlayers, homePlayers...))

	entry, err := feed.gameLogEntry(home.Abbreviation, away.Abbreviation)
	if err != nil {
		return err
	}
	p.registry.MergeGame(entry)

	if err := p.registry.Persist(p.db); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	p.logger.Info("Parsed feed",
		zap.String("game", GameID(season, game)),
		zap.String("home", home.Abbreviation),
		zap.String("away", away.Abbreviation),
		zap.Int("newPlayers", added))
	return nil
}

// resolveTeam finds a boxscore team in the registry, falling back to the
// gameData abbreviation and then to the team endpoint.
func (p *GameParser) resolveTeam(ctx context.Context, box, game feedTeam) (Team, error) {
	if t, ok := p.registry.TeamByID(box.ID); ok {
		return t, nil
	}

	var t Team
	switch {
	case game.ID == box.ID && game.Abbreviation != "":
		t = Team{ID: box.ID, Abbreviation: game.Abbreviation, Name: game.Name}
	case p.teams != nil:
		link := box.Link
		if link == "" {
			link = fmt.Sprintf("/api/v1/teams/%d", box.ID)
		}
		fetched, err := p.teams.FetchTeam(ctx, link)
		if err != nil {
			return Team{}, fmt.Errorf("resolve team %d: %w", box.ID, err)
		}
		t = *fetched
	default:
		return Team{}, fmt.Errorf("resolve team %d: no abbreviation", box.ID)
	}
	p.registry.MergeTeam(t)
	return t, nil
}

// parseShifts expands the cached shift chart. Team codes come from the game
// log when the game is known and are inferred otherwise.
func (p *GameParser) parseShifts(season, game int) (*toi.Table, bool, error) {
	payload, err := p.cache.Read(ResourceShifts, season, game)
	if err != nil {
		return nil, false, err
	}
	shifts, err := toi.ParseShiftChart(payload)
	if err != nil {
		return nil, false, fmt.Errorf("shifts %s: %w", GameID(season, game), err)
	}

	var home, away string
	if g, ok := p.registry.Game(season, game); ok {
		home, away = g.Home, g.Away
	}
	inferred := home == "" || away == ""
	if inferred && len(shifts) > 0 {
		p.logger.Warn("Inferring home and away from shift order", zap.String("game", GameID(season, game)))
	}

	table, err := toi.Expand(shifts, home, away)
	if err != nil {
		return nil, false, fmt.Errorf("shifts %s: %w", GameID(season, game), err)
	}
	return table, inferred, nil
}
