package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

// Options are the global flags. Every option can also be set in
// <datadir>/scrapenhl.conf (INI, [Application Options] section).
type Options struct {
	DataDir   string        `long:"datadir" env:"SCRAPENHL_DATADIR" description:"Directory holding the database and the raw cache (default ~/.scrapenhl)"`
	CacheDir  string        `long:"cachedir" env:"SCRAPENHL_CACHEDIR" description:"Raw cache directory (default <datadir>/cache)"`
	Verbose   bool          `short:"v" long:"verbose" description:"Log at debug level"`
	FeedBase  string        `long:"feedbase" env:"SCRAPENHL_FEED_BASE" default:"http://statsapi.web.nhl.com/api/v1" description:"Base URL of the game feed API"`
	ShiftBase string        `long:"shiftbase" env:"SCRAPENHL_SHIFT_BASE" default:"http://www.nhl.com/stats/rest/shiftcharts" description:"Shift chart endpoint"`
	TeamHost  string        `long:"teamhost" env:"SCRAPENHL_TEAM_HOST" default:"https://statsapi.web.nhl.com" description:"Host that team links are relative to"`
	Timeout   time.Duration `long:"timeout" default:"30s" description:"Upstream request timeout"`

	Serve  ServeCommand  `command:"serve" description:"Run the HTTP API"`
	Scrape ScrapeCommand `command:"scrape" description:"Download game feeds and shift charts into the raw cache"`
	Parse  ParseCommand  `command:"parse" description:"Parse cached games into the registries and time-on-ice tables"`
	TOI    TOICommand    `command:"toi" description:"Print a stored time-on-ice table as CSV"`
}

var opts Options

func configFilePath() string {
	if p := os.Getenv("SCRAPENHL_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("SCRAPENHL_DATADIR")
	if dir == "" {
		dir = defaultDataDir()
	}
	return filepath.Join(dir, configFileName)
}

func (o *Options) dataDir() string {
	if o.DataDir != "" {
		return o.DataDir
	}
	return defaultDataDir()
}

func (o *Options) cacheDir() string {
	if o.CacheDir != "" {
		return o.CacheDir
	}
	return filepath.Join(o.dataDir(), cacheDirName)
}

func (o *Options) endpoints() Endpoints {
	e := DefaultEndpoints()
	if o.FeedBase != "" {
		e.FeedBase = o.FeedBase
	}
	if o.ShiftBase != "" {
		e.ShiftBase = o.ShiftBase
	}
	if o.TeamHost != "" {
		e.TeamHost = o.TeamHost
	}
	return e
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// app is everything a command needs, wired from the options.
type app struct {
	logger   *zap.Logger
	db       *gorm.DB
	cache    *RawCache
	registry *Registry
	scraper  *Scraper
	parser   *GameParser
}

func newApp(o *Options) (*app, error) {
	logger, err := newLogger(o.Verbose)
	if err != nil {
		return nil, err
	}
	db, err := initDatabase(o.dataDir())
	if err != nil {
		return nil, fmt.Errorf("database initialization errored: %w", err)
	}
	registry, err := LoadRegistry(db)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	cache := NewRawCache(o.cacheDir())
	scraper := NewScraper(o.endpoints(), cache, db, logger, o.Timeout)
	return &app{
		logger:   logger,
		db:       db,
		cache:    cache,
		registry: registry,
		scraper:  scraper,
		parser:   NewGameParser(db, cache, registry, scraper, logger),
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type ServeCommand struct {
	Listen  string   `long:"listen" env:"SCRAPENHL_LISTEN" default:":8080" description:"Address to listen on"`
	DevMode bool     `long:"dev" description:"Issue non-secure cookies for local development"`
	JWTKey  string   `long:"jwtkey" env:"SCRAPENHL_JWT_KEY" description:"Hex encoded HMAC key for auth tokens (random when empty)"`
	Origins []string `long:"origin" description:"Allowed CORS origin (repeatable)"`
}

func (c *ServeCommand) Execute(args []string) error {
	a, err := newApp(&opts)
	if err != nil {
		return err
	}
	defer a.close()

	var key []byte
	if c.JWTKey != "" {
		key, err = hex.DecodeString(c.JWTKey)
		if err != nil {
			return fmt.Errorf("error parsing jwt key: %w", err)
		}
	}
	s, err := NewServer(a.db, a.registry, a.scraper, a.parser, a.logger, ServerConfig{
		DevMode:        c.DevMode,
		JWTKey:         key,
		AllowedOrigins: c.Origins,
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	srv := &http.Server{Addr: c.Listen, Handler: s}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("Listening", zap.String("addr", c.Listen))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// GameRange selects games of one season.
type GameRange struct {
	Season int  `long:"season" required:"true" description:"Season start year (2007 for 2007-08)"`
	From   int  `long:"from" required:"true" description:"First game number (e.g. 20001)"`
	To     int  `long:"to" description:"Last game number (default: --from)"`
	Force  bool `long:"force" description:"Redo games that were already done"`
}

func (g *GameRange) bounds() (int, int, error) {
	if !validateSeason(g.Season) {
		return 0, 0, fmt.Errorf("invalid season %d", g.Season)
	}
	to := g.To
	if to == 0 {
		to = g.From
	}
	if g.From <= 0 || to < g.From {
		return 0, 0, fmt.Errorf("invalid game range %d-%d", g.From, to)
	}
	return g.From, to, nil
}

type ScrapeCommand struct {
	GameRange
}

func (c *ScrapeCommand) Execute(args []string) error {
	from, to, err := c.bounds()
	if err != nil {
		return err
	}
	a, err := newApp(&opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	results, err := a.scraper.ScrapeSeason(ctx, c.Season, from, to, c.Force)
	queried := 0
	for _, r := range results {
		if r.Queried() {
			queried++
		}
	}
	a.logger.Info("Scrape finished",
		zap.Int("season", c.Season),
		zap.Int("games", len(results)),
		zap.Int("queried", queried))
	return err
}

type ParseCommand struct {
	GameRange
}

func (c *ParseCommand) Execute(args []string) error {
	from, to, err := c.bounds()
	if err != nil {
		return err
	}
	a, err := newApp(&opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	results, err := a.parser.ParseSeason(ctx, c.Season, from, to, c.Force)
	parsed := 0
	for _, r := range results {
		if r.ShiftsParsed {
			parsed++
		}
	}
	a.logger.Info("Parse finished",
		zap.Int("season", c.Season),
		zap.Int("games", len(results)),
		zap.Int("tables", parsed))
	return err
}

type TOICommand struct {
	Season int `long:"season" required:"true" description:"Season start year"`
	Game   int `long:"game" required:"true" description:"Game number"`
}

func (c *TOICommand) Execute(args []string) error {
	a, err := newApp(&opts)
	if err != nil {
		return err
	}
	defer a.close()

	table, err := LoadTable(a.db, c.Season, c.Game)
	if err != nil {
		return fmt.Errorf("toi %s: %w", GameID(c.Season, c.Game), err)
	}
	return writeTableCSV(os.Stdout, table)
}
