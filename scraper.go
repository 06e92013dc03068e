package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/115.0.0.0 Safari/537.36"

type FetchStatus string

const (
	StatusCached  FetchStatus = "cached"
	StatusFetched FetchStatus = "fetched"
	StatusFailed  FetchStatus = "failed"
)

// FetchResult is the outcome of getting one raw payload. A failed fetch
// leaves the cache untouched; Err says why.
type FetchResult struct {
	Resource Resource    `json:"resource"`
	URL      string      `json:"url"`
	Path     string      `json:"path"`
	Status   FetchStatus `json:"status"`
	Bytes    int         `json:"bytes"`
	Error    string      `json:"error,omitempty"`
	Err      error       `json:"-"`
}

type ScrapeResult struct {
	Season int         `json:"season"`
	Game   int         `json:"game"`
	Feed   FetchResult `json:"feed"`
	Shifts FetchResult `json:"shifts"`
}

// Queried reports whether the NHL API was hit for this game.
func (r *ScrapeResult) Queried() bool {
	return r.Feed.Status != StatusCached || r.Shifts.Status != StatusCached
}

func (r *ScrapeResult) Err() error {
	return errors.Join(r.Feed.Err, r.Shifts.Err)
}

// Scraper downloads game feeds and shift charts into the raw cache.
type Scraper struct {
	endpoints Endpoints
	cache     *RawCache
	db        *gorm.DB
	logger    *zap.Logger
	timeout   time.Duration
}

// NewScraper returns a Scraper. db may be nil, in which case attempts are
// not recorded.
func NewScraper(endpoints Endpoints, cache *RawCache, db *gorm.DB, logger *zap.Logger, timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scraper{
		endpoints: endpoints,
		cache:     cache,
		db:        db,
		logger:    logger,
		timeout:   timeout,
	}
}

// ScrapeGame fetches the feed and the shift chart of a game unless they are
// already cached. force refetches both. ctx is checked before each request;
// a request already in flight is bounded only by the scraper timeout.
func (s *Scraper) ScrapeGame(ctx context.Context, season, game int, force bool) (*ScrapeResult, error) {
	res := &ScrapeResult{Season: season, Game: game}
	res.Feed = s.scrapeResource(ctx, ResourceFeed, s.endpoints.FeedURL(season, game), season, game, force)
	res.Shifts = s.scrapeResource(ctx, ResourceShifts, s.endpoints.ShiftURL(season, game), season, game, force)
	return res, res.Err()
}

// ScrapeSeason scrapes games from through to, one at a time. A failed game
// does not stop the run; the failures are returned joined.
func (s *Scraper) ScrapeSeason(ctx context.Context, season, from, to int, force bool) ([]*ScrapeResult, error) {
	var (
		results []*ScrapeResult
		errs    []error
	)
	for game := from; game <= to; game++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.ScrapeGame(ctx, season, game, force)
		results = append(results, res)
		if err != nil {
			errs = append(errs, fmt.Errorf("game %s: %w", GameID(season, game), err))
		}
	}
	return results, errors.Join(errs...)
}

func (s *Scraper) scrapeResource(ctx context.Context, res Resource, url string, season, game int, force bool) FetchResult {
	out := FetchResult{
		Resource: res,
		URL:      url,
		Path:     s.cache.Path(res, season, game),
	}
	if !force && s.cache.Exists(res, season, game) {
		out.Status = StatusCached
		return out
	}

	page, err := s.fetch(ctx, url)
	if err == nil {
		err = s.cache.Write(res, season, game, page.body)
	}
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("%s: %w", res, err)
		out.Error = err.Error()
		s.logger.Warn("Scrape failed",
			zap.String("resource", string(res)),
			zap.String("game", GameID(season, game)),
			zap.String("url", url),
			zap.Error(err))
	} else {
		out.Status = StatusFetched
		out.Bytes = len(page.body)
		s.logger.Info("Scraped",
			zap.String("resource", string(res)),
			zap.String("game", GameID(season, game)),
			zap.Int("bytes", out.Bytes))
	}
	s.recordAttempt(season, game, out, page)
	return out
}

type fetchedPage struct {
	body        []byte
	statusCode  int
	contentType string
}

func (s *Scraper) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json, text/javascript, */*; q=0.01")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Cache-Control", "no-cache")
		s.logger.Debug("Visiting", zap.String("url", r.URL.String()))
	})
	return c
}

// fetch GETs url. Non-2xx responses are errors.
func (s *Scraper) fetch(ctx context.Context, url string) (*fetchedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.newCollector()

	var page *fetchedPage
	c.OnResponse(func(r *colly.Response) {
		page = &fetchedPage{
			body:        r.Body,
			statusCode:  r.StatusCode,
			contentType: r.Headers.Get("Content-Type"),
		}
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("visit %s: %w", url, err)
	}
	c.Wait()

	if page == nil {
		return nil, fmt.Errorf("visit %s: no response", url)
	}
	return page, nil
}

// FetchTeam resolves a team link (/api/v1/teams/15) to its registry row.
func (s *Scraper) FetchTeam(ctx context.Context, link string) (*Team, error) {
	url := s.endpoints.TeamURL(link)
	page, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	var info struct {
		Teams []struct {
			ID           int    `json:"id"`
			Abbreviation string `json:"abbreviation"`
			Name         string `json:"name"`
		} `json:"teams"`
	}
	if err := json.Unmarshal(page.body, &info); err != nil {
		return nil, fmt.Errorf("decode team %s: %w", url, err)
	}
	if len(info.Teams) == 0 {
		return nil, fmt.Errorf("no team at %s", url)
	}
	t := info.Teams[0]
	return &Team{ID: t.ID, Abbreviation: t.Abbreviation, Name: t.Name}, nil
}

func (s *Scraper) recordAttempt(season, game int, res FetchResult, page *fetchedPage) {
	if s.db == nil {
		return
	}
	attempt := &ScrapeAttempt{
		Season:   season,
		Game:     game,
		Resource: string(res.Resource),
		URL:      res.URL,
		Status:   string(res.Status),
		Bytes:    res.Bytes,
		Error:    res.Error,
	}
	if page != nil {
		detail, err := json.Marshal(map[string]any{
			"statusCode":  page.statusCode,
			"contentType": page.contentType,
		})
		if err == nil {
			attempt.Detail = detail
		}
	}
	if err := s.db.Create(attempt).Error; err != nil {
		s.logger.Warn("Could not record scrape attempt", zap.Error(err))
	}
}
