package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testSeason = 2023
	testGame   = 20204
)

// verifyNoLeaks fails t if a goroutine started during it outlives its
// cleanups. Register it before anything that adds a cleanup.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	current := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, current) })
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// Every pooled connection to :memory: is its own database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, applyMigrations(db))
	return db
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

// upstream fakes the stats API for game 2023020204 and counts hits per path.
type upstream struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	feed := readFixture(t, "feed.json")
	shifts := readFixture(t, "shiftcharts.json")
	team := readFixture(t, "team_mtl.json")

	u := &upstream{hits: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/game/2023020204/feed/live", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(feed)
	})
	mux.HandleFunc("/stats/rest/shiftcharts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cayenneExp") != "gameId=2023020204" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(shifts)
	})
	mux.HandleFunc("/api/v1/teams/8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(team)
	})

	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits[r.URL.Path]++
		u.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) hitCount(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

func (u *upstream) endpoints() Endpoints {
	return Endpoints{
		FeedBase:  u.URL + "/api/v1",
		ShiftBase: u.URL + "/stats/rest/shiftcharts",
		TeamHost:  u.URL,
	}
}

const (
	feedPath   = "/api/v1/game/2023020204/feed/live"
	shiftsPath = "/stats/rest/shiftcharts"
	mtlPath    = "/api/v1/teams/8"
)

// testApp wires a scraper and parser against the fake upstream.
type testApp struct {
	db       *gorm.DB
	cache    *RawCache
	registry *Registry
	scraper  *Scraper
	parser   *GameParser
	upstream *upstream
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	u := newUpstream(t)
	db := newTestDB(t)
	cache := NewRawCache(t.TempDir())
	registry := NewRegistry()
	scraper := NewScraper(u.endpoints(), cache, db, zap.NewNop(), 5*time.Second)
	return &testApp{
		db:       db,
		cache:    cache,
		registry: registry,
		scraper:  scraper,
		parser:   NewGameParser(db, cache, registry, scraper, zap.NewNop()),
		upstream: u,
	}
}
