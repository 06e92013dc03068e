package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *testApp) {
	t.Helper()
	app := newTestApp(t)
	require.NoError(t, seedAdmin(app.db))

	s, err := NewServer(app.db, app.registry, app.scraper, app.parser, zap.NewNop(), ServerConfig{
		DevMode: true,
		JWTKey:  []byte("0123456789abcdef0123456789abcdef"),
	})
	require.NoError(t, err)
	return s, app
}

func doRequest(s *Server, method, target string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server, password string) *http.Cookie {
	t.Helper()
	rec := doRequest(s, http.MethodPost, "/login", Credentials{Username: "admin", Password: password}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "auth_token" {
			return c
		}
	}
	t.Fatal("no auth_token cookie")
	return nil
}

func TestLogin(t *testing.T) {
	s, _ := newTestServer(t)

	cookie := login(t, s, "letmein")
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	rec := doRequest(s, http.MethodPost, "/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, true, me["authenticated"])
	assert.Equal(t, "admin", me["username"])

	rec = doRequest(s, http.MethodPost, "/login", Credentials{Username: "admin", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodPost, "/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodPost, "/auth/me", nil, &http.Cookie{Name: "auth_token", Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	s, _ := newTestServer(t)

	// Each failure counts twice against a budget of ten.
	for i := 0; i < 6; i++ {
		doRequest(s, http.MethodPost, "/login", Credentials{Username: "admin", Password: "wrong"}, nil)
	}
	rec := doRequest(s, http.MethodPost, "/login", Credentials{Username: "admin", Password: "letmein"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestChangePassword(t *testing.T) {
	s, _ := newTestServer(t)
	cookie := login(t, s, "letmein")

	rec := doRequest(s, http.MethodPost, "/changepw", PWChangeRequest{CurrentPassword: "nope", NewPassword: "x"}, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodPost, "/changepw", PWChangeRequest{CurrentPassword: "letmein", NewPassword: "hunter2"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	login(t, s, "hunter2")
}

func TestScrapeRequiresAuth(t *testing.T) {
	s, app := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/games/2023/20204/scrape", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, app.upstream.hitCount(feedPath))
}

func TestScrapeThenTimeOnIce(t *testing.T) {
	s, app := newTestServer(t)
	cookie := login(t, s, "letmein")

	rec := doRequest(s, http.MethodPost, "/games/2023/20204/scrape", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Scrape ScrapeResult `json:"scrape"`
		Parse  ParseResult  `json:"parse"`
		Error  string       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Error)
	assert.Equal(t, StatusFetched, resp.Scrape.Feed.Status)
	assert.Equal(t, StatusFetched, resp.Scrape.Shifts.Status)
	assert.True(t, resp.Parse.ShiftsParsed)
	assert.Equal(t, 2400, resp.Parse.Seconds)
	assert.Equal(t, 1, app.upstream.hitCount(shiftsPath))

	rec = doRequest(s, http.MethodGet, "/games/2023/20204/toi", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var table timeOnIceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, "WSH", table.HomeTeam)
	assert.Equal(t, "MTL", table.AwayTeam)
	assert.Equal(t, []string{"Time", "WSH1", "WSH2", "WSH3", "WSH4", "WSH5", "MTL1", "MTL2", "MTL3", "MTL4", "MTL5"}, table.Columns)
	require.Len(t, table.Rows, 2400)
	assert.Equal(t, "0", table.Rows[0][0])
	assert.Equal(t, "2399", table.Rows[2399][0])

	rec = doRequest(s, http.MethodGet, "/games/2023/20204/toi?format=csv", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2401)
	assert.Equal(t, table.Columns, records[0])

	rec = doRequest(s, http.MethodGet, "/games/2023/20204", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var game GameLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &game))
	assert.Equal(t, "WSH", game.Home)
	assert.Equal(t, 2, game.AwayScore)

	rec = doRequest(s, http.MethodGet, "/games?season=2023", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var games []GameLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &games))
	assert.Len(t, games, 1)

	rec = doRequest(s, http.MethodGet, "/teams", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var teams []Team
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &teams))
	assert.Len(t, teams, 2)

	rec = doRequest(s, http.MethodGet, "/players?team=mtl", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var players []Player
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &players))
	assert.Len(t, players, 4)

	// A second scrape is served from the cache.
	rec = doRequest(s, http.MethodPost, "/games/2023/20204/scrape", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, app.upstream.hitCount(shiftsPath))
}

func TestScrapeUpstreamDown(t *testing.T) {
	s, app := newTestServer(t)
	cookie := login(t, s, "letmein")

	rec := doRequest(s, http.MethodPost, "/games/2023/20999/scrape", nil, cookie)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, app.cache.Exists(ResourceShifts, 2023, 20999))
}

func TestGameRoutes_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		target string
		code   int
	}{
		{"/games/2023/20204/toi", http.StatusNotFound},
		{"/games/2023/20204", http.StatusNotFound},
		{"/games/abcd/20204/toi", http.StatusBadRequest},
		{"/games/1800/20204/toi", http.StatusBadRequest},
		{"/games/2023/-1", http.StatusBadRequest},
		{"/games?season=soon", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(strings.TrimPrefix(tt.target, "/"), func(t *testing.T) {
			rec := doRequest(s, http.MethodGet, tt.target, nil, nil)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
