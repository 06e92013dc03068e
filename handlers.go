package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func (s *Server) POSTLoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	// Check if rate limit has been exceeded
	key := loginRateLimitKey(r, creds.Username)
	ctx, err := s.loginRateLimiter.Peek(r.Context(), key)
	if err != nil {
		http.Error(w, "Rate limiter error", http.StatusInternalServerError)
		return
	}
	if ctx.Reached {
		http.Error(w, "Too many failed login attempts", http.StatusTooManyRequests)
		return
	}

	dbCreds := &DBCredentials{}
	result := s.db.First(dbCreds, "username = ?", creds.Username)
	if result.Error != nil {
		s.loginRateLimiter.Increment(r.Context(), key, 2)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	err = bcrypt.CompareHashAndPassword([]byte(dbCreds.PasswordHash), []byte(creds.Password))
	if err != nil {
		s.loginRateLimiter.Increment(r.Context(), key, 2)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	expiration := time.Now().Add(60 * time.Minute)
	claims := &Claims{
		Username: creds.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(s.jwtKey)
	if err != nil {
		http.Error(w, "Could not generate token", http.StatusInternalServerError)
		return
	}

	// Set HTTP-only JWT cookie
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    tokenStr,
		HttpOnly: true,
		Secure:   !s.devMode,
		SameSite: http.SameSiteNoneMode,
		Path:     "/",
	})
	w.WriteHeader(http.StatusOK)
}

func loginRateLimitKey(r *http.Request, username string) string {
	ip := r.RemoteAddr
	return fmt.Sprintf("%s:%s", ip, username)
}

func (s *Server) POSTLogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !s.devMode,
		SameSite: http.SameSiteNoneMode,
		Expires:  time.Unix(0, 0), // Expire immediately
		MaxAge:   -1,              // Force deletion
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) POSTAuthMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(userContextKey).(*Claims)
	if !ok || claims == nil {
		http.Error(w, "User info not found in context", http.StatusInternalServerError)
		return
	}

	dbCreds := &DBCredentials{}
	result := s.db.First(dbCreds, "username = ?", claims.Username)
	if result.Error != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"username":      claims.Username,
	})
}

func (s *Server) POSTChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(userContextKey).(*Claims)
	if !ok || claims == nil {
		http.Error(w, "User info not found in context", http.StatusInternalServerError)
		return
	}

	var pwChangeReq PWChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&pwChangeReq); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if pwChangeReq.NewPassword == "" {
		http.Error(w, "Missing new password", http.StatusBadRequest)
		return
	}

	dbCreds := &DBCredentials{}
	result := s.db.First(dbCreds, "username = ?", claims.Username)
	if result.Error != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	err := bcrypt.CompareHashAndPassword([]byte(dbCreds.PasswordHash), []byte(pwChangeReq.CurrentPassword))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pwChangeReq.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Could not check password", http.StatusInternalServerError)
		return
	}
	dbCreds.PasswordHash = string(hash)
	if err := s.db.Save(dbCreds).Error; err != nil {
		http.Error(w, "Could not save password", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) GETTeams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Teams())
}

// GETPlayers lists the player registry, optionally for one team (?team=WSH).
func (s *Server) GETPlayers(w http.ResponseWriter, r *http.Request) {
	team := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("team")))
	writeJSON(w, http.StatusOK, s.registry.Players(team))
}

// GETGames lists the game log, optionally for one season (?season=2023).
func (s *Server) GETGames(w http.ResponseWriter, r *http.Request) {
	season := 0
	if str := r.URL.Query().Get("season"); str != "" {
		var err error
		season, err = strconv.Atoi(str)
		if err != nil || !validateSeason(season) {
			http.Error(w, "Invalid season", http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.registry.Games(season))
}

func (s *Server) GETGame(w http.ResponseWriter, r *http.Request) {
	season, game, err := parseSeasonGame(chi.URLParam(r, "season"), chi.URLParam(r, "game"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, ok := s.registry.Game(season, game)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type timeOnIceResponse struct {
	Season   int        `json:"season"`
	Game     int        `json:"game"`
	HomeTeam string     `json:"homeTeam"`
	AwayTeam string     `json:"awayTeam"`
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
}

// GETTimeOnIce returns the stored time-on-ice table of a game. With
// ?format=csv the table is written as CSV instead of JSON.
func (s *Server) GETTimeOnIce(w http.ResponseWriter, r *http.Request) {
	season, game, err := parseSeasonGame(chi.URLParam(r, "season"), chi.URLParam(r, "game"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	table, err := LoadTable(s.db, season, game)
	if err != nil {
		if errors.Is(err, ErrGameNotFound) {
			http.Error(w, "Game not found", http.StatusNotFound)
		} else {
			http.Error(w, "Database error", http.StatusInternalServerError)
		}
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", GameID(season, game)+"_toi.csv"))
		if err := writeTableCSV(w, table); err != nil {
			s.logger.Error("Error writing toi csv", zap.Error(err))
		}
		return
	}

	writeJSON(w, http.StatusOK, timeOnIceResponse{
		Season:   season,
		Game:     game,
		HomeTeam: table.HomeTeam,
		AwayTeam: table.AwayTeam,
		Columns:  table.Columns(),
		Rows:     table.Records(),
	})
}

type scrapeResponse struct {
	Scrape *ScrapeResult `json:"scrape"`
	Parse  *ParseResult  `json:"parse,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// POSTScrapeGame scrapes one game and parses what was cached. ?force=true
// refetches and reparses.
func (s *Server) POSTScrapeGame(w http.ResponseWriter, r *http.Request) {
	season, game, err := parseSeasonGame(chi.URLParam(r, "season"), chi.URLParam(r, "game"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	scraped, err := s.scraper.ScrapeGame(r.Context(), season, game, force)
	if err != nil && scraped.Feed.Status == StatusFailed && scraped.Shifts.Status == StatusFailed {
		writeJSON(w, http.StatusBadGateway, scrapeResponse{Scrape: scraped, Error: err.Error()})
		return
	}

	resp := scrapeResponse{Scrape: scraped}
	if err != nil {
		resp.Error = err.Error()
	}
	parsed, perr := s.parser.ParseGame(r.Context(), season, game, force)
	resp.Parse = parsed
	if perr != nil {
		s.logger.Error("Error parsing game", zap.String("game", GameID(season, game)), zap.Error(perr))
		resp.Error = errors.Join(err, perr).Error()
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
