package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jessevdk/go-flags"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	dataDirName    = ".scrapenhl"
	dbName         = "scrapenhl.db"
	cacheDirName   = "cache"
	configFileName = "scrapenhl.conf"
	userContextKey = contextKey("user")
)

type contextKey string

type Server struct {
	db               *gorm.DB
	r                chi.Router
	logger           *zap.Logger
	registry         *Registry
	scraper          *Scraper
	parser           *GameParser
	loginRateLimiter *limiter.Limiter
	jwtKey           []byte
	devMode          bool
}

type ServerConfig struct {
	DevMode        bool
	JWTKey         []byte
	AllowedOrigins []string
}

func NewServer(db *gorm.DB, registry *Registry, scraper *Scraper, parser *GameParser, logger *zap.Logger, cfg ServerConfig) (*Server, error) {
	key := cfg.JWTKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		db:       db,
		r:        r,
		logger:   logger,
		registry: registry,
		scraper:  scraper,
		parser:   parser,
		// Ten failed logins per key every fifteen minutes.
		loginRateLimiter: limiter.New(memory.NewStore(), limiter.Rate{Period: 15 * time.Minute, Limit: 10}),
		jwtKey:           key,
		devMode:          cfg.DevMode,
	}

	r.Post("/login", s.POSTLoginHandler)
	r.Post("/logout", s.POSTLogoutHandler)
	r.Post("/auth/me", s.authMiddleware(s.POSTAuthMe))
	r.Post("/changepw", s.authMiddleware(s.POSTChangePasswordHandler))

	r.Get("/teams", s.GETTeams)
	r.Get("/players", s.GETPlayers)
	r.Get("/games", s.GETGames)
	r.Get("/games/{season}/{game}", s.GETGame)
	r.Get("/games/{season}/{game}/toi", s.GETTimeOnIce)
	r.Post("/games/{season}/{game}/scrape", s.authMiddleware(s.POSTScrapeGame))

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)

	// Values from the config file are overridden by flags and env.
	if path := configFilePath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
				os.Stderr.WriteString(err.Error() + "\n")
				os.Exit(1)
			}
		}
	}

	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// Check to see if the database exists. If not create it and initialize
// it with a default admin password to be changed later.
func initDatabase(dataDir string) (*gorm.DB, error) {
	err := ensureDir(dataDir)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dataDir, dbName)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Migrate the schema
	if err := applyMigrations(db); err != nil {
		return nil, err
	}
	if err := seedAdmin(db); err != nil {
		return nil, err
	}
	return db, nil
}

func seedAdmin(db *gorm.DB) error {
	var creds DBCredentials
	result := db.First(&creds)
	if result.Error == nil {
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Create(&DBCredentials{Username: "admin", PasswordHash: string(hash)}).Error
}

// Validate the JWT token. It can either been in a cookie or a header.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tokenStr string

		// First try Authorization header
		authHeader := r.Header.Get("Authorization")
		if len(authHeader) >= 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		} else {
			// Fallback to auth_token cookie
			cookie, err := r.Cookie("auth_token")
			if err != nil {
				http.Error(w, "Missing auth token", http.StatusUnauthorized)
				return
			}
			tokenStr = cookie.Value
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return s.jwtKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Token is valid, proceed
		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
