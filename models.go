package main

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type PWChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type DBCredentials struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
}

// Team is a row of the team registry.
type Team struct {
	ID           int    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Abbreviation string `json:"abbreviation" gorm:"index"`
	Name         string `json:"name"`
}

// Player is a row of the player registry. A player traded mid-season, or
// whose number changes, gets one row per distinct tuple.
type Player struct {
	RowID  uint   `json:"-" gorm:"primaryKey"`
	ID     int    `json:"id" gorm:"uniqueIndex:idx_player_tuple"`
	Name   string `json:"name" gorm:"uniqueIndex:idx_player_tuple"`
	Team   string `json:"team" gorm:"uniqueIndex:idx_player_tuple;index"`
	Pos    string `json:"pos" gorm:"uniqueIndex:idx_player_tuple"`
	Number int    `json:"number" gorm:"uniqueIndex:idx_player_tuple"`
	Hand   string `json:"hand" gorm:"uniqueIndex:idx_player_tuple"`
}

// GameLogEntry is a row of the basic game log.
type GameLogEntry struct {
	Season    int            `json:"season" gorm:"primaryKey;autoIncrement:false"`
	Game      int            `json:"game" gorm:"primaryKey;autoIncrement:false"`
	Datetime  time.Time      `json:"datetime"`
	Date      datatypes.Date `json:"date" gorm:"index"`
	Venue     string         `json:"venue"`
	Home      string         `json:"home"`
	HomeCoach string         `json:"homeCoach"`
	HomeScore int            `json:"homeScore"`
	Away      string         `json:"away"`
	AwayCoach string         `json:"awayCoach"`
	AwayScore int            `json:"awayScore"`
}

// ShiftTable is the header of a stored time-on-ice table.
type ShiftTable struct {
	Season   int       `json:"season" gorm:"primaryKey;autoIncrement:false"`
	Game     int       `json:"game" gorm:"primaryKey;autoIncrement:false"`
	HomeTeam string    `json:"homeTeam"`
	AwayTeam string    `json:"awayTeam"`
	Seconds  int       `json:"seconds"`
	ParsedAt time.Time `json:"parsedAt"`
}

// TOIRow is one second of a stored time-on-ice table.
type TOIRow struct {
	ID     uint   `gorm:"primaryKey"`
	Season int    `gorm:"index:idx_toi_game"`
	Game   int    `gorm:"index:idx_toi_game"`
	Time   int
	Home1  string
	Home2  string
	Home3  string
	Home4  string
	Home5  string
	Away1  string
	Away2  string
	Away3  string
	Away4  string
	Away5  string
}

// ScrapeAttempt records every upstream request and its outcome.
type ScrapeAttempt struct {
	gorm.Model
	Season   int            `json:"season" gorm:"index:idx_attempt_game"`
	Game     int            `json:"game" gorm:"index:idx_attempt_game"`
	Resource string         `json:"resource"`
	URL      string         `json:"url"`
	Status   string         `json:"status"`
	Bytes    int            `json:"bytes"`
	Error    string         `json:"error"`
	Detail   datatypes.JSON `json:"detail" gorm:"type:json"`
}

func applyMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&DBCredentials{},
		&Team{},
		&Player{},
		&GameLogEntry{},
		&ShiftTable{},
		&TOIRow{},
		&ScrapeAttempt{},
	)
}
