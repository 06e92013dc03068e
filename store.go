package main

import (
	"errors"
	"time"

	"github.com/scrapenhl/scrapenhl/toi"
	"gorm.io/gorm"
)

// ErrGameNotFound is returned when nothing is stored for a season and game.
var ErrGameNotFound = errors.New("game not found")

// SaveTable replaces the stored time-on-ice table of a game.
func SaveTable(db *gorm.DB, season, game int, table *toi.Table) error {
	rows := make([]TOIRow, len(table.Rows))
	for i, r := range table.Rows {
		rows[i] = TOIRow{
			Season: season,
			Game:   game,
			Time:   r.Time,
			Home1:  string(r.Home[0]),
			Home2:  string(r.Home[1]),
			Home3:  string(r.Home[2]),
			Home4:  string(r.Home[3]),
			Home5:  string(r.Home[4]),
			Away1:  string(r.Away[0]),
			Away2:  string(r.Away[1]),
			Away3:  string(r.Away[2]),
			Away4:  string(r.Away[3]),
			Away5:  string(r.Away[4]),
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("season = ? AND game = ?", season, game).Delete(&TOIRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("season = ? AND game = ?", season, game).Delete(&ShiftTable{}).Error; err != nil {
			return err
		}
		header := &ShiftTable{
			Season:   season,
			Game:     game,
			HomeTeam: table.HomeTeam,
			AwayTeam: table.AwayTeam,
			Seconds:  len(table.Rows),
			ParsedAt: time.Now().UTC(),
		}
		if err := tx.Create(header).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, 500).Error
	})
}

// HasTable reports whether a table is stored for the game.
func HasTable(db *gorm.DB, season, game int) (bool, error) {
	var n int64
	err := db.Model(&ShiftTable{}).Where("season = ? AND game = ?", season, game).Count(&n).Error
	return n > 0, err
}

// LoadTable reads a stored table back.
func LoadTable(db *gorm.DB, season, game int) (*toi.Table, error) {
	var header ShiftTable
	err := db.Where("season = ? AND game = ?", season, game).First(&header).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}

	var rows []TOIRow
	if err := db.Where("season = ? AND game = ?", season, game).Order("time").Find(&rows).Error; err != nil {
		return nil, err
	}

	table := &toi.Table{
		HomeTeam: header.HomeTeam,
		AwayTeam: header.AwayTeam,
		Rows:     make([]toi.Row, len(rows)),
	}
	for i, r := range rows {
		table.Rows[i] = toi.Row{
			Time: r.Time,
			Home: [toi.Slots]toi.PlayerID{
				toi.PlayerID(r.Home1), toi.PlayerID(r.Home2), toi.PlayerID(r.Home3),
				toi.PlayerID(r.Home4), toi.PlayerID(r.Home5),
			},
			Away: [toi.Slots]toi.PlayerID{
				toi.PlayerID(r.Away1), toi.PlayerID(r.Away2), toi.PlayerID(r.Away3),
				toi.PlayerID(r.Away4), toi.PlayerID(r.Away5),
			},
		}
	}
	return table, nil
}

// StoredTables lists the table headers of a season (all seasons for 0).
func StoredTables(db *gorm.DB, season int) ([]ShiftTable, error) {
	q := db.Order("season, game")
	if season != 0 {
		q = q.Where("season = ?", season)
	}
	var out []ShiftTable
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
