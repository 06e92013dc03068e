package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/scrapenhl/scrapenhl/toi"
)

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// defaultDataDir returns ~/.scrapenhl.
func defaultDataDir() string {
	// Get the OS specific home directory via the Go standard lib.
	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}

	// Fall back to standard HOME environment variable that works
	// for most POSIX OSes if the directory from the Go standard
	// lib failed.
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, dataDirName)
}

func validateSeason(season int) bool {
	return season >= 1917 && season <= 2100
}

// parseSeasonGame reads the season and game path values of a request.
func parseSeasonGame(seasonStr, gameStr string) (int, int, error) {
	season, err := strconv.Atoi(strings.TrimSpace(seasonStr))
	if err != nil || !validateSeason(season) {
		return 0, 0, fmt.Errorf("invalid season %q", seasonStr)
	}
	game, err := strconv.Atoi(strings.TrimSpace(gameStr))
	if err != nil || game <= 0 {
		return 0, 0, fmt.Errorf("invalid game %q", gameStr)
	}
	return season, game, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeTableCSV(w io.Writer, table *toi.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns()); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Records()); err != nil {
		return err
	}
	return cw.Error()
}
