package main

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// ErrNotCached is returned when a raw payload has not been scraped yet.
var ErrNotCached = errors.New("not cached")

// Resource names one of the raw upstream payloads kept per game.
type Resource string

const (
	ResourceFeed   Resource = "feed"
	ResourceShifts Resource = "shifts"
)

// RawCache stores raw API responses zlib-compressed under
// <dir>/<season>/<game>.zlib and <dir>/<season>/<game>_shifts.zlib.
type RawCache struct {
	dir string
}

func NewRawCache(dir string) *RawCache {
	return &RawCache{dir: dir}
}

func (c *RawCache) Path(res Resource, season, game int) string {
	name := strconv.Itoa(game)
	if res == ResourceShifts {
		name += "_shifts"
	}
	return filepath.Join(c.dir, strconv.Itoa(season), name+".zlib")
}

func (c *RawCache) Exists(res Resource, season, game int) bool {
	_, err := os.Stat(c.Path(res, season, game))
	return err == nil
}

func (c *RawCache) Write(res Resource, season, game int, payload []byte) error {
	path := c.Path(res, season, game)
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return err
	}
	if _, err := zw.Write(payload); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	// Readers never see a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *RawCache) Read(res Resource, season, game int) ([]byte, error) {
	path := c.Path(res, season, game)
	compressed, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s %s: %w", res, GameID(season, game), ErrNotCached)
	}
	if err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	defer zr.Close()
	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	return payload, nil
}
