package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"vectormap/internal/tile"
)

const mbtilesSchema = `
	CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);
	CREATE TABLE IF NOT EXISTS tiles (
		zoom_level INTEGER,
		tile_column INTEGER,
		tile_row INTEGER,
		tile_data BLOB
	);
	CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
`

// MBTilesCache keeps each tile kind in its own MBTiles database:
// {cacheDir}/vector.mbtiles and {cacheDir}/raster.mbtiles. Rows use the TMS
// scheme, so y is flipped on the way in and out.
type MBTilesCache struct {
	cacheDir string
	files    map[tile.Kind]*mbtilesFile
}

type mbtilesFile struct {
	db  *sql.DB
	get *sql.Stmt
	put *sql.Stmt
}

func NewMBTilesCache(cacheDir string) (*MBTilesCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &MBTilesCache{cacheDir: cacheDir, files: make(map[tile.Kind]*mbtilesFile)}
	for _, kind := range tile.Kinds {
		f, err := openMBTiles(filepath.Join(cacheDir, kind.String()+".mbtiles"), kind)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.files[kind] = f
	}
	return c, nil
}

func openMBTiles(path string, kind tile.Kind) (f *mbtilesFile, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()
	// sqlite allows one writer; a single connection serializes workers
	// instead of failing them with "database is locked".
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(mbtilesSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", path, err)
	}
	_, err = db.Exec(`INSERT INTO metadata (name, value)
		SELECT 'format', ? WHERE NOT EXISTS (SELECT 1 FROM metadata WHERE name = 'format')`, formatName(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to write metadata to %s: %w", path, err)
	}

	get, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		return nil, err
	}
	put, err := db.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		get.Close()
		return nil, err
	}
	return &mbtilesFile{db: db, get: get, put: put}, nil
}

func formatName(kind tile.Kind) string {
	if kind == tile.Vector {
		return "pbf"
	}
	return kind.Ext()
}

func tmsRow(c tile.Coord) int {
	return (1 << c.Z) - 1 - c.Y // XYZ -> TMS
}

func (c *MBTilesCache) Get(key Key) ([]byte, bool) {
	f, ok := c.files[key.Kind]
	if !ok {
		return nil, false
	}
	var data []byte
	if err := f.get.QueryRow(key.Coord.Z, key.Coord.X, tmsRow(key.Coord)).Scan(&data); err != nil {
		return nil, false
	}
	return data, true
}

func (c *MBTilesCache) Has(key Key) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *MBTilesCache) Set(key Key, value []byte) error {
	f, ok := c.files[key.Kind]
	if !ok {
		return fmt.Errorf("no mbtiles database for %s tiles", key.Kind)
	}
	if _, err := f.put.Exec(key.Coord.Z, key.Coord.X, tmsRow(key.Coord), value); err != nil {
		return fmt.Errorf("failed to store tile %s: %w", key, err)
	}
	return nil
}

func (c *MBTilesCache) Clear() error {
	var errs []error
	for _, f := range c.files {
		if _, err := f.db.Exec("DELETE FROM tiles"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *MBTilesCache) Close() error {
	var errs []error
	for kind, f := range c.files {
		errs = append(errs, f.get.Close(), f.put.Close(), f.db.Close())
		delete(c.files, kind)
	}
	return errors.Join(errs...)
}
