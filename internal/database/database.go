package database

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const DefaultFile = "gotorrenthandler.db"

type DBConn struct {
	db *sql.DB
	mu sync.Mutex
}

// Connect opens (creating if needed) the catalog at file. ":memory:" is
// accepted and keeps everything on a single connection.
func Connect(file string) (*DBConn, error) {
	if file == "" {
		file = DefaultFile
	}
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	const createManifests string = `
	CREATE TABLE IF NOT EXISTS manifests (
		info_hash TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		save_path TEXT NOT NULL,
		resolved_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(createManifests); err != nil {
		db.Close()
		return nil, err
	}
	const createManifestFiles string = `
	CREATE TABLE IF NOT EXISTS manifest_files (
		info_hash TEXT NOT NULL,
		idx INTEGER NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (info_hash, idx)
	);`
	if _, err := db.Exec(createManifestFiles); err != nil {
		db.Close()
		return nil, err
	}
	return &DBConn{
		db: db,
	}, nil
}

func (dbc *DBConn) Disconnect() error {
	dbc.mu.Lock()
	defer dbc.mu.Unlock()

	return dbc.db.Close()
}
