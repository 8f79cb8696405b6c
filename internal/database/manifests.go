package database

import (
	"database/sql"
	"errors"
	"time"
)

var ErrManifestNotFound = errors.New("manifest not found")

// Manifest is the file list a transfer resolved to, as recorded when its
// metadata arrived.
type Manifest struct {
	InfoHash   string    `json:"info_hash"`
	Name       string    `json:"name"`
	SavePath   string    `json:"save_path"`
	Files      []string  `json:"files"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// RecordManifest stores m, replacing any earlier record for the same hash.
func (dbc *DBConn) RecordManifest(m Manifest) error {
	dbc.mu.Lock()
	defer dbc.mu.Unlock()

	tx, err := dbc.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const upsert string = `
	INSERT OR REPLACE INTO manifests (info_hash, name, save_path, resolved_at)
	VALUES (?, ?, ?, ?)
	`
	if _, err := tx.Exec(upsert, m.InfoHash, m.Name, m.SavePath, m.ResolvedAt.UnixNano()); err != nil {
		return err
	}
	const deleteFiles string = `
	DELETE FROM manifest_files
	WHERE info_hash = ?
	`
	if _, err := tx.Exec(deleteFiles, m.InfoHash); err != nil {
		return err
	}
	const insertFile string = `
	INSERT INTO manifest_files (info_hash, idx, path)
	VALUES (?, ?, ?)
	`
	for idx, path := range m.Files {
		if _, err := tx.Exec(insertFile, m.InfoHash, idx, path); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (dbc *DBConn) GetManifest(infoHash string) (*Manifest, error) {
	dbc.mu.Lock()
	defer dbc.mu.Unlock()

	const query string = `
	SELECT info_hash, name, save_path, resolved_at
	FROM manifests
	WHERE info_hash = ?
	`
	var m Manifest
	var resolvedAt int64
	err := dbc.db.QueryRow(query, infoHash).Scan(&m.InfoHash, &m.Name, &m.SavePath, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrManifestNotFound
	}
	if err != nil {
		return nil, err
	}
	m.ResolvedAt = time.Unix(0, resolvedAt)

	m.Files, err = dbc.getFiles(infoHash)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (dbc *DBConn) getFiles(infoHash string) ([]string, error) {
	const getFilesQuery string = `
	SELECT path FROM manifest_files
	WHERE info_hash = ?
	ORDER BY idx
	`
	rows, err := dbc.db.Query(getFilesQuery, infoHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, rows.Err()
}

// ListManifests returns every recorded manifest, newest first, without file lists.
func (dbc *DBConn) ListManifests() ([]*Manifest, error) {
	dbc.mu.Lock()
	defer dbc.mu.Unlock()

	const query string = `
	SELECT info_hash, name, save_path, resolved_at
	FROM manifests
	ORDER BY resolved_at DESC
	`
	rows, err := dbc.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	manifests := make([]*Manifest, 0)
	for rows.Next() {
		var m Manifest
		var resolvedAt int64
		if err := rows.Scan(&m.InfoHash, &m.Name, &m.SavePath, &resolvedAt); err != nil {
			return nil, err
		}
		m.ResolvedAt = time.Unix(0, resolvedAt)
		manifests = append(manifests, &m)
	}
	return manifests, rows.Err()
}

func (dbc *DBConn) DeleteManifest(infoHash string) error {
	dbc.mu.Lock()
	defer dbc.mu.Unlock()

	tx, err := dbc.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM manifests WHERE info_hash = ?`, infoHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrManifestNotFound
	}
	if _, err := tx.Exec(`DELETE FROM manifest_files WHERE info_hash = ?`, infoHash); err != nil {
		return err
	}
	return tx.Commit()
}
